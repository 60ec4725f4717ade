// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0

// Package ctl contains the subcommands of sqlgateway other than the server
// itself.
package ctl

import (
	"context"
	"fmt"
	"io"

	"github.com/featurebasedb/sqlgateway/errors"
	"github.com/featurebasedb/sqlgateway/server"
	toml "github.com/pelletier/go-toml"
)

// ConfigCommand represents a command for printing the effective config.
type ConfigCommand struct {
	Config *server.Config

	Stdout io.Writer
}

// NewConfigCommand returns a new instance of ConfigCommand.
func NewConfigCommand(stdout io.Writer) *ConfigCommand {
	return &ConfigCommand{
		Config: server.NewConfig(),
		Stdout: stdout,
	}
}

// Run prints out the config, as read from flags, environment and config
// file.
func (cmd *ConfigCommand) Run(_ context.Context) error {
	return writeConfig(cmd.Stdout, cmd.Config)
}

// GenerateConfigCommand represents a command for printing a default config.
type GenerateConfigCommand struct {
	Stdout io.Writer
}

// NewGenerateConfigCommand returns a new instance of GenerateConfigCommand.
func NewGenerateConfigCommand(stdout io.Writer) *GenerateConfigCommand {
	return &GenerateConfigCommand{Stdout: stdout}
}

// Run prints out the default config.
func (cmd *GenerateConfigCommand) Run(_ context.Context) error {
	return writeConfig(cmd.Stdout, server.NewConfig())
}

func writeConfig(w io.Writer, c *server.Config) error {
	buf, err := toml.Marshal(*c)
	if err != nil {
		return errors.Wrap(err, "marshalling config")
	}
	fmt.Fprintln(w, string(buf))
	return nil
}
