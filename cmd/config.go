// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package cmd

import (
	"io"

	"github.com/featurebasedb/sqlgateway/ctl"
	"github.com/spf13/cobra"
)

var Conf *ctl.ConfigCommand

func newConfigCommand(stdout io.Writer) *cobra.Command {
	Conf = ctl.NewConfigCommand(stdout)
	confCmd := &cobra.Command{
		Use:   "config",
		Short: "Print the current configuration.",
		Long: `config prints the configuration the server would run with, after
reading flags, environment variables and the config file, to stdout.
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return Conf.Run(cmd.Context())
		},
	}
	serverFlags(confCmd.Flags(), Conf.Config)
	return confCmd
}

var generateConf *ctl.GenerateConfigCommand

func newGenerateConfigCommand(stdout io.Writer) *cobra.Command {
	generateConf = ctl.NewGenerateConfigCommand(stdout)
	return &cobra.Command{
		Use:   "generate-config",
		Short: "Print the default configuration.",
		Long: `generate-config prints the default configuration to stdout
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return generateConf.Run(cmd.Context())
		},
	}
}
