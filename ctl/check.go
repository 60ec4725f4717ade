// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package ctl

import (
	"context"
	"fmt"
	"io"
	"strings"

	gateway "github.com/featurebasedb/sqlgateway"
	"github.com/featurebasedb/sqlgateway/environment"
	"github.com/featurebasedb/sqlgateway/errors"
	"github.com/featurebasedb/sqlgateway/logger"
)

// CheckCommand represents a command for checking environment files. Each
// file is parsed and a session is opened on it, which registers its
// catalogs, tables, views and functions.
type CheckCommand struct {
	// Environment file paths.
	Paths []string

	Stdout io.Writer
	Logger logger.Logger
}

// NewCheckCommand returns a new instance of CheckCommand.
func NewCheckCommand(stdout io.Writer, logdest logger.Logger) *CheckCommand {
	return &CheckCommand{
		Stdout: stdout,
		Logger: logdest,
	}
}

// Run executes the check command. It fails on the first invalid file.
func (cmd *CheckCommand) Run(ctx context.Context) error {
	if len(cmd.Paths) == 0 {
		return errors.Errorf("no environment files given")
	}
	for _, path := range cmd.Paths {
		if err := cmd.checkFile(ctx, path); err != nil {
			return errors.Wrapf(err, "checking %s", path)
		}
	}
	return nil
}

func (cmd *CheckCommand) checkFile(ctx context.Context, path string) error {
	env, err := environment.ParseFile(path)
	if err != nil {
		return err
	}

	e := gateway.NewLocalExecutor(gateway.Config{Logger: cmd.Logger})
	defer e.Close(context.Background())

	id, err := e.OpenSession(ctx, "check", env)
	if err != nil {
		return err
	}

	var tables int
	catalogs, err := e.ExecuteSQL(ctx, id, "SHOW CATALOGS")
	if err != nil {
		return err
	}
	for _, cat := range catalogs.Table.Strings() {
		if _, err := e.ExecuteSQL(ctx, id, "USE CATALOG "+quoteIdent(cat)); err != nil {
			return err
		}
		dbs, err := e.ExecuteSQL(ctx, id, "SHOW DATABASES")
		if err != nil {
			return err
		}
		for _, db := range dbs.Table.Strings() {
			if _, err := e.ExecuteSQL(ctx, id, "USE "+quoteIdent(db)); err != nil {
				return err
			}
			res, err := e.ExecuteSQL(ctx, id, "SHOW TABLES")
			if err != nil {
				return err
			}
			tables += len(res.Table.Rows)
		}
	}
	fmt.Fprintf(cmd.Stdout, "%s: ok (%d catalogs, %d tables)\n", path, len(catalogs.Table.Rows), tables)
	return nil
}

func quoteIdent(s string) string {
	return "`" + strings.ReplaceAll(s, "`", "``") + "`"
}
