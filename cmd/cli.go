// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package cmd

import (
	"io"

	"github.com/featurebasedb/sqlgateway/cli"
	"github.com/featurebasedb/sqlgateway/logger"
	"github.com/spf13/cobra"
)

var cliCmd *cli.CLICommand

// newCLICommand runs the interactive SQL client.
func newCLICommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	cliCmd = cli.NewCLICommand(logger.NewStandardLogger(stderr))
	if rc, ok := stdin.(io.ReadCloser); ok {
		cliCmd.Stdin = rc
	}
	cliCmd.Stdout, cliCmd.Stderr = stdout, stderr

	cobraCmd := &cobra.Command{
		Use:   "cli",
		Short: "Run SQL statements on the gateway from the command line.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cliCmd.Run(cmd.Context())
		},
	}

	flags := cobraCmd.Flags()
	flags.StringVar(&cliCmd.Address, "address", cliCmd.Address, "host:port of the gateway.")
	flags.StringVar(&cliCmd.HistoryPath, "history-path", cliCmd.HistoryPath, "path for history files.")
	flags.StringVarP(&cliCmd.Environment, "environment", "e", cliCmd.Environment, "Environment YAML file the session is opened with.")
	flags.StringVar(&cliCmd.SessionID, "session", cliCmd.SessionID, "Session id. A random id is used when empty.")
	flags.IntVar(&cliCmd.Retries, "retries", cliCmd.Retries, "Number of times a request to an unreachable gateway is retried.")
	flags.IntVar(&cliCmd.PageSize, "page-size", cliCmd.PageSize, "Rows per page of a materialized result.")
	flags.DurationVar(&cliCmd.PollInterval, "poll-interval", cliCmd.PollInterval, "Interval between reads of a running query's result.")

	return cobraCmd
}
