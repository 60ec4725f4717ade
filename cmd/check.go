// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package cmd

import (
	"io"

	"github.com/featurebasedb/sqlgateway/ctl"
	"github.com/featurebasedb/sqlgateway/logger"
	"github.com/spf13/cobra"
)

var checker *ctl.CheckCommand

func newCheckCommand(stdout, stderr io.Writer) *cobra.Command {
	checker = ctl.NewCheckCommand(stdout, logger.NewStandardLogger(stderr))
	return &cobra.Command{
		Use:   "check <path> [path...]",
		Short: "Check environment files.",
		Long: `check opens a session on each environment file, which registers its
catalogs, tables, views and functions, and reports the first error found.
`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			checker.Paths = args
			return checker.Run(cmd.Context())
		},
	}
}
