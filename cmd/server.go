// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package cmd

import (
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/featurebasedb/sqlgateway/errors"
	"github.com/featurebasedb/sqlgateway/server"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Server is global so that tests can control and verify it.
var Server *server.Command

func newServeCmd(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	Server = server.NewCommand(stdin, stdout, stderr)
	serveCmd := &cobra.Command{
		Use:   "server",
		Short: "Run the SQL gateway.",
		Long: `sqlgateway server runs the SQL gateway.

It serves the gateway protocol over HTTP on the configured address. Each
session is layered on the default environment file, if one is given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			Server.Version()

			if err := Server.Start(); err != nil {
				return errors.Wrap(err, "running server")
			}

			errc := make(chan error, 1)
			go func() { errc <- Server.Wait() }()

			// First SIGTERM or interrupt causes server to shut down gracefully.
			c := make(chan os.Signal, 2)
			signal.Notify(c, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(c)
			select {
			case sig := <-c:
				Server.Logger().Infof("received %s; gracefully shutting down...", sig.String())

				// Second signal causes a hard shutdown.
				go func() { <-c; os.Exit(1) }()

				return Server.Close()
			case err := <-errc:
				if cerr := Server.Close(); err == nil {
					err = cerr
				}
				return err
			case <-Server.Done():
				Server.Logger().Infof("server closed externally")
			}
			return nil
		},
	}
	serverFlags(serveCmd.Flags(), Server.Config)
	return serveCmd
}

// serverFlags binds the server configuration to flags.
func serverFlags(flags *pflag.FlagSet, c *server.Config) {
	flags.StringVarP(&c.Bind, "bind", "b", c.Bind, "Default URI on which the gateway should listen.")
	flags.StringVarP(&c.Defaults, "defaults", "d", c.Defaults, "Environment YAML file every session is layered on.")
	flags.StringVar(&c.LogPath, "log-path", c.LogPath, "Log path")
	flags.BoolVar(&c.Verbose, "verbose", c.Verbose, "Enable verbose logging")
	flags.IntVar(&c.Workers, "workers", c.Workers, "Number of jobs the local processor runs at once.")
	flags.IntVar(&c.ChangelogCapacity, "changelog-capacity", c.ChangelogCapacity, "Number of changes a changelog result buffers.")
	flags.StringSliceVar(&c.Handler.AllowedOrigins, "handler.allowed-origins", c.Handler.AllowedOrigins, "Comma separated list of allowed origin URIs (for CORS/Web UI).")
	flags.Var(&c.Handler.LongRequestTime, "handler.long-request-time", "Duration above which requests are logged.")
	flags.Var(&c.Handler.CloseTimeout, "handler.close-timeout", "Duration in-flight requests may take at shutdown.")
	flags.BoolVar(&c.Tracing.Enabled, "tracing.enabled", c.Tracing.Enabled, "Report spans to the opentracing tracer.")
}
