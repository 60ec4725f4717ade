// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0

// Package server contains the `sqlgateway server` subcommand which runs the
// gateway itself. The purpose of this package is to define an easily tested
// Command object which handles interpreting configuration and setting up all
// the objects the gateway needs.
package server

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"syscall"
	"time"

	gateway "github.com/featurebasedb/sqlgateway"
	"github.com/featurebasedb/sqlgateway/environment"
	"github.com/featurebasedb/sqlgateway/errors"
	gwhttp "github.com/featurebasedb/sqlgateway/http"
	"github.com/featurebasedb/sqlgateway/logger"
	gwopentracing "github.com/featurebasedb/sqlgateway/tracing/opentracing"
	"github.com/opentracing/opentracing-go"
	"golang.org/x/sync/errgroup"
)

// Command represents the state of the sqlgateway server command.
type Command struct {
	// Configuration.
	Config *Config

	Executor *gateway.LocalExecutor
	Handler  *gwhttp.Handler

	// Standard input/output
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	logger  logger.Logger
	logFile *logger.FileWriter

	ln    net.Listener
	group errgroup.Group

	// done will be closed when Command.Close() is called
	done      chan struct{}
	closeOnce sync.Once
}

// NewCommand returns a new instance of Command.
func NewCommand(stdin io.Reader, stdout, stderr io.Writer) *Command {
	return &Command{
		Config: NewConfig(),

		Stdin:  stdin,
		Stdout: stdout,
		Stderr: stderr,

		logger: logger.NopLogger,
		done:   make(chan struct{}),
	}
}

// Start sets up the gateway and starts serving in the background.
func (m *Command) Start() error {
	if err := m.Config.Validate(); err != nil {
		return err
	}
	if err := m.setupLogger(); err != nil {
		return errors.Wrap(err, "setting up logger")
	}

	var defaults *environment.Environment
	if m.Config.Defaults != "" {
		env, err := environment.ParseFile(m.Config.Defaults)
		if err != nil {
			return errors.Wrap(err, "reading default environment")
		}
		defaults = env
		m.logger.Infof("using default environment from %s", m.Config.Defaults)
	}

	if m.Config.Tracing.Enabled {
		gwopentracing.Install(opentracing.GlobalTracer(), m.logger.WithPrefix("tracing: "))
	}

	m.Executor = gateway.NewLocalExecutor(gateway.Config{
		Defaults:          defaults,
		Workers:           m.Config.Workers,
		ChangelogCapacity: m.Config.ChangelogCapacity,
		Logger:            m.logger,
	})

	ln, err := net.Listen("tcp", normalizeBind(m.Config.Bind))
	if err != nil {
		m.Executor.Close(context.Background())
		return errors.Wrap(err, "listening")
	}
	m.ln = ln

	m.Handler, err = gwhttp.NewHandler(
		gwhttp.OptHandlerExecutor(m.Executor),
		gwhttp.OptHandlerListener(ln),
		gwhttp.OptHandlerLogger(m.logger.WithPrefix("http: ")),
		gwhttp.OptHandlerAllowedOrigins(m.Config.Handler.AllowedOrigins),
		gwhttp.OptHandlerLongRequestTime(time.Duration(m.Config.Handler.LongRequestTime)),
		gwhttp.OptHandlerCloseTimeout(time.Duration(m.Config.Handler.CloseTimeout)),
	)
	if err != nil {
		ln.Close()
		m.Executor.Close(context.Background())
		return errors.Wrap(err, "creating handler")
	}

	m.group.Go(m.Handler.Serve)
	m.logger.Infof("listening as http://%s", ln.Addr())
	return nil
}

// setupLogger writes logs to the configured file, reopening it on SIGHUP,
// or to Stderr.
func (m *Command) setupLogger() error {
	var w io.Writer = m.Stderr
	if m.Config.LogPath != "" {
		f, err := logger.NewFileWriter(m.Config.LogPath)
		if err != nil {
			return errors.Wrap(err, "opening log file")
		}
		f.ReopenOn(m.done, logger.NewStandardLogger(m.Stderr), syscall.SIGHUP)
		m.logFile = f
		w = f
	}
	if m.Config.Verbose {
		m.logger = logger.NewVerboseLogger(w)
	} else {
		m.logger = logger.NewStandardLogger(w)
	}
	return nil
}

// Address returns the address the server listens on.
func (m *Command) Address() string {
	if m.ln == nil {
		return ""
	}
	return m.ln.Addr().String()
}

// Logger returns the logger the server writes to.
func (m *Command) Logger() logger.Logger { return m.logger }

// Done is closed when the server is closed.
func (m *Command) Done() <-chan struct{} { return m.done }

// Wait blocks until the server stops serving.
func (m *Command) Wait() error {
	return m.group.Wait()
}

// Close shuts down the server. Every open session is closed and its jobs
// cancelled.
func (m *Command) Close() error {
	var err error
	m.closeOnce.Do(func() {
		var serveErr, execErr, logErr error
		if m.Handler != nil {
			serveErr = m.Handler.Close()
		}
		if m.Executor != nil {
			execErr = m.Executor.Close(context.Background())
		}
		close(m.done)
		if m.logFile != nil {
			logErr = m.logFile.Close()
		}
		switch {
		case serveErr != nil:
			err = serveErr
		case execErr != nil:
			err = execErr
		case logErr != nil:
			err = errors.Wrap(logErr, "closing logs")
		}
		if err == nil && m.Handler != nil {
			err = m.Wait()
		}
	})
	return err
}

// Version prints the version banner to Stderr.
func (m *Command) Version() {
	fmt.Fprintln(m.Stderr, gateway.VersionInfo())
}
