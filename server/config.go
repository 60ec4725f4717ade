// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package server

import (
	"net"
	"strings"
	"time"

	"github.com/featurebasedb/sqlgateway/errors"
	"github.com/featurebasedb/sqlgateway/toml"
)

const (
	// DefaultBind is the default address the gateway listens on.
	DefaultBind = ":8083"

	ErrInvalidConfig errors.Code = "InvalidConfig"
)

// Config represents the configuration for the command.
type Config struct {
	// Bind is the host:port on which the gateway will listen.
	Bind string `toml:"bind"`

	// Defaults is a YAML environment file every session is layered on.
	Defaults string `toml:"defaults"`

	// LogPath configures where the gateway will write logs.
	LogPath string `toml:"log-path"`

	// Verbose toggles verbose logging which can be useful for debugging.
	Verbose bool `toml:"verbose"`

	// Workers is the number of jobs the local processor runs at once
	// without blocking each other.
	Workers int `toml:"workers"`

	// ChangelogCapacity bounds the changes a changelog result buffers
	// before the producing job waits for a reader.
	ChangelogCapacity int `toml:"changelog-capacity"`

	// HTTP Handler options
	Handler struct {
		// CORS Allowed Origins
		AllowedOrigins []string `toml:"allowed-origins"`
		// LongRequestTime is the duration above which requests are logged.
		LongRequestTime toml.Duration `toml:"long-request-time"`
		// CloseTimeout bounds how long in-flight requests may take to
		// finish at shutdown.
		CloseTimeout toml.Duration `toml:"close-timeout"`
	} `toml:"handler"`

	Tracing struct {
		// Enabled reports spans to the process-wide opentracing tracer.
		Enabled bool `toml:"enabled"`
	} `toml:"tracing"`
}

// NewConfig returns an instance of Config with default options.
func NewConfig() *Config {
	c := &Config{
		Bind:              DefaultBind,
		Workers:           8,
		ChangelogCapacity: 5000,
	}
	c.Handler.AllowedOrigins = []string{}
	c.Handler.LongRequestTime = toml.Duration(time.Minute)
	c.Handler.CloseTimeout = toml.Duration(30 * time.Second)
	return c
}

// Validate checks the config for values the server can't run with.
func (c *Config) Validate() error {
	if _, _, err := net.SplitHostPort(normalizeBind(c.Bind)); err != nil {
		return errors.Wrapc(err, ErrInvalidConfig, "invalid bind address: "+c.Bind)
	}
	if c.Workers < 1 {
		return errors.Newf(ErrInvalidConfig, "workers must be positive: %d", c.Workers)
	}
	if c.ChangelogCapacity < 1 {
		return errors.Newf(ErrInvalidConfig, "changelog-capacity must be positive: %d", c.ChangelogCapacity)
	}
	if c.Handler.LongRequestTime < 0 || c.Handler.CloseTimeout < 0 {
		return errors.New(ErrInvalidConfig, "handler durations must not be negative")
	}
	return nil
}

// normalizeBind strips an http scheme and adds the default port to a host
// without one.
func normalizeBind(bind string) string {
	bind = strings.TrimPrefix(bind, "http://")
	if !strings.Contains(bind, ":") {
		_, port, _ := net.SplitHostPort(DefaultBind)
		bind = net.JoinHostPort(bind, port)
	}
	return bind
}
