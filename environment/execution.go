// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package environment

import (
	"strings"

	"github.com/featurebasedb/sqlgateway/errors"
)

// Result modes.
const (
	ResultModeTable     = "table"
	ResultModeChangelog = "changelog"
)

// SQL dialects.
const (
	DialectDefault = "default"
	DialectHive    = "hive"
)

// ExecutionConfig is the typed, validated view of an environment's
// execution, deployment and configuration blocks.
type ExecutionConfig struct {
	Streaming          bool
	ResultMode         string
	MaxTableResultRows int
	Parallelism        int
	MaxParallelism     int
	CurrentCatalog     string
	CurrentDatabase    string
	Dialect            string
	DeploymentTarget   string
	RestartStrategy    string
}

// Materialized reports whether query results are served in table mode.
func (c ExecutionConfig) Materialized() bool {
	return c.ResultMode == ResultModeTable
}

// ExecutionConfig validates the environment's options and returns them
// typed.
func (e *Environment) ExecutionConfig() (ExecutionConfig, error) {
	var c ExecutionConfig
	var err error

	switch typ := strings.ToLower(e.Execution.GetOr("type", "streaming")); typ {
	case "streaming":
		c.Streaming = true
	case "batch":
	default:
		return c, errors.Newf(ErrInvalidProperty, "invalid execution type '%s', expected streaming or batch", typ)
	}

	switch mode := strings.ToLower(e.Execution.GetOr("result-mode", ResultModeTable)); mode {
	case ResultModeTable, ResultModeChangelog:
		c.ResultMode = mode
	default:
		return c, errors.Newf(ErrInvalidProperty, "invalid result mode '%s', expected table or changelog", mode)
	}

	if c.MaxTableResultRows, err = e.Execution.GetInt("max-table-result-rows", 1000000); err != nil {
		return c, err
	}
	if c.Parallelism, err = e.Execution.GetInt("parallelism", 1); err != nil {
		return c, err
	} else if c.Parallelism < 1 {
		return c, errors.Newf(ErrInvalidProperty, "parallelism must be positive but was %d", c.Parallelism)
	}
	if c.MaxParallelism, err = e.Execution.GetInt("max-parallelism", 128); err != nil {
		return c, err
	}
	for _, k := range []string{"periodic-watermarks-interval", "min-idle-state-retention", "max-idle-state-retention"} {
		if _, err := e.Execution.GetInt(k, 0); err != nil {
			return c, err
		}
	}

	switch d := strings.ToLower(e.Configuration.GetOr("table.sql-dialect", DialectDefault)); d {
	case DialectDefault, DialectHive:
		c.Dialect = d
	default:
		return c, errors.Newf(ErrInvalidProperty, "unsupported SQL dialect: %s", d)
	}

	c.CurrentCatalog = e.Execution.GetOr("current-catalog", "")
	c.CurrentDatabase = e.Execution.GetOr("current-database", "")
	c.DeploymentTarget = e.Deployment.GetOr("target", "local")
	c.RestartStrategy = e.Execution.GetOr("restart-strategy.type", "fallback")
	return c, nil
}
