// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0

// Package environment describes the catalogs, modules, tables, functions and
// execution options a session starts with. An Environment is immutable: Merge
// and Enrich always return a new value.
package environment

import (
	"strings"

	"github.com/featurebasedb/sqlgateway/errors"
)

const (
	ErrInvalidEnvironment errors.Code = "InvalidEnvironment"
	ErrInvalidProperty    errors.Code = "InvalidProperty"
)

// Prefixes used to route flat property keys to an Environment block.
const (
	ExecutionPrefix  = "execution."
	DeploymentPrefix = "deployment."
)

// Names which always exist.
const (
	DefaultCatalog  = "default_catalog"
	DefaultDatabase = "default_database"
)

// Table kinds.
const (
	TableSource     = "source-table"
	TableSink       = "sink-table"
	TableSourceSink = "source-sink-table"
	TableView       = "view"
)

// CatalogDef defines a catalog registered when a session starts.
type CatalogDef struct {
	Name       string     `json:"name"`
	Type       string     `json:"type"`
	Properties Properties `json:"properties,omitempty"`
}

// ModuleDef defines a function module. Module order is resolution order.
type ModuleDef struct {
	Name       string     `json:"name"`
	Type       string     `json:"type"`
	Properties Properties `json:"properties,omitempty"`
}

// ColumnDef is one column of a table schema.
type ColumnDef struct {
	Name     string `yaml:"name" json:"name"`
	DataType string `yaml:"data-type" json:"dataType"`
}

// TableDef defines a table or view registered in the session's default
// catalog as a temporary object.
type TableDef struct {
	Name string `json:"name"`
	Kind string `json:"kind"`

	// Options are connector and format options, for example
	// connector=filesystem, path=/tmp/x.csv, format=csv.
	Options Properties  `json:"options,omitempty"`
	Schema  []ColumnDef `json:"schema,omitempty"`

	// Query is the view's defining query.
	Query string `json:"query,omitempty"`

	// Data holds inline rows for the values connector.
	Data [][]interface{} `json:"data,omitempty"`
}

// FunctionDef binds a function name to a registered implementation.
type FunctionDef struct {
	Name       string `json:"name"`
	Identifier string `json:"identifier"`
}

// Environment is the base configuration of a session.
type Environment struct {
	Catalogs  []CatalogDef  `json:"catalogs,omitempty"`
	Modules   []ModuleDef   `json:"modules,omitempty"`
	Tables    []TableDef    `json:"tables,omitempty"`
	Functions []FunctionDef `json:"functions,omitempty"`

	// Execution holds keys without the "execution." prefix.
	Execution Properties `json:"execution"`
	// Deployment holds keys without the "deployment." prefix.
	Deployment Properties `json:"deployment"`
	// Configuration holds everything else under its full key, for example
	// table.sql-dialect.
	Configuration Properties `json:"configuration"`
}

// Merge returns an environment holding the definitions of both a and b. For
// equal names b wins but keeps a's position; b's new names are appended.
func Merge(a, b *Environment) *Environment {
	if a == nil {
		a = &Environment{}
	}
	if b == nil {
		b = &Environment{}
	}
	out := &Environment{
		Execution:     a.Execution.Merge(b.Execution),
		Deployment:    a.Deployment.Merge(b.Deployment),
		Configuration: a.Configuration.Merge(b.Configuration),
	}

	out.Catalogs = mergeNamed(a.Catalogs, b.Catalogs, func(c CatalogDef) string { return c.Name })
	out.Modules = mergeNamed(a.Modules, b.Modules, func(m ModuleDef) string { return m.Name })
	out.Tables = mergeNamed(a.Tables, b.Tables, func(t TableDef) string { return t.Name })
	out.Functions = mergeNamed(a.Functions, b.Functions, func(f FunctionDef) string { return f.Name })
	return out
}

func mergeNamed[T any](a, b []T, name func(T) string) []T {
	out := make([]T, 0, len(a)+len(b))
	pos := make(map[string]int, len(a)+len(b))
	for _, list := range [][]T{a, b} {
		for _, v := range list {
			if i, ok := pos[name(v)]; ok {
				out[i] = v
				continue
			}
			pos[name(v)] = len(out)
			out = append(out, v)
		}
	}
	return out
}

// Enrich returns a copy of e with the flat overlay applied on top. Keys with
// the execution or deployment prefix go to that block, any other key goes to
// Configuration.
func Enrich(e *Environment, overlay map[string]string) *Environment {
	out := Merge(e, nil)
	for k, v := range overlay {
		switch {
		case strings.HasPrefix(k, ExecutionPrefix):
			out.Execution = out.Execution.Set(strings.TrimPrefix(k, ExecutionPrefix), v)
		case strings.HasPrefix(k, DeploymentPrefix):
			out.Deployment = out.Deployment.Set(strings.TrimPrefix(k, DeploymentPrefix), v)
		default:
			out.Configuration = out.Configuration.Set(k, v)
		}
	}
	return out
}

// Flatten returns every execution, deployment and configuration property
// under its full key.
func (e *Environment) Flatten() map[string]string {
	out := e.Configuration.Map("")
	for k, v := range e.Execution.Map(ExecutionPrefix) {
		out[k] = v
	}
	for k, v := range e.Deployment.Map(DeploymentPrefix) {
		out[k] = v
	}
	return out
}

// Defaults returns the system defaults every session environment is layered
// on.
func Defaults() *Environment {
	return &Environment{
		Modules: []ModuleDef{{Name: "core", Type: "core"}},
		Execution: NewProperties(map[string]string{
			"planner":                      "blink",
			"type":                         "streaming",
			"result-mode":                  "table",
			"max-table-result-rows":        "1000000",
			"parallelism":                  "1",
			"max-parallelism":              "128",
			"time-characteristic":          "event-time",
			"periodic-watermarks-interval": "200",
			"min-idle-state-retention":     "0",
			"max-idle-state-retention":     "0",
			"restart-strategy.type":        "fallback",
		}),
		Deployment: NewProperties(map[string]string{
			"target": "local",
		}),
		Configuration: NewProperties(map[string]string{
			"table.sql-dialect": "default",
		}),
	}
}
