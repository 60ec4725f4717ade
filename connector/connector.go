// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0

// Package connector reads table rows from, and writes them to, the systems
// a table's connector option names.
package connector

import (
	"context"
	"os"
	"strconv"
	"strings"

	"github.com/featurebasedb/sqlgateway/catalog"
	"github.com/featurebasedb/sqlgateway/errors"
	"github.com/featurebasedb/sqlgateway/logger"
	"github.com/featurebasedb/sqlgateway/types"
)

const (
	ErrConnector errors.Code = "ConnectorError"
)

// Connector type names.
const (
	TypeValues     = "values"
	TypeCollection = "collection"
	TypeFilesystem = "filesystem"
	TypeDatagen    = "datagen"
	TypeKafka      = "kafka"
	TypeSQL        = "sql"
)

// Source produces the rows of a table.
type Source interface {
	// Read calls emit for every row, in order, until the source is
	// exhausted, ctx is done or emit returns an error. Read releases the
	// source's resources before returning.
	Read(ctx context.Context, emit func(types.Row) error) error
	// Bounded reports whether Read returns once the data is exhausted.
	Bounded() bool
}

// Sink accepts the rows written to a table.
type Sink interface {
	Write(ctx context.Context, row types.Row) error
	Close() error
}

// Env holds what connectors share across tables.
type Env struct {
	Collections *Collections
	Logger      logger.Logger
}

// Table is a resolved table as connectors see it.
type Table struct {
	Path catalog.ObjectPath
	*catalog.Table
}

// PhysicalSchema returns the columns a connector stores, leaving out
// computed columns.
func (t Table) PhysicalSchema() types.Schema {
	var out types.Schema
	for _, c := range t.Schema {
		if c.Expr == "" {
			out = append(out, c)
		}
	}
	return out
}

func (t Table) connector() string {
	if c := t.Option("connector"); c != "" {
		return strings.ToLower(c)
	}
	if len(t.Data) > 0 {
		return TypeValues
	}
	return ""
}

func (t Table) tableType() string {
	return t.Option("table-type")
}

// OpenSource returns a source reading t.
func OpenSource(ctx context.Context, env Env, t Table) (Source, error) {
	if env.Logger == nil {
		env.Logger = logger.NopLogger
	}
	if t.tableType() == "sink-table" {
		return nil, errors.Newf(ErrConnector, "Table '%s' is declared as a sink table and cannot be read", t.Path.Summary())
	}
	schema := t.PhysicalSchema()
	switch typ := t.connector(); typ {
	case TypeValues:
		return newValuesSource(t.Data, schema)
	case TypeCollection:
		return env.Collections.source(t.collectionName(), schema), nil
	case TypeFilesystem:
		return newFileSource(t, schema)
	case TypeDatagen:
		return newDatagenSource(t, schema)
	case TypeKafka:
		return newKafkaSource(t, schema, env.Logger)
	case TypeSQL:
		return newSQLSource(t, schema, env.Logger)
	case "":
		return nil, errors.Newf(ErrConnector, "Table '%s' has no connector", t.Path.Summary())
	default:
		return nil, errors.Newf(ErrConnector, "Could not find a suitable table factory for connector '%s' of table '%s'", typ, t.Path.Summary())
	}
}

// OpenSink returns a sink writing to t.
func OpenSink(ctx context.Context, env Env, t Table) (Sink, error) {
	if env.Logger == nil {
		env.Logger = logger.NopLogger
	}
	if t.tableType() == "source-table" {
		return nil, errors.Newf(ErrConnector, "Table '%s' is declared as a source table and cannot be written to", t.Path.Summary())
	}
	schema := t.PhysicalSchema()
	switch typ := t.connector(); typ {
	case TypeCollection:
		return env.Collections.sink(t.collectionName()), nil
	case TypeFilesystem:
		return newFileSink(t, schema)
	case TypeKafka:
		return newKafkaSink(t, schema, env.Logger)
	case TypeSQL:
		return newSQLSink(ctx, t, schema, env.Logger)
	case TypeValues, TypeDatagen:
		return nil, errors.Newf(ErrConnector, "Connector '%s' of table '%s' does not support writing", typ, t.Path.Summary())
	case "":
		return nil, errors.Newf(ErrConnector, "Table '%s' has no connector", t.Path.Summary())
	default:
		return nil, errors.Newf(ErrConnector, "Could not find a suitable table factory for connector '%s' of table '%s'", typ, t.Path.Summary())
	}
}

// Truncate removes every row of t, as INSERT OVERWRITE does before it
// writes.
func Truncate(ctx context.Context, env Env, t Table) error {
	switch typ := t.connector(); typ {
	case TypeCollection:
		env.Collections.Clear(t.collectionName())
		return nil
	case TypeFilesystem:
		path, err := t.requireOption("path")
		if err != nil {
			return err
		}
		if err := os.Truncate(path, 0); err != nil && !os.IsNotExist(err) {
			return errors.Wrapf(err, "truncating %s", path)
		}
		return nil
	default:
		return errors.Newf(ErrConnector, "Connector '%s' of table '%s' does not support INSERT OVERWRITE", typ, t.Path.Summary())
	}
}

func (t Table) intOption(key string, def int64) (int64, error) {
	s := t.Option(key)
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, errors.Newf(ErrConnector, "invalid value '%s' for option '%s' of table '%s'", s, key, t.Path.Summary())
	}
	return v, nil
}

func (t Table) requireOption(key string) (string, error) {
	v := t.Option(key)
	if v == "" {
		return "", errors.Newf(ErrConnector, "Missing required option '%s' for table '%s'", key, t.Path.Summary())
	}
	return v, nil
}

// coerceRow converts raw values to the runtime types of schema.
func coerceRow(values []interface{}, schema types.Schema) (types.Row, error) {
	row := types.Row{Kind: types.Insert, Values: make([]interface{}, len(schema))}
	for i, col := range schema {
		if i >= len(values) {
			if !col.Nullable {
				return row, errors.Newf(ErrConnector, "missing value for non-null column '%s'", col.Name)
			}
			continue
		}
		v, err := types.Coerce(values[i], col.Type)
		if err != nil {
			return row, errors.Wrapf(err, "column '%s'", col.Name)
		}
		if v == nil && !col.Nullable {
			return row, errors.Newf(ErrConnector, "null value for non-null column '%s'", col.Name)
		}
		row.Values[i] = v
	}
	return row, nil
}
