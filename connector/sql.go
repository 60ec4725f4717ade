// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0

package connector

import (
	"context"
	"database/sql"
	"strconv"
	"strings"

	_ "github.com/denisenkom/go-mssqldb"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"

	gwcontext "github.com/featurebasedb/sqlgateway/context"
	"github.com/featurebasedb/sqlgateway/errors"
	"github.com/featurebasedb/sqlgateway/logger"
	"github.com/featurebasedb/sqlgateway/types"
)

// dialect holds what differs between the supported database drivers.
type dialect struct {
	driver      string
	quote       func(string) string
	placeholder func(i int) string
}

var dialects = map[string]dialect{
	"postgres": {
		driver:      "postgres",
		quote:       func(s string) string { return `"` + strings.ReplaceAll(s, `"`, `""`) + `"` },
		placeholder: func(i int) string { return "$" + strconv.Itoa(i) },
	},
	"mysql": {
		driver:      "mysql",
		quote:       func(s string) string { return "`" + strings.ReplaceAll(s, "`", "``") + "`" },
		placeholder: func(int) string { return "?" },
	},
	"sqlserver": {
		driver:      "sqlserver",
		quote:       func(s string) string { return "[" + strings.ReplaceAll(s, "]", "]]") + "]" },
		placeholder: func(i int) string { return "@p" + strconv.Itoa(i) },
	},
}

type sqlOptions struct {
	dialect dialect
	url     string
	table   string
}

func (t Table) sqlOptions() (sqlOptions, error) {
	var o sqlOptions
	url, err := t.requireOption("url")
	if err != nil {
		return o, err
	}
	table, err := t.requireOption("table-name")
	if err != nil {
		return o, err
	}
	name := strings.ToLower(t.Option("driver"))
	if name == "" {
		switch {
		case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
			name = "postgres"
		case strings.HasPrefix(url, "sqlserver://"):
			name = "sqlserver"
		default:
			return o, errors.Newf(ErrConnector, "Missing required option 'driver' for table '%s'", t.Path.Summary())
		}
	}
	switch name {
	case "postgresql", "pq":
		name = "postgres"
	case "mssql":
		name = "sqlserver"
	}
	d, ok := dialects[name]
	if !ok {
		return o, errors.Newf(ErrConnector, "Unsupported driver '%s' for table '%s'", name, t.Path.Summary())
	}
	o.dialect, o.url, o.table = d, url, table
	return o, nil
}

func (o sqlOptions) columns(schema types.Schema) string {
	cols := make([]string, len(schema))
	for i, c := range schema {
		cols[i] = o.dialect.quote(c.Name)
	}
	return strings.Join(cols, ", ")
}

func (o sqlOptions) tableName() string {
	parts := strings.Split(o.table, ".")
	for i := range parts {
		parts[i] = o.dialect.quote(parts[i])
	}
	return strings.Join(parts, ".")
}

// sqlSource reads a table of an external database.
type sqlSource struct {
	opts   sqlOptions
	schema types.Schema
	log    logger.Logger
}

func newSQLSource(t Table, schema types.Schema, log logger.Logger) (*sqlSource, error) {
	o, err := t.sqlOptions()
	if err != nil {
		return nil, err
	}
	return &sqlSource{opts: o, schema: schema, log: log}, nil
}

func (s *sqlSource) Bounded() bool { return true }

func (s *sqlSource) Read(ctx context.Context, emit func(types.Row) error) error {
	db, err := sql.Open(s.opts.dialect.driver, s.opts.url)
	if err != nil {
		return errors.Wrap(err, "opening database")
	}
	defer db.Close()

	query := "SELECT " + s.opts.columns(s.schema) + " FROM " + s.opts.tableName()
	blocker := gwcontext.BlockerFrom(ctx)
	blocker.Block()
	rows, err := db.QueryContext(ctx, query)
	blocker.Unblock()
	if err != nil {
		return errors.Wrap(err, "error executing query")
	}
	defer rows.Close()

	vals := make([]interface{}, len(s.schema))
	for i := range vals {
		vals[i] = new(interface{})
	}
	n := 0
	for rows.Next() {
		if err := rows.Scan(vals...); err != nil {
			return errors.Wrap(err, "scanning row")
		}
		raw := make([]interface{}, len(vals))
		for i := range vals {
			raw[i] = *(vals[i].(*interface{}))
		}
		row, err := coerceRow(raw, s.schema)
		if err != nil {
			return err
		}
		if err := emit(row); err != nil {
			return err
		}
		n++
		if (n%10000 == 0 && n < 100000) || (n%100000 == 0) {
			s.log.Debugf("read %d rows from %s", n, s.opts.table)
		}
	}
	return errors.Wrap(rows.Err(), "reading rows")
}

// sqlSink inserts rows into a table of an external database. Retractions
// delete by primary key, so they need one.
type sqlSink struct {
	name   string
	db     *sql.DB
	insert string
	delete string
	key    []int
}

func newSQLSink(ctx context.Context, t Table, schema types.Schema, log logger.Logger) (*sqlSink, error) {
	o, err := t.sqlOptions()
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(o.dialect.driver, o.url)
	if err != nil {
		return nil, errors.Wrap(err, "opening database")
	}

	placeholders := make([]string, len(schema))
	for i := range schema {
		placeholders[i] = o.dialect.placeholder(i + 1)
	}
	s := &sqlSink{
		name:   t.Path.Summary(),
		db:     db,
		insert: "INSERT INTO " + o.tableName() + " (" + o.columns(schema) + ") VALUES (" + strings.Join(placeholders, ", ") + ")",
	}
	if len(t.PrimaryKey) > 0 {
		conds := make([]string, len(t.PrimaryKey))
		for i, k := range t.PrimaryKey {
			idx := schema.Index(k)
			if idx < 0 {
				db.Close()
				return nil, errors.Newf(ErrConnector, "primary key column '%s' is not a physical column", k)
			}
			s.key = append(s.key, idx)
			conds[i] = o.dialect.quote(schema[idx].Name) + " = " + o.dialect.placeholder(i+1)
		}
		s.delete = "DELETE FROM " + o.tableName() + " WHERE " + strings.Join(conds, " AND ")
	}
	log.Debugf("sql sink for %s: %s", s.name, s.insert)
	return s, nil
}

func (s *sqlSink) Write(ctx context.Context, row types.Row) error {
	blocker := gwcontext.BlockerFrom(ctx)
	blocker.Block()
	defer blocker.Unblock()

	if row.Kind.IsRetraction() {
		if s.delete == "" {
			return errors.Newf(ErrConnector, "Table sink '%s' doesn't support consuming update and delete changes without a primary key", s.name)
		}
		args := make([]interface{}, len(s.key))
		for i, idx := range s.key {
			args[i] = row.Values[idx]
		}
		_, err := s.db.ExecContext(ctx, s.delete, args...)
		return errors.Wrap(err, "deleting row")
	}
	_, err := s.db.ExecContext(ctx, s.insert, row.Values...)
	return errors.Wrap(err, "inserting row")
}

func (s *sqlSink) Close() error {
	return s.db.Close()
}
