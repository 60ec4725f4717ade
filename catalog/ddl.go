// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package catalog

import (
	"context"
	"strings"

	"github.com/featurebasedb/sqlgateway/environment"
	"github.com/featurebasedb/sqlgateway/errors"
	"github.com/featurebasedb/sqlgateway/functions"
	"github.com/featurebasedb/sqlgateway/parser"
	"github.com/featurebasedb/sqlgateway/types"
)

// DescribeSchema is the schema of a DESCRIBE result.
var DescribeSchema = types.Schema{
	{Name: "name", Type: types.TypeString},
	{Name: "type", Type: types.TypeString},
	{Name: "null", Type: types.TypeBoolean},
	{Name: "key", Type: types.TypeString, Nullable: true},
	{Name: "extras", Type: types.TypeString, Nullable: true},
	{Name: "watermark", Type: types.TypeString, Nullable: true},
}

// Execute runs a catalog statement: DDL, USE, SHOW, DESCRIBE or a module
// statement.
func (m *Manager) Execute(ctx context.Context, stmt parser.Statement) (*types.TableResult, error) {
	switch stmt := stmt.(type) {
	case *parser.CreateCatalogStatement:
		props := stmt.Properties.Map()
		if props["type"] == "" {
			return nil, newErr("Catalog %s requires a 'type' property", stmt.Name)
		}
		return done(m.CreateCatalog(ctx, stmt.Name, props))
	case *parser.DropCatalogStatement:
		return done(m.DropCatalog(stmt.Name, stmt.IfExists))

	case *parser.CreateDatabaseStatement:
		db := &Database{Comment: stmt.Comment, Properties: stmt.Properties.Map()}
		return done(m.CreateDatabase(ctx, stmt.Name, db, stmt.IfNotExists))
	case *parser.AlterDatabaseStatement:
		return done(m.AlterDatabase(ctx, stmt.Name, &Database{Properties: stmt.Properties.Map()}))
	case *parser.DropDatabaseStatement:
		return done(m.DropDatabase(ctx, stmt.Name, stmt.IfExists, stmt.Cascade))

	case *parser.CreateTableStatement:
		return done(m.createTable(ctx, stmt))
	case *parser.AlterTableStatement:
		path, err := m.QualifyPath(stmt.Name)
		if err != nil {
			return nil, err
		}
		if len(stmt.RenameTo) > 0 {
			to, err := m.QualifyPath(stmt.RenameTo)
			if err != nil {
				return nil, err
			}
			return done(m.RenameTable(ctx, path, to))
		}
		return done(m.AlterTable(ctx, path, stmt.Properties.Map()))
	case *parser.DropTableStatement:
		return done(m.dropTable(ctx, stmt.Name, false, stmt.Temporary, stmt.IfExists))

	case *parser.CreateViewStatement:
		return done(m.createView(ctx, stmt))
	case *parser.DropViewStatement:
		return done(m.dropTable(ctx, stmt.Name, true, stmt.Temporary, stmt.IfExists))

	case *parser.CreateFunctionStatement:
		return done(m.createFunction(ctx, stmt))
	case *parser.AlterFunctionStatement:
		return done(m.alterFunction(ctx, stmt))
	case *parser.DropFunctionStatement:
		return done(m.dropFunction(ctx, stmt))

	case *parser.UseCatalogStatement:
		return done(m.SetCurrentCatalog(stmt.Name))
	case *parser.UseStatement:
		return done(m.SetCurrentDatabase(ctx, stmt.Name))

	case *parser.LoadModuleStatement:
		props := stmt.Properties.Map()
		typ := props["type"]
		if typ == "" {
			typ = stmt.Name
		}
		mod, err := functions.NewModule(environment.ModuleDef{Name: stmt.Name, Type: typ})
		if err != nil {
			return nil, err
		}
		return done(m.LoadModule(stmt.Name, mod))
	case *parser.UnloadModuleStatement:
		return done(m.UnloadModule(stmt.Name))

	case *parser.ShowStatement:
		return m.show(ctx, stmt.Kind)
	case *parser.DescribeStatement:
		return m.describe(ctx, stmt.Name)
	}
	return nil, errors.Newf(parser.ErrUnsupported, "%T is not a catalog statement", stmt)
}

func done(err error) (*types.TableResult, error) {
	if err != nil {
		return nil, err
	}
	return types.OK(), nil
}

func (m *Manager) show(ctx context.Context, kind parser.ShowKind) (*types.TableResult, error) {
	var column string
	var names []string
	var err error
	switch kind {
	case parser.ShowCatalogs:
		column, names = "catalog name", m.Catalogs()
	case parser.ShowCurrentCatalog:
		column, names = "current catalog name", []string{m.CurrentCatalog()}
	case parser.ShowDatabases:
		column = "database name"
		names, err = m.ListDatabases(ctx)
	case parser.ShowCurrentDatabase:
		column, names = "current database name", []string{m.CurrentDatabase()}
	case parser.ShowTables:
		column = "table name"
		names, err = m.ListTables(ctx)
	case parser.ShowViews:
		column = "view name"
		names, err = m.ListViews(ctx)
	case parser.ShowFunctions, parser.ShowUserFunctions:
		column = "function name"
		names, err = m.ListFunctions(ctx, kind == parser.ShowUserFunctions)
	case parser.ShowModules:
		column, names = "module name", m.Modules()
	case parser.ShowFullModules:
		res := &types.TableResult{
			Kind: types.ResultSuccessWithContent,
			Schema: types.Schema{
				{Name: "module name", Type: types.TypeString},
				{Name: "used", Type: types.TypeBoolean},
			},
		}
		for _, name := range m.Modules() {
			res.Rows = append(res.Rows, types.NewRow(name, true))
		}
		return res, nil
	default:
		return nil, errors.Newf(parser.ErrUnsupported, "SHOW %s is not supported", kind)
	}
	if err != nil {
		return nil, err
	}
	return types.StringsResult(column, names), nil
}

func (m *Manager) describe(ctx context.Context, name []string) (*types.TableResult, error) {
	_, t, err := m.ResolveTable(ctx, name)
	if err != nil {
		return nil, err
	}

	var key interface{}
	if len(t.PrimaryKey) > 0 {
		key = "PRI(" + strings.Join(t.PrimaryKey, ", ") + ")"
	}
	watermarks := make(map[string]string, len(t.Watermarks))
	for _, w := range t.Watermarks {
		watermarks[w.Column] = w.Expression
	}

	res := &types.TableResult{Kind: types.ResultSuccessWithContent, Schema: DescribeSchema}
	for _, col := range t.Schema {
		var colKey, extras, watermark interface{}
		for _, pk := range t.PrimaryKey {
			if pk == col.Name {
				colKey = key
			}
		}
		if col.Expr != "" {
			extras = "AS " + col.Expr
		}
		if w, ok := watermarks[col.Name]; ok {
			watermark = w
		}
		res.Rows = append(res.Rows, types.NewRow(col.Name, col.Type, col.Nullable, colKey, extras, watermark))
	}
	return res, nil
}

func (m *Manager) createTable(ctx context.Context, stmt *parser.CreateTableStatement) error {
	path, err := m.QualifyPath(stmt.Name)
	if err != nil {
		return err
	}

	t := &Table{
		Kind:       KindTable,
		PrimaryKey: stmt.PrimaryKey,
		Comment:    stmt.Comment,
		Options:    stmt.Properties.Map(),
	}
	var physical types.Schema
	for _, col := range stmt.Columns {
		if t.Schema.Index(col.Name) >= 0 {
			return newErr("Duplicate column name '%s' in table %s", col.Name, path)
		}
		c := types.Column{Name: col.Name, Type: col.Type, Nullable: col.Nullable, Expr: col.Expr}
		if col.Expr == "" {
			physical = append(physical, c)
		}
		t.Schema = append(t.Schema, c)
	}
	for i, col := range t.Schema {
		if col.Expr == "" {
			continue
		}
		if t.Schema[i].Type, err = m.ExpressionType(ctx, col.Expr, physical); err != nil {
			return errors.Wrapf(err, "computed column %s", col.Name)
		}
	}
	for _, pk := range t.PrimaryKey {
		i := t.Schema.Index(pk)
		if i < 0 {
			return newErr("Could not create a PRIMARY KEY. Column '%s' does not exist.", pk)
		}
		t.Schema[i].Nullable = false
	}
	for _, w := range stmt.Watermarks {
		if t.Schema.Index(w.Column) < 0 {
			return newErr("The rowtime attribute field '%s' is not defined in the table schema", w.Column)
		}
		t.Watermarks = append(t.Watermarks, Watermark{Column: w.Column, Expression: w.Expr})
	}

	if stmt.Temporary {
		return m.CreateTemporaryTable(ctx, path, t, stmt.IfNotExists)
	}
	return m.CreateTable(ctx, path, t, stmt.IfNotExists)
}

func (m *Manager) createView(ctx context.Context, stmt *parser.CreateViewStatement) error {
	path, err := m.QualifyPath(stmt.Name)
	if err != nil {
		return err
	}
	t, err := m.AnalyzeView(ctx, stmt.Query, stmt.Columns)
	if err != nil {
		return err
	}
	t.Comment = stmt.Comment
	for _, dep := range t.DependsOn {
		if dep == path {
			return newErr("View %s cannot reference itself", path)
		}
	}
	if stmt.Temporary {
		return m.CreateTemporaryTable(ctx, path, t, stmt.IfNotExists)
	}
	return m.CreateTable(ctx, path, t, stmt.IfNotExists)
}

func (m *Manager) dropTable(ctx context.Context, name []string, view, temporary, ifExists bool) error {
	path, err := m.QualifyPath(name)
	if err != nil {
		return err
	}
	if temporary {
		return m.DropTemporaryTable(ctx, path, view, ifExists)
	}
	return m.DropTable(ctx, path, view, ifExists)
}

func (m *Manager) createFunction(ctx context.Context, stmt *parser.CreateFunctionStatement) error {
	f := &Function{Identifier: stmt.Identifier, Language: stmt.Language}
	if stmt.System {
		if len(stmt.Name) != 1 {
			return newErr("Temporary system function %s must not be qualified", stmt.Name)
		}
		if _, err := m.registry.Lookup(f.Identifier); err != nil {
			return err
		}
		return m.CreateTemporarySystemFunction(stmt.Name[0], f, stmt.IfNotExists)
	}
	path, err := m.QualifyPath(stmt.Name)
	if err != nil {
		return err
	}
	if stmt.Temporary {
		return m.CreateTemporaryFunction(path, f, stmt.IfNotExists)
	}
	return m.CreateFunction(ctx, path, f, stmt.IfNotExists)
}

func (m *Manager) alterFunction(ctx context.Context, stmt *parser.AlterFunctionStatement) error {
	switch {
	case stmt.System:
		return newErr("Alter temporary system function is not supported")
	case stmt.Temporary:
		return newErr("Alter temporary catalog function is not supported")
	}
	path, err := m.QualifyPath(stmt.Name)
	if err != nil {
		return err
	}
	return m.AlterFunction(ctx, path, &Function{Identifier: stmt.Identifier, Language: stmt.Language}, stmt.IfExists)
}

func (m *Manager) dropFunction(ctx context.Context, stmt *parser.DropFunctionStatement) error {
	if stmt.System {
		if len(stmt.Name) != 1 {
			return newErr("Temporary system function %s must not be qualified", stmt.Name)
		}
		return m.DropTemporarySystemFunction(stmt.Name[0], stmt.IfExists)
	}
	path, err := m.QualifyPath(stmt.Name)
	if err != nil {
		return err
	}
	if stmt.Temporary {
		return m.DropTemporaryFunction(path, stmt.IfExists)
	}
	return m.DropFunction(ctx, path, stmt.IfExists)
}
