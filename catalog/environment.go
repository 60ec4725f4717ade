// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package catalog

import (
	"context"
	"strings"

	"github.com/featurebasedb/sqlgateway/environment"
	"github.com/featurebasedb/sqlgateway/errors"
	"github.com/featurebasedb/sqlgateway/functions"
	"github.com/featurebasedb/sqlgateway/types"
)

// Apply registers the catalogs, modules, functions, tables and views of env
// and switches to its current catalog and database. Tables and views become
// temporary objects of the current database; they are registered in order,
// so a view may read any table or view defined before it.
func (m *Manager) Apply(ctx context.Context, env *environment.Environment) error {
	for _, def := range env.Catalogs {
		props := def.Properties.Map("")
		props["type"] = def.Type
		if err := m.CreateCatalog(ctx, def.Name, props); err != nil {
			return err
		}
	}

	for _, def := range env.Modules {
		mod, err := functions.NewModule(def)
		if err != nil {
			return err
		}
		if err := m.LoadModule(def.Name, mod); err != nil {
			return err
		}
	}

	for _, def := range env.Functions {
		if _, err := m.registry.Lookup(def.Identifier); err != nil {
			return errors.Wrapf(err, "function %s", def.Name)
		}
		if err := m.CreateTemporarySystemFunction(def.Name, &Function{Identifier: def.Identifier}, false); err != nil {
			return err
		}
	}

	for _, def := range env.Tables {
		path, err := m.QualifyPath([]string{def.Name})
		if err != nil {
			return err
		}
		var t *Table
		if def.Kind == environment.TableView {
			if t, err = m.AnalyzeView(ctx, def.Query, nil); err != nil {
				return errors.Wrapf(err, "view %s", def.Name)
			}
		} else {
			t = TableFromDef(def)
		}
		if err := m.CreateTemporaryTable(ctx, path, t, false); err != nil {
			return err
		}
	}

	cfg, err := env.ExecutionConfig()
	if err != nil {
		return err
	}
	if cfg.CurrentCatalog != "" {
		if err := m.SetCurrentCatalog(cfg.CurrentCatalog); err != nil {
			return err
		}
	}
	if cfg.CurrentDatabase != "" {
		if err := m.SetCurrentDatabase(ctx, []string{cfg.CurrentDatabase}); err != nil {
			return err
		}
	}
	m.SetDialect(cfg.Dialect)
	return nil
}

// TableFromDef converts an environment table definition. The table kind
// (source, sink or both) is kept as the table-type option.
func TableFromDef(def environment.TableDef) *Table {
	t := &Table{
		Kind:    KindTable,
		Options: def.Options.Map(""),
		Data:    def.Data,
	}
	t.Options["table-type"] = def.Kind
	for _, col := range def.Schema {
		typ := strings.ToUpper(strings.TrimSpace(col.DataType))
		nullable := !strings.HasSuffix(typ, " NOT NULL")
		t.Schema = append(t.Schema, types.Column{
			Name:     col.Name,
			Type:     typ,
			Nullable: nullable,
		})
	}
	return t
}
