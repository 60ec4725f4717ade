// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0

// Package catalog contains the gateway's metadata layer: catalogs holding
// databases, tables, views and functions, and the per session Manager which
// resolves names against them.
package catalog

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/featurebasedb/sqlgateway/errors"
	"github.com/featurebasedb/sqlgateway/types"
)

// ObjectPath is the fully qualified name of a table, view or function.
type ObjectPath struct {
	Catalog  string `json:"catalog"`
	Database string `json:"database"`
	Object   string `json:"object"`
}

// String returns the quoted form, `catalog`.`database`.`object`.
func (p ObjectPath) String() string {
	return "`" + p.Catalog + "`.`" + p.Database + "`.`" + p.Object + "`"
}

// Summary returns the unquoted form, catalog.database.object.
func (p ObjectPath) Summary() string {
	return p.Catalog + "." + p.Database + "." + p.Object
}

// TableKind distinguishes tables from views.
type TableKind string

const (
	KindTable TableKind = "TABLE"
	KindView  TableKind = "VIEW"
)

// Watermark declares the event time attribute of a table.
type Watermark struct {
	Column     string `json:"column"`
	Expression string `json:"expression"`
}

// Table is a table or view definition.
type Table struct {
	Kind       TableKind         `json:"kind"`
	Schema     types.Schema      `json:"schema"`
	PrimaryKey []string          `json:"primaryKey,omitempty"`
	Watermarks []Watermark       `json:"watermarks,omitempty"`
	Options    map[string]string `json:"options,omitempty"`
	Comment    string            `json:"comment,omitempty"`

	// Query is a view's expanded defining query.
	Query string `json:"query,omitempty"`
	// DependsOn lists the objects a view's query reads.
	DependsOn []ObjectPath `json:"dependsOn,omitempty"`

	// Data holds inline rows for the values connector.
	Data [][]interface{} `json:"data,omitempty"`
}

// IsView reports whether t is a view.
func (t *Table) IsView() bool { return t.Kind == KindView }

// Option returns a connector option.
func (t *Table) Option(key string) string { return t.Options[key] }

// Database is a namespace within a catalog.
type Database struct {
	Name       string            `json:"name"`
	Comment    string            `json:"comment,omitempty"`
	Properties map[string]string `json:"properties,omitempty"`
}

// Function binds a name to a registered implementation identifier.
type Function struct {
	Identifier string `json:"identifier"`
	Language   string `json:"language,omitempty"`
}

// Catalog is a named collection of databases. Its objects are kept in a
// Store, so the same logic serves in-memory and persistent catalogs.
type Catalog struct {
	name      string
	typ       string
	defaultDB string
	store     Store
}

// New returns a catalog of the given type keeping its objects in store.
func New(name, typ, defaultDB string, store Store) *Catalog {
	return &Catalog{name: name, typ: typ, defaultDB: defaultDB, store: store}
}

// NewMemCatalog returns an in-memory catalog.
func NewMemCatalog(name, defaultDB string) *Catalog {
	return New(name, "memory", defaultDB, NewMemStore())
}

func (c *Catalog) Name() string            { return c.name }
func (c *Catalog) Type() string            { return c.typ }
func (c *Catalog) DefaultDatabase() string { return c.defaultDB }

// Persistent reports whether the catalog outlives the process.
func (c *Catalog) Persistent() bool { return c.typ != "memory" }

// Open makes sure the default database exists.
func (c *Catalog) Open(ctx context.Context) error {
	return c.store.Update(func(tx StoreTx) error {
		b, err := tx.Get(BucketDatabases, c.defaultDB)
		if err != nil || b != nil {
			return err
		}
		return putJSON(tx, BucketDatabases, c.defaultDB, &Database{Name: c.defaultDB})
	})
}

// Close releases the underlying store.
func (c *Catalog) Close() error {
	return c.store.Close()
}

func objectKey(db, name string) string {
	return db + "\x00" + name
}

func putJSON(tx StoreTx, bucket, key string, v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "marshaling catalog object")
	}
	return tx.Put(bucket, key, b)
}

func getJSON(tx StoreTx, bucket, key string, v interface{}) (bool, error) {
	b, err := tx.Get(bucket, key)
	if err != nil || b == nil {
		return false, err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return false, errors.Wrapf(err, "unmarshaling catalog object %s", strings.ReplaceAll(key, "\x00", "."))
	}
	return true, nil
}

func (c *Catalog) ListDatabases(ctx context.Context) (dbs []string, err error) {
	err = c.store.View(func(tx StoreTx) error {
		dbs, err = tx.Keys(BucketDatabases, "")
		return err
	})
	return dbs, err
}

func (c *Catalog) DatabaseExists(ctx context.Context, name string) bool {
	_, err := c.GetDatabase(ctx, name)
	return err == nil
}

func (c *Catalog) GetDatabase(ctx context.Context, name string) (*Database, error) {
	db := &Database{}
	var found bool
	err := c.store.View(func(tx StoreTx) (err error) {
		found, err = getJSON(tx, BucketDatabases, name, db)
		return err
	})
	if err != nil {
		return nil, err
	} else if !found {
		return nil, NewErrDatabaseNotExist(c.name, name)
	}
	return db, nil
}

func (c *Catalog) CreateDatabase(ctx context.Context, db *Database, ignoreIfExists bool) error {
	return c.store.Update(func(tx StoreTx) error {
		b, err := tx.Get(BucketDatabases, db.Name)
		if err != nil {
			return err
		} else if b != nil {
			if ignoreIfExists {
				return nil
			}
			return NewErrDatabaseExists(c.name, db.Name)
		}
		return putJSON(tx, BucketDatabases, db.Name, db)
	})
}

// AlterDatabase replaces the comment and merges the properties of the
// database.
func (c *Catalog) AlterDatabase(ctx context.Context, db *Database, ignoreIfNotExists bool) error {
	return c.store.Update(func(tx StoreTx) error {
		existing := &Database{}
		found, err := getJSON(tx, BucketDatabases, db.Name, existing)
		if err != nil {
			return err
		} else if !found {
			if ignoreIfNotExists {
				return nil
			}
			return NewErrDatabaseNotExist(c.name, db.Name)
		}
		if existing.Properties == nil {
			existing.Properties = map[string]string{}
		}
		for k, v := range db.Properties {
			existing.Properties[k] = v
		}
		if db.Comment != "" {
			existing.Comment = db.Comment
		}
		return putJSON(tx, BucketDatabases, db.Name, existing)
	})
}

// DropDatabase removes a database. A non-empty database is only removed
// with cascade, together with its objects.
func (c *Catalog) DropDatabase(ctx context.Context, name string, ignoreIfNotExists, cascade bool) error {
	return c.store.Update(func(tx StoreTx) error {
		b, err := tx.Get(BucketDatabases, name)
		if err != nil {
			return err
		} else if b == nil {
			if ignoreIfNotExists {
				return nil
			}
			return NewErrDatabaseNotExist(c.name, name)
		}

		var objects []string
		for _, bucket := range []string{BucketTables, BucketFunctions} {
			keys, err := tx.Keys(bucket, objectKey(name, ""))
			if err != nil {
				return err
			}
			if len(keys) > 0 && !cascade {
				return NewErrDatabaseNotEmpty(c.name, name)
			}
			for _, k := range keys {
				objects = append(objects, bucket+"/"+k)
			}
		}
		for _, o := range objects {
			i := strings.IndexByte(o, '/')
			if err := tx.Delete(o[:i], o[i+1:]); err != nil {
				return err
			}
		}
		return tx.Delete(BucketDatabases, name)
	})
}

func (c *Catalog) checkDatabase(tx StoreTx, db string) error {
	b, err := tx.Get(BucketDatabases, db)
	if err != nil {
		return err
	} else if b == nil {
		return NewErrDatabaseNotExist(c.name, db)
	}
	return nil
}

// ListTables returns the names of tables and views in db.
func (c *Catalog) ListTables(ctx context.Context, db string) ([]string, error) {
	return c.listTables(db, "")
}

// ListViews returns the names of views in db.
func (c *Catalog) ListViews(ctx context.Context, db string) ([]string, error) {
	return c.listTables(db, KindView)
}

func (c *Catalog) listTables(db string, kind TableKind) (names []string, err error) {
	err = c.store.View(func(tx StoreTx) error {
		if err := c.checkDatabase(tx, db); err != nil {
			return err
		}
		keys, err := tx.Keys(BucketTables, objectKey(db, ""))
		if err != nil {
			return err
		}
		for _, k := range keys {
			name := strings.TrimPrefix(k, objectKey(db, ""))
			if kind != "" {
				t := &Table{}
				if _, err := getJSON(tx, BucketTables, k, t); err != nil {
					return err
				} else if t.Kind != kind {
					continue
				}
			}
			names = append(names, name)
		}
		return nil
	})
	return names, err
}

// GetTable returns the table or view at path.
func (c *Catalog) GetTable(ctx context.Context, path ObjectPath) (*Table, error) {
	t := &Table{}
	var found bool
	err := c.store.View(func(tx StoreTx) (err error) {
		found, err = getJSON(tx, BucketTables, objectKey(path.Database, path.Object), t)
		return err
	})
	if err != nil {
		return nil, err
	} else if !found {
		return nil, NewErrTableNotExist(path)
	}
	return t, nil
}

func (c *Catalog) TableExists(ctx context.Context, path ObjectPath) bool {
	_, err := c.GetTable(ctx, path)
	return err == nil
}

func (c *Catalog) CreateTable(ctx context.Context, path ObjectPath, t *Table, ignoreIfExists bool) error {
	return c.store.Update(func(tx StoreTx) error {
		if err := c.checkDatabase(tx, path.Database); err != nil {
			return err
		}
		key := objectKey(path.Database, path.Object)
		if b, err := tx.Get(BucketTables, key); err != nil {
			return err
		} else if b != nil {
			if ignoreIfExists {
				return nil
			}
			return NewErrTableExists(path)
		}
		return putJSON(tx, BucketTables, key, t)
	})
}

// AlterTable replaces the definition at path. The kind must not change.
func (c *Catalog) AlterTable(ctx context.Context, path ObjectPath, t *Table, ignoreIfNotExists bool) error {
	return c.store.Update(func(tx StoreTx) error {
		key := objectKey(path.Database, path.Object)
		existing := &Table{}
		found, err := getJSON(tx, BucketTables, key, existing)
		if err != nil {
			return err
		} else if !found {
			if ignoreIfNotExists {
				return nil
			}
			return NewErrTableNotExist(path)
		} else if existing.Kind != t.Kind {
			return newErr("Table types don't match. Existing table is '%s' and new table is '%s'.", existing.Kind, t.Kind)
		}
		return putJSON(tx, BucketTables, key, t)
	})
}

func (c *Catalog) RenameTable(ctx context.Context, path ObjectPath, newName string, ignoreIfNotExists bool) error {
	return c.store.Update(func(tx StoreTx) error {
		key := objectKey(path.Database, path.Object)
		b, err := tx.Get(BucketTables, key)
		if err != nil {
			return err
		} else if b == nil {
			if ignoreIfNotExists {
				return nil
			}
			return NewErrTableNotExist(path)
		}
		newKey := objectKey(path.Database, newName)
		if existing, err := tx.Get(BucketTables, newKey); err != nil {
			return err
		} else if existing != nil {
			return NewErrTableExists(ObjectPath{Catalog: path.Catalog, Database: path.Database, Object: newName})
		}
		if err := tx.Put(BucketTables, newKey, b); err != nil {
			return err
		}
		return tx.Delete(BucketTables, key)
	})
}

func (c *Catalog) DropTable(ctx context.Context, path ObjectPath, ignoreIfNotExists bool) error {
	return c.store.Update(func(tx StoreTx) error {
		key := objectKey(path.Database, path.Object)
		if b, err := tx.Get(BucketTables, key); err != nil {
			return err
		} else if b == nil {
			if ignoreIfNotExists {
				return nil
			}
			return NewErrTableNotExist(path)
		}
		return tx.Delete(BucketTables, key)
	})
}

// Function names are case insensitive.
func functionKey(path ObjectPath) string {
	return objectKey(path.Database, strings.ToLower(path.Object))
}

func (c *Catalog) ListFunctions(ctx context.Context, db string) (names []string, err error) {
	err = c.store.View(func(tx StoreTx) error {
		if err := c.checkDatabase(tx, db); err != nil {
			return err
		}
		keys, err := tx.Keys(BucketFunctions, objectKey(db, ""))
		for _, k := range keys {
			names = append(names, strings.TrimPrefix(k, objectKey(db, "")))
		}
		return err
	})
	return names, err
}

func (c *Catalog) GetFunction(ctx context.Context, path ObjectPath) (*Function, error) {
	f := &Function{}
	var found bool
	err := c.store.View(func(tx StoreTx) (err error) {
		found, err = getJSON(tx, BucketFunctions, functionKey(path), f)
		return err
	})
	if err != nil {
		return nil, err
	} else if !found {
		return nil, NewErrFunctionNotExist(path)
	}
	return f, nil
}

func (c *Catalog) FunctionExists(ctx context.Context, path ObjectPath) bool {
	_, err := c.GetFunction(ctx, path)
	return err == nil
}

func (c *Catalog) CreateFunction(ctx context.Context, path ObjectPath, f *Function, ignoreIfExists bool) error {
	return c.store.Update(func(tx StoreTx) error {
		if err := c.checkDatabase(tx, path.Database); err != nil {
			return err
		}
		if b, err := tx.Get(BucketFunctions, functionKey(path)); err != nil {
			return err
		} else if b != nil {
			if ignoreIfExists {
				return nil
			}
			return NewErrFunctionExists(path)
		}
		return putJSON(tx, BucketFunctions, functionKey(path), f)
	})
}

func (c *Catalog) AlterFunction(ctx context.Context, path ObjectPath, f *Function, ignoreIfNotExists bool) error {
	return c.store.Update(func(tx StoreTx) error {
		if b, err := tx.Get(BucketFunctions, functionKey(path)); err != nil {
			return err
		} else if b == nil {
			if ignoreIfNotExists {
				return nil
			}
			return NewErrFunctionNotExist(path)
		}
		return putJSON(tx, BucketFunctions, functionKey(path), f)
	})
}

func (c *Catalog) DropFunction(ctx context.Context, path ObjectPath, ignoreIfNotExists bool) error {
	return c.store.Update(func(tx StoreTx) error {
		if b, err := tx.Get(BucketFunctions, functionKey(path)); err != nil {
			return err
		} else if b == nil {
			if ignoreIfNotExists {
				return nil
			}
			return NewErrFunctionNotExist(path)
		}
		return tx.Delete(BucketFunctions, functionKey(path))
	})
}
