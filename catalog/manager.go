// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package catalog

import (
	"context"
	"strings"
	"sync"

	"github.com/featurebasedb/sqlgateway/environment"
	"github.com/featurebasedb/sqlgateway/errors"
	"github.com/featurebasedb/sqlgateway/functions"
	"github.com/featurebasedb/sqlgateway/logger"
	"github.com/featurebasedb/sqlgateway/types"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Factory opens the catalog called name from its definition properties.
type Factory func(ctx context.Context, name string, props map[string]string) (*Catalog, error)

// MemoryFactory opens an in-memory catalog. The default database is taken
// from the default-database property.
func MemoryFactory(ctx context.Context, name string, props map[string]string) (*Catalog, error) {
	db := props["default-database"]
	if db == "" {
		db = "default"
	}
	c := NewMemCatalog(name, db)
	return c, c.Open(ctx)
}

// QueryAnalysis describes a query without running it.
type QueryAnalysis struct {
	// Schema is the output schema of the query.
	Schema types.Schema
	// DependsOn lists every table and view the query reads.
	DependsOn []ObjectPath
	// Expanded is the query with every object name fully qualified.
	Expanded string
}

// QueryAnalyzer validates queries on behalf of the Manager, which needs the
// schema and the dependencies of every view it stores.
type QueryAnalyzer interface {
	AnalyzeQuery(ctx context.Context, query string) (*QueryAnalysis, error)
	// ExpressionType returns the type of expr evaluated over a row of
	// schema.
	ExpressionType(ctx context.Context, expr string, schema types.Schema) (string, error)
}

// ManagerConfig holds what a Manager is built from.
type ManagerConfig struct {
	// Factories open catalogs by type name.
	Factories map[string]Factory
	Registry  *functions.Registry
	Dialect   string
	Logger    logger.Logger
}

// Manager is the session's view of every registered catalog. On top of the
// catalogs it holds the current catalog and database, temporary objects and
// the ordered list of function modules.
type Manager struct {
	mu sync.RWMutex

	factories map[string]Factory
	registry  *functions.Registry
	analyzer  QueryAnalyzer
	dialect   string
	logger    logger.Logger

	catalogs        map[string]*Catalog
	currentCatalog  string
	currentDatabase string

	tempTables          map[ObjectPath]*Table
	tempFunctions       map[ObjectPath]*Function
	tempSystemFunctions map[string]*Function

	modules []namedModule
}

type namedModule struct {
	name   string
	module functions.Module
}

// NewManager returns a manager holding the built-in in-memory catalog
// default_catalog with its database default_database, which is also the
// current one.
func NewManager(ctx context.Context, cfg ManagerConfig) (*Manager, error) {
	m := &Manager{
		factories:           map[string]Factory{"memory": MemoryFactory},
		registry:            cfg.Registry,
		dialect:             cfg.Dialect,
		logger:              cfg.Logger,
		catalogs:            make(map[string]*Catalog),
		tempTables:          make(map[ObjectPath]*Table),
		tempFunctions:       make(map[ObjectPath]*Function),
		tempSystemFunctions: make(map[string]*Function),
	}
	for typ, f := range cfg.Factories {
		m.factories[typ] = f
	}
	if m.registry == nil {
		m.registry = functions.NewRegistry()
	}
	if m.logger == nil {
		m.logger = logger.NopLogger
	}
	if m.dialect == "" {
		m.dialect = environment.DialectDefault
	}

	def := NewMemCatalog(environment.DefaultCatalog, environment.DefaultDatabase)
	if err := def.Open(ctx); err != nil {
		return nil, errors.Wrap(err, "opening default catalog")
	}
	m.catalogs[def.Name()] = def
	m.currentCatalog = def.Name()
	m.currentDatabase = def.DefaultDatabase()
	return m, nil
}

// SetAnalyzer sets the analyzer used to validate view queries.
func (m *Manager) SetAnalyzer(a QueryAnalyzer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.analyzer = a
}

// SetDialect switches the SQL dialect DDL is checked against.
func (m *Manager) SetDialect(dialect string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dialect = dialect
}

// Dialect returns the current SQL dialect.
func (m *Manager) Dialect() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dialect
}

// Registry returns the function implementation registry.
func (m *Manager) Registry() *functions.Registry { return m.registry }

// Close closes every catalog.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var firstErr error
	for name, c := range m.catalogs {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = errors.Wrapf(err, "closing catalog %s", name)
		}
	}
	m.catalogs = map[string]*Catalog{}
	return firstErr
}

////////////////////////////////////////////////////////////////////////////////
// Catalogs
////////////////////////////////////////////////////////////////////////////////

// RegisterCatalog adds an opened catalog.
func (m *Manager) RegisterCatalog(c *Catalog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.catalogs[c.Name()]; ok {
		return NewErrCatalogExists(c.Name())
	}
	m.catalogs[c.Name()] = c
	return nil
}

// CreateCatalog opens a catalog with the factory named by the type property
// and registers it.
func (m *Manager) CreateCatalog(ctx context.Context, name string, props map[string]string) error {
	m.mu.RLock()
	_, exists := m.catalogs[name]
	m.mu.RUnlock()
	if exists {
		return NewErrCatalogExists(name)
	}

	typ := props["type"]
	factory, ok := m.factories[typ]
	if !ok {
		return newErr("Could not find a catalog factory for type '%s' of catalog '%s'", typ, name)
	}
	c, err := factory(ctx, name, props)
	if err != nil {
		return errors.Wrapf(err, "creating catalog %s", name)
	}
	if err := m.RegisterCatalog(c); err != nil {
		c.Close()
		return err
	}
	m.logger.Debugf("registered %s catalog %s", typ, name)
	return nil
}

// DropCatalog closes and unregisters a catalog.
func (m *Manager) DropCatalog(name string, ignoreIfNotExists bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.catalogs[name]
	if !ok {
		if ignoreIfNotExists {
			return nil
		}
		return NewErrCatalogNotExist(name)
	} else if name == m.currentCatalog {
		return newErr("Cannot drop a catalog which is currently in use.")
	}
	delete(m.catalogs, name)
	for path := range m.tempTables {
		if path.Catalog == name {
			delete(m.tempTables, path)
		}
	}
	return c.Close()
}

// Catalogs returns the registered catalog names, sorted.
func (m *Manager) Catalogs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := maps.Keys(m.catalogs)
	slices.Sort(names)
	return names
}

// Catalog returns the named catalog.
func (m *Manager) Catalog(name string) (*Catalog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.catalog(name)
}

func (m *Manager) catalog(name string) (*Catalog, error) {
	c, ok := m.catalogs[name]
	if !ok {
		return nil, NewErrCatalogNotExist(name)
	}
	return c, nil
}

// CurrentCatalog returns the name of the current catalog.
func (m *Manager) CurrentCatalog() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.currentCatalog
}

// CurrentDatabase returns the name of the current database.
func (m *Manager) CurrentDatabase() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.currentDatabase
}

// SetCurrentCatalog switches to the catalog and its default database.
func (m *Manager) SetCurrentCatalog(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, err := m.catalog(name)
	if err != nil {
		return err
	}
	m.currentCatalog = name
	m.currentDatabase = c.DefaultDatabase()
	return nil
}

// SetCurrentDatabase switches the current database. name is either a
// database of the current catalog or catalog.database.
func (m *Manager) SetCurrentDatabase(ctx context.Context, name []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	catalogName, db := m.currentCatalog, ""
	switch len(name) {
	case 1:
		db = name[0]
	case 2:
		catalogName, db = name[0], name[1]
	default:
		return newErr("Invalid database name %s", strings.Join(name, "."))
	}
	c, err := m.catalog(catalogName)
	if err != nil {
		return err
	}
	if !c.DatabaseExists(ctx, db) {
		return NewErrDatabaseNotExist(catalogName, db)
	}
	m.currentCatalog = catalogName
	m.currentDatabase = db
	return nil
}

// QualifyPath completes a one to three part name with the current catalog
// and database.
func (m *Manager) QualifyPath(name []string) (ObjectPath, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.qualify(name)
}

func (m *Manager) qualify(name []string) (ObjectPath, error) {
	switch len(name) {
	case 1:
		return ObjectPath{Catalog: m.currentCatalog, Database: m.currentDatabase, Object: name[0]}, nil
	case 2:
		return ObjectPath{Catalog: m.currentCatalog, Database: name[0], Object: name[1]}, nil
	case 3:
		return ObjectPath{Catalog: name[0], Database: name[1], Object: name[2]}, nil
	}
	return ObjectPath{}, newErr("Invalid object name %s", strings.Join(name, "."))
}

// checkDialect rejects DDL on permanent objects of a non-persistent catalog
// under the hive dialect.
func (m *Manager) checkDialect(c *Catalog) error {
	if m.dialect == environment.DialectHive && !c.Persistent() {
		return newErr("Dialect hive requires a persistent catalog, but catalog %s is of type %s", c.Name(), c.Type())
	}
	return nil
}

////////////////////////////////////////////////////////////////////////////////
// Databases
////////////////////////////////////////////////////////////////////////////////

// ListDatabases returns the databases of the current catalog, sorted.
func (m *Manager) ListDatabases(ctx context.Context) ([]string, error) {
	c, err := m.Catalog(m.CurrentCatalog())
	if err != nil {
		return nil, err
	}
	dbs, err := c.ListDatabases(ctx)
	slices.Sort(dbs)
	return dbs, err
}

// databaseCatalog splits a one or two part database name.
func (m *Manager) databaseCatalog(name []string) (*Catalog, string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	switch len(name) {
	case 1:
		c, err := m.catalog(m.currentCatalog)
		return c, name[0], err
	case 2:
		c, err := m.catalog(name[0])
		return c, name[1], err
	}
	return nil, "", newErr("Invalid database name %s", strings.Join(name, "."))
}

func (m *Manager) CreateDatabase(ctx context.Context, name []string, db *Database, ignoreIfExists bool) error {
	c, dbName, err := m.databaseCatalog(name)
	if err != nil {
		return err
	} else if err := m.checkDialect(c); err != nil {
		return err
	}
	db.Name = dbName
	return c.CreateDatabase(ctx, db, ignoreIfExists)
}

func (m *Manager) AlterDatabase(ctx context.Context, name []string, db *Database) error {
	c, dbName, err := m.databaseCatalog(name)
	if err != nil {
		return err
	}
	db.Name = dbName
	return c.AlterDatabase(ctx, db, false)
}

func (m *Manager) DropDatabase(ctx context.Context, name []string, ignoreIfNotExists, cascade bool) error {
	c, dbName, err := m.databaseCatalog(name)
	if err != nil {
		if ignoreIfNotExists && errors.Is(err, ErrCatalog) {
			return nil
		}
		return err
	}
	if c.Name() == m.CurrentCatalog() && dbName == m.CurrentDatabase() {
		return newErr("Cannot drop a database which is currently in use.")
	}
	if err := c.DropDatabase(ctx, dbName, ignoreIfNotExists, cascade); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for path := range m.tempTables {
		if path.Catalog == c.Name() && path.Database == dbName {
			delete(m.tempTables, path)
		}
	}
	return nil
}

////////////////////////////////////////////////////////////////////////////////
// Tables and views
////////////////////////////////////////////////////////////////////////////////

func objectKind(view bool) string {
	if view {
		return "View"
	}
	return "Table"
}

// ListTables returns the tables and views, temporary ones included, of the
// current database.
func (m *Manager) ListTables(ctx context.Context) ([]string, error) {
	return m.listTables(ctx, false)
}

// ListViews returns the views, temporary ones included, of the current
// database.
func (m *Manager) ListViews(ctx context.Context) ([]string, error) {
	return m.listTables(ctx, true)
}

func (m *Manager) listTables(ctx context.Context, viewsOnly bool) ([]string, error) {
	m.mu.RLock()
	catalogName, db := m.currentCatalog, m.currentDatabase
	set := make(map[string]struct{})
	for path, t := range m.tempTables {
		if path.Catalog == catalogName && path.Database == db && (!viewsOnly || t.IsView()) {
			set[path.Object] = struct{}{}
		}
	}
	c, err := m.catalog(catalogName)
	m.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	var names []string
	if viewsOnly {
		names, err = c.ListViews(ctx, db)
	} else {
		names, err = c.ListTables(ctx, db)
	}
	if err != nil {
		return nil, err
	}
	for _, n := range names {
		set[n] = struct{}{}
	}

	out := maps.Keys(set)
	slices.Sort(out)
	return out, nil
}

// ResolveTable qualifies name and returns the temporary or permanent table
// found there. Temporary objects shadow permanent ones.
func (m *Manager) ResolveTable(ctx context.Context, name []string) (ObjectPath, *Table, error) {
	path, err := m.QualifyPath(name)
	if err != nil {
		return path, nil, err
	}
	t, _, err := m.GetTable(ctx, path)
	if err != nil {
		return path, nil, newErr("Object '%s' not found within '%s'", path.Object, path.Catalog+"."+path.Database)
	}
	return path, t, nil
}

// GetTable returns the table or view at path and whether it is temporary.
func (m *Manager) GetTable(ctx context.Context, path ObjectPath) (*Table, bool, error) {
	m.mu.RLock()
	if t, ok := m.tempTables[path]; ok {
		m.mu.RUnlock()
		return t, true, nil
	}
	c, err := m.catalog(path.Catalog)
	m.mu.RUnlock()
	if err != nil {
		return nil, false, err
	}
	t, err := c.GetTable(ctx, path)
	return t, false, err
}

// CreateTemporaryTable registers a table or view which lives as long as the
// session.
func (m *Manager) CreateTemporaryTable(ctx context.Context, path ObjectPath, t *Table, ignoreIfExists bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.catalog(path.Catalog); err != nil {
		return err
	}
	if _, ok := m.tempTables[path]; ok {
		if ignoreIfExists {
			return nil
		}
		return newErr("Temporary table '%s' already exists", path)
	}
	m.tempTables[path] = t
	return nil
}

// CreateTable stores a permanent table or view in its catalog.
func (m *Manager) CreateTable(ctx context.Context, path ObjectPath, t *Table, ignoreIfExists bool) error {
	c, err := m.Catalog(path.Catalog)
	if err != nil {
		return err
	} else if err := m.checkDialect(c); err != nil {
		return err
	}
	return c.CreateTable(ctx, path, t, ignoreIfExists)
}

// AlterTable replaces the options of a permanent table.
func (m *Manager) AlterTable(ctx context.Context, path ObjectPath, options map[string]string) error {
	if err := m.checkNotTemporary(path, "Alter"); err != nil {
		return err
	}
	c, err := m.Catalog(path.Catalog)
	if err != nil {
		return err
	}
	t, err := c.GetTable(ctx, path)
	if err != nil {
		return err
	}
	if t.Options == nil {
		t.Options = make(map[string]string, len(options))
	}
	for k, v := range options {
		t.Options[k] = v
	}
	return c.AlterTable(ctx, path, t, false)
}

// RenameTable renames a permanent table or view within its database.
func (m *Manager) RenameTable(ctx context.Context, path ObjectPath, to ObjectPath) error {
	if err := m.checkNotTemporary(path, "Rename"); err != nil {
		return err
	}
	if to.Catalog != path.Catalog || to.Database != path.Database {
		return newErr("Cannot rename %s to %s: a table can only be renamed within its database", path, to)
	}
	c, err := m.Catalog(path.Catalog)
	if err != nil {
		return err
	}
	return c.RenameTable(ctx, path, to.Object, false)
}

func (m *Manager) checkNotTemporary(path ObjectPath, op string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.tempTables[path]; ok {
		return newErr("%s temporary table is not supported", op)
	}
	return nil
}

// DropTemporaryTable drops a temporary table, or a temporary view when view
// is set.
func (m *Manager) DropTemporaryTable(ctx context.Context, path ObjectPath, view, ignoreIfNotExists bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tempTables[path]
	if !ok || t.IsView() != view {
		if ignoreIfNotExists {
			return nil
		}
		return newErr("Temporary %s with identifier '%s' does not exist.", strings.ToLower(objectKind(view)), path.Summary())
	}
	if view {
		if err := m.checkViewDependents(ctx, path); err != nil {
			return err
		}
	}
	delete(m.tempTables, path)
	return nil
}

// DropTable drops a permanent table, or a permanent view when view is set. A
// temporary object at the same path must be dropped first.
func (m *Manager) DropTable(ctx context.Context, path ObjectPath, view, ignoreIfNotExists bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kind := objectKind(view)
	if _, ok := m.tempTables[path]; ok {
		return newErr("Temporary %s with identifier '%s' exists. Drop it first before removing the permanent %s.",
			strings.ToLower(kind), path.Summary(), strings.ToLower(kind))
	}
	c, err := m.catalog(path.Catalog)
	if err != nil {
		if ignoreIfNotExists {
			return nil
		}
		return err
	}
	t, err := c.GetTable(ctx, path)
	if err != nil || t.IsView() != view {
		if ignoreIfNotExists {
			return nil
		}
		return newErr("%s with identifier '%s' does not exist.", kind, path.Summary())
	}
	if view {
		if err := m.checkViewDependents(ctx, path); err != nil {
			return err
		}
	}
	return c.DropTable(ctx, path, false)
}

// checkViewDependents fails if another view in the session's reach reads
// path. m.mu must be held.
func (m *Manager) checkViewDependents(ctx context.Context, path ObjectPath) error {
	dependent := func(other ObjectPath, t *Table) bool {
		if !t.IsView() || other == path {
			return false
		}
		for _, dep := range t.DependsOn {
			if dep == path {
				return true
			}
		}
		return false
	}

	var users []string
	for other, t := range m.tempTables {
		if dependent(other, t) {
			users = append(users, other.Summary())
		}
	}
	if c, ok := m.catalogs[path.Catalog]; ok {
		dbs, err := c.ListDatabases(ctx)
		if err != nil {
			return err
		}
		for _, db := range dbs {
			views, err := c.ListViews(ctx, db)
			if err != nil {
				return err
			}
			for _, v := range views {
				other := ObjectPath{Catalog: path.Catalog, Database: db, Object: v}
				if _, shadowed := m.tempTables[other]; shadowed {
					continue
				}
				t, err := c.GetTable(ctx, other)
				if err != nil {
					return err
				}
				if dependent(other, t) {
					users = append(users, other.Summary())
				}
			}
		}
	}
	if len(users) == 0 {
		return nil
	}
	slices.Sort(users)
	return newErr("Cannot drop view '%s': it is referenced by view '%s'", path.Summary(), users[0])
}

// AnalyzeView validates a view's query and fills in its schema, dependencies
// and expanded query. columns, when given, rename the query's output.
func (m *Manager) AnalyzeView(ctx context.Context, query string, columns []string) (*Table, error) {
	m.mu.RLock()
	a := m.analyzer
	m.mu.RUnlock()
	if a == nil {
		return nil, newErr("No query analyzer is available to validate views")
	}

	analysis, err := a.AnalyzeQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	schema := analysis.Schema
	if len(columns) > 0 {
		if len(columns) != len(schema) {
			return nil, newErr("View column list has %d columns but the query returns %d", len(columns), len(schema))
		}
		schema = append(types.Schema(nil), schema...)
		for i := range schema {
			schema[i].Name = columns[i]
		}
	}
	return &Table{
		Kind:      KindView,
		Schema:    schema,
		Query:     analysis.Expanded,
		DependsOn: analysis.DependsOn,
	}, nil
}

// ExpressionType returns the type of a computed column expression.
func (m *Manager) ExpressionType(ctx context.Context, expr string, schema types.Schema) (string, error) {
	m.mu.RLock()
	a := m.analyzer
	m.mu.RUnlock()
	if a == nil {
		return types.TypeString, nil
	}
	return a.ExpressionType(ctx, expr, schema)
}

////////////////////////////////////////////////////////////////////////////////
// Functions
////////////////////////////////////////////////////////////////////////////////

// CreateTemporarySystemFunction registers a function which is resolved
// before every module and catalog function.
func (m *Manager) CreateTemporarySystemFunction(name string, f *Function, ignoreIfExists bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := strings.ToLower(name)
	if _, ok := m.tempSystemFunctions[key]; ok {
		if ignoreIfExists {
			return nil
		}
		return newErr("Could not register temporary system function. A function named '%s' does already exist.", name)
	}
	m.tempSystemFunctions[key] = f
	return nil
}

func (m *Manager) DropTemporarySystemFunction(name string, ignoreIfNotExists bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := strings.ToLower(name)
	if _, ok := m.tempSystemFunctions[key]; !ok {
		if ignoreIfNotExists {
			return nil
		}
		return newErr("Could not drop temporary system function. A function named '%s' doesn't exist.", name)
	}
	delete(m.tempSystemFunctions, key)
	return nil
}

func functionPath(path ObjectPath) ObjectPath {
	path.Object = strings.ToLower(path.Object)
	return path
}

func (m *Manager) CreateTemporaryFunction(path ObjectPath, f *Function, ignoreIfExists bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.catalog(path.Catalog); err != nil {
		return err
	}
	if _, ok := m.tempFunctions[functionPath(path)]; ok {
		if ignoreIfExists {
			return nil
		}
		return newErr("Could not register temporary catalog function. A function '%s' does already exist.", path.Summary())
	}
	m.tempFunctions[functionPath(path)] = f
	return nil
}

func (m *Manager) DropTemporaryFunction(path ObjectPath, ignoreIfNotExists bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tempFunctions[functionPath(path)]; !ok {
		if ignoreIfNotExists {
			return nil
		}
		return newErr("Temporary catalog function %s doesn't exist", path.Summary())
	}
	delete(m.tempFunctions, functionPath(path))
	return nil
}

func (m *Manager) CreateFunction(ctx context.Context, path ObjectPath, f *Function, ignoreIfExists bool) error {
	c, err := m.Catalog(path.Catalog)
	if err != nil {
		return err
	} else if err := m.checkDialect(c); err != nil {
		return err
	}
	return c.CreateFunction(ctx, path, f, ignoreIfExists)
}

func (m *Manager) AlterFunction(ctx context.Context, path ObjectPath, f *Function, ignoreIfNotExists bool) error {
	m.mu.RLock()
	_, temporary := m.tempFunctions[functionPath(path)]
	m.mu.RUnlock()
	if temporary {
		return newErr("Alter temporary catalog function is not supported")
	}
	c, err := m.Catalog(path.Catalog)
	if err != nil {
		return err
	}
	return c.AlterFunction(ctx, path, f, ignoreIfNotExists)
}

// DropFunction drops a permanent catalog function. A missing catalog is an
// error even with ignoreIfNotExists.
func (m *Manager) DropFunction(ctx context.Context, path ObjectPath, ignoreIfNotExists bool) error {
	m.mu.RLock()
	_, temporary := m.tempFunctions[functionPath(path)]
	m.mu.RUnlock()
	if temporary {
		return newErr("Could not drop catalog function. A temporary function '%s' does already exist. Please drop the temporary function first.", path.Summary())
	}
	c, err := m.Catalog(path.Catalog)
	if err != nil {
		return err
	}
	return c.DropFunction(ctx, path, ignoreIfNotExists)
}

// ListFunctions returns the names of every function callable without
// qualification: module functions, temporary functions and the functions of
// the current database. With userOnly, module functions are left out.
func (m *Manager) ListFunctions(ctx context.Context, userOnly bool) ([]string, error) {
	m.mu.RLock()
	set := make(map[string]struct{})
	if !userOnly {
		for _, mod := range m.modules {
			for _, f := range mod.module.Functions() {
				set[f] = struct{}{}
			}
		}
	}
	for name := range m.tempSystemFunctions {
		set[name] = struct{}{}
	}
	for path := range m.tempFunctions {
		if path.Catalog == m.currentCatalog && path.Database == m.currentDatabase {
			set[path.Object] = struct{}{}
		}
	}
	c, err := m.catalog(m.currentCatalog)
	db := m.currentDatabase
	m.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	names, err := c.ListFunctions(ctx, db)
	if err != nil {
		return nil, err
	}
	for _, n := range names {
		set[n] = struct{}{}
	}
	out := maps.Keys(set)
	slices.Sort(out)
	return out, nil
}

// ResolveFunction finds the implementation of a function call. Unqualified
// names are looked up in temporary system functions, then in each module in
// load order, then in the temporary and permanent functions of the current
// database.
func (m *Manager) ResolveFunction(ctx context.Context, name []string) (*functions.Definition, error) {
	m.mu.RLock()
	if len(name) == 1 {
		if f, ok := m.tempSystemFunctions[strings.ToLower(name[0])]; ok {
			m.mu.RUnlock()
			return m.lookup(name, f)
		}
		for _, mod := range m.modules {
			if d, ok := mod.module.Function(name[0]); ok {
				m.mu.RUnlock()
				return d, nil
			}
		}
	}
	path, err := m.qualify(name)
	if err != nil {
		m.mu.RUnlock()
		return nil, err
	}
	if f, ok := m.tempFunctions[functionPath(path)]; ok {
		m.mu.RUnlock()
		return m.lookup(name, f)
	}
	c, ok := m.catalogs[path.Catalog]
	m.mu.RUnlock()

	if ok {
		if f, err := c.GetFunction(ctx, path); err == nil {
			return m.lookup(name, f)
		}
	}
	return nil, errors.Newf(functions.ErrFunctionNotFound, "No match found for function signature %s", strings.Join(name, "."))
}

func (m *Manager) lookup(name []string, f *Function) (*functions.Definition, error) {
	d, err := m.registry.Lookup(f.Identifier)
	if err != nil {
		return nil, errors.Wrapf(err, "function %s", strings.Join(name, "."))
	}
	return d, nil
}

////////////////////////////////////////////////////////////////////////////////
// Modules
////////////////////////////////////////////////////////////////////////////////

// LoadModule appends a module to the resolution order.
func (m *Manager) LoadModule(name string, module functions.Module) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, mod := range m.modules {
		if mod.name == name {
			return newErr("A module with name %s already exists", name)
		}
	}
	m.modules = append(m.modules, namedModule{name: name, module: module})
	return nil
}

func (m *Manager) UnloadModule(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, mod := range m.modules {
		if mod.name == name {
			m.modules = append(m.modules[:i:i], m.modules[i+1:]...)
			return nil
		}
	}
	return newErr("No module with name %s exists", name)
}

// Modules returns the loaded module names in resolution order.
func (m *Manager) Modules() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(m.modules))
	for i, mod := range m.modules {
		out[i] = mod.name
	}
	return out
}
