// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package parser

import (
	"strings"
)

// Statement is a single parsed SQL statement.
type Statement interface {
	stmt()
}

// QualifiedName is an object identifier of one to three parts
// ([catalog.][database.]object).
type QualifiedName []string

// Last returns the unqualified object name.
func (n QualifiedName) Last() string {
	if len(n) == 0 {
		return ""
	}
	return n[len(n)-1]
}

func (n QualifiedName) String() string {
	parts := make([]string, len(n))
	for i, p := range n {
		parts[i] = "`" + strings.ReplaceAll(p, "`", "``") + "`"
	}
	return strings.Join(parts, ".")
}

// Property is a single key/value pair of a WITH clause.
type Property struct {
	Key   string
	Value string
}

// Properties is an ordered list of WITH clause properties.
type Properties []Property

// Map returns the properties keyed by name. Later keys win.
func (ps Properties) Map() map[string]string {
	m := make(map[string]string, len(ps))
	for _, p := range ps {
		m[p.Key] = p.Value
	}
	return m
}

// SetStatement is SET [key = value]. With no key it lists the session
// properties.
type SetStatement struct {
	Key   string
	Value string
}

// ResetStatement is RESET [key]. With no key every session property is
// reset.
type ResetStatement struct {
	Key string
}

// ShowKind identifies the listing a SHOW statement requests.
type ShowKind int

const (
	ShowCatalogs ShowKind = iota
	ShowCurrentCatalog
	ShowDatabases
	ShowCurrentDatabase
	ShowTables
	ShowViews
	ShowFunctions
	ShowUserFunctions
	ShowModules
	ShowFullModules
)

var showKinds = map[ShowKind]string{
	ShowCatalogs:        "CATALOGS",
	ShowCurrentCatalog:  "CURRENT CATALOG",
	ShowDatabases:       "DATABASES",
	ShowCurrentDatabase: "CURRENT DATABASE",
	ShowTables:          "TABLES",
	ShowViews:           "VIEWS",
	ShowFunctions:       "FUNCTIONS",
	ShowUserFunctions:   "USER FUNCTIONS",
	ShowModules:         "MODULES",
	ShowFullModules:     "FULL MODULES",
}

func (k ShowKind) String() string { return showKinds[k] }

// ShowStatement is SHOW <kind>.
type ShowStatement struct {
	Kind ShowKind
}

// DescribeStatement is DESCRIBE|DESC <table>.
type DescribeStatement struct {
	Name QualifiedName
}

// ExplainStatement is EXPLAIN [PLAN FOR] <query>.
type ExplainStatement struct {
	Query string
}

// UseCatalogStatement is USE CATALOG <name>.
type UseCatalogStatement struct {
	Name string
}

// UseStatement is USE [catalog.]database.
type UseStatement struct {
	Name QualifiedName
}

// CreateCatalogStatement is CREATE CATALOG <name> WITH (...).
type CreateCatalogStatement struct {
	Name       string
	Properties Properties
}

// DropCatalogStatement is DROP CATALOG [IF EXISTS] <name>.
type DropCatalogStatement struct {
	Name     string
	IfExists bool
}

// CreateDatabaseStatement is CREATE DATABASE [IF NOT EXISTS] [catalog.]db
// [COMMENT '...'] [WITH (...)].
type CreateDatabaseStatement struct {
	Name        QualifiedName
	IfNotExists bool
	Comment     string
	Properties  Properties
}

// AlterDatabaseStatement is ALTER DATABASE [catalog.]db SET (...).
type AlterDatabaseStatement struct {
	Name       QualifiedName
	Properties Properties
}

// DropDatabaseStatement is DROP DATABASE [IF EXISTS] [catalog.]db
// [RESTRICT|CASCADE].
type DropDatabaseStatement struct {
	Name     QualifiedName
	IfExists bool
	Cascade  bool
}

// ColumnDef is a column of a CREATE TABLE statement. Computed columns carry
// their expression text in Expr and have no Type.
type ColumnDef struct {
	Name     string
	Type     string
	Nullable bool
	Expr     string
	Comment  string
}

// WatermarkDef is WATERMARK FOR <column> AS <expr>.
type WatermarkDef struct {
	Column string
	Expr   string
}

// CreateTableStatement is CREATE [TEMPORARY] TABLE.
type CreateTableStatement struct {
	Name        QualifiedName
	Temporary   bool
	IfNotExists bool
	Columns     []ColumnDef
	Watermarks  []WatermarkDef
	PrimaryKey  []string
	Comment     string
	Properties  Properties
}

// AlterTableStatement is ALTER TABLE <name> RENAME TO <name> or
// ALTER TABLE <name> SET (...).
type AlterTableStatement struct {
	Name       QualifiedName
	RenameTo   QualifiedName
	Properties Properties
}

// DropTableStatement is DROP [TEMPORARY] TABLE [IF EXISTS] <name>.
type DropTableStatement struct {
	Name      QualifiedName
	Temporary bool
	IfExists  bool
}

// CreateViewStatement is CREATE [TEMPORARY] VIEW [IF NOT EXISTS] <name>
// [(columns)] [COMMENT '...'] AS <query>.
type CreateViewStatement struct {
	Name        QualifiedName
	Temporary   bool
	IfNotExists bool
	Columns     []string
	Comment     string
	Query       string
}

// DropViewStatement is DROP [TEMPORARY] VIEW [IF EXISTS] <name>.
type DropViewStatement struct {
	Name      QualifiedName
	Temporary bool
	IfExists  bool
}

// CreateFunctionStatement is CREATE [TEMPORARY [SYSTEM]] FUNCTION
// [IF NOT EXISTS] <name> AS '<identifier>' [LANGUAGE <lang>].
type CreateFunctionStatement struct {
	Name        QualifiedName
	Temporary   bool
	System      bool
	IfNotExists bool
	Identifier  string
	Language    string
}

// AlterFunctionStatement is ALTER [TEMPORARY [SYSTEM]] FUNCTION
// [IF EXISTS] <name> AS '<identifier>' [LANGUAGE <lang>].
type AlterFunctionStatement struct {
	Name       QualifiedName
	Temporary  bool
	System     bool
	IfExists   bool
	Identifier string
	Language   string
}

// DropFunctionStatement is DROP [TEMPORARY [SYSTEM]] FUNCTION [IF EXISTS]
// <name>.
type DropFunctionStatement struct {
	Name      QualifiedName
	Temporary bool
	System    bool
	IfExists  bool
}

// LoadModuleStatement is LOAD MODULE <name> [WITH (...)].
type LoadModuleStatement struct {
	Name       string
	Properties Properties
}

// UnloadModuleStatement is UNLOAD MODULE <name>.
type UnloadModuleStatement struct {
	Name string
}

// QueryStatement is a SELECT, VALUES or WITH query. The query body is not
// parsed here.
type QueryStatement struct {
	SQL string
}

// DMLKind is the verb of a data modification statement.
type DMLKind string

const (
	DMLInsert DMLKind = "INSERT"
	DMLUpdate DMLKind = "UPDATE"
	DMLDelete DMLKind = "DELETE"
)

// DMLStatement is an INSERT, UPDATE or DELETE statement.
type DMLStatement struct {
	SQL       string
	Kind      DMLKind
	Table     QualifiedName
	Overwrite bool
}

func (*SetStatement) stmt()            {}
func (*ResetStatement) stmt()          {}
func (*ShowStatement) stmt()           {}
func (*DescribeStatement) stmt()       {}
func (*ExplainStatement) stmt()        {}
func (*UseCatalogStatement) stmt()     {}
func (*UseStatement) stmt()            {}
func (*CreateCatalogStatement) stmt()  {}
func (*DropCatalogStatement) stmt()    {}
func (*CreateDatabaseStatement) stmt() {}
func (*AlterDatabaseStatement) stmt()  {}
func (*DropDatabaseStatement) stmt()   {}
func (*CreateTableStatement) stmt()    {}
func (*AlterTableStatement) stmt()     {}
func (*DropTableStatement) stmt()      {}
func (*CreateViewStatement) stmt()     {}
func (*DropViewStatement) stmt()       {}
func (*CreateFunctionStatement) stmt() {}
func (*AlterFunctionStatement) stmt()  {}
func (*DropFunctionStatement) stmt()   {}
func (*LoadModuleStatement) stmt()     {}
func (*UnloadModuleStatement) stmt()   {}
func (*QueryStatement) stmt()          {}
func (*DMLStatement) stmt()            {}
