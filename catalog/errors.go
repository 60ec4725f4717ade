// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package catalog

import (
	"github.com/featurebasedb/sqlgateway/errors"
)

const (
	// ErrCatalog is the code of every semantic catalog error: objects which
	// already exist or are missing, invalid renames, dialect mismatches.
	ErrCatalog errors.Code = "CatalogError"
)

func newErr(format string, args ...interface{}) error {
	return errors.Newf(ErrCatalog, format, args...)
}

func NewErrCatalogNotExist(name string) error {
	return newErr("Catalog %s does not exist", name)
}

func NewErrCatalogExists(name string) error {
	return newErr("Catalog %s already exists.", name)
}

func NewErrDatabaseNotExist(catalog, db string) error {
	return newErr("Database %s does not exist in Catalog %s.", db, catalog)
}

func NewErrDatabaseExists(catalog, db string) error {
	return newErr("Database %s already exists in Catalog %s.", db, catalog)
}

func NewErrDatabaseNotEmpty(catalog, db string) error {
	return newErr("Database %s in catalog %s is not empty.", db, catalog)
}

func NewErrTableNotExist(path ObjectPath) error {
	return newErr("Table (or view) %s does not exist in Catalog %s.", path.Database+"."+path.Object, path.Catalog)
}

func NewErrTableExists(path ObjectPath) error {
	return newErr("Table (or view) %s already exists in Catalog %s.", path.Database+"."+path.Object, path.Catalog)
}

func NewErrFunctionNotExist(path ObjectPath) error {
	return newErr("Function %s does not exist in Catalog %s.", path.Database+"."+path.Object, path.Catalog)
}

func NewErrFunctionExists(path ObjectPath) error {
	return newErr("Function %s already exists in Catalog %s.", path.Database+"."+path.Object, path.Catalog)
}
