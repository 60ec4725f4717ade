// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package environment

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/featurebasedb/sqlgateway/errors"
	"gopkg.in/yaml.v2"
)

// document is the YAML layout of an environment file.
type document struct {
	Catalogs      []map[string]interface{} `yaml:"catalogs"`
	Modules       []map[string]interface{} `yaml:"modules"`
	Tables        []tableDocument          `yaml:"tables"`
	Functions     []functionDocument       `yaml:"functions"`
	Execution     map[string]interface{}   `yaml:"execution"`
	Deployment    map[string]interface{}   `yaml:"deployment"`
	Configuration map[string]interface{}   `yaml:"configuration"`
}

type tableDocument struct {
	Name      string                 `yaml:"name"`
	Type      string                 `yaml:"type"`
	Connector map[string]interface{} `yaml:"connector"`
	Format    map[string]interface{} `yaml:"format"`
	Schema    []ColumnDef            `yaml:"schema"`
	Query     string                 `yaml:"query"`
	Data      [][]interface{}        `yaml:"data"`
}

type functionDocument struct {
	Name       string `yaml:"name"`
	Identifier string `yaml:"identifier"`
}

// ParseFile reads an environment from a YAML file.
func ParseFile(path string) (*Environment, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening environment file")
	}
	defer f.Close()
	env, err := Parse(f)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing environment file %s", path)
	}
	return env, nil
}

// Parse reads an environment from YAML.
func Parse(r io.Reader) (*Environment, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "reading environment")
	}
	return ParseBytes(b)
}

// ParseBytes reads an environment from YAML.
func ParseBytes(b []byte) (*Environment, error) {
	var doc document
	if err := yaml.UnmarshalStrict(b, &doc); err != nil {
		return nil, errors.Wrapc(err, ErrInvalidEnvironment, "invalid environment")
	}

	env := &Environment{
		Execution:     flatten(doc.Execution),
		Deployment:    flatten(doc.Deployment),
		Configuration: flatten(doc.Configuration),
	}

	for i, c := range doc.Catalogs {
		props := flatten(c)
		name, ok := props.Get("name")
		if !ok || name == "" {
			return nil, errors.Newf(ErrInvalidEnvironment, "catalog #%d has no name", i+1)
		}
		env.Catalogs = append(env.Catalogs, CatalogDef{
			Name:       name,
			Type:       props.GetOr("type", "memory"),
			Properties: props.Delete("name").Delete("type"),
		})
	}

	for i, m := range doc.Modules {
		props := flatten(m)
		name, ok := props.Get("name")
		if !ok || name == "" {
			return nil, errors.Newf(ErrInvalidEnvironment, "module #%d has no name", i+1)
		}
		env.Modules = append(env.Modules, ModuleDef{
			Name:       name,
			Type:       props.GetOr("type", name),
			Properties: props.Delete("name").Delete("type"),
		})
	}

	for i, t := range doc.Tables {
		if t.Name == "" {
			return nil, errors.Newf(ErrInvalidEnvironment, "table #%d has no name", i+1)
		}
		def := TableDef{
			Name:    t.Name,
			Kind:    t.Type,
			Options: tableOptions(flatten(t.Connector), flatten(t.Format)),
			Schema:  t.Schema,
			Query:   strings.TrimSpace(t.Query),
			Data:    t.Data,
		}
		switch def.Kind {
		case "":
			def.Kind = TableSource
			if def.Query != "" {
				def.Kind = TableView
			}
		case TableSource, TableSink, TableSourceSink:
		case TableView:
			if def.Query == "" {
				return nil, errors.Newf(ErrInvalidEnvironment, "view '%s' has no query", t.Name)
			}
		default:
			return nil, errors.Newf(ErrInvalidEnvironment, "invalid table type '%s' for table '%s'", t.Type, t.Name)
		}
		env.Tables = append(env.Tables, def)
	}

	for _, f := range doc.Functions {
		id := f.Identifier
		if id == "" {
			id = f.Name
		}
		env.Functions = append(env.Functions, FunctionDef{Name: f.Name, Identifier: id})
	}
	return env, nil
}

// tableOptions converts the YAML connector and format blocks to the option
// keys used by CREATE TABLE ... WITH (...).
func tableOptions(connector, format Properties) Properties {
	out := Properties{}
	connector.Each(func(k, v string) {
		if k == "type" {
			k = "connector"
		}
		out = out.Set(k, v)
	})
	fmtName := format.GetOr("type", "")
	format.Each(func(k, v string) {
		if k == "type" {
			out = out.Set("format", v)
			return
		}
		out = out.Set(fmtName+"."+k, v)
	})
	return out
}

// flatten converts nested YAML maps into dotted keys.
func flatten(m map[string]interface{}) Properties {
	out := Properties{}
	for k, v := range m {
		out = flattenValue(out, k, v)
	}
	return out
}

func flattenValue(out Properties, key string, v interface{}) Properties {
	switch vv := v.(type) {
	case map[interface{}]interface{}:
		for k, sub := range vv {
			out = flattenValue(out, key+"."+fmt.Sprint(k), sub)
		}
	case map[string]interface{}:
		for k, sub := range vv {
			out = flattenValue(out, key+"."+k, sub)
		}
	case nil:
		out = out.Set(key, "")
	default:
		out = out.Set(key, fmt.Sprint(vv))
	}
	return out
}
