// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0

// Package functions holds scalar function implementations and the modules
// which expose them to SQL.
package functions

import (
	"sort"
	"strings"
	"sync"

	"github.com/featurebasedb/sqlgateway/environment"
	"github.com/featurebasedb/sqlgateway/errors"
	"github.com/featurebasedb/sqlgateway/types"
)

const (
	ErrFunctionNotFound errors.Code = "FunctionNotFound"
	ErrModuleType       errors.Code = "ModuleType"
	ErrFunctionCall     errors.Code = "FunctionCall"
)

// Func evaluates a scalar function. Arguments are gateway runtime values.
type Func func(args []interface{}) (interface{}, error)

// Definition is a named function with its arity.
type Definition struct {
	Name    string
	MinArgs int
	// MaxArgs is -1 for variadic functions.
	MaxArgs int
	Fn      Func

	// Returns is the result type. When empty the result has the type of
	// the first argument.
	Returns string
}

// ResultType returns the type of a call with arguments of argTypes.
func (d *Definition) ResultType(argTypes []string) string {
	if d.Returns != "" {
		return d.Returns
	}
	if len(argTypes) > 0 && argTypes[0] != types.TypeNull {
		return argTypes[0]
	}
	return types.TypeString
}

// Call checks the arity and invokes the function.
func (d *Definition) Call(args []interface{}) (interface{}, error) {
	if len(args) < d.MinArgs || (d.MaxArgs >= 0 && len(args) > d.MaxArgs) {
		return nil, errors.Newf(ErrFunctionCall, "invalid number of arguments to function '%s'. Was expecting %s arguments", d.Name, d.arity())
	}
	return d.Fn(args)
}

func (d *Definition) arity() string {
	switch {
	case d.MaxArgs < 0:
		return "at least " + itoa(d.MinArgs)
	case d.MinArgs == d.MaxArgs:
		return itoa(d.MinArgs)
	}
	return itoa(d.MinArgs) + " to " + itoa(d.MaxArgs)
}

// Registry maps implementation identifiers to functions. Catalog functions
// created with CREATE FUNCTION name AS 'identifier' resolve through it.
type Registry struct {
	mu  sync.RWMutex
	fns map[string]*Definition
}

// NewRegistry returns a registry which already knows every builtin function
// under its own name.
func NewRegistry() *Registry {
	r := &Registry{fns: make(map[string]*Definition)}
	for _, set := range []map[string]*Definition{coreFunctions, textFunctions} {
		for name, d := range set {
			r.fns[name] = d
		}
	}
	return r
}

// Register adds or replaces the implementation behind identifier.
func (r *Registry) Register(identifier string, minArgs, maxArgs int, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fns[strings.ToLower(identifier)] = &Definition{Name: identifier, MinArgs: minArgs, MaxArgs: maxArgs, Fn: fn, Returns: types.TypeString}
}

// Lookup returns the implementation registered as identifier.
func (r *Registry) Lookup(identifier string) (*Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.fns[strings.ToLower(identifier)]
	if !ok {
		return nil, errors.Newf(ErrFunctionNotFound, "function implementation '%s' is not registered", identifier)
	}
	return d, nil
}

// Module exposes a set of functions under their SQL names.
type Module interface {
	// Functions lists the function names, sorted.
	Functions() []string
	// Function returns the named function if the module provides it.
	Function(name string) (*Definition, bool)
}

// NewModule builds a module of the given type.
func NewModule(def environment.ModuleDef) (Module, error) {
	switch strings.ToLower(def.Type) {
	case "core":
		return mapModule(coreFunctions), nil
	case "text":
		return mapModule(textFunctions), nil
	}
	return nil, errors.Newf(ErrModuleType, "could not find a module factory for type '%s' of module '%s'", def.Type, def.Name)
}

type mapModule map[string]*Definition

func (m mapModule) Functions() []string {
	out := make([]string, 0, len(m))
	for name := range m {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (m mapModule) Function(name string) (*Definition, bool) {
	d, ok := m[strings.ToLower(name)]
	return d, ok
}
