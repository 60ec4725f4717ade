// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0

package connector

import (
	"context"
	"sort"
	"sync"

	"github.com/featurebasedb/sqlgateway/types"
)

// Collections holds named in-memory row sets. Every session of a gateway
// sees the same collections, so one session can read what another wrote.
type Collections struct {
	mu   sync.RWMutex
	sets map[string][]types.Row
}

// NewCollections returns an empty set of collections.
func NewCollections() *Collections {
	return &Collections{sets: make(map[string][]types.Row)}
}

// Append adds insert rows to the named collection.
func (c *Collections) Append(name string, rows ...types.Row) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets[name] = append(c.sets[name], rows...)
}

// Retract removes the newest row of the named collection holding the same
// values as row.
func (c *Collections) Retract(name string, row types.Row) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rows := c.sets[name]
	for i := len(rows) - 1; i >= 0; i-- {
		if rows[i].SameValues(row) {
			c.sets[name] = append(rows[:i:i], rows[i+1:]...)
			return
		}
	}
}

// Rows returns a copy of the named collection.
func (c *Collections) Rows(name string) []types.Row {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]types.Row(nil), c.sets[name]...)
}

// Names lists the collections, sorted.
func (c *Collections) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.sets))
	for name := range c.sets {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Clear removes the named collection.
func (c *Collections) Clear(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sets, name)
}

func (t Table) collectionName() string {
	if name := t.Option("collection"); name != "" {
		return name
	}
	return t.Path.Summary()
}

func (c *Collections) source(name string, schema types.Schema) Source {
	return &collectionSource{rows: c.Rows(name), width: len(schema)}
}

func (c *Collections) sink(name string) Sink {
	return &collectionSink{c: c, name: name}
}

// collectionSource reads the collection as it was when the source opened.
type collectionSource struct {
	rows  []types.Row
	width int
}

func (s *collectionSource) Bounded() bool { return true }

func (s *collectionSource) Read(ctx context.Context, emit func(types.Row) error) error {
	for _, row := range s.rows {
		if err := ctx.Err(); err != nil {
			return err
		}
		values := make([]interface{}, s.width)
		copy(values, row.Values)
		if err := emit(types.Row{Kind: types.Insert, Values: values}); err != nil {
			return err
		}
	}
	return nil
}

type collectionSink struct {
	c    *Collections
	name string
}

func (s *collectionSink) Write(ctx context.Context, row types.Row) error {
	if row.Kind.IsRetraction() {
		s.c.Retract(s.name, row)
		return nil
	}
	s.c.Append(s.name, types.Row{Kind: types.Insert, Values: row.Values})
	return nil
}

func (s *collectionSink) Close() error { return nil }
