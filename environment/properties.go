// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package environment

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/benbjohnson/immutable"
	"github.com/featurebasedb/sqlgateway/errors"
)

// Properties is an immutable, key-ordered string map. Every mutating method
// returns a new Properties and leaves the receiver untouched, so a
// Properties value can be shared between descriptors without copying.
type Properties struct {
	m *immutable.SortedMap
}

// NewProperties returns Properties holding the entries of m.
func NewProperties(m map[string]string) Properties {
	p := Properties{}
	for k, v := range m {
		p = p.Set(k, v)
	}
	return p
}

func (p Properties) sorted() *immutable.SortedMap {
	if p.m == nil {
		return immutable.NewSortedMap(nil)
	}
	return p.m
}

// Len returns the number of entries.
func (p Properties) Len() int {
	if p.m == nil {
		return 0
	}
	return p.m.Len()
}

// Get returns the value for key.
func (p Properties) Get(key string) (string, bool) {
	if p.m == nil {
		return "", false
	}
	v, ok := p.m.Get(key)
	if !ok {
		return "", false
	}
	return v.(string), true
}

// GetOr returns the value for key, or def if the key is absent.
func (p Properties) GetOr(key, def string) string {
	if v, ok := p.Get(key); ok {
		return v
	}
	return def
}

// GetInt parses the value for key as an integer, returning def if the key is
// absent.
func (p Properties) GetInt(key string, def int) (int, error) {
	v, ok := p.Get(key)
	if !ok {
		return def, nil
	}
	i, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, errors.Newf(ErrInvalidProperty, "property '%s' must be an integer but was '%s'", key, v)
	}
	return i, nil
}

// GetBool parses the value for key as a boolean, returning def if the key is
// absent.
func (p Properties) GetBool(key string, def bool) (bool, error) {
	v, ok := p.Get(key)
	if !ok {
		return def, nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return false, errors.Newf(ErrInvalidProperty, "property '%s' must be a boolean but was '%s'", key, v)
	}
	return b, nil
}

// Set returns a copy of p with key set to value.
func (p Properties) Set(key, value string) Properties {
	return Properties{m: p.sorted().Set(key, value)}
}

// Delete returns a copy of p without key.
func (p Properties) Delete(key string) Properties {
	if p.m == nil {
		return p
	}
	return Properties{m: p.m.Delete(key)}
}

// Merge returns a copy of p overlaid with every entry of other.
func (p Properties) Merge(other Properties) Properties {
	out := p
	other.Each(func(k, v string) {
		out = out.Set(k, v)
	})
	return out
}

// Each calls fn for every entry in key order.
func (p Properties) Each(fn func(key, value string)) {
	if p.m == nil {
		return
	}
	itr := p.m.Iterator()
	for !itr.Done() {
		k, v := itr.Next()
		fn(k.(string), v.(string))
	}
}

// Keys returns the keys in order.
func (p Properties) Keys() []string {
	keys := make([]string, 0, p.Len())
	p.Each(func(k, _ string) { keys = append(keys, k) })
	return keys
}

// Map returns the entries as a plain map, prefixing every key with prefix.
func (p Properties) Map(prefix string) map[string]string {
	out := make(map[string]string, p.Len())
	p.Each(func(k, v string) { out[prefix+k] = v })
	return out
}

// WithPrefix returns the entries whose key starts with prefix, with the
// prefix removed.
func (p Properties) WithPrefix(prefix string) Properties {
	out := Properties{}
	p.Each(func(k, v string) {
		if strings.HasPrefix(k, prefix) {
			out = out.Set(strings.TrimPrefix(k, prefix), v)
		}
	})
	return out
}

// MarshalJSON encodes the entries as a JSON object.
func (p Properties) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.Map(""))
}

// UnmarshalJSON decodes a JSON object of strings.
func (p *Properties) UnmarshalJSON(b []byte) error {
	var m map[string]string
	if err := json.Unmarshal(b, &m); err != nil {
		return errors.Wrap(err, "decoding properties")
	}
	*p = NewProperties(m)
	return nil
}
