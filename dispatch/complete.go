// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0

package dispatch

import (
	"context"
	"strings"

	"github.com/featurebasedb/sqlgateway/catalog"
	"github.com/featurebasedb/sqlgateway/parser"
	"github.com/featurebasedb/sqlgateway/session"
)

// Hints is a finite sequence of completion candidates. Candidates are
// computed as the sequence is consumed, and it can be consumed only once.
type Hints struct {
	prefix  string
	sources []func() []string
	pending []string
	seen    map[string]struct{}
}

// Next returns the next candidate. ok is false once the sequence is
// exhausted.
func (h *Hints) Next() (hint string, ok bool) {
	for {
		for len(h.pending) > 0 {
			c := h.pending[0]
			h.pending = h.pending[1:]
			if _, dup := h.seen[c]; dup || !h.match(c) {
				continue
			}
			h.seen[c] = struct{}{}
			return c, true
		}
		if len(h.sources) == 0 {
			return "", false
		}
		src := h.sources[0]
		h.sources = h.sources[1:]
		h.pending = src()
	}
}

// Collect drains the remaining candidates.
func (h *Hints) Collect() []string {
	out := []string{}
	for c, ok := h.Next(); ok; c, ok = h.Next() {
		out = append(out, c)
	}
	return out
}

// match compares case-insensitively. A prefix without a dot also matches
// the last part of a qualified candidate.
func (h *Hints) match(c string) bool {
	p, lc := strings.ToLower(h.prefix), strings.ToLower(c)
	if strings.HasPrefix(lc, p) {
		return true
	}
	if strings.Contains(p, ".") {
		return false
	}
	if i := strings.LastIndexByte(lc, '.'); i >= 0 {
		return strings.HasPrefix(lc[i+1:], p)
	}
	return false
}

var (
	statementKeywords = []string{
		"ALTER", "CREATE", "DESCRIBE", "DROP", "EXPLAIN", "INSERT", "LOAD", "RESET",
		"SELECT", "SET", "SHOW", "UNLOAD", "USE", "VALUES", "WITH",
	}

	// followKeywords maps a clause keyword to the keywords which may appear
	// within or directly after the clause.
	followKeywords = map[string][]string{
		"SELECT":  {"DISTINCT", "FROM", "AS", "CASE", "WHEN", "THEN", "ELSE", "END", "CAST", "NOT", "NULL", "AND", "OR", "IS", "IN", "LIKE", "BETWEEN"},
		"FROM":    {"WHERE", "GROUP", "ORDER", "HAVING", "LIMIT", "AS", "UNION"},
		"WHERE":   {"AND", "OR", "NOT", "IS", "NULL", "IN", "LIKE", "BETWEEN", "TRUE", "FALSE", "GROUP", "ORDER", "LIMIT"},
		"HAVING":  {"AND", "OR", "NOT", "IS", "NULL", "IN", "ORDER", "LIMIT"},
		"GROUP":   {"BY", "HAVING", "ORDER", "LIMIT"},
		"ORDER":   {"BY", "ASC", "DESC", "LIMIT"},
		"CREATE":  {"CATALOG", "DATABASE", "FUNCTION", "TABLE", "TEMPORARY", "VIEW", "IF", "NOT", "EXISTS"},
		"DROP":    {"CATALOG", "DATABASE", "FUNCTION", "TABLE", "TEMPORARY", "VIEW", "IF", "EXISTS"},
		"ALTER":   {"DATABASE", "FUNCTION", "TABLE", "TEMPORARY", "RENAME", "TO", "SET"},
		"SHOW":    {"CATALOGS", "CURRENT", "DATABASES", "FULL", "FUNCTIONS", "MODULES", "TABLES", "USER", "VIEWS"},
		"CURRENT": {"CATALOG", "DATABASE"},
		"INSERT":  {"INTO", "OVERWRITE"},
		"LOAD":    {"MODULE"},
		"UNLOAD":  {"MODULE"},
		"EXPLAIN": {"PLAN", "FOR", "SELECT"},
	}

	// tableKeywords are followed by a table name.
	tableKeywords = map[string]bool{
		"FROM": true, "JOIN": true, "INTO": true, "OVERWRITE": true, "TABLE": true,
		"VIEW": true, "DESCRIBE": true,
	}

	// columnClauses are clauses in which column and function names may
	// appear.
	columnClauses = map[string]bool{
		"SELECT": true, "WHERE": true, "HAVING": true, "GROUP": true, "ORDER": true,
	}
)

// Complete returns the candidates for the word ending at cursor in text.
// The cursor counts characters, not bytes. It only reads catalog metadata.
func Complete(ctx context.Context, s *session.Session, text string, cursor int) (*Hints, error) {
	ec, err := s.Context(ctx)
	if err != nil {
		return nil, err
	}
	return complete(ctx, ec.Catalog(), text, cursor), nil
}

type word struct {
	tok parser.Token
	lit string
}

func scanWords(src string) []word {
	var words []word
	sc := parser.NewScanner(src)
	for {
		_, tok, lit := sc.Scan()
		if tok == parser.EOF {
			return words
		}
		words = append(words, word{tok: tok, lit: lit})
	}
}

func isIdentChar(b byte) bool {
	return b == '_' || b == '$' || b == '.' || b == '`' ||
		(b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

// byteOffset returns the byte offset of character cursor in text, clamped
// to text.
func byteOffset(text string, cursor int) int {
	if cursor <= 0 {
		return 0
	}
	n := 0
	for i := range text {
		if n == cursor {
			return i
		}
		n++
	}
	return len(text)
}

func complete(ctx context.Context, cat *catalog.Manager, text string, cursor int) *Hints {
	cursor = byteOffset(text, cursor)
	start := cursor
	for start > 0 && isIdentChar(text[start-1]) {
		start--
	}
	h := &Hints{
		prefix: strings.ReplaceAll(text[start:cursor], "`", ""),
		seen:   make(map[string]struct{}),
	}

	head := scanWords(text[:start])
	if len(head) == 0 {
		h.sources = append(h.sources, constant(statementKeywords))
		return h
	}

	prev := strings.ToUpper(head[len(head)-1].lit)
	if head[len(head)-1].tok != parser.IDENT {
		prev = ""
	}
	switch {
	case tableKeywords[prev]:
		h.sources = append(h.sources, func() []string { return tableNames(ctx, cat) })
		return h
	case prev == "USE":
		h.sources = append(h.sources, constant([]string{"CATALOG"}), func() []string {
			dbs, _ := cat.ListDatabases(ctx)
			return dbs
		})
		return h
	case prev == "CATALOG" && len(head) > 1 && strings.EqualFold(head[len(head)-2].lit, "USE"):
		h.sources = append(h.sources, cat.Catalogs)
		return h
	}

	clause := ""
	for i := len(head) - 1; i >= 0; i-- {
		lit := strings.ToUpper(head[i].lit)
		if _, ok := followKeywords[lit]; ok && head[i].tok == parser.IDENT {
			clause = lit
			break
		}
	}
	h.sources = append(h.sources, constant(followKeywords[clause]))
	if columnClauses[clause] {
		all := scanWords(text)
		h.sources = append(h.sources,
			func() []string { return columnNames(ctx, cat, all) },
			func() []string {
				fns, _ := cat.ListFunctions(ctx, false)
				return fns
			},
		)
	}
	return h
}

func constant(values []string) func() []string {
	return func() []string { return values }
}

// tableNames lists the tables and views of the current database, fully
// qualified.
func tableNames(ctx context.Context, cat *catalog.Manager) []string {
	names, err := cat.ListTables(ctx)
	if err != nil {
		return nil
	}
	qualifier := cat.CurrentCatalog() + "." + cat.CurrentDatabase() + "."
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = qualifier + n
	}
	return out
}

// columnNames returns the columns of every table named after FROM or
// JOIN in words.
func columnNames(ctx context.Context, cat *catalog.Manager, words []word) []string {
	var out []string
	for i := 0; i < len(words); i++ {
		if words[i].tok != parser.IDENT || !(strings.EqualFold(words[i].lit, "FROM") || strings.EqualFold(words[i].lit, "JOIN")) {
			continue
		}
		var name []string
		for j := i + 1; j < len(words); j += 2 {
			if words[j].tok != parser.IDENT && words[j].tok != parser.QIDENT {
				break
			}
			name = append(name, words[j].lit)
			if j+1 >= len(words) || words[j+1].tok != parser.DOT {
				break
			}
		}
		if len(name) == 0 {
			continue
		}
		if _, t, err := cat.ResolveTable(ctx, name); err == nil {
			out = append(out, t.Schema.Names()...)
		}
	}
	return out
}
