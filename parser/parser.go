// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package parser

import (
	"fmt"
	"strings"

	"github.com/featurebasedb/sqlgateway/errors"
)

const (
	ErrSQLParse    errors.Code = "SqlParseError"
	ErrUnsupported errors.Code = "UnsupportedStatement"
)

// Error represents a parse error.
type Error struct {
	Pos Pos
	Msg string
}

// Error implements the error interface.
func (e Error) Error() string {
	if e.Pos.IsValid() {
		return e.Pos.String() + ": " + e.Msg
	}
	return e.Msg
}

type item struct {
	pos Pos
	tok Token
	lit string
	end int // offset just past the token
}

// Parser parses a single SQL statement.
type Parser struct {
	src   string
	items []item
	i     int
}

// NewParser returns a parser for sql. A trailing semicolon is ignored.
func NewParser(sql string) *Parser {
	src := strings.TrimRightFunc(sql, func(r rune) bool {
		return r == ';' || r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})
	p := &Parser{src: src}
	s := NewScanner(src)
	for {
		pos, tok, lit := s.Scan()
		p.items = append(p.items, item{pos: pos, tok: tok, lit: lit, end: s.Offset()})
		if tok == EOF || tok == ILLEGAL {
			break
		}
	}
	return p
}

// ParseStatement parses sql into a Statement. Failures carry the ErrSQLParse
// code, or ErrUnsupported when the statement is not recognized at all.
func ParseStatement(sql string) (Statement, error) {
	stmt, err := NewParser(sql).ParseStatement()
	if err != nil {
		if errors.Is(err, ErrUnsupported) {
			return nil, err
		}
		return nil, errors.Wrapc(err, ErrSQLParse, "SQL parse failed")
	}
	return stmt, nil
}

// ParseStatement parses the statement.
func (p *Parser) ParseStatement() (Statement, error) {
	first := p.peek()
	switch {
	case first.tok == EOF:
		return nil, p.errorExpected(first, "statement")
	case first.tok == LP || isWord(first.tok, first.lit, "SELECT") || isWord(first.tok, first.lit, "WITH") || isWord(first.tok, first.lit, "VALUES"):
		return &QueryStatement{SQL: p.src}, nil
	}

	p.next()
	switch strings.ToUpper(first.lit) {
	case "SET":
		return p.parseSet()
	case "RESET":
		return p.parseReset()
	case "SHOW":
		return p.parseShow()
	case "DESCRIBE", "DESC":
		name, err := p.parseQualifiedName("table name")
		if err != nil {
			return nil, err
		}
		return p.finish(&DescribeStatement{Name: name})
	case "EXPLAIN":
		p.acceptWords("PLAN", "FOR")
		return &ExplainStatement{Query: p.rest()}, nil
	case "USE":
		return p.parseUse()
	case "CREATE":
		return p.parseCreate()
	case "ALTER":
		return p.parseAlter()
	case "DROP":
		return p.parseDrop()
	case "LOAD":
		return p.parseLoadModule()
	case "UNLOAD":
		if err := p.expectWord("MODULE"); err != nil {
			return nil, err
		}
		name, err := p.parseIdent("module name")
		if err != nil {
			return nil, err
		}
		return p.finish(&UnloadModuleStatement{Name: name})
	case "INSERT":
		return p.parseInsert()
	case "UPDATE":
		name, err := p.parseQualifiedName("table name")
		if err != nil {
			return nil, err
		}
		return &DMLStatement{SQL: p.src, Kind: DMLUpdate, Table: name}, nil
	case "DELETE":
		if err := p.expectWord("FROM"); err != nil {
			return nil, err
		}
		name, err := p.parseQualifiedName("table name")
		if err != nil {
			return nil, err
		}
		return &DMLStatement{SQL: p.src, Kind: DMLDelete, Table: name}, nil
	}
	return nil, errors.Wrapc(Error{Pos: first.pos, Msg: fmt.Sprintf("unsupported statement '%s'", first.lit)}, ErrUnsupported, "Unsupported SQL statement")
}

// parseSet reads the remainder as key=value text, so keys such as
// execution.result-mode need no quoting.
func (p *Parser) parseSet() (Statement, error) {
	stmt := &SetStatement{}
	rest := p.rest()
	if rest == "" {
		return stmt, nil
	}
	eq := strings.Index(rest, "=")
	if eq < 0 {
		return nil, Error{Pos: p.peek().pos, Msg: fmt.Sprintf("expected '=' after property key '%s'", unquote(rest))}
	}
	stmt.Key = unquote(strings.TrimSpace(rest[:eq]))
	stmt.Value = unquote(strings.TrimSpace(rest[eq+1:]))
	if stmt.Key == "" {
		return nil, Error{Pos: p.peek().pos, Msg: "expected property key, found '='"}
	}
	return stmt, nil
}

func (p *Parser) parseReset() (Statement, error) {
	return &ResetStatement{Key: unquote(p.rest())}, nil
}

func (p *Parser) parseShow() (Statement, error) {
	stmt := &ShowStatement{}
	it := p.next()
	switch {
	case isWord(it.tok, it.lit, "CATALOGS"):
		stmt.Kind = ShowCatalogs
	case isWord(it.tok, it.lit, "DATABASES"):
		stmt.Kind = ShowDatabases
	case isWord(it.tok, it.lit, "TABLES"):
		stmt.Kind = ShowTables
	case isWord(it.tok, it.lit, "VIEWS"):
		stmt.Kind = ShowViews
	case isWord(it.tok, it.lit, "FUNCTIONS"):
		stmt.Kind = ShowFunctions
	case isWord(it.tok, it.lit, "MODULES"):
		stmt.Kind = ShowModules
	case isWord(it.tok, it.lit, "USER"):
		if err := p.expectWord("FUNCTIONS"); err != nil {
			return nil, err
		}
		stmt.Kind = ShowUserFunctions
	case isWord(it.tok, it.lit, "FULL"):
		if err := p.expectWord("MODULES"); err != nil {
			return nil, err
		}
		stmt.Kind = ShowFullModules
	case isWord(it.tok, it.lit, "CURRENT"):
		next := p.next()
		switch {
		case isWord(next.tok, next.lit, "CATALOG"):
			stmt.Kind = ShowCurrentCatalog
		case isWord(next.tok, next.lit, "DATABASE"):
			stmt.Kind = ShowCurrentDatabase
		default:
			return nil, p.errorExpected(next, "CATALOG or DATABASE")
		}
	default:
		return nil, p.errorExpected(it, "CATALOGS, DATABASES, TABLES, VIEWS, FUNCTIONS, MODULES or CURRENT")
	}
	return p.finish(stmt)
}

func (p *Parser) parseUse() (Statement, error) {
	if p.acceptWord("CATALOG") {
		name, err := p.parseIdent("catalog name")
		if err != nil {
			return nil, err
		}
		return p.finish(&UseCatalogStatement{Name: name})
	}
	name, err := p.parseQualifiedName("database name")
	if err != nil {
		return nil, err
	}
	if len(name) > 2 {
		return nil, Error{Pos: p.items[0].pos, Msg: fmt.Sprintf("invalid database name %s", name)}
	}
	return p.finish(&UseStatement{Name: name})
}

func (p *Parser) parseCreate() (Statement, error) {
	temporary, system := p.parseTemporary()

	it := p.next()
	switch {
	case isWord(it.tok, it.lit, "TABLE") && !system:
		return p.parseCreateTable(temporary)
	case isWord(it.tok, it.lit, "VIEW") && !system:
		return p.parseCreateView(temporary)
	case isWord(it.tok, it.lit, "FUNCTION"):
		return p.parseCreateFunction(temporary, system)
	case isWord(it.tok, it.lit, "CATALOG") && !temporary:
		return p.parseCreateCatalog()
	case isWord(it.tok, it.lit, "DATABASE") && !temporary:
		return p.parseCreateDatabase()
	case temporary:
		return nil, p.errorExpected(it, "TABLE, VIEW or FUNCTION")
	}
	return nil, p.errorExpected(it, "TABLE, VIEW, FUNCTION, CATALOG or DATABASE")
}

func (p *Parser) parseAlter() (Statement, error) {
	temporary, system := p.parseTemporary()

	it := p.next()
	switch {
	case isWord(it.tok, it.lit, "FUNCTION"):
		return p.parseAlterFunction(temporary, system)
	case isWord(it.tok, it.lit, "TABLE") && !temporary:
		return p.parseAlterTable()
	case isWord(it.tok, it.lit, "DATABASE") && !temporary:
		name, err := p.parseQualifiedName("database name")
		if err != nil {
			return nil, err
		}
		if err := p.expectWord("SET"); err != nil {
			return nil, err
		}
		props, err := p.parseProperties()
		if err != nil {
			return nil, err
		}
		return p.finish(&AlterDatabaseStatement{Name: name, Properties: props})
	case temporary:
		return nil, p.errorExpected(it, "FUNCTION")
	}
	return nil, p.errorExpected(it, "TABLE, FUNCTION or DATABASE")
}

func (p *Parser) parseDrop() (Statement, error) {
	temporary, system := p.parseTemporary()

	it := p.next()
	switch {
	case isWord(it.tok, it.lit, "TABLE") && !system:
		ifExists := p.acceptWords("IF", "EXISTS")
		name, err := p.parseQualifiedName("table name")
		if err != nil {
			return nil, err
		}
		return p.finish(&DropTableStatement{Name: name, Temporary: temporary, IfExists: ifExists})
	case isWord(it.tok, it.lit, "VIEW") && !system:
		ifExists := p.acceptWords("IF", "EXISTS")
		name, err := p.parseQualifiedName("view name")
		if err != nil {
			return nil, err
		}
		return p.finish(&DropViewStatement{Name: name, Temporary: temporary, IfExists: ifExists})
	case isWord(it.tok, it.lit, "FUNCTION"):
		ifExists := p.acceptWords("IF", "EXISTS")
		name, err := p.parseQualifiedName("function name")
		if err != nil {
			return nil, err
		}
		return p.finish(&DropFunctionStatement{Name: name, Temporary: temporary, System: system, IfExists: ifExists})
	case isWord(it.tok, it.lit, "CATALOG") && !temporary:
		ifExists := p.acceptWords("IF", "EXISTS")
		name, err := p.parseIdent("catalog name")
		if err != nil {
			return nil, err
		}
		return p.finish(&DropCatalogStatement{Name: name, IfExists: ifExists})
	case isWord(it.tok, it.lit, "DATABASE") && !temporary:
		stmt := &DropDatabaseStatement{IfExists: p.acceptWords("IF", "EXISTS")}
		name, err := p.parseQualifiedName("database name")
		if err != nil {
			return nil, err
		}
		stmt.Name = name
		if p.acceptWord("CASCADE") {
			stmt.Cascade = true
		} else {
			p.acceptWord("RESTRICT")
		}
		return p.finish(stmt)
	case temporary:
		return nil, p.errorExpected(it, "TABLE, VIEW or FUNCTION")
	}
	return nil, p.errorExpected(it, "TABLE, VIEW, FUNCTION, CATALOG or DATABASE")
}

func (p *Parser) parseTemporary() (temporary, system bool) {
	if p.acceptWord("TEMPORARY") {
		temporary = true
		system = p.acceptWord("SYSTEM")
	}
	return temporary, system
}

func (p *Parser) parseCreateCatalog() (Statement, error) {
	name, err := p.parseIdent("catalog name")
	if err != nil {
		return nil, err
	}
	stmt := &CreateCatalogStatement{Name: name}
	if p.acceptWord("WITH") {
		if stmt.Properties, err = p.parseProperties(); err != nil {
			return nil, err
		}
	}
	return p.finish(stmt)
}

func (p *Parser) parseCreateDatabase() (Statement, error) {
	stmt := &CreateDatabaseStatement{IfNotExists: p.acceptWords("IF", "NOT", "EXISTS")}
	name, err := p.parseQualifiedName("database name")
	if err != nil {
		return nil, err
	}
	if len(name) > 2 {
		return nil, Error{Pos: p.items[0].pos, Msg: fmt.Sprintf("invalid database name %s", name)}
	}
	stmt.Name = name
	if p.acceptWord("COMMENT") {
		if stmt.Comment, err = p.parseString("comment"); err != nil {
			return nil, err
		}
	}
	if p.acceptWord("WITH") {
		if stmt.Properties, err = p.parseProperties(); err != nil {
			return nil, err
		}
	}
	return p.finish(stmt)
}

func (p *Parser) parseCreateTable(temporary bool) (Statement, error) {
	stmt := &CreateTableStatement{
		Temporary:   temporary,
		IfNotExists: p.acceptWords("IF", "NOT", "EXISTS"),
	}
	name, err := p.parseQualifiedName("table name")
	if err != nil {
		return nil, err
	}
	stmt.Name = name

	if err := p.expect(LP); err != nil {
		return nil, err
	}
	for {
		if err := p.parseTableElement(stmt); err != nil {
			return nil, err
		}
		if p.peek().tok == COMMA {
			p.next()
			continue
		}
		if err := p.expect(RP); err != nil {
			return nil, err
		}
		break
	}

	if p.acceptWord("COMMENT") {
		if stmt.Comment, err = p.parseString("comment"); err != nil {
			return nil, err
		}
	}
	if p.acceptWord("WITH") {
		if stmt.Properties, err = p.parseProperties(); err != nil {
			return nil, err
		}
	}
	return p.finish(stmt)
}

func (p *Parser) parseTableElement(stmt *CreateTableStatement) error {
	it := p.peek()
	switch {
	case isWord(it.tok, it.lit, "CONSTRAINT"):
		p.next()
		if _, err := p.parseIdent("constraint name"); err != nil {
			return err
		}
		return p.parsePrimaryKeyConstraint(stmt)
	case isWord(it.tok, it.lit, "PRIMARY") && isWord(p.peekN(1).tok, p.peekN(1).lit, "KEY"):
		return p.parsePrimaryKeyConstraint(stmt)
	case isWord(it.tok, it.lit, "WATERMARK") && isWord(p.peekN(1).tok, p.peekN(1).lit, "FOR"):
		p.next()
		p.next()
		col, err := p.parseIdent("column name")
		if err != nil {
			return err
		}
		if err := p.expectWord("AS"); err != nil {
			return err
		}
		expr, err := p.parseRawExpr()
		if err != nil {
			return err
		}
		stmt.Watermarks = append(stmt.Watermarks, WatermarkDef{Column: col, Expr: expr})
		return nil
	}

	name, err := p.parseIdent("column name")
	if err != nil {
		return err
	}
	col := ColumnDef{Name: name, Nullable: true}
	if p.acceptWord("AS") {
		if col.Expr, err = p.parseRawExpr(); err != nil {
			return err
		}
	} else {
		if col.Type, err = p.parseType(); err != nil {
			return err
		}
		for {
			switch {
			case p.acceptWords("NOT", "NULL"):
				col.Nullable = false
				continue
			case p.acceptWord("NULL"):
				col.Nullable = true
				continue
			case p.acceptWords("PRIMARY", "KEY"):
				if len(stmt.PrimaryKey) > 0 {
					return Error{Pos: it.pos, Msg: "duplicate primary key definition"}
				}
				p.acceptWords("NOT", "ENFORCED")
				stmt.PrimaryKey = []string{name}
				col.Nullable = false
				continue
			}
			break
		}
	}
	if p.acceptWord("COMMENT") {
		if col.Comment, err = p.parseString("comment"); err != nil {
			return err
		}
	}
	stmt.Columns = append(stmt.Columns, col)
	return nil
}

func (p *Parser) parsePrimaryKeyConstraint(stmt *CreateTableStatement) error {
	pos := p.peek().pos
	if err := p.expectWord("PRIMARY"); err != nil {
		return err
	}
	if err := p.expectWord("KEY"); err != nil {
		return err
	}
	if len(stmt.PrimaryKey) > 0 {
		return Error{Pos: pos, Msg: "duplicate primary key definition"}
	}
	cols, err := p.parseIdentList("column name")
	if err != nil {
		return err
	}
	p.acceptWords("NOT", "ENFORCED")
	stmt.PrimaryKey = cols
	return nil
}

// parseType returns the upper-cased source text of a column type. Type
// parameters in parentheses or angle brackets are kept as written.
func (p *Parser) parseType() (string, error) {
	start := p.peek()
	if start.tok != IDENT {
		return "", p.errorExpected(start, "column type")
	}
	end := start.end
	depth := 0
	for {
		it := p.peek()
		if it.tok == EOF || it.tok == ILLEGAL {
			break
		}
		if depth == 0 && it != start {
			if it.tok == COMMA || it.tok == RP {
				break
			}
			if it.tok == IDENT && isTypeTerminator(it.lit) {
				break
			}
		}
		switch it.tok {
		case LP, LT:
			depth++
		case RP, GT:
			depth--
		}
		p.next()
		end = it.end
	}
	if depth != 0 {
		return "", p.errorExpected(p.peek(), "closing bracket of column type")
	}
	return normalizeSpace(strings.ToUpper(p.src[start.pos.Offset:end])), nil
}

func isTypeTerminator(lit string) bool {
	switch strings.ToUpper(lit) {
	case "NOT", "NULL", "PRIMARY", "COMMENT", "CONSTRAINT":
		return true
	}
	return false
}

// parseRawExpr returns the source text of an expression which ends at a comma
// or closing parenthesis at nesting depth zero, or at COMMENT.
func (p *Parser) parseRawExpr() (string, error) {
	start := p.peek()
	end := start.pos.Offset
	depth := 0
	for {
		it := p.peek()
		if it.tok == EOF || it.tok == ILLEGAL {
			break
		}
		if depth == 0 && (it.tok == COMMA || it.tok == RP || isWord(it.tok, it.lit, "COMMENT")) {
			break
		}
		switch it.tok {
		case LP:
			depth++
		case RP:
			depth--
		}
		p.next()
		end = it.end
	}
	expr := strings.TrimSpace(p.src[start.pos.Offset:end])
	if expr == "" || depth != 0 {
		return "", p.errorExpected(p.peek(), "expression")
	}
	return expr, nil
}

func (p *Parser) parseAlterTable() (Statement, error) {
	name, err := p.parseQualifiedName("table name")
	if err != nil {
		return nil, err
	}
	stmt := &AlterTableStatement{Name: name}
	switch {
	case p.acceptWord("RENAME"):
		if err := p.expectWord("TO"); err != nil {
			return nil, err
		}
		if stmt.RenameTo, err = p.parseQualifiedName("table name"); err != nil {
			return nil, err
		}
	case p.acceptWord("SET"):
		if stmt.Properties, err = p.parseProperties(); err != nil {
			return nil, err
		}
	default:
		return nil, p.errorExpected(p.peek(), "RENAME or SET")
	}
	return p.finish(stmt)
}

func (p *Parser) parseCreateView(temporary bool) (Statement, error) {
	stmt := &CreateViewStatement{
		Temporary:   temporary,
		IfNotExists: p.acceptWords("IF", "NOT", "EXISTS"),
	}
	name, err := p.parseQualifiedName("view name")
	if err != nil {
		return nil, err
	}
	stmt.Name = name
	if p.peek().tok == LP {
		if stmt.Columns, err = p.parseIdentList("column name"); err != nil {
			return nil, err
		}
	}
	if p.acceptWord("COMMENT") {
		if stmt.Comment, err = p.parseString("comment"); err != nil {
			return nil, err
		}
	}
	if err := p.expectWord("AS"); err != nil {
		return nil, err
	}
	if stmt.Query = p.rest(); stmt.Query == "" {
		return nil, p.errorExpected(p.peek(), "query")
	}
	return stmt, nil
}

func (p *Parser) parseCreateFunction(temporary, system bool) (Statement, error) {
	stmt := &CreateFunctionStatement{
		Temporary:   temporary,
		System:      system,
		IfNotExists: p.acceptWords("IF", "NOT", "EXISTS"),
	}
	var err error
	if stmt.Name, err = p.parseQualifiedName("function name"); err != nil {
		return nil, err
	}
	if stmt.Identifier, stmt.Language, err = p.parseFunctionBody(); err != nil {
		return nil, err
	}
	return p.finish(stmt)
}

func (p *Parser) parseAlterFunction(temporary, system bool) (Statement, error) {
	stmt := &AlterFunctionStatement{
		Temporary: temporary,
		System:    system,
		IfExists:  p.acceptWords("IF", "EXISTS"),
	}
	var err error
	if stmt.Name, err = p.parseQualifiedName("function name"); err != nil {
		return nil, err
	}
	if stmt.Identifier, stmt.Language, err = p.parseFunctionBody(); err != nil {
		return nil, err
	}
	return p.finish(stmt)
}

// parseFunctionBody parses AS '<identifier>' [LANGUAGE <lang>].
func (p *Parser) parseFunctionBody() (identifier, language string, err error) {
	if err := p.expectWord("AS"); err != nil {
		return "", "", err
	}
	if identifier, err = p.parseString("function identifier"); err != nil {
		return "", "", err
	}
	if p.acceptWord("LANGUAGE") {
		it := p.next()
		if it.tok != IDENT {
			return "", "", p.errorExpected(it, "language")
		}
		language = strings.ToUpper(it.lit)
	}
	return identifier, language, nil
}

func (p *Parser) parseLoadModule() (Statement, error) {
	if err := p.expectWord("MODULE"); err != nil {
		return nil, err
	}
	name, err := p.parseIdent("module name")
	if err != nil {
		return nil, err
	}
	stmt := &LoadModuleStatement{Name: name}
	if p.acceptWord("WITH") {
		if stmt.Properties, err = p.parseProperties(); err != nil {
			return nil, err
		}
	}
	return p.finish(stmt)
}

func (p *Parser) parseInsert() (Statement, error) {
	stmt := &DMLStatement{SQL: p.src, Kind: DMLInsert}
	switch {
	case p.acceptWord("INTO"):
	case p.acceptWord("OVERWRITE"):
		stmt.Overwrite = true
	default:
		return nil, p.errorExpected(p.peek(), "INTO or OVERWRITE")
	}
	name, err := p.parseQualifiedName("table name")
	if err != nil {
		return nil, err
	}
	stmt.Table = name
	return stmt, nil
}

// parseProperties parses ('key' = 'value', ...). Keys may also be written as
// unquoted dotted names.
func (p *Parser) parseProperties() (Properties, error) {
	if err := p.expect(LP); err != nil {
		return nil, err
	}
	var props Properties
	if p.peek().tok == RP {
		p.next()
		return props, nil
	}
	for {
		key, err := p.parsePropertyKey()
		if err != nil {
			return nil, err
		}
		if err := p.expect(EQ); err != nil {
			return nil, err
		}
		it := p.next()
		switch it.tok {
		case STRING, INTEGER, FLOAT, IDENT:
		default:
			return nil, p.errorExpected(it, "property value")
		}
		props = append(props, Property{Key: key, Value: it.lit})

		if p.peek().tok == COMMA {
			p.next()
			continue
		}
		if err := p.expect(RP); err != nil {
			return nil, err
		}
		return props, nil
	}
}

func (p *Parser) parsePropertyKey() (string, error) {
	it := p.next()
	switch it.tok {
	case STRING, QIDENT:
		return it.lit, nil
	case IDENT:
		// Unquoted keys may contain dots and dashes.
		end := it.end
		for {
			next := p.peek()
			if next.pos.Offset != end || !(next.tok == IDENT || next.tok == DOT || next.tok == INTEGER || (next.tok == OP && next.lit == "-")) {
				break
			}
			p.next()
			end = next.end
		}
		return p.src[it.pos.Offset:end], nil
	}
	return "", p.errorExpected(it, "property key")
}

func (p *Parser) parseIdent(desc string) (string, error) {
	it := p.next()
	if it.tok != IDENT && it.tok != QIDENT {
		return "", p.errorExpected(it, desc)
	}
	return it.lit, nil
}

// parseIdentList parses (a, b, ...).
func (p *Parser) parseIdentList(desc string) ([]string, error) {
	if err := p.expect(LP); err != nil {
		return nil, err
	}
	var names []string
	for {
		name, err := p.parseIdent(desc)
		if err != nil {
			return nil, err
		}
		names = append(names, name)
		if p.peek().tok == COMMA {
			p.next()
			continue
		}
		if err := p.expect(RP); err != nil {
			return nil, err
		}
		return names, nil
	}
}

func (p *Parser) parseQualifiedName(desc string) (QualifiedName, error) {
	var name QualifiedName
	for {
		part, err := p.parseIdent(desc)
		if err != nil {
			return nil, err
		}
		name = append(name, part)
		if p.peek().tok != DOT {
			break
		}
		p.next()
	}
	if len(name) > 3 {
		return nil, Error{Pos: p.peek().pos, Msg: fmt.Sprintf("%s has too many parts: %s", desc, name)}
	}
	return name, nil
}

func (p *Parser) parseString(desc string) (string, error) {
	it := p.next()
	if it.tok != STRING {
		return "", p.errorExpected(it, desc)
	}
	return it.lit, nil
}

func (p *Parser) finish(stmt Statement) (Statement, error) {
	if it := p.peek(); it.tok != EOF {
		return nil, p.errorExpected(it, "EOF")
	}
	return stmt, nil
}

// rest returns the unconsumed source text.
func (p *Parser) rest() string {
	it := p.peek()
	if it.tok == EOF {
		return ""
	}
	return strings.TrimSpace(p.src[it.pos.Offset:])
}

func (p *Parser) peek() item { return p.peekN(0) }

func (p *Parser) peekN(n int) item {
	if p.i+n >= len(p.items) {
		return p.items[len(p.items)-1]
	}
	return p.items[p.i+n]
}

func (p *Parser) next() item {
	it := p.peek()
	if p.i < len(p.items)-1 {
		p.i++
	}
	return it
}

func (p *Parser) expect(tok Token) error {
	if it := p.next(); it.tok != tok {
		return p.errorExpected(it, tok.String())
	}
	return nil
}

func (p *Parser) expectWord(kw string) error {
	if it := p.next(); !isWord(it.tok, it.lit, kw) {
		return p.errorExpected(it, kw)
	}
	return nil
}

func (p *Parser) acceptWord(kw string) bool {
	if it := p.peek(); isWord(it.tok, it.lit, kw) {
		p.next()
		return true
	}
	return false
}

// acceptWords consumes the keyword sequence only if all of it is present.
func (p *Parser) acceptWords(kws ...string) bool {
	for i, kw := range kws {
		if it := p.peekN(i); !isWord(it.tok, it.lit, kw) {
			return false
		}
	}
	for range kws {
		p.next()
	}
	return true
}

func (p *Parser) errorExpected(it item, expected string) error {
	found := it.lit
	switch it.tok {
	case EOF:
		found = "EOF"
	case ILLEGAL:
		return Error{Pos: it.pos, Msg: fmt.Sprintf("illegal token %s", it.lit)}
	}
	return Error{Pos: it.pos, Msg: fmt.Sprintf("expected %s, found '%s'", expected, found)}
}

func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 {
		switch q := s[0]; q {
		case '\'', '`', '"':
			if s[len(s)-1] == q {
				return strings.ReplaceAll(s[1:len(s)-1], string([]byte{q, q}), string(q))
			}
		}
	}
	return s
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
