package gateway

import (
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	rqlitesql "github.com/rqlite/sql"
)

// classifyCacheSize bounds the shared statement-classification cache. Sized
// generously relative to a typical application's distinct prepared
// statement texts, not per connection — spec's PREPARE traffic across many
// short-lived gateways commonly repeats the same handful of SQL texts.
const classifyCacheSize = 4096

// statementKind is PREPARE's classification of a statement's shape: whether
// EXEC on it is expected to produce row-level frames (write), no frames at
// all (read), or a schema change that replicates as a synthetic frame
// carrying the statement text instead of row images (ddl) — see
// internal/vfs's OpDDL.
type statementKind int

const (
	kindWrite statementKind = iota
	kindRead
	kindDDL
)

// classification is what PREPARE needs from the AST beyond the compiled
// *sql.Stmt: the statement's kind and, for a single-table DDL statement, the
// table whose cached schema (internal/vfs's schemaCache) must be invalidated
// once the statement commits.
type classification struct {
	kind  statementKind
	table string
}

// classifyCache memoizes classifyStatement's AST walk by exact SQL text,
// grounded on the teacher's transpiler cache (protocol/query/transpiler.go)
// repurposed here from a query-rewrite cache to a classification cache: the
// win is the same, skipping a re-parse of statement text PREPARE has already
// seen.
var classifyCache, _ = lru.New[string, classification](classifyCacheSize)

// classifyStatement parses text and classifies it the way the teacher's own
// classifyFromAST does (protocol/query/validator.go): SELECT/EXPLAIN read
// nothing, CREATE/ALTER/DROP TABLE and CREATE/DROP INDEX are schema changes,
// everything else is a write routed through the ordinary VFS capture path.
// A parse failure is surfaced to the caller as an error so PREPARE can
// report DB_ERROR instead of silently treating unparseable SQL as a write.
// Successful classifications are cached by exact SQL text; parse errors are
// not, so a transient failure never poisons the cache.
func classifyStatement(text string) (classification, error) {
	if cached, ok := classifyCache.Get(text); ok {
		return cached, nil
	}

	parser := rqlitesql.NewParser(strings.NewReader(text))
	stmt, err := parser.ParseStatement()
	if err != nil {
		return classification{}, err
	}

	c := classification{kind: kindWrite}
	switch s := stmt.(type) {
	case *rqlitesql.SelectStatement, *rqlitesql.ExplainStatement:
		c.kind = kindRead
	case *rqlitesql.CreateTableStatement:
		c.kind = kindDDL
		if s.Name != nil {
			c.table = rqlitesql.IdentName(s.Name)
		}
	case *rqlitesql.AlterTableStatement:
		c.kind = kindDDL
		if s.Name != nil {
			c.table = rqlitesql.IdentName(s.Name)
		}
	case *rqlitesql.DropTableStatement:
		c.kind = kindDDL
		if s.Name != nil {
			c.table = rqlitesql.IdentName(s.Name)
		}
	case *rqlitesql.CreateIndexStatement:
		c.kind = kindDDL
	case *rqlitesql.DropIndexStatement:
		c.kind = kindDDL
	}

	classifyCache.Add(text, c)
	return c, nil
}
