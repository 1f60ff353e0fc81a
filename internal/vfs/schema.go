package vfs

import (
	"database/sql/driver"
	"fmt"
	"io"
	"sync"

	"github.com/mattn/go-sqlite3"
)

// tableSchema is the subset of a table's column layout the capture session
// needs: the full column list (preupdate hook values are positional) and
// which columns form the primary key (rowid, if the table has none).
type tableSchema struct {
	columns   []string
	pkColumns []string
}

// schemaCache caches tableSchema by table name so a capture session never
// re-queries PRAGMA table_info mid-transaction for a table it has already
// seen. One cache is shared by every session against the same database
// handle — see internal/vfs.Handle.
type schemaCache struct {
	mu    sync.RWMutex
	cache map[string]*tableSchema
}

func newSchemaCache() *schemaCache {
	return &schemaCache{cache: make(map[string]*tableSchema)}
}

func (c *schemaCache) get(table string) *tableSchema {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cache[table]
}

func (c *schemaCache) set(table string, s *tableSchema) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache[table] = s
}

// invalidate drops one table's cached schema — called after DDL affecting
// it, since PREPARE/EXEC of CREATE/ALTER TABLE change the column layout.
func (c *schemaCache) invalidate(table string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.cache, table)
}

func loadSchema(conn *sqlite3.SQLiteConn, table string) (*tableSchema, error) {
	rows, err := conn.Query(fmt.Sprintf("PRAGMA table_info(%s)", table), nil)
	if err != nil {
		return nil, fmt.Errorf("vfs: query table_info(%s): %w", table, err)
	}
	defer rows.Close()

	s := &tableSchema{}
	dest := make([]driver.Value, 6)
	for {
		if err := rows.Next(dest); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("vfs: read table_info(%s) row: %w", table, err)
		}
		name, _ := dest[1].(string)
		pk, _ := dest[5].(int64)
		s.columns = append(s.columns, name)
		if pk > 0 {
			s.pkColumns = append(s.pkColumns, name)
		}
	}
	if len(s.pkColumns) == 0 {
		s.pkColumns = []string{"rowid"}
	}
	return s, nil
}
