package publisher

import (
	"fmt"

	"github.com/gobwas/glob"
)

// GlobFilter matches table names against a set of glob patterns, grounded on
// the teacher's own table/database glob filter (publisher/filter.go). Only
// table patterns are supported: a sink receives events from every database
// on the node, and the database name is not matched.
type GlobFilter struct {
	tableGlobs []glob.Glob
}

// NewGlobFilter compiles patterns. An empty pattern list matches every
// table.
func NewGlobFilter(patterns []string) (*GlobFilter, error) {
	f := &GlobFilter{tableGlobs: make([]glob.Glob, 0, len(patterns))}
	for _, pattern := range patterns {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("publisher: invalid table pattern %q: %w", pattern, err)
		}
		f.tableGlobs = append(f.tableGlobs, g)
	}
	return f, nil
}

func (f *GlobFilter) Match(table string) bool {
	if len(f.tableGlobs) == 0 {
		return true
	}
	for _, g := range f.tableGlobs {
		if g.Match(table) {
			return true
		}
	}
	return false
}
