// Package sheet reads and writes the external tabular store that the
// pipeline uses as its work queue. Columns are resolved by header name, never
// by fixed position: the header row is re-read on every stage invocation and
// may have been reordered or extended in the meantime.
package sheet

import (
	"fmt"
	"strings"
)

// Store is one tabular work queue. Row indices refer to data rows in order,
// starting at 0 just after the header. The store is only eventually
// consistent with out-of-process edits; callers work from the most recently
// read snapshot and never attempt conflict detection.
type Store interface {
	// Header returns the current column names in sheet order.
	Header() ([]string, error)
	// Rows returns every data row in sheet order. Rows may be shorter than
	// the header when trailing cells are empty.
	Rows() ([][]string, error)
	// Update writes the given column values on one data row.
	Update(row int, writes map[string]string) error
}

// Schema maps column names to positions, rebuilt from a header row each time
// a stage starts.
type Schema struct {
	cols map[string]int
}

func NewSchema(header []string) Schema {
	cols := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, dup := cols[name]; !dup {
			cols[name] = i
		}
	}
	return Schema{cols: cols}
}

// Col returns the position of a column name.
func (s Schema) Col(name string) (int, bool) {
	i, ok := s.cols[name]
	return i, ok
}

// Require resolves every given column name, failing on the first one the
// header does not carry. A missing column is a configuration error, fatal to
// the whole stage rather than to single rows.
func (s Schema) Require(names ...string) (map[string]int, error) {
	out := make(map[string]int, len(names))
	for _, name := range names {
		i, ok := s.cols[name]
		if !ok {
			return nil, fmt.Errorf("column %q not found in sheet header", name)
		}
		out[name] = i
	}
	return out, nil
}

// Cell reads one cell from a row, treating positions past the row's end as
// empty.
func Cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}
