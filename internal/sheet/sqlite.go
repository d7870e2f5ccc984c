package sheet

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore is a Store backed by one table in a local SQLite database,
// used when the pipeline runs against a synced offline copy of the sheet.
// The header is the table's column order and rows are addressed in rowid
// order, mirroring the row order of the sheet it was imported from.
type SQLiteStore struct {
	db    *sql.DB
	table string
}

func OpenSQLite(path, table string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sheet db: %w", err)
	}
	return &SQLiteStore{db: db, table: table}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Header() ([]string, error) {
	rows, err := s.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", quoteIdent(s.table)))
	if err != nil {
		return nil, fmt.Errorf("read sheet schema: %w", err)
	}
	defer rows.Close()

	var header []string
	for rows.Next() {
		var (
			cid        int
			name, typ  string
			notNull    int
			defaultVal sql.NullString
			pk         int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &defaultVal, &pk); err != nil {
			return nil, fmt.Errorf("read sheet schema: %w", err)
		}
		header = append(header, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read sheet schema: %w", err)
	}
	if len(header) == 0 {
		return nil, fmt.Errorf("sheet table %q not found", s.table)
	}
	return header, nil
}

func (s *SQLiteStore) Rows() ([][]string, error) {
	header, err := s.Header()
	if err != nil {
		return nil, err
	}

	cols := make([]string, len(header))
	for i, name := range header {
		cols[i] = quoteIdent(name)
	}
	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY rowid",
		strings.Join(cols, ", "), quoteIdent(s.table))

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("read sheet rows: %w", err)
	}
	defer rows.Close()

	var out [][]string
	for rows.Next() {
		cells := make([]sql.NullString, len(header))
		ptrs := make([]any, len(header))
		for i := range cells {
			ptrs[i] = &cells[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("read sheet rows: %w", err)
		}
		row := make([]string, len(header))
		for i, c := range cells {
			row[i] = c.String
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read sheet rows: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) Update(row int, writes map[string]string) error {
	rowid, err := s.rowid(row)
	if err != nil {
		return err
	}

	sets := make([]string, 0, len(writes))
	args := make([]any, 0, len(writes)+1)
	for name, value := range writes {
		sets = append(sets, fmt.Sprintf("%s = ?", quoteIdent(name)))
		args = append(args, value)
	}
	args = append(args, rowid)

	query := fmt.Sprintf("UPDATE %s SET %s WHERE rowid = ?",
		quoteIdent(s.table), strings.Join(sets, ", "))
	if _, err := s.db.Exec(query, args...); err != nil {
		return fmt.Errorf("update sheet row %d: %w", row, err)
	}
	return nil
}

// rowid translates a data-row index into the table's rowid.
func (s *SQLiteStore) rowid(row int) (int64, error) {
	query := fmt.Sprintf("SELECT rowid FROM %s ORDER BY rowid LIMIT 1 OFFSET ?", quoteIdent(s.table))
	var id int64
	if err := s.db.QueryRow(query, row).Scan(&id); err != nil {
		if err == sql.ErrNoRows {
			return 0, fmt.Errorf("sheet has no row %d", row)
		}
		return 0, fmt.Errorf("locate sheet row %d: %w", row, err)
	}
	return id, nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
