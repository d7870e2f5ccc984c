package sheet

import (
	"encoding/csv"
	"fmt"
	"os"
)

// CSVStore is a Store backed by a CSV file whose first record is the header
// row. Updates rewrite the whole file; the sheets this pipeline works on are
// small enough that this is simpler than tracking byte offsets.
type CSVStore struct {
	Path string
}

func OpenCSV(path string) *CSVStore {
	return &CSVStore{Path: path}
}

func (c *CSVStore) Header() ([]string, error) {
	records, err := c.readAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("sheet %s has no header row", c.Path)
	}
	return records[0], nil
}

func (c *CSVStore) Rows() ([][]string, error) {
	records, err := c.readAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("sheet %s has no header row", c.Path)
	}
	return records[1:], nil
}

func (c *CSVStore) Update(row int, writes map[string]string) error {
	records, err := c.readAll()
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return fmt.Errorf("sheet %s has no header row", c.Path)
	}
	if row < 0 || row >= len(records)-1 {
		return fmt.Errorf("sheet %s has no row %d", c.Path, row)
	}

	header := records[0]
	schema := NewSchema(header)
	target := records[row+1]
	for name, value := range writes {
		idx, ok := schema.Col(name)
		if !ok {
			return fmt.Errorf("column %q not found in sheet header", name)
		}
		for len(target) <= idx {
			target = append(target, "")
		}
		target[idx] = value
	}
	records[row+1] = target

	return c.writeAll(records)
}

func (c *CSVStore) readAll() ([][]string, error) {
	f, err := os.Open(c.Path)
	if err != nil {
		return nil, fmt.Errorf("open sheet: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1 // rows may be ragged
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read sheet: %w", err)
	}
	return records, nil
}

func (c *CSVStore) writeAll(records [][]string) error {
	tmp := c.Path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("write sheet: %w", err)
	}
	w := csv.NewWriter(f)
	if err := w.WriteAll(records); err != nil {
		f.Close()
		return fmt.Errorf("write sheet: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("write sheet: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("write sheet: %w", err)
	}
	return os.Rename(tmp, c.Path)
}
