// Package dataset holds the tabular data model shared by every backend:
// ordered named columns of string cells, one row per VA case. Missing values
// are empty strings, matching the openVA CSV encoding used by the Docker
// exchange contract.
package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
)

// Table is a rectangular collection of named columns. Row order is identity;
// the zero value is an empty table.
type Table struct {
	cols []string
	rows [][]string
}

// NewTable builds a table from column names and row data. Every row must have
// exactly one cell per column.
func NewTable(cols []string, rows [][]string) (*Table, error) {
	for i, r := range rows {
		if len(r) != len(cols) {
			return nil, fmt.Errorf("dataset: row %d has %d cells, want %d", i, len(r), len(cols))
		}
	}
	return &Table{cols: cols, rows: rows}, nil
}

// Columns returns the column names in order. The returned slice is shared;
// callers must not mutate it.
func (t *Table) Columns() []string {
	if t == nil {
		return nil
	}
	return t.cols
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.rows)
}

// NumColumns returns the number of columns.
func (t *Table) NumColumns() int {
	if t == nil {
		return 0
	}
	return len(t.cols)
}

// Row returns the cells of row i.
func (t *Table) Row(i int) []string {
	return t.rows[i]
}

// Cell returns the value at row i, column name. Second return is false when
// the column does not exist.
func (t *Table) Cell(i int, col string) (string, bool) {
	for j, c := range t.cols {
		if c == col {
			return t.rows[i][j], true
		}
	}
	return "", false
}

// Select returns a new table containing exactly the named columns, in the
// given order. Rows are shared, not copied. Fails when a column is absent.
func (t *Table) Select(cols []string) (*Table, error) {
	idx := make([]int, len(cols))
	for i, want := range cols {
		found := -1
		for j, have := range t.cols {
			if have == want {
				found = j
				break
			}
		}
		if found < 0 {
			return nil, fmt.Errorf("dataset: column %q not present", want)
		}
		idx[i] = found
	}

	rows := make([][]string, len(t.rows))
	for i, r := range t.rows {
		row := make([]string, len(idx))
		for j, k := range idx {
			row[j] = r[k]
		}
		rows[i] = row
	}
	return &Table{cols: append([]string(nil), cols...), rows: rows}, nil
}

// Subset returns a new table containing the rows at the given indices.
func (t *Table) Subset(indices []int) *Table {
	rows := make([][]string, len(indices))
	for i, idx := range indices {
		rows[i] = t.rows[idx]
	}
	return &Table{cols: t.cols, rows: rows}
}

// WithColumn returns a copy of the table with an extra column appended,
// filled from values (one per row).
func (t *Table) WithColumn(name string, values []string) (*Table, error) {
	if len(values) != len(t.rows) {
		return nil, fmt.Errorf("dataset: column %q has %d values for %d rows", name, len(values), len(t.rows))
	}
	cols := append(append([]string(nil), t.cols...), name)
	rows := make([][]string, len(t.rows))
	for i, r := range t.rows {
		rows[i] = append(append([]string(nil), r...), values[i])
	}
	return &Table{cols: cols, rows: rows}, nil
}

// AllMissingColumns lists the columns whose every cell is empty.
func (t *Table) AllMissingColumns() []string {
	var out []string
	for j, c := range t.cols {
		if len(t.rows) == 0 {
			break
		}
		allEmpty := true
		for _, r := range t.rows {
			if r[j] != "" {
				allEmpty = false
				break
			}
		}
		if allEmpty {
			out = append(out, c)
		}
	}
	return out
}

// ToMatrix converts the table to a float64 matrix for in-process engines.
// Empty or unparseable cells become NaN, which engines treat as missing.
func (t *Table) ToMatrix() [][]float64 {
	m := make([][]float64, len(t.rows))
	for i, r := range t.rows {
		row := make([]float64, len(r))
		for j, cell := range r {
			if cell == "" {
				row[j] = math.NaN()
				continue
			}
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				row[j] = math.NaN()
				continue
			}
			row[j] = v
		}
		m[i] = row
	}
	return m
}

// WriteCSV writes the table with a header row. Missing values are written as
// empty fields, preserving the openVA encoding.
func (t *Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.cols); err != nil {
		return err
	}
	for _, r := range t.rows {
		if err := cw.Write(r); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteCSVFile writes the table to path.
func (t *Table) WriteCSVFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := t.WriteCSV(f); err != nil {
		return fmt.Errorf("dataset: writing %s: %w", path, err)
	}
	return nil
}

// ReadCSV parses a table from CSV with a header row.
func ReadCSV(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("dataset: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("dataset: empty CSV input")
	}
	return NewTable(records[0], records[1:])
}

// ReadCSVFile parses a table from the CSV file at path.
func ReadCSVFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadCSV(f)
}
