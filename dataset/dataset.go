package dataset

import (
	"fmt"
)

// Column is a named, ordered sequence of values.
type Column struct {
	Name   string
	Values []Value
}

// Dataset is a columnar table. A Dataset is never modified after
// construction; WithColumn returns a new Dataset that shares every column it
// did not replace.
type Dataset struct {
	names []string
	cols  map[string][]Value
	rows  int
}

// FromColumns builds a Dataset. Column names must be unique and every column
// must have the same length.
func FromColumns(cols ...Column) (*Dataset, error) {
	ds := &Dataset{
		names: make([]string, 0, len(cols)),
		cols:  make(map[string][]Value, len(cols)),
	}
	for i, c := range cols {
		if c.Name == "" {
			return nil, fmt.Errorf("column %d has an empty name", i)
		}
		if _, dup := ds.cols[c.Name]; dup {
			return nil, fmt.Errorf("duplicate column %q", c.Name)
		}
		if i == 0 {
			ds.rows = len(c.Values)
		} else if len(c.Values) != ds.rows {
			return nil, fmt.Errorf("column %q has %d rows, want %d", c.Name, len(c.Values), ds.rows)
		}
		ds.names = append(ds.names, c.Name)
		ds.cols[c.Name] = c.Values
	}
	return ds, nil
}

// Empty returns a dataset with no columns and no rows.
func Empty() *Dataset {
	return &Dataset{cols: map[string][]Value{}}
}

// Len returns the row count.
func (d *Dataset) Len() int { return d.rows }

// Columns returns the column names in order.
func (d *Dataset) Columns() []string {
	out := make([]string, len(d.names))
	copy(out, d.names)
	return out
}

// Has reports whether the dataset has the named column.
func (d *Dataset) Has(name string) bool {
	_, ok := d.cols[name]
	return ok
}

// Column returns the named column. The returned slice is shared with the
// dataset and must not be modified.
func (d *Dataset) Column(name string) ([]Value, bool) {
	v, ok := d.cols[name]
	return v, ok
}

// Row returns the values of row i keyed by column name.
func (d *Dataset) Row(i int) map[string]Value {
	row := make(map[string]Value, len(d.names))
	for _, n := range d.names {
		row[n] = d.cols[n][i]
	}
	return row
}

// WithColumn returns a copy of d with the named column set to values. An
// existing column keeps its position; a new one is appended. For a dataset
// without columns the first column defines the row count.
func (d *Dataset) WithColumn(name string, values []Value) (*Dataset, error) {
	if name == "" {
		return nil, fmt.Errorf("column name must not be empty")
	}
	rows := d.rows
	if len(d.names) == 0 {
		rows = len(values)
	}
	if len(values) != rows {
		return nil, fmt.Errorf("column %q has %d rows, want %d", name, len(values), rows)
	}

	out := &Dataset{
		names: make([]string, len(d.names), len(d.names)+1),
		cols:  make(map[string][]Value, len(d.cols)+1),
		rows:  rows,
	}
	copy(out.names, d.names)
	for k, v := range d.cols {
		out.cols[k] = v
	}
	if _, exists := out.cols[name]; !exists {
		out.names = append(out.names, name)
	}
	out.cols[name] = values
	return out, nil
}

// IsNumeric reports whether every value in the column is a number or null.
// This is the column's declared type for reporting purposes.
func (d *Dataset) IsNumeric(name string) bool {
	col, ok := d.cols[name]
	if !ok {
		return false
	}
	for _, v := range col {
		if v.Kind() != KindNumber && v.Kind() != KindNull {
			return false
		}
	}
	return true
}

// Equal reports whether both datasets have the same columns in the same order
// with equal values.
func (d *Dataset) Equal(o *Dataset) bool {
	if d.rows != o.rows || len(d.names) != len(o.names) {
		return false
	}
	for i, n := range d.names {
		if o.names[i] != n {
			return false
		}
		a, b := d.cols[n], o.cols[n]
		for j := range a {
			if !a[j].Equal(b[j]) {
				return false
			}
		}
	}
	return true
}

// LoadError reports a missing or malformed input dataset.
type LoadError struct {
	Source string
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load dataset %q: %v", e.Source, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }
