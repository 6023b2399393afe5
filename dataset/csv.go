package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

const utf8BOM = "\uFEFF"

// ReadCSV parses a CSV stream with a header row. Column types are inferred per
// column: all-numeric columns become numbers, all true/false columns become
// bools, anything else stays a string. Empty cells are null.
func ReadCSV(r io.Reader, source string) (*Dataset, error) {
	reader := csv.NewReader(r)
	reader.ReuseRecord = false

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, &LoadError{Source: source, Err: errors.New("missing header row")}
	}
	if err != nil {
		return nil, &LoadError{Source: source, Err: fmt.Errorf("read header: %w", err)}
	}
	header = normalizeHeader(header)

	raw := make([][]string, len(header))
	for {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &LoadError{Source: source, Err: err}
		}
		for i, cell := range rec {
			raw[i] = append(raw[i], cell)
		}
	}

	cols := make([]Column, len(header))
	for i, name := range header {
		cols[i] = Column{Name: name, Values: inferColumn(raw[i])}
	}
	ds, err := FromColumns(cols...)
	if err != nil {
		return nil, &LoadError{Source: source, Err: err}
	}
	return ds, nil
}

// ReadCSVFile opens path and parses it with ReadCSV.
func ReadCSVFile(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &LoadError{Source: path, Err: err}
	}
	defer f.Close()
	return ReadCSV(f, path)
}

// WriteCSV writes the header row followed by every row.
func WriteCSV(w io.Writer, ds *Dataset) error {
	cw := csv.NewWriter(w)
	names := ds.Columns()
	if err := cw.Write(names); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	rec := make([]string, len(names))
	for i := 0; i < ds.Len(); i++ {
		for j, n := range names {
			col, _ := ds.Column(n)
			rec[j] = col[i].String()
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func normalizeHeader(header []string) []string {
	out := make([]string, len(header))
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, utf8BOM)
		}
		out[i] = norm.NFC.String(strings.TrimSpace(h))
	}
	return out
}

func inferColumn(cells []string) []Value {
	numeric, boolean := true, true
	for _, c := range cells {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if numeric {
			if _, err := strconv.ParseFloat(c, 64); err != nil {
				numeric = false
			}
		}
		if boolean {
			if _, ok := parseBool(c); !ok {
				boolean = false
			}
		}
	}

	out := make([]Value, len(cells))
	for i, c := range cells {
		t := strings.TrimSpace(c)
		switch {
		case t == "":
			out[i] = Null()
		case numeric:
			f, _ := strconv.ParseFloat(t, 64)
			out[i] = Number(f)
		case boolean:
			b, _ := parseBool(t)
			out[i] = Bool(b)
		default:
			out[i] = String(c)
		}
	}
	return out
}

func parseBool(s string) (bool, bool) {
	switch strings.ToLower(s) {
	case "true":
		return true, true
	case "false":
		return false, true
	}
	return false, false
}
