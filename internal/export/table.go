// Package export projects stored records into downloadable views: CSV tables,
// the flattened per-event timeline, the narrative procedure report, JSON and
// XLSX. Every projection is a pure function over already loaded records.
package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
)

// Table is a header row plus string cells in caller-specified column order.
type Table struct {
	Columns []string
	Rows    [][]string
}

// WriteCSV encodes the table as comma-separated UTF-8 text with CRLF line
// endings. A cell is quoted only when it has to be.
func (t Table) WriteCSV(w io.Writer) error {
	writer := csv.NewWriter(w)
	writer.UseCRLF = true
	if err := writer.Write(t.Columns); err != nil {
		return err
	}
	for _, row := range t.Rows {
		record := make([]string, len(t.Columns))
		copy(record, row)
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// CSV returns the encoded table.
func (t Table) CSV() ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := t.WriteCSV(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ProjectRecords flattens records into a Table using their JSON field names.
// Columns are emitted in the given order; a missing field yields an empty
// cell and an object or array is serialized as compact JSON.
func ProjectRecords[T any](records []T, columns []string) (Table, error) {
	t := Table{Columns: append([]string(nil), columns...), Rows: make([][]string, 0, len(records))}
	for i, rec := range records {
		fields, err := toFields(rec)
		if err != nil {
			return Table{}, fmt.Errorf("record %d: %w", i, err)
		}
		row := make([]string, len(columns))
		for j, col := range columns {
			cell, err := formatCell(fields[col])
			if err != nil {
				return Table{}, fmt.Errorf("record %d column %s: %w", i, col, err)
			}
			row[j] = cell
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

func toFields(rec any) (map[string]json.RawMessage, error) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}

// formatCell renders a JSON value as a cell: strings unquoted, null empty,
// numbers and booleans verbatim, objects and arrays compacted.
func formatCell(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", nil
	}
	switch raw[0] {
	case 'n':
		return "", nil
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return s, nil
	case '{', '[':
		buf := &bytes.Buffer{}
		if err := json.Compact(buf, raw); err != nil {
			return "", err
		}
		return buf.String(), nil
	default:
		return string(raw), nil
	}
}
