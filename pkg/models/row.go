package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Field is a single column/value pair used to build rows
type Field struct {
	Name  string
	Value Value
}

// Col builds a Field from any scalar
func Col(name string, v any) Field {
	return Field{Name: name, Value: FromAny(v)}
}

// Row is an ordered mapping from column name to value
type Row struct {
	cols []string
	vals map[string]Value
}

// NewRow creates a row from fields, keeping their order
func NewRow(fields ...Field) Row {
	r := Row{}
	for _, f := range fields {
		r.Set(f.Name, f.Value)
	}
	return r
}

// Set assigns a column value, appending the column if it is new
func (r *Row) Set(col string, v Value) {
	if r.vals == nil {
		r.vals = make(map[string]Value)
	}
	if _, exists := r.vals[col]; !exists {
		r.cols = append(r.cols, col)
	}
	r.vals[col] = v
}

// Get returns the value of a column; missing columns read as null
func (r Row) Get(col string) Value {
	return r.vals[col]
}

// Has reports whether the row carries the column
func (r Row) Has(col string) bool {
	_, ok := r.vals[col]
	return ok
}

// Columns returns the column names in insertion order
func (r Row) Columns() []string {
	out := make([]string, len(r.cols))
	copy(out, r.cols)
	return out
}

// Len returns the number of columns
func (r Row) Len() int { return len(r.cols) }

// MarshalJSON writes the row as a JSON object preserving column order
func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, col := range r.cols {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(col)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := r.vals[col].MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a JSON object keeping key order
func (r *Row) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("row must be a JSON object")
	}
	*r = Row{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("row key must be a string")
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		var v Value
		if err := v.UnmarshalJSON(raw); err != nil {
			return err
		}
		r.Set(key, v)
	}
	_, err = dec.Token()
	return err
}

// ColumnsOf returns the columns of a result set, taken from its first row
func ColumnsOf(rows []Row) []string {
	if len(rows) == 0 {
		return []string{}
	}
	return rows[0].Columns()
}
