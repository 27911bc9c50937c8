// Package frame provides column-oriented data frames, the tabular shape the
// panels render from, plus converters from Mirador responses.
package frame

import (
	"fmt"
	"time"
)

// FieldType is the column type.
type FieldType string

const (
	FieldTypeTime   FieldType = "time"
	FieldTypeNumber FieldType = "number"
	FieldTypeString FieldType = "string"
	FieldTypeBool   FieldType = "boolean"
)

// Field is one column. Values hold time.Time, float64, string or bool
// according to Type; nil marks a missing cell.
type Field struct {
	Name        string            `json:"name"`
	Type        FieldType         `json:"type"`
	Labels      map[string]string `json:"labels,omitempty"`
	DisplayName string            `json:"displayName,omitempty"`
	Values      []any             `json:"values"`
}

// Len is the number of rows in the column.
func (f *Field) Len() int { return len(f.Values) }

// Display returns the display name, or the field name.
func (f *Field) Display() string {
	if f.DisplayName != "" {
		return f.DisplayName
	}
	return f.Name
}

// Time returns row i as a time, false when missing or not a time.
func (f *Field) Time(i int) (time.Time, bool) {
	if i < 0 || i >= len(f.Values) {
		return time.Time{}, false
	}
	t, ok := f.Values[i].(time.Time)
	return t, ok
}

// Float returns row i as a float, false when missing or not numeric.
func (f *Field) Float(i int) (float64, bool) {
	if i < 0 || i >= len(f.Values) {
		return 0, false
	}
	switch v := f.Values[i].(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	case int:
		return float64(v), true
	}
	return 0, false
}

// String returns row i formatted for display; missing cells are "".
func (f *Field) String(i int) string {
	if i < 0 || i >= len(f.Values) || f.Values[i] == nil {
		return ""
	}
	switch v := f.Values[i].(type) {
	case string:
		return v
	case time.Time:
		return v.UTC().Format(time.RFC3339)
	case float64:
		return fmt.Sprintf("%g", v)
	default:
		return fmt.Sprint(v)
	}
}

// Frame is a named set of equal-length columns.
type Frame struct {
	Name   string   `json:"name,omitempty"`
	RefID  string   `json:"refId,omitempty"`
	Fields []*Field `json:"fields"`
}

// New builds a frame from fields.
func New(name string, fields ...*Field) *Frame {
	return &Frame{Name: name, Fields: fields}
}

// NewField builds a column.
func NewField(name string, typ FieldType, values []any) *Field {
	if values == nil {
		values = []any{}
	}
	return &Field{Name: name, Type: typ, Values: values}
}

// Rows is the length of the longest column.
func (fr *Frame) Rows() int {
	n := 0
	for _, f := range fr.Fields {
		if f.Len() > n {
			n = f.Len()
		}
	}
	return n
}

// FirstOfType returns the first column of the given type, or nil.
func (fr *Frame) FirstOfType(typ FieldType) *Field {
	for _, f := range fr.Fields {
		if f.Type == typ {
			return f
		}
	}
	return nil
}

// ByName returns the column with the given name, or nil.
func (fr *Frame) ByName(name string) *Field {
	for _, f := range fr.Fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// Validate checks all columns have the same length.
func (fr *Frame) Validate() error {
	rows := -1
	for _, f := range fr.Fields {
		if rows == -1 {
			rows = f.Len()
			continue
		}
		if f.Len() != rows {
			return fmt.Errorf("frame %q: field %q has %d rows, want %d", fr.Name, f.Name, f.Len(), rows)
		}
	}
	return nil
}
