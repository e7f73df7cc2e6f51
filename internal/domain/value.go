package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ValueKind identifies the shape of a condition value.
type ValueKind int

const (
	ValueNone ValueKind = iota
	ValueString
	ValueNumber
	ValueList
)

func (k ValueKind) String() string {
	switch k {
	case ValueString:
		return "string"
	case ValueNumber:
		return "number"
	case ValueList:
		return "list"
	default:
		return "none"
	}
}

// Value is a condition operand: a string, a number, or an ordered list of scalars.
// The zero Value is empty.
type Value struct {
	kind  ValueKind
	text  string
	num   float64
	items []Value
}

// String returns a string scalar.
func String(s string) Value {
	return Value{kind: ValueString, text: s}
}

// Number returns a numeric scalar.
func Number(n float64) Value {
	return Value{kind: ValueNumber, num: n}
}

// List returns an ordered list of scalars. Nested lists are flattened away.
func List(items ...Value) Value {
	out := make([]Value, 0, len(items))
	for _, it := range items {
		if it.kind == ValueList {
			out = append(out, it.items...)
			continue
		}
		out = append(out, it)
	}
	return Value{kind: ValueList, items: out}
}

// Strings is shorthand for a list of string scalars.
func Strings(ss ...string) Value {
	items := make([]Value, len(ss))
	for i, s := range ss {
		items[i] = String(s)
	}
	return Value{kind: ValueList, items: items}
}

// Kind returns the value's shape.
func (v Value) Kind() ValueKind { return v.kind }

// IsList reports whether v is a list.
func (v Value) IsList() bool { return v.kind == ValueList }

// IsZero reports whether v carries nothing.
func (v Value) IsZero() bool { return v.kind == ValueNone }

// Len is the number of list items, or 1 for a scalar and 0 for an empty value.
func (v Value) Len() int {
	switch v.kind {
	case ValueList:
		return len(v.items)
	case ValueNone:
		return 0
	default:
		return 1
	}
}

// Items returns a copy of the list items. Scalars yield a single-item slice.
func (v Value) Items() []Value {
	switch v.kind {
	case ValueList:
		out := make([]Value, len(v.items))
		copy(out, v.items)
		return out
	case ValueNone:
		return nil
	default:
		return []Value{v}
	}
}

// Float returns the numeric content of a number scalar, or of a string that parses as one.
func (v Value) Float() (float64, bool) {
	switch v.kind {
	case ValueNumber:
		return v.num, true
	case ValueString:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.text), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// Text returns the string content of a scalar.
func (v Value) Text() string {
	switch v.kind {
	case ValueString:
		return v.text
	case ValueNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	}
	return ""
}

// Equal reports deep equality.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case ValueString:
		return v.text == o.text
	case ValueNumber:
		return v.num == o.num
	case ValueList:
		if len(v.items) != len(o.items) {
			return false
		}
		for i := range v.items {
			if !v.items[i].Equal(o.items[i]) {
				return false
			}
		}
	}
	return true
}

func (v Value) String() string {
	switch v.kind {
	case ValueString:
		return strconv.Quote(v.text)
	case ValueNumber:
		return v.Text()
	case ValueList:
		parts := make([]string, len(v.items))
		for i, it := range v.items {
			parts[i] = it.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	}
	return "<empty>"
}

// MarshalJSON encodes scalars as JSON scalars and lists as arrays.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case ValueString:
		return json.Marshal(v.text)
	case ValueNumber:
		return json.Marshal(v.num)
	case ValueList:
		if v.items == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.items)
	}
	return []byte("null"), nil
}

// UnmarshalJSON accepts a string, a number, null, or an array of strings and numbers.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*v = Value{}
		return nil
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = String(s)
	case '[':
		var raw []json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		items := make([]Value, 0, len(raw))
		for i, r := range raw {
			var item Value
			if err := item.UnmarshalJSON(r); err != nil {
				return err
			}
			if item.kind == ValueList || item.kind == ValueNone {
				return fmt.Errorf("value list item %d must be a string or number", i)
			}
			items = append(items, item)
		}
		*v = Value{kind: ValueList, items: items}
	default:
		var n float64
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("value must be a string, number, or list: %w", err)
		}
		*v = Number(n)
	}
	return nil
}
