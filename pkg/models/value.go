package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
)

// ValueKind tags the scalar held by a Value
type ValueKind int

const (
	NullKind ValueKind = iota
	NumberKind
	StringKind
	BoolKind
	DateKind
)

func (k ValueKind) String() string {
	switch k {
	case NumberKind:
		return "number"
	case StringKind:
		return "string"
	case BoolKind:
		return "bool"
	case DateKind:
		return "date"
	default:
		return "null"
	}
}

// Value is a single cell of a result row
type Value struct {
	kind ValueKind
	num  float64
	str  string
	b    bool
}

// Null returns the null value
func Null() Value { return Value{} }

// Number wraps a float
func Number(f float64) Value { return Value{kind: NumberKind, num: f} }

// String wraps a string
func String(s string) Value { return Value{kind: StringKind, str: s} }

// Bool wraps a boolean
func Bool(b bool) Value { return Value{kind: BoolKind, b: b} }

// Date wraps a date-like string as returned by the database
func Date(s string) Value { return Value{kind: DateKind, str: s} }

// FromAny converts a driver or JSON value into a Value
func FromAny(x any) Value {
	switch v := x.(type) {
	case nil:
		return Null()
	case Value:
		return v
	case bool:
		return Bool(v)
	case int:
		return Number(float64(v))
	case int8:
		return Number(float64(v))
	case int16:
		return Number(float64(v))
	case int32:
		return Number(float64(v))
	case int64:
		return Number(float64(v))
	case uint:
		return Number(float64(v))
	case uint8:
		return Number(float64(v))
	case uint16:
		return Number(float64(v))
	case uint32:
		return Number(float64(v))
	case uint64:
		return Number(float64(v))
	case float32:
		return Number(float64(v))
	case float64:
		return Number(v)
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return Number(f)
		}
		return String(v.String())
	case []byte:
		return String(string(v))
	case string:
		return String(v)
	case time.Time:
		return Date(v.Format(time.RFC3339))
	case *time.Time:
		if v == nil {
			return Null()
		}
		return Date(v.Format(time.RFC3339))
	default:
		return String(fmt.Sprintf("%v", v))
	}
}

// Kind returns the tag of the value
func (v Value) Kind() ValueKind { return v.kind }

// IsNull reports whether the value is null
func (v Value) IsNull() bool { return v.kind == NullKind }

// Float returns the numeric payload of a Number value
func (v Value) Float() (float64, bool) {
	if v.kind != NumberKind {
		return 0, false
	}
	return v.num, true
}

// Text returns the string payload of a String or Date value
func (v Value) Text() (string, bool) {
	if v.kind != StringKind && v.kind != DateKind {
		return "", false
	}
	return v.str, true
}

// String renders the value the way it is shown to users
func (v Value) String() string {
	switch v.kind {
	case NumberKind:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case StringKind, DateKind:
		return v.str
	case BoolKind:
		return strconv.FormatBool(v.b)
	default:
		return ""
	}
}

// Interface returns the value as a plain Go value for encoders and drivers
func (v Value) Interface() any {
	switch v.kind {
	case NumberKind:
		return v.num
	case StringKind, DateKind:
		return v.str
	case BoolKind:
		return v.b
	default:
		return nil
	}
}

// MarshalJSON implements json.Marshaler
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case NumberKind:
		if math.IsNaN(v.num) || math.IsInf(v.num, 0) {
			return []byte("null"), nil
		}
		return []byte(strconv.FormatFloat(v.num, 'f', -1, 64)), nil
	case StringKind, DateKind:
		return json.Marshal(v.str)
	case BoolKind:
		return json.Marshal(v.b)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON implements json.Unmarshaler; objects and arrays are kept as their JSON text
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	switch raw.(type) {
	case map[string]any, []any:
		*v = String(string(bytes.TrimSpace(data)))
	default:
		*v = FromAny(raw)
	}
	return nil
}
