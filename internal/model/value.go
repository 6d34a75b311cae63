package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Kind tags the scalar held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindInt
	KindFloat
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	}
	return "null"
}

// DatetimeLayout is the textual form used for DATETIME columns.
const DatetimeLayout = "2006-01-02 15:04:05"

// Value is a single column value of a versioned row or a grid cell.
// The zero Value is null.
type Value struct {
	kind Kind
	s    string
	i    int64
	f    float64
	b    bool
}

func Null() Value { return Value{} }
func String(s string) Value { return Value{kind: KindString, s: s} }
func Int(i int64) Value { return Value{kind: KindInt, i: i} }
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }
func (v Value) Kind() Kind { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

// FromDB converts a value produced by database/sql into a Value.
func FromDB(src any) Value {
	switch t := src.(type) {
	case nil:
		return Null()
	case int64:
		return Int(t)
	case int:
		return Int(int64(t))
	case int32:
		return Int(int64(t))
	case uint64:
		return Int(int64(t))
	case float64:
		return Float(t)
	case float32:
		return Float(float64(t))
	case bool:
		return Bool(t)
	case []byte:
		return String(string(t))
	case string:
		return String(t)
	case time.Time:
		return String(t.UTC().Format(DatetimeLayout))
	}
	return String(fmt.Sprint(src))
}

// DB returns the value in a form accepted as a query argument.
func (v Value) DB() any {
	switch v.kind {
	case KindString:
		return v.s
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindBool:
		return v.b
	}
	return nil
}

// Text renders the value the way it is shown to and submitted by clients.
func (v Value) Text() string {
	switch v.kind {
	case KindString:
		return v.s
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'f', -1, 64)
	case KindBool:
		if v.b {
			return "1"
		}
		return "0"
	}
	return ""
}

// Number returns the numeric reading of the value. Strings count when
// they hold a plain decimal literal.
func (v Value) Number() (float64, bool) {
	switch v.kind {
	case KindInt:
		return float64(v.i), true
	case KindFloat:
		return v.f, true
	case KindString:
		return parseDecimal(v.s)
	}
	return 0, false
}

// Int64 returns the integer reading of the value, truncating floats.
func (v Value) Int64() (int64, bool) {
	if v.kind == KindInt {
		return v.i, true
	}
	f, ok := v.Number()
	if !ok {
		return 0, false
	}
	return int64(f), true
}

// IsBlank reports a null value or a string with only whitespace.
func (v Value) IsBlank() bool {
	switch v.kind {
	case KindNull:
		return true
	case KindString:
		return strings.TrimSpace(v.s) == ""
	}
	return false
}

// IsZeroID reports whether the value cannot reference a stored row.
func (v Value) IsZeroID() bool {
	n, ok := v.Int64()
	return !ok || n <= 0
}

// Equal is the comparison used when diffing stored states: numeric
// kinds compare by value, everything else by kind and text.
func (v Value) Equal(o Value) bool {
	if v.numeric() && o.numeric() {
		a, _ := v.Number()
		b, _ := o.Number()
		return a == b
	}
	if v.kind != o.kind {
		return false
	}
	return v.Text() == o.Text()
}

// LooseEqual compares a submitted cell with a persisted value. Blank
// matches blank and two decimal readings match by value, so "2", 2 and
// "2.00" are the same cell.
func (v Value) LooseEqual(o Value) bool {
	if v.IsBlank() && o.IsBlank() {
		return true
	}
	a, aok := v.Number()
	b, bok := o.Number()
	if aok && bok {
		return a == b
	}
	return strings.TrimSpace(v.Text()) == strings.TrimSpace(o.Text())
}

func (v Value) numeric() bool { return v.kind == KindInt || v.kind == KindFloat }

func (v Value) String() string {
	if v.kind == KindNull {
		return "null"
	}
	return v.Text()
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(v.s)
	case KindInt:
		return []byte(strconv.FormatInt(v.i, 10)), nil
	case KindFloat:
		if math.IsNaN(v.f) || math.IsInf(v.f, 0) {
			return nil, fmt.Errorf("model: unsupported float %v", v.f)
		}
		return []byte(strconv.FormatFloat(v.f, 'g', -1, 64)), nil
	case KindBool:
		return json.Marshal(v.b)
	}
	return []byte("null"), nil
}

func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*v = Null()
		return nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = String(s)
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		*v = Bool(b)
	case '{', '[':
		return fmt.Errorf("model: value must be a scalar, got %s", data)
	default:
		lit := string(data)
		if i, err := strconv.ParseInt(lit, 10, 64); err == nil {
			*v = Int(i)
			return nil
		}
		f, err := strconv.ParseFloat(lit, 64)
		if err != nil {
			return fmt.Errorf("model: invalid number %s", data)
		}
		*v = Float(f)
	}
	return nil
}

func parseDecimal(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	for _, r := range s {
		if (r < '0' || r > '9') && r != '.' && r != '-' && r != '+' && r != 'e' && r != 'E' {
			return 0, false
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
