package types

import (
	"encoding/json"
	"strconv"
)

// ValueKind tags the JSON type a Value was decoded from.
type ValueKind int

const (
	KindNumber ValueKind = iota
	KindString
	KindBool
)

func (k ValueKind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	default:
		return "unknown"
	}
}

// Value is one scalar field of a device reading.
type Value struct {
	Kind   ValueKind
	Number float64
	Str    string
	Bool   bool
}

// Number returns a numeric Value.
func Number(f float64) Value { return Value{Kind: KindNumber, Number: f} }

// String returns a string Value.
func String(s string) Value { return Value{Kind: KindString, Str: s} }

// Bool returns a boolean Value.
func Bool(b bool) Value { return Value{Kind: KindBool, Bool: b} }

// Float returns the value as a float64. Booleans map to 1/0 and strings are
// parsed; ok is false when the string is not a number.
func (v Value) Float() (float64, bool) {
	switch v.Kind {
	case KindNumber:
		return v.Number, true
	case KindBool:
		if v.Bool {
			return 1, true
		}
		return 0, true
	case KindString:
		f, err := strconv.ParseFloat(v.Str, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// Text renders the value as a label string. Booleans become "true"/"false"
// and numbers use the shortest representation that round-trips.
func (v Value) Text() string {
	switch v.Kind {
	case KindNumber:
		return strconv.FormatFloat(v.Number, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.Bool)
	default:
		return v.Str
	}
}

// MarshalJSON writes the value back in its original JSON type.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindNumber:
		return json.Marshal(v.Number)
	case KindBool:
		return json.Marshal(v.Bool)
	default:
		return json.Marshal(v.Str)
	}
}

// Reading maps device field names to their decoded scalar values.
type Reading map[string]Value

// Clone returns a shallow copy; Values are plain data so this is a full copy.
func (r Reading) Clone() Reading {
	out := make(Reading, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
