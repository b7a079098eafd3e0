package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ValueKind discriminates the closed set of annotation value variants.
type ValueKind int

const (
	KindNull ValueKind = iota
	KindText
	KindNumber
	KindBool
)

func (k ValueKind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindText:
		return "text"
	case KindNumber:
		return "number"
	case KindBool:
		return "boolean"
	default:
		return fmt.Sprintf("ValueKind(%d)", int(k))
	}
}

// Value is a closed tagged variant over the runtime types an annotation
// may hold: Null, Text, Number, or Bool. Consumers switch exhaustively
// on Kind instead of inspecting dynamic types.
type Value struct {
	Kind   ValueKind
	Text   string
	Number float64
	Bool   bool
}

func NullValue() Value            { return Value{Kind: KindNull} }
func TextValue(s string) Value    { return Value{Kind: KindText, Text: s} }
func NumberValue(n float64) Value { return Value{Kind: KindNumber, Number: n} }
func BoolValue(b bool) Value      { return Value{Kind: KindBool, Bool: b} }

// IsEmpty reports whether the value counts as absent for required-field
// checks: null, or text that is empty after trimming whitespace.
func (v Value) IsEmpty() bool {
	switch v.Kind {
	case KindNull:
		return true
	case KindText:
		return strings.TrimSpace(v.Text) == ""
	case KindNumber, KindBool:
		return false
	default:
		return true
	}
}

// MarshalJSON encodes the value as the bare JSON scalar it wraps.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindNull:
		return []byte("null"), nil
	case KindText:
		return json.Marshal(v.Text)
	case KindNumber:
		return json.Marshal(v.Number)
	case KindBool:
		return json.Marshal(v.Bool)
	default:
		return nil, fmt.Errorf("cannot marshal value of kind %s", v.Kind)
	}
}

// UnmarshalJSON decodes a JSON scalar into the matching variant.
// Arrays and objects are rejected.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch x := raw.(type) {
	case nil:
		*v = NullValue()
	case string:
		*v = TextValue(x)
	case float64:
		*v = NumberValue(x)
	case bool:
		*v = BoolValue(x)
	default:
		return fmt.Errorf("unsupported value type %T", raw)
	}
	return nil
}
