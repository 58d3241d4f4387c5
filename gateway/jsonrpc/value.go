package jsonrpc

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Kind discriminates the shapes a Value can take.
type Kind uint8

const (
	KindNull Kind = iota
	KindText
	KindTextArray
	KindNumberArray
	KindBool
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindText:
		return "text"
	case KindTextArray:
		return "text-array"
	case KindNumberArray:
		return "number-array"
	case KindBool:
		return "bool"
	case KindObject:
		return "object"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Value is a JSON-RPC params or result payload. Exactly one variant is set,
// as reported by Kind. KindObject carries any structured JSON that is not one
// of the scalar or homogeneous array shapes, kept verbatim.
type Value struct {
	kind    Kind
	text    string
	texts   []string
	numbers []json.Number
	boolean bool
	raw     json.RawMessage
}

// Text returns a text variant.
func Text(s string) Value { return Value{kind: KindText, text: s} }

// TextArray returns a text-array variant. No arguments yields an empty array.
func TextArray(items ...string) Value {
	if items == nil {
		items = []string{}
	}
	return Value{kind: KindTextArray, texts: items}
}

// NumberArray returns a number-array variant.
func NumberArray(items ...json.Number) Value {
	if items == nil {
		items = []json.Number{}
	}
	return Value{kind: KindNumberArray, numbers: items}
}

// Bool returns a boolean variant.
func Bool(b bool) Value { return Value{kind: KindBool, boolean: b} }

// Object returns a structured variant holding raw JSON.
func Object(raw json.RawMessage) Value {
	cp := make(json.RawMessage, len(raw))
	copy(cp, raw)
	return Value{kind: KindObject, raw: cp}
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsNull() bool { return v.kind == KindNull }

func (v Value) AsText() (string, bool) { return v.text, v.kind == KindText }

func (v Value) AsTextArray() ([]string, bool) { return v.texts, v.kind == KindTextArray }

func (v Value) AsNumberArray() ([]json.Number, bool) { return v.numbers, v.kind == KindNumberArray }

func (v Value) AsBool() (bool, bool) { return v.boolean, v.kind == KindBool }

func (v Value) AsObject() (json.RawMessage, bool) { return v.raw, v.kind == KindObject }

// MarshalJSON implements json.Marshaler
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindText:
		return json.Marshal(v.text)
	case KindTextArray:
		if v.texts == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.texts)
	case KindNumberArray:
		if v.numbers == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.numbers)
	case KindBool:
		return json.Marshal(v.boolean)
	case KindObject:
		if len(v.raw) == 0 {
			return []byte("null"), nil
		}
		return v.raw, nil
	default:
		return nil, fmt.Errorf("jsonrpc: unknown value kind %d", v.kind)
	}
}

// UnmarshalJSON implements json.Unmarshaler
func (v *Value) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return fmt.Errorf("jsonrpc: empty value")
	}

	switch trimmed[0] {
	case 'n':
		if !bytes.Equal(trimmed, []byte("null")) {
			return fmt.Errorf("jsonrpc: invalid literal %q", trimmed)
		}
		*v = Value{}
		return nil
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*v = Text(s)
		return nil
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(trimmed, &b); err != nil {
			return err
		}
		*v = Bool(b)
		return nil
	case '[':
		if decoded, ok := decodeArray(trimmed); ok {
			*v = decoded
			return nil
		}
	}

	if !json.Valid(trimmed) {
		return fmt.Errorf("jsonrpc: invalid value")
	}
	*v = Object(trimmed)
	return nil
}

// decodeArray recognises homogeneous string or number arrays. Anything else
// is left to the object variant.
func decodeArray(data []byte) (Value, bool) {
	var elems []json.RawMessage
	if err := json.Unmarshal(data, &elems); err != nil {
		return Value{}, false
	}
	if len(elems) == 0 {
		return TextArray(), true
	}

	switch first := elems[0][0]; {
	case first == '"':
		texts := make([]string, len(elems))
		for i, elem := range elems {
			if elem[0] != '"' || json.Unmarshal(elem, &texts[i]) != nil {
				return Value{}, false
			}
		}
		return TextArray(texts...), true
	case first == '-' || (first >= '0' && first <= '9'):
		numbers := make([]json.Number, len(elems))
		for i, elem := range elems {
			if elem[0] != '-' && (elem[0] < '0' || elem[0] > '9') {
				return Value{}, false
			}
			numbers[i] = json.Number(elem)
		}
		return NumberArray(numbers...), true
	}
	return Value{}, false
}
