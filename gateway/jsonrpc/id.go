package jsonrpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

type idKind uint8

const (
	idNull idKind = iota
	idText
	idNumeric
)

// ID is a JSON-RPC request id: either text or numeric, echoed back verbatim.
type ID struct {
	kind idKind
	text string
	num  json.Number
}

// TextID returns a text request id.
func TextID(s string) ID { return ID{kind: idText, text: s} }

// NumericID returns a numeric request id.
func NumericID(n int64) ID { return ID{kind: idNumeric, num: json.Number(strconv.FormatInt(n, 10))} }

func (id ID) IsNull() bool { return id.kind == idNull }

func (id ID) IsText() bool { return id.kind == idText }

func (id ID) IsNumeric() bool { return id.kind == idNumeric }

func (id ID) String() string {
	switch id.kind {
	case idText:
		return id.text
	case idNumeric:
		return id.num.String()
	default:
		return "null"
	}
}

// MarshalJSON implements json.Marshaler
func (id ID) MarshalJSON() ([]byte, error) {
	switch id.kind {
	case idText:
		return json.Marshal(id.text)
	case idNumeric:
		return []byte(id.num), nil
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON implements json.Unmarshaler
func (id *ID) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	switch {
	case bytes.Equal(trimmed, []byte("null")):
		*id = ID{}
		return nil
	case len(trimmed) > 0 && trimmed[0] == '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*id = TextID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(trimmed, &n); err != nil {
		return fmt.Errorf("jsonrpc: id must be a string or number")
	}
	*id = ID{kind: idNumeric, num: n}
	return nil
}
