package model

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
)

var emptyObject = []byte("{}")

// ErrMetadataNotObject is returned when metadata input is not a JSON object.
var ErrMetadataNotObject = errors.New("metadata must be a JSON object")

// Metadata is an arbitrary JSON object kept as raw text so key order survives
// the round trip through storage.
type Metadata json.RawMessage

// NewMetadata marshals v, which must encode to a JSON object.
func NewMetadata(v interface{}) (Metadata, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if !isObject(b) {
		return nil, ErrMetadataNotObject
	}
	return Metadata(b), nil
}

// DecodeMetadata parses stored text. Anything that is not a JSON object
// becomes an empty object.
func DecodeMetadata(raw []byte) Metadata {
	if !isObject(raw) {
		return Metadata(emptyObject)
	}
	out := make([]byte, len(raw))
	copy(out, raw)
	return Metadata(out)
}

// Map decodes the object into a generic map.
func (m Metadata) Map() map[string]interface{} {
	out := map[string]interface{}{}
	if isObject(m) {
		_ = json.Unmarshal(m, &out)
	}
	return out
}

func (m Metadata) MarshalJSON() ([]byte, error) {
	if !isObject(m) {
		return emptyObject, nil
	}
	return m, nil
}

func (m *Metadata) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		*m = nil
		return nil
	}
	if !isObject(trimmed) {
		return ErrMetadataNotObject
	}
	*m = append((*m)[0:0], trimmed...)
	return nil
}

// Value stores the object as JSON text.
func (m Metadata) Value() (driver.Value, error) {
	if !isObject(m) {
		return string(emptyObject), nil
	}
	return string(m), nil
}

// Scan never fails on bad content; malformed stored JSON reads as {}.
func (m *Metadata) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*m = Metadata(emptyObject)
	case []byte:
		*m = DecodeMetadata(v)
	case string:
		*m = DecodeMetadata([]byte(v))
	default:
		return fmt.Errorf("unsupported metadata column type %T", src)
	}
	return nil
}

func isObject(b []byte) bool {
	b = bytes.TrimSpace(b)
	return len(b) >= 2 && b[0] == '{' && json.Valid(b)
}
