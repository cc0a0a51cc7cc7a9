package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
)

// Record keys, in schema order.
const (
	KeyConnectionType = "connection_type"
	KeyIsActive       = "is_active"
	KeyIsMetered      = "is_metered"
)

// Field is one key/value pair of a Record.
type Field struct {
	Key   string
	Value any
}

// Record is the ordered key/value form of a ConnectionInfo handed to the
// host. It is the only place snapshots become dynamically typed.
type Record []Field

// Record serializes the snapshot.
func (c ConnectionInfo) Record() Record {
	return Record{
		{Key: KeyConnectionType, Value: int(c.Type)},
		{Key: KeyIsActive, Value: c.IsActive},
		{Key: KeyIsMetered, Value: c.IsMetered},
	}
}

// Get returns the value stored under key.
func (r Record) Get(key string) (any, bool) {
	for _, f := range r {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

// Map returns the record as an unordered map.
func (r Record) Map() map[string]any {
	out := make(map[string]any, len(r))
	for _, f := range r {
		out[f.Key] = f.Value
	}
	return out
}

// MarshalJSON keeps the field order.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range r {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Key)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(f.Value)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", f.Key, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes an object into schema order; unknown keys are
// appended after the schema keys in document order.
func (r *Record) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("record: expected object, got %v", tok)
	}

	var fields Record
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("record: unexpected key %v", tok)
		}
		var value any
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("record: decode %s: %w", key, err)
		}
		fields = append(fields, Field{Key: key, Value: value})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}

	ordered := make(Record, 0, len(fields))
	for _, key := range []string{KeyConnectionType, KeyIsActive, KeyIsMetered} {
		if v, ok := fields.Get(key); ok {
			ordered = append(ordered, Field{Key: key, Value: v})
		}
	}
	for _, f := range fields {
		switch f.Key {
		case KeyConnectionType, KeyIsActive, KeyIsMetered:
		default:
			ordered = append(ordered, f)
		}
	}
	*r = ordered
	return nil
}

// FromRecord parses a Record. Missing or ill-typed fields degrade to
// Unknown and false.
func FromRecord(r Record) ConnectionInfo {
	var info ConnectionInfo
	if v, ok := r.Get(KeyConnectionType); ok {
		info.Type, _ = asType(v)
	}
	if v, ok := r.Get(KeyIsActive); ok {
		info.IsActive, _ = v.(bool)
	}
	if v, ok := r.Get(KeyIsMetered); ok {
		info.IsMetered, _ = v.(bool)
	}
	return NewConnectionInfo(info.Type, info.IsActive, info.IsMetered)
}

// asType converts a numeric record value to a ConnectionType. Values
// outside the enumeration, including ones that would overflow int, map to
// Unknown.
func asType(v any) (ConnectionType, bool) {
	var n int64
	switch x := v.(type) {
	case int:
		n = int64(x)
	case int8:
		n = int64(x)
	case int16:
		n = int64(x)
	case int32:
		n = int64(x)
	case int64:
		n = x
	case uint:
		if uint64(x) > math.MaxInt64 {
			return ConnectionUnknown, false
		}
		n = int64(x)
	case uint8:
		n = int64(x)
	case uint16:
		n = int64(x)
	case uint32:
		n = int64(x)
	case uint64:
		if x > math.MaxInt64 {
			return ConnectionUnknown, false
		}
		n = int64(x)
	case ConnectionType:
		n = int64(x)
	case float64:
		if x != math.Trunc(x) || x < math.MinInt64 || x >= math.MaxInt64 {
			return ConnectionUnknown, false
		}
		n = int64(x)
	case json.Number:
		i, err := x.Int64()
		if err != nil {
			return ConnectionUnknown, false
		}
		n = i
	default:
		return ConnectionUnknown, false
	}
	if n < int64(ConnectionUnknown) || n > int64(ConnectionLoopback) {
		return ConnectionUnknown, false
	}
	return ConnectionType(n), true
}
