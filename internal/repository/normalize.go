package repository

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Normalize returns a deep copy of doc in the value set every backend stores
// and returns: nil, bool, string, int64, float64, []any and map[string]any.
// Whole numbers that fit in an int64 become int64; other numbers float64.
// Any other Go value is converted through its JSON encoding.
func Normalize(doc Document) (Document, error) {
	if doc == nil {
		return nil, nil
	}
	out := make(Document, len(doc))
	for k, v := range doc {
		nv, err := NormalizeValue(v)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		out[k] = nv
	}
	return out, nil
}

// NormalizeValue normalizes a single field value. See Normalize.
func NormalizeValue(v any) (any, error) {
	switch val := v.(type) {
	case nil, bool, string:
		return val, nil
	case int:
		return int64(val), nil
	case int8:
		return int64(val), nil
	case int16:
		return int64(val), nil
	case int32:
		return int64(val), nil
	case int64:
		return val, nil
	case uint:
		return uintValue(uint64(val)), nil
	case uint8:
		return int64(val), nil
	case uint16:
		return int64(val), nil
	case uint32:
		return int64(val), nil
	case uint64:
		return uintValue(val), nil
	case float32:
		f, _ := strconv.ParseFloat(strconv.FormatFloat(float64(val), 'g', -1, 32), 64)
		return floatValue(f)
	case float64:
		return floatValue(val)
	case json.Number:
		return numberValue(string(val))
	case Document:
		m, err := Normalize(val)
		return map[string]any(m), err
	case map[string]any:
		m, err := Normalize(Document(val))
		return map[string]any(m), err
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			nv, err := NormalizeValue(item)
			if err != nil {
				return nil, err
			}
			out[i] = nv
		}
		return out, nil
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return nil, fmt.Errorf("%w: unsupported value %T: %v", ErrInvalidInput, val, err)
		}
		var decoded any
		if err := decodeNumbers(data, &decoded); err != nil {
			return nil, err
		}
		return NormalizeValue(decoded)
	}
}

// DecodeJSON decodes a stored JSON object into a normalized Document.
func DecodeJSON(data []byte) (Document, error) {
	var doc Document
	if err := decodeNumbers(data, &doc); err != nil {
		return nil, err
	}
	return Normalize(doc)
}

func decodeNumbers(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("failed to decode document: %w", err)
	}
	return nil
}

func numberValue(s string) (any, error) {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid number %q", ErrInvalidInput, s)
	}
	return floatValue(f)
}

func floatValue(f float64) (any, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("%w: %v is not a JSON number", ErrInvalidInput, f)
	}
	if f == math.Trunc(f) && f >= math.MinInt64 && f < math.MaxInt64 {
		return int64(f), nil
	}
	return f, nil
}

func uintValue(u uint64) any {
	if u > math.MaxInt64 {
		return float64(u)
	}
	return int64(u)
}
