package gateway

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/watermetergateway/exporter/pkg/types"
)

// Decode parses a gateway response body. Read failures are returned as-is;
// parse and shape failures are returned as a KindDecode *FetchError.
func Decode(r io.Reader) (types.Reading, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var raw any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, &FetchError{Kind: KindDecode, Err: fmt.Errorf("parse json: %w", err)}
	}

	reading := make(types.Reading)
	switch v := raw.(type) {
	case map[string]any:
		mergeObject(reading, v)
	case []any:
		for _, item := range v {
			obj, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if name, val, ok := namedEntry(obj); ok {
				if sv, ok := scalar(val); ok {
					reading[name] = sv
				}
				continue
			}
			mergeObject(reading, obj)
		}
	default:
		return nil, &FetchError{Kind: KindDecode, Err: fmt.Errorf("unsupported json body of type %T", raw)}
	}
	return reading, nil
}

func mergeObject(dst types.Reading, obj map[string]any) {
	for k, v := range obj {
		if sv, ok := scalar(v); ok {
			dst[k] = sv
		}
	}
}

// namedEntry recognises {"name": "<field>", "value": <v>}. Other keys such
// as "unit" are ignored.
func namedEntry(obj map[string]any) (string, any, bool) {
	name, ok := obj["name"].(string)
	if !ok {
		return "", nil, false
	}
	val, ok := obj["value"]
	if !ok {
		return "", nil, false
	}
	return name, val, true
}

func scalar(v any) (types.Value, bool) {
	switch x := v.(type) {
	case float64:
		return types.Number(x), true
	case string:
		return types.String(x), true
	case bool:
		return types.Bool(x), true
	}
	return types.Value{}, false
}
