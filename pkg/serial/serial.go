// Package serial applies the optional to/from-plain-data capabilities of
// payload types. Values without a capability pass through unchanged; the wire
// carries plain JSON-compatible data only.
package serial

import (
	"encoding/json"
	"fmt"
)

// PlainEncoder is implemented by payload types that can flatten themselves to
// plain JSON-compatible data before crossing the bridge.
type PlainEncoder interface {
	ToPlainData() any
}

// PlainDecoder is implemented by argument types that can rebuild themselves
// from a plain map. Implementations use pointer receivers.
type PlainDecoder interface {
	FromPlainData(data map[string]any) error
}

// ToPlain flattens v through its PlainEncoder capability when present and
// returns v unchanged otherwise.
func ToPlain(v any) any {
	if enc, ok := v.(PlainEncoder); ok {
		return enc.ToPlainData()
	}
	return v
}

// Decode builds a T from a plain wire value. PlainDecoder targets are fed the
// raw map; everything else passes through directly when the types already
// match, or via a JSON round-trip otherwise (which absorbs the usual
// float64-for-every-number shape of decoded JSON).
func Decode[T any](raw any) (T, error) {
	var out T
	if dec, ok := any(&out).(PlainDecoder); ok {
		m, isMap := raw.(map[string]any)
		if !isMap {
			return out, fmt.Errorf("serial: %T wants a map payload, got %T", out, raw)
		}
		if err := dec.FromPlainData(m); err != nil {
			return out, fmt.Errorf("serial: decode %T: %w", out, err)
		}
		return out, nil
	}
	if raw == nil {
		return out, nil
	}
	if v, ok := raw.(T); ok {
		return v, nil
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return out, fmt.Errorf("serial: remarshal %T: %w", raw, err)
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return out, fmt.Errorf("serial: decode %T from %T: %w", out, raw, err)
	}
	return out, nil
}
