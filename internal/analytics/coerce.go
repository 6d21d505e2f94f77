package analytics

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/spf13/cast"

	"github.com/btlivestream/backend/internal/models"
)

// Quality samples arrive from browsers as numbers or numeric strings. Anything that does
// not coerce cleanly is dropped to null instead of failing the event.

// coerceInt returns an integer in [0, math.MaxInt32] or nil. Strings are read as decimal
// floats and truncated, the same as JSON numbers, so "010" is 10 and "12.5" is 12.
func coerceInt(v any) *int {
	f, ok := toFloat(v)
	if !ok {
		return nil
	}
	f = math.Trunc(f)
	if f < 0 || f > math.MaxInt32 {
		return nil
	}
	n := int(f)
	return &n
}

// coercePercent returns a value in [0, 100] rounded to two decimals, or nil.
func coercePercent(v any) *float64 {
	f, ok := toFloat(v)
	if !ok || f < 0 || f > 100 {
		return nil
	}
	f = math.Round(f*100) / 100
	return &f
}

// toFloat reads a finite number from a JSON value. Strings must be plain decimal: hex,
// underscores and inf/nan are rejected.
func toFloat(v any) (float64, bool) {
	if !numeric(v) {
		return 0, false
	}
	var (
		f   float64
		err error
	)
	if s, ok := v.(string); ok {
		s = strings.TrimSpace(s)
		if strings.ContainsAny(s, "xXpP_") {
			return 0, false
		}
		f, err = strconv.ParseFloat(s, 64)
	} else {
		f, err = cast.ToFloat64E(v)
	}
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// numeric rejects nil, bools and empty strings, which cast would turn into 0 or 1.
func numeric(v any) bool {
	switch x := v.(type) {
	case nil, bool:
		return false
	case string:
		return strings.TrimSpace(x) != ""
	case float64, float32, int, int32, int64, json.Number:
		return true
	}
	return false
}

// decodePayload turns event_data into a document. Objects are used as-is; any other JSON
// value is kept under "value". Absent or null data yields no payload.
func decodePayload(raw json.RawMessage) (models.EventPayload, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil, nil
	}
	var doc models.EventPayload
	if strings.HasPrefix(trimmed, "{") {
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, err
		}
		return doc, nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return models.EventPayload{"value": v}, nil
}

// optionalTag trims a quality tag; blank tags are nil.
func optionalTag(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	if t == "" {
		return nil
	}
	return &t
}
