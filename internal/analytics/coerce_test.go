package analytics

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/btlivestream/backend/internal/models"
)

func intPtr(n int) *int           { return &n }
func floatPtr(f float64) *float64 { return &f }

func TestCoerceInt(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want *int
	}{
		{"json number", float64(1500), intPtr(1500)},
		{"numeric string", "1500", intPtr(1500)},
		{"padded string", " 42 ", intPtr(42)},
		{"zero is kept", float64(0), intPtr(0)},
		{"fraction truncates", float64(12.9), intPtr(12)},
		{"json.Number", json.Number("300"), intPtr(300)},
		{"leading zero is decimal", "010", intPtr(10)},
		{"fractional string truncates", "12.5", intPtr(12)},
		{"exponent string", "1e3", intPtr(1000)},
		{"hex string", "0x20", nil},
		{"underscore string", "1_000", nil},
		{"infinity string", "Inf", nil},
		{"int32 max kept", float64(math.MaxInt32), intPtr(math.MaxInt32)},
		{"above int32", 5e9, nil},
		{"above int32 string", "5000000000", nil},
		{"garbage", "fast", nil},
		{"empty", "", nil},
		{"negative", float64(-5), nil},
		{"nil", nil, nil},
		{"bool", true, nil},
		{"object", map[string]any{"a": 1}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, coerceInt(tt.in))
		})
	}
}

func TestCoercePercent(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want *float64
	}{
		{"number", 1.5, floatPtr(1.5)},
		{"string", "2.25", floatPtr(2.25)},
		{"rounds to two decimals", 0.126, floatPtr(0.13)},
		{"bounds inclusive", float64(100), floatPtr(100)},
		{"above 100", float64(101), nil},
		{"hex string", "0x1p-2", nil},
		{"nan string", "NaN", nil},
		{"negative", -0.5, nil},
		{"garbage", "lossy", nil},
		{"nil", nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, coercePercent(tt.in))
		})
	}
}

func TestDecodePayload(t *testing.T) {
	doc, err := decodePayload(json.RawMessage(`{"codec":"vp8","frames":{"dropped":3}}`))
	require.NoError(t, err)
	assert.Equal(t, "vp8", doc["codec"])
	assert.Equal(t, map[string]any{"dropped": float64(3)}, doc["frames"])

	wrapped, err := decodePayload(json.RawMessage(`"reconnect"`))
	require.NoError(t, err)
	assert.Equal(t, models.EventPayload{"value": "reconnect"}, wrapped)

	list, err := decodePayload(json.RawMessage(`[1,2]`))
	require.NoError(t, err)
	assert.Equal(t, models.EventPayload{"value": []any{float64(1), float64(2)}}, list)

	for _, empty := range []string{"", "null", "  "} {
		doc, err := decodePayload(json.RawMessage(empty))
		require.NoError(t, err)
		assert.Nil(t, doc)
	}
}
