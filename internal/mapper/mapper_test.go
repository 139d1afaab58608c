package mapper

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohamedkhairy/signal-engine/internal/models"
)

func breakoutRow() models.RawRow {
	return models.RawRow{
		"AAPL", "2025-09-08T09:50:00", 150.25, int64(2500000), 2.5, 2.1, 3.2, "breakout",
	}
}

func TestMapBreakoutRow(t *testing.T) {
	result, err := Map([]models.RawRow{breakoutRow()}, models.RuleTypeBreakout)
	require.NoError(t, err)
	require.Len(t, result.Fields, 1)
	assert.Empty(t, result.Failed)

	fields := result.Fields[0]
	assert.Equal(t, "AAPL", fields.String("symbol"))
	assert.Equal(t, time.Date(2025, 9, 8, 9, 50, 0, 0, time.UTC), fields.Time("timestamp"))
	assert.Equal(t, 150.25, fields.Float("price"))
	assert.Equal(t, 2.5, fields.Float("price_change_pct"))
	assert.Equal(t, 2.1, fields.Float("volume_multiplier"))
	assert.Equal(t, 3.2, fields.Float("breakout_strength"))
	assert.Equal(t, "breakout", fields.String("pattern_type"))

	volume, ok := fields.Get("volume")
	require.True(t, ok)
	assert.Equal(t, int64(2500000), volume)
}

func TestMapCRPRow(t *testing.T) {
	row := models.RawRow{
		"MSFT", time.Date(2025, 9, 8, 15, 30, 0, 0, time.UTC),
		410.10, int64(1_200_000), 0.95, 1.2, 1.8,
	}

	result, err := Map([]models.RawRow{row}, models.RuleTypeCRP)
	require.NoError(t, err)
	require.Len(t, result.Fields, 1)

	fields := result.Fields[0]
	assert.Equal(t, []string{"symbol", "timestamp", "price", "volume", "close_position", "range_pct", "volume_ratio"}, fields.Order)
	assert.Equal(t, 0.95, fields.Float("close_position"))
	assert.Equal(t, 1.2, fields.Float("range_pct"))
}

// A 6-column row against the 8-column breakout schema is schema drift
// and fails the whole batch.
func TestMapArityMismatch(t *testing.T) {
	short := models.RawRow{"AAPL", "2025-09-08T09:50:00", 150.25, int64(1000), 2.5, 2.1}

	result, err := Map([]models.RawRow{breakoutRow(), short}, models.RuleTypeBreakout)
	assert.Nil(t, result)

	var mapErr *models.MappingError
	require.ErrorAs(t, err, &mapErr)
	assert.Equal(t, models.RuleTypeBreakout, mapErr.RuleType)
	assert.Equal(t, 8, mapErr.Expected)
	assert.Equal(t, 6, mapErr.Got)
}

// One uncoercible row is excluded; the rest of the batch survives.
func TestMapCoercionFailureExcludesRow(t *testing.T) {
	bad := breakoutRow()
	bad[2] = "not-a-price"

	result, err := Map([]models.RawRow{breakoutRow(), bad, breakoutRow()}, models.RuleTypeBreakout)
	require.NoError(t, err)
	assert.Len(t, result.Fields, 2)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, 1, result.Failed[0].Index)

	var coerceErr *models.CoercionError
	require.ErrorAs(t, result.Failed[0].Err, &coerceErr)
	assert.Equal(t, "price", coerceErr.Field)
}

func TestMapAllRowsFailIsBatchError(t *testing.T) {
	bad := breakoutRow()
	bad[0] = 12345 // symbol must be a string

	_, err := Map([]models.RawRow{bad, bad}, models.RuleTypeBreakout)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all 2 rows failed")
}

func TestMapEmptyBatch(t *testing.T) {
	result, err := Map(nil, models.RuleTypeVolume)
	require.NoError(t, err)
	assert.Empty(t, result.Fields)
	assert.Empty(t, result.Failed)
}

func TestMapUnknownRuleType(t *testing.T) {
	_, err := Map([]models.RawRow{breakoutRow()}, models.RuleType("mystery"))
	require.Error(t, err)
}

func TestCoerce(t *testing.T) {
	tests := []struct {
		name    string
		value   interface{}
		kind    models.FieldKind
		want    interface{}
		wantErr bool
	}{
		{"float from float32", float32(1.5), models.FieldFloat, 1.5, false},
		{"float from int64", int64(3), models.FieldFloat, 3.0, false},
		{"float from string", "2.25", models.FieldFloat, 2.25, false},
		{"int from whole float", 5.0, models.FieldInt, int64(5), false},
		{"int rejects fractional", 5.5, models.FieldInt, nil, true},
		{"int from string", "42", models.FieldInt, int64(42), false},
		{"string from bytes", []byte("abc"), models.FieldString, "abc", false},
		{"string rejects number", 1.0, models.FieldString, nil, true},
		{"time from unix", int64(1757322600), models.FieldTime, time.Unix(1757322600, 0).UTC(), false},
		{"nil is an error", nil, models.FieldFloat, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := coerce(tt.value, tt.kind)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCoerceTimeLayouts(t *testing.T) {
	want := time.Date(2025, 9, 8, 9, 50, 0, 0, time.UTC)
	for _, input := range []string{
		"2025-09-08T09:50:00Z",
		"2025-09-08T09:50:00",
		"2025-09-08 09:50:00",
	} {
		got, err := coerceTime(input)
		require.NoError(t, err, input)
		assert.True(t, got.Equal(want), input)
	}

	if _, err := coerceTime("09:50 on monday"); err == nil {
		t.Error("expected error for unparseable timestamp")
	}
}
