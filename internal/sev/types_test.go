package sev

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNumberAcceptsCommaDecimals(t *testing.T) {
	var n Number
	require.NoError(t, json.Unmarshal([]byte(`"1234,56"`), &n))
	assert.Equal(t, Number(1234.56), n)

	require.NoError(t, json.Unmarshal([]byte(`7.5`), &n))
	assert.Equal(t, Number(7.5), n)

	require.NoError(t, json.Unmarshal([]byte(`null`), &n))
	assert.Equal(t, Number(0), n)

	assert.Error(t, json.Unmarshal([]byte(`"not a number"`), &n))
}

func TestFlexStringAcceptsNumbersAndStrings(t *testing.T) {
	var s FlexString
	require.NoError(t, json.Unmarshal([]byte(`12345`), &s))
	assert.Equal(t, FlexString("12345"), s)

	require.NoError(t, json.Unmarshal([]byte(`"abc-1"`), &s))
	assert.Equal(t, FlexString("abc-1"), s)
}

func TestMeterDisplayName(t *testing.T) {
	assert.Equal(t, "Main meter", Meter{MeterType: "E-01", MeterName: "x"}.DisplayName())
	assert.Equal(t, "Green meter", Meter{MeterType: "E-02", MeterName: "x"}.DisplayName())
	assert.Equal(t, "Garage", Meter{MeterType: "E-09", MeterName: "Garage"}.DisplayName())
}

func TestAPITimeRejectsUnknownFormats(t *testing.T) {
	var ts APITime
	require.NoError(t, json.Unmarshal([]byte(`"2026-08-27T13:00:00"`), &ts))
	assert.Equal(t, 13, ts.Hour())

	assert.Error(t, json.Unmarshal([]byte(`"27/08/2026 13:00"`), &ts))
}
