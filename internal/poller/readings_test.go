package poller

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/norddata-io/mittsev/internal/model"
	"github.com/norddata-io/mittsev/internal/sev"
)

func seriesAt(meterID string, points ...sev.SeriesReading) []sev.MeterSeries {
	return []sev.MeterSeries{{MeterID: sev.FlexString(meterID), Readings: points}}
}

func point(ts time.Time, value, cumulative float64) sev.SeriesReading {
	return sev.SeriesReading{
		TimeStamp:       sev.APITime{Time: ts},
		Reading:         sev.Number(value),
		CumulativeValue: sev.Number(cumulative),
	}
}

func readingByKind(t *testing.T, readings []model.Reading, kind string) model.Reading {
	t.Helper()
	for _, r := range readings {
		if r.Kind == kind {
			return r
		}
	}
	t.Fatalf("no reading of kind %s", kind)
	return model.Reading{}
}

func TestBuildReadingsDerivesSums(t *testing.T) {
	now := time.Date(2026, 8, 27, 14, 30, 0, 0, time.Local)
	yesterday := time.Date(2026, 8, 26, 23, 0, 0, 0, time.Local)
	thisMorning := time.Date(2026, 8, 27, 9, 0, 0, 0, time.Local)
	lastHour := time.Date(2026, 8, 27, 13, 0, 0, 0, time.Local)

	meters := []meterInfo{{InstID: 7, MeterID: "100", Display: "Main meter"}}

	kwh := seriesAt("100",
		point(yesterday, 2.0, 1000),
		point(thisMorning, 3.0, 1003),
		point(lastHour, 1.5, 1004.5),
	)

	readings := buildReadings(meters, kwh, nil, nil, now)
	require.Len(t, readings, 4)

	last := readingByKind(t, readings, model.KindKWH)
	assert.Equal(t, "mitt_sev_7_100_kwh", last.Name)
	assert.Equal(t, 1.5, last.Value)
	assert.Equal(t, "kWh", last.Unit)
	assert.Equal(t, "Main meter", last.Meter)
	assert.Equal(t, lastHour, last.Timestamp)

	today := readingByKind(t, readings, model.KindKWHToday)
	assert.Equal(t, 4.5, today.Value, "yesterday's reading excluded from today sum")

	month := readingByKind(t, readings, model.KindKWHMonth)
	assert.Equal(t, 6.5, month.Value)

	total := readingByKind(t, readings, model.KindKWHTotal)
	assert.Equal(t, 1004.5, total.Value)
}

func TestBuildReadingsIncludesEstimates(t *testing.T) {
	now := time.Date(2026, 8, 27, 14, 30, 0, 0, time.Local)
	lastHour := now.Add(-time.Hour)

	meters := []meterInfo{{InstID: 1, MeterID: "5", Display: "Green meter"}}

	kwh := seriesAt("5", point(lastHour, 1.0, 500))
	co2 := seriesAt("5", point(lastHour, 0.4, 0))
	cost := seriesAt("5", point(lastHour, 0.8, 0))

	readings := buildReadings(meters, kwh, co2, cost, now)
	require.Len(t, readings, 10)

	assert.Equal(t, 0.4, readingByKind(t, readings, model.KindCO2).Value)
	assert.Equal(t, "kg", readingByKind(t, readings, model.KindCO2).Unit)
	assert.Equal(t, 0.8, readingByKind(t, readings, model.KindCost).Value)
	assert.Equal(t, "kr", readingByKind(t, readings, model.KindCost).Unit)
}

func TestBuildReadingsSkipsMetersWithoutPrimarySeries(t *testing.T) {
	now := time.Now()
	meters := []meterInfo{
		{InstID: 1, MeterID: "5", Display: "Main meter"},
		{InstID: 1, MeterID: "6", Display: "Green meter"},
	}

	kwh := seriesAt("5", point(now.Add(-time.Hour), 1.0, 100))

	readings := buildReadings(meters, kwh, nil, nil, now)
	require.Len(t, readings, 4)
	for _, r := range readings {
		assert.Contains(t, r.Name, "_5_")
	}
}
