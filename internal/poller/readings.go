package poller

import (
	"fmt"
	"time"

	"github.com/norddata-io/mittsev/internal/model"
	"github.com/norddata-io/mittsev/internal/sev"
)

// buildReadings derives the per-meter sensor readings from the fetched
// series: the latest hourly value, the sum since local midnight, the
// month-to-date sum, and for consumption the cumulative meter total.
// Meters absent from the kwh series are skipped; co2/cost series may be
// nil without failing the cycle.
func buildReadings(meters []meterInfo, kwh, co2, cost []sev.MeterSeries, now time.Time) []model.Reading {
	kwhByMeter := seriesByMeter(kwh)
	co2ByMeter := seriesByMeter(co2)
	costByMeter := seriesByMeter(cost)

	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	var readings []model.Reading
	for _, meter := range meters {
		kwhSeries, ok := kwhByMeter[meter.MeterID]
		if !ok || len(kwhSeries.Readings) == 0 {
			continue
		}

		readings = append(readings, deriveSeries(meter, kwhSeries, model.KindKWH, model.KindKWHToday, model.KindKWHMonth, midnight)...)

		last := kwhSeries.Readings[len(kwhSeries.Readings)-1]
		readings = append(readings, newReading(meter, model.KindKWHTotal, float64(last.CumulativeValue), last.TimeStamp.Time))

		if s, ok := co2ByMeter[meter.MeterID]; ok && len(s.Readings) > 0 {
			readings = append(readings, deriveSeries(meter, s, model.KindCO2, model.KindCO2Today, model.KindCO2Month, midnight)...)
		}

		if s, ok := costByMeter[meter.MeterID]; ok && len(s.Readings) > 0 {
			readings = append(readings, deriveSeries(meter, s, model.KindCost, model.KindCostToday, model.KindCostMonth, midnight)...)
		}
	}

	return readings
}

func deriveSeries(meter meterInfo, series sev.MeterSeries, kindLast, kindToday, kindMonth string, midnight time.Time) []model.Reading {
	last := series.Readings[len(series.Readings)-1]

	var sumToday, sumMonth float64
	for _, r := range series.Readings {
		sumMonth += float64(r.Reading)
		if !r.TimeStamp.Before(midnight) {
			sumToday += float64(r.Reading)
		}
	}

	return []model.Reading{
		newReading(meter, kindLast, float64(last.Reading), last.TimeStamp.Time),
		newReading(meter, kindToday, sumToday, last.TimeStamp.Time),
		newReading(meter, kindMonth, sumMonth, last.TimeStamp.Time),
	}
}

func newReading(meter meterInfo, kind string, value float64, ts time.Time) model.Reading {
	return model.Reading{
		Name:      fmt.Sprintf("mitt_sev_%d_%s_%s", meter.InstID, meter.MeterID, kind),
		Value:     value,
		Unit:      model.SensorTypes[kind].Unit,
		Timestamp: ts,
		Kind:      kind,
		Meter:     meter.Display,
	}
}

func seriesByMeter(series []sev.MeterSeries) map[string]sev.MeterSeries {
	m := make(map[string]sev.MeterSeries, len(series))
	for _, s := range series {
		m[string(s.MeterID)] = s
	}
	return m
}
