package sev

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TimeLayout is the timestamp format the SEV API speaks, in local
// Faroese time with no zone designator.
const TimeLayout = "2006-01-02T15:04:05"

type Customer struct {
	CustomerName  string         `json:"customer_name"`
	Installations []Installation `json:"installations"`
}

type Installation struct {
	InstID int     `json:"inst_id"`
	Meters []Meter `json:"meters"`
}

type Meter struct {
	MeterID   FlexString `json:"meter_id"`
	MeterName string     `json:"meter_name"`
	MeterType string     `json:"meter_type"`
}

// DisplayName maps the SEV meter type codes to readable names.
func (m Meter) DisplayName() string {
	switch m.MeterType {
	case "E-01":
		return "Main meter"
	case "E-02":
		return "Green meter"
	default:
		return m.MeterName
	}
}

type MeterSeries struct {
	MeterID  FlexString      `json:"meter_id"`
	Readings []SeriesReading `json:"readings"`
}

type SeriesReading struct {
	TimeStamp       APITime `json:"time_stamp"`
	Reading         Number  `json:"reading"`
	CumulativeValue Number  `json:"cumulative_value"`
}

// FlexString decodes a JSON string or number into a string.
// Meter IDs have been observed in both forms.
type FlexString string

func (s *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = FlexString(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*s = FlexString(n.String())
	return nil
}

// Number decodes a JSON number or a string, accepting the comma
// decimal separator the API occasionally emits.
type Number float64

func (n *Number) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if string(data) == "null" {
		*n = 0
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		f, err := strconv.ParseFloat(strings.ReplaceAll(v, ",", "."), 64)
		if err != nil {
			return fmt.Errorf("invalid numeric value %q: %w", v, err)
		}
		*n = Number(f)
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*n = Number(f)
	return nil
}

// APITime decodes the API's zone-less timestamps as local time.
type APITime struct {
	time.Time
}

func (t *APITime) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := time.ParseInLocation(TimeLayout, s, time.Local)
	if err != nil {
		return fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	t.Time = parsed
	return nil
}

func (t APITime) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Format(TimeLayout))
}
