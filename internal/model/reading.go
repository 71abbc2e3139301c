package model

import "time"

// Reading is a single named sensor value derived from one poll cycle.
// Kind selects the entry in SensorTypes; Meter is the display name of
// the meter the value belongs to.
type Reading struct {
	Name      string    `json:"name"`
	Value     float64   `json:"value"`
	Unit      string    `json:"unit,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Kind      string    `json:"kind,omitempty"`
	Meter     string    `json:"meter,omitempty"`
}
