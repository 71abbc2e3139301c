package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Envelope is one poll cycle's worth of readings for a single account.
type Envelope struct {
	ID        string    `json:"id"`
	Account   string    `json:"account"`
	Timestamp time.Time `json:"timestamp"`
	Readings  []Reading `json:"readings"`
}

func NewEnvelope(account string, readings []Reading) *Envelope {
	return &Envelope{
		ID:        uuid.New().String(),
		Account:   account,
		Timestamp: time.Now().UTC(),
		Readings:  readings,
	}
}

func (e *Envelope) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

func EnvelopeFromJSON(data []byte) (*Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}
