package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/norddata-io/mittsev/internal/model"
)

// Sink receives the readings produced by a poll cycle. It owns display,
// history and persistence of the latest value per sensor name.
type Sink interface {
	Publish(ctx context.Context, envelope *model.Envelope) error
	Health(ctx context.Context) error
}

// LogSink logs readings instead of publishing them (for dry-run mode)
type LogSink struct {
	log *slog.Logger
}

func NewLogSink(log *slog.Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Publish(ctx context.Context, envelope *model.Envelope) error {
	data, err := json.MarshalIndent(envelope, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	s.log.Info("PUBLISH",
		slog.String("account", envelope.Account),
		slog.Int("readings_count", len(envelope.Readings)),
		slog.String("payload", string(data)),
	)

	return nil
}

func (s *LogSink) Health(ctx context.Context) error {
	return nil
}

var _ Sink = (*LogSink)(nil)
