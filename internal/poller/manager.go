package poller

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/norddata-io/mittsev/internal/buffer"
	"github.com/norddata-io/mittsev/internal/config"
	"github.com/norddata-io/mittsev/internal/lib/logger/sl"
	"github.com/norddata-io/mittsev/internal/sink"
)

const bufferRetryInterval = 30 * time.Second

// Manager owns one MeteringPoller per configured account. Accounts are
// independent: each has its own timer and client, and only the
// concurrency-safe sink and buffer are shared.
type Manager struct {
	log           *slog.Logger
	cfg           *config.Config
	pollers       []*MeteringPoller
	sink          sink.Sink
	buffer        buffer.Buffer
	stopCh        chan struct{}
	stopOnce      sync.Once
	wg            sync.WaitGroup
	bufferEnabled bool
}

func NewManager(
	log *slog.Logger,
	cfg *config.Config,
	pollers []*MeteringPoller,
	s sink.Sink,
	buf buffer.Buffer,
) *Manager {
	return &Manager{
		log:           log,
		cfg:           cfg,
		pollers:       pollers,
		sink:          s,
		buffer:        buf,
		stopCh:        make(chan struct{}),
		bufferEnabled: cfg.Buffer.Enabled && buf != nil,
	}
}

func (m *Manager) Start(ctx context.Context) {
	m.log.Info("starting poller manager",
		slog.Int("accounts", len(m.pollers)),
		slog.Duration("interval", m.cfg.Polling.Interval),
	)

	m.wg.Add(1)
	go m.retryBufferedReadings(ctx)

	for _, p := range m.pollers {
		p.Start(ctx)
	}
}

func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
	})

	for _, p := range m.pollers {
		p.Stop()
	}

	m.wg.Wait()
}

// Pollers exposes the managed pollers for health reporting.
func (m *Manager) Pollers() []*MeteringPoller {
	return m.pollers
}

func (m *Manager) retryBufferedReadings(ctx context.Context) {
	defer m.wg.Done()

	if !m.bufferEnabled {
		return
	}

	ticker := time.NewTicker(bufferRetryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.processBufferedReadings(ctx)
		}
	}
}

func (m *Manager) processBufferedReadings(ctx context.Context) {
	pending, err := m.buffer.GetPending(ctx, 100)
	if err != nil {
		m.log.Error("failed to get pending readings from buffer", sl.Err(err))
		return
	}

	if len(pending) == 0 {
		return
	}

	m.log.Info("processing buffered readings", slog.Int("count", len(pending)))

	var sentIDs []string
	for _, envelope := range pending {
		if err := m.sink.Publish(ctx, envelope); err != nil {
			m.log.Debug("failed to publish buffered readings",
				slog.String("id", envelope.ID),
				sl.Err(err),
			)
			break
		}
		sentIDs = append(sentIDs, envelope.ID)
	}

	if len(sentIDs) > 0 {
		if err := m.buffer.MarkSent(ctx, sentIDs); err != nil {
			m.log.Error("failed to mark buffered readings as sent", sl.Err(err))
		} else {
			m.log.Info("buffered readings published", slog.Int("count", len(sentIDs)))
		}
	}

	if err := m.buffer.Cleanup(ctx, m.cfg.Buffer.MaxAge); err != nil {
		m.log.Error("failed to cleanup old buffered readings", sl.Err(err))
	}
}
