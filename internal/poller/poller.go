package poller

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/norddata-io/mittsev/internal/buffer"
	"github.com/norddata-io/mittsev/internal/config"
	"github.com/norddata-io/mittsev/internal/lib/logger/sl"
	"github.com/norddata-io/mittsev/internal/model"
	"github.com/norddata-io/mittsev/internal/sev"
	"github.com/norddata-io/mittsev/internal/sink"
)

// APIClient is the slice of the SEV client the poller depends on,
// abstracted so tests can inject a fake.
type APIClient interface {
	Meters(ctx context.Context) ([]sev.Customer, error)
	HourlyKWH(ctx context.Context, meterIDs []string, from, to time.Time) ([]sev.MeterSeries, error)
	EstimatedCO2(ctx context.Context, meterIDs []string, from, to time.Time) ([]sev.MeterSeries, error)
	EstimatedCost(ctx context.Context, meterIDs []string, from, to time.Time) ([]sev.MeterSeries, error)
	Close() error
}

// PollState is the failure bookkeeping for one account's poll cycle.
type PollState struct {
	LastSuccess         time.Time
	LastError           string
	ConsecutiveFailures int
}

// MeteringPoller runs the repeating fetch-parse-publish cycle for a
// single account. Polls never overlap: a tick that fires while the
// previous poll is still running is skipped.
type MeteringPoller struct {
	log           *slog.Logger
	account       string
	client        APIClient
	sink          sink.Sink
	buffer        buffer.Buffer
	interval      time.Duration
	timeout       time.Duration
	bufferEnabled bool

	metersMu sync.Mutex
	meters   []meterInfo

	stateMu sync.Mutex
	state   PollState

	inFlight atomic.Bool
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

type meterInfo struct {
	InstID  int
	MeterID string
	Display string
}

func New(
	log *slog.Logger,
	account config.AccountConfig,
	client APIClient,
	s sink.Sink,
	buf buffer.Buffer,
	polling config.PollingConfig,
	bufferEnabled bool,
) *MeteringPoller {
	return &MeteringPoller{
		log:           log.With(slog.String("account", account.Name)),
		account:       account.Name,
		client:        client,
		sink:          s,
		buffer:        buf,
		interval:      polling.Interval,
		timeout:       polling.Timeout,
		bufferEnabled: bufferEnabled && buf != nil,
		stopCh:        make(chan struct{}),
	}
}

// Start begins the periodic cycle: an immediate first poll, then one per
// interval until Stop is called or ctx is cancelled.
func (p *MeteringPoller) Start(ctx context.Context) {
	p.log.Info("starting metering poller",
		slog.Duration("interval", p.interval),
	)

	p.wg.Add(1)
	go p.run(ctx)
}

func (p *MeteringPoller) run(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.Poll(ctx)

	for {
		select {
		case <-ctx.Done():
			p.log.Info("context cancelled, stopping poller")
			return
		case <-p.stopCh:
			p.log.Info("stop signal received, stopping poller")
			return
		case <-ticker.C:
			p.Poll(ctx)
		}
	}
}

// Stop cancels future polls. It is idempotent and returns once the poll
// loop has exited; an in-flight fetch is allowed to finish and its
// result is discarded by the sink never being reached past stop.
func (p *MeteringPoller) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopCh)
	})
	p.wg.Wait()
	if err := p.client.Close(); err != nil {
		p.log.Error("failed to close client", sl.Err(err))
	}
}

// State returns a snapshot of the poll bookkeeping.
func (p *MeteringPoller) State() PollState {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()
	return p.state
}

// Poll performs one fetch-parse-publish cycle. All errors are absorbed
// into PollState here; nothing propagates to the scheduler. A call made
// while a previous poll is still running returns immediately.
func (p *MeteringPoller) Poll(ctx context.Context) {
	if !p.inFlight.CompareAndSwap(false, true) {
		p.log.Debug("previous poll still running, skipping tick")
		return
	}
	defer p.inFlight.Store(false)

	pollCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	readings, err := p.fetch(pollCtx)
	if err != nil {
		p.recordFailure(err)
		return
	}

	envelope := model.NewEnvelope(p.account, readings)

	if err := p.sink.Publish(pollCtx, envelope); err != nil {
		p.log.Error("failed to publish readings", sl.Err(err))

		if p.bufferEnabled {
			if bufErr := p.buffer.Store(pollCtx, envelope); bufErr != nil {
				p.log.Error("failed to buffer readings", sl.Err(bufErr))
			} else {
				p.log.Info("readings buffered for later retry",
					slog.Int("count", len(envelope.Readings)),
				)
			}
		}
	} else {
		p.log.Debug("readings published",
			slog.Int("count", len(envelope.Readings)),
		)
	}

	p.recordSuccess()
}

func (p *MeteringPoller) fetch(ctx context.Context) ([]model.Reading, error) {
	meters, err := p.ensureMeters(ctx)
	if err != nil {
		return nil, err
	}

	meterIDs := make([]string, 0, len(meters))
	for _, m := range meters {
		meterIDs = append(meterIDs, m.MeterID)
	}

	now := time.Now()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	tomorrow := now.AddDate(0, 0, 1)

	kwh, err := p.client.HourlyKWH(ctx, meterIDs, monthStart, tomorrow)
	if err != nil {
		return nil, err
	}
	if !hasReadings(kwh) {
		return nil, &sev.ParseError{
			Endpoint: "hourly_kwh_usage",
			Err:      fmt.Errorf("no readings returned for %d meters", len(meterIDs)),
		}
	}

	// CO2 and cost are derived estimates; a failure there must not
	// lose the primary consumption readings.
	co2, err := p.client.EstimatedCO2(ctx, meterIDs, monthStart, tomorrow)
	if err != nil {
		p.log.Warn("co2 estimate unavailable", sl.Err(err))
		co2 = nil
	}

	cost, err := p.client.EstimatedCost(ctx, meterIDs, monthStart, tomorrow)
	if err != nil {
		p.log.Warn("cost estimate unavailable", sl.Err(err))
		cost = nil
	}

	return buildReadings(meters, kwh, co2, cost, now), nil
}

// ensureMeters discovers the account's meters on first use and caches
// them for subsequent polls. A restart picks up newly added meters.
func (p *MeteringPoller) ensureMeters(ctx context.Context) ([]meterInfo, error) {
	p.metersMu.Lock()
	defer p.metersMu.Unlock()

	if len(p.meters) > 0 {
		return p.meters, nil
	}

	customers, err := p.client.Meters(ctx)
	if err != nil {
		return nil, err
	}

	var meters []meterInfo
	for _, customer := range customers {
		for _, inst := range customer.Installations {
			for _, meter := range inst.Meters {
				meters = append(meters, meterInfo{
					InstID:  inst.InstID,
					MeterID: string(meter.MeterID),
					Display: meter.DisplayName(),
				})
				p.log.Info("discovered meter",
					slog.String("customer", customer.CustomerName),
					slog.Int("inst_id", inst.InstID),
					slog.String("meter_id", string(meter.MeterID)),
					slog.String("meter_name", meter.DisplayName()),
				)
			}
		}
	}

	if len(meters) == 0 {
		return nil, &sev.ParseError{
			Endpoint: "get_available_meters",
			Err:      fmt.Errorf("no installations found"),
		}
	}

	p.meters = meters
	return meters, nil
}

func (p *MeteringPoller) recordSuccess() {
	p.stateMu.Lock()
	p.state.LastSuccess = time.Now()
	p.state.LastError = ""
	p.state.ConsecutiveFailures = 0
	p.stateMu.Unlock()
}

func (p *MeteringPoller) recordFailure(err error) {
	kind := sev.Kind(err)

	p.stateMu.Lock()
	p.state.LastError = kind
	p.state.ConsecutiveFailures++
	failures := p.state.ConsecutiveFailures
	p.stateMu.Unlock()

	p.log.Error("poll cycle failed",
		slog.String("kind", kind),
		slog.Int("consecutive_failures", failures),
		sl.Err(err),
	)
}

func hasReadings(series []sev.MeterSeries) bool {
	for _, s := range series {
		if len(s.Readings) > 0 {
			return true
		}
	}
	return false
}
