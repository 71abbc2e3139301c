package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/norddata-io/mittsev/internal/config"
	"github.com/norddata-io/mittsev/internal/lib/logger/sl"
	"github.com/norddata-io/mittsev/internal/model"
)

// entityState is the body of POST /api/states/{entity_id}.
type entityState struct {
	State      string           `json:"state"`
	Attributes entityAttributes `json:"attributes"`
}

type entityAttributes struct {
	FriendlyName      string `json:"friendly_name,omitempty"`
	UnitOfMeasurement string `json:"unit_of_measurement,omitempty"`
	DeviceClass       string `json:"device_class,omitempty"`
	StateClass        string `json:"state_class,omitempty"`
	Icon              string `json:"icon,omitempty"`
	Attribution       string `json:"attribution,omitempty"`
	Date              string `json:"date,omitempty"`
}

const attribution = "Data provided by api.sev.fo"

// HomeAssistantSink pushes readings into a Home Assistant instance as
// sensor entity states over its REST API.
type HomeAssistantSink struct {
	log     *slog.Logger
	baseURL string
	token   string
	client  *http.Client
	retry   RetryPolicy
}

type RetryPolicy struct {
	MaxAttempts int
	Backoff     *ExponentialBackoff
}

func NewHomeAssistantSink(log *slog.Logger, cfg *config.HomeAssistantConfig) *HomeAssistantSink {
	return &HomeAssistantSink{
		log:     log,
		baseURL: strings.TrimRight(cfg.URL, "/"),
		token:   cfg.Token,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		retry: RetryPolicy{
			MaxAttempts: cfg.Retry.MaxAttempts,
			Backoff:     NewExponentialBackoff(cfg.Retry.InitialDelay, cfg.Retry.MaxDelay),
		},
	}
}

func (s *HomeAssistantSink) Publish(ctx context.Context, envelope *model.Envelope) error {
	for _, reading := range envelope.Readings {
		if err := s.publishReading(ctx, reading); err != nil {
			return fmt.Errorf("failed to publish %s: %w", reading.Name, err)
		}
	}
	return nil
}

func (s *HomeAssistantSink) publishReading(ctx context.Context, reading model.Reading) error {
	state := entityState{
		State: strconv.FormatFloat(reading.Value, 'f', -1, 64),
		Attributes: entityAttributes{
			UnitOfMeasurement: reading.Unit,
			Attribution:       attribution,
			Date:              reading.Timestamp.Format(time.RFC3339),
		},
	}

	if st, ok := model.SensorTypes[reading.Kind]; ok {
		state.Attributes.FriendlyName = reading.Meter + ", " + st.Name
		state.Attributes.DeviceClass = st.DeviceClass
		state.Attributes.StateClass = st.StateClass
		state.Attributes.Icon = st.Icon
	}

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal entity state: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < s.retry.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.retry.Backoff.NextDelay(attempt - 1)):
			}
		}

		err := s.postState(ctx, reading.Name, data)
		if err == nil {
			return nil
		}

		lastErr = err
		s.log.Warn("publish attempt failed",
			slog.String("sensor", reading.Name),
			slog.Int("attempt", attempt+1),
			slog.Int("max_attempts", s.retry.MaxAttempts),
			sl.Err(err),
		)
	}

	return fmt.Errorf("all %d attempts failed: %w", s.retry.MaxAttempts, lastErr)
}

func (s *HomeAssistantSink) postState(ctx context.Context, name string, body []byte) error {
	url := fmt.Sprintf("%s/api/states/sensor.%s", s.baseURL, name)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.token)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	respBody, _ := io.ReadAll(resp.Body)
	return fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, string(respBody))
}

func (s *HomeAssistantSink) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/api/", nil)
	if err != nil {
		return fmt.Errorf("failed to create health request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+s.token)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("home assistant unhealthy: status %d", resp.StatusCode)
	}

	return nil
}

var _ Sink = (*HomeAssistantSink)(nil)
