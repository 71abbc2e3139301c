package sev

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/norddata-io/mittsev/internal/config"
)

const (
	endpointLogin  = "login_and_get_jwt_token"
	endpointMeters = "get_available_meters"
	endpointKWH    = "hourly_kwh_usage"
	endpointCO2    = "estimated_CO2"
	endpointCost   = "estimated_cost"
)

// Client talks to the Mitt Sev customer REST API for one account.
// The JWT obtained at login is cached and reused until tokenTTL elapses.
type Client struct {
	log      *slog.Logger
	baseURL  string
	userName string
	apiKey   string
	tokenTTL time.Duration
	client   *http.Client

	mu        sync.Mutex
	token     string
	tokenTime time.Time
}

func NewClient(log *slog.Logger, cfg *config.SEVConfig, account config.AccountConfig) *Client {
	return &Client{
		log:      log,
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		userName: account.UserName,
		apiKey:   account.APIKey,
		tokenTTL: cfg.TokenTTL,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

func (c *Client) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

// Meters lists the customers, installations and meters visible to the account.
func (c *Client) Meters(ctx context.Context) ([]Customer, error) {
	var customers []Customer
	if err := c.post(ctx, endpointMeters, map[string]any{}, &customers); err != nil {
		return nil, err
	}
	return customers, nil
}

// HourlyKWH returns the hourly consumption series for the given meters
// over [from, to).
func (c *Client) HourlyKWH(ctx context.Context, meterIDs []string, from, to time.Time) ([]MeterSeries, error) {
	return c.series(ctx, endpointKWH, meterIDs, from, to)
}

// EstimatedCO2 returns the estimated CO2 series for the given meters.
func (c *Client) EstimatedCO2(ctx context.Context, meterIDs []string, from, to time.Time) ([]MeterSeries, error) {
	return c.series(ctx, endpointCO2, meterIDs, from, to)
}

// EstimatedCost returns the estimated cost series for the given meters.
func (c *Client) EstimatedCost(ctx context.Context, meterIDs []string, from, to time.Time) ([]MeterSeries, error) {
	return c.series(ctx, endpointCost, meterIDs, from, to)
}

func (c *Client) series(ctx context.Context, endpoint string, meterIDs []string, from, to time.Time) ([]MeterSeries, error) {
	body := map[string]any{
		"meters":    meterIDs,
		"from_date": from.Format(TimeLayout),
		"to_date":   to.Format(TimeLayout),
	}

	var series []MeterSeries
	if err := c.post(ctx, endpoint, body, &series); err != nil {
		return nil, err
	}
	return series, nil
}

func (c *Client) post(ctx context.Context, endpoint string, body, out any) error {
	token, err := c.ensureToken(ctx)
	if err != nil {
		return err
	}

	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}

	url := fmt.Sprintf("%s/%s", c.baseURL, endpoint)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.client.Do(req)
	if err != nil {
		return &NetworkError{Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		// Token may simply have expired server-side; drop it so the
		// next poll logs in again.
		c.invalidateToken()
		return &AuthError{Status: resp.StatusCode}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return &NetworkError{
			Endpoint: endpoint,
			Err:      fmt.Errorf("unexpected status code: %d", resp.StatusCode),
		}
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &NetworkError{Endpoint: endpoint, Err: err}
	}

	if len(bytes.TrimSpace(respBody)) == 0 {
		return &ParseError{Endpoint: endpoint, Err: fmt.Errorf("empty response body")}
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return &ParseError{Endpoint: endpoint, Err: err}
	}

	return nil
}

func (c *Client) ensureToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Since(c.tokenTime) < c.tokenTTL {
		return c.token, nil
	}

	token, err := c.login(ctx)
	if err != nil {
		return "", err
	}

	c.token = token
	c.tokenTime = time.Now()
	return token, nil
}

func (c *Client) invalidateToken() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}

// login exchanges the account credentials for a JWT. The API returns the
// token as a raw text body, not JSON.
func (c *Client) login(ctx context.Context) (string, error) {
	body, err := json.Marshal(map[string]string{
		"user_name": c.userName,
		"password":  c.apiKey,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal login body: %w", err)
	}

	url := fmt.Sprintf("%s/%s", c.baseURL, endpointLogin)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", &NetworkError{Endpoint: endpointLogin, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", &AuthError{Status: resp.StatusCode}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return "", &NetworkError{
			Endpoint: endpointLogin,
			Err:      fmt.Errorf("unexpected status code: %d", resp.StatusCode),
		}
	}

	tokenBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &NetworkError{Endpoint: endpointLogin, Err: err}
	}

	token := string(bytes.TrimSpace(tokenBytes))
	if token == "" {
		return "", &AuthError{
			Status: resp.StatusCode,
			Err:    fmt.Errorf("login succeeded but returned no token"),
		}
	}

	c.log.Debug("obtained new token", slog.String("user", c.userName))
	return token, nil
}
