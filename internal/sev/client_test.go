package sev

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/norddata-io/mittsev/internal/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := &config.SEVConfig{
		BaseURL:  srv.URL,
		Timeout:  2 * time.Second,
		TokenTTL: 3 * time.Hour,
	}
	account := config.AccountConfig{Name: "test", UserName: "user@example.fo", APIKey: "secret"}

	return NewClient(testLogger(), cfg, account), srv
}

type fakeAPI struct {
	loginCalls atomic.Int64

	loginStatus  int
	seriesStatus int
	seriesBody   string
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/login_and_get_jwt_token":
		f.loginCalls.Add(1)

		var creds map[string]string
		json.NewDecoder(r.Body).Decode(&creds)
		if creds["user_name"] != "user@example.fo" || creds["password"] != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if f.loginStatus != 0 {
			w.WriteHeader(f.loginStatus)
			return
		}
		w.Write([]byte("test-jwt-token"))

	case "/get_available_meters":
		if !f.authorized(w, r) {
			return
		}
		w.Write([]byte(`[{"customer_name":"Customer","installations":[{"inst_id":7,"meters":[{"meter_id":100,"meter_name":"House","meter_type":"E-01"}]}]}]`))

	case "/hourly_kwh_usage", "/estimated_CO2", "/estimated_cost":
		if !f.authorized(w, r) {
			return
		}
		if f.seriesStatus != 0 {
			w.WriteHeader(f.seriesStatus)
			return
		}
		body := f.seriesBody
		if body == "" {
			body = `[{"meter_id":100,"readings":[{"time_stamp":"2026-08-27T13:00:00","reading":"1,5","cumulative_value":1004.5}]}]`
		}
		w.Write([]byte(body))

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeAPI) authorized(w http.ResponseWriter, r *http.Request) bool {
	if r.Header.Get("Authorization") != "Bearer test-jwt-token" {
		w.WriteHeader(http.StatusUnauthorized)
		return false
	}
	return true
}

func TestClientLoginAndFetchSeries(t *testing.T) {
	api := &fakeAPI{}
	client, _ := newTestClient(t, api)

	from := time.Date(2026, 8, 1, 0, 0, 0, 0, time.Local)
	to := time.Date(2026, 8, 28, 14, 0, 0, 0, time.Local)

	series, err := client.HourlyKWH(context.Background(), []string{"100"}, from, to)
	require.NoError(t, err)
	require.Len(t, series, 1)

	assert.Equal(t, FlexString("100"), series[0].MeterID)
	require.Len(t, series[0].Readings, 1)

	// comma decimal separator is normalised
	assert.Equal(t, Number(1.5), series[0].Readings[0].Reading)
	assert.Equal(t, Number(1004.5), series[0].Readings[0].CumulativeValue)
	assert.Equal(t,
		time.Date(2026, 8, 27, 13, 0, 0, 0, time.Local),
		series[0].Readings[0].TimeStamp.Time,
	)
}

func TestClientReusesToken(t *testing.T) {
	api := &fakeAPI{}
	client, _ := newTestClient(t, api)

	ctx := context.Background()
	_, err := client.Meters(ctx)
	require.NoError(t, err)
	_, err = client.HourlyKWH(ctx, []string{"100"}, time.Now().AddDate(0, 0, -1), time.Now())
	require.NoError(t, err)

	assert.Equal(t, int64(1), api.loginCalls.Load())
}

func TestClientLoginRejectedIsAuthError(t *testing.T) {
	api := &fakeAPI{loginStatus: http.StatusUnauthorized}
	client, _ := newTestClient(t, api)

	_, err := client.Meters(context.Background())
	require.Error(t, err)

	var authErr *AuthError
	assert.ErrorAs(t, err, &authErr)
	assert.Equal(t, KindAuth, Kind(err))
}

func TestClientExpiredTokenIsAuthErrorAndInvalidates(t *testing.T) {
	api := &fakeAPI{seriesStatus: http.StatusUnauthorized}
	client, _ := newTestClient(t, api)

	_, err := client.HourlyKWH(context.Background(), []string{"100"}, time.Now(), time.Now())
	require.Error(t, err)
	assert.Equal(t, KindAuth, Kind(err))

	// next call logs in again instead of reusing the rejected token
	api.seriesStatus = 0
	_, err = client.HourlyKWH(context.Background(), []string{"100"}, time.Now(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(2), api.loginCalls.Load())
}

func TestClientMalformedResponseIsParseError(t *testing.T) {
	api := &fakeAPI{seriesBody: `{"unexpected": "shape`}
	client, _ := newTestClient(t, api)

	_, err := client.HourlyKWH(context.Background(), []string{"100"}, time.Now(), time.Now())
	require.Error(t, err)

	var parseErr *ParseError
	assert.ErrorAs(t, err, &parseErr)
	assert.Equal(t, KindParse, Kind(err))
}

func TestClientEmptyBodyIsParseError(t *testing.T) {
	api := &fakeAPI{seriesBody: "  "}
	client, _ := newTestClient(t, api)

	_, err := client.HourlyKWH(context.Background(), []string{"100"}, time.Now(), time.Now())
	require.Error(t, err)
	assert.Equal(t, KindParse, Kind(err))
}

func TestClientUnreachableServerIsNetworkError(t *testing.T) {
	api := &fakeAPI{}
	client, srv := newTestClient(t, api)
	srv.Close()

	_, err := client.Meters(context.Background())
	require.Error(t, err)

	var netErr *NetworkError
	assert.ErrorAs(t, err, &netErr)
	assert.Equal(t, KindNetwork, Kind(err))
}

func TestClientServerErrorIsNetworkError(t *testing.T) {
	api := &fakeAPI{seriesStatus: http.StatusBadGateway}
	client, _ := newTestClient(t, api)

	_, err := client.HourlyKWH(context.Background(), []string{"100"}, time.Now(), time.Now())
	require.Error(t, err)
	assert.Equal(t, KindNetwork, Kind(err))
}

func TestClientMeters(t *testing.T) {
	api := &fakeAPI{}
	client, _ := newTestClient(t, api)

	customers, err := client.Meters(context.Background())
	require.NoError(t, err)
	require.Len(t, customers, 1)
	require.Len(t, customers[0].Installations, 1)
	require.Len(t, customers[0].Installations[0].Meters, 1)

	meter := customers[0].Installations[0].Meters[0]
	// numeric meter_id decodes as a string
	assert.Equal(t, FlexString("100"), meter.MeterID)
	assert.Equal(t, "Main meter", meter.DisplayName())
}
