package httpadapter_test

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/geohash-dispatch/internal/adapter/httpadapter"
	"github.com/couchcryptid/geohash-dispatch/internal/coordinator"
	"github.com/couchcryptid/geohash-dispatch/internal/domain"
)

type mockReadiness struct {
	err error
}

func (m *mockReadiness) CheckReadiness(_ context.Context) error { return m.err }

// mockDispatcher serves a fixed outcome and records alarm toggles.
type mockDispatcher struct {
	outcome domain.FetchOutcome
	value   string
	alarm   bool
}

func (m *mockDispatcher) ManualDestination(_ context.Context, date time.Time, g *domain.Graticule) (domain.Destination, domain.FetchOutcome) {
	if m.outcome.Kind != domain.OutcomeSuccess {
		return domain.Destination{}, m.outcome
	}
	effective := domain.EffectiveDate(date, g)
	dest := domain.ComputeDestination(effective, m.value, g)
	dest.Date = time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	return dest, m.outcome
}

func (m *mockDispatcher) Snapshot() coordinator.Status {
	return coordinator.Status{State: "done", AlarmEnabled: m.alarm}
}

func (m *mockDispatcher) SetAlarm(enabled bool) { m.alarm = enabled }
func (m *mockDispatcher) AlarmEnabled() bool    { return m.alarm }

func newTestServer(dispatch *mockDispatcher, readyErr error) *httpadapter.Server {
	return httpadapter.NewServer(":0", dispatch, &mockReadiness{err: readyErr}, slog.New(slog.DiscardHandler))
}

func successDispatcher() *mockDispatcher {
	return &mockDispatcher{
		outcome: domain.FetchOutcome{Kind: domain.OutcomeSuccess},
		value:   "10458.68",
		alarm:   true,
	}
}

func doRequest(srv *httpadapter.Server, method, target, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	srv.ServeHTTP(rec, req)
	return rec
}

func TestHealthzReturns200(t *testing.T) {
	srv := newTestServer(successDispatcher(), nil)
	rec := doRequest(srv, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyzReturns503WhenNotReady(t *testing.T) {
	srv := newTestServer(successDispatcher(), fmt.Errorf("coordinator not started"))
	rec := doRequest(srv, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(successDispatcher(), nil)
	rec := doRequest(srv, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestDestination_Graticule(t *testing.T) {
	srv := newTestServer(successDispatcher(), nil)
	rec := doRequest(srv, http.MethodGet, "/v1/destination?date=2005-05-26&lat=37.8&lon=-122.4", "")

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Date      string  `json:"date"`
		Graticule string  `json:"graticule"`
		Global    bool    `json:"global"`
		Lat       float64 `json:"lat"`
		Lon       float64 `json:"lon"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "2005-05-26", body.Date)
	assert.Equal(t, "37,-122", body.Graticule)
	assert.False(t, body.Global)
	assert.InDelta(t, 37.857713, body.Lat, 1e-6)
	assert.InDelta(t, -122.544543, body.Lon, 1e-6)
}

func TestDestination_Global(t *testing.T) {
	srv := newTestServer(successDispatcher(), nil)
	rec := doRequest(srv, http.MethodGet, "/v1/destination?date=2005-05-26&global=true", "")

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Global bool `json:"global"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Global)
}

func TestDestination_BadRequests(t *testing.T) {
	srv := newTestServer(successDispatcher(), nil)

	for name, target := range map[string]string{
		"missing date":   "/v1/destination?lat=37.8&lon=-122.4",
		"bad date":       "/v1/destination?date=yesterday&lat=37.8&lon=-122.4",
		"missing coords": "/v1/destination?date=2005-05-26",
		"polar lat":      "/v1/destination?date=2005-05-26&lat=90.5&lon=0",
	} {
		t.Run(name, func(t *testing.T) {
			rec := doRequest(srv, http.MethodGet, target, "")
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestDestination_OutcomeStatusCodes(t *testing.T) {
	cases := []struct {
		kind domain.FetchOutcomeKind
		want int
	}{
		{domain.OutcomeNotPosted, http.StatusNotFound},
		{domain.OutcomeMalformed, http.StatusBadGateway},
		{domain.OutcomeNoConnection, http.StatusServiceUnavailable},
		{domain.OutcomeTransient, http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.kind.String(), func(t *testing.T) {
			srv := newTestServer(&mockDispatcher{outcome: domain.FetchOutcome{Kind: tc.kind}}, nil)
			rec := doRequest(srv, http.MethodGet, "/v1/destination?date=2005-05-26&global=true", "")
			assert.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestStatus(t *testing.T) {
	srv := newTestServer(successDispatcher(), nil)
	rec := doRequest(srv, http.MethodGet, "/v1/status", "")

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		State        string `json:"state"`
		AlarmEnabled bool   `json:"alarm_enabled"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "done", body.State)
	assert.True(t, body.AlarmEnabled)
}

func TestAlarm_Toggle(t *testing.T) {
	d := successDispatcher()
	srv := newTestServer(d, nil)

	rec := doRequest(srv, http.MethodPost, "/v1/alarm", `{"enabled": false}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, d.alarm)

	rec = doRequest(srv, http.MethodPost, "/v1/alarm", `{"enabled": true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, d.alarm)
}

func TestAlarm_BadBody(t *testing.T) {
	srv := newTestServer(successDispatcher(), nil)

	rec := doRequest(srv, http.MethodPost, "/v1/alarm", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(srv, http.MethodPost, "/v1/alarm", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
