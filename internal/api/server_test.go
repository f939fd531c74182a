package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FigureTechnologies/digital-currency-consortium-sub000/internal/config"
	"github.com/FigureTechnologies/digital-currency-consortium-sub000/internal/logging"
)

type fakeStatusReader struct {
	height  int64
	count   int64
	pingErr error
}

func (f *fakeStatusReader) BookmarkHeight(ctx context.Context) (int64, error) { return f.height, nil }
func (f *fakeStatusReader) MovementCount(ctx context.Context) (int64, error)  { return f.count, nil }
func (f *fakeStatusReader) Ping(ctx context.Context) error                    { return f.pingErr }

func newTestServer(status StatusReader) *Server {
	log := logging.NewWithOutput(logging.LevelError, io.Discard)
	return NewServer(&config.ServerConfig{Host: "127.0.0.1", Port: "0"}, nil, nil, nil, status, log)
}

func TestHealthzHealthy(t *testing.T) {
	s := newTestServer(&fakeStatusReader{})

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}

func TestHealthzDatabaseDown(t *testing.T) {
	s := newTestServer(&fakeStatusReader{pingErr: errors.New("connection refused")})

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestStatusReportsStream(t *testing.T) {
	s := newTestServer(&fakeStatusReader{height: 12345, count: 67})

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest("GET", "/status", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "12345")
	assert.Contains(t, rec.Body.String(), "67")
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(&fakeStatusReader{})

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGetRequestRejectsBadID(t *testing.T) {
	s := newTestServer(&fakeStatusReader{})

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/requests/not-a-uuid", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid request id")
}

func TestParseJSONBodyRejectsUnknownFields(t *testing.T) {
	var req amountRequest
	r := httptest.NewRequest("POST", "/api/v1/mints", strings.NewReader(`{"address":"pb1a","coinAmount":"1","surprise":true}`))
	err := parseJSONBody(r, &req)
	assert.Error(t, err)
}

func TestParseJSONBodyDecodesAmounts(t *testing.T) {
	var req amountRequest
	r := httptest.NewRequest("POST", "/api/v1/mints", strings.NewReader(`{"address":"pb1a","coinAmount":"10.50","fiatAmount":"10.50"}`))
	require.NoError(t, parseJSONBody(r, &req))
	assert.Equal(t, "pb1a", req.Address)
	assert.True(t, req.CoinAmount.Equal(decimal.RequireFromString("10.50")))
	assert.True(t, req.FiatAmount.Equal(decimal.RequireFromString("10.50")))
}

func TestRecoveryMiddlewareContainsPanics(t *testing.T) {
	s := newTestServer(&fakeStatusReader{})
	s.router.HandleFunc("/boom", func(w http.ResponseWriter, r *http.Request) {
		panic("handler fault")
	}).Methods("GET")

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest("GET", "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "internal server error")
}
