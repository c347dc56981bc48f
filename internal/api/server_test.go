package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/talgya/psexplorer/internal/aggregate"
	"github.com/talgya/psexplorer/internal/diagram"
	"github.com/talgya/psexplorer/internal/engine"
	"github.com/talgya/psexplorer/internal/expr"
	"github.com/talgya/psexplorer/internal/isopleth"
	"github.com/talgya/psexplorer/internal/solver"
	"github.com/talgya/psexplorer/internal/synthetic"
)

func newServer(t *testing.T, grid bool) *Server {
	t.Helper()
	syn := synthetic.New(synthetic.DefaultConfig())
	sess, err := engine.NewSession(synthetic.NewBoundary(syn, false), solver.NewChannel(syn, syn), engine.Options{})
	require.NoError(t, err)
	if grid {
		_, err = sess.ComputeGrid(context.Background(), 11, 11)
		require.NoError(t, err)
	}
	return &Server{
		Session:   sess,
		Collector: aggregate.NewCollector(sess, expr.New()),
		RunID:     "run-1",
		Defaults:  defaultOptions(),
	}
}

func defaultOptions() isopleth.Options {
	return isopleth.Options{Refine: 1, N: 5, Sources: diagram.SourceAll}
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func TestStatus(t *testing.T) {
	h := newServer(t, true).Handler()
	rec := get(t, h, "/api/v1/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	decode(t, rec, &body)
	require.Equal(t, "run-1", body["run_id"])
	require.Equal(t, true, body["gridded"])
	require.Equal(t, 4.0, body["fields"])
	require.Equal(t, 121.0, body["total"])
	require.Equal(t, 11.0, body["num_t"])
}

func TestFields(t *testing.T) {
	h := newServer(t, true).Handler()
	var body []map[string]any
	decode(t, get(t, h, "/api/v1/fields"), &body)
	require.Len(t, body, 4)
	require.Equal(t, "H2O chl g q", body[0]["key"])
	// 5 × 5 interior points per quadrant.
	require.Equal(t, 25.0, body[0]["points"])
}

func TestLocate(t *testing.T) {
	h := newServer(t, false).Handler()

	var body map[string]any
	decode(t, get(t, h, "/api/v1/locate?t=450&p=3"), &body)
	require.Equal(t, true, body["found"])
	require.Equal(t, "H2O chl g q", body["key"])

	decode(t, get(t, h, "/api/v1/locate?t=600&p=3"), &body)
	require.Equal(t, false, body["found"])

	require.Equal(t, http.StatusBadRequest, get(t, h, "/api/v1/locate?t=x&p=3").Code)
	require.Equal(t, http.StatusBadRequest, get(t, h, "/api/v1/locate?t=NaN&p=3").Code)
	require.Equal(t, http.StatusBadRequest, get(t, h, "/api/v1/locate?t=450&p=Inf").Code)
}

func TestCell(t *testing.T) {
	require.Equal(t, http.StatusConflict, get(t, newServer(t, false).Handler(), "/api/v1/cell?r=0&c=0").Code)

	h := newServer(t, true).Handler()
	var body map[string]any
	decode(t, get(t, h, "/api/v1/cell?r=5&c=5"), &body)
	require.Equal(t, "failed", body["status"])
	require.Equal(t, true, body["excluded"])
	require.Equal(t, 600.0, body["t"])
	require.Equal(t, 7.0, body["p"])

	require.Equal(t, http.StatusBadRequest, get(t, h, "/api/v1/cell?r=11&c=0").Code)
	require.Equal(t, http.StatusBadRequest, get(t, h, "/api/v1/cell?r=a").Code)
}

func TestDataKeys(t *testing.T) {
	h := newServer(t, true).Handler()
	var body map[string][]string
	decode(t, get(t, h, "/api/v1/datakeys?key=H2O+chl+g+q"), &body)
	require.Equal(t, []string{"G", "mode", "x(g)"}, body["g"])
	require.NotContains(t, body, "H2O")
}

func TestSweeps_NoDB(t *testing.T) {
	h := newServer(t, false).Handler()
	rec := get(t, h, "/api/v1/sweeps")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, "[]", rec.Body.String())
}

func TestIsopleths(t *testing.T) {
	h := newServer(t, true).Handler()

	rec := get(t, h, "/api/v1/isopleths?phase=g&expr=x(g)&n=4&refine=2")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body struct {
		Phase  string    `json:"phase"`
		Levels []float64 `json:"levels"`
		Fields []struct {
			Key string `json:"key"`
		} `json:"fields"`
	}
	decode(t, rec, &body)
	require.Equal(t, "g", body.Phase)
	require.Len(t, body.Levels, 4)
	require.Len(t, body.Fields, 2)

	require.Equal(t, http.StatusBadRequest, get(t, h, "/api/v1/isopleths?phase=g").Code)
	require.Equal(t, http.StatusBadRequest, get(t, h, "/api/v1/isopleths?phase=g&expr=x_g&n=0").Code)
	require.Equal(t, http.StatusBadRequest, get(t, h, "/api/v1/isopleths?phase=g&expr=x_g&gradient=z").Code)
	require.Equal(t, http.StatusBadRequest, get(t, h, "/api/v1/isopleths?phase=g&expr=x_g&n=2000000000").Code)
	require.Equal(t, http.StatusBadRequest, get(t, h, "/api/v1/isopleths?phase=g&expr=x_g&gradient=t&n=1001").Code)
	require.Equal(t, http.StatusBadRequest, get(t, h, "/api/v1/isopleths?phase=g&expr=x_g&step=1e-12").Code)
	require.Equal(t, http.StatusBadRequest, get(t, h, "/api/v1/isopleths?phase=g&expr=x_g&step=NaN").Code)
	require.Equal(t, http.StatusNotFound, get(t, h, "/api/v1/isopleths?phase=mu&expr=x").Code)
	require.Equal(t, http.StatusUnprocessableEntity, get(t, h, "/api/v1/isopleths?phase=g&expr=x_g+%2B").Code)

	require.Equal(t, http.StatusConflict,
		get(t, newServer(t, false).Handler(), "/api/v1/isopleths?phase=g&expr=x_g").Code)
}

func TestMethodsAndCORS(t *testing.T) {
	h := newServer(t, false).Handler()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/status", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	req = httptest.NewRequest(http.MethodOptions, "/api/v1/status", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimiter(t *testing.T) {
	now := time.Unix(1000, 0)
	rl := NewRateLimiter(2, time.Minute)
	rl.now = func() time.Time { return now }

	require.True(t, rl.Allow("a"))
	require.True(t, rl.Allow("a"))
	require.False(t, rl.Allow("a"))
	require.True(t, rl.Allow("b"))
	require.Equal(t, 61, rl.RetryAfter("a"))

	now = now.Add(time.Minute)
	require.True(t, rl.Allow("a"))

	// Idle buckets are dropped after two windows.
	now = now.Add(3 * time.Minute)
	rl.Allow("c")
	require.Len(t, rl.buckets, 1)
}

func TestRateLimitMiddleware(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	h := RateLimitMiddleware(rl, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", "10.0.0.1, 10.0.0.2")
	rec := httptest.NewRecorder()
	h(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h(rec, req)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.NotEmpty(t, rec.Header().Get("Retry-After"))

	// A different client is unaffected.
	other := httptest.NewRequest(http.MethodGet, "/", nil)
	rec = httptest.NewRecorder()
	h(rec, other)
	require.Equal(t, http.StatusOK, rec.Code)
}
