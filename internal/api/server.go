// Package api provides the read-only HTTP API over a loaded explorer session.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/talgya/psexplorer/internal/aggregate"
	"github.com/talgya/psexplorer/internal/diagram"
	"github.com/talgya/psexplorer/internal/engine"
	"github.com/talgya/psexplorer/internal/isopleth"
	"github.com/talgya/psexplorer/internal/persistence"
)

// Server serves the session state over HTTP.
type Server struct {
	Session   *engine.Session
	Collector *aggregate.Collector
	DB        *persistence.DB // Optional; enables sweep history
	Port      int
	RunID     string

	// Defaults applied to isopleth queries before query parameters.
	Defaults isopleth.Options
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	// Interpolation is the only costly endpoint.
	isoLimiter := NewRateLimiter(60, time.Minute)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/fields", s.handleFields)
	mux.HandleFunc("/api/v1/locate", s.handleLocate)
	mux.HandleFunc("/api/v1/cell", s.handleCell)
	mux.HandleFunc("/api/v1/datakeys", s.handleDataKeys)
	mux.HandleFunc("/api/v1/sweeps", s.handleSweeps)
	mux.HandleFunc("/api/v1/isopleths", RateLimitMiddleware(isoLimiter, s.handleIsopleths))
	return corsMiddleware(getOnly(mux))
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.Port)
	srv := &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	slog.Info("HTTP API starting", "addr", addr)

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdown); err != nil {
			return err
		}
		slog.Info("HTTP API stopped")
		return nil
	}
}

// getOnly rejects every method but GET and OPTIONS.
func getOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodOptions {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// corsMiddleware adds CORS headers for allowed frontend origins.
// PSEXPLORER_CORS_ORIGINS is a comma-separated list of extra origins.
func corsMiddleware(next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:3000": true,
	}
	if env := os.Getenv("PSEXPLORER_CORS_ORIGINS"); env != "" {
		for _, origin := range strings.Split(env, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				allowedOrigins[origin] = true
			}
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	sum := s.Session.Status()
	status := map[string]any{
		"run_id":     s.RunID,
		"gridded":    s.Session.Gridded(),
		"fields":     len(s.Session.Fields()),
		"bad_shapes": len(s.Session.Index.BadShapes()),
		"total":      sum.Total,
		"solved":     sum.Solved,
		"failed":     sum.Failed,
		"excluded":   sum.Excluded,
		"last_sweep": s.Session.LastSweep,
	}
	if lat := s.Session.Lattice; lat != nil {
		status["num_t"] = lat.Cols()
		status["num_p"] = lat.Rows()
	}
	if m := s.Session.MeanElapsed(); !math.IsNaN(m) {
		status["mean_elapsed"] = m
	}
	writeJSON(w, status)
}

func (s *Server) handleFields(w http.ResponseWriter, r *http.Request) {
	type fieldEntry struct {
		Key       string `json:"key"`
		Variance  int    `json:"variance"`
		Edges     []int  `json:"edges"`
		Points    int    `json:"points"`
		Bad       bool   `json:"bad,omitempty"`
		BadReason string `json:"bad_reason,omitempty"`
	}

	all := s.Session.Index.All()
	out := make([]fieldEntry, 0, len(all))
	for _, f := range all {
		e := fieldEntry{
			Key:       f.Key.String(),
			Variance:  f.Variance,
			Edges:     f.Edges,
			Bad:       f.Bad,
			BadReason: f.BadReason,
		}
		if m := s.Session.Mask(f.Key); m != nil {
			e.Points = m.Count()
		}
		out = append(out, e)
	}
	writeJSON(w, out)
}

func (s *Server) handleLocate(w http.ResponseWriter, r *http.Request) {
	t, errT := strconv.ParseFloat(r.URL.Query().Get("t"), 64)
	p, errP := strconv.ParseFloat(r.URL.Query().Get("p"), 64)
	if errT != nil || errP != nil || !finite(t) || !finite(p) {
		http.Error(w, "t and p must be finite numbers", http.StatusBadRequest)
		return
	}
	key, ok := s.Session.Index.Locate(t, p)
	writeJSON(w, map[string]any{"t": t, "p": p, "found": ok, "key": key.String()})
}

func (s *Server) handleCell(w http.ResponseWriter, r *http.Request) {
	if !s.Session.Gridded() {
		http.Error(w, engine.ErrNotGridded.Error(), http.StatusConflict)
		return
	}
	row, errR := strconv.Atoi(r.URL.Query().Get("r"))
	col, errC := strconv.Atoi(r.URL.Query().Get("c"))
	if errR != nil || errC != nil || !s.Session.Lattice.InBounds(row, col) {
		http.Error(w, "r and c must address a lattice point", http.StatusBadRequest)
		return
	}
	cell := s.Session.Grid.At(row, col)
	t, p := s.Session.Lattice.Point(row, col)
	out := map[string]any{
		"t":        t,
		"p":        p,
		"status":   cell.Status.String(),
		"key":      cell.Key.String(),
		"excluded": cell.Excluded,
		"result":   cell.Result,
	}
	if cell.Status == diagram.StatusSolved {
		out["elapsed"] = cell.Elapsed
	}
	writeJSON(w, out)
}

func (s *Server) handleDataKeys(w http.ResponseWriter, r *http.Request) {
	if key := r.URL.Query().Get("key"); key != "" {
		writeJSON(w, s.Collector.DataKeys(diagram.NewFieldKey(strings.Fields(key)...)))
		return
	}
	writeJSON(w, s.Collector.AllDataKeys())
}

func (s *Server) handleSweeps(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		writeJSON(w, []persistence.SweepRecord{})
		return
	}
	limit := 20
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	sweeps, err := s.DB.RecentSweeps(limit)
	if err != nil {
		http.Error(w, "failed to load sweeps", http.StatusInternalServerError)
		return
	}
	writeJSON(w, sweeps)
}

func (s *Server) handleIsopleths(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	phase, expr := q.Get("phase"), q.Get("expr")
	if phase == "" || expr == "" {
		http.Error(w, "phase and expr are required", http.StatusBadRequest)
		return
	}
	opts, err := s.isoOptions(q.Get)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	res, err := isopleth.Isopleths(r.Context(), s.Collector, phase, expr, opts)
	switch {
	case errors.Is(err, engine.ErrNotGridded):
		http.Error(w, err.Error(), http.StatusConflict)
		return
	case errors.Is(err, isopleth.ErrNoData), errors.Is(err, aggregate.ErrUnknownField):
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	case errors.Is(err, isopleth.ErrTooManyLevels):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	writeJSON(w, res)
}

// isoOptions overlays query parameters on the server defaults.
func (s *Server) isoOptions(get func(string) string) (isopleth.Options, error) {
	opts := s.Defaults
	if v := get("n"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > isopleth.MaxLevels {
			return opts, fmt.Errorf("n must be an integer between 1 and %d", isopleth.MaxLevels)
		}
		opts.N, opts.Levels = n, nil
	}
	if v := get("step"); v != "" {
		step, err := strconv.ParseFloat(v, 64)
		if err != nil || !(step > 0) || math.IsInf(step, 0) {
			return opts, fmt.Errorf("step must be a positive number")
		}
		opts.Step, opts.Levels = step, nil
	}
	if v := get("refine"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 10 {
			return opts, fmt.Errorf("refine must be between 1 and 10")
		}
		opts.Refine = n
	}
	if v := get("smooth"); v != "" {
		sm, err := strconv.ParseFloat(v, 64)
		if err != nil || sm < 0 {
			return opts, fmt.Errorf("smooth must be a non-negative number")
		}
		opts.Smooth = sm
	}
	if v := get("gradient"); v != "" {
		axis, ok := isopleth.ParseAxis(v)
		if !ok {
			return opts, fmt.Errorf("gradient must be t or p")
		}
		opts.Gradient = axis
	}
	if v := get("sources"); v != "" {
		src, err := diagram.ParseSources(v)
		if err != nil {
			return opts, err
		}
		opts.Sources = src
	}
	if v := get("only"); v != "" {
		opts.Only = diagram.NewFieldKey(strings.Fields(v)...)
	}
	return opts, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		slog.Warn("encode response", "error", err)
	}
}
