// Package synthetic provides a deterministic stand-in for the external
// equilibrium solver and a matching boundary data set, for demos and tests.
package synthetic

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"
	"strconv"
	"strings"
	"sync"

	opensimplex "github.com/ojrac/opensimplex-go"

	"github.com/talgya/psexplorer/internal/solver"
)

// Config tunes the synthetic solver.
type Config struct {
	Seed int64

	// Points whose difficulty noise exceeds FailLevel return no result
	// unless a guess from within Reach is injected.
	FailLevel float64
	// Points whose ambiguity noise exceeds AmbiguousLevel return two results.
	AmbiguousLevel float64
	// Reach is the distance, in window-normalised units, over which an
	// injected guess still helps.
	Reach float64

	// Window used to normalise coordinates.
	TRange, PRange [2]float64
}

// DefaultConfig returns a solver that fails on roughly a tenth of the window.
func DefaultConfig() Config {
	return Config{
		Seed:           42,
		FailLevel:      0.72,
		AmbiguousLevel: 0.95,
		Reach:          0.15,
		TRange:         [2]float64{400, 800},
		PRange:         [2]float64{2, 12},
	}
}

// Solver computes smooth pseudo-compositions from opensimplex noise.
// It also implements solver.GuessWriter so guesses arrive through the
// same channel as with a real solver.
type Solver struct {
	cfg Config

	// Three noise generators for independent layers.
	valueNoise opensimplex.Noise
	failNoise  opensimplex.Noise
	ambigNoise opensimplex.Noise

	mu    sync.Mutex
	guess []string
	calls int
}

// New creates a solver. A zero seed picks a random one.
func New(cfg Config) *Solver {
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Int63()
	}
	if cfg.TRange == [2]float64{} {
		cfg.TRange = DefaultConfig().TRange
	}
	if cfg.PRange == [2]float64{} {
		cfg.PRange = DefaultConfig().PRange
	}
	return &Solver{
		cfg:        cfg,
		valueNoise: opensimplex.NewNormalized(seed),
		failNoise:  opensimplex.NewNormalized(seed + 1),
		ambigNoise: opensimplex.NewNormalized(seed + 2),
	}
}

// WriteGuess stores the guess for the next call.
func (s *Solver) WriteGuess(lines []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.guess = append([]string(nil), lines...)
	return nil
}

// Reset drops the stored guess.
func (s *Solver) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.guess = nil
	return nil
}

// Calls returns the number of invocations so far.
func (s *Solver) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// Invoke answers one request.
func (s *Solver) Invoke(ctx context.Context, req solver.Request) (*solver.Outcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.calls++
	guess := s.guess
	s.mu.Unlock()

	out := &solver.Outcome{Status: "ok", Variance: Variance(req.Phases)}
	if req.VarianceOnly {
		return out, nil
	}

	x, y := s.normalise(req.T, req.P)
	if octaveNoise(s.failNoise, x, y, 3, 4, 0.5) > s.cfg.FailLevel && !s.helps(guess, x, y) {
		out.Status = "failed"
		out.Diagnostics = []string{"no convergence"}
		return out, nil
	}

	res := s.Result(req.Phases, req.T, req.P)
	out.Points = [][2]float64{{req.P, req.T}}
	out.Results = []*solver.Result{res}
	if octaveNoise(s.ambigNoise, x, y, 2, 6, 0.5) > s.cfg.AmbiguousLevel {
		alt := s.Result(req.Phases, req.T, req.P)
		for _, d := range alt.Data {
			d["mode"] *= 0.5
		}
		out.Results = append(out.Results, alt)
	}
	return out, nil
}

// helps reports whether the injected guess originated within Reach of (x, y).
func (s *Solver) helps(guess []string, x, y float64) bool {
	t, p, ok := GuessOrigin(guess)
	if !ok {
		return false
	}
	gx, gy := s.normalise(t, p)
	return math.Hypot(gx-x, gy-y) <= s.cfg.Reach
}

func (s *Solver) normalise(t, p float64) (x, y float64) {
	tr, pr := s.cfg.TRange, s.cfg.PRange
	return (t - tr[0]) / (tr[1] - tr[0]), (p - pr[0]) / (pr[1] - pr[0])
}

// Result computes the equilibrium of phases at (t, p). Every phase gets a
// mode and a composition variable x(phase); H2O gets a mode only.
func (s *Solver) Result(phases []string, t, p float64) *solver.Result {
	x, y := s.normalise(t, p)
	data := make(map[string]map[string]float64, len(phases))
	for _, ph := range phases {
		off := phaseOffset(ph)
		n := octaveNoise(s.valueNoise, x+off, y-off, 3, 2, 0.5)
		vars := map[string]float64{
			"mode": round(0.1+0.5*n, 6),
		}
		if ph != "H2O" {
			vars["x("+ph+")"] = round(0.2+0.3*x+0.2*y+0.05*n, 6)
			vars["G"] = round(-1000*(1+off)-50*x+20*y, 6)
		}
		data[ph] = vars
	}
	return &solver.Result{Data: data, Guess: GuessFor(t, p, phases)}
}

// Variance is the phase-rule variance of the assemblage in a six-component system.
func Variance(phases []string) int {
	return max(6-len(phases)+2, 0)
}

// GuessFor renders a guess block recording where it was solved.
func GuessFor(t, p float64, phases []string) []string {
	return []string{
		"% --------------------------------------------------------",
		fmt.Sprintf("%% at P = %s, T = %s, for: %s",
			strconv.FormatFloat(p, 'f', 4, 64),
			strconv.FormatFloat(t, 'f', 4, 64),
			strings.Join(phases, " ")),
		"ptguess",
	}
}

// GuessOrigin parses the (T, p) a guess block was solved at.
func GuessOrigin(lines []string) (t, p float64, ok bool) {
	for _, l := range lines {
		rest, found := strings.CutPrefix(l, "% at P = ")
		if !found {
			continue
		}
		pstr, rest, found := strings.Cut(rest, ", T = ")
		if !found {
			continue
		}
		tstr, _, _ := strings.Cut(rest, ",")
		pv, err1 := strconv.ParseFloat(pstr, 64)
		tv, err2 := strconv.ParseFloat(tstr, 64)
		if err1 == nil && err2 == nil {
			return tv, pv, true
		}
	}
	return 0, 0, false
}

func phaseOffset(ph string) float64 {
	h := fnv.New32a()
	h.Write([]byte(ph))
	return float64(h.Sum32()%1000) / 1000
}

func round(v float64, digits int) float64 {
	f := math.Pow(10, float64(digits))
	return math.Round(v*f) / f
}

// octaveNoise generates fractal noise by layering multiple frequencies.
func octaveNoise(noise opensimplex.Noise, x, y float64, octaves int, frequency, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0

	for i := 0; i < octaves; i++ {
		total += noise.Eval2(x*frequency, y*frequency) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}

	return total / maxVal
}
