// Package solver defines the contract with the external equilibrium solver:
// requests, parsed outcomes, the single-slot initial-guess channel and a
// process-backed adapter.
package solver

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

var (
	// ErrAmbiguous means one invocation yielded zero or several results.
	ErrAmbiguous = errors.New("solver: response did not contain exactly one result")
	// ErrUnreachable means the process could not be run or its log not parsed.
	ErrUnreachable = errors.New("solver: invocation failed")
)

// UnreachableError carries the failing stage of an invocation.
type UnreachableError struct {
	Op  string
	Err error
}

func (e *UnreachableError) Error() string {
	return fmt.Sprintf("solver %s: %v", e.Op, e.Err)
}

func (e *UnreachableError) Unwrap() error { return e.Err }

// Is makes every UnreachableError match ErrUnreachable.
func (e *UnreachableError) Is(target error) bool { return target == ErrUnreachable }

// Request asks the solver for the equilibrium of an assemblage at (T, P).
type Request struct {
	Phases       []string
	T, P         float64
	VarianceOnly bool // Only report the variance of the assemblage
}

// Text renders the answers fed to the solver on stdin.
func (r Request) Text() string {
	phases := strings.Join(r.Phases, " ")
	if r.VarianceOnly {
		return phases + "\nkill\n\n"
	}
	return fmt.Sprintf("%s\n\n\n%s\n%s\nkill\n\n", phases,
		strconv.FormatFloat(r.P, 'g', -1, 64),
		strconv.FormatFloat(r.T, 'g', -1, 64))
}

// Result is one solved equilibrium. Data maps phase → variable → value;
// Guess is the initial-guess block that reproduces this solution.
type Result struct {
	Data  map[string]map[string]float64 `json:"data"`
	Guess []string                      `json:"ptguess,omitempty"`
}

// Phase returns the variables of one phase.
func (r *Result) Phase(name string) (map[string]float64, bool) {
	if r == nil {
		return nil, false
	}
	d, ok := r.Data[name]
	return d, ok
}

// Outcome is a parsed solver log.
type Outcome struct {
	Status      string       `json:"status"`
	Variance    int          `json:"variance"`
	Points      [][2]float64 `json:"points,omitempty"`
	Results     []*Result    `json:"results"`
	Diagnostics []string     `json:"diagnostics,omitempty"`
}

// Single returns the result when the outcome holds exactly one distinct
// result, and ErrAmbiguous otherwise.
func (o *Outcome) Single() (*Result, error) {
	if o == nil {
		return nil, fmt.Errorf("no outcome: %w", ErrAmbiguous)
	}
	var distinct []*Result
	for _, r := range o.Results {
		dup := false
		for _, d := range distinct {
			if reflect.DeepEqual(r, d) {
				dup = true
				break
			}
		}
		if !dup {
			distinct = append(distinct, r)
		}
	}
	if len(distinct) != 1 {
		return nil, fmt.Errorf("%d distinct results: %w", len(distinct), ErrAmbiguous)
	}
	return distinct[0], nil
}

// Solver runs one blocking equilibrium calculation.
type Solver interface {
	Invoke(ctx context.Context, req Request) (*Outcome, error)
}
