package solver

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// GuessWriter owns the shared initial-guess resource read by the solver.
type GuessWriter interface {
	// WriteGuess replaces the guess block and flushes it.
	WriteGuess(lines []string) error
	// Reset restores the baseline guess block.
	Reset() error
}

// Channel serialises solver invocations around a single guess slot.
// A guess set with SetNextGuess is written before the next Invoke only,
// and the resource is reset once that call returns.
type Channel struct {
	mu     sync.Mutex
	solver Solver
	writer GuessWriter

	next    []string
	pending bool

	invocations int
	injections  int
}

// NewChannel wraps a solver. writer may be nil when guesses are unsupported.
func NewChannel(s Solver, writer GuessWriter) *Channel {
	return &Channel{solver: s, writer: writer}
}

// SetNextGuess fills the slot, replacing any guess not yet consumed.
// It blocks while an invocation is in flight.
func (c *Channel) SetNextGuess(lines []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next = append([]string(nil), lines...)
	c.pending = true
}

// Pending reports whether a guess is waiting for the next invocation.
func (c *Channel) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}

// Invoke runs the solver, consuming the pending guess if there is one.
func (c *Channel) Invoke(ctx context.Context, req Request) (*Outcome, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	guess, had := c.next, c.pending
	c.next, c.pending = nil, false

	if had {
		if c.writer == nil {
			return nil, &UnreachableError{Op: "inject guess", Err: errors.New("no guess writer configured")}
		}
		if err := c.writer.WriteGuess(guess); err != nil {
			return nil, &UnreachableError{Op: "inject guess", Err: err}
		}
		c.injections++
		defer func() {
			if err := c.writer.Reset(); err != nil {
				slog.Warn("guess reset failed", "error", err)
			}
		}()
	}

	c.invocations++
	out, err := c.solver.Invoke(ctx, req)
	if err != nil {
		if errors.Is(err, ErrUnreachable) {
			return nil, err
		}
		return nil, &UnreachableError{Op: "invoke", Err: err}
	}
	return out, nil
}

// Stats returns the number of invocations and guess injections so far.
func (c *Channel) Stats() (invocations, injections int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.invocations, c.injections
}
