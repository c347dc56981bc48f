package solver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// LogParser turns the raw solver log into an Outcome.
type LogParser interface {
	Parse(raw []byte) (*Outcome, error)
}

// JSONLog parses a log written as a single JSON Outcome document.
type JSONLog struct{}

// Parse decodes the document. An empty log is an error.
func (JSONLog) Parse(raw []byte) (*Outcome, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, errors.New("empty log")
	}
	var out Outcome
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode log: %w", err)
	}
	return &out, nil
}

// Process runs the solver executable once per request. The request text is
// written to stdin; the log file in Dir is read back after the process exits.
type Process struct {
	Command []string
	Dir     string
	LogFile string
	Parser  LogParser
}

// Invoke runs the command and parses its log.
func (p *Process) Invoke(ctx context.Context, req Request) (*Outcome, error) {
	if len(p.Command) == 0 {
		return nil, &UnreachableError{Op: "run", Err: errors.New("no solver command configured")}
	}

	logPath := p.LogFile
	if !filepath.IsAbs(logPath) {
		logPath = filepath.Join(p.Dir, logPath)
	}
	// A stale log from the previous call must never be parsed as this one.
	if err := os.Remove(logPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, &UnreachableError{Op: "clear log", Err: err}
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, p.Command[0], p.Command[1:]...)
	cmd.Dir = p.Dir
	cmd.Stdin = strings.NewReader(req.Text())
	cmd.Stdout = io.Discard
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, &UnreachableError{Op: "run", Err: fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))}
	}

	raw, err := os.ReadFile(logPath)
	if err != nil {
		return nil, &UnreachableError{Op: "read log", Err: err}
	}
	parser := p.Parser
	if parser == nil {
		parser = JSONLog{}
	}
	out, err := parser.Parse(raw)
	if err != nil {
		return nil, &UnreachableError{Op: "parse log", Err: err}
	}
	return out, nil
}
