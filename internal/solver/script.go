package solver

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Markers delimiting the guess block inside the solver script file.
const (
	GuessBegin = "%{PSBGUESS-BEGIN}"
	GuessEnd   = "%{PSBGUESS-END}"
)

// ErrNoGuessBlock is returned when the script lacks the guess markers.
var ErrNoGuessBlock = errors.New("solver: script has no guess block")

// ScriptGuess rewrites the guess block of the solver script file.
type ScriptGuess struct {
	path     string
	baseline []string
}

// NewScriptGuess reads the script and remembers its current guess block as the baseline.
func NewScriptGuess(path string) (*ScriptGuess, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	_, block, _, err := splitGuess(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &ScriptGuess{path: path, baseline: block}, nil
}

// WriteGuess replaces the guess block and syncs the file before returning.
func (s *ScriptGuess) WriteGuess(lines []string) error {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("read script: %w", err)
	}
	head, _, tail, err := splitGuess(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", s.path, err)
	}

	var buf bytes.Buffer
	for _, l := range head {
		buf.WriteString(l + "\n")
	}
	buf.WriteString(GuessBegin + "\n")
	for _, l := range lines {
		buf.WriteString(l + "\n")
	}
	buf.WriteString(GuessEnd + "\n")
	for _, l := range tail {
		buf.WriteString(l + "\n")
	}
	return writeSynced(s.path, buf.Bytes())
}

// Reset restores the baseline guess block.
func (s *ScriptGuess) Reset() error {
	return s.WriteGuess(s.baseline)
}

// Baseline returns the guess block found when the script was opened.
func (s *ScriptGuess) Baseline() []string {
	return append([]string(nil), s.baseline...)
}

func splitGuess(raw []byte) (head, block, tail []string, err error) {
	sc := bufio.NewScanner(bytes.NewReader(raw))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	state := 0
	for sc.Scan() {
		line := sc.Text()
		switch {
		case state == 0 && strings.TrimSpace(line) == GuessBegin:
			state = 1
		case state == 1 && strings.TrimSpace(line) == GuessEnd:
			state = 2
		case state == 0:
			head = append(head, line)
		case state == 1:
			block = append(block, line)
		default:
			tail = append(tail, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, nil, nil, err
	}
	if state != 2 {
		return nil, nil, nil, ErrNoGuessBlock
	}
	return head, block, tail, nil
}

// writeSynced replaces path atomically and fsyncs the new content.
func writeSynced(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".guess-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
