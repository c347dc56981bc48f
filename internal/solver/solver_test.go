package solver

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// recordingSolver remembers what the guess resource held at each call.
type recordingSolver struct {
	writer *memoryGuess
	seen   [][]string
	out    *Outcome
	err    error
}

func (s *recordingSolver) Invoke(_ context.Context, _ Request) (*Outcome, error) {
	s.seen = append(s.seen, append([]string(nil), s.writer.current...))
	return s.out, s.err
}

type memoryGuess struct {
	current  []string
	resets   int
	writeErr error
}

func (m *memoryGuess) WriteGuess(lines []string) error {
	if m.writeErr != nil {
		return m.writeErr
	}
	m.current = lines
	return nil
}

func (m *memoryGuess) Reset() error {
	m.current = nil
	m.resets++
	return nil
}

func result(v float64) *Result {
	return &Result{Data: map[string]map[string]float64{"g": {"x": v}}}
}

func TestOutcome_Single(t *testing.T) {
	r, err := (&Outcome{Results: []*Result{result(1)}}).Single()
	require.NoError(t, err)
	require.Equal(t, 1.0, r.Data["g"]["x"])

	// Identical duplicates collapse to one.
	_, err = (&Outcome{Results: []*Result{result(1), result(1)}}).Single()
	require.NoError(t, err)

	_, err = (&Outcome{Results: []*Result{result(1), result(2)}}).Single()
	require.ErrorIs(t, err, ErrAmbiguous)

	_, err = (&Outcome{}).Single()
	require.ErrorIs(t, err, ErrAmbiguous)

	var nilOutcome *Outcome
	_, err = nilOutcome.Single()
	require.ErrorIs(t, err, ErrAmbiguous)
}

func TestRequest_Text(t *testing.T) {
	req := Request{Phases: []string{"bi", "g", "q"}, T: 550, P: 6.5}
	require.Equal(t, "bi g q\n\n\n6.5\n550\nkill\n\n", req.Text())

	req.VarianceOnly = true
	require.Equal(t, "bi g q\nkill\n\n", req.Text())
}

func TestResult_Phase(t *testing.T) {
	d, ok := result(3).Phase("g")
	require.True(t, ok)
	require.Equal(t, 3.0, d["x"])

	_, ok = result(3).Phase("bi")
	require.False(t, ok)

	var r *Result
	_, ok = r.Phase("g")
	require.False(t, ok)
}

func TestChannel_GuessConsumedOnce(t *testing.T) {
	mem := &memoryGuess{}
	rs := &recordingSolver{writer: mem, out: &Outcome{Results: []*Result{result(1)}}}
	ch := NewChannel(rs, mem)

	ch.SetNextGuess([]string{"first"})
	ch.SetNextGuess([]string{"second"})
	require.True(t, ch.Pending())

	_, err := ch.Invoke(context.Background(), Request{})
	require.NoError(t, err)
	require.False(t, ch.Pending())

	_, err = ch.Invoke(context.Background(), Request{})
	require.NoError(t, err)

	require.Equal(t, [][]string{{"second"}, nil}, rs.seen)
	require.Equal(t, 1, mem.resets)
	require.Nil(t, mem.current)

	calls, injections := ch.Stats()
	require.Equal(t, 2, calls)
	require.Equal(t, 1, injections)
}

func TestChannel_ResetAfterSolverError(t *testing.T) {
	mem := &memoryGuess{}
	rs := &recordingSolver{writer: mem, err: errors.New("boom")}
	ch := NewChannel(rs, mem)

	ch.SetNextGuess([]string{"g"})
	_, err := ch.Invoke(context.Background(), Request{})
	require.ErrorIs(t, err, ErrUnreachable)
	require.Equal(t, 1, mem.resets)
	require.False(t, ch.Pending())
}

func TestChannel_GuessWithoutWriter(t *testing.T) {
	rs := &recordingSolver{writer: &memoryGuess{}, out: &Outcome{}}
	ch := NewChannel(rs, nil)

	ch.SetNextGuess([]string{"g"})
	_, err := ch.Invoke(context.Background(), Request{})
	require.ErrorIs(t, err, ErrUnreachable)
	require.Empty(t, rs.seen, "solver must not run when the guess cannot be written")

	// The slot was still consumed.
	_, err = ch.Invoke(context.Background(), Request{})
	require.NoError(t, err)
}

func TestChannel_WriteFailure(t *testing.T) {
	mem := &memoryGuess{writeErr: errors.New("disk full")}
	rs := &recordingSolver{writer: mem, out: &Outcome{}}
	ch := NewChannel(rs, mem)

	ch.SetNextGuess([]string{"g"})
	_, err := ch.Invoke(context.Background(), Request{})

	var ue *UnreachableError
	require.ErrorAs(t, err, &ue)
	require.Equal(t, "inject guess", ue.Op)
	require.Equal(t, 0, mem.resets)
}

const script = `% solver script
%{PSBGUESS-BEGIN}
xBi 0.3
xG 0.8
%{PSBGUESS-END}
* end
`

func TestScriptGuess_WriteAndReset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tc-script.txt")
	require.NoError(t, os.WriteFile(path, []byte(script), 0o644))

	sg, err := NewScriptGuess(path)
	require.NoError(t, err)
	require.Equal(t, []string{"xBi 0.3", "xG 0.8"}, sg.Baseline())

	require.NoError(t, sg.WriteGuess([]string{"xBi 0.5"}))
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "% solver script\n%{PSBGUESS-BEGIN}\nxBi 0.5\n%{PSBGUESS-END}\n* end\n", string(raw))

	require.NoError(t, sg.Reset())
	raw, err = os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, script, string(raw))
}

func TestScriptGuess_NoMarkers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tc-script.txt")
	require.NoError(t, os.WriteFile(path, []byte("% nothing here\n"), 0o644))

	_, err := NewScriptGuess(path)
	require.ErrorIs(t, err, ErrNoGuessBlock)
}

func TestJSONLog_Parse(t *testing.T) {
	out, err := JSONLog{}.Parse([]byte(`{"status":"ok","variance":3,
		"results":[{"data":{"g":{"x":0.25}},"ptguess":["xG 0.25"]}]}`))
	require.NoError(t, err)
	require.Equal(t, 3, out.Variance)
	require.Len(t, out.Results, 1)
	require.Equal(t, []string{"xG 0.25"}, out.Results[0].Guess)

	_, err = JSONLog{}.Parse([]byte("  \n"))
	require.Error(t, err)

	_, err = JSONLog{}.Parse([]byte("{"))
	require.Error(t, err)
}

func TestProcess_Invoke(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("no /bin/sh")
	}
	dir := t.TempDir()
	// Echo stdin's first line back as the status so the request text is checked too.
	p := &Process{
		Command: []string{"/bin/sh", "-c",
			`read phases; printf '{"status":"%s","results":[{"data":{"g":{"x":1}}}]}' "$phases" > log.json`},
		Dir:     dir,
		LogFile: "log.json",
	}
	out, err := p.Invoke(context.Background(), Request{Phases: []string{"bi", "g"}, T: 500, P: 5})
	require.NoError(t, err)
	require.Equal(t, "bi g", out.Status)

	r, err := out.Single()
	require.NoError(t, err)
	require.Equal(t, 1.0, r.Data["g"]["x"])
}

func TestProcess_StaleLogIgnored(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("no /bin/sh")
	}
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "log.json"), []byte(`{"results":[]}`), 0o644))

	p := &Process{Command: []string{"/bin/sh", "-c", "cat > /dev/null"}, Dir: dir, LogFile: "log.json"}
	_, err := p.Invoke(context.Background(), Request{Phases: []string{"g"}})

	var ue *UnreachableError
	require.ErrorAs(t, err, &ue)
	require.Equal(t, "read log", ue.Op)
}

func TestProcess_CommandFails(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("no /bin/sh")
	}
	p := &Process{Command: []string{"/bin/sh", "-c", "echo bad >&2; exit 3"}, Dir: t.TempDir(), LogFile: "log.json"}
	_, err := p.Invoke(context.Background(), Request{})
	require.ErrorIs(t, err, ErrUnreachable)
	require.True(t, strings.Contains(err.Error(), "bad"))

	_, err = (&Process{}).Invoke(context.Background(), Request{})
	require.ErrorIs(t, err, ErrUnreachable)
}
