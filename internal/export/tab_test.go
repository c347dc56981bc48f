package export

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/talgya/psexplorer/internal/diagram"
)

func TestWriteTab(t *testing.T) {
	l, err := diagram.NewLattice([2]float64{400, 600}, [2]float64{2, 4}, 3, 2)
	require.NoError(t, err)

	cols := []Column{
		{Name: "g:x(g)", Values: []float64{0.1, 0.2, 0.3, 0.4, 0.5, math.NaN()}},
		{Name: "bi:mode", Values: []float64{1, 2, 3, 4, 5, 6}},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteTab(&buf, "run.tab", l, cols))

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	require.Len(t, lines, 12+1+6)
	require.Equal(t, []string{
		"psbuilder",
		"run.tab",
		"           2",
		"T(°C)",
		"   400.000000000000",
		"   100.000000000000",
		"           3",
		"p(kbar)",
		"   2.00000000000000",
		"   2.00000000000000",
		"           2",
		"           2",
	}, lines[:12])
	require.Equal(t, "g:x(g)         bi:mode        ", lines[12])
	require.Equal(t, "       0.100000       1.000000", lines[13])
	require.Equal(t, "            nan       6.000000", lines[18])
}

func TestWriteTab_ShapeMismatch(t *testing.T) {
	l, err := diagram.NewLattice([2]float64{0, 1}, [2]float64{0, 1}, 2, 2)
	require.NoError(t, err)
	err = WriteTab(&bytes.Buffer{}, "x", l, []Column{{Name: "a", Values: []float64{1}}})
	require.ErrorIs(t, err, ErrShape)
}

func TestFixed(t *testing.T) {
	require.Len(t, fixed(123456.789), 19)
	require.Equal(t, "   0.50000000000000", fixed(0.5))
	require.Equal(t, "   -1.0000000000000", fixed(-1))
}
