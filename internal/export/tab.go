// Package export writes gridded scalar fields as psbuilder .tab tables.
package export

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/talgya/psexplorer/internal/diagram"
)

// ErrShape is returned when a column does not match the lattice size.
var ErrShape = errors.New("export: column length does not match lattice")

// Column is one gridded variable, row-major over the lattice.
type Column struct {
	Name   string
	Values []float64
}

// WriteTab writes the header block followed by one line per lattice point.
// Values are fixed-width, 15 characters with 6 decimals; missing values are nan.
func WriteTab(w io.Writer, name string, l *diagram.Lattice, cols []Column) error {
	for _, c := range cols {
		if len(c.Values) != l.Size() {
			return fmt.Errorf("%s has %d values for %d points: %w", c.Name, len(c.Values), l.Size(), ErrShape)
		}
	}

	bw := bufio.NewWriter(w)
	header := []string{
		"psbuilder",
		name,
		fmt.Sprintf("%12d", 2),
		"T(°C)",
		fixed(l.TSpace[0]),
		fixed(l.TStep()),
		fmt.Sprintf("%12d", l.Cols()),
		"p(kbar)",
		fixed(l.PSpace[0]),
		fixed(l.PStep()),
		fmt.Sprintf("%12d", l.Rows()),
		fmt.Sprintf("%12d", len(cols)),
	}
	for _, h := range header {
		bw.WriteString(h + "\n")
	}
	for _, c := range cols {
		fmt.Fprintf(bw, "%-15s", c.Name)
	}
	bw.WriteString("\n")

	for i := 0; i < l.Size(); i++ {
		for _, c := range cols {
			v := c.Values[i]
			if math.IsNaN(v) {
				fmt.Fprintf(bw, "%15s", "nan")
				continue
			}
			fmt.Fprintf(bw, "%15.6f", v)
		}
		bw.WriteString("\n")
	}
	return bw.Flush()
}

// fixed renders v with 16 decimals after three spaces, cut to 19 characters.
func fixed(v float64) string {
	s := "   " + strconv.FormatFloat(v, 'f', 16, 64)
	if len(s) > 19 {
		s = s[:19]
	}
	return s
}
