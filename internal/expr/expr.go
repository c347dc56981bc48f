// Package expr evaluates numeric expressions over the composition variables
// of one phase, using HCL expression syntax.
package expr

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
)

var (
	// ErrParse is returned for malformed expressions.
	ErrParse = errors.New("expr: cannot parse expression")
	// ErrNotNumber is returned when an expression does not yield a known number.
	ErrNotNumber = errors.New("expr: expression is not a number")
)

// Evaluator parses and evaluates expressions. Parsed expressions are cached
// by their rewritten source. It is safe for concurrent use.
type Evaluator struct {
	mu    sync.Mutex
	cache map[string]hcl.Expression
	funcs map[string]function.Function
}

// New returns an evaluator exposing abs, min, max, floor, ceil, log, pow and signum.
func New() *Evaluator {
	return &Evaluator{
		cache: make(map[string]hcl.Expression),
		funcs: map[string]function.Function{
			"abs":    stdlib.AbsoluteFunc,
			"min":    stdlib.MinFunc,
			"max":    stdlib.MaxFunc,
			"floor":  stdlib.FloorFunc,
			"ceil":   stdlib.CeilFunc,
			"log":    stdlib.LogFunc,
			"pow":    stdlib.PowFunc,
			"signum": stdlib.SignumFunc,
		},
	}
}

// Sanitize turns a variable name such as "x(g)" into an identifier ("x_g").
func Sanitize(name string) string {
	var b strings.Builder
	for i, r := range name {
		switch {
		case r == ')':
		case unicode.IsLetter(r) || r == '_':
			b.WriteRune(r)
		case unicode.IsDigit(r):
			if i == 0 {
				b.WriteRune('_')
			}
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

// Eval evaluates expression with data bound as variables. Names that are not
// identifiers may be written either raw ("x(g)") or sanitised ("x_g").
// As in HCL, a minus sign between two names needs surrounding spaces.
func (e *Evaluator) Eval(expression string, data map[string]float64) (float64, error) {
	vars := make(map[string]cty.Value, len(data))
	var raw []string
	for name, v := range data {
		id := Sanitize(name)
		vars[id] = cty.NumberFloatVal(v)
		if id != name {
			raw = append(raw, name)
		}
	}
	src := rewrite(expression, raw)

	ex, err := e.parse(src)
	if err != nil {
		return 0, err
	}
	val, diags := ex.Value(&hcl.EvalContext{Variables: vars, Functions: e.funcs})
	if diags.HasErrors() {
		return 0, fmt.Errorf("%q: %w", expression, diags)
	}
	if val.IsNull() || !val.IsKnown() || val.Type() != cty.Number {
		return 0, fmt.Errorf("%q: %w", expression, ErrNotNumber)
	}
	f, _ := val.AsBigFloat().Float64()
	if math.IsInf(f, 0) {
		return 0, fmt.Errorf("%q is infinite: %w", expression, ErrNotNumber)
	}
	return f, nil
}

func (e *Evaluator) parse(src string) (hcl.Expression, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if ex, ok := e.cache[src]; ok {
		return ex, nil
	}
	ex, diags := hclsyntax.ParseExpression([]byte(src), "expr", hcl.InitialPos)
	if diags.HasErrors() {
		return nil, fmt.Errorf("%q: %v: %w", src, diags, ErrParse)
	}
	e.cache[src] = ex
	return ex, nil
}

// rewrite replaces raw variable names with their identifiers, longest first
// so that "x(g)" is not split by a shorter name.
func rewrite(expression string, raw []string) string {
	if len(raw) == 0 {
		return expression
	}
	sort.Slice(raw, func(i, j int) bool {
		if len(raw[i]) != len(raw[j]) {
			return len(raw[i]) > len(raw[j])
		}
		return raw[i] < raw[j]
	})
	pairs := make([]string, 0, 2*len(raw))
	for _, name := range raw {
		pairs = append(pairs, name, Sanitize(name))
	}
	return strings.NewReplacer(pairs...).Replace(expression)
}
