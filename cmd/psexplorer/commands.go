package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/talgya/psexplorer/internal/api"
	"github.com/talgya/psexplorer/internal/config"
	"github.com/talgya/psexplorer/internal/diagram"
	"github.com/talgya/psexplorer/internal/engine"
	"github.com/talgya/psexplorer/internal/export"
	"github.com/talgya/psexplorer/internal/isopleth"
	"github.com/talgya/psexplorer/internal/persistence"
	"github.com/talgya/psexplorer/internal/project"
)

func runGrid(ctx context.Context, out io.Writer, args []string) error {
	fs, cfgPath := newFlagSet("grid", out)
	numT := fs.Int("t", 0, "Number of temperature samples (default from config).")
	numP := fs.Int("p", 0, "Number of pressure samples (default from config).")
	noRepair := fs.Bool("no-repair", false, "Skip the neighbour repair sweep.")
	if done, err := parse(fs, args); done || err != nil {
		return err
	}

	a, err := openApp(*cfgPath, func(c *config.Config) {
		if *numT > 0 {
			c.Grid.NumT = *numT
		}
		if *numP > 0 {
			c.Grid.NumP = *numP
		}
	})
	if err != nil {
		return err
	}
	defer a.Close()
	return a.computeAndSave(ctx, out, !*noRepair)
}

// computeAndSave runs the variance refresh, the grid sweep and optionally
// the repair sweep, then saves everything under a new run id.
func (a *app) computeAndSave(ctx context.Context, out io.Writer, repair bool) error {
	a.runID = persistence.NewRunID()

	if n, err := a.session.RefreshVariance(ctx); err != nil {
		return err
	} else if n > 0 {
		slog.Info("variance refreshed", "fields", n)
	}

	sum, err := a.session.ComputeGrid(ctx, a.cfg.Grid.NumT, a.cfg.Grid.NumP)
	if err != nil {
		return err
	}
	if err := a.db.SaveSweep(a.runID, "grid", sum); err != nil {
		return fmt.Errorf("save sweep: %w", err)
	}
	printSummary(out, "grid", sum)

	if repair {
		rs, err := a.session.RepairGrid(ctx)
		if err != nil {
			return err
		}
		if err := a.db.SaveSweep(a.runID, "repair", rs); err != nil {
			return fmt.Errorf("save sweep: %w", err)
		}
		printSummary(out, "repair", rs)
	}
	return a.db.SaveSession(a.session, a.runID)
}

func runRepair(ctx context.Context, out io.Writer, args []string) error {
	fs, cfgPath := newFlagSet("repair", out)
	if done, err := parse(fs, args); done || err != nil {
		return err
	}
	a, err := openApp(*cfgPath, nil)
	if err != nil {
		return err
	}
	defer a.Close()
	if err := a.loadGrid(); err != nil {
		return err
	}

	sum, err := a.session.RepairGrid(ctx)
	if err != nil {
		return err
	}
	if a.runID == "" {
		a.runID = persistence.NewRunID()
	}
	if err := a.db.SaveSweep(a.runID, "repair", sum); err != nil {
		return fmt.Errorf("save sweep: %w", err)
	}
	printSummary(out, "repair", sum)
	return a.db.SaveSession(a.session, a.runID)
}

func runIsopleths(ctx context.Context, out io.Writer, args []string) error {
	fs, cfgPath := newFlagSet("isopleths", out)
	phase := fs.String("phase", "", "Phase whose variables are used.")
	expression := fs.String("expr", "", "Expression over the phase variables, e.g. x_g or x(g)*100.")
	n := fs.Int("n", 0, "Number of levels.")
	step := fs.Float64("step", 0, "Level spacing; overrides -n.")
	gradient := fs.String("gradient", "", "Contour the derivative along t or p instead.")
	only := fs.String("only", "", "Restrict to one field, phases separated by spaces.")
	refine := fs.Int("refine", 0, "Sub-lattice refinement factor.")
	smooth := fs.Float64("smooth", -1, "Spline smoothing (default from config).")
	sources := fs.String("sources", "", "Data sources: triple, curve, grid or all, comma separated.")
	jsonOut := fs.String("o", "", "Write the full result as JSON to this file.")
	if done, err := parse(fs, args); done || err != nil {
		return err
	}
	if *phase == "" || *expression == "" {
		return &ExitError{Code: 2, Message: "isopleths: -phase and -expr are required"}
	}

	a, err := openApp(*cfgPath, nil)
	if err != nil {
		return err
	}
	defer a.Close()
	if err := a.loadGrid(); err != nil {
		return err
	}

	opts, err := isoDefaults(a.cfg.Isopleths)
	if err != nil {
		return err
	}
	if *n > 0 {
		opts.N = *n
		opts.Levels = nil
	}
	if *step > 0 {
		opts.Step = *step
		opts.Levels = nil
	}
	if *refine > 0 {
		opts.Refine = *refine
	}
	if *smooth >= 0 {
		opts.Smooth = *smooth
	}
	if *sources != "" {
		if opts.Sources, err = diagram.ParseSources(*sources); err != nil {
			return err
		}
	}
	axis, ok := isopleth.ParseAxis(*gradient)
	if !ok {
		return &ExitError{Code: 2, Message: "isopleths: -gradient must be t or p"}
	}
	opts.Gradient = axis
	if *only != "" {
		opts.Only = diagram.NewFieldKey(strings.Fields(*only)...)
	}

	res, err := isopleth.Isopleths(ctx, a.collector, *phase, *expression, opts)
	if err != nil {
		return err
	}
	printIsopleths(out, res)

	if *jsonOut != "" {
		raw, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return err
		}
		if err := os.WriteFile(*jsonOut, raw, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", *jsonOut, err)
		}
	}
	return nil
}

func runTab(ctx context.Context, out io.Writer, args []string) error {
	fs, cfgPath := newFlagSet("tab", out)
	file := fs.String("o", "", "Output file (default <workdir>/psexplorer.tab).")
	smooth := fs.Float64("smooth", -1, "Spline smoothing (default from config).")
	if done, err := parse(fs, args); done || err != nil {
		return err
	}
	a, err := openApp(*cfgPath, nil)
	if err != nil {
		return err
	}
	defer a.Close()
	if err := a.loadGrid(); err != nil {
		return err
	}

	opts, err := isoDefaults(a.cfg.Isopleths)
	if err != nil {
		return err
	}
	if *smooth >= 0 {
		opts.Smooth = *smooth
	}
	path := *file
	if path == "" {
		path = a.cfg.Path("psexplorer.tab")
	}

	keys := a.collector.AllDataKeys()
	phases := make([]string, 0, len(keys))
	for ph := range keys {
		phases = append(phases, ph)
	}
	sort.Strings(phases)

	var cols []export.Column
	for _, ph := range phases {
		for _, v := range keys[ph] {
			if err := ctx.Err(); err != nil {
				return err
			}
			vals, err := isopleth.Gridded(a.collector, ph, v, opts.Sources, opts.Smooth)
			if err != nil {
				return fmt.Errorf("grid %s %s: %w", ph, v, err)
			}
			cols = append(cols, export.Column{Name: ph + ":" + v, Values: vals})
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := export.WriteTab(f, filepath.Base(path), a.session.Lattice, cols); err != nil {
		return err
	}
	fmt.Fprintf(out, "wrote %s columns to %s\n", humanize.Comma(int64(len(cols))), path)
	return f.Close()
}

func runStatus(ctx context.Context, out io.Writer, args []string) error {
	fs, cfgPath := newFlagSet("status", out)
	if done, err := parse(fs, args); done || err != nil {
		return err
	}
	a, err := openApp(*cfgPath, nil)
	if err != nil {
		return err
	}
	defer a.Close()
	if err := a.loadGrid(); err != nil {
		return err
	}

	lat := a.session.Lattice
	fmt.Fprintf(out, "run %s: %d x %d lattice, %s fields\n",
		a.runID, lat.Cols(), lat.Rows(), humanize.Comma(int64(len(a.session.Fields()))))
	printSummary(out, "saved", a.session.Status())
	if m := a.session.MeanElapsed(); !math.IsNaN(m) {
		fmt.Fprintf(out, "mean solve time %s\n", time.Duration(m*float64(time.Second)).Round(time.Microsecond))
	}
	for _, bad := range a.session.Index.BadShapes() {
		fmt.Fprintf(out, "bad shape: %v\n", bad)
	}

	sweeps, err := a.db.RecentSweeps(10)
	if err != nil {
		return err
	}
	for _, sw := range sweeps {
		fmt.Fprintf(out, "%s %-6s solved %s failed %s repaired %s\n", sw.CreatedAt, sw.Kind,
			humanize.Comma(int64(sw.Solved)), humanize.Comma(int64(sw.Failed)), humanize.Comma(int64(sw.Repaired)))
	}
	return nil
}

func runServe(ctx context.Context, out io.Writer, args []string) error {
	fs, cfgPath := newFlagSet("serve", out)
	port := fs.Int("port", 0, "Listen port (default from config).")
	if done, err := parse(fs, args); done || err != nil {
		return err
	}
	a, err := openApp(*cfgPath, func(c *config.Config) {
		if *port > 0 {
			c.API.Port = *port
		}
	})
	if err != nil {
		return err
	}
	defer a.Close()
	if err := a.loadGrid(); err != nil {
		return err
	}
	opts, err := isoDefaults(a.cfg.Isopleths)
	if err != nil {
		return err
	}

	srv := &api.Server{
		Session:   a.session,
		Collector: a.collector,
		DB:        a.db,
		Port:      a.cfg.API.Port,
		RunID:     a.runID,
		Defaults:  opts,
	}
	return srv.Run(ctx)
}

func runDemo(ctx context.Context, out io.Writer, args []string) error {
	fs, cfgPath := newFlagSet("demo", out)
	dir := fs.String("dir", "", "Directory for the demo database and boundary export (default: a temp dir).")
	seed := fs.Int64("seed", 42, "Synthetic solver seed.")
	size := fs.Int("size", 21, "Lattice points along each axis.")
	if done, err := parse(fs, args); done || err != nil {
		return err
	}

	workdir := *dir
	if workdir == "" {
		tmp, err := os.MkdirTemp("", "psexplorer-demo-")
		if err != nil {
			return err
		}
		workdir = tmp
	}
	a, err := openApp(*cfgPath, func(c *config.Config) {
		c.Workdir = workdir
		c.Boundary = ""
		c.Database = "demo.db"
		c.Solver = config.Solver{Backend: config.BackendSynthetic, Seed: *seed}
		c.Grid = config.Grid{NumT: *size, NumP: *size}
	})
	if err != nil {
		return err
	}
	defer a.Close()

	doc, err := project.Snapshot(a.session.Boundary)
	if err != nil {
		return err
	}
	bf, err := os.Create(filepath.Join(workdir, "boundary.yaml"))
	if err != nil {
		return err
	}
	if err := project.Write(bf, doc); err != nil {
		bf.Close()
		return err
	}
	if err := bf.Close(); err != nil {
		return err
	}

	if err := a.computeAndSave(ctx, out, true); err != nil {
		return err
	}
	opts, err := isoDefaults(a.cfg.Isopleths)
	if err != nil {
		return err
	}
	res, err := isopleth.Isopleths(ctx, a.collector, "g", "x_g", opts)
	if err != nil {
		return err
	}
	printIsopleths(out, res)
	fmt.Fprintf(out, "demo files in %s\n", workdir)
	return nil
}

func printSummary(out io.Writer, label string, s engine.Summary) {
	fmt.Fprintf(out, "%-6s total %s solved %s failed %s (excluded %s)",
		label,
		humanize.Comma(int64(s.Total)),
		humanize.Comma(int64(s.Solved)),
		humanize.Comma(int64(s.Failed)),
		humanize.Comma(int64(s.Excluded)))
	if s.Attempts > 0 {
		fmt.Fprintf(out, " attempts %s ambiguous %s unreachable %s",
			humanize.Comma(int64(s.Attempts)),
			humanize.Comma(int64(s.Ambiguous)),
			humanize.Comma(int64(s.Unreachable)))
	}
	if s.Repaired > 0 || s.Exhausted > 0 {
		fmt.Fprintf(out, " repaired %s exhausted %s",
			humanize.Comma(int64(s.Repaired)), humanize.Comma(int64(s.Exhausted)))
	}
	if s.Duration > 0 {
		fmt.Fprintf(out, " in %s", s.Duration.Round(time.Millisecond))
	}
	fmt.Fprintln(out)
}

func printIsopleths(out io.Writer, res *isopleth.Result) {
	fmt.Fprintf(out, "%s(%s): range %s .. %s\n", res.Phase, res.Expr,
		humanize.FtoaWithDigits(res.Min, 4), humanize.FtoaWithDigits(res.Max, 4))
	for _, f := range res.Fields {
		segs := 0
		for _, c := range f.Contours {
			segs += len(c.Segments)
		}
		fmt.Fprintf(out, "  %-24s %s points, %d levels, %s segments\n", f.Key,
			humanize.Comma(int64(f.Points)), len(f.Levels), humanize.Comma(int64(segs)))
	}
	for key, reason := range res.Skipped {
		fmt.Fprintf(out, "  %-24s skipped: %s\n", key, reason)
	}
}
