package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/talgya/psexplorer/internal/aggregate"
	"github.com/talgya/psexplorer/internal/config"
	"github.com/talgya/psexplorer/internal/diagram"
	"github.com/talgya/psexplorer/internal/engine"
	"github.com/talgya/psexplorer/internal/expr"
	"github.com/talgya/psexplorer/internal/isopleth"
	"github.com/talgya/psexplorer/internal/persistence"
	"github.com/talgya/psexplorer/internal/project"
	"github.com/talgya/psexplorer/internal/solver"
	"github.com/talgya/psexplorer/internal/synthetic"
)

// app holds everything a command needs.
type app struct {
	cfg       config.Config
	session   *engine.Session
	collector *aggregate.Collector
	db        *persistence.DB
	runID     string
}

// openApp loads the configuration, builds the session and opens the database.
func openApp(cfgPath string, override func(*config.Config)) (*app, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	if override != nil {
		override(&cfg)
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	slog.SetDefault(config.NewLogger(cfg.Logging, os.Stderr))

	boundary, ch, err := buildSolver(cfg)
	if err != nil {
		return nil, err
	}
	sess, err := engine.NewSession(boundary, ch, engine.Options{})
	if err != nil {
		return nil, fmt.Errorf("build session: %w", err)
	}

	dbPath := cfg.Path(cfg.Database)
	db, err := persistence.Open(dbPath)
	if err != nil {
		return nil, err
	}
	slog.Info("database opened", "path", dbPath)

	a := &app{
		cfg:       cfg,
		session:   sess,
		collector: aggregate.NewCollector(sess, expr.New()),
		db:        db,
	}
	if id, err := db.GetMeta(persistence.MetaRunID); err == nil {
		a.runID = id
	}
	return a, nil
}

func (a *app) Close() error {
	return a.db.Close()
}

// loadGrid restores the saved grid into the session.
func (a *app) loadGrid() error {
	if err := a.db.LoadSession(a.session); err != nil {
		return fmt.Errorf("load grid (run the grid command first): %w", err)
	}
	return nil
}

// buildSolver wires the configured backend to its boundary data.
func buildSolver(cfg config.Config) (diagram.Boundary, *solver.Channel, error) {
	switch cfg.Solver.Backend {
	case config.BackendSynthetic:
		sc := synthetic.DefaultConfig()
		sc.Seed = cfg.Solver.Seed
		var boundary diagram.Boundary
		if cfg.Boundary != "" {
			b, err := project.Load(cfg.Path(cfg.Boundary))
			if err != nil {
				return nil, nil, err
			}
			sc.TRange, sc.PRange = b.Window()
			boundary = b
		}
		s := synthetic.New(sc)
		if boundary == nil {
			boundary = synthetic.NewBoundary(s, false)
		}
		return boundary, solver.NewChannel(s, s), nil

	case config.BackendProcess:
		b, err := project.Load(cfg.Path(cfg.Boundary))
		if err != nil {
			return nil, nil, err
		}
		proc := &solver.Process{
			Command: cfg.Solver.Command,
			Dir:     cfg.Workdir,
			LogFile: cfg.Solver.Log,
			Parser:  solver.JSONLog{},
		}
		var writer solver.GuessWriter
		if cfg.Solver.Script != "" {
			sg, err := solver.NewScriptGuess(cfg.Path(cfg.Solver.Script))
			if err != nil {
				return nil, nil, err
			}
			writer = sg
		} else {
			slog.Warn("no solver script configured, guesses are disabled")
		}
		return b, solver.NewChannel(proc, writer), nil
	}
	return nil, nil, fmt.Errorf("unknown solver backend %q", cfg.Solver.Backend)
}

// isoDefaults converts the isopleth section to interpolation options.
func isoDefaults(c config.Isopleths) (isopleth.Options, error) {
	src, err := diagram.ParseSources(c.Sources)
	if err != nil {
		return isopleth.Options{}, err
	}
	return isopleth.Options{
		Levels:  c.Values,
		N:       c.Levels,
		Step:    c.Step,
		Refine:  c.Refine,
		Smooth:  c.Smooth,
		Sources: src,
	}, nil
}
