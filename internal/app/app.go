package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/vk/cellgridgo/internal/cell"
	"github.com/vk/cellgridgo/internal/ctxlog"
	"github.com/vk/cellgridgo/internal/events"
	"github.com/vk/cellgridgo/internal/kernel"
	"github.com/vk/cellgridgo/internal/notebook"
)

// App encapsulates the application's dependencies, configuration, and
// lifecycle: one loaded notebook driven through one kernel.
type App struct {
	outW     io.Writer
	logger   *slog.Logger
	config   *Config
	kernel   *kernel.Kernel
	recorder *events.Recorder
	order    []cell.ID
}

// NewApp constructs the application: it configures logging, loads the
// notebook from disk and registers every cell with a fresh kernel.
// Registration problems (parse errors, conflicting definitions) are not
// fatal here; the affected cells simply surface as skipped when the
// notebook runs.
func NewApp(outW io.Writer, cfg *Config) (*App, error) {
	logger := newLogger(cfg, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	nb, err := notebook.Load(ctx, cfg.NotebookPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load notebook: %w", err)
	}
	logger.Debug("Notebook loaded.", "cells", len(nb.Cells))

	recorder := &events.Recorder{}
	k := kernel.New(kernel.Options{
		CellTimeout: cfg.CellTimeout,
		EventBuffer: cfg.EventBuffer,
		Sink:        recorder,
	})

	a := &App{
		outW:     outW,
		logger:   logger,
		config:   cfg,
		kernel:   k,
		recorder: recorder,
	}
	for _, src := range nb.Cells {
		res := k.AddOrUpdateCell(ctx, src.ID, src.Source)
		a.order = append(a.order, src.ID)
		switch res.Outcome {
		case kernel.RegistrationOK:
		case kernel.RegistrationConflict:
			logger.Warn("Cell conflicts with another definition.", "cell", src.ID, "error", res.Conflicts[0])
		default:
			logger.Warn("Cell failed to register.", "cell", src.ID, "error", res.Error())
		}
	}
	logger.Debug("All cells registered.", "count", len(nb.Cells))

	return a, nil
}

// Kernel returns the application's kernel. This is primarily for testing.
func (a *App) Kernel() *kernel.Kernel {
	return a.kernel
}

// History returns every status event recorded so far, in emission order.
func (a *App) History() []events.Event {
	return a.recorder.Events()
}
