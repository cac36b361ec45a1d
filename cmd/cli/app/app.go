// Package app wires the configuration, logging and save storage shared by the CLI commands.
package app

import (
	"context"
	"github.com/myrjola/novella/internal/checkpoint"
	"github.com/myrjola/novella/internal/config"
	"github.com/myrjola/novella/internal/errors"
	"github.com/myrjola/novella/internal/logging"
	"github.com/myrjola/novella/internal/savefile"
	"github.com/myrjola/novella/internal/sqlite"
	"github.com/spf13/cobra"
	"io"
	"log/slog"
	"os"
	"strings"
)

type App struct {
	Logger  *slog.Logger
	Config  config.Config
	Storage savefile.Storage
	Saves   *checkpoint.Manager
	db      *sqlite.Database
}

// Environment returns the process environment as a map.
func Environment() map[string]string {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}
	return env
}

// NewLogger logs text records to w. The verbose persistent flag of cmd enables debug records.
func NewLogger(cmd *cobra.Command, w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if verbose, err := cmd.Flags().GetBool("verbose"); err == nil && verbose {
		level = slog.LevelDebug
	}
	return slog.New(logging.NewContextHandler(slog.NewTextHandler(w, &slog.HandlerOptions{
		AddSource:   false,
		Level:       level,
		ReplaceAttr: nil,
	})))
}

// Open loads the configuration and the global save of the configured backend.
func Open(ctx context.Context, cmd *cobra.Command) (*App, error) {
	logger := NewLogger(cmd, cmd.ErrOrStderr())
	cfg, err := config.Load(Environment())
	if err != nil {
		return nil, errors.Wrap(err, "load config")
	}

	a := &App{Logger: logger, Config: cfg}
	switch cfg.SaveBackend {
	case config.BackendSQLite:
		if a.db, err = sqlite.NewDatabase(ctx, cfg.SQLiteURL, logger); err != nil {
			return nil, errors.Wrap(err, "open save database", slog.String("url", cfg.SQLiteURL))
		}
		a.Storage = sqlite.NewStorage(a.db, logger)
	default:
		if a.Storage, err = savefile.NewFileStorage(logger, cfg.SaveDir); err != nil {
			return nil, err
		}
	}

	a.Saves = checkpoint.NewManager(logger, a.Storage, checkpoint.LogAlerter{Logger: logger}, cfg.BookmarkCacheSize)
	if err = a.Saves.Load(ctx); err != nil {
		_ = a.Close(ctx)
		return nil, errors.Wrap(err, "load global save")
	}
	logger.LogAttrs(ctx, slog.LevelDebug, "saves opened",
		slog.String("backend", cfg.SaveBackend),
		slog.String("globalSave", a.Saves.GlobalSaveIdentifier()))
	return a, nil
}

// Close releases the save database, if any.
func (a *App) Close(ctx context.Context) error {
	if a.db == nil {
		return nil
	}
	return a.db.Close(ctx)
}
