package main

import (
	"context"
	"github.com/myrjola/novella/internal/checkpoint"
	"github.com/myrjola/novella/internal/errors"
	"github.com/myrjola/novella/internal/logging"
	"github.com/myrjola/novella/internal/sqlite"
	"github.com/myrjola/novella/internal/testhelpers"
	"log/slog"
	"os"
	"time"
)

// main opens the save database at NOVELLA_SQLITE_URL and decodes the global save and every bookmark, e.g. after a
// format or schema upgrade.
func main() {
	logger := testhelpers.NewLogger(os.Stdout)
	var (
		err       error
		start     = time.Now()
		ctx       context.Context
		sqliteURL string
		ok        bool
		cancel    context.CancelFunc
	)
	ctx = context.Background()
	ctx, cancel = context.WithTimeout(ctx, 30*time.Second) //nolint:mnd // 30 seconds

	if sqliteURL, ok = os.LookupEnv("NOVELLA_SQLITE_URL"); !ok {
		logger.LogAttrs(ctx, slog.LevelError, "NOVELLA_SQLITE_URL not set")
		os.Exit(1)
	}

	var db *sqlite.Database
	if db, err = sqlite.NewDatabase(ctx, sqliteURL, logger); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "error opening database",
			slog.String("url", sqliteURL), errors.SlogError(err))
		os.Exit(1)
	}

	saves := checkpoint.NewManager(logger, sqlite.NewStorage(db, logger), checkpoint.LogAlerter{Logger: logger}, 0)
	if err = saves.Load(ctx); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "error loading global save", errors.SlogError(err))
		os.Exit(1)
	}
	logger.LogAttrs(ctx, slog.LevelInfo, "global save loaded",
		slog.String("identifier", saves.GlobalSaveIdentifier()),
		slog.Any("reachedEnds", saves.ReachedEnds()))

	failed := 0
	for _, saveID := range saves.SaveIDs() {
		slotCtx := logging.WithSaveSlot(ctx, saveID)
		if _, err = saves.LoadBookmark(slotCtx, saveID); err != nil {
			logger.LogAttrs(slotCtx, slog.LevelError, "error loading bookmark", errors.SlogError(err))
			failed++
		}
	}
	if failed > 0 {
		logger.LogAttrs(ctx, slog.LevelError, "unreadable bookmarks found", slog.Int("count", failed))
		os.Exit(1)
	}

	if err = db.Close(ctx); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "error closing database", errors.SlogError(err))
	}
	logger.LogAttrs(ctx, slog.LevelInfo, "Save check successful 🙌",
		slog.Int("bookmarks", len(saves.SaveIDs())), slog.Duration("duration", time.Since(start)))
	cancel()
	os.Exit(0)
}
