// Package config holds the runtime configuration of the engine and its tooling.
package config

import (
	"github.com/myrjola/novella/internal/envstruct"
	"github.com/myrjola/novella/internal/errors"
	"golang.org/x/text/language"
	"log/slog"
)

const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

var ErrInvalidConfig = errors.NewSentinel("invalid configuration")

// Config is populated from NOVELLA_* environment variables.
type Config struct {
	// SaveDir is the directory holding global.nsav and the bookmark slots when the file backend is used.
	SaveDir string `env:"NOVELLA_SAVE_DIR" envDefault:"./save"`
	// SaveBackend selects where save files are stored, either "file" or "sqlite".
	SaveBackend string `env:"NOVELLA_SAVE_BACKEND" envDefault:"file"`
	// SQLiteURL is the database path used by the sqlite backend. ":memory:" is accepted for testing.
	SQLiteURL string `env:"NOVELLA_SQLITE_URL" envDefault:"./novella.sqlite"`
	// MaxStepsFromLastCheckpoint bounds how many dialogues are replayed when restoring a simple entry.
	MaxStepsFromLastCheckpoint int `env:"NOVELLA_MAX_STEPS_FROM_LAST_CHECKPOINT" envDefault:"10"`
	// BookmarkCacheSize is the number of bookmarks kept decoded in memory.
	BookmarkCacheSize int `env:"NOVELLA_BOOKMARK_CACHE_SIZE" envDefault:"32"`
	// Locale is the BCP 47 tag used when displaying dialogue text.
	Locale string `env:"NOVELLA_LOCALE" envDefault:"en"`
}

// Load reads the configuration from environment and validates it.
func Load(environment map[string]string) (Config, error) {
	var cfg Config
	if err := envstruct.Populate(&cfg, environment); err != nil {
		return Config{}, errors.Wrap(err, "populate config")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if c.SaveBackend != BackendFile && c.SaveBackend != BackendSQLite {
		return errors.Wrap(ErrInvalidConfig, "unknown save backend", slog.String("backend", c.SaveBackend))
	}
	if c.MaxStepsFromLastCheckpoint < 1 {
		return errors.Wrap(ErrInvalidConfig, "max steps from last checkpoint must be positive",
			slog.Int("maxSteps", c.MaxStepsFromLastCheckpoint))
	}
	if c.BookmarkCacheSize < 1 {
		return errors.Wrap(ErrInvalidConfig, "bookmark cache size must be positive",
			slog.Int("cacheSize", c.BookmarkCacheSize))
	}
	if _, err := language.Parse(c.Locale); err != nil {
		return errors.Wrap(ErrInvalidConfig, "invalid locale", slog.String("locale", c.Locale))
	}
	return nil
}

// LocaleTag returns the configured locale, falling back to English for unparsable values.
func (c Config) LocaleTag() language.Tag {
	tag, err := language.Parse(c.Locale)
	if err != nil {
		return language.English
	}
	return tag
}
