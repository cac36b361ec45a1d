package config_test

import (
	"github.com/myrjola/novella/internal/config"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
	"testing"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name        string
		environment map[string]string
		check       func(t *testing.T, cfg config.Config)
		wantErr     error
	}{
		{
			name:        "defaults",
			environment: map[string]string{},
			check: func(t *testing.T, cfg config.Config) {
				require.Equal(t, "./save", cfg.SaveDir)
				require.Equal(t, config.BackendFile, cfg.SaveBackend)
				require.Equal(t, 10, cfg.MaxStepsFromLastCheckpoint)
				require.Equal(t, 32, cfg.BookmarkCacheSize)
				require.Equal(t, language.English, cfg.LocaleTag())
			},
		},
		{
			name: "sqlite backend with japanese locale",
			environment: map[string]string{
				"NOVELLA_SAVE_BACKEND": "sqlite",
				"NOVELLA_SQLITE_URL":   ":memory:",
				"NOVELLA_LOCALE":       "ja",
			},
			check: func(t *testing.T, cfg config.Config) {
				require.Equal(t, config.BackendSQLite, cfg.SaveBackend)
				require.Equal(t, ":memory:", cfg.SQLiteURL)
				require.Equal(t, language.Japanese, cfg.LocaleTag())
			},
		},
		{
			name:        "unknown backend",
			environment: map[string]string{"NOVELLA_SAVE_BACKEND": "cloud"},
			wantErr:     config.ErrInvalidConfig,
		},
		{
			name:        "zero checkpoint distance",
			environment: map[string]string{"NOVELLA_MAX_STEPS_FROM_LAST_CHECKPOINT": "0"},
			wantErr:     config.ErrInvalidConfig,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := config.Load(tt.environment)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}
