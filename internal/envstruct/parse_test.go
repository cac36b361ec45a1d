package envstruct_test

import (
	"github.com/myrjola/novella/internal/envstruct"
	"github.com/stretchr/testify/require"
	"testing"
)

func TestPopulate(t *testing.T) {
	type saveConfig struct {
		Dir      string `env:"SAVE_DIR" envDefault:"./save"`
		MaxSteps int    `env:"MAX_STEPS" envDefault:"10"`
		Backend  string `env:"BACKEND"`
	}
	tests := []struct {
		name        string
		v           any
		environment map[string]string
		want        any
		wantErr     error
	}{
		{
			name:        "nil",
			v:           nil,
			environment: map[string]string{},
			wantErr:     envstruct.ErrInvalidValue,
		},
		{
			name:        "not pointer",
			v:           struct{}{},
			environment: map[string]string{},
			wantErr:     envstruct.ErrInvalidValue,
		},
		{
			name:        "pointer to non-struct",
			v:           new(int),
			environment: map[string]string{},
			wantErr:     envstruct.ErrInvalidValue,
		},
		{
			name:        "missing required variable",
			v:           &saveConfig{},
			environment: map[string]string{},
			wantErr:     envstruct.ErrEnvNotSet,
		},
		{
			name:        "defaults fill the gaps",
			v:           &saveConfig{},
			environment: map[string]string{"BACKEND": "file"},
			want:        &saveConfig{Dir: "./save", MaxSteps: 10, Backend: "file"},
		},
		{
			name:        "environment overrides defaults",
			v:           &saveConfig{},
			environment: map[string]string{"BACKEND": "sqlite", "SAVE_DIR": "/tmp/saves", "MAX_STEPS": "3"},
			want:        &saveConfig{Dir: "/tmp/saves", MaxSteps: 3, Backend: "sqlite"},
		},
		{
			name:        "unparsable number",
			v:           &saveConfig{},
			environment: map[string]string{"BACKEND": "file", "MAX_STEPS": "many"},
			wantErr:     envstruct.ErrInvalidValue,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := envstruct.Populate(tt.v, tt.environment)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, tt.v)
		})
	}
}
