package envstruct

import (
	"github.com/caarlos0/env/v11"
	"github.com/myrjola/novella/internal/errors"
	"log/slog"
	"reflect"
)

var (
	ErrEnvNotSet    = errors.NewSentinel("environment variable not set")
	ErrInvalidValue = errors.NewSentinel("v must be a pointer to a struct")
)

// Populate populates the fields of the pointer to struct v with values from the environment.
//
// environment holds the variables to read, typically env.ToMap(os.Environ()). Fields in the struct v must be tagged
// with `env:"ENV_VAR"` where ENV_VAR is the name of the environment variable. If no environment variable matching
// ENV_VAR is provided, the field must be tagged with default value `envDefault:"value"` or else ErrEnvNotSet is
// returned.
func Populate(v any, environment map[string]string) error {
	ptrRef := reflect.ValueOf(v)
	if ptrRef.Kind() != reflect.Ptr {
		return errors.Wrap(ErrInvalidValue, "not pointer", slog.Any("v", v))
	}
	if ptrRef.Elem().Kind() != reflect.Struct {
		return errors.Wrap(ErrInvalidValue, "not struct", slog.Any("v", v))
	}

	var missing []error
	refType := ptrRef.Elem().Type()
	for i := range refType.NumField() {
		tag := refType.Field(i).Tag
		envVarName, ok := tag.Lookup("env")
		if !ok {
			continue
		}
		if _, set := environment[envVarName]; set {
			continue
		}
		if _, hasDefault := tag.Lookup("envDefault"); !hasDefault {
			missing = append(missing, errors.Wrap(ErrEnvNotSet, "environment variable not set",
				slog.String("envVarName", envVarName)))
		}
	}
	if len(missing) != 0 {
		return errors.Join(missing...)
	}

	if err := env.ParseWithOptions(v, env.Options{Environment: environment}); err != nil {
		return errors.Wrap(ErrInvalidValue, err.Error(), slog.String("type", refType.Name()))
	}
	return nil
}
