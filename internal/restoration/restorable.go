// Package restoration defines how stateful collaborators take part in checkpoints.
//
// A collaborator registers under a unique, stable name. When a checkpoint is taken, every registered component
// produces an opaque blob. When one is applied, blobs are handed back in descending priority order so that
// infrastructure is restored before the components that depend on it.
package restoration

import (
	"context"
	"github.com/fxamacker/cbor/v2"
	"github.com/myrjola/novella/internal/errors"
	"log/slog"
	"sort"
)

// Priority orders restoration. Higher priorities are restored first.
type Priority int

const (
	PriorityLate    Priority = 0
	PriorityNormal  Priority = 1
	PriorityEarly   Priority = 2
	PriorityPreload Priority = 3
)

func (p Priority) String() string {
	switch p {
	case PriorityLate:
		return "late"
	case PriorityNormal:
		return "normal"
	case PriorityEarly:
		return "early"
	case PriorityPreload:
		return "preload"
	default:
		return "custom"
	}
}

var (
	ErrDuplicateName = errors.NewSentinel("restorable name already registered")
	ErrEmptyName     = errors.NewSentinel("restorable name is empty")
)

// Restorable is implemented by every component whose state must survive save and rewind.
type Restorable interface {
	// RestorableName is unique and stable across versions.
	RestorableName() string
	// RestoreData snapshots the current state.
	RestoreData() ([]byte, error)
	// Restore applies a snapshot produced by RestoreData.
	Restore(data []byte) error
}

// PrioritizedRestorable overrides the default PriorityNormal.
type PrioritizedRestorable interface {
	Restorable
	RestorePriority() Priority
}

// PriorityOf returns the restore priority of r.
func PriorityOf(r Restorable) Priority {
	if p, ok := r.(PrioritizedRestorable); ok {
		return p.RestorePriority()
	}
	return PriorityNormal
}

// Sort orders rs by descending priority. Equal priorities are ordered by name.
func Sort(rs []Restorable) {
	sort.SliceStable(rs, func(i, j int) bool {
		pi, pj := PriorityOf(rs[i]), PriorityOf(rs[j])
		if pi != pj {
			return pi > pj
		}
		return rs[i].RestorableName() < rs[j].RestorableName()
	})
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	// Equal states encode to identical bytes.
	if encMode, err = cbor.CoreDetEncOptions().EncMode(); err != nil {
		panic(err)
	}
	if decMode, err = (cbor.DecOptions{}).DecMode(); err != nil {
		panic(err)
	}
}

// Encode serializes v for use as restore data.
func Encode(v any) ([]byte, error) {
	data, err := encMode.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "encode restore data")
	}
	return data, nil
}

// Decode deserializes restore data produced by Encode into v.
func Decode(data []byte, v any) error {
	if err := decMode.Unmarshal(data, v); err != nil {
		return errors.Wrap(err, "decode restore data")
	}
	return nil
}

// Registry holds the restorables of a game.
type Registry struct {
	logger      *slog.Logger
	restorables map[string]Restorable
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:      logger.With("source", "Restoration"),
		restorables: make(map[string]Restorable),
	}
}

// Add registers r under its name.
func (r *Registry) Add(restorable Restorable) error {
	name := restorable.RestorableName()
	if name == "" {
		return ErrEmptyName
	}
	if _, ok := r.restorables[name]; ok {
		return errors.Wrap(ErrDuplicateName, "add restorable", slog.String("name", name))
	}
	r.restorables[name] = restorable
	return nil
}

// Remove unregisters the restorable called name.
func (r *Registry) Remove(name string) {
	delete(r.restorables, name)
}

// Len returns the number of registered restorables.
func (r *Registry) Len() int {
	return len(r.restorables)
}

// Ordered returns the restorables in restore order.
func (r *Registry) Ordered() []Restorable {
	rs := make([]Restorable, 0, len(r.restorables))
	for _, restorable := range r.restorables {
		rs = append(rs, restorable)
	}
	Sort(rs)
	return rs
}

// Snapshot collects the restore data of every registered restorable.
func (r *Registry) Snapshot() (map[string][]byte, error) {
	data := make(map[string][]byte, len(r.restorables))
	for name, restorable := range r.restorables {
		blob, err := restorable.RestoreData()
		if err != nil {
			return nil, errors.Wrap(err, "snapshot restorable", slog.String("name", name))
		}
		data[name] = blob
	}
	return data, nil
}

// Restore hands every blob in data to its restorable in priority order. Blobs of restorables that are no longer
// registered are skipped with a warning. Restorables without a blob are left untouched.
func (r *Registry) Restore(ctx context.Context, data map[string][]byte) error {
	for name := range data {
		if _, ok := r.restorables[name]; !ok {
			r.logger.LogAttrs(ctx, slog.LevelWarn, "skipping restore data of unknown restorable",
				slog.String("name", name))
		}
	}
	for _, restorable := range r.Ordered() {
		blob, ok := data[restorable.RestorableName()]
		if !ok {
			continue
		}
		if err := restorable.Restore(blob); err != nil {
			return errors.Wrap(err, "restore restorable", slog.String("name", restorable.RestorableName()))
		}
	}
	return nil
}
