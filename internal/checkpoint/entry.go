// Package checkpoint tracks which content has been reached and persists the global save and bookmarks.
package checkpoint

import (
	"github.com/myrjola/novella/internal/errors"
	"github.com/myrjola/novella/internal/variables"
)

// RestoreEntry is what is recorded for a reached dialogue: either a full Checkpoint or a SimpleEntry pointing back
// to the nearest checkpoint.
type RestoreEntry interface {
	// RestrainCheckpoint is the restrain counter at the time the entry was recorded.
	RestrainCheckpoint() int
	isRestoreEntry()
}

// Checkpoint is a full snapshot of the game.
type Checkpoint struct {
	// RestoreData maps restorable names to their opaque snapshots.
	RestoreData           map[string][]byte
	Variables             *variables.Variables
	RestrainCheckpointNum int
}

func (c *Checkpoint) RestrainCheckpoint() int { return c.RestrainCheckpointNum }
func (c *Checkpoint) isRestoreEntry()         {}

// SimpleEntry is reached by replaying StepsFromLastCheckpoint steps from a checkpoint.
type SimpleEntry struct {
	StepsFromLastCheckpoint int
	RestrainCheckpointNum   int
	// LastCheckpointVariablesHash is the variables hash under which the checkpoint was recorded.
	LastCheckpointVariablesHash uint64
}

func (s *SimpleEntry) RestrainCheckpoint() int { return s.RestrainCheckpointNum }
func (s *SimpleEntry) isRestoreEntry()         {}

type checkpointWire struct {
	RestoreData           map[string][]byte    `cbor:"1,keyasint,omitempty"`
	Variables             *variables.Variables `cbor:"2,keyasint"`
	RestrainCheckpointNum int                  `cbor:"3,keyasint,omitempty"`
}

type simpleEntryWire struct {
	StepsFromLastCheckpoint     int    `cbor:"1,keyasint"`
	RestrainCheckpointNum       int    `cbor:"2,keyasint,omitempty"`
	LastCheckpointVariablesHash uint64 `cbor:"3,keyasint"`
}

// restoreEntryWire is a tagged union. Exactly one field is set.
type restoreEntryWire struct {
	Checkpoint *checkpointWire  `cbor:"1,keyasint,omitempty"`
	Simple     *simpleEntryWire `cbor:"2,keyasint,omitempty"`
}

var errUnknownEntry = errors.NewSentinel("unknown restore entry")

func toEntryWire(e RestoreEntry) (restoreEntryWire, error) {
	switch entry := e.(type) {
	case *Checkpoint:
		vars := entry.Variables
		if vars == nil {
			vars = variables.New()
		}
		return restoreEntryWire{Checkpoint: &checkpointWire{
			RestoreData:           entry.RestoreData,
			Variables:             vars,
			RestrainCheckpointNum: entry.RestrainCheckpointNum,
		}}, nil
	case *SimpleEntry:
		return restoreEntryWire{Simple: &simpleEntryWire{
			StepsFromLastCheckpoint:     entry.StepsFromLastCheckpoint,
			RestrainCheckpointNum:       entry.RestrainCheckpointNum,
			LastCheckpointVariablesHash: entry.LastCheckpointVariablesHash,
		}}, nil
	default:
		return restoreEntryWire{}, errUnknownEntry
	}
}

func fromEntryWire(w restoreEntryWire) (RestoreEntry, error) {
	switch {
	case w.Checkpoint != nil:
		vars := w.Checkpoint.Variables
		if vars == nil {
			vars = variables.New()
		}
		return &Checkpoint{
			RestoreData:           w.Checkpoint.RestoreData,
			Variables:             vars,
			RestrainCheckpointNum: w.Checkpoint.RestrainCheckpointNum,
		}, nil
	case w.Simple != nil:
		return &SimpleEntry{
			StepsFromLastCheckpoint:     w.Simple.StepsFromLastCheckpoint,
			RestrainCheckpointNum:       w.Simple.RestrainCheckpointNum,
			LastCheckpointVariablesHash: w.Simple.LastCheckpointVariablesHash,
		}, nil
	default:
		return nil, errUnknownEntry
	}
}
