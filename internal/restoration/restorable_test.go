package restoration_test

import (
	"bytes"
	"context"
	"github.com/myrjola/novella/internal/restoration"
	"github.com/myrjola/novella/internal/testhelpers"
	"github.com/stretchr/testify/require"
	"io"
	"testing"
)

type counter struct {
	name     string
	priority restoration.Priority
	value    int
	restored *[]string
}

func (c *counter) RestorableName() string                { return c.name }
func (c *counter) RestorePriority() restoration.Priority { return c.priority }

func (c *counter) RestoreData() ([]byte, error) {
	return restoration.Encode(c.value)
}

func (c *counter) Restore(data []byte) error {
	*c.restored = append(*c.restored, c.name)
	return restoration.Decode(data, &c.value)
}

type plain struct {
	restored *[]string
}

func (p *plain) RestorableName() string       { return "plain" }
func (p *plain) RestoreData() ([]byte, error) { return []byte{1}, nil }
func (p *plain) Restore([]byte) error {
	*p.restored = append(*p.restored, "plain")
	return nil
}

func TestRestoreOrder(t *testing.T) {
	var restored []string
	r := restoration.NewRegistry(testhelpers.NewLogger(io.Discard))
	require.NoError(t, r.Add(&counter{name: "ui", priority: restoration.PriorityLate, restored: &restored}))
	require.NoError(t, r.Add(&plain{restored: &restored}))
	require.NoError(t, r.Add(&counter{name: "assets", priority: restoration.PriorityPreload, restored: &restored}))
	require.NoError(t, r.Add(&counter{name: "audio", priority: restoration.PriorityEarly, restored: &restored}))

	snapshot, err := r.Snapshot()
	require.NoError(t, err)
	require.Len(t, snapshot, 4)

	require.NoError(t, r.Restore(context.Background(), snapshot))
	require.Equal(t, []string{"assets", "audio", "plain", "ui"}, restored)
}

func TestRestoreValues(t *testing.T) {
	var restored []string
	c := &counter{name: "score", priority: restoration.PriorityNormal, value: 7, restored: &restored}
	r := restoration.NewRegistry(testhelpers.NewLogger(io.Discard))
	require.NoError(t, r.Add(c))

	snapshot, err := r.Snapshot()
	require.NoError(t, err)
	c.value = 99
	require.NoError(t, r.Restore(context.Background(), snapshot))
	require.Equal(t, 7, c.value)
}

func TestRestoreSkipsUnknownNames(t *testing.T) {
	var logs bytes.Buffer
	var restored []string
	r := restoration.NewRegistry(testhelpers.NewLogger(&logs))
	require.NoError(t, r.Add(&plain{restored: &restored}))

	err := r.Restore(context.Background(), map[string][]byte{
		"plain":   {1},
		"removed": {2},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"plain"}, restored)
	require.Contains(t, logs.String(), "skipping restore data of unknown restorable")
	require.Contains(t, logs.String(), "removed")
}

func TestAddValidation(t *testing.T) {
	var restored []string
	r := restoration.NewRegistry(testhelpers.NewLogger(io.Discard))
	require.NoError(t, r.Add(&plain{restored: &restored}))
	require.ErrorIs(t, r.Add(&plain{restored: &restored}), restoration.ErrDuplicateName)
	require.ErrorIs(t, r.Add(&counter{restored: &restored}), restoration.ErrEmptyName)

	r.Remove("plain")
	require.Equal(t, 0, r.Len())
}
