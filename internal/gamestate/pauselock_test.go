package gamestate_test

import (
	"github.com/myrjola/novella/internal/gamestate"
	"github.com/stretchr/testify/require"
	"testing"
)

func TestPauseLock(t *testing.T) {
	var l gamestate.PauseLock
	require.False(t, l.Locked())
	require.Panics(t, l.Release)

	l.Acquire()
	l.Acquire()
	require.True(t, l.Locked())
	l.Release()
	require.True(t, l.Locked())
	l.Release()
	require.False(t, l.Locked())

	l.Acquire()
	l.Reset()
	require.False(t, l.Locked())
}
