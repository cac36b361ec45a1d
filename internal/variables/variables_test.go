package variables_test

import (
	"github.com/fxamacker/cbor/v2"
	"github.com/myrjola/novella/internal/variables"
	"github.com/stretchr/testify/require"
	"testing"
)

func TestHashIndependentOfInsertionOrder(t *testing.T) {
	a := variables.New()
	require.NoError(t, a.Set("met_alice", true))
	require.NoError(t, a.Set("gold", 12))
	require.NoError(t, a.Set("route", "north"))

	b := variables.New()
	require.NoError(t, b.Set("route", "north"))
	require.NoError(t, b.Set("met_alice", true))
	require.NoError(t, b.Set("gold", 12.0))

	require.Equal(t, a.Hash(), b.Hash())
	require.True(t, a.Equal(b))

	require.NoError(t, b.Set("gold", 13))
	require.NotEqual(t, a.Hash(), b.Hash())
}

func TestHashDistinguishesTypes(t *testing.T) {
	a := variables.New()
	require.NoError(t, a.Set("x", "1"))
	b := variables.New()
	require.NoError(t, b.Set("x", 1))
	require.NotEqual(t, a.Hash(), b.Hash())

	c := variables.New()
	require.NoError(t, c.Set("ab", "c"))
	d := variables.New()
	require.NoError(t, d.Set("a", "bc"))
	require.NotEqual(t, c.Hash(), d.Hash())
}

func TestSetNilRemoves(t *testing.T) {
	v := variables.New()
	empty := v.Hash()
	require.NoError(t, v.Set("flag", true))
	require.NotEqual(t, empty, v.Hash())

	require.NoError(t, v.Set("flag", nil))
	_, ok := v.Get("flag")
	require.False(t, ok)
	require.Equal(t, empty, v.Hash())

	// Removing an absent key is harmless.
	require.NoError(t, v.Set("never_set", nil))
	require.Equal(t, 0, v.Len())
}

func TestSetEqualValueKeepsHash(t *testing.T) {
	v := variables.New()
	require.NoError(t, v.Set("count", 3))
	h := v.Hash()
	require.NoError(t, v.Set("count", int64(3)))
	require.Equal(t, h, v.Hash())
}

func TestSetUnsupportedType(t *testing.T) {
	v := variables.New()
	require.ErrorIs(t, v.Set("list", []int{1}), variables.ErrUnsupportedType)
	require.Equal(t, 0, v.Len())
}

func TestTypedGetters(t *testing.T) {
	v := variables.New()
	require.NoError(t, v.Set("flag", true))
	require.NoError(t, v.Set("gold", 2.5))
	require.NoError(t, v.Set("numeric_text", "42"))
	require.NoError(t, v.Set("name", "Dupin"))
	require.NoError(t, v.Set("bool_text", "true"))

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"bool from bool", v.Bool("flag", false), true},
		{"bool from number", v.Bool("gold", false), true},
		{"bool from bool text", v.Bool("bool_text", false), true},
		{"bool default on bad text", v.Bool("name", false), false},
		{"bool default when missing", v.Bool("missing", true), true},
		{"number from number", v.Number("gold", 0), 2.5},
		{"number from bool", v.Number("flag", 0), 1.0},
		{"number from text", v.Number("numeric_text", 0), 42.0},
		{"number default on bad text", v.Number("name", -1), -1.0},
		{"int truncates", v.Int("gold", 0), 2},
		{"int default when missing", v.Int("missing", 7), 7},
		{"string from number", v.String("gold", ""), "2.5"},
		{"string from bool", v.String("flag", ""), "true"},
		{"string default when missing", v.String("missing", "none"), "none"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, tt.got)
		})
	}
}

func TestCloneIsIndependent(t *testing.T) {
	v := variables.New()
	require.NoError(t, v.Set("chapter", 1))
	c := v.Clone()
	require.Equal(t, v.Hash(), c.Hash())

	require.NoError(t, c.Set("chapter", 2))
	require.Equal(t, 1, v.Int("chapter", 0))
	require.NotEqual(t, v.Hash(), c.Hash())

	v.CopyFrom(c)
	require.Equal(t, 2, v.Int("chapter", 0))
	require.Equal(t, c.Hash(), v.Hash())
}

func TestCBORRoundTrip(t *testing.T) {
	v := variables.New()
	require.NoError(t, v.Set("flag", true))
	require.NoError(t, v.Set("gold", 12))
	require.NoError(t, v.Set("route", "north"))

	data, err := cbor.Marshal(v)
	require.NoError(t, err)

	got := variables.New()
	require.NoError(t, cbor.Unmarshal(data, got))
	require.True(t, v.Equal(got))
	require.Equal(t, v.Hash(), got.Hash())
	require.Equal(t, []string{"flag", "gold", "route"}, got.Names())
}
