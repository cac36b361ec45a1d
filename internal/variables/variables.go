// Package variables implements the typed game variable store.
//
// The content hash of a store is the key that separates "reached" records of playthroughs that visit the same
// dialogue with different variable bindings.
package variables

import (
	"fmt"
	"github.com/cespare/xxhash/v2"
	"github.com/fxamacker/cbor/v2"
	"github.com/myrjola/novella/internal/errors"
	"log/slog"
	"reflect"
	"sort"
	"strconv"
)

// Type of a variable value.
type Type uint8

const (
	TypeBoolean Type = iota
	TypeNumber
	TypeString
)

func (t Type) String() string {
	switch t {
	case TypeBoolean:
		return "boolean"
	case TypeNumber:
		return "number"
	case TypeString:
		return "string"
	default:
		return fmt.Sprintf("Type(%d)", uint8(t))
	}
}

var ErrUnsupportedType = errors.NewSentinel("variable can only be bool, number, string or nil")

// Entry is a single typed value. Only the field matching Type is meaningful.
type Entry struct {
	Type   Type
	Bool   bool
	Number float64
	String string
}

// Value returns the entry as bool, float64 or string.
func (e Entry) Value() any {
	switch e.Type {
	case TypeBoolean:
		return e.Bool
	case TypeNumber:
		return e.Number
	default:
		return e.String
	}
}

func (e Entry) format() string {
	switch e.Type {
	case TypeBoolean:
		return strconv.FormatBool(e.Bool)
	case TypeNumber:
		// Shortest representation that round-trips, independent of locale and platform.
		return strconv.FormatFloat(e.Number, 'g', -1, 64)
	default:
		return e.String
	}
}

// Variables is an ordered name to value map with a lazily computed content hash.
//
// The zero value is ready to use. Variables is not safe for concurrent use.
type Variables struct {
	entries   map[string]Entry
	hash      uint64
	hashValid bool
}

// New creates an empty store.
func New() *Variables {
	return &Variables{}
}

// Len returns the number of variables.
func (v *Variables) Len() int {
	return len(v.entries)
}

// Names returns the variable names in sorted order.
func (v *Variables) Names() []string {
	names := make([]string, 0, len(v.entries))
	for name := range v.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get returns the entry stored under name.
func (v *Variables) Get(name string) (Entry, bool) {
	e, ok := v.entries[name]
	return e, ok
}

// SetEntry stores e under name. Storing an entry equal to the current one does not invalidate the hash.
func (v *Variables) SetEntry(name string, e Entry) {
	if old, ok := v.entries[name]; ok && old == e {
		return
	}
	if v.entries == nil {
		v.entries = make(map[string]Entry)
	}
	v.entries[name] = e
	v.hashValid = false
}

// Delete removes name from the store.
func (v *Variables) Delete(name string) {
	if _, ok := v.entries[name]; !ok {
		return
	}
	delete(v.entries, name)
	v.hashValid = false
}

// Set stores value under name. A nil value removes the variable.
//
// Booleans, strings and every Go numeric kind are accepted; numbers are stored as float64.
func (v *Variables) Set(name string, value any) error {
	if value == nil {
		v.Delete(name)
		return nil
	}
	switch x := value.(type) {
	case bool:
		v.SetEntry(name, Entry{Type: TypeBoolean, Bool: x})
		return nil
	case string:
		v.SetEntry(name, Entry{Type: TypeString, String: x})
		return nil
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		v.SetEntry(name, Entry{Type: TypeNumber, Number: float64(rv.Int())})
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		v.SetEntry(name, Entry{Type: TypeNumber, Number: float64(rv.Uint())})
	case reflect.Float32, reflect.Float64:
		v.SetEntry(name, Entry{Type: TypeNumber, Number: rv.Float()})
	default:
		return errors.Wrap(ErrUnsupportedType, "set variable",
			slog.String("name", name), slog.String("goType", rv.Type().String()))
	}
	return nil
}

// Bool reads name as a boolean. Numbers are true when non-zero and strings are parsed with strconv.ParseBool.
func (v *Variables) Bool(name string, defaultValue bool) bool {
	e, ok := v.entries[name]
	if !ok {
		return defaultValue
	}
	switch e.Type {
	case TypeBoolean:
		return e.Bool
	case TypeNumber:
		return e.Number != 0
	default:
		b, err := strconv.ParseBool(e.String)
		if err != nil {
			return defaultValue
		}
		return b
	}
}

// Number reads name as a float64. Booleans convert to 0 or 1 and strings are parsed.
func (v *Variables) Number(name string, defaultValue float64) float64 {
	e, ok := v.entries[name]
	if !ok {
		return defaultValue
	}
	switch e.Type {
	case TypeNumber:
		return e.Number
	case TypeBoolean:
		if e.Bool {
			return 1
		}
		return 0
	default:
		f, err := strconv.ParseFloat(e.String, 64)
		if err != nil {
			return defaultValue
		}
		return f
	}
}

// Int reads name as a number truncated towards zero.
func (v *Variables) Int(name string, defaultValue int) int {
	if _, ok := v.entries[name]; !ok {
		return defaultValue
	}
	f := v.Number(name, float64(defaultValue))
	return int(f)
}

// String reads name formatted as a string.
func (v *Variables) String(name string, defaultValue string) string {
	e, ok := v.entries[name]
	if !ok {
		return defaultValue
	}
	return e.format()
}

// Hash returns the content hash. Stores holding the same names, types and values hash equally regardless of the
// order in which they were set.
func (v *Variables) Hash() uint64 {
	if v.hashValid {
		return v.hash
	}
	d := xxhash.New()
	for _, name := range v.Names() {
		e := v.entries[name]
		// Length prefixes keep "a=bc" and "ab=c" apart.
		_, _ = d.WriteString(strconv.Itoa(len(name)))
		_, _ = d.WriteString(name)
		_, _ = d.Write([]byte{byte(e.Type)})
		value := e.format()
		_, _ = d.WriteString(strconv.Itoa(len(value)))
		_, _ = d.WriteString(value)
	}
	v.hash = d.Sum64()
	v.hashValid = true
	return v.hash
}

// Clone returns a deep copy.
func (v *Variables) Clone() *Variables {
	c := &Variables{}
	c.CopyFrom(v)
	return c
}

// CopyFrom replaces the contents of v with those of other.
func (v *Variables) CopyFrom(other *Variables) {
	v.entries = make(map[string]Entry, len(other.entries))
	for name, e := range other.entries {
		v.entries[name] = e
	}
	v.hash = other.hash
	v.hashValid = other.hashValid
}

// Clear removes every variable.
func (v *Variables) Clear() {
	v.entries = nil
	v.hashValid = false
}

// Equal reports whether both stores hold the same variables.
func (v *Variables) Equal(other *Variables) bool {
	if v.Len() != other.Len() {
		return false
	}
	for name, e := range v.entries {
		if o, ok := other.entries[name]; !ok || o != e {
			return false
		}
	}
	return true
}

type wireEntry struct {
	_      struct{} `cbor:",toarray"`
	Name   string
	Type   Type
	Bool   bool
	Number float64
	String string
}

// MarshalCBOR encodes the variables as a name-sorted array so that equal stores encode identically.
func (v *Variables) MarshalCBOR() ([]byte, error) {
	wire := make([]wireEntry, 0, len(v.entries))
	for _, name := range v.Names() {
		e := v.entries[name]
		wire = append(wire, wireEntry{Name: name, Type: e.Type, Bool: e.Bool, Number: e.Number, String: e.String})
	}
	data, err := cbor.Marshal(wire)
	if err != nil {
		return nil, errors.Wrap(err, "marshal variables")
	}
	return data, nil
}

// UnmarshalCBOR decodes data written by MarshalCBOR.
func (v *Variables) UnmarshalCBOR(data []byte) error {
	var wire []wireEntry
	if err := cbor.Unmarshal(data, &wire); err != nil {
		return errors.Wrap(err, "unmarshal variables")
	}
	v.Clear()
	for _, w := range wire {
		if w.Type > TypeString {
			return errors.Wrap(ErrUnsupportedType, "unmarshal variables", slog.String("name", w.Name))
		}
		v.SetEntry(w.Name, Entry{Type: w.Type, Bool: w.Bool, Number: w.Number, String: w.String})
	}
	return nil
}
