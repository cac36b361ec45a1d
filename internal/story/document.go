// Package story reads declarative story files and compiles them into a flow chart.
//
// A story file is JSON or YAML. Every dialogue may carry simple variable effects and every branch a list of
// conditions, which is enough to write branching stories without Go code.
package story

import (
	"encoding/json"
	"github.com/myrjola/novella/internal/errors"
	"github.com/myrjola/novella/internal/flowchart"
	"gopkg.in/yaml.v3"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
)

var (
	ErrInvalidStory  = errors.NewSentinel("invalid story")
	ErrUnknownFormat = errors.NewSentinel("unknown story file format")
)

// Format is the encoding of a story file.
type Format int

const (
	FormatJSON Format = iota
	FormatYAML
)

func (f Format) String() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatYAML:
		return "yaml"
	default:
		return "unknown"
	}
}

// FormatOf picks the format from the file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	default:
		return 0, errors.Wrap(ErrUnknownFormat, "detect story format", slog.String("path", path))
	}
}

// Document is the decoded form of a story file.
type Document struct {
	Title string `json:"title" yaml:"title"`
	// DefaultStart names the start point used when none is given. The first start point is used when empty.
	DefaultStart string  `json:"default_start" yaml:"default_start"`
	Starts       []Start `json:"starts" yaml:"starts"`
	Nodes        []Node  `json:"nodes" yaml:"nodes"`
}

// Start registers Node as a start point. Type is "unlocked" (the default), "locked" or "debug".
type Start struct {
	Name string `json:"name" yaml:"name"`
	Node string `json:"node" yaml:"node"`
	Type string `json:"type" yaml:"type"`
}

type Node struct {
	Name string `json:"name" yaml:"name"`
	// Kind is "normal" (the default), "branching" or "end".
	Kind        string     `json:"kind" yaml:"kind"`
	DisplayName Text       `json:"display_name" yaml:"display_name"`
	Dialogues   []Dialogue `json:"dialogues" yaml:"dialogues"`
	// Next is the successor of a normal node.
	Next     string   `json:"next" yaml:"next"`
	Branches []Branch `json:"branches" yaml:"branches"`
	// End registers the node as an end point with this name.
	End string `json:"end" yaml:"end"`
}

// Dialogue is one dialogue entry. Its effects run in the default action stage in field order.
type Dialogue struct {
	Character string `json:"character" yaml:"character"`
	Name      Text   `json:"name" yaml:"name"`
	Text      Text   `json:"text" yaml:"text"`
	// Set assigns variables. A null value removes the variable.
	Set map[string]any `json:"set" yaml:"set"`
	// Add increments numeric variables, treating missing ones as zero.
	Add                map[string]float64 `json:"add" yaml:"add"`
	RestrainCheckpoint int                `json:"restrain_checkpoint" yaml:"restrain_checkpoint"`
	// Checkpoint forces a checkpoint on the next dialogue.
	Checkpoint  bool   `json:"checkpoint" yaml:"checkpoint"`
	Jump        string `json:"jump" yaml:"jump"`
	FallThrough bool   `json:"fall_through" yaml:"fall_through"`
}

type Branch struct {
	Name string `json:"name" yaml:"name"`
	Text Text   `json:"text" yaml:"text"`
	Next string `json:"next" yaml:"next"`
	// Mode is "normal" (the default), "jump", "show" or "enable".
	Mode string `json:"mode" yaml:"mode"`
	// When holds if every condition holds.
	When []Condition `json:"when" yaml:"when"`
}

// Condition compares the variable Var with Value. Op is one of "truthy" (the default), "falsy", "eq", "ne", "lt",
// "le", "gt" and "ge". The ordering operators only hold for numbers.
type Condition struct {
	Var   string `json:"var" yaml:"var"`
	Op    string `json:"op" yaml:"op"`
	Value any    `json:"value" yaml:"value"`
}

// Text is a localized string keyed by BCP 47 tag. A plain string decodes as text in the default locale.
type Text map[string]string

func (t *Text) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*t = Text{flowchart.DefaultLocale.String(): s}
		return nil
	}
	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		return errors.Wrap(err, "decode localized text")
	}
	*t = m
	return nil
}

func (t *Text) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		*t = Text{flowchart.DefaultLocale.String(): value.Value}
		return nil
	}
	var m map[string]string
	if err := value.Decode(&m); err != nil {
		return errors.Wrap(err, "decode localized text", slog.Int("line", value.Line))
	}
	*t = m
	return nil
}

// Parse decodes a story document. Unknown fields are rejected.
func Parse(r io.Reader, format Format) (*Document, error) {
	var doc Document
	switch format {
	case FormatJSON:
		dec := json.NewDecoder(r)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&doc); err != nil {
			return nil, errors.Wrap(errors.Join(ErrInvalidStory, err), "decode json story")
		}
	case FormatYAML:
		dec := yaml.NewDecoder(r)
		dec.KnownFields(true)
		if err := dec.Decode(&doc); err != nil {
			return nil, errors.Wrap(errors.Join(ErrInvalidStory, err), "decode yaml story")
		}
	default:
		return nil, errors.Wrap(ErrUnknownFormat, "parse story", slog.String("format", format.String()))
	}
	return &doc, nil
}
