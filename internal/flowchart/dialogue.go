package flowchart

import (
	"github.com/cespare/xxhash/v2"
	"github.com/myrjola/novella/internal/variables"
	"golang.org/x/text/language"
	"sort"
)

// DefaultLocale is the locale every story must provide texts for.
var DefaultLocale = language.English

// LocalizedText maps a locale to a text in that locale.
type LocalizedText map[language.Tag]string

// Get returns the text for locale, falling back to DefaultLocale.
func (t LocalizedText) Get(locale language.Tag) string {
	if s, ok := t[locale]; ok {
		return s
	}
	return t[DefaultLocale]
}

// Clone returns a copy that can be modified independently.
func (t LocalizedText) Clone() LocalizedText {
	if t == nil {
		return nil
	}
	c := make(LocalizedText, len(t))
	for k, v := range t {
		c[k] = v
	}
	return c
}

// sortedLocales returns the locales in a stable order for hashing.
func (t LocalizedText) sortedLocales() []language.Tag {
	tags := make([]language.Tag, 0, len(t))
	for tag := range t {
		tags = append(tags, tag)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i].String() < tags[j].String() })
	return tags
}

// ActionStage selects when an action of a dialogue entry runs.
type ActionStage uint8

const (
	// StageBeforeCheckpoint runs and settles before the reached record of the entry is written.
	StageBeforeCheckpoint ActionStage = iota
	// StageDefault holds the primary side effects of the entry.
	StageDefault
	// StageAfterDialogue runs after the new content is visible to the player.
	StageAfterDialogue

	stageCount
)

func (s ActionStage) String() string {
	switch s {
	case StageBeforeCheckpoint:
		return "before_checkpoint"
	case StageDefault:
		return "default"
	case StageAfterDialogue:
		return "after_dialogue"
	default:
		return "unknown"
	}
}

// Stages lists the action stages in execution order.
func Stages() []ActionStage {
	return []ActionStage{StageBeforeCheckpoint, StageDefault, StageAfterDialogue}
}

// Runtime is what an action may ask of the state machine while it runs.
type Runtime interface {
	// AcquirePause keeps the current stage from completing until a matching ReleasePause.
	AcquirePause()
	// ReleasePause releases one acquisition of the pause lock.
	ReleasePause()
	// RequestFallThrough advances to the next dialogue as soon as the current one completes.
	RequestFallThrough()
	// RequestJump moves to the named node as soon as the current dialogue completes.
	RequestJump(nodeName string)
	// SignalFence hands a value back to whoever is suspended on the fence, e.g. a branch selection.
	SignalFence(value int)
	// EnsureCheckpointOnNextDialogue forces a full checkpoint on the next dialogue.
	EnsureCheckpointOnNextDialogue()
	// RestrainCheckpoint suppresses checkpoints for the given number of steps.
	RestrainCheckpoint(steps int, authorized bool)
	// IsRestoring is true while dialogues are replayed towards a restore target.
	IsRestoring() bool
	// Stage is the stage of the running action.
	Stage() ActionStage
	// Variables are the live game variables.
	Variables() *variables.Variables
}

// Action is an opaque side effect supplied by the action runtime.
type Action func(rt Runtime)

// DisplayData is what observers need to show a dialogue.
type DisplayData struct {
	Character    string
	DisplayNames LocalizedText
	Texts        LocalizedText
}

// Name returns the display name in locale.
func (d DisplayData) Name(locale language.Tag) string {
	return d.DisplayNames.Get(locale)
}

// Text returns the dialogue text in locale.
func (d DisplayData) Text(locale language.Tag) string {
	return d.Texts.Get(locale)
}

// DialogueEntry is one unit of displayable content and its staged actions.
type DialogueEntry struct {
	character    string
	displayNames LocalizedText
	texts        LocalizedText
	actions      [stageCount]Action
	hash         uint64
}

// NewDialogueEntry creates an entry. actions may be nil or miss any stage.
func NewDialogueEntry(
	character string,
	displayNames LocalizedText,
	texts LocalizedText,
	actions map[ActionStage]Action,
) *DialogueEntry {
	e := &DialogueEntry{
		character:    character,
		displayNames: displayNames.Clone(),
		texts:        texts.Clone(),
	}
	if e.displayNames == nil {
		e.displayNames = LocalizedText{}
	}
	if e.texts == nil {
		e.texts = LocalizedText{}
	}
	for stage, action := range actions {
		if stage < stageCount {
			e.actions[stage] = action
		}
	}
	e.hash = e.computeHash()
	return e
}

func (e *DialogueEntry) computeHash() uint64 {
	d := xxhash.New()
	_, _ = d.WriteString(e.character)
	_, _ = d.Write([]byte{0})
	for _, text := range []LocalizedText{e.displayNames, e.texts} {
		for _, tag := range text.sortedLocales() {
			_, _ = d.WriteString(tag.String())
			_, _ = d.Write([]byte{0})
			_, _ = d.WriteString(text[tag])
			_, _ = d.Write([]byte{0})
		}
		_, _ = d.Write([]byte{1})
	}
	return d.Sum64()
}

// Character is the internal id of the speaking character.
func (e *DialogueEntry) Character() string {
	return e.character
}

// Hash identifies the content of the entry. It changes when any localized text changes.
func (e *DialogueEntry) Hash() uint64 {
	return e.hash
}

// Action returns the action for stage or nil.
func (e *DialogueEntry) Action(stage ActionStage) Action {
	if stage >= stageCount {
		return nil
	}
	return e.actions[stage]
}

// DisplayData returns a copy of the display data.
func (e *DialogueEntry) DisplayData() DisplayData {
	return DisplayData{
		Character:    e.character,
		DisplayNames: e.displayNames.Clone(),
		Texts:        e.texts.Clone(),
	}
}

func (e *DialogueEntry) addLocalized(locale language.Tag, displayName, text string) {
	e.displayNames[locale] = displayName
	e.texts[locale] = text
	e.hash = e.computeHash()
}
