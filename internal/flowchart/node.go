package flowchart

import (
	"fmt"
	"github.com/myrjola/novella/internal/errors"
	"github.com/myrjola/novella/internal/variables"
	"golang.org/x/text/language"
	"log/slog"
)

// NodeKind decides what happens when the last dialogue of a node has been shown.
type NodeKind uint8

const (
	// NodeKindNormal continues to its single successor.
	NodeKindNormal NodeKind = iota
	// NodeKindBranching lets conditions or the player pick a successor.
	NodeKindBranching
	// NodeKindEnd finishes the route.
	NodeKindEnd
)

func (k NodeKind) String() string {
	switch k {
	case NodeKindNormal:
		return "normal"
	case NodeKindBranching:
		return "branching"
	case NodeKindEnd:
		return "end"
	default:
		return fmt.Sprintf("NodeKind(%d)", uint8(k))
	}
}

// BranchMode controls how a branch takes part in branch resolution.
type BranchMode uint8

const (
	// BranchModeNormal is always offered to the player.
	BranchModeNormal BranchMode = iota
	// BranchModeJump is taken without asking the player when its condition holds.
	BranchModeJump
	// BranchModeShow is offered only when its condition holds.
	BranchModeShow
	// BranchModeEnable is always offered but inactive when its condition fails.
	BranchModeEnable
)

func (m BranchMode) String() string {
	switch m {
	case BranchModeNormal:
		return "normal"
	case BranchModeJump:
		return "jump"
	case BranchModeShow:
		return "show"
	case BranchModeEnable:
		return "enable"
	default:
		return fmt.Sprintf("BranchMode(%d)", uint8(m))
	}
}

// DefaultBranchName is reserved for the implicit branch of normal nodes.
const DefaultBranchName = "default"

// Condition decides whether a branch is available under the given variables.
type Condition func(vars *variables.Variables) bool

// BranchImage describes an image button used instead of, or next to, the branch text.
type BranchImage struct {
	Name  string
	X     float64
	Y     float64
	Scale float64
}

// BranchInfo describes one outgoing edge of a node. Branches are identified by name.
type BranchInfo struct {
	Name      string
	Texts     LocalizedText
	Image     *BranchImage
	Mode      BranchMode
	Condition Condition
}

// DefaultBranch returns the implicit branch of normal nodes.
func DefaultBranch() BranchInfo {
	return BranchInfo{Name: DefaultBranchName}
}

// IsDefault reports whether b is the implicit branch of a normal node.
func (b BranchInfo) IsDefault() bool {
	return b.Name == DefaultBranchName
}

// Holds evaluates the condition. A missing condition always holds.
func (b BranchInfo) Holds(vars *variables.Variables) bool {
	return b.Condition == nil || b.Condition(vars)
}

// Branch is a branch and the name of the node it leads to.
type Branch struct {
	Info BranchInfo
	Next string
}

// Node is a single step of the story. Everything in a node is immutable after it has been frozen.
type Node struct {
	name         string
	kind         NodeKind
	displayNames LocalizedText
	entries      []*DialogueEntry
	branches     []Branch
	frozen       bool
}

// NewNode creates a normal node without content.
func NewNode(name string) *Node {
	return &Node{
		name:         name,
		displayNames: LocalizedText{},
	}
}

func (n *Node) checkFreeze() error {
	if n.frozen {
		return errors.Wrap(ErrFrozen, "modify node", slog.String("node", n.name))
	}
	return nil
}

// Name is unique within a graph.
func (n *Node) Name() string {
	return n.name
}

// Kind defaults to NodeKindNormal.
func (n *Node) Kind() NodeKind {
	return n.kind
}

// SetKind changes the kind before the node is frozen.
func (n *Node) SetKind(kind NodeKind) error {
	if err := n.checkFreeze(); err != nil {
		return err
	}
	n.kind = kind
	return nil
}

// DisplayNames returns the localized display names of the node.
func (n *Node) DisplayNames() LocalizedText {
	return n.displayNames.Clone()
}

// AddLocalizedName sets the display name of the node in locale.
func (n *Node) AddLocalizedName(locale language.Tag, displayName string) error {
	if err := n.checkFreeze(); err != nil {
		return err
	}
	n.displayNames[locale] = displayName
	return nil
}

// SetDialogueEntries replaces the dialogue entries.
func (n *Node) SetDialogueEntries(entries []*DialogueEntry) error {
	if err := n.checkFreeze(); err != nil {
		return err
	}
	n.entries = append([]*DialogueEntry(nil), entries...)
	return nil
}

// LocalizedEntry holds the translation of one dialogue entry.
type LocalizedEntry struct {
	DisplayName string
	Text        string
}

// AddLocalizedDialogueEntries adds a translation for every dialogue entry of the node. The number of translated
// entries must match the number of entries in the default locale.
func (n *Node) AddLocalizedDialogueEntries(locale language.Tag, entries []LocalizedEntry) error {
	if err := n.checkFreeze(); err != nil {
		return err
	}
	if len(entries) != len(n.entries) {
		return errors.Wrap(ErrInvalidNode, "localized dialogue entry count differs from default locale",
			slog.String("node", n.name),
			slog.String("locale", locale.String()),
			slog.Int("want", len(n.entries)),
			slog.Int("got", len(entries)))
	}
	for i, e := range entries {
		n.entries[i].addLocalized(locale, e.DisplayName, e.Text)
	}
	return nil
}

// DialogueEntryCount returns the number of dialogue entries.
func (n *Node) DialogueEntryCount() int {
	return len(n.entries)
}

// DialogueEntry returns the entry at index or nil when out of range.
func (n *Node) DialogueEntry(index int) *DialogueEntry {
	if index < 0 || index >= len(n.entries) {
		return nil
	}
	return n.entries[index]
}

// AddBranch adds an outgoing edge leading to the node named next.
func (n *Node) AddBranch(info BranchInfo, next string) error {
	if err := n.checkFreeze(); err != nil {
		return err
	}
	if info.Name == "" {
		return errors.Wrap(ErrInvalidNode, "branch name is empty", slog.String("node", n.name))
	}
	for _, b := range n.branches {
		if b.Info.Name == info.Name {
			return errors.Wrap(ErrDuplicateBranch, "add branch",
				slog.String("node", n.name), slog.String("branch", info.Name))
		}
	}
	n.branches = append(n.branches, Branch{Info: info, Next: next})
	return nil
}

// BranchCount returns the number of outgoing edges.
func (n *Node) BranchCount() int {
	return len(n.branches)
}

// Branches returns the outgoing edges in declaration order.
func (n *Node) Branches() []Branch {
	return append([]Branch(nil), n.branches...)
}

// Branch looks up an outgoing edge by branch name.
func (n *Node) Branch(name string) (Branch, bool) {
	for _, b := range n.branches {
		if b.Info.Name == name {
			return b, true
		}
	}
	return Branch{}, false
}

// Next returns the successor of a normal node.
func (n *Node) Next() (string, error) {
	if n.kind != NodeKindNormal {
		return "", errors.Wrap(ErrInvalidNode, "only normal nodes have a single successor",
			slog.String("node", n.name), slog.String("kind", n.kind.String()))
	}
	b, ok := n.Branch(DefaultBranchName)
	if !ok {
		return "", errors.Wrap(ErrInvalidNode, "normal node has no default branch", slog.String("node", n.name))
	}
	return b.Next, nil
}

// Freeze makes the node immutable.
func (n *Node) Freeze() {
	n.frozen = true
}

// Unfreeze allows modification again. Only meant for reloading scripts during development.
func (n *Node) Unfreeze() {
	n.frozen = false
}

// BranchOption is one entry of the selection list shown to the player.
type BranchOption struct {
	Branch Branch
	// Active is false for enable-mode branches whose condition fails. They are shown but cannot be selected.
	Active bool
}

// Resolution is the outcome of evaluating the branches of a branching node.
type Resolution struct {
	// Jump is set when a jump-mode branch was taken without asking the player.
	Jump *Branch
	// Options is the selection list when no jump-mode branch applied.
	Options []BranchOption
}

// ResolveBranches evaluates the branches of n against vars.
//
// The first jump-mode branch whose condition holds wins. Otherwise, the selection list contains normal branches,
// show-mode branches whose condition holds and every enable-mode branch, the latter marked inactive when the
// condition fails.
func ResolveBranches(n *Node, vars *variables.Variables) Resolution {
	for _, b := range n.branches {
		if b.Info.Mode == BranchModeJump && b.Info.Holds(vars) {
			taken := b
			return Resolution{Jump: &taken}
		}
	}

	var options []BranchOption
	for _, b := range n.branches {
		switch b.Info.Mode {
		case BranchModeJump:
			continue
		case BranchModeShow:
			if !b.Info.Holds(vars) {
				continue
			}
			options = append(options, BranchOption{Branch: b, Active: true})
		case BranchModeEnable:
			options = append(options, BranchOption{Branch: b, Active: b.Info.Holds(vars)})
		default:
			options = append(options, BranchOption{Branch: b, Active: true})
		}
	}
	return Resolution{Options: options}
}
