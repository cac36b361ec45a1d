// Package flowchart implements the story graph.
//
// A graph is built once by a single writer, linked, sanity checked and frozen. Nodes reference their successors by
// name, and Link resolves every name after all nodes have been registered, so forward references are allowed.
package flowchart

import (
	"context"
	"github.com/myrjola/novella/internal/errors"
	"log/slog"
	"sort"
)

var (
	ErrFrozen          = errors.NewSentinel("flow chart is frozen")
	ErrNodeNotFound    = errors.NewSentinel("node not found")
	ErrNoStart         = errors.NewSentinel("flow chart has no start point")
	ErrInvalidNode     = errors.NewSentinel("invalid node")
	ErrDuplicateBranch = errors.NewSentinel("duplicate branch name")
	ErrStartNotFound   = errors.NewSentinel("start point not found")
)

// StartType flags classify start points for the start menu.
type StartType uint8

const (
	// StartLocked is a start point the player has not unlocked yet.
	StartLocked StartType = 1 << iota
	// StartUnlocked is a start point available to the player.
	StartUnlocked
	// StartDebug is only offered in development builds.
	StartDebug

	// StartNormal matches every start point shown to players.
	StartNormal = StartLocked | StartUnlocked
	// StartAll matches every start point.
	StartAll = StartNormal | StartDebug
)

// Graph is the registry of nodes, start points and end points of a story.
type Graph struct {
	logger       *slog.Logger
	nodes        map[string]*Node
	order        []string
	starts       map[string]startPoint
	defaultStart string
	ends         map[string]string
	frozen       bool
}

type startPoint struct {
	node      string
	startType StartType
}

// NewGraph creates an empty graph.
func NewGraph(logger *slog.Logger) *Graph {
	return &Graph{
		logger: logger.With("source", "FlowChartGraph"),
		nodes:  make(map[string]*Node),
		starts: make(map[string]startPoint),
		ends:   make(map[string]string),
	}
}

func (g *Graph) checkFreeze(op string) error {
	if g.frozen {
		return errors.Wrap(ErrFrozen, op)
	}
	return nil
}

// AddNode registers n. A node with the same name is replaced.
func (g *Graph) AddNode(n *Node) error {
	if err := g.checkFreeze("add node"); err != nil {
		return err
	}
	if n == nil || n.name == "" {
		return errors.Wrap(ErrInvalidNode, "node name is empty")
	}
	if _, ok := g.nodes[n.name]; ok {
		g.logger.LogAttrs(context.Background(), slog.LevelWarn, "overwriting existing node",
			slog.String("node", n.name))
	} else {
		g.order = append(g.order, n.name)
	}
	g.nodes[n.name] = n
	return nil
}

// Node returns the node called name or nil.
func (g *Graph) Node(name string) *Node {
	return g.nodes[name]
}

// HasNode reports whether a node called name is registered.
func (g *Graph) HasNode(name string) bool {
	_, ok := g.nodes[name]
	return ok
}

// Nodes returns the nodes in registration order.
func (g *Graph) Nodes() []*Node {
	nodes := make([]*Node, 0, len(g.order))
	for _, name := range g.order {
		nodes = append(nodes, g.nodes[name])
	}
	return nodes
}

func (g *Graph) lookup(n *Node) error {
	if n == nil {
		return errors.Wrap(ErrNodeNotFound, "node is nil")
	}
	if registered, ok := g.nodes[n.name]; !ok || registered != n {
		return errors.Wrap(ErrNodeNotFound, "node is not registered in the graph", slog.String("node", n.name))
	}
	return nil
}

// AddStart registers n as a start point called name. The first start point becomes the default start.
func (g *Graph) AddStart(name string, n *Node, startType StartType) error {
	if err := g.checkFreeze("add start"); err != nil {
		return err
	}
	if err := g.lookup(n); err != nil {
		return errors.Wrap(err, "add start", slog.String("start", name))
	}
	if _, ok := g.starts[name]; ok {
		g.logger.LogAttrs(context.Background(), slog.LevelWarn, "overwriting existing start point",
			slog.String("start", name), slog.String("node", n.name))
	}
	g.starts[name] = startPoint{node: n.name, startType: startType}
	if g.defaultStart == "" {
		g.defaultStart = name
	}
	return nil
}

// SetDefaultStart chooses which start point Start uses when no name is given.
func (g *Graph) SetDefaultStart(name string) error {
	if err := g.checkFreeze("set default start"); err != nil {
		return err
	}
	if _, ok := g.starts[name]; !ok {
		return errors.Wrap(ErrStartNotFound, "set default start", slog.String("start", name))
	}
	g.defaultStart = name
	return nil
}

// AddEnd registers n as an end point called name.
func (g *Graph) AddEnd(name string, n *Node) error {
	if err := g.checkFreeze("add end"); err != nil {
		return err
	}
	if err := g.lookup(n); err != nil {
		return errors.Wrap(err, "add end", slog.String("end", name))
	}
	if _, ok := g.ends[name]; ok {
		g.logger.LogAttrs(context.Background(), slog.LevelWarn, "overwriting existing end point",
			slog.String("end", name), slog.String("node", n.name))
	}
	g.ends[name] = n.name
	return nil
}

// StartNames returns the sorted names of the start points matching any of the given flags.
func (g *Graph) StartNames(startType StartType) []string {
	var names []string
	for name, sp := range g.starts {
		if sp.startType&startType != 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// StartType returns the flags of the start point called name.
func (g *Graph) StartType(name string) (StartType, bool) {
	sp, ok := g.starts[name]
	return sp.startType, ok
}

// StartNode returns the node of the start point called name.
func (g *Graph) StartNode(name string) (*Node, error) {
	sp, ok := g.starts[name]
	if !ok {
		return nil, errors.Wrap(ErrStartNotFound, "get start node", slog.String("start", name))
	}
	return g.nodes[sp.node], nil
}

// DefaultStart returns the name of the default start point.
func (g *Graph) DefaultStart() (string, error) {
	if g.defaultStart == "" {
		return "", ErrNoStart
	}
	return g.defaultStart, nil
}

// EndNames returns the sorted names of every end point.
func (g *Graph) EndNames() []string {
	names := make([]string, 0, len(g.ends))
	for name := range g.ends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// EndName returns the end point name of n. A node registered under several end names reports the first in sorted
// order.
func (g *Graph) EndName(n *Node) (string, bool) {
	for _, name := range g.EndNames() {
		if g.ends[name] == n.name {
			return name, true
		}
	}
	return "", false
}

// EndNode returns the node registered as end point name.
func (g *Graph) EndNode(name string) *Node {
	nodeName, ok := g.ends[name]
	if !ok {
		return nil
	}
	return g.nodes[nodeName]
}

// Link checks that every node has dialogue, that every branch leads to a registered node and that the branches fit
// the kind of their node.
func (g *Graph) Link() error {
	var errs []error
	for _, name := range g.order {
		n := g.nodes[name]
		for _, b := range n.branches {
			if _, ok := g.nodes[b.Next]; !ok {
				errs = append(errs, errors.Wrap(ErrNodeNotFound, "branch destination",
					slog.String("node", n.name),
					slog.String("branch", b.Info.Name),
					slog.String("destination", b.Next)))
			}
		}
		if err := checkBranches(n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func checkBranches(n *Node) error {
	if len(n.entries) == 0 {
		return errors.Wrap(ErrInvalidNode, "node has no dialogue entries", slog.String("node", n.name))
	}
	switch n.kind {
	case NodeKindNormal:
		if len(n.branches) != 1 || !n.branches[0].Info.IsDefault() {
			return errors.Wrap(ErrInvalidNode, "normal node needs exactly the default branch",
				slog.String("node", n.name), slog.Int("branches", len(n.branches)))
		}
	case NodeKindBranching:
		if len(n.branches) == 0 {
			return errors.Wrap(ErrInvalidNode, "branching node has no branches", slog.String("node", n.name))
		}
		for _, b := range n.branches {
			if b.Info.IsDefault() {
				return errors.Wrap(ErrInvalidNode, "branching node uses the default branch name",
					slog.String("node", n.name))
			}
		}
	case NodeKindEnd:
		if len(n.branches) != 0 {
			return errors.Wrap(ErrInvalidNode, "end node has branches",
				slog.String("node", n.name), slog.Int("branches", len(n.branches)))
		}
	}
	return nil
}

// SanityCheck validates the graph before it is frozen.
//
// Every node without branches becomes an end node registered under its own name unless it already is an end point.
// The graph must contain at least one start point and Link must succeed.
func (g *Graph) SanityCheck() error {
	if err := g.checkFreeze("sanity check"); err != nil {
		return err
	}
	if len(g.starts) == 0 {
		return ErrNoStart
	}
	for _, name := range g.order {
		n := g.nodes[name]
		if len(n.branches) != 0 {
			continue
		}
		if n.kind != NodeKindEnd {
			g.logger.LogAttrs(context.Background(), slog.LevelWarn, "node without branches marked as end",
				slog.String("node", n.name), slog.String("kind", n.kind.String()))
			n.kind = NodeKindEnd
		}
		if _, ok := g.EndName(n); !ok {
			g.ends[n.name] = n.name
		}
	}
	return g.Link()
}

// Freeze makes the graph and all of its nodes immutable.
func (g *Graph) Freeze() {
	g.frozen = true
	for _, n := range g.nodes {
		n.Freeze()
	}
}

// Unfreeze allows modification again. Only meant for reloading scripts during development.
func (g *Graph) Unfreeze() {
	g.frozen = false
	for _, n := range g.nodes {
		n.Unfreeze()
	}
}

// Frozen reports whether Freeze has been called.
func (g *Graph) Frozen() bool {
	return g.frozen
}
