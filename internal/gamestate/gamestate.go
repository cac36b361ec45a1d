// Package gamestate walks a story graph, runs the staged actions of each dialogue and decides when full checkpoints
// are taken so that any reached position can be restored later.
package gamestate

import (
	"context"
	"github.com/myrjola/novella/internal/checkpoint"
	"github.com/myrjola/novella/internal/errors"
	"github.com/myrjola/novella/internal/flowchart"
	"github.com/myrjola/novella/internal/restoration"
	"github.com/myrjola/novella/internal/variables"
	"golang.org/x/text/language"
	"log/slog"
)

var (
	ErrNotStarted         = errors.NewSentinel("game has not started")
	ErrActionRunning      = errors.NewSentinel("an action is running")
	ErrEnded              = errors.NewSentinel("route has ended")
	ErrCheckpointMismatch = errors.NewSentinel("reached record does not match the live checkpoint counters")
	ErrNoSelectableBranch = errors.NewSentinel("branching node has no selectable branch")
	ErrInvalidSelection   = errors.NewSentinel("invalid branch selection")
	ErrPositionNotReached = errors.NewSentinel("position has not been reached")
	ErrSeekBack           = errors.NewSentinel("cannot seek back past the start of history")
	ErrReplayDiverged     = errors.NewSentinel("replay did not arrive at the restore target")
)

// State of the state machine.
type State uint8

const (
	// StateNormal is idle and can step.
	StateNormal State = iota
	// StateActionRunning executes the staged actions of a dialogue or waits for a branch selection.
	StateActionRunning
	// StateEnded has reached an end node. Only a restart or a rewind leaves it.
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateNormal:
		return "normal"
	case StateActionRunning:
		return "action_running"
	case StateEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// DefaultMaxStepsFromLastCheckpoint bounds the replay distance of simple entries.
const DefaultMaxStepsFromLastCheckpoint = 10

// Config tunes a GameState.
type Config struct {
	// MaxStepsFromLastCheckpoint is the number of steps after which a full checkpoint is taken.
	MaxStepsFromLastCheckpoint int
	// Locale is used for bookmark descriptions.
	Locale language.Tag
}

// Position identifies a reached dialogue. VariablesHash is the hash under which the dialogue was recorded.
type Position struct {
	NodeName      string
	DialogueIndex int
	VariablesHash uint64
}

// GameState is the narrative state machine. It is not safe for concurrent use and implements flowchart.Runtime for
// the actions it invokes.
type GameState struct {
	logger      *slog.Logger
	graph       *flowchart.Graph
	checkpoints *checkpoint.Manager
	events      Events
	restorables *restoration.Registry
	vars        *variables.Variables
	history     *checkpoint.NodeHistory
	cfg         Config

	state        State
	node         *flowchart.Node
	index        int
	entry        *flowchart.DialogueEntry
	positionHash uint64

	// Transient context of the running action, cleared by Cancel.
	pause         PauseLock
	stage         flowchart.ActionStage
	cont          func(ctx context.Context) error
	fallThrough   bool
	jumpTarget    string
	fence         int
	fenceSet      bool
	branchOptions []flowchart.BranchOption

	// Checkpoint elision counters.
	stepNum            int
	restrain           int
	force              bool
	lastCheckpointHash uint64

	restoring bool
	// replayPlan holds the node names to follow while replaying towards a restore target.
	replayPlan []string
	initial    *checkpoint.Checkpoint
}

// New creates a GameState over a frozen graph. events may be nil.
func New(
	logger *slog.Logger,
	graph *flowchart.Graph,
	checkpoints *checkpoint.Manager,
	events Events,
	cfg Config,
) *GameState {
	if events == nil {
		events = NoOpEvents{}
	}
	if cfg.MaxStepsFromLastCheckpoint <= 0 {
		cfg.MaxStepsFromLastCheckpoint = DefaultMaxStepsFromLastCheckpoint
	}
	if cfg.Locale == language.Und {
		cfg.Locale = flowchart.DefaultLocale
	}
	return &GameState{
		logger:      logger.With("source", "GameState"),
		graph:       graph,
		checkpoints: checkpoints,
		events:      events,
		restorables: restoration.NewRegistry(logger),
		vars:        variables.New(),
		history:     checkpoint.NewNodeHistory(),
		cfg:         cfg,
	}
}

// State returns the current state.
func (g *GameState) State() State {
	return g.state
}

// Node returns the current node or nil before Start.
func (g *GameState) Node() *flowchart.Node {
	return g.node
}

// DialogueEntry returns the current dialogue entry or nil before Start.
func (g *GameState) DialogueEntry() *flowchart.DialogueEntry {
	return g.entry
}

// Position returns the current position.
func (g *GameState) Position() Position {
	if g.node == nil {
		return Position{}
	}
	return Position{NodeName: g.node.Name(), DialogueIndex: g.index, VariablesHash: g.positionHash}
}

// History returns a copy of the walked nodes.
func (g *GameState) History() *checkpoint.NodeHistory {
	return g.history.Clone()
}

// Suspended reports whether a stage waits for the pause lock to be released.
func (g *GameState) Suspended() bool {
	return g.cont != nil
}

// BranchOptions returns the selection list while a branch selection is pending.
func (g *GameState) BranchOptions() []flowchart.BranchOption {
	return append([]flowchart.BranchOption(nil), g.branchOptions...)
}

// AddRestorable registers a component whose state is part of every checkpoint.
func (g *GameState) AddRestorable(r restoration.Restorable) error {
	return g.restorables.Add(r)
}

// RemoveRestorable unregisters the restorable called name.
func (g *GameState) RemoveRestorable(name string) {
	g.restorables.Remove(name)
}

// Start begins a new playthrough at the named start point. An empty name selects the default start point.
func (g *GameState) Start(ctx context.Context, startName string) error {
	if g.state == StateActionRunning {
		return ErrActionRunning
	}
	if startName == "" {
		var err error
		if startName, err = g.graph.DefaultStart(); err != nil {
			return errors.Wrap(err, "start game")
		}
	}
	n, err := g.graph.StartNode(startName)
	if err != nil {
		return errors.Wrap(err, "start game")
	}
	g.logger.LogAttrs(ctx, slog.LevelInfo, "game started", slog.String("start", startName))
	g.history.Clear()
	g.state = StateNormal
	g.resetCounters()
	return g.moveToNode(ctx, n.Name())
}

func (g *GameState) resetCounters() {
	g.stepNum = 0
	g.restrain = 0
	g.force = false
	g.lastCheckpointHash = 0
}

// Step advances to the next dialogue or handles the end of the current node.
func (g *GameState) Step(ctx context.Context) error {
	if g.node == nil {
		return ErrNotStarted
	}
	switch g.state {
	case StateActionRunning:
		return ErrActionRunning
	case StateEnded:
		return ErrEnded
	case StateNormal:
	}

	if g.index+1 < g.node.DialogueEntryCount() {
		g.index++
		return g.activate(ctx, activation{stepped: true})
	}

	switch g.node.Kind() {
	case flowchart.NodeKindBranching:
		return g.branch(ctx)
	case flowchart.NodeKindEnd:
		return g.end(ctx)
	case flowchart.NodeKindNormal:
	}
	next, err := g.node.Next()
	if err != nil {
		return errors.Wrap(err, "step to next node")
	}
	return g.moveToNode(ctx, next)
}

// Tick resumes a suspended stage once the pause lock is free. It does nothing otherwise.
func (g *GameState) Tick(ctx context.Context) error {
	if g.cont == nil || g.pause.Locked() {
		return nil
	}
	cont := g.cont
	g.cont = nil
	return cont(ctx)
}

// Cancel discards the running action together with its pause lock acquisitions, pending fall-through, jump and
// fence value.
func (g *GameState) Cancel() {
	g.pause.Reset()
	g.cont = nil
	g.fallThrough = false
	g.jumpTarget = ""
	g.fence = 0
	g.fenceSet = false
	g.branchOptions = nil
	if g.state == StateActionRunning {
		g.state = StateNormal
	}
}

func (g *GameState) moveToNode(ctx context.Context, nodeName string) error {
	n := g.graph.Node(nodeName)
	if n == nil {
		return errors.Wrap(flowchart.ErrNodeNotFound, "move to node", slog.String("node", nodeName))
	}
	g.history.Add(nodeName)
	g.node = n
	g.index = 0
	if len(g.replayPlan) > 0 {
		g.replayPlan = g.replayPlan[1:]
	}
	g.logger.LogAttrs(ctx, slog.LevelDebug, "node changed", slog.String("node", nodeName))
	g.events.NodeChanged(ctx, nodeName)
	return g.activate(ctx, activation{stepped: true, firstOfNode: true})
}

func (g *GameState) branch(ctx context.Context) error {
	res := flowchart.ResolveBranches(g.node, g.vars)
	if res.Jump != nil {
		return g.moveToNode(ctx, res.Jump.Next)
	}

	if len(g.replayPlan) > 0 {
		for _, o := range res.Options {
			if o.Branch.Next == g.replayPlan[0] {
				return g.moveToNode(ctx, o.Branch.Next)
			}
		}
		return errors.Wrap(ErrReplayDiverged, "replay branch",
			slog.String("node", g.node.Name()), slog.String("expected", g.replayPlan[0]))
	}

	selectable := false
	for _, o := range res.Options {
		selectable = selectable || o.Active
	}
	if !selectable {
		return errors.Wrap(ErrNoSelectableBranch, "resolve branches", slog.String("node", g.node.Name()))
	}

	g.state = StateActionRunning
	g.branchOptions = res.Options
	g.pause.Acquire()
	g.cont = g.resolveSelection
	g.events.BranchOccurs(ctx, res.Options)
	return g.Tick(ctx)
}

// SelectBranch answers a pending branch selection with the index of an active option. The selection is applied by
// the next Tick.
func (g *GameState) SelectBranch(index int) error {
	if g.branchOptions == nil || g.fenceSet {
		return errors.Wrap(ErrInvalidSelection, "no branch selection pending")
	}
	if index < 0 || index >= len(g.branchOptions) {
		return errors.Wrap(ErrInvalidSelection, "branch index out of range",
			slog.Int("index", index), slog.Int("options", len(g.branchOptions)))
	}
	if !g.branchOptions[index].Active {
		return errors.Wrap(ErrInvalidSelection, "branch is inactive",
			slog.String("branch", g.branchOptions[index].Branch.Info.Name))
	}
	g.SignalFence(index)
	g.ReleasePause()
	return nil
}

func (g *GameState) resolveSelection(ctx context.Context) error {
	options := g.branchOptions
	index, ok := g.fence, g.fenceSet
	g.branchOptions = nil
	g.fence, g.fenceSet = 0, false
	if !ok || index < 0 || index >= len(options) {
		g.state = StateNormal
		return errors.Wrap(ErrInvalidSelection, "resolve branch selection", slog.Int("index", index))
	}

	selected := options[index].Branch
	g.state = StateNormal
	g.checkpoints.SetBranchReached(g.node.Name(), selected.Info.Name, g.vars.Hash())
	g.logger.LogAttrs(ctx, slog.LevelDebug, "branch selected",
		slog.String("node", g.node.Name()), slog.String("branch", selected.Info.Name))
	g.events.BranchSelected(ctx, selected.Info)
	return g.moveToNode(ctx, selected.Next)
}

func (g *GameState) end(ctx context.Context) error {
	g.state = StateEnded
	endName, ok := g.graph.EndName(g.node)
	if !ok {
		endName = g.node.Name()
	}
	if !g.checkpoints.IsEndReached(endName) {
		g.checkpoints.SetEndReached(endName)
	}
	g.logger.LogAttrs(ctx, slog.LevelInfo, "route ended", slog.String("end", endName))
	g.events.RouteEnded(ctx, endName)
	return nil
}

// activation describes how the current dialogue was arrived at.
type activation struct {
	// stepped is false when the dialogue is activated by restoring a checkpoint.
	stepped     bool
	firstOfNode bool
	// hasBeenReached is filled in by the record stage.
	hasBeenReached bool
}

type stageFunc func(ctx context.Context) error

func (g *GameState) activate(ctx context.Context, a activation) error {
	g.state = StateActionRunning
	g.entry = g.node.DialogueEntry(g.index)
	stages := []stageFunc{
		func(ctx context.Context) error {
			g.events.DialogueWillChange(ctx)
			return nil
		},
		func(context.Context) error {
			// The snapshot of a restored checkpoint already contains the effects of this stage.
			if a.stepped {
				g.runAction(flowchart.StageBeforeCheckpoint)
			}
			return nil
		},
		func(ctx context.Context) error {
			return g.record(ctx, &a)
		},
		func(context.Context) error {
			g.runAction(flowchart.StageDefault)
			return nil
		},
		func(ctx context.Context) error {
			g.events.DialogueChanged(ctx, DialogueChangedData{
				NodeName:       g.node.Name(),
				DialogueIndex:  g.index,
				Display:        g.entry.DisplayData(),
				HasBeenReached: a.hasBeenReached,
				IsRestoring:    g.restoring,
			})
			return nil
		},
		func(context.Context) error {
			g.runAction(flowchart.StageAfterDialogue)
			return nil
		},
		g.finishActivation,
	}
	return g.runStages(ctx, stages)
}

// runStages runs stages in order and suspends after any stage that leaves the pause lock held.
func (g *GameState) runStages(ctx context.Context, stages []stageFunc) error {
	for i, stage := range stages {
		if err := stage(ctx); err != nil {
			g.Cancel()
			return err
		}
		if g.pause.Locked() && i+1 < len(stages) {
			rest := stages[i+1:]
			g.cont = func(ctx context.Context) error {
				return g.runStages(ctx, rest)
			}
			return nil
		}
	}
	return nil
}

func (g *GameState) runAction(stage flowchart.ActionStage) {
	action := g.entry.Action(stage)
	if action == nil {
		return
	}
	g.stage = stage
	action(g)
}

// record looks up the reached record of the current dialogue, writing one the first time the dialogue is reached
// with the current variables.
func (g *GameState) record(ctx context.Context, a *activation) error {
	if a.stepped {
		g.stepNum++
	}
	nodeName := g.node.Name()
	hash := g.vars.Hash()
	g.positionHash = hash

	entry := g.checkpoints.GetReached(nodeName, g.index, hash)
	a.hasBeenReached = entry != nil
	if entry == nil {
		restrained := g.restrain > 0
		if g.force || (!restrained && (a.firstOfNode || g.stepNum >= g.cfg.MaxStepsFromLastCheckpoint)) {
			cp, err := g.snapshot()
			if err != nil {
				return err
			}
			g.stepNum = 0
			g.lastCheckpointHash = hash
			entry = cp
		} else {
			entry = &checkpoint.SimpleEntry{
				StepsFromLastCheckpoint:     g.stepNum,
				RestrainCheckpointNum:       g.restrain,
				LastCheckpointVariablesHash: g.lastCheckpointHash,
			}
		}
		g.checkpoints.SetReached(nodeName, g.index, hash, entry)
	} else {
		switch e := entry.(type) {
		case *checkpoint.Checkpoint:
			g.stepNum = 0
			g.lastCheckpointHash = hash
		case *checkpoint.SimpleEntry:
			if e.StepsFromLastCheckpoint != g.stepNum || e.RestrainCheckpointNum != g.restrain {
				return errors.Wrap(ErrCheckpointMismatch, "validate reached record",
					slog.String("node", nodeName),
					slog.Int("dialogueIndex", g.index),
					slog.Int("steps", g.stepNum),
					slog.Int("recordedSteps", e.StepsFromLastCheckpoint),
					slog.Int("restrain", g.restrain),
					slog.Int("recordedRestrain", e.RestrainCheckpointNum))
			}
		}
	}

	if g.restrain > 0 {
		g.restrain--
		if g.restrain == 1 {
			g.logger.LogAttrs(ctx, slog.LevelDebug, "checkpoint restraint about to expire",
				slog.String("node", nodeName), slog.Int("dialogueIndex", g.index))
		}
	}
	g.force = false
	return nil
}

func (g *GameState) finishActivation(ctx context.Context) error {
	g.state = StateNormal
	if g.jumpTarget != "" {
		target := g.jumpTarget
		g.jumpTarget = ""
		g.fallThrough = false
		return g.moveToNode(ctx, target)
	}
	if g.fallThrough {
		g.fallThrough = false
		return g.Step(ctx)
	}
	return nil
}

func (g *GameState) snapshot() (*checkpoint.Checkpoint, error) {
	data, err := g.restorables.Snapshot()
	if err != nil {
		return nil, errors.Wrap(err, "take checkpoint")
	}
	return &checkpoint.Checkpoint{
		RestoreData:           data,
		Variables:             g.vars.Clone(),
		RestrainCheckpointNum: g.restrain,
	}, nil
}

// AcquirePause keeps the current stage from completing until ReleasePause. The next dialogue is always checkpointed.
func (g *GameState) AcquirePause() {
	if g.state != StateActionRunning {
		panic("gamestate: pause lock acquired outside of a running action")
	}
	g.pause.Acquire()
	g.force = true
}

// ReleasePause releases one acquisition of the pause lock. Releases arriving after Cancel are ignored.
func (g *GameState) ReleasePause() {
	if g.state != StateActionRunning {
		g.logger.LogAttrs(context.Background(), slog.LevelDebug, "ignoring pause release without running action")
		return
	}
	g.pause.Release()
}

// RequestFallThrough advances to the next dialogue as soon as the current one completes.
func (g *GameState) RequestFallThrough() {
	g.fallThrough = true
}

// RequestJump moves to nodeName as soon as the current dialogue completes.
func (g *GameState) RequestJump(nodeName string) {
	g.jumpTarget = nodeName
}

// SignalFence hands value to the suspended stage.
func (g *GameState) SignalFence(value int) {
	g.fence = value
	g.fenceSet = true
}

// EnsureCheckpointOnNextDialogue forces a full checkpoint on the next dialogue, even when checkpoints are restrained.
func (g *GameState) EnsureCheckpointOnNextDialogue() {
	g.force = true
}

// RestrainCheckpoint suppresses threshold and node-start checkpoints for the next steps dialogues. A smaller value
// than the outstanding restraint is ignored unless authorized.
func (g *GameState) RestrainCheckpoint(steps int, authorized bool) {
	if !authorized && g.restrain >= steps {
		return
	}
	g.restrain = max(steps, 0)
}

// IsRestoring is true while dialogues are replayed towards a restore target, except for the target itself.
func (g *GameState) IsRestoring() bool {
	return g.restoring
}

// Stage returns the stage of the running action.
func (g *GameState) Stage() flowchart.ActionStage {
	return g.stage
}

// Variables returns the live variables.
func (g *GameState) Variables() *variables.Variables {
	return g.vars
}

// RecordInterrupt notes that variables were changed outside of dialogue actions at the current position.
func (g *GameState) RecordInterrupt() {
	g.history.AddInterrupt(g.index, g.vars.Hash())
	g.EnsureCheckpointOnNextDialogue()
}
