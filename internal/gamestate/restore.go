package gamestate

import (
	"context"
	"github.com/myrjola/novella/internal/checkpoint"
	"github.com/myrjola/novella/internal/errors"
	"github.com/myrjola/novella/internal/flowchart"
	"log/slog"
	"time"
)

var _ flowchart.Runtime = (*GameState)(nil)

// MoveBackTo rewinds to a reached position. An unreached position fails with ErrPositionNotReached and leaves the game
// untouched. The node is looked up from the end of the history and appended when it was never walked through. With
// clearFuture, the reached records of every later history node and of the later dialogues of the target node are
// erased.
//
// The target is restored from its checkpoint, or from the nearest checkpoint before it followed by a replay.
func (g *GameState) MoveBackTo(ctx context.Context, pos Position, clearFuture bool) error {
	target, entry, exact, err := g.lookupReached(pos)
	if err != nil {
		return err
	}
	if !exact {
		g.logger.LogAttrs(ctx, slog.LevelWarn, "no reached record for variables hash, falling back to any variables",
			slog.String("node", pos.NodeName), slog.Int("dialogueIndex", pos.DialogueIndex))
	}

	g.Cancel()
	historyIndex := g.history.LastIndexOf(pos.NodeName)
	if historyIndex < 0 {
		g.history.Add(pos.NodeName)
		historyIndex = g.history.Len() - 1
	}
	if clearFuture {
		for i := historyIndex + 1; i < g.history.Len(); i++ {
			g.checkpoints.UnsetReachedNode(g.history.At(i).NodeName)
		}
		for i := pos.DialogueIndex + 1; i < target.DialogueEntryCount(); i++ {
			g.checkpoints.UnsetReachedDialogue(pos.NodeName, i)
		}
	}
	g.history.Truncate(historyIndex + 1)
	g.history.TruncateInterrupts(pos.DialogueIndex)
	g.state = StateNormal
	g.node = target
	g.index = pos.DialogueIndex

	return g.restore(ctx, entry)
}

// lookupReached resolves the node and the reached record of pos. exact reports whether the record was found under
// pos.VariablesHash.
func (g *GameState) lookupReached(pos Position) (*flowchart.Node, checkpoint.RestoreEntry, bool, error) {
	target := g.graph.Node(pos.NodeName)
	if target == nil {
		return nil, nil, false, errors.Wrap(flowchart.ErrNodeNotFound, "move back", slog.String("node", pos.NodeName))
	}
	if pos.DialogueIndex < 0 || pos.DialogueIndex >= target.DialogueEntryCount() {
		return nil, nil, false, errors.Wrap(ErrPositionNotReached, "dialogue index out of range",
			slog.String("node", pos.NodeName), slog.Int("dialogueIndex", pos.DialogueIndex))
	}
	if entry := g.checkpoints.GetReached(pos.NodeName, pos.DialogueIndex, pos.VariablesHash); entry != nil {
		return target, entry, true, nil
	}
	if entry := g.checkpoints.GetReachedForAnyVariables(pos.NodeName, pos.DialogueIndex); entry != nil {
		return target, entry, false, nil
	}
	return nil, nil, false, errors.Wrap(ErrPositionNotReached, "move back",
		slog.String("node", pos.NodeName), slog.Int("dialogueIndex", pos.DialogueIndex))
}

func (g *GameState) restore(ctx context.Context, entry checkpoint.RestoreEntry) error {
	switch e := entry.(type) {
	case *checkpoint.Checkpoint:
		if err := g.restoreCheckpoint(ctx, e); err != nil {
			return err
		}
		return g.activate(ctx, activation{})
	case *checkpoint.SimpleEntry:
		return g.replay(ctx, e)
	default:
		return errors.New("unsupported restore entry")
	}
}

func (g *GameState) restoreCheckpoint(ctx context.Context, cp *checkpoint.Checkpoint) error {
	g.vars.CopyFrom(cp.Variables)
	if err := g.restorables.Restore(ctx, cp.RestoreData); err != nil {
		return errors.Wrap(err, "restore checkpoint")
	}
	g.stepNum = 0
	g.restrain = cp.RestrainCheckpointNum
	g.force = false
	g.lastCheckpointHash = g.vars.Hash()
	return nil
}

// replay restores the checkpoint entry.StepsFromLastCheckpoint steps before the current position and steps forward
// until the current position is reached again, following the truncated history through branches. Stepping past an
// interrupt that changed the variables fails with ErrReplayDiverged.
func (g *GameState) replay(ctx context.Context, entry *checkpoint.SimpleEntry) error {
	targetNode, targetIndex, targetHistoryLen := g.node.Name(), g.index, g.history.Len()
	historyIndex, dialogueIndex, ok := g.seekBack(entry.StepsFromLastCheckpoint)
	if !ok {
		return errors.Wrap(ErrSeekBack, "replay simple entry",
			slog.String("node", targetNode), slog.Int("steps", entry.StepsFromLastCheckpoint))
	}

	recorded := g.history.Clone()
	names := recorded.Names()
	plan := names[historyIndex+1:]
	g.history.Truncate(historyIndex + 1)
	g.node = g.graph.Node(names[historyIndex])
	g.index = dialogueIndex

	reached := g.checkpoints.GetReached(g.node.Name(), dialogueIndex, entry.LastCheckpointVariablesHash)
	cp, ok := reached.(*checkpoint.Checkpoint)
	if !ok {
		cp, ok = g.checkpoints.GetReachedForAnyVariables(g.node.Name(), dialogueIndex).(*checkpoint.Checkpoint)
	}
	if !ok {
		return errors.Wrap(ErrPositionNotReached, "no checkpoint to replay from",
			slog.String("node", g.node.Name()), slog.Int("dialogueIndex", dialogueIndex))
	}

	g.logger.LogAttrs(ctx, slog.LevelDebug, "replaying from checkpoint",
		slog.String("checkpointNode", g.node.Name()),
		slog.Int("checkpointIndex", dialogueIndex),
		slog.Int("steps", entry.StepsFromLastCheckpoint))

	g.replayPlan = plan
	g.restoring = true
	defer func() {
		g.restoring = false
		g.replayPlan = nil
	}()

	if err := g.restoreCheckpoint(ctx, cp); err != nil {
		return err
	}
	if err := g.activate(ctx, activation{}); err != nil {
		return err
	}
	arrived := func() bool {
		return g.node.Name() == targetNode && g.index == targetIndex && g.history.Len() == targetHistoryLen
	}
	for !arrived() {
		if hash, ok := recorded.Interrupt(g.history.Len()-1, g.index); ok && hash != g.vars.Hash() {
			return errors.Wrap(ErrReplayDiverged, "replay passes an interrupt",
				slog.String("node", g.node.Name()), slog.Int("dialogueIndex", g.index))
		}
		if g.stepNum >= entry.StepsFromLastCheckpoint {
			return errors.Wrap(ErrReplayDiverged, "replay simple entry",
				slog.String("node", g.node.Name()), slog.Int("dialogueIndex", g.index))
		}
		if err := g.settle(ctx); err != nil {
			return err
		}
		if g.stepNum == entry.StepsFromLastCheckpoint-1 {
			g.restoring = false
		}
		if err := g.Step(ctx); err != nil {
			return errors.Wrap(err, "replay step")
		}
	}
	return nil
}

// settle completes suspended stages without waiting for their pause lock holders.
func (g *GameState) settle(ctx context.Context) error {
	for g.cont != nil {
		g.pause.Reset()
		if err := g.Tick(ctx); err != nil {
			return err
		}
	}
	return nil
}

// SeekBack returns the position that was current steps dialogues ago. It reports false when steps is negative or
// reaches past the start of the history.
func (g *GameState) SeekBack(steps int) (string, int, bool) {
	historyIndex, dialogueIndex, ok := g.seekBack(steps)
	if !ok {
		return "", -1, false
	}
	return g.history.At(historyIndex).NodeName, dialogueIndex, true
}

func (g *GameState) seekBack(steps int) (int, int, bool) {
	last := g.history.Len() - 1
	if steps < 0 || last < 0 {
		return 0, 0, false
	}
	if g.index >= steps {
		return last, g.index - steps, true
	}
	steps -= g.index
	for i := last - 1; i >= 0; i-- {
		n := g.graph.Node(g.history.At(i).NodeName)
		if n == nil {
			return 0, 0, false
		}
		count := n.DialogueEntryCount()
		if count >= steps {
			return i, count - steps, true
		}
		steps -= count
	}
	return 0, 0, false
}

// GetBookmark captures the current position.
func (g *GameState) GetBookmark() (*checkpoint.Bookmark, error) {
	if g.node == nil || g.entry == nil {
		return nil, ErrNotStarted
	}
	return &checkpoint.Bookmark{
		NodeHistory:   g.history.Clone(),
		DialogueIndex: g.index,
		Description:   g.entry.DisplayData().Text(g.cfg.Locale),
		CreationTime:  time.Now(),
		VariablesHash: g.positionHash,
	}, nil
}

// LoadBookmark restores the position captured by b.
func (g *GameState) LoadBookmark(ctx context.Context, b *checkpoint.Bookmark) error {
	if b.NodeHistory == nil {
		return errors.Wrap(ErrPositionNotReached, "bookmark has no history")
	}
	last, ok := b.NodeHistory.Last()
	if !ok {
		return errors.Wrap(ErrPositionNotReached, "bookmark has no history")
	}
	pos := Position{NodeName: last.NodeName, DialogueIndex: b.DialogueIndex, VariablesHash: b.VariablesHash}
	if _, _, _, err := g.lookupReached(pos); err != nil {
		return errors.Wrap(err, "load bookmark")
	}
	g.Cancel()
	g.events.BookmarkWillLoad(ctx)
	g.history = b.NodeHistory.Clone()
	return g.MoveBackTo(ctx, pos, false)
}

// SaveInitialState records the clean state of every restorable once. Reset restores it.
func (g *GameState) SaveInitialState() error {
	if g.initial != nil {
		return nil
	}
	cp, err := g.snapshot()
	if err != nil {
		return err
	}
	g.initial = cp
	return nil
}

// Reset returns to the state before Start. Restorables are restored to the state saved by SaveInitialState.
func (g *GameState) Reset(ctx context.Context) error {
	g.Cancel()
	if g.initial != nil {
		if err := g.restorables.Restore(ctx, g.initial.RestoreData); err != nil {
			return errors.Wrap(err, "reset game state")
		}
	}
	g.vars.Clear()
	g.history.Clear()
	g.state = StateNormal
	g.node = nil
	g.entry = nil
	g.index = 0
	g.positionHash = 0
	g.resetCounters()
	return nil
}
