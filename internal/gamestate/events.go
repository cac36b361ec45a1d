package gamestate

import (
	"context"
	"github.com/myrjola/novella/internal/flowchart"
)

// DialogueChangedData describes the dialogue that just became visible.
type DialogueChangedData struct {
	NodeName      string
	DialogueIndex int
	Display       flowchart.DisplayData
	// HasBeenReached is true when the dialogue was already seen with the same variables, e.g. for skipping read text.
	HasBeenReached bool
	// IsRestoring is true while the dialogue is replayed on the way to a restore target.
	IsRestoring bool
}

// Events observes the progress of a GameState. Handlers run synchronously on the caller of the GameState operation.
type Events interface {
	NodeChanged(ctx context.Context, nodeName string)
	DialogueWillChange(ctx context.Context)
	DialogueChanged(ctx context.Context, data DialogueChangedData)
	// BranchOccurs presents the selection list. Answer with GameState.SelectBranch followed by GameState.Tick.
	BranchOccurs(ctx context.Context, options []flowchart.BranchOption)
	BranchSelected(ctx context.Context, branch flowchart.BranchInfo)
	RouteEnded(ctx context.Context, endName string)
	BookmarkWillLoad(ctx context.Context)
}

// NoOpEvents ignores every event. Embed it to observe only some of them.
type NoOpEvents struct{}

func (NoOpEvents) NodeChanged(context.Context, string) {}
func (NoOpEvents) DialogueWillChange(context.Context) {}
func (NoOpEvents) DialogueChanged(context.Context, DialogueChangedData) {}
func (NoOpEvents) BranchOccurs(context.Context, []flowchart.BranchOption) {}
func (NoOpEvents) BranchSelected(context.Context, flowchart.BranchInfo) {}
func (NoOpEvents) RouteEnded(context.Context, string) {}
func (NoOpEvents) BookmarkWillLoad(context.Context) {}
