package flowchart_test

import (
	"bytes"
	"github.com/myrjola/novella/internal/flowchart"
	"github.com/myrjola/novella/internal/testhelpers"
	"github.com/myrjola/novella/internal/variables"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
	"io"
	"testing"
)

func entry(text string) *flowchart.DialogueEntry {
	return flowchart.NewDialogueEntry("narrator", nil, flowchart.LocalizedText{flowchart.DefaultLocale: text}, nil)
}

func newNode(t *testing.T, name string, texts ...string) *flowchart.Node {
	t.Helper()
	n := flowchart.NewNode(name)
	entries := make([]*flowchart.DialogueEntry, 0, len(texts))
	for _, text := range texts {
		entries = append(entries, entry(text))
	}
	require.NoError(t, n.SetDialogueEntries(entries))
	return n
}

func TestSanityCheckMarksLeavesAsEnds(t *testing.T) {
	var logs bytes.Buffer
	g := flowchart.NewGraph(testhelpers.NewLogger(&logs))
	a := newNode(t, "a", "hello")
	b := newNode(t, "b", "bye")
	require.NoError(t, a.AddBranch(flowchart.DefaultBranch(), "b"))
	require.NoError(t, g.AddNode(a))
	require.NoError(t, g.AddNode(b))
	require.NoError(t, g.AddStart("intro", a, flowchart.StartUnlocked))

	require.NoError(t, g.SanityCheck())

	require.Equal(t, flowchart.NodeKindEnd, b.Kind())
	require.Same(t, b, g.EndNode("b"))
	name, ok := g.EndName(b)
	require.True(t, ok)
	require.Equal(t, "b", name)
	require.Equal(t, flowchart.NodeKindNormal, a.Kind())
	require.Contains(t, logs.String(), "node without branches marked as end")
}

func TestSanityCheckKeepsExplicitEndName(t *testing.T) {
	g := flowchart.NewGraph(testhelpers.NewLogger(io.Discard))
	a := newNode(t, "a", "the end")
	require.NoError(t, g.AddNode(a))
	require.NoError(t, g.AddStart("intro", a, flowchart.StartUnlocked))
	require.NoError(t, g.AddEnd("good_end", a))

	require.NoError(t, g.SanityCheck())
	require.Equal(t, []string{"good_end"}, g.EndNames())
}

func TestSanityCheckErrors(t *testing.T) {
	tests := []struct {
		name    string
		build   func(t *testing.T, g *flowchart.Graph)
		wantErr error
	}{
		{
			name: "no start",
			build: func(t *testing.T, g *flowchart.Graph) {
				require.NoError(t, g.AddNode(newNode(t, "a", "x")))
			},
			wantErr: flowchart.ErrNoStart,
		},
		{
			name: "missing destination",
			build: func(t *testing.T, g *flowchart.Graph) {
				a := newNode(t, "a", "x")
				require.NoError(t, a.AddBranch(flowchart.DefaultBranch(), "nowhere"))
				require.NoError(t, g.AddNode(a))
				require.NoError(t, g.AddStart("intro", a, flowchart.StartUnlocked))
			},
			wantErr: flowchart.ErrNodeNotFound,
		},
		{
			name: "normal node with named branch",
			build: func(t *testing.T, g *flowchart.Graph) {
				a := newNode(t, "a", "x")
				b := newNode(t, "b", "y")
				require.NoError(t, a.AddBranch(flowchart.BranchInfo{Name: "left"}, "b"))
				require.NoError(t, g.AddNode(a))
				require.NoError(t, g.AddNode(b))
				require.NoError(t, g.AddStart("intro", a, flowchart.StartUnlocked))
			},
			wantErr: flowchart.ErrInvalidNode,
		},
		{
			name: "branching node with default branch",
			build: func(t *testing.T, g *flowchart.Graph) {
				a := newNode(t, "a", "x")
				b := newNode(t, "b", "y")
				require.NoError(t, a.SetKind(flowchart.NodeKindBranching))
				require.NoError(t, a.AddBranch(flowchart.DefaultBranch(), "b"))
				require.NoError(t, g.AddNode(a))
				require.NoError(t, g.AddNode(b))
				require.NoError(t, g.AddStart("intro", a, flowchart.StartUnlocked))
			},
			wantErr: flowchart.ErrInvalidNode,
		},
		{
			name: "node without dialogue",
			build: func(t *testing.T, g *flowchart.Graph) {
				a := newNode(t, "a")
				require.NoError(t, g.AddNode(a))
				require.NoError(t, g.AddStart("intro", a, flowchart.StartUnlocked))
			},
			wantErr: flowchart.ErrInvalidNode,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := flowchart.NewGraph(testhelpers.NewLogger(io.Discard))
			tt.build(t, g)
			require.ErrorIs(t, g.SanityCheck(), tt.wantErr)
		})
	}
}

func TestFrozenGraphRejectsMutation(t *testing.T) {
	g := flowchart.NewGraph(testhelpers.NewLogger(io.Discard))
	a := newNode(t, "a", "x")
	require.NoError(t, g.AddNode(a))
	require.NoError(t, g.AddStart("intro", a, flowchart.StartUnlocked))
	require.NoError(t, g.SanityCheck())
	g.Freeze()

	require.ErrorIs(t, g.AddNode(newNode(t, "b")), flowchart.ErrFrozen)
	require.ErrorIs(t, g.AddStart("other", a, flowchart.StartDebug), flowchart.ErrFrozen)
	require.ErrorIs(t, g.AddEnd("end", a), flowchart.ErrFrozen)
	require.ErrorIs(t, a.AddBranch(flowchart.DefaultBranch(), "a"), flowchart.ErrFrozen)
	require.ErrorIs(t, a.SetKind(flowchart.NodeKindNormal), flowchart.ErrFrozen)
	require.ErrorIs(t, a.AddLocalizedName(language.Japanese, "エー"), flowchart.ErrFrozen)

	g.Unfreeze()
	require.NoError(t, a.AddLocalizedName(language.Japanese, "エー"))
}

func TestDuplicateNodeOverwrites(t *testing.T) {
	var logs bytes.Buffer
	g := flowchart.NewGraph(testhelpers.NewLogger(&logs))
	first := newNode(t, "a", "first")
	second := newNode(t, "a", "second")
	require.NoError(t, g.AddNode(first))
	require.NoError(t, g.AddNode(second))

	require.Same(t, second, g.Node("a"))
	require.Len(t, g.Nodes(), 1)
	require.Contains(t, logs.String(), "overwriting existing node")
	require.ErrorIs(t, g.AddNode(flowchart.NewNode("")), flowchart.ErrInvalidNode)
	require.ErrorIs(t, g.AddStart("intro", first, flowchart.StartUnlocked), flowchart.ErrNodeNotFound)
}

func TestStartNames(t *testing.T) {
	g := flowchart.NewGraph(testhelpers.NewLogger(io.Discard))
	a := newNode(t, "a", "x")
	require.NoError(t, g.AddNode(a))
	require.NoError(t, g.AddStart("chapter2", a, flowchart.StartLocked))
	require.NoError(t, g.AddStart("chapter1", a, flowchart.StartUnlocked))
	require.NoError(t, g.AddStart("debug", a, flowchart.StartDebug))

	require.Equal(t, []string{"chapter1", "chapter2"}, g.StartNames(flowchart.StartNormal))
	require.Equal(t, []string{"chapter1", "chapter2", "debug"}, g.StartNames(flowchart.StartAll))
	require.Equal(t, []string{"debug"}, g.StartNames(flowchart.StartDebug))

	def, err := g.DefaultStart()
	require.NoError(t, err)
	require.Equal(t, "chapter2", def)
	require.NoError(t, g.SetDefaultStart("chapter1"))
	require.ErrorIs(t, g.SetDefaultStart("missing"), flowchart.ErrStartNotFound)
}

func TestResolveBranches(t *testing.T) {
	vars := variables.New()
	require.NoError(t, vars.Set("brave", true))
	holds := func(v *variables.Variables) bool { return v.Bool("brave", false) }
	fails := func(v *variables.Variables) bool { return !v.Bool("brave", false) }

	tests := []struct {
		name        string
		branches    []flowchart.BranchInfo
		wantJump    string
		wantOptions []string
		wantActive  []bool
	}{
		{
			name: "first true jump wins over show",
			branches: []flowchart.BranchInfo{
				{Name: "jump_false", Mode: flowchart.BranchModeJump, Condition: fails},
				{Name: "jump_true", Mode: flowchart.BranchModeJump, Condition: holds},
				{Name: "show_true", Mode: flowchart.BranchModeShow, Condition: holds},
			},
			wantJump: "jump_true",
		},
		{
			name: "jump without condition is taken",
			branches: []flowchart.BranchInfo{
				{Name: "normal", Mode: flowchart.BranchModeNormal},
				{Name: "jump", Mode: flowchart.BranchModeJump},
			},
			wantJump: "jump",
		},
		{
			name: "selection list",
			branches: []flowchart.BranchInfo{
				{Name: "jump_false", Mode: flowchart.BranchModeJump, Condition: fails},
				{Name: "normal", Mode: flowchart.BranchModeNormal},
				{Name: "show_false", Mode: flowchart.BranchModeShow, Condition: fails},
				{Name: "show_true", Mode: flowchart.BranchModeShow, Condition: holds},
				{Name: "enable_false", Mode: flowchart.BranchModeEnable, Condition: fails},
			},
			wantOptions: []string{"normal", "show_true", "enable_false"},
			wantActive:  []bool{true, true, false},
		},
		{
			name: "all conditions fail",
			branches: []flowchart.BranchInfo{
				{Name: "jump_false", Mode: flowchart.BranchModeJump, Condition: fails},
				{Name: "show_false", Mode: flowchart.BranchModeShow, Condition: fails},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := flowchart.NewNode("choice")
			require.NoError(t, n.SetKind(flowchart.NodeKindBranching))
			for _, b := range tt.branches {
				require.NoError(t, n.AddBranch(b, "next_"+b.Name))
			}

			res := flowchart.ResolveBranches(n, vars)
			if tt.wantJump != "" {
				require.NotNil(t, res.Jump)
				require.Equal(t, tt.wantJump, res.Jump.Info.Name)
				require.Equal(t, "next_"+tt.wantJump, res.Jump.Next)
				require.Empty(t, res.Options)
				return
			}
			require.Nil(t, res.Jump)
			var names []string
			var active []bool
			for _, o := range res.Options {
				names = append(names, o.Branch.Info.Name)
				active = append(active, o.Active)
			}
			require.Equal(t, tt.wantOptions, names)
			require.Equal(t, tt.wantActive, active)
		})
	}
}

func TestDuplicateBranch(t *testing.T) {
	n := flowchart.NewNode("a")
	require.NoError(t, n.AddBranch(flowchart.BranchInfo{Name: "left"}, "b"))
	require.ErrorIs(t, n.AddBranch(flowchart.BranchInfo{Name: "left"}, "c"), flowchart.ErrDuplicateBranch)
	require.ErrorIs(t, n.AddBranch(flowchart.BranchInfo{}, "c"), flowchart.ErrInvalidNode)
}

func TestDialogueEntryLocalization(t *testing.T) {
	n := newNode(t, "a", "Hello", "Bye")
	before := n.DialogueEntry(0).Hash()

	require.ErrorIs(t, n.AddLocalizedDialogueEntries(language.Japanese, []flowchart.LocalizedEntry{
		{DisplayName: "語り手", Text: "こんにちは"},
	}), flowchart.ErrInvalidNode)

	require.NoError(t, n.AddLocalizedDialogueEntries(language.Japanese, []flowchart.LocalizedEntry{
		{DisplayName: "語り手", Text: "こんにちは"},
		{DisplayName: "語り手", Text: "さようなら"},
	}))
	require.NotEqual(t, before, n.DialogueEntry(0).Hash())

	data := n.DialogueEntry(0).DisplayData()
	require.Equal(t, "narrator", data.Character)
	require.Equal(t, "こんにちは", data.Text(language.Japanese))
	require.Equal(t, "Hello", data.Text(language.French))
	require.Nil(t, n.DialogueEntry(2))
}
