package story_test

import (
	"context"
	"github.com/myrjola/novella/internal/checkpoint"
	"github.com/myrjola/novella/internal/flowchart"
	"github.com/myrjola/novella/internal/gamestate"
	"github.com/myrjola/novella/internal/savefile"
	"github.com/myrjola/novella/internal/story"
	"github.com/myrjola/novella/internal/testhelpers"
	"github.com/myrjola/novella/internal/variables"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
	"io"
	"strings"
	"testing"
)

type endRecorder struct {
	gamestate.NoOpEvents
	ended []string
}

func (r *endRecorder) RouteEnded(_ context.Context, endName string) {
	r.ended = append(r.ended, endName)
}

func TestFormatOf(t *testing.T) {
	tests := []struct {
		path    string
		want    story.Format
		wantErr error
	}{
		{path: "a.json", want: story.FormatJSON},
		{path: "dir/a.YAML", want: story.FormatYAML},
		{path: "a.yml", want: story.FormatYAML},
		{path: "a.txt", wantErr: story.ErrUnknownFormat},
		{path: "json", wantErr: story.ErrUnknownFormat},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, err := story.FormatOf(tt.path)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestLoad(t *testing.T) {
	for _, path := range []string{"testdata/cellar.json", "testdata/cellar.yaml"} {
		t.Run(path, func(t *testing.T) {
			ctx := context.Background()
			logger := testhelpers.NewLogger(io.Discard)
			s, err := story.Load(ctx, logger, path)
			require.NoError(t, err)

			require.Equal(t, "The Cellar", s.Title)
			require.True(t, s.Graph.Frozen())
			require.Equal(t, []string{"intro"}, s.Graph.StartNames(flowchart.StartNormal))
			require.Equal(t, []string{"at_the_door"}, s.Graph.StartNames(flowchart.StartDebug))
			require.Equal(t, []string{"escaped"}, s.Graph.EndNames())

			intro := s.Graph.Node("intro")
			require.Equal(t, "Waking up", intro.DisplayNames().Get(flowchart.DefaultLocale))
			display := intro.DialogueEntry(0).DisplayData()
			require.Equal(t, "You wake up in a cellar.", display.Text(flowchart.DefaultLocale))
			require.Equal(t, "地下室で目を覚ました。", display.Text(language.Japanese))
			require.Equal(t, "A lantern flickers.", intro.DialogueEntry(1).DisplayData().Text(language.Japanese))
			require.Equal(t, "Alice", s.Graph.Node("key").DialogueEntry(0).DisplayData().Name(flowchart.DefaultLocale))
		})
	}
}

func TestJSONAndYAMLCompileToSameContent(t *testing.T) {
	ctx := context.Background()
	logger := testhelpers.NewLogger(io.Discard)
	fromJSON, err := story.Load(ctx, logger, "testdata/cellar.json")
	require.NoError(t, err)
	fromYAML, err := story.Load(ctx, logger, "testdata/cellar.yaml")
	require.NoError(t, err)

	for _, n := range fromJSON.Graph.Nodes() {
		other := fromYAML.Graph.Node(n.Name())
		require.NotNil(t, other, n.Name())
		require.Equal(t, n.Kind(), other.Kind())
		require.Equal(t, n.DialogueEntryCount(), other.DialogueEntryCount())
		for i := range n.DialogueEntryCount() {
			require.Equal(t, n.DialogueEntry(i).Hash(), other.DialogueEntry(i).Hash())
		}
	}
}

func TestPlayThrough(t *testing.T) {
	ctx := context.Background()
	logger := testhelpers.NewLogger(io.Discard)
	s, err := story.Load(ctx, logger, "testdata/cellar.json")
	require.NoError(t, err)
	storage, err := savefile.NewFileStorage(logger, t.TempDir())
	require.NoError(t, err)
	manager := checkpoint.NewManager(logger, storage, checkpoint.LogAlerter{Logger: logger}, 0)
	require.NoError(t, manager.Load(ctx))
	events := &endRecorder{}
	gs := gamestate.New(logger, s.Graph, manager, events, gamestate.Config{})

	require.NoError(t, gs.Start(ctx, ""))
	require.NoError(t, gs.Step(ctx))
	require.True(t, gs.Variables().Bool("lantern_lit", false))

	require.NoError(t, gs.Step(ctx))
	require.NoError(t, gs.Step(ctx))
	options := gs.BranchOptions()
	require.Len(t, options, 2)
	require.Equal(t, "take_key", options[0].Branch.Info.Name)
	require.True(t, options[0].Active)
	require.False(t, options[1].Active)
	require.NoError(t, gs.SelectBranch(0))
	require.NoError(t, gs.Tick(ctx))

	require.Equal(t, "key", gs.Node().Name())
	require.True(t, gs.Variables().Bool("has_key", false))
	require.Equal(t, 1, gs.Variables().Int("keys_taken", 0))

	require.NoError(t, gs.Step(ctx))
	require.Equal(t, "door", gs.Node().Name())
	require.NoError(t, gs.Step(ctx))
	options = gs.BranchOptions()
	require.Len(t, options, 1)
	require.Equal(t, "open", options[0].Branch.Info.Name)
	require.True(t, options[0].Active)
	require.NoError(t, gs.SelectBranch(0))
	require.NoError(t, gs.Tick(ctx))

	require.NoError(t, gs.Step(ctx))
	require.Equal(t, gamestate.StateEnded, gs.State())
	require.Equal(t, []string{"escaped"}, events.ended)
	require.Equal(t, []string{"intro", "door", "key", "door", "outside"}, gs.History().Names())
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr error
	}{
		{
			name:    "unknown field",
			doc:     `{"title": "x", "chapters": []}`,
			wantErr: story.ErrInvalidStory,
		},
		{
			name:    "malformed",
			doc:     `{"title": `,
			wantErr: story.ErrInvalidStory,
		},
		{
			name:    "unknown node kind",
			doc:     `{"nodes": [{"name": "a", "kind": "loop", "dialogues": [{"text": "x"}]}]}`,
			wantErr: story.ErrInvalidStory,
		},
		{
			name: "unknown branch mode",
			doc: `{"nodes": [{"name": "a", "kind": "branching", "dialogues": [{"text": "x"}],
				"branches": [{"name": "b", "next": "a", "mode": "maybe"}]}]}`,
			wantErr: story.ErrInvalidStory,
		},
		{
			name: "unknown operator",
			doc: `{"nodes": [{"name": "a", "kind": "branching", "dialogues": [{"text": "x"}],
				"branches": [{"name": "b", "next": "a", "when": [{"var": "v", "op": "like", "value": 1}]}]}]}`,
			wantErr: story.ErrInvalidStory,
		},
		{
			name: "ordering on string",
			doc: `{"nodes": [{"name": "a", "kind": "branching", "dialogues": [{"text": "x"}],
				"branches": [{"name": "b", "next": "a", "when": [{"var": "v", "op": "lt", "value": "z"}]}]}]}`,
			wantErr: story.ErrInvalidStory,
		},
		{
			name:    "invalid locale",
			doc:     `{"nodes": [{"name": "a", "dialogues": [{"text": {"not a locale!": "x"}}]}]}`,
			wantErr: story.ErrInvalidStory,
		},
		{
			name:    "unsupported variable value",
			doc:     `{"nodes": [{"name": "a", "dialogues": [{"text": "x", "set": {"v": {"nested": 1}}}]}]}`,
			wantErr: variables.ErrUnsupportedType,
		},
		{
			name:    "duplicate node",
			doc:     `{"nodes": [{"name": "a", "dialogues": [{"text": "x"}]}, {"name": "a", "dialogues": [{"text": "y"}]}]}`,
			wantErr: story.ErrInvalidStory,
		},
		{
			name:    "jump to unknown node",
			doc:     `{"nodes": [{"name": "a", "dialogues": [{"text": "x", "jump": "nowhere"}]}]}`,
			wantErr: story.ErrInvalidStory,
		},
		{
			name:    "start at unknown node",
			doc:     `{"starts": [{"name": "s", "node": "b"}], "nodes": [{"name": "a", "dialogues": [{"text": "x"}]}]}`,
			wantErr: flowchart.ErrNodeNotFound,
		},
		{
			name: "next to unknown node",
			doc: `{"starts": [{"name": "s", "node": "a"}],
				"nodes": [{"name": "a", "dialogues": [{"text": "x"}], "next": "b"}]}`,
			wantErr: flowchart.ErrNodeNotFound,
		},
		{
			name:    "no start",
			doc:     `{"nodes": [{"name": "a", "dialogues": [{"text": "x"}]}]}`,
			wantErr: flowchart.ErrNoStart,
		},
		{
			name: "unknown default start",
			doc: `{"default_start": "t", "starts": [{"name": "s", "node": "a"}],
				"nodes": [{"name": "a", "dialogues": [{"text": "x"}]}]}`,
			wantErr: flowchart.ErrStartNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := story.Parse(strings.NewReader(tt.doc), story.FormatJSON)
			if err == nil {
				_, err = story.Build(testhelpers.NewLogger(io.Discard), doc)
			}
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestConditions(t *testing.T) {
	vars := variables.New()
	require.NoError(t, vars.Set("count", 3))
	require.NoError(t, vars.Set("name", "alice"))
	require.NoError(t, vars.Set("flag", false))

	tests := []struct {
		when string
		want bool
	}{
		{when: `{"var": "count"}`, want: true},
		{when: `{"var": "flag"}`, want: false},
		{when: `{"var": "missing", "op": "falsy"}`, want: true},
		{when: `{"var": "name", "op": "truthy"}`, want: true},
		{when: `{"var": "count", "op": "eq", "value": 3}`, want: true},
		{when: `{"var": "count", "op": "eq", "value": "3"}`, want: false},
		{when: `{"var": "name", "op": "ne", "value": "bob"}`, want: true},
		{when: `{"var": "missing", "op": "ne", "value": 1}`, want: true},
		{when: `{"var": "count", "op": "lt", "value": 3}`, want: false},
		{when: `{"var": "count", "op": "le", "value": 3}`, want: true},
		{when: `{"var": "count", "op": "gt", "value": 2.5}`, want: true},
		{when: `{"var": "count", "op": "ge", "value": 4}`, want: false},
		{when: `{"var": "name", "op": "ge", "value": 0}`, want: false},
		{when: `{"var": "count", "op": "gt", "value": 1}, {"var": "flag"}`, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.when, func(t *testing.T) {
			doc, err := story.Parse(strings.NewReader(`{
				"starts": [{"name": "s", "node": "a"}],
				"nodes": [
					{"name": "a", "kind": "branching", "dialogues": [{"text": "x"}],
					 "branches": [{"name": "b", "next": "b", "mode": "show", "when": [`+tt.when+`]}]},
					{"name": "b", "dialogues": [{"text": "y"}]}
				]}`), story.FormatJSON)
			require.NoError(t, err)
			s, err := story.Build(testhelpers.NewLogger(io.Discard), doc)
			require.NoError(t, err)

			branch, ok := s.Graph.Node("a").Branch("b")
			require.True(t, ok)
			require.Equal(t, tt.want, branch.Info.Holds(vars))
		})
	}
}
