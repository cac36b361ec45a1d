package graph

import (
	"fmt"
	"github.com/myrjola/novella/cmd/cli/app"
	"github.com/myrjola/novella/internal/flowchart"
	"github.com/myrjola/novella/internal/story"
	"github.com/spf13/cobra"
	"io"
	"strings"
)

var Group = &cobra.Group{
	ID:    "graph",
	Title: "Story graphs",
}

var Check = &cobra.Command{
	Use:     "check [story file]",
	GroupID: "graph",
	Short:   "Validate a story",
	Long:    "Loads a JSON or YAML story, runs the sanity check and prints a summary of its flow chart",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := app.NewLogger(cmd, cmd.ErrOrStderr())
		s, err := story.Load(cmd.Context(), logger, args[0])
		if err != nil {
			return err
		}
		Summarize(cmd.OutOrStdout(), s)
		return nil
	},
}

// Summarize prints the title, node counts by kind, start points and end points of s.
func Summarize(w io.Writer, s *story.Story) {
	counts := make(map[flowchart.NodeKind]int)
	dialogues := 0
	for _, n := range s.Graph.Nodes() {
		counts[n.Kind()]++
		dialogues += n.DialogueEntryCount()
	}
	_, _ = fmt.Fprintf(w, "title: %s\n", s.Title)
	_, _ = fmt.Fprintf(w, "nodes: %d normal, %d branching, %d end\n",
		counts[flowchart.NodeKindNormal], counts[flowchart.NodeKindBranching], counts[flowchart.NodeKindEnd])
	_, _ = fmt.Fprintf(w, "dialogues: %d\n", dialogues)
	if defaultStart, err := s.Graph.DefaultStart(); err == nil {
		_, _ = fmt.Fprintf(w, "default start: %s\n", defaultStart)
	}
	_, _ = fmt.Fprintf(w, "starts: %s\n", strings.Join(s.Graph.StartNames(flowchart.StartNormal), ", "))
	if debug := s.Graph.StartNames(flowchart.StartDebug); len(debug) > 0 {
		_, _ = fmt.Fprintf(w, "debug starts: %s\n", strings.Join(debug, ", "))
	}
	_, _ = fmt.Fprintf(w, "ends: %s\n", strings.Join(s.Graph.EndNames(), ", "))
}
