package story

import (
	"context"
	"github.com/myrjola/novella/internal/errors"
	"github.com/myrjola/novella/internal/flowchart"
	"github.com/myrjola/novella/internal/variables"
	"golang.org/x/text/language"
	"log/slog"
	"os"
	"sort"
)

// Story is a compiled story document.
type Story struct {
	Title string
	// Graph is frozen and passed the sanity check.
	Graph *flowchart.Graph
}

// Load reads, parses and compiles the story file at path.
func Load(ctx context.Context, logger *slog.Logger, path string) (*Story, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open story", slog.String("path", path))
	}
	defer f.Close()
	doc, err := Parse(f, format)
	if err != nil {
		return nil, errors.Wrap(err, "load story", slog.String("path", path))
	}
	s, err := Build(logger, doc)
	if err != nil {
		return nil, errors.Wrap(err, "load story", slog.String("path", path))
	}
	logger.LogAttrs(ctx, slog.LevelInfo, "story loaded",
		slog.String("path", path),
		slog.String("title", s.Title),
		slog.Int("nodes", len(doc.Nodes)))
	return s, nil
}

// Build compiles doc into a frozen flow chart.
func Build(logger *slog.Logger, doc *Document) (*Story, error) {
	g := flowchart.NewGraph(logger)
	for _, nd := range doc.Nodes {
		if nd.Name == "" {
			return nil, errors.Wrap(ErrInvalidStory, "node without name")
		}
		if g.HasNode(nd.Name) {
			return nil, errors.Wrap(ErrInvalidStory, "duplicate node", slog.String("node", nd.Name))
		}
		n, err := compileNode(nd)
		if err != nil {
			return nil, errors.Wrap(err, "compile node", slog.String("node", nd.Name))
		}
		if err = g.AddNode(n); err != nil {
			return nil, err
		}
	}

	for _, nd := range doc.Nodes {
		for i, d := range nd.Dialogues {
			if d.Jump != "" && !g.HasNode(d.Jump) {
				return nil, errors.Wrap(ErrInvalidStory, "jump to unknown node",
					slog.String("node", nd.Name), slog.Int("dialogueIndex", i), slog.String("jump", d.Jump))
			}
		}
		if nd.End != "" {
			if err := g.AddEnd(nd.End, g.Node(nd.Name)); err != nil {
				return nil, err
			}
		}
	}

	for _, sd := range doc.Starts {
		startType, err := parseStartType(sd.Type)
		if err != nil {
			return nil, errors.Wrap(err, "compile start", slog.String("start", sd.Name))
		}
		n := g.Node(sd.Node)
		if n == nil {
			return nil, errors.Wrap(flowchart.ErrNodeNotFound, "compile start",
				slog.String("start", sd.Name), slog.String("node", sd.Node))
		}
		if err = g.AddStart(sd.Name, n, startType); err != nil {
			return nil, err
		}
	}
	if doc.DefaultStart != "" {
		if err := g.SetDefaultStart(doc.DefaultStart); err != nil {
			return nil, err
		}
	}

	if err := g.SanityCheck(); err != nil {
		return nil, err
	}
	g.Freeze()
	return &Story{Title: doc.Title, Graph: g}, nil
}

func compileNode(nd Node) (*flowchart.Node, error) {
	n := flowchart.NewNode(nd.Name)
	kind, err := parseNodeKind(nd.Kind)
	if err != nil {
		return nil, err
	}
	if err = n.SetKind(kind); err != nil {
		return nil, err
	}
	names, err := localize(nd.DisplayName)
	if err != nil {
		return nil, err
	}
	for locale, name := range names {
		if err = n.AddLocalizedName(locale, name); err != nil {
			return nil, err
		}
	}

	entries := make([]*flowchart.DialogueEntry, 0, len(nd.Dialogues))
	for i, d := range nd.Dialogues {
		entry, err := compileDialogue(d)
		if err != nil {
			return nil, errors.Wrap(err, "compile dialogue", slog.Int("dialogueIndex", i))
		}
		entries = append(entries, entry)
	}
	if err = n.SetDialogueEntries(entries); err != nil {
		return nil, err
	}

	if nd.Next != "" {
		if err = n.AddBranch(flowchart.DefaultBranch(), nd.Next); err != nil {
			return nil, err
		}
	}
	for _, bd := range nd.Branches {
		info, err := compileBranch(bd)
		if err != nil {
			return nil, errors.Wrap(err, "compile branch", slog.String("branch", bd.Name))
		}
		if err = n.AddBranch(info, bd.Next); err != nil {
			return nil, err
		}
	}
	return n, nil
}

func compileDialogue(d Dialogue) (*flowchart.DialogueEntry, error) {
	names, err := localize(d.Name)
	if err != nil {
		return nil, err
	}
	texts, err := localize(d.Text)
	if err != nil {
		return nil, err
	}
	action, err := compileAction(d)
	if err != nil {
		return nil, err
	}
	var actions map[flowchart.ActionStage]flowchart.Action
	if action != nil {
		actions = map[flowchart.ActionStage]flowchart.Action{flowchart.StageDefault: action}
	}
	return flowchart.NewDialogueEntry(d.Character, names, texts, actions), nil
}

type assignment struct {
	name  string
	entry variables.Entry
	unset bool
}

type increment struct {
	name  string
	delta float64
}

func compileAction(d Dialogue) (flowchart.Action, error) {
	assignments := make([]assignment, 0, len(d.Set))
	for _, name := range sortedKeys(d.Set) {
		if d.Set[name] == nil {
			assignments = append(assignments, assignment{name: name, unset: true})
			continue
		}
		entry, err := toEntry(d.Set[name])
		if err != nil {
			return nil, errors.Wrap(err, "compile assignment", slog.String("variable", name))
		}
		assignments = append(assignments, assignment{name: name, entry: entry})
	}
	increments := make([]increment, 0, len(d.Add))
	for _, name := range sortedKeys(d.Add) {
		increments = append(increments, increment{name: name, delta: d.Add[name]})
	}
	if d.RestrainCheckpoint < 0 {
		return nil, errors.Wrap(ErrInvalidStory, "negative checkpoint restraint",
			slog.Int("restrainCheckpoint", d.RestrainCheckpoint))
	}
	if len(assignments) == 0 && len(increments) == 0 && d.RestrainCheckpoint == 0 && !d.Checkpoint &&
		d.Jump == "" && !d.FallThrough {
		return nil, nil
	}

	return func(rt flowchart.Runtime) {
		vars := rt.Variables()
		for _, a := range assignments {
			if a.unset {
				vars.Delete(a.name)
				continue
			}
			vars.SetEntry(a.name, a.entry)
		}
		for _, inc := range increments {
			sum := vars.Number(inc.name, 0) + inc.delta
			vars.SetEntry(inc.name, variables.Entry{Type: variables.TypeNumber, Number: sum})
		}
		if d.RestrainCheckpoint > 0 {
			rt.RestrainCheckpoint(d.RestrainCheckpoint, false)
		}
		if d.Checkpoint {
			rt.EnsureCheckpointOnNextDialogue()
		}
		if d.Jump != "" {
			rt.RequestJump(d.Jump)
		}
		if d.FallThrough {
			rt.RequestFallThrough()
		}
	}, nil
}

func compileBranch(bd Branch) (flowchart.BranchInfo, error) {
	if bd.Name == "" {
		return flowchart.BranchInfo{}, errors.Wrap(ErrInvalidStory, "branch without name")
	}
	mode, err := parseBranchMode(bd.Mode)
	if err != nil {
		return flowchart.BranchInfo{}, err
	}
	texts, err := localize(bd.Text)
	if err != nil {
		return flowchart.BranchInfo{}, err
	}
	cond, err := compileConditions(bd.When)
	if err != nil {
		return flowchart.BranchInfo{}, err
	}
	return flowchart.BranchInfo{Name: bd.Name, Texts: texts, Mode: mode, Condition: cond}, nil
}

func compileConditions(conds []Condition) (flowchart.Condition, error) {
	if len(conds) == 0 {
		return nil, nil
	}
	checks := make([]flowchart.Condition, 0, len(conds))
	for _, c := range conds {
		check, err := compileCondition(c)
		if err != nil {
			return nil, errors.Wrap(err, "compile condition", slog.String("variable", c.Var), slog.String("op", c.Op))
		}
		checks = append(checks, check)
	}
	return func(vars *variables.Variables) bool {
		for _, check := range checks {
			if !check(vars) {
				return false
			}
		}
		return true
	}, nil
}

func compileCondition(c Condition) (flowchart.Condition, error) {
	if c.Var == "" {
		return nil, errors.Wrap(ErrInvalidStory, "condition without variable")
	}
	name := c.Var
	switch c.Op {
	case "", "truthy":
		return func(vars *variables.Variables) bool {
			e, ok := vars.Get(name)
			return ok && truthy(e)
		}, nil
	case "falsy":
		return func(vars *variables.Variables) bool {
			e, ok := vars.Get(name)
			return !ok || !truthy(e)
		}, nil
	}

	want, err := toEntry(c.Value)
	if err != nil {
		return nil, err
	}
	switch c.Op {
	case "eq":
		return func(vars *variables.Variables) bool {
			e, ok := vars.Get(name)
			return ok && e == want
		}, nil
	case "ne":
		return func(vars *variables.Variables) bool {
			e, ok := vars.Get(name)
			return !ok || e != want
		}, nil
	}

	if want.Type != variables.TypeNumber {
		return nil, errors.Wrap(ErrInvalidStory, "ordering needs a number", slog.String("type", want.Type.String()))
	}
	var cmp func(a, b float64) bool
	switch c.Op {
	case "lt":
		cmp = func(a, b float64) bool { return a < b }
	case "le":
		cmp = func(a, b float64) bool { return a <= b }
	case "gt":
		cmp = func(a, b float64) bool { return a > b }
	case "ge":
		cmp = func(a, b float64) bool { return a >= b }
	default:
		return nil, errors.Wrap(ErrInvalidStory, "unknown condition operator")
	}
	return func(vars *variables.Variables) bool {
		e, ok := vars.Get(name)
		return ok && e.Type == variables.TypeNumber && cmp(e.Number, want.Number)
	}, nil
}

func truthy(e variables.Entry) bool {
	switch e.Type {
	case variables.TypeBoolean:
		return e.Bool
	case variables.TypeNumber:
		return e.Number != 0
	default:
		return e.String != ""
	}
}

// toEntry converts a decoded value through Variables.Set so that stories accept exactly the variable types.
func toEntry(value any) (variables.Entry, error) {
	if value == nil {
		return variables.Entry{}, errors.Wrap(ErrInvalidStory, "missing value")
	}
	scratch := variables.New()
	if err := scratch.Set("value", value); err != nil {
		return variables.Entry{}, errors.Join(ErrInvalidStory, err)
	}
	e, _ := scratch.Get("value")
	return e, nil
}

func localize(t Text) (flowchart.LocalizedText, error) {
	out := make(flowchart.LocalizedText, len(t))
	for tag, s := range t {
		locale, err := language.Parse(tag)
		if err != nil {
			return nil, errors.Wrap(ErrInvalidStory, "invalid locale", slog.String("locale", tag))
		}
		out[locale] = s
	}
	return out, nil
}

func parseNodeKind(s string) (flowchart.NodeKind, error) {
	switch s {
	case "", "normal":
		return flowchart.NodeKindNormal, nil
	case "branching":
		return flowchart.NodeKindBranching, nil
	case "end":
		return flowchart.NodeKindEnd, nil
	default:
		return 0, errors.Wrap(ErrInvalidStory, "unknown node kind", slog.String("kind", s))
	}
}

func parseBranchMode(s string) (flowchart.BranchMode, error) {
	switch s {
	case "", "normal":
		return flowchart.BranchModeNormal, nil
	case "jump":
		return flowchart.BranchModeJump, nil
	case "show":
		return flowchart.BranchModeShow, nil
	case "enable":
		return flowchart.BranchModeEnable, nil
	default:
		return 0, errors.Wrap(ErrInvalidStory, "unknown branch mode", slog.String("mode", s))
	}
}

func parseStartType(s string) (flowchart.StartType, error) {
	switch s {
	case "", "unlocked":
		return flowchart.StartUnlocked, nil
	case "locked":
		return flowchart.StartLocked, nil
	case "debug":
		return flowchart.StartDebug, nil
	default:
		return 0, errors.Wrap(ErrInvalidStory, "unknown start type", slog.String("type", s))
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
