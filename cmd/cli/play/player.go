package play

import (
	"bufio"
	"context"
	"fmt"
	"github.com/myrjola/novella/internal/checkpoint"
	"github.com/myrjola/novella/internal/config"
	"github.com/myrjola/novella/internal/errors"
	"github.com/myrjola/novella/internal/flowchart"
	"github.com/myrjola/novella/internal/gamestate"
	"github.com/myrjola/novella/internal/logging"
	"github.com/myrjola/novella/internal/story"
	"golang.org/x/text/language"
	"io"
	"log/slog"
	"strconv"
	"strings"
)

const help = `commands:
  <enter>    next dialogue
  <number>   choose an option
  save <n>   save a bookmark to slot n
  load <n>   load the bookmark in slot n
  back <n>   go back n dialogues
  quit       save progress and exit
`

// Player runs a story in a terminal. It prints the events of its game state to out.
type Player struct {
	gamestate.NoOpEvents
	logger *slog.Logger
	out    io.Writer
	locale language.Tag
	game   *gamestate.GameState
	saves  *checkpoint.Manager
	ended  bool
}

func NewPlayer(logger *slog.Logger, out io.Writer, s *story.Story, saves *checkpoint.Manager, cfg config.Config) *Player {
	p := &Player{
		logger: logger,
		out:    out,
		locale: cfg.LocaleTag(),
		saves:  saves,
		ended:  false,
	}
	p.game = gamestate.New(logger, s.Graph, saves, p, gamestate.Config{
		MaxStepsFromLastCheckpoint: cfg.MaxStepsFromLastCheckpoint,
		Locale:                     p.locale,
	})
	return p
}

// Run starts the story at startName and reads commands from in until the route ends, the player quits or in is
// exhausted. Progress is written to the global save before returning.
func (p *Player) Run(ctx context.Context, in io.Reader, startName string) error {
	if err := p.game.Start(ctx, startName); err != nil {
		return err
	}
	scanner := bufio.NewScanner(in)
	for !p.ended && scanner.Scan() {
		quit, err := p.handle(ctx, strings.TrimSpace(scanner.Text()))
		if err != nil {
			if !recoverable(err) {
				return err
			}
			p.logger.LogAttrs(ctx, slog.LevelDebug, "command failed", errors.SlogError(err))
			p.printf("error: %v\n", err)
		}
		if quit {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrap(err, "read command")
	}
	return p.saves.UpdateGlobalSave(ctx)
}

func recoverable(err error) bool {
	return errors.Is(err, gamestate.ErrInvalidSelection) ||
		errors.Is(err, gamestate.ErrPositionNotReached) ||
		errors.Is(err, checkpoint.ErrBookmarkNotFound) ||
		errors.Is(err, checkpoint.ErrIncompatibleBookmark) ||
		errors.Is(err, strconv.ErrSyntax) ||
		errors.Is(err, strconv.ErrRange)
}

func (p *Player) handle(ctx context.Context, line string) (bool, error) {
	command, arg, _ := strings.Cut(line, " ")
	switch command {
	case "q", "quit":
		return true, nil
	case "help":
		p.printf("%s", help)
		return false, nil
	case "", "n", "next":
		if len(p.game.BranchOptions()) > 0 {
			p.printf("choose an option first\n")
			return false, nil
		}
		return false, p.game.Step(ctx)
	case "save":
		saveID, err := strconv.Atoi(arg)
		if err != nil {
			return false, err
		}
		return false, p.save(logging.WithSaveSlot(ctx, saveID), saveID)
	case "load":
		saveID, err := strconv.Atoi(arg)
		if err != nil {
			return false, err
		}
		return false, p.load(logging.WithSaveSlot(ctx, saveID), saveID)
	case "back":
		steps, err := strconv.Atoi(arg)
		if err != nil {
			return false, err
		}
		return false, p.back(ctx, steps)
	}

	choice, err := strconv.Atoi(command)
	if err != nil {
		p.printf("unknown command %q, type help for a list\n", command)
		return false, nil
	}
	if len(p.game.BranchOptions()) == 0 {
		p.printf("nothing to choose\n")
		return false, nil
	}
	if err = p.game.SelectBranch(choice - 1); err != nil {
		return false, err
	}
	return false, p.game.Tick(ctx)
}

func (p *Player) save(ctx context.Context, saveID int) error {
	b, err := p.game.GetBookmark()
	if err != nil {
		return err
	}
	if err = p.saves.SaveBookmark(ctx, saveID, b); err != nil {
		return err
	}
	p.printf("saved to slot %d\n", saveID)
	return nil
}

func (p *Player) load(ctx context.Context, saveID int) error {
	b, err := p.saves.LoadBookmark(ctx, saveID)
	if err != nil {
		return err
	}
	return p.game.LoadBookmark(ctx, b)
}

func (p *Player) back(ctx context.Context, steps int) error {
	nodeName, dialogueIndex, ok := p.game.SeekBack(steps)
	if !ok {
		p.printf("cannot go back %d dialogues\n", steps)
		return nil
	}
	return p.game.MoveBackTo(ctx, gamestate.Position{NodeName: nodeName, DialogueIndex: dialogueIndex}, false)
}

func (p *Player) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(p.out, format, args...)
}

func (p *Player) DialogueChanged(_ context.Context, data gamestate.DialogueChangedData) {
	if data.IsRestoring {
		return
	}
	text := data.Display.Text(p.locale)
	if name := data.Display.Name(p.locale); name != "" {
		p.printf("%s: %s\n", name, text)
		return
	}
	p.printf("%s\n", text)
}

func (p *Player) BranchOccurs(_ context.Context, options []flowchart.BranchOption) {
	for i, o := range options {
		label := o.Branch.Info.Texts.Get(p.locale)
		if label == "" {
			label = o.Branch.Info.Name
		}
		if !o.Active {
			label += " (unavailable)"
		}
		p.printf("  %d) %s\n", i+1, label)
	}
}

func (p *Player) RouteEnded(_ context.Context, endName string) {
	p.ended = true
	p.printf("-- %s --\n", endName)
}
