package save

import (
	"fmt"
	"github.com/myrjola/novella/cmd/cli/app"
	"github.com/myrjola/novella/internal/checkpoint"
	"github.com/myrjola/novella/internal/errors"
	"github.com/myrjola/novella/internal/logging"
	"github.com/spf13/cobra"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"
)

var Group = &cobra.Group{
	ID:    "save",
	Title: "Save files",
}

func init() {
	Reset.Flags().Bool("yes", false, "confirm erasing all progress")
}

var Info = &cobra.Command{
	Use:     "info",
	GroupID: "save",
	Short:   "Show the global save",
	Long:    "Prints the global save identifier, the reached end points and the bookmark slot summary",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		a, err := app.Open(ctx, cmd)
		if err != nil {
			return err
		}
		defer func() { _ = a.Close(ctx) }()

		w := cmd.OutOrStdout()
		_, _ = fmt.Fprintf(w, "backend: %s\n", a.Config.SaveBackend)
		_, _ = fmt.Fprintf(w, "global save: %s\n", a.Saves.GlobalSaveIdentifier())
		_, _ = fmt.Fprintf(w, "reached ends: %s\n", strings.Join(a.Saves.ReachedEnds(), ", "))
		saveIDs := a.Saves.SaveIDs()
		_, _ = fmt.Fprintf(w, "bookmarks: %d\n", len(saveIDs))
		if len(saveIDs) > 0 {
			latest := a.Saves.QuerySaveIDByTime(0, math.MaxInt, checkpoint.SaveIDQueryLatest)
			_, _ = fmt.Fprintf(w, "latest slot: %d\n", latest)
		}
		return nil
	},
}

var Slots = &cobra.Command{
	Use:     "slots",
	GroupID: "save",
	Short:   "List bookmarks",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		a, err := app.Open(ctx, cmd)
		if err != nil {
			return err
		}
		defer func() { _ = a.Close(ctx) }()

		w := cmd.OutOrStdout()
		for _, saveID := range a.Saves.SaveIDs() {
			b, err := a.Saves.Bookmark(ctx, saveID)
			if err != nil {
				a.Logger.LogAttrs(logging.WithSaveSlot(ctx, saveID), slog.LevelWarn, "skipping unreadable bookmark",
					errors.SlogError(err))
				continue
			}
			_, _ = fmt.Fprintf(w, "%4d  %-6s  %s  %s\n", saveID, checkpoint.BookmarkTypeOf(saveID),
				b.CreationTime.Format(time.DateTime), b.Description)
		}
		return nil
	},
}

var Delete = &cobra.Command{
	Use:     "delete [slot]",
	GroupID: "save",
	Short:   "Delete a bookmark",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		saveID, err := strconv.Atoi(args[0])
		if err != nil {
			return errors.Wrap(err, "parse slot", slog.String("slot", args[0]))
		}
		ctx := cmd.Context()
		a, err := app.Open(ctx, cmd)
		if err != nil {
			return err
		}
		defer func() { _ = a.Close(ctx) }()
		return a.Saves.DeleteBookmark(ctx, saveID)
	},
}

var Reset = &cobra.Command{
	Use:     "reset",
	GroupID: "save",
	Short:   "Erase all progress",
	Long:    "Replaces the global save with an empty one. Existing bookmarks become incompatible.",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		confirmed, err := cmd.Flags().GetBool("yes")
		if err != nil {
			return errors.Wrap(err, "invalid yes flag")
		}
		if !confirmed {
			return errors.New("refusing to erase progress without --yes")
		}
		ctx := cmd.Context()
		a, err := app.Open(ctx, cmd)
		if err != nil {
			return err
		}
		defer func() { _ = a.Close(ctx) }()
		if err = a.Saves.ResetGlobalSave(ctx); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "global save reset to %s\n", a.Saves.GlobalSaveIdentifier())
		return nil
	},
}
