package play

import (
	"github.com/myrjola/novella/cmd/cli/app"
	"github.com/myrjola/novella/internal/errors"
	"github.com/myrjola/novella/internal/pprofserver"
	"github.com/myrjola/novella/internal/story"
	"github.com/spf13/cobra"
)

var Group = &cobra.Group{
	ID:    "play",
	Title: "Playing",
}

func init() {
	Play.Flags().String("start", "", "start point, the default start point when empty")
	Play.Flags().String("pprof-port", "", "serve pprof on localhost at this port, e.g. :6060")
}

var Play = &cobra.Command{
	Use:     "play [story file]",
	GroupID: "play",
	Short:   "Play a story in the terminal",
	Long:    "Plays a JSON or YAML story. Progress and bookmarks go to the configured save backend.",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		startName, err := cmd.Flags().GetString("start")
		if err != nil {
			return errors.Wrap(err, "invalid start flag")
		}
		pprofPort, err := cmd.Flags().GetString("pprof-port")
		if err != nil {
			return errors.Wrap(err, "invalid pprof-port flag")
		}

		a, err := app.Open(ctx, cmd)
		if err != nil {
			return err
		}
		defer func() { _ = a.Close(ctx) }()
		if pprofPort != "" {
			srv := pprofserver.Launch(ctx, pprofPort, a.Logger)
			defer func() { _ = srv.Close() }()
		}

		s, err := story.Load(ctx, a.Logger, args[0])
		if err != nil {
			return err
		}
		return NewPlayer(a.Logger, cmd.OutOrStdout(), s, a.Saves, a.Config).Run(ctx, cmd.InOrStdin(), startName)
	},
}
