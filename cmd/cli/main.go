package main

import (
	"fmt"
	"github.com/joho/godotenv"
	"github.com/myrjola/novella/cmd/cli/graph"
	"github.com/myrjola/novella/cmd/cli/play"
	"github.com/myrjola/novella/cmd/cli/save"
	"github.com/myrjola/novella/internal/errors"
	"github.com/spf13/cobra"
	"io/fs"
	"os"
)

func init() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "log debug messages")
	rootCmd.AddGroup(graph.Group)
	rootCmd.AddCommand(graph.Check)
	rootCmd.AddGroup(save.Group)
	rootCmd.AddCommand(save.Info, save.Slots, save.Delete, save.Reset)
	rootCmd.AddGroup(play.Group)
	rootCmd.AddCommand(play.Play)
}

var rootCmd = &cobra.Command{
	Use:           "novella",
	Long:          `Command line tools for novella stories and save files`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func main() {
	Execute()
}
