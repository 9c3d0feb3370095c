package main

import (
	"fmt"
	"os"

	"github.com/dkeye/SignMeet/internal/adapters/api"
	"github.com/dkeye/SignMeet/internal/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "signmeet",
	Short: "Headless SignMeet participant",
	Long: `signmeet manages rooms on a SignMeet server and joins them as a
headless mesh participant, streaming file-backed media to every peer and
sampling frames for sign captions.`,
}

func init() {
	config.RegisterClientFlags(rootCmd.PersistentFlags())
	rootCmd.AddCommand(healthCmd, createCmd, roomsCmd, infoCmd, joinCmd)
}

func Execute() {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("✗ "+err.Error()))
		os.Exit(1)
	}
}

// setup resolves the client configuration and points the global logger at
// stderr so it does not interleave with room output.
func setup(cmd *cobra.Command) (*config.Client, *api.Client, error) {
	cfg, err := config.LoadClient(cmd.Flags())
	if err != nil {
		return nil, nil, err
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	config.ApplyLogLevel(cfg.LogLevel)
	return cfg, api.NewClient(cfg.Server), nil
}
