package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tardsplaya/tardsplayad/internal/coordinator"
	"github.com/tardsplaya/tardsplayad/internal/player"
	"github.com/tardsplaya/tardsplayad/internal/resolve"
	"github.com/tardsplaya/tardsplayad/internal/stream"
	"github.com/tardsplaya/tardsplayad/internal/util"
)

var (
	watchQuality    string
	watchMasterURL  string
	watchPlayerPath string
	watchPlayerArgs []string
)

// watchCmd runs the same pipeline the serve command's coordinator runs, but
// for exactly one channel with no control-plane API: the ingestion pipeline
// has no dependency on the API layer, and this command proves it.
var watchCmd = &cobra.Command{
	Use:   "watch <channel>",
	Short: "Ingest a single channel and pipe it to a player, with no control-plane API",
	Long: `watch resolves the given channel's master playlist (or uses --master-url
directly), selects the requested quality, and pipes the filtered segment
stream into a player process, blocking until the stream ends or is
cancelled with Ctrl-C.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchQuality, "quality", "", "quality label matching a master-playlist variant (required)")
	watchCmd.Flags().StringVar(&watchMasterURL, "master-url", "", "master playlist URL, bypassing the configured resolver")
	watchCmd.Flags().StringVar(&watchPlayerPath, "player", "", "path to the player executable (default: player.binary_path from config, or mpv on PATH)")
	watchCmd.Flags().StringArrayVar(&watchPlayerArgs, "player-arg", nil, "extra argument to pass to the player (repeatable)")
	_ = watchCmd.MarkFlagRequired("quality")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	channel := args[0]
	logger := slog.Default()

	playerCmd, err := resolvePlayerCommand()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("received shutdown signal", slog.String("signal", sig.String()))
		cancel()
	}()

	var coord *coordinator.Coordinator
	if watchMasterURL != "" {
		coord = coordinator.New(cfg, resolve.NewStaticResolver(map[string]string{channel: watchMasterURL}), logger)
	} else {
		coord = coordinator.New(cfg, resolve.NewTemplateResolver(cfg.Resolve.MasterURLTemplate), logger)
	}
	defer coord.Close()

	s, err := coord.Start(ctx, coordinator.StartRequest{
		Channel:   channel,
		Quality:   watchQuality,
		PlayerCmd: playerCmd,
	})
	if err != nil {
		return fmt.Errorf("starting stream: %w", err)
	}

	// Stream lifetime is governed by the coordinator, not by ctx; a SIGINT
	// turns into a cooperative Stop here.
	go func() {
		<-ctx.Done()
		coord.StopAll()
	}()

	<-s.Done()
	return reportOutcome(channel, s.Outcome())
}

// resolvePlayerCommand builds the player.Command for watch, preferring the
// --player flag, then config, then PATH discovery via internal/util.
func resolvePlayerCommand() (player.Command, error) {
	playerCmd := player.CommandFromConfig(cfg.Player)

	if watchPlayerPath != "" {
		playerCmd.BinaryPath = watchPlayerPath
	}
	if len(watchPlayerArgs) > 0 {
		playerCmd.Args = watchPlayerArgs
	}

	if playerCmd.BinaryPath == "" {
		found, err := util.FindBinary("mpv", "TARDSPLAYAD_PLAYER")
		if err != nil {
			return player.Command{}, fmt.Errorf("no player configured and none found on PATH: %w", err)
		}
		playerCmd.BinaryPath = found
	}

	return playerCmd, nil
}

// reportOutcome prints the terminal Outcome and returns a non-nil error only
// for OutcomeError, so the process exit code reflects whether the stream
// ended normally, was cancelled by the user, or failed.
func reportOutcome(channel string, outcome stream.Outcome) error {
	switch outcome.Kind {
	case stream.OutcomeNormalEnd:
		fmt.Printf("%s: playlist ended normally\n", channel)
		return nil
	case stream.OutcomeUserCancel:
		fmt.Printf("%s: cancelled\n", channel)
		return nil
	default:
		fmt.Printf("%s: error (%v)\n", channel, outcome.Err)
		return fmt.Errorf("stream %s ended in error: %w", channel, outcome.Err)
	}
}
