package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pktpipe/pktdump/internal/config"
	"github.com/pktpipe/pktdump/internal/log"
	"github.com/pktpipe/pktdump/internal/pipeline"
	"github.com/pktpipe/pktdump/internal/source/file"
	"github.com/pktpipe/pktdump/internal/stage"
)

var (
	inputPath   string
	printFlag   bool
	verboseFlag bool
	hexdumpFlag bool
	writePath   string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Replay a capture file through the stage pipeline",
	Run: func(cmd *cobra.Command, args []string) {
		runPipeline()
	},
}

func init() {
	runCmd.Flags().StringVarP(&inputPath, "input", "i", "", "capture file to replay")
	runCmd.Flags().BoolVar(&printFlag, "print", false, "enable the protocol printer stage")
	runCmd.Flags().BoolVarP(&verboseFlag, "verbose", "v", false, "full layer dump instead of one-line summaries")
	runCmd.Flags().BoolVar(&hexdumpFlag, "hexdump", false, "enable the C-array hexdump stage")
	runCmd.Flags().StringVarP(&writePath, "write", "w", "", "write surviving frames to this capture file")
}

// stageRequests resolves config-file stages plus flag-enabled stages, in
// that order. Flag stages come last so they see the filtered batch.
func stageRequests(cfg *config.Config) []config.StageConfig {
	reqs := append([]config.StageConfig{}, cfg.Stages...)
	if printFlag {
		reqs = append(reqs, config.StageConfig{
			Name:    "print",
			Options: map[string]interface{}{"verbose": verboseFlag},
		})
	}
	if hexdumpFlag {
		reqs = append(reqs, config.StageConfig{Name: "hexdump"})
	}
	if writePath != "" {
		reqs = append(reqs, config.StageConfig{
			Name:    "write",
			Options: map[string]interface{}{"path": writePath},
		})
	}
	return reqs
}

func runPipeline() {
	cfg := &config.Config{}
	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			exitWithStatus(StatusUsage, "loading config", err)
		}
		cfg = loaded
	}
	if err := log.Init(cfg.Log); err != nil {
		exitWithStatus(StatusUsage, "configuring logging", err)
	}

	if inputPath == "" {
		inputPath = cfg.Input.Path
	}

	reqs := stageRequests(cfg)
	if len(reqs) == 0 {
		exitWithStatus(StatusUsage, "no stages enabled; nothing to do", nil)
	}
	if inputPath == "" {
		exitWithStatus(StatusNoInput, "an input source must be configured before enabling an output stage", nil)
	}

	opts := file.Options{StopOnStageError: cfg.Pipeline.StopOnStageError}
	var popts []pipeline.Option
	if cfg.Pipeline.MaxStages > 0 {
		popts = append(popts, pipeline.WithMaxStages(cfg.Pipeline.MaxStages))
	}

	src, err := file.Open(inputPath, opts, popts...)
	if err != nil {
		exitWithStatus(StatusOpenFailed, "opening capture source", err)
	}
	defer src.Close()

	for _, req := range reqs {
		st, err := stage.New(req.Name, req.Options)
		if err != nil {
			exitWithStatus(StatusUsage, "building stage", err)
		}
		if _, err := src.Register(st); err != nil {
			exitWithStatus(StatusUsage, "registering stage", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	frames, err := src.Dispatch(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		exitWithStatus(StatusOpenFailed, "dispatch", err)
	}

	stats := src.Pipeline().Stats()
	log.GetLogger().WithFields(map[string]interface{}{
		"frames":       frames,
		"batches":      stats.Batches,
		"claimed":      stats.Claimed,
		"released":     stats.Released,
		"stage_errors": stats.StageErrors,
	}).Info("replay finished")
}
