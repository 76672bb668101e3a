package main

import (
	"log/slog"
	"os"
	"strings"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/cinescribe/internal/config"
	apperrors "github.com/GriffinCanCode/cinescribe/internal/errors"
)

var version = "dev"

// options are the flags shared by every subcommand.
type options struct {
	configPath string
	logLevel   string
	outputDir  string
	interval   float64
	batchSize  int
	phaseEvery int
	noNovelty  bool
	noOCR      bool
	noPlayback bool
}

func newRootCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "cinescribe",
		Short: "CineScribe - narrate a playing video with a vision-language model",
		Long: `CineScribe samples a screen region or window at a fixed cadence, skips frames
whose caption area has not changed, and sends batches of frames to a
vision-language model. Frame notes are folded into phase summaries and,
when the session stops, into one final report. Everything is appended to
a transcript file in the output directory.`,
		Version:      version,
		SilenceUsage: true,
	}

	opts.bind(cmd)
	cmd.AddCommand(newRunCommand(opts))
	cmd.AddCommand(newServeCommand(opts))
	return cmd
}

// bind registers the shared flags on cmd and its subcommands.
func (o *options) bind(cmd *cobra.Command) {
	f := cmd.PersistentFlags()
	f.StringVarP(&o.configPath, "config", "c", "", "YAML config file overlaid on the environment")
	f.StringVar(&o.logLevel, "log-level", "", "debug, info, warn or error")
	f.StringVarP(&o.outputDir, "output", "o", "", "directory for transcript files")
	f.Float64Var(&o.interval, "interval", 0, "seconds between captures")
	f.IntVar(&o.batchSize, "batch-size", 0, "frames per model call")
	f.IntVar(&o.phaseEvery, "phase-every", 0, "frame notes per phase summary")
	f.BoolVar(&o.noNovelty, "no-novelty", false, "analyze every frame, even unchanged ones")
	f.BoolVar(&o.noOCR, "no-ocr", false, "skip the caption-reading model")
	f.BoolVar(&o.noPlayback, "no-playback", false, "never pause the player while summarizing")
}

// load builds the config: environment, then the YAML file, then flags.
func (o *options) load(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadFile(o.configPath)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeConfigInvalid, "load config")
	}

	changed := cmd.Flags().Changed
	if changed("log-level") {
		cfg.LogLevel = o.logLevel
	}
	if changed("output") {
		cfg.OutputDir = o.outputDir
	}
	if changed("interval") {
		cfg.CaptureInterval = o.interval
	}
	if changed("batch-size") {
		cfg.BatchSize = o.batchSize
	}
	if changed("phase-every") {
		cfg.PhaseEvery = o.phaseEvery
	}
	if o.noNovelty {
		cfg.NoveltyEnabled = false
	}
	if o.noOCR {
		cfg.OCREnabled = false
	}
	if o.noPlayback {
		cfg.PlaybackEnabled = false
	}

	if err := cfg.Validate(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeConfigInvalid, "validate config")
	}
	setupLogging(cfg.LogLevel)
	return cfg, nil
}

func setupLogging(level string) {
	slog.SetDefault(slog.New(
		tint.NewHandler(os.Stderr, &tint.Options{
			Level:      parseLevel(level),
			TimeFormat: "15:04:05",
		}),
	))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
