package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/cinescribe/internal/config"
	"github.com/GriffinCanCode/cinescribe/internal/screen"
)

func newRunCommand(opts *options) *cobra.Command {
	var (
		window string
		region string
		frames string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Narrate one session in the foreground",
		Long: `Run captures the target until interrupted. The first Ctrl-C stops capture,
waits for in-flight analysis, writes the closing phase summary and the
final report, then prints the report. A second Ctrl-C aborts.`,
		Example: `  cinescribe run --window "mpv"
  cinescribe run --region 1280x720+0+180 --interval 2
  cinescribe run --frames ./frames --no-playback`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(cmd)
			if err != nil {
				return err
			}
			target := screen.Target{Window: window, Frames: frames}
			if region != "" {
				if target.Region, err = screen.ParseRegion(region); err != nil {
					return err
				}
			}
			return runSession(cmd.Context(), cfg, target)
		},
	}

	cmd.Flags().StringVar(&window, "window", "", "title of the player window to follow")
	cmd.Flags().StringVar(&region, "region", "", "screen region as WxH+X+Y")
	cmd.Flags().StringVar(&frames, "frames", "", "directory of extracted frames to replay instead of the screen")
	cmd.MarkFlagsOneRequired("window", "region", "frames")
	return cmd
}

func runSession(parent context.Context, cfg *config.Config, target screen.Target) error {
	if parent == nil {
		parent = context.Background()
	}
	// the session context only ends on a second interrupt
	ctx, abort := context.WithCancel(parent)
	defer abort()

	m, release, err := newManager(cfg)
	if err != nil {
		return err
	}
	defer release()

	if _, err := m.StartSession(ctx, target, 0); err != nil {
		return err
	}

	sig := make(chan os.Signal, 2)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sig)
	go relaySignals(ctx.Done(), sig, func() { _ = m.StopSession() }, abort)

	report, err := m.Wait(parent)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "%s\n\nTranscript: %s\n", report.Text, m.Status().TranscriptPath)
	return nil
}

// relaySignals stops the session on the first signal and aborts it on the
// second. It returns once done is closed.
func relaySignals(done <-chan struct{}, sig <-chan os.Signal, stop, abort func()) {
	select {
	case <-sig:
	case <-done:
		return
	}
	fmt.Fprintln(os.Stderr, "stopping, writing final report (Ctrl-C again to abort)")
	stop()
	select {
	case <-sig:
		abort()
	case <-done:
	}
}
