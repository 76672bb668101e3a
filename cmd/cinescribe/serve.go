package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/GriffinCanCode/cinescribe/internal/config"
	"github.com/GriffinCanCode/cinescribe/internal/emitter"
	"github.com/GriffinCanCode/cinescribe/internal/orchestrator"
	"github.com/GriffinCanCode/cinescribe/internal/server"
)

const shutdownTimeout = 5 * time.Second

func newServeCommand(opts *options) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the session control API and live event stream",
		Long: `Serve exposes session control over HTTP:

  POST /api/session/start   {"window": "...", "region": {...}, "frames": "...", "interval": 2.5}
  POST /api/session/stop
  GET  /api/session/status
  GET  /api/session/report

and streams entries, summaries and the final report on /ws. When MQTT_BROKER
is set, the same events are published under MQTT_TOPIC.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.HTTPAddr = addr
			}
			return serve(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address (default from HTTP_ADDR)")
	return cmd
}

func serve(parent context.Context, cfg *config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m, release, err := newManager(cfg)
	if err != nil {
		return err
	}
	defer release()

	// sessions outlive the signal so they can still finalize on shutdown
	srv := server.New(context.WithoutCancel(ctx), m, m.Bus())
	defer srv.Close()

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("cinescribe server starting", "http", cfg.HTTPAddr, "output", cfg.OutputDir)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if cfg.MQTTBroker != "" {
		mq := emitter.New(emitter.Config{Broker: cfg.MQTTBroker, Topic: cfg.MQTTTopic, ClientID: cfg.MQTTClientID})
		if err := mq.Connect(gctx); err != nil {
			slog.Warn("mqtt disabled", "error", err)
		} else {
			events, unsubscribe := m.Bus().Subscribe(orchestrator.EventBuffer)
			g.Go(func() error {
				defer mq.Disconnect()
				defer unsubscribe()
				mq.Run(gctx, events)
				st := mq.Stats()
				slog.Info("mqtt emitter stopped", "published", st.Published, "errors", st.Errors)
				return nil
			})
		}
	}

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down...")
		finishSession(m, cfg)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("shutdown complete")
	return nil
}

// finishSession stops a running session and waits for its final report:
// the drain, then at most a closing summary and the report itself.
func finishSession(m *orchestrator.Manager, cfg *config.Config) {
	if !m.State().Active() {
		return
	}
	_ = m.StopSession()
	timeout := config.Seconds(cfg.DrainTimeout + 2*cfg.InferenceTimeout + cfg.SettleDelay*2 + cfg.ResumeDelay*2)
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if _, err := m.Wait(ctx); err != nil {
		slog.Warn("session ended without a report", "error", err)
	}
}
