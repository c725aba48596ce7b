package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/andresmejia3/facegate/internal/host"
	"github.com/andresmejia3/facegate/internal/logger"
	"github.com/andresmejia3/facegate/internal/session"
	"github.com/andresmejia3/facegate/internal/utils"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the live pipeline and expose it over HTTP",
	Long: `Start the capture, the face detector and the decision loop, and serve
the host API: commands under /api/v1 and events at /api/v1/events (SSE).
Templates can be loaded from the database when one is reachable.`,
	Annotations: map[string]string{dbAnnotation: dbOptional},
	Run: func(cmd *cobra.Command, args []string) {
		applyCaptureFlags(cmd, Cfg)
		if cmd.Flags().Changed("addr") {
			Cfg.Server.Addr = mustGetString(cmd, "addr")
		}
		runServe(cmd.Context(), cmd)
	},
}

func init() {
	captureFlags(serveCmd)
	serveCmd.Flags().String("addr", "", "Listen address (default from config: :8080)")
	serveCmd.Flags().Int("event-buffer", 64, "Events buffered per SSE client before drops")
	rootCmd.AddCommand(serveCmd)
}

func runServe(ctx context.Context, cmd *cobra.Command) {
	p, err := startPipeline(ctx, Cfg)
	if err != nil {
		utils.Die("Pipeline startup failed", err, nil)
	}
	defer p.Close()

	hub := host.NewHub(mustGetInt(cmd, "event-buffer"))

	// A nil *store.Store must not end up inside a non-nil interface.
	var templates host.TemplateLoader
	if DB != nil {
		templates = DB
	}
	server := host.NewServer(p.controller, hub, templates)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	loopErr := make(chan error, 1)
	go func() {
		loopErr <- p.controller.Run(ctx, session.SinkFunc(func(ev session.Event) {
			if ev.Type == session.EventError {
				logger.Warning("pipeline error", logger.Options{Key: "message", Data: ev.Message})
			}
			hub.Emit(ev)
		}))
	}()

	serveErr := make(chan error, 1)
	go func() { serveErr <- server.ListenAndServe(ctx, Cfg.Server.Addr) }()
	fmt.Fprintf(os.Stderr, "🌐 Serving on %s\n", Cfg.Server.Addr)

	serverDone := false
	select {
	case err := <-loopErr:
		if errors.Is(err, session.ErrDetectorTimeout) {
			p.Close()
			utils.Die("Face detector never became ready", err, p.detector.Cmd)
		}
		if err != nil && ctx.Err() == nil {
			utils.Die("Decision loop failed", err, nil)
		}
	case err := <-serveErr:
		serverDone = true
		if err != nil {
			utils.Die("HTTP server failed", err, nil)
		}
	case <-p.source.Done():
		if err := p.source.Err(); err != nil {
			utils.Die("Capture failed", err, nil)
		}
		fmt.Fprintln(os.Stderr, "🏁 Input ended.")
	case <-ctx.Done():
	}

	cancel()
	if !serverDone {
		<-serveErr
	}
	fmt.Fprintln(os.Stderr, "👋 Shutting down.")
}
