package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/andresmejia3/facegate/internal/capture"
	"github.com/andresmejia3/facegate/internal/config"
	"github.com/andresmejia3/facegate/internal/session"
	"github.com/andresmejia3/facegate/internal/types"
	"github.com/andresmejia3/facegate/internal/worker"
)

// pipeline bundles the live collaborators around one controller.
type pipeline struct {
	detector   *worker.PythonDetector
	source     *capture.Source
	controller *session.Controller
	cancel     context.CancelFunc
}

// startPipeline launches the detector process and the frame source.
func startPipeline(ctx context.Context, cfg *config.Config) (*pipeline, error) {
	fmt.Fprintln(os.Stderr, "🚀 Starting face detector...")
	det, err := worker.NewPythonDetector(cfg.Detector)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	src := capture.NewSource(cfg.Capture.Input())
	if err := src.Start(ctx); err != nil {
		cancel()
		det.Close()
		return nil, err
	}
	fmt.Fprintf(os.Stderr, "📷 Capturing from %s\n", cfg.Capture.Source)

	display := capture.NewDisplay(types.Size{Width: cfg.Capture.DisplayWidth, Height: cfg.Capture.DisplayHeight}, src)
	return &pipeline{
		detector:   det,
		source:     src,
		controller: session.New(cfg.Session, det, src, display),
		cancel:     cancel,
	}, nil
}

// loopGrace bounds each wait for the decision loop to return after its
// context ended.
const loopGrace = 2 * time.Second

// Close stops ffmpeg and the detector. Safe to call more than once.
func (p *pipeline) Close() {
	p.cancel()
	p.detector.Close()
}

// isDetectorFailure reports whether ev means the detector process is unusable.
func isDetectorFailure(ev session.Event) bool {
	return ev.Type == session.EventError && strings.HasPrefix(ev.Message, session.MsgDetectionError)
}

// awaitLoop waits for the decision loop to return once its context is done.
// A detector blocked mid-read never sees the context, so after grace stop is
// called to close it, and the loop gets one more grace period.
func awaitLoop(loopErr <-chan error, grace time.Duration, stop func()) (bool, error) {
	select {
	case err := <-loopErr:
		return true, err
	case <-time.After(grace):
	}
	stop()
	select {
	case err := <-loopErr:
		return true, err
	case <-time.After(grace):
		return false, nil
	}
}
