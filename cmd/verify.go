package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/andresmejia3/facegate/internal/session"
	"github.com/andresmejia3/facegate/internal/utils"
	"github.com/spf13/cobra"
)

var verifyCmd = &cobra.Command{
	Use:         "verify <name>",
	Short:       "Verify the live face against a stored template",
	Args:        cobra.ExactArgs(1),
	Annotations: map[string]string{dbAnnotation: dbRequired},
	Run: func(cmd *cobra.Command, args []string) {
		applyCaptureFlags(cmd, Cfg)
		opts := verifyOptions{
			attempts:    mustGetInt(cmd, "attempts"),
			stopOnMatch: !mustGetBool(cmd, "all"),
			timeout:     mustGetDuration(cmd, "timeout"),
		}
		if opts.attempts < 1 {
			utils.Die("Invalid flag", errors.New("--attempts must be at least 1"), nil)
		}
		runVerify(cmd.Context(), args[0], opts)
	},
}

func init() {
	captureFlags(verifyCmd)
	verifyCmd.Flags().IntP("attempts", "n", 5, "Number of verification decisions to collect")
	verifyCmd.Flags().Bool("all", false, "Keep collecting after the first match")
	verifyCmd.Flags().Duration("timeout", 30*time.Second, "Give up after this long")
	rootCmd.AddCommand(verifyCmd)
}

type verifyOptions struct {
	attempts    int
	stopOnMatch bool
	timeout     time.Duration
}

// verifyTally collects per-frame decisions until enough are in.
type verifyTally struct {
	opts           verifyOptions
	decisions      []session.Match
	matches        int
	best           float64
	detectorErrors int
	err            error
}

func newVerifyTally(opts verifyOptions) *verifyTally {
	return &verifyTally{opts: opts, best: -1}
}

// handle consumes one event. It returns the decision to record, if any, and
// whether the run is over.
func (v *verifyTally) handle(ev session.Event) (*session.Event, bool) {
	if isDetectorFailure(ev) {
		v.detectorErrors++
		if v.detectorErrors >= maxDetectorErrors {
			v.err = errors.New(ev.Message)
			return nil, true
		}
		return nil, false
	}
	v.detectorErrors = 0

	if ev.Type != session.EventVerificationSuccess && ev.Type != session.EventVerificationFailed {
		return nil, false
	}
	v.decisions = append(v.decisions, *ev.Match)
	if v.best < 0 || ev.Match.Distance < v.best {
		v.best = ev.Match.Distance
	}
	matched := ev.Type == session.EventVerificationSuccess
	if matched {
		v.matches++
	}
	over := len(v.decisions) >= v.opts.attempts || (matched && v.opts.stopOnMatch)
	return &ev, over
}

func (v *verifyTally) verified() bool {
	return v.matches > 0
}

func runVerify(ctx context.Context, name string, opts verifyOptions) {
	tmpl, err := DB.GetTemplate(ctx, name)
	if err != nil {
		utils.Die("Failed to load template", err, nil)
	}

	p, err := startPipeline(ctx, Cfg)
	if err != nil {
		utils.Die("Pipeline startup failed", err, nil)
	}
	defer p.Close()

	if err := p.controller.SetTemplate(tmpl.Embedding); err != nil {
		utils.Die("Stored template is unusable", err, nil)
	}
	p.controller.SetMode(session.ModeVerifying)

	runCtx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	// The connection is not safe for concurrent use; decisions are written here.
	decisions := make(chan session.Event, opts.attempts)
	tally := newVerifyTally(opts)
	finished := make(chan struct{})
	loopErr := make(chan error, 1)

	fmt.Fprintf(os.Stderr, "🔍 Verifying against '%s'...\n", name)
	go func() {
		loopErr <- p.controller.Run(runCtx, session.SinkFunc(func(ev session.Event) {
			select {
			case <-finished:
				return
			default:
			}
			rec, over := tally.handle(ev)
			if rec != nil {
				decisions <- *rec
			}
			if over {
				close(finished)
				cancel()
			}
		}))
	}()

	loopDone := false
	for done := false; !done; {
		select {
		case ev := <-decisions:
			record(tmpl.ID, ev)
		case err := <-loopErr:
			if errors.Is(err, session.ErrDetectorTimeout) {
				p.Close()
				utils.Die("Face detector never became ready", err, p.detector.Cmd)
			}
			loopDone = true
			done = true
		case <-runCtx.Done():
			done = true
		case <-p.source.Done():
			utils.ShowError("Input ended before verification completed", p.source.Err(), nil)
			cancel()
			done = true
		}
	}
	// The tally is only read once the loop has returned.
	if !loopDone {
		if ok, _ := awaitLoop(loopErr, loopGrace, p.Close); !ok {
			utils.Die("Decision loop did not stop", errors.New("face detector is unresponsive"), p.detector.Cmd)
		}
	}
	// Drain decisions that arrived with the final event.
	for len(decisions) > 0 {
		record(tmpl.ID, <-decisions)
	}

	if tally.err != nil {
		p.Close()
		utils.Die("Face detector failed", tally.err, p.detector.Cmd)
	}

	switch {
	case tally.verified():
		fmt.Printf("✅ Verified as '%s' (%d/%d matches, best distance %.3f)\n", name, tally.matches, len(tally.decisions), tally.best)
	case len(tally.decisions) == 0:
		fmt.Println("❌ No usable face was seen.")
		exitCode = 1
	default:
		fmt.Printf("❌ Not verified as '%s' (best distance %.3f, threshold %.3f)\n", name, tally.best, tally.decisions[0].Threshold)
		exitCode = 1
	}
}

func record(templateID int, ev session.Event) {
	matched := ev.Type == session.EventVerificationSuccess
	if err := DB.RecordVerification(context.Background(), templateID, matched, ev.Match.Distance); err != nil {
		utils.ShowError("Failed to record verification", err, nil)
	}
}
