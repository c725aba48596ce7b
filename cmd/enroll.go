package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/andresmejia3/facegate/internal/descriptor"
	"github.com/andresmejia3/facegate/internal/session"
	"github.com/andresmejia3/facegate/internal/utils"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

// maxDetectorErrors is how many consecutive detector failures end a CLI run.
const maxDetectorErrors = 3

var enrollCmd = &cobra.Command{
	Use:         "enroll <name>",
	Short:       "Enroll a face from the live feed and store it as a named template",
	Args:        cobra.ExactArgs(1),
	Annotations: map[string]string{dbAnnotation: dbRequired},
	Run: func(cmd *cobra.Command, args []string) {
		applyCaptureFlags(cmd, Cfg)
		runEnroll(cmd.Context(), args[0], mustGetDuration(cmd, "timeout"))
	},
}

func init() {
	captureFlags(enrollCmd)
	enrollCmd.Flags().Duration("timeout", time.Minute, "Give up if enrollment has not completed by then")
	rootCmd.AddCommand(enrollCmd)
}

// enrollReporter turns controller events into progress bar updates and
// picks out the finished template.
type enrollReporter struct {
	bar            *progressbar.ProgressBar
	hint           string
	detectorErrors int
}

func newEnrollReporter(bar *progressbar.ProgressBar) *enrollReporter {
	return &enrollReporter{bar: bar}
}

type enrollResult struct {
	template descriptor.Descriptor
	samples  int
	live     bool
	err      error
}

// handle consumes one event. It returns true once the run is over, either
// with a template or with a fatal detector error.
func (r *enrollReporter) handle(ev session.Event) (enrollResult, bool) {
	if isDetectorFailure(ev) {
		r.detectorErrors++
		if r.detectorErrors >= maxDetectorErrors {
			return enrollResult{err: errors.New(ev.Message)}, true
		}
	} else {
		r.detectorErrors = 0
	}

	switch ev.Type {
	case session.EventEnrollmentProgress:
		r.bar.Set(int(ev.Progress.Fraction * 100))
		r.describe(ev.Message)
	case session.EventRegisterFace:
		r.bar.Set(100)
		res := enrollResult{template: ev.Descriptor}
		if ev.Progress != nil {
			res.samples = ev.Progress.Samples
			res.live = ev.Progress.Live
		}
		return res, true
	case session.EventInfo, session.EventError:
		if ev.Message == session.MsgFaceLost || ev.Message == session.MsgLeftTarget {
			r.bar.Set(0)
		}
		r.describe(ev.Message)
	}
	return enrollResult{}, false
}

func (r *enrollReporter) describe(hint string) {
	if hint == r.hint {
		return
	}
	r.hint = hint
	if hint == "" {
		r.bar.Describe("🙂 Enrolling")
		return
	}
	r.bar.Describe("🙂 " + hint)
}

func reportEnrollStopped(ctx context.Context, timeout time.Duration) {
	if ctx.Err() != nil {
		fmt.Fprintln(os.Stderr, "\n🛑 Enrollment interrupted.")
	} else {
		fmt.Fprintf(os.Stderr, "\n⌛ Enrollment did not complete within %s.\n", timeout)
	}
	exitCode = 1
}

func runEnroll(ctx context.Context, name string, timeout time.Duration) {
	p, err := startPipeline(ctx, Cfg)
	if err != nil {
		utils.Die("Pipeline startup failed", err, nil)
	}
	defer p.Close()

	bar := progressbar.NewOptions(100,
		progressbar.OptionSetDescription("🙂 Enrolling"),
		progressbar.OptionSetWriter(os.Stderr), // Write bar to Stderr
		progressbar.OptionShowCount(),
	)
	reporter := newEnrollReporter(bar)

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan enrollResult, 1)
	loopErr := make(chan error, 1)
	p.controller.SetMode(session.ModeRegistering)
	fmt.Fprintln(os.Stderr, "👀 Look at the camera and move your head slightly.")

	go func() {
		loopErr <- p.controller.Run(runCtx, session.SinkFunc(func(ev session.Event) {
			if res, over := reporter.handle(ev); over {
				select {
				case done <- res:
				default:
				}
				cancel()
			}
		}))
	}()

	var res enrollResult
	select {
	case res = <-done:
	case err := <-loopErr:
		if errors.Is(err, session.ErrDetectorTimeout) {
			p.Close()
			utils.Die("Face detector never became ready", err, p.detector.Cmd)
		}
		// Run only returns nil once runCtx is done; a result may have raced in.
		select {
		case res = <-done:
		default:
			reportEnrollStopped(ctx, timeout)
			return
		}
	case <-runCtx.Done():
		// Also reached when a detector call hangs past the timeout.
		select {
		case res = <-done:
		default:
			reportEnrollStopped(ctx, timeout)
			return
		}
	case <-p.source.Done():
		utils.ShowError("Input ended before enrollment completed", p.source.Err(), nil)
		exitCode = 1
		return
	}
	bar.Finish()

	if res.err != nil {
		p.Close()
		utils.Die("Face detector failed", res.err, p.detector.Cmd)
	}

	id, err := DB.SaveTemplate(context.Background(), name, res.template, res.samples)
	if err != nil {
		utils.Die("Failed to save template", err, nil)
	}
	fmt.Fprintf(os.Stderr, "\n✅ Enrolled '%s' (template %d, %d samples, %d dimensions)\n", name, id, res.samples, len(res.template))
	if !res.live {
		fmt.Fprintln(os.Stderr, "⚠️  Little head movement was seen during enrollment; the liveness check was not satisfied.")
	}
}
