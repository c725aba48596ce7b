package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"os"
	"time"

	"github.com/andresmejia3/facegate/internal/quality"
	"github.com/andresmejia3/facegate/internal/session"
	"github.com/andresmejia3/facegate/internal/types"
	"github.com/andresmejia3/facegate/internal/utils"
	"github.com/andresmejia3/facegate/internal/verify"
	"github.com/andresmejia3/facegate/internal/worker"
	"github.com/spf13/cobra"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
)

var checkCmd = &cobra.Command{
	Use:         "check <image_path> <name>",
	Short:       "Compare the face in a still image against a stored template",
	Args:        cobra.ExactArgs(2),
	Annotations: map[string]string{dbAnnotation: dbRequired},
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		applyMatchFlags(cmd, Cfg)
		return runCheck(cmd.Context(), args[0], args[1])
	},
}

func init() {
	matchFlags(checkCmd)
	rootCmd.AddCommand(checkCmd)
}

// maxStillSide bounds the longer side of a still image sent to the detector.
const maxStillSide = 1280

// loadFrame reads an image file as a JPEG frame, scaling large photos down
// to maxStillSide. JPEGs that already fit are passed through untouched.
func loadFrame(path string) (types.Frame, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return types.Frame{}, err
	}
	img, format, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return types.Frame{}, fmt.Errorf("decoding image: %w", err)
	}

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w > maxStillSide || h > maxStillSide {
		if w > h {
			w, h = maxStillSide, h*maxStillSide/w
		} else {
			w, h = w*maxStillSide/h, maxStillSide
		}
		resized := image.NewRGBA(image.Rect(0, 0, w, h))
		draw.CatmullRom.Scale(resized, resized.Bounds(), img, b, draw.Over, nil)
		img = resized
	} else if format == "jpeg" {
		return types.Frame{Index: 1, Data: raw, Width: w, Height: h}, nil
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}); err != nil {
		return types.Frame{}, fmt.Errorf("re-encoding %s as jpeg: %w", format, err)
	}
	return types.Frame{Index: 1, Data: buf.Bytes(), Width: w, Height: h}, nil
}

// waitReady blocks until ready closes, failing with session.ErrDetectorTimeout
// once timeout passes.
func waitReady(ctx context.Context, ready <-chan struct{}, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ready:
		return nil
	case <-timer.C:
		return fmt.Errorf("%w after %s", session.ErrDetectorTimeout, timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// largestFace picks the detection with the biggest box.
func largestFace(dets []types.Detection) types.Detection {
	best := dets[0]
	for _, d := range dets[1:] {
		if d.Box.Width*d.Box.Height > best.Box.Width*best.Box.Height {
			best = d
		}
	}
	return best
}

func runCheck(ctx context.Context, imagePath, name string) error {
	frame, err := loadFrame(imagePath)
	if err != nil {
		utils.ShowError("Failed to read image file", err, nil)
		return err
	}

	tmpl, err := DB.GetTemplate(ctx, name)
	if err != nil {
		utils.ShowError("Failed to load template", err, nil)
		return err
	}

	fmt.Fprintln(os.Stderr, "🚀 Starting face detector...")
	det, err := worker.NewPythonDetector(Cfg.Detector)
	if err != nil {
		utils.ShowError("Failed to start face detector", err, nil)
		return err
	}
	defer det.Close()

	if err := waitReady(ctx, det.Ready(), Cfg.Session.ReadyTimeout); err != nil {
		if errors.Is(err, session.ErrDetectorTimeout) {
			utils.ShowError("Face detector never became ready", err, det.Cmd)
		}
		return err
	}

	fmt.Fprintln(os.Stderr, "🔍 Analyzing face...")
	faces, err := det.DetectFaces(ctx, frame, Cfg.Session.Detect)
	if err != nil {
		utils.ShowError("Face detection failed", err, det.Cmd)
		return err
	}

	if len(faces) == 0 {
		fmt.Println("❌ No faces detected in the provided image.")
		exitCode = 1
		return nil
	}
	face := faces[0]
	if len(faces) > 1 {
		fmt.Printf("⚠️  Multiple faces detected (%d). Using the largest face.\n", len(faces))
		face = largestFace(faces)
	}

	if verdict := quality.NewGate(Cfg.Session.Quality).Evaluate(face); !verdict.Accepted {
		fmt.Printf("⚠️  Low quality face: %s. The result may be unreliable.\n", verdict.Reason)
	}

	res, err := verify.Verify(face.Descriptor, tmpl.Embedding, Cfg.Session.MatchThreshold)
	if err != nil {
		utils.ShowError("Comparison failed", err, nil)
		return err
	}

	if res.IsMatch {
		fmt.Printf("✅ Match for '%s' (distance %.3f, similarity %.2f)\n", name, res.Distance, res.Similarity)
		return nil
	}
	fmt.Printf("❌ No match for '%s' (distance %.3f >= threshold %.3f)\n", name, res.Distance, res.Threshold)
	exitCode = 1
	return nil
}
