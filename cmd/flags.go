package cmd

import (
	"fmt"
	"time"

	"github.com/andresmejia3/facegate/internal/config"
	"github.com/andresmejia3/facegate/internal/descriptor"
	"github.com/andresmejia3/facegate/internal/utils"
	"github.com/spf13/cobra"
)

// captureFlags registers the frame source flags shared by the live commands.
func captureFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("source", "s", "", "Camera device or video file (default from config: /dev/video0)")
	cmd.Flags().StringP("format", "f", "", "ffmpeg input format for devices, e.g. v4l2 (use \"file\" for plain files)")
	cmd.Flags().Bool("realtime", false, "Read video files at their native frame rate")
	matchFlags(cmd)
}

// matchFlags registers the two ways of setting the match threshold.
func matchFlags(cmd *cobra.Command) {
	cmd.Flags().Float64P("threshold", "t", 0, "Match distance threshold (lower is stricter, default from config: 0.5)")
	cmd.Flags().Float64("similarity", 0, "Match similarity threshold in (0,1], converted to a distance (0.75 equals distance 0.5)")
	cmd.MarkFlagsMutuallyExclusive("threshold", "similarity")
}

// applyMatchFlags sets the distance threshold from whichever flag was given.
func applyMatchFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("threshold") {
		cfg.Session.MatchThreshold = mustGetFloat64(cmd, "threshold")
	}
	if cmd.Flags().Changed("similarity") {
		thr, err := thresholdFromSimilarity(mustGetFloat64(cmd, "similarity"))
		if err != nil {
			utils.Die("Invalid flag", err, nil)
		}
		cfg.Session.MatchThreshold = thr
	}
}

func thresholdFromSimilarity(s float64) (float64, error) {
	if !(s > 0 && s <= 1) {
		return 0, fmt.Errorf("--similarity must be in (0,1], got %v", s)
	}
	return descriptor.SimilarityToDistance(s), nil
}

// applyCaptureFlags overlays the flags a user actually set onto cfg.
func applyCaptureFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("source") {
		cfg.Capture.Source = mustGetString(cmd, "source")
	}
	if cmd.Flags().Changed("format") {
		cfg.Capture.Format = mustGetString(cmd, "format")
		if cfg.Capture.Format == "file" {
			cfg.Capture.Format = ""
		}
	}
	if cmd.Flags().Changed("realtime") {
		cfg.Capture.Realtime = mustGetBool(cmd, "realtime")
	}
	applyMatchFlags(cmd, cfg)
}

// mustGetBool gets a bool flag value or panics if the flag doesn't exist.
// This is appropriate for flags defined in init() - errors indicate programming bugs.
func mustGetBool(cmd *cobra.Command, name string) bool {
	val, err := cmd.Flags().GetBool(name)
	if err != nil {
		panic(fmt.Sprintf("flag error for --%s: %v", name, err))
	}
	return val
}

// mustGetInt gets an int flag value or panics if the flag doesn't exist.
func mustGetInt(cmd *cobra.Command, name string) int {
	val, err := cmd.Flags().GetInt(name)
	if err != nil {
		panic(fmt.Sprintf("flag error for --%s: %v", name, err))
	}
	return val
}

// mustGetString gets a string flag value or panics if the flag doesn't exist.
func mustGetString(cmd *cobra.Command, name string) string {
	val, err := cmd.Flags().GetString(name)
	if err != nil {
		panic(fmt.Sprintf("flag error for --%s: %v", name, err))
	}
	return val
}

// mustGetFloat64 gets a float64 flag value or panics if the flag doesn't exist.
func mustGetFloat64(cmd *cobra.Command, name string) float64 {
	val, err := cmd.Flags().GetFloat64(name)
	if err != nil {
		panic(fmt.Sprintf("flag error for --%s: %v", name, err))
	}
	return val
}

// mustGetDuration gets a duration flag value or panics if the flag doesn't exist.
func mustGetDuration(cmd *cobra.Command, name string) time.Duration {
	val, err := cmd.Flags().GetDuration(name)
	if err != nil {
		panic(fmt.Sprintf("flag error for --%s: %v", name, err))
	}
	return val
}
