package utils

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"strconv"
)

// --- 1. Process Safety & Command Wrapping ---

// SafeCommand wraps a standard exec.Cmd with a buffer to catch Stderr (Python logs)
// so a crashed detector still leaves its traceback behind.
type SafeCommand struct {
	*exec.Cmd
	Stderr *bytes.Buffer
}

// NewSafeCommand initializes a command and attaches a buffer to its Stderr pipe.
// It does not start the command.
func NewSafeCommand(name string, args ...string) *SafeCommand {
	cmd := exec.Command(name, args...)
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr
	return &SafeCommand{Cmd: cmd, Stderr: stderr}
}

// Die prints the error box and exits. Worker logs are dumped when s is given.
func Die(context string, err error, s *SafeCommand) {
	ShowError(context, err, s)
	os.Exit(1)
}

// ShowError prints the same box as Die without exiting.
func ShowError(context string, err error, s *SafeCommand) {
	fmt.Fprintf(os.Stderr, "\n---------------------------------------------------------\n")
	fmt.Fprintf(os.Stderr, "🚨 FACEGATE ERROR: %s\n", context)
	if err != nil {
		fmt.Fprintf(os.Stderr, "DETAILS: %v\n", err)
	}
	if s != nil && s.Stderr.Len() > 0 {
		fmt.Fprintf(os.Stderr, "\nDETECTOR LOGS:\n%s\n", s.Stderr.String())
	}
	fmt.Fprintf(os.Stderr, "---------------------------------------------------------\n")
}

// --- 2. Frame Plumbing ---

var (
	JpegSOI = []byte{0xFF, 0xD8} // Start of Image
	JpegEOI = []byte{0xFF, 0xD9} // End of Image
)

// SplitJpeg is the custom splitter for bufio.Scanner
// It locates the Start Of Image (FFD8) and End Of Image (FFD9) markers to extract full JPEG frames.
func SplitJpeg(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	start := bytes.Index(data, JpegSOI)
	if start == -1 {
		return 0, nil, nil
	}
	end := bytes.Index(data[start:], JpegEOI)
	if end == -1 {
		return 0, nil, nil
	}
	return start + end + 2, data[start : start+end+2], nil
}

// FFmpegInput describes where frames come from.
type FFmpegInput struct {
	Source   string // device path or file
	Format   string // demuxer, e.g. v4l2 or avfoundation; empty for files
	Width    int
	Height   int
	FPS      int
	Realtime bool // read files at their native rate, like a camera
}

// Args returns the ffmpeg argument list for in.
func (in FFmpegInput) Args() []string {
	args := []string{"-hide_banner", "-loglevel", "error"}
	if in.Format != "" {
		args = append(args, "-f", in.Format)
		if in.FPS > 0 {
			args = append(args, "-framerate", strconv.Itoa(in.FPS))
		}
		if in.Width > 0 && in.Height > 0 {
			args = append(args, "-video_size", fmt.Sprintf("%dx%d", in.Width, in.Height))
		}
	} else if in.Realtime {
		args = append(args, "-re")
	}
	args = append(args, "-i", in.Source)
	// Using -vcodec mjpeg ensures we get JPEGs Go can split
	return append(args, "-f", "image2pipe", "-vcodec", "mjpeg", "-q:v", "5", "-")
}

// NewFFmpegCmd creates the decoder pipe writing MJPEG frames to stdout.
func NewFFmpegCmd(in FFmpegInput) *exec.Cmd {
	return exec.Command("ffmpeg", in.Args()...)
}
