package utils

import (
	"bufio"
	"bytes"
	"errors"
	"slices"
	"testing"
)

func TestSplitJpeg(t *testing.T) {
	// Construct a stream containing: [Garbage] [JPEG] [Garbage]
	jpegData := []byte{0xFF, 0xD8, 0x01, 0x02, 0x03, 0xFF, 0xD9}

	streamData := []byte{0x00, 0x00}
	streamData = append(streamData, jpegData...)
	streamData = append(streamData, []byte{0x00, 0x00}...)

	scanner := bufio.NewScanner(bytes.NewReader(streamData))
	scanner.Split(SplitJpeg)

	if !scanner.Scan() {
		t.Fatal("Expected to find a token, got EOF")
	}
	if !bytes.Equal(scanner.Bytes(), jpegData) {
		t.Errorf("Expected %X, got %X", jpegData, scanner.Bytes())
	}

	// Trailing garbage is not a JPEG
	if scanner.Scan() {
		t.Error("Expected only one token, found more")
	}
}

func TestSplitJpeg_BackToBack(t *testing.T) {
	a := []byte{0xFF, 0xD8, 0xAA, 0xFF, 0xD9}
	b := []byte{0xFF, 0xD8, 0xBB, 0xCC, 0xFF, 0xD9}
	stream := append(append([]byte{}, a...), b...)

	scanner := bufio.NewScanner(bytes.NewReader(stream))
	scanner.Split(SplitJpeg)

	var got [][]byte
	for scanner.Scan() {
		got = append(got, bytes.Clone(scanner.Bytes()))
	}
	if len(got) != 2 || !bytes.Equal(got[0], a) || !bytes.Equal(got[1], b) {
		t.Errorf("Expected two frames, got %X", got)
	}
}

func TestFFmpegArgs(t *testing.T) {
	tests := []struct {
		name string
		in   FFmpegInput
		want []string
	}{
		{
			name: "Camera",
			in:   FFmpegInput{Source: "/dev/video0", Format: "v4l2", Width: 640, Height: 480, FPS: 15},
			want: []string{"-hide_banner", "-loglevel", "error", "-f", "v4l2", "-framerate", "15", "-video_size", "640x480",
				"-i", "/dev/video0", "-f", "image2pipe", "-vcodec", "mjpeg", "-q:v", "5", "-"},
		},
		{
			name: "File at native rate",
			in:   FFmpegInput{Source: "clip.mp4", Realtime: true},
			want: []string{"-hide_banner", "-loglevel", "error", "-re",
				"-i", "clip.mp4", "-f", "image2pipe", "-vcodec", "mjpeg", "-q:v", "5", "-"},
		},
		{
			name: "File as fast as possible",
			in:   FFmpegInput{Source: "clip.mp4"},
			want: []string{"-hide_banner", "-loglevel", "error",
				"-i", "clip.mp4", "-f", "image2pipe", "-vcodec", "mjpeg", "-q:v", "5", "-"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.in.Args(); !slices.Equal(got, tt.want) {
				t.Errorf("Args() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSafeCommandCapturesStderr(t *testing.T) {
	s := NewSafeCommand("sh", "-c", "echo traceback >&2; exit 3")
	err := s.Run()

	var exitErr interface{ ExitCode() int }
	if !errors.As(err, &exitErr) || exitErr.ExitCode() != 3 {
		t.Fatalf("Expected exit code 3, got %v", err)
	}
	if got := s.Stderr.String(); got != "traceback\n" {
		t.Errorf("Expected captured stderr, got %q", got)
	}
}
