// Package capture turns an ffmpeg MJPEG stream into the latest-frame source
// the detection loop polls.
package capture

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"image/jpeg"
	"io"
	"sync"

	"github.com/andresmejia3/facegate/internal/logger"
	"github.com/andresmejia3/facegate/internal/types"
	"github.com/andresmejia3/facegate/internal/utils"
)

const megabyte = 1024 * 1024

// Source keeps only the newest decoded frame. Older frames are overwritten,
// never queued.
type Source struct {
	input utils.FFmpegInput

	mu     sync.RWMutex
	latest types.Frame
	have   bool
	count  int

	stderr bytes.Buffer
	done   chan struct{}
	err    error
}

func NewSource(in utils.FFmpegInput) *Source {
	return &Source{input: in, done: make(chan struct{})}
}

// Start launches ffmpeg and reads frames in the background until the stream
// ends or ctx is cancelled.
func (s *Source) Start(ctx context.Context) error {
	ffmpeg := utils.NewFFmpegCmd(s.input)
	ffmpeg.Stderr = &s.stderr

	out, err := ffmpeg.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create FFmpeg stdout pipe: %w", err)
	}
	if err := ffmpeg.Start(); err != nil {
		return fmt.Errorf("failed to start FFmpeg: %w", err)
	}
	logger.Info("capture started", logger.Options{Key: "source", Data: s.input.Source})

	go func() {
		select {
		case <-ctx.Done():
			ffmpeg.Process.Kill()
		case <-s.done:
		}
	}()

	go func() {
		err := s.consume(out)
		if werr := ffmpeg.Wait(); err == nil && werr != nil && ctx.Err() == nil {
			err = fmt.Errorf("ffmpeg: %w: %s", werr, bytes.TrimSpace(s.stderr.Bytes()))
		}
		s.finish(err)
	}()
	return nil
}

// consume splits r into JPEG frames and publishes each one.
func (s *Source) consume(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, megabyte), 64*megabyte)
	scanner.Split(utils.SplitJpeg)

	for scanner.Scan() {
		s.publish(scanner.Bytes())
	}
	return scanner.Err()
}

func (s *Source) publish(raw []byte) {
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		logger.Warning("skipping undecodable frame", logger.Options{Key: "error", Data: err})
		return
	}
	// The scanner reuses its buffer.
	data := make([]byte, len(raw))
	copy(data, raw)

	s.mu.Lock()
	s.count++
	s.latest = types.Frame{Index: s.count, Data: data, Width: cfg.Width, Height: cfg.Height}
	s.have = true
	s.mu.Unlock()
}

func (s *Source) finish(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
	close(s.done)
	if err != nil {
		logger.Error("capture stopped", logger.Options{Key: "error", Data: err})
	} else {
		logger.Info("capture ended")
	}
}

// Ready reports whether at least one frame has arrived.
func (s *Source) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.have
}

// Frame returns the newest frame. Callers must not modify its Data.
func (s *Source) Frame() (types.Frame, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest, s.have
}

// FrameSize returns the dimensions of the newest frame.
func (s *Source) FrameSize() types.Size {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return types.Size{Width: s.latest.Width, Height: s.latest.Height}
}

// Done is closed when the stream ends.
func (s *Source) Done() <-chan struct{} {
	return s.done
}

// Err returns why the stream ended, nil for a clean end of input.
func (s *Source) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}
