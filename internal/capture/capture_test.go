package capture

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/andresmejia3/facegate/internal/types"
	"github.com/andresmejia3/facegate/internal/utils"
)

func encodeJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, h/2, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestConsumeKeepsLatestFrame(t *testing.T) {
	s := NewSource(utils.FFmpegInput{Source: "test.mjpeg"})
	if s.Ready() {
		t.Fatal("Source ready before any frame")
	}

	first := encodeJPEG(t, 64, 48)
	second := encodeJPEG(t, 32, 24)
	stream := append(append([]byte{}, first...), second...)

	if err := s.consume(bytes.NewReader(stream)); err != nil {
		t.Fatalf("consume failed: %v", err)
	}
	if !s.Ready() {
		t.Fatal("Source not ready after frames")
	}

	frame, ok := s.Frame()
	if !ok {
		t.Fatal("Frame() reported no frame")
	}
	if frame.Index != 2 {
		t.Errorf("Expected frame index 2, got %d", frame.Index)
	}
	if frame.Width != 32 || frame.Height != 24 {
		t.Errorf("Expected 32x24, got %dx%d", frame.Width, frame.Height)
	}
	if !bytes.Equal(frame.Data, second) {
		t.Error("Latest frame data does not match the second JPEG")
	}
	if got := s.FrameSize(); got != (types.Size{Width: 32, Height: 24}) {
		t.Errorf("FrameSize() = %+v", got)
	}
}

func TestConsumeSkipsUndecodableFrames(t *testing.T) {
	s := NewSource(utils.FFmpegInput{Source: "test.mjpeg"})
	garbage := []byte{0xFF, 0xD8, 0x00, 0x01, 0xFF, 0xD9}

	if err := s.consume(bytes.NewReader(garbage)); err != nil {
		t.Fatalf("consume failed: %v", err)
	}
	if s.Ready() {
		t.Error("Undecodable frame made the source ready")
	}
}

func TestFinishClosesDone(t *testing.T) {
	s := NewSource(utils.FFmpegInput{Source: "test.mjpeg"})
	s.finish(nil)
	select {
	case <-s.Done():
	default:
		t.Fatal("Done not closed")
	}
	if s.Err() != nil {
		t.Errorf("Expected nil error, got %v", s.Err())
	}
}

type staticSizer types.Size

func (s staticSizer) FrameSize() types.Size { return types.Size(s) }

func TestDisplay(t *testing.T) {
	tests := []struct {
		name   string
		fixed  types.Size
		frames FrameSizer
		before types.Size
		after  types.Size
	}{
		{
			name:   "Fixed size wins",
			fixed:  types.Size{Width: 1280, Height: 720},
			frames: staticSizer{Width: 640, Height: 480},
			before: types.Size{Width: 1280, Height: 720},
			after:  types.Size{Width: 1280, Height: 720},
		},
		{
			name:   "Follows frame size",
			frames: staticSizer{Width: 640, Height: 480},
			before: types.Size{},
			after:  types.Size{Width: 640, Height: 480},
		},
		{
			name:   "No frames yet",
			frames: staticSizer{},
			before: types.Size{},
			after:  types.Size{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDisplay(tt.fixed, tt.frames)
			if got := d.Size(); got != tt.before {
				t.Errorf("Size() before Recompute = %+v, want %+v", got, tt.before)
			}
			d.Recompute()
			if got := d.Size(); got != tt.after {
				t.Errorf("Size() after Recompute = %+v, want %+v", got, tt.after)
			}
		})
	}
}
