// Package worker runs the python face detector as a child process and speaks
// its length-prefixed binary protocol.
package worker

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sync"
	"time"

	"github.com/andresmejia3/facegate/internal/logger"
	"github.com/andresmejia3/facegate/internal/session"
	"github.com/andresmejia3/facegate/internal/types"
	"github.com/andresmejia3/facegate/internal/utils" // Using the SafeCommand wrapper
)

const (
	statusOK    = 0
	statusError = 1

	readyBody = "READY"

	// maxFrameBody bounds a single response so a corrupt header cannot
	// allocate gigabytes.
	maxFrameBody = 64 * 1024 * 1024

	// closeGrace is how long Close waits for the interpreter to exit on its
	// own before killing it.
	closeGrace = 2 * time.Second
)

var ErrProtocol = errors.New("malformed detector response")

// Options selects the interpreter and script.
type Options struct {
	Python string `yaml:"python"`
	Script string `yaml:"script"`
}

func DefaultOptions() Options {
	return Options{Python: "python3", Script: "python/detector.py"}
}

// PythonDetector implements session.Detector on top of the python process.
// Calls are serialized; the protocol has one request in flight at a time.
type PythonDetector struct {
	Cmd      *utils.SafeCommand
	Stdin    io.WriteCloser
	DataPipe io.ReadCloser

	mu        sync.Mutex
	ready     chan struct{}
	readyOnce sync.Once
	closeOnce sync.Once
	maxBody   uint32
}

func NewPythonDetector(opts Options) (*PythonDetector, error) {
	if opts.Python == "" || opts.Script == "" {
		def := DefaultOptions()
		if opts.Python == "" {
			opts.Python = def.Python
		}
		if opts.Script == "" {
			opts.Script = def.Script
		}
	}
	py := utils.NewSafeCommand(opts.Python, "-u", opts.Script)

	// Create a side-channel pipe (FD 3) for clean data transfer
	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create pipe: %w", err)
	}
	// Pass the write-end to the child process. It will appear as FD 3.
	py.Cmd.ExtraFiles = []*os.File{w}

	stdin, err := py.StdinPipe()
	if err != nil {
		w.Close()
		r.Close()
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}

	if err := py.Start(); err != nil {
		w.Close()
		r.Close()
		return nil, fmt.Errorf("detector failed to start: %w", err)
	}

	// Close the write-end in the parent so only the child holds it
	w.Close()

	d := newDetector(stdin, r)
	d.Cmd = py
	go d.awaitReady()
	return d, nil
}

func newDetector(stdin io.WriteCloser, data io.ReadCloser) *PythonDetector {
	return &PythonDetector{Stdin: stdin, DataPipe: data, ready: make(chan struct{}), maxBody: maxFrameBody}
}

// awaitReady consumes the READY handshake. On failure Ready never closes and
// the controller's start timeout reports it.
func (d *PythonDetector) awaitReady() {
	d.mu.Lock()
	defer d.mu.Unlock()

	body, err := d.readFrame()
	if err != nil {
		logger.Error("detector handshake failed", logger.Options{Key: "error", Data: err})
		return
	}
	if string(body) != readyBody {
		logger.Error("unexpected detector handshake", logger.Options{Key: "body", Data: string(body)})
		return
	}
	d.markReady()
	logger.Info("detector ready")
}

func (d *PythonDetector) markReady() {
	d.readyOnce.Do(func() { close(d.ready) })
}

func (d *PythonDetector) Ready() <-chan struct{} {
	return d.ready
}

// DetectFaces sends one JPEG frame and returns the detections in frame
// coordinates.
func (d *PythonDetector) DetectFaces(ctx context.Context, frame types.Frame, opts session.DetectOptions) ([]types.Detection, error) {
	select {
	case <-d.ready:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := d.writeFrame(encodeRequest(frame.Data, opts)); err != nil {
		return nil, fmt.Errorf("sending frame: %w", err)
	}
	body, err := d.readFrame()
	if err != nil {
		return nil, fmt.Errorf("reading detections: %w", err)
	}
	return decodeResponse(body)
}

// ResizeResults scales boxes and landmarks from the frame size to the display
// size. The input is left untouched.
func (d *PythonDetector) ResizeResults(dets []types.Detection, from, to types.Size) []types.Detection {
	if from.IsZero() || to.IsZero() || from == to {
		return dets
	}
	sx := float64(to.Width) / float64(from.Width)
	sy := float64(to.Height) / float64(from.Height)

	out := make([]types.Detection, len(dets))
	for i, det := range dets {
		det.Box = types.Box{
			X:      det.Box.X * sx,
			Y:      det.Box.Y * sy,
			Width:  det.Box.Width * sx,
			Height: det.Box.Height * sy,
		}
		if det.Landmarks != nil {
			lm := make([]types.Point, len(det.Landmarks))
			for j, p := range det.Landmarks {
				lm[j] = types.Point{X: p.X * sx, Y: p.Y * sy}
			}
			det.Landmarks = lm
		}
		out[i] = det
	}
	return out
}

// Close shuts the pipes, which also unblocks a DetectFaces stuck in a read,
// and reaps the interpreter. Safe to call more than once.
func (d *PythonDetector) Close() {
	d.closeOnce.Do(func() {
		d.Stdin.Close()
		d.DataPipe.Close()
		if d.Cmd == nil {
			return
		}
		exited := make(chan struct{})
		go func() {
			d.Cmd.Wait()
			close(exited)
		}()
		select {
		case <-exited:
		case <-time.After(closeGrace):
			logger.Warning("detector did not exit, killing it")
			d.Cmd.Process.Kill()
			<-exited
		}
	})
}

// Protocol: [Length][Data]
func (d *PythonDetector) writeFrame(data []byte) error {
	if err := binary.Write(d.Stdin, binary.BigEndian, uint32(len(data))); err != nil {
		return err
	}
	_, err := d.Stdin.Write(data)
	return err
}

func (d *PythonDetector) readFrame() ([]byte, error) {
	header := make([]byte, 4)
	if _, err := io.ReadFull(d.DataPipe, header); err != nil {
		return nil, err // a crashed interpreter surfaces here as EOF
	}
	n := binary.BigEndian.Uint32(header)
	if n > d.maxBody {
		// Skip the body so the next header is read from the right offset.
		if _, err := io.CopyN(io.Discard, d.DataPipe, int64(n)); err != nil {
			return nil, fmt.Errorf("%w: discarding body of %d bytes: %v", ErrProtocol, n, err)
		}
		return nil, fmt.Errorf("%w: body of %d bytes", ErrProtocol, n)
	}
	body := make([]byte, n)
	_, err := io.ReadFull(d.DataPipe, body)
	return body, err
}

// encodeRequest lays out [inputSize u32][scoreThreshold f32][jpeg].
func encodeRequest(jpeg []byte, opts session.DetectOptions) []byte {
	buf := make([]byte, 8, 8+len(jpeg))
	binary.BigEndian.PutUint32(buf[0:4], uint32(opts.InputSize))
	binary.BigEndian.PutUint32(buf[4:8], math.Float32bits(float32(opts.ScoreThreshold)))
	return append(buf, jpeg...)
}

func decodeResponse(body []byte) ([]types.Detection, error) {
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrProtocol)
	}
	r := bytes.NewReader(body[1:])

	switch body[0] {
	case statusOK:
	case statusError:
		msg, err := readString(r)
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("python worker error: %s", msg)
	default:
		return nil, fmt.Errorf("%w: status %d", ErrProtocol, body[0])
	}

	var n uint32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return nil, fmt.Errorf("%w: face count: %v", ErrProtocol, err)
	}
	// Smallest face record: box, score and two zero counts.
	if int64(n)*28 > int64(r.Len()) {
		return nil, fmt.Errorf("%w: %d faces in %d bytes", ErrProtocol, n, r.Len())
	}

	dets := make([]types.Detection, 0, n)
	for i := uint32(0); i < n; i++ {
		det, err := readDetection(r)
		if err != nil {
			return nil, fmt.Errorf("%w: face %d: %v", ErrProtocol, i, err)
		}
		dets = append(dets, det)
	}
	return dets, nil
}

func readDetection(r *bytes.Reader) (types.Detection, error) {
	var head struct {
		Box   [4]float32
		Score float32
	}
	if err := binary.Read(r, binary.BigEndian, &head); err != nil {
		return types.Detection{}, err
	}

	landmarks, err := readFloats(r, 2)
	if err != nil {
		return types.Detection{}, fmt.Errorf("landmarks: %w", err)
	}
	desc, err := readFloats(r, 1)
	if err != nil {
		return types.Detection{}, fmt.Errorf("descriptor: %w", err)
	}

	det := types.Detection{
		Box: types.Box{
			X:      float64(head.Box[0]),
			Y:      float64(head.Box[1]),
			Width:  float64(head.Box[2]),
			Height: float64(head.Box[3]),
		},
		Score:      float64(head.Score),
		Descriptor: desc,
	}
	if len(landmarks) > 0 {
		det.Landmarks = make([]types.Point, len(landmarks)/2)
		for i := range det.Landmarks {
			det.Landmarks[i] = types.Point{X: landmarks[2*i], Y: landmarks[2*i+1]}
		}
	}
	return det, nil
}

// readFloats reads [count u32][count*width f32] as float64.
func readFloats(r *bytes.Reader, width int) ([]float64, error) {
	var count uint32
	if err := binary.Read(r, binary.BigEndian, &count); err != nil {
		return nil, err
	}
	total := int64(count) * int64(width)
	if total*4 > int64(r.Len()) {
		return nil, fmt.Errorf("%d values exceed remaining %d bytes", total, r.Len())
	}
	if total == 0 {
		return nil, nil
	}
	raw := make([]float32, total)
	if err := binary.Read(r, binary.BigEndian, raw); err != nil {
		return nil, err
	}
	out := make([]float64, total)
	for i, v := range raw {
		out[i] = float64(v)
	}
	return out, nil
}

func readString(r *bytes.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return "", fmt.Errorf("%w: message length: %v", ErrProtocol, err)
	}
	if int64(n) > int64(r.Len()) {
		return "", fmt.Errorf("%w: message of %d bytes", ErrProtocol, n)
	}
	msg := make([]byte, n)
	if _, err := io.ReadFull(r, msg); err != nil {
		return "", err
	}
	return string(msg), nil
}
