// Package session drives the per-frame decision loop: detection, quality
// gating, liveness, enrollment and verification.
package session

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/andresmejia3/facegate/internal/descriptor"
	"github.com/andresmejia3/facegate/internal/enroll"
	"github.com/andresmejia3/facegate/internal/liveness"
	"github.com/andresmejia3/facegate/internal/quality"
	"github.com/andresmejia3/facegate/internal/types"
	"github.com/andresmejia3/facegate/internal/verify"
)

var ErrDetectorTimeout = errors.New("timeout waiting for face detector")

// DetectOptions is passed through to the detector on every call.
type DetectOptions struct {
	InputSize      int     `yaml:"input_size"`
	ScoreThreshold float64 `yaml:"score_threshold"`
}

// Detector is the external face detection capability.
type Detector interface {
	DetectFaces(ctx context.Context, frame types.Frame, opts DetectOptions) ([]types.Detection, error)
	// ResizeResults rescales detections from frame space to display space.
	ResizeResults(dets []types.Detection, from, to types.Size) []types.Detection
	// Ready is closed once the detector can accept frames.
	Ready() <-chan struct{}
}

// FrameSource provides the most recent captured frame.
type FrameSource interface {
	Ready() bool
	Frame() (types.Frame, bool)
}

// DisplaySize provides the output region detections are mapped into.
type DisplaySize interface {
	Size() types.Size
	Recompute()
}

// Config holds every tunable of the loop.
type Config struct {
	Quality           quality.Thresholds `yaml:"quality"`
	MovementThreshold float64            `yaml:"movement_threshold"`
	MinMovements      int                `yaml:"min_movements"`
	EnrollDuration    time.Duration      `yaml:"enroll_duration"`
	EnrollSamples     int                `yaml:"enroll_samples"`
	// CenterTolerance is how far the face center may sit from the display
	// center, as a fraction of the display width/height.
	CenterTolerance float64       `yaml:"center_tolerance"`
	MatchThreshold  float64       `yaml:"match_threshold"`
	MaxFaces        int           `yaml:"max_faces"`
	Detect          DetectOptions `yaml:"detect"`
	ReadyTimeout    time.Duration `yaml:"ready_timeout"`
	Interval        time.Duration `yaml:"interval"`
	Warmup          time.Duration `yaml:"warmup"`
}

func DefaultConfig() Config {
	return Config{
		Quality:           quality.DefaultThresholds(),
		MovementThreshold: liveness.DefaultMovementThreshold,
		MinMovements:      liveness.DefaultMinMovements,
		EnrollDuration:    enroll.DefaultDuration,
		EnrollSamples:     enroll.DefaultCapacity,
		CenterTolerance:   0.25,
		MatchThreshold:    verify.DefaultThreshold,
		MaxFaces:          1,
		Detect:            DetectOptions{InputSize: 416, ScoreThreshold: 0.3},
		ReadyTimeout:      10 * time.Second,
		Interval:          200 * time.Millisecond,
		Warmup:            500 * time.Millisecond,
	}
}

// Status answers the host's status query.
type Status struct {
	HasStoredDescriptor bool   `json:"hasStoredDescriptor"`
	DescriptorLength    int    `json:"descriptorLength"`
	CurrentMode         string `json:"currentMode"`
}

// Option customises a Controller.
type Option func(*Controller)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// Controller owns all per-session state. Several controllers can run side by
// side; none of them share state.
type Controller struct {
	cfg      Config
	detector Detector
	source   FrameSource
	display  DisplaySize
	gate     *quality.Gate
	now      func() time.Time

	template Template
	busy     atomic.Bool

	mu         sync.Mutex
	mode       Mode
	generation uint64
	enrollment *enroll.Session
	liveness   *liveness.Tracker
}

func New(cfg Config, detector Detector, source FrameSource, display DisplaySize, opts ...Option) *Controller {
	c := &Controller{
		cfg:        cfg,
		detector:   detector,
		source:     source,
		display:    display,
		gate:       quality.NewGate(cfg.Quality),
		now:        time.Now,
		enrollment: enroll.NewSession(cfg.EnrollDuration, cfg.EnrollSamples),
		liveness:   liveness.NewTracker(cfg.MovementThreshold, cfg.MinMovements),
	}
	def := DefaultConfig()
	if c.cfg.MaxFaces < 1 {
		c.cfg.MaxFaces = def.MaxFaces
	}
	if c.cfg.ReadyTimeout <= 0 {
		c.cfg.ReadyTimeout = def.ReadyTimeout
	}
	if c.cfg.Interval <= 0 {
		c.cfg.Interval = def.Interval
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Mode returns the current operation mode.
func (c *Controller) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// SetMode switches mode and resets enrollment and liveness. Detector results
// requested before the switch are discarded.
func (c *Controller) SetMode(m Mode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setModeLocked(m)
}

func (c *Controller) setModeLocked(m Mode) {
	c.mode = m
	c.generation++
	c.resetProgressLocked()
}

func (c *Controller) resetProgressLocked() {
	c.enrollment.Reset()
	c.liveness.Reset()
}

// SetTemplate stores the descriptor verification compares against.
func (c *Controller) SetTemplate(d descriptor.Descriptor) error {
	if err := c.template.Set(d); err != nil {
		return fmt.Errorf("invalid stored descriptor: %w", err)
	}
	return nil
}

func (c *Controller) ClearTemplate() {
	c.template.Clear()
}

func (c *Controller) Status() Status {
	d := c.template.Get()
	return Status{
		HasStoredDescriptor: d != nil,
		DescriptorLength:    len(d),
		CurrentMode:         c.Mode().String(),
	}
}

// Start blocks until the detector is ready, the context ends, or the ready
// timeout elapses.
func (c *Controller) Start(ctx context.Context) error {
	timer := time.NewTimer(c.cfg.ReadyTimeout)
	defer timer.Stop()

	select {
	case <-c.detector.Ready():
		return nil
	case <-timer.C:
		return fmt.Errorf("%w after %s", ErrDetectorTimeout, c.cfg.ReadyTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run waits for the detector, then processes one frame per interval until
// ctx is cancelled. Events reach sink in frame order.
func (c *Controller) Run(ctx context.Context, sink Sink) error {
	if err := c.Start(ctx); err != nil {
		sink.Emit(errorEvent(c.now(), err.Error()))
		return err
	}
	sink.Emit(infoEvent(c.now(), MsgDetectorReady))

	select {
	case <-time.After(c.cfg.Warmup):
	case <-ctx.Done():
		return nil
	}

	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			for _, ev := range c.processSafely(ctx) {
				sink.Emit(ev)
			}
		}
	}
}

// processSafely keeps a panicking frame from stopping the loop.
func (c *Controller) processSafely(ctx context.Context) (events []Event) {
	defer func() {
		if r := recover(); r != nil {
			events = []Event{errorEvent(c.now(), fmt.Sprintf("frame processing panicked: %v", r))}
		}
	}()
	return c.ProcessFrame(ctx)
}

// ProcessFrame analyses the current frame and returns the resulting events.
// It returns nil for skipped frames: source not ready, unknown display size,
// or a detector call still in flight.
func (c *Controller) ProcessFrame(ctx context.Context) []Event {
	if !c.source.Ready() {
		return nil
	}
	size := c.display.Size()
	if size.IsZero() {
		c.display.Recompute()
		return nil
	}
	frame, ok := c.source.Frame()
	if !ok {
		return nil
	}

	if !c.busy.CompareAndSwap(false, true) {
		return nil
	}
	defer c.busy.Store(false)

	c.mu.Lock()
	gen := c.generation
	c.mu.Unlock()

	dets, err := c.detector.DetectFaces(ctx, frame, c.cfg.Detect)
	now := c.now()
	if err != nil {
		return []Event{errorEvent(now, fmt.Sprintf("%s: %v", MsgDetectionError, err))}
	}
	dets = c.detector.ResizeResults(dets, types.Size{Width: frame.Width, Height: frame.Height}, size)

	c.mu.Lock()
	defer c.mu.Unlock()

	// A mode switch landed while the detector was busy.
	if gen != c.generation {
		return nil
	}
	return c.handleLocked(dets, size, now)
}

func (c *Controller) handleLocked(dets []types.Detection, size types.Size, now time.Time) []Event {
	if len(dets) > c.cfg.MaxFaces {
		return []Event{infoEvent(now, MsgMultipleFaces)}
	}
	if len(dets) == 0 {
		if c.mode != ModeRegistering {
			return nil
		}
		c.resetProgressLocked()
		return []Event{infoEvent(now, MsgFaceLost)}
	}

	det := dets[0]
	verdict := c.gate.Evaluate(det)
	if !verdict.Accepted {
		return []Event{infoEvent(now, string(verdict.Reason))}
	}
	desc := descriptor.Descriptor(det.Descriptor)

	switch c.mode {
	case ModeRegistering:
		return c.registerLocked(det, desc, size, now)
	case ModeVerifying:
		return []Event{c.verifyLocked(det, desc, now)}
	default:
		box := det.Box
		return []Event{{
			Type:       EventDetection,
			Descriptor: desc.Clone(),
			Box:        &box,
			Timestamp:  now.UnixMilli(),
		}}
	}
}

func (c *Controller) registerLocked(det types.Detection, desc descriptor.Descriptor, size types.Size, now time.Time) []Event {
	if !c.centered(det.Box, size) {
		if c.enrollment.State() == enroll.Collecting {
			c.resetProgressLocked()
			return []Event{infoEvent(now, MsgLeftTarget)}
		}
		return []Event{infoEvent(now, MsgCenterFace)}
	}

	c.liveness.Observe(det.Box.TopLeft())
	out, err := c.enrollment.Add(desc, now)
	if err != nil {
		c.resetProgressLocked()
		return []Event{errorEvent(now, err.Error())}
	}

	progress := &Progress{
		Fraction:  out.Progress,
		Samples:   out.Samples,
		Live:      c.liveness.IsLive(),
		Movements: c.liveness.Movements(),
	}
	box := det.Box
	ev := Event{Type: EventEnrollmentProgress, Box: &box, Progress: progress, Timestamp: now.UnixMilli()}
	if !progress.Live {
		ev.Message = MsgNotLive
	}
	events := []Event{ev}

	if out.Template != nil {
		events = append(events, Event{
			Type:       EventRegisterFace,
			Descriptor: out.Template,
			Progress:   progress,
			Timestamp:  now.UnixMilli(),
		})
		c.setModeLocked(ModeVerifying)
	}
	return events
}

func (c *Controller) verifyLocked(det types.Detection, desc descriptor.Descriptor, now time.Time) Event {
	res, err := verify.Verify(desc, c.template.Get(), c.cfg.MatchThreshold)
	if errors.Is(err, verify.ErrNoStoredTemplate) {
		return errorEvent(now, MsgNoStoredTemplate)
	}
	if err != nil {
		return errorEvent(now, fmt.Sprintf("verification failed: %v", err))
	}

	typ := EventVerificationFailed
	if res.IsMatch {
		typ = EventVerificationSuccess
	}
	box := det.Box
	return Event{
		Type:       typ,
		Descriptor: desc.Clone(),
		Box:        &box,
		Match: &Match{
			Distance:            res.Distance,
			Similarity:          res.Similarity,
			Threshold:           res.Threshold,
			SimilarityThreshold: descriptor.DistanceToSimilarity(res.Threshold),
		},
		Timestamp: now.UnixMilli(),
	}
}

// centered reports whether the box center lies inside the target region
// around the display center.
func (c *Controller) centered(b types.Box, size types.Size) bool {
	center := b.Center()
	dx := center.X - float64(size.Width)/2
	dy := center.Y - float64(size.Height)/2
	return math.Abs(dx) <= c.cfg.CenterTolerance*float64(size.Width) &&
		math.Abs(dy) <= c.cfg.CenterTolerance*float64(size.Height)
}
