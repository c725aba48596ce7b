package types

import "math"

// Frame is a single encoded image pulled from the capture source.
type Frame struct {
	Index  int
	Data   []byte // JPEG bytes
	Width  int
	Height int
}

// Size is a pixel extent (frame or display region).
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// IsZero reports whether either dimension is unknown.
func (s Size) IsZero() bool {
	return s.Width <= 0 || s.Height <= 0
}

// Point is a 2D position in frame coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Dist returns the Euclidean distance between two points.
func (p Point) Dist(q Point) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}

// Box is an axis-aligned rectangle anchored at its top-left corner.
type Box struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// TopLeft returns the anchor point used for movement tracking.
func (b Box) TopLeft() Point {
	return Point{X: b.X, Y: b.Y}
}

// Center returns the midpoint of the box.
func (b Box) Center() Point {
	return Point{X: b.X + b.Width/2, Y: b.Y + b.Height/2}
}

// MaxSide returns the larger of width and height.
func (b Box) MaxSide() float64 {
	return math.Max(b.Width, b.Height)
}

// Detection is one face as reported by the detector for a single frame.
type Detection struct {
	Box        Box       `json:"box"`
	Score      float64   `json:"score"`
	Landmarks  []Point   `json:"landmarks"` // 68-point model
	Descriptor []float64 `json:"descriptor"`
}

