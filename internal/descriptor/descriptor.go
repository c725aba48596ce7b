// Package descriptor holds the face descriptor type and the metrics used to
// compare two descriptors.
package descriptor

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// SimilarityScale maps an L2 distance onto a [0,1] similarity score.
// It is a calibrated constant for unit-norm 128-d descriptors, not a true
// upper bound on the distance.
const SimilarityScale = 2.0

var (
	ErrLengthMismatch = errors.New("descriptor length mismatch")
	ErrEmpty          = errors.New("descriptor is empty")
	ErrNotFinite      = errors.New("descriptor contains a non-finite value")
)

// Descriptor is a fixed-length face embedding produced by the detector.
type Descriptor []float64

// Clone returns an independent copy so stored descriptors never alias
// detector buffers.
func (d Descriptor) Clone() Descriptor {
	if d == nil {
		return nil
	}
	out := make(Descriptor, len(d))
	copy(out, d)
	return out
}

// Validate checks a descriptor supplied from outside the detector.
func Validate(d Descriptor) error {
	if len(d) == 0 {
		return ErrEmpty
	}
	for i, v := range d {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w at index %d", ErrNotFinite, i)
		}
	}
	return nil
}

func checkLengths(a, b Descriptor) error {
	if len(a) != len(b) {
		return fmt.Errorf("%w: %d vs %d", ErrLengthMismatch, len(a), len(b))
	}
	return nil
}

// Distance returns the Euclidean (L2) distance between a and b.
func Distance(a, b Descriptor) (float64, error) {
	if err := checkLengths(a, b); err != nil {
		return 0, err
	}
	if len(a) == 0 {
		return 0, nil
	}
	return floats.Distance(a, b, 2), nil
}

// Similarity returns max(0, 1 - distance/SimilarityScale).
func Similarity(a, b Descriptor) (float64, error) {
	d, err := Distance(a, b)
	if err != nil {
		return 0, err
	}
	return DistanceToSimilarity(d), nil
}

// DistanceToSimilarity converts a distance (or a distance threshold) to the
// similarity scale.
func DistanceToSimilarity(d float64) float64 {
	return math.Max(0, 1-d/SimilarityScale)
}

// SimilarityToDistance is the inverse of DistanceToSimilarity for s in (0,1].
func SimilarityToDistance(s float64) float64 {
	return (1 - s) * SimilarityScale
}

// Mean returns the componentwise arithmetic mean of samples.
func Mean(samples []Descriptor) (Descriptor, error) {
	if len(samples) == 0 {
		return nil, ErrEmpty
	}
	sum := make([]float64, len(samples[0]))
	for _, s := range samples {
		if err := checkLengths(samples[0], s); err != nil {
			return nil, err
		}
		floats.Add(sum, s)
	}
	floats.Scale(1/float64(len(samples)), sum)
	return sum, nil
}
