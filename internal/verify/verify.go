package verify

import (
	"errors"

	"github.com/andresmejia3/facegate/internal/descriptor"
)

// DefaultThreshold is the L2 distance below which two descriptors are
// considered the same person. On the similarity scale this is 0.75.
const DefaultThreshold = 0.5

var ErrNoStoredTemplate = errors.New("no stored template")

// Result is a single-frame verification decision.
type Result struct {
	IsMatch    bool
	Distance   float64
	Similarity float64
	Threshold  float64
}

// Verify compares a live descriptor against the stored template. The match
// decision is distance < threshold; Similarity is informational.
func Verify(live, stored descriptor.Descriptor, threshold float64) (Result, error) {
	if len(stored) == 0 {
		return Result{}, ErrNoStoredTemplate
	}
	dist, err := descriptor.Distance(live, stored)
	if err != nil {
		return Result{}, err
	}
	return Result{
		IsMatch:    dist < threshold,
		Distance:   dist,
		Similarity: descriptor.DistanceToSimilarity(dist),
		Threshold:  threshold,
	}, nil
}
