package verify

import (
	"errors"
	"math"
	"testing"

	"github.com/andresmejia3/facegate/internal/descriptor"
)

func unit(dim, axis int) descriptor.Descriptor {
	d := make(descriptor.Descriptor, dim)
	d[axis] = 1
	return d
}

func TestVerify(t *testing.T) {
	live := unit(128, 0)

	tests := []struct {
		name      string
		stored    descriptor.Descriptor
		threshold float64
		wantMatch bool
		wantDist  float64
	}{
		{"Identical at tiny threshold", unit(128, 0), 1e-6, true, 0},
		{"Identical at default threshold", unit(128, 0), DefaultThreshold, true, 0},
		{"Orthogonal", unit(128, 1), DefaultThreshold, false, math.Sqrt2},
		{"Delta just over threshold", func() descriptor.Descriptor {
			d := unit(128, 0)
			d[5] = 0.51
			return d
		}(), DefaultThreshold, false, 0.51},
		{"Delta just under threshold", func() descriptor.Descriptor {
			d := unit(128, 0)
			d[5] = 0.49
			return d
		}(), DefaultThreshold, true, 0.49},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Verify(live, tt.stored, tt.threshold)
			if err != nil {
				t.Fatalf("Verify() error: %v", err)
			}
			if res.IsMatch != tt.wantMatch {
				t.Errorf("IsMatch = %v, want %v (distance %v)", res.IsMatch, tt.wantMatch, res.Distance)
			}
			if math.Abs(res.Distance-tt.wantDist) > 1e-9 {
				t.Errorf("Distance = %v, want %v", res.Distance, tt.wantDist)
			}
			if res.Threshold != tt.threshold {
				t.Errorf("Threshold = %v, want %v", res.Threshold, tt.threshold)
			}
		})
	}
}

func TestVerifyErrors(t *testing.T) {
	if _, err := Verify(unit(4, 0), nil, DefaultThreshold); !errors.Is(err, ErrNoStoredTemplate) {
		t.Errorf("nil template error = %v, want ErrNoStoredTemplate", err)
	}
	if _, err := Verify(unit(4, 0), unit(8, 0), DefaultThreshold); !errors.Is(err, descriptor.ErrLengthMismatch) {
		t.Errorf("length mismatch error = %v, want ErrLengthMismatch", err)
	}
}
