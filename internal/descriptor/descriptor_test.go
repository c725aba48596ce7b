package descriptor

import (
	"errors"
	"math"
	"testing"
)

func TestDistance(t *testing.T) {
	tests := []struct {
		name string
		a    Descriptor
		b    Descriptor
		want float64
	}{
		{
			name: "Identical vectors",
			a:    Descriptor{0.1, 0.2, 0.3},
			b:    Descriptor{0.1, 0.2, 0.3},
			want: 0.0,
		},
		{
			name: "Unit apart on one axis",
			a:    Descriptor{1.0, 0.0},
			b:    Descriptor{0.0, 0.0},
			want: 1.0,
		},
		{
			name: "3-4-5 triangle",
			a:    Descriptor{0.0, 0.0},
			b:    Descriptor{3.0, 4.0},
			want: 5.0,
		},
		{
			name: "Empty vectors",
			a:    Descriptor{},
			b:    Descriptor{},
			want: 0.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Distance(tt.a, tt.b)
			if err != nil {
				t.Fatalf("Distance() error: %v", err)
			}
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Distance() = %v, want %v", got, tt.want)
			}
			// Symmetry
			back, _ := Distance(tt.b, tt.a)
			if math.Abs(got-back) > 1e-12 {
				t.Errorf("Distance is not symmetric: %v vs %v", got, back)
			}
		})
	}
}

func TestLengthMismatch(t *testing.T) {
	a := Descriptor{1, 2, 3}
	b := Descriptor{1, 2}

	if _, err := Distance(a, b); !errors.Is(err, ErrLengthMismatch) {
		t.Errorf("Distance() error = %v, want ErrLengthMismatch", err)
	}
	if _, err := Similarity(a, b); !errors.Is(err, ErrLengthMismatch) {
		t.Errorf("Similarity() error = %v, want ErrLengthMismatch", err)
	}
	if _, err := Mean([]Descriptor{a, b}); !errors.Is(err, ErrLengthMismatch) {
		t.Errorf("Mean() error = %v, want ErrLengthMismatch", err)
	}
}

func TestSimilarityIsNonIncreasing(t *testing.T) {
	origin := Descriptor{0, 0}
	prev := 2.0
	for _, x := range []float64{0, 0.25, 0.5, 1, 1.5, 2, 3, 10} {
		s, err := Similarity(origin, Descriptor{x, 0})
		if err != nil {
			t.Fatal(err)
		}
		if s < 0 || s > 1 {
			t.Errorf("Similarity at distance %v = %v, outside [0,1]", x, s)
		}
		if s > prev {
			t.Errorf("Similarity increased from %v to %v at distance %v", prev, s, x)
		}
		prev = s
	}

	if s, _ := Similarity(origin, origin); s != 1 {
		t.Errorf("Similarity of identical vectors = %v, want 1", s)
	}
}

func TestThresholdConversion(t *testing.T) {
	if got := DistanceToSimilarity(0.5); math.Abs(got-0.75) > 1e-9 {
		t.Errorf("DistanceToSimilarity(0.5) = %v, want 0.75", got)
	}
	if got := SimilarityToDistance(0.6); math.Abs(got-0.8) > 1e-9 {
		t.Errorf("SimilarityToDistance(0.6) = %v, want 0.8", got)
	}
}

func TestMean(t *testing.T) {
	samples := []Descriptor{
		{1.0, 0.0, 2.0},
		{0.0, 1.0, 4.0},
	}
	got, err := Mean(samples)
	if err != nil {
		t.Fatalf("Mean() error: %v", err)
	}
	want := Descriptor{0.5, 0.5, 3.0}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-9 {
			t.Errorf("Mean()[%d] = %v, want %v", i, got[i], want[i])
		}
	}

	// Inputs must not be modified
	if samples[0][0] != 1.0 {
		t.Errorf("Mean() mutated its input: %v", samples[0])
	}

	if _, err := Mean(nil); !errors.Is(err, ErrEmpty) {
		t.Errorf("Mean(nil) error = %v, want ErrEmpty", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		d       Descriptor
		wantErr error
	}{
		{"valid", Descriptor{0.1, -0.2}, nil},
		{"empty", Descriptor{}, ErrEmpty},
		{"nan", Descriptor{0.1, math.NaN()}, ErrNotFinite},
		{"inf", Descriptor{math.Inf(1)}, ErrNotFinite},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.d)
			if tt.wantErr == nil && err != nil {
				t.Errorf("Validate() unexpected error: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestClone(t *testing.T) {
	d := Descriptor{1, 2, 3}
	c := d.Clone()
	c[0] = 99
	if d[0] != 1 {
		t.Error("Clone() aliases the original slice")
	}
	if Descriptor(nil).Clone() != nil {
		t.Error("Clone() of nil should be nil")
	}
}
