package enroll

import (
	"math"
	"testing"
	"time"

	"github.com/andresmejia3/facegate/internal/descriptor"
)

var t0 = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func vec(vals ...float64) descriptor.Descriptor { return vals }

func TestCompletesOnceWithMean(t *testing.T) {
	s := NewSession(3*time.Second, 5)

	// 5 frames spread over exactly 3s: 0, 750ms, 1.5s, 2.25s, 3s
	inputs := []descriptor.Descriptor{
		vec(1, 0), vec(2, 0), vec(3, 0), vec(4, 0), vec(5, 2),
	}
	var templates []descriptor.Descriptor
	for i, d := range inputs {
		out, err := s.Add(d, t0.Add(time.Duration(i)*750*time.Millisecond))
		if err != nil {
			t.Fatalf("Add() error: %v", err)
		}
		if out.Template != nil {
			templates = append(templates, out.Template)
		}
	}

	if len(templates) != 1 {
		t.Fatalf("expected exactly 1 template, got %d", len(templates))
	}
	want := vec(3, 0.4)
	for i := range want {
		if math.Abs(templates[0][i]-want[i]) > 1e-9 {
			t.Errorf("template[%d] = %v, want %v", i, templates[0][i], want[i])
		}
	}
	if s.State() != Completed {
		t.Errorf("State() = %v, want completed", s.State())
	}

	// A second full cycle without Reset emits nothing.
	for i := 0; i < 10; i++ {
		out, err := s.Add(vec(9, 9), t0.Add(time.Duration(4+i)*time.Second))
		if err != nil {
			t.Fatal(err)
		}
		if out.Template != nil {
			t.Fatalf("template emitted again after completion at step %d", i)
		}
	}
}

func TestMeanUsesNewestSamples(t *testing.T) {
	s := NewSession(time.Second, 3)
	// 7 samples, only the last 3 (5, 6, 7) should count
	var out Outcome
	for i := 1; i <= 7; i++ {
		at := t0.Add(time.Duration(i-1) * 100 * time.Millisecond)
		if i == 7 {
			at = t0.Add(time.Second)
		}
		var err error
		out, err = s.Add(vec(float64(i)), at)
		if err != nil {
			t.Fatal(err)
		}
		if out.Samples > 3 {
			t.Fatalf("buffer exceeded capacity: %d", out.Samples)
		}
	}
	// Only the last add reaches the 1s window
	if out.Template == nil {
		t.Fatal("expected completion on the last sample")
	}
	if math.Abs(out.Template[0]-6) > 1e-9 {
		t.Errorf("template = %v, want [6]", out.Template)
	}
}

func TestFewerSamplesThanCapacity(t *testing.T) {
	s := NewSession(time.Second, 5)
	s.Add(vec(2, 4), t0)
	out, _ := s.Add(vec(4, 8), t0.Add(time.Second))
	if out.Template == nil {
		t.Fatal("expected completion")
	}
	if out.Template[0] != 3 || out.Template[1] != 6 {
		t.Errorf("template = %v, want [3 6]", out.Template)
	}
}

func TestProgress(t *testing.T) {
	s := NewSession(2*time.Second, 5)
	if p := s.Progress(t0); p != 0 {
		t.Errorf("Progress before start = %v, want 0", p)
	}
	s.Begin(t0)
	if p := s.Progress(t0.Add(500 * time.Millisecond)); math.Abs(p-0.25) > 1e-9 {
		t.Errorf("Progress = %v, want 0.25", p)
	}
	if p := s.Progress(t0.Add(10 * time.Second)); p != 1 {
		t.Errorf("Progress is not clamped: %v", p)
	}
	if p := s.Progress(t0.Add(-time.Second)); p != 0 {
		t.Errorf("Progress is not clamped below: %v", p)
	}
}

func TestReset(t *testing.T) {
	s := NewSession(3*time.Second, 5)
	s.Add(vec(1), t0)
	s.Add(vec(2), t0.Add(time.Second))

	s.Reset()
	if s.Samples() != 0 {
		t.Errorf("Samples() = %d after reset, want 0", s.Samples())
	}
	if _, ok := s.StartedAt(); ok {
		t.Error("start timestamp survived reset")
	}
	if s.State() != NotStarted {
		t.Errorf("State() = %v, want not_started", s.State())
	}

	// The window restarts from the next sample.
	out, _ := s.Add(vec(5), t0.Add(4*time.Second))
	if out.Template != nil {
		t.Error("completed immediately after reset")
	}
}

func TestSamplesAreCopied(t *testing.T) {
	s := NewSession(time.Second, 5)
	d := vec(1, 1)
	s.Add(d, t0)
	d[0] = 100
	out, _ := s.Add(vec(1, 1), t0.Add(time.Second))
	if out.Template[0] != 1 {
		t.Errorf("sample aliased caller buffer: template = %v", out.Template)
	}
}
