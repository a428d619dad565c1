package align

import (
	"math"
	"testing"
)

func TestKernelNoneIsIdentity(t *testing.T) {
	for _, kind := range []KernelKind{KernelNone, ""} {
		fn, err := NewRobustKernel(kind, 0)
		if err != nil {
			t.Fatalf("kernel %q: unexpected error %v", kind, err)
		}
		if fn != nil {
			t.Errorf("kernel %q: expected nil function, got one", kind)
		}
	}
}

func TestHuberKernel(t *testing.T) {
	k := 2.0
	fn, err := NewRobustKernel(KernelHuber, k)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Inside the quadratic region the weight is exactly 1
	if w := fn(1.0); w != 1 {
		t.Errorf("huber weight inside region = %g, want 1", w)
	}
	if w := fn(k * k); w != 1 {
		t.Errorf("huber weight at boundary = %g, want 1", w)
	}

	// Outside: sqrt(k/|r|)
	r := 8.0
	want := math.Sqrt(k / r)
	if w := fn(r * r); math.Abs(w-want) > 1e-12 {
		t.Errorf("huber weight at |r|=%g: got %g, want %g", r, w, want)
	}
}

func TestGemanMcClureKernel(t *testing.T) {
	c := 1.0
	fn, err := NewRobustKernel(KernelGemanMcClure, c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if w := fn(0); math.Abs(w-1) > 1e-12 {
		t.Errorf("weight at zero residual = %g, want 1", w)
	}

	// Monotone decreasing in the squared residual
	prev := fn(0)
	for _, sq := range []float64{0.5, 1, 4, 25, 1e4} {
		w := fn(sq)
		if w >= prev {
			t.Errorf("weight not decreasing: f(%g) = %g >= %g", sq, w, prev)
		}
		prev = w
	}

	// Gross outliers get nearly zero weight
	if w := fn(1e6); w > 1e-4 {
		t.Errorf("gross outlier weight = %g, want near zero", w)
	}
}

func TestKernelParameterValidation(t *testing.T) {
	for _, kind := range []KernelKind{KernelHuber, KernelGemanMcClure} {
		for _, param := range []float64{0, -1} {
			if _, err := NewRobustKernel(kind, param); err == nil {
				t.Errorf("kernel %q with param %g: expected error", kind, param)
			}
		}
	}
}

func TestUnknownKernel(t *testing.T) {
	if _, err := NewRobustKernel("cauchy", 1); err == nil {
		t.Error("expected error for unknown kernel kind")
	}
}
