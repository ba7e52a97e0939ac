package kernel

import "testing"

// --- Compile-time interface check with a stub kernel ---

// stubSolid is a minimal Solid implementation for testing.
type stubSolid struct {
	minBB, maxBB [3]float64
}

func (s *stubSolid) BoundingBox() (min, max [3]float64) {
	return s.minBB, s.maxBB
}

// stubKernel is a minimal Kernel implementation that proves the interface
// is satisfiable. Booleans and transforms return trivial results.
type stubKernel struct{}

func (k *stubKernel) Box(x, y, z float64) Solid {
	return &stubSolid{maxBB: [3]float64{x, y, z}}
}

func (k *stubKernel) Cylinder(height, radius float64) Solid {
	return &stubSolid{
		minBB: [3]float64{-radius, -radius, 0},
		maxBB: [3]float64{radius, radius, height},
	}
}

func (k *stubKernel) Cone(height, bottom, top float64) Solid {
	r := max(bottom, top)
	return &stubSolid{
		minBB: [3]float64{-r, -r, 0},
		maxBB: [3]float64{r, r, height},
	}
}

func (k *stubKernel) Sphere(radius float64) Solid {
	return &stubSolid{
		minBB: [3]float64{-radius, -radius, -radius},
		maxBB: [3]float64{radius, radius, radius},
	}
}

func (k *stubKernel) Torus(major, minor float64) Solid {
	r := major + minor
	return &stubSolid{
		minBB: [3]float64{-r, -r, -minor},
		maxBB: [3]float64{r, r, minor},
	}
}

func (k *stubKernel) Union(a, b Solid) Solid {
	return a
}

func (k *stubKernel) Difference(a, b Solid) Solid {
	return a
}

func (k *stubKernel) Intersection(a, b Solid) Solid {
	return a
}

func (k *stubKernel) Translate(s Solid, x, y, z float64) Solid {
	return s
}

func (k *stubKernel) Rotate(s Solid, axis [3]float64, deg float64) Solid {
	return s
}

var _ Kernel = (*stubKernel)(nil)

func TestExtent(t *testing.T) {
	k := &stubKernel{}
	tests := []struct {
		name  string
		solid Solid
		want  [3]float64
	}{
		{"box", k.Box(1, 2, 3), [3]float64{1, 2, 3}},
		{"cylinder", k.Cylinder(10, 2), [3]float64{4, 4, 10}},
		{"torus", k.Torus(10, 2), [3]float64{24, 24, 4}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Extent(tt.solid); got != tt.want {
				t.Errorf("Extent() = %v, want %v", got, tt.want)
			}
		})
	}
}
