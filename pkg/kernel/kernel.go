// Package kernel defines the abstract geometry kernel behind the reference
// native document's recompute. Only bounding boxes are read back from
// solids; the backend is free to represent them any way it likes.
//
// Primitive constructors panic on invalid dimensions, as the underlying
// SDF constructors do; callers recover per object.
package kernel

// Solid is an opaque handle to a geometry kernel solid.
type Solid interface {
	// BoundingBox returns the axis-aligned bounding box.
	BoundingBox() (min, max [3]float64)
}

// Kernel is the abstract geometry kernel interface.
// Primitives follow the native placement conventions: a box has its
// minimum corner at the origin, cylinders and cones stand on the XY plane
// around +Z, spheres and tori are centered on the origin.
type Kernel interface {
	// Primitives
	Box(x, y, z float64) Solid
	Cylinder(height, radius float64) Solid
	Cone(height, bottom, top float64) Solid
	Sphere(radius float64) Solid
	Torus(major, minor float64) Solid

	// Boolean operations
	Union(a, b Solid) Solid
	Difference(a, b Solid) Solid
	Intersection(a, b Solid) Solid

	// Transforms
	Translate(s Solid, x, y, z float64) Solid
	Rotate(s Solid, axis [3]float64, degrees float64) Solid // about the origin
}

// Extent returns the size of s along each axis.
func Extent(s Solid) [3]float64 {
	min, max := s.BoundingBox()
	return [3]float64{max[0] - min[0], max[1] - min[1], max[2] - min[2]}
}
