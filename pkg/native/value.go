package native

// Value is a native property value. Concrete types are the ones declared
// in this file plus bool, string, float64, int64, map[string]string,
// Object (links) and []Object (link lists).
type Value any

// Quantity is a magnitude with a unit, e.g. {10, "mm"} or {90, "deg"}.
type Quantity struct {
	Value float64
	Unit  string
}

// Vector is a point or direction.
type Vector struct {
	X, Y, Z float64
}

// Rotation is a rotation about Axis by Angle radians.
type Rotation struct {
	Axis  Vector
	Angle float64
}

// Placement positions an object.
type Placement struct {
	Base     Vector
	Rotation Rotation
}

// BoundBox is an axis-aligned bounding box.
type BoundBox struct {
	Min, Max Vector
}

// Center returns the midpoint of b.
func (b BoundBox) Center() Vector {
	return Vector{
		X: (b.Min.X + b.Max.X) / 2,
		Y: (b.Min.Y + b.Max.Y) / 2,
		Z: (b.Min.Z + b.Max.Z) / 2,
	}
}

// Shape is the computed shape of a feature. Only its summary is exposed.
type Shape struct {
	Valid    bool
	BoundBox BoundBox
}

// Geometry is an element of a geometry list property. Implementations
// are pointers so a list element can be edited in place.
type Geometry interface {
	GeomTypeID() string
	// Clone returns an independent copy.
	Clone() Geometry
}

// Circle is a full circle in the plane normal to Axis.
type Circle struct {
	Center  Vector
	Axis    Vector
	AngleXU float64
	Radius  float64
}

func (*Circle) GeomTypeID() string { return "Part::GeomCircle" }

func (c *Circle) Clone() Geometry {
	cp := *c
	return &cp
}

// LineSegment is a straight segment between two points.
type LineSegment struct {
	Start, End Vector
}

func (*LineSegment) GeomTypeID() string { return "Part::GeomLineSegment" }

func (l *LineSegment) Clone() Geometry {
	cp := *l
	return &cp
}
