package jcad

// Parameters is the interface for shape-specific parameter records.
// Each variant carries the common Placement.
type Parameters interface {
	Shape() Shape
	PlacementOf() Placement
	params() // marker method restricting implementations to this package
}

// Placement positions an object: a translation, a rotation axis, and a
// rotation angle in degrees.
type Placement struct {
	Position []float64 `json:"Position" validate:"len=3"`
	Axis     []float64 `json:"Axis" validate:"len=3"`
	Angle    float64   `json:"Angle"`
}

// DefaultPlacement is the origin with no rotation around +Z.
func DefaultPlacement() Placement {
	return Placement{
		Position: []float64{0, 0, 0},
		Axis:     []float64{0, 0, 1},
		Angle:    0,
	}
}

// Common holds the fields every parameter record carries.
type Common struct {
	Placement Placement `json:"Placement"`
}

func (c Common) PlacementOf() Placement { return c.Placement }

func defaultCommon() Common { return Common{Placement: DefaultPlacement()} }

// ---------------------------------------------------------------------------
// Primitives
// ---------------------------------------------------------------------------

type Box struct {
	Length float64 `json:"Length" validate:"gt=0"`
	Width  float64 `json:"Width" validate:"gt=0"`
	Height float64 `json:"Height" validate:"gt=0"`
	Common
}

func (Box) Shape() Shape { return ShapeBox }
func (Box) params()      {}

type Cone struct {
	Radius1 float64 `json:"Radius1" validate:"gte=0"`
	Radius2 float64 `json:"Radius2" validate:"gte=0"`
	Height  float64 `json:"Height" validate:"gt=0"`
	Angle   float64 `json:"Angle" validate:"gt=0,lte=360"` // revolution angle
	Common
}

func (Cone) Shape() Shape { return ShapeCone }
func (Cone) params()      {}

type Cylinder struct {
	Radius float64 `json:"Radius" validate:"gt=0"`
	Height float64 `json:"Height" validate:"gt=0"`
	Angle  float64 `json:"Angle" validate:"gt=0,lte=360"`
	Common
}

func (Cylinder) Shape() Shape { return ShapeCylinder }
func (Cylinder) params()      {}

type Sphere struct {
	Radius float64 `json:"Radius" validate:"gt=0"`
	Angle1 float64 `json:"Angle1" validate:"gte=-90,lte=90"`
	Angle2 float64 `json:"Angle2" validate:"gte=-90,lte=90"`
	Angle3 float64 `json:"Angle3" validate:"gt=0,lte=360"`
	Common
}

func (Sphere) Shape() Shape { return ShapeSphere }
func (Sphere) params()      {}

type Torus struct {
	Radius1 float64 `json:"Radius1" validate:"gt=0"`
	Radius2 float64 `json:"Radius2" validate:"gt=0"`
	Angle1  float64 `json:"Angle1" validate:"gte=-180,lte=180"`
	Angle2  float64 `json:"Angle2" validate:"gte=-180,lte=180"`
	Angle3  float64 `json:"Angle3" validate:"gt=0,lte=360"`
	Common
}

func (Torus) Shape() Shape { return ShapeTorus }
func (Torus) params()      {}

// ---------------------------------------------------------------------------
// Operations. Base, Tool and Shapes are object names.
// ---------------------------------------------------------------------------

type Cut struct {
	Base   string `json:"Base" validate:"required"`
	Tool   string `json:"Tool" validate:"required"`
	Refine bool   `json:"Refine"`
	Common
}

func (Cut) Shape() Shape { return ShapeCut }
func (Cut) params()      {}

type Fuse struct {
	Shapes []string `json:"Shapes" validate:"min=2,dive,required"`
	Refine bool     `json:"Refine"`
	Common
}

func (Fuse) Shape() Shape { return ShapeFuse }
func (Fuse) params()      {}

type Intersection struct {
	Shapes []string `json:"Shapes" validate:"min=2,dive,required"`
	Refine bool     `json:"Refine"`
	Common
}

func (Intersection) Shape() Shape { return ShapeIntersection }
func (Intersection) params()      {}

type Fillet struct {
	Base   string  `json:"Base" validate:"required"`
	Edge   int     `json:"Edge" validate:"gte=0"`
	Radius float64 `json:"Radius" validate:"gt=0"`
	Common
}

func (Fillet) Shape() Shape { return ShapeFillet }
func (Fillet) params()      {}

type Chamfer struct {
	Base string  `json:"Base" validate:"required"`
	Edge int     `json:"Edge" validate:"gte=0"`
	Dist float64 `json:"Dist" validate:"gt=0"`
	Common
}

func (Chamfer) Shape() Shape { return ShapeChamfer }
func (Chamfer) params()      {}

type Extrusion struct {
	Base      string    `json:"Base" validate:"required"`
	Dir       []float64 `json:"Dir" validate:"len=3"`
	LengthFwd float64   `json:"LengthFwd" validate:"gte=0"`
	LengthRev float64   `json:"LengthRev" validate:"gte=0"`
	Solid     bool      `json:"Solid"`
	Common
}

func (Extrusion) Shape() Shape { return ShapeExtrusion }
func (Extrusion) params()      {}

// Any is an opaque shape carried as serialized content (BREP, STEP, STL).
type Any struct {
	Content string `json:"Content"`
	Type    string `json:"Type" validate:"required"`
	Common
}

func (Any) Shape() Shape { return ShapeAny }
func (Any) params()      {}

// References returns the object names p refers to, in declaration order.
func References(p Parameters) []string {
	switch d := p.(type) {
	case Cut:
		return []string{d.Base, d.Tool}
	case Fuse:
		return append([]string(nil), d.Shapes...)
	case Intersection:
		return append([]string(nil), d.Shapes...)
	case Fillet:
		return []string{d.Base}
	case Chamfer:
		return []string{d.Base}
	case Extrusion:
		return []string{d.Base}
	default:
		return nil
	}
}
