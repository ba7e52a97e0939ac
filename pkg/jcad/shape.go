package jcad

// Shape is the primitive-kind tag of an object. Its value is the native
// type id the object materializes to.
type Shape string

const (
	ShapeBox          Shape = "Part::Box"
	ShapeCone         Shape = "Part::Cone"
	ShapeCylinder     Shape = "Part::Cylinder"
	ShapeSphere       Shape = "Part::Sphere"
	ShapeTorus        Shape = "Part::Torus"
	ShapeCut          Shape = "Part::Cut"
	ShapeFuse         Shape = "Part::MultiFuse"
	ShapeIntersection Shape = "Part::MultiCommon"
	ShapeFillet       Shape = "Part::Fillet"
	ShapeChamfer      Shape = "Part::Chamfer"
	ShapeExtrusion    Shape = "Part::Extrusion"
	ShapeAny          Shape = "Part::Any"
)

// Label returns the human-facing kind name used for generated object
// names ("Box 1", "Cut 2").
func (s Shape) Label() string {
	switch s {
	case ShapeBox:
		return "Box"
	case ShapeCone:
		return "Cone"
	case ShapeCylinder:
		return "Cylinder"
	case ShapeSphere:
		return "Sphere"
	case ShapeTorus:
		return "Torus"
	case ShapeCut:
		return "Cut"
	case ShapeFuse:
		return "Fuse"
	case ShapeIntersection:
		return "Intersection"
	case ShapeFillet:
		return "Fillet"
	case ShapeChamfer:
		return "Chamfer"
	case ShapeExtrusion:
		return "Extrusion"
	case ShapeAny:
		return "Shape"
	default:
		return string(s)
	}
}

func (s Shape) String() string { return string(s) }
