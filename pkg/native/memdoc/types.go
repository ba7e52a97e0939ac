package memdoc

import (
	"fmt"

	"github.com/chazu/cadsync/pkg/native"
)

// Property type ids understood by the reference kernel.
const (
	TypeLength       = "App::PropertyLength"
	TypeDistance     = "App::PropertyDistance"
	TypeAngle        = "App::PropertyAngle"
	TypeBool         = "App::PropertyBool"
	TypeString       = "App::PropertyString"
	TypeFloat        = "App::PropertyFloat"
	TypeInteger      = "App::PropertyInteger"
	TypeVector       = "App::PropertyVector"
	TypePlacement    = "App::PropertyPlacement"
	TypeLink         = "App::PropertyLink"
	TypeLinkList     = "App::PropertyLinkList"
	TypeMap          = "App::PropertyMap"
	TypePartShape    = "Part::PropertyPartShape"
	TypeGeometryList = "Part::PropertyGeometryList"
)

type propDef struct {
	name   string
	typeID string
	def    func() native.Value
}

func length(v float64) func() native.Value {
	return func() native.Value { return native.Quantity{Value: v, Unit: "mm"} }
}

func angle(v float64) func() native.Value {
	return func() native.Value { return native.Quantity{Value: v, Unit: "deg"} }
}

func constant(v native.Value) func() native.Value {
	return func() native.Value { return v }
}

func identity() native.Value {
	return native.Placement{Rotation: native.Rotation{Axis: native.Vector{Z: 1}}}
}

// feature lists the properties every Part feature starts with.
func feature(extra ...propDef) []propDef {
	defs := []propDef{
		{"Label", TypeString, constant("")},
		{"Placement", TypePlacement, identity},
	}
	defs = append(defs, extra...)
	return append(defs, propDef{"Shape", TypePartShape, constant(native.Shape{})})
}

// objectTypes declares the property table of every object type id.
// Defaults match the native kernel's own.
var objectTypes = map[string][]propDef{
	"Part::Feature": feature(),
	"Part::Box": feature(
		propDef{"Length", TypeLength, length(10)},
		propDef{"Width", TypeLength, length(10)},
		propDef{"Height", TypeLength, length(10)},
	),
	"Part::Cylinder": feature(
		propDef{"Radius", TypeLength, length(2)},
		propDef{"Height", TypeLength, length(10)},
		propDef{"Angle", TypeAngle, angle(360)},
	),
	"Part::Cone": feature(
		propDef{"Radius1", TypeLength, length(2)},
		propDef{"Radius2", TypeLength, length(4)},
		propDef{"Height", TypeLength, length(10)},
		propDef{"Angle", TypeAngle, angle(360)},
	),
	"Part::Sphere": feature(
		propDef{"Radius", TypeLength, length(5)},
		propDef{"Angle1", TypeAngle, angle(-90)},
		propDef{"Angle2", TypeAngle, angle(90)},
		propDef{"Angle3", TypeAngle, angle(360)},
	),
	"Part::Torus": feature(
		propDef{"Radius1", TypeLength, length(10)},
		propDef{"Radius2", TypeLength, length(2)},
		propDef{"Angle1", TypeAngle, angle(-180)},
		propDef{"Angle2", TypeAngle, angle(180)},
		propDef{"Angle3", TypeAngle, angle(360)},
	),
	"Part::Cut": feature(
		propDef{"Base", TypeLink, constant(nil)},
		propDef{"Tool", TypeLink, constant(nil)},
		propDef{"Refine", TypeBool, constant(false)},
	),
	"Part::MultiFuse": feature(
		propDef{"Shapes", TypeLinkList, constant(nil)},
		propDef{"Refine", TypeBool, constant(false)},
	),
	"Part::MultiCommon": feature(
		propDef{"Shapes", TypeLinkList, constant(nil)},
		propDef{"Refine", TypeBool, constant(false)},
	),
	"Part::Fillet": feature(
		propDef{"Base", TypeLink, constant(nil)},
		propDef{"Edge", TypeInteger, constant(int64(1))},
		propDef{"Radius", TypeLength, length(1)},
	),
	"Part::Chamfer": feature(
		propDef{"Base", TypeLink, constant(nil)},
		propDef{"Edge", TypeInteger, constant(int64(1))},
		propDef{"Dist", TypeLength, length(1)},
	),
	"Part::Extrusion": feature(
		propDef{"Base", TypeLink, constant(nil)},
		propDef{"Dir", TypeVector, constant(native.Vector{Z: 1})},
		propDef{"LengthFwd", TypeDistance, length(10)},
		propDef{"LengthRev", TypeDistance, length(0)},
		propDef{"Solid", TypeBool, constant(false)},
	),
	"Part::Any": feature(
		propDef{"Content", TypeString, constant("")},
		propDef{"Type", TypeString, constant("")},
	),
	"Sketcher::SketchObject": feature(
		propDef{"Geometry", TypeGeometryList, constant([]native.Geometry(nil))},
	),
}

// coerce checks v against typeID and returns the stored form. Bare
// numbers given for quantities take the type's unit.
func (d *Document) coerce(typeID string, v native.Value) (native.Value, error) {
	switch typeID {
	case TypeLength, TypeDistance, TypeAngle:
		unit := "mm"
		if typeID == TypeAngle {
			unit = "deg"
		}
		switch x := v.(type) {
		case native.Quantity:
			return x, nil
		case float64:
			return native.Quantity{Value: x, Unit: unit}, nil
		case int64:
			return native.Quantity{Value: float64(x), Unit: unit}, nil
		}
	case TypeBool:
		if _, ok := v.(bool); ok {
			return v, nil
		}
	case TypeString:
		if _, ok := v.(string); ok {
			return v, nil
		}
	case TypeFloat:
		switch x := v.(type) {
		case float64:
			return x, nil
		case int64:
			return float64(x), nil
		}
	case TypeInteger:
		switch x := v.(type) {
		case int64:
			return x, nil
		case int:
			return int64(x), nil
		}
	case TypeVector:
		if _, ok := v.(native.Vector); ok {
			return v, nil
		}
	case TypePlacement:
		if _, ok := v.(native.Placement); ok {
			return v, nil
		}
	case TypeLink:
		if v == nil {
			return nil, nil
		}
		if o, ok := v.(native.Object); ok {
			return d.own(o)
		}
	case TypeLinkList:
		if v == nil {
			return nil, nil
		}
		if objs, ok := v.([]native.Object); ok {
			out := make([]native.Object, 0, len(objs))
			for _, o := range objs {
				owned, err := d.own(o)
				if err != nil {
					return nil, err
				}
				out = append(out, owned)
			}
			return out, nil
		}
	case TypeMap:
		if _, ok := v.(map[string]string); ok {
			return v, nil
		}
	case TypeGeometryList:
		if v == nil {
			return []native.Geometry(nil), nil
		}
		if _, ok := v.([]native.Geometry); ok {
			return v, nil
		}
	case TypePartShape:
		return nil, fmt.Errorf("property type %s is read-only", typeID)
	default:
		return nil, fmt.Errorf("unknown property type %s", typeID)
	}
	return nil, fmt.Errorf("cannot assign %T to %s", v, typeID)
}

// own returns the object of this document that o names.
func (d *Document) own(o native.Object) (native.Object, error) {
	mine, ok := d.lookup(o.Name())
	if !ok || native.Object(mine) != o {
		return nil, fmt.Errorf("link target %q is not in this document", o.Name())
	}
	return mine, nil
}
