package memdoc

import (
	"errors"
	"fmt"
	"math"

	"github.com/chazu/cadsync/pkg/kernel"
	"github.com/chazu/cadsync/pkg/native"
)

// RecomputeError reports why one object's shape could not be built.
type RecomputeError struct {
	Object string
	Err    error
}

func (e *RecomputeError) Error() string {
	return fmt.Sprintf("recompute %s: %v", e.Object, e.Err)
}

func (e *RecomputeError) Unwrap() error { return e.Err }

// Recompute rebuilds the Shape of every feature. Objects whose shape
// cannot be built get an invalid shape; their errors are joined in the
// result and the other objects are still computed.
func (d *Document) Recompute() error {
	r := &recompute{
		doc:    d,
		solids: make(map[string]kernel.Solid),
		state:  make(map[string]int),
	}
	var errs []error
	for _, o := range d.objects {
		if _, hasShape := o.prop("Shape"); !hasShape {
			continue
		}
		s, err := r.solid(o)
		if err != nil {
			o.set("Shape", native.Shape{})
			errs = append(errs, &RecomputeError{Object: o.name, Err: err})
			continue
		}
		o.set("Shape", shapeOf(s))
	}
	return errors.Join(errs...)
}

func shapeOf(s kernel.Solid) native.Shape {
	if s == nil {
		return native.Shape{}
	}
	min, max := s.BoundingBox()
	return native.Shape{
		Valid: true,
		BoundBox: native.BoundBox{
			Min: native.Vector{X: min[0], Y: min[1], Z: min[2]},
			Max: native.Vector{X: max[0], Y: max[1], Z: max[2]},
		},
	}
}

var errNoGeometry = errors.New("no geometry kernel")

type recompute struct {
	doc    *Document
	solids map[string]kernel.Solid
	state  map[string]int // 1 = in progress, 2 = done
}

// solid returns o's placed solid, building operands first. A nil solid
// with a nil error means o has no volume (Part::Any, sketches).
func (r *recompute) solid(o *Object) (s kernel.Solid, err error) {
	switch r.state[o.name] {
	case 2:
		return r.solids[o.name], nil
	case 1:
		return nil, fmt.Errorf("reference cycle through %q", o.name)
	}
	if r.doc.geo == nil {
		return nil, errNoGeometry
	}
	r.state[o.name] = 1
	defer func() {
		if p := recover(); p != nil {
			s, err = nil, fmt.Errorf("kernel: %v", p)
		}
		if err != nil {
			delete(r.state, o.name)
			return
		}
		r.state[o.name] = 2
		r.solids[o.name] = s
	}()

	s, err = r.build(o)
	if err != nil || s == nil {
		return s, err
	}
	return r.place(o, s), nil
}

func (r *recompute) build(o *Object) (kernel.Solid, error) {
	geo := r.doc.geo
	switch o.typeID {
	case "Part::Box":
		return geo.Box(o.number("Length"), o.number("Width"), o.number("Height")), nil
	case "Part::Cylinder":
		return geo.Cylinder(o.number("Height"), o.number("Radius")), nil
	case "Part::Cone":
		return geo.Cone(o.number("Height"), o.number("Radius1"), o.number("Radius2")), nil
	case "Part::Sphere":
		return geo.Sphere(o.number("Radius")), nil
	case "Part::Torus":
		return geo.Torus(o.number("Radius1"), o.number("Radius2")), nil
	case "Part::Cut":
		base, err := r.operand(o, "Base")
		if err != nil {
			return nil, err
		}
		tool, err := r.operand(o, "Tool")
		if err != nil {
			return nil, err
		}
		return geo.Difference(base, tool), nil
	case "Part::MultiFuse", "Part::MultiCommon":
		return r.fold(o)
	case "Part::Fillet", "Part::Chamfer":
		// Rounded edges stay inside the base's bounds.
		return r.operand(o, "Base")
	case "Part::Extrusion":
		return r.extrude(o)
	default:
		return nil, nil
	}
}

func (r *recompute) operand(o *Object, prop string) (kernel.Solid, error) {
	v, _ := o.Property(prop)
	link, ok := v.(*Object)
	if !ok || link == nil {
		return nil, fmt.Errorf("%s is not set", prop)
	}
	return r.linked(link)
}

func (r *recompute) linked(link *Object) (kernel.Solid, error) {
	s, err := r.solid(link)
	if err != nil {
		return nil, fmt.Errorf("operand %q: %w", link.name, err)
	}
	if s == nil {
		return nil, fmt.Errorf("operand %q has no volume", link.name)
	}
	return s, nil
}

func (r *recompute) fold(o *Object) (kernel.Solid, error) {
	v, _ := o.Property("Shapes")
	links, _ := v.([]native.Object)
	if len(links) < 2 {
		return nil, fmt.Errorf("needs at least two shapes, has %d", len(links))
	}
	var acc kernel.Solid
	for _, l := range links {
		s, err := r.linked(l.(*Object))
		if err != nil {
			return nil, err
		}
		switch {
		case acc == nil:
			acc = s
		case o.typeID == "Part::MultiFuse":
			acc = r.doc.geo.Union(acc, s)
		default:
			acc = r.doc.geo.Intersection(acc, s)
		}
	}
	return acc, nil
}

// extrude sweeps the base's bounds along Dir by unioning the base with
// its translated copies at both ends.
func (r *recompute) extrude(o *Object) (kernel.Solid, error) {
	base, err := r.operand(o, "Base")
	if err != nil {
		return nil, err
	}
	v, _ := o.Property("Dir")
	dir, _ := v.(native.Vector)
	fwd, rev := o.number("LengthFwd"), o.number("LengthRev")
	geo := r.doc.geo
	out := geo.Union(base, geo.Translate(base, dir.X*fwd, dir.Y*fwd, dir.Z*fwd))
	if rev > 0 {
		out = geo.Union(out, geo.Translate(base, -dir.X*rev, -dir.Y*rev, -dir.Z*rev))
	}
	return out, nil
}

func (r *recompute) place(o *Object, s kernel.Solid) kernel.Solid {
	v, _ := o.Property("Placement")
	p, ok := v.(native.Placement)
	if !ok {
		return s
	}
	axis := [3]float64{p.Rotation.Axis.X, p.Rotation.Axis.Y, p.Rotation.Axis.Z}
	deg := p.Rotation.Angle * 180 / math.Pi
	s = r.doc.geo.Rotate(s, axis, deg)
	return r.doc.geo.Translate(s, p.Base.X, p.Base.Y, p.Base.Z)
}

// number reads a numeric property as a float.
func (o *Object) number(name string) float64 {
	v, _ := o.Property(name)
	switch x := v.(type) {
	case native.Quantity:
		return x.Value
	case float64:
		return x
	case int64:
		return float64(x)
	default:
		return 0
	}
}
