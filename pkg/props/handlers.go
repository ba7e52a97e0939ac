package props

import (
	"fmt"
	"math"

	"github.com/chazu/cadsync/pkg/native"
	"github.com/chazu/cadsync/pkg/props/geometry"
)

// ---------------------------------------------------------------------------
// Scalars
// ---------------------------------------------------------------------------

// Quantity unwraps a unit-carrying value to its magnitude in Unit. Bare
// numbers pass through in both directions; the native side re-applies
// the unit on assignment.
type Quantity struct {
	Unit string // "mm" or "deg"
}

func (q Quantity) ToDocument(v native.Value, _ *Context) (any, error) {
	switch x := v.(type) {
	case native.Quantity:
		if q.Unit == "deg" && x.Unit == "rad" {
			return x.Value * 180 / math.Pi, nil
		}
		return x.Value, nil
	default:
		return geometry.ToFloat(v)
	}
}

func (Quantity) ToNative(v any, _ *Context) (Result, error) {
	if v == nil {
		return NoChange{}, nil
	}
	f, err := geometry.ToFloat(v)
	if err != nil {
		return nil, err
	}
	return Assign{Value: f}, nil
}

type Bool struct{}

func (Bool) ToDocument(v native.Value, _ *Context) (any, error) {
	b, ok := v.(bool)
	if !ok {
		return nil, fmt.Errorf("expected bool, got %T", v)
	}
	return b, nil
}

func (Bool) ToNative(v any, _ *Context) (Result, error) {
	if v == nil {
		return NoChange{}, nil
	}
	b, ok := v.(bool)
	if !ok {
		return nil, fmt.Errorf("expected bool, got %T", v)
	}
	return Assign{Value: b}, nil
}

type String struct{}

func (String) ToDocument(v native.Value, _ *Context) (any, error) {
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("expected string, got %T", v)
	}
	return s, nil
}

func (String) ToNative(v any, _ *Context) (Result, error) {
	if v == nil {
		return NoChange{}, nil
	}
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("expected string, got %T", v)
	}
	return Assign{Value: s}, nil
}

type Float struct{}

func (Float) ToDocument(v native.Value, _ *Context) (any, error) {
	return geometry.ToFloat(v)
}

func (Float) ToNative(v any, _ *Context) (Result, error) {
	if v == nil {
		return NoChange{}, nil
	}
	f, err := geometry.ToFloat(v)
	if err != nil {
		return nil, err
	}
	return Assign{Value: f}, nil
}

// Integer is carried as a float in documents, like every JSON number.
type Integer struct{}

func (Integer) ToDocument(v native.Value, _ *Context) (any, error) {
	return geometry.ToFloat(v)
}

func (Integer) ToNative(v any, _ *Context) (Result, error) {
	if v == nil {
		return NoChange{}, nil
	}
	f, err := geometry.ToFloat(v)
	if err != nil {
		return nil, err
	}
	if f != math.Trunc(f) {
		return nil, fmt.Errorf("expected integer, got %v", f)
	}
	return Assign{Value: int64(f)}, nil
}

// ---------------------------------------------------------------------------
// Vectors and placement
// ---------------------------------------------------------------------------

// Vector converts native.Vector to and from [x, y, z].
type Vector struct{}

func (Vector) ToDocument(v native.Value, _ *Context) (any, error) {
	vec, ok := v.(native.Vector)
	if !ok {
		return nil, fmt.Errorf("expected vector, got %T", v)
	}
	return vectorDoc(vec), nil
}

func (Vector) ToNative(v any, _ *Context) (Result, error) {
	if v == nil {
		return NoChange{}, nil
	}
	vec, err := vector(v)
	if err != nil {
		return nil, err
	}
	return Assign{Value: vec}, nil
}

// Placement flattens a native placement to {Position, Axis, Angle} with
// the angle in degrees. Native rotations are in radians.
type Placement struct{}

func (Placement) ToDocument(v native.Value, _ *Context) (any, error) {
	p, ok := v.(native.Placement)
	if !ok {
		return nil, fmt.Errorf("expected placement, got %T", v)
	}
	return map[string]any{
		"Position": vectorDoc(p.Base),
		"Axis":     vectorDoc(p.Rotation.Axis),
		"Angle":    p.Rotation.Angle * 180 / math.Pi,
	}, nil
}

func (Placement) ToNative(v any, _ *Context) (Result, error) {
	if v == nil {
		return NoChange{}, nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected placement record, got %T", v)
	}
	base, err := vector(m["Position"])
	if err != nil {
		return nil, fmt.Errorf("Position: %w", err)
	}
	axis, err := vector(m["Axis"])
	if err != nil {
		return nil, fmt.Errorf("Axis: %w", err)
	}
	var deg float64
	if raw, ok := m["Angle"]; ok && raw != nil {
		if deg, err = geometry.ToFloat(raw); err != nil {
			return nil, fmt.Errorf("Angle: %w", err)
		}
	}
	return Assign{Value: native.Placement{
		Base:     base,
		Rotation: native.Rotation{Axis: axis, Angle: deg * math.Pi / 180},
	}}, nil
}

func vectorDoc(v native.Vector) []any {
	return []any{v.X, v.Y, v.Z}
}

func vector(v any) (native.Vector, error) {
	var xs []any
	switch l := v.(type) {
	case []any:
		xs = l
	case []float64:
		for _, f := range l {
			xs = append(xs, f)
		}
	default:
		return native.Vector{}, fmt.Errorf("expected [x, y, z], got %T", v)
	}
	if len(xs) != 3 {
		return native.Vector{}, fmt.Errorf("expected 3 components, got %d", len(xs))
	}
	var c [3]float64
	for i, x := range xs {
		f, err := geometry.ToFloat(x)
		if err != nil {
			return native.Vector{}, err
		}
		c[i] = f
	}
	return native.Vector{X: c[0], Y: c[1], Z: c[2]}, nil
}

// ---------------------------------------------------------------------------
// Links
// ---------------------------------------------------------------------------

// Link converts an object reference to and from the object's name.
type Link struct{}

func (Link) ToDocument(v native.Value, _ *Context) (any, error) {
	o, ok := v.(native.Object)
	if !ok {
		return nil, fmt.Errorf("expected object link, got %T", v)
	}
	return o.Name(), nil
}

func (Link) ToNative(v any, ctx *Context) (Result, error) {
	if v == nil || v == "" {
		return Assign{Value: nil}, nil
	}
	name, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("expected object name, got %T", v)
	}
	o, err := resolve(name, ctx)
	if err != nil {
		return nil, err
	}
	return Assign{Value: o}, nil
}

// LinkList converts a list of object references to and from names.
type LinkList struct{}

func (LinkList) ToDocument(v native.Value, _ *Context) (any, error) {
	objs, ok := v.([]native.Object)
	if !ok {
		return nil, fmt.Errorf("expected object links, got %T", v)
	}
	names := make([]any, len(objs))
	for i, o := range objs {
		names[i] = o.Name()
	}
	return names, nil
}

func (LinkList) ToNative(v any, ctx *Context) (Result, error) {
	if v == nil {
		return Assign{Value: nil}, nil
	}
	var names []string
	switch l := v.(type) {
	case []any:
		for _, x := range l {
			s, ok := x.(string)
			if !ok {
				return nil, fmt.Errorf("expected object name, got %T", x)
			}
			names = append(names, s)
		}
	case []string:
		names = l
	default:
		return nil, fmt.Errorf("expected list of object names, got %T", v)
	}
	objs := make([]native.Object, 0, len(names))
	for _, name := range names {
		o, err := resolve(name, ctx)
		if err != nil {
			return nil, err
		}
		objs = append(objs, o)
	}
	return Assign{Value: objs}, nil
}

func resolve(name string, ctx *Context) (native.Object, error) {
	if ctx == nil || ctx.Doc == nil {
		return nil, fmt.Errorf("cannot resolve %q without a document", name)
	}
	o, ok := ctx.Doc.Object(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", native.ErrNoObject, name)
	}
	return o, nil
}

// ---------------------------------------------------------------------------
// Maps, shapes and geometry
// ---------------------------------------------------------------------------

// Map passes a string map through.
type Map struct{}

func (Map) ToDocument(v native.Value, _ *Context) (any, error) {
	m, ok := v.(map[string]string)
	if !ok {
		return nil, fmt.Errorf("expected string map, got %T", v)
	}
	out := make(map[string]any, len(m))
	for k, s := range m {
		out[k] = s
	}
	return out, nil
}

func (Map) ToNative(v any, _ *Context) (Result, error) {
	if v == nil {
		return NoChange{}, nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected map, got %T", v)
	}
	out := make(map[string]string, len(m))
	for k, x := range m {
		s, ok := x.(string)
		if !ok {
			return nil, fmt.Errorf("%s: expected string, got %T", k, x)
		}
		out[k] = s
	}
	return Assign{Value: out}, nil
}

// PartShape is read-only. Documents see a bounding box summary.
type PartShape struct{}

func (PartShape) ToDocument(v native.Value, _ *Context) (any, error) {
	s, ok := v.(native.Shape)
	if !ok {
		return nil, fmt.Errorf("expected shape, got %T", v)
	}
	return ShapeSummary(s), nil
}

func (PartShape) ToNative(any, *Context) (Result, error) {
	return NoChange{}, nil
}

// ShapeSummary is the document form of a computed shape.
func ShapeSummary(s native.Shape) map[string]any {
	bb := s.BoundBox
	return map[string]any{
		"Valid": s.Valid,
		"BoundBox": map[string]any{
			"XMin": bb.Min.X, "YMin": bb.Min.Y, "ZMin": bb.Min.Z,
			"XMax": bb.Max.X, "YMax": bb.Max.Y, "ZMax": bb.Max.Z,
		},
		"CenterOfMass": vectorDoc(bb.Center()),
	}
}

// GeometryList converts each element through Codecs. Equal lengths are
// updated element by element in place; an empty native list is filled
// from the incoming list. Any other length change is unsupported.
type GeometryList struct {
	Codecs *geometry.Set
}

func (g GeometryList) ToDocument(v native.Value, _ *Context) (any, error) {
	list, ok := v.([]native.Geometry)
	if !ok {
		return nil, fmt.Errorf("expected geometry list, got %T", v)
	}
	out := make([]any, 0, len(list))
	for _, geo := range list {
		c, ok := g.Codecs.Lookup(geo.GeomTypeID())
		if !ok {
			continue
		}
		doc, err := c.ToDocument(geo)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, nil
}

func (g GeometryList) ToNative(v any, ctx *Context) (Result, error) {
	if v == nil {
		return NoChange{}, nil
	}
	incoming, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("expected geometry list, got %T", v)
	}
	var current []native.Geometry
	if ctx != nil && ctx.Current != nil {
		if current, ok = ctx.Current.([]native.Geometry); !ok {
			return nil, fmt.Errorf("native value is %T, not a geometry list", ctx.Current)
		}
	}

	switch {
	case len(current) > 0 && len(current) == len(incoming):
		// Edit copies first; the list is touched only when every element
		// converts.
		for i, raw := range incoming {
			if err := g.kind(raw, current[i]); err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			if _, err := g.convert(raw, current[i].Clone()); err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
		}
		for i, raw := range incoming {
			if _, err := g.convert(raw, current[i]); err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
		}
		return NoChange{}, nil

	case len(current) == 0 && len(incoming) > 0:
		created := make([]native.Geometry, 0, len(incoming))
		for i, raw := range incoming {
			geo, err := g.convert(raw, nil)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			created = append(created, geo)
		}
		return Assign{Value: created}, nil

	case len(current) == 0 && len(incoming) == 0:
		return NoChange{}, nil

	default:
		return nil, &UnsupportedGeometryEditError{Have: len(current), Want: len(incoming)}
	}
}

// kind rejects a record whose TypeId differs from existing's.
func (g GeometryList) kind(raw any, existing native.Geometry) error {
	m, ok := raw.(map[string]any)
	if !ok {
		return fmt.Errorf("expected geometry record, got %T", raw)
	}
	id, err := geometry.TypeIDOf(m)
	if err != nil {
		return err
	}
	if id != existing.GeomTypeID() {
		return fmt.Errorf("cannot change %s to %s", existing.GeomTypeID(), id)
	}
	return nil
}

// convert returns the new element when existing is nil, otherwise
// existing after editing it.
func (g GeometryList) convert(raw any, existing native.Geometry) (native.Geometry, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected geometry record, got %T", raw)
	}
	id, err := geometry.TypeIDOf(m)
	if err != nil {
		return nil, err
	}
	c, ok := g.Codecs.Lookup(id)
	if !ok {
		return nil, fmt.Errorf("no codec for %s", id)
	}
	out, err := c.ToNative(m, existing)
	if err != nil {
		return nil, err
	}
	switch o := out.(type) {
	case geometry.Created:
		if existing != nil {
			return nil, fmt.Errorf("%s codec created an element instead of updating", id)
		}
		return o.Geometry, nil
	case geometry.Updated:
		if existing == nil {
			return nil, fmt.Errorf("%s codec reported an update without an element", id)
		}
		return existing, nil
	default:
		return nil, fmt.Errorf("unexpected outcome %T", out)
	}
}
