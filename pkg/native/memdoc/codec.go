package memdoc

import (
	"fmt"

	json "github.com/goccy/go-json"

	"github.com/chazu/cadsync/pkg/native"
)

const formatVersion = 1

// On-disk layout. Objects and their properties keep document order; maps
// are encoded with sorted keys, so equal documents encode to equal bytes.
type file struct {
	Format  int                  `json:"format"`
	Meta    map[string]string    `json:"meta"`
	Gui     map[string]guiRecord `json:"gui"`
	Objects []objectRecord       `json:"objects"`
}

type guiRecord struct {
	ShapeColor *native.Color `json:"shapeColor,omitempty"`
	Visibility *bool         `json:"visibility,omitempty"`
}

type objectRecord struct {
	Name       string       `json:"name"`
	Type       string       `json:"type"`
	Visible    bool         `json:"visible"`
	Properties []propRecord `json:"properties"`
}

type propRecord struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

// Serialize encodes the whole document.
func (d *Document) Serialize() ([]byte, error) {
	f := file{
		Format:  formatVersion,
		Meta:    d.meta,
		Gui:     make(map[string]guiRecord, len(d.gui)),
		Objects: make([]objectRecord, 0, len(d.objects)),
	}
	for name, g := range d.gui {
		f.Gui[name] = guiRecord{ShapeColor: g.ShapeColor, Visibility: g.Visibility}
	}
	for _, o := range d.objects {
		rec := objectRecord{Name: o.name, Type: o.typeID, Visible: o.visible}
		for _, p := range o.props {
			v, err := encodeValue(p.typeID, p.value)
			if err != nil {
				return nil, fmt.Errorf("memdoc: serialize %s.%s: %w", o.name, p.name, err)
			}
			rec.Properties = append(rec.Properties, propRecord{Name: p.name, Value: v})
		}
		f.Objects = append(f.Objects, rec)
	}
	return json.Marshal(f)
}

func (d *Document) decode(data []byte) error {
	var f file
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	if f.Format != formatVersion {
		return fmt.Errorf("unsupported format %d", f.Format)
	}

	type pendingLink struct {
		prop  *property
		names []string
		list  bool
	}
	var links []pendingLink

	for _, rec := range f.Objects {
		obj, err := d.AddObject(rec.Type, rec.Name)
		if err != nil {
			return err
		}
		o := obj.(*Object)
		o.visible = rec.Visible
		for _, pr := range rec.Properties {
			p, ok := o.prop(pr.Name)
			if !ok {
				continue
			}
			switch p.typeID {
			case TypeLink:
				if name, ok := pr.Value.(string); ok {
					links = append(links, pendingLink{prop: p, names: []string{name}})
				}
				continue
			case TypeLinkList:
				names, err := stringList(pr.Value)
				if err != nil {
					return fmt.Errorf("%s.%s: %w", rec.Name, pr.Name, err)
				}
				if names == nil {
					continue
				}
				links = append(links, pendingLink{prop: p, names: names, list: true})
				continue
			}
			v, err := decodeValue(p.typeID, pr.Value)
			if err != nil {
				return fmt.Errorf("%s.%s: %w", rec.Name, pr.Name, err)
			}
			p.value = v
		}
	}

	for _, l := range links {
		objs := make([]native.Object, 0, len(l.names))
		for _, name := range l.names {
			target, ok := d.lookup(name)
			if !ok {
				return fmt.Errorf("link to missing object %q", name)
			}
			objs = append(objs, target)
		}
		if l.list {
			l.prop.value = objs
		} else {
			l.prop.value = objs[0]
		}
	}

	for k, v := range f.Meta {
		d.meta[k] = v
	}
	for name, g := range f.Gui {
		d.gui[name] = native.GuiEntry{ShapeColor: g.ShapeColor, Visibility: g.Visibility}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Values
// ---------------------------------------------------------------------------

func encodeValue(typeID string, v native.Value) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch x := v.(type) {
	case native.Quantity:
		return map[string]any{"value": x.Value, "unit": x.Unit}, nil
	case bool, string, float64, int64:
		return x, nil
	case native.Vector:
		return vec(x), nil
	case native.Placement:
		return map[string]any{
			"base":  vec(x.Base),
			"axis":  vec(x.Rotation.Axis),
			"angle": x.Rotation.Angle,
		}, nil
	case native.Object:
		return x.Name(), nil
	case []native.Object:
		names := make([]string, len(x))
		for i, o := range x {
			names[i] = o.Name()
		}
		return names, nil
	case map[string]string:
		return x, nil
	case native.Shape:
		return map[string]any{
			"valid": x.Valid,
			"min":   vec(x.BoundBox.Min),
			"max":   vec(x.BoundBox.Max),
		}, nil
	case []native.Geometry:
		out := make([]any, 0, len(x))
		for _, g := range x {
			e, err := encodeGeometry(g)
			if err != nil {
				return nil, err
			}
			out = append(out, e)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("cannot encode %T as %s", v, typeID)
	}
}

func encodeGeometry(g native.Geometry) (map[string]any, error) {
	switch x := g.(type) {
	case *native.Circle:
		return map[string]any{
			"type":    x.GeomTypeID(),
			"center":  vec(x.Center),
			"axis":    vec(x.Axis),
			"angleXU": x.AngleXU,
			"radius":  x.Radius,
		}, nil
	case *native.LineSegment:
		return map[string]any{
			"type":  x.GeomTypeID(),
			"start": vec(x.Start),
			"end":   vec(x.End),
		}, nil
	default:
		return nil, fmt.Errorf("cannot encode geometry %T", g)
	}
}

func decodeValue(typeID string, raw any) (native.Value, error) {
	if raw == nil {
		if typeID == TypeGeometryList {
			return []native.Geometry(nil), nil
		}
		return nil, nil
	}
	switch typeID {
	case TypeLength, TypeDistance, TypeAngle:
		m, err := record(raw)
		if err != nil {
			return nil, err
		}
		value, err := number(m["value"])
		if err != nil {
			return nil, err
		}
		unit, _ := m["unit"].(string)
		return native.Quantity{Value: value, Unit: unit}, nil
	case TypeBool, TypeString:
		return raw, nil
	case TypeFloat:
		return number(raw)
	case TypeInteger:
		f, err := number(raw)
		return int64(f), err
	case TypeVector:
		return unvec(raw)
	case TypePlacement:
		m, err := record(raw)
		if err != nil {
			return nil, err
		}
		base, err := unvec(m["base"])
		if err != nil {
			return nil, err
		}
		axis, err := unvec(m["axis"])
		if err != nil {
			return nil, err
		}
		angle, err := number(m["angle"])
		if err != nil {
			return nil, err
		}
		return native.Placement{Base: base, Rotation: native.Rotation{Axis: axis, Angle: angle}}, nil
	case TypeMap:
		m, err := record(raw)
		if err != nil {
			return nil, err
		}
		out := make(map[string]string, len(m))
		for k, v := range m {
			s, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("map value %q is %T", k, v)
			}
			out[k] = s
		}
		return out, nil
	case TypePartShape:
		m, err := record(raw)
		if err != nil {
			return nil, err
		}
		valid, _ := m["valid"].(bool)
		lo, err := unvec(m["min"])
		if err != nil {
			return nil, err
		}
		hi, err := unvec(m["max"])
		if err != nil {
			return nil, err
		}
		return native.Shape{Valid: valid, BoundBox: native.BoundBox{Min: lo, Max: hi}}, nil
	case TypeGeometryList:
		list, ok := raw.([]any)
		if !ok {
			return nil, fmt.Errorf("geometry list is %T", raw)
		}
		out := make([]native.Geometry, 0, len(list))
		for _, e := range list {
			g, err := decodeGeometry(e)
			if err != nil {
				return nil, err
			}
			out = append(out, g)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unknown property type %s", typeID)
	}
}

func decodeGeometry(raw any) (native.Geometry, error) {
	m, err := record(raw)
	if err != nil {
		return nil, err
	}
	switch m["type"] {
	case "Part::GeomCircle":
		c := &native.Circle{}
		if c.Center, err = unvec(m["center"]); err != nil {
			return nil, err
		}
		if c.Axis, err = unvec(m["axis"]); err != nil {
			return nil, err
		}
		if c.AngleXU, err = number(m["angleXU"]); err != nil {
			return nil, err
		}
		if c.Radius, err = number(m["radius"]); err != nil {
			return nil, err
		}
		return c, nil
	case "Part::GeomLineSegment":
		l := &native.LineSegment{}
		if l.Start, err = unvec(m["start"]); err != nil {
			return nil, err
		}
		if l.End, err = unvec(m["end"]); err != nil {
			return nil, err
		}
		return l, nil
	default:
		return nil, fmt.Errorf("unknown geometry %v", m["type"])
	}
}

func vec(v native.Vector) []float64 { return []float64{v.X, v.Y, v.Z} }

func unvec(raw any) (native.Vector, error) {
	list, ok := raw.([]any)
	if !ok || len(list) != 3 {
		return native.Vector{}, fmt.Errorf("expected 3-vector, got %v", raw)
	}
	var c [3]float64
	for i, x := range list {
		f, err := number(x)
		if err != nil {
			return native.Vector{}, err
		}
		c[i] = f
	}
	return native.Vector{X: c[0], Y: c[1], Z: c[2]}, nil
}

func number(raw any) (float64, error) {
	f, ok := raw.(float64)
	if !ok {
		return 0, fmt.Errorf("expected number, got %T", raw)
	}
	return f, nil
}

func record(raw any) (map[string]any, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected object, got %T", raw)
	}
	return m, nil
}

func stringList(raw any) ([]string, error) {
	if raw == nil {
		return nil, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("expected name list, got %T", raw)
	}
	out := make([]string, 0, len(list))
	for _, x := range list {
		s, ok := x.(string)
		if !ok {
			return nil, fmt.Errorf("expected name, got %T", x)
		}
		out = append(out, s)
	}
	return out, nil
}
