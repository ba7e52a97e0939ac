package jcad

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	json "github.com/goccy/go-json"
)

// Schema describes the parameter record of one shape.
type Schema interface {
	Shape() Shape
	// Fields returns the declared top-level parameter names.
	Fields() []string
	decode(raw map[string]any) (Parameters, []FieldError)
}

type schema[P Parameters] struct {
	shape    Shape
	defaults func() P
	fields   []string
}

// NewSchema builds a schema for the parameter type P. defaults returns the
// value used for fields missing from a raw record.
func NewSchema[P Parameters](defaults func() P) Schema {
	return &schema[P]{
		shape:    defaults().Shape(),
		defaults: defaults,
		fields:   jsonFields(reflect.TypeOf(defaults())),
	}
}

func (s *schema[P]) Shape() Shape     { return s.shape }
func (s *schema[P]) Fields() []string { return append([]string(nil), s.fields...) }

// decode projects raw onto P one declared field at a time so that every
// mistyped field is reported, not only the first.
func (s *schema[P]) decode(raw map[string]any) (Parameters, []FieldError) {
	p := s.defaults()
	var errs []FieldError
	for _, f := range s.fields {
		v, ok := raw[f]
		if !ok || v == nil {
			continue
		}
		b, err := json.Marshal(map[string]any{f: v})
		if err != nil {
			errs = append(errs, FieldError{Field: f, Reason: err.Error()})
			continue
		}
		if err := json.Unmarshal(b, &p); err != nil {
			errs = append(errs, FieldError{Field: f, Reason: typeReason(err)})
		}
	}
	return p, errs
}

func typeReason(err error) string {
	var ute *json.UnmarshalTypeError
	if errors.As(err, &ute) {
		return fmt.Sprintf("expected %s, got %s", ute.Type, ute.Value)
	}
	return err.Error()
}

// jsonFields lists the JSON names of t's fields, flattening untagged
// embedded structs.
func jsonFields(t reflect.Type) []string {
	var out []string
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag := f.Tag.Get("json")
		if f.Anonymous && tag == "" && f.Type.Kind() == reflect.Struct {
			out = append(out, jsonFields(f.Type)...)
			continue
		}
		if !f.IsExported() {
			continue
		}
		name := strings.SplitN(tag, ",", 2)[0]
		if name == "-" {
			continue
		}
		if name == "" {
			name = f.Name
		}
		out = append(out, name)
	}
	return out
}

// Factory creates validated objects from raw records. Registration is one
// schema per shape; the first registration wins.
type Factory struct {
	mu       sync.RWMutex
	schemas  map[Shape]Schema
	order    []Shape
	validate *validator.Validate
}

// NewFactory returns a factory with no schemas.
func NewFactory() *Factory {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Factory{
		schemas:  make(map[Shape]Schema),
		validate: v,
	}
}

// DefaultFactory returns a factory with every built-in shape registered.
func DefaultFactory() *Factory {
	f := NewFactory()
	for _, s := range BuiltinSchemas() {
		f.Register(s)
	}
	return f
}

// BuiltinSchemas returns the schemas of the built-in shapes with the
// defaults of the editing API.
func BuiltinSchemas() []Schema {
	return []Schema{
		NewSchema(func() Box {
			return Box{Length: 1, Width: 1, Height: 1, Common: defaultCommon()}
		}),
		NewSchema(func() Cone {
			return Cone{Radius1: 1, Radius2: 0.5, Height: 1, Angle: 360, Common: defaultCommon()}
		}),
		NewSchema(func() Cylinder {
			return Cylinder{Radius: 1, Height: 1, Angle: 360, Common: defaultCommon()}
		}),
		NewSchema(func() Sphere {
			return Sphere{Radius: 5, Angle1: -90, Angle2: 90, Angle3: 360, Common: defaultCommon()}
		}),
		NewSchema(func() Torus {
			return Torus{Radius1: 10, Radius2: 2, Angle1: -180, Angle2: 180, Angle3: 360, Common: defaultCommon()}
		}),
		NewSchema(func() Cut { return Cut{Common: defaultCommon()} }),
		NewSchema(func() Fuse { return Fuse{Common: defaultCommon()} }),
		NewSchema(func() Intersection { return Intersection{Common: defaultCommon()} }),
		NewSchema(func() Fillet { return Fillet{Radius: 0.1, Common: defaultCommon()} }),
		NewSchema(func() Chamfer { return Chamfer{Dist: 0.1, Common: defaultCommon()} }),
		NewSchema(func() Extrusion {
			return Extrusion{Dir: []float64{0, 0, 1}, LengthFwd: 10, Solid: false, Common: defaultCommon()}
		}),
		NewSchema(func() Any { return Any{Common: defaultCommon()} }),
	}
}

// Register adds s unless a schema for the same shape exists. It reports
// whether s was added.
func (f *Factory) Register(s Schema) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.schemas[s.Shape()]; exists {
		return false
	}
	f.schemas[s.Shape()] = s
	f.order = append(f.order, s.Shape())
	return true
}

// Schema returns the schema registered for shape.
func (f *Factory) Schema(shape Shape) (Schema, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	s, ok := f.schemas[shape]
	return s, ok
}

// Shapes returns the registered shapes in registration order.
func (f *Factory) Shapes() []Shape {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]Shape(nil), f.order...)
}

// Create validates r against its shape's schema and returns the object.
// Unknown parameters are dropped and missing ones take schema defaults.
// It returns *UnknownShapeError or *ValidationError on failure.
func (f *Factory) Create(r Record) (*Object, error) {
	shape := Shape(r.Shape)
	s, ok := f.Schema(shape)
	if !ok {
		return nil, &UnknownShapeError{Shape: shape}
	}

	verr := &ValidationError{Name: r.Name, Shape: shape}
	if r.Name == "" {
		verr.Fields = append(verr.Fields, FieldError{Field: "name", Reason: "is required"})
	}
	p, typeErrs := s.decode(r.Parameters)
	verr.Fields = append(verr.Fields, typeErrs...)
	if len(typeErrs) == 0 {
		verr.Fields = append(verr.Fields, f.check(p)...)
	}
	if len(verr.Fields) > 0 {
		return nil, verr
	}

	return &Object{
		Name:       r.Name,
		Shape:      shape,
		Parameters: p,
		Visible:    r.Visible,
		Metadata:   cloneMap(r.Metadata),
	}, nil
}

// Normalize validates r and returns it with parameters reduced to the
// schema's declared fields.
func (f *Factory) Normalize(r Record) (Record, error) {
	o, err := f.Create(r)
	if err != nil {
		return Record{}, err
	}
	return o.Record()
}

func (f *Factory) check(p Parameters) []FieldError {
	err := f.validate.Struct(p)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []FieldError{{Field: "parameters", Reason: err.Error()}}
	}
	out := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, FieldError{Field: fieldPath(fe.Namespace()), Reason: reason(fe)})
	}
	return out
}

// fieldPath strips the root struct name and embedded Common segments
// from a validator namespace.
func fieldPath(ns string) string {
	parts := strings.Split(ns, ".")
	if len(parts) > 0 {
		parts = parts[1:]
	}
	kept := parts[:0]
	for _, p := range parts {
		if p != "Common" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, ".")
}

func reason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must be at least " + fe.Param()
	case "lte":
		return "must be at most " + fe.Param()
	case "len":
		return "must have " + fe.Param() + " entries"
	case "min":
		return "must have at least " + fe.Param() + " entries"
	default:
		return "failed " + fe.Tag()
	}
}
