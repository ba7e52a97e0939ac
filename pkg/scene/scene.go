// Package scene is the editing API over a shared document: named shape
// constructors, boolean operations, display options and annotations.
// Every call is one transaction; a failed call changes nothing.
package scene

import (
	"errors"
	"fmt"
	"slices"

	"github.com/rs/zerolog"

	"github.com/chazu/cadsync/pkg/env"
	"github.com/chazu/cadsync/pkg/jcad"
	"github.com/chazu/cadsync/pkg/shared"
)

// OriginScene tags transactions made through a Scene.
const OriginScene = "scene"

// ErrOperands is returned when a default operand is needed but the
// document holds too few objects.
var ErrOperands = errors.New("scene: not enough objects for default operands")

// DuplicateNameError reports an object name that is already taken.
type DuplicateNameError struct {
	Name string
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("scene: object %q already exists", e.Name)
}

func (e *DuplicateNameError) Unwrap() error { return shared.ErrDuplicateName }

// Scene edits one shared document.
type Scene struct {
	doc     *shared.Document
	factory *jcad.Factory
	log     zerolog.Logger
}

func New(doc *shared.Document, e *env.Env) *Scene {
	return &Scene{
		doc:     doc,
		factory: e.Factory,
		log:     e.Log.With().Str("component", "scene").Logger(),
	}
}

// Document returns the edited document.
func (s *Scene) Document() *shared.Document { return s.doc }

// Objects returns the object names in document order.
func (s *Scene) Objects() ([]string, error) {
	records, err := s.doc.Objects()
	if err != nil {
		return nil, err
	}
	names := make([]string, len(records))
	for i, r := range records {
		names[i] = r.Name
	}
	return names, nil
}

// Get returns the named object, validated against its schema.
func (s *Scene) Get(name string) (*jcad.Object, error) {
	r, err := s.doc.Object(name)
	if err != nil {
		return nil, err
	}
	return s.factory.Create(r)
}

// Add inserts obj as a visible object.
func (s *Scene) Add(obj *jcad.Object) error {
	r, err := obj.Record()
	if err != nil {
		return err
	}
	r.Visible = true
	return s.transact(func(tx *shared.Tx) error { return s.insert(tx, r) })
}

// Remove deletes the named object.
func (s *Scene) Remove(name string) error {
	return s.transact(func(tx *shared.Tx) error { return tx.RemoveObject(name) })
}

// SetVisible shows or hides the named object.
func (s *Scene) SetVisible(name string, visible bool) error {
	return s.transact(func(tx *shared.Tx) error { return tx.SetVisible(name, visible) })
}

// ---------------------------------------------------------------------------
// Shapes
// ---------------------------------------------------------------------------

// AddShape adds an object of the given shape and returns its name. An
// empty name is generated from the shape ("Box 1"). Parameters missing
// from params take the schema defaults.
func (s *Scene) AddShape(shape jcad.Shape, name string, params map[string]any) (string, error) {
	err := s.transact(func(tx *shared.Tx) error {
		var err error
		name, err = s.add(tx, shape, name, params)
		return err
	})
	return name, err
}

func (s *Scene) AddBox(name string, params map[string]any) (string, error) {
	return s.AddShape(jcad.ShapeBox, name, params)
}

func (s *Scene) AddCone(name string, params map[string]any) (string, error) {
	return s.AddShape(jcad.ShapeCone, name, params)
}

func (s *Scene) AddCylinder(name string, params map[string]any) (string, error) {
	return s.AddShape(jcad.ShapeCylinder, name, params)
}

func (s *Scene) AddSphere(name string, params map[string]any) (string, error) {
	return s.AddShape(jcad.ShapeSphere, name, params)
}

func (s *Scene) AddTorus(name string, params map[string]any) (string, error) {
	return s.AddShape(jcad.ShapeTorus, name, params)
}

// AddAny adds an opaque shape whose content the native kernel interprets.
func (s *Scene) AddAny(name, content, contentType string, params map[string]any) (string, error) {
	p := with(params, map[string]any{"Content": content, "Type": contentType})
	return s.AddShape(jcad.ShapeAny, name, p)
}

// ---------------------------------------------------------------------------
// Operations. Operands are hidden once the operation is added.
// ---------------------------------------------------------------------------

// Cut subtracts tool from base. Empty operands default to the last two
// objects, base first.
func (s *Scene) Cut(name, base, tool string, params map[string]any) (string, error) {
	err := s.transact(func(tx *shared.Tx) error {
		ops, err := operands(tx, []string{base, tool})
		if err != nil {
			return err
		}
		p := with(params, map[string]any{"Base": ops[0], "Tool": ops[1]})
		if name, err = s.add(tx, jcad.ShapeCut, name, p); err != nil {
			return err
		}
		return hide(tx, ops)
	})
	return name, err
}

// Fuse unites shapes. With fewer than two names the last two objects
// are used.
func (s *Scene) Fuse(name string, shapes []string, params map[string]any) (string, error) {
	return s.multi(jcad.ShapeFuse, name, shapes, params)
}

// Intersect keeps the common volume of shapes, with the operand defaults
// of Fuse.
func (s *Scene) Intersect(name string, shapes []string, params map[string]any) (string, error) {
	return s.multi(jcad.ShapeIntersection, name, shapes, params)
}

func (s *Scene) multi(shape jcad.Shape, name string, shapes []string, params map[string]any) (string, error) {
	err := s.transact(func(tx *shared.Tx) error {
		want := slices.Clone(shapes)
		if len(want) < 2 {
			want = append(want, make([]string, 2-len(want))...)
		}
		ops, err := operands(tx, want)
		if err != nil {
			return err
		}
		p := with(params, map[string]any{"Shapes": ops})
		if name, err = s.add(tx, shape, name, p); err != nil {
			return err
		}
		return hide(tx, ops)
	})
	return name, err
}

// Fillet rounds an edge of base, the last object when empty.
func (s *Scene) Fillet(name, base string, params map[string]any) (string, error) {
	return s.derive(jcad.ShapeFillet, name, base, params)
}

// Chamfer bevels an edge of base, the last object when empty.
func (s *Scene) Chamfer(name, base string, params map[string]any) (string, error) {
	return s.derive(jcad.ShapeChamfer, name, base, params)
}

// Extrude sweeps base, the last object when empty, along Dir.
func (s *Scene) Extrude(name, base string, params map[string]any) (string, error) {
	return s.derive(jcad.ShapeExtrusion, name, base, params)
}

func (s *Scene) derive(shape jcad.Shape, name, base string, params map[string]any) (string, error) {
	err := s.transact(func(tx *shared.Tx) error {
		ops, err := operands(tx, []string{base})
		if err != nil {
			return err
		}
		p := with(params, map[string]any{"Base": ops[0]})
		if name, err = s.add(tx, shape, name, p); err != nil {
			return err
		}
		return hide(tx, ops)
	})
	return name, err
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func (s *Scene) transact(fn func(tx *shared.Tx) error) error {
	return s.doc.Transact(OriginScene, fn)
}

// add validates a new object and appends it, naming it when name is
// empty.
func (s *Scene) add(tx *shared.Tx, shape jcad.Shape, name string, params map[string]any) (string, error) {
	if name == "" {
		names, err := tx.Names()
		if err != nil {
			return "", err
		}
		name = newName(names, shape.Label())
	}
	obj, err := s.factory.Create(jcad.Record{Name: name, Shape: string(shape), Visible: true, Parameters: params})
	if err != nil {
		return "", err
	}
	r, err := obj.Record()
	if err != nil {
		return "", err
	}
	if err := s.insert(tx, r); err != nil {
		return "", err
	}
	s.log.Debug().Str("object", name).Str("shape", string(shape)).Msg("added")
	return name, nil
}

func (s *Scene) insert(tx *shared.Tx, r jcad.Record) error {
	err := tx.AddObject(r)
	if errors.Is(err, shared.ErrDuplicateName) {
		return &DuplicateNameError{Name: r.Name}
	}
	return err
}

// newName returns the first free "<label> N", counting from 1.
func newName(taken []string, label string) string {
	for n := 1; ; n++ {
		name := fmt.Sprintf("%s %d", label, n)
		if !slices.Contains(taken, name) {
			return name
		}
	}
}

// operands resolves operand names. Empty entries take the last objects
// in order: with two entries the second-to-last and last, with one the
// last.
func operands(tx *shared.Tx, names []string) ([]string, error) {
	all, err := tx.Names()
	if err != nil {
		return nil, err
	}
	out := make([]string, len(names))
	for i, n := range names {
		if n != "" {
			if !slices.Contains(all, n) {
				return nil, fmt.Errorf("%w: %q", shared.ErrNotFound, n)
			}
			out[i] = n
			continue
		}
		idx := len(all) - len(names) + i
		if idx < 0 {
			return nil, ErrOperands
		}
		out[i] = all[idx]
	}
	return out, nil
}

func hide(tx *shared.Tx, names []string) error {
	for _, n := range names {
		if err := tx.SetVisible(n, false); err != nil {
			return err
		}
	}
	return nil
}

// with returns params overlaid with fixed. params is not modified.
func with(params, fixed map[string]any) map[string]any {
	out := make(map[string]any, len(params)+len(fixed))
	for k, v := range params {
		out[k] = v
	}
	for k, v := range fixed {
		out[k] = v
	}
	return out
}
