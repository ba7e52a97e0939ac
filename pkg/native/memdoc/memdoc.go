// Package memdoc is an in-memory reference implementation of the native
// document contract. Objects carry typed property tables per type id,
// recompute derives bounding boxes through a geometry kernel, and the file
// format is a deterministic JSON encoding.
package memdoc

import (
	"fmt"
	"os"
	"slices"

	"github.com/chazu/cadsync/pkg/kernel"
	"github.com/chazu/cadsync/pkg/native"
)

// Compile-time interface checks.
var (
	_ native.Kernel   = (*Kernel)(nil)
	_ native.Document = (*Document)(nil)
	_ native.Object   = (*Object)(nil)
)

// Kernel opens memdoc files. Recompute uses the geometry kernel geo.
type Kernel struct {
	geo kernel.Kernel
}

// NewKernel returns a Kernel whose documents recompute with geo. A nil geo
// leaves computed shapes invalid.
func NewKernel(geo kernel.Kernel) *Kernel {
	return &Kernel{geo: geo}
}

// Open reads the document stored at path. An empty file is an empty
// document.
func (k *Kernel) Open(path string) (native.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("memdoc: open: %w", err)
	}
	doc := New(k.geo)
	if len(data) == 0 {
		return doc, nil
	}
	if err := doc.decode(data); err != nil {
		return nil, fmt.Errorf("memdoc: open %s: %w", path, err)
	}
	return doc, nil
}

func (k *Kernel) New() native.Document {
	return New(k.geo)
}

// Document is an in-memory native document.
type Document struct {
	geo     kernel.Kernel
	objects []*Object
	meta    map[string]string
	gui     map[string]native.GuiEntry
}

// New returns an empty document.
func New(geo kernel.Kernel) *Document {
	return &Document{
		geo:  geo,
		meta: map[string]string{},
		gui:  map[string]native.GuiEntry{},
	}
}

func (d *Document) Objects() []native.Object {
	out := make([]native.Object, len(d.objects))
	for i, o := range d.objects {
		out[i] = o
	}
	return out
}

func (d *Document) Object(name string) (native.Object, bool) {
	o, ok := d.lookup(name)
	if !ok {
		return nil, false
	}
	return o, true
}

func (d *Document) lookup(name string) (*Object, bool) {
	for _, o := range d.objects {
		if o.name == name {
			return o, true
		}
	}
	return nil, false
}

// AddObject creates an object of typeID with the type's default property
// values.
func (d *Document) AddObject(typeID, name string) (native.Object, error) {
	defs, ok := objectTypes[typeID]
	if !ok {
		return nil, fmt.Errorf("memdoc: unknown object type %q", typeID)
	}
	if name == "" {
		return nil, fmt.Errorf("memdoc: object name is empty")
	}
	if _, exists := d.lookup(name); exists {
		return nil, fmt.Errorf("memdoc: object %q already exists", name)
	}
	o := &Object{doc: d, name: name, typeID: typeID, visible: true}
	for _, def := range defs {
		o.props = append(o.props, &property{name: def.name, typeID: def.typeID, value: def.def()})
	}
	o.set("Label", name)
	d.objects = append(d.objects, o)
	return o, nil
}

// RemoveObject deletes the named object and clears links to it.
func (d *Document) RemoveObject(name string) error {
	i := slices.IndexFunc(d.objects, func(o *Object) bool { return o.name == name })
	if i < 0 {
		return fmt.Errorf("memdoc: remove %q: %w", name, native.ErrNoObject)
	}
	gone := d.objects[i]
	d.objects = slices.Delete(d.objects, i, i+1)
	delete(d.gui, name)

	for _, o := range d.objects {
		for _, p := range o.props {
			switch v := p.value.(type) {
			case native.Object:
				if v == native.Object(gone) {
					p.value = nil
				}
			case []native.Object:
				p.value = slices.DeleteFunc(v, func(l native.Object) bool { return l == native.Object(gone) })
			}
		}
	}
	return nil
}

func (d *Document) Meta() map[string]string {
	out := make(map[string]string, len(d.meta))
	for k, v := range d.meta {
		out[k] = v
	}
	return out
}

func (d *Document) SetMeta(meta map[string]string) {
	d.meta = make(map[string]string, len(meta))
	for k, v := range meta {
		d.meta[k] = v
	}
}

func (d *Document) GuiData() map[string]native.GuiEntry {
	out := make(map[string]native.GuiEntry, len(d.gui))
	for k, v := range d.gui {
		out[k] = v
	}
	return out
}

// SetGuiData replaces the display data. Entries carrying a visibility
// also set the named object's visibility.
func (d *Document) SetGuiData(data map[string]native.GuiEntry) {
	d.gui = make(map[string]native.GuiEntry, len(data))
	for k, v := range data {
		d.gui[k] = v
		if o, ok := d.lookup(k); ok && v.Visibility != nil {
			o.visible = *v.Visibility
		}
	}
}

// ---------------------------------------------------------------------------
// Objects
// ---------------------------------------------------------------------------

type property struct {
	name   string
	typeID string
	value  native.Value
}

// Object is a native object of a Document.
type Object struct {
	doc     *Document
	name    string
	typeID  string
	visible bool
	props   []*property
}

func (o *Object) Name() string      { return o.name }
func (o *Object) TypeID() string    { return o.typeID }
func (o *Object) Visible() bool     { return o.visible }
func (o *Object) SetVisible(v bool) { o.visible = v }

func (o *Object) Properties() []string {
	names := make([]string, len(o.props))
	for i, p := range o.props {
		names[i] = p.name
	}
	return names
}

func (o *Object) prop(name string) (*property, bool) {
	for _, p := range o.props {
		if p.name == name {
			return p, true
		}
	}
	return nil, false
}

func (o *Object) PropertyType(name string) string {
	if p, ok := o.prop(name); ok {
		return p.typeID
	}
	return ""
}

// Property returns the stored value. Geometry list elements are shared
// with the document, so editing them edits the document.
func (o *Object) Property(name string) (native.Value, bool) {
	p, ok := o.prop(name)
	if !ok {
		return nil, false
	}
	return p.value, true
}

func (o *Object) SetProperty(name string, v native.Value) error {
	p, ok := o.prop(name)
	if !ok {
		return fmt.Errorf("memdoc: %s has no property %q", o.name, name)
	}
	stored, err := o.doc.coerce(p.typeID, v)
	if err != nil {
		return fmt.Errorf("memdoc: %s.%s: %w", o.name, name, err)
	}
	p.value = stored
	return nil
}

// set bypasses type checks; it is used for values the document derives
// itself.
func (o *Object) set(name string, v native.Value) {
	if p, ok := o.prop(name); ok {
		p.value = v
	}
}
