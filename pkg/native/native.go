// Package native defines the contract of a native CAD kernel as consumed
// by the reconciliation engine, and the value types its typed properties
// hold. The engine never inspects geometry; it only moves property values
// through the codec registry and adds or removes objects by name.
package native

import "errors"

// ErrNoObject is returned when a named object does not exist.
var ErrNoObject = errors.New("native: no such object")

// Kernel opens native documents.
type Kernel interface {
	// Open reads the native file at path.
	Open(path string) (Document, error)
	// New returns an empty document.
	New() Document
}

// Document is an open native document.
type Document interface {
	Objects() []Object
	Object(name string) (Object, bool)
	AddObject(typeID, name string) (Object, error)
	RemoveObject(name string) error

	// Meta is the document-level string metadata.
	Meta() map[string]string
	SetMeta(meta map[string]string)

	// GuiData is per-object display data keyed by object name.
	GuiData() map[string]GuiEntry
	SetGuiData(data map[string]GuiEntry)

	// Recompute rebuilds derived properties. Per-object failures are
	// returned together; the document stays usable.
	Recompute() error
	Serialize() ([]byte, error)
}

// Object is one native object with typed properties.
type Object interface {
	Name() string
	TypeID() string
	Visible() bool
	SetVisible(v bool)

	// Properties lists property names in declaration order.
	Properties() []string
	// PropertyType returns the type id of prop, or "" if prop is not
	// declared on this object.
	PropertyType(prop string) string
	Property(prop string) (Value, bool)
	SetProperty(prop string, v Value) error
}

// GuiEntry is the display data of one object. A nil field is unset.
type GuiEntry struct {
	ShapeColor *Color
	Visibility *bool
}

// Color is an RGB triple in [0,1].
type Color [3]float64
