// Package props converts native property values to document-safe values
// and back. Converters are keyed by the native property type id in a
// first-writer-wins registry.
package props

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/chazu/cadsync/pkg/jcad"
	"github.com/chazu/cadsync/pkg/native"
	"github.com/chazu/cadsync/pkg/props/geometry"
)

// ErrUnregistered is wrapped by conversions of a type id with no handler.
var ErrUnregistered = errors.New("unregistered property type")

// Context carries what a handler may consult besides the value itself.
type Context struct {
	Records  []jcad.Record   // full incoming object list
	Doc      native.Document // native document being read or written
	Object   native.Object   // owning native object
	Property string          // property name
	Current  native.Value    // current native value, nil when unset
}

// Result is the outcome of a conversion toward the native side.
type Result interface {
	result() // marker method restricting implementations to this package
}

// Assign sets the property to Value.
type Assign struct {
	Value native.Value
}

// NoChange leaves the property as is. Read-only properties and
// properties edited in place return it.
type NoChange struct{}

func (Assign) result()   {}
func (NoChange) result() {}

// Handler converts one native property type.
type Handler interface {
	ToDocument(v native.Value, ctx *Context) (any, error)
	ToNative(v any, ctx *Context) (Result, error)
}

// ConversionError reports a failed conversion of a single property.
type ConversionError struct {
	Object   string
	Property string
	Type     string
	Err      error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("convert %s.%s (%s): %v", e.Object, e.Property, e.Type, e.Err)
}

func (e *ConversionError) Unwrap() error { return e.Err }

// UnsupportedGeometryEditError is returned when a geometry list would
// need elements inserted or removed.
type UnsupportedGeometryEditError struct {
	Have, Want int
}

func (e *UnsupportedGeometryEditError) Error() string {
	return fmt.Sprintf("geometry list length change from %d to %d is not supported", e.Have, e.Want)
}

// Registry maps native property type ids to handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Default returns a registry with every built-in handler. Geometry list
// elements are converted through codecs.
func Default(codecs *geometry.Set) *Registry {
	r := NewRegistry()
	for id, h := range Builtins(codecs) {
		r.Register(id, h)
	}
	return r
}

// Builtins returns the built-in handlers keyed by type id.
func Builtins(codecs *geometry.Set) map[string]Handler {
	return map[string]Handler{
		"App::PropertyLength":        Quantity{Unit: "mm"},
		"App::PropertyDistance":      Quantity{Unit: "mm"},
		"App::PropertyAngle":         Quantity{Unit: "deg"},
		"App::PropertyBool":          Bool{},
		"App::PropertyString":        String{},
		"App::PropertyFloat":         Float{},
		"App::PropertyInteger":       Integer{},
		"App::PropertyVector":        Vector{},
		"App::PropertyPlacement":     Placement{},
		"App::PropertyLink":          Link{},
		"App::PropertyLinkList":      LinkList{},
		"App::PropertyMap":           Map{},
		"Part::PropertyPartShape":    PartShape{},
		"Part::PropertyGeometryList": GeometryList{Codecs: codecs},
	}
}

// Register adds h for typeID unless one is registered, and reports
// whether it did.
func (r *Registry) Register(typeID string, h Handler) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.handlers[typeID]; ok {
		return false
	}
	r.handlers[typeID] = h
	return true
}

// Lookup returns the handler for typeID.
func (r *Registry) Lookup(typeID string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[typeID]
	return h, ok
}

// TypeIDs returns the registered type ids, sorted.
func (r *Registry) TypeIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.handlers))
	for id := range r.handlers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ToDocument converts a native value. ok is false when typeID has no
// handler or v is nil; the property is then absent from the document.
func (r *Registry) ToDocument(typeID string, v native.Value, ctx *Context) (doc any, ok bool, err error) {
	h, found := r.Lookup(typeID)
	if !found || v == nil {
		return nil, false, nil
	}
	doc, err = h.ToDocument(v, ctx)
	if err != nil {
		return nil, false, conversionError(typeID, ctx, err)
	}
	return doc, true, nil
}

// ToNative converts a document value. Unregistered type ids are rejected.
func (r *Registry) ToNative(typeID string, v any, ctx *Context) (Result, error) {
	h, found := r.Lookup(typeID)
	if !found {
		return nil, conversionError(typeID, ctx, ErrUnregistered)
	}
	res, err := h.ToNative(v, ctx)
	if err != nil {
		return nil, conversionError(typeID, ctx, err)
	}
	return res, nil
}

func conversionError(typeID string, ctx *Context, err error) error {
	ce := &ConversionError{Type: typeID, Err: err}
	if ctx != nil {
		ce.Property = ctx.Property
		if ctx.Object != nil {
			ce.Object = ctx.Object.Name()
		}
	}
	return ce
}
