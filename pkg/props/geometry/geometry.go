// Package geometry converts compound geometric primitives nested inside
// geometry list properties. Each codec is keyed by the geometry's native
// type id and reports whether it edited an existing element in place or
// built a new one.
package geometry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/chazu/cadsync/pkg/native"
)

// Outcome is the result of converting a document value to native geometry.
type Outcome interface {
	outcome() // marker method restricting implementations to this package
}

// Updated means the supplied existing element was edited in place.
type Updated struct{}

// Created carries a newly built element for the caller to insert.
type Created struct {
	Geometry native.Geometry
}

func (Updated) outcome() {}
func (Created) outcome() {}

// Codec converts one geometry kind.
type Codec interface {
	TypeID() string
	ToDocument(g native.Geometry) (map[string]any, error)
	// ToNative edits existing when it is non-nil and returns Updated;
	// otherwise it returns Created with a new element.
	ToNative(v map[string]any, existing native.Geometry) (Outcome, error)
}

// Set is a first-writer-wins collection of codecs keyed by type id.
type Set struct {
	mu     sync.RWMutex
	codecs map[string]Codec
}

// NewSet returns an empty set.
func NewSet() *Set {
	return &Set{codecs: make(map[string]Codec)}
}

// Default returns a set holding the circle and line segment codecs.
func Default() *Set {
	s := NewSet()
	s.Register(Circle{})
	s.Register(LineSegment{})
	return s
}

// Register adds c unless its type id is taken, and reports whether it did.
func (s *Set) Register(c Codec) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.codecs[c.TypeID()]; ok {
		return false
	}
	s.codecs[c.TypeID()] = c
	return true
}

// Lookup returns the codec for typeID.
func (s *Set) Lookup(typeID string) (Codec, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.codecs[typeID]
	return c, ok
}

// TypeIDs returns the registered type ids, sorted.
func (s *Set) TypeIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.codecs))
	for id := range s.codecs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// TypeIDOf returns the TypeId key of a document geometry value.
func TypeIDOf(v map[string]any) (string, error) {
	id, ok := v["TypeId"].(string)
	if !ok || id == "" {
		return "", fmt.Errorf("geometry: element has no TypeId")
	}
	return id, nil
}

// ToFloat reads a document number. Documents may hold integers or floats
// depending on how the value was written.
func ToFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("expected number, got %T", v)
	}
}

func field(v map[string]any, key string) (float64, error) {
	raw, ok := v[key]
	if !ok {
		return 0, fmt.Errorf("geometry: missing %s", key)
	}
	f, err := ToFloat(raw)
	if err != nil {
		return 0, fmt.Errorf("geometry: %s: %w", key, err)
	}
	return f, nil
}

func vector(v map[string]any, x, y, z string) (native.Vector, error) {
	var out native.Vector
	var err error
	if out.X, err = field(v, x); err != nil {
		return out, err
	}
	if out.Y, err = field(v, y); err != nil {
		return out, err
	}
	if out.Z, err = field(v, z); err != nil {
		return out, err
	}
	return out, nil
}
