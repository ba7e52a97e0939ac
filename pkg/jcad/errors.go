package jcad

import (
	"fmt"
	"strings"
)

// FieldError describes one parameter that failed validation.
type FieldError struct {
	Field  string // dotted path, e.g. "Placement.Axis"
	Reason string
}

func (e FieldError) String() string {
	return e.Field + ": " + e.Reason
}

// ValidationError is returned when a raw record does not match its
// shape's schema. No object is constructed when it is returned.
type ValidationError struct {
	Name   string
	Shape  Shape
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.String()
	}
	return fmt.Sprintf("invalid %s %q: %s", e.Shape, e.Name, strings.Join(parts, "; "))
}

// Has reports whether field failed validation.
func (e *ValidationError) Has(field string) bool {
	for _, f := range e.Fields {
		if f.Field == field {
			return true
		}
	}
	return false
}

// UnknownShapeError is returned when no schema is registered for a shape.
type UnknownShapeError struct {
	Shape Shape
}

func (e *UnknownShapeError) Error() string {
	return fmt.Sprintf("unknown shape %q", string(e.Shape))
}
