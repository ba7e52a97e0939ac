package jcad

import "fmt"

// ReferenceError describes a broken object-name reference.
type ReferenceError struct {
	Object  string // object holding the reference
	Message string
}

func (e ReferenceError) Error() string {
	return fmt.Sprintf("object %q: %s", e.Object, e.Message)
}

// ValidateReferences checks Base, Tool and Shapes references of objs
// against the names in objs and the untyped names in others. It reports
// dangling references and, at most once, a reference cycle. It never
// mutates objs.
func ValidateReferences(objs []*Object, others ...string) []ReferenceError {
	byName := make(map[string]*Object, len(objs))
	for _, o := range objs {
		byName[o.Name] = o
	}
	exists := make(map[string]bool, len(objs)+len(others))
	for name := range byName {
		exists[name] = true
	}
	for _, name := range others {
		exists[name] = true
	}

	var errs []ReferenceError
	for _, o := range objs {
		for _, ref := range References(o.Parameters) {
			if !exists[ref] {
				errs = append(errs, ReferenceError{
					Object:  o.Name,
					Message: fmt.Sprintf("reference %q does not exist", ref),
				})
			}
		}
	}
	return append(errs, validateAcyclic(objs, byName)...)
}

// validateAcyclic walks references depth first with 3-color marking.
// Reaching a gray object means the current path loops back on itself.
func validateAcyclic(objs []*Object, byName map[string]*Object) []ReferenceError {
	const (
		white = iota
		gray
		black
	)

	color := make(map[string]int)
	var errs []ReferenceError

	var visit func(name string) bool
	visit = func(name string) bool {
		switch color[name] {
		case black:
			return false
		case gray:
			errs = append(errs, ReferenceError{
				Object:  name,
				Message: "object is part of a reference cycle",
			})
			return true
		}

		color[name] = gray
		o, ok := byName[name]
		if !ok {
			// Dangling; reported separately.
			color[name] = black
			return false
		}
		for _, ref := range References(o.Parameters) {
			if visit(ref) {
				return true
			}
		}
		color[name] = black
		return false
	}

	for _, o := range objs {
		if color[o.Name] == white && visit(o.Name) {
			break
		}
	}
	return errs
}
