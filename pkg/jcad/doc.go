// Package jcad defines the CAD scene objects stored in a shared document.
// An object is a named primitive or operation whose parameters form a
// closed sum type keyed by the object's shape tag. The Factory projects raw
// document records onto those typed parameters and validates them.
package jcad
