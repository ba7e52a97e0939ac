package geometry

import (
	"fmt"

	"github.com/chazu/cadsync/pkg/native"
)

// LineSegment converts Part::GeomLineSegment.
type LineSegment struct{}

func (LineSegment) TypeID() string { return (*native.LineSegment)(nil).GeomTypeID() }

func (l LineSegment) ToDocument(g native.Geometry) (map[string]any, error) {
	seg, ok := g.(*native.LineSegment)
	if !ok || seg == nil {
		return nil, fmt.Errorf("geometry: %T is not a line segment", g)
	}
	return map[string]any{
		"TypeId": l.TypeID(),
		"StartX": seg.Start.X,
		"StartY": seg.Start.Y,
		"StartZ": seg.Start.Z,
		"EndX":   seg.End.X,
		"EndY":   seg.End.Y,
		"EndZ":   seg.End.Z,
	}, nil
}

func (LineSegment) ToNative(v map[string]any, existing native.Geometry) (Outcome, error) {
	start, err := vector(v, "StartX", "StartY", "StartZ")
	if err != nil {
		return nil, err
	}
	end, err := vector(v, "EndX", "EndY", "EndZ")
	if err != nil {
		return nil, err
	}

	if existing == nil {
		return Created{Geometry: &native.LineSegment{Start: start, End: end}}, nil
	}
	seg, ok := existing.(*native.LineSegment)
	if !ok {
		return nil, fmt.Errorf("geometry: cannot update %s as a line segment", existing.GeomTypeID())
	}
	seg.Start = start
	seg.End = end
	return Updated{}, nil
}
