package geometry

import (
	"fmt"

	"github.com/chazu/cadsync/pkg/native"
)

// Circle converts Part::GeomCircle.
type Circle struct{}

func (Circle) TypeID() string { return (*native.Circle)(nil).GeomTypeID() }

func (c Circle) ToDocument(g native.Geometry) (map[string]any, error) {
	circle, ok := g.(*native.Circle)
	if !ok || circle == nil {
		return nil, fmt.Errorf("geometry: %T is not a circle", g)
	}
	return map[string]any{
		"TypeId":  c.TypeID(),
		"CenterX": circle.Center.X,
		"CenterY": circle.Center.Y,
		"CenterZ": circle.Center.Z,
		"NormalX": circle.Axis.X,
		"NormalY": circle.Axis.Y,
		"NormalZ": circle.Axis.Z,
		"AngleXU": circle.AngleXU,
		"Radius":  circle.Radius,
	}, nil
}

func (Circle) ToNative(v map[string]any, existing native.Geometry) (Outcome, error) {
	center, err := vector(v, "CenterX", "CenterY", "CenterZ")
	if err != nil {
		return nil, err
	}
	axis, err := vector(v, "NormalX", "NormalY", "NormalZ")
	if err != nil {
		return nil, err
	}
	radius, err := field(v, "Radius")
	if err != nil {
		return nil, err
	}

	if existing == nil {
		// AngleXU is optional for a new circle and defaults to 0.
		var angle float64
		if _, ok := v["AngleXU"]; ok {
			if angle, err = field(v, "AngleXU"); err != nil {
				return nil, err
			}
		}
		return Created{Geometry: &native.Circle{Center: center, Axis: axis, AngleXU: angle, Radius: radius}}, nil
	}
	circle, ok := existing.(*native.Circle)
	if !ok {
		return nil, fmt.Errorf("geometry: cannot update %s as a circle", existing.GeomTypeID())
	}
	angle, err := field(v, "AngleXU")
	if err != nil {
		return nil, err
	}
	circle.Center = center
	circle.Axis = axis
	circle.AngleXU = angle
	circle.Radius = radius
	return Updated{}, nil
}
