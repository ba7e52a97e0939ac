package jcad

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func boxRecord(name string, params map[string]any) Record {
	return Record{Name: name, Shape: string(ShapeBox), Visible: true, Parameters: params}
}

func TestCreateBox(t *testing.T) {
	f := DefaultFactory()

	o, err := f.Create(boxRecord("Box 1", map[string]any{
		"Length": 2.0, "Width": 3.0, "Height": 4.0,
	}))
	require.NoError(t, err)

	box, ok := o.Parameters.(Box)
	require.True(t, ok, "parameters are %T", o.Parameters)
	assert.Equal(t, 2.0, box.Length)
	assert.Equal(t, 3.0, box.Width)
	assert.Equal(t, 4.0, box.Height)
	assert.Equal(t, DefaultPlacement(), box.Placement)
	assert.Equal(t, ShapeBox, o.Shape)
	assert.True(t, o.Visible)
}

func TestCreateAppliesDefaults(t *testing.T) {
	f := DefaultFactory()

	tests := []struct {
		shape Shape
		want  Parameters
	}{
		{ShapeBox, Box{Length: 1, Width: 1, Height: 1, Common: defaultCommon()}},
		{ShapeCone, Cone{Radius1: 1, Radius2: 0.5, Height: 1, Angle: 360, Common: defaultCommon()}},
		{ShapeCylinder, Cylinder{Radius: 1, Height: 1, Angle: 360, Common: defaultCommon()}},
		{ShapeSphere, Sphere{Radius: 5, Angle1: -90, Angle2: 90, Angle3: 360, Common: defaultCommon()}},
		{ShapeTorus, Torus{Radius1: 10, Radius2: 2, Angle1: -180, Angle2: 180, Angle3: 360, Common: defaultCommon()}},
	}
	for _, tt := range tests {
		t.Run(tt.shape.Label(), func(t *testing.T) {
			o, err := f.Create(Record{Name: "x", Shape: string(tt.shape), Parameters: map[string]any{}})
			require.NoError(t, err)
			assert.Equal(t, tt.want, o.Parameters)
		})
	}
}

func TestCreateNilValueTakesDefault(t *testing.T) {
	f := DefaultFactory()
	o, err := f.Create(boxRecord("b", map[string]any{"Length": nil, "Width": 7}))
	require.NoError(t, err)
	box := o.Parameters.(Box)
	assert.Equal(t, 1.0, box.Length)
	assert.Equal(t, 7.0, box.Width)
}

func TestCreatePartialPlacement(t *testing.T) {
	f := DefaultFactory()
	o, err := f.Create(boxRecord("b", map[string]any{
		"Placement": map[string]any{"Position": []any{1.0, 2.0, 3.0}},
	}))
	require.NoError(t, err)
	p := o.Parameters.PlacementOf()
	assert.Equal(t, []float64{1, 2, 3}, p.Position)
	assert.Equal(t, []float64{0, 0, 1}, p.Axis)
}

func TestNormalizeDropsUnknownFields(t *testing.T) {
	f := DefaultFactory()
	r, err := f.Normalize(boxRecord("b", map[string]any{"Length": 2.0, "Color": "red"}))
	require.NoError(t, err)
	assert.NotContains(t, r.Parameters, "Color")
	assert.Equal(t, 2.0, r.Parameters["Length"])
	assert.Contains(t, r.Parameters, "Placement")
}

func TestCreateValidationErrors(t *testing.T) {
	f := DefaultFactory()

	tests := []struct {
		name   string
		rec    Record
		fields []string
	}{
		{
			name:   "type mismatch",
			rec:    boxRecord("b", map[string]any{"Length": "long", "Width": true}),
			fields: []string{"Length", "Width"},
		},
		{
			name:   "non-positive length",
			rec:    boxRecord("b", map[string]any{"Length": -1.0}),
			fields: []string{"Length"},
		},
		{
			name: "short position",
			rec: boxRecord("b", map[string]any{
				"Placement": map[string]any{"Position": []any{1.0, 2.0}},
			}),
			fields: []string{"Placement.Position"},
		},
		{
			name:   "missing name",
			rec:    boxRecord("", nil),
			fields: []string{"name"},
		},
		{
			name:   "cut without operands",
			rec:    Record{Name: "c", Shape: string(ShapeCut), Parameters: map[string]any{}},
			fields: []string{"Base", "Tool"},
		},
		{
			name: "fuse with one operand",
			rec: Record{Name: "f", Shape: string(ShapeFuse), Parameters: map[string]any{
				"Shapes": []any{"A"},
			}},
			fields: []string{"Shapes"},
		},
		{
			name: "sphere angle out of range",
			rec: Record{Name: "s", Shape: string(ShapeSphere), Parameters: map[string]any{
				"Angle1": -120.0,
			}},
			fields: []string{"Angle1"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, err := f.Create(tt.rec)
			require.Error(t, err)
			assert.Nil(t, o)

			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "got %T", err)
			assert.Len(t, verr.Fields, len(tt.fields), "fields: %v", verr.Fields)
			for _, field := range tt.fields {
				assert.True(t, verr.Has(field), "missing %s in %v", field, verr.Fields)
			}
		})
	}
}

func TestCreateUnknownShape(t *testing.T) {
	f := DefaultFactory()
	_, err := f.Create(Record{Name: "s", Shape: "Sketcher::SketchObject"})

	var uerr *UnknownShapeError
	require.True(t, errors.As(err, &uerr))
	assert.Equal(t, Shape("Sketcher::SketchObject"), uerr.Shape)
}

func TestRegisterFirstWins(t *testing.T) {
	f := DefaultFactory()
	assert.Len(t, f.Shapes(), 12)

	added := f.Register(NewSchema(func() Box {
		return Box{Length: 99, Width: 99, Height: 99, Common: defaultCommon()}
	}))
	assert.False(t, added)

	o, err := f.Create(boxRecord("b", nil))
	require.NoError(t, err)
	assert.Equal(t, 1.0, o.Parameters.(Box).Length)
}

func TestSchemaFields(t *testing.T) {
	f := DefaultFactory()
	s, ok := f.Schema(ShapeCut)
	require.True(t, ok)
	assert.Equal(t, []string{"Base", "Tool", "Refine", "Placement"}, s.Fields())
}

func TestRoundTripEverySchema(t *testing.T) {
	f := DefaultFactory()
	placement := map[string]any{
		"Position": []any{1.0, 2.0, 3.0},
		"Axis":     []any{0.0, 1.0, 0.0},
		"Angle":    45.0,
	}

	recs := []Record{
		{Name: "Box 1", Shape: string(ShapeBox), Parameters: map[string]any{"Length": 2.0, "Width": 3.0, "Height": 4.0, "Placement": placement}},
		{Name: "Cone 1", Shape: string(ShapeCone), Parameters: map[string]any{"Radius1": 2.0, "Radius2": 1.0, "Height": 3.0, "Angle": 180.0}},
		{Name: "Cylinder 1", Shape: string(ShapeCylinder), Parameters: map[string]any{"Radius": 2.0, "Height": 5.0}},
		{Name: "Sphere 1", Shape: string(ShapeSphere), Parameters: map[string]any{"Radius": 3.0}},
		{Name: "Torus 1", Shape: string(ShapeTorus), Parameters: map[string]any{"Radius1": 8.0, "Radius2": 1.0}},
		{Name: "Cut 1", Shape: string(ShapeCut), Parameters: map[string]any{"Base": "Box 1", "Tool": "Cylinder 1"}},
		{Name: "Fuse 1", Shape: string(ShapeFuse), Parameters: map[string]any{"Shapes": []any{"Box 1", "Sphere 1"}, "Refine": true}},
		{Name: "Intersection 1", Shape: string(ShapeIntersection), Parameters: map[string]any{"Shapes": []any{"Box 1", "Torus 1"}}},
		{Name: "Fillet 1", Shape: string(ShapeFillet), Parameters: map[string]any{"Base": "Box 1", "Edge": 2, "Radius": 0.5}},
		{Name: "Chamfer 1", Shape: string(ShapeChamfer), Parameters: map[string]any{"Base": "Box 1", "Dist": 0.2}},
		{Name: "Extrusion 1", Shape: string(ShapeExtrusion), Parameters: map[string]any{"Base": "Box 1", "LengthFwd": 4.0}},
		{Name: "Shape 1", Shape: string(ShapeAny), Parameters: map[string]any{"Type": "brep", "Content": "DBRep_DrawableShape"}},
	}
	for _, rec := range recs {
		t.Run(rec.Name, func(t *testing.T) {
			o, err := f.Create(rec)
			require.NoError(t, err)

			back, err := o.Record()
			require.NoError(t, err)

			again, err := f.Create(back)
			require.NoError(t, err)
			assert.Equal(t, o.Parameters, again.Parameters)
		})
	}
}
