package jcad

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordMapRoundTrip(t *testing.T) {
	r := Record{
		Name:       "Box 1",
		Shape:      string(ShapeBox),
		Visible:    false,
		Parameters: map[string]any{"Length": 2.0, "Placement": map[string]any{"Angle": 0.0}},
		Metadata:   map[string]any{"centerOfMass": []any{0.5, 0.5, 0.5}},
	}

	back, err := RecordFromMap(r.Map())
	require.NoError(t, err)
	assert.Equal(t, r, back)
}

func TestRecordFromMapDefaults(t *testing.T) {
	r, err := RecordFromMap(map[string]any{"name": "x", "shape": "Part::Box"})
	require.NoError(t, err)
	assert.True(t, r.Visible)
	assert.NotNil(t, r.Parameters)
	assert.Nil(t, r.Metadata)

	_, err = RecordFromMap(map[string]any{"shape": "Part::Box"})
	assert.Error(t, err)

	_, err = RecordFromMap(map[string]any{"name": "x", "parameters": "bad"})
	assert.Error(t, err)
}

func TestRecordCloneIsDeep(t *testing.T) {
	r := Record{Name: "x", Parameters: map[string]any{"Shapes": []any{"a", "b"}}}
	c := r.Clone()
	c.Parameters["Shapes"].([]any)[0] = "z"
	assert.Equal(t, "a", r.Parameters["Shapes"].([]any)[0])
}
