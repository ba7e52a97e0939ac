package reconcile

import (
	"github.com/chazu/cadsync/pkg/native"
	"github.com/chazu/cadsync/pkg/props/geometry"
)

// optionGuiData is the options key holding per-object display data.
const optionGuiData = "guidata"

// cameraSettings is mixed in with object entries by some native files. It
// has no object behind it and is not forwarded.
const cameraSettings = "GuiCameraSettings"

// toGuiData reads options.guidata, {name: {color: [r,g,b], visibility}}.
// Malformed entries are ignored field by field.
func toGuiData(opts map[string]any) map[string]native.GuiEntry {
	raw, _ := opts[optionGuiData].(map[string]any)
	out := make(map[string]native.GuiEntry, len(raw))
	for name, v := range raw {
		data, ok := v.(map[string]any)
		if !ok || name == cameraSettings {
			continue
		}
		var e native.GuiEntry
		if c, ok := color(data["color"]); ok {
			e.ShapeColor = &c
		}
		if vis, ok := data["visibility"].(bool); ok {
			e.Visibility = &vis
		}
		out[name] = e
	}
	return out
}

func color(v any) (native.Color, bool) {
	xs, ok := v.([]any)
	if !ok || len(xs) != 3 {
		return native.Color{}, false
	}
	var c native.Color
	for i, x := range xs {
		f, err := geometry.ToFloat(x)
		if err != nil {
			return native.Color{}, false
		}
		c[i] = f
	}
	return c, true
}

func fromGuiData(gui map[string]native.GuiEntry) map[string]any {
	out := make(map[string]any, len(gui))
	for name, e := range gui {
		data := map[string]any{}
		if e.ShapeColor != nil {
			data["color"] = []any{e.ShapeColor[0], e.ShapeColor[1], e.ShapeColor[2]}
		}
		if e.Visibility != nil {
			data["visibility"] = *e.Visibility
		}
		out[name] = data
	}
	return out
}
