package engine

import (
	"strings"
	"testing"

	"github.com/chazu/cadsync/pkg/jcad"
)

// ---------------------------------------------------------------------------
// Preprocessing tests
// ---------------------------------------------------------------------------

func TestPreprocessKeywords(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		expect string
	}{
		{
			name:   "simple keyword",
			input:  `(box :name "B1")`,
			expect: `(box "__kw_name" "B1")`,
		},
		{
			name:   "multiple keywords",
			input:  `(box :length 400 :width 200)`,
			expect: `(box "__kw_length" 400 "__kw_width" 200)`,
		},
		{
			name:   "keyword in string preserved",
			input:  `"thing with :keyword inside"`,
			expect: `"thing with :keyword inside"`,
		},
		{
			name:   "assignment operator preserved",
			input:  `(def x := 10)`,
			expect: `(def x := 10)`,
		},
		{
			name:   "kebab-case identifier",
			input:  `(set-color :length-rev 1)`,
			expect: `(set_color "__kw_length-rev" 1)`,
		},
		{
			name:   "minus operator preserved",
			input:  `(- 10 5)`,
			expect: `(- 10 5)`,
		},
		{
			name:   "comment converted to // style",
			input:  `;; comment with :keyword`,
			expect: `// comment with :keyword`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := preprocessSource(tt.input)
			if got != tt.expect {
				t.Errorf("preprocessSource(%q) = %q, want %q", tt.input, got, tt.expect)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Builtins
// ---------------------------------------------------------------------------

func evaluate(t *testing.T, src string) map[string]jcad.Record {
	t.Helper()
	res, evalErrs, err := newTestEngine().Evaluate(src)
	if err != nil {
		t.Fatalf("fatal: %v", err)
	}
	if len(evalErrs) > 0 {
		t.Fatalf("eval errors: %v", evalErrs)
	}
	out := make(map[string]jcad.Record, len(res.Objects))
	for _, r := range res.Objects {
		out[r.Name] = r
	}
	return out
}

func evalError(t *testing.T, src string) EvalError {
	t.Helper()
	_, evalErrs, err := newTestEngine().Evaluate(src)
	if err != nil {
		t.Fatalf("fatal: %v", err)
	}
	if len(evalErrs) == 0 {
		t.Fatalf("expected eval errors for %q", src)
	}
	return evalErrs[0]
}

func TestPrimitives(t *testing.T) {
	objs := evaluate(t, `
(box :name "B1" :length 2 :width 3 :height 4)
(cylinder :radius 1.5 :height 10)
(cone "K" :radius1 2 :radius2 0)
(sphere :radius 3 :angle3 180)
(torus :radius1 8 :radius2 1)
`)
	tests := []struct {
		name  string
		shape jcad.Shape
		param string
		want  float64
	}{
		{"B1", jcad.ShapeBox, "Height", 4},
		{"Cylinder 1", jcad.ShapeCylinder, "Radius", 1.5},
		{"Cylinder 1", jcad.ShapeCylinder, "Angle", 360},
		{"K", jcad.ShapeCone, "Radius2", 0},
		{"Sphere 1", jcad.ShapeSphere, "Angle3", 180},
		{"Torus 1", jcad.ShapeTorus, "Radius1", 8},
	}
	for _, tt := range tests {
		t.Run(tt.name+"/"+tt.param, func(t *testing.T) {
			r, ok := objs[tt.name]
			if !ok {
				t.Fatalf("no object %q in %v", tt.name, objs)
			}
			if r.Shape != string(tt.shape) {
				t.Errorf("shape = %s, want %s", r.Shape, tt.shape)
			}
			if r.Parameters[tt.param] != tt.want {
				t.Errorf("%s = %v, want %v", tt.param, r.Parameters[tt.param], tt.want)
			}
		})
	}
}

func TestPlacement(t *testing.T) {
	objs := evaluate(t, `(box :name "B" :placement (place :at (vec3 1 2 3) :angle 90))`)
	p, ok := objs["B"].Parameters["Placement"].(map[string]any)
	if !ok {
		t.Fatalf("placement = %v", objs["B"].Parameters["Placement"])
	}
	pos := p["Position"].([]any)
	if pos[0] != 1.0 || pos[1] != 2.0 || pos[2] != 3.0 {
		t.Errorf("Position = %v", pos)
	}
	axis := p["Axis"].([]any)
	if axis[2] != 1.0 {
		t.Errorf("Axis = %v, want +Z", axis)
	}
	if p["Angle"] != 90.0 {
		t.Errorf("Angle = %v", p["Angle"])
	}
}

func TestBooleans(t *testing.T) {
	objs := evaluate(t, `
(cut :name "C" :base (box :name "B1") :tool (cylinder :name "C1"))
(box :name "A") (box :name "Z")
(fuse :name "F" :shapes (list "A" "Z"))
(intersect :name "I" :shapes (list "A" "Z") :refine true)
`)
	c := objs["C"]
	if c.Parameters["Base"] != "B1" || c.Parameters["Tool"] != "C1" {
		t.Errorf("cut parameters = %v", c.Parameters)
	}
	if objs["B1"].Visible || objs["C1"].Visible {
		t.Error("cut operands should be hidden")
	}
	if got := objs["F"].Parameters["Shapes"].([]any); len(got) != 2 || got[0] != "A" {
		t.Errorf("fuse shapes = %v", got)
	}
	if objs["I"].Shape != string(jcad.ShapeIntersection) || objs["I"].Parameters["Refine"] != true {
		t.Errorf("intersect = %+v", objs["I"])
	}
}

func TestDerivedShapes(t *testing.T) {
	objs := evaluate(t, `
(box :name "B")
(fillet :name "F" :edge 2 :radius 0.5)
(chamfer :name "Ch" :base "B" :dist 0.2)
(extrude :name "E" :base "B" :dir (vec3 1 0 0) :length 5 :length-rev 1)
`)
	if objs["F"].Parameters["Base"] != "B" || objs["F"].Parameters["Edge"] != 2.0 {
		t.Errorf("fillet = %v", objs["F"].Parameters)
	}
	if objs["Ch"].Parameters["Dist"] != 0.2 {
		t.Errorf("chamfer = %v", objs["Ch"].Parameters)
	}
	e := objs["E"].Parameters
	if e["LengthFwd"] != 5.0 || e["LengthRev"] != 1.0 {
		t.Errorf("extrusion = %v", e)
	}
}

func TestOpaqueColorVisibleRemove(t *testing.T) {
	res, evalErrs, err := newTestEngine().Evaluate(`
(opaque :name "S" :content "brep" :type "brep")
(box :name "B")
(color "B" (vec3 0 1 0))
(visible "S" false)
(box :name "Gone")
(remove "Gone")
`)
	if err != nil || len(evalErrs) > 0 {
		t.Fatalf("err=%v evalErrs=%v", err, evalErrs)
	}
	if len(res.Objects) != 2 {
		t.Fatalf("objects = %v", res.Objects)
	}
	if res.Objects[0].Visible {
		t.Error("S should be hidden")
	}
	entry, ok := res.GuiData["B"].(map[string]any)
	if !ok {
		t.Fatalf("guidata = %v", res.GuiData)
	}
	if c := entry["color"].([]any); c[1] != 1.0 {
		t.Errorf("color = %v", c)
	}
}

func TestBuiltinErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"unknown keyword", `(box :depth 3)`, "unknown keyword :depth"},
		{"invalid value", `(box :length -1)`, "Length"},
		{"duplicate", `(box :name "B") (box :name "B")`, "already exists"},
		{"missing operand", `(box :name "B") (cut :base "B" :tool "Nope")`, "not found"},
		{"too few objects", `(cut)`, "not enough objects"},
		{"bad vec3", `(vec3 1 2)`, "exactly 3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := evalError(t, tt.src)
			if !strings.Contains(e.Error(), tt.want) {
				t.Errorf("error = %q, want containing %q", e.Error(), tt.want)
			}
		})
	}
}
