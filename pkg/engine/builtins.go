package engine

import (
	"fmt"
	"slices"
	"strings"

	zygo "github.com/glycerine/zygomys/zygo"
	"github.com/samber/lo"

	"github.com/chazu/cadsync/pkg/jcad"
	"github.com/chazu/cadsync/pkg/scene"
)

// ---------------------------------------------------------------------------
// Source preprocessing
// ---------------------------------------------------------------------------

// preprocessSource rewrites scene script source before passing it to
// zygomys. It performs two transformations:
//
//  1. Keyword conversion: :keyword -> "__kw_keyword" (string literal)
//     This avoids the need to register keyword symbols as globals, which
//     would conflict with user-defined variables of the same name.
//
//  2. Kebab-case to underscore: set-color -> set_color
//     zygomys does not allow hyphens in identifiers (it interprets them
//     as the subtraction operator). This converts kebab-case identifiers
//     to underscore form outside of strings and comments.
//
// Both transformations respect string literal boundaries and line comments.
func preprocessSource(source string) string {
	result := make([]byte, 0, len(source)+len(source)/4)
	b := []byte(source)
	i := 0
	for i < len(b) {
		// Skip double-quoted string literals.
		if b[i] == '"' {
			result = append(result, b[i])
			i++
			for i < len(b) && b[i] != '"' {
				if b[i] == '\\' && i+1 < len(b) {
					result = append(result, b[i], b[i+1])
					i += 2
					continue
				}
				result = append(result, b[i])
				i++
			}
			if i < len(b) {
				result = append(result, b[i])
				i++
			}
			continue
		}
		// Skip backtick-quoted string literals.
		if b[i] == '`' {
			result = append(result, b[i])
			i++
			for i < len(b) && b[i] != '`' {
				result = append(result, b[i])
				i++
			}
			if i < len(b) {
				result = append(result, b[i])
				i++
			}
			continue
		}
		// Convert ; line comments to // comments for zygomys.
		// zygomys uses // for line comments, not the traditional Lisp ;.
		if b[i] == ';' {
			result = append(result, '/', '/')
			i++
			// Skip additional ; characters (;; style).
			for i < len(b) && b[i] == ';' {
				i++
			}
			for i < len(b) && b[i] != '\n' {
				result = append(result, b[i])
				i++
			}
			continue
		}
		// Transform :keyword to "__kw_keyword".
		if b[i] == ':' && i+1 < len(b) {
			// Preserve := (assignment operator).
			if b[i+1] == '=' {
				result = append(result, b[i], b[i+1])
				i += 2
				continue
			}
			// Check for keyword: colon followed by a letter.
			if isLetter(b[i+1]) {
				j := i + 1
				for j < len(b) && isKWChar(b[j]) {
					j++
				}
				kwName := string(b[i+1 : j])
				result = append(result, '"')
				result = append(result, []byte(kwPrefix)...)
				result = append(result, []byte(kwName)...)
				result = append(result, '"')
				i = j
				continue
			}
		}
		// Transform kebab-case identifiers: alpha-alpha -> alpha_alpha.
		// Only when hyphen sits between identifier characters (not a minus operator).
		if b[i] == '-' && i > 0 && i+1 < len(b) &&
			isIdentChar(b[i-1]) && isIdentStartChar(b[i+1]) {
			result = append(result, '_')
			i++
			continue
		}
		result = append(result, b[i])
		i++
	}
	return string(result)
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isKWChar(c byte) bool {
	return isLetter(c) || (c >= '0' && c <= '9') || c == '-' || c == '_'
}

func isIdentChar(c byte) bool {
	return isLetter(c) || (c >= '0' && c <= '9') || c == '_'
}

func isIdentStartChar(c byte) bool {
	return isLetter(c)
}

// ---------------------------------------------------------------------------
// Custom Sexp types for passing Go values through the zygomys environment
// ---------------------------------------------------------------------------

// sexpVec3 is a 3D vector built by vec3.
type sexpVec3 struct {
	x, y, z float64
}

func (v *sexpVec3) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(vec3 %g %g %g)", v.x, v.y, v.z)
}
func (v *sexpVec3) Type() *zygo.RegisteredType { return nil }

func (v *sexpVec3) value() []any { return []any{v.x, v.y, v.z} }

// sexpPlacement is a placement built by place, passed as :placement.
type sexpPlacement struct {
	at, axis *sexpVec3
	angle    float64
}

func (p *sexpPlacement) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(place :at %s :axis %s :angle %g)", p.at.SexpString(ps), p.axis.SexpString(ps), p.angle)
}
func (p *sexpPlacement) Type() *zygo.RegisteredType { return nil }

func (p *sexpPlacement) value() map[string]any {
	return map[string]any{"Position": p.at.value(), "Axis": p.axis.value(), "Angle": p.angle}
}

// ---------------------------------------------------------------------------
// Keyword argument parsing
// ---------------------------------------------------------------------------

// kwPrefix is the marker prepended to keyword names by preprocessSource.
const kwPrefix = "__kw_"

// isKW checks if a Sexp is a preprocessed keyword string.
// Returns the keyword name (without prefix) and true if it is.
func isKW(s zygo.Sexp) (string, bool) {
	str, ok := s.(*zygo.SexpStr)
	if !ok {
		return "", false
	}
	if strings.HasPrefix(str.S, kwPrefix) {
		return str.S[len(kwPrefix):], true
	}
	return "", false
}

// kwArgs holds the result of parsing a mixed positional+keyword argument list.
type kwArgs struct {
	kw         map[string]zygo.Sexp
	positional []zygo.Sexp
}

// parseArgs separates args into keyword and positional arguments.
func parseArgs(args []zygo.Sexp) kwArgs {
	result := kwArgs{kw: make(map[string]zygo.Sexp)}
	for i := 0; i < len(args); i++ {
		name, ok := isKW(args[i])
		if !ok {
			result.positional = append(result.positional, args[i])
			continue
		}
		if i+1 < len(args) {
			result.kw[name] = args[i+1]
			i++
		} else {
			// Keyword at end with no value: a flag with nil.
			result.kw[name] = zygo.SexpNull
		}
	}
	return result
}

// name returns :name, or the first positional string, or "" for a
// generated name.
func (pa kwArgs) name() (string, error) {
	if v, ok := pa.kw["name"]; ok {
		return toString(v)
	}
	if len(pa.positional) > 0 {
		return toString(pa.positional[0])
	}
	return "", nil
}

// params converts keyword arguments to parameters of a schema with the
// given fields. Keywords map to fields in PascalCase (:length-rev is
// LengthRev) unless renamed by alias.
func (pa kwArgs) params(fields []string, alias map[string]string) (map[string]any, error) {
	out := make(map[string]any, len(pa.kw))
	for kw, v := range pa.kw {
		if kw == "name" {
			continue
		}
		field, ok := alias[kw]
		if !ok {
			field = lo.PascalCase(kw)
		}
		if !slices.Contains(fields, field) {
			return nil, fmt.Errorf("unknown keyword :%s", kw)
		}
		val, err := toValue(v)
		if err != nil {
			return nil, fmt.Errorf(":%s: %w", kw, err)
		}
		out[field] = val
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Value extraction helpers
// ---------------------------------------------------------------------------

// toFloat64 extracts a float64 from a Sexp (SexpInt or SexpFloat).
func toFloat64(s zygo.Sexp) (float64, error) {
	switch v := s.(type) {
	case *zygo.SexpInt:
		return float64(v.Val), nil
	case *zygo.SexpFloat:
		return v.Val, nil
	}
	return 0, fmt.Errorf("expected number, got %T (%s)", s, s.SexpString(nil))
}

// toString extracts a string from a Sexp.
func toString(s zygo.Sexp) (string, error) {
	if str, ok := s.(*zygo.SexpStr); ok {
		return str.S, nil
	}
	return "", fmt.Errorf("expected string, got %T (%s)", s, s.SexpString(nil))
}

// toVec3 extracts a vector from a sexpVec3 or a three-number list.
func toVec3(s zygo.Sexp) (*sexpVec3, error) {
	if v, ok := s.(*sexpVec3); ok {
		return v, nil
	}
	items, err := sexpListToSlice(s)
	if err != nil || len(items) != 3 {
		return nil, fmt.Errorf("expected vec3, got %T (%s)", s, s.SexpString(nil))
	}
	var xyz [3]float64
	for i, item := range items {
		if xyz[i], err = toFloat64(item); err != nil {
			return nil, err
		}
	}
	return &sexpVec3{x: xyz[0], y: xyz[1], z: xyz[2]}, nil
}

// toValue converts a script value to a document value.
func toValue(s zygo.Sexp) (any, error) {
	switch v := s.(type) {
	case *zygo.SexpInt, *zygo.SexpFloat:
		return toFloat64(v)
	case *zygo.SexpBool:
		return v.Val, nil
	case *zygo.SexpStr:
		return strings.TrimPrefix(v.S, kwPrefix), nil
	case *sexpVec3:
		return v.value(), nil
	case *sexpPlacement:
		return v.value(), nil
	}
	items, err := sexpListToSlice(s)
	if err != nil {
		return nil, fmt.Errorf("unsupported value %T (%s)", s, s.SexpString(nil))
	}
	out := make([]any, 0, len(items))
	for _, item := range items {
		val, err := toValue(item)
		if err != nil {
			return nil, err
		}
		out = append(out, val)
	}
	return out, nil
}

// sexpListToSlice converts a SexpPair (Lisp list) or SexpArray to a Go slice.
func sexpListToSlice(s zygo.Sexp) ([]zygo.Sexp, error) {
	switch v := s.(type) {
	case *zygo.SexpPair:
		return zygo.ListToArray(v)
	case *zygo.SexpArray:
		return v.Val, nil
	case *zygo.SexpSentinel:
		if v == zygo.SexpNull {
			return nil, nil
		}
	}
	return nil, fmt.Errorf("expected list or array, got %T", s)
}

func names(v any) []string {
	items, _ := v.([]any)
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Builtin registration
// ---------------------------------------------------------------------------

type builtin func(pa kwArgs) (zygo.Sexp, error)

// registerBuiltins installs the scene builtins into a zygomys environment.
// Shape builtins add an object to sc and return its name.
//
// Source code must be preprocessed with preprocessSource() before evaluation so
// that :keyword tokens are converted to recognizable string literals.
func registerBuiltins(z *zygo.Zlisp, sc *scene.Scene, f *jcad.Factory) {
	add := func(name string, fn builtin) {
		z.AddFunction(name, func(_ *zygo.Zlisp, _ string, args []zygo.Sexp) (zygo.Sexp, error) {
			res, err := fn(parseArgs(args))
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("%s: %w", name, err)
			}
			return res, nil
		})
	}
	fields := func(shape jcad.Shape) []string {
		s, ok := f.Schema(shape)
		if !ok {
			return nil
		}
		return s.Fields()
	}
	str := func(s string) zygo.Sexp { return &zygo.SexpStr{S: s} }

	// (box :name "B1" :length 2 :width 3 :height 4 :placement (place ...))
	for fn, shape := range map[string]jcad.Shape{
		"box":      jcad.ShapeBox,
		"cone":     jcad.ShapeCone,
		"cylinder": jcad.ShapeCylinder,
		"sphere":   jcad.ShapeSphere,
		"torus":    jcad.ShapeTorus,
		"opaque":   jcad.ShapeAny,
	} {
		add(fn, func(pa kwArgs) (zygo.Sexp, error) {
			name, err := pa.name()
			if err != nil {
				return nil, err
			}
			params, err := pa.params(fields(shape), nil)
			if err != nil {
				return nil, err
			}
			n, err := sc.AddShape(shape, name, params)
			return str(n), err
		})
	}

	// (cut :base "B1" :tool "C1" :refine true)
	add("cut", func(pa kwArgs) (zygo.Sexp, error) {
		name, err := pa.name()
		if err != nil {
			return nil, err
		}
		params, err := pa.params(fields(jcad.ShapeCut), nil)
		if err != nil {
			return nil, err
		}
		base, _ := params["Base"].(string)
		tool, _ := params["Tool"].(string)
		n, err := sc.Cut(name, base, tool, params)
		return str(n), err
	})

	// (fuse :shapes (list "A" "B")) and (intersect :shapes (list "A" "B"))
	for fn, op := range map[string]func(string, []string, map[string]any) (string, error){
		"fuse":      sc.Fuse,
		"intersect": sc.Intersect,
	} {
		shape := jcad.ShapeFuse
		if fn == "intersect" {
			shape = jcad.ShapeIntersection
		}
		add(fn, func(pa kwArgs) (zygo.Sexp, error) {
			name, err := pa.name()
			if err != nil {
				return nil, err
			}
			params, err := pa.params(fields(shape), nil)
			if err != nil {
				return nil, err
			}
			n, err := op(name, names(params["Shapes"]), params)
			return str(n), err
		})
	}

	// (fillet :base "B1" :edge 0 :radius 0.5), (chamfer ... :dist 0.5),
	// (extrude :base "S1" :dir (vec3 0 0 1) :length 10)
	derived := []struct {
		fn    string
		shape jcad.Shape
		op    func(string, string, map[string]any) (string, error)
		alias map[string]string
	}{
		{"fillet", jcad.ShapeFillet, sc.Fillet, nil},
		{"chamfer", jcad.ShapeChamfer, sc.Chamfer, nil},
		{"extrude", jcad.ShapeExtrusion, sc.Extrude, map[string]string{"length": "LengthFwd"}},
	}
	for _, d := range derived {
		add(d.fn, func(pa kwArgs) (zygo.Sexp, error) {
			name, err := pa.name()
			if err != nil {
				return nil, err
			}
			params, err := pa.params(fields(d.shape), d.alias)
			if err != nil {
				return nil, err
			}
			base, _ := params["Base"].(string)
			n, err := d.op(name, base, params)
			return str(n), err
		})
	}

	// (color "B1" (list 1 0 0)); (color "B1" nil) removes it.
	add("color", func(pa kwArgs) (zygo.Sexp, error) {
		if len(pa.positional) != 2 {
			return nil, fmt.Errorf("requires an object name and a color")
		}
		name, err := toString(pa.positional[0])
		if err != nil {
			return nil, err
		}
		var rgb []float64
		if pa.positional[1] != zygo.SexpNull {
			v, err := toVec3(pa.positional[1])
			if err != nil {
				return nil, err
			}
			rgb = []float64{v.x, v.y, v.z}
		}
		return zygo.SexpNull, sc.SetColor(name, rgb)
	})

	// (visible "B1" false)
	add("visible", func(pa kwArgs) (zygo.Sexp, error) {
		if len(pa.positional) != 2 {
			return nil, fmt.Errorf("requires an object name and a flag")
		}
		name, err := toString(pa.positional[0])
		if err != nil {
			return nil, err
		}
		flag, ok := pa.positional[1].(*zygo.SexpBool)
		if !ok {
			return nil, fmt.Errorf("expected bool, got %s", pa.positional[1].SexpString(nil))
		}
		return zygo.SexpNull, sc.SetVisible(name, flag.Val)
	})

	// (remove "B1")
	add("remove", func(pa kwArgs) (zygo.Sexp, error) {
		if len(pa.positional) != 1 {
			return nil, fmt.Errorf("requires an object name")
		}
		name, err := toString(pa.positional[0])
		if err != nil {
			return nil, err
		}
		return zygo.SexpNull, sc.Remove(name)
	})

	// (vec3 1 2 3)
	add("vec3", func(pa kwArgs) (zygo.Sexp, error) {
		if len(pa.positional) != 3 {
			return nil, fmt.Errorf("requires exactly 3 arguments, got %d", len(pa.positional))
		}
		var xyz [3]float64
		for i, arg := range pa.positional {
			f, err := toFloat64(arg)
			if err != nil {
				return nil, err
			}
			xyz[i] = f
		}
		return &sexpVec3{x: xyz[0], y: xyz[1], z: xyz[2]}, nil
	})

	// (place :at (vec3 0 0 5) :axis (vec3 0 0 1) :angle 45)
	add("place", func(pa kwArgs) (zygo.Sexp, error) {
		p := &sexpPlacement{at: &sexpVec3{}, axis: &sexpVec3{z: 1}}
		for kw, v := range pa.kw {
			var err error
			switch kw {
			case "at":
				p.at, err = toVec3(v)
			case "axis":
				p.axis, err = toVec3(v)
			case "angle":
				p.angle, err = toFloat64(v)
			default:
				err = fmt.Errorf("unknown keyword :%s", kw)
			}
			if err != nil {
				return nil, err
			}
		}
		return p, nil
	})
}
