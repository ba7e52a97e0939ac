package jcad

import (
	"fmt"

	json "github.com/goccy/go-json"
)

// Object is a validated scene entry.
type Object struct {
	Name       string
	Shape      Shape
	Parameters Parameters
	Visible    bool
	Metadata   map[string]any // shape metadata, free-form
}

// Record is the raw, untyped form of an object as it is stored in the
// shared document. Records of shapes without a schema are kept as is.
type Record struct {
	Name       string         `json:"name"`
	Shape      string         `json:"shape"`
	Visible    bool           `json:"visible"`
	Parameters map[string]any `json:"parameters"`
	Metadata   map[string]any `json:"shapeMetadata,omitempty"`
}

// Record converts o back to its raw form.
func (o *Object) Record() (Record, error) {
	params, err := ParamMap(o.Parameters)
	if err != nil {
		return Record{}, fmt.Errorf("object %q: %w", o.Name, err)
	}
	return Record{
		Name:       o.Name,
		Shape:      string(o.Shape),
		Visible:    o.Visible,
		Parameters: params,
		Metadata:   o.Metadata,
	}, nil
}

// ParamMap returns the document-safe map form of p: JSON numbers, strings,
// booleans, lists and nested maps only.
func ParamMap(p Parameters) (map[string]any, error) {
	if p == nil {
		return map[string]any{}, nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode parameters: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("decode parameters: %w", err)
	}
	return m, nil
}

// Map returns r as a nested document value.
func (r Record) Map() map[string]any {
	m := map[string]any{
		"name":       r.Name,
		"shape":      r.Shape,
		"visible":    r.Visible,
		"parameters": cloneMap(r.Parameters),
	}
	if r.Metadata != nil {
		m["shapeMetadata"] = cloneMap(r.Metadata)
	}
	return m
}

// RecordFromMap reads a record from a nested document value. A missing
// visible flag means visible.
func RecordFromMap(m map[string]any) (Record, error) {
	var r Record
	name, ok := m["name"].(string)
	if !ok || name == "" {
		return r, fmt.Errorf("record has no name")
	}
	r.Name = name
	r.Shape, _ = m["shape"].(string)
	r.Visible = true
	if v, ok := m["visible"].(bool); ok {
		r.Visible = v
	}
	switch p := m["parameters"].(type) {
	case map[string]any:
		r.Parameters = cloneMap(p)
	case nil:
		r.Parameters = map[string]any{}
	default:
		return r, fmt.Errorf("record %q: parameters is %T, want map", name, p)
	}
	if meta, ok := m["shapeMetadata"].(map[string]any); ok {
		r.Metadata = cloneMap(meta)
	}
	return r, nil
}

// Clone returns a deep copy of r.
func (r Record) Clone() Record {
	r.Parameters = cloneMap(r.Parameters)
	if r.Metadata != nil {
		r.Metadata = cloneMap(r.Metadata)
	}
	return r
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		return cloneMap(x)
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}
