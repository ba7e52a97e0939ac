package scene

import (
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/oklog/ulid/v2"

	"github.com/chazu/cadsync/pkg/shared"
)

const optionGuiData = "guidata"

// SetColor sets the display color of the named object. A nil color
// removes it.
func (s *Scene) SetColor(name string, color []float64) error {
	return s.transact(func(tx *shared.Tx) error {
		if ok, err := tx.Has(name); err != nil || !ok {
			if err == nil {
				err = fmt.Errorf("%w: %q", shared.ErrNotFound, name)
			}
			return err
		}
		raw, err := tx.Option(optionGuiData)
		if err != nil {
			return err
		}
		gui, _ := raw.(map[string]any)
		if gui == nil {
			if color == nil {
				return nil
			}
			gui = map[string]any{}
		}
		entry, _ := gui[name].(map[string]any)
		entry = with(entry, nil)
		if color == nil {
			delete(entry, "color")
		} else {
			entry["color"] = color
		}
		gui[name] = entry
		return tx.SetOption(optionGuiData, gui)
	})
}

// Annotation is a comment thread anchored on an object, stored in the
// document metadata as JSON.
type Annotation struct {
	Position []float64 `json:"position"`
	Contents []Message `json:"contents"`
	Parent   string    `json:"parent"`
}

type Message struct {
	User  map[string]any `json:"user"`
	Value string         `json:"value"`
}

// AnnotationOptions are the optional fields of AddAnnotation.
type AnnotationOptions struct {
	// Position defaults to the parent's center of mass, then the origin.
	Position []float64
	User     map[string]any
}

// AddAnnotation anchors message on parent and returns the annotation id.
func (s *Scene) AddAnnotation(parent, message string, opts AnnotationOptions) (string, error) {
	id := "annotation_" + ulid.Make().String()
	err := s.transact(func(tx *shared.Tx) error {
		r, err := tx.Object(parent)
		if err != nil {
			return err
		}
		pos := opts.Position
		if pos == nil {
			outputs, err := tx.Outputs()
			if err != nil {
				return err
			}
			pos = centerOfMass(r.Metadata, outputs[parent])
		}
		data, err := json.Marshal(Annotation{
			Position: pos,
			Contents: []Message{{User: opts.User, Value: message}},
			Parent:   parent,
		})
		if err != nil {
			return err
		}
		return tx.SetMetadata(id, string(data))
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// RemoveAnnotation deletes an annotation. Unknown ids are ignored.
func (s *Scene) RemoveAnnotation(id string) error {
	return s.transact(func(tx *shared.Tx) error {
		meta, err := tx.Metadata()
		if err != nil {
			return err
		}
		if _, ok := meta[id]; !ok {
			return nil
		}
		return tx.DeleteMetadata(id)
	})
}

// Annotations returns every annotation keyed by id. Metadata entries that
// are not annotations are skipped.
func (s *Scene) Annotations() (map[string]Annotation, error) {
	meta, err := s.doc.Metadata()
	if err != nil {
		return nil, err
	}
	out := make(map[string]Annotation)
	for id, raw := range meta {
		var a Annotation
		if err := json.Unmarshal([]byte(raw), &a); err != nil || a.Parent == "" {
			continue
		}
		out[id] = a
	}
	return out, nil
}

// centerOfMass reads centerOfMass from the shape metadata, then
// CenterOfMass from the computed outputs.
func centerOfMass(meta map[string]any, output any) []float64 {
	if v, ok := vec3(meta["centerOfMass"]); ok {
		return v
	}
	if out, ok := output.(map[string]any); ok {
		if v, ok := vec3(out["CenterOfMass"]); ok {
			return v
		}
	}
	return []float64{0, 0, 0}
}

func vec3(v any) ([]float64, bool) {
	xs, ok := v.([]any)
	if !ok || len(xs) != 3 {
		return nil, false
	}
	out := make([]float64, 3)
	for i, x := range xs {
		f, ok := x.(float64)
		if !ok {
			return nil, false
		}
		out[i] = f
	}
	return out, true
}
