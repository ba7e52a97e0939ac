package shared

import (
	"encoding/base64"
	"errors"
	"fmt"
	"reflect"

	"github.com/chazu/cadsync/pkg/crdt"
	"github.com/chazu/cadsync/pkg/jcad"
	"github.com/chazu/cadsync/pkg/observe"
)

var errReadOnly = errors.New("shared: mutation outside a transaction")

// Tx is the handle passed to Transact. Objects are addressed by name,
// never by position.
type Tx struct {
	root     *crdt.Map
	kind     Kind
	readOnly bool
	touched  map[observe.Topic]bool
	dirty    bool
}

func (tx *Tx) mark(t observe.Topic) error {
	if tx.readOnly {
		return errReadOnly
	}
	tx.dirty = true
	if t != "" {
		tx.touched[t] = true
	}
	return nil
}

// ---------------------------------------------------------------------------
// Objects
// ---------------------------------------------------------------------------

func (tx *Tx) objectList() (*crdt.List, error) {
	return tx.root.List(keyObjects)
}

// Objects returns every object record in document order.
func (tx *Tx) Objects() ([]jcad.Record, error) {
	l, err := tx.objectList()
	if err != nil {
		return nil, err
	}
	raw, err := l.Snapshot()
	if err != nil {
		return nil, err
	}
	out := make([]jcad.Record, 0, len(raw))
	for i, v := range raw {
		m, ok := v.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("shared: object %d is %T", i, v)
		}
		r, err := jcad.RecordFromMap(m)
		if err != nil {
			return nil, fmt.Errorf("shared: object %d: %w", i, err)
		}
		out = append(out, r)
	}
	return out, nil
}

// Names returns the object names in document order.
func (tx *Tx) Names() ([]string, error) {
	l, err := tx.objectList()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, l.Len())
	for i := 0; i < l.Len(); i++ {
		name, err := nameAt(l, i)
		if err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, nil
}

func nameAt(l *crdt.List, i int) (string, error) {
	m, err := l.Map(i)
	if err != nil {
		return "", err
	}
	v, err := m.Get("name")
	if err != nil {
		return "", err
	}
	name, _ := v.(string)
	return name, nil
}

func indexOf(l *crdt.List, name string) (int, error) {
	for i := 0; i < l.Len(); i++ {
		n, err := nameAt(l, i)
		if err != nil {
			return -1, err
		}
		if n == name {
			return i, nil
		}
	}
	return -1, nil
}

// Object returns the named record or ErrNotFound.
func (tx *Tx) Object(name string) (jcad.Record, error) {
	l, err := tx.objectList()
	if err != nil {
		return jcad.Record{}, err
	}
	i, err := indexOf(l, name)
	if err != nil {
		return jcad.Record{}, err
	}
	if i < 0 {
		return jcad.Record{}, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	m, err := l.Map(i)
	if err != nil {
		return jcad.Record{}, err
	}
	snap, err := m.Snapshot()
	if err != nil {
		return jcad.Record{}, err
	}
	return jcad.RecordFromMap(snap)
}

// Has reports whether an object named name exists.
func (tx *Tx) Has(name string) (bool, error) {
	l, err := tx.objectList()
	if err != nil {
		return false, err
	}
	i, err := indexOf(l, name)
	return i >= 0, err
}

// AddObject appends r. A taken name is ErrDuplicateName and changes
// nothing.
func (tx *Tx) AddObject(r jcad.Record) error {
	if r.Name == "" {
		return fmt.Errorf("shared: object has no name")
	}
	if err := tx.mark(observe.TopicObjects); err != nil {
		return err
	}
	l, err := tx.objectList()
	if err != nil {
		return err
	}
	i, err := indexOf(l, r.Name)
	if err != nil {
		return err
	}
	if i >= 0 {
		return fmt.Errorf("%w: %q", ErrDuplicateName, r.Name)
	}
	return l.Append(r.Map())
}

// UpdateObject rewrites the named object's fields to match r, touching
// only parameters whose value changed.
func (tx *Tx) UpdateObject(r jcad.Record) error {
	if err := tx.mark(observe.TopicObjects); err != nil {
		return err
	}
	m, err := tx.objectMap(r.Name)
	if err != nil {
		return err
	}
	if err := m.Set("shape", r.Shape); err != nil {
		return err
	}
	if err := m.Set("visible", r.Visible); err != nil {
		return err
	}
	params, err := m.EnsureMap("parameters")
	if err != nil {
		return err
	}
	if err := syncMap(params, r.Parameters); err != nil {
		return err
	}
	if r.Metadata != nil {
		return m.Set("shapeMetadata", r.Metadata)
	}
	if ok, err := m.Has("shapeMetadata"); err != nil || !ok {
		return err
	}
	return m.Delete("shapeMetadata")
}

// SetParameter sets one parameter of the named object.
func (tx *Tx) SetParameter(name, key string, v any) error {
	if err := tx.mark(observe.TopicObjects); err != nil {
		return err
	}
	m, err := tx.objectMap(name)
	if err != nil {
		return err
	}
	params, err := m.EnsureMap("parameters")
	if err != nil {
		return err
	}
	return params.Set(key, v)
}

// SetVisible sets the named object's visibility.
func (tx *Tx) SetVisible(name string, visible bool) error {
	if err := tx.mark(observe.TopicObjects); err != nil {
		return err
	}
	m, err := tx.objectMap(name)
	if err != nil {
		return err
	}
	return m.Set("visible", visible)
}

// RemoveObject deletes the named object.
func (tx *Tx) RemoveObject(name string) error {
	if err := tx.mark(observe.TopicObjects); err != nil {
		return err
	}
	l, err := tx.objectList()
	if err != nil {
		return err
	}
	i, err := indexOf(l, name)
	if err != nil {
		return err
	}
	if i < 0 {
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return l.Delete(i)
}

// ReplaceObjects clears the object list and rebuilds it from records.
func (tx *Tx) ReplaceObjects(records []jcad.Record) error {
	seen := make(map[string]bool, len(records))
	for _, r := range records {
		if r.Name == "" {
			return fmt.Errorf("shared: object has no name")
		}
		if seen[r.Name] {
			return fmt.Errorf("%w: %q", ErrDuplicateName, r.Name)
		}
		seen[r.Name] = true
	}
	if err := tx.mark(observe.TopicObjects); err != nil {
		return err
	}
	l, err := tx.objectList()
	if err != nil {
		return err
	}
	if err := l.Clear(); err != nil {
		return err
	}
	for _, r := range records {
		if err := l.Append(r.Map()); err != nil {
			return fmt.Errorf("shared: object %q: %w", r.Name, err)
		}
	}
	return nil
}

func (tx *Tx) objectMap(name string) (*crdt.Map, error) {
	l, err := tx.objectList()
	if err != nil {
		return nil, err
	}
	i, err := indexOf(l, name)
	if err != nil {
		return nil, err
	}
	if i < 0 {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return l.Map(i)
}

// syncMap makes m hold exactly want, writing only keys whose value
// differs.
func syncMap(m *crdt.Map, want map[string]any) error {
	have, err := m.Snapshot()
	if err != nil {
		return err
	}
	for k := range have {
		if _, keep := want[k]; !keep {
			if err := m.Delete(k); err != nil {
				return err
			}
		}
	}
	for k, v := range want {
		if cur, ok := have[k]; ok && reflect.DeepEqual(cur, crdt.Plain(v)) {
			continue
		}
		if err := m.Set(k, v); err != nil {
			return fmt.Errorf("%s: %w", k, err)
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Options, metadata, outputs, state
// ---------------------------------------------------------------------------

func (tx *Tx) Options() (map[string]any, error) { return tx.snapshot(keyOptions) }

func (tx *Tx) Option(key string) (any, error) {
	m, err := tx.root.Map(keyOptions)
	if err != nil {
		return nil, err
	}
	return m.Get(key)
}

func (tx *Tx) SetOption(key string, v any) error {
	return tx.setIn(observe.TopicOptions, keyOptions, key, v)
}

// ReplaceOptions clears the options and writes opts key by key.
func (tx *Tx) ReplaceOptions(opts map[string]any) error {
	return tx.replace(observe.TopicOptions, keyOptions, opts)
}

// Metadata returns the metadata entries. Values are JSON strings.
func (tx *Tx) Metadata() (map[string]string, error) {
	raw, err := tx.snapshot(keyMetadata)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("shared: metadata %q is %T", k, v)
		}
		out[k] = s
	}
	return out, nil
}

func (tx *Tx) SetMetadata(key, value string) error {
	return tx.setIn(observe.TopicMeta, keyMetadata, key, value)
}

func (tx *Tx) DeleteMetadata(key string) error {
	if err := tx.mark(observe.TopicMeta); err != nil {
		return err
	}
	m, err := tx.root.Map(keyMetadata)
	if err != nil {
		return err
	}
	ok, err := m.Has(key)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: metadata %q", ErrNotFound, key)
	}
	return m.Delete(key)
}

func (tx *Tx) ReplaceMetadata(meta map[string]string) error {
	m := make(map[string]any, len(meta))
	for k, v := range meta {
		m[k] = v
	}
	return tx.replace(observe.TopicMeta, keyMetadata, m)
}

// Outputs returns the kernel-derived results.
func (tx *Tx) Outputs() (map[string]any, error) { return tx.snapshot(keyOutputs) }

// ReplaceOutputs writes kernel-derived results. Outputs are not
// observed.
func (tx *Tx) ReplaceOutputs(outputs map[string]any) error {
	return tx.replace("", keyOutputs, outputs)
}

func (tx *Tx) State() (map[string]any, error) { return tx.snapshot(keyState) }

func (tx *Tx) SetState(key string, v any) error {
	return tx.setIn(observe.TopicState, keyState, key, v)
}

func (tx *Tx) snapshot(key string) (map[string]any, error) {
	m, err := tx.root.Map(key)
	if err != nil {
		return nil, err
	}
	return m.Snapshot()
}

func (tx *Tx) setIn(t observe.Topic, container, key string, v any) error {
	if err := tx.mark(t); err != nil {
		return err
	}
	m, err := tx.root.Map(container)
	if err != nil {
		return err
	}
	return m.Set(key, v)
}

func (tx *Tx) replace(t observe.Topic, container string, values map[string]any) error {
	if err := tx.mark(t); err != nil {
		return err
	}
	m, err := tx.root.Map(container)
	if err != nil {
		return err
	}
	if err := m.Clear(); err != nil {
		return err
	}
	for k, v := range values {
		if err := m.Set(k, v); err != nil {
			return fmt.Errorf("shared: %s %q: %w", container, k, err)
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Source
// ---------------------------------------------------------------------------

// Source returns the text source of a text-kind document.
func (tx *Tx) Source() (string, error) {
	if tx.kind.Binary() {
		return "", fmt.Errorf("%w: %s documents carry binary source", ErrWrongKind, tx.kind)
	}
	return tx.rawSource()
}

func (tx *Tx) SetSource(s string) error {
	if tx.kind.Binary() {
		return fmt.Errorf("%w: %s documents carry binary source", ErrWrongKind, tx.kind)
	}
	return tx.setRawSource(s)
}

// SourceBytes returns the decoded binary source of a native document.
func (tx *Tx) SourceBytes() ([]byte, error) {
	if !tx.kind.Binary() {
		return nil, fmt.Errorf("%w: %s documents carry text source", ErrWrongKind, tx.kind)
	}
	s, err := tx.rawSource()
	if err != nil {
		return nil, err
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("shared: source is not base64: %w", err)
	}
	return b, nil
}

// SetSourceBytes stores b base64-encoded.
func (tx *Tx) SetSourceBytes(b []byte) error {
	if !tx.kind.Binary() {
		return fmt.Errorf("%w: %s documents carry text source", ErrWrongKind, tx.kind)
	}
	return tx.setRawSource(base64.StdEncoding.EncodeToString(b))
}

func (tx *Tx) rawSource() (string, error) {
	t, err := tx.root.Text(keySource)
	if err != nil {
		return "", err
	}
	return t.String()
}

func (tx *Tx) setRawSource(s string) error {
	if err := tx.mark(observe.TopicSource); err != nil {
		return err
	}
	t, err := tx.root.Text(keySource)
	if err != nil {
		return err
	}
	return t.Set(s)
}
