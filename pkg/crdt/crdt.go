// Package crdt is a thin adapter over automerge. It exposes documents as
// nested maps, lists and text holding plain Go values (map[string]any,
// []any, string, float64, bool, nil) and hides the container plumbing
// of the underlying library.
package crdt

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/automerge/automerge-go"
)

// Doc is a replicated document.
type Doc struct {
	d *automerge.Doc
}

// New returns an empty document.
func New() *Doc {
	return &Doc{d: automerge.New()}
}

// Load restores a document saved with Save.
func Load(data []byte) (*Doc, error) {
	d, err := automerge.Load(data)
	if err != nil {
		return nil, fmt.Errorf("crdt: load: %w", err)
	}
	return &Doc{d: d}, nil
}

// Save returns the full encoded document.
func (d *Doc) Save() []byte { return d.d.Save() }

// SaveIncremental returns the changes made since the previous Save or
// SaveIncremental call.
func (d *Doc) SaveIncremental() []byte { return d.d.SaveIncremental() }

// LoadIncremental applies changes produced by another replica's
// SaveIncremental.
func (d *Doc) LoadIncremental(data []byte) error {
	if err := d.d.LoadIncremental(data); err != nil {
		return fmt.Errorf("crdt: apply changes: %w", err)
	}
	return nil
}

// Fork returns an independent copy with its own actor.
func (d *Doc) Fork() (*Doc, error) {
	f, err := d.d.Fork()
	if err != nil {
		return nil, fmt.Errorf("crdt: fork: %w", err)
	}
	return &Doc{d: f}, nil
}

// Merge applies every change of other that d lacks.
func (d *Doc) Merge(other *Doc) error {
	if _, err := d.d.Merge(other.d); err != nil {
		return fmt.Errorf("crdt: merge: %w", err)
	}
	return nil
}

// Commit records pending edits as one change. A commit with no pending
// edits records an empty change.
func (d *Doc) Commit(msg string) error {
	if _, err := d.d.Commit(msg, automerge.CommitOptions{AllowEmpty: true}); err != nil {
		return fmt.Errorf("crdt: commit: %w", err)
	}
	return nil
}

// Root returns the root map.
func (d *Doc) Root() *Map {
	return &Map{m: d.d.RootMap()}
}

// ---------------------------------------------------------------------------
// Maps
// ---------------------------------------------------------------------------

// Map is a map container inside a document.
type Map struct {
	m *automerge.Map
}

// Keys returns the keys of m, sorted.
func (m *Map) Keys() ([]string, error) {
	keys, err := m.m.Keys()
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *Map) Len() int { return m.m.Len() }

// Get returns the plain value at key, or nil when key is absent.
func (m *Map) Get(key string) (any, error) {
	v, err := m.m.Get(key)
	if err != nil {
		return nil, err
	}
	return plainValue(v)
}

// Has reports whether key is present.
func (m *Map) Has(key string) (bool, error) {
	v, err := m.m.Get(key)
	if err != nil {
		return false, err
	}
	return v.Kind() != automerge.KindVoid, nil
}

// Set writes v at key, creating nested containers for maps and slices.
func (m *Map) Set(key string, v any) error {
	switch x := normalize(v).(type) {
	case map[string]any:
		if err := m.m.Set(key, automerge.NewMap()); err != nil {
			return err
		}
		child, err := m.Map(key)
		if err != nil {
			return err
		}
		return child.fill(x)
	case []any:
		if err := m.m.Set(key, automerge.NewList()); err != nil {
			return err
		}
		child, err := m.List(key)
		if err != nil {
			return err
		}
		return child.fill(x)
	default:
		return m.m.Set(key, x)
	}
}

func (m *Map) Delete(key string) error { return m.m.Delete(key) }

// Clear deletes every key.
func (m *Map) Clear() error {
	keys, err := m.Keys()
	if err != nil {
		return err
	}
	for _, k := range keys {
		if err := m.m.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

// Map returns the nested map at key.
func (m *Map) Map(key string) (*Map, error) {
	v, err := m.m.Get(key)
	if err != nil {
		return nil, err
	}
	if v.Kind() != automerge.KindMap {
		return nil, fmt.Errorf("crdt: %q is %v, not a map", key, v.Kind())
	}
	return &Map{m: v.Map()}, nil
}

// List returns the nested list at key.
func (m *Map) List(key string) (*List, error) {
	v, err := m.m.Get(key)
	if err != nil {
		return nil, err
	}
	if v.Kind() != automerge.KindList {
		return nil, fmt.Errorf("crdt: %q is %v, not a list", key, v.Kind())
	}
	return &List{l: v.List()}, nil
}

// Text returns the nested text at key.
func (m *Map) Text(key string) (*Text, error) {
	v, err := m.m.Get(key)
	if err != nil {
		return nil, err
	}
	if v.Kind() != automerge.KindText {
		return nil, fmt.Errorf("crdt: %q is %v, not text", key, v.Kind())
	}
	return &Text{t: v.Text()}, nil
}

// EnsureMap returns the nested map at key, creating it if absent.
func (m *Map) EnsureMap(key string) (*Map, error) {
	if ok, err := m.Has(key); err != nil || !ok {
		if err != nil {
			return nil, err
		}
		if err := m.m.Set(key, automerge.NewMap()); err != nil {
			return nil, err
		}
	}
	return m.Map(key)
}

// EnsureList returns the nested list at key, creating it if absent.
func (m *Map) EnsureList(key string) (*List, error) {
	if ok, err := m.Has(key); err != nil || !ok {
		if err != nil {
			return nil, err
		}
		if err := m.m.Set(key, automerge.NewList()); err != nil {
			return nil, err
		}
	}
	return m.List(key)
}

// EnsureText returns the nested text at key, creating it if absent.
func (m *Map) EnsureText(key string) (*Text, error) {
	if ok, err := m.Has(key); err != nil || !ok {
		if err != nil {
			return nil, err
		}
		if err := m.m.Set(key, automerge.NewText("")); err != nil {
			return nil, err
		}
	}
	return m.Text(key)
}

// Snapshot returns m as a plain map.
func (m *Map) Snapshot() (map[string]any, error) {
	keys, err := m.Keys()
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(keys))
	for _, k := range keys {
		v, err := m.Get(k)
		if err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, nil
}

func (m *Map) fill(x map[string]any) error {
	keys := make([]string, 0, len(x))
	for k := range x {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := m.Set(k, x[k]); err != nil {
			return fmt.Errorf("%s: %w", k, err)
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Lists
// ---------------------------------------------------------------------------

// List is an ordered list container inside a document.
type List struct {
	l *automerge.List
}

func (l *List) Len() int { return l.l.Len() }

// Get returns the plain value at idx.
func (l *List) Get(idx int) (any, error) {
	v, err := l.l.Get(idx)
	if err != nil {
		return nil, err
	}
	return plainValue(v)
}

// Map returns the nested map at idx.
func (l *List) Map(idx int) (*Map, error) {
	v, err := l.l.Get(idx)
	if err != nil {
		return nil, err
	}
	if v.Kind() != automerge.KindMap {
		return nil, fmt.Errorf("crdt: element %d is %v, not a map", idx, v.Kind())
	}
	return &Map{m: v.Map()}, nil
}

// Append adds v at the end.
func (l *List) Append(v any) error {
	return l.Insert(l.Len(), v)
}

// Insert places v before the element at idx.
func (l *List) Insert(idx int, v any) error {
	switch x := normalize(v).(type) {
	case map[string]any:
		if err := l.l.Insert(idx, automerge.NewMap()); err != nil {
			return err
		}
		child, err := l.Map(idx)
		if err != nil {
			return err
		}
		return child.fill(x)
	case []any:
		if err := l.l.Insert(idx, automerge.NewList()); err != nil {
			return err
		}
		child, err := l.list(idx)
		if err != nil {
			return err
		}
		return child.fill(x)
	default:
		return l.l.Insert(idx, x)
	}
}

// Set replaces the element at idx.
func (l *List) Set(idx int, v any) error {
	if err := l.l.Delete(idx); err != nil {
		return err
	}
	return l.Insert(idx, v)
}

func (l *List) Delete(idx int) error { return l.l.Delete(idx) }

// Clear deletes every element.
func (l *List) Clear() error {
	for l.Len() > 0 {
		if err := l.l.Delete(l.Len() - 1); err != nil {
			return err
		}
	}
	return nil
}

// Snapshot returns l as a plain slice.
func (l *List) Snapshot() ([]any, error) {
	out := make([]any, l.Len())
	for i := range out {
		v, err := l.Get(i)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (l *List) list(idx int) (*List, error) {
	v, err := l.l.Get(idx)
	if err != nil {
		return nil, err
	}
	if v.Kind() != automerge.KindList {
		return nil, fmt.Errorf("crdt: element %d is %v, not a list", idx, v.Kind())
	}
	return &List{l: v.List()}, nil
}

func (l *List) fill(xs []any) error {
	for i, x := range xs {
		if err := l.Append(x); err != nil {
			return fmt.Errorf("[%d]: %w", i, err)
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Text
// ---------------------------------------------------------------------------

// Text is a collaborative string.
type Text struct {
	t *automerge.Text
}

func (t *Text) String() (string, error) { return t.t.Get() }

// Set replaces the whole content.
func (t *Text) Set(s string) error { return t.t.Set(s) }

// ---------------------------------------------------------------------------
// Values
// ---------------------------------------------------------------------------

func plainValue(v *automerge.Value) (any, error) {
	switch v.Kind() {
	case automerge.KindVoid, automerge.KindNull:
		return nil, nil
	case automerge.KindMap:
		return (&Map{m: v.Map()}).Snapshot()
	case automerge.KindList:
		return (&List{l: v.List()}).Snapshot()
	case automerge.KindText:
		return v.Text().Get()
	case automerge.KindStr:
		return v.Str(), nil
	case automerge.KindBool:
		return v.Bool(), nil
	case automerge.KindFloat64:
		return v.Float64(), nil
	case automerge.KindInt64:
		return float64(v.Int64()), nil
	case automerge.KindUint64:
		return float64(v.Uint64()), nil
	case automerge.KindBytes:
		return v.Bytes(), nil
	default:
		return v.Interface(), nil
	}
}

// normalize turns typed Go containers into map[string]any and []any and
// every number into float64, matching what Get returns.
func normalize(v any) any {
	switch x := v.(type) {
	case nil, string, bool, float64, map[string]any, []any, []byte:
		return x
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint())
	case reflect.Float32:
		return rv.Float()
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = rv.Index(i).Interface()
		}
		return out
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return v
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[iter.Key().String()] = iter.Value().Interface()
		}
		return out
	case reflect.String:
		return rv.String()
	case reflect.Bool:
		return rv.Bool()
	default:
		return v
	}
}

// Plain deeply converts v to the shape Get and Snapshot would return
// after storing it, so stored and candidate values can be compared.
func Plain(v any) any {
	switch x := normalize(v).(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = Plain(e)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = Plain(e)
		}
		return out
	default:
		return x
	}
}
