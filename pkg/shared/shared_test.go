package shared

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chazu/cadsync/pkg/jcad"
	"github.com/chazu/cadsync/pkg/observe"
)

func newDoc(t *testing.T, kind Kind) *Document {
	t.Helper()
	d, err := New(Options{Kind: kind, Logger: zerolog.Nop()})
	require.NoError(t, err)
	return d
}

func box(name string) jcad.Record {
	return jcad.Record{
		Name:       name,
		Shape:      "Part::Box",
		Visible:    true,
		Parameters: map[string]any{"Length": 1.0, "Width": 2.0, "Height": 3.0},
	}
}

func names(t *testing.T, d *Document) []string {
	t.Helper()
	records, err := d.Objects()
	require.NoError(t, err)
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.Name)
	}
	return out
}

func add(t *testing.T, d *Document, rs ...jcad.Record) {
	t.Helper()
	require.NoError(t, d.Transact("test", func(tx *Tx) error {
		for _, r := range rs {
			if err := tx.AddObject(r); err != nil {
				return err
			}
		}
		return nil
	}))
}

type recorder struct {
	events []observe.Event
}

func (r *recorder) handle(e observe.Event) { r.events = append(r.events, e) }

func (r *recorder) topics() []observe.Topic {
	out := make([]observe.Topic, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Topic)
	}
	return out
}

func TestNewDocumentIsEmpty(t *testing.T) {
	d := newDoc(t, KindJCad)

	records, err := d.Objects()
	require.NoError(t, err)
	assert.Empty(t, records)

	src, err := d.Source()
	require.NoError(t, err)
	assert.Equal(t, "", src)

	snap, err := d.Get()
	require.NoError(t, err)
	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(snap), &got))
	assert.Equal(t, SupportedVersion, got["schemaVersion"])
	assert.Equal(t, []any{}, got["objects"])
}

func TestAddObjectKeepsNamesUnique(t *testing.T) {
	d := newDoc(t, KindJCad)
	add(t, d, box("Box 1"))

	err := d.Transact("test", func(tx *Tx) error {
		if err := tx.AddObject(box("Box 2")); err != nil {
			return err
		}
		return tx.AddObject(box("Box 1"))
	})
	require.ErrorIs(t, err, ErrDuplicateName)
	assert.Equal(t, []string{"Box 1"}, names(t, d))
}

func TestTransactDiscardsOnError(t *testing.T) {
	d := newDoc(t, KindJCad)
	rec := &recorder{}
	d.Observe(rec.handle)

	boom := errors.New("boom")
	err := d.Transact("test", func(tx *Tx) error {
		require.NoError(t, tx.AddObject(box("Box 1")))
		require.NoError(t, tx.SetOption("grid", true))
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Empty(t, names(t, d))
	assert.Empty(t, rec.events)

	opts, err := d.Options()
	require.NoError(t, err)
	assert.Empty(t, opts)
}

func TestTransactDiscardsOnPanic(t *testing.T) {
	d := newDoc(t, KindJCad)

	assert.Panics(t, func() {
		_ = d.Transact("test", func(tx *Tx) error {
			_ = tx.AddObject(box("Box 1"))
			panic("boom")
		})
	})
	assert.Empty(t, names(t, d))

	// The lock was released.
	add(t, d, box("Box 2"))
	assert.Equal(t, []string{"Box 2"}, names(t, d))
}

func TestTransactPublishesTouchedTopicsOnce(t *testing.T) {
	d := newDoc(t, KindJCad)
	rec := &recorder{}
	d.Observe(rec.handle)

	require.NoError(t, d.Transact("ui", func(tx *Tx) error {
		if err := tx.AddObject(box("Box 1")); err != nil {
			return err
		}
		if err := tx.AddObject(box("Box 2")); err != nil {
			return err
		}
		if err := tx.SetMetadata("annotation_1", `{"contents":[]}`); err != nil {
			return err
		}
		return tx.SetState("dirty", true)
	}))

	assert.Equal(t, []observe.Topic{observe.TopicState, observe.TopicObjects, observe.TopicMeta}, rec.topics())
	for _, e := range rec.events {
		assert.Equal(t, "ui", e.Origin)
	}
}

func TestOutputsAloneCommitWithoutEvents(t *testing.T) {
	d := newDoc(t, KindJCad)
	rec := &recorder{}
	d.Observe(rec.handle)

	require.NoError(t, d.Transact("kernel", func(tx *Tx) error {
		return tx.ReplaceOutputs(map[string]any{"Box 1": map[string]any{"valid": true}})
	}))
	assert.Empty(t, rec.events)

	out, err := d.Outputs()
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"Box 1": map[string]any{"valid": true}}, out)
}

func TestObserveReplacesPreviousSubscription(t *testing.T) {
	d := newDoc(t, KindJCad)
	first, second := &recorder{}, &recorder{}
	d.Observe(first.handle)
	unobserve := d.Observe(second.handle)

	add(t, d, box("Box 1"))
	assert.Empty(t, first.events)
	assert.Len(t, second.events, 1)

	unobserve()
	add(t, d, box("Box 2"))
	assert.Len(t, second.events, 1)

	d.Observe(first.handle)
	d.Unobserve()
	add(t, d, box("Box 3"))
	assert.Empty(t, first.events)
}

func TestUpdateAndRemoveObject(t *testing.T) {
	d := newDoc(t, KindJCad)
	add(t, d, box("Box 1"), box("Box 2"))

	updated := box("Box 1")
	updated.Visible = false
	updated.Parameters = map[string]any{"Length": 5.0, "Width": 2.0}
	updated.Metadata = map[string]any{"mass": 1.0}

	require.NoError(t, d.Transact("test", func(tx *Tx) error {
		if err := tx.UpdateObject(updated); err != nil {
			return err
		}
		return tx.RemoveObject("Box 2")
	}))

	got, err := d.Object("Box 1")
	require.NoError(t, err)
	assert.Equal(t, updated, got)
	assert.Equal(t, []string{"Box 1"}, names(t, d))

	_, err = d.Object("Box 2")
	assert.ErrorIs(t, err, ErrNotFound)

	err = d.Transact("test", func(tx *Tx) error { return tx.RemoveObject("Box 2") })
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReadOnlyViewRejectsWrites(t *testing.T) {
	d := newDoc(t, KindJCad)
	err := d.view(func(tx *Tx) error { return tx.AddObject(box("Box 1")) })
	require.Error(t, err)
	assert.Empty(t, names(t, d))
}

func TestSourceKinds(t *testing.T) {
	text := newDoc(t, KindScript)
	require.NoError(t, text.Transact("test", func(tx *Tx) error {
		return tx.SetSource(`(box :name "B1")`)
	}))
	src, err := text.Source()
	require.NoError(t, err)
	assert.Equal(t, `(box :name "B1")`, src)
	_, err = text.SourceBytes()
	assert.ErrorIs(t, err, ErrWrongKind)

	native := newDoc(t, KindNative)
	blob := []byte{0, 1, 2, 0xff}
	require.NoError(t, native.Transact("test", func(tx *Tx) error {
		return tx.SetSourceBytes(blob)
	}))
	got, err := native.SourceBytes()
	require.NoError(t, err)
	assert.Equal(t, blob, got)
	_, err = native.Source()
	assert.ErrorIs(t, err, ErrWrongKind)
}

func TestSetGetRoundTrip(t *testing.T) {
	d := newDoc(t, KindJCad)
	add(t, d, box("Box 1"))
	require.NoError(t, d.Transact("test", func(tx *Tx) error {
		if err := tx.SetOption("guidata", map[string]any{"Box 1": map[string]any{"color": []any{1.0, 0.0, 0.0}}}); err != nil {
			return err
		}
		return tx.SetMetadata("annotation_1", `{"parent":"Box 1"}`)
	}))

	snap, err := d.Get()
	require.NoError(t, err)

	other := newDoc(t, KindJCad)
	require.NoError(t, other.Set(snap))
	again, err := other.Get()
	require.NoError(t, err)
	assert.Equal(t, snap, again)
}

func TestSetOwnSnapshot(t *testing.T) {
	t.Run("empty document", func(t *testing.T) {
		d := newDoc(t, KindJCad)
		snap, err := d.Get()
		require.NoError(t, err)
		require.NoError(t, d.Set(snap))
		again, err := d.Get()
		require.NoError(t, err)
		assert.Equal(t, snap, again)
	})

	t.Run("unchanged content", func(t *testing.T) {
		d := newDoc(t, KindJCad)
		add(t, d, box("Box 1"))
		snap, err := d.Get()
		require.NoError(t, err)
		require.NoError(t, d.Set(snap))
		require.NoError(t, d.Set(snap))
		assert.Equal(t, []string{"Box 1"}, names(t, d))
	})
}

func TestTransactWithoutEdits(t *testing.T) {
	d := newDoc(t, KindJCad)
	// Clearing empty outputs records no operations.
	require.NoError(t, d.Transact("test", func(tx *Tx) error { return tx.ReplaceOutputs(nil) }))
	out, err := d.Outputs()
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestSetVersionGate(t *testing.T) {
	d := newDoc(t, KindJCad)
	add(t, d, box("Box 1"))
	before, err := d.Get()
	require.NoError(t, err)

	tests := []struct {
		name     string
		snapshot string
		mismatch bool
		invalid  bool
	}{
		{name: "newer major", snapshot: `{"schemaVersion":"4.0.0","objects":[]}`, mismatch: true},
		{name: "newer patch", snapshot: `{"schemaVersion":"3.0.1","objects":[]}`, mismatch: true},
		{name: "not a version", snapshot: `{"schemaVersion":"latest","objects":[]}`, invalid: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := d.Set(tt.snapshot)
			require.Error(t, err)
			var vm *VersionMismatchError
			assert.Equal(t, tt.mismatch, errors.As(err, &vm))
			after, err := d.Get()
			require.NoError(t, err)
			assert.Equal(t, before, after)
		})
	}

	t.Run("missing version is the oldest", func(t *testing.T) {
		require.NoError(t, d.Set(`{"objects":[{"name":"B","shape":"Part::Box","parameters":{}}]}`))
		assert.Equal(t, []string{"B"}, names(t, d))
	})
}

func TestSetSupportedVersionOption(t *testing.T) {
	d, err := New(Options{Kind: KindJCad, SupportedVersion: "3.1.0", Logger: zerolog.Nop()})
	require.NoError(t, err)
	require.NoError(t, d.Set(`{"schemaVersion":"3.1.0","objects":[]}`))

	snap, err := d.Get()
	require.NoError(t, err)
	assert.True(t, strings.Contains(snap, `"schemaVersion": "3.1.0"`))
}

func TestSetRejectsDuplicateNames(t *testing.T) {
	d := newDoc(t, KindJCad)
	add(t, d, box("Box 1"))
	err := d.Set(`{"objects":[{"name":"A","shape":"Part::Box"},{"name":"A","shape":"Part::Box"}]}`)
	require.ErrorIs(t, err, ErrDuplicateName)
	assert.Equal(t, []string{"Box 1"}, names(t, d))
}

func TestForkMergeConverges(t *testing.T) {
	a := newDoc(t, KindJCad)
	b, err := a.Fork()
	require.NoError(t, err)

	add(t, a, box("A"))
	add(t, b, box("B"))

	rec := &recorder{}
	a.Observe(rec.handle)
	require.NoError(t, a.Merge(b))
	require.NoError(t, b.Merge(a))

	assert.ElementsMatch(t, []string{"A", "B"}, names(t, a))
	assert.Equal(t, names(t, a), names(t, b))
	require.Len(t, rec.events, 1)
	assert.Equal(t, observe.TopicObjects, rec.events[0].Topic)
	assert.Equal(t, OriginRemote, rec.events[0].Origin)

	// Merging again changes nothing and publishes nothing.
	require.NoError(t, a.Merge(b))
	assert.Len(t, rec.events, 1)
}

func TestMergeSelf(t *testing.T) {
	d := newDoc(t, KindJCad)
	add(t, d, box("A"))

	done := make(chan error, 1)
	go func() { done <- d.Merge(d) }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("d.Merge(d) did not return")
	}
	assert.Equal(t, []string{"A"}, names(t, d))
}

func TestConcurrentMergeBothWays(t *testing.T) {
	a := newDoc(t, KindJCad)
	b, err := a.Fork()
	require.NoError(t, err)
	add(t, a, box("A"))
	add(t, b, box("B"))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 500; i++ {
			var wg sync.WaitGroup
			wg.Add(2)
			go func() {
				defer wg.Done()
				_ = a.Merge(b)
			}()
			go func() {
				defer wg.Done()
				_ = b.Merge(a)
			}()
			wg.Wait()
		}
	}()
	select {
	case <-done:
	case <-time.After(20 * time.Second):
		t.Fatal("a.Merge(b) and b.Merge(a) did not return")
	}
	assert.ElementsMatch(t, []string{"A", "B"}, names(t, a))
	assert.ElementsMatch(t, []string{"A", "B"}, names(t, b))
}

func TestViewIsConsistentDuringSet(t *testing.T) {
	d := newDoc(t, KindJCad)
	snapshots := []string{
		`{"objects":[{"name":"A","shape":"Part::Box","parameters":{}}],"options":{"guidata":{"A":{"visibility":true}}}}`,
		`{"objects":[{"name":"B","shape":"Part::Box","parameters":{}}],"options":{"guidata":{"B":{"visibility":true}}}}`,
	}
	require.NoError(t, d.Set(snapshots[0]))

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			_ = d.Set(snapshots[i%2])
		}
	}()

	for i := 0; i < 200; i++ {
		err := d.View(func(tx *Tx) error {
			records, err := tx.Objects()
			if err != nil {
				return err
			}
			opts, err := tx.Options()
			if err != nil {
				return err
			}
			gui, _ := opts["guidata"].(map[string]any)
			require.Len(t, records, 1)
			assert.Contains(t, gui, records[0].Name)
			return nil
		})
		require.NoError(t, err)
	}
	close(stop)
	wg.Wait()
}

func TestChangesApply(t *testing.T) {
	a := newDoc(t, KindJCad)
	b, err := Open(a.Save(), Options{Kind: KindJCad, Logger: zerolog.Nop()})
	require.NoError(t, err)
	_ = a.Changes()

	add(t, a, box("Box 1"))
	require.NoError(t, a.Transact("test", func(tx *Tx) error { return tx.SetOption("grid", true) }))

	rec := &recorder{}
	b.Observe(rec.handle)
	require.NoError(t, b.ApplyChanges(a.Changes()))

	assert.Equal(t, []string{"Box 1"}, names(t, b))
	assert.Equal(t, []observe.Topic{observe.TopicObjects, observe.TopicOptions}, rec.topics())
}
