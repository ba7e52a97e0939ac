// Package reconcile moves a shared document to and from a native CAD
// document. Materialize diffs the shared object list against the native
// objects by name and applies the removals, additions and property
// updates; Load converts every native object back into a record.
//
// Failures converting one property or one object are logged, reported
// and skipped. Only a failure to serialize the native document aborts a
// materialize cycle.
package reconcile

import (
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/chazu/cadsync/pkg/env"
	"github.com/chazu/cadsync/pkg/jcad"
	"github.com/chazu/cadsync/pkg/native"
	"github.com/chazu/cadsync/pkg/props"
	"github.com/chazu/cadsync/pkg/shared"
)

// Transaction origins used by the engine.
const (
	OriginMaterialize = "materialize"
	OriginLoad        = "load"
)

// SerializationError reports that the native document could not be
// written back. The shared document's source is unchanged.
type SerializationError struct {
	Err error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("reconcile: serialize native document: %v", e.Err)
}

func (e *SerializationError) Unwrap() error { return e.Err }

// Skip records an object or property that was left as it was.
// Property is empty for object-level failures.
type Skip struct {
	Object   string
	Property string
	Err      error
}

// Report describes one reconciliation cycle.
type Report struct {
	Removed []string
	Added   []string
	Updated []string
	Skipped []Skip

	// References lists dangling or cyclic references among the incoming
	// objects.
	References []jcad.ReferenceError
	// Recompute is the kernel's recompute error, if any.
	Recompute error
}

func (r *Report) skip(log zerolog.Logger, object, property string, err error) {
	r.Skipped = append(r.Skipped, Skip{Object: object, Property: property, Err: err})
	ev := log.Warn().Str("object", object).Err(err)
	if property != "" {
		ev = ev.Str("property", property)
	}
	ev.Msg("skipped")
}

// Engine reconciles shared documents against native documents opened by
// one kernel. Cycles on the same engine never overlap.
type Engine struct {
	mu      sync.Mutex
	factory *jcad.Factory
	props   *props.Registry
	kernel  native.Kernel
	workDir string
	log     zerolog.Logger
}

func New(e *env.Env, k native.Kernel) *Engine {
	return &Engine{
		factory: e.Factory,
		props:   e.Props,
		kernel:  k,
		workDir: e.Config.WorkDir,
		log:     e.Log.With().Str("component", "reconcile").Logger(),
	}
}

// ---------------------------------------------------------------------------
// Materialize
// ---------------------------------------------------------------------------

// Materialize applies doc's objects, metadata and display options to the
// native document stored in doc's source, then stores the recomputed and
// serialized native document and its computed shapes back in doc.
func (e *Engine) Materialize(doc *shared.Document) (*Report, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var (
		records []jcad.Record
		blob    []byte
		meta    map[string]string
		opts    map[string]any
	)
	err := doc.View(func(tx *shared.Tx) error {
		var err error
		if records, err = tx.Objects(); err != nil {
			return err
		}
		if blob, err = tx.SourceBytes(); err != nil {
			return err
		}
		if meta, err = tx.Metadata(); err != nil {
			return err
		}
		opts, err = tx.Options()
		return err
	})
	if err != nil {
		return nil, err
	}

	report := &Report{}
	var data []byte
	var outputs map[string]any
	err = withWorkingCopy(e.workDir, e.kernel, blob, func(nd native.Document) error {
		nd.SetMeta(meta)
		e.apply(nd, records, report)
		nd.SetGuiData(toGuiData(opts))

		if err := nd.Recompute(); err != nil {
			report.Recompute = err
			e.log.Warn().Err(err).Msg("recompute")
		}
		var serr error
		if data, serr = nd.Serialize(); serr != nil {
			return &SerializationError{Err: serr}
		}
		outputs = shapes(nd)
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = doc.Transact(OriginMaterialize, func(tx *shared.Tx) error {
		if err := tx.SetSourceBytes(data); err != nil {
			return err
		}
		return tx.ReplaceOutputs(outputs)
	})
	if err != nil {
		return nil, err
	}
	e.log.Info().
		Int("removed", len(report.Removed)).
		Int("added", len(report.Added)).
		Int("updated", len(report.Updated)).
		Int("skipped", len(report.Skipped)).
		Msg("materialized")
	return report, nil
}

// apply removes, adds and updates native objects to match records.
func (e *Engine) apply(nd native.Document, records []jcad.Record, report *Report) {
	current := lo.Map(nd.Objects(), func(o native.Object, _ int) string { return o.Name() })
	incoming := lo.Map(records, func(r jcad.Record, _ int) string { return r.Name })
	byName := lo.KeyBy(records, func(r jcad.Record) string { return r.Name })

	toRemove, toAdd := lo.Difference(current, incoming)
	for _, name := range toRemove {
		if err := nd.RemoveObject(name); err != nil {
			report.skip(e.log, name, "", err)
			continue
		}
		report.Removed = append(report.Removed, name)
	}
	for _, name := range toAdd {
		if _, err := nd.AddObject(byName[name].Shape, name); err != nil {
			report.skip(e.log, name, "", err)
			continue
		}
		report.Added = append(report.Added, name)
	}

	report.References = e.references(records)
	for _, re := range report.References {
		e.log.Warn().Str("object", re.Object).Msg(re.Message)
	}

	common := lo.Filter(incoming, func(name string, _ int) bool { return lo.Contains(current, name) })
	toUpdate := append(common, report.Added...)
	for _, name := range toUpdate {
		o, ok := nd.Object(name)
		if !ok {
			continue
		}
		if e.update(nd, o, byName[name], records, report) {
			report.Updated = append(report.Updated, name)
		}
	}
}

// update writes one record onto its native object and reports whether
// the record was accepted. Rejected properties do not reject the record.
func (e *Engine) update(nd native.Document, o native.Object, r jcad.Record, records []jcad.Record, report *Report) bool {
	if _, known := e.factory.Schema(jcad.Shape(r.Shape)); known {
		projected, err := e.factory.Normalize(r)
		if err != nil {
			report.skip(e.log, r.Name, "", err)
			return false
		}
		r = projected
	}
	o.SetVisible(r.Visible)

	keys := lo.Keys(r.Parameters)
	sort.Strings(keys)
	for _, prop := range keys {
		typeID := o.PropertyType(prop)
		if typeID == "" {
			e.log.Debug().Str("object", r.Name).Str("property", prop).Msg("not declared natively")
			continue
		}
		if _, ok := e.props.Lookup(typeID); !ok {
			e.log.Debug().Str("object", r.Name).Str("property", prop).Str("type", typeID).Msg("no handler")
			continue
		}
		current, _ := o.Property(prop)
		ctx := &props.Context{Records: records, Doc: nd, Object: o, Property: prop, Current: current}
		res, err := e.props.ToNative(typeID, r.Parameters[prop], ctx)
		if err != nil {
			report.skip(e.log, r.Name, prop, err)
			continue
		}
		if a, ok := res.(props.Assign); ok {
			if err := o.SetProperty(prop, a.Value); err != nil {
				report.skip(e.log, r.Name, prop, err)
			}
		}
	}
	return true
}

// references checks the references of every valid record with a schema.
// Records without one can be referenced but are not checked.
func (e *Engine) references(records []jcad.Record) []jcad.ReferenceError {
	var objs []*jcad.Object
	var others []string
	for _, r := range records {
		if obj, err := e.factory.Create(r); err == nil {
			objs = append(objs, obj)
		} else {
			others = append(others, r.Name)
		}
	}
	return jcad.ValidateReferences(objs, others...)
}

// shapes collects the computed shape summary of every object that has
// one, keyed by object name.
func shapes(nd native.Document) map[string]any {
	out := make(map[string]any)
	for _, o := range nd.Objects() {
		if o.PropertyType("Shape") != "Part::PropertyPartShape" {
			continue
		}
		v, _ := o.Property("Shape")
		if s, ok := v.(native.Shape); ok {
			out[o.Name()] = props.ShapeSummary(s)
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Load
// ---------------------------------------------------------------------------

// Load replaces doc's objects, metadata and options.guidata with the
// content of the native document in doc's source. Properties without a
// handler or without a value are recorded as nil. The report lists every
// loaded object as added.
func (e *Engine) Load(doc *shared.Document) (*Report, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	blob, err := doc.SourceBytes()
	if err != nil {
		return nil, err
	}

	report := &Report{}
	var records []jcad.Record
	var meta map[string]string
	var gui map[string]any
	err = withWorkingCopy(e.workDir, e.kernel, blob, func(nd native.Document) error {
		for _, o := range nd.Objects() {
			records = append(records, e.record(nd, o, report))
		}
		meta = nd.Meta()
		gui = fromGuiData(nd.GuiData())
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = doc.Transact(OriginLoad, func(tx *shared.Tx) error {
		if err := tx.ReplaceObjects(records); err != nil {
			return err
		}
		if err := tx.ReplaceMetadata(meta); err != nil {
			return err
		}
		return tx.SetOption(optionGuiData, gui)
	})
	if err != nil {
		return nil, err
	}
	report.Added = lo.Map(records, func(r jcad.Record, _ int) string { return r.Name })
	e.log.Info().Int("objects", len(records)).Int("skipped", len(report.Skipped)).Msg("loaded")
	return report, nil
}

func (e *Engine) record(nd native.Document, o native.Object, report *Report) jcad.Record {
	r := jcad.Record{
		Name:       o.Name(),
		Shape:      o.TypeID(),
		Visible:    o.Visible(),
		Parameters: make(map[string]any),
	}
	for _, prop := range o.Properties() {
		typeID := o.PropertyType(prop)
		v, _ := o.Property(prop)
		ctx := &props.Context{Doc: nd, Object: o, Property: prop, Current: v}
		value, ok, err := e.props.ToDocument(typeID, v, ctx)
		if err != nil {
			report.skip(e.log, r.Name, prop, err)
		}
		if !ok || err != nil {
			value = nil
		}
		r.Parameters[prop] = value
	}
	return r
}
