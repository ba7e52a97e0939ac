// Package shared is the replicated representation of a CAD scene: an
// ordered object list, display options, metadata and annotations,
// kernel outputs, session state, and the native source payload.
//
// Every mutation goes through Transact. Readers never observe a partly
// applied transaction, and observers are notified once per transaction
// for each sub-structure it touched.
package shared

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/rs/zerolog"

	"github.com/chazu/cadsync/pkg/crdt"
	"github.com/chazu/cadsync/pkg/observe"
)

// Root keys of the replicated document.
const (
	keyObjects  = "objects"
	keyOptions  = "options"
	keyMetadata = "metadata"
	keyOutputs  = "outputs"
	keyState    = "state"
	keySource   = "source"
)

// OriginRemote tags events caused by changes from another replica.
const OriginRemote = "remote"

// Kind selects how the source payload is interpreted.
type Kind int

const (
	KindJCad   Kind = iota // text source, JSON snapshot
	KindScript             // text source, scene script
	KindNative             // base64 native kernel file
)

func (k Kind) String() string {
	switch k {
	case KindJCad:
		return "jcad"
	case KindScript:
		return "script"
	case KindNative:
		return "native"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Binary reports whether the source payload is base64 binary.
func (k Kind) Binary() bool { return k == KindNative }

var (
	// ErrNotFound is returned for operations on an object name that is
	// not in the document.
	ErrNotFound = errors.New("shared: object not found")
	// ErrDuplicateName is returned when adding an object whose name is
	// taken.
	ErrDuplicateName = errors.New("shared: duplicate object name")
	// ErrWrongKind is returned when accessing the source in the wrong
	// representation for the document kind.
	ErrWrongKind = errors.New("shared: wrong source kind")
)

// Options configure a Document.
type Options struct {
	Kind             Kind
	SupportedVersion string // defaults to SupportedVersion
	Logger           zerolog.Logger
}

// Document is a shared CAD document.
type Document struct {
	mu        sync.RWMutex
	doc       *crdt.Doc
	kind      Kind
	supported string
	bus       *observe.Bus
	base      zerolog.Logger
	log       zerolog.Logger
}

// New returns an empty document with every root container created.
func New(opts Options) (*Document, error) {
	doc := crdt.New()
	root := doc.Root()
	for _, key := range []string{keyOptions, keyMetadata, keyOutputs, keyState} {
		if _, err := root.EnsureMap(key); err != nil {
			return nil, fmt.Errorf("shared: init %s: %w", key, err)
		}
	}
	if _, err := root.EnsureList(keyObjects); err != nil {
		return nil, fmt.Errorf("shared: init %s: %w", keyObjects, err)
	}
	if _, err := root.EnsureText(keySource); err != nil {
		return nil, fmt.Errorf("shared: init %s: %w", keySource, err)
	}
	if err := doc.Commit("init"); err != nil {
		return nil, err
	}
	return newDocument(doc, opts), nil
}

// Open restores a document from Save output.
func Open(data []byte, opts Options) (*Document, error) {
	doc, err := crdt.Load(data)
	if err != nil {
		return nil, err
	}
	return newDocument(doc, opts), nil
}

func newDocument(doc *crdt.Doc, opts Options) *Document {
	supported := opts.SupportedVersion
	if supported == "" {
		supported = SupportedVersion
	}
	return &Document{
		doc:       doc,
		kind:      opts.Kind,
		supported: supported,
		bus:       observe.NewBus(),
		base:      opts.Logger,
		log:       opts.Logger.With().Str("component", "shared").Logger(),
	}
}

// Kind returns the document kind.
func (d *Document) Kind() Kind { return d.kind }

// ---------------------------------------------------------------------------
// Observation
// ---------------------------------------------------------------------------

// Observe removes every previous subscription, then subscribes cb to all
// topics. The returned function removes cb again.
func (d *Document) Observe(cb observe.Handler) (unobserve func()) {
	d.bus.Reset()
	cancels := make([]func(), 0, len(observe.Topics))
	for _, t := range observe.Topics {
		cancels = append(cancels, d.bus.Subscribe(t, cb))
	}
	return func() {
		for _, c := range cancels {
			c()
		}
	}
}

// Unobserve removes every subscription.
func (d *Document) Unobserve() { d.bus.Reset() }

// ---------------------------------------------------------------------------
// Transactions
// ---------------------------------------------------------------------------

// Transact runs fn against a private fork of the document. When fn returns
// nil the fork's edits are committed as one change and merged; when fn
// returns an error or panics they are discarded.
func (d *Document) Transact(origin string, fn func(tx *Tx) error) error {
	touched, err := d.transact(origin, fn)
	if err != nil {
		return err
	}
	for _, t := range observe.Topics {
		if touched[t] {
			d.bus.Publish(t, origin)
		}
	}
	return nil
}

func (d *Document) transact(origin string, fn func(tx *Tx) error) (touched map[observe.Topic]bool, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	fork, err := d.doc.Fork()
	if err != nil {
		return nil, err
	}
	tx := &Tx{root: fork.Root(), kind: d.kind, touched: make(map[observe.Topic]bool)}

	if err := fn(tx); err != nil {
		d.log.Debug().Str("origin", origin).Err(err).Msg("transaction discarded")
		return nil, err
	}
	if !tx.dirty {
		return nil, nil
	}
	if err := fork.Commit(origin); err != nil {
		return nil, err
	}
	if err := d.doc.Merge(fork); err != nil {
		return nil, err
	}
	return tx.touched, nil
}

// View runs fn with read access to one consistent state. Mutators of
// the Tx fail.
func (d *Document) View(fn func(tx *Tx) error) error { return d.view(fn) }

// view runs fn with read access to the current state.
func (d *Document) view(fn func(tx *Tx) error) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return fn(&Tx{root: d.doc.Root(), kind: d.kind, readOnly: true})
}

// ---------------------------------------------------------------------------
// Replication
// ---------------------------------------------------------------------------

// Save returns the full encoded document.
func (d *Document) Save() []byte {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.doc.Save()
}

// Changes returns the changes made since the previous Save or Changes
// call, for delivery to other replicas.
func (d *Document) Changes() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.doc.SaveIncremental()
}

// ApplyChanges applies another replica's Changes output.
func (d *Document) ApplyChanges(data []byte) error {
	return d.remote(func(doc *crdt.Doc) error { return doc.LoadIncremental(data) })
}

// Fork returns an independent replica of d with the same kind.
func (d *Document) Fork() (*Document, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	f, err := d.doc.Fork()
	if err != nil {
		return nil, err
	}
	return newDocument(f, Options{Kind: d.kind, SupportedVersion: d.supported, Logger: d.base}), nil
}

// Merge applies every change of other that d lacks. other is copied
// before d is locked, so the two locks are never held together.
func (d *Document) Merge(other *Document) error {
	if other == d {
		return nil
	}
	other.mu.RLock()
	theirs, err := other.doc.Fork()
	other.mu.RUnlock()
	if err != nil {
		return err
	}
	return d.remote(func(doc *crdt.Doc) error { return doc.Merge(theirs) })
}

// remote applies a change from elsewhere and notifies observers of every
// sub-structure whose content differs afterwards.
func (d *Document) remote(apply func(doc *crdt.Doc) error) error {
	d.mu.Lock()
	before, err := d.structures()
	if err == nil {
		err = apply(d.doc)
	}
	var after map[observe.Topic]any
	if err == nil {
		after, err = d.structures()
	}
	d.mu.Unlock()
	if err != nil {
		return err
	}

	for _, t := range observe.Topics {
		if !reflect.DeepEqual(before[t], after[t]) {
			d.bus.Publish(t, OriginRemote)
		}
	}
	return nil
}

func (d *Document) structures() (map[observe.Topic]any, error) {
	root := d.doc.Root()
	out := make(map[observe.Topic]any, len(observe.Topics))
	for t, key := range map[observe.Topic]string{
		observe.TopicState:   keyState,
		observe.TopicSource:  keySource,
		observe.TopicObjects: keyObjects,
		observe.TopicOptions: keyOptions,
		observe.TopicMeta:    keyMetadata,
	} {
		v, err := root.Get(key)
		if err != nil {
			return nil, err
		}
		out[t] = v
	}
	return out, nil
}
