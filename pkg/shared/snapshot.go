package shared

import (
	"fmt"
	"strings"

	json "github.com/goccy/go-json"
	"golang.org/x/mod/semver"

	"github.com/chazu/cadsync/pkg/jcad"
)

// Schema versions understood by this package. A snapshot without a
// version is taken to be OldestVersion.
const (
	OldestVersion    = "3.0.0"
	SupportedVersion = "3.0.0"
)

// OriginSet tags transactions made by Set.
const OriginSet = "set"

// VersionMismatchError reports a snapshot written by a newer schema.
type VersionMismatchError struct {
	Got       string
	Supported string
}

func (e *VersionMismatchError) Error() string {
	return fmt.Sprintf("shared: snapshot schema version %s is newer than supported %s", e.Got, e.Supported)
}

type snapshot struct {
	SchemaVersion string            `json:"schemaVersion"`
	Objects       []map[string]any  `json:"objects"`
	Options       map[string]any    `json:"options"`
	Metadata      map[string]string `json:"metadata"`
	Outputs       map[string]any    `json:"outputs"`
}

// Get returns the document as an indented JSON snapshot with sorted keys.
// The source is not part of the snapshot.
func (d *Document) Get() (string, error) {
	snap := snapshot{SchemaVersion: d.supported}
	err := d.view(func(tx *Tx) error {
		records, err := tx.Objects()
		if err != nil {
			return err
		}
		snap.Objects = make([]map[string]any, 0, len(records))
		for _, r := range records {
			snap.Objects = append(snap.Objects, r.Map())
		}
		if snap.Options, err = tx.Options(); err != nil {
			return err
		}
		if snap.Metadata, err = tx.Metadata(); err != nil {
			return err
		}
		snap.Outputs, err = tx.Outputs()
		return err
	})
	if err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return "", fmt.Errorf("shared: encode snapshot: %w", err)
	}
	return string(data), nil
}

// Set replaces objects, options, metadata and outputs with the content of
// a snapshot, in one transaction. A snapshot from a newer schema version
// is rejected before anything changes.
func (d *Document) Set(data string) error {
	var raw struct {
		SchemaVersion *string          `json:"schemaVersion"`
		Objects       []map[string]any `json:"objects"`
		Options       map[string]any   `json:"options"`
		Metadata      map[string]any   `json:"metadata"`
		Outputs       map[string]any   `json:"outputs"`
	}
	if err := json.Unmarshal([]byte(data), &raw); err != nil {
		return fmt.Errorf("shared: decode snapshot: %w", err)
	}

	version := OldestVersion
	if raw.SchemaVersion != nil {
		version = *raw.SchemaVersion
	}
	if err := d.checkVersion(version); err != nil {
		return err
	}

	records := make([]jcad.Record, 0, len(raw.Objects))
	for i, m := range raw.Objects {
		r, err := jcad.RecordFromMap(m)
		if err != nil {
			return fmt.Errorf("shared: snapshot object %d: %w", i, err)
		}
		records = append(records, r)
	}
	meta, err := metadataStrings(raw.Metadata)
	if err != nil {
		return err
	}

	return d.Transact(OriginSet, func(tx *Tx) error {
		if err := tx.ReplaceObjects(records); err != nil {
			return err
		}
		if err := tx.ReplaceOptions(raw.Options); err != nil {
			return err
		}
		if err := tx.ReplaceMetadata(meta); err != nil {
			return err
		}
		return tx.ReplaceOutputs(raw.Outputs)
	})
}

func (d *Document) checkVersion(version string) error {
	got, supported := canonical(version), canonical(d.supported)
	if !semver.IsValid(got) {
		return fmt.Errorf("shared: invalid schema version %q", version)
	}
	if semver.Compare(got, supported) > 0 {
		return &VersionMismatchError{Got: version, Supported: d.supported}
	}
	return nil
}

func canonical(v string) string {
	if strings.HasPrefix(v, "v") {
		return v
	}
	return "v" + v
}

// metadataStrings keeps string entries as they are and encodes anything
// else as JSON.
func metadataStrings(in map[string]any) (map[string]string, error) {
	out := make(map[string]string, len(in))
	for k, v := range in {
		if s, ok := v.(string); ok {
			out[k] = s
			continue
		}
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("shared: metadata %q: %w", k, err)
		}
		out[k] = string(b)
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Read accessors
// ---------------------------------------------------------------------------

// Objects returns every object record in document order.
func (d *Document) Objects() (records []jcad.Record, err error) {
	err = d.view(func(tx *Tx) error {
		records, err = tx.Objects()
		return err
	})
	return records, err
}

// Object returns the named record or ErrNotFound.
func (d *Document) Object(name string) (r jcad.Record, err error) {
	err = d.view(func(tx *Tx) error {
		r, err = tx.Object(name)
		return err
	})
	return r, err
}

func (d *Document) Options() (opts map[string]any, err error) {
	err = d.view(func(tx *Tx) error {
		opts, err = tx.Options()
		return err
	})
	return opts, err
}

func (d *Document) Metadata() (meta map[string]string, err error) {
	err = d.view(func(tx *Tx) error {
		meta, err = tx.Metadata()
		return err
	})
	return meta, err
}

func (d *Document) Outputs() (out map[string]any, err error) {
	err = d.view(func(tx *Tx) error {
		out, err = tx.Outputs()
		return err
	})
	return out, err
}

func (d *Document) State() (state map[string]any, err error) {
	err = d.view(func(tx *Tx) error {
		state, err = tx.State()
		return err
	})
	return state, err
}

// Source returns the text source. See Tx.Source.
func (d *Document) Source() (s string, err error) {
	err = d.view(func(tx *Tx) error {
		s, err = tx.Source()
		return err
	})
	return s, err
}

// SourceBytes returns the binary source. See Tx.SourceBytes.
func (d *Document) SourceBytes() (b []byte, err error) {
	err = d.view(func(tx *Tx) error {
		b, err = tx.SourceBytes()
		return err
	})
	return b, err
}
