package reconcile

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/oklog/ulid/v2"

	"github.com/chazu/cadsync/pkg/native"
)

// withWorkingCopy writes blob to a fresh file in dir, opens it with k and
// runs fn. The file is removed on every exit path.
func withWorkingCopy(dir string, k native.Kernel, blob []byte, fn func(doc native.Document) error) error {
	if dir == "" {
		dir = os.TempDir()
	}
	path := filepath.Join(dir, "cadsync-"+ulid.Make().String()+".native")
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("reconcile: working copy: %w", err)
	}
	defer os.Remove(path)

	_, err = f.Write(blob)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("reconcile: working copy: %w", err)
	}

	doc, err := k.Open(path)
	if err != nil {
		return fmt.Errorf("reconcile: open native document: %w", err)
	}
	return fn(doc)
}
