// Command cadsync converts between native CAD files and shared document
// snapshots, and builds snapshots from scene scripts.
package main

import (
	"fmt"
	"os"

	"github.com/docopt/docopt-go"

	"github.com/chazu/cadsync/internal/config"
	"github.com/chazu/cadsync/pkg/engine"
	"github.com/chazu/cadsync/pkg/env"
	"github.com/chazu/cadsync/pkg/kernel/sdfx"
	"github.com/chazu/cadsync/pkg/native/memdoc"
	"github.com/chazu/cadsync/pkg/reconcile"
	"github.com/chazu/cadsync/pkg/shared"
)

const Version = "0.1.0"

const usage = `cadsync.

Usage:
    cadsync load <native> [--out=<snapshot>] [--config=<file>]
    cadsync materialize <snapshot> <native> [--out=<native>] [--config=<file>]
    cadsync script <file> [--out=<snapshot>] [--config=<file>]
    cadsync version
    cadsync -h | --help

Options:
    -h --help          Show this screen.
    --out=<path>       Write the result here instead of stdout.
    --config=<file>    YAML configuration file.`

func main() {
	opts, err := docopt.ParseArgs(usage, os.Args[1:], Version)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	if v, _ := opts.Bool("version"); v {
		fmt.Println(Version)
		return
	}

	path, _ := opts.String("--config")
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	e := env.New(cfg)

	var run func(*env.Env, docopt.Opts) error
	switch {
	case flag(opts, "load"):
		run = load
	case flag(opts, "materialize"):
		run = materialize
	case flag(opts, "script"):
		run = script
	}
	if err := run(e, opts); err != nil {
		e.Log.Error().Err(err).Msg("cadsync failed")
		os.Exit(1)
	}
}

func flag(opts docopt.Opts, name string) bool {
	v, _ := opts.Bool(name)
	return v
}

func newDocument(e *env.Env, kind shared.Kind) (*shared.Document, error) {
	return shared.New(shared.Options{
		Kind:             kind,
		SupportedVersion: e.Config.SchemaVersion,
		Logger:           e.Log,
	})
}

func newReconciler(e *env.Env) *reconcile.Engine {
	return reconcile.New(e, memdoc.NewKernel(sdfx.New()))
}

// load reads a native file and prints its snapshot.
func load(e *env.Env, opts docopt.Opts) error {
	in, _ := opts.String("<native>")
	blob, err := os.ReadFile(in)
	if err != nil {
		return err
	}
	doc, err := newDocument(e, shared.KindNative)
	if err != nil {
		return err
	}
	if err := doc.Transact(reconcile.OriginLoad, func(tx *shared.Tx) error {
		return tx.SetSourceBytes(blob)
	}); err != nil {
		return err
	}
	if _, err := newReconciler(e).Load(doc); err != nil {
		return err
	}
	snapshot, err := doc.Get()
	if err != nil {
		return err
	}
	return write(opts, []byte(snapshot))
}

// materialize applies a snapshot to a native file and writes the result.
func materialize(e *env.Env, opts docopt.Opts) error {
	snapPath, _ := opts.String("<snapshot>")
	nativePath, _ := opts.String("<native>")
	snapshot, err := os.ReadFile(snapPath)
	if err != nil {
		return err
	}
	blob, err := os.ReadFile(nativePath)
	if err != nil {
		return err
	}
	doc, err := newDocument(e, shared.KindNative)
	if err != nil {
		return err
	}
	if err := doc.Transact(reconcile.OriginLoad, func(tx *shared.Tx) error {
		return tx.SetSourceBytes(blob)
	}); err != nil {
		return err
	}
	if err := doc.Set(string(snapshot)); err != nil {
		return err
	}
	if _, err := newReconciler(e).Materialize(doc); err != nil {
		return err
	}
	out, err := doc.SourceBytes()
	if err != nil {
		return err
	}
	return write(opts, out)
}

// script evaluates a scene script and prints the snapshot it builds.
func script(e *env.Env, opts docopt.Opts) error {
	in, _ := opts.String("<file>")
	src, err := os.ReadFile(in)
	if err != nil {
		return err
	}
	doc, err := newDocument(e, shared.KindScript)
	if err != nil {
		return err
	}
	if err := doc.Transact(engine.OriginScript, func(tx *shared.Tx) error {
		return tx.SetSource(string(src))
	}); err != nil {
		return err
	}
	evalErrs, err := engine.NewEngine(e).Run(doc)
	if err != nil {
		return err
	}
	if len(evalErrs) > 0 {
		for _, ee := range evalErrs {
			fmt.Fprintf(os.Stderr, "%s: %s\n", in, ee.Error())
		}
		return fmt.Errorf("%s: %d evaluation errors", in, len(evalErrs))
	}
	snapshot, err := doc.Get()
	if err != nil {
		return err
	}
	return write(opts, []byte(snapshot))
}

func write(opts docopt.Opts, data []byte) error {
	out, _ := opts.String("--out")
	if out == "" {
		_, err := os.Stdout.Write(append(data, '\n'))
		return err
	}
	return os.WriteFile(out, data, 0o644)
}
