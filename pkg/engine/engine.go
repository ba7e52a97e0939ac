// Package engine evaluates scene scripts. It wraps zygomys in a sandboxed
// environment whose builtins edit a scratch scene; the resulting objects
// and display options replace those of a script document in one
// transaction.
package engine

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	zygo "github.com/glycerine/zygomys/zygo"
	"github.com/rs/zerolog"

	"github.com/chazu/cadsync/pkg/env"
	"github.com/chazu/cadsync/pkg/jcad"
	"github.com/chazu/cadsync/pkg/scene"
	"github.com/chazu/cadsync/pkg/shared"
)

// OriginScript tags transactions made by Run.
const OriginScript = "script"

// EvalError represents a non-fatal error encountered during evaluation,
// such as a parse error or a runtime error in user code.
type EvalError struct {
	Line    int
	Col     int
	Message string
}

func (e EvalError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %s", e.Line, e.Message)
	}
	return e.Message
}

// Result is the scene a script built.
type Result struct {
	Objects []jcad.Record
	GuiData map[string]any // options.guidata set by the script, nil when none
}

// Engine evaluates scripts. It is safe for concurrent use; each call to
// Evaluate creates a fresh sandboxed environment for determinism.
type Engine struct {
	mu         sync.Mutex
	generation uint64
	env        *env.Env
	timeout    time.Duration
	log        zerolog.Logger
}

// NewEngine returns an Engine. The evaluation timeout is taken from the
// configuration, EvalTimeout when unset.
func NewEngine(e *env.Env) *Engine {
	timeout := e.Config.ScriptTimeout
	if timeout <= 0 {
		timeout = EvalTimeout
	}
	return &Engine{
		env:     e,
		timeout: timeout,
		log:     e.Log.With().Str("component", "engine").Logger(),
	}
}

// Evaluate runs source and returns the scene it built.
//
// Return semantics:
//   - On success: returns result + nil errors + nil error
//   - On parse/eval failure: returns nil result + eval errors + nil error
//   - On fatal failure (timeout, panic): returns nil + nil + error
func (e *Engine) Evaluate(source string) (*Result, []EvalError, error) {
	e.mu.Lock()
	e.generation++
	gen := e.generation
	e.mu.Unlock()

	ch := make(chan evalResult, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- evalResult{err: fmt.Errorf("panic during evaluation: %v", r)}
			}
		}()

		res, evalErrs, err := e.evaluate(source)
		ch <- evalResult{result: res, errors: evalErrs, err: err}
	}()

	return waitWithTimeout(ch, gen, e.timeout, &e.mu, &e.generation)
}

// Run evaluates the source of a script document and replaces its objects
// and options.guidata with the result. Nothing changes when evaluation
// fails.
func (e *Engine) Run(doc *shared.Document) ([]EvalError, error) {
	if doc.Kind() != shared.KindScript {
		return nil, fmt.Errorf("%w: %s documents carry no script", shared.ErrWrongKind, doc.Kind())
	}
	source, err := doc.Source()
	if err != nil {
		return nil, err
	}
	res, evalErrs, err := e.Evaluate(source)
	if err != nil || len(evalErrs) > 0 {
		return evalErrs, err
	}
	err = doc.Transact(OriginScript, func(tx *shared.Tx) error {
		if err := tx.ReplaceObjects(res.Objects); err != nil {
			return err
		}
		if res.GuiData == nil {
			return nil
		}
		return tx.SetOption("guidata", res.GuiData)
	})
	if err != nil {
		return nil, err
	}
	e.log.Info().Int("objects", len(res.Objects)).Msg("script applied")
	return nil, nil
}

// evaluate performs the actual zygomys evaluation in a fresh sandbox.
func (e *Engine) evaluate(source string) (*Result, []EvalError, error) {
	scratch, err := shared.New(shared.Options{Kind: shared.KindJCad, Logger: e.env.Log})
	if err != nil {
		return nil, nil, err
	}
	sc := scene.New(scratch, e.env)

	// Empty source is a valid program that produces an empty scene.
	if strings.TrimSpace(source) != "" {
		// Sandbox mode prevents user code from accessing the filesystem or syscalls.
		z := zygo.NewZlispSandbox()
		defer z.Stop()
		registerBuiltins(z, sc, e.env.Factory)

		if err := z.LoadString(preprocessSource(source)); err != nil {
			return nil, parseZygomysError(err), nil
		}
		if _, err := z.Run(); err != nil {
			return nil, parseZygomysError(err), nil
		}
	}

	records, err := scratch.Objects()
	if err != nil {
		return nil, nil, err
	}
	opts, err := scratch.Options()
	if err != nil {
		return nil, nil, err
	}
	res := &Result{Objects: records}
	if gui, ok := opts["guidata"].(map[string]any); ok {
		res.GuiData = gui
	}
	return res, nil, nil
}

// linePattern matches zygomys error messages that include "Error on line N: ..."
var linePattern = regexp.MustCompile(`(?i)(?:error )?on line (\d+):\s*(.*)`)

// linePatternShort matches simpler "line N: ..." patterns.
var linePatternShort = regexp.MustCompile(`(?i)^line (\d+):\s*(.*)`)

// parseZygomysError converts a zygomys error into one or more EvalError values.
// It attempts to extract line number information from the error message.
func parseZygomysError(err error) []EvalError {
	msg := err.Error()

	// zygomys formats parse errors as "Error on line N: <details>\n"
	for _, re := range []*regexp.Regexp{linePattern, linePatternShort} {
		if m := re.FindStringSubmatch(msg); m != nil {
			line, _ := strconv.Atoi(m[1])
			return []EvalError{{Line: line, Message: strings.TrimSpace(m[2])}}
		}
	}

	// Fallback: no line info available.
	return []EvalError{{Message: strings.TrimSpace(msg)}}
}
