package engine

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/chazu/cadsync/pkg/env"
	"github.com/chazu/cadsync/pkg/shared"
)

func newTestEngine() *Engine {
	return NewEngine(env.Nop())
}

func TestEvaluateEmptyString(t *testing.T) {
	eng := newTestEngine()

	for _, src := range []string{"", "   \n\t  \n  "} {
		res, evalErrs, err := eng.Evaluate(src)
		if err != nil {
			t.Fatalf("unexpected fatal error: %v", err)
		}
		if len(evalErrs) > 0 {
			t.Fatalf("unexpected eval errors: %v", evalErrs)
		}
		if res == nil {
			t.Fatal("expected non-nil result")
		}
		if len(res.Objects) != 0 {
			t.Errorf("expected empty scene, got %d objects", len(res.Objects))
		}
	}
}

func TestEvaluatePlainExpressions(t *testing.T) {
	eng := newTestEngine()

	source := `
(def x 10)
(def y 20)
(+ x y)
`
	res, evalErrs, err := eng.Evaluate(source)
	if err != nil {
		t.Fatalf("unexpected fatal error: %v", err)
	}
	if len(evalErrs) > 0 {
		t.Fatalf("unexpected eval errors: %v", evalErrs)
	}
	if len(res.Objects) != 0 {
		t.Errorf("expected no objects, got %d", len(res.Objects))
	}
}

func TestEvaluateSyntaxError(t *testing.T) {
	eng := newTestEngine()

	// Unmatched paren is a parse error.
	res, evalErrs, err := eng.Evaluate("(+ 1 2")
	if err != nil {
		t.Fatalf("expected non-fatal eval error, got fatal: %v", err)
	}
	if res != nil {
		t.Fatal("expected nil result on syntax error")
	}
	if len(evalErrs) == 0 || evalErrs[0].Message == "" {
		t.Fatalf("expected a populated eval error, got %v", evalErrs)
	}
}

func TestEvaluateUndefinedSymbol(t *testing.T) {
	eng := newTestEngine()

	res, evalErrs, err := eng.Evaluate("(+ 1 undefined-symbol)")
	if err != nil {
		t.Fatalf("expected non-fatal eval error, got fatal: %v", err)
	}
	if res != nil {
		t.Fatal("expected nil result on eval error")
	}
	if len(evalErrs) == 0 {
		t.Fatal("expected at least one eval error for undefined symbol")
	}
}

func TestEvalErrorImplementsError(t *testing.T) {
	e := EvalError{Line: 5, Message: "something went wrong"}
	s := e.Error()
	if !strings.Contains(s, "line 5") || !strings.Contains(s, "something went wrong") {
		t.Errorf("Error() = %q", s)
	}

	e2 := EvalError{Message: "no location"}
	if strings.Contains(e2.Error(), "line") {
		t.Errorf("Error() with no line should not contain 'line', got: %s", e2.Error())
	}
}

func TestEvaluateDeterministic(t *testing.T) {
	eng := newTestEngine()
	src := `(box :length 2) (cylinder :radius 3) (cut)`

	var first []string
	for i := 0; i < 5; i++ {
		res, evalErrs, err := eng.Evaluate(src)
		if err != nil || len(evalErrs) > 0 {
			t.Fatalf("iteration %d: err=%v evalErrs=%v", i, err, evalErrs)
		}
		var got []string
		for _, r := range res.Objects {
			got = append(got, r.Name)
		}
		if i == 0 {
			first = got
			continue
		}
		if strings.Join(got, ",") != strings.Join(first, ",") {
			t.Errorf("iteration %d: objects %v, want %v", i, got, first)
		}
	}
	if strings.Join(first, ",") != "Box 1,Cylinder 1,Cut 1" {
		t.Errorf("objects = %v", first)
	}
}

func TestEvaluateTimeout(t *testing.T) {
	var mu sync.Mutex
	var gen uint64 = 1
	ch := make(chan evalResult) // Never sends

	start := time.Now()
	_, _, err := waitWithTimeout(ch, 1, 50*time.Millisecond, &mu, &gen)
	if err == nil {
		t.Fatal("expected timeout error, got nil")
	}
	if !strings.Contains(err.Error(), "timed out") {
		t.Errorf("expected timeout error message, got: %v", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Errorf("timeout took %s", time.Since(start))
	}
}

func TestEngineUsesConfiguredTimeout(t *testing.T) {
	e := env.Nop()
	e.Config.ScriptTimeout = 0
	if got := NewEngine(e).timeout; got != EvalTimeout {
		t.Errorf("timeout = %s, want %s", got, EvalTimeout)
	}
	e.Config.ScriptTimeout = time.Second
	if got := NewEngine(e).timeout; got != time.Second {
		t.Errorf("timeout = %s, want 1s", got)
	}
}

func TestEvaluateGenerationDiscardsStale(t *testing.T) {
	var mu sync.Mutex
	gen := uint64(2) // Current generation is 2

	ch := make(chan evalResult, 1)
	ch <- evalResult{}

	// Pass generation 1 (stale).
	_, _, err := waitWithTimeout(ch, 1, EvalTimeout, &mu, &gen)
	if err == nil {
		t.Fatal("expected error for stale generation")
	}
	if !strings.Contains(err.Error(), "superseded") {
		t.Errorf("expected superseded error, got: %v", err)
	}
}

func TestParseZygomysError(t *testing.T) {
	tests := []struct {
		name     string
		msg      string
		wantLine int
		wantMsg  string
	}{
		{
			name:     "error on line format",
			msg:      "Error on line 5: unexpected token\n",
			wantLine: 5,
			wantMsg:  "unexpected token",
		},
		{
			name:     "no line info",
			msg:      "some generic error",
			wantLine: 0,
			wantMsg:  "some generic error",
		},
		{
			name:     "line format lowercase",
			msg:      "error on line 12: missing paren",
			wantLine: 12,
			wantMsg:  "missing paren",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := parseZygomysError(errors.New(tt.msg))
			if len(errs) == 0 {
				t.Fatal("expected at least one error")
			}
			e := errs[0]
			if e.Line != tt.wantLine {
				t.Errorf("line = %d, want %d", e.Line, tt.wantLine)
			}
			if !strings.Contains(e.Message, tt.wantMsg) {
				t.Errorf("message = %q, want containing %q", e.Message, tt.wantMsg)
			}
		})
	}
}

func TestRunReplacesScriptDocument(t *testing.T) {
	doc, err := shared.New(shared.Options{Kind: shared.KindScript, Logger: zerolog.Nop()})
	if err != nil {
		t.Fatal(err)
	}
	src := `(box :name "B1" :length 2 :width 3 :height 4)
(color "B1" (list 1 0 0))`
	if err := doc.Transact("test", func(tx *shared.Tx) error { return tx.SetSource(src) }); err != nil {
		t.Fatal(err)
	}

	eng := newTestEngine()
	evalErrs, err := eng.Run(doc)
	if err != nil || len(evalErrs) > 0 {
		t.Fatalf("err=%v evalErrs=%v", err, evalErrs)
	}
	r, err := doc.Object("B1")
	if err != nil {
		t.Fatal(err)
	}
	if r.Parameters["Height"] != 4.0 {
		t.Errorf("Height = %v, want 4", r.Parameters["Height"])
	}
	opts, err := doc.Options()
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := opts["guidata"].(map[string]any)["B1"]; !ok {
		t.Errorf("guidata = %v, want entry for B1", opts["guidata"])
	}

	// A broken script leaves the document as it was.
	if err := doc.Transact("test", func(tx *shared.Tx) error { return tx.SetSource(`(box :name "X"`) }); err != nil {
		t.Fatal(err)
	}
	evalErrs, err = eng.Run(doc)
	if err != nil || len(evalErrs) == 0 {
		t.Fatalf("expected eval errors, got err=%v evalErrs=%v", err, evalErrs)
	}
	if _, err := doc.Object("B1"); err != nil {
		t.Errorf("B1 lost after failed run: %v", err)
	}
}

func TestRunRejectsOtherKinds(t *testing.T) {
	doc, err := shared.New(shared.Options{Kind: shared.KindJCad, Logger: zerolog.Nop()})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := newTestEngine().Run(doc); !errors.Is(err, shared.ErrWrongKind) {
		t.Errorf("err = %v, want ErrWrongKind", err)
	}
}
