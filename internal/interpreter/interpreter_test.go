package interpreter

import (
	"bytes"
	"strings"
	"testing"

	"github.com/kristofer/nova/internal/value"
)

func TestEvalArithmetic(t *testing.T) {
	it := New()
	v, err := it.Eval(`1 + 2 * 3`, "")
	if err != nil {
		t.Fatalf("eval error: %v", err)
	}
	if v.AsInt() != 7 {
		t.Fatalf("want 7, got %v", v.AsString())
	}
}

func TestEvalPersistsDeclarationsAcrossCalls(t *testing.T) {
	it := New()
	if _, err := it.Eval(`val x = 10`, ""); err != nil {
		t.Fatalf("first eval: %v", err)
	}
	v, err := it.Eval(`x + 5`, "")
	if err != nil {
		t.Fatalf("second eval: %v", err)
	}
	if v.AsInt() != 15 {
		t.Fatalf("want 15, got %v", v.AsString())
	}
}

func TestEvalFunctionDeclAndCall(t *testing.T) {
	it := New()
	_, err := it.Eval(`fun square(n) = n * n`, "")
	if err != nil {
		t.Fatalf("declare: %v", err)
	}
	v, err := it.Eval(`square(6)`, "")
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if v.AsInt() != 36 {
		t.Fatalf("want 36, got %v", v.AsString())
	}
}

func TestEvalREPLRedefinition(t *testing.T) {
	it := New()
	if _, err := it.EvalREPL(`val x = 1`); err != nil {
		t.Fatalf("first: %v", err)
	}
	// REPL mode allows redeclaring an existing top-level val.
	v, err := it.EvalREPL(`val x = 2
x`)
	if err != nil {
		t.Fatalf("redeclare: %v", err)
	}
	if v.AsInt() != 2 {
		t.Fatalf("want 2, got %v", v.AsString())
	}
}

func TestSetStdoutRedirectsPrintln(t *testing.T) {
	it := New()
	var buf bytes.Buffer
	it.SetStdout(&buf)
	if _, err := it.Eval(`println("hello")`, ""); err != nil {
		t.Fatalf("eval: %v", err)
	}
	if !strings.Contains(buf.String(), "hello") {
		t.Fatalf("want output to contain 'hello', got %q", buf.String())
	}
}

func TestRegisterNativeCallableByNameAndByValue(t *testing.T) {
	it := New()
	if err := it.RegisterNative("double", func(n int64) int64 { return n * 2 }); err != nil {
		t.Fatalf("register: %v", err)
	}
	v, err := it.Eval(`double(21)`, "")
	if err != nil {
		t.Fatalf("call by name: %v", err)
	}
	if v.AsLong() != 42 {
		t.Fatalf("want 42, got %v", v.AsString())
	}

	// Passed as a first-class value to a higher-order built-in, it must
	// still dispatch (exercises evaluator.NativeCallable's fallback path).
	v, err = it.Eval(`[1, 2, 3].map(double)`, "")
	if err != nil {
		t.Fatalf("call by value: %v", err)
	}
	lst, ok := v.(*value.List)
	if !ok || len(lst.Elems) != 3 {
		t.Fatalf("want a 3-elem list, got %#v", v)
	}
}

func TestNewChildInheritsDeclarationsAndIsolatesScope(t *testing.T) {
	parent := New()
	if _, err := parent.Eval(`val shared = 100`, ""); err != nil {
		t.Fatalf("parent eval: %v", err)
	}
	child := parent.NewChild()
	v, err := child.Eval(`shared + 1`, "")
	if err != nil {
		t.Fatalf("child sees parent val: %v", err)
	}
	if v.AsInt() != 101 {
		t.Fatalf("want 101, got %v", v.AsString())
	}
	if _, err := child.Eval(`val onlyInChild = 1`, ""); err != nil {
		t.Fatalf("child declare: %v", err)
	}
	if _, err := parent.Eval(`onlyInChild`, ""); err == nil {
		t.Fatalf("parent should not see child's declarations")
	}
}
