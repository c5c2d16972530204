package evaluator

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kristofer/nova/internal/callstack"
	"github.com/kristofer/nova/internal/env"
	"github.com/kristofer/nova/internal/parser"
	"github.com/kristofer/nova/internal/security"
	"github.com/kristofer/nova/internal/value"
)

// run parses and evaluates src's top-level statements against a fresh
// Evaluator/Environment/Stack, returning the value of the last one —
// the same shape interpreter.Interpreter.Eval uses, inlined here so this
// package's white-box tests can register a probe native and inspect the
// CallStack mid-evaluation.
func run(t *testing.T, ev *Evaluator, scope *env.Environment, stack *callstack.Stack, src string) value.Value {
	t.Helper()
	prog, err := parser.Parse(src)
	require.NoError(t, err, "parse %q", src)
	var last value.Value = value.Unit
	for _, stmt := range prog.Statements {
		v, sig, err := ev.EvalStatement(stmt, scope, stack)
		require.NoError(t, err, "eval %q", src)
		require.True(t, sig.IsNone(), "unexpected control signal escaping top level")
		last = v
	}
	return last
}

func newTestEvaluator() (*Evaluator, *env.Environment, *callstack.Stack) {
	ev := New()
	ev.Budget = security.NewBudget(security.Unrestricted())
	return ev, env.New(), callstack.New(0)
}

// TestTailCallFoldsFrameInsteadOfGrowingStack is spec.md §8 testable
// property 4 and seed scenario 6: a self-tail-recursive function run to
// a large N must never push more than one CallFrame. A "probe" native
// records the live stack depth from inside the deepest still-executing
// call; if Function.Call recursed instead of trampolining, that depth
// would be on the order of N instead of 1.
func TestTailCallFoldsFrameInsteadOfGrowingStack(t *testing.T) {
	ev, scope, stack := newTestEvaluator()

	var depthAtBase int
	var tailHitsAtBase int
	ev.Natives["probe"] = func(_ *Evaluator, _ []value.Value, _ *env.Environment, s *callstack.Stack) (value.Value, error) {
		depthAtBase = s.Size()
		if f, ok := s.Peek(); ok {
			tailHitsAtBase = f.TailHits
		}
		return value.Unit, nil
	}
	require.NoError(t, scope.DefineVal("probe", value.Unit))

	result := run(t, ev, scope, stack, `
fun g(n, acc) {
    if (n == 0) { probe(); return acc }
    return g(n - 1, acc + n)
}
g(100000, 0)
`)

	require.Equal(t, int64(5000050000), result.AsLong(), "g(100000,0) must sum 1..100000")
	require.Equal(t, 1, depthAtBase, "tail-recursive g must hold exactly one CallFrame at any depth")
	require.Equal(t, 100000, tailHitsAtBase, "g's single frame must record 100000 folds for a 100000-deep tail call")
	require.Equal(t, 0, stack.Size(), "the stack must be fully unwound once g returns")
}

// TestTailCallEliminationExpressionBodied exercises the `fun g(...) =
// expr` shorthand (parsed as a single ReturnStmt wrapping an IfExpr),
// the exact shape of spec.md's seed scenario 6.
func TestTailCallEliminationExpressionBodied(t *testing.T) {
	ev, scope, stack := newTestEvaluator()

	result := run(t, ev, scope, stack, `
fun g(n, acc) = if (n == 0) acc else g(n - 1, acc + n)
g(100000, 0)
`)
	require.Equal(t, int64(5000050000), result.AsLong())
	require.Equal(t, 0, stack.Size())
}

// TestTailCallNotFoldedAcrossFinally: a self-recursive call guarded by a
// non-empty finally is not in tail position (finally must still observe
// control returning from the call), so folding must not kick in — the
// recursion instead runs as ordinary nested calls and the stack grows
// with N for the duration of the call.
func TestTailCallNotFoldedAcrossFinally(t *testing.T) {
	ev, scope, stack := newTestEvaluator()

	var sawDeepStack bool
	ev.Natives["probe"] = func(_ *Evaluator, _ []value.Value, _ *env.Environment, s *callstack.Stack) (value.Value, error) {
		if s.Size() > 1 {
			sawDeepStack = true
		}
		return value.Unit, nil
	}
	require.NoError(t, scope.DefineVal("probe", value.Unit))

	result := run(t, ev, scope, stack, `
fun h(n) {
    try {
        if (n == 0) { probe(); return 0 }
        return h(n - 1)
    } finally {
        val unused = 0
    }
}
h(50)
`)
	require.Equal(t, int64(0), result.AsInt())
	require.True(t, sawDeepStack, "a call guarded by finally must push a fresh frame per recursive call, not fold")
}

// TestTailCallOnlyFoldsSelfRecursion: a tail call to a *different*
// function of the same arity must never fold — only genuine self-
// recursion (same *Function identity) is eligible.
func TestTailCallOnlyFoldsSelfRecursion(t *testing.T) {
	ev, scope, stack := newTestEvaluator()

	result := run(t, ev, scope, stack, `
fun inner(n) = n + 1
fun outer(n) = inner(n)
outer(41)
`)
	require.Equal(t, int64(42), result.AsInt())
	require.Equal(t, 0, stack.Size())
}
