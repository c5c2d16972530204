package interpreter

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// Universally quantified properties, spec.md §8. Property 4 (tail-call
// soundness) is covered at the white-box level in
// internal/evaluator/tailcall_test.go, since it needs to inspect
// CallStack depth mid-evaluation; property 7 (Result monad) needs
// Ok/Err bound as callables (wired into internal/builtins.Core) to be
// reachable from source at all.

func TestPropertyEnvironmentShadowing(t *testing.T) {
	it := New()
	_, err := it.Eval(`val n = 1`, "")
	require.NoError(t, err)
	v, err := it.Eval(`fun f(): Int { val n = 2; return n }
f()`, "")
	require.NoError(t, err)
	require.Equal(t, int64(2), v.AsLong(), "the inner shadowing n must be seen inside f")

	v, err = it.Eval(`n`, "")
	require.NoError(t, err)
	require.Equal(t, int64(1), v.AsLong(), "shadowing in f's scope must not leak back to the outer n")
}

func TestPropertyValImmutability(t *testing.T) {
	it := New()
	_, err := it.Eval(`val x = 1`, "")
	require.NoError(t, err)
	_, err = it.Eval(`x = 2`, "")
	require.Error(t, err, "assigning to a val must fail")

	_, err = it.Eval(`var y = 1
y = 2
y`, "")
	require.NoError(t, err, "assigning to a var must succeed")
}

func TestPropertyNumericCrossTypeEquality(t *testing.T) {
	it := New()
	v, err := it.Eval(`val a: Int = 3
val b: Long = 3L
val c: Double = 3.0
val d: Float = 3.0f
a == b && b == c && c == d`, "")
	require.NoError(t, err)
	require.True(t, v.AsBool(), "Int(3) == Long(3) == Double(3) == Float(3) must all hold")
}

func TestPropertyTruthinessTotalAcrossVariants(t *testing.T) {
	it := New()
	cases := []struct {
		src  string
		want bool
	}{
		{"true", true},
		{"false", false},
		{"1", true},
		{"0", false},
		{"null", false},
		{`""`, false},
		{`"s"`, true},
		{"[1,2]", true},
		{"[]", false},
	}
	for _, c := range cases {
		v, err := it.Eval(c.src, "")
		require.NoError(t, err, c.src)
		require.Equal(t, c.want, v.AsBool(), "AsBool() for %s", c.src)
	}
}

func TestPropertyDestructuringRoundTrip(t *testing.T) {
	it := New()
	v, err := it.Eval(`@data class C(val a: Int, val b: Int)
val x = 7
val y = 9
val c = C(x, y)
val (p, q) = c
p == x && q == y`, "")
	require.NoError(t, err)
	require.True(t, v.AsBool())
}

func TestPropertyResultMonad(t *testing.T) {
	it := New()
	v, err := it.Eval(`fun inc(n: Int): Int { return n + 1 }
Ok(41).map(inc).getOrThrow()`, "")
	require.NoError(t, err)
	require.Equal(t, int64(42), v.AsLong(), "Ok(x).map(f).getOrThrow() must equal f(x)")

	v, err = it.Eval(`Err("boom").map(inc).getOrNull()`, "")
	require.NoError(t, err)
	require.True(t, v == nil || v.TypeName() == "Null", "Err(e).map(f) must stay Err, so getOrNull() is null")
}

func TestPropertyClosureCapturesLiveBinding(t *testing.T) {
	it := New()
	_, err := it.Eval(`var counter = 0
val inc = { counter = counter + 1 }`, "")
	require.NoError(t, err)
	_, err = it.Eval(`inc()`, "")
	require.NoError(t, err)
	_, err = it.Eval(`inc()`, "")
	require.NoError(t, err)
	v, err := it.Eval(`counter`, "")
	require.NoError(t, err)
	require.Equal(t, int64(2), v.AsLong(), "both invocations must mutate the one captured counter binding")
}

func TestPropertyTryFinallyRunsOnAllExitPaths(t *testing.T) {
	cases := []struct {
		name string
		src  string
		want int64
	}{
		{"normal return", `var marker = 0
fun f(): Int { try { return 1 } finally { marker = marker + 1 } }
f()
marker`, 1},
		{"caught throw", `var marker = 0
fun f(): Int { try { throw "x" } catch(e:Exception) { 0 } finally { marker = marker + 1 } }
f()
marker`, 1},
		{"loop break", `var marker = 0
for (i in 1..3) {
    try {
        if (i == 2) { break }
    } finally {
        marker = marker + 1
    }
}
marker`, 2},
	}
	for _, c := range cases {
		it := New()
		v, err := it.Eval(c.src, "")
		require.NoError(t, err, c.name)
		require.Equal(t, c.want, v.AsLong(), c.name)
	}
}

func TestPropertySafeCallShortCircuitsWithoutEvaluatingTail(t *testing.T) {
	it := New()
	v, err := it.Eval(`var touched = false
fun sideEffect(): Int { touched = true; return 1 }
val n: Int? = null
n?.plus(sideEffect())`, "")
	require.NoError(t, err)
	require.True(t, v == nil || v.TypeName() == "Null")

	v, err = it.Eval(`touched`, "")
	require.NoError(t, err)
	require.False(t, v.AsBool(), "null?.anything must never evaluate the chain tail")
}
