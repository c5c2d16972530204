// Package builtins implements Nova's top-level built-in functions
// (spec.md §4.5's "Top-level built-ins" list, component J): math,
// randoms, reflection helpers, Result/Pair constructors, stdio, and the
// collection-literal constructors (listOf, mapOf, arrayOf, ...).
//
// The teacher's pkg/vm/primitives.go registers a flat table of native
// functions keyed by name directly on the VM's globals map. Nova keeps
// that same "name -> Go func" registration idiom, generalized into a
// NativeFunc signature the interpreter package installs into the root
// Environment, since built-in method dispatch tables that need to
// invoke a user lambda (List.map, List.filter, ...) require the
// evaluator's Function-calling machinery and so live in evaluator
// instead — this package only covers built-ins that are self-contained.
package builtins

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"math/rand"
	"sort"

	"github.com/kristofer/nova/internal/novaerr"
	"github.com/kristofer/nova/internal/value"
)

// NativeFunc is the shape every registered built-in has.
type NativeFunc func(args []value.Value) (value.Value, error)

// IO bundles the stdio streams set_stdin/set_stdout/set_stderr rebind
// (spec.md §6); the interpreter owns one per (child-)interpreter and
// passes it down so println/print/readLine/input respect redirection.
type IO struct {
	Out io.Writer
	Err io.Writer
	In  *bufio.Reader
}

func numArg(args []value.Value, i int) (float64, error) {
	if i >= len(args) || !args[i].IsNumber() {
		return 0, novaerr.Newf(novaerr.KindCastFailure, "argument %d is not numeric", i)
	}
	return args[i].AsDouble(), nil
}

// Math registers the math built-ins (spec.md §4.5 top-level list).
func Math() map[string]NativeFunc {
	unary := func(f func(float64) float64) NativeFunc {
		return func(args []value.Value) (value.Value, error) {
			x, err := numArg(args, 0)
			if err != nil {
				return nil, err
			}
			return value.NewDouble(f(x)), nil
		}
	}
	return map[string]NativeFunc{
		"abs": func(args []value.Value) (value.Value, error) {
			if len(args) == 0 || !args[0].IsNumber() {
				return nil, novaerr.New(novaerr.KindCastFailure, "abs expects a number")
			}
			switch v := args[0].(type) {
			case value.Int:
				if v < 0 {
					return value.NewInt(int64(-v)), nil
				}
				return v, nil
			case value.Long:
				if v < 0 {
					return value.NewLong(int64(-v)), nil
				}
				return v, nil
			default:
				return value.NewDouble(math.Abs(args[0].AsDouble())), nil
			}
		},
		"max": func(args []value.Value) (value.Value, error) {
			a, err := numArg(args, 0)
			if err != nil {
				return nil, err
			}
			b, err := numArg(args, 1)
			if err != nil {
				return nil, err
			}
			if a >= b {
				return args[0], nil
			}
			return args[1], nil
		},
		"min": func(args []value.Value) (value.Value, error) {
			a, err := numArg(args, 0)
			if err != nil {
				return nil, err
			}
			b, err := numArg(args, 1)
			if err != nil {
				return nil, err
			}
			if a <= b {
				return args[0], nil
			}
			return args[1], nil
		},
		"sqrt":  unary(math.Sqrt),
		"floor": unary(math.Floor),
		"ceil":  unary(math.Ceil),
		"round": func(args []value.Value) (value.Value, error) {
			x, err := numArg(args, 0)
			if err != nil {
				return nil, err
			}
			return value.NewLong(int64(math.Round(x))), nil
		},
		"sign": func(args []value.Value) (value.Value, error) {
			x, err := numArg(args, 0)
			if err != nil {
				return nil, err
			}
			switch {
			case x > 0:
				return value.NewInt(1), nil
			case x < 0:
				return value.NewInt(-1), nil
			default:
				return value.NewInt(0), nil
			}
		},
		"clamp": func(args []value.Value) (value.Value, error) {
			x, err := numArg(args, 0)
			if err != nil {
				return nil, err
			}
			lo, err := numArg(args, 1)
			if err != nil {
				return nil, err
			}
			hi, err := numArg(args, 2)
			if err != nil {
				return nil, err
			}
			if x < lo {
				return value.NewDouble(lo), nil
			}
			if x > hi {
				return value.NewDouble(hi), nil
			}
			return value.NewDouble(x), nil
		},
		"pow": func(args []value.Value) (value.Value, error) {
			a, err := numArg(args, 0)
			if err != nil {
				return nil, err
			}
			b, err := numArg(args, 1)
			if err != nil {
				return nil, err
			}
			return value.NewDouble(math.Pow(a, b)), nil
		},
		"sin":   unary(math.Sin),
		"cos":   unary(math.Cos),
		"tan":   unary(math.Tan),
		"asin":  unary(math.Asin),
		"acos":  unary(math.Acos),
		"atan":  unary(math.Atan),
		"atan2": func(args []value.Value) (value.Value, error) {
			a, err := numArg(args, 0)
			if err != nil {
				return nil, err
			}
			b, err := numArg(args, 1)
			if err != nil {
				return nil, err
			}
			return value.NewDouble(math.Atan2(a, b)), nil
		},
		"log":   unary(math.Log),
		"log10": unary(math.Log10),
		"log2":  unary(math.Log2),
		"exp":   unary(math.Exp),
	}
}

// Randoms registers random* built-ins, each reading from a shared
// *rand.Rand so repeated calls within one process don't re-seed.
func Randoms(rng *rand.Rand) map[string]NativeFunc {
	return map[string]NativeFunc{
		"randomInt": func(args []value.Value) (value.Value, error) {
			if len(args) >= 2 {
				lo, hi := args[0].AsInt(), args[1].AsInt()
				if hi <= lo {
					return nil, novaerr.New(novaerr.KindUser, "randomInt: upper bound must exceed lower bound")
				}
				return value.NewInt(lo + rng.Int63n(hi-lo)), nil
			}
			return value.NewInt(rng.Int63()), nil
		},
		"randomDouble": func(args []value.Value) (value.Value, error) {
			return value.NewDouble(rng.Float64()), nil
		},
		"randomBool": func(args []value.Value) (value.Value, error) {
			return value.NewBool(rng.Intn(2) == 0), nil
		},
		"randomStr": func(args []value.Value) (value.Value, error) {
			n := 8
			if len(args) > 0 {
				n = int(args[0].AsInt())
			}
			const alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
			buf := make([]byte, n)
			for i := range buf {
				buf[i] = alphabet[rng.Intn(len(alphabet))]
			}
			return value.NewString(string(buf)), nil
		},
		"randomList": func(args []value.Value) (value.Value, error) {
			n := int(args[0].AsInt())
			lo, hi := int64(0), int64(100)
			if len(args) >= 3 {
				lo, hi = args[1].AsInt(), args[2].AsInt()
			}
			elems := make([]value.Value, n)
			for i := range elems {
				elems[i] = value.NewInt(lo + rng.Int63n(hi-lo))
			}
			return value.NewList(elems), nil
		},
	}
}

// Core registers the remaining self-contained top-level built-ins:
// len/typeof/isX, assert/require/todo/error, type coercions,
// collection-literal constructors, and Pair/Result helpers. assert and
// require raise catchable errors carrying the user message.
func Core(io *IO) map[string]NativeFunc {
	m := map[string]NativeFunc{
		"len": func(args []value.Value) (value.Value, error) {
			switch v := args[0].(type) {
			case *value.List:
				return value.NewInt(int64(len(v.Elems))), nil
			case *value.Array:
				return value.NewInt(int64(len(v.Elems))), nil
			case *value.Map:
				return value.NewInt(int64(v.Size())), nil
			case value.String:
				return value.NewInt(int64(len(string(v)))), nil
			default:
				return nil, novaerr.Newf(novaerr.KindCastFailure, "len: unsupported type %s", args[0].TypeName())
			}
		},
		"toInt":    func(args []value.Value) (value.Value, error) { return value.NewInt(args[0].AsInt()), nil },
		"toDouble": func(args []value.Value) (value.Value, error) { return value.NewDouble(args[0].AsDouble()), nil },
		"toString": func(args []value.Value) (value.Value, error) { return value.NewString(args[0].AsString()), nil },
		"typeof":   func(args []value.Value) (value.Value, error) { return value.NewString(args[0].TypeName()), nil },
		"isNull":   func(args []value.Value) (value.Value, error) { return value.NewBool(value.IsNull(args[0])), nil },
		"isNumber": func(args []value.Value) (value.Value, error) { return value.NewBool(args[0].IsNumber()), nil },
		"isString": func(args []value.Value) (value.Value, error) {
			_, ok := args[0].(value.String)
			return value.NewBool(ok), nil
		},
		"isList": func(args []value.Value) (value.Value, error) {
			_, ok := args[0].(*value.List)
			return value.NewBool(ok), nil
		},
		"isMap": func(args []value.Value) (value.Value, error) {
			_, ok := args[0].(*value.Map)
			return value.NewBool(ok), nil
		},
		"assert": func(args []value.Value) (value.Value, error) {
			if !value.Truthy(args[0]) {
				msg := "Assertion failed"
				if len(args) > 1 {
					msg = args[1].AsString()
				}
				return nil, novaerr.New(novaerr.KindUser, msg)
			}
			return value.Unit, nil
		},
		"require": func(args []value.Value) (value.Value, error) {
			if !value.Truthy(args[0]) {
				msg := "Requirement failed"
				if len(args) > 1 {
					msg = args[1].AsString()
				}
				return nil, novaerr.New(novaerr.KindUser, msg)
			}
			return value.Unit, nil
		},
		"todo": func(args []value.Value) (value.Value, error) {
			msg := "TODO"
			if len(args) > 0 {
				msg = args[0].AsString()
			}
			return nil, novaerr.New(novaerr.KindUser, "An operation is not implemented: "+msg)
		},
		"error": func(args []value.Value) (value.Value, error) {
			msg := ""
			if len(args) > 0 {
				msg = args[0].AsString()
			}
			return nil, novaerr.New(novaerr.KindUser, msg)
		},
		"listOf":        func(args []value.Value) (value.Value, error) { return value.NewList(append([]value.Value{}, args...)), nil },
		"mutableListOf": func(args []value.Value) (value.Value, error) { return value.NewList(append([]value.Value{}, args...)), nil },
		"arrayOf": func(args []value.Value) (value.Value, error) {
			return value.NewArray(len(args), func(i int) value.Value { return args[i] }), nil
		},
		"mapOf": func(args []value.Value) (value.Value, error) {
			m := value.NewMap()
			for _, a := range args {
				p, ok := a.(value.Pair)
				if !ok {
					return nil, novaerr.New(novaerr.KindCastFailure, "mapOf expects Pair arguments")
				}
				m.Set(p.First, p.Second)
			}
			return m, nil
		},
		"mutableMapOf": nil, // aliased below once mapOf closure exists
		"to": func(args []value.Value) (value.Value, error) {
			return value.Pair{First: args[0], Second: args[1]}, nil
		},
		"Ok": func(args []value.Value) (value.Value, error) {
			return Ok(args[0]), nil
		},
		"Err": func(args []value.Value) (value.Value, error) {
			return ErrResult(args[0]), nil
		},
		"runCatching": nil, // requires invoking a Function; wired by evaluator
	}
	m["mutableMapOf"] = m["mapOf"]
	delete(m, "runCatching")

	if io != nil {
		m["println"] = func(args []value.Value) (value.Value, error) {
			if len(args) == 0 {
				fmt.Fprintln(io.Out)
			} else {
				fmt.Fprintln(io.Out, args[0].AsString())
			}
			return value.Unit, nil
		}
		m["print"] = func(args []value.Value) (value.Value, error) {
			if len(args) > 0 {
				fmt.Fprint(io.Out, args[0].AsString())
			}
			return value.Unit, nil
		}
		m["readLine"] = func(args []value.Value) (value.Value, error) {
			line, err := io.In.ReadString('\n')
			if err != nil && line == "" {
				return value.Null, nil
			}
			return value.NewString(trimNewline(line)), nil
		}
		m["input"] = m["readLine"]
	}
	return m
}

func trimNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}

// Ok/Err construct value.Result directly (spec.md §4.5's "Ok, Err").
func Ok(v value.Value) value.Result        { return value.Ok(v) }
func ErrResult(v value.Value) value.Result { return value.Err(v) }

// PairFrom is a small helper extension packages can use without
// reaching into value internals; grounded on the teacher's convention
// of exposing tiny constructor wrappers beside the primitives table.
func PairFrom(a, b value.Value) value.Pair { return value.Pair{First: a, Second: b} }

// SortValues sorts a List in place using a Go-side less function,
// backing List.sorted()/sortedBy() once the evaluator supplies the
// comparison (which may call a user compareTo or a lambda selector).
func SortValues(elems []value.Value, less func(a, b value.Value) bool) {
	sort.SliceStable(elems, func(i, j int) bool { return less(elems[i], elems[j]) })
}
