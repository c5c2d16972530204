// Package value implements Nova's tagged-union value model (spec.md §3.1,
// component A of the design). Every Value variant implements the shared
// capability set the spec names: type_name, as_bool, as_int, as_long,
// as_float, as_double, as_string, equals, hash, to_host, is_number,
// is_collection.
//
// The teacher (pkg/vm/vm.go) represents values as bare interface{}
// (int64, float64, string, bool, nil, *Block, *Array, *Instance, ...) and
// type-switches on them throughout send(). Nova generalizes that into an
// explicit Value interface so every variant carries its own coercion and
// equality rules instead of leaning on Go's native semantics for "+" etc,
// per the design note "do not lean on the host language's inheritance to
// model variants."
package value

import (
	"fmt"
	"hash/fnv"
	"math"
)

// Value is the capability set every Nova runtime value implements.
type Value interface {
	TypeName() string
	AsBool() bool
	AsInt() int64
	AsLong() int64
	AsFloat() float32
	AsDouble() float64
	AsString() string
	Equals(other Value) bool
	Hash() uint64
	ToHost() interface{}
	IsNumber() bool
	IsCollection() bool
}

// Numeric is implemented by Int, Long, Float, Double so arithmetic can
// promote across the lattice Int < Long < Float < Double (spec.md §4.1)
// without a type switch at every call site.
type Numeric interface {
	Value
	numericRank() int
	asDoubleExact() float64
}

// --- Null / Unit -----------------------------------------------------

// nullValue is the singleton `null`. Unit is a distinct singleton
// representing "no value produced" for void-returning calls; spec.md
// §3.1 requires Unit != null.
type nullValue struct{}
type unitValue struct{}

var Null Value = nullValue{}
var Unit Value = unitValue{}

func (nullValue) TypeName() string         { return "Null" }
func (nullValue) AsBool() bool             { return false }
func (nullValue) AsInt() int64             { return 0 }
func (nullValue) AsLong() int64            { return 0 }
func (nullValue) AsFloat() float32         { return 0 }
func (nullValue) AsDouble() float64        { return 0 }
func (nullValue) AsString() string         { return "null" }
func (nullValue) Equals(o Value) bool      { _, ok := o.(nullValue); return ok }
func (nullValue) Hash() uint64             { return 0 }
func (nullValue) ToHost() interface{}      { return nil }
func (nullValue) IsNumber() bool           { return false }
func (nullValue) IsCollection() bool       { return false }

func (unitValue) TypeName() string    { return "Unit" }
func (unitValue) AsBool() bool        { return true }
func (unitValue) AsInt() int64        { return 0 }
func (unitValue) AsLong() int64       { return 0 }
func (unitValue) AsFloat() float32    { return 0 }
func (unitValue) AsDouble() float64   { return 0 }
func (unitValue) AsString() string    { return "Unit" }
func (unitValue) Equals(o Value) bool { _, ok := o.(unitValue); return ok }
func (unitValue) Hash() uint64        { return 1 }
func (unitValue) ToHost() interface{} { return struct{}{} }
func (unitValue) IsNumber() bool      { return false }
func (unitValue) IsCollection() bool  { return false }

func IsNull(v Value) bool { _, ok := v.(nullValue); return ok }
func IsUnit(v Value) bool { _, ok := v.(unitValue); return ok }

// --- Bool --------------------------------------------------------------

type Bool bool

func NewBool(b bool) Bool { return Bool(b) }

func (b Bool) TypeName() string { return "Bool" }
func (b Bool) AsBool() bool     { return bool(b) }
func (b Bool) AsInt() int64 {
	if b {
		return 1
	}
	return 0
}
func (b Bool) AsLong() int64     { return b.AsInt() }
func (b Bool) AsFloat() float32  { return float32(b.AsInt()) }
func (b Bool) AsDouble() float64 { return float64(b.AsInt()) }
func (b Bool) AsString() string {
	if b {
		return "true"
	}
	return "false"
}
func (b Bool) Equals(o Value) bool {
	ob, ok := o.(Bool)
	return ok && b == ob
}
func (b Bool) Hash() uint64 {
	if b {
		return 1
	}
	return 0
}
func (b Bool) ToHost() interface{} { return bool(b) }
func (b Bool) IsNumber() bool      { return false }
func (b Bool) IsCollection() bool  { return false }

// --- Int / Long ----------------------------------------------------------
//
// Int models the 32-bit-surfaced integer type; Long models the 64-bit
// surfaced type. Both store an int64 internally (spec.md: "64-bit signed
// integer semantically"). Open question (a) in SPEC_FULL.md: Int
// arithmetic that overflows the 32-bit range promotes its *result* to
// Long rather than wrapping.

type Int int64

const (
	int32Min = math.MinInt32
	int32Max = math.MaxInt32
)

func NewInt(v int64) Int { return Int(v) }

func (i Int) TypeName() string      { return "Int" }
func (i Int) AsBool() bool          { return i != 0 }
func (i Int) AsInt() int64          { return int64(i) }
func (i Int) AsLong() int64         { return int64(i) }
func (i Int) AsFloat() float32      { return float32(i) }
func (i Int) AsDouble() float64     { return float64(i) }
func (i Int) AsString() string      { return fmt.Sprintf("%d", int64(i)) }
func (i Int) Hash() uint64          { return uint64(i) }
func (i Int) ToHost() interface{}   { return int64(i) }
func (i Int) IsNumber() bool        { return true }
func (i Int) IsCollection() bool    { return false }
func (i Int) numericRank() int      { return rankInt }
func (i Int) asDoubleExact() float64 { return float64(i) }
func (i Int) Equals(o Value) bool   { return numericEquals(i, o) }

// Long small-value cache for -128..127, per spec.md §3.1.
var longCache [256]Long

func init() {
	for i := range longCache {
		longCache[i] = Long(int64(i) - 128)
	}
}

type Long int64

func NewLong(v int64) Long {
	if v >= -128 && v <= 127 {
		return longCache[v+128]
	}
	return Long(v)
}

func (l Long) TypeName() string       { return "Long" }
func (l Long) AsBool() bool           { return l != 0 }
func (l Long) AsInt() int64           { return int64(l) }
func (l Long) AsLong() int64          { return int64(l) }
func (l Long) AsFloat() float32       { return float32(l) }
func (l Long) AsDouble() float64      { return float64(l) }
func (l Long) AsString() string       { return fmt.Sprintf("%d", int64(l)) }
func (l Long) Hash() uint64           { return uint64(l) }
func (l Long) ToHost() interface{}    { return int64(l) }
func (l Long) IsNumber() bool         { return true }
func (l Long) IsCollection() bool     { return false }
func (l Long) numericRank() int       { return rankLong }
func (l Long) asDoubleExact() float64 { return float64(l) }
func (l Long) Equals(o Value) bool    { return numericEquals(l, o) }

// --- Float / Double ------------------------------------------------------

type Float float32

func NewFloat(v float32) Float { return Float(v) }

func (f Float) TypeName() string       { return "Float" }
func (f Float) AsBool() bool           { return f != 0 }
func (f Float) AsInt() int64           { return int64(f) }
func (f Float) AsLong() int64          { return int64(f) }
func (f Float) AsFloat() float32       { return float32(f) }
func (f Float) AsDouble() float64      { return float64(f) }
func (f Float) AsString() string       { return fmt.Sprintf("%g", float32(f)) }
func (f Float) Hash() uint64           { return math.Float64bits(float64(f)) }
func (f Float) ToHost() interface{}    { return float32(f) }
func (f Float) IsNumber() bool         { return true }
func (f Float) IsCollection() bool     { return false }
func (f Float) numericRank() int       { return rankFloat }
func (f Float) asDoubleExact() float64 { return float64(f) }
func (f Float) Equals(o Value) bool    { return numericEquals(f, o) }

type Double float64

func NewDouble(v float64) Double { return Double(v) }

func (d Double) TypeName() string       { return "Double" }
func (d Double) AsBool() bool           { return d != 0 }
func (d Double) AsInt() int64           { return int64(d) }
func (d Double) AsLong() int64          { return int64(d) }
func (d Double) AsFloat() float32       { return float32(d) }
func (d Double) AsDouble() float64      { return float64(d) }
func (d Double) AsString() string       { return fmt.Sprintf("%g", float64(d)) }
func (d Double) Hash() uint64           { return math.Float64bits(float64(d)) }
func (d Double) ToHost() interface{}    { return float64(d) }
func (d Double) IsNumber() bool         { return true }
func (d Double) IsCollection() bool     { return false }
func (d Double) numericRank() int       { return rankDouble }
func (d Double) asDoubleExact() float64 { return float64(d) }
func (d Double) Equals(o Value) bool    { return numericEquals(d, o) }

const (
	rankInt = iota
	rankLong
	rankFloat
	rankDouble
)

// numericEquals implements spec.md §3.1's cross-type numeric equality:
// Int(3) == Long(3) == Double(3.0) == Float(3.0f).
func numericEquals(a Numeric, o Value) bool {
	b, ok := o.(Numeric)
	if !ok {
		return false
	}
	return a.asDoubleExact() == b.asDoubleExact()
}

// PromoteRank returns the widest rank of two numerics, implementing the
// promotion lattice used throughout binary arithmetic.
func PromoteRank(a, b Numeric) int {
	ra, rb := a.numericRank(), b.numericRank()
	if ra > rb {
		return ra
	}
	return rb
}

// --- Char ----------------------------------------------------------------

type Char rune

// asciiCache caches Char values for the ASCII range per spec.md §3.1.
var asciiCache [128]Char

func init() {
	for i := range asciiCache {
		asciiCache[i] = Char(rune(i))
	}
}

func NewChar(r rune) Char {
	if r >= 0 && r < 128 {
		return asciiCache[r]
	}
	return Char(r)
}

func (c Char) TypeName() string    { return "Char" }
func (c Char) AsBool() bool        { return true }
func (c Char) AsInt() int64        { return int64(c) }
func (c Char) AsLong() int64       { return int64(c) }
func (c Char) AsFloat() float32    { return float32(c) }
func (c Char) AsDouble() float64   { return float64(c) }
func (c Char) AsString() string    { return string(rune(c)) }
func (c Char) Hash() uint64        { return uint64(c) }
func (c Char) ToHost() interface{} { return rune(c) }
func (c Char) IsNumber() bool      { return false }
func (c Char) IsCollection() bool  { return false }
func (c Char) Equals(o Value) bool {
	oc, ok := o.(Char)
	return ok && c == oc
}

// --- String ----------------------------------------------------------------

type String string

func NewString(s string) String { return String(s) }

func (s String) TypeName() string  { return "String" }
func (s String) AsBool() bool      { return s != "" }
func (s String) AsInt() int64 {
	var n int64
	fmt.Sscanf(string(s), "%d", &n)
	return n
}
func (s String) AsLong() int64      { return s.AsInt() }
func (s String) AsFloat() float32   { return float32(s.AsDouble()) }
func (s String) AsDouble() float64 {
	var f float64
	fmt.Sscanf(string(s), "%g", &f)
	return f
}
func (s String) AsString() string { return string(s) }
func (s String) Hash() uint64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return h.Sum64()
}
func (s String) ToHost() interface{} { return string(s) }
func (s String) IsNumber() bool      { return false }
func (s String) IsCollection() bool  { return false }
func (s String) Equals(o Value) bool {
	os, ok := o.(String)
	return ok && s == os
}

// Truthy implements spec.md §3.1's total truthiness rule: every variant's
// AsBool is defined (testable property 5), so Truthy is their dispatch
// point — null/false/empty-String/empty-List/empty-Map are false,
// everything else is true.
func Truthy(v Value) bool {
	return v.AsBool()
}
