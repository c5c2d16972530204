package value

import (
	"fmt"
	"strings"
)

// --- List ------------------------------------------------------------
//
// List is ordered and mutable (spec.md §3.1). Negative indexing and the
// `a..b`/`a..<b` slice forms are implemented here; the evaluator's
// index-operator dispatch (spec.md §4.1) calls into these helpers rather
// than duplicating bounds arithmetic at every call site.

type List struct {
	Elems []Value
}

func NewList(elems []Value) *List { return &List{Elems: elems} }

func (l *List) TypeName() string  { return "List" }
func (l *List) AsBool() bool      { return len(l.Elems) != 0 }
func (l *List) AsInt() int64      { return int64(len(l.Elems)) }
func (l *List) AsLong() int64     { return int64(len(l.Elems)) }
func (l *List) AsFloat() float32  { return float32(len(l.Elems)) }
func (l *List) AsDouble() float64 { return float64(len(l.Elems)) }
func (l *List) AsString() string {
	parts := make([]string, len(l.Elems))
	for i, e := range l.Elems {
		parts[i] = displayString(e)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
func (l *List) Hash() uint64 {
	var h uint64 = 14695981039346656037
	for _, e := range l.Elems {
		h = (h ^ e.Hash()) * 1099511628211
	}
	return h
}
func (l *List) ToHost() interface{} {
	out := make([]interface{}, len(l.Elems))
	for i, e := range l.Elems {
		out[i] = e.ToHost()
	}
	return out
}
func (l *List) IsNumber() bool     { return false }
func (l *List) IsCollection() bool { return true }
func (l *List) Equals(o Value) bool {
	ol, ok := o.(*List)
	if !ok || len(l.Elems) != len(ol.Elems) {
		return false
	}
	for i := range l.Elems {
		if !l.Elems[i].Equals(ol.Elems[i]) {
			return false
		}
	}
	return true
}

// ResolveIndex interprets a negative index as size+i, per spec.md §4.1.
func (l *List) ResolveIndex(i int64) (int, bool) {
	n := int64(len(l.Elems))
	if i < 0 {
		i = n + i
	}
	if i < 0 || i >= n {
		return 0, false
	}
	return int(i), true
}

// Slice implements the closed/half-open/open-ended range forms used by
// both list slicing and string slicing (spec.md §4.1).
func (l *List) Slice(start, end int64, startOpen, endOpen, inclusive bool) *List {
	n := int64(len(l.Elems))
	lo, hi := start, end
	if startOpen {
		lo = 0
	}
	if endOpen {
		hi = n - 1
	}
	if lo < 0 {
		lo = n + lo
	}
	if hi < 0 {
		hi = n + hi
	}
	if !inclusive {
		hi--
	}
	if lo < 0 {
		lo = 0
	}
	if hi >= n {
		hi = n - 1
	}
	if lo > hi {
		return &List{Elems: []Value{}}
	}
	out := make([]Value, hi-lo+1)
	copy(out, l.Elems[lo:hi+1])
	return &List{Elems: out}
}

func displayString(v Value) string {
	if s, ok := v.(String); ok {
		return fmt.Sprintf("%q", string(s))
	}
	return v.AsString()
}

// --- Array -----------------------------------------------------------
//
// Array<T>(n) is a typed fixed-size sequence with a per-element-type
// default (spec.md §3.1). Nova stores the default-producing closure at
// construction time rather than the type name, so the evaluator supplies
// the right zero value (0 / 0.0 / false / "" / Null) once and Array itself
// stays type-opaque like List.

type Array struct {
	Elems []Value
}

func NewArray(n int, init func(i int) Value) *Array {
	elems := make([]Value, n)
	for i := range elems {
		elems[i] = init(i)
	}
	return &Array{Elems: elems}
}

func (a *Array) TypeName() string  { return "Array" }
func (a *Array) AsBool() bool      { return len(a.Elems) != 0 }
func (a *Array) AsInt() int64      { return int64(len(a.Elems)) }
func (a *Array) AsLong() int64     { return int64(len(a.Elems)) }
func (a *Array) AsFloat() float32  { return float32(len(a.Elems)) }
func (a *Array) AsDouble() float64 { return float64(len(a.Elems)) }
func (a *Array) AsString() string {
	parts := make([]string, len(a.Elems))
	for i, e := range a.Elems {
		parts[i] = displayString(e)
	}
	return "Array[" + strings.Join(parts, ", ") + "]"
}
func (a *Array) Hash() uint64 {
	var h uint64 = 14695981039346656037
	for _, e := range a.Elems {
		h = (h ^ e.Hash()) * 1099511628211
	}
	return h
}
func (a *Array) ToHost() interface{} {
	out := make([]interface{}, len(a.Elems))
	for i, e := range a.Elems {
		out[i] = e.ToHost()
	}
	return out
}
func (a *Array) IsNumber() bool     { return false }
func (a *Array) IsCollection() bool { return true }
func (a *Array) Equals(o Value) bool {
	oa, ok := o.(*Array)
	if !ok || len(a.Elems) != len(oa.Elems) {
		return false
	}
	for i := range a.Elems {
		if !a.Elems[i].Equals(oa.Elems[i]) {
			return false
		}
	}
	return true
}

// --- Map ---------------------------------------------------------------
//
// Map is ordered-by-insertion, keyed by Value (spec.md §3.1). Go maps
// require comparable keys, and arbitrary Values (e.g. *List) aren't
// comparable, so entries are kept in an insertion-ordered slice with a
// hash-bucketed index for O(1)-typical lookup, mirroring the teacher's
// own caveat in OpMakeDictionary that non-comparable keys are a known
// limitation — Nova resolves it instead of inheriting it.

type mapEntry struct {
	key Value
	val Value
}

type Map struct {
	entries []mapEntry
	index   map[uint64][]int // hash -> indices into entries, for collision handling
}

func NewMap() *Map {
	return &Map{index: make(map[uint64][]int)}
}

func (m *Map) findIndex(key Value) int {
	for _, idx := range m.index[key.Hash()] {
		if m.entries[idx].key.Equals(key) {
			return idx
		}
	}
	return -1
}

func (m *Map) Get(key Value) (Value, bool) {
	i := m.findIndex(key)
	if i < 0 {
		return nil, false
	}
	return m.entries[i].val, true
}

func (m *Map) Set(key, val Value) {
	if i := m.findIndex(key); i >= 0 {
		m.entries[i].val = val
		return
	}
	idx := len(m.entries)
	m.entries = append(m.entries, mapEntry{key: key, val: val})
	h := key.Hash()
	m.index[h] = append(m.index[h], idx)
}

func (m *Map) Delete(key Value) bool {
	i := m.findIndex(key)
	if i < 0 {
		return false
	}
	m.entries = append(m.entries[:i], m.entries[i+1:]...)
	m.rebuildIndex()
	return true
}

func (m *Map) rebuildIndex() {
	m.index = make(map[uint64][]int, len(m.entries))
	for idx, e := range m.entries {
		h := e.key.Hash()
		m.index[h] = append(m.index[h], idx)
	}
}

func (m *Map) Size() int { return len(m.entries) }

func (m *Map) Keys() []Value {
	out := make([]Value, len(m.entries))
	for i, e := range m.entries {
		out[i] = e.key
	}
	return out
}

func (m *Map) Values() []Value {
	out := make([]Value, len(m.entries))
	for i, e := range m.entries {
		out[i] = e.val
	}
	return out
}

func (m *Map) Entries() []Pair {
	out := make([]Pair, len(m.entries))
	for i, e := range m.entries {
		out[i] = Pair{First: e.key, Second: e.val}
	}
	return out
}

// Merge implements `+` on two Maps (spec.md §4.1: right wins).
func (m *Map) Merge(other *Map) *Map {
	out := NewMap()
	for _, e := range m.entries {
		out.Set(e.key, e.val)
	}
	for _, e := range other.entries {
		out.Set(e.key, e.val)
	}
	return out
}

func (m *Map) TypeName() string  { return "Map" }
func (m *Map) AsBool() bool      { return len(m.entries) != 0 }
func (m *Map) AsInt() int64      { return int64(len(m.entries)) }
func (m *Map) AsLong() int64     { return int64(len(m.entries)) }
func (m *Map) AsFloat() float32  { return float32(len(m.entries)) }
func (m *Map) AsDouble() float64 { return float64(len(m.entries)) }
func (m *Map) AsString() string {
	parts := make([]string, len(m.entries))
	for i, e := range m.entries {
		parts[i] = fmt.Sprintf("%s: %s", displayString(e.key), displayString(e.val))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
func (m *Map) Hash() uint64 {
	var h uint64 = 14695981039346656037
	for _, e := range m.entries {
		h ^= e.key.Hash() ^ e.val.Hash()
	}
	return h
}
func (m *Map) ToHost() interface{} {
	out := make(map[interface{}]interface{}, len(m.entries))
	for _, e := range m.entries {
		out[e.key.ToHost()] = e.val.ToHost()
	}
	return out
}
func (m *Map) IsNumber() bool     { return false }
func (m *Map) IsCollection() bool { return true }
func (m *Map) Equals(o Value) bool {
	om, ok := o.(*Map)
	if !ok || len(m.entries) != len(om.entries) {
		return false
	}
	for _, e := range m.entries {
		ov, ok := om.Get(e.key)
		if !ok || !e.val.Equals(ov) {
			return false
		}
	}
	return true
}

// --- Pair ----------------------------------------------------------------

type Pair struct {
	First  Value
	Second Value
}

func (p Pair) TypeName() string  { return "Pair" }
func (p Pair) AsBool() bool      { return true }
func (p Pair) AsInt() int64      { return 0 }
func (p Pair) AsLong() int64     { return 0 }
func (p Pair) AsFloat() float32  { return 0 }
func (p Pair) AsDouble() float64 { return 0 }
func (p Pair) AsString() string {
	return fmt.Sprintf("(%s, %s)", displayString(p.First), displayString(p.Second))
}
func (p Pair) Hash() uint64        { return p.First.Hash() ^ (p.Second.Hash() * 31) }
func (p Pair) ToHost() interface{} { return [2]interface{}{p.First.ToHost(), p.Second.ToHost()} }
func (p Pair) IsNumber() bool      { return false }
func (p Pair) IsCollection() bool  { return false }
func (p Pair) Equals(o Value) bool {
	op, ok := o.(Pair)
	return ok && p.First.Equals(op.First) && p.Second.Equals(op.Second)
}

// At implements Pair's indexed access `[0]`/`[1]`.
func (p Pair) At(i int64) (Value, bool) {
	switch i {
	case 0:
		return p.First, true
	case 1:
		return p.Second, true
	default:
		return nil, false
	}
}

// --- Range -----------------------------------------------------------------

type Range struct {
	Start     int64
	End       int64
	Inclusive bool
}

func (r Range) TypeName() string  { return "Range" }
func (r Range) AsBool() bool      { return r.Size() != 0 }
func (r Range) AsInt() int64      { return r.Size() }
func (r Range) AsLong() int64     { return r.Size() }
func (r Range) AsFloat() float32  { return float32(r.Size()) }
func (r Range) AsDouble() float64 { return float64(r.Size()) }
func (r Range) AsString() string {
	if r.Inclusive {
		return fmt.Sprintf("%d..%d", r.Start, r.End)
	}
	return fmt.Sprintf("%d..<%d", r.Start, r.End)
}
func (r Range) Hash() uint64 {
	return uint64(r.Start)*31 + uint64(r.End)
}
func (r Range) ToHost() interface{} { return r.ToSlice() }
func (r Range) IsNumber() bool      { return false }
func (r Range) IsCollection() bool  { return true }
func (r Range) Equals(o Value) bool {
	or, ok := o.(Range)
	return ok && r == or
}

// Size returns the number of integers the range covers.
func (r Range) Size() int64 {
	if r.Inclusive {
		if r.End < r.Start {
			return 0
		}
		return r.End - r.Start + 1
	}
	if r.End <= r.Start {
		return 0
	}
	return r.End - r.Start
}

// Contains implements the `in` operator's O(1) dispatch to Range.contains.
func (r Range) Contains(n int64) bool {
	if r.Inclusive {
		return n >= r.Start && n <= r.End
	}
	return n >= r.Start && n < r.End
}

func (r Range) ToSlice() []int64 {
	n := r.Size()
	out := make([]int64, n)
	for i := int64(0); i < n; i++ {
		out[i] = r.Start + i
	}
	return out
}

// ToList converts a Range to a Nova List of Int values.
func (r Range) ToList() *List {
	ints := r.ToSlice()
	elems := make([]Value, len(ints))
	for i, n := range ints {
		elems[i] = NewInt(n)
	}
	return &List{Elems: elems}
}

// --- Result (Ok/Err) -------------------------------------------------------

type Result struct {
	IsOk  bool
	Value Value // payload when IsOk
	Err   Value // payload when !IsOk
}

func Ok(v Value) Result  { return Result{IsOk: true, Value: v} }
func Err(v Value) Result { return Result{IsOk: false, Err: v} }

func (r Result) TypeName() string {
	if r.IsOk {
		return "Result.Ok"
	}
	return "Result.Err"
}
func (r Result) AsBool() bool      { return r.IsOk }
func (r Result) AsInt() int64      { return 0 }
func (r Result) AsLong() int64     { return 0 }
func (r Result) AsFloat() float32  { return 0 }
func (r Result) AsDouble() float64 { return 0 }
func (r Result) AsString() string {
	if r.IsOk {
		return fmt.Sprintf("Ok(%s)", displayString(r.Value))
	}
	return fmt.Sprintf("Err(%s)", displayString(r.Err))
}
func (r Result) Hash() uint64 {
	if r.IsOk {
		return r.Value.Hash() ^ 7
	}
	return r.Err.Hash() ^ 13
}
func (r Result) ToHost() interface{} {
	if r.IsOk {
		return r.Value.ToHost()
	}
	return r.Err.ToHost()
}
func (r Result) IsNumber() bool     { return false }
func (r Result) IsCollection() bool { return false }
func (r Result) Equals(o Value) bool {
	or, ok := o.(Result)
	if !ok || r.IsOk != or.IsOk {
		return false
	}
	if r.IsOk {
		return r.Value.Equals(or.Value)
	}
	return r.Err.Equals(or.Err)
}
