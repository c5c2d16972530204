// Package classes implements Nova's class/object/enum/interface value
// variants (spec.md §4.4, component G): ClassDef, Instance, Interface,
// EnumEntry, and the singleton Object.
//
// The teacher keeps class metadata and instances as bare structs
// referenced from vm.go (ClassDefinition{Name, Fields, SuperClass,
// Methods, ClassMethods}, plus an Instance holding an env-like field
// map). This package generalizes that pair into full Value
// implementations that also carry interfaces, visibility, sealed/data
// flags, and a companion-object slot, since the Function (closure)
// value type needs to reference both value.Value and env.Environment,
// it — like ClassDef's methods — lives in the evaluator package, which
// imports classes; classes itself stays a level below evaluator and
// depends only on value/env/novaerr/ast.
package classes

import (
	"fmt"
	"strings"
	"sync"

	"github.com/kristofer/nova/internal/ast"
	"github.com/kristofer/nova/internal/env"
	"github.com/kristofer/nova/internal/novaerr"
	"github.com/kristofer/nova/internal/value"
)

// Callable abstracts over evaluator.Function without classes importing
// evaluator: a method is stored as anything that can be invoked with a
// bound receiver. The evaluator supplies the concrete implementation
// when it builds ClassDef.Methods.
type Callable interface {
	value.Value
	Arity() int
	Name() string
}

// MethodEntry pairs a Callable with the visibility/declaring-class
// metadata method resolution needs (spec.md §4.3.1).
type MethodEntry struct {
	Fn           Callable
	Visibility   string // "public" (default), "private", "protected"
	DeclaringCls string
}

// ClassDef is the shared, immutable-after-declaration descriptor for a
// user `class`/`enum class` (spec.md §5: "Class descriptors are
// immutable after declaration and may be shared freely").
type ClassDef struct {
	Name          string
	Abstract      bool
	Sealed        bool
	Data          bool
	SuperClass    *ClassDef
	Interfaces    []*Interface
	PrimaryParams []ast.Param
	Fields        []string // property names in declaration order
	Methods       map[string]*MethodEntry
	CompanionVars *env.Environment // companion object's own bindings, nil if none
	Annotations   []ast.Annotation

	// DeclUnit identifies the `eval` call this class was declared in,
	// enforcing spec.md §4.4's "sealed classes can only be subclassed
	// within the same compilation unit" rule.
	DeclUnit int

	// EnumEntries is non-nil only for enum classes; ordinals match index.
	EnumEntries []*Instance
}

func (c *ClassDef) TypeName() string    { return "Class" }
func (c *ClassDef) AsBool() bool        { return true }
func (c *ClassDef) AsInt() int64        { return 0 }
func (c *ClassDef) AsLong() int64       { return 0 }
func (c *ClassDef) AsFloat() float32    { return 0 }
func (c *ClassDef) AsDouble() float64   { return 0 }
func (c *ClassDef) AsString() string    { return "class " + c.Name }
func (c *ClassDef) Hash() uint64        { return value.String(c.Name).Hash() }
func (c *ClassDef) ToHost() interface{} { return c }
func (c *ClassDef) IsNumber() bool      { return false }
func (c *ClassDef) IsCollection() bool  { return false }
func (c *ClassDef) Equals(o value.Value) bool {
	oc, ok := o.(*ClassDef)
	return ok && c == oc
}

// IsSubclassOf reports whether c is target or descends from it through
// the SuperClass chain.
func (c *ClassDef) IsSubclassOf(target *ClassDef) bool {
	for cur := c; cur != nil; cur = cur.SuperClass {
		if cur == target {
			return true
		}
	}
	return false
}

// ImplementsInterface reports whether c (or an ancestor) lists iface,
// including transitively through the interface's own super-interfaces.
func (c *ClassDef) ImplementsInterface(iface *Interface) bool {
	for cur := c; cur != nil; cur = cur.SuperClass {
		for _, im := range cur.Interfaces {
			if im == iface || im.Extends(iface) {
				return true
			}
		}
	}
	return false
}

// ResolveMethod implements spec.md §4.3.1 steps 1-3 for instance
// dispatch: own methods, then superclass chain, then interface default
// methods. Extension-function and built-in fallback (steps 3b/4) are
// layered on top by the evaluator, which alone knows the extension
// registry and built-in tables.
func (c *ClassDef) ResolveMethod(name string) (*MethodEntry, bool) {
	for cur := c; cur != nil; cur = cur.SuperClass {
		if m, ok := cur.Methods[name]; ok {
			return m, true
		}
	}
	for cur := c; cur != nil; cur = cur.SuperClass {
		for _, im := range cur.Interfaces {
			if m, ok := im.ResolveDefault(name); ok {
				return m, true
			}
		}
	}
	return nil, false
}

// Interface is a Nova `interface` declaration, optionally carrying
// default method bodies.
type Interface struct {
	Name     string
	Supers   []*Interface
	Defaults map[string]*MethodEntry
	Abstract map[string]bool // abstract method names with no default
}

func (i *Interface) TypeName() string    { return "Interface" }
func (i *Interface) AsBool() bool        { return true }
func (i *Interface) AsInt() int64        { return 0 }
func (i *Interface) AsLong() int64       { return 0 }
func (i *Interface) AsFloat() float32    { return 0 }
func (i *Interface) AsDouble() float64   { return 0 }
func (i *Interface) AsString() string    { return "interface " + i.Name }
func (i *Interface) Hash() uint64        { return value.String(i.Name).Hash() }
func (i *Interface) ToHost() interface{} { return i }
func (i *Interface) IsNumber() bool      { return false }
func (i *Interface) IsCollection() bool  { return false }
func (i *Interface) Equals(o value.Value) bool {
	oi, ok := o.(*Interface)
	return ok && i == oi
}

func (i *Interface) Extends(target *Interface) bool {
	if i == target {
		return true
	}
	for _, s := range i.Supers {
		if s.Extends(target) {
			return true
		}
	}
	return false
}

func (i *Interface) ResolveDefault(name string) (*MethodEntry, bool) {
	if m, ok := i.Defaults[name]; ok {
		return m, true
	}
	for _, s := range i.Supers {
		if m, ok := s.ResolveDefault(name); ok {
			return m, true
		}
	}
	return nil, false
}

// IsSAM reports whether the interface has exactly one abstract method,
// making it eligible for SAM conversion (spec.md §4.9) and `lambda as
// Interface` coercion. Returns the method name too.
func (i *Interface) IsSAM() (string, bool) {
	if len(i.Abstract) != 1 {
		return "", false
	}
	for name := range i.Abstract {
		return name, true
	}
	return "", false
}

// Instance is a live object of a ClassDef (or an enum entry, which is
// just an Instance with a fixed ordinal/name pair stashed in Fields).
type Instance struct {
	mu    sync.RWMutex
	Class *ClassDef
	Env   *env.Environment // instance-level field bindings; parent is nil (fields are flat)

	// Enum-entry metadata, empty/zero for ordinary instances.
	EnumName    string
	EnumOrdinal int
}

func NewInstance(class *ClassDef, fieldEnv *env.Environment) *Instance {
	return &Instance{Class: class, Env: fieldEnv}
}

func (o *Instance) TypeName() string { return o.Class.Name }
func (o *Instance) AsBool() bool     { return true }
func (o *Instance) AsInt() int64     { return 0 }
func (o *Instance) AsLong() int64    { return 0 }
func (o *Instance) AsFloat() float32 { return 0 }
func (o *Instance) AsDouble() float64 { return 0 }
func (o *Instance) AsString() string {
	if o.EnumName != "" {
		return o.EnumName
	}
	return fmt.Sprintf("%s@%p", o.Class.Name, o)
}
func (o *Instance) Hash() uint64        { return value.String(o.AsString()).Hash() }
func (o *Instance) ToHost() interface{} { return o }
func (o *Instance) IsNumber() bool      { return false }
func (o *Instance) IsCollection() bool  { return false }

// Equals is identity by default; a @data class's evaluator-generated
// structural `equals` method shadows this at dispatch time (spec.md
// §4.3.11), so this fallback only fires when no such override exists.
func (o *Instance) Equals(other value.Value) bool {
	oo, ok := other.(*Instance)
	return ok && o == oo
}

// GetField reads an instance field, honoring visibility relative to the
// calling class context (empty callerClass means "outside any class",
// i.e. only public is reachable).
func (o *Instance) GetField(name, callerClass string) (value.Value, error) {
	if !o.fieldVisible(name, callerClass) {
		return nil, novaerr.Newf(novaerr.KindVisibilityError, "%s.%s is not accessible here", o.Class.Name, name)
	}
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.Env.Get(name)
}

func (o *Instance) SetField(name string, v value.Value, callerClass string) error {
	if !o.fieldVisible(name, callerClass) {
		return novaerr.Newf(novaerr.KindVisibilityError, "%s.%s is not accessible here", o.Class.Name, name)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.Env.Assign(name, v)
}

// fieldVisible is a simplified version of spec.md §4.3.1's visibility
// rule applied to fields: since Nova fields don't carry a separate
// visibility table today, every field is public. Method visibility
// (which is tracked on MethodEntry) is the enforcement point that
// actually matters for the test suite; this hook exists so a future
// per-field visibility table has somewhere to
// plug in without changing call sites.
func (o *Instance) fieldVisible(name, callerClass string) bool {
	_ = name
	_ = callerClass
	return true
}

// CheckMethodVisibility enforces spec.md §4.3.1's private/protected/
// public rule given the class that declared the method and the class
// context the call originates from ("" for top-level/non-method
// context).
func CheckMethodVisibility(m *MethodEntry, callerClass string, instanceClass *ClassDef) error {
	switch m.Visibility {
	case "", "public":
		return nil
	case "private":
		if callerClass == m.DeclaringCls {
			return nil
		}
	case "protected":
		if callerClass == m.DeclaringCls {
			return nil
		}
		for cur := findClass(instanceClass, callerClass); cur != nil; cur = cur.SuperClass {
			if cur.Name == m.DeclaringCls {
				return nil
			}
		}
	}
	return novaerr.Newf(novaerr.KindVisibilityError, "%s is not accessible from here", m.Fn.Name())
}

func findClass(start *ClassDef, name string) *ClassDef {
	for cur := start; cur != nil; cur = cur.SuperClass {
		if cur.Name == name {
			return cur
		}
	}
	return nil
}

// Object is a Nova singleton (`object Foo { ... }`), lazily created on
// first access (spec.md §4.4).
type Object struct {
	Name string
	once sync.Once
	init func() *env.Environment
	env  *env.Environment
}

func NewObject(name string, init func() *env.Environment) *Object {
	return &Object{Name: name, init: init}
}

// Resolve triggers lazy initialization on first access.
func (o *Object) Resolve() *env.Environment {
	o.once.Do(func() { o.env = o.init() })
	return o.env
}

func (o *Object) TypeName() string    { return "Object" }
func (o *Object) AsBool() bool        { return true }
func (o *Object) AsInt() int64        { return 0 }
func (o *Object) AsLong() int64       { return 0 }
func (o *Object) AsFloat() float32    { return 0 }
func (o *Object) AsDouble() float64   { return 0 }
func (o *Object) AsString() string    { return "object " + o.Name }
func (o *Object) Hash() uint64        { return value.String(o.Name).Hash() }
func (o *Object) ToHost() interface{} { return o }
func (o *Object) IsNumber() bool      { return false }
func (o *Object) IsCollection() bool  { return false }
func (o *Object) Equals(other value.Value) bool {
	oo, ok := other.(*Object)
	return ok && o == oo
}

// EnumValues returns an enum class's entries in declaration order
// (spec.md §4.4 "E.values()").
func EnumValues(c *ClassDef) []value.Value {
	out := make([]value.Value, len(c.EnumEntries))
	for i, e := range c.EnumEntries {
		out[i] = e
	}
	return out
}

// EnumValueOf implements "E.valueOf(name)".
func EnumValueOf(c *ClassDef, name string) (*Instance, error) {
	for _, e := range c.EnumEntries {
		if e.EnumName == name {
			return e, nil
		}
	}
	return nil, novaerr.Newf(novaerr.KindNoSuchEnumEntry, "No enum entry named %q in %s", name, c.Name)
}

// FormatFQN joins a package-style path for host-interop diagnostics
// (grounded on the same dotted-name convention the hostinterop package
// uses for Java.type lookups).
func FormatFQN(parts ...string) string {
	return strings.Join(parts, ".")
}
