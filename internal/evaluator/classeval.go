package evaluator

import (
	"github.com/kristofer/nova/internal/ast"
	"github.com/kristofer/nova/internal/callstack"
	"github.com/kristofer/nova/internal/classes"
	"github.com/kristofer/nova/internal/env"
	"github.com/kristofer/nova/internal/novaerr"
	"github.com/kristofer/nova/internal/value"
)

func (ev *Evaluator) lookupClass(name string) (*classes.ClassDef, bool) {
	c, ok := ev.Classes[name]
	return c, ok
}

func (ev *Evaluator) lookupInterface(name string) (*classes.Interface, bool) {
	i, ok := ev.Interfaces[name]
	return i, ok
}

// evalClassDecl implements spec.md §4.4's class declaration: resolves
// the superclass/interfaces by name, builds the method table (own
// methods win; the primary constructor's own body runs as an implicit
// init step during construction, not here), and registers the class
// both in ev.Classes and the declaring scope.
func (ev *Evaluator) evalClassDecl(node *ast.ClassDecl, scope *env.Environment, stack *callstack.Stack) error {
	cd := &classes.ClassDef{
		Name:          node.Name,
		Abstract:      node.Abstract,
		Sealed:        node.Sealed,
		Data:          node.Data,
		PrimaryParams: node.PrimaryParams,
		Methods:       map[string]*classes.MethodEntry{},
		DeclUnit:      ev.DeclUnit,
	}
	if node.SuperClass != "" {
		super, ok := ev.lookupClass(node.SuperClass)
		if !ok {
			return novaerr.Newf(novaerr.KindUser, "unknown superclass %q for class %q", node.SuperClass, node.Name)
		}
		if super.Sealed && super.DeclUnit != ev.DeclUnit {
			return novaerr.Newf(novaerr.KindSealedExtensionForbidden, "cannot extend sealed class %q outside its declaring unit", super.Name)
		}
		cd.SuperClass = super
	}
	for _, ifaceName := range node.Interfaces {
		iface, ok := ev.lookupInterface(ifaceName)
		if !ok {
			return novaerr.Newf(novaerr.KindUser, "unknown interface %q for class %q", ifaceName, node.Name)
		}
		cd.Interfaces = append(cd.Interfaces, iface)
	}

	classScope := scope.NewChild()
	if err := scope.DefineVal(node.Name, cd); err != nil {
		return err
	}
	for _, m := range node.Members {
		if m.Property != nil {
			cd.Fields = append(cd.Fields, m.Property.Name)
		}
	}
	for _, p := range node.PrimaryParams {
		cd.Fields = append(cd.Fields, p.Name)
	}
	for _, m := range node.Methods {
		fn := NewFunction(m.Name, m.Params, m.Body, classScope)
		cd.Methods[m.Name] = &classes.MethodEntry{Fn: fn, Visibility: visOrDefault(m.Visibility), DeclaringCls: node.Name}
	}
	if len(node.CompanionMembers) > 0 || len(node.CompanionMethods) > 0 {
		cd.CompanionVars = scope.NewChild()
		for _, m := range node.CompanionMembers {
			if m.Property != nil && m.Property.Init != nil {
				v, err := ev.Eval(m.Property.Init, cd.CompanionVars, stack)
				if err != nil {
					return err
				}
				if m.Property.Mutable {
					cd.CompanionVars.DefineVar(m.Property.Name, v)
				} else {
					cd.CompanionVars.DefineVal(m.Property.Name, v)
				}
			}
		}
		for _, m := range node.CompanionMethods {
			fn := NewFunction(m.Name, m.Params, m.Body, cd.CompanionVars)
			cd.CompanionVars.DefineVal(m.Name, fn)
		}
	}
	ev.Classes[node.Name] = cd
	// Store the constructor-body statements (field inits/init blocks) on
	// a synthetic method keyed "<members>" so Instantiate can replay them in
	// lexical order without the ClassDef struct needing its own ast import.
	cd.Methods["<members>"] = &classes.MethodEntry{Fn: &memberInitList{members: node.Members, closure: classScope}, Visibility: "private", DeclaringCls: node.Name}
	if err := ev.runAnnotations(node.Annotations, cd, classScope, stack); err != nil {
		return err
	}
	return nil
}

func visOrDefault(v string) string {
	if v == "" {
		return "public"
	}
	return v
}

// memberInitList is a classes.Callable stand-in that lets ClassDef carry
// the primary constructor's field-init/init-block statements without the
// classes package importing ast directly for this one use; Instantiate
// below is the only caller that treats it specially (via type assertion,
// not through Callable.Call — Callable.Call is never invoked on it).
type memberInitList struct {
	members []ast.ClassMember
	closure *env.Environment
}

func (m *memberInitList) TypeName() string         { return "MemberInitList" }
func (m *memberInitList) AsBool() bool              { return true }
func (m *memberInitList) AsInt() int64              { return 0 }
func (m *memberInitList) AsLong() int64             { return 0 }
func (m *memberInitList) AsFloat() float32          { return 0 }
func (m *memberInitList) AsDouble() float64         { return 0 }
func (m *memberInitList) AsString() string          { return "<members>" }
func (m *memberInitList) Hash() uint64              { return 0 }
func (m *memberInitList) ToHost() interface{}       { return nil }
func (m *memberInitList) IsNumber() bool            { return false }
func (m *memberInitList) IsCollection() bool        { return false }
func (m *memberInitList) Equals(o value.Value) bool { return false }
func (m *memberInitList) Arity() int                { return 0 }
func (m *memberInitList) Name() string              { return "<members>" }

// Instantiate implements spec.md §4.4's construction sequence: bind
// primary-constructor params as fields, then walk Members in declaration
// order running property initializers and init blocks against an
// environment where earlier fields/inits are already visible.
func (ev *Evaluator) Instantiate(cd *classes.ClassDef, args []value.Value, stack *callstack.Stack) (*classes.Instance, error) {
	if cd.Abstract {
		return nil, novaerr.Newf(novaerr.KindAbstractInstantiation, "cannot instantiate abstract class %q", cd.Name)
	}
	fieldEnv := env.New()
	inst := classes.NewInstance(cd, fieldEnv)

	callEnv, err := bindParams(cd.PrimaryParams, args, fieldEnv, nil, "")
	if err != nil {
		return nil, err
	}
	for _, p := range cd.PrimaryParams {
		v, gerr := callEnv.Get(p.Name)
		if gerr != nil {
			return nil, gerr
		}
		fieldEnv.DefineVar(p.Name, v)
	}
	fieldEnv.DefineVal("this", inst)

	if init, ok := cd.Methods["<members>"]; ok {
		if mil, ok := init.Fn.(*memberInitList); ok {
			bodyScope := mil.closure.NewChild()
			bodyScope.DefineVal("this", inst)
			for name := range fieldEnvNames(fieldEnv) {
				// Re-expose constructor params inside member-init scope so
				// an `init {}` block referencing them resolves.
				v, _ := fieldEnv.Get(name)
				bodyScope.Redefine(name, v, false)
			}
			for _, m := range mil.members {
				switch {
				case m.Property != nil:
					var pv value.Value = value.Null
					if m.Property.Init != nil {
						pv, err = ev.Eval(m.Property.Init, bodyScope, stack)
						if err != nil {
							return nil, err
						}
					}
					fieldEnv.DefineVar(m.Property.Name, pv)
					bodyScope.Redefine(m.Property.Name, pv, !m.Property.Mutable)
				case m.Init != nil:
					_, _, err = ev.evalBlock(m.Init.Body, bodyScope, stack)
					if err != nil {
						return nil, err
					}
				}
			}
		}
	}
	return inst, nil
}

func fieldEnvNames(e *env.Environment) map[string]struct{} {
	out := map[string]struct{}{}
	for _, n := range e.OwnNames() {
		out[n] = struct{}{}
	}
	return out
}

// evalEnumDecl implements spec.md §4.4's enum class: each entry is a
// distinct Instance of the same ClassDef, constructed eagerly in
// declaration order and stashed on ClassDef.EnumEntries.
func (ev *Evaluator) evalEnumDecl(node *ast.EnumDecl, scope *env.Environment, stack *callstack.Stack) error {
	cd := &classes.ClassDef{
		Name:     node.Name,
		Methods:  map[string]*classes.MethodEntry{},
		DeclUnit: ev.DeclUnit,
	}
	for _, ifaceName := range node.Interfaces {
		iface, ok := ev.lookupInterface(ifaceName)
		if !ok {
			return novaerr.Newf(novaerr.KindUser, "unknown interface %q for enum %q", ifaceName, node.Name)
		}
		cd.Interfaces = append(cd.Interfaces, iface)
	}
	classScope := scope.NewChild()
	if err := scope.DefineVal(node.Name, cd); err != nil {
		return err
	}
	for _, m := range node.Methods {
		fn := NewFunction(m.Name, m.Params, m.Body, classScope)
		cd.Methods[m.Name] = &classes.MethodEntry{Fn: fn, Visibility: "public", DeclaringCls: node.Name}
	}
	ev.Classes[node.Name] = cd

	for ordinal, entry := range node.Entries {
		args := make([]value.Value, len(entry.Args))
		for i, a := range entry.Args {
			v, err := ev.Eval(a, scope, stack)
			if err != nil {
				return err
			}
			args[i] = v
		}
		fieldEnv := env.New()
		inst := &classes.Instance{Class: cd, Env: fieldEnv, EnumName: entry.Name, EnumOrdinal: ordinal}
		callEnv, err := bindParams(node.CtorParams, args, fieldEnv, nil, "")
		if err != nil {
			return err
		}
		for _, p := range node.CtorParams {
			v, _ := callEnv.Get(p.Name)
			fieldEnv.DefineVar(p.Name, v)
		}
		fieldEnv.DefineVal("this", inst)
		cd.EnumEntries = append(cd.EnumEntries, inst)
	}
	return nil
}

func (ev *Evaluator) evalInterfaceDecl(node *ast.InterfaceDecl, scope *env.Environment) error {
	iface := &classes.Interface{
		Name:     node.Name,
		Defaults: map[string]*classes.MethodEntry{},
		Abstract: map[string]bool{},
	}
	for _, s := range node.SuperIfaces {
		sup, ok := ev.lookupInterface(s)
		if !ok {
			return novaerr.Newf(novaerr.KindUser, "unknown super-interface %q for %q", s, node.Name)
		}
		iface.Supers = append(iface.Supers, sup)
	}
	ifaceScope := scope.NewChild()
	for _, m := range node.Methods {
		if m.Body != nil {
			fn := NewFunction(m.Name, m.Params, m.Body, ifaceScope)
			iface.Defaults[m.Name] = &classes.MethodEntry{Fn: fn, Visibility: "public", DeclaringCls: node.Name}
		} else {
			iface.Abstract[m.Name] = true
		}
	}
	ev.Interfaces[node.Name] = iface
	return scope.DefineVal(node.Name, iface)
}

func (ev *Evaluator) evalObjectDecl(node *ast.ObjectDecl, scope *env.Environment) error {
	obj := classes.NewObject(node.Name, func() *env.Environment {
		objScope := scope.NewChild()
		objStack := callstack.New(0)
		for _, m := range node.Members {
			if m.Property != nil && m.Property.Init != nil {
				v, err := ev.Eval(m.Property.Init, objScope, objStack)
				if err != nil {
					v = value.Null
				}
				if m.Property.Mutable {
					objScope.DefineVar(m.Property.Name, v)
				} else {
					objScope.DefineVal(m.Property.Name, v)
				}
			}
		}
		for _, m := range node.Methods {
			fn := NewFunction(m.Name, m.Params, m.Body, objScope)
			objScope.DefineVal(m.Name, fn)
		}
		return objScope
	})
	return scope.DefineVal(node.Name, obj)
}
