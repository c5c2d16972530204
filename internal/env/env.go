// Package env implements Nova's lexically nested binding table (spec.md
// §3.2, component B). It generalizes the teacher's flat locals/globals
// split (pkg/vm/vm.go's `locals []interface{}` + `globals
// map[string]interface{}`) into a proper parent-pointer chain so
// closures, scope functions, and class bodies can each introduce a new
// lexical level the way spec.md §4.2 requires.
package env

import (
	"github.com/kristofer/nova/internal/novaerr"
	"github.com/kristofer/nova/internal/value"
)

// slot is one binding: a value plus its mutability.
type slot struct {
	value     value.Value
	immutable bool
}

// Environment is a single lexical scope, linked to its parent.
type Environment struct {
	parent *Environment
	vars   map[string]*slot
	repl   bool // REPL redefinition mode, spec.md §3.2
}

// New creates a root environment (no parent) — used for the interpreter's
// global scope.
func New() *Environment {
	return &Environment{vars: make(map[string]*slot)}
}

// NewChild creates a scope nested under e — the mechanism lambdas use to
// capture their defining environment (spec.md §4.2).
func (e *Environment) NewChild() *Environment {
	return &Environment{parent: e, vars: make(map[string]*slot)}
}

// SetREPLMode toggles the redefinition behavior of DefineVal/DefineVar on
// this environment (spec.md §3.2, §6 set_repl_mode).
func (e *Environment) SetREPLMode(on bool) { e.repl = on }

func (e *Environment) IsREPL() bool { return e.repl }

// DefineVal introduces an immutable binding in this scope. Fails if
// already defined in *this* scope (not an ancestor) unless REPL mode,
// which overwrites in place.
func (e *Environment) DefineVal(name string, v value.Value) error {
	return e.define(name, v, true)
}

// DefineVar introduces a mutable binding in this scope.
func (e *Environment) DefineVar(name string, v value.Value) error {
	return e.define(name, v, false)
}

func (e *Environment) define(name string, v value.Value, immutable bool) error {
	if existing, ok := e.vars[name]; ok {
		if !e.repl {
			return novaerr.Newf(novaerr.KindVariableAlreadyDefined, "Variable already defined: %s", name)
		}
		existing.value = v
		existing.immutable = immutable
		return nil
	}
	e.vars[name] = &slot{value: v, immutable: immutable}
	return nil
}

// Redefine unconditionally overwrites a binding in this scope, used by
// the host to inject built-ins (spec.md §3.2).
func (e *Environment) Redefine(name string, v value.Value, immutable bool) {
	e.vars[name] = &slot{value: v, immutable: immutable}
}

// Assign walks the parent chain until name is found and mutates its
// slot in place; fails if missing or immutable.
func (e *Environment) Assign(name string, v value.Value) error {
	for scope := e; scope != nil; scope = scope.parent {
		if s, ok := scope.vars[name]; ok {
			if s.immutable {
				return novaerr.Newf(novaerr.KindVisibilityError, "Val cannot be reassigned: %s", name)
			}
			s.value = v
			return nil
		}
	}
	return novaerr.Newf(novaerr.KindUndefinedVariable, "Undefined variable: %s", name)
}

// Get walks the parent chain for name.
func (e *Environment) Get(name string) (value.Value, error) {
	for scope := e; scope != nil; scope = scope.parent {
		if s, ok := scope.vars[name]; ok {
			return s.value, nil
		}
	}
	return nil, novaerr.Newf(novaerr.KindUndefinedVariable, "Undefined variable: %s", name)
}

// IsDefined reports whether name is bound anywhere in the chain.
func (e *Environment) IsDefined(name string) bool {
	for scope := e; scope != nil; scope = scope.parent {
		if _, ok := scope.vars[name]; ok {
			return true
		}
	}
	return false
}

// IsVal reports whether name is bound and immutable. False if undefined.
func (e *Environment) IsVal(name string) bool {
	for scope := e; scope != nil; scope = scope.parent {
		if s, ok := scope.vars[name]; ok {
			return s.immutable
		}
	}
	return false
}

// Parent exposes the enclosing scope (nil for the outermost environment).
func (e *Environment) Parent() *Environment { return e.parent }

// OwnNames returns the names defined directly in this scope (not
// ancestors) — used by REPL dumps and annotation-processor metadata.
func (e *Environment) OwnNames() []string {
	names := make([]string, 0, len(e.vars))
	for n := range e.vars {
		names = append(names, n)
	}
	return names
}
