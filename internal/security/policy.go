// Package security implements Nova's Policy bundle and enforcement gates
// (spec.md §4.7, component D): host class/method allowlisting and
// resource-budget enforcement (recursion depth, loop iterations,
// wall-clock timeout).
//
// The teacher has no equivalent component — smog's host interop
// (pkg/vm/primitives.go) runs unconditionally. Nova's policy layer is
// grounded on the same "gate every dangerous primitive" shape the
// teacher uses for its HTTP/file/crypto primitives, generalized into a
// reusable allow/deny table consulted before each one fires, plus the
// budget counters spec.md §4.7/§5 require.
package security

import (
	"strings"
	"sync/atomic"
	"time"

	"github.com/kristofer/nova/internal/novaerr"
)

// Policy is the configurable security/resource bundle spec.md §4.7 names.
type Policy struct {
	Name string

	AllowJavaInterop  bool
	AllowedPackages   []string // package prefixes, e.g. "java.util"
	DeniedClasses     map[string]bool
	AllowedClasses    map[string]bool // optional superset of AllowedPackages
	DeniedMethods     map[string]bool // keyed by "fqn::method"
	AllowStdio        bool

	MaxExecutionTimeMs int64
	MaxRecursionDepth  int
	MaxLoopIterations  int64
}

// Predefined levels named in spec.md §4.7.

func Unrestricted() *Policy {
	return &Policy{
		Name:              "UNRESTRICTED",
		AllowJavaInterop:  true,
		AllowStdio:        true,
		DeniedClasses:     map[string]bool{},
		AllowedClasses:    map[string]bool{},
		DeniedMethods:     map[string]bool{},
		MaxRecursionDepth: 0, // 0 == unbounded
		MaxLoopIterations: 0,
	}
}

func Standard() *Policy {
	return &Policy{
		Name:             "STANDARD",
		AllowJavaInterop: true,
		AllowedPackages:  []string{"java.util", "java.lang"},
		DeniedClasses: map[string]bool{
			"java.lang.Runtime":       true,
			"java.lang.ProcessBuilder": true,
		},
		AllowedClasses: map[string]bool{},
		DeniedMethods: map[string]bool{
			"java.lang.System::exit":        true,
			"java.lang.System::load":        true,
			"java.lang.System::loadLibrary": true,
		},
		AllowStdio:         true,
		MaxExecutionTimeMs: 30_000,
		MaxRecursionDepth:  2048,
		MaxLoopIterations:  10_000_000,
	}
}

func Strict() *Policy {
	return &Policy{
		Name:               "STRICT",
		AllowJavaInterop:   false,
		AllowedPackages:    nil,
		DeniedClasses:      map[string]bool{},
		AllowedClasses:     map[string]bool{},
		DeniedMethods:      map[string]bool{},
		AllowStdio:         true,
		MaxExecutionTimeMs: 5_000,
		MaxRecursionDepth:  256,
		MaxLoopIterations:  1_000_000,
	}
}

// IsClassAllowed enforces the host-class-load gate (spec.md §4.7).
func (p *Policy) IsClassAllowed(fqn string) bool {
	if !p.AllowJavaInterop {
		return false
	}
	if p.DeniedClasses[fqn] {
		return false
	}
	if p.AllowedClasses[fqn] {
		return true
	}
	for _, prefix := range p.AllowedPackages {
		if strings.HasPrefix(fqn, prefix+".") {
			return true
		}
	}
	return len(p.AllowedPackages) == 0 && len(p.AllowedClasses) == 0
}

// IsMethodAllowed enforces the host-method-invocation gate.
func (p *Policy) IsMethodAllowed(fqn, method string) bool {
	if !p.IsClassAllowed(fqn) {
		return false
	}
	return !p.DeniedMethods[fqn+"::"+method]
}

// Denied constructs the uncatchable SecurityDenied error for a gate
// failure (spec.md §7: Policy errors are uncatchable by user try/catch).
func Denied(what string) *novaerr.Error {
	return novaerr.New(novaerr.KindSecurityDenied, "Security denied: "+what)
}

// Budget tracks the per-execution-context resource counters spec.md
// §4.7/§5 requires: recursion depth (checked before every function-body
// entry), loop iterations (incremented per loop iteration), and a
// wall-clock deadline checked at loop heads and function entries.
type Budget struct {
	policy    *Policy
	loopCount int64
	deadline  time.Time
	hasClock  bool
}

// NewBudget starts the wall-clock timer for the outermost eval this
// budget belongs to (spec.md §4.7: "since the outermost eval began").
func NewBudget(p *Policy) *Budget {
	b := &Budget{policy: p}
	if p != nil && p.MaxExecutionTimeMs > 0 {
		b.deadline = time.Now().Add(time.Duration(p.MaxExecutionTimeMs) * time.Millisecond)
		b.hasClock = true
	}
	return b
}

// CheckRecursion enforces max_recursion_depth given the call stack's
// current depth, called before every function-body entry.
func (b *Budget) CheckRecursion(depth int) error {
	if b.policy == nil || b.policy.MaxRecursionDepth <= 0 {
		return nil
	}
	if depth > b.policy.MaxRecursionDepth {
		return novaerr.New(novaerr.KindRecursionLimit, "Recursion limit exceeded")
	}
	return nil
}

// CheckLoopIteration increments and enforces max_loop_iterations.
func (b *Budget) CheckLoopIteration() error {
	n := atomic.AddInt64(&b.loopCount, 1)
	if b.policy == nil || b.policy.MaxLoopIterations <= 0 {
		return nil
	}
	if n > b.policy.MaxLoopIterations {
		return novaerr.New(novaerr.KindLoopLimit, "Loop iteration limit exceeded")
	}
	return nil
}

// CheckTimeout enforces max_execution_time_ms; polled at loop heads and
// function entries rather than via a preemptive watcher thread, which
// keeps the evaluator single-threaded per execution context (spec.md §5
// "the evaluator itself is otherwise fully synchronous; no hidden yield").
func (b *Budget) CheckTimeout() error {
	if !b.hasClock {
		return nil
	}
	if time.Now().After(b.deadline) {
		return novaerr.New(novaerr.KindTimeout, "Execution timed out")
	}
	return nil
}
