// Package concurrency implements Nova's Scheduler SPI (spec.md §4.6/§5/§6,
// component E): the Executor/Scheduler/Cancellable trait, Task and Future
// values, and the scope/async/sync/delay/await primitives built on top.
//
// The teacher has no concurrency layer at all (smog is single-threaded).
// This package is grounded on the pack's concurrency idioms instead:
// golang.org/x/sync's errgroup for scope{}'s structured fan-in/fan-out
// (a goroutine-per-child-task group that returns the first error and
// waits for the rest — spec.md §4.6.2's scope{} "blocks the caller until
// complete"), google/uuid for stable Task/Future identity, and
// robfig/cron/v3's parser so schedule_repeat's period can be expressed
// as a cron spec as well as a plain millisecond interval.
package concurrency

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/kristofer/nova/internal/novaerr"
	"github.com/kristofer/nova/internal/value"
)

// Status is a Task/Future's lifecycle state.
type Status int

const (
	StatusPending Status = iota
	StatusRunning
	StatusCompleted
	StatusFailed
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "Pending"
	case StatusRunning:
		return "Running"
	case StatusCompleted:
		return "Completed"
	case StatusFailed:
		return "Failed"
	case StatusCancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// Cancellable is the handle schedule_later/schedule_repeat return and
// every Task/Future embeds (spec.md §4.6.1).
type Cancellable interface {
	Cancel()
	IsCancelled() bool
}

type cancelFlag struct {
	mu        sync.Mutex
	cancelled bool
	onCancel  func()
}

func (c *cancelFlag) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancelled {
		return
	}
	c.cancelled = true
	if c.onCancel != nil {
		c.onCancel()
	}
}

func (c *cancelFlag) IsCancelled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancelled
}

// Task is the handle `schedule`/`scheduleRepeat` return (spec.md
// §4.6.2). Already-running invocations are not preempted by cancel —
// cancellation only skips future pending/repeat firings.
type Task struct {
	cancelFlag
	id uuid.UUID
}

func newTask() *Task { return &Task{id: uuid.New()} }

func (t *Task) TypeName() string  { return "Task" }
func (t *Task) AsBool() bool      { return true }
func (t *Task) AsInt() int64      { return 0 }
func (t *Task) AsLong() int64     { return 0 }
func (t *Task) AsFloat() float32  { return 0 }
func (t *Task) AsDouble() float64 { return 0 }
func (t *Task) AsString() string {
	if t.IsCancelled() {
		return "<task: cancelled>"
	}
	return "<task: active>"
}
func (t *Task) Hash() uint64        { return uint64(t.id.ID()) }
func (t *Task) ToHost() interface{} { return t }
func (t *Task) IsNumber() bool      { return false }
func (t *Task) IsCollection() bool  { return false }
func (t *Task) Equals(o value.Value) bool {
	ot, ok := o.(*Task)
	return ok && t.id == ot.id
}

// Future is Nova's async{} result handle, supporting await()/get().
type Future struct {
	id     uuid.UUID
	mu     sync.Mutex
	status Status
	result value.Value
	err    *novaerr.Error
	done   chan struct{}
}

func newFuture() *Future {
	return &Future{id: uuid.New(), status: StatusPending, done: make(chan struct{})}
}

func (f *Future) markRunning() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.status == StatusPending {
		f.status = StatusRunning
	}
}

func (f *Future) complete(v value.Value) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.status == StatusCompleted || f.status == StatusFailed || f.status == StatusCancelled {
		return
	}
	f.result, f.status = v, StatusCompleted
	close(f.done)
}

func (f *Future) fail(err *novaerr.Error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.status == StatusCompleted || f.status == StatusFailed || f.status == StatusCancelled {
		return
	}
	f.err, f.status = err, StatusFailed
	close(f.done)
}

// Cancel implements Cancellable. Already-running work is not
// interrupted (spec.md §5); cancel only prevents Await from blocking
// further and makes it return null.
func (f *Future) Cancel() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.status == StatusCompleted || f.status == StatusFailed || f.status == StatusCancelled {
		return
	}
	f.status = StatusCancelled
	close(f.done)
}

func (f *Future) IsCancelled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status == StatusCancelled
}

// Await blocks until the future settles. A cancelled future's await
// returns Null rather than an error, per spec.md §5 ("Future.await() on
// a cancelled Task returns null").
func (f *Future) Await(ctx context.Context) (value.Value, error) {
	select {
	case <-f.done:
	case <-ctx.Done():
		return nil, novaerr.New(novaerr.KindTimeout, "await cancelled: context done")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	switch f.status {
	case StatusCompleted:
		return f.result, nil
	case StatusCancelled:
		return value.Null, nil
	default:
		return nil, f.err
	}
}

func (f *Future) Status() Status { return f.status }

func (f *Future) TypeName() string    { return "Future" }
func (f *Future) AsBool() bool        { return true }
func (f *Future) AsInt() int64        { return 0 }
func (f *Future) AsLong() int64       { return 0 }
func (f *Future) AsFloat() float32    { return 0 }
func (f *Future) AsDouble() float64   { return 0 }
func (f *Future) AsString() string    { return fmt.Sprintf("Future(%s, %s)", f.id, f.status) }
func (f *Future) Hash() uint64        { return uint64(f.id.ID()) }
func (f *Future) ToHost() interface{} { return f }
func (f *Future) IsNumber() bool      { return false }
func (f *Future) IsCollection() bool  { return false }
func (f *Future) Equals(o value.Value) bool {
	of, ok := o.(*Future)
	return ok && f.id == of.id
}

// Executor is the submission surface for one of the scheduler's two
// pools (spec.md §4.6.1's `main_executor()`/`async_executor()`).
type Executor interface {
	Submit(fn func())
}

// Scheduler is the embedder-supplied SPI (spec.md §6's Scheduler
// trait). NewDefaultScheduler provides a goroutine-backed one so the
// interpreter works standalone without an embedder.
type Scheduler interface {
	MainExecutor() Executor
	AsyncExecutor() Executor
	IsMainThread() bool
	ScheduleLater(delayMs int64, task func()) Cancellable
	ScheduleRepeat(initialDelayMs, periodMs int64, task func()) Cancellable
	// ScheduleCron fires task on the standard five-field cron schedule
	// described by spec (spec.md §4.6.2's schedule_repeat period given as
	// a cron expression instead of a millisecond interval). Returns an
	// error if spec doesn't parse as a valid cron expression.
	ScheduleCron(spec string, task func()) (Cancellable, error)
	// Scope runs fn with a child-task group and blocks until every task
	// spawned via the group has completed or been cancelled (spec.md
	// §4.6.2's scope{}).
	Scope(fn func(g *Group) error) error
	Shutdown()
}

// Group is scope{}'s fan-out handle; Spawn mirrors errgroup.Group.Go
// but returns a *Future so scope bodies can individually await children.
type Group struct {
	eg  *errgroup.Group
	ctx context.Context
}

func (g *Group) Spawn(fn func(ctx context.Context) (value.Value, *novaerr.Error)) *Future {
	f := newFuture()
	f.markRunning()
	g.eg.Go(func() error {
		v, err := fn(g.ctx)
		if err != nil {
			f.fail(err)
			return err
		}
		f.complete(v)
		return nil
	})
	return f
}

func (g *Group) Context() context.Context { return g.ctx }

// --- goroutine-backed default implementation ---------------------------

type goExecutor struct {
	mainThread bool
	jobs       chan func()
	ctx        context.Context
}

func (e *goExecutor) Submit(fn func()) {
	select {
	case e.jobs <- fn:
	case <-e.ctx.Done():
	}
}

func (e *goExecutor) run() {
	for {
		select {
		case fn := <-e.jobs:
			fn()
		case <-e.ctx.Done():
			return
		}
	}
}

type defaultScheduler struct {
	mu      sync.Mutex
	timers  []*cancelFlag
	main    *goExecutor
	async   *goExecutor
	ctx     context.Context
	cancel  context.CancelFunc
	cronRun *cron.Cron
}

// NewDefaultScheduler builds the goroutine/errgroup-backed Scheduler
// used when no embedder Scheduler is bound (spec.md §6's `set_scheduler`
// is then never called and primitives run against this one).
func NewDefaultScheduler() Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	s := &defaultScheduler{ctx: ctx, cancel: cancel, cronRun: cron.New()}
	s.main = &goExecutor{mainThread: true, jobs: make(chan func(), 256), ctx: ctx}
	s.async = &goExecutor{jobs: make(chan func(), 256), ctx: ctx}
	go s.main.run()
	for i := 0; i < 4; i++ {
		go s.async.run()
	}
	s.cronRun.Start()
	return s
}

func (s *defaultScheduler) MainExecutor() Executor  { return s.main }
func (s *defaultScheduler) AsyncExecutor() Executor { return s.async }

// IsMainThread always reports false for the goroutine-backed default:
// there is no single distinguished OS/main thread across the pool, so
// this scheduler never reports a caller as running on the main thread.
func (s *defaultScheduler) IsMainThread() bool { return false }

func (s *defaultScheduler) ScheduleLater(delayMs int64, task func()) Cancellable {
	cf := &cancelFlag{}
	timer := time.AfterFunc(time.Duration(delayMs)*time.Millisecond, func() {
		if !cf.IsCancelled() {
			s.main.Submit(task)
		}
	})
	cf.onCancel = func() { timer.Stop() }
	s.mu.Lock()
	s.timers = append(s.timers, cf)
	s.mu.Unlock()
	return cf
}

func (s *defaultScheduler) ScheduleRepeat(initialDelayMs, periodMs int64, task func()) Cancellable {
	cf := &cancelFlag{}
	ticker := time.NewTicker(time.Duration(periodMs) * time.Millisecond)
	cf.onCancel = func() { ticker.Stop() }
	go func() {
		timer := time.NewTimer(time.Duration(initialDelayMs) * time.Millisecond)
		defer timer.Stop()
		select {
		case <-timer.C:
			if !cf.IsCancelled() {
				s.main.Submit(task)
			}
		case <-s.ctx.Done():
			return
		}
		for {
			select {
			case <-ticker.C:
				if cf.IsCancelled() {
					return
				}
				s.main.Submit(task)
			case <-s.ctx.Done():
				return
			}
		}
	}()
	s.mu.Lock()
	s.timers = append(s.timers, cf)
	s.mu.Unlock()
	return cf
}

// ScheduleCron parses spec with robfig/cron's standard five-field parser
// and registers task against the scheduler's running cron.Cron, so
// firings are actually driven by cron's schedule rather than by a
// time.Ticker computed in Go.
func (s *defaultScheduler) ScheduleCron(spec string, task func()) (Cancellable, error) {
	cf := &cancelFlag{}
	id, err := s.cronRun.AddFunc(spec, func() {
		if !cf.IsCancelled() {
			s.main.Submit(task)
		}
	})
	if err != nil {
		return nil, novaerr.Newf(novaerr.KindUser, "invalid cron spec %q: %v", spec, err)
	}
	cf.onCancel = func() { s.cronRun.Remove(id) }
	s.mu.Lock()
	s.timers = append(s.timers, cf)
	s.mu.Unlock()
	return cf, nil
}

func (s *defaultScheduler) Scope(fn func(g *Group) error) error {
	eg, ctx := errgroup.WithContext(s.ctx)
	g := &Group{eg: eg, ctx: ctx}
	if err := fn(g); err != nil {
		eg.Wait()
		return err
	}
	return eg.Wait()
}

func (s *defaultScheduler) Shutdown() {
	s.cancel()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.timers {
		t.Cancel()
	}
	s.cronRun.Stop()
}

// NewTask and NewFuture are exported constructors for the primitives
// package (schedule/scheduleRepeat/async builtins) to produce Nova
// values while keeping Future/Task's settlement methods private to
// this package.
func NewTask() *Task     { return newTask() }
func NewFuture() *Future { return newFuture() }

// Complete/Fail are the settlement hooks the async{}/schedule{} builtin
// implementations call once the scheduled block finishes; exported as
// methods via a settlement handle to avoid widening Future/Task's
// public surface with mutators ordinary Nova code could invoke.
type FutureSettler struct{ f *Future }

func Settle(f *Future) FutureSettler { return FutureSettler{f} }
func (s FutureSettler) Running()             { s.f.markRunning() }
func (s FutureSettler) Complete(v value.Value) { s.f.complete(v) }
func (s FutureSettler) Fail(err *novaerr.Error) { s.f.fail(err) }
