package timer

import (
	"errors"
	"time"

	"github.com/sasha-s/go-deadlock"
)

var ErrInvalidInterval = errors.New("timer: repeating interval must be positive")

// Handle identifies a scheduled callback. The zero Handle never refers to
// a live timer.
type Handle uint64

// A Dispatcher hands a callback to the context that is allowed to run it.
// The game server passes a function that enqueues onto its event loop so
// that callbacks never race with request handling.
type Dispatcher func(func())

type entry struct {
	id       Handle
	scope    *Scope
	fn       func()
	interval time.Duration
	t        *time.Timer

	// pending is set while a fire is queued on the dispatcher but has not
	// run yet.
	pending   bool
	cancelled bool
}

// Scheduler owns every timer in a match. Timers are grouped into scopes so
// that tearing down a session or an entity cancels everything it started.
type Scheduler struct {
	dispatch Dispatcher

	mutex  deadlock.Mutex
	nextID Handle
	timers map[Handle]*entry
	root   *Scope
}

// New creates a Scheduler. If dispatch is nil callbacks run directly on the
// goroutine of the underlying time.Timer.
func New(dispatch Dispatcher) *Scheduler {
	if dispatch == nil {
		dispatch = func(fn func()) { fn() }
	}

	s := &Scheduler{
		dispatch: dispatch,
		timers:   make(map[Handle]*entry),
	}
	s.root = newScope(s, nil)
	return s
}

// Once calls fn once after delay. A delay <= 0 fires on the next dispatch.
func (s *Scheduler) Once(delay time.Duration, fn func()) Handle {
	return s.root.Once(delay, fn)
}

// Repeating calls fn every interval until cancelled.
func (s *Scheduler) Repeating(interval time.Duration, fn func()) (Handle, error) {
	return s.root.Repeating(interval, fn)
}

// Cancel stops the timer. Once Cancel returns, a fire that was already
// handed to the dispatcher but has not started will be discarded, so when
// Cancel is called from the dispatch context the callback is guaranteed
// never to run again. It returns false if the handle was unknown or
// already finished.
func (s *Scheduler) Cancel(h Handle) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	e, ok := s.timers[h]
	if !ok {
		return false
	}
	s.remove(e)
	return true
}

// Scope creates a new top-level scope.
func (s *Scheduler) Scope() *Scope {
	return s.root.Scope()
}

// Close cancels every timer. Nothing can be scheduled afterwards.
func (s *Scheduler) Close() {
	s.root.Close()
}

// Active returns the number of timers that have not fired or been
// cancelled.
func (s *Scheduler) Active() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return len(s.timers)
}

func (s *Scheduler) schedule(scope *Scope, delay, interval time.Duration, fn func()) Handle {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if scope.closed {
		return 0
	}

	s.nextID++
	e := &entry{
		id:       s.nextID,
		scope:    scope,
		fn:       fn,
		interval: interval,
	}
	s.timers[e.id] = e
	scope.handles[e.id] = struct{}{}

	if delay < 0 {
		delay = 0
	}
	e.t = time.AfterFunc(delay, func() { s.fire(e) })
	return e.id
}

func (s *Scheduler) fire(e *entry) {
	s.mutex.Lock()
	if e.cancelled {
		s.mutex.Unlock()
		return
	}

	if e.interval > 0 {
		e.t.Reset(e.interval)
	}

	// The previous tick has not run yet; drop this one.
	if e.pending {
		s.mutex.Unlock()
		return
	}
	e.pending = true
	s.mutex.Unlock()

	s.dispatch(func() { s.run(e) })
}

func (s *Scheduler) run(e *entry) {
	s.mutex.Lock()
	if e.cancelled {
		s.mutex.Unlock()
		return
	}
	e.pending = false
	if e.interval == 0 {
		s.remove(e)
	}
	s.mutex.Unlock()

	e.fn()
}

// remove must be called with the mutex held.
func (s *Scheduler) remove(e *entry) {
	e.cancelled = true
	if e.t != nil {
		e.t.Stop()
	}
	delete(s.timers, e.id)
	delete(e.scope.handles, e.id)
}

// Scope is an arena of timers. Closing a scope cancels all of its timers
// and the timers of every scope created from it.
type Scope struct {
	scheduler *Scheduler
	parent    *Scope

	// guarded by scheduler.mutex
	handles  map[Handle]struct{}
	children map[*Scope]struct{}
	closed   bool
}

func newScope(s *Scheduler, parent *Scope) *Scope {
	return &Scope{
		scheduler: s,
		parent:    parent,
		handles:   make(map[Handle]struct{}),
		children:  make(map[*Scope]struct{}),
	}
}

func (sc *Scope) Once(delay time.Duration, fn func()) Handle {
	return sc.scheduler.schedule(sc, delay, 0, fn)
}

func (sc *Scope) Repeating(interval time.Duration, fn func()) (Handle, error) {
	if interval <= 0 {
		return 0, ErrInvalidInterval
	}
	return sc.scheduler.schedule(sc, interval, interval, fn), nil
}

func (sc *Scope) Cancel(h Handle) bool {
	return sc.scheduler.Cancel(h)
}

// Scope creates a child scope. Children of a closed scope start closed.
func (sc *Scope) Scope() *Scope {
	s := sc.scheduler
	s.mutex.Lock()
	defer s.mutex.Unlock()

	child := newScope(s, sc)
	if sc.closed {
		child.closed = true
		return child
	}
	sc.children[child] = struct{}{}
	return child
}

func (sc *Scope) Close() {
	s := sc.scheduler
	s.mutex.Lock()
	sc.close()
	s.mutex.Unlock()
}

func (sc *Scope) Closed() bool {
	s := sc.scheduler
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return sc.closed
}

// Len returns the number of live timers owned directly by this scope.
func (sc *Scope) Len() int {
	s := sc.scheduler
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return len(sc.handles)
}

func (sc *Scope) close() {
	if sc.closed {
		return
	}
	sc.closed = true

	s := sc.scheduler
	for h := range sc.handles {
		if e, ok := s.timers[h]; ok {
			s.remove(e)
		}
	}
	for child := range sc.children {
		child.close()
	}
	if sc.parent != nil {
		delete(sc.parent.children, sc)
	}
}
