// Package timer tracks the tickets a cook has open and how long each has been
// running.
package timer

import (
	"sort"
	"sync"
	"time"
)

type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// System is the wall clock.
var System Clock = systemClock{}

// Timer is one open ticket.
type Timer struct {
	ID      int64
	CookPin int64
	Start   time.Time
	Running bool
}

// Handle is a display refresh bound to a ticket, cancelled when the ticket
// goes away.
type Handle interface {
	Cancel()
}

// HandleFunc adapts a function to Handle.
type HandleFunc func()

func (f HandleFunc) Cancel() { f() }

// Registry holds the open tickets of the active session. Timers and their
// refresh handles live in separate maps with independent lifecycles.
type Registry struct {
	mu      sync.Mutex
	clock   Clock
	nextID  int64
	timers  map[int64]*Timer
	handles map[int64]Handle
}

func NewRegistry(clock Clock) *Registry {
	if clock == nil {
		clock = System
	}
	return &Registry{
		clock:   clock,
		timers:  make(map[int64]*Timer),
		handles: make(map[int64]Handle),
	}
}

// Start opens a ticket for cookPin and returns it. IDs count up from 1 within
// a session.
func (r *Registry) Start(cookPin int64) Timer {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	t := &Timer{ID: r.nextID, CookPin: cookPin, Start: r.clock.Now(), Running: true}
	r.timers[t.ID] = t
	return *t
}

// Elapsed returns whole seconds since the ticket started. Unknown or stopped
// tickets report 0, and a start in the future is clamped to 0.
func (r *Registry) Elapsed(id int64) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.timers[id]
	if !ok {
		return 0
	}
	return r.elapsed(t)
}

func (r *Registry) elapsed(t *Timer) int64 {
	if !t.Running {
		return 0
	}
	d := r.clock.Now().Sub(t.Start)
	if d < 0 {
		return 0
	}
	return int64(d / time.Second)
}

// Close stops and removes the ticket, cancelling its refresh handle. The
// elapsed time is measured before the timer stops. Closing an unknown id
// returns ok=false and no error.
func (r *Registry) Close(id int64) (Timer, int64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.timers[id]
	if !ok {
		return Timer{}, 0, false
	}
	elapsed := r.elapsed(t)
	t.Running = false
	delete(r.timers, id)
	r.cancelHandle(id)
	return *t, elapsed, true
}

// Reassign hands a ticket to another cook and restarts its clock. Without
// approval nothing changes. It reports whether the ticket was reassigned.
func (r *Registry) Reassign(id, cookPin int64, approved bool) bool {
	if !approved {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.timers[id]
	if !ok {
		return false
	}
	t.CookPin = cookPin
	t.Start = r.clock.Now()
	return true
}

// Clear drops every ticket without recording anything and resets the id
// counter.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id := range r.handles {
		r.cancelHandle(id)
	}
	r.timers = make(map[int64]*Timer)
	r.nextID = 0
}

func (r *Registry) Get(id int64) (Timer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.timers[id]
	if !ok {
		return Timer{}, false
	}
	return *t, true
}

func (r *Registry) AnyRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, t := range r.timers {
		if t.Running {
			return true
		}
	}
	return false
}

// Running returns the running tickets ordered by id.
func (r *Registry) Running() []Timer {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Timer, 0, len(r.timers))
	for _, t := range r.timers {
		if t.Running {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Attach binds a refresh handle to a ticket, replacing any previous one. A
// handle for an unknown ticket is cancelled straight away.
func (r *Registry) Attach(id int64, h Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.timers[id]; !ok {
		h.Cancel()
		return false
	}
	r.cancelHandle(id)
	r.handles[id] = h
	return true
}

// Attached reports whether id has a live refresh handle.
func (r *Registry) Attached(id int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.handles[id]
	return ok
}

func (r *Registry) cancelHandle(id int64) {
	if h, ok := r.handles[id]; ok {
		delete(r.handles, id)
		h.Cancel()
	}
}

// Snapshot captures every running ticket.
func (r *Registry) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := Snapshot{SavedAt: r.clock.Now().UTC(), Tickets: make(map[int64]Entry, len(r.timers))}
	for id, t := range r.timers {
		if t.Running {
			snap.Tickets[id] = Entry{StartTime: t.Start, CookPin: t.CookPin}
		}
	}
	return snap
}

// Restore re-inserts snapshotted tickets as running with their original start
// times, so the suspended interval counts toward elapsed time. New tickets get
// ids above the highest restored one. It returns how many were restored.
func (r *Registry) Restore(snap Snapshot) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, e := range snap.Tickets {
		r.timers[id] = &Timer{ID: id, CookPin: e.CookPin, Start: e.StartTime, Running: true}
		if id > r.nextID {
			r.nextID = id
		}
	}
	return len(snap.Tickets)
}
