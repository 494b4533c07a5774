package tui

import (
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/sadopc/linecook/internal/timer"
)

// refreshEvery is how often a running ticket is redrawn.
var refreshEvery = time.Second

// attacher binds refresh handles to running tickets.
type attacher interface {
	Attach(id int64, h timer.Handle) bool
}

// refresher drives the once-a-second redraw of each running ticket. Every
// watched ticket gets a timer.Handle; when the registry cancels it (ticket
// closed, board cleared) the tick chain for that ticket stops.
//
// Ids restart at 1 after the board is cleared, so each watch gets a fresh
// generation and ticks from an older chain are dropped.
type refresher struct {
	mu   sync.Mutex
	gen  uint64
	live map[int64]uint64
}

func newRefresher() *refresher {
	return &refresher{live: make(map[int64]uint64)}
}

// watch starts the tick chain for id. It returns nil when the ticket is not
// running.
func (r *refresher) watch(a attacher, id int64) tea.Cmd {
	r.mu.Lock()
	r.gen++
	gen := r.gen
	r.live[id] = gen
	r.mu.Unlock()

	if !a.Attach(id, timer.HandleFunc(func() { r.drop(id, gen) })) {
		return nil
	}
	return ticketTick(id, gen)
}

func (r *refresher) drop(id int64, gen uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.live[id] == gen {
		delete(r.live, id)
	}
}

func (r *refresher) active(id int64, gen uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.live[id]
	return ok && g == gen
}

func (r *refresher) watching() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.live)
}

// next continues a chain, or returns nil once its handle was cancelled.
func (r *refresher) next(msg ticketTickMsg) tea.Cmd {
	if !r.active(msg.id, msg.gen) {
		return nil
	}
	return ticketTick(msg.id, msg.gen)
}

func ticketTick(id int64, gen uint64) tea.Cmd {
	return tea.Tick(refreshEvery, func(time.Time) tea.Msg {
		return ticketTickMsg{id: id, gen: gen}
	})
}
