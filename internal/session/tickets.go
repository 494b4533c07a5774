package session

import (
	"errors"
	"fmt"
	"sort"

	"github.com/sadopc/linecook/internal/store"
	"github.com/sadopc/linecook/internal/timer"
)

type Outcome int

const (
	Open Outcome = iota
	Sold
	Canceled
)

func (o Outcome) String() string {
	switch o {
	case Sold:
		return "Sold"
	case Canceled:
		return "Canceled"
	}
	return "Open"
}

// Ticket is a row on the kitchen board: either still running or closed during
// this session.
type Ticket struct {
	ID        int64
	CookPin   int64
	Outcome   Outcome
	Elapsed   int64
	Running   bool
	Persisted bool
}

// StartTicket opens a ticket for the signed-in cook.
func (s *Service) StartTicket() (timer.Timer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil || s.current.IsManager() {
		return timer.Timer{}, ErrNoSession
	}
	t := s.reg.Start(s.current.Pin)
	s.logger.Debug("ticket started", "ticket", t.ID, "cook", t.CookPin)
	return t, nil
}

// CloseTicket closes a running ticket. A sold ticket that ran at least the
// minimum duration is recorded; shorter ones and cancellations are not.
// Cancelling needs approval. ok is false when nothing was closed.
func (s *Service) CloseTicket(id int64, outcome Outcome, approved bool) (Ticket, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if outcome != Sold && outcome != Canceled {
		return Ticket{}, false, fmt.Errorf("close ticket %d: unknown outcome %d", id, outcome)
	}
	if outcome == Canceled && !approved {
		return Ticket{}, false, nil
	}

	tm, elapsed, ok := s.reg.Close(id)
	if !ok {
		return Ticket{}, false, nil
	}
	closed := Ticket{ID: tm.ID, CookPin: tm.CookPin, Outcome: outcome, Elapsed: elapsed}

	var err error
	if outcome == Sold && elapsed >= s.opts.MinTicketSeconds {
		_, err = s.repo.InsertTicket(tm.CookPin, s.clock.Now().UTC(), elapsed)
		if err != nil {
			err = fmt.Errorf("record ticket %d: %w", id, err)
			s.logger.Error("ticket not recorded", "ticket", id, "cook", tm.CookPin, "elapsed", elapsed, "err", err)
		} else {
			closed.Persisted = true
		}
	}
	s.closed = append(s.closed, closed)
	s.logger.Debug("ticket closed", "ticket", id, "outcome", outcome, "elapsed", elapsed, "recorded", closed.Persisted)
	return closed, true, err
}

// Reassign hands a running ticket to another cook and restarts its clock.
// Without approval nothing changes.
func (s *Service) Reassign(id, cookPin int64, approved bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !approved {
		return false, nil
	}
	cook, err := s.repo.GetCook(cookPin)
	if errors.Is(err, store.ErrNotFound) {
		return false, ErrInvalidPin
	}
	if err != nil {
		return false, fmt.Errorf("reassign ticket %d: %w", id, err)
	}
	if !s.reg.Reassign(id, cook.Pin, true) {
		return false, nil
	}
	s.logger.Info("ticket handed off", "ticket", id, "cook", cook.Name)
	return true, nil
}

// Elapsed returns the running seconds of a ticket, or 0.
func (s *Service) Elapsed(id int64) int64 {
	return s.reg.Elapsed(id)
}

// Running reports whether any ticket is still open.
func (s *Service) Running() bool {
	return s.reg.AnyRunning()
}

// Tickets lists the board: running tickets with their current elapsed time
// and the tickets closed this session, ordered by id.
func (s *Service) Tickets() []Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()

	running := s.reg.Running()
	out := make([]Ticket, 0, len(running)+len(s.closed))
	for _, t := range running {
		out = append(out, Ticket{ID: t.ID, CookPin: t.CookPin, Elapsed: s.reg.Elapsed(t.ID), Running: true})
	}
	out = append(out, s.closed...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Attach binds a display refresh to a running ticket.
func (s *Service) Attach(id int64, h timer.Handle) bool {
	return s.reg.Attach(id, h)
}

// Suspend writes the running tickets to the snapshot store so Resume can
// pick them up with their original start times.
func (s *Service) Suspend() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.reg.Snapshot()
	if snap.Empty() {
		return s.snaps.Delete()
	}
	if s.current != nil {
		snap.Session = s.current.ID
	}
	if err := s.snaps.Save(snap); err != nil {
		return fmt.Errorf("suspend: %w", err)
	}
	s.logger.Info("tickets saved", "count", len(snap.Tickets), "session", snap.Session)
	return nil
}

// Resume restores tickets saved by Suspend and removes the snapshot. A
// corrupt snapshot is discarded and treated as none.
func (s *Service) Resume() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, ok, err := s.snaps.Load()
	if errors.Is(err, timer.ErrCorruptSnapshot) {
		s.logger.Warn("discarding snapshot", "err", err)
		return 0, s.snaps.Delete()
	}
	if err != nil {
		return 0, fmt.Errorf("resume: %w", err)
	}
	if !ok {
		return 0, nil
	}

	// Snapshots without an owner belong to whoever is signed in.
	if s.current != nil && !s.current.IsManager() {
		for id, e := range snap.Tickets {
			if e.CookPin == 0 {
				e.CookPin = s.current.Pin
				snap.Tickets[id] = e
			}
		}
	}
	n := s.reg.Restore(snap)
	if err := s.snaps.Delete(); err != nil {
		return n, fmt.Errorf("resume: %w", err)
	}
	s.logger.Info("tickets restored", "count", n, "from_session", snap.Session)
	return n, nil
}
