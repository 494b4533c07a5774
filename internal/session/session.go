// Package session owns who is signed in at the kitchen terminal and the
// tickets they have open.
package session

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/sadopc/linecook/internal/store"
	"github.com/sadopc/linecook/internal/timer"
)

// UserStore persists the signed-in and last-signed-in markers.
type UserStore interface {
	CurrentUser() (*store.User, error)
	SetCurrentUser(u *store.User) error
	LastUser() (*store.User, error)
	SetLastUser(u *store.User) error
}

// SnapshotStore keeps running tickets across a suspend.
type SnapshotStore interface {
	Save(snap timer.Snapshot) error
	Load() (timer.Snapshot, bool, error)
	Delete() error
}

// Repository is the persistence the service needs.
type Repository interface {
	UserStore
	CreateCook(pin int64, name string) (*store.Cook, error)
	GetCook(pin int64) (*store.Cook, error)
	GetCookByName(name string) (*store.Cook, error)
	OpenClockLog(name string, at time.Time) (*store.ClockLog, error)
	CloseClockLog(name string, at time.Time) (bool, error)
	CloseAllOpenClockLogs(at time.Time) (int64, error)
	LatestOpenClockLog() (*store.ClockLog, error)
	InsertTicket(cookPin int64, at time.Time, seconds int64) (*store.Ticket, error)
}

// Session is the person signed in at the terminal.
type Session struct {
	ID      string
	Name    string
	Role    string
	Pin     int64 // zero for managers
	Started time.Time
}

func (s Session) IsManager() bool { return s.Role == store.RoleManager }

type Options struct {
	ManagerCode      string
	ManagerPins      map[string]string
	MinTicketSeconds int64
}

type Service struct {
	mu     sync.Mutex
	repo   Repository
	snaps  SnapshotStore
	reg    *timer.Registry
	clock  timer.Clock
	opts   Options
	logger *log.Logger

	current *Session
	closed  []Ticket
}

func New(repo Repository, snaps SnapshotStore, clock timer.Clock, opts Options, logger *log.Logger) *Service {
	if clock == nil {
		clock = timer.System
	}
	return &Service{
		repo:   repo,
		snaps:  snaps,
		reg:    timer.NewRegistry(clock),
		clock:  clock,
		opts:   opts,
		logger: logger,
	}
}

// Current returns the signed-in session, or nil.
func (s *Service) Current() *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyCurrent()
}

// ClockIn signs in by PIN. The manager code opens a manager session without a
// clock log. A cook other than the last one to sign in on this terminal
// starts with an empty ticket board.
func (s *Service) ClockIn(pin string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pin = strings.TrimSpace(pin)
	now := s.clock.Now().UTC()

	if pin != "" && pin == s.opts.ManagerCode {
		sess := Session{ID: uuid.NewString(), Name: "Manager", Role: store.RoleManager, Started: now}
		if err := s.repo.SetCurrentUser(&store.User{Name: sess.Name, Role: sess.Role}); err != nil {
			return Session{}, fmt.Errorf("clock in: %w", err)
		}
		s.current = &sess
		s.logger.Info("manager signed in", "session", sess.ID)
		return sess, nil
	}

	n, err := strconv.ParseInt(pin, 10, 64)
	if err != nil || n <= 0 {
		return Session{}, ErrInvalidPin
	}
	cook, err := s.repo.GetCook(n)
	if errors.Is(err, store.ErrNotFound) {
		return Session{}, ErrInvalidPin
	}
	if err != nil {
		return Session{}, fmt.Errorf("clock in: %w", err)
	}

	last, err := s.readMarker("last_user", s.repo.LastUser, s.repo.SetLastUser)
	if err != nil {
		return Session{}, fmt.Errorf("clock in: %w", err)
	}
	if last == nil || last.Pin == nil || *last.Pin != cook.Pin {
		s.reset()
	}

	if _, err := s.repo.OpenClockLog(cook.Name, now); err != nil {
		return Session{}, fmt.Errorf("clock in: %w", err)
	}
	marker := &store.User{Name: cook.Name, Role: store.RoleCook, Pin: &cook.Pin}
	if err := s.repo.SetCurrentUser(marker); err != nil {
		return Session{}, fmt.Errorf("clock in: %w", err)
	}
	if err := s.repo.SetLastUser(&store.User{Name: cook.Name, Pin: &cook.Pin}); err != nil {
		return Session{}, fmt.Errorf("clock in: %w", err)
	}

	sess := Session{ID: uuid.NewString(), Name: cook.Name, Role: store.RoleCook, Pin: cook.Pin, Started: now}
	s.current = &sess
	s.logger.Info("clocked in", "cook", cook.Name, "session", sess.ID)
	return sess, nil
}

// ClockOut ends the current session. It is refused while any ticket is
// running.
func (s *Service) ClockOut() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return ErrNoSession
	}
	if s.current.IsManager() {
		if err := s.repo.SetCurrentUser(nil); err != nil {
			return fmt.Errorf("clock out: %w", err)
		}
		s.logger.Info("manager signed out", "session", s.current.ID)
		s.current = nil
		return nil
	}
	if s.reg.AnyRunning() {
		return ErrActiveTimers
	}

	cur := s.current
	if _, err := s.repo.CloseClockLog(cur.Name, s.clock.Now().UTC()); err != nil {
		return fmt.Errorf("clock out: %w", err)
	}
	// Restore drops a marker left behind by a failed write below.
	s.reset()
	s.current = nil
	if err := s.repo.SetCurrentUser(nil); err != nil {
		s.logger.Error("clearing signed-in marker", "cook", cur.Name, "err", err)
		return fmt.Errorf("clock out: %w", err)
	}
	s.logger.Info("clocked out", "cook", cur.Name, "session", cur.ID)
	return nil
}

// AutoClockOutSweep closes every open clock log, stamped with cutoff. Running
// it again with nothing open changes nothing.
func (s *Service) AutoClockOutSweep(cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.repo.CloseAllOpenClockLogs(cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("auto clock out: %w", err)
	}
	if n > 0 {
		s.logger.Info("open shifts closed", "count", n, "cutoff", cutoff)
	}
	return int(n), nil
}

// AutoLogout signs out whoever is at the terminal, stamping the cook's shift
// with cutoff. Running tickets are dropped without being recorded. It reports
// whether anyone was signed out.
func (s *Service) AutoLogout(cutoff time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return false, nil
	}
	cur := s.current
	if !cur.IsManager() {
		if _, err := s.repo.CloseClockLog(cur.Name, cutoff.UTC()); err != nil {
			return false, fmt.Errorf("auto logout: %w", err)
		}
	}
	if abandoned := len(s.reg.Running()); abandoned > 0 {
		s.logger.Warn("dropping open tickets", "user", cur.Name, "count", abandoned)
	}
	s.reset()
	if err := s.repo.SetCurrentUser(nil); err != nil {
		return false, fmt.Errorf("auto logout: %w", err)
	}
	s.current = nil
	s.logger.Info("signed out at cutoff", "user", cur.Name, "cutoff", cutoff)
	return true, nil
}

// Restore picks the session back up after a restart: a manager marker
// restores a manager session, otherwise the newest open shift decides which
// cook is signed in.
func (s *Service) Restore() (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, err := s.readMarker("current_user", s.repo.CurrentUser, s.repo.SetCurrentUser)
	if err != nil {
		return nil, fmt.Errorf("restore session: %w", err)
	}
	now := s.clock.Now().UTC()
	if u != nil && u.Role == store.RoleManager {
		s.current = &Session{ID: uuid.NewString(), Name: u.Name, Role: store.RoleManager, Started: now}
		return s.copyCurrent(), nil
	}

	open, err := s.repo.LatestOpenClockLog()
	if err != nil {
		return nil, fmt.Errorf("restore session: %w", err)
	}
	if open == nil {
		if u != nil {
			if err := s.repo.SetCurrentUser(nil); err != nil {
				return nil, fmt.Errorf("restore session: %w", err)
			}
		}
		return nil, nil
	}
	cook, err := s.repo.GetCookByName(open.EmployeeName)
	if errors.Is(err, store.ErrNotFound) {
		s.logger.Warn("open shift has no matching cook", "employee", open.EmployeeName)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("restore session: %w", err)
	}

	if err := s.repo.SetCurrentUser(&store.User{Name: cook.Name, Role: store.RoleCook, Pin: &cook.Pin}); err != nil {
		return nil, fmt.Errorf("restore session: %w", err)
	}
	s.current = &Session{ID: uuid.NewString(), Name: cook.Name, Role: store.RoleCook, Pin: cook.Pin, Started: open.ClockIn}
	s.logger.Info("session restored", "cook", cook.Name, "session", s.current.ID)
	return s.copyCurrent(), nil
}

// readMarker loads a user marker. A marker that cannot be decoded is logged,
// removed and read as absent.
func (s *Service) readMarker(key string, get func() (*store.User, error), set func(*store.User) error) (*store.User, error) {
	u, err := get()
	if !errors.Is(err, store.ErrCorruptMarker) {
		return u, err
	}
	s.logger.Warn("discarding marker", "key", key, "err", err)
	if err := set(nil); err != nil {
		s.logger.Warn("removing marker", "key", key, "err", err)
	}
	return nil, nil
}

// copyCurrent copies the current session; the caller holds mu.
func (s *Service) copyCurrent() *Session {
	if s.current == nil {
		return nil
	}
	cur := *s.current
	return &cur
}

// VerifyManager checks an approval PIN and returns the approving manager.
func (s *Service) VerifyManager(pin string) (string, bool) {
	name, ok := s.opts.ManagerPins[strings.TrimSpace(pin)]
	return name, ok
}

// AddCook registers a cook. Only a manager session may add cooks.
func (s *Service) AddCook(pin, name string) (*store.Cook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil || !s.current.IsManager() {
		return nil, ErrNotManager
	}
	pin = strings.TrimSpace(pin)
	if pin == s.opts.ManagerCode {
		return nil, store.ErrDuplicatePin
	}
	n, err := strconv.ParseInt(pin, 10, 64)
	if err != nil || n <= 0 {
		return nil, ErrInvalidPin
	}
	cook, err := s.repo.CreateCook(n, name)
	if err != nil {
		return nil, err
	}
	s.logger.Info("cook added", "cook", cook.Name)
	return cook, nil
}

// reset drops the ticket board; the caller holds mu.
func (s *Service) reset() {
	s.reg.Clear()
	s.closed = nil
}
