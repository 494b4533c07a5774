package session

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sadopc/linecook/internal/store"
	"github.com/sadopc/linecook/internal/timer"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type env struct {
	store *store.Store
	snaps *timer.FileSnapshots
	clock *fakeClock
	svc   *Service
}

var testOptions = Options{
	ManagerCode:      "0000",
	ManagerPins:      map[string]string{"34": "Greg", "168": "Quinn"},
	MinTicketSeconds: 120,
}

func newEnv(t *testing.T) *env {
	t.Helper()
	s, err := store.NewMemory()
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	for pin, name := range map[int64]string{1111: "Alice", 2222: "Bob"} {
		_, err := s.CreateCook(pin, name)
		require.NoError(t, err)
	}

	e := &env{
		store: s,
		snaps: timer.NewFileSnapshots(filepath.Join(t.TempDir(), "snapshot.json")),
		clock: &fakeClock{now: time.Date(2024, 1, 15, 18, 0, 0, 0, time.UTC)},
	}
	e.svc = e.restart()
	return e
}

// restart builds a fresh service over the same store and snapshot file, as a
// new process would.
func (e *env) restart() *Service {
	return New(e.store, e.snaps, e.clock, testOptions, log.New(io.Discard))
}

func (e *env) recorded(t *testing.T) []store.TicketRow {
	t.Helper()
	rows, err := e.store.TicketsSince(time.Time{})
	require.NoError(t, err)
	return rows
}

// ============================================================
// Ticket lifecycle
// ============================================================

func TestSoldTicketRecordedOnlyAfterMinimum(t *testing.T) {
	tests := []struct {
		elapsed  time.Duration
		recorded bool
	}{
		{0, false},
		{119*time.Second + 999*time.Millisecond, false},
		{120 * time.Second, true},
		{121 * time.Second, true},
		{45 * time.Minute, true},
	}
	for _, tt := range tests {
		t.Run(tt.elapsed.String(), func(t *testing.T) {
			e := newEnv(t)
			_, err := e.svc.ClockIn("1111")
			require.NoError(t, err)

			tk, err := e.svc.StartTicket()
			require.NoError(t, err)
			e.clock.Advance(tt.elapsed)

			closed, ok, err := e.svc.CloseTicket(tk.ID, Sold, false)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, int64(tt.elapsed/time.Second), closed.Elapsed)
			assert.Equal(t, tt.recorded, closed.Persisted)

			rows := e.recorded(t)
			if tt.recorded {
				require.Len(t, rows, 1)
				assert.Equal(t, int64(1111), rows[0].CookPin)
				assert.Equal(t, int64(tt.elapsed/time.Second), rows[0].TimeTaken)
				assert.True(t, rows[0].Date.Equal(e.clock.Now().Truncate(time.Second)))
			} else {
				assert.Empty(t, rows)
			}
		})
	}
}

func TestCanceledNeverRecorded(t *testing.T) {
	e := newEnv(t)
	e.svc.ClockIn("1111")
	tk, _ := e.svc.StartTicket()
	e.clock.Advance(10 * time.Minute)

	_, ok, err := e.svc.CloseTicket(tk.ID, Canceled, false)
	require.NoError(t, err)
	assert.False(t, ok, "cancel without approval is a no-op")
	assert.True(t, e.svc.Running())

	closed, ok, err := e.svc.CloseTicket(tk.ID, Canceled, true)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, Canceled, closed.Outcome)
	assert.False(t, closed.Persisted)
	assert.Empty(t, e.recorded(t))
}

func TestCloseUnknownTicket(t *testing.T) {
	e := newEnv(t)
	e.svc.ClockIn("1111")

	closed, ok, err := e.svc.CloseTicket(42, Sold, false)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, int64(0), closed.Elapsed)
}

func TestCloseTicketRejectsOpenOutcome(t *testing.T) {
	e := newEnv(t)
	e.svc.ClockIn("1111")
	tk, _ := e.svc.StartTicket()

	_, _, err := e.svc.CloseTicket(tk.ID, Open, true)
	assert.Error(t, err)
	assert.True(t, e.svc.Running())
}

func TestStartTicketNeedsCook(t *testing.T) {
	e := newEnv(t)
	_, err := e.svc.StartTicket()
	assert.ErrorIs(t, err, ErrNoSession)

	e.svc.ClockIn("0000")
	_, err = e.svc.StartTicket()
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestTicketsBoard(t *testing.T) {
	e := newEnv(t)
	e.svc.ClockIn("1111")
	a, _ := e.svc.StartTicket()
	b, _ := e.svc.StartTicket()
	e.clock.Advance(3 * time.Minute)
	e.svc.CloseTicket(a.ID, Sold, false)
	e.clock.Advance(time.Minute)

	board := e.svc.Tickets()
	require.Len(t, board, 2)
	assert.Equal(t, Ticket{ID: a.ID, CookPin: 1111, Outcome: Sold, Elapsed: 180, Persisted: true}, board[0])
	assert.Equal(t, Ticket{ID: b.ID, CookPin: 1111, Elapsed: 240, Running: true}, board[1])
	assert.Equal(t, int64(240), e.svc.Elapsed(b.ID))
}

func TestReassign(t *testing.T) {
	e := newEnv(t)
	e.svc.ClockIn("1111")
	tk, _ := e.svc.StartTicket()
	e.clock.Advance(5 * time.Minute)

	ok, err := e.svc.Reassign(tk.ID, 2222, false)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, int64(300), e.svc.Elapsed(tk.ID))

	_, err = e.svc.Reassign(tk.ID, 9999, true)
	assert.ErrorIs(t, err, ErrInvalidPin)

	ok, err = e.svc.Reassign(tk.ID, 2222, true)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(0), e.svc.Elapsed(tk.ID))

	e.clock.Advance(2 * time.Minute)
	e.svc.CloseTicket(tk.ID, Sold, false)
	rows := e.recorded(t)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(2222), rows[0].CookPin)
	assert.Equal(t, int64(120), rows[0].TimeTaken)
}

type failingTickets struct {
	*store.Store
}

func (failingTickets) InsertTicket(int64, time.Time, int64) (*store.Ticket, error) {
	return nil, &store.StorageError{Op: "insert ticket", Err: errors.New("disk I/O error")}
}

func TestCloseTicketStorageError(t *testing.T) {
	e := newEnv(t)
	svc := New(failingTickets{e.store}, e.snaps, e.clock, testOptions, log.New(io.Discard))
	svc.ClockIn("1111")
	tk, _ := svc.StartTicket()
	e.clock.Advance(3 * time.Minute)

	closed, ok, err := svc.CloseTicket(tk.ID, Sold, false)
	assert.True(t, ok)
	assert.True(t, store.IsStorage(err))
	assert.False(t, closed.Persisted)
	assert.False(t, svc.Running())
	assert.Equal(t, "Could not save, please try again", Message(err))
}

// ============================================================
// Clock in / clock out
// ============================================================

func TestClockInInvalidPin(t *testing.T) {
	e := newEnv(t)
	for _, pin := range []string{"", "abc", "9999", "-1", "12.5"} {
		_, err := e.svc.ClockIn(pin)
		assert.ErrorIs(t, err, ErrInvalidPin, "pin %q", pin)
	}
	assert.Nil(t, e.svc.Current())
}

func TestClockInCook(t *testing.T) {
	e := newEnv(t)
	sess, err := e.svc.ClockIn(" 1111 ")
	require.NoError(t, err)
	assert.Equal(t, "Alice", sess.Name)
	assert.Equal(t, int64(1111), sess.Pin)
	assert.NotEmpty(t, sess.ID)
	assert.False(t, sess.IsManager())

	open, err := e.store.GetOpenClockLog("Alice")
	require.NoError(t, err)
	require.NotNil(t, open)
	assert.True(t, open.ClockIn.Equal(e.clock.Now()))

	cur, _ := e.store.CurrentUser()
	require.NotNil(t, cur)
	assert.Equal(t, store.RoleCook, cur.Role)
	last, _ := e.store.LastUser()
	require.NotNil(t, last)
	assert.Equal(t, int64(1111), *last.Pin)
}

func TestClockInManager(t *testing.T) {
	e := newEnv(t)
	sess, err := e.svc.ClockIn("0000")
	require.NoError(t, err)
	assert.True(t, sess.IsManager())

	logs, _ := e.store.ListClockLogs(0)
	assert.Empty(t, logs)

	cur, _ := e.store.CurrentUser()
	require.NotNil(t, cur)
	assert.Equal(t, store.RoleManager, cur.Role)
	assert.Nil(t, cur.Pin)

	require.NoError(t, e.svc.ClockOut())
	cur, _ = e.store.CurrentUser()
	assert.Nil(t, cur)
}

func TestClockOutRefusedWhileRunning(t *testing.T) {
	e := newEnv(t)
	e.svc.ClockIn("1111")
	a, _ := e.svc.StartTicket()
	b, _ := e.svc.StartTicket()

	assert.ErrorIs(t, e.svc.ClockOut(), ErrActiveTimers)
	e.svc.CloseTicket(a.ID, Sold, false)
	assert.ErrorIs(t, e.svc.ClockOut(), ErrActiveTimers)
	e.svc.CloseTicket(b.ID, Canceled, true)

	e.clock.Advance(time.Hour)
	require.NoError(t, e.svc.ClockOut())
	assert.Nil(t, e.svc.Current())
	assert.Empty(t, e.svc.Tickets())

	logs, _ := e.store.ListClockLogs(0)
	require.Len(t, logs, 1)
	require.NotNil(t, logs[0].ClockOut)
	assert.True(t, logs[0].ClockOut.Equal(e.clock.Now()))
	assert.Equal(t, store.StatusClockedOut, logs[0].Status)

	cur, _ := e.store.CurrentUser()
	assert.Nil(t, cur)
}

func TestClockOutResetsTicketIDs(t *testing.T) {
	e := newEnv(t)
	e.svc.ClockIn("1111")
	tk, _ := e.svc.StartTicket()
	e.svc.CloseTicket(tk.ID, Sold, false)
	require.NoError(t, e.svc.ClockOut())

	e.svc.ClockIn("1111")
	tk, _ = e.svc.StartTicket()
	assert.Equal(t, int64(1), tk.ID)
}

func TestClockOutWithoutSession(t *testing.T) {
	e := newEnv(t)
	assert.ErrorIs(t, e.svc.ClockOut(), ErrNoSession)
}

func TestClockInDifferentCookClearsBoard(t *testing.T) {
	e := newEnv(t)
	e.svc.ClockIn("1111")
	a, _ := e.svc.StartTicket()
	e.svc.StartTicket()
	e.svc.CloseTicket(a.ID, Sold, false)
	require.Len(t, e.svc.Tickets(), 2)

	_, err := e.svc.ClockIn("2222")
	require.NoError(t, err)
	assert.Empty(t, e.svc.Tickets())
	assert.False(t, e.svc.Running())
}

func TestClockInSameCookKeepsBoard(t *testing.T) {
	e := newEnv(t)
	e.svc.ClockIn("1111")
	e.svc.StartTicket()
	e.svc.StartTicket()

	_, err := e.svc.ClockIn("1111")
	require.NoError(t, err)
	assert.Len(t, e.svc.Tickets(), 2)

	var open int
	logs, _ := e.store.ListClockLogs(0)
	for _, l := range logs {
		if l.Open() {
			open++
		}
	}
	assert.Equal(t, 1, open, "re-entering the PIN reuses the open shift")
}

func TestClockOutSerializedWithTicketClose(t *testing.T) {
	e := newEnv(t)
	e.svc.ClockIn("1111")
	const n = 20
	var ids []int64
	for i := 0; i < n; i++ {
		tk, _ := e.svc.StartTicket()
		ids = append(ids, tk.ID)
	}
	e.clock.Advance(3 * time.Minute)

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			e.svc.CloseTicket(id, Sold, false)
		}(id)
	}

	clockedOut := make(chan struct{})
	go func() {
		defer close(clockedOut)
		for e.svc.ClockOut() != nil {
		}
	}()

	wg.Wait()
	<-clockedOut
	assert.Len(t, e.recorded(t), n)
	assert.Nil(t, e.svc.Current())
}

// ============================================================
// Scheduled sign-outs
// ============================================================

func TestAutoClockOutSweepIdempotent(t *testing.T) {
	e := newEnv(t)
	e.svc.ClockIn("1111")
	e.svc.ClockIn("2222")
	cutoff := time.Date(2024, 1, 16, 4, 0, 0, 0, time.UTC)

	n, err := e.svc.AutoClockOutSweep(cutoff)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = e.svc.AutoClockOutSweep(cutoff)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	logs, _ := e.store.ListClockLogs(0)
	for _, l := range logs {
		require.NotNil(t, l.ClockOut)
		assert.True(t, l.ClockOut.Equal(cutoff))
	}
}

func TestAutoLogoutDropsRunningTickets(t *testing.T) {
	e := newEnv(t)
	e.svc.ClockIn("2222")
	e.svc.ClockIn("1111")
	e.svc.StartTicket()
	e.clock.Advance(10 * time.Minute)
	cutoff := time.Date(2024, 1, 16, 3, 45, 0, 0, time.UTC)

	out, err := e.svc.AutoLogout(cutoff)
	require.NoError(t, err)
	assert.True(t, out)
	assert.Nil(t, e.svc.Current())
	assert.False(t, e.svc.Running())
	assert.Empty(t, e.recorded(t))

	alice, _ := e.store.GetOpenClockLog("Alice")
	assert.Nil(t, alice)
	bob, _ := e.store.GetOpenClockLog("Bob")
	assert.NotNil(t, bob, "only the signed-in cook is closed")

	logs, _ := e.store.ListClockLogs(0)
	for _, l := range logs {
		if l.EmployeeName == "Alice" {
			assert.True(t, l.ClockOut.Equal(cutoff))
		}
	}

	out, err = e.svc.AutoLogout(cutoff)
	require.NoError(t, err)
	assert.False(t, out)
}

func TestAutoLogoutManager(t *testing.T) {
	e := newEnv(t)
	e.svc.ClockIn("0000")
	out, err := e.svc.AutoLogout(e.clock.Now())
	require.NoError(t, err)
	assert.True(t, out)
	assert.Nil(t, e.svc.Current())
}

func TestAutoLogoutManagerDropsResumedTickets(t *testing.T) {
	e := newEnv(t)
	e.svc.ClockIn("1111")
	e.svc.StartTicket()
	require.NoError(t, e.svc.Suspend())
	e.svc.AutoClockOutSweep(e.clock.Now())

	svc := e.restart()
	sess, err := svc.Restore()
	require.NoError(t, err)
	require.Nil(t, sess)
	n, err := svc.Resume()
	require.NoError(t, err)
	require.Equal(t, 1, n)

	_, err = svc.ClockIn("0000")
	require.NoError(t, err)
	out, err := svc.AutoLogout(e.clock.Now())
	require.NoError(t, err)
	assert.True(t, out)
	assert.False(t, svc.Running())

	e.clock.Advance(12 * time.Hour)
	svc.ClockIn("1111")
	assert.Empty(t, svc.Tickets())
}

// ============================================================
// Restart and suspend / resume
// ============================================================

func TestSuspendResumeKeepsElapsed(t *testing.T) {
	e := newEnv(t)
	e.svc.ClockIn("1111")
	var last int64
	for i := 0; i < 7; i++ {
		tk, _ := e.svc.StartTicket()
		last = tk.ID
	}
	t0 := e.clock.Now()
	for id := int64(1); id < last; id++ {
		e.svc.CloseTicket(id, Canceled, true)
	}
	require.NoError(t, e.svc.Suspend())

	e.clock.Advance(time.Hour + 15*time.Second)
	svc := e.restart()
	sess, err := svc.Restore()
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, "Alice", sess.Name)

	n, err := svc.Resume()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, int64(e.clock.Now().Sub(t0)/time.Second), svc.Elapsed(7))
	assert.Equal(t, int64(3615), svc.Elapsed(7))

	_, err = os.Stat(e.snaps.Path())
	assert.True(t, os.IsNotExist(err), "snapshot removed after resume")

	n, err = svc.Resume()
	require.NoError(t, err)
	assert.Equal(t, 0, n, "second resume finds nothing")

	tk, _ := svc.StartTicket()
	assert.Equal(t, int64(8), tk.ID)
}

func TestSuspendWithNothingRunning(t *testing.T) {
	e := newEnv(t)
	e.svc.ClockIn("1111")
	require.NoError(t, e.svc.Suspend())

	_, ok, err := e.snaps.Load()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestResumeWithoutSnapshot(t *testing.T) {
	e := newEnv(t)
	n, err := e.svc.Resume()
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestResumeCorruptSnapshot(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, os.WriteFile(e.snaps.Path(), []byte("{{{"), 0o644))

	n, err := e.svc.Resume()
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.False(t, e.svc.Running())

	_, err = os.Stat(e.snaps.Path())
	assert.True(t, os.IsNotExist(err))
}

func TestResumeAssignsUnownedTicketsToCook(t *testing.T) {
	e := newEnv(t)
	body := fmt.Sprintf(`{"tickets":{"7":{"start_time":%q}}}`, e.clock.Now().Add(-5*time.Minute).Format(time.RFC3339))
	require.NoError(t, os.WriteFile(e.snaps.Path(), []byte(body), 0o644))

	e.svc.ClockIn("1111")
	n, err := e.svc.Resume()
	require.NoError(t, err)
	require.Equal(t, 1, n)

	closed, ok, err := e.svc.CloseTicket(7, Sold, false)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(1111), closed.CookPin)
	assert.Equal(t, int64(300), closed.Elapsed)
}

func TestRestore(t *testing.T) {
	t.Run("nobody signed in", func(t *testing.T) {
		e := newEnv(t)
		sess, err := e.restart().Restore()
		require.NoError(t, err)
		assert.Nil(t, sess)
	})

	t.Run("manager", func(t *testing.T) {
		e := newEnv(t)
		e.svc.ClockIn("0000")
		svc := e.restart()
		sess, err := svc.Restore()
		require.NoError(t, err)
		require.NotNil(t, sess)
		assert.True(t, sess.IsManager())
		assert.True(t, svc.Current().IsManager())
	})

	t.Run("newest open shift wins", func(t *testing.T) {
		e := newEnv(t)
		e.svc.ClockIn("1111")
		e.clock.Advance(time.Minute)
		e.svc.ClockIn("2222")

		sess, err := e.restart().Restore()
		require.NoError(t, err)
		require.NotNil(t, sess)
		assert.Equal(t, "Bob", sess.Name)
		assert.Equal(t, int64(2222), sess.Pin)
	})

	t.Run("shift closed by sweep", func(t *testing.T) {
		e := newEnv(t)
		e.svc.ClockIn("1111")
		e.svc.AutoClockOutSweep(e.clock.Now())

		sess, err := e.restart().Restore()
		require.NoError(t, err)
		assert.Nil(t, sess)
	})
}

func TestClockInIgnoresCorruptLastUser(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.store.SetSetting("last_user", "{not json"))

	sess, err := e.svc.ClockIn("1111")
	require.NoError(t, err)
	assert.Equal(t, "Alice", sess.Name)

	last, err := e.store.LastUser()
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, int64(1111), *last.Pin)
}

func TestRestoreIgnoresCorruptCurrentUser(t *testing.T) {
	e := newEnv(t)
	e.svc.ClockIn("1111")
	require.NoError(t, e.store.SetSetting("current_user", "{not json"))

	sess, err := e.restart().Restore()
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, "Alice", sess.Name)

	cur, err := e.store.CurrentUser()
	require.NoError(t, err)
	require.NotNil(t, cur)
	assert.Equal(t, "Alice", cur.Name)
}

// markerFailStore fails marker writes once armed.
type markerFailStore struct {
	*store.Store
	fail bool
}

func (m *markerFailStore) SetCurrentUser(u *store.User) error {
	if m.fail {
		return errors.New("disk full")
	}
	return m.Store.SetCurrentUser(u)
}

func TestClockOutMarkerFailureEndsSession(t *testing.T) {
	e := newEnv(t)
	repo := &markerFailStore{Store: e.store}
	svc := New(repo, e.snaps, e.clock, testOptions, log.New(io.Discard))
	_, err := svc.ClockIn("1111")
	require.NoError(t, err)

	repo.fail = true
	require.Error(t, svc.ClockOut())
	assert.Nil(t, svc.Current())
	assert.False(t, svc.Running())

	open, err := e.store.LatestOpenClockLog()
	require.NoError(t, err)
	assert.Nil(t, open)

	repo.fail = false
	sess, err := New(repo, e.snaps, e.clock, testOptions, log.New(io.Discard)).Restore()
	require.NoError(t, err)
	assert.Nil(t, sess)
	cur, _ := e.store.CurrentUser()
	assert.Nil(t, cur, "stale marker is dropped on restore")
}

// ============================================================
// Managers and messages
// ============================================================

func TestVerifyManager(t *testing.T) {
	e := newEnv(t)
	name, ok := e.svc.VerifyManager("34")
	assert.True(t, ok)
	assert.Equal(t, "Greg", name)

	_, ok = e.svc.VerifyManager("0000")
	assert.False(t, ok)
	_, ok = e.svc.VerifyManager("")
	assert.False(t, ok)
}

func TestAddCook(t *testing.T) {
	e := newEnv(t)
	_, err := e.svc.AddCook("3333", "Carol")
	assert.ErrorIs(t, err, ErrNotManager)

	e.svc.ClockIn("0000")
	cook, err := e.svc.AddCook("3333", "Carol")
	require.NoError(t, err)
	assert.Equal(t, "Carol", cook.Name)

	_, err = e.svc.AddCook("3333", "Dana")
	assert.ErrorIs(t, err, store.ErrDuplicatePin)
	_, err = e.svc.AddCook("0000", "Dana")
	assert.ErrorIs(t, err, store.ErrDuplicatePin)
	_, err = e.svc.AddCook("12a", "Dana")
	assert.ErrorIs(t, err, ErrInvalidPin)
}

func TestMessage(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{ErrInvalidPin, "Invalid PIN"},
		{fmt.Errorf("clock out: %w", ErrActiveTimers), "Close all open tickets before clocking out"},
		{ErrNoSession, "Clock in first"},
		{fmt.Errorf("create cook 1: %w", store.ErrDuplicatePin), "That PIN is already taken"},
		{fmt.Errorf("%w: bad json", timer.ErrCorruptSnapshot), "Saved tickets could not be restored"},
		{errors.New("boom"), "Something went wrong"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Message(tt.err))
	}
}
