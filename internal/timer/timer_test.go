package timer

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 15, 18, 0, 0, 0, time.UTC)}
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

type countingHandle struct{ cancelled int }

func (h *countingHandle) Cancel() { h.cancelled++ }

// ============================================================
// Registry
// ============================================================

func TestStartAssignsSequentialIDs(t *testing.T) {
	r := NewRegistry(newFakeClock())
	a := r.Start(1)
	b := r.Start(1)
	c := r.Start(2)

	assert.Equal(t, []int64{1, 2, 3}, []int64{a.ID, b.ID, c.ID})
	assert.True(t, a.Running)
	assert.Equal(t, int64(2), c.CookPin)
	assert.Len(t, r.Running(), 3)
}

func TestElapsedFloorsSeconds(t *testing.T) {
	clk := newFakeClock()
	r := NewRegistry(clk)
	tk := r.Start(1)

	assert.Equal(t, int64(0), r.Elapsed(tk.ID))
	clk.Advance(2*time.Minute + 999*time.Millisecond)
	assert.Equal(t, int64(120), r.Elapsed(tk.ID))
}

func TestElapsedUnknownAndNegative(t *testing.T) {
	clk := newFakeClock()
	r := NewRegistry(clk)
	assert.Equal(t, int64(0), r.Elapsed(42))

	r.Restore(Snapshot{Tickets: map[int64]Entry{
		5: {StartTime: clk.Now().Add(time.Hour), CookPin: 1},
	}})
	assert.Equal(t, int64(0), r.Elapsed(5))
}

func TestCloseRemovesTimerAndHandle(t *testing.T) {
	clk := newFakeClock()
	r := NewRegistry(clk)
	tk := r.Start(1)
	h := &countingHandle{}
	require.True(t, r.Attach(tk.ID, h))

	clk.Advance(150 * time.Second)
	closed, elapsed, ok := r.Close(tk.ID)
	require.True(t, ok)
	assert.Equal(t, int64(150), elapsed)
	assert.False(t, closed.Running)
	assert.Equal(t, 1, h.cancelled)
	assert.False(t, r.Attached(tk.ID))
	assert.False(t, r.AnyRunning())
	assert.Equal(t, int64(0), r.Elapsed(tk.ID))
}

func TestCloseUnknownIsNoop(t *testing.T) {
	r := NewRegistry(newFakeClock())
	r.Start(1)

	_, elapsed, ok := r.Close(99)
	assert.False(t, ok)
	assert.Equal(t, int64(0), elapsed)
	assert.Len(t, r.Running(), 1)
}

func TestReassign(t *testing.T) {
	clk := newFakeClock()
	r := NewRegistry(clk)
	tk := r.Start(1)
	clk.Advance(5 * time.Minute)

	assert.False(t, r.Reassign(tk.ID, 2, false))
	got, _ := r.Get(tk.ID)
	assert.Equal(t, int64(1), got.CookPin)
	assert.Equal(t, int64(300), r.Elapsed(tk.ID))

	assert.True(t, r.Reassign(tk.ID, 2, true))
	got, _ = r.Get(tk.ID)
	assert.Equal(t, int64(2), got.CookPin)
	assert.Equal(t, int64(0), r.Elapsed(tk.ID))

	assert.False(t, r.Reassign(99, 2, true))
}

func TestClearDropsEverything(t *testing.T) {
	r := NewRegistry(newFakeClock())
	h1, h2 := &countingHandle{}, &countingHandle{}
	r.Attach(r.Start(1).ID, h1)
	r.Attach(r.Start(1).ID, h2)

	r.Clear()
	assert.False(t, r.AnyRunning())
	assert.Empty(t, r.Running())
	assert.Equal(t, 1, h1.cancelled)
	assert.Equal(t, 1, h2.cancelled)

	assert.Equal(t, int64(1), r.Start(1).ID, "ids restart after clear")
}

func TestAttach(t *testing.T) {
	r := NewRegistry(newFakeClock())
	orphan := &countingHandle{}
	assert.False(t, r.Attach(7, orphan))
	assert.Equal(t, 1, orphan.cancelled)

	tk := r.Start(1)
	first, second := &countingHandle{}, &countingHandle{}
	r.Attach(tk.ID, first)
	r.Attach(tk.ID, second)
	assert.Equal(t, 1, first.cancelled, "replaced handle is cancelled")
	assert.Equal(t, 0, second.cancelled)

	cancelled := false
	r.Attach(tk.ID, HandleFunc(func() { cancelled = true }))
	r.Close(tk.ID)
	assert.True(t, cancelled)
}

func TestRunningOrderedByID(t *testing.T) {
	r := NewRegistry(newFakeClock())
	for i := 0; i < 10; i++ {
		r.Start(1)
	}
	r.Close(4)
	running := r.Running()
	require.Len(t, running, 9)
	for i := 1; i < len(running); i++ {
		assert.Less(t, running[i-1].ID, running[i].ID)
	}
}

// ============================================================
// Snapshot / restore
// ============================================================

func TestSnapshotRestorePreservesStart(t *testing.T) {
	clk := newFakeClock()
	r := NewRegistry(clk)
	for i := 0; i < 7; i++ {
		r.Start(1)
	}
	for id := int64(1); id < 7; id++ {
		r.Close(id)
	}
	t0 := r.Snapshot().Tickets[7].StartTime
	snap := r.Snapshot()
	require.Len(t, snap.Tickets, 1)

	// Suspended for an hour; a fresh registry picks the ticket back up.
	clk.Advance(time.Hour + 30*time.Second)
	r2 := NewRegistry(clk)
	assert.Equal(t, 1, r2.Restore(snap))

	got, ok := r2.Get(7)
	require.True(t, ok)
	assert.True(t, got.Running)
	assert.Equal(t, int64(clk.Now().Sub(t0)/time.Second), r2.Elapsed(7))
	assert.Equal(t, int64(3630), r2.Elapsed(7))

	assert.Equal(t, int64(8), r2.Start(1).ID, "ids continue above restored tickets")
}

func TestSnapshotSkipsNothingWhenEmpty(t *testing.T) {
	r := NewRegistry(newFakeClock())
	snap := r.Snapshot()
	assert.True(t, snap.Empty())
	assert.Equal(t, 0, r.Restore(snap))
}

// ============================================================
// File storage
// ============================================================

func TestFileSnapshotsRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "snapshot.json")
	fs := NewFileSnapshots(path)

	_, ok, err := fs.Load()
	require.NoError(t, err)
	assert.False(t, ok)

	t0 := time.Date(2024, 1, 15, 18, 0, 0, 0, time.UTC)
	snap := Snapshot{
		Session: "abc",
		SavedAt: t0.Add(time.Minute),
		Tickets: map[int64]Entry{7: {StartTime: t0, CookPin: 1234}},
	}
	require.NoError(t, fs.Save(snap))

	got, ok, err := fs.Load()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "abc", got.Session)
	assert.True(t, got.Tickets[7].StartTime.Equal(t0))
	assert.Equal(t, int64(1234), got.Tickets[7].CookPin)

	require.NoError(t, fs.Delete())
	_, ok, err = fs.Load()
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, fs.Delete(), "deleting twice is fine")
}

func TestFileSnapshotsFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"tickets":{"7":{"start_time":"2024-01-15T18:00:00Z"}}}`), 0o644))

	got, ok, err := NewFileSnapshots(path).Load()
	require.NoError(t, err)
	require.True(t, ok)
	require.Contains(t, got.Tickets, int64(7))
	assert.Equal(t, int64(0), got.Tickets[7].CookPin)
}

func TestFileSnapshotsCorrupt(t *testing.T) {
	tests := map[string]string{
		"garbage":       "not json at all",
		"truncated":     `{"tickets":{"7":`,
		"no start time": `{"tickets":{"7":{"cook_pin":1}}}`,
		"bad id":        `{"tickets":{"x":{"start_time":"2024-01-15T18:00:00Z"}}}`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "snapshot.json")
			require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

			_, ok, err := NewFileSnapshots(path).Load()
			assert.False(t, ok)
			assert.ErrorIs(t, err, ErrCorruptSnapshot)
		})
	}
}

func TestFileSnapshotsSaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	fs := NewFileSnapshots(filepath.Join(dir, "snapshot.json"))
	require.NoError(t, fs.Save(Snapshot{Tickets: map[int64]Entry{1: {StartTime: time.Now()}}}))
	require.NoError(t, fs.Save(Snapshot{Tickets: map[int64]Entry{2: {StartTime: time.Now()}}}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
