package store

import "time"

// Clock log status values, stored verbatim in clock_logs.status.
const (
	StatusClockedIn  = "Clocked In"
	StatusClockedOut = "Clocked Out"
)

// User roles recorded in the current-user marker.
const (
	RoleCook    = "Cook"
	RoleManager = "Manager"
)

type Cook struct {
	Pin  int64
	Name string
}

type ClockLog struct {
	ID           int64
	EmployeeName string
	ClockIn      time.Time
	ClockOut     *time.Time
	Status       string
}

// Open reports whether the shift has not been closed yet.
func (l ClockLog) Open() bool { return l.ClockOut == nil }

type Ticket struct {
	ID        int64
	CookPin   int64
	Date      time.Time // UTC
	TimeTaken int64     // seconds
}

// TicketRow is a ticket joined with its cook's display name.
type TicketRow struct {
	Date      time.Time // UTC
	CookPin   int64
	CookName  string
	TimeTaken int64
}

// CookStats is the raw aggregate of one cook's tickets over a time range.
type CookStats struct {
	Fastest int64
	Slowest int64
	Average float64
	Count   int
}

// User is the marker persisted for the signed-in user and the last cook.
type User struct {
	Name string `json:"name"`
	Role string `json:"role,omitempty"`
	Pin  *int64 `json:"pin,omitempty"`
}

type Setting struct {
	Key   string
	Value string
}
