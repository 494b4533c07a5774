package session

import (
	"errors"

	"github.com/sadopc/linecook/internal/store"
	"github.com/sadopc/linecook/internal/timer"
)

var (
	ErrInvalidPin   = errors.New("invalid PIN")
	ErrActiveTimers = errors.New("tickets are still running")
	ErrNoSession    = errors.New("no cook is clocked in")
	ErrNotManager   = errors.New("manager sign-in required")
)

// Message turns an error into the short line shown to the person at the
// terminal.
func Message(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidPin):
		return "Invalid PIN"
	case errors.Is(err, ErrActiveTimers):
		return "Close all open tickets before clocking out"
	case errors.Is(err, ErrNoSession):
		return "Clock in first"
	case errors.Is(err, ErrNotManager):
		return "Managers only"
	case errors.Is(err, store.ErrDuplicatePin):
		return "That PIN is already taken"
	case errors.Is(err, store.ErrNotFound):
		return "Not found"
	case errors.Is(err, timer.ErrCorruptSnapshot):
		return "Saved tickets could not be restored"
	case store.IsStorage(err):
		return "Could not save, please try again"
	}
	return "Something went wrong"
}
