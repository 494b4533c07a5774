package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ticketLayout is the naive UTC layout of tickets.date. It sorts
// lexicographically, so range filters compare strings.
const ticketLayout = "2006-01-02 15:04:05"

func formatTicketDate(t time.Time) string {
	return t.UTC().Format(ticketLayout)
}

func parseTicketDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(ticketLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad ticket date %q: %w", s, err)
	}
	return t, nil
}

// InsertTicket persists a completed ticket. Tickets are append-only.
func (s *Store) InsertTicket(cookPin int64, at time.Time, seconds int64) (*Ticket, error) {
	if seconds < 0 {
		return nil, fmt.Errorf("insert ticket: negative duration %d", seconds)
	}
	res, err := s.db.Exec(
		`INSERT INTO tickets (cook_pin, date, time_taken) VALUES (?, ?, ?)`,
		cookPin, formatTicketDate(at), seconds,
	)
	if err != nil {
		return nil, storageErr("insert ticket", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, storageErr("insert ticket", err)
	}
	return &Ticket{
		ID:        id,
		CookPin:   cookPin,
		Date:      at.UTC().Truncate(time.Second),
		TimeTaken: seconds,
	}, nil
}

func (s *Store) GetTicket(id int64) (*Ticket, error) {
	t := &Ticket{}
	var date string
	err := s.db.QueryRow(
		`SELECT id, cook_pin, date, time_taken FROM tickets WHERE id = ?`, id,
	).Scan(&t.ID, &t.CookPin, &date, &t.TimeTaken)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get ticket %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, storageErr(fmt.Sprintf("get ticket %d", id), err)
	}
	if t.Date, err = parseTicketDate(date); err != nil {
		return nil, fmt.Errorf("get ticket %d: %w", id, err)
	}
	return t, nil
}

// TicketsSince returns tickets dated at or after since, joined with the cook
// name and ordered by date then cook name.
func (s *Store) TicketsSince(since time.Time) ([]TicketRow, error) {
	rows, err := s.db.Query(
		`SELECT t.date, t.cook_pin, c.name, t.time_taken
		 FROM tickets t JOIN cooks c ON c.pin = t.cook_pin
		 WHERE t.date >= ?
		 ORDER BY t.date ASC, c.name ASC`,
		formatTicketDate(since),
	)
	if err != nil {
		return nil, storageErr("list tickets", err)
	}
	defer rows.Close()

	var out []TicketRow
	for rows.Next() {
		var r TicketRow
		var date string
		if err := rows.Scan(&date, &r.CookPin, &r.CookName, &r.TimeTaken); err != nil {
			return nil, storageErr("list tickets", err)
		}
		d, err := parseTicketDate(date)
		if err != nil {
			s.logger.Warn("skipping ticket", "cook", r.CookPin, "err", err)
			continue
		}
		r.Date = d
		out = append(out, r)
	}
	return out, storageErr("list tickets", rows.Err())
}

// CookStats aggregates one cook's tickets dated in [from, to).
func (s *Store) CookStats(cookPin int64, from, to time.Time) (CookStats, error) {
	var st CookStats
	var fastest, slowest sql.NullInt64
	var avg sql.NullFloat64
	err := s.db.QueryRow(
		`SELECT MIN(time_taken), MAX(time_taken), AVG(time_taken), COUNT(*)
		 FROM tickets WHERE cook_pin = ? AND date >= ? AND date < ?`,
		cookPin, formatTicketDate(from), formatTicketDate(to),
	).Scan(&fastest, &slowest, &avg, &st.Count)
	if err != nil {
		return CookStats{}, storageErr(fmt.Sprintf("cook stats %d", cookPin), err)
	}
	st.Fastest = fastest.Int64
	st.Slowest = slowest.Int64
	st.Average = avg.Float64
	return st, nil
}
