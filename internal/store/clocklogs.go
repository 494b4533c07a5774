package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// clockLayout renders UTC instants with an explicit +00:00 offset.
const clockLayout = "2006-01-02T15:04:05-07:00"

func formatClock(t time.Time) string {
	return t.UTC().Format(clockLayout)
}

func parseClock(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

// OpenClockLog starts a shift for name at the given instant. If the employee
// already has an open log, that log is returned unchanged.
func (s *Store) OpenClockLog(name string, at time.Time) (*ClockLog, error) {
	open, err := s.GetOpenClockLog(name)
	if err != nil {
		return nil, err
	}
	if open != nil {
		return open, nil
	}

	res, err := s.db.Exec(
		`INSERT INTO clock_logs (employee_name, clock_in_time, status) VALUES (?, ?, ?)`,
		name, formatClock(at), StatusClockedIn,
	)
	if err != nil {
		return nil, storageErr("open clock log", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, storageErr("open clock log", err)
	}
	return &ClockLog{
		ID:           id,
		EmployeeName: name,
		ClockIn:      at.UTC().Truncate(time.Second),
		Status:       StatusClockedIn,
	}, nil
}

// GetOpenClockLog returns the employee's open log, or nil when there is none.
func (s *Store) GetOpenClockLog(name string) (*ClockLog, error) {
	row := s.db.QueryRow(
		`SELECT id, employee_name, clock_in_time, clock_out_time, status
		 FROM clock_logs WHERE employee_name = ? AND clock_out_time IS NULL
		 ORDER BY id DESC LIMIT 1`, name,
	)
	l, err := scanClockLog(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr(fmt.Sprintf("get open clock log %q", name), err)
	}
	return l, nil
}

// LatestOpenClockLog returns the most recently opened log still open across
// all employees, or nil.
func (s *Store) LatestOpenClockLog() (*ClockLog, error) {
	row := s.db.QueryRow(
		`SELECT id, employee_name, clock_in_time, clock_out_time, status
		 FROM clock_logs WHERE clock_out_time IS NULL
		 ORDER BY clock_in_time DESC, id DESC LIMIT 1`,
	)
	l, err := scanClockLog(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("get latest open clock log", err)
	}
	return l, nil
}

// CloseClockLog stamps the employee's open log with at. It reports false when
// nothing was open.
func (s *Store) CloseClockLog(name string, at time.Time) (bool, error) {
	res, err := s.db.Exec(
		`UPDATE clock_logs SET clock_out_time = ?, status = ?
		 WHERE employee_name = ? AND clock_out_time IS NULL`,
		formatClock(at), StatusClockedOut, name,
	)
	if err != nil {
		return false, storageErr("close clock log", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, storageErr("close clock log", err)
	}
	return n > 0, nil
}

// CloseAllOpenClockLogs closes every open log with the same stamp and returns
// how many rows changed. A second call with nothing open changes zero rows.
func (s *Store) CloseAllOpenClockLogs(at time.Time) (int64, error) {
	res, err := s.db.Exec(
		`UPDATE clock_logs SET clock_out_time = ?, status = ? WHERE clock_out_time IS NULL`,
		formatClock(at), StatusClockedOut,
	)
	if err != nil {
		return 0, storageErr("close open clock logs", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storageErr("close open clock logs", err)
	}
	return n, nil
}

// ListClockLogs returns logs newest first. limit <= 0 means no limit.
func (s *Store) ListClockLogs(limit int) ([]ClockLog, error) {
	query := `SELECT id, employee_name, clock_in_time, clock_out_time, status
		FROM clock_logs ORDER BY clock_in_time DESC, id DESC`
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, limit)
	}

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, storageErr("list clock logs", err)
	}
	defer rows.Close()

	var logs []ClockLog
	for rows.Next() {
		l, err := scanClockLog(rows)
		if err != nil {
			return nil, storageErr("list clock logs", err)
		}
		logs = append(logs, *l)
	}
	return logs, storageErr("list clock logs", rows.Err())
}

type scanner interface {
	Scan(dest ...any) error
}

func scanClockLog(row scanner) (*ClockLog, error) {
	l := &ClockLog{}
	var clockIn string
	var clockOut, status sql.NullString
	if err := row.Scan(&l.ID, &l.EmployeeName, &clockIn, &clockOut, &status); err != nil {
		return nil, err
	}
	l.ClockIn = parseClock(clockIn)
	if clockOut.Valid {
		t := parseClock(clockOut.String)
		l.ClockOut = &t
	}
	l.Status = status.String
	return l, nil
}
