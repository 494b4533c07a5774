package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// CreateCook registers a cook. Pins are unique; a second insert with the
// same pin returns ErrDuplicatePin and leaves the existing row alone.
func (s *Store) CreateCook(pin int64, name string) (*Cook, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("create cook: name is required")
	}
	if pin <= 0 {
		return nil, fmt.Errorf("create cook: pin must be a positive number")
	}

	res, err := s.db.Exec(
		`INSERT INTO cooks (pin, name) VALUES (?, ?) ON CONFLICT(pin) DO NOTHING`,
		pin, name,
	)
	if err != nil {
		return nil, storageErr("insert cook", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, storageErr("insert cook", err)
	}
	if n == 0 {
		return nil, fmt.Errorf("create cook %d: %w", pin, ErrDuplicatePin)
	}
	return &Cook{Pin: pin, Name: name}, nil
}

func (s *Store) GetCook(pin int64) (*Cook, error) {
	c := &Cook{}
	err := s.db.QueryRow(`SELECT pin, name FROM cooks WHERE pin = ?`, pin).Scan(&c.Pin, &c.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get cook %d: %w", pin, ErrNotFound)
	}
	if err != nil {
		return nil, storageErr(fmt.Sprintf("get cook %d", pin), err)
	}
	return c, nil
}

// GetCookByName resolves the cook behind a clock log. Names are not unique;
// the lowest pin wins.
func (s *Store) GetCookByName(name string) (*Cook, error) {
	c := &Cook{}
	err := s.db.QueryRow(
		`SELECT pin, name FROM cooks WHERE name = ? ORDER BY pin LIMIT 1`, name,
	).Scan(&c.Pin, &c.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get cook %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, storageErr(fmt.Sprintf("get cook %q", name), err)
	}
	return c, nil
}

func (s *Store) ListCooks() ([]Cook, error) {
	rows, err := s.db.Query(`SELECT pin, name FROM cooks ORDER BY name, pin`)
	if err != nil {
		return nil, storageErr("list cooks", err)
	}
	defer rows.Close()

	var cooks []Cook
	for rows.Next() {
		var c Cook
		if err := rows.Scan(&c.Pin, &c.Name); err != nil {
			return nil, storageErr("list cooks", err)
		}
		cooks = append(cooks, c)
	}
	return cooks, storageErr("list cooks", rows.Err())
}
