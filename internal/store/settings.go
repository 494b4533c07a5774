package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// Marker keys in the settings table.
const (
	keyCurrentUser = "current_user"
	keyLastUser    = "last_user"
)

// GetSetting returns the stored value, or ErrNotFound.
func (s *Store) GetSetting(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("get setting %q: %w", key, ErrNotFound)
	}
	if err != nil {
		return "", storageErr(fmt.Sprintf("get setting %q", key), err)
	}
	return value, nil
}

func (s *Store) SetSetting(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	return storageErr(fmt.Sprintf("set setting %q", key), err)
}

func (s *Store) DeleteSetting(key string) error {
	_, err := s.db.Exec(`DELETE FROM settings WHERE key = ?`, key)
	return storageErr(fmt.Sprintf("delete setting %q", key), err)
}

func (s *Store) GetAllSettings() ([]Setting, error) {
	rows, err := s.db.Query(`SELECT key, value FROM settings ORDER BY key`)
	if err != nil {
		return nil, storageErr("list settings", err)
	}
	defer rows.Close()

	var settings []Setting
	for rows.Next() {
		var s Setting
		if err := rows.Scan(&s.Key, &s.Value); err != nil {
			return nil, storageErr("list settings", err)
		}
		settings = append(settings, s)
	}
	return settings, storageErr("list settings", rows.Err())
}

// CurrentUser returns the signed-in user marker, or nil when nobody is
// signed in.
func (s *Store) CurrentUser() (*User, error) {
	return s.getUser(keyCurrentUser)
}

// SetCurrentUser stores the marker; nil clears it.
func (s *Store) SetCurrentUser(u *User) error {
	return s.setUser(keyCurrentUser, u)
}

// LastUser returns the last cook who clocked in on this device, or nil.
func (s *Store) LastUser() (*User, error) {
	return s.getUser(keyLastUser)
}

func (s *Store) SetLastUser(u *User) error {
	return s.setUser(keyLastUser, u)
}

func (s *Store) getUser(key string) (*User, error) {
	raw, err := s.GetSetting(key)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var u User
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		return nil, fmt.Errorf("decode %s: %w: %v", key, ErrCorruptMarker, err)
	}
	return &u, nil
}

func (s *Store) setUser(key string, u *User) error {
	if u == nil {
		return s.DeleteSetting(key)
	}
	raw, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.SetSetting(key, string(raw))
}
