package store

import "errors"

var (
	ErrDuplicatePin = errors.New("a cook with this PIN already exists")
	ErrNotFound     = errors.New("not found")

	// ErrCorruptMarker is returned when a stored user marker cannot be decoded.
	ErrCorruptMarker = errors.New("corrupt user marker")
)

// StorageError reports an I/O or driver failure for a named store operation.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *StorageError) Unwrap() error { return e.Err }

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

// IsStorage reports whether err carries a StorageError.
func IsStorage(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
