package storage

import "errors"

var (
	// ErrStorageAccessConflict is returned when a key is being written by another caller
	ErrStorageAccessConflict = errors.New("specified key is under accessing")
	// ErrStorageNotFound is returned when the key has no file
	ErrStorageNotFound = errors.New("specified key is not found")
	// ErrKeyHasNoContent is returned when the key points at a directory
	ErrKeyHasNoContent = errors.New("specified key has no content")
	// ErrKeyIsEmpty is returned for an empty key
	ErrKeyIsEmpty = errors.New("specified key is empty")
)

// Store is an interface for persisting benchmark reports
type Store interface {
	Create(key string, contents []byte) error
	Get(key string) ([]byte, error)
	Recover(key string) error
	Path(key string) string
}
