package ledger

import (
	"errors"
	"fmt"
)

// ErrMalformedLedger is returned when durable storage exists but cannot be
// decoded into client records. It is fatal at startup.
var ErrMalformedLedger = errors.New("ledger storage is malformed")

// StorageError reports a failure reading or writing durable ledger storage.
type StorageError struct {
	Backend string
	Op      string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("ledger %s %s: %v", e.Backend, e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func storageErr(backend, op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Backend: backend, Op: op, Err: err}
}
