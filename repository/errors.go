package repository

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateID is returned when adding a record whose id already exists
	ErrDuplicateID = errors.New("transaction id already exists")
	// ErrNotFound is returned when the record does not exist
	ErrNotFound = errors.New("transaction not found")
	// ErrNotPending is returned when writing to a record that already reached a terminal status
	ErrNotPending = errors.New("transaction is not pending")
	// ErrHashImmutable is returned when an update would change an already assigned hash
	ErrHashImmutable = errors.New("transaction hash cannot change once assigned")
	// ErrInvalidTransition is returned for a status change the state machine does not allow
	ErrInvalidTransition = errors.New("invalid transaction status transition")
	// ErrNonceConflict is returned when another pending record already uses the same nonce for the account and chain
	ErrNonceConflict = errors.New("another pending transaction uses the same nonce")
	// ErrInvalidRecord is returned when required record fields are missing or inconsistent
	ErrInvalidRecord = errors.New("invalid transaction record")
)

// StorageError wraps a failure of the storage backend
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error on %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// wrapStorageError keeps the repository sentinels untouched and wraps any other backend error
func wrapStorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, sentinel := range []error{ErrDuplicateID, ErrNotFound, ErrNonceConflict} {
		if errors.Is(err, sentinel) {
			return err
		}
	}
	return &StorageError{Op: op, Err: err}
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
