package db

import (
	"errors"
	"fmt"
)

// ErrNotFound marks a missing row. Callers treat it as benign: a missing
// mapping means CreateLocal, a missing entity means mapping cleanup.
var ErrNotFound = errors.New("not found")

// StoreError marks a persistence-layer failure. Unlike ErrNotFound it is
// systemic: batch runners abort on it because every later classification
// depends on reading the store.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// storeErr wraps a driver error, passing ErrNotFound through untouched so
// errors.Is keeps working across layers.
func storeErr(op string, err error) error {
	if errors.Is(err, ErrNotFound) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}
