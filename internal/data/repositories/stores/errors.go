package stores

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput is returned when a query cannot be turned into storage keys.
	ErrInvalidInput = errors.New("invalid input parameters")

	// ErrStoreOperation is returned when the backend round trip fails.
	ErrStoreOperation = errors.New("store operation failed")

	ErrUnknownValueType = errors.New("no value type declared")
)

// FeatureError reports a stored value that could not be decoded.
type FeatureError struct {
	View    string
	Feature string
	Err     error
}

func (e *FeatureError) Error() string {
	return fmt.Sprintf("decode %s:%s: %v", e.View, e.Feature, e.Err)
}

func (e *FeatureError) Unwrap() error { return e.Err }
