package feature

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyRequest             = errors.New("request names neither features nor a feature service")
	ErrAmbiguousRequest         = errors.New("request names both features and a feature service")
	ErrUnknownFeatureView       = errors.New("unknown feature view")
	ErrUnknownFeature           = errors.New("unknown feature")
	ErrUnknownFeatureService    = errors.New("unknown feature service")
	ErrMissingEntityKey         = errors.New("missing entity key")
	ErrMixedEntityTypes         = errors.New("entity key values of different types")
	ErrInvalidRequestValue      = errors.New("invalid request value")
	ErrConflictingFeatureName   = errors.New("conflicting feature name")
	ErrMalformedTransformOutput = errors.New("malformed transformation output")
)

// RequestError is a request validation or resolution failure. It aborts the call before any
// lookup starts and never produces a partial response.
type RequestError struct {
	Err error
}

func (e *RequestError) Error() string {
	return e.Err.Error()
}

func (e *RequestError) Unwrap() error { return e.Err }

func requestErrorf(sentinel error, format string, args ...any) error {
	return &RequestError{Err: fmt.Errorf("%w: "+format, append([]any{sentinel}, args...)...)}
}

// IsRequestError reports whether err is the caller's fault.
func IsRequestError(err error) bool {
	var re *RequestError
	return errors.As(err, &re)
}
