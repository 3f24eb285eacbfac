package types

import (
	"errors"
	"fmt"
	"strings"
)

const (
	ReferenceSeparator = ":"
	FullNameSeparator  = "__"
)

var ErrInvalidReference = errors.New("invalid feature reference")

// FeatureReference names one feature of one view. It is comparable and used as a map key.
type FeatureReference struct {
	View    string
	Feature string
}

// ParseFeatureReference parses the "<view>:<feature>" form.
func ParseFeatureReference(s string) (FeatureReference, error) {
	parts := strings.Split(s, ReferenceSeparator)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return FeatureReference{}, fmt.Errorf("%w: %q, expected <view>:<feature>", ErrInvalidReference, s)
	}
	return FeatureReference{View: parts[0], Feature: parts[1]}, nil
}

func (r FeatureReference) String() string {
	return r.View + ReferenceSeparator + r.Feature
}

// FullName is the column name used when full feature names are requested and for transformation inputs.
func (r FeatureReference) FullName() string {
	return r.View + FullNameSeparator + r.Feature
}
