package types

import "fmt"

// FeatureStatus qualifies every value in a response. Only StatusPresent carries a usable value.
type FeatureStatus int32

const (
	StatusPresent FeatureStatus = iota
	StatusNullValue
	StatusNotFound
	StatusOutsideMaxAge
	StatusError
)

var featureStatusNames = [...]string{"PRESENT", "NULL_VALUE", "NOT_FOUND", "OUTSIDE_MAX_AGE", "ERROR"}

func (s FeatureStatus) String() string {
	if s >= 0 && int(s) < len(featureStatusNames) {
		return featureStatusNames[s]
	}
	return fmt.Sprintf("FeatureStatus(%d)", int32(s))
}
