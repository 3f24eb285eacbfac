package metric

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTagAsString(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
		want  string
	}{
		{"plain", TagFeatureView, "driver_hourly_stats", "feature_view:driver_hourly_stats"},
		{"path kept", TagPath, "/api/v1/features/online", "path:/api/v1/features/online"},
		{"separators replaced", TagMethod, "a:b c|d", "method:a_b_c_d"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TagAsString(tt.key, tt.value))
		})
	}
}

func TestBuildTag(t *testing.T) {
	tags := BuildTag(NewTag(TagStoreType, "redis"), NewTag(TagFeatureStatus, "PRESENT"))
	assert.Equal(t, []string{"store_type:redis", "feature_status:PRESENT"}, tags)
}
