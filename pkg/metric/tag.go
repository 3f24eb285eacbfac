package metric

import "strings"

const (
	TagEnv                   = "env"
	TagService               = "service"
	TagPath                  = "path"
	TagMethod                = "method"
	TagCallerId              = "caller_id"
	TagHttpStatusCode        = "http_status_code"
	TagGrpcStatusCode        = "grpc_status_code"
	TagExternalService       = "external_service"
	TagCommunicationProtocol = "communication_protocol"
	TagFeatureView           = "feature_view"
	TagStoreType             = "store_type"
	TagFeatureStatus         = "feature_status"
	TagTransformMode         = "transform_mode"
	TagCacheName             = "cache_name"

	TagValueCommunicationProtocolHttp = "http"
	TagValueCommunicationProtocolGrpc = "grpc"
)

type Tag struct {
	Name  string
	Value string
}

func NewTag(name, value string) Tag {
	return Tag{Name: name, Value: value}
}

// BuildTag renders tags in the name:value form statsd expects
func BuildTag(tags ...Tag) []string {
	allTags := make([]string, 0, len(tags))
	for _, tag := range tags {
		allTags = append(allTags, TagAsString(tag.Name, tag.Value))
	}
	return allTags
}

// characters that DogStatsD would misread inside a tag value; "/" is kept for URL paths
var tagValueReplacer = strings.NewReplacer(":", "_", " ", "_", "\\", "_", ",", "_", "|", "_", "@", "_", "#", "_")

func TagAsString(name string, value string) string {
	return name + ":" + tagValueReplacer.Replace(value)
}
