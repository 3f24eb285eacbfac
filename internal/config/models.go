package config

import (
	"github.com/Meesho/BharatMLStack/feature-server/internal/types"
	"github.com/Meesho/BharatMLStack/feature-server/pkg/circuitbreaker"
)

const (
	ModeNative = "native"
	ModeRemote = "remote"

	DbTypeRedisStandalone = "redis_standalone"
	DbTypeRedisFailover   = "redis_failover"
	DbTypeRedisCluster    = "redis_cluster"
	DbTypeScylla          = "scylla"
)

// FeatureRegistry is the whole registry blob. Map keys are object names; a missing Name field
// inside an object is filled from its key.
type FeatureRegistry struct {
	Project                string                           `json:"project"`
	Entities               map[string]Entity                `json:"entities"`
	FeatureViews           map[string]FeatureView           `json:"feature-views"`
	OnDemandFeatureViews   map[string]OnDemandFeatureView   `json:"on-demand-feature-views"`
	FeatureServices        map[string]FeatureService        `json:"feature-services"`
	Storage                Storage                          `json:"storage"`
	Security               Security                         `json:"security"`
	TransformationServices map[string]TransformationService `json:"transformation-services"`
	CircuitBreaker         map[string]circuitbreaker.Config `json:"circuit-breakers"`
}

type Entity struct {
	Name      string          `json:"name"`
	JoinKey   string          `json:"join-key"`
	ValueType types.ValueType `json:"value-type"`
}

type Feature struct {
	Name      string          `json:"name"`
	ValueType types.ValueType `json:"value-type"`
}

type FeatureView struct {
	Name     string    `json:"name"`
	Entities []string  `json:"entities"`
	Features []Feature `json:"features"`
	// TtlInSeconds is the max age of a stored value. Zero disables the staleness check.
	TtlInSeconds         int64  `json:"ttl-in-seconds"`
	StoreId              string `json:"store-id"`
	Online               bool   `json:"online"`
	InMemoryCacheEnabled bool   `json:"in-memory-cache-enabled"`
	CacheTtlInSeconds    int    `json:"cache-ttl-in-seconds"`
	CacheJitterPercent   int    `json:"cache-jitter-percentage"`
}

type ODFVSource struct {
	FeatureView string   `json:"feature-view"`
	Features    []string `json:"features"`
}

type RequestSource struct {
	Name   string    `json:"name"`
	Schema []Feature `json:"schema"`
}

type OnDemandFeatureView struct {
	Name           string          `json:"name"`
	Sources        []ODFVSource    `json:"sources"`
	RequestSources []RequestSource `json:"request-sources"`
	Features       []Feature       `json:"features"`
	// Mode is "native" for in-process evaluation or "remote" for a transformation service.
	Mode                    string            `json:"mode"`
	Udf                     string            `json:"udf"`
	UdfArgs                 map[string]string `json:"udf-args"`
	TransformationServiceId string            `json:"transformation-service-id"`
}

type Projection struct {
	FeatureView string   `json:"feature-view"`
	Features    []string `json:"features"`
}

type FeatureService struct {
	Name        string       `json:"name"`
	Projections []Projection `json:"projections"`
}

type Storage struct {
	Stores map[string]Store `json:"stores"`
}

type Store struct {
	DbType    string `json:"db-type"`
	ConfId    int    `json:"conf-id"`
	Table     string `json:"table"`
	KeyPrefix string `json:"key-prefix"`
}

// TransformationService points at a gRPC evaluator configured through TRANSFORMATION_SERVICE_<conf-id>_* env keys.
type TransformationService struct {
	ConfId      int `json:"conf-id"`
	TimeoutInMs int `json:"timeout-in-ms"`
}

type Security struct {
	Reader map[string]Property `json:"reader"`
}

type Property struct {
	Token string `json:"token"`
}
