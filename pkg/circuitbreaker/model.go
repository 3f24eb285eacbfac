package circuitbreaker

const (
	ForcedStateClose  = -1
	ForcedStateNormal = 0
	ForcedStateOpen   = 1
)

type Config struct {
	// Enabled false makes every breaker of the manager a pass-through.
	Enabled bool   `json:"enabled"`
	Name    string `json:"name"`
	Version int    `json:"version"`

	// FailureRateThreshold is the failure percentage (1-100) that opens the breaker once at least
	// FailureRateMinimumWindow executions happened inside FailureRateWindowInMs.
	FailureRateThreshold     int `json:"failure-rate-threshold"`
	FailureRateMinimumWindow int `json:"failure-rate-minimum-window"`
	FailureRateWindowInMs    int `json:"failure-rate-window-in-ms"`

	// SuccessCountThreshold out of SuccessCountWindow trial executions close a half-open breaker.
	SuccessCountThreshold int `json:"success-count-threshold"`
	SuccessCountWindow    int `json:"success-count-window"`

	// WithDelayInMS is how long an open breaker waits before going half-open.
	WithDelayInMS int `json:"with-delay-in-ms"`

	// ActiveCBKeys lists the keys guarded by this manager, online_store_<store-id> or
	// transformation_service_<service-id>. Example: {"online_store_1": {"enabled": true, "forced-state": 0}}
	ActiveCBKeys map[string]ActiveCBConfig `json:"active-cb-keys"`
}

type ActiveCBConfig struct {
	Enabled bool `json:"enabled"`
	// ForcedState is 1 for forced open, -1 for forced close and 0 for normal execution.
	ForcedState int `json:"forced-state"`
}

func BuildConfig(serviceName string) *Config {
	cbConfig := Config{
		Enabled:                  true,
		Name:                     serviceName,
		Version:                  1,
		FailureRateThreshold:     50,
		FailureRateMinimumWindow: 20,
		FailureRateWindowInMs:    10000,
		SuccessCountThreshold:    3,
		SuccessCountWindow:       5,
		WithDelayInMS:            5000,
	}

	return &cbConfig
}

// withDefaults fills unset thresholds from BuildConfig so partial registry entries stay valid.
func (c Config) withDefaults() Config {
	d := BuildConfig(c.Name)
	if c.FailureRateThreshold <= 0 || c.FailureRateThreshold > 100 {
		c.FailureRateThreshold = d.FailureRateThreshold
	}
	if c.FailureRateMinimumWindow <= 0 {
		c.FailureRateMinimumWindow = d.FailureRateMinimumWindow
	}
	if c.FailureRateWindowInMs <= 0 {
		c.FailureRateWindowInMs = d.FailureRateWindowInMs
	}
	if c.SuccessCountWindow <= 0 {
		c.SuccessCountWindow = d.SuccessCountWindow
	}
	if c.SuccessCountThreshold <= 0 || c.SuccessCountThreshold > c.SuccessCountWindow {
		c.SuccessCountThreshold = c.SuccessCountWindow
	}
	if c.WithDelayInMS <= 0 {
		c.WithDelayInMS = d.WithDelayInMS
	}
	return c
}
