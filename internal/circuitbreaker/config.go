package circuitbreaker

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Upstream services guarded by breakers.
const (
	ServiceSearch     = "search"
	ServiceEmbeddings = "embeddings"
	ServiceVectorDB   = "vectordb"
	ServiceRedis      = "redis"
	ServiceDatabase   = "database"
)

// Settings is the tunable part of Config. Zero fields fall back to the
// service profile.
type Settings struct {
	MaxRequests      uint32        `mapstructure:"max_requests" json:"max_requests"`
	Interval         time.Duration `mapstructure:"interval" json:"interval"`
	Timeout          time.Duration `mapstructure:"timeout" json:"timeout"`
	FailureThreshold uint32        `mapstructure:"failure_threshold" json:"failure_threshold"`
	SuccessThreshold uint32        `mapstructure:"success_threshold" json:"success_threshold"`
}

var profiles = map[string]Settings{
	ServiceSearch:     {MaxRequests: 3, Interval: 30 * time.Second, Timeout: 20 * time.Second, FailureThreshold: 4, SuccessThreshold: 2},
	ServiceEmbeddings: {MaxRequests: 5, Interval: 30 * time.Second, Timeout: 15 * time.Second, FailureThreshold: 3, SuccessThreshold: 2},
	ServiceVectorDB:   {MaxRequests: 5, Interval: 30 * time.Second, Timeout: 15 * time.Second, FailureThreshold: 3, SuccessThreshold: 2},
	ServiceRedis:      {MaxRequests: 5, Interval: 30 * time.Second, Timeout: 15 * time.Second, FailureThreshold: 3, SuccessThreshold: 2},
	ServiceDatabase:   {MaxRequests: 3, Interval: 60 * time.Second, Timeout: 30 * time.Second, FailureThreshold: 5, SuccessThreshold: 2},
}

// SettingsFor returns the profile for service with DR_CB_<SERVICE>_* env
// overrides applied.
func SettingsFor(service string) Settings {
	s, ok := profiles[service]
	if !ok {
		d := DefaultConfig()
		s = Settings{d.MaxRequests, d.Interval, d.Timeout, d.FailureThreshold, d.SuccessThreshold}
	}
	prefix := "DR_CB_" + strings.ToUpper(service) + "_"
	s.MaxRequests = getEnvUint32(prefix+"MAX_REQUESTS", s.MaxRequests)
	s.Interval = getEnvDuration(prefix+"INTERVAL", s.Interval)
	s.Timeout = getEnvDuration(prefix+"TIMEOUT", s.Timeout)
	s.FailureThreshold = getEnvUint32(prefix+"FAILURE_THRESHOLD", s.FailureThreshold)
	s.SuccessThreshold = getEnvUint32(prefix+"SUCCESS_THRESHOLD", s.SuccessThreshold)
	return s
}

// Merge fills zero fields of s from base.
func (s Settings) Merge(base Settings) Settings {
	if s.MaxRequests == 0 {
		s.MaxRequests = base.MaxRequests
	}
	if s.Interval == 0 {
		s.Interval = base.Interval
	}
	if s.Timeout == 0 {
		s.Timeout = base.Timeout
	}
	if s.FailureThreshold == 0 {
		s.FailureThreshold = base.FailureThreshold
	}
	if s.SuccessThreshold == 0 {
		s.SuccessThreshold = base.SuccessThreshold
	}
	return s
}

// ToConfig converts Settings to circuit breaker Config
func (s Settings) ToConfig() Config {
	return Config{
		MaxRequests:      s.MaxRequests,
		Interval:         s.Interval,
		Timeout:          s.Timeout,
		FailureThreshold: s.FailureThreshold,
		SuccessThreshold: s.SuccessThreshold,
	}
}

func getEnvUint32(key string, defaultValue uint32) uint32 {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseUint(val, 10, 32); err == nil {
			return uint32(parsed)
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
	}
	return defaultValue
}
