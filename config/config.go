// Package config loads and holds the PPM's runtime policy: geofence
// coordinates, filter thresholds, bus topics, and connection parameters.
package config

import (
	"sync"
	"time"

	"github.com/trailmark-labs/ppm/geo"
)

// Policy is the immutable-after-load configuration snapshot. Every field
// here has a source: a config file key, a CLI flag, or an environment
// variable, per the precedence rule in FromCLI (flags win over file values).
type Policy struct {
	GeofenceSW geo.Point
	GeofenceNE geo.Point
	MapfilePath string

	ConsumerTopic    string
	ProducerTopic    string
	Partition        int32
	GroupID          string
	Brokers          []string
	OffsetSpec       string
	ExitOnEOF        bool
	DebugFacets      []string
	JetStreamEnabled bool

	ConsumerPollTimeout time.Duration

	VelocityMin        float64
	VelocityMax        float64
	IDInclusionPattern string
	IDRedactionValue   string

	LogLevel string
	LogDir   string
	LogRM    bool
	InfoLog  string
	ErrorLog string
}

// GeofenceBBox derives the geo.BoundingBox this Policy's quadtree is rooted
// at.
func (p Policy) GeofenceBBox() geo.BoundingBox {
	return geo.BoundingBox{SW: p.GeofenceSW, NE: p.GeofenceNE}
}

// Config wraps a loaded Policy plus whatever else the process needs at
// runtime alongside it (currently just the policy; kept as its own type so
// SafeConfig has something narrower than Policy to guard, since Policy
// itself is read-only after load).
type Config struct {
	Policy Policy
}

// SafeConfig guards a Config for concurrent readers. Only this package and
// its test use it; cmd/ppm passes the loaded Policy straight to the pipeline
// and gives the admin HTTP server no config at all. Policy
// values in this repository never actually change after configuring
// completes, but the guard is kept in case a future admin endpoint adds
// live reconfiguration.
type SafeConfig struct {
	mu  sync.RWMutex
	cfg Config
}

// NewSafeConfig wraps cfg for concurrent access.
func NewSafeConfig(cfg Config) *SafeConfig {
	return &SafeConfig{cfg: cfg}
}

// Get returns a copy of the current Config.
func (s *SafeConfig) Get() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Set replaces the current Config.
func (s *SafeConfig) Set(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
}
