package relayer

import (
	"sync"
	"time"
)

// Settings is a snapshot of the relayer connection settings.
type Settings struct {
	URL string
	// ExpectedHeartbeatInterval is how often the relayer should send a
	// heartbeat; the connection is checked at this cadence.
	ExpectedHeartbeatInterval time.Duration
	// OldestAllowedHeartbeat disconnects the relayer when no heartbeat
	// arrived for this long.
	OldestAllowedHeartbeat time.Duration
}

const (
	DefaultExpectedHeartbeatInterval = 500 * time.Millisecond
	DefaultOldestAllowedHeartbeat    = 1500 * time.Millisecond
)

func (s Settings) withDefaults() Settings {
	if s.ExpectedHeartbeatInterval <= 0 {
		s.ExpectedHeartbeatInterval = DefaultExpectedHeartbeatInterval
	}
	if s.OldestAllowedHeartbeat <= 0 {
		s.OldestAllowedHeartbeat = DefaultOldestAllowedHeartbeat
	}
	return s
}

// Config holds settings that may be changed while the stage runs, for
// example by an admin command. The stage reconnects when they change.
type Config struct {
	mtx      sync.Mutex
	settings Settings
}

// NewConfig returns a config holding s.
func NewConfig(s Settings) *Config {
	return &Config{settings: s}
}

// Load returns the current settings.
func (c *Config) Load() Settings {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.settings
}

// Update replaces the settings.
func (c *Config) Update(s Settings) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.settings = s
}
