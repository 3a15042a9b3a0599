package blockengine

import "sync"

// Settings is a snapshot of the block-engine connection settings.
type Settings struct {
	URL string
}

// Config holds settings that may change while the stage runs.
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
