package sched

// Config mirrors the sched section of the config file.
type Config struct {
	TickMS     int `yaml:"tick_ms"`     // 5 (by default)
	SliceTicks int `yaml:"slice_ticks"` // 5 (by default)
	Cores      int `yaml:"cores"`       // 2 (by default)
}

// DefaultConfig is used when no config file is found.
func DefaultConfig() Config {
	return Config{
		TickMS:     5,
		SliceTicks: 5,
		Cores:      2,
	}
}

// Normalize applies sanity clamps.
func (c Config) Normalize() Config {
	if c.SliceTicks <= 0 {
		c.SliceTicks = 5
	}
	if c.TickMS <= 0 {
		c.TickMS = 5
	}
	if c.Cores <= 0 {
		c.Cores = 1
	}
	return c
}
