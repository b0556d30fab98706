package scheduler

import (
	"time"

	"github.com/smallbiznis/milkbill/internal/config"
)

// Config controls the tick interval and per-job timeouts.
type Config struct {
	TickInterval    time.Duration
	BillingTimeout  time.Duration
	ReminderTimeout time.Duration
	AutofillTimeout time.Duration
	// MarkerTTL is how long a finished job keeps its period marker.
	MarkerTTL time.Duration
	// DisabledJobs lists job names the loop never runs.
	DisabledJobs []string
}

func DefaultConfig() Config {
	return Config{
		TickInterval:    time.Minute,
		BillingTimeout:  10 * time.Minute,
		ReminderTimeout: 5 * time.Minute,
		AutofillTimeout: 2 * time.Minute,
		MarkerTTL:       48 * time.Hour,
	}
}

func ProvideConfig(cfg config.Config) Config {
	c := DefaultConfig()
	c.TickInterval = cfg.SchedulerTick
	return c.withDefaults()
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.TickInterval <= 0 {
		c.TickInterval = defaults.TickInterval
	}
	if c.BillingTimeout <= 0 {
		c.BillingTimeout = defaults.BillingTimeout
	}
	if c.ReminderTimeout <= 0 {
		c.ReminderTimeout = defaults.ReminderTimeout
	}
	if c.AutofillTimeout <= 0 {
		c.AutofillTimeout = defaults.AutofillTimeout
	}
	if c.MarkerTTL <= 0 {
		c.MarkerTTL = defaults.MarkerTTL
	}
	return c
}

func (c Config) isJobEnabled(name string) bool {
	for _, disabled := range c.DisabledJobs {
		if disabled == name {
			return false
		}
	}
	return true
}
