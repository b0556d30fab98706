package clock

import (
	"time"

	"github.com/smallbiznis/milkbill/internal/config"
	"go.uber.org/fx"
)

// Clock is the source of "now" for every time-gated rule.
type Clock interface {
	Now() time.Time
	Location() *time.Location
}

type SystemClock struct {
	loc *time.Location
}

func NewSystemClock(loc *time.Location) *SystemClock {
	if loc == nil {
		loc = time.UTC
	}
	return &SystemClock{loc: loc}
}

func (c *SystemClock) Now() time.Time {
	return time.Now().In(c.loc)
}

func (c *SystemClock) Location() *time.Location {
	return c.loc
}

func provideClock(cfg config.Config) Clock {
	return NewSystemClock(cfg.Location())
}

var Module = fx.Module("clock",
	fx.Provide(provideClock),
)
