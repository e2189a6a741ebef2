package app

import (
	"time"

	"github.com/example/wfm/internal/config"
	"github.com/example/wfm/internal/core/serial"
)

// NumberingOptions are the tunables shared by the allocators and batch engines.
type NumberingOptions struct {
	Mode               serial.Mode
	Location           *time.Location
	AllocatorAttempts  int
	BackoffMin         time.Duration
	BackoffMax         time.Duration
	CollisionRetries   int
	LockTTL            time.Duration
	RenumberBatchLimit int
	ApplyConcurrency   int
}

// NumberingOptionsFromConfig converts the loaded configuration.
func NumberingOptionsFromConfig(cfg *config.Config) NumberingOptions {
	n := cfg.Numbering
	return NumberingOptions{
		Mode:               cfg.Mode(),
		Location:           cfg.Location(),
		AllocatorAttempts:  n.AllocatorAttempts,
		BackoffMin:         n.BackoffMin.Std(),
		BackoffMax:         n.BackoffMax.Std(),
		CollisionRetries:   n.CollisionRetries,
		LockTTL:            n.LockTTL.Std(),
		RenumberBatchLimit: n.RenumberBatchLimit,
		ApplyConcurrency:   n.ApplyConcurrency,
	}
}

// DefaultNumberingOptions returns the options of the default configuration.
func DefaultNumberingOptions() NumberingOptions {
	return NumberingOptionsFromConfig(config.Default())
}

func (o NumberingOptions) loc() *time.Location {
	if o.Location == nil {
		return time.UTC
	}
	return o.Location
}

// yearWindow returns [Jan 1 of year, Jan 1 of year+1) in loc.
func yearWindow(year int, loc *time.Location) (time.Time, time.Time) {
	from := time.Date(year, time.January, 1, 0, 0, 0, 0, loc)
	return from, from.AddDate(1, 0, 0)
}
