package phase

import (
	"math"
	"time"

	"deltadebate/internal/errs"
)

// Config holds the scheduler knobs.
type Config struct {
	// MaxPhase is the terminal phase; reaching it archives the record.
	MaxPhase int
	// DeadlineExtension is added to a deadline on every advance and is the
	// length of the first phase.
	DeadlineExtension time.Duration
	// NumPromptsPerDay caps how many records may sit in phase 1 at once.
	NumPromptsPerDay int
}

// DefaultConfig returns the stock configuration.
func DefaultConfig() Config {
	return Config{
		MaxPhase:          4,
		DeadlineExtension: 24 * time.Hour,
		NumPromptsPerDay:  2,
	}
}

// Validate checks that every knob is positive.
func (c Config) Validate() error {
	if c.MaxPhase <= 0 {
		return errs.InvalidInput("%d must be an integer greater than 0", c.MaxPhase)
	}
	if c.DeadlineExtension <= 0 {
		return errs.InvalidInput("%s must be greater than 0", c.DeadlineExtension)
	}
	if c.NumPromptsPerDay <= 0 {
		return errs.InvalidInput("%d must be an integer greater than 0", c.NumPromptsPerDay)
	}
	return nil
}

// MaxExtensionHours is the longest extension a time.Duration can hold.
const MaxExtensionHours = float64(math.MaxInt64) / float64(time.Hour)

// HoursToDuration converts a positive, possibly fractional, hour count.
func HoursToDuration(hours float64) (time.Duration, error) {
	if !(hours > 0) || math.IsInf(hours, 0) {
		return 0, errs.InvalidInput("%v must be greater than 0", hours)
	}
	if hours >= MaxExtensionHours {
		return 0, errs.InvalidInput("%v must be less than %.0f hours", hours, MaxExtensionHours)
	}
	d := time.Duration(hours * float64(time.Hour))
	if d <= 0 {
		return 0, errs.InvalidInput("%v hours is shorter than a nanosecond", hours)
	}
	return d, nil
}
