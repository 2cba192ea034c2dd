package circuitbreaker

import "time"

// DefaultConfig provides balanced settings.
func DefaultConfig() Config {
	return Config{
		MaxRequests:         3,
		Interval:            2 * time.Minute,
		Timeout:             30 * time.Second,
		ConsecutiveFailures: 15,
		FailureRatio:        0.5,
		MinRequests:         10,
	}
}

// PurseConfig suits escrow purse backends: a payout stuck behind a dead
// backend is worse than a fast failure the caller can retry.
func PurseConfig() Config {
	return Config{
		MaxRequests:         2,
		Interval:            time.Minute,
		Timeout:             10 * time.Second,
		ConsecutiveFailures: 5,
		FailureRatio:        0.5,
		MinRequests:         10,
	}
}
