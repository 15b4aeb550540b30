package types

import "time"

// RetryPolicy defines how outbound calls of I/O nodes handle failures
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, including the first
	MaxAttempts int `yaml:"max_attempts" json:"max_attempts" validate:"gte=1"`

	// InitialDelay is the wait before the first retry
	InitialDelay time.Duration `yaml:"initial_delay" json:"initial_delay"`

	// MaxDelay caps the exponential backoff
	MaxDelay time.Duration `yaml:"max_delay" json:"max_delay"`
}

// NewRetryPolicy creates a default retry policy
func NewRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
	}
}

// Retries returns the number of retries after the first attempt
func (p RetryPolicy) Retries() int {
	if p.MaxAttempts <= 1 {
		return 0
	}
	return p.MaxAttempts - 1
}
