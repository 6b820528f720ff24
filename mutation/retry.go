package mutation

import "time"

// RetryPolicy bounds how often a failed request is retried.
type RetryPolicy struct {
	// MaxApplicationRetries is how many times a request the server rejected
	// is retried before the mutation is rolled back.
	MaxApplicationRetries int

	// MaxNetworkRetries is how many network failures a mutation survives.
	MaxNetworkRetries int

	// BaseDelay is the delay before the first retry.
	BaseDelay time.Duration

	// MaxDelay caps the delay between retries.
	MaxDelay time.Duration
}

// DefaultRetryPolicy returns the standard policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxApplicationRetries: 3,
		MaxNetworkRetries:     50,
		BaseDelay:             time.Second,
		MaxDelay:              30 * time.Second,
	}
}

// Delay returns min(MaxDelay, BaseDelay * 2^attempt), where attempt 0 is
// the first retry.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	delay := p.BaseDelay
	for range attempt {
		if delay >= p.MaxDelay {
			break
		}
		delay *= 2
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

// withDefaults treats the zero policy as DefaultRetryPolicy and fills in
// unset limits otherwise.
func (p RetryPolicy) withDefaults() RetryPolicy {
	defaults := DefaultRetryPolicy()
	if p == (RetryPolicy{}) {
		return defaults
	}
	if p.MaxApplicationRetries < 0 {
		p.MaxApplicationRetries = 0
	}
	if p.MaxNetworkRetries <= 0 {
		p.MaxNetworkRetries = defaults.MaxNetworkRetries
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = defaults.BaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = defaults.MaxDelay
	}
	return p
}
