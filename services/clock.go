package services

import "time"

// Clock returns the current time. Services take one so tests can pin time.
type Clock func() time.Time

func systemClock() time.Time {
	return time.Now().UTC()
}

// Option customizes a service.
type Option func(*serviceOptions)

type serviceOptions struct {
	now Clock
}

// WithClock replaces the wall clock.
func WithClock(now Clock) Option {
	return func(o *serviceOptions) {
		o.now = now
	}
}

func buildOptions(opts []Option) serviceOptions {
	o := serviceOptions{now: systemClock}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
