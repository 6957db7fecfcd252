// Package ratelimit throttles inbound client events per key.
package ratelimit

import "context"

// Limiter decides whether the next event for key is allowed.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Unlimited allows everything.
type Unlimited struct{}

// Allow always returns true.
func (Unlimited) Allow(context.Context, string) (bool, error) { return true, nil }
