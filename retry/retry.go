/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package retry implements the bounded-attempt policy applied to structured
// judge calls. Unlike a transport-level backoff retry, a judging retry
// re-issues the entire call (the model is as likely to produce parseable
// output on a fresh attempt as after a delay), and exhaustion degrades to a
// caller-provided fallback value instead of an error: a judge that never
// answers contributes no findings, it does not fail the task.
package retry

import (
	"context"

	"github.com/chainguard-dev/clog"
)

// Policy configures bounded-attempt retry behavior.
type Policy struct {
	// Attempts is the total number of attempts, including the first
	// (default: 3). Values below 1 are treated as 1.
	Attempts int
}

// DefaultPolicy returns the policy used for structured judge calls.
func DefaultPolicy() Policy {
	return Policy{Attempts: 3}
}

// Do runs fn up to p.Attempts times, returning the first successful value.
// Every failed attempt is logged at warning level. When all attempts fail, or
// the context is canceled between attempts, Do returns fallback.
func Do[T any](ctx context.Context, p Policy, operation string, fallback T, fn func(context.Context) (T, error)) T {
	attempts := max(p.Attempts, 1)
	log := clog.FromContext(ctx).With("operation", operation)

	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			log.With("error", err.Error()).Warn("Context canceled, abandoning retries")
			return fallback
		}
		result, err := fn(ctx)
		if err == nil {
			return result
		}
		log.With("attempt", attempt).
			With("max_attempts", attempts).
			With("error", err.Error()).
			Warn("Attempt failed")
	}

	log.With("max_attempts", attempts).Warn("All attempts failed, using fallback")
	return fallback
}

// DoErr runs fn exactly once and returns its result, logging the failure.
// It exists so single-attempt call sites share the operation-scoped logging
// of Do without pretending to retry.
func DoErr[T any](ctx context.Context, operation string, fn func(context.Context) (T, error)) (T, error) {
	result, err := fn(ctx)
	if err != nil {
		clog.FromContext(ctx).With("operation", operation).
			With("error", err.Error()).
			Warn("Attempt failed")
	}
	return result, err
}
