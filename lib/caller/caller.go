// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package caller defines the gateway's outbound-adapter contract and
// the shared retry-with-backoff wrapper every adapter runs through.
// Concrete adapters (lib/callers/gemini, lib/callers/slack,
// lib/callers/gpg) are thin request-shaping layers over a documented
// REST API or local binary; this package owns none of their protocol
// knowledge, only the uniform execute-and-retry contract.
package caller

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/VouchlyAI/Pincer-MCP/lib/clock"
	"github.com/VouchlyAI/Pincer-MCP/lib/gwschema"
	"github.com/VouchlyAI/Pincer-MCP/lib/injector"
	"github.com/VouchlyAI/Pincer-MCP/lib/pincererr"
)

// Caller is the uniform contract every outbound adapter implements:
// take an enriched request (original arguments plus the just-in-time
// decrypted credential) and produce a tool response. Implementations
// must not retain enriched beyond the call — the injector scrubs its
// credential as soon as Execute returns.
type Caller interface {
	Execute(ctx context.Context, enriched *injector.EnrichedRequest) (gwschema.ToolResponse, error)
}

// defaultMaxRetries is the number of attempts BaseCaller makes before
// giving up, absent an override.
const defaultMaxRetries = 3

// defaultRetryDelay is the base of BaseCaller's exponential backoff:
// attempt N sleeps for RetryDelay * 2^N between attempts.
const defaultRetryDelay = 1000 // milliseconds

// BaseCaller wraps an inner Caller with retry-with-backoff. It performs
// no credential manipulation of its own — it only decides whether and
// when to call Execute again.
type BaseCaller struct {
	// Inner is the adapter-specific execution logic. Required.
	Inner Caller

	// MaxRetries is the maximum number of attempts. Defaults to 3.
	// A purely local adapter (e.g. GPG signing) typically sets this
	// to 1 — retrying a local operation buys nothing.
	MaxRetries int

	// RetryDelayMS is the base of the exponential backoff in
	// milliseconds: attempt N sleeps RetryDelayMS * 2^N. Defaults to
	// 1000.
	RetryDelayMS int64

	// Clock provides the backoff sleep. Defaults to the real wall
	// clock; tests inject a fake clock for deterministic timing.
	Clock clock.Clock
}

// Execute runs Inner, retrying on failure up to MaxRetries attempts
// with exponential backoff between attempts, unless the failure
// classifies as an auth error (see isAuthError), in which case it
// short-circuits immediately. After exhausting retries, returns a
// compound error wrapping pincererr.ErrRetryExhausted and the final
// attempt's error.
func (b *BaseCaller) Execute(ctx context.Context, enriched *injector.EnrichedRequest) (gwschema.ToolResponse, error) {
	maxRetries := b.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	retryDelay := b.RetryDelayMS
	if retryDelay <= 0 {
		retryDelay = defaultRetryDelay
	}
	clockImpl := b.Clock
	if clockImpl == nil {
		clockImpl = clock.Real()
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		response, err := b.Inner.Execute(ctx, enriched)
		if err == nil {
			return response, nil
		}
		lastErr = err

		if isAuthError(err) {
			return gwschema.ToolResponse{}, fmt.Errorf("%w: %v", pincererr.ErrUpstreamError, err)
		}

		if attempt == maxRetries-1 {
			break
		}

		delayMS := retryDelay << attempt // retryDelay * 2^attempt
		select {
		case <-clockImpl.After(time.Duration(delayMS) * time.Millisecond):
		case <-ctx.Done():
			return gwschema.ToolResponse{}, ctx.Err()
		}
	}

	return gwschema.ToolResponse{}, fmt.Errorf("%w after %d attempts: %w", pincererr.ErrRetryExhausted, maxRetries, lastErr)
}

// authErrorMarkers are the case-insensitive substrings in an upstream
// error's textual form that classify it as an auth error, which skips
// retries rather than burning the retry budget on a failure retrying
// cannot fix. This is a policy decision, not an invariant: where an
// upstream protocol exposes a structured status code, adapters should
// classify on that and fall back to this substring match only when the
// protocol does not.
var authErrorMarkers = []string{"unauthorized", "forbidden", "401", "403"}

func isAuthError(err error) bool {
	if err == nil {
		return false
	}
	text := strings.ToLower(err.Error())
	for _, marker := range authErrorMarkers {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}
