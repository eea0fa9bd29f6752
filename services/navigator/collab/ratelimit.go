// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package collab

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// LimitedClient wraps a ChatClient with a token-bucket rate limit.
//
// Description:
//
//	Smooths outbound model calls to at most perMinute requests per
//	minute with a burst of one, so a traffic spike queues instead of
//	hammering the provider. Waiting respects context cancellation.
//
// Thread Safety: LimitedClient is safe for concurrent use.
type LimitedClient struct {
	inner   ChatClient
	limiter *rate.Limiter
}

// NewLimitedClient wraps inner with a per-minute rate limit.
//
// Inputs:
//   - inner: The client to wrap. Must not be nil.
//   - perMinute: Maximum calls per minute. Must be positive.
//
// Outputs:
//   - *LimitedClient: The wrapped client.
func NewLimitedClient(inner ChatClient, perMinute int) *LimitedClient {
	return &LimitedClient{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), 1),
	}
}

// Chat implements ChatClient. Blocks until a token is available or the
// context is done.
func (l *LimitedClient) Chat(ctx context.Context, messages []Message, opts ChatOptions) (string, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("collab: rate limit wait: %w", err)
	}
	return l.inner.Chat(ctx, messages, opts)
}
