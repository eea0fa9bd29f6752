// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package navigator

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const requestIDHeader = "X-Request-ID"

// requestIDKey caches the resolved ID on the gin context so repeated
// lookups within one request agree.
const requestIDKey = "navigator.request_id"

// getOrCreateRequestID returns the request's correlation ID, generating one
// when the caller did not send an X-Request-ID header. The ID is echoed on
// the response so clients can report it.
func getOrCreateRequestID(c *gin.Context) string {
	if cached, ok := c.Get(requestIDKey); ok {
		if id, ok := cached.(string); ok && id != "" {
			return id
		}
	}

	id := strings.TrimSpace(c.GetHeader(requestIDHeader))
	if id == "" {
		id = uuid.NewString()
	}
	c.Set(requestIDKey, id)
	c.Header(requestIDHeader, id)
	return id
}

// CORSMiddleware lets the embedding widget call the API cross-origin.
//
// Description:
//
//	With no configured origins every origin is allowed, which is only
//	appropriate for local development. With origins configured, only
//	exact matches are echoed back. Preflight requests are answered
//	directly with 204.
func CORSMiddleware(origins []string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[strings.TrimRight(o, "/")] = struct{}{}
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		switch {
		case len(allowed) == 0:
			c.Header("Access-Control-Allow-Origin", "*")
		case origin != "":
			if _, ok := allowed[strings.TrimRight(origin, "/")]; ok {
				c.Header("Access-Control-Allow-Origin", origin)
				c.Header("Vary", "Origin")
			}
		}
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
		c.Header("Access-Control-Max-Age", "600")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// ClientRateLimiter implements a sliding window rate limiter per client.
//
// Description:
//
//	Limits the number of requests per minute from each client address
//	using a sliding window of timestamps. When the limit is exceeded,
//	returns the duration until the next request would be admitted. Idle
//	clients are swept periodically so the window map does not grow with
//	every address ever seen.
//
// Thread Safety: Safe for concurrent use via sync.Mutex.
type ClientRateLimiter struct {
	mu        sync.Mutex
	limit     int
	windows   map[string][]int64 // timestamps in Unix milliseconds
	lastSweep int64
}

// NewClientRateLimiter creates a limiter allowing perMinute requests per
// client. A non-positive limit disables limiting entirely.
func NewClientRateLimiter(perMinute int) *ClientRateLimiter {
	return &ClientRateLimiter{
		limit:   perMinute,
		windows: make(map[string][]int64),
	}
}

// Allow checks whether a request from the given client is within the limit.
//
// Description:
//
//	If the request is allowed, records its timestamp.
//
// Inputs:
//
//	client - The client key, normally the remote IP.
//
// Outputs:
//
//	bool - True if the request is allowed.
//	time.Duration - If rate-limited, how long until the oldest window
//	 entry expires. Zero if allowed.
func (r *ClientRateLimiter) Allow(client string) (bool, time.Duration) {
	if r.limit <= 0 {
		return true, 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UnixMilli()
	windowStart := now - 60_000 // 1 minute ago

	r.sweepLocked(now, windowStart)

	// Prune expired entries for this client
	timestamps := r.windows[client]
	pruned := make([]int64, 0, len(timestamps))
	for _, ts := range timestamps {
		if ts > windowStart {
			pruned = append(pruned, ts)
		}
	}

	if len(pruned) >= r.limit {
		// Rate limited — calculate retry-after
		oldestInWindow := pruned[0]
		retryAfter := time.Duration(oldestInWindow+60_000-now) * time.Millisecond
		r.windows[client] = pruned
		return false, retryAfter
	}

	// Allowed — record this request
	pruned = append(pruned, now)
	r.windows[client] = pruned
	return true, 0
}

// sweepLocked drops clients whose whole window has expired. Runs at most
// once per minute so a hot path stays one map lookup.
func (r *ClientRateLimiter) sweepLocked(now, windowStart int64) {
	if now-r.lastSweep < 60_000 {
		return
	}
	r.lastSweep = now

	for client, timestamps := range r.windows {
		live := false
		for _, ts := range timestamps {
			if ts > windowStart {
				live = true
				break
			}
		}
		if !live {
			delete(r.windows, client)
		}
	}
}

// RateLimitMiddleware rejects clients that exceed the sliding window limit
// with 429 and a Retry-After header.
func RateLimitMiddleware(limiter *ClientRateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		allowed, retryAfter := limiter.Allow(c.ClientIP())
		if !allowed {
			rateLimitedTotal.Inc()
			seconds := int(math.Ceil(retryAfter.Seconds()))
			if seconds < 1 {
				seconds = 1
			}
			c.Header("Retry-After", strconv.Itoa(seconds))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, ErrorResponse{
				Error: "too many requests",
				Code:  "RATE_LIMITED",
			})
			return
		}
		c.Next()
	}
}
