// Copyright (C) 2025 The Spendo Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimitConfig configures per-client token buckets.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate. Zero disables limiting.
	RequestsPerSecond float64 `yaml:"requests_per_second"`

	// Burst is the bucket size. Defaults to 1.
	Burst int `yaml:"burst"`

	// IdleTTL drops buckets unused for this long. Defaults to 10m.
	IdleTTL time.Duration `yaml:"idle_ttl"`
}

// DefaultRateLimitConfig allows one chat request per second with bursts of five.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{RequestsPerSecond: 1, Burst: 5, IdleTTL: 10 * time.Minute}
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keys token buckets by user id, or client IP when anonymous.
//
// # Thread Safety
//
// Safe for concurrent use.
type RateLimiter struct {
	cfg        RateLimitConfig
	mu         sync.Mutex
	clients    map[string]*clientLimiter
	lastSweep  time.Time
	now        func() time.Time
	onRejected func(route string)
}

func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 10 * time.Minute
	}
	return &RateLimiter{
		cfg:     cfg,
		clients: make(map[string]*clientLimiter),
		now:     time.Now,
	}
}

// OnRejected registers a hook called for every refused request.
func (r *RateLimiter) OnRejected(fn func(route string)) {
	r.onRejected = fn
}

// Allow reports whether key may make a request now.
func (r *RateLimiter) Allow(key string) bool {
	if r.cfg.RequestsPerSecond <= 0 {
		return true
	}
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	if now.Sub(r.lastSweep) > r.cfg.IdleTTL {
		for k, cl := range r.clients {
			if now.Sub(cl.lastSeen) > r.cfg.IdleTTL {
				delete(r.clients, k)
			}
		}
		r.lastSweep = now
	}

	cl, ok := r.clients[key]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(rate.Limit(r.cfg.RequestsPerSecond), r.cfg.Burst)}
		r.clients[key] = cl
	}
	cl.lastSeen = now
	return cl.limiter.AllowN(now, 1)
}

// Middleware answers 429 once a client's bucket is empty.
func (r *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := "ip:" + c.ClientIP()
		if user := CurrentUser(c); user != nil {
			key = "user:" + strconv.FormatInt(user.ID, 10)
		}
		if !r.Allow(key) {
			if r.onRejected != nil {
				r.onRejected(c.FullPath())
			}
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests"})
			return
		}
		c.Next()
	}
}
