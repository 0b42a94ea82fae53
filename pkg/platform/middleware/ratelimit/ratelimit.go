// Package ratelimit throttles requests per client key with token buckets.
package ratelimit

import (
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"onboard/pkg/platform/httputil"
	"onboard/pkg/platform/middleware/metadata"
)

const cleanupInterval = 5 * time.Minute

// Config is the allowance per key: Requests per Window, with Burst tokens.
type Config struct {
	Requests int
	Window   time.Duration
	Burst    int
}

// KeyFunc groups requests. An empty key lets the request through unthrottled.
type KeyFunc func(*http.Request) string

// ClientIP keys requests by the resolved client address.
func ClientIP(r *http.Request) string {
	return metadata.ClientIPFromRequest(r)
}

type Limiter struct {
	cfg       Config
	limit     rate.Limit
	keyFunc   KeyFunc
	logger    *slog.Logger
	onLimited func(*http.Request)
	now       func() time.Time

	limiters    sync.Map // map[string]*rate.Limiter
	mu          sync.Mutex
	lastCleanup time.Time
}

type Option func(*Limiter)

func WithKeyFunc(fn KeyFunc) Option {
	return func(l *Limiter) {
		if fn != nil {
			l.keyFunc = fn
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithOnLimited is called for every refused request, e.g. to count it.
func WithOnLimited(fn func(*http.Request)) Option {
	return func(l *Limiter) {
		l.onLimited = fn
	}
}

func New(cfg Config, opts ...Option) *Limiter {
	if cfg.Burst <= 0 {
		cfg.Burst = cfg.Requests
	}
	l := &Limiter{
		cfg:     cfg,
		limit:   rate.Limit(float64(cfg.Requests) / cfg.Window.Seconds()),
		keyFunc: ClientIP,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.lastCleanup = l.now()
	return l
}

// Middleware refuses requests over the allowance with 429 and Retry-After.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := l.keyFunc(r)
		if key == "" {
			next.ServeHTTP(w, r)
			return
		}

		limiter := l.limiterFor(key)
		if limiter.Allow() {
			next.ServeHTTP(w, r)
			return
		}

		reservation := limiter.Reserve()
		delay := reservation.Delay()
		reservation.Cancel()
		retryAfter := max(int(delay.Seconds()), 1)

		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(l.cfg.Requests))
		w.Header().Set("X-RateLimit-Window", l.cfg.Window.String())

		l.logger.WarnContext(r.Context(), "rate limit exceeded",
			"key", key,
			"path", r.URL.Path,
			"retry_after", retryAfter,
		)
		if l.onLimited != nil {
			l.onLimited(r)
		}
		httputil.WriteJSON(w, http.StatusTooManyRequests, httputil.ErrorResponse{
			Error:            "rate_limit_exceeded",
			ErrorDescription: "too many requests, try again later",
		})
	})
}

func (l *Limiter) limiterFor(key string) *rate.Limiter {
	if existing, ok := l.limiters.Load(key); ok {
		return existing.(*rate.Limiter)
	}
	actual, _ := l.limiters.LoadOrStore(key, rate.NewLimiter(l.limit, l.cfg.Burst))
	l.maybeCleanup()
	return actual.(*rate.Limiter)
}

// maybeCleanup drops limiters whose bucket has refilled, i.e. idle keys.
func (l *Limiter) maybeCleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastCleanup) < cleanupInterval {
		return
	}
	l.lastCleanup = now
	l.limiters.Range(func(key, value any) bool {
		if value.(*rate.Limiter).Tokens() >= float64(l.cfg.Burst) {
			l.limiters.Delete(key)
		}
		return true
	})
}
