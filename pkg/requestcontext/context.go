// Package requestcontext carries request-scoped values between the HTTP
// middleware that sets them and the registration service that reads them,
// without the service importing net/http.
package requestcontext

import (
	"context"
	"time"

	id "onboard/pkg/domain"
)

type ctxKey int

const (
	keyReviewer ctxKey = iota
	keyClientIP
	keyUserAgent
	keyRequestID
	keyRequestTime
)

func stringValue(ctx context.Context, key ctxKey) string {
	v, _ := ctx.Value(key).(string)
	return v
}

// ReviewerID is the authenticated reviewer, or empty on anonymous requests.
func ReviewerID(ctx context.Context) id.ReviewerID {
	v, _ := ctx.Value(keyReviewer).(id.ReviewerID)
	return v
}

func WithReviewerID(ctx context.Context, reviewerID id.ReviewerID) context.Context {
	return context.WithValue(ctx, keyReviewer, reviewerID)
}

func ClientIP(ctx context.Context) string {
	return stringValue(ctx, keyClientIP)
}

func UserAgent(ctx context.Context) string {
	return stringValue(ctx, keyUserAgent)
}

// WithClientMetadata records where the request came from. Audit events copy
// both values.
func WithClientMetadata(ctx context.Context, clientIP, userAgent string) context.Context {
	return context.WithValue(context.WithValue(ctx, keyClientIP, clientIP), keyUserAgent, userAgent)
}

func RequestID(ctx context.Context) string {
	return stringValue(ctx, keyRequestID)
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, keyRequestID, requestID)
}

// Now is the time the request was received. Outside a request it is the wall
// clock, so one operation sees a single instant when the middleware ran.
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(keyRequestTime).(time.Time); ok {
		return t
	}
	return time.Now()
}

func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, keyRequestTime, t)
}
