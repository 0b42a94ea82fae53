package testutil

import (
	"net/http"
	"time"

	id "onboard/pkg/domain"
	"onboard/pkg/requestcontext"
)

// WithReviewer adds a reviewer to the request context, as the reviewer auth
// middleware would. Blank ids are ignored.
func WithReviewer(req *http.Request, reviewerID string) *http.Request {
	parsed, err := id.ParseReviewerID(reviewerID)
	if err != nil {
		return req
	}
	return req.WithContext(requestcontext.WithReviewerID(req.Context(), parsed))
}

// WithBearer sets the Authorization header.
func WithBearer(req *http.Request, token string) *http.Request {
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

// WithRequestTime pins the request-scoped clock.
func WithRequestTime(req *http.Request, at time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), at))
}
