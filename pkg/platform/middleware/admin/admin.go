package admin

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	"onboard/pkg/platform/httputil"
	request "onboard/pkg/platform/middleware/request"
)

// HeaderOpsToken carries the operator token for internal endpoints.
const HeaderOpsToken = "X-Ops-Token"

// RequireOpsToken guards operator endpoints such as /metrics. An empty
// expected token leaves the endpoint open, which is the local default.
func RequireOpsToken(expectedToken string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if expectedToken == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := r.Header.Get(HeaderOpsToken)
			if subtle.ConstantTimeCompare([]byte(token), []byte(expectedToken)) != 1 {
				ctx := r.Context()
				logger.WarnContext(ctx, "ops token mismatch",
					"request_id", request.GetRequestID(ctx),
					"path", r.URL.Path,
				)
				httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{
					Error:            "unauthorized",
					ErrorDescription: "ops token required",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
