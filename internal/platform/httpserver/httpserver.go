// Package httpserver builds the listening server for the registration API.
package httpserver

import (
	"net/http"
	"time"

	"onboard/internal/platform/config"
)

// writeSlack lets the timeout middleware write its 503 before the server cuts
// the connection.
const writeSlack = 5 * time.Second

// New returns a server whose write deadline outlives the per-request timeout.
func New(cfg config.Server, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + writeSlack,
		IdleTimeout:       2 * time.Minute,
	}
}
