package httpserver

import (
	"net/http"
	"time"
)

// New returns an http.Server with conservative timeouts. Decision requests
// are small and fast; anything holding a connection longer is misbehaving.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      35 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
