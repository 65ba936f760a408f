package httpserver

import (
	"net/http"
	"time"
)

// New builds an HTTP server with sane defaults for this service. Write
// timeout leaves headroom for federated fan-out, which can legitimately run
// up to the batch deadline.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}
