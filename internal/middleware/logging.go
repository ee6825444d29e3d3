// internal/middleware/logging.go

// Package middleware carries the HTTP-level plumbing around the
// websocket endpoint.
package middleware

import (
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// LogMiddleware logs each HTTP request with its method, path, peer
// address and elapsed handler time. For the websocket endpoint the
// elapsed time covers the whole connection lifetime.
func LogMiddleware(logger *logrus.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			start := time.Now()

			next.ServeHTTP(w, req)

			logger.WithFields(logrus.Fields{
				"method":  req.Method,
				"path":    req.URL.Path,
				"addr":    req.RemoteAddr,
				"elapsed": time.Since(start),
			}).Info("http request")
		})
	}
}

// LogWebSocketConnect records a completed socket upgrade.
func LogWebSocketConnect(logger *logrus.Logger, remoteAddr, path string) {
	logger.WithFields(logrus.Fields{
		"addr": remoteAddr,
		"path": path,
	}).Info("websocket opened")
}

// LogWebSocketDisconnect records a socket teardown, carrying the read
// error that ended the connection when there was one.
func LogWebSocketDisconnect(logger *logrus.Logger, remoteAddr, path string, err error) {
	fields := logrus.Fields{
		"addr": remoteAddr,
		"path": path,
	}
	if err != nil {
		fields["reason"] = err
	}
	logger.WithFields(fields).Info("websocket closed")
}
