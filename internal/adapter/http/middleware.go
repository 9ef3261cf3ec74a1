package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/fleetwatch/fleetwatch/internal/adapter/auth"
	"github.com/fleetwatch/fleetwatch/internal/config"
	"github.com/fleetwatch/fleetwatch/internal/logger"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

const (
	correlationHeader = "X-Correlation-ID"
	userHeader        = "X-User-ID"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func correlationMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(correlationHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(correlationHeader, id)
		next.ServeHTTP(w, r.WithContext(logger.WithCorrelationID(r.Context(), id)))
	})
}

func loggingMiddleware(log logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			log.Info(r.Context(), "http request", map[string]interface{}{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      rec.status,
				"duration_ms": time.Since(start).Milliseconds(),
				"remote_addr": r.RemoteAddr,
			})
		})
	}
}

func recoveryMiddleware(log logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					log.Error(r.Context(), "panic recovered", nil, map[string]interface{}{
						"panic": rec,
						"path":  r.URL.Path,
					})
					writeErrorResponse(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// authMiddleware resolves the actor from a bearer token, or from X-User-ID in
// header mode. /health stays anonymous.
func authMiddleware(mode string, tokens *auth.TokenService) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/health" {
				next.ServeHTTP(w, r)
				return
			}

			if mode == config.AuthModeHeader {
				actor := strings.TrimSpace(r.Header.Get(userHeader))
				next.ServeHTTP(w, r.WithContext(auth.WithActor(r.Context(), actor)))
				return
			}

			header := r.Header.Get("Authorization")
			token, found := strings.CutPrefix(header, "Bearer ")
			if !found || strings.TrimSpace(token) == "" {
				writeErrorResponse(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing bearer token")
				return
			}

			actor, err := tokens.ValidateAccessToken(strings.TrimSpace(token))
			if err != nil {
				writeError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithActor(r.Context(), actor)))
		})
	}
}
