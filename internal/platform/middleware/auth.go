package middleware

import (
	"context"
	"log/slog"
	"net/http"
)

// TokenHeader carries the shared-secret credential on every protocol request.
const TokenHeader = "X-Auth-Token"

// TokenVerifier checks an inbound shared-secret token against the trust
// registry. A nil identity with a nil error means the token is unknown.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, token string) (*ServerIdentity, error)
}

// ServerIdentity names the partner server a verified token belongs to.
type ServerIdentity struct {
	ServerID string
	Label    string
}

type contextKeyServer struct{}

// GetServer returns the authenticated partner for this request, or nil.
func GetServer(ctx context.Context) *ServerIdentity {
	s, _ := ctx.Value(contextKeyServer{}).(*ServerIdentity)
	return s
}

// RequireToken authenticates requests via the X-Auth-Token header. Missing or
// unverifiable tokens get a 401 with a JSON body; verified requests carry the
// partner identity in the context.
func RequireToken(verifier TokenVerifier, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token := r.Header.Get(TokenHeader)
			if token == "" {
				logger.WarnContext(ctx, "unauthorized request - missing token",
					"request_id", GetRequestID(ctx),
				)
				writeUnauthorized(w)
				return
			}

			server, err := verifier.VerifyToken(ctx, token)
			if err != nil {
				logger.ErrorContext(ctx, "token verification failed",
					"request_id", GetRequestID(ctx),
					"error", err,
				)
				writeUnauthorized(w)
				return
			}
			if server == nil {
				logger.WarnContext(ctx, "unauthorized request - unknown token",
					"request_id", GetRequestID(ctx),
				)
				writeUnauthorized(w)
				return
			}

			ctx = context.WithValue(ctx, contextKeyServer{}, server)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"X-Auth-Token not authorized"}`))
}
