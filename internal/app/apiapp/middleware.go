package apiapp

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/nicklasc86/travelbot/internal/services/adminauth"
	httperrors "github.com/nicklasc86/travelbot/internal/transport/http/errors"
)

type httpRecorder interface {
	RecordHTTP(route, method, code string, took time.Duration)
}

type tokenValidator interface {
	ValidateAccessToken(ctx context.Context, accessToken string) (adminauth.Claims, error)
}

func ApplyMiddlewares(r chiRouter, log *zap.Logger, metrics httpRecorder) {
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(60 * time.Second))
	r.Use(requestLogger(log, metrics))
}

// RequireAdmin admits requests carrying a valid admin bearer token and puts its claims in the context.
func RequireAdmin(auth tokenValidator, log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if auth == nil {
				httperrors.Write(w, http.StatusServiceUnavailable, httperrors.APIError{
					Code:    "ADMIN_AUTH_UNAVAILABLE",
					Message: "admin auth is unavailable",
				})
				return
			}

			accessToken, ok := extractBearerToken(r.Header.Get("Authorization"))
			if !ok {
				httperrors.Write(w, http.StatusUnauthorized, httperrors.APIError{
					Code:    "UNAUTHORIZED",
					Message: "missing bearer token",
				})
				return
			}

			claims, err := auth.ValidateAccessToken(r.Context(), accessToken)
			if err != nil {
				switch {
				case errors.Is(err, adminauth.ErrUnavailable):
					httperrors.Write(w, http.StatusServiceUnavailable, httperrors.APIError{
						Code:    "ADMIN_AUTH_UNAVAILABLE",
						Message: "admin auth is not configured",
					})
				case errors.Is(err, adminauth.ErrUnauthorized), errors.Is(err, adminauth.ErrSessionExpired):
					if log != nil {
						log.Debug("admin token rejected", zap.Error(err))
					}
					httperrors.Write(w, http.StatusUnauthorized, httperrors.APIError{
						Code:    "UNAUTHORIZED",
						Message: "invalid access token",
					})
				default:
					if log != nil {
						log.Error("admin token validation failed", zap.Error(err))
					}
					httperrors.Write(w, http.StatusInternalServerError, httperrors.APIError{
						Code:    "INTERNAL_ERROR",
						Message: "failed to validate access token",
					})
				}
				return
			}

			if !strings.EqualFold(claims.Role, adminauth.RoleAdmin) {
				httperrors.Write(w, http.StatusForbidden, httperrors.APIError{
					Code:    "FORBIDDEN",
					Message: "admin role required",
				})
				return
			}

			next.ServeHTTP(w, r.WithContext(adminauth.WithClaims(r.Context(), claims)))
		})
	}
}

func extractBearerToken(value string) (string, bool) {
	parts := strings.SplitN(strings.TrimSpace(value), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return parts[1], true
}

func requestLogger(log *zap.Logger, metrics httpRecorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			took := time.Since(start)
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}

			if metrics != nil {
				metrics.RecordHTTP(routePattern(r), r.Method, strconv.Itoa(status), took)
			}
			if log != nil {
				log.Info("http_request",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", status),
					zap.Duration("duration", took),
					zap.String("request_id", chimiddleware.GetReqID(r.Context())),
				)
			}
		})
	}
}

// routePattern keeps metric label cardinality bounded by using the chi pattern instead of the raw path.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}

type chiRouter interface {
	Use(middlewares ...func(http.Handler) http.Handler)
}
