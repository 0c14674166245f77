package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/example/appointment-scheduler/internal/application"
	"github.com/example/appointment-scheduler/internal/identity"
	"github.com/example/appointment-scheduler/internal/logging"
)

const (
	HeaderTenantID = "X-Tenant-ID"
	HeaderUserID   = "X-User-ID"
)

// Authenticator resolves a principal from request credentials.
type Authenticator interface {
	Authenticate(ctx context.Context, creds identity.Credentials) (application.Principal, error)
}

// RequireIdentity authenticates every request with the tenant and user
// headers plus a bearer API key, and stores the principal in the request context.
func RequireIdentity(auth Authenticator, logger *slog.Logger) echo.MiddlewareFunc {
	responder := newResponder(logger)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			creds := identity.Credentials{
				TenantID: req.Header.Get(HeaderTenantID),
				UserID:   req.Header.Get(HeaderUserID),
				Key:      bearerToken(req),
			}
			if strings.TrimSpace(creds.TenantID) == "" || strings.TrimSpace(creds.UserID) == "" || creds.Key == "" {
				return responder.writeError(c, http.StatusUnauthorized, errMissingCredentials)
			}

			principal, err := auth.Authenticate(req.Context(), creds)
			if err != nil {
				if errors.Is(err, application.ErrUnauthorized) {
					return responder.writeJSON(c, http.StatusUnauthorized, errorResponse{Message: "認証情報が無効です。"})
				}
				responder.loggerFor(c).ErrorContext(req.Context(), "authentication failed", "error", err)
				return responder.writeJSON(c, http.StatusInternalServerError, errorResponse{Message: "認証中にエラーが発生しました。"})
			}

			ctx := logging.WithTenant(ContextWithPrincipal(req.Context(), principal), principal.TenantID, principal.UserID)
			c.SetRequest(req.WithContext(ctx))
			return next(c)
		}
	}
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get(echo.HeaderAuthorization))
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}

// RequestLogger attaches a request scoped slog logger and logs start and
// completion of every request.
func RequestLogger(base *slog.Logger) echo.MiddlewareFunc {
	base = defaultLogger(base)
	var counter atomic.Uint64

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			id := counter.Add(1)
			logger := base.With(
				"request_id", id,
				"method", req.Method,
				"path", req.URL.Path,
			)

			ctx := ContextWithLogger(req.Context(), logger)
			c.SetRequest(req.WithContext(ctx))
			start := time.Now()
			logger.DebugContext(ctx, "request started")

			err := next(c)
			if err != nil {
				c.Error(err)
			}
			LoggerFromContext(c.Request().Context()).InfoContext(ctx, "request completed",
				"status", c.Response().Status,
				"duration", time.Since(start),
			)
			return nil
		}
	}
}
