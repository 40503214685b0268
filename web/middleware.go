package web

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"library-web/library"
)

const identityKey = "identity"

func identityOf(c echo.Context) library.Identity {
	id, _ := c.Get(identityKey).(library.Identity)
	return id
}

// loadIdentity resolves the session cookie into the request identity. A broken
// or expired cookie is dropped and the request continues anonymously.
func (s *Server) loadIdentity(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := s.sessions.identity(c)
		switch {
		case err == nil:
			c.Set(identityKey, id)
		case !errors.Is(err, errNoSession):
			s.logger.Debug("dropping invalid session", "error", err)
			s.sessions.clear(c)
		}
		return next(c)
	}
}

func (s *Server) requireLogin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if identityOf(c).Anonymous() {
			return c.Redirect(http.StatusFound, "/login")
		}
		return next(c)
	}
}

// requireRole lets only callers with the given role through.
func (s *Server) requireRole(role library.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return s.requireLogin(func(c echo.Context) error {
			if err := identityOf(c).Require(role); err != nil {
				return c.String(http.StatusForbidden, "Access Denied")
			}
			return next(c)
		})
	}
}

func requestLogger(logger *slog.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogMethod:    true,
		LogURI:       true,
		LogRequestID: true,
		LogLatency:   true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			level := slog.LevelInfo
			if v.Status >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			attrs := []slog.Attr{
				slog.String("request_id", v.RequestID),
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
			}
			if id := identityOf(c); !id.Anonymous() {
				attrs = append(attrs, slog.Int64("user_id", id.UserID))
			}
			if v.Error != nil {
				attrs = append(attrs, slog.String("error", v.Error.Error()))
			}
			logger.LogAttrs(c.Request().Context(), level, "request", attrs...)
			return nil
		},
	})
}
