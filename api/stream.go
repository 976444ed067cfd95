package api

import (
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
)

const streamHeartbeat = 30 * time.Second

// streamBoard pushes the caller's board over server-sent events: one snapshot
// on connect, then one per store change. EventSource cannot set headers, so a
// token query parameter is accepted in place of the Authorization header.
func streamBoard(sessions *SessionManager, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
		if authHeader == "" {
			if token := c.QueryParam("token"); token != "" {
				authHeader = "Bearer " + token
			}
		}
		user, err := auth.UserFromAuthHeader(authHeader)
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		s, err := sessions.StoreFor(c.Request().Context(), user)
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusBadGateway, "task store unavailable")
		}

		c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
		c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
		c.Response().Header().Set(echo.HeaderConnection, "keep-alive")
		c.Response().Header().Set("X-Accel-Buffering", "no")
		flusher, ok := c.Response().Writer.(http.Flusher)
		if !ok {
			return c.String(http.StatusInternalServerError, "stream unsupported")
		}

		changes := make(chan struct{}, 1)
		unsubscribe := s.Subscribe(func() {
			select {
			case changes <- struct{}{}:
			default:
			}
		})
		defer unsubscribe()

		push := func() error {
			data, err := sonic.Marshal(s.BoardTasks())
			if err != nil {
				return err
			}
			if _, err := c.Response().Write([]byte("data: ")); err != nil {
				return err
			}
			if _, err := c.Response().Write(data); err != nil {
				return err
			}
			if _, err := c.Response().Write([]byte("\n\n")); err != nil {
				return err
			}
			flusher.Flush()
			return nil
		}

		if err := push(); err != nil {
			return nil
		}

		ctx := c.Request().Context()
		ticker := time.NewTicker(streamHeartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-changes:
				if err := push(); err != nil {
					return nil
				}
			case <-ticker.C:
				if _, err := c.Response().Write([]byte(": keep-alive\n\n")); err != nil {
					return nil
				}
				flusher.Flush()
			}
		}
	}
}
