package api

import (
	"errors"
	"net/http"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"

	"leaddesk-api/domain"
	"leaddesk-api/identity"
	"leaddesk-api/watch"
)

// streamTasks serves the live task feed over SSE. The session's approval gate
// runs alongside the stream: when approval is revoked the stream sends a
// terminal signout event and closes.
func streamTasks(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
		if token := c.QueryParam("token"); authHeader == "" && token != "" {
			// EventSource cannot set headers, so browsers pass the token in
			// the query string.
			authHeader = "Bearer " + token
		}
		userID, err := d.Auth.UserIDFromAuthHeader(authHeader)
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		ctx := c.Request().Context()
		session, err := d.Resolver.StartSession(ctx, userID, identity.SessionOptions{})
		if err != nil {
			return fail(c, err)
		}
		defer session.Close()

		p := identity.Principal(session.Account)
		partition := taskPartitionFor(p, c.QueryParam("managerId"))
		if partition == "" {
			return fail(c, domain.ErrNotAuthorized)
		}

		c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
		c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
		c.Response().Header().Set(echo.HeaderConnection, "keep-alive")
		c.Response().Header().Set("X-Accel-Buffering", "no")
		flusher, ok := c.Response().Writer.(http.Flusher)
		if !ok {
			return c.String(http.StatusInternalServerError, "stream unsupported")
		}

		sub := d.Watcher.Observe(watch.TasksKey(partition))
		defer sub.Close()

		for {
			tasks, err := d.Visibility.TasksFor(ctx, p, "", c.QueryParam("managerId"))
			if err != nil {
				c.Logger().Error(err)
				return err
			}
			if err := writeEvent(c, flusher, "tasks", tasks); err != nil {
				c.Logger().Error(err)
				return err
			}

			select {
			case <-ctx.Done():
				return nil
			case <-session.Done():
				serr := session.Err()
				if errors.Is(serr, domain.ErrNotApproved) || errors.Is(serr, domain.ErrAccountNotFound) {
					_ = writeEvent(c, flusher, "signout", errorResponse{Error: serr.Error()})
				}
				return nil
			case <-sub.Updates():
			}
		}
	}
}

// taskPartitionFor picks the manager partition a stream follows. An empty
// result means the principal has no live task view.
func taskPartitionFor(p domain.Principal, targetManagerID string) string {
	switch p.Role {
	case domain.RoleManager:
		return p.ID
	case domain.RoleClient:
		if p.LinkStatus != domain.LinkApproved {
			return ""
		}
		return p.LinkedManagerID
	case domain.RoleAdmin:
		return targetManagerID
	}
	return ""
}

func writeEvent(c echo.Context, flusher http.Flusher, event string, payload any) error {
	data, err := sonic.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := c.Response().Write([]byte("event: " + event + "\ndata: ")); err != nil {
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
