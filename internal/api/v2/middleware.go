package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/swarahealth/coughwatch-go/internal/datastore"
	"github.com/swarahealth/coughwatch-go/internal/security"
)

const (
	headerDeviceKey = "X-API-Key"

	contextKeyUser = "current_user"
)

// requireSession admits only requests carrying a valid session cookie and
// stores the resolved user on the echo context.
func (c *Controller) requireSession(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		user, err := c.currentUser(ctx)
		if err != nil {
			return c.HandleDomainError(ctx, err, "Authentication required")
		}
		ctx.Set(contextKeyUser, user)
		return next(ctx)
	}
}

// requireAdmin admits only sessions of admin accounts. It must run after
// requireSession.
func (c *Controller) requireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		user := sessionUser(ctx)
		if user == nil || user.Role != datastore.RoleAdmin {
			return c.HandleError(ctx, nil, "Admin privileges required", http.StatusForbidden)
		}
		return next(ctx)
	}
}

// requireDeviceKey admits only requests carrying the configured device
// pre-shared key.
func (c *Controller) requireDeviceKey(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		presented := ctx.Request().Header.Get(headerDeviceKey)
		if !security.VerifyDeviceKey(c.Settings.Security.DeviceAPIKey, presented) {
			return c.HandleError(ctx, nil, "Invalid API key", http.StatusUnauthorized)
		}
		return next(ctx)
	}
}

// sessionUser returns the user stored by requireSession, or nil.
func sessionUser(ctx echo.Context) *datastore.User {
	user, _ := ctx.Get(contextKeyUser).(*datastore.User)
	return user
}
