package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

func (c *Controller) initNotificationRoutes() {
	c.Group.GET("/notifications/unread", c.ListUnreadNotifications, c.requireSession)
	c.Group.POST("/notifications/:id/acknowledge", c.AcknowledgeNotification, c.requireSession)
}

// ListUnreadNotifications returns all unacknowledged notifications, most
// recent first.
func (c *Controller) ListUnreadNotifications(ctx echo.Context) error {
	unread, count, err := c.Notifications.ListUnread(ctx.Request().Context())
	if err != nil {
		return c.HandleDomainError(ctx, err, "Failed to list notifications")
	}
	return ctx.JSON(http.StatusOK, map[string]any{
		"notifications": unread,
		"count":         count,
	})
}

// AcknowledgeNotification marks a notification as handled by the session
// user. The first acknowledger wins; later calls get a conflict response.
func (c *Controller) AcknowledgeNotification(ctx echo.Context) error {
	user := sessionUser(ctx)

	err := c.Notifications.Acknowledge(ctx.Request().Context(), ctx.Param("id"), user)
	if err != nil {
		return c.HandleDomainError(ctx, err, "Failed to acknowledge notification")
	}

	if c.metrics != nil {
		c.metrics.RecordNotificationAcknowledged()
	}
	return ctx.JSON(http.StatusOK, map[string]any{
		"acknowledged": true,
		"readBy":       user.ID,
	})
}
