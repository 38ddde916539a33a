package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/swarahealth/coughwatch-go/internal/device"
)

func (c *Controller) initDeviceRoutes() {
	c.Group.GET("/devices", c.ListDevices, c.requireSession)
	c.Group.GET("/devices/:deviceId", c.GetDevice, c.requireSession)
	c.Group.POST("/devices", c.CreateDevice, c.requireSession, c.requireAdmin)
	c.Group.PUT("/devices/:deviceId", c.UpdateDevice, c.requireSession, c.requireAdmin)
	c.Group.DELETE("/devices/:deviceId", c.DeleteDevice, c.requireSession, c.requireAdmin)

	c.Group.POST("/devices/heartbeat", c.DeviceHeartbeat, c.requireDeviceKey)
}

// ListDevices returns all registered devices.
func (c *Controller) ListDevices(ctx echo.Context) error {
	devices, err := c.Devices.List(ctx.Request().Context())
	if err != nil {
		return c.HandleDomainError(ctx, err, "Failed to list devices")
	}
	return ctx.JSON(http.StatusOK, devices)
}

// GetDevice returns one device by its external identifier.
func (c *Controller) GetDevice(ctx echo.Context) error {
	found, err := c.Devices.Get(ctx.Request().Context(), ctx.Param("deviceId"))
	if err != nil {
		return c.HandleDomainError(ctx, err, "Device not found")
	}
	return ctx.JSON(http.StatusOK, found)
}

// CreateDevice registers a new device.
func (c *Controller) CreateDevice(ctx echo.Context) error {
	var body struct {
		DeviceID string `json:"deviceId"`
		Name     string `json:"name"`
		Location string `json:"location"`
	}
	if err := ctx.Bind(&body); err != nil {
		return c.HandleError(ctx, err, "Invalid request body", http.StatusBadRequest)
	}

	created, err := c.Devices.Create(ctx.Request().Context(), device.CreateParams{
		DeviceID: body.DeviceID,
		Name:     body.Name,
		Location: body.Location,
	})
	if err != nil {
		return c.HandleDomainError(ctx, err, "Failed to register device")
	}
	return ctx.JSON(http.StatusCreated, created)
}

// UpdateDevice changes a device's name or location.
func (c *Controller) UpdateDevice(ctx echo.Context) error {
	var body struct {
		Name     *string `json:"name"`
		Location *string `json:"location"`
	}
	if err := ctx.Bind(&body); err != nil {
		return c.HandleError(ctx, err, "Invalid request body", http.StatusBadRequest)
	}

	updated, err := c.Devices.Update(ctx.Request().Context(), ctx.Param("deviceId"), device.UpdateParams{
		Name:     body.Name,
		Location: body.Location,
	})
	if err != nil {
		return c.HandleDomainError(ctx, err, "Failed to update device")
	}
	return ctx.JSON(http.StatusOK, updated)
}

// DeleteDevice removes a device registration.
func (c *Controller) DeleteDevice(ctx echo.Context) error {
	if err := c.Devices.Delete(ctx.Request().Context(), ctx.Param("deviceId")); err != nil {
		return c.HandleDomainError(ctx, err, "Failed to delete device")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// DeviceHeartbeat records a liveness ping from an edge device.
func (c *Controller) DeviceHeartbeat(ctx echo.Context) error {
	var body struct {
		DeviceID string `json:"deviceId"`
	}
	if err := ctx.Bind(&body); err != nil {
		return c.HandleError(ctx, err, "Invalid request body", http.StatusBadRequest)
	}
	if body.DeviceID == "" {
		return c.HandleError(ctx, nil, "deviceId is required", http.StatusBadRequest)
	}

	updated, err := c.Devices.Heartbeat(ctx.Request().Context(), body.DeviceID)
	if err != nil {
		return c.HandleDomainError(ctx, err, "Failed to record heartbeat")
	}
	return ctx.JSON(http.StatusOK, updated)
}
