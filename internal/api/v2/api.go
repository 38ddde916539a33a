// internal/api/v2/api.go
package api

import (
	"context"
	"crypto/rand"
	"log/slog"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/patrickmn/go-cache"

	"github.com/swarahealth/coughwatch-go/internal/conf"
	"github.com/swarahealth/coughwatch-go/internal/cough"
	"github.com/swarahealth/coughwatch-go/internal/datastore"
	"github.com/swarahealth/coughwatch-go/internal/device"
	"github.com/swarahealth/coughwatch-go/internal/errors"
	"github.com/swarahealth/coughwatch-go/internal/events"
	"github.com/swarahealth/coughwatch-go/internal/logging"
	"github.com/swarahealth/coughwatch-go/internal/notification"
	"github.com/swarahealth/coughwatch-go/internal/observability"
	"github.com/swarahealth/coughwatch-go/internal/security"
)

// Controller manages the API routes and handlers.
type Controller struct {
	Echo          *echo.Echo
	Group         *echo.Group
	DS            datastore.Interface
	Settings      *conf.Settings
	Coughs        *cough.Manager
	Devices       *device.Service
	Notifications *notification.Manager
	Auth          *security.Authenticator
	Sessions      *security.SessionManager
	Bus           *events.Bus

	metrics        *observability.Metrics
	dashboardCache *cache.Cache
	sseManager     *SSEManager
	apiLogger      *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates the API controller and registers all /api/v2 routes on the
// given echo instance.
func New(e *echo.Echo, ds datastore.Interface, settings *conf.Settings,
	coughs *cough.Manager, devices *device.Service, notifications *notification.Manager,
	auth *security.Authenticator, sessions *security.SessionManager,
	bus *events.Bus, metrics *observability.Metrics) *Controller {

	ctx, cancel := context.WithCancel(context.Background())

	c := &Controller{
		Echo:           e,
		DS:             ds,
		Settings:       settings,
		Coughs:         coughs,
		Devices:        devices,
		Notifications:  notifications,
		Auth:           auth,
		Sessions:       sessions,
		Bus:            bus,
		metrics:        metrics,
		dashboardCache: cache.New(dashboardCacheTTL, time.Minute),
		sseManager:     NewSSEManager(),
		apiLogger:      logging.ForService("api"),
		ctx:            ctx,
		cancel:         cancel,
	}

	c.Group = e.Group("/api/v2")
	c.initRoutes()
	c.startEventBridge()

	return c
}

func (c *Controller) initRoutes() {
	c.Group.GET("/health", c.GetHealth)

	c.initAuthRoutes()
	c.initCoughRoutes()
	c.initDeviceRoutes()
	c.initNotificationRoutes()
	c.initDashboardRoutes()
	c.initSSERoutes()
}

// Shutdown stops background goroutines and disconnects SSE clients.
func (c *Controller) Shutdown() {
	c.cancel()
	c.sseManager.CloseAll()
	c.wg.Wait()
}

// GetHealth returns a liveness response.
func (c *Controller) GetHealth(ctx echo.Context) error {
	return ctx.JSON(200, map[string]any{
		"status": "healthy",
		"time":   time.Now().UTC(),
	})
}

// ErrorResponse is the JSON envelope returned for every API error.
type ErrorResponse struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	Code          int    `json:"code"`
	CorrelationID string `json:"correlation_id"`
}

// NewErrorResponse creates a new API error response.
func NewErrorResponse(err error, message string, code int) *ErrorResponse {
	errorStr := message
	if err != nil {
		errorStr = err.Error()
	}
	return &ErrorResponse{
		Error:         errorStr,
		Message:       message,
		Code:          code,
		CorrelationID: generateCorrelationID(),
	}
}

// generateCorrelationID creates a short random identifier for error
// tracking in logs and responses.
func generateCorrelationID() string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	const length = 8

	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "ERR-RAND"
	}
	for i := range b {
		b[i] = charset[int(b[i])%len(charset)]
	}
	return string(b)
}

// HandleError writes the error envelope with an explicit status code.
func (c *Controller) HandleError(ctx echo.Context, err error, message string, code int) error {
	resp := NewErrorResponse(err, message, code)

	errorStr := message
	if err != nil {
		errorStr = err.Error()
	}
	c.apiLogger.Error("API error",
		"correlation_id", resp.CorrelationID,
		"message", message,
		"error", errorStr,
		"code", code,
		"path", ctx.Request().URL.Path,
		"method", ctx.Request().Method,
		"ip", ctx.RealIP())

	return ctx.JSON(code, resp)
}

// HandleDomainError writes the error envelope with the status derived
// from the error's category.
func (c *Controller) HandleDomainError(ctx echo.Context, err error, message string) error {
	return c.HandleError(ctx, err, message, errors.HTTPStatus(err))
}

func validationErrorf(format string, args ...any) error {
	return errors.Newf(format, args...).
		Component("api").
		Category(errors.CategoryValidation).
		Build()
}

// currentUser resolves the session cookie to a user record.
func (c *Controller) currentUser(ctx echo.Context) (*datastore.User, error) {
	userID, ok := c.Sessions.UserID(ctx)
	if !ok {
		return nil, errors.Newf("authentication required").
			Component("api").
			Category(errors.CategoryUnauthorized).
			Build()
	}
	user, err := c.DS.GetUser(userID)
	if err != nil {
		// A stale session referencing a deleted account is unauthorized,
		// not a server error.
		return nil, errors.Newf("authentication required").
			Component("api").
			Category(errors.CategoryUnauthorized).
			Build()
	}
	return user, nil
}
