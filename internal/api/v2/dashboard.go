package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/swarahealth/coughwatch-go/internal/datastore"
)

const (
	dashboardCacheTTL = 30 * time.Second
	dashboardCacheKey = "dashboard_stats"
	dashboardWindow   = 24 * time.Hour
)

func (c *Controller) initDashboardRoutes() {
	c.Group.GET("/dashboard/stats", c.GetDashboardStats, c.requireSession)
}

// GetDashboardStats returns the aggregate counters for the dashboard.
// Results are cached briefly; the counters need not be second-accurate.
func (c *Controller) GetDashboardStats(ctx echo.Context) error {
	if cached, found := c.dashboardCache.Get(dashboardCacheKey); found {
		if stats, ok := cached.(*datastore.DashboardStats); ok {
			return ctx.JSON(http.StatusOK, stats)
		}
	}

	stats, err := c.DS.GetDashboardStats(time.Now().Add(-dashboardWindow))
	if err != nil {
		return c.HandleDomainError(ctx, err, "Failed to compute dashboard stats")
	}

	if c.metrics != nil {
		c.metrics.SetDevicesOnline(stats.ActiveDevices)
	}

	c.dashboardCache.Set(dashboardCacheKey, stats, dashboardCacheTTL)
	return ctx.JSON(http.StatusOK, stats)
}
