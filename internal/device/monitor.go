package device

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/swarahealth/coughwatch-go/internal/datastore"
	"github.com/swarahealth/coughwatch-go/internal/events"
	"github.com/swarahealth/coughwatch-go/internal/logging"
)

// Monitor periodically marks ONLINE devices without a recent heartbeat as
// OFFLINE and broadcasts each transition.
type Monitor struct {
	ds         datastore.Interface
	bus        *events.Bus
	staleAfter time.Duration
	interval   time.Duration
	logger     *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// NewMonitor creates a staleness monitor. staleAfter is how long a device
// may stay silent before being considered offline; interval is how often
// the sweep runs.
func NewMonitor(ds datastore.Interface, bus *events.Bus, staleAfter, interval time.Duration) *Monitor {
	return &Monitor{
		ds:         ds,
		bus:        bus,
		staleAfter: staleAfter,
		interval:   interval,
		logger:     logging.ForService("device-monitor"),
	}
}

// Start launches the sweep loop. The loop stops when ctx is cancelled or
// Stop is called.
func (m *Monitor) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})

	go func() {
		defer close(m.done)
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		m.logger.Info("device monitor started",
			"stale_after", m.staleAfter,
			"interval", m.interval)

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.Sweep()
			}
		}
	}()
}

// Stop terminates the sweep loop and waits for it to exit.
func (m *Monitor) Stop() {
	m.once.Do(func() {
		if m.cancel != nil {
			m.cancel()
			<-m.done
		}
	})
}

// Sweep flips every stale ONLINE device to OFFLINE. It returns the number
// of devices transitioned.
func (m *Monitor) Sweep() int {
	cutoff := time.Now().Add(-m.staleAfter)
	transitioned, err := m.ds.MarkStaleDevicesOffline(cutoff)
	if err != nil {
		m.logger.Error("staleness sweep failed", "error", err)
		return 0
	}

	for i := range transitioned {
		device := &transitioned[i]
		m.bus.Publish(events.TopicDeviceStatus, StatusPayload{
			DeviceID: device.DeviceID,
			Name:     device.Name,
			Status:   datastore.DeviceOffline,
		})
		m.logger.Info("device went offline", "device_id", device.DeviceID)
	}

	return len(transitioned)
}
