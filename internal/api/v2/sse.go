// internal/api/v2/sse.go
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/swarahealth/coughwatch-go/internal/events"
)

const sseKeepaliveInterval = 30 * time.Second

// SSEClient represents one connected event stream consumer.
type SSEClient struct {
	ID      string
	Channel chan events.Message
	Done    chan struct{}
}

// SSEManager manages SSE connections and broadcasts.
type SSEManager struct {
	clients map[string]*SSEClient
	mutex   sync.RWMutex
}

// NewSSEManager creates a new SSE manager.
func NewSSEManager() *SSEManager {
	return &SSEManager{
		clients: make(map[string]*SSEClient),
	}
}

// AddClient registers a connected client.
func (m *SSEManager) AddClient(client *SSEClient) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.clients[client.ID] = client
}

// RemoveClient disconnects a client and releases its channels.
func (m *SSEManager) RemoveClient(clientID string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if client, exists := m.clients[clientID]; exists {
		close(client.Channel)
		close(client.Done)
		delete(m.clients, clientID)
	}
}

// Broadcast fans a bus message out to all connected clients. Slow clients
// miss messages rather than block the broadcast.
func (m *SSEManager) Broadcast(msg events.Message) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	for _, client := range m.clients {
		select {
		case client.Channel <- msg:
		default:
		}
	}
}

// ClientCount returns the number of connected clients.
func (m *SSEManager) ClientCount() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.clients)
}

// CloseAll disconnects every client, used during shutdown.
func (m *SSEManager) CloseAll() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	for id, client := range m.clients {
		close(client.Channel)
		close(client.Done)
		delete(m.clients, id)
	}
}

func (c *Controller) initSSERoutes() {
	c.Group.GET("/events/stream", c.ServeEventStream, c.requireSession)
}

// startEventBridge pumps bus messages into the SSE manager until the
// controller shuts down.
func (c *Controller) startEventBridge() {
	ch, unsubscribe := c.Bus.Subscribe()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer unsubscribe()
		for {
			select {
			case <-c.ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				if msg.Topic == events.TopicNotificationNew && c.metrics != nil {
					c.metrics.RecordNotificationCreated()
				}
				c.sseManager.Broadcast(msg)
			}
		}
	}()
}

// ServeEventStream streams bus messages to the client as named SSE
// events. The event name is the bus topic.
func (c *Controller) ServeEventStream(ctx echo.Context) error {
	w := ctx.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	w.Flush()

	client := &SSEClient{
		ID:      uuid.New().String(),
		Channel: make(chan events.Message, 16),
		Done:    make(chan struct{}),
	}
	c.sseManager.AddClient(client)
	defer c.sseManager.RemoveClient(client.ID)

	if c.metrics != nil {
		c.metrics.SetSSEClients(c.sseManager.ClientCount())
		defer func() { c.metrics.SetSSEClients(c.sseManager.ClientCount()) }()
	}

	c.apiLogger.Debug("SSE client connected",
		"client_id", client.ID,
		"total", c.sseManager.ClientCount())

	keepalive := time.NewTicker(sseKeepaliveInterval)
	defer keepalive.Stop()

	reqCtx := ctx.Request().Context()
	for {
		select {
		case <-reqCtx.Done():
			return nil
		case <-client.Done:
			return nil
		case <-keepalive.C:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				return nil
			}
			w.Flush()
		case msg, ok := <-client.Channel:
			if !ok {
				return nil
			}
			data, err := json.Marshal(msg.Payload)
			if err != nil {
				c.apiLogger.Error("failed to encode SSE payload",
					"topic", msg.Topic,
					"error", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", msg.Topic, data); err != nil {
				return nil
			}
			w.Flush()
		}
	}
}
