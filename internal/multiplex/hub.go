// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package multiplex

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rigshell/agentbridge/internal/authgate"
	"github.com/rigshell/agentbridge/internal/events"
	"github.com/rigshell/agentbridge/internal/prefs"
	"github.com/rigshell/agentbridge/internal/procdetect"
	"github.com/rigshell/agentbridge/internal/scheduler"
	"github.com/rigshell/agentbridge/internal/sessionmgr"
)

const statusBroadcastInterval = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub owns every live client connection and the shared collaborators they
// dispatch commands against.
type Hub struct {
	gate      *authgate.Gate
	sessions  *sessionmgr.Manager
	schedules *scheduler.Scheduler
	prefs     *prefs.Store
	bus       events.Bus
	uploadDir string

	mu      sync.Mutex
	clients map[*Client]struct{}

	closeCh chan struct{}
}

// Config wires a Hub's dependencies.
type Config struct {
	Gate      *authgate.Gate
	Sessions  *sessionmgr.Manager
	Schedules *scheduler.Scheduler
	Prefs     *prefs.Store
	Bus       events.Bus
	UploadDir string
}

// New constructs a Hub and subscribes it to bus-wide broadcast events.
func New(cfg Config) *Hub {
	h := &Hub{
		gate:      cfg.Gate,
		sessions:  cfg.Sessions,
		schedules: cfg.Schedules,
		prefs:     cfg.Prefs,
		bus:       cfg.Bus,
		uploadDir: cfg.UploadDir,
		clients:   make(map[*Client]struct{}),
		closeCh:   make(chan struct{}),
	}

	if h.bus != nil {
		h.bus.Subscribe(scheduler.TypeScheduleRunComplete, h.onScheduleRunComplete)
		h.bus.Subscribe(scheduler.TypeScheduleUpdated, h.onScheduleUpdated)
		h.bus.Subscribe(prefs.TypeUpdated, h.onPreferencesUpdated)
	}

	go h.statusLoop()

	return h
}

// ServeWS upgrades the HTTP request to a WebSocket connection and runs the
// per-client state machine until it disconnects.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	c := newClient(h, conn)
	h.register(c)
	defer h.unregister(c)

	c.run()
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.detach()
	c.closeConn()
}

func (h *Hub) authenticatedClients() []*Client {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		if c.isAuthenticated() {
			out = append(out, c)
		}
	}
	return out
}

// Shutdown closes every live connection and stops the status broadcast
// loop; used on server shutdown.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		c.closeConn()
	}

	select {
	case <-h.closeCh:
	default:
		close(h.closeCh)
	}
}

func (h *Hub) statusLoop() {
	ticker := time.NewTicker(statusBroadcastInterval)
	defer ticker.Stop()
	for {
		select {
		case <-h.closeCh:
			return
		case <-ticker.C:
			h.broadcastStatus()
		}
	}
}

func (h *Hub) broadcastStatus() {
	sessions := h.sessions.List()
	externals, _ := h.sessions.DiscoverExternal()
	if externals == nil {
		externals = []procdetect.External{}
	}

	evt := event{Type: EvtSessionStatus, Sessions: sessions, ExternalSessions: externals}
	for _, c := range h.authenticatedClients() {
		c.writeEvent(evt)
	}
}

func (h *Hub) onScheduleRunComplete(_ context.Context, e events.Event) {
	evt := event{
		Type:       EvtScheduleRunComplete,
		ScheduleID: stringField(e.Payload, "scheduleId"),
		Name:       stringField(e.Payload, "name"),
		ExitCode:   intField(e.Payload, "exitCode"),
		Timestamp:  e.Payload["timestamp"],
	}
	h.broadcast(evt)
}

func (h *Hub) onScheduleUpdated(_ context.Context, _ events.Event) {
	h.broadcast(event{Type: EvtScheduleUpdated, Schedules: h.schedules.List()})
}

func (h *Hub) onPreferencesUpdated(_ context.Context, e events.Event) {
	h.broadcast(event{Type: EvtPreferencesUpdated, Preferences: e.Payload["preferences"]})
}

func (h *Hub) broadcast(evt event) {
	for _, c := range h.authenticatedClients() {
		c.writeEvent(evt)
	}
}

func stringField(payload map[string]interface{}, key string) string {
	if payload == nil {
		return ""
	}
	s, _ := payload[key].(string)
	return s
}

func intField(payload map[string]interface{}, key string) int {
	if payload == nil {
		return 0
	}
	switch v := payload[key].(type) {
	case int:
		return v
	default:
		return 0
	}
}
