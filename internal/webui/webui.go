// Copyright (C) 2025 Josh Simonot
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package webui serves the diagnostics dashboard: JSON state/status
// endpoints, a command-injection endpoint, and a websocket that
// streams every published domain.DerivedState. The REST surface is one
// http.ServeMux entry per API endpoint; /ws broadcasts to every
// connected gorilla/websocket client.
package webui

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"pitboss/internal/domain"
	"pitboss/internal/events"
	"pitboss/internal/grillctl"
	"pitboss/pkg/eventbus"
	"pitboss/pkg/logger"
)

// Dashboard serves the multi-device diagnostics surface.
type Dashboard struct {
	bus *eventbus.Bus
	log *logger.Logger
	mux *http.ServeMux
	sys http.Handler

	mu          sync.RWMutex
	controllers map[string]*grillctl.Controller

	clientsMu sync.Mutex
	clients   map[*websocket.Conn]bool
}

// New returns a Dashboard publishing off bus (may be nil) and serving
// sysmon (may be nil) at /sysmon.
func New(bus *eventbus.Bus, sysmon http.Handler) *Dashboard {
	d := &Dashboard{
		bus:         bus,
		log:         logger.New("WebUI"),
		sys:         sysmon,
		controllers: make(map[string]*grillctl.Controller),
		clients:     make(map[*websocket.Conn]bool),
	}
	d.mux = http.NewServeMux()
	d.mux.HandleFunc("/api/state", d.handleState)
	d.mux.HandleFunc("/api/status", d.handleState)
	d.mux.HandleFunc("/api/command", d.handleCommand)
	d.mux.HandleFunc("/ws", d.handleWS)
	if sysmon != nil {
		d.mux.Handle("/sysmon", sysmon)
	}
	return d
}

// ServeHTTP implements http.Handler so the dashboard can be Attached
// to a rootserv.RootServer.
func (d *Dashboard) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	d.mux.ServeHTTP(w, r)
}

// Register adds a device to the dashboard's registry.
func (d *Dashboard) Register(deviceID string, c *grillctl.Controller) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.controllers[deviceID] = c
}

// Unregister removes a device from the dashboard's registry.
func (d *Dashboard) Unregister(deviceID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.controllers, deviceID)
}

func (d *Dashboard) lookup(deviceID string) (*grillctl.Controller, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, ok := d.controllers[deviceID]
	return c, ok
}

type deviceStateJSON struct {
	DeviceID     string  `json:"device_id"`
	Connectivity string  `json:"connectivity"`
	Operation    string  `json:"operation"`
	Panic        bool    `json:"panic"`
	Message      string  `json:"message"`
	PowerW       float64 `json:"power_w"`
}

func toJSON(deviceID string, s domain.DerivedState) deviceStateJSON {
	conn := "online"
	switch s.Connectivity {
	case domain.Offline:
		conn = "offline"
	case domain.AuthFailing:
		conn = "auth_failing"
	}
	return deviceStateJSON{
		DeviceID:     deviceID,
		Connectivity: conn,
		Operation:    s.Operation.String(),
		Panic:        s.Panic,
		Message:      s.Message.String(),
		PowerW:       s.PowerW,
	}
}

// handleState serves every registered device's current DerivedState,
// or a single device's when ?device= is given.
func (d *Dashboard) handleState(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if id := r.URL.Query().Get("device"); id != "" {
		c, ok := d.lookup(id)
		if !ok {
			http.Error(w, "unknown device", http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(toJSON(id, c.State()))
		return
	}

	d.mu.RLock()
	out := make([]deviceStateJSON, 0, len(d.controllers))
	for id, c := range d.controllers {
		out = append(out, toJSON(id, c.State()))
	}
	d.mu.RUnlock()
	json.NewEncoder(w).Encode(out)
}

type commandRequest struct {
	DeviceID string `json:"device_id"`
	Command  string `json:"command"`
	Value    int    `json:"value,omitempty"`
	On       bool   `json:"on,omitempty"`
}

type commandResponse struct {
	Success bool   `json:"success"`
	Hex     string `json:"hex,omitempty"`
	Error   string `json:"error,omitempty"`
}

var commandKinds = map[string]grillctl.CommandKind{
	"set_temperature": grillctl.CmdSetTemperature,
	"set_light":       grillctl.CmdSetLight,
	"set_prime":       grillctl.CmdSetPrime,
	"set_power":       grillctl.CmdSetPower,
	"set_unit":        grillctl.CmdSetUnit,
}

func (d *Dashboard) handleCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	c, ok := d.lookup(req.DeviceID)
	if !ok {
		http.Error(w, "unknown device", http.StatusNotFound)
		return
	}
	kind, ok := commandKinds[req.Command]
	if !ok {
		http.Error(w, "unknown command", http.StatusBadRequest)
		return
	}

	res := c.SendCommand(r.Context(), grillctl.Command{Kind: kind, Value: req.Value, On: req.On})

	w.Header().Set("Content-Type", "application/json")
	resp := commandResponse{Success: res.Success, Hex: res.Hex}
	if res.Err != nil {
		resp.Error = res.Err.Error()
	}
	json.NewEncoder(w).Encode(resp)
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (d *Dashboard) handleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		d.log.Error("ws upgrade failed: %v", err)
		return
	}
	d.clientsMu.Lock()
	d.clients[ws] = true
	d.clientsMu.Unlock()

	defer func() {
		d.clientsMu.Lock()
		delete(d.clients, ws)
		d.clientsMu.Unlock()
		ws.Close()
	}()

	// drain and discard; the client only receives broadcasts.
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			break
		}
	}
}

func (d *Dashboard) broadcast(msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		d.log.Error("broadcast marshal failed: %v", err)
		return
	}
	d.clientsMu.Lock()
	defer d.clientsMu.Unlock()
	for ws := range d.clients {
		if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
			ws.Close()
			delete(d.clients, ws)
		}
	}
}

// Run subscribes to the eventbus and streams state updates to every
// connected websocket client until ctx is canceled.
func (d *Dashboard) Run(ctx context.Context) {
	if d.bus == nil {
		<-ctx.Done()
		return
	}
	sub, unsub := d.bus.Subscribe(ctx, events.TopicState, false)
	defer unsub()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub:
			if !ok {
				return
			}
			update, ok := ev.(events.StateUpdate)
			if !ok {
				continue
			}
			d.broadcast(toJSON(update.DeviceID, update.State))
		}
	}
}
