// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package server

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/AleutianMobile/pkg/validation"
	"github.com/AleutianAI/AleutianMobile/services/mobile/auth"
	"github.com/AleutianAI/AleutianMobile/services/mobile/live"
)

// deltaRate paces variable_changed pushes. Bursts beyond it are dropped;
// the debounced snapshot repairs any gap within one window.
const (
	deltaRate  = 50
	deltaBurst = 100
)

// wsClient is one connected websocket subscriber.
type wsClient struct {
	conn     *websocket.Conn
	identity *auth.Identity

	mu       sync.Mutex
	channels map[string]struct{}
}

func (cl *wsClient) subscribe(channel string) {
	cl.mu.Lock()
	cl.channels[channel] = struct{}{}
	cl.mu.Unlock()
}

func (cl *wsClient) subscribed(channel string) bool {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	_, ok := cl.channels[channel]
	return ok
}

// send serializes writes: gorilla connections allow one concurrent writer.
func (cl *wsClient) send(v interface{}) error {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	return cl.conn.WriteJSON(v)
}

// hub fans events out to subscribed websocket clients and owns the
// per-group snapshot debounce.
type hub struct {
	logger   *slog.Logger
	store    *Store
	debounce time.Duration
	limiter  *rate.Limiter

	mu       sync.Mutex
	clients  map[*wsClient]struct{}
	pending  map[string]*time.Timer
	shutdown bool
}

func newHub(store *Store, debounce time.Duration, logger *slog.Logger) *hub {
	return &hub{
		logger:   logger,
		store:    store,
		debounce: debounce,
		limiter:  rate.NewLimiter(rate.Limit(deltaRate), deltaBurst),
		clients:  make(map[*wsClient]struct{}),
		pending:  make(map[string]*time.Timer),
	}
}

func (h *hub) register(cl *wsClient) {
	h.mu.Lock()
	h.clients[cl] = struct{}{}
	h.mu.Unlock()
}

func (h *hub) unregister(cl *wsClient) {
	h.mu.Lock()
	delete(h.clients, cl)
	h.mu.Unlock()
	_ = cl.conn.Close()
}

// close stops pending snapshot timers and drops every connection.
func (h *hub) close() {
	h.mu.Lock()
	h.shutdown = true
	for _, timer := range h.pending {
		timer.Stop()
	}
	h.pending = make(map[string]*time.Timer)
	clients := make([]*wsClient, 0, len(h.clients))
	for cl := range h.clients {
		clients = append(clients, cl)
	}
	h.clients = make(map[*wsClient]struct{})
	h.mu.Unlock()

	for _, cl := range clients {
		_ = cl.conn.Close()
	}
}

// broadcast pushes payload to every client subscribed to the channel.
func (h *hub) broadcast(channel string, payload interface{}) {
	h.mu.Lock()
	clients := make([]*wsClient, 0, len(h.clients))
	for cl := range h.clients {
		clients = append(clients, cl)
	}
	h.mu.Unlock()

	for _, cl := range clients {
		if !cl.subscribed(channel) {
			continue
		}
		if err := cl.send(payload); err != nil {
			h.logger.Debug("dropping dead subscriber", slog.String("error", err.Error()))
			h.unregister(cl)
		}
	}
}

// publishDelta pushes an immediate variable_changed and schedules the
// coalesced snapshot behind it.
func (h *hub) publishDelta(ev live.VariableChanged) {
	if h.limiter.Allow() {
		h.broadcast("variables:"+ev.ProductGroup, ev)
	} else {
		h.logger.Warn("delta push rate-limited, snapshot will repair",
			slog.String("group", ev.ProductGroup),
			slog.String("key", ev.Key))
	}
	h.scheduleSnapshot(ev.ProductGroup)
}

// scheduleSnapshot arms the debounce timer for a group; further deltas
// inside the window coalesce into the one pending snapshot.
func (h *hub) scheduleSnapshot(productGroup string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.shutdown {
		return
	}
	if _, armed := h.pending[productGroup]; armed {
		return
	}
	h.pending[productGroup] = time.AfterFunc(h.debounce, func() {
		h.mu.Lock()
		delete(h.pending, productGroup)
		h.mu.Unlock()
		h.pushSnapshot(productGroup)
	})
}

// pushSnapshot broadcasts the group's current full state.
func (h *hub) pushSnapshot(productGroup string) {
	model, ok := h.store.Model(productGroup)
	if !ok {
		return
	}
	h.broadcast("variables:"+productGroup, live.VariablesUpdated{
		ProductGroup: productGroup,
		Version:      model.Version,
		Variables:    model.Variables,
		Timestamp:    model.UpdatedAt,
	})
}

// publishBreach pushes a threshold breach on the group's alert channel.
func (h *hub) publishBreach(ev live.ThresholdBreach) {
	h.broadcast("alerts:"+ev.ProductGroup, ev)
}

// publishPipeline pushes a pipeline status event on the alert channel.
func (h *hub) publishPipeline(ev live.PipelineEvent) {
	h.broadcast("alerts:"+ev.ProductGroup, ev)
}

// clientMessage is the inbound message union: join, ack_alert,
// get_variables, get_thresholds.
type clientMessage struct {
	Type         string `json:"type"`
	Channel      string `json:"channel"`
	AlertID      string `json:"alert_id"`
	ProductGroup string `json:"product_group"`
}

// serve runs the read loop for one connection until it drops.
func (h *hub) serve(cl *wsClient) {
	defer h.unregister(cl)

	for {
		var msg clientMessage
		if err := cl.conn.ReadJSON(&msg); err != nil {
			return
		}

		switch msg.Type {
		case "join":
			h.handleJoin(cl, msg.Channel)
		case "ack_alert":
			// Advisory: suppression is client-side, nothing changes here.
			h.logger.Debug("alert acknowledged",
				slog.String("alert_id", msg.AlertID),
				slog.String("user", cl.identity.UserID))
		case "get_variables":
			if model, ok := h.store.Model(msg.ProductGroup); ok {
				_ = cl.send(live.VariablesUpdated{
					ProductGroup: msg.ProductGroup,
					Version:      model.Version,
					Variables:    model.Variables,
					Timestamp:    model.UpdatedAt,
				})
			}
		case "get_thresholds":
			if t, ok := h.store.Thresholds(msg.ProductGroup); ok {
				_ = cl.send(map[string]interface{}{
					"type":          "thresholds",
					"product_group": t.ProductGroup,
					"thresholds":    t.Thresholds,
					"updated_at":    t.UpdatedAt,
				})
			}
		default:
			h.logger.Debug("ignoring unknown client message", slog.String("type", msg.Type))
		}
	}
}

func (h *hub) handleJoin(cl *wsClient, channel string) {
	kind, group, ok := strings.Cut(channel, ":")
	if !ok || (kind != "alerts" && kind != "variables") {
		h.logger.Warn("rejecting malformed channel", slog.String("channel", channel))
		return
	}
	if err := validation.ValidateProductGroup(group); err != nil {
		h.logger.Warn("rejecting channel join", slog.String("error", err.Error()))
		return
	}
	if !cl.identity.CanAccess(group) {
		h.logger.Warn("rejecting unauthorized channel join",
			slog.String("user", cl.identity.UserID),
			slog.String("group", group))
		return
	}
	cl.subscribe(channel)
}
