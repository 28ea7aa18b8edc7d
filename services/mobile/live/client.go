// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package live maintains the websocket subscription to the platform's
// per-product-group alert and variable channels.
//
// One connection carries two channels per subscribed group: alerts:<group>
// (threshold breaches, pipeline events) and variables:<group> (debounced
// snapshots, immediate single deltas). Snapshot replacement is guarded by a
// monotonic version; deltas apply in place unconditionally. Reconnects use
// bounded exponential backoff and always re-request a full snapshot before
// any state is trusted again.
package live

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Reconnect policy defaults.
const (
	DefaultBackoffBase  = 1 * time.Second
	DefaultBackoffCap   = 30 * time.Second
	DefaultMaxReconnect = 10
)

// Handlers receives pushed events. All callbacks run on the client's read
// goroutine: keep them fast or hand off. Nil callbacks are skipped.
type Handlers struct {
	// OnSnapshot fires after a full snapshot replaced the stored state
	// (stale versions are dropped before this fires).
	OnSnapshot func(snapshot VariableSnapshot)

	// OnVariableChanged fires after a single delta was applied in place;
	// snapshot is the post-apply state.
	OnVariableChanged func(change VariableChanged, snapshot VariableSnapshot)

	// OnBreach fires for un-acked threshold breaches.
	OnBreach func(event ThresholdBreach)

	// OnPipeline fires for pipeline status events.
	OnPipeline func(event PipelineEvent)

	// OnReconnect fires after a successful re-dial and re-subscribe;
	// attempt is the backoff attempt that succeeded. The offline queue's
	// flush hooks in here.
	OnReconnect func(attempt int)

	// OnTerminal fires once when the client gives up (reconnect budget
	// exhausted) and will not recover on its own.
	OnTerminal func(err error)
}

// Options configures a Client.
type Options struct {
	// URL is the websocket endpoint, e.g. "wss://host/mobile/websocket".
	URL string

	// Token authenticates the connection via the token query parameter.
	Token string

	// ProductGroups to subscribe; at least one is required.
	ProductGroups []string

	Handlers Handlers

	// Dialer overrides the websocket dialer (tests, custom transports).
	Dialer *websocket.Dialer

	Logger *slog.Logger

	// BackoffBase/BackoffCap/MaxReconnect bound the reconnect policy.
	// Zero values take the package defaults.
	BackoffBase  time.Duration
	BackoffCap   time.Duration
	MaxReconnect int
}

// Client is the live-update channel client.
//
// Thread Safety: safe for concurrent use. Event dispatch is serialized per
// product group; different groups update independently.
type Client struct {
	opts   Options
	logger *slog.Logger
	dialer *websocket.Dialer

	groups map[string]*groupState

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	connMu sync.Mutex
	conn   *websocket.Conn

	closeOnce sync.Once
}

// NewClient validates options and builds a disconnected client.
func NewClient(opts Options) (*Client, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("websocket URL is required")
	}
	if len(opts.ProductGroups) == 0 {
		return nil, fmt.Errorf("at least one product group is required")
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = DefaultBackoffBase
	}
	if opts.BackoffCap <= 0 {
		opts.BackoffCap = DefaultBackoffCap
	}
	if opts.MaxReconnect <= 0 {
		opts.MaxReconnect = DefaultMaxReconnect
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	dialer := opts.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	groups := make(map[string]*groupState, len(opts.ProductGroups))
	for _, g := range opts.ProductGroups {
		groups[g] = newGroupState(g)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		opts:   opts,
		logger: logger.With(slog.String("component", "live_client")),
		dialer: dialer,
		groups: groups,
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// Connect dials the endpoint, subscribes every configured group, and starts
// the read loop. The initial dial failure is returned synchronously; later
// transport drops are handled by the bounded reconnect loop.
func (c *Client) Connect(ctx context.Context) error {
	conn, err := c.dial(ctx)
	if err != nil {
		return fmt.Errorf("connect live channel: %w", err)
	}
	if err := c.subscribe(conn); err != nil {
		_ = conn.Close()
		return fmt.Errorf("subscribe: %w", err)
	}
	c.setConn(conn)

	c.wg.Add(1)
	go c.run()
	return nil
}

// Close tears the connection down and stops the reconnect loop. Idempotent.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.cancel()
		c.connMu.Lock()
		if c.conn != nil {
			_ = c.conn.Close()
		}
		c.connMu.Unlock()
		c.wg.Wait()
	})
}

// Snapshot returns a copy of the last-seen variable state for a group. The
// second return is false until the first snapshot or delta arrives.
func (c *Client) Snapshot(productGroup string) (VariableSnapshot, bool) {
	g, ok := c.groups[productGroup]
	if !ok {
		return VariableSnapshot{}, false
	}
	return g.current()
}

// AckAlert acknowledges a breach alert: re-display is suppressed locally and
// an advisory ack_alert is sent. No server-side state changes.
func (c *Client) AckAlert(productGroup, alertID string) error {
	g, ok := c.groups[productGroup]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownGroup, productGroup)
	}
	g.ack(alertID)
	return c.send(ackAlertMessage{
		Type:    messageAckAlert,
		Channel: "alerts:" + productGroup,
		AlertID: alertID,
	})
}

// RequestSnapshot asks the server for an immediate full snapshot.
func (c *Client) RequestSnapshot(productGroup string) error {
	if _, ok := c.groups[productGroup]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownGroup, productGroup)
	}
	return c.send(getVariablesMessage{Type: messageGetVariables, ProductGroup: productGroup})
}

// RequestThresholds asks the server for the group's current thresholds; the
// response arrives on the alerts channel.
func (c *Client) RequestThresholds(productGroup string) error {
	if _, ok := c.groups[productGroup]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownGroup, productGroup)
	}
	return c.send(getThresholdsMessage{Type: messageGetThresholds, ProductGroup: productGroup})
}

// =============================================================================
// Transport
// =============================================================================

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	endpoint := c.opts.URL + "?token=" + c.opts.Token
	conn, _, err := c.dialer.DialContext(ctx, endpoint, nil)
	return conn, err
}

// subscribe joins both channels for every group, then requests a full
// snapshot per group so no stale state survives across connections.
func (c *Client) subscribe(conn *websocket.Conn) error {
	for _, g := range c.opts.ProductGroups {
		if err := conn.WriteJSON(joinMessage{Type: messageJoin, Channel: "alerts:" + g}); err != nil {
			return err
		}
		if err := conn.WriteJSON(joinMessage{Type: messageJoin, Channel: "variables:" + g}); err != nil {
			return err
		}
		if err := conn.WriteJSON(getVariablesMessage{Type: messageGetVariables, ProductGroup: g}); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) setConn(conn *websocket.Conn) {
	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
}

// send writes one message on the current connection. WriteJSON is not safe
// for concurrent writers, so every send serializes on connMu.
func (c *Client) send(message interface{}) error {
	if c.ctx.Err() != nil {
		return ErrClientClosed
	}
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn == nil {
		return ErrNotConnected
	}
	return c.conn.WriteJSON(message)
}

// run is the read/reconnect loop. It owns the connection: read until the
// transport drops, re-dial with bounded backoff, re-subscribe, repeat. It
// exits on Close or when the reconnect budget is exhausted.
func (c *Client) run() {
	defer c.wg.Done()

	for {
		c.readLoop()
		if c.ctx.Err() != nil {
			return
		}

		attempt, err := c.reconnect()
		if err != nil {
			if c.ctx.Err() == nil && c.opts.Handlers.OnTerminal != nil {
				c.opts.Handlers.OnTerminal(err)
			}
			return
		}
		if c.opts.Handlers.OnReconnect != nil {
			c.opts.Handlers.OnReconnect(attempt)
		}
	}
}

func (c *Client) readLoop() {
	c.connMu.Lock()
	conn := c.conn
	c.connMu.Unlock()
	if conn == nil {
		return
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if c.ctx.Err() == nil {
				c.logger.Warn("live connection dropped", slog.String("error", err.Error()))
			}
			c.setConn(nil)
			return
		}
		c.dispatch(data)
	}
}

// reconnect re-dials with exponential backoff: base, 2x, 4x ... capped, for
// at most MaxReconnect attempts. Returns the attempt that succeeded, or
// ErrReconnectExhausted once the budget is spent.
func (c *Client) reconnect() (int, error) {
	delay := c.opts.BackoffBase
	for attempt := 1; attempt <= c.opts.MaxReconnect; attempt++ {
		select {
		case <-c.ctx.Done():
			return 0, c.ctx.Err()
		case <-time.After(delay):
		}

		conn, err := c.dial(c.ctx)
		if err == nil {
			if subErr := c.subscribe(conn); subErr == nil {
				c.setConn(conn)
				c.logger.Info("live connection restored", slog.Int("attempt", attempt))
				return attempt, nil
			}
			_ = conn.Close()
		} else {
			c.logger.Warn("reconnect attempt failed",
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()))
		}

		delay *= 2
		if delay > c.opts.BackoffCap {
			delay = c.opts.BackoffCap
		}
	}
	return 0, fmt.Errorf("%w: gave up after %d attempts", ErrReconnectExhausted, c.opts.MaxReconnect)
}

// =============================================================================
// Dispatch
// =============================================================================

func (c *Client) dispatch(data []byte) {
	event, err := decodeEvent(data)
	if err != nil {
		c.logger.Warn("dropping undecodable event", slog.String("error", err.Error()))
		return
	}

	switch {
	case event.snapshot != nil:
		c.handleSnapshot(event.snapshot)
	case event.delta != nil:
		c.handleDelta(event.delta)
	case event.breach != nil:
		c.handleBreach(event.breach)
	case event.pipeline != nil:
		if c.opts.Handlers.OnPipeline != nil {
			c.opts.Handlers.OnPipeline(*event.pipeline)
		}
	}
}

func (c *Client) handleSnapshot(ev *VariablesUpdated) {
	g, ok := c.groups[ev.ProductGroup]
	if !ok {
		c.logger.Debug("snapshot for unsubscribed group", slog.String("group", ev.ProductGroup))
		return
	}
	snapshot, applied := g.applySnapshot(ev)
	if !applied {
		c.logger.Debug("dropped stale snapshot",
			slog.String("group", ev.ProductGroup),
			slog.Int64("version", ev.Version))
		return
	}
	if c.opts.Handlers.OnSnapshot != nil {
		c.opts.Handlers.OnSnapshot(snapshot)
	}
}

func (c *Client) handleDelta(ev *VariableChanged) {
	g, ok := c.groups[ev.ProductGroup]
	if !ok {
		return
	}
	snapshot := g.applyDelta(ev)
	if c.opts.Handlers.OnVariableChanged != nil {
		c.opts.Handlers.OnVariableChanged(*ev, snapshot)
	}
}

func (c *Client) handleBreach(ev *ThresholdBreach) {
	g, ok := c.groups[ev.ProductGroup]
	if !ok {
		return
	}
	if !g.shouldDeliver(ev.AlertID) {
		c.logger.Debug("suppressed acked alert", slog.String("alert_id", ev.AlertID))
		return
	}
	if c.opts.Handlers.OnBreach != nil {
		c.opts.Handlers.OnBreach(*ev)
	}
}
