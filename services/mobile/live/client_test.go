// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package live

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTimeout = 5 * time.Second

// serverConn is one accepted websocket from the client under test.
type serverConn struct {
	conn     *websocket.Conn
	messages chan map[string]interface{}
}

func (sc *serverConn) push(t *testing.T, v interface{}) {
	t.Helper()
	require.NoError(t, sc.conn.WriteJSON(v))
}

func (sc *serverConn) next(t *testing.T) map[string]interface{} {
	t.Helper()
	select {
	case m := <-sc.messages:
		return m
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for client message")
		return nil
	}
}

// wsServer accepts connections and exposes them to the test in dial order.
type wsServer struct {
	server *httptest.Server
	conns  chan *serverConn
}

func newWSServer(t *testing.T) *wsServer {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	ws := &wsServer{conns: make(chan *serverConn, 8)}

	ws.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("token") == "" {
			http.Error(w, "missing token", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		sc := &serverConn{conn: conn, messages: make(chan map[string]interface{}, 32)}
		ws.conns <- sc
		for {
			var m map[string]interface{}
			if err := conn.ReadJSON(&m); err != nil {
				close(sc.messages)
				return
			}
			sc.messages <- m
		}
	}))
	t.Cleanup(ws.server.Close)
	return ws
}

func (ws *wsServer) url() string {
	return "ws" + strings.TrimPrefix(ws.server.URL, "http")
}

func (ws *wsServer) accept(t *testing.T) *serverConn {
	t.Helper()
	select {
	case sc := <-ws.conns:
		return sc
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for client connection")
		return nil
	}
}

// drainSubscribe consumes the join/join/get_variables handshake for n groups.
func drainSubscribe(t *testing.T, sc *serverConn, n int) []map[string]interface{} {
	t.Helper()
	msgs := make([]map[string]interface{}, 0, 3*n)
	for i := 0; i < 3*n; i++ {
		msgs = append(msgs, sc.next(t))
	}
	return msgs
}

type recorded struct {
	snapshots chan VariableSnapshot
	deltas    chan VariableChanged
	breaches  chan ThresholdBreach
	pipeline  chan PipelineEvent
	reconnect chan int
	terminal  chan error
}

func newRecorded() *recorded {
	return &recorded{
		snapshots: make(chan VariableSnapshot, 16),
		deltas:    make(chan VariableChanged, 16),
		breaches:  make(chan ThresholdBreach, 16),
		pipeline:  make(chan PipelineEvent, 16),
		reconnect: make(chan int, 16),
		terminal:  make(chan error, 1),
	}
}

func (r *recorded) handlers() Handlers {
	return Handlers{
		OnSnapshot:        func(s VariableSnapshot) { r.snapshots <- s },
		OnVariableChanged: func(c VariableChanged, _ VariableSnapshot) { r.deltas <- c },
		OnBreach:          func(e ThresholdBreach) { r.breaches <- e },
		OnPipeline:        func(e PipelineEvent) { r.pipeline <- e },
		OnReconnect:       func(attempt int) { r.reconnect <- attempt },
		OnTerminal:        func(err error) { r.terminal <- err },
	}
}

func startClient(t *testing.T, ws *wsServer, rec *recorded, groups ...string) *Client {
	t.Helper()
	client, err := NewClient(Options{
		URL:           ws.url(),
		Token:         "tkn-123",
		ProductGroups: groups,
		Handlers:      rec.handlers(),
		BackoffBase:   5 * time.Millisecond,
		BackoffCap:    20 * time.Millisecond,
	})
	require.NoError(t, err)
	require.NoError(t, client.Connect(context.Background()))
	t.Cleanup(client.Close)
	return client
}

func recv[T any](t *testing.T, ch chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for event")
		var zero T
		return zero
	}
}

// TestSubscribeHandshake verifies both channel joins plus a snapshot request
// per group, so no stale-data window exists after connecting.
func TestSubscribeHandshake(t *testing.T) {
	ws := newWSServer(t)
	startClient(t, ws, newRecorded(), "nh3_domestic")
	sc := ws.accept(t)

	msgs := drainSubscribe(t, sc, 1)
	assert.Equal(t, "join", msgs[0]["type"])
	assert.Equal(t, "alerts:nh3_domestic", msgs[0]["channel"])
	assert.Equal(t, "join", msgs[1]["type"])
	assert.Equal(t, "variables:nh3_domestic", msgs[1]["channel"])
	assert.Equal(t, "get_variables", msgs[2]["type"])
	assert.Equal(t, "nh3_domestic", msgs[2]["product_group"])
}

// TestSnapshotMonotonicity verifies an out-of-order older snapshot never
// overwrites a newer one.
func TestSnapshotMonotonicity(t *testing.T) {
	ws := newWSServer(t)
	rec := newRecorded()
	client := startClient(t, ws, rec, "nh3_domestic")
	sc := ws.accept(t)
	drainSubscribe(t, sc, 1)

	sc.push(t, VariablesUpdated{
		ProductGroup: "nh3_domestic", Version: 7,
		Variables: map[string]float64{"nola_buy": 330, "sell_stl": 405},
	})
	applied := recv(t, rec.snapshots)
	assert.Equal(t, int64(7), applied.Version)

	// Stale delivery: version 6 after 7 must be dropped, not merged.
	sc.push(t, map[string]interface{}{
		"type": "variables_updated", "product_group": "nh3_domestic",
		"version": 6, "variables": map[string]float64{"nola_buy": 999},
	})
	// A delta behind it proves the stale snapshot was processed and skipped.
	sc.push(t, VariableChanged{ProductGroup: "nh3_domestic", Version: 8, Key: "river_stage", Value: 12.4})
	recv(t, rec.deltas)

	snapshot, ok := client.Snapshot("nh3_domestic")
	require.True(t, ok)
	assert.Equal(t, int64(8), snapshot.Version)
	assert.Equal(t, 330.0, snapshot.Variables["nola_buy"], "stale snapshot must not overwrite")
	assert.Equal(t, 12.4, snapshot.Variables["river_stage"])
	assert.Empty(t, rec.snapshots, "no OnSnapshot for a dropped stale snapshot")
}

// TestDeltaAppliedUnconditionally verifies a delta lands even when its
// version trails the stored snapshot, and the stored version never regresses.
func TestDeltaAppliedUnconditionally(t *testing.T) {
	ws := newWSServer(t)
	rec := newRecorded()
	client := startClient(t, ws, rec, "nh3_domestic")
	sc := ws.accept(t)
	drainSubscribe(t, sc, 1)

	sc.push(t, VariablesUpdated{
		ProductGroup: "nh3_domestic", Version: 10,
		Variables: map[string]float64{"lock_hrs": 2},
	})
	recv(t, rec.snapshots)

	sc.push(t, VariableChanged{ProductGroup: "nh3_domestic", Version: 4, Key: "lock_hrs", Value: 9})
	recv(t, rec.deltas)

	snapshot, ok := client.Snapshot("nh3_domestic")
	require.True(t, ok)
	assert.Equal(t, 9.0, snapshot.Variables["lock_hrs"], "delta applies in place without waiting")
	assert.Equal(t, int64(10), snapshot.Version, "version never regresses")
}

// TestAckSuppressesRedisplay verifies acknowledgement is advisory: the same
// alert id is not re-delivered, but distinct alerts still are.
func TestAckSuppressesRedisplay(t *testing.T) {
	ws := newWSServer(t)
	rec := newRecorded()
	client := startClient(t, ws, rec, "nh3_domestic")
	sc := ws.accept(t)
	drainSubscribe(t, sc, 1)

	breach := ThresholdBreach{
		ProductGroup: "nh3_domestic", AlertID: "a-1",
		VariableKey: "river_stage", Current: 13.5, Baseline: 14.2,
		Delta: -0.7, Threshold: 0.5, Severity: "critical",
	}
	sc.push(t, breach)
	got := recv(t, rec.breaches)
	assert.Equal(t, "a-1", got.AlertID)
	assert.Equal(t, 13.5, got.Current)
	assert.Equal(t, 14.2, got.Baseline)
	assert.Equal(t, -0.7, got.Delta)
	assert.Equal(t, 0.5, got.Threshold)

	require.NoError(t, client.AckAlert("nh3_domestic", "a-1"))
	ack := sc.next(t)
	assert.Equal(t, "ack_alert", ack["type"])
	assert.Equal(t, "a-1", ack["alert_id"])

	sc.push(t, breach) // re-delivery of the acked alert
	sc.push(t, ThresholdBreach{ProductGroup: "nh3_domestic", AlertID: "a-2", VariableKey: "lock_hrs"})

	assert.Equal(t, "a-2", recv(t, rec.breaches).AlertID, "acked alert suppressed, fresh alert delivered")
}

// TestPipelineEventsDelivered verifies alerts-channel pipeline events reach
// the handler untouched.
func TestPipelineEventsDelivered(t *testing.T) {
	ws := newWSServer(t)
	rec := newRecorded()
	startClient(t, ws, rec, "petcoke")
	sc := ws.accept(t)
	drainSubscribe(t, sc, 1)

	sc.push(t, PipelineEvent{
		ProductGroup: "petcoke", EventID: "p-1",
		Stage: "model_rebuild", Status: "completed",
	})
	ev := recv(t, rec.pipeline)
	assert.Equal(t, "model_rebuild", ev.Stage)
}

// TestReconnectResubscribes drops the transport and verifies the client
// re-dials, re-joins, and re-requests a full snapshot before trusting state.
func TestReconnectResubscribes(t *testing.T) {
	ws := newWSServer(t)
	rec := newRecorded()
	startClient(t, ws, rec, "nh3_domestic")

	first := ws.accept(t)
	drainSubscribe(t, first, 1)
	require.NoError(t, first.conn.Close())

	second := ws.accept(t)
	msgs := drainSubscribe(t, second, 1)
	assert.Equal(t, "get_variables", msgs[2]["type"], "no state trusted before a fresh snapshot")

	attempt := recv(t, rec.reconnect)
	assert.GreaterOrEqual(t, attempt, 1)

	// The restored connection is live.
	sc := second
	sc.push(t, VariablesUpdated{ProductGroup: "nh3_domestic", Version: 1, Variables: map[string]float64{"barge_count": 14}})
	assert.Equal(t, 14.0, recv(t, rec.snapshots).Variables["barge_count"])
}

// TestReconnectExhausted verifies the client gives up with a terminal error
// instead of retrying forever.
func TestReconnectExhausted(t *testing.T) {
	ws := newWSServer(t)
	rec := newRecorded()
	client, err := NewClient(Options{
		URL:           ws.url(),
		Token:         "tkn-123",
		ProductGroups: []string{"nh3_domestic"},
		Handlers:      rec.handlers(),
		BackoffBase:   2 * time.Millisecond,
		BackoffCap:    4 * time.Millisecond,
		MaxReconnect:  3,
	})
	require.NoError(t, err)
	require.NoError(t, client.Connect(context.Background()))
	t.Cleanup(client.Close)

	sc := ws.accept(t)
	drainSubscribe(t, sc, 1)

	// Kill the server so every reconnect attempt fails.
	ws.server.CloseClientConnections()
	ws.server.Close()

	terminalErr := recv(t, rec.terminal)
	require.ErrorIs(t, terminalErr, ErrReconnectExhausted)
}

// TestGroupsIndependent verifies two groups keep separate snapshots.
func TestGroupsIndependent(t *testing.T) {
	ws := newWSServer(t)
	rec := newRecorded()
	client := startClient(t, ws, rec, "nh3_domestic", "sulphur_international")
	sc := ws.accept(t)
	drainSubscribe(t, sc, 2)

	sc.push(t, VariablesUpdated{ProductGroup: "nh3_domestic", Version: 3, Variables: map[string]float64{"nola_buy": 330}})
	sc.push(t, VariablesUpdated{ProductGroup: "sulphur_international", Version: 9, Variables: map[string]float64{"sell_stl": 120}})
	recv(t, rec.snapshots)
	recv(t, rec.snapshots)

	a, ok := client.Snapshot("nh3_domestic")
	require.True(t, ok)
	b, ok := client.Snapshot("sulphur_international")
	require.True(t, ok)
	assert.Equal(t, int64(3), a.Version)
	assert.Equal(t, int64(9), b.Version)
	assert.NotContains(t, a.Variables, "sell_stl")
}

// TestUnknownGroupRejected covers the configured-groups guard on sends.
func TestUnknownGroupRejected(t *testing.T) {
	ws := newWSServer(t)
	client := startClient(t, ws, newRecorded(), "nh3_domestic")
	ws.accept(t)

	require.ErrorIs(t, client.AckAlert("petcoke", "a-1"), ErrUnknownGroup)
	require.ErrorIs(t, client.RequestSnapshot("petcoke"), ErrUnknownGroup)
	require.ErrorIs(t, client.RequestThresholds("petcoke"), ErrUnknownGroup)
}
