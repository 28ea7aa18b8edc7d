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
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianMobile/services/mobile/api"
	"github.com/AleutianAI/AleutianMobile/services/mobile/auth"
	"github.com/AleutianAI/AleutianMobile/services/mobile/live"
	"github.com/AleutianAI/AleutianMobile/services/mobile/queue"
	"github.com/AleutianAI/AleutianMobile/services/solver/bridge"
	"github.com/AleutianAI/AleutianMobile/services/solver/descriptor"
)

func seedModel(t *testing.T, s *Server) []byte {
	t.Helper()
	raw, err := descriptor.Encode(&descriptor.ModelDescriptor{
		VariableCount: 3,
		Routes: []descriptor.Route{
			{SellIndex: 0, BuyIndex: 2, FreightIndex: 1, TransitCost: 4.5, UnitCapacity: 1500},
		},
		Constraints: []descriptor.Constraint{
			{Kind: descriptor.ConstraintSupply, Bound: 12000, Coefficients: []descriptor.Coefficient{{Index: 0, Value: 1}}},
		},
		Objective: descriptor.ObjectiveMaxProfit,
	})
	require.NoError(t, err)

	s.Store().PutModel(&ModelRecord{
		ProductGroup:  "nh3_domestic",
		Version:       1,
		Descriptor:    raw,
		VariableOrder: []string{"sell_stl", "fr_don_stl", "nola_buy"},
		Variables:     map[string]float64{"sell_stl": 100, "fr_don_stl": 50, "nola_buy": 30},
	})
	return raw
}

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	s, err := New(Options{
		Validator:        auth.NewDevValidator(true),
		SnapshotDebounce: 50 * time.Millisecond,
	})
	require.NoError(t, err)
	ts := httptest.NewServer(s.Router())
	t.Cleanup(func() {
		s.Close()
		ts.Close()
	})
	return s, ts
}

func TestModelEndpoint(t *testing.T) {
	s, ts := newTestServer(t)
	raw := seedModel(t, s)

	client := api.NewClient(ts.URL, auth.DevToken)
	model, err := client.GetModel(context.Background(), "nh3_domestic")
	require.NoError(t, err)

	assert.Equal(t, raw, model.Descriptor, "descriptor survives the base64 round trip")
	assert.Equal(t, []float64{100, 50, 30}, model.VariableVector())

	_, err = client.GetModel(context.Background(), "petcoke")
	require.ErrorIs(t, err, api.ErrServerError, "unknown group is 404, not auth failure")
}

func TestAuthRequired(t *testing.T) {
	s, ts := newTestServer(t)
	seedModel(t, s)

	client := api.NewClient(ts.URL, "wrong-token")
	_, err := client.GetModel(context.Background(), "nh3_domestic")
	require.ErrorIs(t, err, api.ErrAuthRejected)
}

// TestDevTokenRejectedOutsideDevelopment wires a production-mode validator
// and verifies the dev token gets 401.
func TestDevTokenRejectedOutsideDevelopment(t *testing.T) {
	s, err := New(Options{Validator: auth.NewDevValidator(false)})
	require.NoError(t, err)
	ts := httptest.NewServer(s.Router())
	t.Cleanup(func() {
		s.Close()
		ts.Close()
	})
	seedModel(t, s)

	client := api.NewClient(ts.URL, auth.DevToken)
	_, err = client.GetModel(context.Background(), "nh3_domestic")
	require.ErrorIs(t, err, api.ErrAuthRejected)
}

func TestThresholdsEndpoint(t *testing.T) {
	s, ts := newTestServer(t)
	s.Store().PutThresholds(&api.ThresholdsResponse{
		ProductGroup: "nh3_domestic",
		Thresholds:   []api.Threshold{{VariableKey: "river_stage", Delta: 0.5, Severity: "critical"}},
	})

	client := api.NewClient(ts.URL, auth.DevToken)
	resp, err := client.GetThresholds(context.Background(), "nh3_domestic")
	require.NoError(t, err)
	require.Len(t, resp.Thresholds, 1)
	assert.Equal(t, 0.5, resp.Thresholds[0].Delta)

	// Unconfigured group yields an empty set.
	resp, err = client.GetThresholds(context.Background(), "petcoke")
	require.NoError(t, err)
	assert.Empty(t, resp.Thresholds)
}

// TestSolveUploadDeduplicates posts the same idempotency key twice and
// verifies a single server-side record, the queue-facing contract.
func TestSolveUploadDeduplicates(t *testing.T) {
	s, ts := newTestServer(t)

	client := api.NewClient(ts.URL, auth.DevToken)
	entry := &queue.QueuedSave{
		ID:             "e-1",
		Seq:            1,
		IdempotencyKey: "key-abc",
		State:          queue.StateInFlight,
		Payload: queue.SavePayload{
			DescriptorHash: "deadbeef",
			Solve:          &bridge.SolveResult{Status: bridge.StatusOptimal, Profit: 142500},
		},
	}

	require.NoError(t, client.Upload(context.Background(), entry))
	require.NoError(t, client.Upload(context.Background(), entry), "retry of the same key is a no-op")

	saves := s.Store().Saves()
	require.Len(t, saves, 1)
	assert.Equal(t, "key-abc", saves[0].IdempotencyKey)
}

// TestWebsocketDeltaAndDebouncedSnapshot drives the live client against the
// dev server: a SetVariable produces one immediate delta and, after the
// debounce window, one coalesced snapshot for multiple updates.
func TestWebsocketDeltaAndDebouncedSnapshot(t *testing.T) {
	s, ts := newTestServer(t)
	seedModel(t, s)

	deltas := make(chan live.VariableChanged, 16)
	snapshots := make(chan live.VariableSnapshot, 16)
	client, err := live.NewClient(live.Options{
		URL:           "ws" + strings.TrimPrefix(ts.URL, "http") + "/mobile/websocket",
		Token:         auth.DevToken,
		ProductGroups: []string{"nh3_domestic"},
		Handlers: live.Handlers{
			OnVariableChanged: func(c live.VariableChanged, _ live.VariableSnapshot) { deltas <- c },
			OnSnapshot:        func(sn live.VariableSnapshot) { snapshots <- sn },
		},
	})
	require.NoError(t, err)
	require.NoError(t, client.Connect(context.Background()))
	t.Cleanup(client.Close)

	// The subscribe handshake's get_variables yields the initial snapshot.
	select {
	case sn := <-snapshots:
		assert.Equal(t, int64(1), sn.Version)
	case <-time.After(5 * time.Second):
		t.Fatal("no initial snapshot")
	}

	require.NoError(t, s.SetVariable("nh3_domestic", "river_stage", 12.4))
	require.NoError(t, s.SetVariable("nh3_domestic", "river_stage", 12.6))

	// Both deltas arrive immediately.
	for _, want := range []float64{12.4, 12.6} {
		select {
		case d := <-deltas:
			assert.Equal(t, "river_stage", d.Key)
			assert.Equal(t, want, d.Value)
		case <-time.After(5 * time.Second):
			t.Fatal("missing delta")
		}
	}

	// One coalesced snapshot follows the debounce window.
	select {
	case sn := <-snapshots:
		assert.Equal(t, int64(3), sn.Version)
		assert.Equal(t, 12.6, sn.Variables["river_stage"])
	case <-time.After(5 * time.Second):
		t.Fatal("no debounced snapshot")
	}
	select {
	case sn := <-snapshots:
		t.Fatalf("expected a single coalesced snapshot, got a second one: v%d", sn.Version)
	case <-time.After(150 * time.Millisecond):
	}
}

// TestWebsocketBreachDelivery pushes a delta-detection breach and verifies
// the full move (current, baseline, delta, threshold) survives the wire.
func TestWebsocketBreachDelivery(t *testing.T) {
	s, ts := newTestServer(t)
	seedModel(t, s)

	breaches := make(chan live.ThresholdBreach, 4)
	client, err := live.NewClient(live.Options{
		URL:           "ws" + strings.TrimPrefix(ts.URL, "http") + "/mobile/websocket",
		Token:         auth.DevToken,
		ProductGroups: []string{"nh3_domestic"},
		Handlers: live.Handlers{
			OnBreach: func(ev live.ThresholdBreach) { breaches <- ev },
		},
	})
	require.NoError(t, err)
	require.NoError(t, client.Connect(context.Background()))
	t.Cleanup(client.Close)

	var got live.ThresholdBreach
	// Give the join messages time to land before broadcasting.
	require.Eventually(t, func() bool {
		s.PublishBreach(live.ThresholdBreach{
			ProductGroup: "nh3_domestic", AlertID: "a-1",
			VariableKey: "river_stage", Current: 13.4, Baseline: 14.2,
			Delta: -0.8, Threshold: 0.5, Severity: "critical",
		})
		select {
		case ev := <-breaches:
			got = ev
			return ev.AlertID == "a-1"
		default:
			return false
		}
	}, 5*time.Second, 50*time.Millisecond)

	assert.Equal(t, "river_stage", got.VariableKey)
	assert.Equal(t, 13.4, got.Current)
	assert.Equal(t, 14.2, got.Baseline)
	assert.Equal(t, -0.8, got.Delta)
	assert.Equal(t, 0.5, got.Threshold)
	assert.Equal(t, "critical", got.Severity)
}

func TestSetVariableValidation(t *testing.T) {
	s, _ := newTestServer(t)
	seedModel(t, s)

	require.Error(t, s.SetVariable("Bad Group", "river_stage", 1))
	require.Error(t, s.SetVariable("nh3_domestic", "Bad Key", 1))
	require.Error(t, s.SetVariable("petcoke", "river_stage", 1), "no model published")
}
