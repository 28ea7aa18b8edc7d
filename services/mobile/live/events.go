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
	"encoding/json"
	"fmt"
	"time"
)

// Event type tags on the wire. Symbolic strings, never numeric codes.
const (
	eventVariablesUpdated = "variables_updated"
	eventVariableChanged  = "variable_changed"
	eventThresholdBreach  = "threshold_breach"
	eventPipelineEvent    = "pipeline_event"
)

// Client message type tags.
const (
	messageJoin          = "join"
	messageAckAlert      = "ack_alert"
	messageGetVariables  = "get_variables"
	messageGetThresholds = "get_thresholds"
)

// VariablesUpdated is the debounced full-snapshot event on the
// variables:<group> channel.
type VariablesUpdated struct {
	ProductGroup string             `json:"product_group"`
	Version      int64              `json:"version"`
	Variables    map[string]float64 `json:"variables"`
	Timestamp    time.Time          `json:"timestamp"`
}

// VariableChanged is the immediate single-delta event on the
// variables:<group> channel.
type VariableChanged struct {
	ProductGroup string    `json:"product_group"`
	Version      int64     `json:"version"`
	Key          string    `json:"key"`
	Value        float64   `json:"value"`
	Timestamp    time.Time `json:"timestamp"`
}

// ThresholdBreach is the immediate breach event on the alerts:<group>
// channel. Breaches are delta detections: the event fires when a variable
// has moved at least Threshold away from its baseline, and carries enough
// state to display the move without another fetch.
type ThresholdBreach struct {
	ProductGroup string `json:"product_group"`
	AlertID      string `json:"alert_id"`
	VariableKey  string `json:"variable_key"`

	// Current is the variable value that triggered the breach.
	Current float64 `json:"current"`

	// Baseline is the centre value the move is measured from, normally the
	// value the model was published with.
	Baseline float64 `json:"baseline"`

	// Delta is Current - Baseline, signed.
	Delta float64 `json:"delta"`

	// Threshold is the per-variable band that was crossed: the breach
	// condition is |Delta| >= Threshold.
	Threshold float64 `json:"threshold"`

	Severity  string    `json:"severity"`
	Timestamp time.Time `json:"timestamp"`
}

// PipelineEvent is a data-pipeline status event on the alerts:<group>
// channel (e.g. a nightly model rebuild finishing).
type PipelineEvent struct {
	ProductGroup string    `json:"product_group"`
	EventID      string    `json:"event_id"`
	Stage        string    `json:"stage"`
	Status       string    `json:"status"`
	Message      string    `json:"message,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// MarshalJSON emits the event with its wire type tag. The pushed event types
// are a closed set of tagged variants; each serializes its own tag so a
// producer can never emit an untagged frame.
func (ev VariablesUpdated) MarshalJSON() ([]byte, error) {
	type alias VariablesUpdated
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{Type: eventVariablesUpdated, alias: alias(ev)})
}

// MarshalJSON emits the event with its wire type tag.
func (ev VariableChanged) MarshalJSON() ([]byte, error) {
	type alias VariableChanged
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{Type: eventVariableChanged, alias: alias(ev)})
}

// MarshalJSON emits the event with its wire type tag.
func (ev ThresholdBreach) MarshalJSON() ([]byte, error) {
	type alias ThresholdBreach
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{Type: eventThresholdBreach, alias: alias(ev)})
}

// MarshalJSON emits the event with its wire type tag.
func (ev PipelineEvent) MarshalJSON() ([]byte, error) {
	type alias PipelineEvent
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{Type: eventPipelineEvent, alias: alias(ev)})
}

// serverEvent is the decoded sum of the four pushed event kinds; exactly one
// field is non-nil.
type serverEvent struct {
	snapshot *VariablesUpdated
	delta    *VariableChanged
	breach   *ThresholdBreach
	pipeline *PipelineEvent
}

// envelope carries the type tag every wire message leads with.
type envelope struct {
	Type string `json:"type"`
}

// decodeEvent parses one pushed frame by its type tag.
func decodeEvent(data []byte) (*serverEvent, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode event envelope: %w", err)
	}

	switch env.Type {
	case eventVariablesUpdated:
		var ev VariablesUpdated
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		return &serverEvent{snapshot: &ev}, nil
	case eventVariableChanged:
		var ev VariableChanged
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		return &serverEvent{delta: &ev}, nil
	case eventThresholdBreach:
		var ev ThresholdBreach
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		return &serverEvent{breach: &ev}, nil
	case eventPipelineEvent:
		var ev PipelineEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		return &serverEvent{pipeline: &ev}, nil
	default:
		return nil, fmt.Errorf("unknown event type %q", env.Type)
	}
}

// joinMessage subscribes the connection to one channel,
// e.g. "variables:nh3_domestic".
type joinMessage struct {
	Type    string `json:"type"`
	Channel string `json:"channel"`
}

// ackAlertMessage acknowledges a breach alert. Advisory only: it suppresses
// re-display and changes no server-side state.
type ackAlertMessage struct {
	Type    string `json:"type"`
	Channel string `json:"channel"`
	AlertID string `json:"alert_id"`
}

// getVariablesMessage requests an immediate full snapshot for a group.
type getVariablesMessage struct {
	Type         string `json:"type"`
	ProductGroup string `json:"product_group"`
}

// getThresholdsMessage requests the current thresholds for a group.
type getThresholdsMessage struct {
	Type         string `json:"type"`
	ProductGroup string `json:"product_group"`
}
