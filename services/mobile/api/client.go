// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package api is the HTTP client for the platform's mobile endpoints:
// model fetch, threshold fetch, and solve-result upload.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/AleutianAI/AleutianMobile/services/mobile/queue"
)

// DefaultRequestTimeout bounds every API call.
const DefaultRequestTimeout = 30 * time.Second

// Client calls the mobile REST surface with bearer-token auth.
//
// # Thread Safety
//
// Client is safe for concurrent use.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// Client uploads queued saves during flush.
var _ queue.Uploader = (*Client)(nil)

// NewClient creates a client against the given base URL
// (e.g. "https://platform.example.com") authenticating with token.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: DefaultRequestTimeout,
		},
	}
}

// WithHTTPClient swaps the underlying HTTP client (custom transports,
// test doubles).
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// GetModel fetches the current model for a product group.
//
// Outputs:
//
//	*ModelResponse - Topology, variable order, and current values.
//	error - ErrAuthRejected on 401, ErrServerError (wrapped) otherwise.
func (c *Client) GetModel(ctx context.Context, productGroup string) (*ModelResponse, error) {
	endpoint := fmt.Sprintf("%s/api/v1/mobile/model?product_group=%s",
		c.baseURL, url.QueryEscape(productGroup))

	var model ModelResponse
	if err := c.getJSON(ctx, endpoint, &model); err != nil {
		return nil, fmt.Errorf("fetch model for %s: %w", productGroup, err)
	}
	return &model, nil
}

// GetThresholds fetches the current per-variable breach thresholds for a
// product group.
func (c *Client) GetThresholds(ctx context.Context, productGroup string) (*ThresholdsResponse, error) {
	endpoint := fmt.Sprintf("%s/api/v1/mobile/thresholds?product_group=%s",
		c.baseURL, url.QueryEscape(productGroup))

	var thresholds ThresholdsResponse
	if err := c.getJSON(ctx, endpoint, &thresholds); err != nil {
		return nil, fmt.Errorf("fetch thresholds for %s: %w", productGroup, err)
	}
	return &thresholds, nil
}

// Upload posts one queued save. The entry's idempotency key rides in the
// Idempotency-Key header so a server-side retry of the same key is a no-op.
//
// Outputs:
//
//	error - ErrAuthRejected on 401 (terminal, do not retry this token);
//	        ErrServerError (wrapped) on any other non-2xx.
func (c *Client) Upload(ctx context.Context, entry *queue.QueuedSave) error {
	body, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode queued save: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/v1/mobile/solves", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", entry.IdempotencyKey)
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("upload solve result: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return c.statusError(resp)
}

func (c *Client) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.token)
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return c.statusError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// statusError maps a non-2xx response to the client error taxonomy,
// preserving the server's JSON error message when it sent one.
func (c *Client) statusError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	message := ""
	var envelope errorResponse
	if err := json.Unmarshal(raw, &envelope); err == nil {
		message = envelope.Error
	}
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("%w: %s", ErrAuthRejected, message)
	}
	return fmt.Errorf("%w: status %d: %s", ErrServerError, resp.StatusCode, message)
}
