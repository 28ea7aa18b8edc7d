// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package server is the development stand-in for the platform's mobile
// surface: the three REST endpoints plus the websocket channels, backed by
// an in-memory store. It exists so the client stack (api, queue, live,
// session) can run end-to-end without the production platform.
package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/AleutianAI/AleutianMobile/pkg/validation"
	"github.com/AleutianAI/AleutianMobile/services/mobile/api"
	"github.com/AleutianAI/AleutianMobile/services/mobile/auth"
	"github.com/AleutianAI/AleutianMobile/services/mobile/live"
	"github.com/AleutianAI/AleutianMobile/services/mobile/queue"
)

// DefaultSnapshotDebounce is the variables_updated coalescing window.
const DefaultSnapshotDebounce = 5 * time.Second

// Options configures the dev server.
type Options struct {
	// Validator authenticates REST bearer tokens and websocket token
	// query parameters.
	Validator auth.TokenValidator

	// SnapshotDebounce overrides the snapshot coalescing window (tests).
	SnapshotDebounce time.Duration

	Logger *slog.Logger
}

// Server is the development mobile backend.
//
// Thread Safety: safe for concurrent use.
type Server struct {
	router    *gin.Engine
	store     *Store
	hub       *hub
	validator auth.TokenValidator
	logger    *slog.Logger
	upgrader  websocket.Upgrader
}

// New builds the server and mounts its routes.
func New(opts Options) (*Server, error) {
	if opts.Validator == nil {
		return nil, fmt.Errorf("token validator must not be nil")
	}
	if opts.SnapshotDebounce <= 0 {
		opts.SnapshotDebounce = DefaultSnapshotDebounce
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "mobile_server"))

	store := NewStore()
	s := &Server{
		store:     store,
		hub:       newHub(store, opts.SnapshotDebounce, logger),
		validator: opts.Validator,
		logger:    logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	v1 := router.Group("/api/v1/mobile")
	v1.Use(authMiddleware(s.validator))
	{
		v1.GET("/model", s.handleGetModel)
		v1.GET("/thresholds", s.handleGetThresholds)
		v1.POST("/solves", s.handlePostSolve)
	}
	router.GET("/mobile/websocket", s.handleWebsocket)

	s.router = router
	return s, nil
}

// Router exposes the handler for http.Server or httptest.
func (s *Server) Router() http.Handler { return s.router }

// Store exposes the backing store for seeding dev data.
func (s *Server) Store() *Store { return s.store }

// Close drops all websocket subscribers.
func (s *Server) Close() { s.hub.close() }

// =============================================================================
// Dev data feed
// =============================================================================

// SetVariable updates one variable: the model version bumps, an immediate
// variable_changed pushes, and the debounced snapshot follows.
func (s *Server) SetVariable(productGroup, key string, value float64) error {
	if err := validation.ValidateProductGroup(productGroup); err != nil {
		return err
	}
	if err := validation.ValidateVariableKey(key); err != nil {
		return err
	}
	version, ok := s.store.SetVariable(productGroup, key, value)
	if !ok {
		return fmt.Errorf("no model published for %s", productGroup)
	}
	s.hub.publishDelta(live.VariableChanged{
		ProductGroup: productGroup,
		Version:      version,
		Key:          key,
		Value:        value,
		Timestamp:    time.Now().UTC(),
	})
	return nil
}

// PublishBreach pushes a threshold breach to the group's alert channel.
func (s *Server) PublishBreach(ev live.ThresholdBreach) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	s.hub.publishBreach(ev)
}

// PublishPipeline pushes a pipeline event to the group's alert channel.
func (s *Server) PublishPipeline(ev live.PipelineEvent) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	s.hub.publishPipeline(ev)
}

// =============================================================================
// REST handlers
// =============================================================================

func (s *Server) handleGetModel(c *gin.Context) {
	group := c.Query("product_group")
	if err := validation.ValidateProductGroup(group); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	identity := getIdentity(c)
	if identity == nil || !identity.CanAccess(group) {
		c.JSON(http.StatusForbidden, gin.H{"error": "product group not permitted"})
		return
	}
	model, ok := s.store.Model(group)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("no model for %s", group)})
		return
	}
	c.JSON(http.StatusOK, model)
}

func (s *Server) handleGetThresholds(c *gin.Context) {
	group := c.Query("product_group")
	if err := validation.ValidateProductGroup(group); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	identity := getIdentity(c)
	if identity == nil || !identity.CanAccess(group) {
		c.JSON(http.StatusForbidden, gin.H{"error": "product group not permitted"})
		return
	}
	thresholds, ok := s.store.Thresholds(group)
	if !ok {
		// No configured thresholds is an empty set, not an error.
		thresholds = &api.ThresholdsResponse{ProductGroup: group, Thresholds: []api.Threshold{}}
	}
	c.JSON(http.StatusOK, thresholds)
}

// handlePostSolve receives one queued save. Repeats of an idempotency key
// are acknowledged without creating a second record.
func (s *Server) handlePostSolve(c *gin.Context) {
	var entry queue.QueuedSave
	if err := c.ShouldBindJSON(&entry); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed save payload"})
		return
	}
	if key := c.GetHeader("Idempotency-Key"); key != "" {
		entry.IdempotencyKey = key
	}
	if entry.IdempotencyKey == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "idempotency key is required"})
		return
	}
	if err := entry.Payload.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if created := s.store.RecordSave(&entry); !created {
		s.logger.Debug("duplicate save acknowledged", slog.String("idempotency_key", entry.IdempotencyKey))
		c.JSON(http.StatusOK, gin.H{"status": "duplicate", "idempotency_key": entry.IdempotencyKey})
		return
	}
	s.logger.Info("solve result received",
		slog.String("idempotency_key", entry.IdempotencyKey),
		slog.Uint64("seq", entry.Seq))
	c.JSON(http.StatusCreated, gin.H{"status": "created", "idempotency_key": entry.IdempotencyKey})
}

// =============================================================================
// Websocket
// =============================================================================

// handleWebsocket authenticates via the token query parameter (mobile
// websocket stacks cannot set headers) and hands the connection to the hub.
func (s *Server) handleWebsocket(c *gin.Context) {
	identity, err := s.validator.Validate(c.Request.Context(), c.Query("token"))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	cl := &wsClient{
		conn:     conn,
		identity: identity,
		channels: make(map[string]struct{}),
	}
	s.hub.register(cl)
	s.logger.Info("websocket subscriber connected", slog.String("user", identity.UserID))
	go s.hub.serve(cl)
}
