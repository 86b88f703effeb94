// Orderbell - Order Event Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/orderbell

package supervisor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/tomtom215/orderbell/internal/logging"
)

const defaultStopTimeout = 10 * time.Second

// HTTPServer is the subset of *http.Server the service drives.
type HTTPServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// HTTPServerService runs an HTTP server until its context is canceled, then
// shuts it down gracefully.
type HTTPServerService struct {
	server          HTTPServer
	shutdownTimeout time.Duration
}

// NewHTTPServerService wraps server.
func NewHTTPServerService(server HTTPServer, shutdownTimeout time.Duration) *HTTPServerService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = defaultStopTimeout
	}
	return &HTTPServerService{server: server, shutdownTimeout: shutdownTimeout}
}

// Serve implements suture.Service.
func (h *HTTPServerService) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := h.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil

	case <-ctx.Done():
		// ctx is already canceled; shut down on a fresh one.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), h.shutdownTimeout)
		defer cancel()

		if err := h.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown failed: %w", err)
		}
		<-errCh
		return ctx.Err()
	}
}

func (h *HTTPServerService) String() string {
	return "http-server"
}

// ContextHub is a websocket hub event loop.
type ContextHub interface {
	RunWithContext(ctx context.Context) error
}

// HubService runs the websocket hub.
type HubService struct {
	hub ContextHub
}

// NewHubService wraps hub.
func NewHubService(hub ContextHub) *HubService {
	return &HubService{hub: hub}
}

// Serve implements suture.Service.
func (s *HubService) Serve(ctx context.Context) error {
	return s.hub.RunWithContext(ctx)
}

func (s *HubService) String() string {
	return "websocket-hub"
}

// BackgroundRunner starts work that runs until stopped.
type BackgroundRunner interface {
	Start(ctx context.Context) error
	Stop()
}

// BridgeService keeps the realtime bridge forwarding for the lifetime of
// its context.
type BridgeService struct {
	bridge BackgroundRunner
}

// NewBridgeService wraps bridge.
func NewBridgeService(bridge BackgroundRunner) *BridgeService {
	return &BridgeService{bridge: bridge}
}

// Serve implements suture.Service.
func (s *BridgeService) Serve(ctx context.Context) error {
	if err := s.bridge.Start(ctx); err != nil {
		return fmt.Errorf("realtime bridge start failed: %w", err)
	}
	<-ctx.Done()
	s.bridge.Stop()
	return ctx.Err()
}

func (s *BridgeService) String() string {
	return "realtime-bridge"
}

// EventRouter is a blocking message router.
type EventRouter interface {
	Run(ctx context.Context) error
	Close() error
}

// RouterService runs the NATS consumer router.
type RouterService struct {
	router EventRouter
}

// NewRouterService wraps router.
func NewRouterService(router EventRouter) *RouterService {
	return &RouterService{router: router}
}

// Serve implements suture.Service. Run returns once ctx is canceled and
// in-flight handlers have finished.
func (s *RouterService) Serve(ctx context.Context) error {
	err := s.router.Run(ctx)
	if ctx.Err() != nil {
		if closeErr := s.router.Close(); closeErr != nil {
			logging.Warn().Err(closeErr).Msg("Event router close failed")
		}
		return ctx.Err()
	}
	if err != nil {
		return fmt.Errorf("event router stopped: %w", err)
	}
	return errors.New("event router stopped unexpectedly")
}

func (s *RouterService) String() string {
	return "event-router"
}
