// Orderbell - Order Event Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/orderbell

// Package api serves the Orderbell HTTP API on a chi router.
//
// Every response uses the {success, data, error, meta} envelope except the
// unread-count endpoint, which answers {success, count}. Routes:
//
//	GET    /health, /health/live, /health/ready   public
//	GET    /metrics                               public
//	GET    /notifications/unread-count            auth (also under /api/v1)
//	GET    /api/v1/notifications                  auth
//	POST   /api/v1/notifications/{id}/read        auth
//	POST   /api/v1/notifications/read-all         auth
//	POST   /api/v1/push/targets                   auth
//	DELETE /api/v1/push/targets/{id}              auth
//	POST   /api/v1/events/dispatch                events:dispatch
//	POST   /api/v1/events/notifications           events:dispatch
//	POST   /api/v1/events/admin                   events:broadcast
//	PUT    /api/v1/directory/users/{id}           directory:write
//	GET    /api/v1/ws                             realtime:subscribe
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/orderbell/internal/auth"
	"github.com/tomtom215/orderbell/internal/authz"
	"github.com/tomtom215/orderbell/internal/middleware"
)

// Router assembles handlers and middleware into an http.Handler.
type Router struct {
	handler       *Handler
	authn         *auth.Middleware
	authz         *authz.Middleware
	chiMiddleware *ChiMiddleware
}

// NewRouter creates a router.
func NewRouter(handler *Handler, authn *auth.Middleware, authzMw *authz.Middleware, chiMw *ChiMiddleware) *Router {
	if chiMw == nil {
		chiMw = NewChiMiddleware(nil)
	}
	return &Router{
		handler:       handler,
		authn:         authn,
		authz:         authzMw,
		chiMiddleware: chiMw,
	}
}

// Setup builds the route tree.
func (router *Router) Setup() http.Handler {
	h := router.handler
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.AccessLog)
	r.Use(chimiddleware.Recoverer)
	r.Use(router.chiMiddleware.CORS())
	r.Use(middleware.PrometheusMetrics)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		NewResponseWriter(w, r).NotFound("route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		NewResponseWriter(w, r).Error(http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
	})

	r.Route("/health", func(r chi.Router) {
		r.Get("/", h.Health)
		r.Get("/live", h.HealthLive)
		r.Get("/ready", h.HealthReady)
	})
	r.Handle("/metrics", promhttp.Handler())

	rateLimit := router.chiMiddleware.RateLimit()

	// Legacy badge path polled by the storefront.
	r.With(rateLimit, router.authn.Authenticate).Get("/notifications/unread-count", h.UnreadCount)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(rateLimit)

		r.With(
			router.authn.AuthenticateWebSocket,
			router.authz.Require(authz.ObjectRealtime, authz.ActionSubscribe),
		).Get("/ws", h.WebSocket)

		r.Group(func(r chi.Router) {
			r.Use(router.authn.Authenticate)

			r.Route("/notifications", func(r chi.Router) {
				r.Get("/", h.ListNotifications)
				r.Get("/unread-count", h.UnreadCount)
				r.Post("/read-all", h.MarkAllRead)
				r.Post("/{id}/read", h.MarkRead)
			})

			r.Route("/push/targets", func(r chi.Router) {
				r.Post("/", h.RegisterPushTarget)
				r.Delete("/{id}", h.DeletePushTarget)
			})

			r.Route("/events", func(r chi.Router) {
				dispatch := router.authz.Require(authz.ObjectEvents, authz.ActionDispatch)
				r.With(dispatch).Post("/dispatch", h.DispatchEvent)
				r.With(dispatch).Post("/notifications", h.EnqueueEvent)
				r.With(router.authz.Require(authz.ObjectEvents, authz.ActionBroadcast)).Post("/admin", h.AdminEvent)
			})

			r.With(router.authz.Require(authz.ObjectDirectory, authz.ActionWrite)).
				Put("/directory/users/{id}", h.UpsertUser)
		})
	})

	return r
}
