// Orderbell - Order Event Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/orderbell

package eventprocessor

import (
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

// Handler names registered on the router.
const (
	NotificationHandlerName = "notification-dispatcher"
	AdminHandlerName        = "admin-broadcaster"
)

// RouterComponents is a router with the order event consumers registered.
type RouterComponents struct {
	Router              *Router
	NotificationHandler *NotificationHandler
	AdminHandler        *AdminHandler
}

// RouterComponentsConfig wires handlers to their subscribers. A handler
// without a subscriber is not registered.
type RouterComponentsConfig struct {
	RouterConfig *RouterConfig

	NotificationHandler    *NotificationHandler
	NotificationSubscriber message.Subscriber

	AdminHandler    *AdminHandler
	AdminSubscriber message.Subscriber
}

// NewRouterComponents creates the router and registers the consumers.
func NewRouterComponents(cfg *RouterComponentsConfig, logger watermill.LoggerAdapter) (*RouterComponents, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: nil router components config", ErrInvalidConfig)
	}

	router, err := NewRouter(cfg.RouterConfig, logger)
	if err != nil {
		return nil, err
	}
	c := &RouterComponents{Router: router}

	if cfg.NotificationHandler != nil && cfg.NotificationSubscriber != nil {
		router.AddConsumerHandler(
			NotificationHandlerName,
			cfg.NotificationHandler.topic,
			cfg.NotificationSubscriber,
			cfg.NotificationHandler.Handle,
		)
		c.NotificationHandler = cfg.NotificationHandler
	}

	if cfg.AdminHandler != nil && cfg.AdminSubscriber != nil {
		router.AddConsumerHandler(
			AdminHandlerName,
			cfg.AdminHandler.topic,
			cfg.AdminSubscriber,
			cfg.AdminHandler.Handle,
		)
		c.AdminHandler = cfg.AdminHandler
	}

	if c.NotificationHandler == nil && c.AdminHandler == nil {
		return nil, fmt.Errorf("%w: no consumers registered", ErrInvalidConfig)
	}
	return c, nil
}
