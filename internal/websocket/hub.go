// Orderbell - Order Event Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/orderbell

package websocket

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/goccy/go-json"

	"github.com/tomtom215/orderbell/internal/logging"
	"github.com/tomtom215/orderbell/internal/metrics"
)

// ShutdownReason identifies why the hub is shutting down.
type ShutdownReason string

const (
	// ShutdownReasonContextCanceled is the normal graceful path (SIGTERM).
	ShutdownReasonContextCanceled ShutdownReason = "context_canceled"

	// ShutdownReasonContextDeadline may indicate a hung operation during shutdown.
	ShutdownReasonContextDeadline ShutdownReason = "context_deadline"
)

// Control events exchanged with clients.
const (
	EventPing = "ping"
	EventPong = "pong"
)

// ErrEmptyChannel is returned by Publish for a blank channel name.
var ErrEmptyChannel = errors.New("channel name is required")

// Envelope is the frame written to clients.
type Envelope struct {
	Channel string          `json:"channel"`
	Event   string          `json:"event"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type delivery struct {
	channel string
	frame   []byte
}

// Hub maintains the per-channel client sets and routes published events.
type Hub struct {
	channels   map[string]map[*Client]struct{}
	deliver    chan delivery
	Register   chan *Client
	Unregister chan *Client
	mu         sync.RWMutex
	count      int
}

// NewHub creates a new Hub
func NewHub() *Hub {
	return &Hub{
		channels:   make(map[string]map[*Client]struct{}),
		deliver:    make(chan delivery, 256),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
	}
}

// Publish queues event for every client on channel. It blocks only while the
// hub's delivery queue is full, bounded by ctx.
func (h *Hub) Publish(ctx context.Context, channel, event string, payload any) error {
	if channel == "" {
		return ErrEmptyChannel
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	return h.PublishRaw(ctx, channel, event, data)
}

// PublishRaw is Publish for an already encoded payload.
func (h *Hub) PublishRaw(ctx context.Context, channel, event string, data []byte) error {
	if channel == "" {
		return ErrEmptyChannel
	}
	frame, err := json.Marshal(Envelope{Channel: channel, Event: event, Data: data})
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	select {
	case h.deliver <- delivery{channel: channel, frame: frame}:
		return nil
	case <-ctx.Done():
		metrics.WSErrors.WithLabelValues("queue_full").Inc()
		return fmt.Errorf("hub queue full: %w", ctx.Err())
	}
}

// RunWithContext runs the hub until ctx is cancelled, then closes every
// client and returns ctx.Err().
//
// Lifecycle events are handled before deliveries so that a client
// registered before a publish always receives it.
func (h *Hub) RunWithContext(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.logGracefulShutdown(ctx)
			return ctx.Err()
		default:
		}

		select {
		case client := <-h.Register:
			h.register(client)
			continue
		case client := <-h.Unregister:
			h.unregister(client)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			h.logGracefulShutdown(ctx)
			return ctx.Err()
		case client := <-h.Register:
			h.register(client)
		case client := <-h.Unregister:
			h.unregister(client)
		case d := <-h.deliver:
			h.deliverToChannel(d)
		}
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	set, ok := h.channels[c.channel]
	if !ok {
		set = make(map[*Client]struct{})
		h.channels[c.channel] = set
	}
	set[c] = struct{}{}
	h.count++
	total := h.count
	h.mu.Unlock()

	metrics.WSConnections.Inc()
	logging.Info().Str("channel", c.channel).Int("total_clients", total).Msg("websocket client connected")
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	removed := h.removeLocked(c)
	total := h.count
	h.mu.Unlock()

	if removed {
		logging.Info().Str("channel", c.channel).Int("total_clients", total).Msg("websocket client disconnected")
	}
}

// removeLocked drops c and closes its send channel. Callers hold h.mu.
func (h *Hub) removeLocked(c *Client) bool {
	set, ok := h.channels[c.channel]
	if !ok {
		return false
	}
	if _, ok := set[c]; !ok {
		return false
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.channels, c.channel)
	}
	close(c.send)
	h.count--
	metrics.WSConnections.Dec()
	return true
}

// deliverToChannel hands the frame to each subscriber in client id order.
// Subscribers with a full buffer are dropped.
func (h *Hub) deliverToChannel(d delivery) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set := h.channels[d.channel]
	if len(set) == 0 {
		return
	}

	clients := make([]*Client, 0, len(set))
	for c := range set {
		clients = append(clients, c)
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i].id < clients[j].id })

	for _, c := range clients {
		select {
		case c.send <- d.frame:
			metrics.WSMessagesSent.Inc()
		default:
			metrics.WSErrors.WithLabelValues("slow_client").Inc()
			logging.Warn().Str("channel", d.channel).Uint64("client_id", c.id).Msg("websocket client too slow, dropping")
			h.removeLocked(c)
		}
	}
}

func (h *Hub) logGracefulShutdown(ctx context.Context) {
	clientCount := h.GetClientCount()
	h.closeAllClients()

	logging.Info().
		Str("component", "websocket-hub").
		Str("reason", string(getShutdownReason(ctx))).
		Int("clients_closed", clientCount).
		Msg("websocket hub stopped")
}

func getShutdownReason(ctx context.Context) ShutdownReason {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ShutdownReasonContextDeadline
	}
	return ShutdownReasonContextCanceled
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, set := range h.channels {
		for c := range set {
			h.removeLocked(c)
		}
	}
}

// GetClientCount returns the number of connected clients
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// ChannelClientCount returns how many clients listen on channel.
func (h *Hub) ChannelClientCount(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[channel])
}
