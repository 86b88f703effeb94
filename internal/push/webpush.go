// Orderbell - Order Event Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/orderbell

package push

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/tomtom215/orderbell/internal/config"
	"github.com/tomtom215/orderbell/internal/models"
)

// maxErrorBody caps how much of a rejection body is kept for logs.
const maxErrorBody = 512

// WebPushSender sends RFC 8291 encrypted messages signed with VAPID.
type WebPushSender struct {
	client     *http.Client
	publicKey  string
	privateKey string
	subscriber string
	ttl        int
	urgency    webpush.Urgency
}

// NewWebPushSender builds a sender from the push configuration.
func NewWebPushSender(cfg *config.PushConfig) *WebPushSender {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	urgency := webpush.Urgency(cfg.Urgency)
	if urgency == "" {
		urgency = webpush.UrgencyNormal
	}

	return &WebPushSender{
		client:     &http.Client{Timeout: timeout},
		publicKey:  cfg.VAPIDPublicKey,
		privateKey: cfg.VAPIDPrivateKey,
		// The library adds the mailto: scheme itself.
		subscriber: strings.TrimPrefix(cfg.Subscriber, "mailto:"),
		ttl:        cfg.TTL,
		urgency:    urgency,
	}
}

// Send implements Sender.
func (s *WebPushSender) Send(ctx context.Context, target models.PushDeliveryTarget, payload []byte) error {
	sub := &webpush.Subscription{
		Endpoint: target.Endpoint,
		Keys: webpush.Keys{
			Auth:   target.Auth,
			P256dh: target.P256dh,
		},
	}

	resp, err := webpush.SendNotificationWithContext(ctx, payload, sub, &webpush.Options{
		HTTPClient:      s.client,
		Subscriber:      s.subscriber,
		TTL:             s.ttl,
		Urgency:         s.urgency,
		VAPIDPublicKey:  s.publicKey,
		VAPIDPrivateKey: s.privateKey,
	})
	if err != nil {
		var urlErr *url.Error
		var netErr net.Error
		if ctx.Err() != nil || errors.As(err, &urlErr) || errors.As(err, &netErr) {
			return fmt.Errorf("%w: %v", ErrTransient, err)
		}
		// Key decoding and payload encryption failures: the subscription is unusable.
		return &SendError{Body: err.Error()}
	}
	defer resp.Body.Close()

	var body string
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		body = strings.TrimSpace(string(b))
	}
	return classifyStatus(resp.StatusCode, body)
}
