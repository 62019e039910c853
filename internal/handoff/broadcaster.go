// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Adjudicator Contributors

package handoff

import (
	"context"
	"log/slog"
	"sync"

	"github.com/adjudicator/adjudicator/internal/resolve"
	"github.com/adjudicator/adjudicator/internal/wire"
)

// Phase names the protocol step a notice reports.
type Phase string

// Notice phases.
const (
	PhaseRequested Phase = "requested"
	PhaseResolved  Phase = "resolved"
	PhaseReopened  Phase = "reopened"
)

// Notice tells an actor about a hand-off they take part in.
type Notice struct {
	RequestID string
	Phase     Phase
	Kind      wire.Kind
	Recipient resolve.Actor
	Summary   resolve.Summary
}

// Notifier delivers notices. Delivery is best effort.
type Notifier interface {
	Notify(ctx context.Context, n Notice)
}

// noticeBuffer is the per-subscriber channel capacity.
const noticeBuffer = 32

// Broadcaster fans notices out to per-actor subscribers.
type Broadcaster struct {
	mu     sync.RWMutex
	subs   map[resolve.Actor][]chan Notice
	logger *slog.Logger
}

// NewBroadcaster creates a broadcaster that logs dropped notices to logger.
func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{subs: make(map[resolve.Actor][]chan Notice), logger: logger}
}

// Subscribe returns a channel receiving notices for actor.
func (b *Broadcaster) Subscribe(actor resolve.Actor) <-chan Notice {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Notice, noticeBuffer)
	b.subs[actor] = append(b.subs[actor], ch)
	return ch
}

// Unsubscribe removes and closes a subscription.
func (b *Broadcaster) Unsubscribe(actor resolve.Actor, ch <-chan Notice) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[actor]
	for i, sub := range subs {
		if sub == ch {
			b.subs[actor] = append(subs[:i], subs[i+1:]...)
			close(sub)
			return
		}
	}
}

// Close closes every subscription.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for actor, subs := range b.subs {
		for _, ch := range subs {
			close(ch)
		}
		delete(b.subs, actor)
	}
}

// Notify implements Notifier. A full subscriber misses the notice.
func (b *Broadcaster) Notify(ctx context.Context, n Notice) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs[n.Recipient] {
		select {
		case ch <- n:
		default:
			b.logger.WarnContext(ctx, "notice dropped: subscriber buffer full",
				"recipient", string(n.Recipient),
				"request_id", n.RequestID,
				"phase", string(n.Phase),
			)
		}
	}
}

// Notifiers fans each notice out to every notifier in order.
type Notifiers []Notifier

// Notify implements Notifier.
func (ns Notifiers) Notify(ctx context.Context, n Notice) {
	for _, notifier := range ns {
		if notifier != nil {
			notifier.Notify(ctx, n)
		}
	}
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, Notice) {}
