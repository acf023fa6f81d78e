package service

import (
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/airdock-app/airdock/daemon/store"
)

// SessionEvent is one progress/status notification published by a live transfer.
type SessionEvent struct {
	SessionID        string
	Status           string
	TransferredBytes int64
	TotalBytes       int64
	SpeedBps         float64
	ETASeconds       float64
	Done             bool
}

// EventPublisher manages event subscriptions and broadcasts SessionEvents to matching
// subscribers without blocking on slow consumers.
type EventPublisher struct {
	mu            sync.RWMutex
	subscriptions map[string]*eventSubscription
	bufferSize    int
	nextID        int64
}

type eventSubscription struct {
	sessionIDFilter string
	channel         chan SessionEvent
}

// NewEventPublisher returns a publisher whose subscriber channels are buffered to bufferSize.
func NewEventPublisher(bufferSize int) *EventPublisher {
	return &EventPublisher{
		subscriptions: make(map[string]*eventSubscription),
		bufferSize:    bufferSize,
	}
}

// Subscribe returns a subscription ID and channel receiving events for sessionIDFilter, or
// every session's events when sessionIDFilter is empty.
func (p *EventPublisher) Subscribe(sessionIDFilter string) (string, <-chan SessionEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := atomic.AddInt64(&p.nextID, 1)
	subID := strconv.FormatInt(id, 10)
	sub := &eventSubscription{sessionIDFilter: sessionIDFilter, channel: make(chan SessionEvent, p.bufferSize)}
	p.subscriptions[subID] = sub
	return subID, sub.channel
}

// Unsubscribe closes and removes a subscription.
func (p *EventPublisher) Unsubscribe(subscriptionID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if sub, ok := p.subscriptions[subscriptionID]; ok {
		close(sub.channel)
		delete(p.subscriptions, subscriptionID)
	}
}

// Publish broadcasts ev to every subscription whose filter matches. A full subscriber channel
// drops the event rather than blocking the publisher.
func (p *EventPublisher) Publish(ev SessionEvent) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for _, sub := range p.subscriptions {
		if sub.sessionIDFilter != "" && sub.sessionIDFilter != ev.SessionID {
			continue
		}
		select {
		case sub.channel <- ev:
		default:
		}
	}
}

func sessionEventFromStore(s store.Session) SessionEvent {
	return SessionEvent{
		SessionID:        s.ID,
		Status:           s.Status,
		TransferredBytes: s.TransferredBytes,
		TotalBytes:       s.TotalBytes,
		Done:             s.Status == "success" || s.Status == "failed" || s.Status == "canceled",
	}
}
