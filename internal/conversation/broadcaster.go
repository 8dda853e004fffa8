// ABOUTME: In-memory fan-out of engine updates to UI observers
// ABOUTME: Subscribers follow one peer or every peer; slow subscribers drop updates

package conversation

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/2389/coven-chat/internal/store"
)

const (
	// subscriberBufferSize is the channel buffer for each subscriber.
	subscriberBufferSize = 64

	// AllPeers subscribes to updates for every conversation.
	AllPeers = ""
)

// UpdateKind classifies an Update.
type UpdateKind string

const (
	UpdateMessages UpdateKind = "messages"
	UpdateTyping   UpdateKind = "typing"
	UpdateSession  UpdateKind = "session"
)

// Update is what UI observers receive.
type Update struct {
	Kind        UpdateKind
	PeerID      string
	Generation  uint64
	Change      *store.Change // UpdateMessages
	TypingPeers []string      // UpdateTyping
	Status      Status        // UpdateSession
}

// EventBroadcaster provides in-memory pub/sub for engine updates.
type EventBroadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]chan Update // peerID -> subID -> ch
	logger      *slog.Logger
}

// NewEventBroadcaster creates a broadcaster. Pass nil logger for default.
func NewEventBroadcaster(logger *slog.Logger) *EventBroadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventBroadcaster{
		subscribers: make(map[string]map[string]chan Update),
		logger:      logger.With("component", "broadcaster"),
	}
}

// Subscribe registers for updates about peerID, or every peer with AllPeers.
// The subscription is removed when ctx is cancelled.
func (b *EventBroadcaster) Subscribe(ctx context.Context, peerID string) (<-chan Update, string) {
	subID := uuid.New().String()
	ch := make(chan Update, subscriberBufferSize)

	b.mu.Lock()
	if _, ok := b.subscribers[peerID]; !ok {
		b.subscribers[peerID] = make(map[string]chan Update)
	}
	b.subscribers[peerID][subID] = ch
	b.mu.Unlock()

	b.logger.Debug("subscriber added", "peer_id", peerID, "sub_id", subID)

	go func() {
		<-ctx.Done()
		b.Unsubscribe(peerID, subID)
	}()

	return ch, subID
}

// Publish delivers u to subscribers of u.PeerID and of AllPeers.
// Non-blocking: updates are dropped for subscribers whose channels are full.
func (b *EventBroadcaster) Publish(u Update) {
	// Sends happen under the read lock so Unsubscribe cannot close a channel mid-send.
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, key := range []string{u.PeerID, AllPeers} {
		for _, ch := range b.subscribers[key] {
			select {
			case ch <- u:
			default:
				b.logger.Debug("dropped update for slow subscriber", "peer_id", u.PeerID, "kind", u.Kind)
			}
		}
		if u.PeerID == AllPeers {
			break
		}
	}
}

// Unsubscribe removes a subscription and closes its channel.
func (b *EventBroadcaster) Unsubscribe(peerID, subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.subscribers[peerID]
	if !ok {
		return
	}
	ch, exists := subs[subID]
	if !exists {
		return
	}

	delete(subs, subID)
	close(ch)
	if len(subs) == 0 {
		delete(b.subscribers, peerID)
	}

	b.logger.Debug("subscriber removed", "peer_id", peerID, "sub_id", subID)
}

// Close closes every subscriber channel.
func (b *EventBroadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for peerID, subs := range b.subscribers {
		for subID, ch := range subs {
			close(ch)
			delete(subs, subID)
		}
		delete(b.subscribers, peerID)
	}

	b.logger.Debug("broadcaster closed")
}
