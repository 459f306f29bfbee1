package notifications

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/careloop/booking-platform/internal/events"
	"github.com/careloop/booking-platform/internal/observability/metrics"
	"github.com/careloop/booking-platform/pkg/logging"
)

const (
	shardCount    = 16
	defaultBuffer = 16
	persistWindow = 5 * time.Second
)

// Subscription is one live push channel for a user. Multiple subscriptions
// per user each receive an independent copy of every event.
type Subscription struct {
	C      <-chan Notification
	hub    *Hub
	userID uuid.UUID
	id     uint64
	ch     chan Notification
	once   sync.Once
}

// Close detaches the subscription from the hub.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.unsubscribe(s.userID, s.id)
	})
}

// shard holds the subscribers for a stripe of users. Striping keeps
// publish and subscribe for unrelated users off each other's locks.
type shard struct {
	mu   sync.RWMutex
	subs map[uuid.UUID]map[uint64]chan Notification
}

// Hub converts appointment domain events into persisted notifications and
// fans them out to live subscribers. Persistence is the durability
// boundary; the live push is best-effort and never blocks the publisher.
type Hub struct {
	store   Store
	counter *UnreadCounter
	email   EmailSender
	lookup  RecipientLookup
	metrics *metrics.HubMetrics
	logger  *logging.Logger
	buffer  int

	shards [shardCount]shard
	nextID atomic.Uint64
}

// RecipientLookup resolves a user ID to an email address for the optional
// email mirror. A nil lookup disables mirroring.
type RecipientLookup func(ctx context.Context, userID uuid.UUID) (address, name string, ok bool)

// HubOption tunes hub construction.
type HubOption func(*Hub)

// WithBuffer sets the per-subscriber channel capacity.
func WithBuffer(n int) HubOption {
	return func(h *Hub) {
		if n > 0 {
			h.buffer = n
		}
	}
}

// WithEmailMirror mirrors persisted notifications to email, best-effort.
func WithEmailMirror(sender EmailSender, lookup RecipientLookup) HubOption {
	return func(h *Hub) {
		h.email = sender
		h.lookup = lookup
	}
}

// WithMetrics attaches fan-out metrics.
func WithMetrics(m *metrics.HubMetrics) HubOption {
	return func(h *Hub) {
		h.metrics = m
	}
}

// NewHub creates a notification hub. counter may be nil.
func NewHub(store Store, counter *UnreadCounter, logger *logging.Logger, opts ...HubOption) *Hub {
	if store == nil {
		panic("notifications: store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	h := &Hub{
		store:   store,
		counter: counter,
		logger:  logger,
		buffer:  defaultBuffer,
	}
	for i := range h.shards {
		h.shards[i].subs = make(map[uuid.UUID]map[uint64]chan Notification)
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Hub) shardFor(userID uuid.UUID) *shard {
	f := fnv.New32a()
	_, _ = f.Write(userID[:])
	return &h.shards[f.Sum32()%shardCount]
}

// Subscribe registers a live channel for the user. Fan-out, not
// load-balancing: every subscription gets every event.
func (h *Hub) Subscribe(userID uuid.UUID) *Subscription {
	ch := make(chan Notification, h.buffer)
	sub := &Subscription{
		C:      ch,
		hub:    h,
		userID: userID,
		id:     h.nextID.Add(1),
		ch:     ch,
	}

	sh := h.shardFor(userID)
	sh.mu.Lock()
	if sh.subs[userID] == nil {
		sh.subs[userID] = make(map[uint64]chan Notification)
	}
	sh.subs[userID][sub.id] = ch
	sh.mu.Unlock()

	h.metrics.SubscriberConnected()
	h.logger.Debug("subscriber attached", "user_id", userID, "sub_id", sub.id)
	return sub
}

func (h *Hub) unsubscribe(userID uuid.UUID, id uint64) {
	sh := h.shardFor(userID)
	sh.mu.Lock()
	if subs := sh.subs[userID]; subs != nil {
		delete(subs, id)
		if len(subs) == 0 {
			delete(sh.subs, userID)
		}
	}
	sh.mu.Unlock()

	h.metrics.SubscriberDisconnected()
	h.logger.Debug("subscriber detached", "user_id", userID, "sub_id", id)
}

// Publish persists one notification per recipient, then attempts live
// delivery. Fire-and-forget: the state machine never sees an error here,
// and a crash after its commit but before persistence is reconciled by the
// polling API, not by this hub.
func (h *Hub) Publish(evt events.AppointmentTransitionedV1) {
	ctx, cancel := context.WithTimeout(context.Background(), persistWindow)
	defer cancel()

	for _, rcpt := range recipients(evt) {
		n := &Notification{
			UserID:        rcpt,
			AppointmentID: uuid.MustParse(evt.AppointmentID),
			Type:          typeFor(evt.ToStatus),
			Message:       messageFor(evt),
		}
		persisted, err := h.store.Insert(ctx, n)
		if err != nil {
			h.logger.Error("failed to persist notification",
				"error", err,
				"event_id", evt.EventID,
				"user_id", rcpt,
			)
			continue
		}
		if h.counter != nil {
			h.counter.OnCreated(ctx, rcpt)
		}

		h.deliver(*persisted)
		h.mirror(ctx, *persisted)
	}
}

// deliver pushes to every live subscription for the recipient without ever
// blocking: a full channel drops the event for that subscriber, who will
// recover it from the backlog on reconnect.
func (h *Hub) deliver(n Notification) {
	sh := h.shardFor(n.UserID)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	for id, ch := range sh.subs[n.UserID] {
		select {
		case ch <- n:
			h.metrics.ObserveDelivery("delivered")
		default:
			h.metrics.ObserveDelivery("dropped")
			h.logger.Warn("subscriber backpressure, dropping live event",
				"user_id", n.UserID,
				"sub_id", id,
				"notification_id", n.ID,
			)
		}
	}
}

func (h *Hub) mirror(ctx context.Context, n Notification) {
	if h.email == nil || h.lookup == nil {
		return
	}
	address, name, ok := h.lookup(ctx, n.UserID)
	if !ok {
		return
	}
	msg := EmailMessage{
		To:      address,
		ToName:  name,
		Subject: "Careloop appointment update",
		Body:    n.Message,
	}
	if err := h.email.Send(ctx, msg); err != nil {
		h.logger.Warn("email mirror failed", "error", err, "notification_id", n.ID)
	}
}

// SubscriberCount reports live subscriptions for a user.
func (h *Hub) SubscriberCount(userID uuid.UUID) int {
	sh := h.shardFor(userID)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	return len(sh.subs[userID])
}

// recipients picks who gets notified: the counterparty of the actor, or
// both parties for system-initiated transitions.
func recipients(evt events.AppointmentTransitionedV1) []uuid.UUID {
	guest := uuid.MustParse(evt.GuestID)
	provider := uuid.MustParse(evt.ProviderID)
	switch evt.ActorRole {
	case events.ActorGuest:
		return []uuid.UUID{provider}
	case events.ActorProvider:
		return []uuid.UUID{guest}
	default:
		return []uuid.UUID{guest, provider}
	}
}

func typeFor(toStatus string) string {
	switch toStatus {
	case "PENDING":
		return TypeBooked
	case "CONFIRMED":
		return TypeConfirmed
	case "CANCELLED":
		return TypeCancelled
	case "COMPLETED":
		return TypeCompleted
	default:
		return "appointment_updated"
	}
}

func messageFor(evt events.AppointmentTransitionedV1) string {
	when := evt.SlotStart.Format("Monday, January 2 at 3:04 PM")
	switch evt.ToStatus {
	case "PENDING":
		return fmt.Sprintf("New booking request for %s.", when)
	case "CONFIRMED":
		return fmt.Sprintf("Your appointment on %s has been confirmed.", when)
	case "CANCELLED":
		if evt.Reason != "" {
			return fmt.Sprintf("The appointment on %s was cancelled: %s", when, evt.Reason)
		}
		return fmt.Sprintf("The appointment on %s was cancelled.", when)
	case "COMPLETED":
		return fmt.Sprintf("Your appointment on %s was marked completed.", when)
	default:
		return fmt.Sprintf("Your appointment on %s was updated.", when)
	}
}
