package events

import "time"

// ActorRole identifies who triggered a lifecycle transition.
type ActorRole string

const (
	ActorGuest    ActorRole = "guest"
	ActorProvider ActorRole = "provider"
	ActorSystem   ActorRole = "system"
)

// AppointmentTransitionedV1 is emitted exactly once per successful
// appointment state transition. The notification hub is its only consumer.
type AppointmentTransitionedV1 struct {
	EventID       string    `json:"event_id"`
	AppointmentID string    `json:"appointment_id"`
	SlotID        string    `json:"slot_id"`
	ProviderID    string    `json:"provider_id"`
	GuestID       string    `json:"guest_id"`
	FromStatus    string    `json:"from_status"`
	ToStatus      string    `json:"to_status"`
	ActorID       string    `json:"actor_id"`
	ActorRole     ActorRole `json:"actor_role"`
	Reason        string    `json:"reason,omitempty"`
	SlotStart     time.Time `json:"slot_start"`
	OccurredAt    time.Time `json:"occurred_at"`
}
