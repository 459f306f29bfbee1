package appointments

import (
	"time"

	"github.com/google/uuid"
)

// Status is the appointment lifecycle state.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusCancelled Status = "CANCELLED"
	StatusCompleted Status = "COMPLETED"
)

// transitions is the full lifecycle table. Absent entries are invalid;
// CANCELLED and COMPLETED are terminal.
var transitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusCancelled, StatusCompleted},
}

// CanTransition reports whether from → to is a legal lifecycle step.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transitions are accepted.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

// Appointment binds a guest's booking to exactly one slot. Cancelled rows
// are retained for audit and notification history, never deleted.
type Appointment struct {
	ID           uuid.UUID `json:"id"`
	SlotID       uuid.UUID `json:"slotId"`
	ProviderID   uuid.UUID `json:"providerId"`
	GuestID      uuid.UUID `json:"guestId"`
	PatientID    uuid.UUID `json:"patientId"`
	Status       Status    `json:"status"`
	Reason       string    `json:"reason"`
	CancelReason *string   `json:"cancelReason,omitempty"`
	SlotStart    time.Time `json:"slotStart"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}
