package notifications

import (
	"time"

	"github.com/google/uuid"
)

// Notification types, one per lifecycle transition.
const (
	TypeBooked    = "appointment_booked"
	TypeConfirmed = "appointment_confirmed"
	TypeCancelled = "appointment_cancelled"
	TypeCompleted = "appointment_completed"
)

// Notification is an append-only per-user message derived from a domain
// event. IsRead is the only mutable field.
type Notification struct {
	ID            uuid.UUID `json:"id"`
	UserID        uuid.UUID `json:"userId"`
	AppointmentID uuid.UUID `json:"appointmentId"`
	Type          string    `json:"type"`
	Message       string    `json:"message"`
	IsRead        bool      `json:"isRead"`
	CreatedAt     time.Time `json:"createdAt"`
}
