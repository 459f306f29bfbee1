package appointments

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemorySlot is the slot view the in-memory repository needs.
type MemorySlot struct {
	ID         uuid.UUID
	ProviderID uuid.UUID
	Start      time.Time
	Retired    bool
}

// InMemoryRepository is a mutex-guarded Repository used in tests and local
// development. Its Reserve and UpdateStatus mirror the conditional-write
// semantics of the Postgres implementation.
type InMemoryRepository struct {
	mu    sync.Mutex
	slots map[uuid.UUID]MemorySlot
	appts map[uuid.UUID]*Appointment
}

// NewInMemoryRepository creates an empty in-memory repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		slots: make(map[uuid.UUID]MemorySlot),
		appts: make(map[uuid.UUID]*Appointment),
	}
}

// AddSlot registers a slot the repository can reserve against.
func (r *InMemoryRepository) AddSlot(slot MemorySlot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.slots[slot.ID] = slot
}

func (r *InMemoryRepository) Reserve(_ context.Context, slotID, guestID, patientID uuid.UUID, reason string, now time.Time) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	slot, ok := r.slots[slotID]
	if !ok {
		return nil, ErrSlotNotFound
	}
	if slot.Retired {
		return nil, ErrSlotUnavailable
	}
	if !slot.Start.After(now) {
		return nil, ErrSlotInPast
	}
	for _, a := range r.appts {
		if a.SlotID == slotID && a.Status != StatusCancelled {
			return nil, ErrSlotUnavailable
		}
	}

	appt := &Appointment{
		ID:         uuid.New(),
		SlotID:     slotID,
		ProviderID: slot.ProviderID,
		GuestID:    guestID,
		PatientID:  patientID,
		Status:     StatusPending,
		Reason:     reason,
		SlotStart:  slot.Start,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	r.appts[appt.ID] = appt
	copied := *appt
	return &copied, nil
}

func (r *InMemoryRepository) Get(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	appt, ok := r.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	copied := *appt
	return &copied, nil
}

func (r *InMemoryRepository) UpdateStatus(_ context.Context, id uuid.UUID, expected, next Status, cancelReason *string) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	appt, ok := r.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	if appt.Status != expected {
		return nil, ErrStaleState
	}
	appt.Status = next
	if cancelReason != nil {
		reason := *cancelReason
		appt.CancelReason = &reason
	}
	appt.UpdatedAt = time.Now().UTC()
	copied := *appt
	return &copied, nil
}

func (r *InMemoryRepository) ListByUser(_ context.Context, userID uuid.UUID) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := []Appointment{}
	for _, a := range r.appts {
		if a.GuestID == userID || a.ProviderID == userID {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SlotStart.After(out[j].SlotStart) })
	return out, nil
}

var _ Repository = (*InMemoryRepository)(nil)
