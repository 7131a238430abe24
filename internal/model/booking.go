package model

import (
	"bytes"
	"encoding/json"
	"time"
)

// BookingStatus is the lifecycle state of a booking as reported by the portal.
type BookingStatus string

const (
	StatusPending   BookingStatus = "pending"
	StatusConfirmed BookingStatus = "confirmed"
	StatusCanceled  BookingStatus = "canceled"
	StatusNoShow    BookingStatus = "no_show"
)

// Booking is a reservation owned by the customer portal.
type Booking struct {
	ID              string        `json:"id"`
	ServiceID       string        `json:"serviceId"`
	ProviderID      string        `json:"providerId,omitempty"`
	Start           time.Time     `json:"start"`
	End             time.Time     `json:"end"`
	Status          BookingStatus `json:"status"`
	CustomerName    string        `json:"customerName"`
	Email           string        `json:"email"`
	Phone           string        `json:"phone"`
	PartySize       int           `json:"partySize,omitempty"`
	Notes           string        `json:"notes,omitempty"`
	SpecialRequests string        `json:"specialRequests,omitempty"`
	ProductIDs      []string      `json:"productIds,omitempty"`
}

// UnmarshalJSON accepts the portal's Mongo-style payloads: `_id` instead of
// `id`, and service/provider references that are either plain ids or
// populated objects.
func (b *Booking) UnmarshalJSON(data []byte) error {
	type plain Booking
	var raw struct {
		plain
		MongoID    string `json:"_id"`
		ServiceID  ref    `json:"serviceId"`
		ProviderID ref    `json:"providerId"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*b = Booking(raw.plain)
	if b.ID == "" {
		b.ID = raw.MongoID
	}
	b.ServiceID = string(raw.ServiceID)
	b.ProviderID = string(raw.ProviderID)
	return nil
}

// IsActive reports whether the booking occupies its interval.
func (b *Booking) IsActive() bool {
	return b.Status != StatusCanceled
}

// Duration returns the booked length.
func (b *Booking) Duration() time.Duration {
	return b.End.Sub(b.Start)
}

// OverlapsWith checks half-open [start, end) overlap with another booking.
func (b *Booking) OverlapsWith(other *Booking) bool {
	return b.Start.Before(other.End) && other.Start.Before(b.End)
}

// ContainsTime reports whether t falls inside [Start, End).
func (b *Booking) ContainsTime(t time.Time) bool {
	return !t.Before(b.Start) && t.Before(b.End)
}

// DateKey returns the local calendar day of the booking start as YYYY-MM-DD.
func (b *Booking) DateKey(loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return b.Start.In(loc).Format(DateLayout)
}

// ActiveOnly drops canceled bookings, keeping order.
func ActiveOnly(bookings []Booking) []Booking {
	out := make([]Booking, 0, len(bookings))
	for i := range bookings {
		if bookings[i].IsActive() {
			out = append(out, bookings[i])
		}
	}
	return out
}

// DateLayout is the calendar day format used across the portal API.
const DateLayout = "2006-01-02"

// ref decodes an id that may arrive as a string, null, or an object with
// `_id`/`id`.
type ref string

func (r *ref) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*r = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*r = ref(s)
		return nil
	}
	var obj struct {
		MongoID string `json:"_id"`
		ID      string `json:"id"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	if obj.MongoID != "" {
		*r = ref(obj.MongoID)
	} else {
		*r = ref(obj.ID)
	}
	return nil
}

// BookingDraft is the create request body sent to the portal.
type BookingDraft struct {
	ServiceID       string    `json:"serviceId,omitempty"`
	ProviderID      string    `json:"providerId,omitempty"`
	Start           time.Time `json:"start"`
	End             time.Time `json:"end"`
	CustomerName    string    `json:"customerName"`
	Email           string    `json:"email,omitempty"`
	Phone           string    `json:"phone,omitempty"`
	PartySize       int       `json:"partySize,omitempty"`
	Notes           string    `json:"notes,omitempty"`
	SpecialRequests string    `json:"specialRequests,omitempty"`
	ProductIDs      []string  `json:"productIds,omitempty"`
	BookingType     string    `json:"bookingType,omitempty"`
}

// CreateResult is the outcome of a create or update call.
type CreateResult struct {
	Success         bool     `json:"success"`
	Booking         *Booking `json:"booking,omitempty"`
	RequiresPayment bool     `json:"requiresPayment,omitempty"`
	CheckoutURL     string   `json:"checkoutUrl,omitempty"`
	SessionID       string   `json:"sessionId,omitempty"`
	Conflict        bool     `json:"conflict,omitempty"`
	Message         string   `json:"message,omitempty"`
}
