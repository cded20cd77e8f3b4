package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lithammer/shortuuid/v3"
)

// Unlimited is the sentinel for capacity/quantity columns meaning "no limit".
const Unlimited = -1

type Event struct {
	ID                    uuid.UUID `db:"id" json:"id"`
	Title                 string    `db:"title" json:"title"`
	Description           string    `db:"description,omitempty" json:"description,omitempty"`
	Venue                 string    `db:"venue,omitempty" json:"venue,omitempty"`
	StartTime             time.Time `db:"start_time" json:"start_time"`
	EndTime               time.Time `db:"end_time" json:"end_time"`
	Capacity              int       `db:"capacity" json:"capacity"`
	RegisteredCount       int       `db:"registered_count" json:"registered_count"`
	Archived              bool      `db:"archived" json:"archived"`
	PaymentTimeoutMinutes int       `db:"payment_timeout_minutes" json:"payment_timeout_minutes"`
	CreatedAt             time.Time `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time `db:"updated_at" json:"updated_at"`
}

type EventStatus string

const (
	EventUpcoming EventStatus = "upcoming"
	EventOngoing  EventStatus = "ongoing"
	EventClosed   EventStatus = "closed"
	EventSoldOut  EventStatus = "sold-out"
)

// DerivedStatus computes the display status from the event dates and counters.
func (e *Event) DerivedStatus(now time.Time) EventStatus {
	if e.Capacity != Unlimited && e.RegisteredCount >= e.Capacity && now.Before(e.EndTime) {
		return EventSoldOut
	}
	switch {
	case now.Before(e.StartTime):
		return EventUpcoming
	case now.After(e.EndTime):
		return EventClosed
	default:
		return EventOngoing
	}
}

type TicketType struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	EventID      uuid.UUID  `db:"event_id" json:"event_id"`
	Name         string     `db:"name" json:"name"`
	Description  string     `db:"description,omitempty" json:"description,omitempty"`
	Price        int        `db:"price" json:"price"`
	Quantity     int        `db:"quantity" json:"quantity"`
	Sold         int        `db:"sold" json:"sold"`
	SalesOpenAt  *time.Time `db:"sales_open_at" json:"sales_open_at,omitempty"`
	SalesCloseAt *time.Time `db:"sales_close_at" json:"sales_close_at,omitempty"`
}

// OnSale reports whether the tier's optional sales window is open.
func (t *TicketType) OnSale(now time.Time) bool {
	if t.SalesOpenAt != nil && now.Before(*t.SalesOpenAt) {
		return false
	}
	if t.SalesCloseAt != nil && now.After(*t.SalesCloseAt) {
		return false
	}
	return true
}

func (t *TicketType) Available() int {
	if t.Quantity == Unlimited {
		return Unlimited
	}
	if n := t.Quantity - t.Sold; n > 0 {
		return n
	}
	return 0
}

type Registration struct {
	ID                uuid.UUID      `db:"id" json:"id"`
	EventID           uuid.UUID      `db:"event_id" json:"event_id"`
	TicketTypeID      uuid.UUID      `db:"ticket_type_id" json:"ticket_type_id"`
	Name              string         `db:"name" json:"name"`
	Email             string         `db:"email" json:"email"`
	Phone             string         `db:"phone" json:"phone"`
	TicketCode        string         `db:"ticket_code" json:"ticket_code"`
	Amount            int            `db:"amount" json:"amount"`
	Status            Status         `db:"status" json:"status"`
	PaymentStatus     PaymentStatus  `db:"payment_status" json:"payment_status"`
	PaymentRef        string         `db:"payment_ref" json:"payment_ref,omitempty"`
	CustomFieldValues map[string]any `db:"custom_field_values" json:"custom_field_values,omitempty"`
	CheckedInAt       *time.Time     `db:"checked_in_at" json:"checked_in_at,omitempty"`
	CreatedAt         time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time      `db:"updated_at" json:"updated_at"`
}

// NewTicketCode builds the human-readable code handed to attendees:
// event initials, tier prefix, short random suffix. Example: "GBC-VIP-K7Q2MX".
func NewTicketCode(eventTitle, tierName string) string {
	var initials strings.Builder
	for _, w := range strings.Fields(eventTitle) {
		initials.WriteRune([]rune(w)[0])
	}
	prefix := strings.ToUpper(initials.String())
	if prefix == "" {
		prefix = "EVT"
	}

	tier := strings.ToUpper(strings.ReplaceAll(tierName, " ", ""))
	if len(tier) > 3 {
		tier = tier[:3]
	}
	if tier == "" {
		tier = "STD"
	}

	suffix := strings.ToUpper(shortuuid.New())
	if len(suffix) > 6 {
		suffix = suffix[:6]
	}
	return prefix + "-" + tier + "-" + suffix
}
