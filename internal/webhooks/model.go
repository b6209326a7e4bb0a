package webhooks

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jmerrifield20/agriledger/internal/certification/service"
)

// Events a subscription may listen for.
var knownEvents = []string{
	service.EventRecordCreated,
	service.EventRecordVerified,
	service.EventRecordStatusChanged,
	service.EventRecordDisputed,
	service.EventLedgerDegraded,
}

// KnownEvents returns the event types the ledger emits.
func KnownEvents() []string {
	out := make([]string, len(knownEvents))
	copy(out, knownEvents)
	return out
}

// WebhookSubscription is a party's subscription to record events. Owner is
// the ledger address of the subscribing party.
type WebhookSubscription struct {
	ID        uuid.UUID `json:"id"         db:"id"`
	Owner     string    `json:"owner"      db:"owner"`
	URL       string    `json:"url"        db:"url"`
	Events    []string  `json:"events"     db:"events"`
	Secret    string    `json:"-"          db:"secret"` // never returned in API responses
	Active    bool      `json:"active"     db:"active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Wants reports whether the subscription listens for eventType.
func (s *WebhookSubscription) Wants(eventType string) bool {
	if !s.Active {
		return false
	}
	for _, e := range s.Events {
		if e == eventType {
			return true
		}
	}
	return false
}

// WebhookEvent is dispatched to matching subscriptions.
type WebhookEvent struct {
	Type      string            `json:"type"`
	Timestamp time.Time         `json:"timestamp"`
	Payload   map[string]string `json:"payload"`
}

// WebhookDelivery records the outcome of a single delivery attempt.
type WebhookDelivery struct {
	ID             uuid.UUID `json:"id"              db:"id"`
	SubscriptionID uuid.UUID `json:"subscription_id" db:"subscription_id"`
	EventType      string    `json:"event_type"      db:"event_type"`
	StatusCode     int       `json:"status_code"     db:"status_code"`
	Attempt        int       `json:"attempt"         db:"attempt"`
	Success        bool      `json:"success"         db:"success"`
	ErrorMessage   string    `json:"error_message"   db:"error_message"`
	DeliveredAt    time.Time `json:"delivered_at"    db:"delivered_at"`
}

// CreateSubscriptionRequest is the payload for creating a webhook subscription.
type CreateSubscriptionRequest struct {
	URL    string   `json:"url"    binding:"required,url"`
	Events []string `json:"events" binding:"required,min=1"`
}

// Validate checks that every requested event is one the ledger emits.
func (r *CreateSubscriptionRequest) Validate() error {
	for _, e := range r.Events {
		known := false
		for _, k := range knownEvents {
			if e == k {
				known = true
				break
			}
		}
		if !known {
			return fmt.Errorf("unknown event %q", e)
		}
	}
	return nil
}
