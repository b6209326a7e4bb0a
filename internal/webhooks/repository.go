package webhooks

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a webhook subscription is not found.
var ErrNotFound = errors.New("webhook subscription not found")

// Repository persists webhook subscriptions and delivery attempts.
// MemoryRepository and PostgresRepository implement it.
type Repository interface {
	Create(ctx context.Context, sub *WebhookSubscription) error
	GetByID(ctx context.Context, id uuid.UUID) (*WebhookSubscription, error)
	ListByOwner(ctx context.Context, owner string) ([]*WebhookSubscription, error)
	ListByEvent(ctx context.Context, eventType string) ([]*WebhookSubscription, error)
	Delete(ctx context.Context, id uuid.UUID) error
	RecordDelivery(ctx context.Context, d *WebhookDelivery) error
}

// MemoryRepository keeps subscriptions in process memory.
type MemoryRepository struct {
	mu         sync.RWMutex
	subs       map[uuid.UUID]*WebhookSubscription
	deliveries []*WebhookDelivery
}

// NewMemoryRepository returns an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{subs: make(map[uuid.UUID]*WebhookSubscription)}
}

// Create implements Repository.
func (r *MemoryRepository) Create(_ context.Context, sub *WebhookSubscription) error {
	sub.ID = uuid.New()
	sub.CreatedAt = time.Now().UTC()
	sub.Active = true

	cp := *sub
	cp.Events = append([]string(nil), sub.Events...)
	r.mu.Lock()
	r.subs[sub.ID] = &cp
	r.mu.Unlock()
	return nil
}

// GetByID implements Repository.
func (r *MemoryRepository) GetByID(_ context.Context, id uuid.UUID) (*WebhookSubscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sub, ok := r.subs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *sub
	return &cp, nil
}

// ListByOwner implements Repository. Newest first.
func (r *MemoryRepository) ListByOwner(_ context.Context, owner string) ([]*WebhookSubscription, error) {
	subs := r.filter(func(s *WebhookSubscription) bool { return s.Owner == owner })
	sort.Slice(subs, func(i, j int) bool { return subs[i].CreatedAt.After(subs[j].CreatedAt) })
	return subs, nil
}

// ListByEvent implements Repository. Oldest first.
func (r *MemoryRepository) ListByEvent(_ context.Context, eventType string) ([]*WebhookSubscription, error) {
	subs := r.filter(func(s *WebhookSubscription) bool { return s.Wants(eventType) })
	sort.Slice(subs, func(i, j int) bool { return subs[i].CreatedAt.Before(subs[j].CreatedAt) })
	return subs, nil
}

func (r *MemoryRepository) filter(keep func(*WebhookSubscription) bool) []*WebhookSubscription {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*WebhookSubscription
	for _, s := range r.subs {
		if keep(s) {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out
}

// Delete implements Repository.
func (r *MemoryRepository) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.subs[id]; !ok {
		return ErrNotFound
	}
	delete(r.subs, id)
	return nil
}

// RecordDelivery implements Repository.
func (r *MemoryRepository) RecordDelivery(_ context.Context, d *WebhookDelivery) error {
	d.ID = uuid.New()
	d.DeliveredAt = time.Now().UTC()
	cp := *d
	r.mu.Lock()
	r.deliveries = append(r.deliveries, &cp)
	r.mu.Unlock()
	return nil
}

// Deliveries returns the recorded attempts for one subscription.
func (r *MemoryRepository) Deliveries(subID uuid.UUID) []WebhookDelivery {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []WebhookDelivery
	for _, d := range r.deliveries {
		if d.SubscriptionID == subID {
			out = append(out, *d)
		}
	}
	return out
}
