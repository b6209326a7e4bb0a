// Package service implements the certification ledger's operations on top of
// the record store: creation, verification, disputes, queries and metrics.
package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jmerrifield20/agriledger/internal/certification/model"
	"github.com/jmerrifield20/agriledger/internal/certification/store"
	"github.com/jmerrifield20/agriledger/internal/trustledger"
)

// Webhook event types emitted by the ledger.
const (
	EventRecordCreated       = "record.created"
	EventRecordVerified      = "record.verified"
	EventRecordStatusChanged = "record.status_changed"
	EventRecordDisputed      = "record.disputed"

	// EventLedgerDegraded is emitted by the background integrity auditor.
	EventLedgerDegraded = "ledger.integrity_degraded"
)

// WebhookDispatcher is implemented by webhooks.Service.
type WebhookDispatcher interface {
	Dispatch(ctx context.Context, eventType string, payload map[string]string)
}

// IntegrityReport is the result of recomputing a record's integrity hash.
type IntegrityReport struct {
	RecordID     uuid.UUID `json:"record_id"`
	StoredHash   string    `json:"stored_hash"`
	ComputedHash string    `json:"computed_hash"`
	Valid        bool      `json:"valid"`
	CheckedAt    time.Time `json:"checked_at"`
}

// Config wires a Ledger.
type Config struct {
	Thresholds Thresholds
	Authorizer Authorizer
	Logger     *zap.Logger
}

// Ledger is the operation set consumed by the HTTP layer and other callers.
type Ledger struct {
	store    *store.Store
	log      trustledger.Ledger
	verifier *VerificationService
	query    *QueryFacade
	metrics  *MetricsAggregator
	authz    Authorizer
	logger   *zap.Logger
	webhooks WebhookDispatcher
	onEvent  func(action string)
}

// NewLedger builds the ledger over st, whose events are journaled to log.
func NewLedger(st *store.Store, log trustledger.Ledger, cfg Config) (*Ledger, error) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Authorizer == nil {
		cfg.Authorizer = DefaultRolePolicy()
	}
	verifier, err := NewVerificationService(st, cfg.Authorizer, cfg.Thresholds, cfg.Logger)
	if err != nil {
		return nil, err
	}
	return &Ledger{
		store:    st,
		log:      log,
		verifier: verifier,
		query:    NewQueryFacade(st),
		metrics:  NewMetricsAggregator(st),
		authz:    cfg.Authorizer,
		logger:   cfg.Logger,
	}, nil
}

// SetWebhookDispatcher configures event notifications for record changes.
func (l *Ledger) SetWebhookDispatcher(d WebhookDispatcher) {
	l.webhooks = d
}

// SetEventRecorder registers fn to be called with the action of every event
// journaled by a ledger operation.
func (l *Ledger) SetEventRecorder(fn func(action string)) {
	l.onEvent = fn
}

func (l *Ledger) recordEvent(action string) {
	if l.onEvent != nil {
		l.onEvent(action)
	}
}

// Query exposes the read façade.
func (l *Ledger) Query() *QueryFacade { return l.query }

// Metrics exposes the aggregator.
func (l *Ledger) Metrics() *MetricsAggregator { return l.metrics }

// CreateRecord certifies a new product batch issued by issuer.
func (l *Ledger) CreateRecord(ctx context.Context, input model.RecordInput, issuer model.Identity) (model.Record, error) {
	if err := l.authz.Authorize(issuer, model.ActionCertify); err != nil {
		return model.Record{}, err
	}
	rec, err := l.store.Create(ctx, input, issuer)
	if err != nil {
		return model.Record{}, err
	}
	l.recordEvent(trustledger.ActionCreate)
	l.dispatch(ctx, EventRecordCreated, rec, map[string]string{
		"category": string(rec.Category),
	})
	return rec, nil
}

// VerifyRecord records a verification by verifier.
func (l *Ledger) VerifyRecord(ctx context.Context, id uuid.UUID, verifier model.Identity) (model.Record, error) {
	rec, err := l.verifier.Verify(ctx, id, verifier)
	if err != nil {
		return model.Record{}, err
	}
	l.recordEvent(trustledger.ActionVerify)
	l.dispatch(ctx, EventRecordVerified, rec, map[string]string{
		"verifier": verifier.Address(),
	})
	if prev, changed := l.verifier.Thresholds().enteredAt(rec); changed {
		l.dispatch(ctx, EventRecordStatusChanged, rec, map[string]string{
			"previous_status": string(prev),
		})
	}
	return rec, nil
}

// DisputeRecord moves a record to Disputed. Only the call that performs the
// transition journals an event and notifies subscribers.
func (l *Ledger) DisputeRecord(ctx context.Context, id uuid.UUID, actor model.Identity, reason string) (model.Record, error) {
	rec, previous, err := l.verifier.Dispute(ctx, id, actor, reason)
	if err != nil {
		return model.Record{}, err
	}
	if previous == model.StatusDisputed {
		return rec, nil
	}
	l.recordEvent(trustledger.ActionDispute)
	l.dispatch(ctx, EventRecordDisputed, rec, map[string]string{
		"previous_status": string(previous),
		"reason":          strings.TrimSpace(reason),
	})
	return rec, nil
}

// GetRecord returns one record.
func (l *Ledger) GetRecord(ctx context.Context, id uuid.UUID) (model.Record, error) {
	return l.query.GetByID(ctx, id)
}

// ListRecords returns the records matching filter in creation order.
func (l *Ledger) ListRecords(ctx context.Context, filter model.Filter) ([]model.Record, error) {
	return l.query.List(ctx, filter)
}

// GetMetrics returns freshly computed roll-up metrics.
func (l *Ledger) GetMetrics(ctx context.Context) model.Metrics {
	return l.metrics.Summarize(ctx)
}

// History returns the event-log entries for one record, oldest first.
func (l *Ledger) History(ctx context.Context, id uuid.UUID) ([]*trustledger.Entry, error) {
	if _, err := l.store.Get(ctx, id); err != nil {
		return nil, err
	}
	entries, err := l.log.ByRecord(ctx, id.String())
	if err != nil {
		return nil, fmt.Errorf("read record history: %w", err)
	}
	return entries, nil
}

// CheckIntegrity recomputes the record's integrity hash from its stored
// immutable fields.
func (l *Ledger) CheckIntegrity(ctx context.Context, id uuid.UUID) (IntegrityReport, error) {
	rec, err := l.store.Get(ctx, id)
	if err != nil {
		return IntegrityReport{}, err
	}
	computed := model.ComputeIntegrityHash(rec.IntegrityFields())
	return IntegrityReport{
		RecordID:     id,
		StoredHash:   rec.IntegrityHash,
		ComputedHash: computed,
		Valid:        computed == rec.IntegrityHash,
		CheckedAt:    time.Now().UTC(),
	}, nil
}

// dispatch notifies webhook subscribers. Failures are logged by the
// dispatcher and never affect the ledger operation.
func (l *Ledger) dispatch(ctx context.Context, event string, rec model.Record, extra map[string]string) {
	if l.webhooks == nil {
		return
	}
	payload := map[string]string{
		"record_id":          rec.ID.String(),
		"product_name":       rec.ProductName,
		"status":             string(rec.Status),
		"verification_count": strconv.Itoa(rec.VerificationCount),
		"integrity_hash":     rec.IntegrityHash,
	}
	for k, v := range extra {
		payload[k] = v
	}
	l.webhooks.Dispatch(ctx, event, payload)
}
