// Package store owns every certification record. It is the only component
// that mutates record state, and it journals each mutation to the event log
// before applying it.
package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jmerrifield20/agriledger/internal/certification/model"
	"github.com/jmerrifield20/agriledger/internal/trustledger"
)

// TransitionFunc decides the status a record moves to after its
// verification count has been incremented to count.
type TransitionFunc func(current model.Status, count int) model.Status

// Options configures a Store.
type Options struct {
	Fees   FeeSchedule
	Logger *zap.Logger
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// VerifyEvent is the journal payload of a verification.
type VerifyEvent struct {
	Verifier          string       `json:"verifier"`
	VerificationCount int          `json:"verification_count"`
	Status            model.Status `json:"status"`
}

// DisputeEvent is the journal payload of a dispute.
type DisputeEvent struct {
	Reason         string       `json:"reason"`
	PreviousStatus model.Status `json:"previous_status"`
	Status         model.Status `json:"status"`
}

type slot struct {
	mu  sync.RWMutex
	rec model.Record
}

func (s *slot) snapshot() model.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rec.Clone()
}

// Store is the in-memory record table backed by an append-only event log.
type Store struct {
	log    trustledger.Ledger
	fees   FeeSchedule
	logger *zap.Logger
	now    func() time.Time

	createMu sync.Mutex // serialises id/seq assignment and the create journal write

	mu    sync.RWMutex // guards byID, order and seq
	byID  map[uuid.UUID]*slot
	order []*slot
	seq   int64
}

// New returns an empty Store journaling to log. Use Open to rebuild state
// from a log that already holds events.
func New(log trustledger.Ledger, opts Options) *Store {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Store{
		log:    log,
		fees:   opts.Fees,
		logger: opts.Logger,
		now:    opts.Now,
		byID:   make(map[uuid.UUID]*slot),
	}
}

// Create validates input, assigns identity and appends the record.
func (s *Store) Create(ctx context.Context, input model.RecordInput, issuer model.Identity) (model.Record, error) {
	in, category, err := normalize(input)
	if err != nil {
		return model.Record{}, err
	}

	s.createMu.Lock()
	defer s.createMu.Unlock()

	id, err := uuid.NewV7()
	if err != nil {
		return model.Record{}, fmt.Errorf("generate record id: %w", err)
	}

	s.mu.RLock()
	seq := s.seq + 1
	s.mu.RUnlock()

	rec := model.Record{
		ID:             id,
		Seq:            seq,
		ProductName:    in.ProductName,
		BatchSize:      in.BatchSize,
		Description:    in.Description,
		Category:       category,
		Location:       in.Location,
		HarvestDate:    in.HarvestDate,
		Certifications: in.Certifications,
		IssuerAddress:  issuer.Address(),
		Status:         model.StatusCertified,
		CreatedAt:      s.now().UTC().Truncate(time.Microsecond),
		TransactionFee: s.fees.For(len(in.Certifications)),
	}
	rec.IntegrityHash = model.ComputeIntegrityHash(rec.IntegrityFields())

	if _, err := s.log.Append(ctx, id.String(), trustledger.ActionCreate, rec.IssuerAddress, rec); err != nil {
		return model.Record{}, fmt.Errorf("journal create: %w", err)
	}
	s.insert(rec)

	s.logger.Info("record created",
		zap.String("record_id", id.String()),
		zap.Int64("seq", seq),
		zap.String("category", string(category)),
		zap.String("issuer", rec.IssuerAddress),
	)
	return rec.Clone(), nil
}

func (s *Store) insert(rec model.Record) {
	sl := &slot{rec: rec}
	s.mu.Lock()
	s.byID[rec.ID] = sl
	s.order = append(s.order, sl)
	s.seq = rec.Seq
	s.mu.Unlock()
}

func (s *Store) lookup(id uuid.UUID) (*slot, error) {
	s.mu.RLock()
	sl, ok := s.byID[id]
	s.mu.RUnlock()
	if !ok {
		return nil, &model.NotFoundError{ID: id}
	}
	return sl, nil
}

// Get returns a copy of the record with the given id.
func (s *Store) Get(_ context.Context, id uuid.UUID) (model.Record, error) {
	sl, err := s.lookup(id)
	if err != nil {
		return model.Record{}, err
	}
	return sl.snapshot(), nil
}

// List returns copies of the records matching filter in creation order.
func (s *Store) List(_ context.Context, filter model.Filter) []model.Record {
	s.mu.RLock()
	slots := make([]*slot, len(s.order))
	copy(slots, s.order)
	s.mu.RUnlock()

	out := make([]model.Record, 0, len(slots))
	for _, sl := range slots {
		rec := sl.snapshot()
		if filter.Matches(&rec) {
			out = append(out, rec)
		}
	}
	return out
}

// Snapshot returns copies of every record in creation order.
func (s *Store) Snapshot(ctx context.Context) []model.Record {
	return s.List(ctx, model.Filter{})
}

// Len returns the number of records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Verify increments the record's verification count and applies advance to
// pick the resulting status. Terminal records are rejected.
func (s *Store) Verify(ctx context.Context, id uuid.UUID, verifier model.Identity, advance TransitionFunc) (model.Record, error) {
	sl, err := s.lookup(id)
	if err != nil {
		return model.Record{}, err
	}

	sl.mu.Lock()
	defer sl.mu.Unlock()

	if sl.rec.Status.IsTerminal() {
		return model.Record{}, &model.TerminalStateError{ID: id, Status: sl.rec.Status}
	}

	count := sl.rec.VerificationCount + 1
	next := sl.rec.Status
	if advance != nil {
		next = advance(sl.rec.Status, count)
	}
	if !sl.rec.Status.CanMoveTo(next) {
		return model.Record{}, fmt.Errorf("transition %s -> %s is not allowed", sl.rec.Status, next)
	}

	ev := VerifyEvent{Verifier: verifier.Address(), VerificationCount: count, Status: next}
	if _, err := s.log.Append(ctx, id.String(), trustledger.ActionVerify, ev.Verifier, ev); err != nil {
		return model.Record{}, fmt.Errorf("journal verify: %w", err)
	}
	sl.rec.VerificationCount = count
	sl.rec.Status = next

	s.logger.Info("record verified",
		zap.String("record_id", id.String()),
		zap.Int("verification_count", count),
		zap.String("status", string(next)),
	)
	return sl.rec.Clone(), nil
}

// Dispute moves a non-terminal record to Disputed and returns the status it
// held under the record lock. Disputing an already disputed record returns
// it unchanged with previous Disputed, without journaling.
func (s *Store) Dispute(ctx context.Context, id uuid.UUID, actor model.Identity, reason string) (rec model.Record, previous model.Status, err error) {
	sl, err := s.lookup(id)
	if err != nil {
		return model.Record{}, "", err
	}

	sl.mu.Lock()
	defer sl.mu.Unlock()

	previous = sl.rec.Status
	switch previous {
	case model.StatusDisputed:
		return sl.rec.Clone(), previous, nil
	case model.StatusDelivered:
		return model.Record{}, "", &model.TerminalStateError{ID: id, Status: previous}
	}

	ev := DisputeEvent{Reason: reason, PreviousStatus: previous, Status: model.StatusDisputed}
	if _, err := s.log.Append(ctx, id.String(), trustledger.ActionDispute, actor.Address(), ev); err != nil {
		return model.Record{}, "", fmt.Errorf("journal dispute: %w", err)
	}
	sl.rec.Status = model.StatusDisputed

	s.logger.Info("record disputed",
		zap.String("record_id", id.String()),
		zap.String("previous_status", string(previous)),
	)
	return sl.rec.Clone(), previous, nil
}
