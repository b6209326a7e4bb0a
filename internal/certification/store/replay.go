package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jmerrifield20/agriledger/internal/certification/model"
	"github.com/jmerrifield20/agriledger/internal/trustledger"
)

// Open verifies the event log's hash chain and rebuilds the store by
// replaying every event in index order. It fails if the chain is broken, an
// event is inconsistent with the state it applies to, or a record's
// integrity hash does not match its content.
func Open(ctx context.Context, log trustledger.Ledger, opts Options) (*Store, error) {
	if err := log.Verify(ctx); err != nil {
		return nil, fmt.Errorf("verify event log: %w", err)
	}
	entries, err := log.Entries(ctx, 1, 0)
	if err != nil {
		return nil, fmt.Errorf("read event log: %w", err)
	}

	s := New(log, opts)
	for _, e := range entries {
		if err := s.apply(e); err != nil {
			return nil, fmt.Errorf("replay entry %d: %w", e.Index, err)
		}
	}
	s.logger.Info("record store rebuilt",
		zap.Int("events", len(entries)),
		zap.Int("records", s.Len()),
	)
	return s, nil
}

func (s *Store) apply(e *trustledger.Entry) error {
	id, err := uuid.Parse(e.RecordID)
	if err != nil {
		return fmt.Errorf("bad record id %q: %w", e.RecordID, err)
	}

	switch e.Action {
	case trustledger.ActionCreate:
		var rec model.Record
		if err := json.Unmarshal(e.Payload, &rec); err != nil {
			return fmt.Errorf("decode create: %w", err)
		}
		if rec.ID != id {
			return fmt.Errorf("create payload id %s does not match entry record %s", rec.ID, id)
		}
		if _, exists := s.byID[id]; exists {
			return fmt.Errorf("record %s created twice", id)
		}
		if rec.Seq != s.seq+1 {
			return fmt.Errorf("record %s has seq %d, want %d", id, rec.Seq, s.seq+1)
		}
		if !model.VerifyIntegrity(&rec) {
			return fmt.Errorf("record %s integrity hash does not match its content", id)
		}
		if rec.Status != model.StatusCertified || rec.VerificationCount != 0 {
			return fmt.Errorf("record %s created in state %s/%d", id, rec.Status, rec.VerificationCount)
		}
		s.insert(rec)

	case trustledger.ActionVerify:
		sl, ok := s.byID[id]
		if !ok {
			return &model.NotFoundError{ID: id}
		}
		var ev VerifyEvent
		if err := json.Unmarshal(e.Payload, &ev); err != nil {
			return fmt.Errorf("decode verify: %w", err)
		}
		if sl.rec.Status.IsTerminal() {
			return &model.TerminalStateError{ID: id, Status: sl.rec.Status}
		}
		if ev.VerificationCount != sl.rec.VerificationCount+1 {
			return fmt.Errorf("record %s verification count jumps %d -> %d", id, sl.rec.VerificationCount, ev.VerificationCount)
		}
		if !sl.rec.Status.CanMoveTo(ev.Status) {
			return fmt.Errorf("record %s moves backward %s -> %s", id, sl.rec.Status, ev.Status)
		}
		sl.rec.VerificationCount = ev.VerificationCount
		sl.rec.Status = ev.Status

	case trustledger.ActionDispute:
		sl, ok := s.byID[id]
		if !ok {
			return &model.NotFoundError{ID: id}
		}
		if sl.rec.Status.IsTerminal() {
			return &model.TerminalStateError{ID: id, Status: sl.rec.Status}
		}
		sl.rec.Status = model.StatusDisputed

	default:
		return fmt.Errorf("unknown action %q", e.Action)
	}
	return nil
}
