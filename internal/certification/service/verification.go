package service

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jmerrifield20/agriledger/internal/certification/model"
	"github.com/jmerrifield20/agriledger/internal/certification/store"
)

const maxReasonLen = 1024

// VerificationService applies verification and dispute events to records.
// The status decision is delegated to NextStatus with the configured
// thresholds; role checks are delegated to the Authorizer.
type VerificationService struct {
	store      *store.Store
	authz      Authorizer
	thresholds Thresholds
	logger     *zap.Logger
}

// NewVerificationService validates thresholds and wires the service.
func NewVerificationService(st *store.Store, authz Authorizer, thresholds Thresholds, logger *zap.Logger) (*VerificationService, error) {
	if err := thresholds.Validate(); err != nil {
		return nil, fmt.Errorf("verification thresholds: %w", err)
	}
	if authz == nil {
		authz = DefaultRolePolicy()
	}
	return &VerificationService{store: st, authz: authz, thresholds: thresholds, logger: logger}, nil
}

// Thresholds returns the configured transition thresholds.
func (v *VerificationService) Thresholds() Thresholds {
	return v.thresholds
}

// Verify records one verification of id by verifier.
//
// Errors, in order of precedence: *model.NotFoundError for an unknown id,
// *model.ForbiddenError when the verifier's role may not verify or the
// verifier issued the record, *model.TerminalStateError when the record is
// Delivered or Disputed.
func (v *VerificationService) Verify(ctx context.Context, id uuid.UUID, verifier model.Identity) (model.Record, error) {
	rec, err := v.store.Get(ctx, id)
	if err != nil {
		return model.Record{}, err
	}
	if err := v.authz.Authorize(verifier, model.ActionVerify); err != nil {
		return model.Record{}, err
	}
	if verifier.Address() == rec.IssuerAddress {
		return model.Record{}, &model.ForbiddenError{
			Subject: verifier.Subject,
			Action:  model.ActionVerify,
			Reason:  "issuers may not verify their own records",
		}
	}
	return v.store.Verify(ctx, id, verifier, v.thresholds.Advance())
}

// Dispute moves id to Disputed and returns the status the record held
// before. Disputing an already disputed record is a no-op that returns the
// record with previous Disputed. The reason is optional.
func (v *VerificationService) Dispute(ctx context.Context, id uuid.UUID, actor model.Identity, reason string) (model.Record, model.Status, error) {
	if _, err := v.store.Get(ctx, id); err != nil {
		return model.Record{}, "", err
	}
	if err := v.authz.Authorize(actor, model.ActionDispute); err != nil {
		return model.Record{}, "", err
	}
	reason = strings.TrimSpace(reason)
	if len(reason) > maxReasonLen {
		return model.Record{}, "", model.NewValidationError("reason", fmt.Sprintf("must be at most %d bytes", maxReasonLen))
	}
	if !utf8.ValidString(reason) {
		return model.Record{}, "", model.NewValidationError("reason", "must be valid UTF-8")
	}
	return v.store.Dispute(ctx, id, actor, reason)
}
