package service

import (
	"fmt"

	"github.com/jmerrifield20/agriledger/internal/certification/model"
	"github.com/jmerrifield20/agriledger/internal/certification/store"
)

// Thresholds are the verification counts at which a record advances along
// the success path. A zero value disables that transition.
type Thresholds struct {
	InTransit int `mapstructure:"in_transit_threshold" json:"in_transit_threshold"`
	Delivered int `mapstructure:"delivered_threshold"  json:"delivered_threshold"`
}

// Validate rejects negative thresholds and a Delivered threshold that would
// be reached no later than InTransit.
func (t Thresholds) Validate() error {
	if t.InTransit < 0 {
		return fmt.Errorf("in_transit threshold must not be negative, got %d", t.InTransit)
	}
	if t.Delivered < 0 {
		return fmt.Errorf("delivered threshold must not be negative, got %d", t.Delivered)
	}
	if t.InTransit > 0 && t.Delivered > 0 && t.Delivered <= t.InTransit {
		return fmt.Errorf("delivered threshold (%d) must exceed in_transit threshold (%d)", t.Delivered, t.InTransit)
	}
	return nil
}

// NextStatus returns the status a record in current moves to once its
// verification count reaches count. It advances at most one step.
func NextStatus(current model.Status, count int, t Thresholds) model.Status {
	switch current {
	case model.StatusCertified:
		if t.InTransit > 0 && count >= t.InTransit {
			return model.StatusInTransit
		}
	case model.StatusInTransit:
		if t.Delivered > 0 && count >= t.Delivered {
			return model.StatusDelivered
		}
	}
	return current
}

// Advance binds t into a store.TransitionFunc.
func (t Thresholds) Advance() store.TransitionFunc {
	return func(current model.Status, count int) model.Status {
		return NextStatus(current, count, t)
	}
}

// enteredAt reports whether rec's current status was entered on the
// verification that brought it to its current count, and the status it left.
// Counts grow by one per verification, so each threshold is crossed exactly
// when the count equals it.
func (t Thresholds) enteredAt(rec model.Record) (model.Status, bool) {
	switch {
	case rec.Status == model.StatusInTransit && rec.VerificationCount == t.InTransit:
		return model.StatusCertified, true
	case rec.Status == model.StatusDelivered && rec.VerificationCount == t.Delivered:
		return model.StatusInTransit, true
	}
	return "", false
}
