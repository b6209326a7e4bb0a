package store

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// FeeSchedule prices a record at creation time:
// Base + PerCertification × number of certification labels.
type FeeSchedule struct {
	Base             decimal.Decimal
	PerCertification decimal.Decimal
}

// ParseFeeSchedule builds a schedule from decimal strings. Empty strings are
// treated as zero.
func ParseFeeSchedule(base, perCertification string) (FeeSchedule, error) {
	var fs FeeSchedule
	var err error
	if base != "" {
		if fs.Base, err = decimal.NewFromString(base); err != nil {
			return FeeSchedule{}, fmt.Errorf("fees.base: %w", err)
		}
	}
	if perCertification != "" {
		if fs.PerCertification, err = decimal.NewFromString(perCertification); err != nil {
			return FeeSchedule{}, fmt.Errorf("fees.per_certification: %w", err)
		}
	}
	if fs.Base.IsNegative() || fs.PerCertification.IsNegative() {
		return FeeSchedule{}, fmt.Errorf("fees must not be negative")
	}
	return fs, nil
}

// For returns the fee for a record carrying n certifications.
func (f FeeSchedule) For(n int) decimal.Decimal {
	return f.Base.Add(f.PerCertification.Mul(decimal.NewFromInt(int64(n))))
}
