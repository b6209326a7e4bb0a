// Package model defines the certification record, its lifecycle states, and
// the error taxonomy shared by every layer of the ledger.
package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Record is one certified product batch in the ledger.
//
// Only Status and VerificationCount change after creation; every other field
// is fixed when the record is created.
type Record struct {
	ID                uuid.UUID       `json:"id"`
	Seq               int64           `json:"seq"`
	ProductName       string          `json:"product_name"`
	BatchSize         string          `json:"batch_size"`
	Description       string          `json:"description"`
	Category          Category        `json:"category"`
	Location          string          `json:"location"`
	HarvestDate       string          `json:"harvest_date"`
	Certifications    []string        `json:"certifications"`
	IssuerAddress     string          `json:"issuer_address"`
	IntegrityHash     string          `json:"integrity_hash"`
	Status            Status          `json:"status"`
	VerificationCount int             `json:"verification_count"`
	CreatedAt         time.Time       `json:"created_at"`
	TransactionFee    decimal.Decimal `json:"transaction_fee"`
}

// Clone returns a deep copy of r. Callers never share the certification
// slice with the store.
func (r Record) Clone() Record {
	cp := r
	if r.Certifications != nil {
		cp.Certifications = make([]string, len(r.Certifications))
		copy(cp.Certifications, r.Certifications)
	}
	return cp
}

// IntegrityFields extracts the immutable fields covered by IntegrityHash.
func (r *Record) IntegrityFields() IntegrityFields {
	return IntegrityFields{
		ProductName:    r.ProductName,
		Category:       r.Category,
		BatchSize:      r.BatchSize,
		Location:       r.Location,
		HarvestDate:    r.HarvestDate,
		Certifications: r.Certifications,
		IssuerAddress:  r.IssuerAddress,
	}
}

// RecordInput is the payload a certifying party submits to create a record.
type RecordInput struct {
	ProductName    string   `json:"product_name"`
	BatchSize      string   `json:"batch_size"`
	Description    string   `json:"description"`
	Category       string   `json:"category"`
	Location       string   `json:"location"`
	HarvestDate    string   `json:"harvest_date"`
	Certifications []string `json:"certifications"`
}

// Filter narrows a record listing. Zero values match everything.
type Filter struct {
	Category Category `json:"category,omitempty"`
	Status   Status   `json:"status,omitempty"`
}

// Matches reports whether r satisfies the filter.
func (f Filter) Matches(r *Record) bool {
	if f.Category != "" && r.Category != f.Category {
		return false
	}
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	return true
}
