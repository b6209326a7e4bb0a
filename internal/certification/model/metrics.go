package model

import "github.com/shopspring/decimal"

// Metrics is a roll-up over the full record set. It is never stored; every
// value is recomputed from the records on request.
type Metrics struct {
	TotalRecords       int              `json:"total_records"`
	TotalVerifications int              `json:"total_verifications"`
	PerCategoryCounts  map[Category]int `json:"per_category_counts"`
	PerStatusCounts    map[Status]int   `json:"per_status_counts"`
	EstimatedRevenue   decimal.Decimal  `json:"estimated_revenue"`
	AverageFee         decimal.Decimal  `json:"average_fee"`
}
