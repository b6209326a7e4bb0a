package service

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/jmerrifield20/agriledger/internal/certification/model"
	"github.com/jmerrifield20/agriledger/internal/certification/store"
)

// feeScale is the number of decimal places kept in AverageFee.
const feeScale = 4

// MetricsAggregator derives roll-up figures from the record store. Nothing
// is cached; every call folds over a fresh snapshot.
type MetricsAggregator struct {
	store *store.Store
}

// NewMetricsAggregator returns an aggregator over st.
func NewMetricsAggregator(st *store.Store) *MetricsAggregator {
	return &MetricsAggregator{store: st}
}

// Summarize computes the current metrics.
func (a *MetricsAggregator) Summarize(ctx context.Context) model.Metrics {
	return Summarize(a.store.Snapshot(ctx))
}

// Summarize folds records into Metrics. Every known category and status is
// present in the count maps, zero when unused. EstimatedRevenue is the exact
// sum of transaction fees.
func Summarize(records []model.Record) model.Metrics {
	m := model.Metrics{
		PerCategoryCounts: make(map[model.Category]int),
		PerStatusCounts:   make(map[model.Status]int),
		EstimatedRevenue:  decimal.Zero,
		AverageFee:        decimal.Zero,
	}
	for _, c := range model.Categories() {
		m.PerCategoryCounts[c] = 0
	}
	for _, s := range model.Statuses() {
		m.PerStatusCounts[s] = 0
	}

	for i := range records {
		r := &records[i]
		m.TotalRecords++
		m.TotalVerifications += r.VerificationCount
		m.PerCategoryCounts[r.Category]++
		m.PerStatusCounts[r.Status]++
		m.EstimatedRevenue = m.EstimatedRevenue.Add(r.TransactionFee)
	}
	if m.TotalRecords > 0 {
		m.AverageFee = m.EstimatedRevenue.DivRound(decimal.NewFromInt(int64(m.TotalRecords)), feeScale)
	}
	return m
}
