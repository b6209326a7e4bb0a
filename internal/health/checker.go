// Package health audits the ledger in the background: it re-verifies the
// event-log hash chain and recomputes every record's integrity hash, and
// reports readiness from the result.
package health

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jmerrifield20/agriledger/internal/certification/model"
	"github.com/jmerrifield20/agriledger/internal/certification/service"
)

// Audit states.
const (
	StatusUnknown  = "unknown"
	StatusHealthy  = "healthy"
	StatusDegraded = "degraded"
)

// Config holds audit configuration.
type Config struct {
	CheckInterval time.Duration
	FailThreshold int
}

// ChainVerifier walks the event log; trustledger.Ledger implements it.
type ChainVerifier interface {
	Verify(ctx context.Context) error
}

// RecordSource lists records; *service.Ledger implements it.
type RecordSource interface {
	ListRecords(ctx context.Context, filter model.Filter) ([]model.Record, error)
}

// WebhookDispatchFunc is an optional callback for degraded events.
type WebhookDispatchFunc func(ctx context.Context, eventType string, payload map[string]string)

// MetricsRecordFunc is an optional callback for audit outcomes.
type MetricsRecordFunc func(success bool)

// Report is the outcome of the latest audit.
type Report struct {
	Status              string      `json:"status"`
	CheckedAt           time.Time   `json:"checked_at,omitempty"`
	RecordsChecked      int         `json:"records_checked"`
	ChainError          string      `json:"chain_error,omitempty"`
	CorruptRecords      []uuid.UUID `json:"corrupt_records,omitempty"`
	ConsecutiveFailures int         `json:"consecutive_failures"`
}

// Auditor runs periodic integrity audits.
type Auditor struct {
	chain   ChainVerifier
	records RecordSource
	cfg     Config
	logger  *zap.Logger

	onWebhook WebhookDispatchFunc
	onMetrics MetricsRecordFunc

	mu        sync.Mutex
	failCount int
	last      Report
}

// New creates an Auditor.
func New(chain ChainVerifier, records RecordSource, cfg Config, logger *zap.Logger) *Auditor {
	if cfg.CheckInterval == 0 {
		cfg.CheckInterval = 5 * time.Minute
	}
	if cfg.FailThreshold == 0 {
		cfg.FailThreshold = 1
	}
	return &Auditor{
		chain:   chain,
		records: records,
		cfg:     cfg,
		logger:  logger,
		last:    Report{Status: StatusUnknown},
	}
}

// SetWebhookDispatch configures the webhook dispatch callback.
func (a *Auditor) SetWebhookDispatch(fn WebhookDispatchFunc) {
	a.onWebhook = fn
}

// SetMetricsRecord configures the metrics recording callback.
func (a *Auditor) SetMetricsRecord(fn MetricsRecordFunc) {
	a.onMetrics = fn
}

// Start audits once immediately and then every CheckInterval until ctx is
// cancelled.
func (a *Auditor) Start(ctx context.Context) {
	go func() {
		a.CheckAll(ctx)
		ticker := time.NewTicker(a.cfg.CheckInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				a.CheckAll(ctx)
			}
		}
	}()
}

// CheckAll verifies the chain and every record, updates the audit state and
// returns the new report.
func (a *Auditor) CheckAll(ctx context.Context) Report {
	rep := Report{CheckedAt: time.Now().UTC()}

	if err := a.chain.Verify(ctx); err != nil {
		rep.ChainError = err.Error()
	}

	recs, err := a.records.ListRecords(ctx, model.Filter{})
	if err != nil {
		a.logger.Error("audit: list records", zap.Error(err))
		rep.ChainError = joinErr(rep.ChainError, "list records: "+err.Error())
	}
	rep.RecordsChecked = len(recs)
	rep.CorruptRecords = corrupt(recs)

	success := rep.ChainError == "" && len(rep.CorruptRecords) == 0
	if a.onMetrics != nil {
		a.onMetrics(success)
	}

	a.mu.Lock()
	prevCount := a.failCount
	if success {
		a.failCount = 0
	} else {
		a.failCount++
	}
	count := a.failCount
	rep.ConsecutiveFailures = count
	switch {
	case count >= a.cfg.FailThreshold:
		rep.Status = StatusDegraded
	case success:
		rep.Status = StatusHealthy
	default:
		rep.Status = a.last.Status
	}
	a.last = rep
	a.mu.Unlock()

	switch {
	case success && prevCount >= a.cfg.FailThreshold:
		a.logger.Info("audit: ledger recovered", zap.Int("records", rep.RecordsChecked))
	case !success && count == a.cfg.FailThreshold:
		a.logger.Error("audit: ledger degraded",
			zap.String("chain_error", rep.ChainError),
			zap.Int("corrupt_records", len(rep.CorruptRecords)),
			zap.Int("fail_count", count),
		)
		if a.onWebhook != nil {
			payload := map[string]string{
				"chain_error":     rep.ChainError,
				"corrupt_records": joinIDs(rep.CorruptRecords),
				"checked_at":      rep.CheckedAt.Format(time.RFC3339),
			}
			a.onWebhook(ctx, service.EventLedgerDegraded, payload)
		}
	case !success:
		a.logger.Warn("audit: check failed", zap.Int("fail_count", count))
	}
	return rep
}

// Status returns the latest report.
func (a *Auditor) Status() Report {
	a.mu.Lock()
	defer a.mu.Unlock()
	rep := a.last
	rep.CorruptRecords = append([]uuid.UUID(nil), a.last.CorruptRecords...)
	return rep
}

// ReadyHandler answers 200 unless the ledger is degraded.
func (a *Auditor) ReadyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		rep := a.Status()
		code := http.StatusOK
		if rep.Status == StatusDegraded {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, rep)
	}
}

// corrupt recomputes integrity hashes with bounded concurrency and returns
// the ids that no longer match.
func corrupt(recs []model.Record) []uuid.UUID {
	var (
		mu  sync.Mutex
		bad []uuid.UUID
		wg  sync.WaitGroup
	)
	sem := make(chan struct{}, 10)
	for i := range recs {
		wg.Add(1)
		go func(r *model.Record) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			if !model.VerifyIntegrity(r) {
				mu.Lock()
				bad = append(bad, r.ID)
				mu.Unlock()
			}
		}(&recs[i])
	}
	wg.Wait()
	return bad
}

func joinErr(a, b string) string {
	if a == "" {
		return b
	}
	return a + "; " + b
}

func joinIDs(ids []uuid.UUID) string {
	s := ""
	for i, id := range ids {
		if i > 0 {
			s += ","
		}
		s += id.String()
	}
	return s
}
