package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jmerrifield20/agriledger/internal/certification/model"
	"github.com/jmerrifield20/agriledger/internal/certification/service"
)

// ── Stubs ────────────────────────────────────────────────────────────────

type stubChain struct{ err error }

func (s *stubChain) Verify(context.Context) error { return s.err }

type stubRecords struct{ recs []model.Record }

func (s *stubRecords) ListRecords(context.Context, model.Filter) ([]model.Record, error) {
	out := make([]model.Record, len(s.recs))
	copy(out, s.recs)
	return out, nil
}

func sealed(name string) model.Record {
	r := model.Record{
		ID:            uuid.New(),
		ProductName:   name,
		Category:      model.CategoryGrains,
		Location:      "Fargo, ND",
		HarvestDate:   "2024-08-05",
		IssuerAddress: model.AddressOf("farmer-001"),
		CreatedAt:     time.Date(2024, 8, 6, 0, 0, 0, 0, time.UTC),
	}
	r.IntegrityHash = model.ComputeIntegrityHash(r.IntegrityFields())
	return r
}

// ── Tests ────────────────────────────────────────────────────────────────

func TestCheckAll_healthy(t *testing.T) {
	src := &stubRecords{recs: []model.Record{sealed("Wheat"), sealed("Barley")}}
	a := New(&stubChain{}, src, Config{}, zap.NewNop())

	if got := a.Status().Status; got != StatusUnknown {
		t.Fatalf("initial status = %q, want unknown", got)
	}
	rep := a.CheckAll(context.Background())
	if rep.Status != StatusHealthy || rep.RecordsChecked != 2 || len(rep.CorruptRecords) != 0 {
		t.Errorf("report = %+v", rep)
	}
}

func TestCheckAll_detectsCorruptRecord(t *testing.T) {
	bad := sealed("Oats")
	bad.Location = "Elsewhere"
	src := &stubRecords{recs: []model.Record{sealed("Wheat"), bad}}

	a := New(&stubChain{}, src, Config{}, zap.NewNop())
	rep := a.CheckAll(context.Background())
	if rep.Status != StatusDegraded {
		t.Fatalf("status = %q, want degraded", rep.Status)
	}
	if len(rep.CorruptRecords) != 1 || rep.CorruptRecords[0] != bad.ID {
		t.Errorf("corrupt = %v, want [%s]", rep.CorruptRecords, bad.ID)
	}
}

func TestCheckAll_degradesAfterThreshold(t *testing.T) {
	chain := &stubChain{err: errors.New("entry 4: prev_hash mismatch")}
	a := New(chain, &stubRecords{}, Config{FailThreshold: 3}, zap.NewNop())

	var (
		mu     sync.Mutex
		events []string
	)
	a.SetWebhookDispatch(func(_ context.Context, eventType string, payload map[string]string) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, eventType)
		if payload["chain_error"] == "" {
			t.Error("degraded payload missing chain_error")
		}
	})

	for i := 0; i < 2; i++ {
		if rep := a.CheckAll(context.Background()); rep.Status == StatusDegraded {
			t.Fatalf("degraded after %d failures, threshold is 3", i+1)
		}
	}
	for i := 0; i < 2; i++ {
		if rep := a.CheckAll(context.Background()); rep.Status != StatusDegraded {
			t.Fatalf("status = %q after %d failures", rep.Status, i+3)
		}
	}
	if len(events) != 1 || events[0] != service.EventLedgerDegraded {
		t.Errorf("events = %v, want one %s", events, service.EventLedgerDegraded)
	}
}

func TestCheckAll_recoversOnSuccess(t *testing.T) {
	chain := &stubChain{err: errors.New("broken")}
	a := New(chain, &stubRecords{}, Config{FailThreshold: 1}, zap.NewNop())

	var outcomes []bool
	a.SetMetricsRecord(func(ok bool) { outcomes = append(outcomes, ok) })

	a.CheckAll(context.Background())
	chain.err = nil
	rep := a.CheckAll(context.Background())

	if rep.Status != StatusHealthy || rep.ConsecutiveFailures != 0 {
		t.Errorf("report = %+v, want healthy", rep)
	}
	if len(outcomes) != 2 || outcomes[0] || !outcomes[1] {
		t.Errorf("metrics outcomes = %v, want [false true]", outcomes)
	}
}

func TestReadyHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	chain := &stubChain{}
	a := New(chain, &stubRecords{}, Config{}, zap.NewNop())

	r := gin.New()
	r.GET("/readyz", a.ReadyHandler())
	probe := func() int {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
		return w.Code
	}

	if code := probe(); code != http.StatusOK {
		t.Errorf("unknown state = %d, want 200", code)
	}
	chain.err = errors.New("broken")
	a.CheckAll(context.Background())
	if code := probe(); code != http.StatusServiceUnavailable {
		t.Errorf("degraded state = %d, want 503", code)
	}
}
