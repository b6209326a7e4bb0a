package handler_test

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/jmerrifield20/agriledger/internal/archive"
	"github.com/jmerrifield20/agriledger/internal/certification/handler"
	"github.com/jmerrifield20/agriledger/internal/certification/model"
	"github.com/jmerrifield20/agriledger/internal/certification/service"
	"github.com/jmerrifield20/agriledger/internal/certification/store"
	"github.com/jmerrifield20/agriledger/internal/identity"
	"github.com/jmerrifield20/agriledger/internal/trustledger"
)

func init() { gin.SetMode(gin.TestMode) }

type fixture struct {
	router *gin.Engine
	ledger *service.Ledger
	log    *trustledger.MemoryLedger
}

func setupRouter(t *testing.T, th service.Thresholds) *fixture {
	t.Helper()
	log := trustledger.New()
	fees, err := store.ParseFeeSchedule("1.25", "0.50")
	if err != nil {
		t.Fatal(err)
	}
	st := store.New(log, store.Options{Fees: fees})
	l, err := service.NewLedger(st, log, service.Config{Thresholds: th})
	if err != nil {
		t.Fatal(err)
	}
	auth := identity.NewAuthenticator(nil, true)

	r := gin.New()
	v1 := r.Group("/api/v1")
	handler.NewRecordHandler(l, auth, zap.NewNop()).Register(v1)
	handler.NewLedgerHandler(log, zap.NewNop()).Register(v1)
	return &fixture{router: r, ledger: l, log: log}
}

func (f *fixture) do(t *testing.T, method, path, subject, role string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if subject != "" {
		req.Header.Set(identity.HeaderSubject, subject)
		req.Header.Set(identity.HeaderRole, role)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

func apples() model.RecordInput {
	return model.RecordInput{
		ProductName:    "Organic Apples",
		BatchSize:      "500 kg",
		Category:       "Fresh",
		Location:       "Yakima Valley, WA",
		HarvestDate:    "2024-09-14",
		Certifications: []string{"Organic"},
	}
}

func (f *fixture) create(t *testing.T) model.Record {
	t.Helper()
	w := f.do(t, http.MethodPost, "/api/v1/records", "farmer-001", "farmer", apples())
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp struct {
		Record model.Record `json:"record"`
	}
	decode(t, w, &resp)
	return resp.Record
}

func TestCreateRecord(t *testing.T) {
	f := setupRouter(t, service.Thresholds{})
	rec := f.create(t)

	if rec.Status != model.StatusCertified || rec.VerificationCount != 0 {
		t.Errorf("record = %s/%d, want Certified/0", rec.Status, rec.VerificationCount)
	}
	if rec.IssuerAddress != model.AddressOf("farmer-001") {
		t.Errorf("issuer address = %s", rec.IssuerAddress)
	}
	if rec.TransactionFee.String() != "1.75" {
		t.Errorf("fee = %s, want 1.75", rec.TransactionFee)
	}
}

func TestCreateRecordRejections(t *testing.T) {
	f := setupRouter(t, service.Thresholds{})

	bad := apples()
	bad.ProductName = ""
	bad.HarvestDate = "14/09/2024"

	tests := []struct {
		name    string
		subject string
		role    string
		body    any
		want    int
	}{
		{"no identity", "", "", apples(), http.StatusUnauthorized},
		{"unknown role", "x", "wizard", apples(), http.StatusUnauthorized},
		{"viewer", "viewer-1", "viewer", apples(), http.StatusForbidden},
		{"invalid fields", "farmer-001", "farmer", bad, http.StatusBadRequest},
		{"malformed json", "farmer-001", "farmer", "not an object", http.StatusBadRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := f.do(t, http.MethodPost, "/api/v1/records", tc.subject, tc.role, tc.body)
			if w.Code != tc.want {
				t.Fatalf("status = %d, want %d; body = %s", w.Code, tc.want, w.Body.String())
			}
		})
	}

	w := f.do(t, http.MethodPost, "/api/v1/records", "farmer-001", "farmer", bad)
	var resp struct {
		Fields []model.FieldError `json:"fields"`
	}
	decode(t, w, &resp)
	if len(resp.Fields) != 2 {
		t.Errorf("fields = %+v, want product_name and harvest_date", resp.Fields)
	}
}

func TestGetRecord(t *testing.T) {
	f := setupRouter(t, service.Thresholds{})
	rec := f.create(t)

	w := f.do(t, http.MethodGet, "/api/v1/records/"+rec.ID.String(), "", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var got model.Record
	decode(t, w, &got)
	if got.ID != rec.ID || got.IntegrityHash != rec.IntegrityHash {
		t.Errorf("got %+v, want %+v", got, rec)
	}

	if w := f.do(t, http.MethodGet, "/api/v1/records/"+uuid.NewString(), "", "", nil); w.Code != http.StatusNotFound {
		t.Errorf("unknown id status = %d, want 404", w.Code)
	}
	if w := f.do(t, http.MethodGet, "/api/v1/records/not-a-uuid", "", "", nil); w.Code != http.StatusBadRequest {
		t.Errorf("malformed id status = %d, want 400", w.Code)
	}
}

func TestVerifyLifecycle(t *testing.T) {
	f := setupRouter(t, service.Thresholds{InTransit: 1, Delivered: 2})
	rec := f.create(t)
	path := "/api/v1/records/" + rec.ID.String() + "/verify"

	steps := []struct {
		subject, role string
		wantCode      int
		wantStatus    model.Status
	}{
		{"inspector-007", "inspector", http.StatusOK, model.StatusInTransit},
		{"retailer-042", "retailer", http.StatusOK, model.StatusDelivered},
		{"inspector-007", "inspector", http.StatusConflict, ""},
	}
	for i, s := range steps {
		w := f.do(t, http.MethodPost, path, s.subject, s.role, nil)
		if w.Code != s.wantCode {
			t.Fatalf("step %d: status = %d, want %d; body = %s", i, w.Code, s.wantCode, w.Body.String())
		}
		if s.wantStatus == "" {
			continue
		}
		var got model.Record
		decode(t, w, &got)
		if got.Status != s.wantStatus || got.VerificationCount != i+1 {
			t.Fatalf("step %d: record = %s/%d", i, got.Status, got.VerificationCount)
		}
	}
}

func TestVerifyErrors(t *testing.T) {
	f := setupRouter(t, service.Thresholds{})
	rec := f.create(t)

	tests := []struct {
		name          string
		path          string
		subject, role string
		want          int
	}{
		{"unknown record", "/api/v1/records/" + uuid.NewString() + "/verify", "inspector-007", "inspector", http.StatusNotFound},
		{"issuer self-verify", "/api/v1/records/" + rec.ID.String() + "/verify", "farmer-001", "farmer", http.StatusForbidden},
		{"viewer", "/api/v1/records/" + rec.ID.String() + "/verify", "viewer-1", "viewer", http.StatusForbidden},
		{"bad id", "/api/v1/records/xyz/verify", "inspector-007", "inspector", http.StatusBadRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if w := f.do(t, http.MethodPost, tc.path, tc.subject, tc.role, nil); w.Code != tc.want {
				t.Fatalf("status = %d, want %d; body = %s", w.Code, tc.want, w.Body.String())
			}
		})
	}
}

func TestDispute(t *testing.T) {
	f := setupRouter(t, service.Thresholds{})
	rec := f.create(t)
	path := "/api/v1/records/" + rec.ID.String() + "/dispute"

	long := handler.DisputeRequest{Reason: strings.Repeat("x", 1025)}
	if w := f.do(t, http.MethodPost, path, "retailer-042", "retailer", long); w.Code != http.StatusBadRequest {
		t.Errorf("oversized reason status = %d, want 400", w.Code)
	}
	if w := f.do(t, http.MethodPost, "/api/v1/records/"+uuid.NewString()+"/dispute", "retailer-042", "retailer", nil); w.Code != http.StatusNotFound {
		t.Errorf("unknown record status = %d, want 404", w.Code)
	}

	body := handler.DisputeRequest{Reason: "bruised on arrival"}
	w := f.do(t, http.MethodPost, path, "retailer-042", "retailer", body)
	if w.Code != http.StatusOK {
		t.Fatalf("dispute status = %d, body = %s", w.Code, w.Body.String())
	}
	var got model.Record
	decode(t, w, &got)
	if got.Status != model.StatusDisputed {
		t.Fatalf("status = %s, want Disputed", got.Status)
	}

	if w := f.do(t, http.MethodPost, "/api/v1/records/"+rec.ID.String()+"/verify", "inspector-007", "inspector", nil); w.Code != http.StatusConflict {
		t.Errorf("verify disputed status = %d, want 409", w.Code)
	}

	other := f.create(t)
	w = f.do(t, http.MethodPost, "/api/v1/records/"+other.ID.String()+"/dispute", "retailer-042", "retailer", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("dispute without body status = %d, body = %s", w.Code, w.Body.String())
	}
	decode(t, w, &got)
	if got.Status != model.StatusDisputed {
		t.Errorf("status = %s, want Disputed", got.Status)
	}
}

func TestListRecords(t *testing.T) {
	f := setupRouter(t, service.Thresholds{})
	first := f.create(t)
	f.create(t)
	f.do(t, http.MethodPost, "/api/v1/records/"+first.ID.String()+"/dispute", "retailer-042", "retailer",
		handler.DisputeRequest{Reason: "mislabelled"})

	tests := []struct {
		query     string
		wantCode  int
		wantCount int
	}{
		{"", http.StatusOK, 2},
		{"?category=fresh", http.StatusOK, 2},
		{"?category=Dairy", http.StatusOK, 0},
		{"?status=Disputed", http.StatusOK, 1},
		{"?status=Certified&category=Fresh", http.StatusOK, 1},
		{"?category=Candy", http.StatusBadRequest, 0},
		{"?status=Lost", http.StatusBadRequest, 0},
	}
	for _, tc := range tests {
		t.Run(tc.query, func(t *testing.T) {
			w := f.do(t, http.MethodGet, "/api/v1/records"+tc.query, "", "", nil)
			if w.Code != tc.wantCode {
				t.Fatalf("status = %d, want %d", w.Code, tc.wantCode)
			}
			if tc.wantCode != http.StatusOK {
				return
			}
			var resp struct {
				Records []model.Record `json:"records"`
				Count   int            `json:"count"`
			}
			decode(t, w, &resp)
			if resp.Count != tc.wantCount || len(resp.Records) != tc.wantCount {
				t.Fatalf("count = %d (%d records), want %d", resp.Count, len(resp.Records), tc.wantCount)
			}
		})
	}
}

func TestHistoryAndIntegrity(t *testing.T) {
	f := setupRouter(t, service.Thresholds{})
	rec := f.create(t)
	f.do(t, http.MethodPost, "/api/v1/records/"+rec.ID.String()+"/verify", "inspector-007", "inspector", nil)

	w := f.do(t, http.MethodGet, "/api/v1/records/"+rec.ID.String()+"/history", "", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("history status = %d", w.Code)
	}
	var hist struct {
		Entries []trustledger.Entry `json:"entries"`
		Count   int                 `json:"count"`
	}
	decode(t, w, &hist)
	if hist.Count != 2 || hist.Entries[0].Action != trustledger.ActionCreate || hist.Entries[1].Action != trustledger.ActionVerify {
		t.Fatalf("history = %+v", hist)
	}

	w = f.do(t, http.MethodGet, "/api/v1/records/"+rec.ID.String()+"/integrity", "", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("integrity status = %d", w.Code)
	}
	var report service.IntegrityReport
	decode(t, w, &report)
	if !report.Valid || report.StoredHash != rec.IntegrityHash {
		t.Errorf("report = %+v", report)
	}

	if w := f.do(t, http.MethodGet, "/api/v1/records/"+uuid.NewString()+"/integrity", "", "", nil); w.Code != http.StatusNotFound {
		t.Errorf("unknown integrity status = %d, want 404", w.Code)
	}
}

func TestSummary(t *testing.T) {
	f := setupRouter(t, service.Thresholds{})
	f.create(t)
	f.create(t)

	w := f.do(t, http.MethodGet, "/api/v1/metrics/summary", "", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var m model.Metrics
	decode(t, w, &m)
	if m.TotalRecords != 2 || m.PerCategoryCounts[model.CategoryFresh] != 2 {
		t.Errorf("metrics = %+v", m)
	}
	if m.EstimatedRevenue.String() != "3.5" {
		t.Errorf("revenue = %s, want 3.5", m.EstimatedRevenue)
	}
	if _, ok := m.PerCategoryCounts[model.CategoryDairy]; !ok {
		t.Error("empty categories should be reported with zero")
	}
}

func TestLedgerEndpoints(t *testing.T) {
	f := setupRouter(t, service.Thresholds{})
	f.create(t)

	w := f.do(t, http.MethodGet, "/api/v1/ledger", "", "", nil)
	var overview struct {
		Entries int    `json:"entries"`
		Root    string `json:"root"`
	}
	decode(t, w, &overview)
	if overview.Entries != 2 || overview.Root == "" {
		t.Errorf("overview = %+v", overview)
	}

	w = f.do(t, http.MethodGet, "/api/v1/ledger/verify", "", "", nil)
	var verify struct {
		Valid bool `json:"valid"`
	}
	decode(t, w, &verify)
	if !verify.Valid {
		t.Errorf("verify body = %s", w.Body.String())
	}

	w = f.do(t, http.MethodGet, "/api/v1/ledger/entries/0", "", "", nil)
	var genesis trustledger.Entry
	decode(t, w, &genesis)
	if genesis.Action != trustledger.ActionGenesis || genesis.PrevHash != trustledger.GenesisHash {
		t.Errorf("entry 0 = %+v", genesis)
	}

	cases := map[string]int{
		"/api/v1/ledger/entries/99":              http.StatusNotFound,
		"/api/v1/ledger/entries/-1":              http.StatusBadRequest,
		"/api/v1/ledger/entries/abc":             http.StatusBadRequest,
		"/api/v1/ledger/entries?from=x":          http.StatusBadRequest,
		"/api/v1/ledger/entries?limit=0":         http.StatusBadRequest,
		"/api/v1/ledger/entries?from=1&limit=10": http.StatusOK,
	}
	for path, want := range cases {
		if w := f.do(t, http.MethodGet, path, "", "", nil); w.Code != want {
			t.Errorf("GET %s = %d, want %d", path, w.Code, want)
		}
	}

	w = f.do(t, http.MethodGet, "/api/v1/ledger/entries?from=0&limit=1", "", "", nil)
	var page struct {
		Count int `json:"count"`
	}
	decode(t, w, &page)
	if page.Count != 1 {
		t.Errorf("page count = %d, want 1", page.Count)
	}
}

type stubArchiver struct {
	res archive.Result
	err error
}

func (s *stubArchiver) Run(context.Context) (archive.Result, error) { return s.res, s.err }

func setupAdmin(t *testing.T, tokens *identity.TokenIssuer, runner handler.ArchiveRunner) *gin.Engine {
	t.Helper()
	r := gin.New()
	auth := identity.NewAuthenticator(tokens, true)
	handler.NewAdminHandler(tokens, runner, auth, time.Hour, zap.NewNop()).Register(r.Group("/api/v1"))
	return r
}

func adminRequest(r *gin.Engine, path, role string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(identity.HeaderSubject, "ops")
	req.Header.Set(identity.HeaderRole, role)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAdminArchive(t *testing.T) {
	r := setupAdmin(t, nil, nil)
	if w := adminRequest(r, "/api/v1/admin/archive", "admin", nil); w.Code != http.StatusServiceUnavailable {
		t.Errorf("unconfigured status = %d, want 503", w.Code)
	}

	ok := &stubArchiver{res: archive.Result{Key: "ledger-0000000000-0000000003.jsonl", ToIndex: 3, Entries: 4}}
	r = setupAdmin(t, nil, ok)
	if w := adminRequest(r, "/api/v1/admin/archive", "farmer", nil); w.Code != http.StatusForbidden {
		t.Errorf("non-admin status = %d, want 403", w.Code)
	}
	w := adminRequest(r, "/api/v1/admin/archive", "admin", nil)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d", w.Code)
	}
	var res archive.Result
	decode(t, w, &res)
	if res.Entries != 4 {
		t.Errorf("result = %+v", res)
	}

	r = setupAdmin(t, nil, &stubArchiver{err: errors.New("bucket gone")})
	if w := adminRequest(r, "/api/v1/admin/archive", "admin", nil); w.Code != http.StatusBadGateway {
		t.Errorf("failed run status = %d, want 502", w.Code)
	}
}

func TestAdminIssueToken(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	tokens := identity.NewTokenIssuer(key, "https://ledger.test", time.Hour)
	r := setupAdmin(t, tokens, nil)

	tests := []struct {
		name string
		body any
		want int
	}{
		{"valid", handler.IssueTokenRequest{Subject: "inspector-007", Role: "inspector", TTL: "30m"}, http.StatusCreated},
		{"missing subject", handler.IssueTokenRequest{Role: "inspector"}, http.StatusBadRequest},
		{"blank subject", handler.IssueTokenRequest{Subject: "  ", Role: "inspector"}, http.StatusBadRequest},
		{"unknown role", handler.IssueTokenRequest{Subject: "x", Role: "wizard"}, http.StatusBadRequest},
		{"bad ttl", handler.IssueTokenRequest{Subject: "x", Role: "farmer", TTL: "soon"}, http.StatusBadRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if w := adminRequest(r, "/api/v1/tokens", "admin", tc.body); w.Code != tc.want {
				t.Fatalf("status = %d, want %d; body = %s", w.Code, tc.want, w.Body.String())
			}
		})
	}

	w := adminRequest(r, "/api/v1/tokens", "admin", handler.IssueTokenRequest{Subject: "inspector-007", Role: "inspector"})
	var resp struct {
		Token string `json:"token"`
	}
	decode(t, w, &resp)
	claims, err := tokens.Verify(resp.Token)
	if err != nil {
		t.Fatalf("issued token does not verify: %v", err)
	}
	if id := claims.Identity(); id.Subject != "inspector-007" || id.Role != model.RoleInspector {
		t.Errorf("identity = %+v", id)
	}
}

func TestRateLimiter(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := gin.New()
	r.Use(handler.RateLimiter(ctx, 1, 2))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 3)
	for i := range codes {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
		codes[i] = w.Code
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("codes = %v, want [200 200 429]", codes)
	}
}

func TestLedgerCollector(t *testing.T) {
	f := setupRouter(t, service.Thresholds{})
	f.create(t)
	f.create(t)

	reg := prometheus.NewPedanticRegistry()
	reg.MustRegister(handler.NewLedgerCollector(f.ledger.Metrics()))
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}

	values := map[string]float64{}
	series := map[string]int{}
	for _, mf := range families {
		series[mf.GetName()] = len(mf.GetMetric())
		if m := mf.GetMetric(); len(m) == 1 {
			values[mf.GetName()] = m[0].GetGauge().GetValue()
		}
	}
	if values["agriledger_records"] != 2 {
		t.Errorf("agriledger_records = %v, want 2", values["agriledger_records"])
	}
	if values["agriledger_estimated_revenue"] != 3.5 {
		t.Errorf("revenue = %v, want 3.5", values["agriledger_estimated_revenue"])
	}
	if series["agriledger_records_by_category"] != len(model.Categories()) {
		t.Errorf("category series = %d, want %d", series["agriledger_records_by_category"], len(model.Categories()))
	}
	if series["agriledger_records_by_status"] != len(model.Statuses()) {
		t.Errorf("status series = %d, want %d", series["agriledger_records_by_status"], len(model.Statuses()))
	}
}
