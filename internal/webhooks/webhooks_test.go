package webhooks_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jmerrifield20/agriledger/internal/certification/model"
	"github.com/jmerrifield20/agriledger/internal/certification/service"
	"github.com/jmerrifield20/agriledger/internal/identity"
	"github.com/jmerrifield20/agriledger/internal/webhooks"
)

var ctx = context.Background()

func init() {
	gin.SetMode(gin.TestMode)
}

type received struct {
	body      []byte
	signature string
	event     string
}

func TestDispatch_deliversSignedEvent(t *testing.T) {
	got := make(chan received, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got <- received{body: body, signature: r.Header.Get(webhooks.SignatureHeader), event: r.Header.Get("X-Agriledger-Event")}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	repo := webhooks.NewMemoryRepository()
	svc := webhooks.NewService(repo, zap.NewNop())
	sub, err := svc.Subscribe(ctx, "0xretailer", &webhooks.CreateSubscriptionRequest{
		URL:    srv.URL,
		Events: []string{service.EventRecordStatusChanged},
	})
	if err != nil {
		t.Fatal(err)
	}

	// Not subscribed to this one.
	svc.Dispatch(ctx, service.EventRecordCreated, map[string]string{"record_id": "a"})
	svc.Dispatch(ctx, service.EventRecordStatusChanged, map[string]string{"record_id": "b", "status": "InTransit"})

	select {
	case r := <-got:
		if r.signature != webhooks.SignPayload(r.body, sub.Secret) {
			t.Error("signature does not match body")
		}
		if r.event != service.EventRecordStatusChanged {
			t.Errorf("event header = %q", r.event)
		}
		var ev webhooks.WebhookEvent
		if err := json.Unmarshal(r.body, &ev); err != nil {
			t.Fatal(err)
		}
		if ev.Type != service.EventRecordStatusChanged || ev.Payload["record_id"] != "b" {
			t.Errorf("event = %+v", ev)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no delivery received")
	}

	select {
	case r := <-got:
		t.Errorf("unexpected second delivery: %s", r.body)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestDispatch_retriesUntilSuccess(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	repo := webhooks.NewMemoryRepository()
	svc := webhooks.NewService(repo, zap.NewNop())
	svc.SetRetryDelays([]time.Duration{0, time.Millisecond, time.Millisecond})

	var mu sync.Mutex
	var outcomes []bool
	done := make(chan struct{})
	svc.SetMetricsRecorder(func(success bool) {
		mu.Lock()
		outcomes = append(outcomes, success)
		if success {
			close(done)
		}
		mu.Unlock()
	})

	sub, _ := svc.Subscribe(ctx, "0xinspector", &webhooks.CreateSubscriptionRequest{
		URL:    srv.URL,
		Events: []string{service.EventRecordDisputed},
	})
	svc.Dispatch(ctx, service.EventRecordDisputed, map[string]string{"record_id": "x"})

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("delivery never succeeded")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(outcomes) != 3 || outcomes[0] || outcomes[1] || !outcomes[2] {
		t.Errorf("outcomes = %v, want [false false true]", outcomes)
	}
	deliveries := repo.Deliveries(sub.ID)
	if len(deliveries) != 3 || deliveries[2].Attempt != 3 || !deliveries[2].Success {
		t.Errorf("deliveries = %+v", deliveries)
	}
}

func TestSubscribe_rejectsUnknownEvent(t *testing.T) {
	svc := webhooks.NewService(webhooks.NewMemoryRepository(), zap.NewNop())
	_, err := svc.Subscribe(ctx, "0x1", &webhooks.CreateSubscriptionRequest{
		URL:    "https://example.test/hook",
		Events: []string{"record.deleted"},
	})
	if err == nil {
		t.Error("unknown event should be rejected")
	}
}

func TestUnsubscribe_checksOwner(t *testing.T) {
	svc := webhooks.NewService(webhooks.NewMemoryRepository(), zap.NewNop())
	sub, _ := svc.Subscribe(ctx, "0xowner", &webhooks.CreateSubscriptionRequest{
		URL:    "https://example.test/hook",
		Events: webhooks.KnownEvents(),
	})

	if err := svc.Unsubscribe(ctx, "0xintruder", sub.ID); err != webhooks.ErrNotOwner {
		t.Errorf("error = %v, want ErrNotOwner", err)
	}
	if err := svc.Unsubscribe(ctx, "0xowner", sub.ID); err != nil {
		t.Errorf("owner unsubscribe: %v", err)
	}
	if err := svc.Unsubscribe(ctx, "0xowner", sub.ID); err != webhooks.ErrNotFound {
		t.Errorf("second unsubscribe error = %v, want ErrNotFound", err)
	}
}

func setupWebhookRouter(svc *webhooks.Service) *gin.Engine {
	r := gin.New()
	v1 := r.Group("/api/v1")
	webhooks.NewHandler(svc, identity.NewAuthenticator(nil, true), zap.NewNop()).Register(v1)
	return r
}

func doJSON(r *gin.Engine, method, path, subject string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if subject != "" {
		req.Header.Set(identity.HeaderSubject, subject)
		req.Header.Set(identity.HeaderRole, string(model.RoleRetailer))
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHandler_lifecycle(t *testing.T) {
	svc := webhooks.NewService(webhooks.NewMemoryRepository(), zap.NewNop())
	r := setupWebhookRouter(svc)

	if w := doJSON(r, http.MethodGet, "/api/v1/webhooks", "", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("anonymous list = %d, want 401", w.Code)
	}

	w := doJSON(r, http.MethodPost, "/api/v1/webhooks", "retailer-1", map[string]any{
		"url":    "https://shop.example.test/hooks",
		"events": []string{service.EventRecordVerified},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create = %d: %s", w.Code, w.Body.String())
	}
	var created struct {
		Subscription webhooks.WebhookSubscription `json:"subscription"`
		Secret       string                       `json:"secret"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatal(err)
	}
	if created.Secret == "" || created.Subscription.Owner != model.AddressOf("retailer-1") {
		t.Errorf("created = %+v", created)
	}

	w = doJSON(r, http.MethodPost, "/api/v1/webhooks", "retailer-1", map[string]any{
		"url":    "https://shop.example.test/hooks",
		"events": []string{"record.exploded"},
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("unknown event create = %d, want 400", w.Code)
	}

	w = doJSON(r, http.MethodGet, "/api/v1/webhooks", "retailer-1", nil)
	var listed struct {
		Count int `json:"count"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &listed)
	if w.Code != http.StatusOK || listed.Count != 1 {
		t.Errorf("list = %d, count %d", w.Code, listed.Count)
	}

	path := "/api/v1/webhooks/" + created.Subscription.ID.String()
	if w := doJSON(r, http.MethodDelete, path, "retailer-2", nil); w.Code != http.StatusForbidden {
		t.Errorf("foreign delete = %d, want 403", w.Code)
	}
	if w := doJSON(r, http.MethodDelete, path, "retailer-1", nil); w.Code != http.StatusNoContent {
		t.Errorf("delete = %d, want 204", w.Code)
	}
	if w := doJSON(r, http.MethodDelete, path, "retailer-1", nil); w.Code != http.StatusNotFound {
		t.Errorf("repeat delete = %d, want 404", w.Code)
	}
	if w := doJSON(r, http.MethodDelete, "/api/v1/webhooks/nope", "retailer-1", nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad id delete = %d, want 400", w.Code)
	}
}
