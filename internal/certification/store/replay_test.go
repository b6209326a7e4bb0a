package store_test

import (
	"testing"

	"github.com/jmerrifield20/agriledger/internal/certification/model"
	"github.com/jmerrifield20/agriledger/internal/certification/store"
	"github.com/jmerrifield20/agriledger/internal/trustledger"
)

func TestOpen_replayReconstructsState(t *testing.T) {
	s, log := newStore(t)

	a, _ := s.Create(ctx, apples(), farmer)
	tea := apples()
	tea.ProductName = "Green Tea"
	tea.Category = "Teas"
	b, _ := s.Create(ctx, tea, farmer)
	_, _ = s.Verify(ctx, a.ID, inspector, advanceAt(2))
	_, _ = s.Verify(ctx, a.ID, inspector, advanceAt(2))
	_, _, _ = s.Dispute(ctx, b.ID, inspector, "broken seal")

	rebuilt, err := store.Open(ctx, log, store.Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	want := s.Snapshot(ctx)
	got := rebuilt.Snapshot(ctx)
	if len(got) != len(want) {
		t.Fatalf("rebuilt %d records, want %d", len(got), len(want))
	}
	for i := range want {
		w, g := want[i], got[i]
		if g.ID != w.ID || g.Seq != w.Seq || g.IntegrityHash != w.IntegrityHash ||
			g.Status != w.Status || g.VerificationCount != w.VerificationCount ||
			g.Description != w.Description || !g.CreatedAt.Equal(w.CreatedAt) ||
			!g.TransactionFee.Equal(w.TransactionFee) {
			t.Errorf("record %d differs after replay:\n got  %+v\n want %+v", i, g, w)
		}
	}

	rebuiltA, _ := rebuilt.Get(ctx, a.ID)
	if rebuiltA.Status != model.StatusInTransit || rebuiltA.VerificationCount != 2 {
		t.Errorf("record a = %s/%d, want InTransit/2", rebuiltA.Status, rebuiltA.VerificationCount)
	}

	// New records continue the sequence.
	c, err := rebuilt.Create(ctx, apples(), farmer)
	if err != nil {
		t.Fatal(err)
	}
	if c.Seq != 3 {
		t.Errorf("Seq after replay = %d, want 3", c.Seq)
	}
}

func TestOpen_rejectsTamperedIntegrityHash(t *testing.T) {
	log := trustledger.New()
	s := store.New(log, store.Options{})
	rec, _ := s.Create(ctx, apples(), farmer)

	// A well-chained log whose create payload lies about its content.
	forged := trustledger.New()
	rec.Location = "Somewhere cheaper"
	if _, err := forged.Append(ctx, rec.ID.String(), trustledger.ActionCreate, rec.IssuerAddress, rec); err != nil {
		t.Fatal(err)
	}
	if err := forged.Verify(ctx); err != nil {
		t.Fatalf("forged chain should still link: %v", err)
	}

	if _, err := store.Open(ctx, forged, store.Options{}); err == nil {
		t.Error("Open should reject a record whose integrity hash does not match")
	}
}

func TestOpen_rejectsVerifyOnTerminalRecord(t *testing.T) {
	log := trustledger.New()
	s := store.New(log, store.Options{})
	rec, _ := s.Create(ctx, apples(), farmer)
	_, _, _ = s.Dispute(ctx, rec.ID, inspector, "mould")

	ev := store.VerifyEvent{Verifier: inspector.Address(), VerificationCount: 1, Status: model.StatusDisputed}
	if _, err := log.Append(ctx, rec.ID.String(), trustledger.ActionVerify, ev.Verifier, ev); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Open(ctx, log, store.Options{}); err == nil {
		t.Error("Open should reject a verification of a disputed record")
	}
}

func TestOpen_replaysMultibyteText(t *testing.T) {
	s, log := newStore(t)

	in := apples()
	in.ProductName = "Café de Colombia \ufffd lot"
	in.Description = "Tostado artesanal, 焙煎"
	in.Location = "São Paulo"
	in.Certifications = []string{"Bio ✓", "Organic"}
	in.Category = "Grains"
	rec, err := s.Create(ctx, in, farmer)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !model.VerifyIntegrity(&rec) {
		t.Fatal("fresh record fails its own integrity check")
	}

	rebuilt, err := store.Open(ctx, log, store.Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	got, err := rebuilt.Get(ctx, rec.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.ProductName != rec.ProductName || got.IntegrityHash != rec.IntegrityHash {
		t.Errorf("replayed record = %q/%s, want %q/%s",
			got.ProductName, got.IntegrityHash, rec.ProductName, rec.IntegrityHash)
	}
}
