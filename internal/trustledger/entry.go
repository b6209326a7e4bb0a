package trustledger

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// GenesisHash is the canonical well-known hash of the genesis entry.
// It serves as the trust anchor of the chain; all subsequent entry hashes
// chain from this constant rather than from a computed value.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// Actions recorded in the log.
const (
	ActionGenesis = "genesis"
	ActionCreate  = "create"
	ActionVerify  = "verify"
	ActionDispute = "dispute"
)

// SystemActor is the actor recorded on entries written by the ledger itself.
const SystemActor = "agriledger-system"

// ErrEntryNotFound is returned by Get for an index outside the chain.
var ErrEntryNotFound = errors.New("ledger entry not found")

// Entry is a single event in the ledger.
type Entry struct {
	Index     int             `json:"index"`
	Timestamp time.Time       `json:"timestamp"`
	RecordID  string          `json:"record_id,omitempty"`
	Action    string          `json:"action"`    // create, verify, dispute, genesis
	Actor     string          `json:"actor"`     // issuer/verifier address or SystemActor
	Payload   json.RawMessage `json:"payload"`   // event body, replayed on startup
	DataHash  string          `json:"data_hash"` // SHA-256 of Payload
	PrevHash  string          `json:"prev_hash"`
	Hash      string          `json:"hash"`
}

func newGenesis() *Entry {
	return &Entry{
		Index:     0,
		Timestamp: now(),
		Action:    ActionGenesis,
		Actor:     SystemActor,
		Payload:   json.RawMessage("null"),
		DataHash:  GenesisHash,
		PrevHash:  GenesisHash,
		Hash:      GenesisHash, // genesis hash is the well-known constant, not computed
	}
}

// newEntry builds the successor of prev for the given event.
func newEntry(prev *Entry, recordID, action, actor string, payload any) (*Entry, error) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	e := &Entry{
		Index:     prev.Index + 1,
		Timestamp: now(),
		RecordID:  recordID,
		Action:    action,
		Actor:     actor,
		Payload:   payloadJSON,
		DataHash:  sha256Sum(payloadJSON),
		PrevHash:  prev.Hash,
	}
	e.Hash = hashEntry(e)
	return e, nil
}

// now truncates to microseconds so timestamps survive a PostgreSQL round trip
// and the entry hash stays reproducible.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// hashEntry computes a deterministic SHA-256 hash over an entry's fields.
// This function must never be called on the genesis entry (index 0).
func hashEntry(e *Entry) string {
	h := sha256.New()
	fmt.Fprintf(h, "%d|%s|%s|%s|%s|%s|%s",
		e.Index, e.Timestamp.UTC().Format(time.RFC3339Nano),
		e.RecordID, e.Action, e.Actor, e.DataHash, e.PrevHash,
	)
	return hex.EncodeToString(h.Sum(nil))
}

// sha256Sum returns the hex-encoded SHA-256 digest of data.
func sha256Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// checkLink validates curr against its predecessor. prev is nil for the
// genesis entry.
func checkLink(prev, curr *Entry) error {
	if prev == nil {
		if curr.Hash != GenesisHash {
			return fmt.Errorf("genesis entry has wrong hash: got %q", curr.Hash)
		}
		return nil
	}
	if curr.Index != prev.Index+1 {
		return fmt.Errorf("index gap between %d and %d", prev.Index, curr.Index)
	}
	if curr.PrevHash != prev.Hash {
		return fmt.Errorf("hash chain broken at index %d", curr.Index)
	}
	if curr.DataHash != sha256Sum(curr.Payload) {
		return fmt.Errorf("entry %d payload does not match its data hash", curr.Index)
	}
	if curr.Hash != hashEntry(curr) {
		return fmt.Errorf("entry %d has invalid hash", curr.Index)
	}
	return nil
}

func cloneEntry(e *Entry) *Entry {
	cp := *e
	cp.Payload = append(json.RawMessage(nil), e.Payload...)
	return &cp
}
