package model

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
)

// integrityDomain separates record hashes from any other SHA-256 use.
const integrityDomain = "agriledger/record/v1"

// IntegrityFields is the canonical, immutable content of a record. Field
// order here is the serialization order and must not change.
type IntegrityFields struct {
	ProductName    string   `json:"product_name"`
	Category       Category `json:"category"`
	BatchSize      string   `json:"batch_size"`
	Location       string   `json:"location"`
	HarvestDate    string   `json:"harvest_date"`
	Certifications []string `json:"certifications"`
	IssuerAddress  string   `json:"issuer_address"`
}

// ComputeIntegrityHash returns "sha256:<hex>" over the canonical JSON of f,
// prefixed by a domain tag and a NUL separator. Certifications are hashed in
// sorted order regardless of input order.
func ComputeIntegrityHash(f IntegrityFields) string {
	certs := make([]string, len(f.Certifications))
	copy(certs, f.Certifications)
	sort.Strings(certs)
	f.Certifications = certs

	// Marshalling a struct of strings cannot fail.
	canonical, _ := json.Marshal(f)

	h := sha256.New()
	h.Write([]byte(integrityDomain))
	h.Write([]byte{0x00})
	h.Write(canonical)
	return "sha256:" + hex.EncodeToString(h.Sum(nil))
}

// VerifyIntegrity reports whether r.IntegrityHash still matches its content.
func VerifyIntegrity(r *Record) bool {
	return r.IntegrityHash == ComputeIntegrityHash(r.IntegrityFields())
}
