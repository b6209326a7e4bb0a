package model

import (
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/sha3"
)

// Role is the dashboard role a caller acts under.
type Role string

const (
	RoleFarmer    Role = "farmer"
	RoleInspector Role = "inspector"
	RolePackaging Role = "packaging"
	RoleLogistics Role = "logistics"
	RoleRetailer  Role = "retailer"
	RoleViewer    Role = "viewer"
	RoleAdmin     Role = "admin"
)

var roles = []Role{RoleFarmer, RoleInspector, RolePackaging, RoleLogistics, RoleRetailer, RoleViewer, RoleAdmin}

// ParseRole resolves s to a known role.
func ParseRole(s string) (Role, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, r := range roles {
		if string(r) == s {
			return r, nil
		}
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// Identity is the acting party behind a ledger operation. Subject is the
// stable account identifier established by the transport layer.
type Identity struct {
	Subject string `json:"subject"`
	Role    Role   `json:"role"`
}

// Address returns the opaque ledger address of the identity.
func (i Identity) Address() string {
	return AddressOf(i.Subject)
}

// AddressOf derives a 20-byte hex address from a subject: the trailing 20
// bytes of its Keccak-256 digest. The same subject always maps to the same
// address.
func AddressOf(subject string) string {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(strings.TrimSpace(subject)))
	sum := h.Sum(nil)
	return "0x" + hex.EncodeToString(sum[len(sum)-20:])
}
