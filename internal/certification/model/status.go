package model

import (
	"fmt"
	"strings"
)

// Status is the trust state of a record.
//
//	Certified ──▶ InTransit ──▶ Delivered
//	    │             │
//	    └─────────────┴──▶ Disputed
type Status string

const (
	StatusCertified Status = "Certified"
	StatusInTransit Status = "InTransit"
	StatusDelivered Status = "Delivered"
	StatusDisputed  Status = "Disputed"
)

var statuses = []Status{StatusCertified, StatusInTransit, StatusDelivered, StatusDisputed}

// Statuses returns every status in lifecycle order.
func Statuses() []Status {
	out := make([]Status, len(statuses))
	copy(out, statuses)
	return out
}

// ParseStatus resolves s to a known status, ignoring case and surrounding
// whitespace.
func ParseStatus(s string) (Status, error) {
	s = strings.TrimSpace(s)
	for _, st := range statuses {
		if strings.EqualFold(string(st), s) {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown status %q", s)
}

// IsTerminal reports whether the status accepts no further verification.
func (s Status) IsTerminal() bool {
	return s == StatusDelivered || s == StatusDisputed
}

// rank orders the success path. Disputed sits outside it.
func (s Status) rank() int {
	switch s {
	case StatusCertified:
		return 0
	case StatusInTransit:
		return 1
	case StatusDelivered:
		return 2
	default:
		return -1
	}
}

// CanMoveTo reports whether moving from s to next keeps the lifecycle
// monotone. Staying put is always allowed for non-terminal states.
func (s Status) CanMoveTo(next Status) bool {
	if s == next {
		return !s.IsTerminal()
	}
	if s.IsTerminal() {
		return false
	}
	if next == StatusDisputed {
		return true
	}
	from, to := s.rank(), next.rank()
	return from >= 0 && to >= 0 && to == from+1
}
