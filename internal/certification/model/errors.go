package model

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Sentinels matched with errors.Is by the transport layer.
var (
	ErrValidation    = errors.New("validation failed")
	ErrNotFound      = errors.New("record not found")
	ErrForbidden     = errors.New("forbidden")
	ErrTerminalState = errors.New("record is in a terminal state")
)

// FieldError describes one rejected input field.
type FieldError struct {
	Field string `json:"field"`
	Msg   string `json:"message"`
}

// ValidationError is returned when creation input or query arguments are
// malformed. The caller must correct and resubmit.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Msg)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// Add appends a field failure.
func (e *ValidationError) Add(field, msg string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Msg: msg})
}

// OrNil returns e when it holds at least one field failure.
func (e *ValidationError) OrNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

// NewValidationError builds a single-field ValidationError.
func NewValidationError(field, msg string) *ValidationError {
	return &ValidationError{Fields: []FieldError{{Field: field, Msg: msg}}}
}

// NotFoundError is returned for an unknown record id.
type NotFoundError struct {
	ID uuid.UUID
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("record %s not found", e.ID) }

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// ForbiddenError is returned when the acting party may not perform an action.
type ForbiddenError struct {
	Subject string
	Action  Action
	Reason  string
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("%s may not %s: %s", e.Subject, e.Action, e.Reason)
}

func (e *ForbiddenError) Is(target error) bool { return target == ErrForbidden }

// TerminalStateError is returned when a closed record receives a mutation.
type TerminalStateError struct {
	ID     uuid.UUID
	Status Status
}

func (e *TerminalStateError) Error() string {
	return fmt.Sprintf("record %s is %s and accepts no further changes", e.ID, e.Status)
}

func (e *TerminalStateError) Is(target error) bool { return target == ErrTerminalState }

// Action names a ledger operation subject to authorization.
type Action string

const (
	ActionCertify Action = "certify"
	ActionVerify  Action = "verify"
	ActionDispute Action = "dispute"
)
