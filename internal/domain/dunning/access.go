package dunning

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/erp/settlement/internal/domain/shared"
)

// AccessStateName is the coarse gate applied to an account
type AccessStateName string

const (
	AccessStateNormal   AccessStateName = "normal"
	AccessStateReadOnly AccessStateName = "read_only"
	AccessStateBlocked  AccessStateName = "blocked"
)

// IsValid checks if the name is a known access state
func (s AccessStateName) IsValid() bool {
	return s == AccessStateNormal || s == AccessStateReadOnly || s == AccessStateBlocked
}

// AccessState is derived from the dunning level; it is never stored
type AccessState struct {
	DunningLevel int             `json:"dunning_level"`
	State        AccessStateName `json:"state"`
	IsBlocked    bool            `json:"is_blocked"`
	IsReadOnly   bool            `json:"is_read_only"`
	Overridden   bool            `json:"overridden"`
}

// AllowsWrites reports whether mutating operations are permitted
func (a AccessState) AllowsWrites() bool {
	return !a.IsReadOnly && !a.IsBlocked
}

// Resolve maps a dunning level to its access state. Blocked implies read-only.
func Resolve(level int) AccessState {
	state := AccessState{DunningLevel: level}
	switch {
	case level >= LevelBlocked:
		state.State = AccessStateBlocked
		state.IsBlocked = true
		state.IsReadOnly = true
	case level == LevelReadOnly:
		state.State = AccessStateReadOnly
		state.IsReadOnly = true
	default:
		state.State = AccessStateNormal
	}
	return state
}

// Override forces an account's access state regardless of its dunning level,
// e.g. a negotiated payment plan or a fraud hold.
type Override struct {
	ID        uuid.UUID       `json:"id"`
	AccountID uuid.UUID       `json:"account_id"`
	State     AccessStateName `json:"state"`
	Reason    string          `json:"reason"`
	ExpiresAt *time.Time      `json:"expires_at,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// NewOverride validates and creates an override
func NewOverride(accountID uuid.UUID, state AccessStateName, reason string, expiresAt *time.Time, now time.Time) (*Override, error) {
	if accountID == uuid.Nil {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "account ID cannot be empty")
	}
	if !state.IsValid() {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, fmt.Sprintf("unknown access state %q", state))
	}
	if reason == "" {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "override reason is required")
	}
	if expiresAt != nil && !expiresAt.After(now) {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "override expiry must be in the future")
	}
	return &Override{
		ID:        uuid.New(),
		AccountID: accountID,
		State:     state,
		Reason:    reason,
		ExpiresAt: expiresAt,
		CreatedAt: now,
	}, nil
}

// IsActive reports whether the override applies at now
func (o *Override) IsActive(now time.Time) bool {
	return o != nil && (o.ExpiresAt == nil || now.Before(*o.ExpiresAt))
}

// ResolveWithOverride applies an active override on top of the level-derived state.
// The dunning level is reported unchanged so callers still see the real severity.
func ResolveWithOverride(level int, o *Override, now time.Time) AccessState {
	state := Resolve(level)
	if !o.IsActive(now) {
		return state
	}
	state.Overridden = true
	state.State = o.State
	state.IsBlocked = o.State == AccessStateBlocked
	state.IsReadOnly = o.State == AccessStateBlocked || o.State == AccessStateReadOnly
	return state
}
