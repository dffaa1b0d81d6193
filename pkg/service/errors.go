package service

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound               = errors.New("link not found")
	ErrDuplicateAlias         = errors.New("alias already taken")
	ErrTierLimitExceeded      = errors.New("tier limit exceeded")
	ErrPremiumFeatureRequired = errors.New("premium feature required")
	ErrOwnerRequired          = errors.New("owner not found in context")
)

// ValidationError is a malformed-input rejection with field detail,
// recovered at the request boundary.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// GoneReason distinguishes why a link is gone for diagnostics; clients see
// both as the same 410 class.
type GoneReason string

const (
	GoneInactive GoneReason = "inactive"
	GoneExpired  GoneReason = "expired"
)

// GoneError marks a link that exists but no longer redirects.
type GoneError struct {
	Reason GoneReason
}

func (e *GoneError) Error() string {
	if e.Reason == GoneExpired {
		return "This URL has expired."
	}
	return "This URL is inactive."
}
