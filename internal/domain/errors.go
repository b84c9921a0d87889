package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by the lifecycle methods and services
// wraps exactly one of these, so callers can classify with errors.Is.
var (
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrForbidden       = errors.New("forbidden")
	ErrPaymentRequired = errors.New("payment required")
	ErrInvalid         = errors.New("invalid request")
)

var (
	ErrDisputeNotFound    = fmt.Errorf("%w: dispute not found", ErrNotFound)
	ErrShareCodeNotFound  = fmt.Errorf("%w: no dispute with this share code", ErrNotFound)
	ErrUserNotFound       = fmt.Errorf("%w: user not found", ErrNotFound)
	ErrAttachmentNotFound = fmt.Errorf("%w: attachment not found", ErrNotFound)
	ErrResolutionNotReady = fmt.Errorf("%w: dispute has no resolution yet", ErrNotFound)

	ErrAlreadyJoined     = fmt.Errorf("%w: dispute already has a second party", ErrConflict)
	ErrDuplicateTruth    = fmt.Errorf("%w: truth already submitted by this user", ErrConflict)
	ErrAlreadyResolved   = fmt.Errorf("%w: dispute is already resolved", ErrConflict)
	ErrResolutionPending = fmt.Errorf("%w: resolution is already being generated", ErrConflict)
	ErrAwaitingTruths    = fmt.Errorf("%w: both parties must submit before resolution", ErrConflict)
	ErrEmailTaken        = fmt.Errorf("%w: email already registered", ErrConflict)

	ErrSelfJoin           = fmt.Errorf("%w: creator cannot join own dispute", ErrForbidden)
	ErrNotAParty          = fmt.Errorf("%w: user is not a party to this dispute", ErrForbidden)
	ErrInvalidCredentials = fmt.Errorf("%w: invalid email or password", ErrForbidden)

	ErrChargeDeclined = fmt.Errorf("%w: charge declined", ErrPaymentRequired)
)
