package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidAmount          = errors.New("invalid amount")
	ErrAlreadyRefunded        = errors.New("sale already refunded")
	ErrIncompleteVerification = errors.New("verification incomplete")
	ErrPersistenceFailure     = errors.New("persistence failure")
	ErrDeletionFailure        = errors.New("deletion failed: day NOT closed, retry")
	ErrAlreadyInProgress      = errors.New("finalization already in progress, please wait")
	ErrDayClosed              = errors.New("business day already closed")
	ErrInvalidRequest         = errors.New("invalid request")
	ErrNotFound               = errors.New("not found")
)

const (
	KindInvalidAmount          = "invalid_amount"
	KindAlreadyRefunded        = "already_refunded"
	KindIncompleteVerification = "incomplete_verification"
	KindPersistenceFailure     = "persistence_failure"
	KindDeletionFailure        = "deletion_failure"
	KindAlreadyInProgress      = "already_in_progress"
	KindDayClosed              = "day_closed"
	KindInvalidRequest         = "invalid_request"
	KindNotFound               = "not_found"
	KindInternal               = "internal"
)

var kinds = []struct {
	err  error
	kind string
}{
	{ErrInvalidAmount, KindInvalidAmount},
	{ErrAlreadyRefunded, KindAlreadyRefunded},
	{ErrIncompleteVerification, KindIncompleteVerification},
	{ErrDeletionFailure, KindDeletionFailure},
	{ErrPersistenceFailure, KindPersistenceFailure},
	{ErrAlreadyInProgress, KindAlreadyInProgress},
	{ErrDayClosed, KindDayClosed},
	{ErrInvalidRequest, KindInvalidRequest},
	{ErrNotFound, KindNotFound},
}

// KindOf maps an error to the stable kind string used by transports.
func KindOf(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}

// IsValidation reports whether err is a caller-side validation error that
// must not be retried.
func IsValidation(err error) bool {
	switch KindOf(err) {
	case KindInvalidAmount, KindAlreadyRefunded, KindIncompleteVerification, KindInvalidRequest, KindNotFound, KindDayClosed:
		return true
	}
	return false
}

// FailedCashierError names the cashiers whose counts could not be persisted.
type FailedCashierError struct {
	CashierIDs []string
	Err        error
}

func (e *FailedCashierError) Error() string {
	return fmt.Sprintf("%v: cashiers [%s]: %v", ErrPersistenceFailure, strings.Join(e.CashierIDs, ", "), e.Err)
}

func (e *FailedCashierError) Unwrap() []error {
	return []error{ErrPersistenceFailure, e.Err}
}
