package service

import (
	"errors"
	"fmt"

	"github.com/dextersy/label-dashboard-sub004/internal/models"
)

var (
	// validation
	ErrInvalidCount     = errors.New("count must be at least 1")
	ErrInvalidBuyer     = errors.New("buyer name and a valid email are required")
	ErrInvalidReference = errors.New("invalid payment reference")
	ErrInvalidPIN       = errors.New("invalid PIN")
	ErrInvalidSession   = errors.New("check-in session is invalid or expired")

	// lookups
	ErrEventNotFound      = errors.New("event not found")
	ErrTicketTypeNotFound = errors.New("ticket type not found")
	ErrNotFound           = errors.New("ticket not found")

	// capacity and state conflicts
	ErrSoldOut            = errors.New("sold out")
	ErrCapacityExceeded   = ErrSoldOut
	ErrTicketTypeDisabled = errors.New("ticket type is not on sale")
	ErrOutsideSaleWindow  = errors.New("outside the ticket type sale window")
	ErrSaleClosed         = errors.New("ticket sales are closed")
	ErrNotPayable         = errors.New("ticket is unpaid or canceled")
	ErrOverClaim          = errors.New("entries already claimed")
	ErrNotTransferable    = errors.New("ticket cannot be transferred")
	ErrNotCancelable      = errors.New("ticket cannot be canceled")

	// infrastructure
	ErrCodeGenerationExhausted = errors.New("could not generate a unique ticket code")
	ErrStore                   = errors.New("ticket store unavailable")
)

// OverClaimError is returned by Claim when the requested entries exceed what
// is left on the ticket. It matches ErrOverClaim.
type OverClaimError struct {
	Code      string
	Requested int
	Remaining int
}

func (e *OverClaimError) Error() string {
	return fmt.Sprintf("%s: ticket %s has %d of the requested %d entries left", ErrOverClaim, e.Code, e.Remaining, e.Requested)
}

func (e *OverClaimError) Is(target error) bool {
	return target == ErrOverClaim
}

// known are the errors that already carry a business meaning and must reach
// the caller untouched.
var known = []error{
	ErrInvalidCount, ErrInvalidBuyer, ErrInvalidReference, ErrInvalidPIN, ErrInvalidSession,
	ErrEventNotFound, ErrTicketTypeNotFound, ErrNotFound,
	ErrSoldOut, ErrTicketTypeDisabled, ErrOutsideSaleWindow, ErrSaleClosed,
	ErrNotPayable, ErrOverClaim, ErrNotTransferable, ErrNotCancelable,
	ErrCodeGenerationExhausted, ErrStore, models.ErrInvalidTransition,
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStore, err)
}

// classify leaves business errors alone and marks anything else, such as a
// failed commit, as a store failure.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, k := range known {
		if errors.Is(err, k) {
			return err
		}
	}
	return storeErr(op, err)
}
