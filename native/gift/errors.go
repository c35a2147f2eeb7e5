package gift

import "errors"

// Every precondition failure maps to exactly one sentinel. A failure aborts
// the whole operation (and any enclosing batch) with no partial effect.
var (
	// Parameter validation.
	ErrInvalidToken         = errors.New("gift: invalid token")
	ErrAmountBelowMinimum   = errors.New("gift: amount below minimum")
	ErrAmountNotDivisible   = errors.New("gift: amount not divisible into minimum splits")
	ErrSplitCountOutOfRange = errors.New("gift: split count out of range")
	ErrSkinTooLong          = errors.New("gift: skin exceeds length bound")
	ErrMessageTooLong       = errors.New("gift: message exceeds length bound")

	// Identity and slot conflicts.
	ErrGiftIDInUse   = errors.New("gift: id already in use")
	ErrCodeHashInUse = errors.New("gift: code hash currently occupied")
	ErrNotFound      = errors.New("gift: not found")

	// Lifecycle conflicts.
	ErrAlreadyClaimed      = errors.New("gift: already claimed")
	ErrAlreadyRefunded     = errors.New("gift: already refunded")
	ErrGiftExpired         = errors.New("gift: expired past grace window")
	ErrClaimAmountExceeded = errors.New("gift: claim amount exceeds remainder")
	ErrClaimCountExceeded  = errors.New("gift: claim count exceeds split count")
	ErrRefundNotSender     = errors.New("gift: refund caller is not the sender")
	ErrRefundTooEarly      = errors.New("gift: refund not available before grace elapses")

	// Asset movement.
	ErrTransferFailed = errors.New("gift: transfer verification failed")

	// Access control.
	ErrUnauthorized = errors.New("gift: unauthorized caller")
)
