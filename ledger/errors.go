package ledger

import "errors"

var (
	// ErrInsufficientPayment is returned by SaveHash when the attached payment
	// is below the service fee.
	ErrInsufficientPayment = errors.New("Not paid enough service fee") //nolint:stylecheck // reason string is matched by callers
	// ErrNotOwner is returned by TransferOwner invoked not by the administrator.
	ErrNotOwner = errors.New("not owner")
	// ErrNotAdministrator is returned by Withdraw invoked not by the administrator.
	ErrNotAdministrator = errors.New("It is not owner") //nolint:stylecheck // reason string is matched by callers
	// ErrInsufficientBalance is returned by Withdraw requesting more than the
	// ledger holds.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrNegativeAmount is returned for negative withdrawal amounts.
	ErrNegativeAmount = errors.New("negative amount")
	// ErrEmptyArgument is returned by SaveHash for empty UDID or content hash.
	ErrEmptyArgument = errors.New("empty UDID or content hash")
	// ErrContentHashTooLong is returned by SaveHash for content hashes longer
	// than MaxContentHashLen.
	ErrContentHashTooLong = errors.New("content hash is too long")
	// ErrAmountTooLarge is returned by SaveHash when the payment or the
	// resulting balance does not fit the ledger amount encoding.
	ErrAmountTooLarge = errors.New("amount is too large")
	// ErrReentrantCall is returned for calls made while Withdraw runs the
	// payout.
	ErrReentrantCall = errors.New("reentrant ledger call")
	// ErrPayoutFailed wraps payout errors of Withdraw.
	ErrPayoutFailed = errors.New("payout failed")
	// ErrPayoutPending is returned by Payout when funds may have been sent
	// but the result is unknown. Withdraw keeps such withdrawals booked.
	ErrPayoutPending = errors.New("payout outcome unknown")
)
