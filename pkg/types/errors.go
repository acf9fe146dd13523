package types

import "errors"

// Error kinds returned by ledger operations. Every error aborts the
// triggering operation with no observable side effect; retries are the
// caller's responsibility.
var (
	ErrNotFound         = errors.New("record not found")
	ErrNotOwner         = errors.New("caller is not the position owner")
	ErrTermClosed       = errors.New("term is not open")
	ErrCapacityExceeded = errors.New("term capacity exceeded")
	ErrNotForSale       = errors.New("position is not listed for sale")
	ErrAlreadyListed    = errors.New("position is already listed for sale")
	ErrAlreadyClosed    = errors.New("position is already closed")
	ErrTransferFailed   = errors.New("asset transfer failed")
	ErrPaused           = errors.New("ledger is paused")
	ErrAssetNotAccepted = errors.New("asset is not accepted")
)
