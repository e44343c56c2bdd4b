package service

import "errors"

var (
	ErrOrderNotFound         = errors.New("order not found")
	ErrOrderKeyInvalid       = errors.New("order access key invalid")
	ErrOrderFetchFailed      = errors.New("order fetch failed")
	ErrOrderUpdateFailed     = errors.New("order update failed")
	ErrOrderCreateFailed     = errors.New("order create failed")
	ErrOrderStatusInvalid    = errors.New("order status invalid")
	ErrOrderStatusTerminal   = errors.New("order status is terminal")
	ErrOrderStatusConflict   = errors.New("order status changed concurrently")
	ErrGatewayUnsupported    = errors.New("payment gateway unsupported")
	ErrRemoteCallFailed      = errors.New("remote call failed")
	ErrRemoteIDInvalid       = errors.New("remote resource id invalid")
	ErrRemoteIDConflict      = errors.New("remote resource id already assigned")
	ErrRemoteResourceMissing = errors.New("order has no remote resource")
	ErrRemoteLineIDsRequired = errors.New("remote line ids required")
	ErrRefundAmountInvalid   = errors.New("refund amount invalid")
	ErrNoteRecordFailed      = errors.New("order note record failed")
	ErrSweepScheduleFailed   = errors.New("expiry sweep schedule failed")
)
