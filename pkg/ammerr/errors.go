// Package ammerr holds the registered error codes returned by the swap core.
package ammerr

import (
	errorsmod "cosmossdk.io/errors"
)

const Codespace = "cpswap"

var (
	ErrInvalidInput        = errorsmod.Register(Codespace, 2, "invalid input")
	ErrMathOverflow        = errorsmod.Register(Codespace, 3, "math overflow")
	ErrNotApproved         = errorsmod.Register(Codespace, 4, "not approved")
	ErrExceededSlippage    = errorsmod.Register(Codespace, 5, "exceeds desired slippage limit")
	ErrInsufficientBalance = errorsmod.Register(Codespace, 6, "insufficient balance")
	ErrInvalidOwner        = errorsmod.Register(Codespace, 7, "invalid owner")
	ErrInvalidAuthority    = errorsmod.Register(Codespace, 8, "invalid authority")
	ErrOracleUnavailable   = errorsmod.Register(Codespace, 9, "oracle unavailable")
	ErrStalePrice          = errorsmod.Register(Codespace, 10, "stale price")
	ErrZeroTradingTokens   = errorsmod.Register(Codespace, 11, "zero trading tokens")
	ErrInvariantViolated   = errorsmod.Register(Codespace, 12, "constant product decreased")
	ErrDiscountDisabled    = errorsmod.Register(Codespace, 13, "discount payment disabled")
	ErrTransferFailed      = errorsmod.Register(Codespace, 14, "transfer failed")
	ErrAccountNotFound     = errorsmod.Register(Codespace, 15, "account not found")
	ErrInvalidAccountData  = errorsmod.Register(Codespace, 16, "invalid account data")
)
