package domain

import "errors"

// Settlement-path errors. Every public operation either fully commits or
// aborts with one of these; no operation succeeds partially.
var (
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrOverflow          = errors.New("arithmetic overflow")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrWrongAsset        = errors.New("wrong asset")
	ErrAlreadySettled    = errors.New("market already settled")
	ErrTooEarly          = errors.New("market has not ended yet")
	ErrTooLateToBet      = errors.New("market closed for betting")
	ErrInvalidPriceFeed  = errors.New("invalid price feed")
	ErrStalePrice        = errors.New("price reading is stale")
	ErrMarketNotResolved = errors.New("market not resolved")
	ErrNoWinningBet      = errors.New("no winning bet")
	ErrAlreadyClaimed    = errors.New("position already claimed")
	ErrBadConfiguration  = errors.New("bad market configuration")
	ErrInvalidOutcome    = errors.New("invalid outcome index")
	ErrInsufficientPool  = errors.New("insufficient pool balance")
)

// Infrastructure errors shared across stores, caches, and locks.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrLockHeld      = errors.New("lock already held")
	ErrContextDone   = errors.New("context cancelled")
	ErrWSDisconnect  = errors.New("websocket disconnected")
)
