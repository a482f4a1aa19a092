package pool

import apperrors "github.com/go-i2p/dbpool/lib/errors"

// Errors returned by the pool. These are aliases to the central definitions
// in lib/errors so callers can match them with errors.Is from either package.
var (
	ErrPoolConfig      = apperrors.ErrPoolConfig
	ErrInitialization  = apperrors.ErrInitialization
	ErrNewConnection   = apperrors.ErrNewConnection
	ErrPoolExhausted   = apperrors.ErrPoolExhausted
	ErrAlreadyReleased = apperrors.ErrAlreadyReleased
	ErrReleasedUse     = apperrors.ErrReleasedUse
	ErrRelease         = apperrors.ErrRelease
	ErrInvalidHandle   = apperrors.ErrInvalidHandle
	ErrPoolClosed      = apperrors.ErrPoolClosed
)
