package data

import "errors"

// Storage-level error values. The HTTP layer maps these onto status codes
// with errors.Is; the CLI prints the message verbatim.
var (
	ErrPageAlreadyExists      = errors.New("page already exists")
	ErrPageNotFound           = errors.New("page not found")
	ErrPageDeleted            = errors.New("page deleted")
	ErrPageLocked             = errors.New("page locked")
	ErrInvalidPath            = errors.New("invalid path")
	ErrInvalidRevision        = errors.New("invalid revision")
	ErrRootProtected          = errors.New("root page protected")
	ErrLockNotFound           = errors.New("lock not found")
	ErrLockForbidden          = errors.New("lock forbidden")
	ErrAmendForbidden         = errors.New("amend forbidden")
	ErrAssetNotFound          = errors.New("asset not found")
	ErrAssetDeleted           = errors.New("asset deleted")
	ErrAssetAlreadyExists     = errors.New("asset already exists")
	ErrAssetMovePageDeleted   = errors.New("asset move page deleted")
	ErrInvalidMoveDestination = errors.New("invalid move destination")
	ErrUserNotFound           = errors.New("user not found")
	ErrUserAlreadyExists      = errors.New("user already exists")
)
