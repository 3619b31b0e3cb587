package domain

import "github.com/pkg/errors"

var (
	// ErrInvalidBar is returned for malformed bars or out-of-order appends.
	ErrInvalidBar = errors.New("invalid bar")
	// ErrInvalidFilters is returned when exchange filters cannot be used for sizing.
	ErrInvalidFilters = errors.New("invalid symbol filters")
	// ErrUnsatisfiableNotional is returned when a sized quantity stays below min notional.
	ErrUnsatisfiableNotional = errors.New("quantity does not satisfy min notional")
)
