package shared

import "errors"

// Sentinel errors shared by the product and work center masters. Handlers
// map these onto HTTP problem responses.
var (
	ErrNotFound      = errors.New("masterdata: record not found")
	ErrDuplicate     = errors.New("masterdata: code already exists")
	ErrValidation    = errors.New("masterdata: validation failed")
	ErrInvalidID     = errors.New("masterdata: invalid id")
	ErrInUse         = errors.New("masterdata: record is referenced elsewhere")
	ErrRequiredField = errors.New("masterdata: missing required field")
)
