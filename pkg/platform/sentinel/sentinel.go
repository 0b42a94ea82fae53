package sentinel

import "errors"

// Sentinel errors for infrastructure facts. The session store and the
// persistence gateways return these (optionally wrapped) so the registration
// service can translate them into domain errors.
//
//   - ErrNotFound: key or row does not exist (a lapsed session TTL looks the same)
//   - ErrConflict: a concurrent writer won a compare-and-swap, or a unique key is taken
//   - ErrExpired: a record was read past its absolute expiry
//   - ErrInvalidState: a guarded mutation was attempted from the wrong state
//   - ErrUnavailable: backing service could not be reached
//
// For validation errors (bad input, missing fields), use pkg/domain-errors directly.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrExpired      = errors.New("expired")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
