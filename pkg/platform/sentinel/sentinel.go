package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and infrastructure layers
// return these (optionally wrapped) so services can translate them into
// domain behavior.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: entity does not exist in store
// - ErrConflict: unique constraint hit (record already committed)
// - ErrLeaseHeld: a non-expired lease for the identity is owned elsewhere
// - ErrExpired: lease or token has passed its deadline
// - ErrUnavailable: backing service temporarily unreachable
var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrLeaseHeld   = errors.New("lease held")
	ErrExpired     = errors.New("expired")
	ErrUnavailable = errors.New("unavailable")
)
