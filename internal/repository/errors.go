// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as
// services and handlers to distinguish between failure scenarios without
// string matching on driver errors.
package repository

import "errors"

// ErrNotFound is returned when a lookup matches no row. Handlers
// should translate this into an HTTP 404 response.
var ErrNotFound = errors.New("not found")

// ErrEmailExists is returned when a registration collides with an
// existing email address. Handlers should translate this into an
// HTTP 409 response.
var ErrEmailExists = errors.New("email already exists")

// ErrAlreadyRevoked is returned when a conditional refresh-token
// revocation affects zero rows, meaning another request revoked the
// same family id first. The token service treats this as a reuse
// signal.
var ErrAlreadyRevoked = errors.New("refresh token already revoked")
