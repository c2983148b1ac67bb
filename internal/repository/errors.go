// Package repository implements the credential store: durable user
// records together with their single-slot refresh and reset tokens.
// These sentinel values let the service layer tell ordinary outcomes
// (missing user, duplicate email, lost compare-and-swap) apart from
// infrastructure faults, which are returned wrapped.
package repository

import "errors"

// ErrNotFound is returned when no user matches the given id or email.
var ErrNotFound = errors.New("user not found")

// ErrEmailExists is returned by Create when the email is already taken.
var ErrEmailExists = errors.New("email already exists")

// ErrStaleToken is returned by the conditional token writes when the slot
// no longer holds the expected digest, has expired, or the user is gone.
// Callers treat it as an invalid token.
var ErrStaleToken = errors.New("token slot changed")
