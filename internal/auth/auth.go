// Package auth verifies identity tokens issued by the external OTP/email
// verification service.
//
// Tokens are HS256 JWTs whose payload carries the verified college email as
// the `email` claim. This package never mints tokens.
package auth

import "errors"

var (
	ErrMissingCredentials = errors.New("missing credentials")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnsupportedJWT     = errors.New("unsupported jwt")
)

// Verifier validates identity tokens and extracts the stable identity string.
type Verifier interface {
	// VerifyIdentity verifies token and returns the identity (email claim).
	VerifyIdentity(token string) (string, error)
}
