// Package otp implements issuance and verification of short-lived one-time
// passcodes scoped to an email address and a purpose.
//
// Two independent limits defend against two different threats: the per-identity
// request cap (rolling hour) controls abuse and delivery cost for a flood of
// "request" calls, while the per-code attempt ceiling controls brute-forcing a
// known-length numeric code. Neither can substitute for the other.
package otp

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
)

// Failure subtypes. Distinguishable internally for logging; every one except
// ErrRateLimited surfaces to clients as the same generic "invalid or expired
// code" message to prevent enumeration.
var (
	ErrInvalidCode      = errors.New("otp: code mismatch")
	ErrExpired          = errors.New("otp: code expired")
	ErrAlreadyUsed      = errors.New("otp: code already used")
	ErrAttemptsExceeded = errors.New("otp: attempt ceiling reached")
	ErrRateLimited      = errors.New("otp: request cap exceeded")
)

// IsOtpError reports whether err is one of the verification failure subtypes
// (as opposed to an infrastructure error reaching the store).
func IsOtpError(err error) bool {
	return errors.Is(err, ErrInvalidCode) ||
		errors.Is(err, ErrExpired) ||
		errors.Is(err, ErrAlreadyUsed) ||
		errors.Is(err, ErrAttemptsExceeded)
}

// GenerateCode returns a cryptographically random numeric code of the given
// length with leading zeros preserved.
func GenerateCode(length int) (string, error) {
	bound := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(length)), nil)

	n, err := rand.Int(rand.Reader, bound)
	if err != nil {
		return "", fmt.Errorf("failed to generate otp code: %w", err)
	}

	return fmt.Sprintf("%0*d", length, n), nil
}
