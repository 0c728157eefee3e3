// Package otp implements the email verification-code rounds used by sign-up
// and by password reset.
//
// Both flows share one protocol — send a short-lived code to an email, then
// confirm it — and differ only in purpose. The purpose is part of the storage
// key, so a code sent for sign-up can never satisfy a password-reset
// challenge and vice versa.
package otp

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// Purpose identifies which flow a challenge belongs to.
type Purpose string

const (
	PurposeSignup Purpose = "signup"
	PurposeReset  Purpose = "reset"
)

// CodeDigits is the length of a generated verification code.
const CodeDigits = 6

// Generate returns a new 6-digit verification code drawn from crypto/rand.
// Codes are zero-padded so "004213" is as likely as "994213".
func Generate() (string, error) {
	max := big.NewInt(1)
	for i := 0; i < CodeDigits; i++ {
		max.Mul(max, big.NewInt(10))
	}

	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("otp: generating code: %w", err)
	}

	return fmt.Sprintf("%0*d", CodeDigits, n), nil
}
