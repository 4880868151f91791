package auth

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const (
	// OTPLength is the number of digits in a one-time code.
	OTPLength = 6
	// InviteCodeLength is the number of symbols in a friend invite code.
	InviteCodeLength = 6
	// InviteAlphabet leaves out I, O, 0 and 1.
	InviteAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

	otpMin = 100000
	otpMax = 999999
)

// CodeGenerator produces one-time codes and friend invite codes.
type CodeGenerator interface {
	OneTimeCode() (string, error)
	InviteCode() (string, error)
}

// RandomCodes draws codes from crypto/rand.
type RandomCodes struct{}

// OneTimeCode returns a 6-digit code uniform over [100000, 999999].
func (RandomCodes) OneTimeCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(otpMax-otpMin+1))
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%d", n.Int64()+otpMin), nil
}

// InviteCode returns a 6-symbol code from InviteAlphabet. Uniqueness is up to the caller.
func (RandomCodes) InviteCode() (string, error) {
	alphabetSize := big.NewInt(int64(len(InviteAlphabet)))
	code := make([]byte, InviteCodeLength)
	for i := range code {
		n, err := rand.Int(rand.Reader, alphabetSize)
		if err != nil {
			return "", fmt.Errorf("generate invite code: %w", err)
		}
		code[i] = InviteAlphabet[n.Int64()]
	}
	return string(code), nil
}
