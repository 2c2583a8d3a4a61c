package security

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"math/big"
)

const otpDigits = 6

// GenerateOTP returns a zero-padded numeric code and its hash. Only the hash
// is ever persisted.
func GenerateOTP() (string, []byte, error) {
	max := big.NewInt(1)
	for i := 0; i < otpDigits; i++ {
		max.Mul(max, big.NewInt(10))
	}

	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", nil, fmt.Errorf("generate otp: %w", err)
	}

	code := fmt.Sprintf("%0*d", otpDigits, n)
	return code, HashOTP(code), nil
}

func HashOTP(code string) []byte {
	sum := sha256.Sum256([]byte(code))
	return sum[:]
}

func VerifyOTP(code string, hash []byte) bool {
	return subtle.ConstantTimeCompare(HashOTP(code), hash) == 1
}
