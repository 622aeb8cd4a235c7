package util

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
)

const (
	deskIDBytes    = 16
	signatureBytes = 32
)

func GenerateDeskID() (string, error) {
	return randomHex(deskIDBytes)
}

func GenerateSignature() (string, error) {
	return randomHex(signatureBytes)
}

func randomHex(n int) (string, error) {
	bytes := make([]byte, n)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

func ConstantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
