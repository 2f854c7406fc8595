package user

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"unicode"
)

const (
	passwordSaltBytes = 16
	passwordIters     = 100_000
	passwordMinLen    = 8
)

func GenerateSaltHex() (string, error) {
	b := make([]byte, passwordSaltBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("rand: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func HashPassword(password, saltHex string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("password is empty")
	}
	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		return "", fmt.Errorf("invalid salt: %w", err)
	}
	// 多轮 SHA256(salt || password || prev)。
	// 说明：生产建议使用 bcrypt/argon2（需要额外依赖与环境支持）。
	var prev [32]byte
	for i := 0; i < passwordIters; i++ {
		h := sha256.New()
		_, _ = h.Write(salt)
		_, _ = h.Write([]byte(password))
		_, _ = h.Write(prev[:])
		copy(prev[:], h.Sum(nil))
	}
	return hex.EncodeToString(prev[:]), nil
}

func VerifyPassword(password, saltHex, wantHashHex string) bool {
	got, err := HashPassword(password, saltHex)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(wantHashHex)) == 1
}

// ValidatePassword 口令强度校验：至少 8 位，且同时包含字母和数字。
func ValidatePassword(password string) error {
	if len(password) < passwordMinLen {
		return fmt.Errorf("password must be at least %d characters", passwordMinLen)
	}
	var hasLetter, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if !hasLetter || !hasDigit {
		return fmt.Errorf("password must contain both letters and digits")
	}
	return nil
}
