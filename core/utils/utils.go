package utils

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"net/mail"
	"strings"
	"time"
	"unicode"
)

func NowUTC() time.Time {
	return time.Now().UTC()
}

// RandString returns n bytes of randomness, URL-safe base64 encoded.
func RandString(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf)[:n], nil
}

var (
	ErrUsernameEmpty   = errors.New("username is empty")
	ErrUsernameInvalid = errors.New("username contains forbidden characters")
	ErrUsernameTooLong = errors.New("username is too long")
)

// Account-name format rules of the platform: no leading/trailing space,
// no control characters, none of the characters that break page titles,
// and a byte budget shared with page titles.
const maxUsernameBytes = 255

var forbiddenNameChars = "#<>[]|{}/@:"

func ValidateUsername(name string) error {
	if strings.TrimSpace(name) == "" {
		return ErrUsernameEmpty
	}
	if name != strings.TrimSpace(name) {
		return ErrUsernameInvalid
	}
	if len(name) > maxUsernameBytes {
		return ErrUsernameTooLong
	}
	if strings.ContainsAny(name, forbiddenNameChars) {
		return ErrUsernameInvalid
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return ErrUsernameInvalid
		}
	}
	return nil
}

// IsCreatableName reports whether the username satisfies the account-name
// format rules for newly assigned names.
func IsCreatableName(name string) bool {
	return ValidateUsername(name) == nil
}

func ValidateEmail(addr string) error {
	a, err := mail.ParseAddress(strings.TrimSpace(addr))
	if err != nil {
		return errors.New("invalid email address")
	}
	if !strings.Contains(a.Address, "@") {
		return errors.New("invalid email address")
	}
	return nil
}

var ErrPasswordTooShort = errors.New("password must be at least 8 characters")

func ValidatePassword(pwd string) error {
	if len(pwd) < 8 {
		return ErrPasswordTooShort
	}
	return nil
}
