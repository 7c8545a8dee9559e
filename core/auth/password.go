package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// argon2id parameters. Changing them only affects newly hashed
// passwords; stored hashes carry their own parameters.
const (
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
	argonKeyLen  = 32
	saltLen      = 16
)

func NewSalt() (string, error) {
	buf := make([]byte, saltLen)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawStdEncoding.EncodeToString(buf), nil
}

// HashPassword derives an argon2id hash of password+pepper under salt.
// The encoded form records the parameters it was produced with.
func HashPassword(password, salt, pepper string) (string, error) {
	rawSalt, err := base64.RawStdEncoding.DecodeString(salt)
	if err != nil {
		return "", fmt.Errorf("decode salt: %w", err)
	}
	key := argon2.IDKey([]byte(password+pepper), rawSalt, argonTime, argonMemory, argonThreads, argonKeyLen)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s",
		argon2.Version, argonMemory, argonTime, argonThreads,
		base64.RawStdEncoding.EncodeToString(key)), nil
}

func MustHashPassword(password, salt, pepper string) string {
	h, err := HashPassword(password, salt, pepper)
	if err != nil {
		panic(err)
	}
	return h
}

var errMalformedHash = errors.New("malformed password hash")

// VerifyPassword checks password+pepper against the stored encoded hash.
func VerifyPassword(password, salt, pepper, encoded string) (bool, error) {
	memory, timeCost, threads, key, err := parsePasswordHash(encoded)
	if err != nil {
		return false, err
	}
	rawSalt, err := base64.RawStdEncoding.DecodeString(salt)
	if err != nil {
		return false, fmt.Errorf("decode salt: %w", err)
	}
	derived := argon2.IDKey([]byte(password+pepper), rawSalt, timeCost, memory, threads, uint32(len(key)))
	return subtle.ConstantTimeCompare(derived, key) == 1, nil
}

func parsePasswordHash(encoded string) (memory uint32, timeCost uint32, threads uint8, key []byte, err error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 5 || parts[1] != "argon2id" {
		return 0, 0, 0, nil, errMalformedHash
	}
	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return 0, 0, 0, nil, errMalformedHash
	}
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &timeCost, &threads); err != nil {
		return 0, 0, 0, nil, errMalformedHash
	}
	key, err = base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return 0, 0, 0, nil, errMalformedHash
	}
	return memory, timeCost, threads, key, nil
}
