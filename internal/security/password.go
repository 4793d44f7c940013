package security

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	MinPasswordLength = 12

	hashVersion   = "v1"
	hashRounds    = 180000
	minHashRounds = 100000
)

var ErrPasswordTooShort = fmt.Errorf("password must be at least %d characters", MinPasswordLength)

// HashPassword encodes a password as version$rounds$salt$digest.
func HashPassword(password string) (string, error) {
	if len(password) < MinPasswordLength {
		return "", ErrPasswordTooShort
	}
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	digest := stretch(password, salt, hashRounds)
	return strings.Join([]string{
		hashVersion,
		strconv.Itoa(hashRounds),
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(digest),
	}, "$"), nil
}

func VerifyPassword(password, encoded string) bool {
	salt, expected, rounds, err := decodeHash(encoded)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(stretch(password, salt, rounds), expected) == 1
}

// NewToken returns a URL-safe random token built from n random bytes.
func NewToken(n int) (string, error) {
	if n <= 0 {
		return "", errors.New("token length must be positive")
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func decodeHash(encoded string) ([]byte, []byte, int, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 4 || parts[0] != hashVersion {
		return nil, nil, 0, errors.New("unknown hash format")
	}
	rounds, err := strconv.Atoi(parts[1])
	if err != nil || rounds < minHashRounds {
		return nil, nil, 0, errors.New("invalid hash rounds")
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[2])
	if err != nil || len(salt) == 0 {
		return nil, nil, 0, errors.New("invalid hash salt")
	}
	digest, err := base64.RawStdEncoding.DecodeString(parts[3])
	if err != nil || len(digest) != sha256.Size {
		return nil, nil, 0, errors.New("invalid hash digest")
	}
	return salt, digest, rounds, nil
}

func stretch(password string, salt []byte, rounds int) []byte {
	sum := sha256.Sum256(append(append([]byte{}, salt...), password...))
	buf := sum[:]
	for i := 1; i < rounds; i++ {
		next := sha256.Sum256(append(buf, salt...))
		buf = next[:]
	}
	out := make([]byte, len(buf))
	copy(out, buf)
	return out
}
