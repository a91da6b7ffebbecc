// Package password hashes and verifies user passwords with argon2id.
//
// Hashes are encoded in the PHC string format:
//
//	$argon2id$v=19$m=65536,t=2,p=1$<salt>$<key>
//
// so the cost parameters travel with each hash and can be raised without
// invalidating stored passwords.
package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// ErrMalformedHash is returned when an encoded hash cannot be parsed.
var ErrMalformedHash = errors.New("password: malformed hash")

// Params are the argon2id cost parameters.
type Params struct {
	Time     uint32
	MemoryKB uint32
	Threads  uint8
	SaltLen  uint32
	KeyLen   uint32
}

// DefaultParams follows the argon2id recommendation for interactive logins.
var DefaultParams = Params{
	Time:     2,
	MemoryKB: 64 * 1024,
	Threads:  1,
	SaltLen:  16,
	KeyLen:   32,
}

// Hasher hashes and verifies passwords.
type Hasher struct {
	params Params
}

// New returns a Hasher using p for new hashes.
func New(p Params) *Hasher {
	return &Hasher{params: p}
}

// Default returns a Hasher using DefaultParams.
func Default() *Hasher { return New(DefaultParams) }

// Hash derives an encoded argon2id hash of plain with a random salt.
func (h *Hasher) Hash(plain string) (string, error) {
	salt := make([]byte, h.params.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("password: read salt: %w", err)
	}

	p := h.params
	key := argon2.IDKey([]byte(plain), salt, p.Time, p.MemoryKB, p.Threads, p.KeyLen)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, p.MemoryKB, p.Time, p.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify reports whether plain matches encoded. The parameters stored in
// encoded are used, not the Hasher's own.
func (h *Hasher) Verify(encoded, plain string) (bool, error) {
	p, salt, key, err := decode(encoded)
	if err != nil {
		return false, err
	}

	other := argon2.IDKey([]byte(plain), salt, p.Time, p.MemoryKB, p.Threads, uint32(len(key)))
	return subtle.ConstantTimeCompare(key, other) == 1, nil
}

func decode(encoded string) (Params, []byte, []byte, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return Params{}, nil, nil, ErrMalformedHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return Params{}, nil, nil, fmt.Errorf("%w: %w", ErrMalformedHash, err)
	}
	if version != argon2.Version {
		return Params{}, nil, nil, fmt.Errorf("%w: unsupported version %d", ErrMalformedHash, version)
	}

	var p Params
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.MemoryKB, &p.Time, &p.Threads); err != nil {
		return Params{}, nil, nil, fmt.Errorf("%w: %w", ErrMalformedHash, err)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return Params{}, nil, nil, fmt.Errorf("%w: salt: %w", ErrMalformedHash, err)
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return Params{}, nil, nil, fmt.Errorf("%w: key: %w", ErrMalformedHash, err)
	}
	p.SaltLen = uint32(len(salt))
	p.KeyLen = uint32(len(key))
	return p, salt, key, nil
}
