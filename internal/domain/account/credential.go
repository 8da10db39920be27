package account

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"

	"github.com/sectorwars/gameserver/internal/domain/shared"
)

// Argon2id parameters. Tuned for interactive logins; changing them only
// affects new hashes, verification reads parameters from the encoded form.
const (
	argonTime    = 3
	argonMemory  = 64 * 1024
	argonThreads = 2
	argonKeyLen  = 32
	argonSaltLen = 16

	minCredentialLength = 10
	maxCredentialLength = 128
)

// HashCredential derives an argon2id hash with a fresh per-account salt and
// returns it in the standard encoded form.
func HashCredential(plain string) (string, error) {
	if len(plain) < minCredentialLength {
		return "", shared.NewValidationError("credential", fmt.Sprintf("must be at least %d characters", minCredentialLength))
	}
	if len(plain) > maxCredentialLength {
		return "", shared.NewValidationError("credential", fmt.Sprintf("must be at most %d characters", maxCredentialLength))
	}
	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	key := argon2.IDKey([]byte(plain), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, argonMemory, argonTime, argonThreads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// HashBackupCode maps a single-use recovery code to its storage form. Codes
// are high-entropy random strings, so a bare digest is enough.
func HashBackupCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

// VerifyCredential compares a plaintext credential against an encoded hash in
// constant time. Malformed hashes verify as false, never as an error, so the
// login path cannot be used to probe storage contents.
func VerifyCredential(encoded, plain string) bool {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return false
	}
	var memory, timeCost uint32
	var threads uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &timeCost, &threads); err != nil {
		return false
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false
	}
	got := argon2.IDKey([]byte(plain), salt, timeCost, memory, threads, uint32(len(want)))
	return subtle.ConstantTimeCompare(got, want) == 1
}
