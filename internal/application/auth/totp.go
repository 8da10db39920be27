package auth

import (
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"github.com/sectorwars/gameserver/internal/domain/account"
)

const (
	totpPeriod      = 30
	totpSkew        = 1
	backupCodeCount = 10
	backupCodeBytes = 5 // 8 base32 chars
)

// generateTOTPKey provisions a fresh secret and its otpauth:// URI.
func generateTOTPKey(issuer, handle string) (secret, uri string, err error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: handle,
		Period:      totpPeriod,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", "", fmt.Errorf("generate totp secret: %w", err)
	}
	return key.Secret(), key.URL(), nil
}

// validateTOTP checks a six-digit code against the secret at the given
// instant, accepting one period of clock skew either way.
func validateTOTP(code, secret string, at time.Time) bool {
	ok, err := totp.ValidateCustom(code, secret, at, totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      totpSkew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}

// generateBackupCodes returns the plaintext codes handed to the owner once,
// and their hashes for storage.
func generateBackupCodes() (plain, hashes []string, err error) {
	plain = make([]string, 0, backupCodeCount)
	hashes = make([]string, 0, backupCodeCount)
	for i := 0; i < backupCodeCount; i++ {
		raw := make([]byte, backupCodeBytes)
		if _, err := rand.Read(raw); err != nil {
			return nil, nil, fmt.Errorf("generate backup code: %w", err)
		}
		code := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(raw)
		plain = append(plain, code)
		hashes = append(hashes, account.HashBackupCode(code))
	}
	return plain, hashes, nil
}
