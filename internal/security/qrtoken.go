package security

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/sha3"
)

// QRToken is one rotating check-in credential. Only the hash is persisted;
// the raw value goes to the caller once and is compared by hash on every
// presented check-in.
type QRToken struct {
	Value     string
	Hash      string
	ExpiresAt time.Time
}

// IssueQRToken mints an unguessable token: a uuid nonce plus 16 bytes from
// crypto/rand, so no token is derivable from an earlier one.
func IssueQRToken(now time.Time, ttl time.Duration) (QRToken, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return QRToken{}, fmt.Errorf("read token entropy: %w", err)
	}
	value := uuid.NewString() + "." + hex.EncodeToString(buf)
	return QRToken{
		Value:     value,
		Hash:      HashQRToken(value),
		ExpiresAt: now.Add(ttl),
	}, nil
}

func HashQRToken(value string) string {
	sum := sha3.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}
