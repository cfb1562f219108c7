package service

import (
    "crypto/sha256"
    "encoding/hex"
    "strconv"
    "time"

    "github.com/google/uuid"
)

// TokenGenerator issues tracking tokens.
type TokenGenerator interface {
    Issue(seed string) string
}

// SHA256TokenGenerator digests the seed together with the current time and a
// random UUID, so a token cannot be derived from the recipient and campaign.
// Output is 64 lowercase hex characters.
type SHA256TokenGenerator struct{}

func (SHA256TokenGenerator) Issue(seed string) string {
    h := sha256.New()
    h.Write([]byte(seed))
    h.Write([]byte(strconv.FormatInt(time.Now().UnixNano(), 10)))
    h.Write([]byte(uuid.NewString()))
    return hex.EncodeToString(h.Sum(nil))
}
