package ids

import (
	cryptorand "crypto/rand"
	"encoding/hex"
	mathrand "math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0)
)

// New returns a lexicographically sortable identifier suitable for storage keys.
func New() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// NewToken returns an opaque 64-char hex token for invitation links.
// Tokens must be unguessable, so they come from crypto/rand.
func NewToken() string {
	buf := make([]byte, 32)
	if _, err := cryptorand.Read(buf); err != nil {
		panic("ids: crypto/rand unavailable: " + err.Error())
	}
	return hex.EncodeToString(buf)
}

// IsULID reports whether s parses as a ULID produced by New.
func IsULID(s string) bool {
	_, err := ulid.ParseStrict(s)
	return err == nil
}
