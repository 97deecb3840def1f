package ids

import (
	mathrand "math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0)
)

// New returns a lexicographically sortable identifier used for request ids,
// audit rows and stored evidence file names.
func New() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// NewUUID returns a random UUID string used for entity primary keys.
func NewUUID() string {
	return uuid.NewString()
}

// ValidUUID reports whether s parses as a UUID.
func ValidUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
