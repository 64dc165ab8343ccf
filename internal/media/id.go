package media

import (
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   *ulid.MonotonicEntropy
)

// NewID returns an art_* ULID string.
func NewID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	if entropy == nil {
		entropy = ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
	}
	id := ulid.MustNew(ulid.Timestamp(time.Now()), entropy)
	return "art_" + strings.ToLower(id.String())
}
