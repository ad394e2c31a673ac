package crypto

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// rowIDEntropy is a monotonic ULID entropy source guarded by a mutex:
// ulid.MonotonicEntropy is not safe for concurrent use on its own, and
// row ids are minted from many goroutines (the mutation executor's
// per-transaction id assignment, spec.md §4.6).
var (
	rowIDMu      sync.Mutex
	rowIDEntropy = ulid.Monotonic(rand.Reader, 0)
)

// NewRowID mints a fresh row identifier: a 128-bit ULID, lexicographically
// sortable and monotonic within the same millisecond, satisfying spec.md
// §3's "id alone is unique by construction (collision-resistant
// generator)" and doubling as a natural (mdate, id) tiebreaker source
// since the leading 48 bits already encode mdate's millisecond timestamp.
func NewRowID() string {
	rowIDMu.Lock()
	defer rowIDMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), rowIDEntropy).String()
}
