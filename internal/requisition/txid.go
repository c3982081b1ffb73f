package requisition

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"time"
)

// NewTransactionID produces a human-readable requisition identifier in the
// form PR-YYYYMMDD-XXXX. The numeric suffix is random; the database's unique
// constraint on transaction_id catches the rare collision and the caller
// retries with a fresh suffix.
func NewTransactionID(now time.Time) string {
	return fmt.Sprintf("PR-%s-%04d", now.Format("20060102"), randomSuffix())
}

// ChildTransactionID derives the identifier of the n-th split child
// (1-based) from its parent's identifier.
func ChildTransactionID(parent string, n int) string {
	return fmt.Sprintf("%s-%d", parent, n)
}

func randomSuffix() int {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return int(time.Now().UnixNano() % 10000)
	}
	return int(binary.BigEndian.Uint64(buf[:]) % 10000)
}
