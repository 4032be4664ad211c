// Package xid mints opaque string identifiers for audit rows. The ids sort
// roughly by creation time and are unique enough for a single terminal.
package xid

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// New returns "<prefix>-<unix nanos>-<hex entropy>". If the random source is
// unavailable the timestamp alone still tells rows apart.
func New(prefix string) string {
	now := time.Now().UnixNano()
	entropy := make([]byte, 8)
	if _, err := rand.Read(entropy); err != nil {
		return fmt.Sprintf("%s-%d", prefix, now)
	}
	return fmt.Sprintf("%s-%d-%s", prefix, now, hex.EncodeToString(entropy))
}
