package racelock

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"sync/atomic"

	"github.com/google/uuid"
)

var tokenCounter uint64

// generateToken produces a 160-bit token that identifies the current
// acquirer, used by the safe-release script to refuse releasing a lock that
// has since expired and been re-acquired by someone else. crypto/rand is the
// primary source; if it fails (practically never) we fall back to a
// uuid/hostname/pid/counter composite that is still unique per process.
func generateToken() string {
	buf := make([]byte, 20)
	if _, err := rand.Read(buf); err == nil {
		return hex.EncodeToString(buf)
	}

	host, _ := os.Hostname()
	n := atomic.AddUint64(&tokenCounter, 1)
	return fmt.Sprintf("%s-%d-%d-%s", host, os.Getpid(), n, uuid.NewString())
}
