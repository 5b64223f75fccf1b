package bridge

import (
	"fmt"
	"strings"
)

// WithdrawOrderID derives the deterministic idempotency key for a CEX
// withdrawal. Repeating the same invocation yields the same id, so
// adapters can look up a prior withdrawal instead of issuing a duplicate.
func WithdrawOrderID(txHash string, origin, destination uint64, asset string) string {
	hash := strings.TrimPrefix(strings.ToLower(txHash), "0x")
	addr := strings.TrimPrefix(strings.ToLower(asset), "0x")
	if len(hash) > 8 {
		hash = hash[:8]
	}
	if len(addr) > 6 {
		addr = addr[:6]
	}
	return fmt.Sprintf("mark-%s-%d-%d-%s", hash, origin, destination, addr)
}
