package solana

import (
	"time"
)

// ActivityRecord is a parsed ledger activity entry for a watched address.
// This is our domain model, independent of the RPC response format.
type ActivityRecord struct {
	ID          string    // transaction signature, unique per address history
	Slot        uint64
	ObservedAt  time.Time // ledger-reported block time; zero when the ledger omits it
	Failed      bool      // derived from the ledger error field
	DetailCount int       // instruction count from the detail lookup; 0 when detail was unavailable
	Fee         uint64    // lamports paid, from transaction meta; 0 when detail was unavailable
	HasDetail   bool      // false when we fell back to signature metadata only
}
