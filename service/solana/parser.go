package solana

import (
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go/rpc"
)

// recordFromSignature converts an RPC TransactionSignature to a metadata-only
// ActivityRecord. Instruction count and fee require the detail lookup.
func recordFromSignature(sig *rpc.TransactionSignature) *ActivityRecord {
	rec := &ActivityRecord{
		ID:   sig.Signature.String(),
		Slot: sig.Slot,
	}

	if sig.BlockTime != nil {
		rec.ObservedAt = sig.BlockTime.Time()
	} else {
		rec.ObservedAt = time.Time{}
	}

	if sig.Err != nil {
		rec.Failed = true
	}

	return rec
}

// applyDetail fills in the detail-derived fields of a record from a full
// GetTransactionResult. The raw payload is used only for classification
// inputs (instruction count, fee) and is never persisted verbatim.
func applyDetail(rec *ActivityRecord, result *rpc.GetTransactionResult) error {
	if result == nil {
		return nil
	}

	if result.Meta != nil {
		rec.Fee = result.Meta.Fee
	}

	tx, err := result.Transaction.GetTransaction()
	if err != nil {
		return fmt.Errorf("failed to decode transaction: %w", err)
	}

	rec.DetailCount = len(tx.Message.Instructions)
	rec.HasDetail = true
	return nil
}
