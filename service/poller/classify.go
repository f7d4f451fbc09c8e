package poller

import (
	"github.com/gatewatch/gatewatch/service/solana"
)

// Outcome values derived from ledger metadata.
const (
	OutcomePending   = "pending"
	OutcomeConfirmed = "confirmed"
	OutcomeFailed    = "failed"
)

// Delivery class values derived from instruction counts.
const (
	DeliveryBundled  = "bundled"
	DeliveryPriority = "priority"
	DeliveryDirect   = "direct"
)

// Classifier assigns a delivery class to activity records based on how many
// instructions the transaction carried. The thresholds are configurable;
// higher instruction counts suggest the activity went through a bundler or a
// priority lane rather than being submitted directly.
type Classifier struct {
	bundleThreshold   int
	priorityThreshold int
}

// NewClassifier creates a classifier. bundleThreshold must be greater than
// priorityThreshold; config validation enforces this upstream.
func NewClassifier(bundleThreshold, priorityThreshold int) *Classifier {
	return &Classifier{
		bundleThreshold:   bundleThreshold,
		priorityThreshold: priorityThreshold,
	}
}

// Classify returns the delivery class and a confidence score for a record.
// A record without resolved detail can only be classified as direct, and the
// low confidence marks that the instruction count was never observed.
func (c *Classifier) Classify(rec *solana.ActivityRecord) (string, float64) {
	if !rec.HasDetail {
		return DeliveryDirect, 0.25
	}
	switch {
	case rec.DetailCount >= c.bundleThreshold:
		return DeliveryBundled, 0.9
	case rec.DetailCount >= c.priorityThreshold:
		return DeliveryPriority, 0.75
	default:
		return DeliveryDirect, 0.6
	}
}

// outcomeFor maps ledger metadata to an outcome. A ledger-reported error
// wins over everything; a block timestamp means the activity landed.
func outcomeFor(rec *solana.ActivityRecord) string {
	if rec.Failed {
		return OutcomeFailed
	}
	if !rec.ObservedAt.IsZero() {
		return OutcomeConfirmed
	}
	return OutcomePending
}
