package poller

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/gatewatch/gatewatch/service/solana"
)

func TestClassify(t *testing.T) {
	c := NewClassifier(5, 3)

	tests := []struct {
		name           string
		record         *solana.ActivityRecord
		wantClass      string
		wantConfidence float64
	}{
		{
			name:           "at bundle threshold",
			record:         &solana.ActivityRecord{HasDetail: true, DetailCount: 5},
			wantClass:      DeliveryBundled,
			wantConfidence: 0.9,
		},
		{
			name:           "above bundle threshold",
			record:         &solana.ActivityRecord{HasDetail: true, DetailCount: 12},
			wantClass:      DeliveryBundled,
			wantConfidence: 0.9,
		},
		{
			name:           "at priority threshold",
			record:         &solana.ActivityRecord{HasDetail: true, DetailCount: 3},
			wantClass:      DeliveryPriority,
			wantConfidence: 0.75,
		},
		{
			name:           "below priority threshold",
			record:         &solana.ActivityRecord{HasDetail: true, DetailCount: 1},
			wantClass:      DeliveryDirect,
			wantConfidence: 0.6,
		},
		{
			name:           "no detail resolved",
			record:         &solana.ActivityRecord{HasDetail: false, DetailCount: 0},
			wantClass:      DeliveryDirect,
			wantConfidence: 0.25,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			class, confidence := c.Classify(tt.record)
			assert.Equal(t, tt.wantClass, class)
			assert.Equal(t, tt.wantConfidence, confidence)
		})
	}
}

func TestOutcomeFor(t *testing.T) {
	now := time.Now()

	assert.Equal(t, OutcomeFailed, outcomeFor(&solana.ActivityRecord{Failed: true, ObservedAt: now}))
	assert.Equal(t, OutcomeConfirmed, outcomeFor(&solana.ActivityRecord{ObservedAt: now}))
	assert.Equal(t, OutcomePending, outcomeFor(&solana.ActivityRecord{}))
}
