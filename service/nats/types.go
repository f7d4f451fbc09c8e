package nats

import (
	"time"

	"github.com/gatewatch/gatewatch/service/db"
)

// ActivityEventMessage is the payload published to the subject
// "activity.{owner_address}" in JetStream.
type ActivityEventMessage struct {
	ActivityID   string `json:"activity_id"`
	OwnerAddress string `json:"owner_address"`
	Outcome      string `json:"outcome"`

	DeliveryClass      string  `json:"delivery_class"`
	DeliveryConfidence float64 `json:"delivery_confidence"`
	CostEstimate       int64   `json:"cost_estimate"`
	DetailCount        int     `json:"detail_count"`

	ObservedAt  *time.Time `json:"observed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	PublishedAt time.Time  `json:"published_at"`
}

// FromActivityEvent converts a stored event to a message for publishing.
func FromActivityEvent(event *db.ActivityEvent) *ActivityEventMessage {
	return &ActivityEventMessage{
		ActivityID:         event.ActivityID,
		OwnerAddress:       event.OwnerAddress,
		Outcome:            event.Outcome,
		DeliveryClass:      event.DeliveryClass,
		DeliveryConfidence: event.DeliveryConfidence,
		CostEstimate:       event.CostEstimate,
		DetailCount:        event.DetailCount,
		ObservedAt:         event.ObservedAt,
		CreatedAt:          event.CreatedAt,
		PublishedAt:        time.Now().UTC(),
	}
}
