// Package events delivers outbox events to Redis streams or Kafka topics.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/maltedev/property-crawler/internal/database"
)

// Source identifies this service in event metadata.
const Source = "property-crawler"

// envelope builds the JSON document consumers receive for every event.
func envelope(event *database.OutboxEvent) ([]byte, error) {
	var payload map[string]interface{}
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	data := map[string]interface{}{
		"id":             event.ID.String(),
		"type":           event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID,
		"timestamp":      event.CreatedAt.Format(time.RFC3339),
		"payload":        payload,
		"metadata": map[string]interface{}{
			"source":        Source,
			"outbox_id":     event.ID.String(),
			"retry_count":   event.RetryCount,
			"target_stream": event.TargetStream,
		},
	}

	out, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal stream data: %w", err)
	}
	return out, nil
}
