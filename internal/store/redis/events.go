package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Event is what gets published on ChannelEvents.
type Event struct {
	Source string    `json:"source"`
	At     time.Time `json:"at"`
	Data   any       `json:"data,omitempty"`
}

// Publish sends event to every subscriber of ChannelEvents.
func (s *Store) Publish(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := s.client.Publish(ctx, ChannelEvents, data).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}
