// Package pubsub publishes fault events to a Google Cloud Pub/Sub topic.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"
	"go.uber.org/multierr"

	"github.com/JakeFAU/verdict-crawler/internal/crawler"
	"github.com/JakeFAU/verdict-crawler/internal/notify"
)

// Notifier publishes one message per fault.
type Notifier struct {
	topic *pubsub.Topic
}

var _ notify.Notifier = (*Notifier)(nil)

// New wraps a topic handle.
func New(topic *pubsub.Topic) *Notifier {
	return &Notifier{topic: topic}
}

// NotifyFaults publishes all events and waits for every result.
func (n *Notifier) NotifyFaults(ctx context.Context, runID string, faults []crawler.FaultRecord) error {
	if n.topic == nil {
		return fmt.Errorf("pubsub topic is not configured")
	}
	results := make([]*pubsub.PublishResult, 0, len(faults))
	for _, ev := range notify.Events(runID, faults) {
		data, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("marshal fault event: %w", err)
		}
		results = append(results, n.topic.Publish(ctx, &pubsub.Message{
			Data: data,
			Attributes: map[string]string{
				"run_id":  runID,
				"unit_id": ev.UnitID,
				"kind":    ev.Kind,
			},
		}))
	}
	var errs error
	for _, r := range results {
		if _, err := r.Get(ctx); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	if errs != nil {
		return fmt.Errorf("publish fault events: %w", errs)
	}
	return nil
}

// Close flushes pending publishes.
func (n *Notifier) Close() error {
	if n.topic != nil {
		n.topic.Stop()
	}
	return nil
}
