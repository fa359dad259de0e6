package gateway

import (
	"context"
	"errors"
	"fmt"
	"log"

	"hmi-core/internal/ingest/events"
	"hmi-core/internal/observability/metrics"
)

// AckForwarder relays acknowledge requests to the upstream gateway.
// The history reset entry is already written by then; forwarding only
// clears the latched bits at the source so the next status words come
// back clean.
type AckForwarder struct {
	client *Client
	logger *log.Logger
}

// NewAckForwarder constructs a forwarder.
func NewAckForwarder(client *Client, logger *log.Logger) (*AckForwarder, error) {
	if client == nil {
		return nil, errors.New("ack forwarder: nil client")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &AckForwarder{client: client, logger: logger}, nil
}

// HandleAcknowledgeRequested handles AcknowledgeRequested events.
func (f *AckForwarder) HandleAcknowledgeRequested(ctx context.Context, event any) error {
	evt, ok := event.(events.AcknowledgeRequested)
	if !ok {
		if ptr, ok := event.(*events.AcknowledgeRequested); ok && ptr != nil {
			evt = *ptr
		} else {
			return nil
		}
	}

	resp, err := f.client.SendAcknowledge(ctx, evt.RequestedBy, evt.OccurredAt)
	if err != nil {
		metrics.IncNotification("gateway", metrics.ResultError)
		return fmt.Errorf("ack forwarder: %w", err)
	}
	if resp.Status == "failed" {
		metrics.IncNotification("gateway", metrics.ResultError)
		message := resp.Error
		if message == "" {
			message = "gateway acknowledge failed"
		}
		return errors.New("ack forwarder: " + message)
	}
	metrics.IncNotification("gateway", metrics.ResultSuccess)
	f.logger.Printf("gateway acknowledge forwarded: by=%s status=%s", evt.RequestedBy, resp.Status)
	return nil
}
