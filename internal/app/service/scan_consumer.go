package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/qrtrail/qrtrail/internal/app/model"
	"github.com/qrtrail/qrtrail/internal/app/repository"
	"go.uber.org/zap"
)

// ScanConsumer drains scan events from JetStream into the scans table.
type ScanConsumer struct {
	js     nats.JetStreamContext
	logger *zap.Logger
	scans  repository.ScanRepository
}

// NewScanConsumer creates a consumer writing through the given repository.
func NewScanConsumer(js nats.JetStreamContext, logger *zap.Logger, scans repository.ScanRepository) *ScanConsumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScanConsumer{js: js, logger: logger, scans: scans}
}

// Start ensures the stream and durable consumer exist, then begins pulling
// events in the background.
func (c *ScanConsumer) Start() error {
	if _, err := c.js.StreamInfo(model.ScanStreamName); err != nil {
		_, err = c.js.AddStream(&nats.StreamConfig{
			Name:     model.ScanStreamName,
			Subjects: []string{model.ScanStreamSubject},
			MaxBytes: model.ScanStreamMaxBytes,
		})
		if err != nil {
			return fmt.Errorf("scan consumer: create stream: %w", err)
		}
	}

	if _, err := c.js.ConsumerInfo(model.ScanStreamName, model.ScanConsumerName); err != nil {
		_, err = c.js.AddConsumer(model.ScanStreamName, &nats.ConsumerConfig{
			Durable:   model.ScanConsumerName,
			AckPolicy: nats.AckExplicitPolicy,
		})
		if err != nil {
			return fmt.Errorf("scan consumer: create consumer: %w", err)
		}
	}

	sub, err := c.js.PullSubscribe(model.ScanStreamSubject, model.ScanConsumerName)
	if err != nil {
		return fmt.Errorf("scan consumer: subscribe: %w", err)
	}

	go c.consume(sub)
	return nil
}

func (c *ScanConsumer) consume(sub *nats.Subscription) {
	ctx := context.Background()
	for {
		msgs, err := sub.Fetch(10, nats.MaxWait(5*time.Second))
		if err != nil && !errors.Is(err, nats.ErrTimeout) {
			c.logger.Error("failed to fetch scan events", zap.Error(err))
			continue
		}

		for _, msg := range msgs {
			var event model.ScanEvent
			if err := json.Unmarshal(msg.Data, &event); err != nil {
				c.logger.Error("failed to unmarshal scan event", zap.Error(err))
				msg.Nak()
				continue
			}

			scan := &model.Scan{
				CodeReference: event.CodeReference,
				IP:            event.IP,
				CapturedAt:    event.CapturedAt,
				OS:            event.OS,
				Browser:       event.Browser,
				UserAgent:     event.UserAgent,
			}
			if err := c.scans.Create(ctx, scan); err != nil {
				c.logger.Error("failed to store scan",
					zap.String("event_id", event.ID),
					zap.String("code_reference", event.CodeReference),
					zap.Error(err))
				msg.Nak()
				continue
			}

			c.logger.Debug("scan stored",
				zap.String("event_id", event.ID),
				zap.String("code_reference", event.CodeReference),
				zap.String("ip", event.IP),
				zap.Time("captured_at", event.CapturedAt),
			)

			msg.Ack()
		}
	}
}
