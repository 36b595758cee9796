package service

import (
	"context"
	"encoding/json"

	"github.com/nats-io/nats.go"
	"github.com/qrtrail/qrtrail/internal/app/model"
)

// ScanPublisher pushes scan events onto NATS JetStream so the redirect path
// never waits on the scans table.
type ScanPublisher struct {
	js nats.JetStreamContext
}

// NewScanPublisher creates a JetStream-backed ScanRecorder.
func NewScanPublisher(js nats.JetStreamContext) *ScanPublisher {
	return &ScanPublisher{js: js}
}

func (p *ScanPublisher) Record(_ context.Context, event *model.ScanEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	_, err = p.js.Publish(model.ScanStreamSubject, data)
	return err
}
