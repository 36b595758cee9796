package service

import (
	"context"

	"github.com/qrtrail/qrtrail/internal/app/model"
	"github.com/qrtrail/qrtrail/internal/app/repository"
)

// ScanRecorder persists one scan event. The resolver treats recording as
// best-effort: a recorder failure is logged and dropped, never surfaced to the
// person being redirected.
type ScanRecorder interface {
	Record(ctx context.Context, event *model.ScanEvent) error
}

// DirectRecorder writes scans straight into Postgres. It is used when NATS is
// not configured, and in tests.
type DirectRecorder struct {
	scans repository.ScanRepository
}

// NewDirectRecorder returns a recorder backed by the scan repository.
func NewDirectRecorder(scans repository.ScanRepository) *DirectRecorder {
	return &DirectRecorder{scans: scans}
}

func (r *DirectRecorder) Record(ctx context.Context, event *model.ScanEvent) error {
	return r.scans.Create(ctx, &model.Scan{
		CodeReference: event.CodeReference,
		IP:            event.IP,
		CapturedAt:    event.CapturedAt,
		OS:            event.OS,
		Browser:       event.Browser,
		UserAgent:     event.UserAgent,
	})
}
