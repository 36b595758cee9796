package model

import "time"

// ScanEvent is the wire form of a scan travelling through JetStream between
// the redirect path and the persistence consumer.
type ScanEvent struct {
	ID            string    `json:"id"`
	CodeReference string    `json:"code_reference"`
	IP            string    `json:"ip"`
	OS            string    `json:"os"`
	Browser       string    `json:"browser"`
	UserAgent     string    `json:"user_agent"`
	CapturedAt    time.Time `json:"captured_at"`
}

const (
	ScanStreamName     = "SCANS"
	ScanStreamSubject  = "scans.events"
	ScanConsumerName   = "scan-writer"
	ScanStreamMaxBytes = 1024 * 1024 * 100 // 100MB
)
