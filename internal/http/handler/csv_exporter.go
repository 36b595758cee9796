package handler

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"

	"github.com/qrtrail/qrtrail/internal/app/repository"
)

// CSVExporter dumps the codes and scans tables as CSV, header row first,
// matching the export the back office has always produced.
type CSVExporter struct {
	codes repository.CodeRepository
	scans repository.ScanRepository
	now   func() time.Time
}

// CSVExport is a rendered export ready to be sent as a download.
type CSVExport struct {
	Filename string
	Data     []byte
}

// NewCSVExporter returns an exporter over the given repositories.
func NewCSVExporter(codes repository.CodeRepository, scans repository.ScanRepository) *CSVExporter {
	return &CSVExporter{codes: codes, scans: scans, now: time.Now}
}

// Export renders the named table ("codes" or "scans").
func (e *CSVExporter) Export(ctx context.Context, table string) (*CSVExport, error) {
	var (
		records [][]string
		err     error
	)

	switch table {
	case "codes":
		records, err = e.codeRecords(ctx)
	case "scans":
		records, err = e.scanRecords(ctx)
	default:
		return nil, fmt.Errorf("csv export: unknown table %q", table)
	}
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.WriteAll(records); err != nil {
		return nil, fmt.Errorf("csv export: write %s: %w", table, err)
	}

	filename := fmt.Sprintf("export_%s_%s.csv", table, e.now().Format("2006-01-02_15-04-05"))
	return &CSVExport{Filename: filename, Data: buf.Bytes()}, nil
}

func (e *CSVExporter) codeRecords(ctx context.Context) ([][]string, error) {
	codes, err := e.codes.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("csv export: load codes: %w", err)
	}

	records := make([][]string, 0, len(codes)+1)
	records = append(records, []string{"reference", "name", "destination_url", "active"})
	for _, code := range codes {
		records = append(records, []string{
			code.Reference,
			code.Name,
			code.DestinationURL,
			strconv.FormatBool(code.Active),
		})
	}
	return records, nil
}

func (e *CSVExporter) scanRecords(ctx context.Context) ([][]string, error) {
	scans, err := e.scans.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("csv export: load scans: %w", err)
	}

	records := make([][]string, 0, len(scans)+1)
	records = append(records, []string{"id", "code_reference", "ip", "captured_at", "os", "browser", "user_agent"})
	for _, scan := range scans {
		records = append(records, []string{
			strconv.FormatUint(scan.ID, 10),
			scan.CodeReference,
			scan.IP,
			scan.CapturedAt.UTC().Format(time.RFC3339),
			scan.OS,
			scan.Browser,
			scan.UserAgent,
		})
	}
	return records, nil
}
