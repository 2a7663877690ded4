package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/quorumlabs/settled/internal/domain"
	"github.com/quorumlabs/settled/internal/service"
)

// ReportPrefix is the key prefix under which settlement reports are stored.
const ReportPrefix = "settlements/"

// multipartThreshold is the serialized report size above which the upload
// switches to multipart. Markets with many holders can produce reports well
// past a single-request comfort zone.
const multipartThreshold = 8 * 1024 * 1024

// Archiver implements service.SettlementArchiver by serializing the final
// report of a settled market and uploading it to the report bucket. Each
// archival is recorded in the audit log.
type Archiver struct {
	writer domain.BlobWriter
	audit  domain.AuditStore
}

// NewArchiver creates an Archiver that uploads through writer and records
// each archival via audit.
func NewArchiver(writer domain.BlobWriter, audit domain.AuditStore) *Archiver {
	return &Archiver{
		writer: writer,
		audit:  audit,
	}
}

var _ service.SettlementArchiver = (*Archiver)(nil)

// ArchiveSettlement uploads the report as a JSON object at
// settlements/{market_id}.json and records the archival in the audit log.
// Re-archiving the same market overwrites the previous object.
func (a *Archiver) ArchiveSettlement(ctx context.Context, report service.SettlementReport) error {
	buf, err := marshalReport(report)
	if err != nil {
		return fmt.Errorf("s3blob: marshal settlement report %s: %w", report.Market.ID, err)
	}

	path := ReportPath(report.Market.ID)

	if len(buf) > multipartThreshold {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), minPartSize)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(buf), "application/json")
	}
	if err != nil {
		return fmt.Errorf("s3blob: upload settlement report %s: %w", report.Market.ID, err)
	}

	if err := a.audit.Log(ctx, "archive.settlement", map[string]any{
		"path":         path,
		"market_id":    report.Market.ID,
		"size_bytes":   len(buf),
		"finalized_at": report.FinalizedAt.Format(time.RFC3339),
	}); err != nil {
		return fmt.Errorf("s3blob: settlement report audit log: %w", err)
	}

	return nil
}

// ReportPath builds the object key for a market's settlement report.
func ReportPath(marketID string) string {
	return ReportPrefix + marketID + ".json"
}

// ReportReader exposes archived settlement reports by market ID. The HTTP
// layer serves reports through it without knowing the key layout.
type ReportReader struct {
	reader domain.BlobReader
}

// NewReportReader creates a ReportReader over the given blob reader.
func NewReportReader(reader domain.BlobReader) *ReportReader {
	return &ReportReader{reader: reader}
}

// GetReport returns the archived report for the given market. The caller
// closes the returned reader. Returns domain.ErrNotFound when the market has
// no archived report.
func (r *ReportReader) GetReport(ctx context.Context, marketID string) (io.ReadCloser, error) {
	return r.reader.Get(ctx, ReportPath(marketID))
}

// ListReports returns metadata for every archived settlement report.
func (r *ReportReader) ListReports(ctx context.Context) ([]domain.BlobInfo, error) {
	return r.reader.List(ctx, ReportPrefix)
}

// marshalReport serialises the report as compact JSON without HTML escaping.
func marshalReport(report service.SettlementReport) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(report); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
