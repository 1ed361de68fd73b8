package report

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/saasbooks/backend/internal/domain/audit"
	"github.com/saasbooks/backend/internal/domain/shared"
)

// Format selects the export encoding.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// ParseFormat validates a format string.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatCSV, FormatJSON:
		return Format(s), nil
	default:
		return "", shared.NewError(shared.KindValidationFailed, fmt.Sprintf("unknown export format %q", s))
	}
}

// ExportService streams audit entries out of the store. Every export
// is itself audited with an EXPORT entry carrying the filter and the
// row count.
type ExportService struct {
	store audit.Store
}

// NewExportService creates an export service.
func NewExportService(store audit.Store) *ExportService {
	return &ExportService{store: store}
}

// Export writes the entries matching q to w and returns the number of
// rows written.
func (s *ExportService) Export(ctx context.Context, w io.Writer, q audit.Query, format Format) (int64, error) {
	var enc entryEncoder
	switch format {
	case FormatCSV:
		enc = newCSVEncoder(w)
	case FormatJSON:
		enc = newJSONEncoder(w)
	default:
		return 0, shared.NewError(shared.KindValidationFailed, fmt.Sprintf("unknown export format %q", format))
	}

	var count int64
	q.Filter.PageSize = reportPageSize
	for page := 1; ; page++ {
		q.Filter.Page = page
		res, err := s.store.Find(ctx, q)
		if err != nil {
			return count, err
		}
		for i := range res.Items {
			if err := enc.encode(&res.Items[i]); err != nil {
				return count, fmt.Errorf("failed to encode audit entry: %w", err)
			}
			count++
		}
		if len(res.Items) < reportPageSize || int64(page)*reportPageSize >= res.Total {
			break
		}
	}
	if err := enc.close(); err != nil {
		return count, err
	}

	s.recordExport(ctx, q, format, count)
	return count, nil
}

func (s *ExportService) recordExport(ctx context.Context, q audit.Query, format Format, count int64) {
	e := audit.NewEntry(q.TenantID, audit.OpExport, "audit_log", "")
	e.Severity = audit.SeverityMedium
	e.Details = map[string]any{
		"format": string(format),
		"rows":   count,
	}
	if q.ResourceType != "" {
		e.Details["resource_type"] = q.ResourceType
	}
	if q.From != nil {
		e.Details["from"] = q.From.Format(time.RFC3339)
	}
	if q.To != nil {
		e.Details["to"] = q.To.Format(time.RFC3339)
	}
	// Best effort: a failed export record must not fail the export the
	// operator already received.
	_ = s.store.Record(ctx, e)
}

type entryEncoder interface {
	encode(e *audit.Entry) error
	close() error
}

type csvEncoder struct {
	w           *csv.Writer
	wroteHeader bool
}

func newCSVEncoder(w io.Writer) *csvEncoder {
	return &csvEncoder{w: csv.NewWriter(w)}
}

func (c *csvEncoder) encode(e *audit.Entry) error {
	if !c.wroteHeader {
		if err := c.w.Write([]string{
			"id", "tenant_id", "user_id", "operation", "resource_type",
			"resource_id", "severity", "ip_address", "timestamp", "details",
		}); err != nil {
			return err
		}
		c.wroteHeader = true
	}

	userID := ""
	if e.UserID != nil {
		userID = e.UserID.String()
	}
	details := ""
	if len(e.Details) > 0 {
		raw, err := json.Marshal(e.Details)
		if err != nil {
			return err
		}
		details = string(raw)
	}
	return c.w.Write([]string{
		e.ID.String(),
		e.TenantID.String(),
		userID,
		string(e.Operation),
		e.ResourceType,
		e.ResourceID,
		string(e.Severity),
		e.IPAddress,
		e.Timestamp.Format(time.RFC3339Nano),
		details,
	})
}

func (c *csvEncoder) close() error {
	c.w.Flush()
	return c.w.Error()
}

type jsonEncoder struct {
	w     io.Writer
	enc   *json.Encoder
	first bool
}

func newJSONEncoder(w io.Writer) *jsonEncoder {
	return &jsonEncoder{w: w, enc: json.NewEncoder(w), first: true}
}

func (j *jsonEncoder) encode(e *audit.Entry) error {
	if j.first {
		if _, err := io.WriteString(j.w, "[\n"); err != nil {
			return err
		}
		j.first = false
	} else {
		if _, err := io.WriteString(j.w, ",\n"); err != nil {
			return err
		}
	}
	raw, err := json.Marshal(exportEntry(e))
	if err != nil {
		return err
	}
	_, err = j.w.Write(raw)
	return err
}

func (j *jsonEncoder) close() error {
	if j.first {
		_, err := io.WriteString(j.w, "[]\n")
		return err
	}
	_, err := io.WriteString(j.w, "\n]\n")
	return err
}

// exportEntry flattens an entry for stable JSON output.
func exportEntry(e *audit.Entry) map[string]any {
	out := map[string]any{
		"id":            e.ID.String(),
		"tenant_id":     e.TenantID.String(),
		"operation":     string(e.Operation),
		"resource_type": e.ResourceType,
		"resource_id":   e.ResourceID,
		"severity":      string(e.Severity),
		"timestamp":     e.Timestamp.Format(time.RFC3339Nano),
	}
	if e.UserID != nil {
		out["user_id"] = e.UserID.String()
	}
	if e.IPAddress != "" {
		out["ip_address"] = e.IPAddress
	}
	if len(e.Details) > 0 {
		out["details"] = e.Details
	}
	return out
}
