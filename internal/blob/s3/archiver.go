package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"github.com/alanyoungcy/yieldengine/internal/domain"
)

// lineItemPartSize is the multipart part size for per-position line items.
const lineItemPartSize int64 = 8 * 1024 * 1024

// ObjectChecker reports whether an object already exists.
type ObjectChecker interface {
	Exists(ctx context.Context, path string) (bool, error)
}

// RunArchiver writes each distribution run to object storage as a JSON
// summary plus a JSONL file of per-position line items:
//
//	{prefix}/2025/01/31/{run_id}/summary.json
//	{prefix}/2025/01/31/{run_id}/positions.jsonl
//
// An existing summary for the same run is never overwritten.
type RunArchiver struct {
	writer  domain.BlobWriter
	checker ObjectChecker
	prefix  string
}

// NewRunArchiver creates a RunArchiver. checker may be nil, in which case
// objects are written unconditionally.
func NewRunArchiver(writer domain.BlobWriter, checker ObjectChecker, prefix string) *RunArchiver {
	return &RunArchiver{writer: writer, checker: checker, prefix: prefix}
}

var _ domain.RunArchiver = (*RunArchiver)(nil)

// ArchiveRun uploads the run and returns the key prefix used.
func (a *RunArchiver) ArchiveRun(ctx context.Context, result domain.DistributionResult) (string, error) {
	if result.RunID == "" {
		return "", fmt.Errorf("s3blob: archive run: missing run id")
	}
	dir := runDir(a.prefix, result.AsOf, result.RunID)
	summaryPath := path.Join(dir, "summary.json")

	if a.checker != nil {
		exists, err := a.checker.Exists(ctx, summaryPath)
		if err != nil {
			return "", fmt.Errorf("s3blob: archive run %s: %w", result.RunID, err)
		}
		if exists {
			return dir, nil
		}
	}

	if len(result.Positions) > 0 {
		lines, err := marshalJSONL(result.Positions)
		if err != nil {
			return "", fmt.Errorf("s3blob: archive run %s line items: %w", result.RunID, err)
		}
		if err := a.writer.PutMultipart(ctx, path.Join(dir, "positions.jsonl"), bytes.NewReader(lines), lineItemPartSize); err != nil {
			return "", fmt.Errorf("s3blob: archive run %s line items: %w", result.RunID, err)
		}
	}

	// The summary goes last so its presence marks a complete archive.
	summary := result
	summary.Positions = nil
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return "", fmt.Errorf("s3blob: archive run %s summary: %w", result.RunID, err)
	}
	if err := a.writer.Put(ctx, summaryPath, bytes.NewReader(data), "application/json"); err != nil {
		return "", fmt.Errorf("s3blob: archive run %s summary: %w", result.RunID, err)
	}

	return dir, nil
}

func runDir(prefix string, asOf time.Time, runID string) string {
	return path.Join(prefix, asOf.UTC().Format("2006/01/02"), runID)
}

// marshalJSONL serialises a slice of values as newline-delimited JSON (JSONL).
// Each element is marshalled as a single compact JSON line followed by '\n'.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
