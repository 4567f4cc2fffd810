package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/yieldengine/internal/domain"
)

type memWriter struct {
	objects   map[string][]byte
	multipart []string
	order     []string
}

func newMemWriter() *memWriter { return &memWriter{objects: map[string][]byte{}} }

func (w *memWriter) Put(_ context.Context, p string, data io.Reader, _ string) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	w.objects[p] = b
	w.order = append(w.order, p)
	return nil
}

func (w *memWriter) PutMultipart(_ context.Context, p string, data io.Reader, _ int64) error {
	w.multipart = append(w.multipart, p)
	return w.Put(context.Background(), p, data, "")
}

type existsAll struct{}

func (existsAll) Exists(context.Context, string) (bool, error) { return true, nil }

func sampleResult() domain.DistributionResult {
	return domain.DistributionResult{
		RunID:            "run-1",
		AsOf:             time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC),
		Success:          true,
		PositionsUpdated: 2,
		TotalDistributed: decimal.RequireFromString("3.5"),
		Positions: []domain.PositionDistribution{
			{PositionID: 1, DailyYield: decimal.RequireFromString("1.5")},
			{PositionID: 2, DailyYield: decimal.RequireFromString("2")},
		},
	}
}

func TestArchiveRunWritesSummaryAndLines(t *testing.T) {
	w := newMemWriter()
	a := NewRunArchiver(w, nil, "distributions")

	dir, err := a.ArchiveRun(context.Background(), sampleResult())
	require.NoError(t, err)
	assert.Equal(t, "distributions/2025/01/31/run-1", dir)

	assert.Equal(t, []string{dir + "/positions.jsonl"}, w.multipart)
	assert.Equal(t, dir+"/summary.json", w.order[len(w.order)-1])

	var summary domain.DistributionResult
	require.NoError(t, json.Unmarshal(w.objects[dir+"/summary.json"], &summary))
	assert.Empty(t, summary.Positions)
	assert.Equal(t, 2, summary.PositionsUpdated)

	sc := bufio.NewScanner(bytes.NewReader(w.objects[dir+"/positions.jsonl"]))
	lines := 0
	for sc.Scan() {
		lines++
	}
	assert.Equal(t, 2, lines)
}

func TestArchiveRunSkipsExisting(t *testing.T) {
	w := newMemWriter()
	a := NewRunArchiver(w, existsAll{}, "distributions")

	_, err := a.ArchiveRun(context.Background(), sampleResult())
	require.NoError(t, err)
	assert.Empty(t, w.objects)
}

func TestArchiveRunRequiresID(t *testing.T) {
	a := NewRunArchiver(newMemWriter(), nil, "x")
	_, err := a.ArchiveRun(context.Background(), domain.DistributionResult{})
	assert.Error(t, err)
}

func TestNormaliseEndpoint(t *testing.T) {
	assert.Equal(t, "https://s3.example.com", normaliseEndpoint("s3.example.com", true))
	assert.Equal(t, "http://minio.local", normaliseEndpoint("minio.local", false))
	assert.Equal(t, "https://x.io", normaliseEndpoint("https://x.io", false))
}
