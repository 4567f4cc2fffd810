package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/yieldengine/internal/domain"
)

type fakeBus struct {
	published map[string][][]byte
	streamed  map[string][][]byte
}

func (b *fakeBus) Publish(_ context.Context, channel string, payload []byte) error {
	if b.published == nil {
		b.published = map[string][][]byte{}
	}
	b.published[channel] = append(b.published[channel], payload)
	return nil
}

func (b *fakeBus) Subscribe(context.Context, string) (<-chan []byte, error) { return nil, nil }

func (b *fakeBus) StreamAppend(_ context.Context, stream string, payload []byte) error {
	if b.streamed == nil {
		b.streamed = map[string][][]byte{}
	}
	b.streamed[stream] = append(b.streamed[stream], payload)
	return nil
}

func (b *fakeBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

func (b *fakeBus) StreamRecent(context.Context, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

type fakeRuns struct {
	inserted []domain.DistributionRun
	err      error
}

func (f *fakeRuns) Insert(_ context.Context, run domain.DistributionRun) error {
	if f.err != nil {
		return f.err
	}
	f.inserted = append(f.inserted, run)
	return nil
}

func (f *fakeRuns) GetByID(context.Context, string) (domain.DistributionRun, error) {
	return domain.DistributionRun{}, domain.ErrNotFound
}

func (f *fakeRuns) ListRecent(context.Context, domain.ListOpts) ([]domain.DistributionRun, error) {
	return f.inserted, nil
}

type fakeAudit struct{ events []string }

func (f *fakeAudit) Log(_ context.Context, event string, _ map[string]any) error {
	f.events = append(f.events, event)
	return nil
}

func (f *fakeAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

type notification struct{ event, title, message string }

type fakeNotifier struct {
	sent []notification
	err  error
}

func (f *fakeNotifier) Notify(_ context.Context, event, title, message string) error {
	f.sent = append(f.sent, notification{event, title, message})
	return f.err
}

func TestRecordFansOut(t *testing.T) {
	runs, audit, bus, notifier := &fakeRuns{}, &fakeAudit{}, &fakeBus{}, &fakeNotifier{}
	r := NewRunReporter(runs, audit, nil, bus, notifier, testLogger())

	res := domain.DistributionResult{
		RunID:            "run-1",
		AsOf:             asOf,
		Success:          true,
		PositionsUpdated: 3,
		TotalDistributed: d("15.649315"),
		AveragePoolAPR:   d("61.64"),
	}
	r.Record(context.Background(), res, "admin")

	require.Len(t, runs.inserted, 1)
	assert.Equal(t, "run-1", runs.inserted[0].ID)
	assert.Equal(t, "admin", runs.inserted[0].ExecutedBy)
	assert.NotEmpty(t, runs.inserted[0].Result)
	assert.Equal(t, []string{"distribution_run"}, audit.events)

	require.Len(t, bus.published[ChannelDistribution], 1)
	require.Len(t, bus.streamed[StreamDistribution], 1)
	var evt RunEvent
	require.NoError(t, json.Unmarshal(bus.published[ChannelDistribution][0], &evt))
	assert.Equal(t, EventDistributionCompleted, evt.Type)
	assert.Equal(t, 3, evt.PositionsUpdated)

	require.Len(t, notifier.sent, 1)
	assert.Equal(t, EventDistributionCompleted, notifier.sent[0].event)
	assert.Contains(t, notifier.sent[0].message, "61.64%")
	assert.Contains(t, notifier.sent[0].message, "15.649315")
}

func TestRecordFailedRun(t *testing.T) {
	runs, bus, notifier := &fakeRuns{err: errBoom}, &fakeBus{}, &fakeNotifier{err: errBoom}
	r := NewRunReporter(runs, nil, nil, bus, notifier, testLogger())

	r.Record(context.Background(), domain.DistributionResult{RunID: "run-2", Error: "pool aggregation failed: boom"}, "scheduler")

	var evt RunEvent
	require.Len(t, bus.published[ChannelDistribution], 1)
	require.NoError(t, json.Unmarshal(bus.published[ChannelDistribution][0], &evt))
	assert.Equal(t, EventDistributionFailed, evt.Type)
	assert.False(t, evt.Success)

	require.Len(t, notifier.sent, 1)
	assert.Contains(t, notifier.sent[0].message, "pool aggregation failed")
}

func TestRecordWithoutSinks(t *testing.T) {
	r := NewRunReporter(nil, nil, nil, nil, nil, testLogger())
	assert.NotPanics(t, func() {
		r.Record(context.Background(), domain.DistributionResult{RunID: "x", Success: true}, "manual")
	})
}

func TestGatewayStateChangedPublishes(t *testing.T) {
	bus, notifier := &fakeBus{}, &fakeNotifier{}
	r := NewRunReporter(nil, nil, nil, bus, notifier, testLogger())

	r.GatewayStateChanged(context.Background(),
		domain.GatewayState{Status: domain.GatewayReady},
		domain.GatewayState{Status: domain.GatewayDisabled, Reason: "WBC system not active"},
	)

	var evt RunEvent
	require.Len(t, bus.published[ChannelDistribution], 1)
	require.NoError(t, json.Unmarshal(bus.published[ChannelDistribution][0], &evt))
	assert.Equal(t, EventWBCStatusChanged, evt.Type)
	assert.False(t, evt.Success)
	require.Len(t, notifier.sent, 1)
	assert.Contains(t, notifier.sent[0].message, "WBC system not active")
}
