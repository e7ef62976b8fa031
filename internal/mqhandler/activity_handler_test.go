package mqhandler

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	mqcontract "github.com/AcelinoMargotti/scinexa-project-nexus/contracts/mq"
	"github.com/AcelinoMargotti/scinexa-project-nexus/internal/model"
	"github.com/AcelinoMargotti/scinexa-project-nexus/internal/repository"
)

type fakeDeduper struct {
	seen map[string]bool
}

func newFakeDeduper() *fakeDeduper { return &fakeDeduper{seen: map[string]bool{}} }

func (d *fakeDeduper) Seen(_ context.Context, handler, id string) bool {
	return d.seen[handler+":"+id]
}

func (d *fakeDeduper) MarkProcessed(_ context.Context, handler, id string) {
	d.seen[handler+":"+id] = true
}

type fakeCounter struct {
	counts map[string]int64
}

func (c *fakeCounter) IncrementAndGet(_ context.Context, key string) (int64, error) {
	c.counts[key]++
	return c.counts[key], nil
}

func (c *fakeCounter) Reset(_ context.Context, key string) error {
	delete(c.counts, key)
	return nil
}

type parked struct {
	routingKey string
	cause      string
}

type fakeDLQ struct {
	parked []parked
	err    error
}

func (d *fakeDLQ) PublishToDLQ(_ context.Context, routingKey string, _ []byte, _, originalError string) error {
	if d.err != nil {
		return d.err
	}
	d.parked = append(d.parked, parked{routingKey, originalError})
	return nil
}

type failingRepo struct {
	repository.ActivityRepository
	err error
}

func (r failingRepo) Append(context.Context, model.Activity) (bool, error) {
	return false, r.err
}

// crashingRepo panics once, either before or after the row reaches the store,
// the way a worker killed mid-message would leave things.
type crashingRepo struct {
	repository.ActivityRepository
	crashes     int
	afterInsert bool
}

func (r *crashingRepo) Append(ctx context.Context, a model.Activity) (bool, error) {
	if r.crashes == 0 {
		return r.ActivityRepository.Append(ctx, a)
	}
	r.crashes--
	if r.afterInsert {
		_, _ = r.ActivityRepository.Append(ctx, a)
	}
	panic("worker killed")
}

type harness struct {
	handler *ActivityHandler
	repo    *repository.MemoryActivityRepository
	deduper *fakeDeduper
	counter *fakeCounter
	dlq     *fakeDLQ
}

func newHarness(repo repository.ActivityRepository) *harness {
	mem := repository.NewMemoryActivityRepository()
	if repo == nil {
		repo = mem
	}
	h := &harness{
		repo:    mem,
		deduper: newFakeDeduper(),
		counter: &fakeCounter{counts: map[string]int64{}},
		dlq:     &fakeDLQ{},
	}
	h.handler = NewActivityHandler(repo, h.deduper, h.counter, h.dlq, zap.NewNop()).WithMaxRetries(2)
	return h
}

func completedPayload(t *testing.T) json.RawMessage {
	t.Helper()
	ev := model.Event{
		ID:             "ev-1",
		Type:           model.EventMilestoneCompleted,
		ProjectID:      "p1",
		ProjectTitle:   "Soil microbiome",
		MilestoneID:    "m1",
		MilestoneTitle: "Data collection",
		ActorID:        "stu-1",
		ActorName:      "Maria",
		OccurredAt:     time.Date(2024, 6, 10, 9, 30, 0, 0, time.UTC),
	}
	raw, err := json.Marshal(mqcontract.NewProjectEventPayload(ev, "trace-1"))
	require.NoError(t, err)
	return raw
}

func TestActivityStored(t *testing.T) {
	h := newHarness(nil)
	require.NoError(t, h.handler.Handle(context.Background(), completedPayload(t)))

	feed, err := h.repo.ListByProject(context.Background(), "p1", 10)
	require.NoError(t, err)
	require.Len(t, feed, 1)
	assert.Equal(t, "ev-1", feed[0].EventID)
	assert.Contains(t, feed[0].Message, "Maria")
	assert.Contains(t, feed[0].Message, "Data collection")
	assert.Empty(t, h.dlq.parked)
}

func TestActivityRedeliveryIsIgnored(t *testing.T) {
	h := newHarness(nil)
	raw := completedPayload(t)
	require.NoError(t, h.handler.Handle(context.Background(), raw))
	require.NoError(t, h.handler.Handle(context.Background(), raw))

	// Even when redis forgets the key, the store keeps one row per event.
	h.deduper.seen = map[string]bool{}
	require.NoError(t, h.handler.Handle(context.Background(), raw))

	feed, err := h.repo.ListByProject(context.Background(), "p1", 10)
	require.NoError(t, err)
	assert.Len(t, feed, 1)
}

func TestActivityRedeliveryAfterCrashIsStored(t *testing.T) {
	for _, afterInsert := range []bool{false, true} {
		name := "before insert"
		if afterInsert {
			name = "after insert"
		}
		t.Run(name, func(t *testing.T) {
			mem := repository.NewMemoryActivityRepository()
			h := newHarness(&crashingRepo{ActivityRepository: mem, crashes: 1, afterInsert: afterInsert})
			raw := completedPayload(t)

			assert.Panics(t, func() { _ = h.handler.Handle(context.Background(), raw) })
			assert.False(t, h.deduper.Seen(context.Background(), handlerName, "ev-1"))

			require.NoError(t, h.handler.Handle(context.Background(), raw))
			assert.True(t, h.deduper.Seen(context.Background(), handlerName, "ev-1"))

			feed, err := mem.ListByProject(context.Background(), "p1", 10)
			require.NoError(t, err)
			require.Len(t, feed, 1)
			assert.Equal(t, "ev-1", feed[0].EventID)
			assert.Empty(t, h.dlq.parked)
		})
	}
}

func TestActivityMalformedGoesToDLQ(t *testing.T) {
	h := newHarness(nil)
	require.NoError(t, h.handler.Handle(context.Background(), json.RawMessage(`{not json`)))
	require.Len(t, h.dlq.parked, 1)
	assert.Equal(t, "unknown", h.dlq.parked[0].routingKey)

	require.NoError(t, h.handler.Handle(context.Background(), json.RawMessage(`{"type":"milestone.completed"}`)))
	require.Len(t, h.dlq.parked, 2)
	assert.Equal(t, "milestone.completed", h.dlq.parked[1].routingKey)
	assert.Contains(t, h.dlq.parked[1].cause, "event_id")
}

func TestActivityRetryableFailureRequeuesThenParks(t *testing.T) {
	transient := &pgconn.PgError{Code: "40001", Message: "could not serialize access"}
	h := newHarness(failingRepo{err: transient})
	raw := completedPayload(t)

	for i := 0; i < 2; i++ {
		err := h.handler.Handle(context.Background(), raw)
		require.Error(t, err, "attempt %d should requeue", i+1)
	}
	assert.Empty(t, h.deduper.seen, "failed attempts are never marked as processed")
	assert.Empty(t, h.dlq.parked)

	require.NoError(t, h.handler.Handle(context.Background(), raw))
	require.Len(t, h.dlq.parked, 1)
	assert.Contains(t, h.dlq.parked[0].cause, "db_contention")
	assert.Empty(t, h.counter.counts)
}

func TestActivityPermanentFailureParks(t *testing.T) {
	h := newHarness(failingRepo{err: &pgconn.PgError{Code: "23503"}})
	require.NoError(t, h.handler.Handle(context.Background(), completedPayload(t)))
	require.Len(t, h.dlq.parked, 1)
	assert.Contains(t, h.dlq.parked[0].cause, "foreign_key_violation")
}

func TestActivityDLQOutageRequeues(t *testing.T) {
	h := newHarness(nil)
	h.dlq.err = errors.New("channel closed")
	assert.Error(t, h.handler.Handle(context.Background(), json.RawMessage(`[]`)))
}
