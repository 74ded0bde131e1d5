package scheduler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/monicap360/move-around-tms-sub008/internal/scheduler/domain"
	"github.com/monicap360/move-around-tms-sub008/internal/scheduler/schedulertest"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingAcker struct {
	acked    bool
	nacked   bool
	requeued bool
}

func (a *recordingAcker) Ack(uint64, bool) error { a.acked = true; return nil }
func (a *recordingAcker) Nack(_ uint64, _ bool, requeue bool) error {
	a.nacked = true
	a.requeued = requeue
	return nil
}
func (a *recordingAcker) Reject(_ uint64, requeue bool) error {
	a.nacked = true
	a.requeued = requeue
	return nil
}

func resultFixture(t *testing.T) (*Scheduler, *schedulertest.MemStore, *ResultConsumer) {
	t.Helper()

	store := schedulertest.NewMemStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sched := New(Config{MaxConcurrentJobs: 2}, store,
		schedulertest.NewStubHealth(), &schedulertest.FakeDispatcher{}, logger)

	consumer := &ResultConsumer{
		scheduler: sched,
		queueName: "payroll.results",
		logger:    logger,
	}
	return sched, store, consumer
}

func deliveryFor(t *testing.T, acker *recordingAcker, result domain.JobResult) amqp.Delivery {
	t.Helper()

	body, err := json.Marshal(result)
	require.NoError(t, err)
	return amqp.Delivery{Acknowledger: acker, Body: body}
}

func TestResultConsumerHandleDelivery(t *testing.T) {
	t.Run("completed callback releases the slot", func(t *testing.T) {
		sched, store, consumer := resultFixture(t)

		result, err := sched.SubmitJob(context.Background(), SubmitRequest{
			TenantID:    "tenant-a",
			RequestedBy: "ops@example.com",
		})
		require.NoError(t, err)

		acker := &recordingAcker{}
		consumer.handleDelivery(context.Background(), deliveryFor(t, acker, domain.JobResult{
			JobID:  result.Job.ID,
			Status: domain.StatusCompleted,
		}))

		assert.True(t, acker.acked)

		job, err := store.GetJob(context.Background(), result.Job.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusCompleted, job.Status)
		assert.Equal(t, 0, sched.CurrentState().SlotsInUse)
	})

	t.Run("failed callback records the reason", func(t *testing.T) {
		sched, store, consumer := resultFixture(t)

		result, err := sched.SubmitJob(context.Background(), SubmitRequest{
			TenantID:    "tenant-a",
			RequestedBy: "ops@example.com",
		})
		require.NoError(t, err)

		acker := &recordingAcker{}
		consumer.handleDelivery(context.Background(), deliveryFor(t, acker, domain.JobResult{
			JobID:  result.Job.ID,
			Status: domain.StatusFailed,
			Reason: "bank file rejected",
		}))

		assert.True(t, acker.acked)

		job, err := store.GetJob(context.Background(), result.Job.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusFailed, job.Status)
		assert.Equal(t, "bank file rejected", job.FailureReason)
	})

	t.Run("replayed callback is ACKed away", func(t *testing.T) {
		sched, _, consumer := resultFixture(t)

		result, err := sched.SubmitJob(context.Background(), SubmitRequest{
			TenantID:    "tenant-a",
			RequestedBy: "ops@example.com",
		})
		require.NoError(t, err)

		callback := domain.JobResult{JobID: result.Job.ID, Status: domain.StatusCompleted}

		first := &recordingAcker{}
		consumer.handleDelivery(context.Background(), deliveryFor(t, first, callback))
		require.True(t, first.acked)

		replay := &recordingAcker{}
		consumer.handleDelivery(context.Background(), deliveryFor(t, replay, callback))
		assert.True(t, replay.acked, "replay must be dropped, not requeued")
		assert.False(t, replay.nacked)
	})

	t.Run("malformed body is rejected without requeue", func(t *testing.T) {
		_, _, consumer := resultFixture(t)

		acker := &recordingAcker{}
		consumer.handleDelivery(context.Background(), amqp.Delivery{
			Acknowledger: acker,
			Body:         []byte("not json"),
		})

		assert.True(t, acker.nacked)
		assert.False(t, acker.requeued)
	})

	t.Run("non-terminal status is rejected without requeue", func(t *testing.T) {
		_, _, consumer := resultFixture(t)

		acker := &recordingAcker{}
		consumer.handleDelivery(context.Background(), deliveryFor(t, acker, domain.JobResult{
			JobID:  uuid.New().String(),
			Status: domain.StatusPaused,
		}))

		assert.True(t, acker.nacked)
		assert.False(t, acker.requeued)
	})

	t.Run("store failure requeues the callback", func(t *testing.T) {
		sched, store, consumer := resultFixture(t)

		result, err := sched.SubmitJob(context.Background(), SubmitRequest{
			TenantID:    "tenant-a",
			RequestedBy: "ops@example.com",
		})
		require.NoError(t, err)

		store.FailNext = assert.AnError

		acker := &recordingAcker{}
		consumer.handleDelivery(context.Background(), deliveryFor(t, acker, domain.JobResult{
			JobID:  result.Job.ID,
			Status: domain.StatusCompleted,
		}))

		assert.True(t, acker.nacked)
		assert.True(t, acker.requeued)
		assert.Equal(t, 1, sched.CurrentState().SlotsInUse)
	})
}
