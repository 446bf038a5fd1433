package idempotency

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vladislavdragonenkov/medistore/internal/domain"
	"github.com/vladislavdragonenkov/medistore/internal/metrics"
	"github.com/vladislavdragonenkov/medistore/internal/storage/memory"
)

var _ domain.IdempotencyRepository = (*stubCleanupRepo)(nil)

func TestCleanupWorker_Sweep_Batches(t *testing.T) {
	t.Parallel()

	repo := &stubCleanupRepo{
		deleteResults: []int{2, 2, 1},
	}

	worker := NewCleanupWorker(repo, WithBatchSize(2), WithMetrics(metrics.NewCleanupMetricsWithRegisterer(prometheus.NewRegistry())))

	report, err := worker.Sweep(context.Background(), time.Now().UTC())
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}

	if report.Deleted != 5 || report.Batches != 3 || report.Partial {
		t.Fatalf("unexpected report: %+v", report)
	}

	if calls := repo.calls(); calls != 3 {
		t.Fatalf("unexpected delete calls: got=%d want=3", calls)
	}
}

func TestCleanupWorker_Sweep_KeepsPartialCountOnError(t *testing.T) {
	t.Parallel()

	repo := &stubCleanupRepo{
		deleteResults: []int{10},
		deleteErrors:  []error{nil, errors.New("connection reset")},
	}

	worker := NewCleanupWorker(repo, WithBatchSize(10))

	report, err := worker.Sweep(context.Background(), time.Now().UTC())
	if err == nil {
		t.Fatal("expected Sweep error")
	}
	if report.Deleted != 10 {
		t.Fatalf("report must keep keys deleted before the failure: got=%d want=10", report.Deleted)
	}
}

func TestCleanupWorker_Run_StopsOnContextCancel(t *testing.T) {
	t.Parallel()

	repo := &stubCleanupRepo{
		deleteResults: []int{0, 0, 0},
	}

	worker := NewCleanupWorker(
		repo,
		WithInterval(5*time.Millisecond),
		WithBatchSize(10),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		worker.Run(ctx)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop on context cancel")
	}

	if calls := repo.calls(); calls == 0 {
		t.Fatal("expected cleanup to be called at least once")
	}
}

type stubCleanupRepo struct {
	mu sync.Mutex

	deleteResults []int
	deleteErrors  []error
	createErr     error
	callCount     int
}

func (s *stubCleanupRepo) CreateProcessing(context.Context, string, string, time.Time) (domain.IdempotencyRecord, error) {
	if s.createErr != nil {
		return domain.IdempotencyRecord{}, s.createErr
	}
	panic("not implemented")
}

func (s *stubCleanupRepo) Get(context.Context, string) (domain.IdempotencyRecord, error) {
	panic("not implemented")
}

func (s *stubCleanupRepo) MarkDone(context.Context, string, []byte, int) error {
	panic("not implemented")
}

func (s *stubCleanupRepo) MarkFailed(context.Context, string, []byte, int) error {
	panic("not implemented")
}

func (s *stubCleanupRepo) DeleteExpired(context.Context, time.Time, int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.callCount++

	if len(s.deleteErrors) > 0 {
		err := s.deleteErrors[0]
		s.deleteErrors = s.deleteErrors[1:]
		if err != nil {
			return 0, err
		}
	}

	if len(s.deleteResults) == 0 {
		return 0, nil
	}
	result := s.deleteResults[0]
	s.deleteResults = s.deleteResults[1:]
	return result, nil
}

func (s *stubCleanupRepo) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callCount
}

func TestCleanupWorker_DeletesExpiredMemoryRecords(t *testing.T) {
	t.Parallel()

	repo := memory.NewIdempotencyRepository()
	ctx := context.Background()
	now := time.Now().UTC()

	if _, err := repo.CreateProcessing(ctx, "expired", "hash", now.Add(-time.Minute)); err != nil {
		t.Fatalf("create expired: %v", err)
	}
	if _, err := repo.CreateProcessing(ctx, "alive", "hash", now.Add(time.Hour)); err != nil {
		t.Fatalf("create alive: %v", err)
	}

	worker := NewCleanupWorker(repo, WithBatchSize(10), withClock(func() time.Time { return now }))
	report, err := worker.Sweep(ctx, time.Time{})
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if report.Deleted != 1 {
		t.Fatalf("unexpected deleted total: got=%d want=1", report.Deleted)
	}
	if _, err := repo.Get(ctx, "alive"); err != nil {
		t.Fatalf("alive key must survive: %v", err)
	}
}

func TestCleanupWorker_Sweep_StopsAtBatchLimit(t *testing.T) {
	t.Parallel()

	results := make([]int, maxSweepBatches+5)
	for i := range results {
		results[i] = 2
	}
	repo := &stubCleanupRepo{deleteResults: results}

	worker := NewCleanupWorker(repo, WithBatchSize(2))
	report, err := worker.Sweep(context.Background(), time.Now().UTC())
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if !report.Partial || report.Batches != maxSweepBatches || report.Deleted != 2*maxSweepBatches {
		t.Fatalf("unexpected report: %+v", report)
	}
	if calls := repo.calls(); calls != maxSweepBatches {
		t.Fatalf("unexpected delete calls: got=%d want=%d", calls, maxSweepBatches)
	}
}

func TestNewCleanupWorker_Defaults(t *testing.T) {
	t.Parallel()

	worker := NewCleanupWorker(&stubCleanupRepo{}, WithInterval(0), WithBatchSize(-1))
	if worker.cfg.interval != 15*time.Minute {
		t.Fatalf("unexpected default interval: %s", worker.cfg.interval)
	}
	if worker.cfg.batchSize != defaultSweepBatch {
		t.Fatalf("unexpected default batch size: %d", worker.cfg.batchSize)
	}
}
