package download

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/oblivionis/oblivionis-go/internal/monitoring"
)

// ArmFunc is called synchronously by Dispatch with the new batch id and
// size, before any worker of that batch can report
type ArmFunc func(batchID string, total int)

// Dispatcher starts one worker goroutine per job. All jobs of a batch
// share the gate that was current when the batch was dispatched.
type Dispatcher struct {
	ctx     context.Context
	worker  *Worker
	results chan<- Outcome
	logger  *zap.Logger

	mu   sync.Mutex
	gate *Gate
	wg   sync.WaitGroup
}

// NewDispatcher creates a dispatcher posting outcomes to results
func NewDispatcher(ctx context.Context, worker *Worker, maxConcurrent int, results chan<- Outcome, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		ctx:     ctx,
		worker:  worker,
		results: results,
		logger:  monitoring.Named(logger, "dispatcher"),
		gate:    NewGate(maxConcurrent),
	}
}

// SetMaxConcurrent replaces the gate for batches dispatched from now on.
// Batches already in flight keep the gate they started with.
func (d *Dispatcher) SetMaxConcurrent(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.gate = NewGate(n)
}

// MaxConcurrent returns the capacity the next batch will run with
func (d *Dispatcher) MaxConcurrent() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.gate.Capacity()
}

// Dispatch arms the caller's counters through arm, then starts the batch.
// It returns the batch id stamped on every outcome of the batch.
func (d *Dispatcher) Dispatch(jobs []Job, arm ArmFunc) string {
	batchID := uuid.NewString()

	d.mu.Lock()
	gate := d.gate
	d.mu.Unlock()

	if arm != nil {
		arm(batchID, len(jobs))
	}

	d.logger.Info("Dispatching download batch",
		zap.String("batch_id", batchID),
		zap.Int("jobs", len(jobs)),
		zap.Int("max_concurrent", gate.Capacity()))

	for _, job := range jobs {
		monitoring.RecordDownloadQueued()
		d.wg.Add(1)
		go func(job Job) {
			defer d.wg.Done()
			out := d.worker.Run(d.ctx, job, gate)
			out.BatchID = batchID
			d.results <- out
		}(job)
	}

	return batchID
}

// Wait blocks until every dispatched worker has posted its outcome
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
