package classifier

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/swarahealth/coughwatch-go/internal/blobstore"
	"github.com/swarahealth/coughwatch-go/internal/logging"
	"github.com/swarahealth/coughwatch-go/internal/observability"
)

// Job describes one pending classifier submission. The audio stays in the
// blob store until a worker picks the job up.
type Job struct {
	RecordID      string
	SubmitterName string
	AudioPath     string
}

// DispatcherStats contains counters for monitoring.
type DispatcherStats struct {
	Enqueued  uint64
	Completed uint64
	Failed    uint64
	Dropped   uint64
}

// Dispatcher runs classifier submissions in the background, decoupled from
// request handling. Enqueue never blocks and submission failures are
// logged, never surfaced: an event whose dispatch fails simply stays in
// ANALYZING until a callback arrives.
type Dispatcher struct {
	client  *Client
	blobs   *blobstore.Store
	jobs    chan Job
	timeout time.Duration
	logger  *slog.Logger
	metrics *observability.Metrics

	closeOnce sync.Once
	wg        sync.WaitGroup

	enqueued  atomic.Uint64
	completed atomic.Uint64
	failed    atomic.Uint64
	dropped   atomic.Uint64
}

// NewDispatcher creates a dispatcher with the given queue depth and worker
// count and starts its workers.
func NewDispatcher(client *Client, blobs *blobstore.Store, queueSize, workers int, timeout time.Duration) *Dispatcher {
	if queueSize < 1 {
		queueSize = 1
	}
	if workers < 1 {
		workers = 1
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	d := &Dispatcher{
		client:  client,
		blobs:   blobs,
		jobs:    make(chan Job, queueSize),
		timeout: timeout,
		logger:  logging.ForService("classifier"),
	}

	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.run()
	}

	return d
}

// SetMetrics attaches Prometheus counters to the dispatcher. Call before
// the first Enqueue. Without it dispatch results only show up in Stats.
func (d *Dispatcher) SetMetrics(m *observability.Metrics) {
	d.metrics = m
}

func (d *Dispatcher) recordDispatch(result string) {
	if d.metrics != nil {
		d.metrics.RecordDispatch(result)
	}
}

// Enqueue queues a job without blocking. A full queue drops the job; the
// event stays ANALYZING, which is the same outcome as a failed submission.
func (d *Dispatcher) Enqueue(job Job) bool {
	select {
	case d.jobs <- job:
		d.enqueued.Add(1)
		d.recordDispatch("enqueued")
		return true
	default:
		d.dropped.Add(1)
		d.recordDispatch("dropped")
		d.logger.Warn("classifier queue full, dropping submission",
			"record_id", job.RecordID)
		return false
	}
}

// Stats returns a snapshot of the dispatcher counters.
func (d *Dispatcher) Stats() DispatcherStats {
	return DispatcherStats{
		Enqueued:  d.enqueued.Load(),
		Completed: d.completed.Load(),
		Failed:    d.failed.Load(),
		Dropped:   d.dropped.Load(),
	}
}

// Shutdown stops accepting jobs and waits for queued work to drain, up to
// the context deadline.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.closeOnce.Do(func() {
		close(d.jobs)
	})

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run is the worker loop. It exits when the job channel is closed and
// drained.
func (d *Dispatcher) run() {
	defer d.wg.Done()

	for job := range d.jobs {
		d.process(job)
	}
}

// process performs one submission. Every failure path ends in a log line,
// nothing more.
func (d *Dispatcher) process(job Job) {
	audio, err := d.blobs.Open(job.AudioPath)
	if err != nil {
		d.failed.Add(1)
		d.recordDispatch("failed")
		d.logger.Error("failed to open audio blob for submission",
			"record_id", job.RecordID,
			"path", job.AudioPath,
			"error", err)
		return
	}
	defer audio.Close()

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	err = d.client.Submit(ctx, Submission{
		RecordID:      job.RecordID,
		SubmitterName: job.SubmitterName,
		Filename:      job.AudioPath,
		Audio:         audio,
	})
	if err != nil {
		d.failed.Add(1)
		d.recordDispatch("failed")
		d.logger.Error("classifier submission failed",
			"record_id", job.RecordID,
			"error", err)
		return
	}

	d.completed.Add(1)
	d.recordDispatch("completed")
	d.logger.Info("classifier submission dispatched",
		"record_id", job.RecordID)
}
