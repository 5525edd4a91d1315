package tasks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/pool"

	scanerr "github.com/hakim/scanwatch/internal/errors"
	"github.com/hakim/scanwatch/internal/models"
)

const (
	DefaultWorkers   = 2
	DefaultQueueSize = 100
	DefaultRetention = time.Hour
)

// Runner executes a single scan synchronously.
type Runner interface {
	RunScan(ctx context.Context, target string, opts models.Options) (*models.StoredScan, error)
}

// Notifier is told about every task that reaches a terminal state.
type Notifier interface {
	Notify(ctx context.Context, task Task) error
}

// Observer receives dispatcher measurements.
type Observer interface {
	TaskFinished(status models.TaskStatus, elapsed time.Duration)
	QueueDepth(depth int)
}

// Config sizes the dispatcher.
type Config struct {
	Workers   int
	QueueSize int
	// Retention is how long finished tasks remain queryable.
	Retention time.Duration
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithNotifier sends completion notifications through n.
func WithNotifier(n Notifier) Option {
	return func(d *Dispatcher) { d.notifier = n }
}

// WithObserver reports queue and task metrics to o.
func WithObserver(o Observer) Option {
	return func(d *Dispatcher) { d.observer = o }
}

// WithClock overrides the clock used for task timestamps and pruning.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// WithLogger overrides the logger.
func WithLogger(log *logrus.Entry) Option {
	return func(d *Dispatcher) { d.log = log }
}

// Dispatcher queues scans and runs them on a fixed pool of workers.
// Once a scan has started it runs to completion; only the scanner's own
// timeout bounds it.
type Dispatcher struct {
	runner   Runner
	notifier Notifier
	observer Observer
	cfg      Config
	now      func() time.Time
	log      *logrus.Entry

	queue chan string
	pool  *pool.Pool

	mu        sync.RWMutex
	tasks     map[string]*Task
	accepting bool
	started   bool
}

// NewDispatcher creates a dispatcher. Call Start before submitting.
func NewDispatcher(runner Runner, cfg Config, opts ...Option) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultRetention
	}

	d := &Dispatcher{
		runner:   runner,
		cfg:      cfg,
		now:      time.Now,
		log:      logrus.WithField("component", "dispatcher"),
		queue:    make(chan string, cfg.QueueSize),
		tasks:    make(map[string]*Task),
		notifier: nopNotifier{},
		observer: nopObserver{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start launches the workers. Calling it twice is a no-op.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return
	}
	d.started = true
	d.accepting = true

	d.pool = pool.New().WithMaxGoroutines(d.cfg.Workers)
	for i := 0; i < d.cfg.Workers; i++ {
		worker := i
		d.pool.Go(func() { d.work(worker) })
	}

	d.log.WithFields(logrus.Fields{
		"workers":    d.cfg.Workers,
		"queue_size": d.cfg.QueueSize,
	}).Info("dispatcher started")
}

// Shutdown stops accepting tasks and waits for queued and running scans
// to finish, or for ctx to end.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	if !d.started || !d.accepting {
		d.mu.Unlock()
		return nil
	}
	d.accepting = false
	close(d.queue)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.pool.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.log.Info("dispatcher stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for workers: %w", ctx.Err())
	}
}

// Submit enqueues a scan and returns its task ID without waiting for it
// to run. It fails with ErrQueueFull when the queue has no room.
func (d *Dispatcher) Submit(target string, opts models.Options) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.accepting {
		return "", scanerr.New(scanerr.CodeQueueFull, "dispatcher is not accepting tasks")
	}

	d.pruneLocked()

	task := &Task{
		ID:          uuid.New().String(),
		Target:      target,
		Options:     opts,
		Status:      models.TaskPending,
		SubmittedAt: d.now().UTC(),
	}

	select {
	case d.queue <- task.ID:
	default:
		return "", scanerr.ErrQueueFull.WithTarget(target)
	}

	d.tasks[task.ID] = task
	d.observer.QueueDepth(len(d.queue))

	d.log.WithFields(logrus.Fields{
		"task_id": task.ID,
		"target":  target,
	}).Info("task queued")

	return task.ID, nil
}

// Status returns a snapshot of the task or ErrTaskNotFound.
func (d *Dispatcher) Status(id string) (Task, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	task, ok := d.tasks[id]
	if !ok {
		return Task{}, scanerr.ErrTaskNotFound
	}
	return *task, nil
}

// Stats returns current counters.
func (d *Dispatcher) Stats() Stats {
	d.mu.RLock()
	defer d.mu.RUnlock()

	s := Stats{
		Workers:       d.cfg.Workers,
		QueueCapacity: d.cfg.QueueSize,
		Accepting:     d.accepting,
	}
	for _, t := range d.tasks {
		switch t.Status {
		case models.TaskPending:
			s.Pending++
		case models.TaskRunning:
			s.Running++
		case models.TaskSuccess:
			s.Succeeded++
		case models.TaskFailure:
			s.Failed++
		}
	}
	return s
}

// Prune drops finished tasks older than the retention period and returns
// how many were removed.
func (d *Dispatcher) Prune() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pruneLocked()
}

func (d *Dispatcher) pruneLocked() int {
	cutoff := d.now().Add(-d.cfg.Retention)
	removed := 0
	for id, t := range d.tasks {
		if t.Status.Terminal() && t.FinishedAt != nil && t.FinishedAt.Before(cutoff) {
			delete(d.tasks, id)
			removed++
		}
	}
	return removed
}

// ---------------------------------------------------------------------------
// Workers
// ---------------------------------------------------------------------------

func (d *Dispatcher) work(worker int) {
	log := d.log.WithField("worker", worker)
	for id := range d.queue {
		d.observer.QueueDepth(len(d.queue))
		d.run(log, id)
	}
}

func (d *Dispatcher) run(log *logrus.Entry, id string) {
	task, ok := d.markRunning(id)
	if !ok {
		return
	}
	log = log.WithFields(logrus.Fields{"task_id": id, "target": task.Target})
	log.Info("task started")

	// Scans are not cancellable once started.
	ctx := context.Background()

	var (
		scan *models.StoredScan
		err  error
	)
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("scan panicked: %v", r)
			}
		}()
		scan, err = d.runner.RunScan(ctx, task.Target, task.Options)
	}()

	final := d.finish(id, scan, err)
	d.observer.TaskFinished(final.Status, final.Elapsed())

	if err != nil {
		log.WithError(err).Warn("task failed")
	} else {
		log.WithField("scan_id", final.ScanID).Info("task succeeded")
	}

	if err := d.notifier.Notify(ctx, final); err != nil {
		log.WithError(err).Warn("completion notification failed")
	}
}

func (d *Dispatcher) markRunning(id string) (Task, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	task, ok := d.tasks[id]
	if !ok {
		return Task{}, false
	}
	started := d.now().UTC()
	task.Status = models.TaskRunning
	task.StartedAt = &started
	return *task, true
}

func (d *Dispatcher) finish(id string, scan *models.StoredScan, err error) Task {
	d.mu.Lock()
	defer d.mu.Unlock()

	task := d.tasks[id]
	finished := d.now().UTC()
	task.FinishedAt = &finished

	if err != nil {
		task.Status = models.TaskFailure
		task.Error = err.Error()
		task.ErrorCode = string(scanerr.CodeOf(err))
		return *task
	}

	task.Status = models.TaskSuccess
	task.ScanID = scan.ID
	task.Result = scan.ParsedResult
	return *task
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, Task) error { return nil }

type nopObserver struct{}

func (nopObserver) TaskFinished(models.TaskStatus, time.Duration) {}
func (nopObserver) QueueDepth(int)                                {}
