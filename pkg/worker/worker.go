package worker

import (
	"sync"

	"github.com/rs/zerolog"
)

// Job is a unit of background work.
// Its error is only logged, nobody waits for the outcome.
type Job struct {
	// Name identifies the job in log messages (e.g. the URL being fetched).
	Name string
	Run  func() error
}

// Config holds worker configuration
type Config struct {
	// QueueSize is the size of the job queue
	QueueSize int
	// WorkerCount is the number of concurrent workers
	WorkerCount int
	// Logger for job failures and dropped jobs
	Logger zerolog.Logger
}

// DefaultConfig returns default worker configuration
func DefaultConfig() Config {
	return Config{
		QueueSize:   256,
		WorkerCount: 4,
		Logger:      zerolog.Nop(),
	}
}

// Worker runs jobs on a fixed number of goroutines.
// Jobs cannot be cancelled once accepted.
type Worker struct {
	queue       chan Job
	workerCount int
	log         zerolog.Logger

	// mu guards stopped and sending on queue
	mu      sync.RWMutex
	stopped bool

	wg      sync.WaitGroup
	pending sync.WaitGroup
}

// NewWorker creates a new background worker.
// Call Start to begin processing.
func NewWorker(config Config) *Worker {
	if config.QueueSize <= 0 {
		config.QueueSize = 256
	}
	if config.WorkerCount <= 0 {
		config.WorkerCount = 4
	}
	return &Worker{
		queue:       make(chan Job, config.QueueSize),
		workerCount: config.WorkerCount,
		log:         config.Logger,
	}
}

// Start starts the worker pool
func (w *Worker) Start() {
	w.log.Debug().Msgf("Starting %d background workers", w.workerCount)
	for i := 0; i < w.workerCount; i++ {
		w.wg.Add(1)
		go w.processJobs(i)
	}
}

// Enqueue adds a job to the queue without blocking.
// It returns false if the job was dropped because the queue is full or the worker is stopped.
func (w *Worker) Enqueue(job Job) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.stopped {
		w.log.Warn().Str("job", job.Name).Msg("Worker stopped, dropping job")
		return false
	}
	w.pending.Add(1)
	select {
	case w.queue <- job:
		return true
	default:
		w.pending.Done()
		w.log.Warn().Str("job", job.Name).Msg("Job queue is full, dropping job")
		return false
	}
}

// Wait blocks until every accepted job has run.
func (w *Worker) Wait() {
	w.pending.Wait()
}

// Stop stops accepting jobs, lets the queued ones finish and stops the workers.
func (w *Worker) Stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	close(w.queue)
	w.mu.Unlock()
	w.wg.Wait()
	w.log.Debug().Msg("Background workers stopped")
}

// QueueLen returns the number of jobs waiting in the queue
func (w *Worker) QueueLen() int {
	return len(w.queue)
}

func (w *Worker) processJobs(workerID int) {
	defer w.wg.Done()
	for job := range w.queue {
		w.run(workerID, job)
	}
}

func (w *Worker) run(workerID int, job Job) {
	defer w.pending.Done()
	defer func() {
		if err := recover(); err != nil {
			w.log.Error().Int("worker", workerID).Str("job", job.Name).Interface("error", err).Msg("Panic in background job")
		}
	}()
	if err := job.Run(); err != nil {
		w.log.Warn().Err(err).Int("worker", workerID).Str("job", job.Name).Msg("Background job failed")
		return
	}
	w.log.Trace().Int("worker", workerID).Str("job", job.Name).Msg("Background job done")
}
