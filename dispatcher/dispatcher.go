// Package dispatcher implements the Dispatcher consumed interface named in
// spec §6: posting a nullary continuation to a thread pool with a chosen
// concurrency tier. It is grounded generically on the goroutine/worker-pool
// idiom used throughout lnd (e.g. batch/batch.go's single-flight
// sync.Once-gated run, and the bounded worker pools htlcswitch and the
// autopilot agent spin up with a fixed number of long-lived goroutines
// draining a shared job channel) rather than on a single literal type,
// since no package in this snapshot ships a general-purpose "submit a
// closure to an N-worker pool" primitive under that exact name.
package dispatcher

import "sync"

// Job is a nullary continuation posted to a Dispatcher.
type Job func()

// Dispatcher runs posted jobs on a fixed-size pool of worker goroutines,
// FIFO per worker but with no ordering guarantee across workers — callers
// that need ordering must serialize themselves (the organizer's write lock
// is exactly that serialization point for the accept/reorganize path).
type Dispatcher struct {
	jobs chan Job
	wg   sync.WaitGroup

	stopOnce sync.Once
	quit     chan struct{}
}

// New starts a Dispatcher with concurrency worker goroutines. concurrency
// must be >= 1.
func New(concurrency int) *Dispatcher {
	if concurrency < 1 {
		concurrency = 1
	}

	d := &Dispatcher{
		jobs: make(chan Job, concurrency*4),
		quit: make(chan struct{}),
	}

	d.wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go d.worker()
	}

	return d
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()

	for {
		select {
		case job, ok := <-d.jobs:
			if !ok {
				return
			}
			job()

		case <-d.quit:
			return
		}
	}
}

// Post enqueues job to run on the next available worker. It blocks if every
// worker is busy and the internal queue is full, applying natural
// backpressure rather than growing unboundedly.
func (d *Dispatcher) Post(job Job) {
	select {
	case d.jobs <- job:
	case <-d.quit:
	}
}

// Stop drains in-flight jobs and terminates every worker goroutine. It does
// not wait for queued-but-not-yet-started jobs to run.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		close(d.quit)
	})
	d.wg.Wait()
}
