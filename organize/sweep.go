package organize

import (
	"sync"
	"time"

	"github.com/lightningnetwork/lnd/ticker"
)

// defaultEvictionMaxAge is used when a sweeper is configured with a zero
// EvictionMaxAge.
const defaultEvictionMaxAge = 24 * time.Hour

// sweeper periodically evicts stale pool entries under the low-priority
// write lock, the "bulk background jobs" class named in spec §5.
type sweeper struct {
	lock   *PrioRWLock
	pool   Pool
	ticker ticker.Ticker
	maxAge time.Duration

	quit chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

func newSweeper(lock *PrioRWLock, pool Pool, interval, maxAge time.Duration) *sweeper {
	if maxAge <= 0 {
		maxAge = defaultEvictionMaxAge
	}
	return &sweeper{
		lock:   lock,
		pool:   pool,
		ticker: ticker.New(interval),
		maxAge: maxAge,
		quit:   make(chan struct{}),
	}
}

func (s *sweeper) start() {
	s.ticker.Resume()
	s.wg.Add(1)
	go s.run()
}

func (s *sweeper) run() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ticker.Ticks():
			s.sweepOnce()
		case <-s.quit:
			return
		}
	}
}

func (s *sweeper) sweepOnce() {
	s.lock.LockLow()
	defer s.lock.Unlock()

	evicted := s.pool.EvictStale(s.maxAge)
	if evicted > 0 {
		log.Debugf("evicted %d stale pool entries older than %v",
			evicted, s.maxAge)
	}
}

func (s *sweeper) stop() {
	s.once.Do(func() {
		s.ticker.Stop()
		close(s.quit)
	})
	s.wg.Wait()
}
