package organize

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPrioRWLockExcludesReadersAndWriters(t *testing.T) {
	l := NewPrioRWLock()

	l.RLock()
	var writerEntered int32
	done := make(chan struct{})
	go func() {
		l.LockHigh()
		atomic.StoreInt32(&writerEntered, 1)
		l.Unlock()
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	require.EqualValues(t, 0, atomic.LoadInt32(&writerEntered),
		"a high-priority writer must wait behind an active reader")

	l.RUnlock()
	<-done
	require.EqualValues(t, 1, atomic.LoadInt32(&writerEntered))
}

func TestPrioRWLockHighPreemptsQueuedLow(t *testing.T) {
	l := NewPrioRWLock()

	// Hold the write lock so both a low and, shortly after, a high
	// priority writer queue up behind it.
	l.LockHigh()

	var order []string
	var mu sync.Mutex
	record := func(who string) {
		mu.Lock()
		order = append(order, who)
		mu.Unlock()
	}

	lowStarted := make(chan struct{})
	go func() {
		close(lowStarted)
		l.LockLow()
		record("low")
		l.Unlock()
	}()
	<-lowStarted
	time.Sleep(20 * time.Millisecond) // let low register as waiting

	highDone := make(chan struct{})
	go func() {
		l.LockHigh()
		record("high")
		l.Unlock()
		close(highDone)
	}()
	time.Sleep(20 * time.Millisecond) // let high register as waiting

	l.Unlock() // release the initial holder; high and low both contend

	<-highDone
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"high", "low"}, order,
		"a waiting high-priority writer must run before a waiting low-priority one")
}

func TestPrioRWLockAllowsConcurrentReaders(t *testing.T) {
	l := NewPrioRWLock()

	l.RLock()
	l.RLock()

	var writerEntered int32
	done := make(chan struct{})
	go func() {
		l.LockHigh()
		atomic.StoreInt32(&writerEntered, 1)
		l.Unlock()
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	require.EqualValues(t, 0, atomic.LoadInt32(&writerEntered))

	l.RUnlock()
	time.Sleep(10 * time.Millisecond)
	require.EqualValues(t, 0, atomic.LoadInt32(&writerEntered),
		"writer must wait for both readers to release")

	l.RUnlock()
	<-done
	require.EqualValues(t, 1, atomic.LoadInt32(&writerEntered))
}
