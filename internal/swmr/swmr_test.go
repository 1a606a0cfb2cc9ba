package swmr

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConcurrentReaders(t *testing.T) {
	l := New()
	var active int32
	var maxActive int32
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.RLock(nil)
			n := atomic.AddInt32(&active, 1)
			for {
				m := atomic.LoadInt32(&maxActive)
				if n <= m || atomic.CompareAndSwapInt32(&maxActive, m, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			atomic.AddInt32(&active, -1)
			l.RUnlock()
		}()
	}
	wg.Wait()
	assert.Greater(t, maxActive, int32(1), "readers should run concurrently")
}

func TestWriterExcludesReaders(t *testing.T) {
	l := New()
	var writing int32

	l.Lock(nil)
	done := make(chan struct{})
	go func() {
		l.RLock(nil)
		assert.EqualValues(t, 0, atomic.LoadInt32(&writing))
		l.RUnlock()
		close(done)
	}()

	atomic.StoreInt32(&writing, 1)
	time.Sleep(20 * time.Millisecond)
	atomic.StoreInt32(&writing, 0)
	l.Unlock()
	<-done
}

func TestPriorityAccessBlocksOthers(t *testing.T) {
	l := New()
	owner := "owner"
	l.GrantPriority(owner)
	require.True(t, l.HasPriority(owner))

	blocked := make(chan struct{})
	go func() {
		l.RLock("someone-else")
		l.RUnlock()
		close(blocked)
	}()

	select {
	case <-blocked:
		t.Fatal("non-priority reader should have waited")
	case <-time.After(30 * time.Millisecond):
	}

	l.RevokePriority(owner)
	select {
	case <-blocked:
	case <-time.After(time.Second):
		t.Fatal("reader never unblocked after priority revoked")
	}
}

func TestPriorityOwnerDoesNotBlockItself(t *testing.T) {
	l := New()
	owner := "owner"
	l.GrantPriority(owner)

	done := make(chan struct{})
	go func() {
		l.RLock(owner)
		l.RUnlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("priority owner should not wait on its own priority grant")
	}
}
