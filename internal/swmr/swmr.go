// Package swmr implements the single-writer/multiple-reader lock used to
// guard the embedded store: any number of readers may run concurrently, at
// most one writer runs at a time, and writers never starve behind a steady
// stream of readers. A priority-access escape hatch lets a designated owner
// (the discoverer's pause-for-write window) jump the queue.
//
// Ported from the original medialibrary's SWMRLock: four counters plus a
// registered priority-owner list, guarded by one deadlock-checked mutex and
// woken by closing broadcast channels in place of condition variables.
package swmr

import (
	"github.com/sasha-s/go-deadlock"
)

// Lock is strictly not recursive: calling Lock or RLock again from a
// goroutine that already holds it deadlocks, exactly like the C++ original.
type Lock struct {
	mu deadlock.Mutex

	canRead  *condVar
	canWrite *condVar

	nbReader        int
	nbReaderWaiting int
	writing         bool
	nbWriterWaiting int

	priorityOwners map[interface{}]struct{}
}

// condVar is a tiny channel-based stand-in for a condition variable:
// broadcast closes the current channel to wake every waiter and replaces
// it. It is not a sync.Cond, which would need its own Locker wiring.
type condVar struct {
	l *Lock
	waiters chan struct{}
}

func newCond(l *Lock) *condVar {
	return &condVar{l: l, waiters: make(chan struct{})}
}

func (c *condVar) broadcast() {
	close(c.waiters)
	c.waiters = make(chan struct{})
}

// wait releases l.mu, blocks until the next broadcast, then re-acquires it.
func (c *condVar) wait() {
	ch := c.waiters
	c.l.mu.Unlock()
	<-ch
	c.l.mu.Lock()
}

// New returns a ready-to-use lock with no priority owners registered.
func New() *Lock {
	l := &Lock{priorityOwners: make(map[interface{}]struct{})}
	l.canRead = newCond(l)
	l.canWrite = newCond(l)
	return l
}

// RLock acquires the lock for reading. It blocks while a writer holds the
// lock, while a writer is waiting (writer priority, to avoid starvation),
// or while any priority owner other than token is registered.
func (l *Lock) RLock(token interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.nbReaderWaiting++
	for l.writing || l.nbWriterWaiting > 0 || l.mustGiveWay(token) {
		l.canRead.wait()
	}
	l.nbReaderWaiting--
	l.nbReader++
}

// RUnlock releases a read acquisition. If this was the last reader, a
// waiting writer is woken.
func (l *Lock) RUnlock() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.nbReader--
	if l.nbReader == 0 {
		l.canWrite.broadcast()
	}
}

// Lock acquires the lock for writing. It blocks while any reader holds it,
// while another writer holds it, or while a priority owner other than token
// is registered.
func (l *Lock) Lock(token interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.nbWriterWaiting++
	for l.nbReader > 0 || l.writing || l.mustGiveWay(token) {
		l.canWrite.wait()
	}
	l.nbWriterWaiting--
	l.writing = true
}

// Unlock releases a write acquisition, waking both readers and writers so
// whichever is eligible proceeds.
func (l *Lock) Unlock() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.writing = false
	l.canRead.broadcast()
	l.canWrite.broadcast()
}

// GrantPriority registers token as a priority owner: every subsequent
// Lock/RLock call not presenting that same token waits until
// RevokePriority(token) is called, even if the lock is currently free.
func (l *Lock) GrantPriority(token interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.priorityOwners[token] = struct{}{}
}

// RevokePriority removes token from the priority-owner set and wakes
// anyone waiting on it.
func (l *Lock) RevokePriority(token interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.priorityOwners, token)
	l.canRead.broadcast()
	l.canWrite.broadcast()
}

// HasPriority reports whether token currently holds priority access.
func (l *Lock) HasPriority(token interface{}) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.priorityOwners[token]
	return ok
}

// mustGiveWay reports whether a lock request presenting token must wait
// because some other token holds priority access. Must be called with
// l.mu held.
func (l *Lock) mustGiveWay(token interface{}) bool {
	if len(l.priorityOwners) == 0 {
		return false
	}
	if _, ok := l.priorityOwners[token]; ok {
		return false
	}
	return true
}
