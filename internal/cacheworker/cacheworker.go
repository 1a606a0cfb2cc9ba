// Package cacheworker runs the single background thread that keeps cached
// copies of subscription media on disk, evicting older entries against a
// quota before caching new ones. Ported from the original's CacheWorker,
// generalized to the same single-queue-single-goroutine shape as
// internal/discoverer and internal/parser.
package cacheworker

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/silverreel/medialib/internal/model"
)

// Cacher is the external collaborator that actually copies media bytes
// into the managed cache directory and removes them again; spec.md
// classifies the real implementation as an out-of-scope collaborator, same
// as the thumbnail codec and the metadata probe.
type Cacher interface {
	// DoCache copies subscription's media into the cache directory,
	// returning the number of bytes written.
	DoCache(ctx context.Context, subscriptionID int64, mediaID int64) (int64, error)
	// Uncache removes a previously cached copy.
	Uncache(subscriptionID int64, mediaID int64) error
	// AvailableCacheSize reports how much of the global quota remains free.
	AvailableCacheSize() int64
	// CachedEntries lists (mediaID, size) for subscriptionID, ordered
	// oldest-first, the candidates evictIfNeeded removes first.
	CachedEntries(subscriptionID int64) ([]CachedEntry, error)
}

// CachedEntry is one already-cached piece of subscription media.
type CachedEntry struct {
	MediaID int64
	Size    int64
}

type opType uint8

const (
	opCache opType = iota
	opUncache
	opCacheAllSubscriptions
)

type op struct {
	typ            opType
	subscriptionID int64
	mediaID        int64
}

// Worker drains a queue of cache/uncache/cacheAllSubscriptions operations
// on a single goroutine.
type Worker struct {
	cacher        Cacher
	subscriptions subscriptionLister
	log           zerolog.Logger

	mu      sync.Mutex
	queue   []op
	paused  bool
	notify  chan struct{}
	stop    chan struct{}
	stopped bool

	onIdleChanged       func(idle bool)
	onSubscriptionCache func(subscriptionID int64)
}

// subscriptionLister is the narrow slice of the subscription repository
// this worker needs: enough to drive cacheAllSubscriptions without
// depending on the whole entity package's subscription CRUD surface.
type subscriptionLister interface {
	ListSubscriptions() ([]model.Subscription, error)
	MembersToCache(subscriptionID int64) ([]int64, error)
}

func New(cacher Cacher, subscriptions subscriptionLister, log zerolog.Logger) *Worker {
	return &Worker{
		cacher:        cacher,
		subscriptions: subscriptions,
		log:           log,
		notify:        make(chan struct{}, 1),
		stop:          make(chan struct{}),
	}
}

func (w *Worker) OnIdleChanged(cb func(idle bool))              { w.onIdleChanged = cb }
func (w *Worker) OnSubscriptionCacheUpdated(cb func(int64))      { w.onSubscriptionCache = cb }

// Cache enqueues a request to cache one media belonging to subscriptionID.
func (w *Worker) Cache(subscriptionID, mediaID int64) {
	w.enqueue(op{typ: opCache, subscriptionID: subscriptionID, mediaID: mediaID})
}

// Uncache enqueues a request to remove one cached media.
func (w *Worker) Uncache(subscriptionID, mediaID int64) {
	w.enqueue(op{typ: opUncache, subscriptionID: subscriptionID, mediaID: mediaID})
}

// CacheAllSubscriptions enqueues a full refresh pass over every
// subscription's cache target.
func (w *Worker) CacheAllSubscriptions() {
	w.enqueue(op{typ: opCacheAllSubscriptions})
}

func (w *Worker) enqueue(o op) {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.queue = append(w.queue, o)
	w.mu.Unlock()
	select {
	case w.notify <- struct{}{}:
	default:
	}
}

// Pause stops the worker from draining its queue without discarding it;
// Resume lets it continue.
func (w *Worker) Pause() {
	w.mu.Lock()
	w.paused = true
	w.mu.Unlock()
}

func (w *Worker) Resume() {
	w.mu.Lock()
	w.paused = false
	w.mu.Unlock()
	select {
	case w.notify <- struct{}{}:
	default:
	}
}

func (w *Worker) pop() (op, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.paused || len(w.queue) == 0 {
		return op{}, false
	}
	o := w.queue[0]
	w.queue = w.queue[1:]
	return o, true
}

// Run is the worker's main loop; it returns when Stop is signalled (or ctx
// is done) and no operation can be popped, so an unpaused worker drains its
// queue first.
func (w *Worker) Run(ctx context.Context) {
	w.setIdle(true)
	for {
		o, ok := w.pop()
		if !ok {
			select {
			case <-w.notify:
				continue
			case <-w.stop:
				return
			case <-ctx.Done():
				return
			}
		}
		w.setIdle(false)
		if err := w.process(ctx, o); err != nil {
			w.log.Warn().Err(err).Msg("cache worker operation failed")
		}
		w.maybeIdle()
	}
}

func (w *Worker) maybeIdle() {
	w.mu.Lock()
	idle := len(w.queue) == 0
	w.mu.Unlock()
	if idle {
		w.setIdle(true)
	}
}

func (w *Worker) setIdle(idle bool) {
	if w.onIdleChanged != nil {
		w.onIdleChanged(idle)
	}
}

// Stop refuses further operations and signals the loop to exit once its
// queue has drained (or at once, while paused).
func (w *Worker) Stop() {
	w.mu.Lock()
	w.stopped = true
	w.mu.Unlock()
	close(w.stop)
}

func (w *Worker) process(ctx context.Context, o op) error {
	switch o.typ {
	case opCache:
		return w.doCache(ctx, o.subscriptionID, o.mediaID)
	case opUncache:
		if err := w.cacher.Uncache(o.subscriptionID, o.mediaID); err != nil {
			return fmt.Errorf("uncache media %d: %w", o.mediaID, err)
		}
		return nil
	case opCacheAllSubscriptions:
		return w.cacheAllSubscriptions(ctx)
	}
	return fmt.Errorf("unknown cache worker op %d", o.typ)
}

func (w *Worker) cacheAllSubscriptions(ctx context.Context) error {
	subs, err := w.subscriptions.ListSubscriptions()
	if err != nil {
		return fmt.Errorf("list subscriptions: %w", err)
	}
	for _, s := range subs {
		members, err := w.subscriptions.MembersToCache(s.ID)
		if err != nil {
			w.log.Warn().Err(err).Int64("subscription", s.ID).Msg("failed to list subscription members")
			continue
		}
		for _, mediaID := range members {
			if err := w.doCache(ctx, s.ID, mediaID); err != nil {
				w.log.Warn().Err(err).Int64("subscription", s.ID).Int64("media", mediaID).Msg("failed to cache subscription member")
			}
		}
	}
	return nil
}

// doCache evicts against the global quota (AvailableCacheSize) before
// calling the injected Cacher's DoCache, matching the original's
// evictIfNeeded-then-doCache ordering. No per-subscription quota is
// checked: a subscription's MaxCacheSize is not consulted.
func (w *Worker) doCache(ctx context.Context, subscriptionID, mediaID int64) error {
	if err := w.evictIfNeeded(subscriptionID); err != nil {
		return fmt.Errorf("evict before cache: %w", err)
	}
	if _, err := w.cacher.DoCache(ctx, subscriptionID, mediaID); err != nil {
		return fmt.Errorf("cache media %d: %w", mediaID, err)
	}
	if w.onSubscriptionCache != nil {
		w.onSubscriptionCache(subscriptionID)
	}
	return nil
}

// evictIfNeeded removes the oldest cached entries for subscriptionID until
// the global cache has room, an LRU-style policy over cache order (oldest
// entries first) rather than true last-access time, matching
// CachedEntries' documented ordering.
func (w *Worker) evictIfNeeded(subscriptionID int64) error {
	if w.cacher.AvailableCacheSize() > 0 {
		return nil
	}
	entries, err := w.cacher.CachedEntries(subscriptionID)
	if err != nil {
		return fmt.Errorf("list cached entries: %w", err)
	}
	for _, e := range entries {
		if w.cacher.AvailableCacheSize() > 0 {
			return nil
		}
		if err := w.cacher.Uncache(subscriptionID, e.MediaID); err != nil {
			return fmt.Errorf("evict media %d: %w", e.MediaID, err)
		}
	}
	return nil
}
