// Package realtime fans out full member snapshots to live subscribers.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/member-dashboard-api/internal/models"
	"github.com/rs/zerolog"
)

// ErrHubClosed is returned by Subscribe after the hub has stopped.
var ErrHubClosed = errors.New("realtime hub closed")

// Snapshot is the complete member collection at one point in time.
type Snapshot struct {
	Version uint64           `json:"version"`
	Members []*models.Member `json:"members"`
	At      time.Time        `json:"at"`
}

// SnapshotSource loads the whole collection.
type SnapshotSource interface {
	List(ctx context.Context) ([]*models.Member, error)
}

// Hub reloads a snapshot on every change notification and hands it to each
// subscriber. A subscriber only ever holds the newest undelivered snapshot.
type Hub struct {
	source SnapshotSource
	log    zerolog.Logger
	notify chan struct{}

	// refreshMu serializes loads so versions follow load order
	refreshMu sync.Mutex

	mu      sync.Mutex
	subs    map[*Subscription]struct{}
	current *Snapshot
	version uint64
	closed  bool
}

// NewHub creates a hub over source
func NewHub(source SnapshotSource, log zerolog.Logger) *Hub {
	return &Hub{
		source: source,
		log:    log.With().Str("component", "realtime").Logger(),
		notify: make(chan struct{}, 1),
		subs:   make(map[*Subscription]struct{}),
	}
}

// Notify schedules a reload. Notifications that arrive while one is
// pending are merged.
func (h *Hub) Notify() {
	select {
	case h.notify <- struct{}{}:
	default:
	}
}

// Run loads the first snapshot and then reloads on every notification
// until ctx is done, when every subscription is closed.
func (h *Hub) Run(ctx context.Context) {
	if err := h.Refresh(ctx); err != nil {
		h.log.Warn().Err(err).Msg("Initial snapshot failed")
	}
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return
		case <-h.notify:
			if err := h.Refresh(ctx); err != nil {
				h.log.Warn().Err(err).Msg("Snapshot reload failed")
			}
		}
	}
}

// Refresh loads a snapshot now and publishes it.
func (h *Hub) Refresh(ctx context.Context) error {
	h.refreshMu.Lock()
	defer h.refreshMu.Unlock()

	members, err := h.source.List(ctx)
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrHubClosed
	}
	h.version++
	snap := &Snapshot{Version: h.version, Members: members, At: time.Now().UTC()}
	h.current = snap
	for sub := range h.subs {
		sub.offer(snap)
	}
	h.log.Debug().Uint64("version", snap.Version).Int("members", len(members)).Int("subscribers", len(h.subs)).Msg("Snapshot published")
	return nil
}

// Current returns the last published snapshot, or nil before the first load.
func (h *Hub) Current() *Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current
}

// Subscribers returns the number of open subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Subscribe opens a subscription that first yields the current snapshot and
// then one snapshot per change. It is closed by Close or when ctx is done.
func (h *Hub) Subscribe(ctx context.Context) (*Subscription, error) {
	if h.Current() == nil {
		if err := h.Refresh(ctx); err != nil {
			return nil, err
		}
	}

	sub := &Subscription{
		hub:  h,
		ch:   make(chan *Snapshot, 1),
		done: make(chan struct{}),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrHubClosed
	}
	sub.offer(h.current)
	h.subs[sub] = struct{}{}
	h.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			sub.Close()
		case <-sub.done:
		}
	}()
	return sub, nil
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[sub]; ok {
		delete(h.subs, sub)
		close(sub.ch)
	}
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	subs := h.subs
	h.subs = make(map[*Subscription]struct{})
	h.closed = true
	h.mu.Unlock()

	for sub := range subs {
		close(sub.ch)
		sub.once.Do(func() { close(sub.done) })
	}
	h.log.Info().Int("subscribers", len(subs)).Msg("Realtime hub stopped")
}

// Subscription is one consumer's handle on the snapshot stream.
type Subscription struct {
	hub  *Hub
	ch   chan *Snapshot
	done chan struct{}
	once sync.Once
}

// C yields snapshots. It is closed when the subscription ends.
func (s *Subscription) C() <-chan *Snapshot {
	return s.ch
}

// Done is closed when the subscription ends.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Close releases the subscription. It is safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.remove(s)
		close(s.done)
	})
}

// offer replaces any undelivered snapshot with snap. Callers hold hub.mu.
func (s *Subscription) offer(snap *Snapshot) {
	select {
	case s.ch <- snap:
		return
	default:
	}
	select {
	case <-s.ch:
	default:
	}
	select {
	case s.ch <- snap:
	default:
	}
}
