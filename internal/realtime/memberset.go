package realtime

import (
	"context"
	"sync"

	"github.com/member-dashboard-api/internal/models"
)

// MemberSet holds the latest snapshot a consumer has seen. Every Replace
// swaps the whole content; nothing is merged.
type MemberSet struct {
	mu      sync.RWMutex
	members []*models.Member
	version uint64
	ready   bool
}

// Replace installs snap unless a newer snapshot is already held.
func (s *MemberSet) Replace(snap *Snapshot) bool {
	if snap == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready && snap.Version <= s.version {
		return false
	}
	s.members = snap.Members
	s.version = snap.Version
	s.ready = true
	return true
}

// Members returns the held members. The slice must not be modified.
func (s *MemberSet) Members() ([]*models.Member, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.members, s.ready
}

// Version returns the version of the held snapshot.
func (s *MemberSet) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Len returns the number of held members.
func (s *MemberSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.members)
}

// Follow replaces the set from sub until the subscription or ctx ends.
func (s *MemberSet) Follow(ctx context.Context, sub *Subscription) {
	defer sub.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-sub.C():
			if !ok {
				return
			}
			s.Replace(snap)
		}
	}
}
