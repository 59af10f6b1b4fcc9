package loader

import (
	"sort"
	"sync"
	"time"

	"studiocal/internal/model"
)

// FeedStore holds the sessions most recently imported from external feeds,
// per studio and feed. Refresh replaces one feed's set at a time, so a feed
// that fails to import keeps its previous sessions.
type FeedStore struct {
	mu        sync.RWMutex
	byStudio  map[string]map[string][]model.Session
	updatedAt map[string]time.Time
}

func NewFeedStore() *FeedStore {
	return &FeedStore{
		byStudio:  make(map[string]map[string][]model.Session),
		updatedAt: make(map[string]time.Time),
	}
}

// Replace swaps the sessions imported from feedID into studioID.
func (f *FeedStore) Replace(studioID, feedID string, sessions []model.Session, at time.Time) {
	cp := make([]model.Session, len(sessions))
	copy(cp, sessions)

	f.mu.Lock()
	defer f.mu.Unlock()
	feeds, ok := f.byStudio[studioID]
	if !ok {
		feeds = make(map[string][]model.Session)
		f.byStudio[studioID] = feeds
	}
	feeds[feedID] = cp
	f.updatedAt[studioID] = at
}

// Sessions returns the imported sessions of studioID overlapping [from, to).
func (f *FeedStore) Sessions(studioID string, from, to time.Time) []model.Session {
	f.mu.RLock()
	defer f.mu.RUnlock()

	var out []model.Session
	for _, sessions := range f.byStudio[studioID] {
		for _, s := range sessions {
			if s.StartTime.Before(to) && s.EndTime.After(from) {
				out = append(out, s)
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartTime.Before(out[j].StartTime)
	})
	return out
}

// Has reports whether any feed was imported for studioID.
func (f *FeedStore) Has(studioID string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.byStudio[studioID]
	return ok
}

// UpdatedAt is when a feed of studioID was last imported.
func (f *FeedStore) UpdatedAt(studioID string) (time.Time, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	t, ok := f.updatedAt[studioID]
	return t, ok
}

// StudioIDs lists studios with imported feeds, sorted.
func (f *FeedStore) StudioIDs() []string {
	f.mu.RLock()
	ids := make([]string, 0, len(f.byStudio))
	for id := range f.byStudio {
		ids = append(ids, id)
	}
	f.mu.RUnlock()
	sort.Strings(ids)
	return ids
}
