package history

import (
	"sort"
	"sync"
)

// Store holds the reconstructed history for one watched pool. Entries are
// unique by signature and kept sorted newest first. Both the paginated
// fetcher and the live listener merge through the same rules, so the final
// set is independent of arrival order.
type Store struct {
	mu         sync.RWMutex
	entries    []Entry
	seen       map[string]struct{}
	cursor     string
	hasMore    bool
	generation uint64
}

func NewStore() *Store {
	return &Store{
		seen:    make(map[string]struct{}),
		hasMore: true,
	}
}

// Merge adds entries that are not yet present and restores the ordering
// invariant. Returns the signatures actually added. Merging the same batch
// twice is a no-op.
func (s *Store) Merge(entries []Entry) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mergeLocked(entries)
}

// MergeAt merges entries only while the store is still in the given
// generation. A reset between capturing the generation and this call makes
// the merge a refused no-op, so stale pages can never leak into a fresh
// watch. The check and the mutation share one critical section.
func (s *Store) MergeAt(generation uint64, entries []Entry) ([]string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != generation {
		return nil, false
	}
	return s.mergeLocked(entries), true
}

func (s *Store) mergeLocked(entries []Entry) []string {
	var added []string
	for _, entry := range entries {
		if entry.Signature == "" {
			continue
		}
		if _, dup := s.seen[entry.Signature]; dup {
			continue
		}
		s.seen[entry.Signature] = struct{}{}
		s.entries = append(s.entries, entry)
		added = append(added, entry.Signature)
	}

	if len(added) > 0 {
		sort.SliceStable(s.entries, func(i, j int) bool {
			return s.entries[i].effectiveTime() > s.entries[j].effectiveTime()
		})
	}
	return added
}

// Append merges a single entry; used by the live listener.
func (s *Store) Append(entry Entry) bool {
	return len(s.Merge([]Entry{entry})) == 1
}

// Snapshot returns a copy of the entries, newest first.
func (s *Store) Snapshot() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Newest returns the most recent entry, if any.
func (s *Store) Newest() (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.entries) == 0 {
		return Entry{}, false
	}
	return s.entries[0], true
}

// Len returns the number of entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Cursor returns the oldest loaded signature, the exclusive upper bound for
// the next backward page. Empty until a page has been merged.
func (s *Store) Cursor() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cursor
}

// AdvanceCursor records the oldest signature of the latest page and whether
// more pages may exist.
func (s *Store) AdvanceCursor(signature string, hasMore bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursor = signature
	s.hasMore = hasMore
}

// AdvanceCursorAt is AdvanceCursor conditioned on the store still being in
// the given generation; reports whether the cursor was moved.
func (s *Store) AdvanceCursorAt(generation uint64, signature string, hasMore bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != generation {
		return false
	}
	s.cursor = signature
	s.hasMore = hasMore
	return true
}

// ExhaustPages pins hasMore to false until the store is reset.
func (s *Store) ExhaustPages() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hasMore = false
}

// ExhaustPagesAt is ExhaustPages conditioned on the store still being in the
// given generation; reports whether pagination was ended.
func (s *Store) ExhaustPagesAt(generation uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != generation {
		return false
	}
	s.hasMore = false
	return true
}

// HasMore reports whether another backward page may exist.
func (s *Store) HasMore() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hasMore
}

// Generation identifies the current watch epoch. In-flight work captured
// under an older generation must discard its results.
func (s *Store) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

// Reset discards all state and starts a new generation. Called when the
// watched pool address changes or the consumer retries after an error.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
	s.seen = make(map[string]struct{})
	s.cursor = ""
	s.hasMore = true
	s.generation++
}
