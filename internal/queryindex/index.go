package queryindex

import (
	"sort"
	"sync"
	"time"

	"github.com/nguyentranbao-ct/chat-sync/internal/models"
)

// entry snapshots the sort-relevant channel fields at index time, so the
// comparator never has to reach back into the store.
type entry struct {
	cid          models.CID
	lastActivity time.Time
	createdAt    time.Time
	updatedAt    time.Time
	memberCount  int
}

func newEntry(ch models.Channel) entry {
	return entry{
		cid:          ch.CID,
		lastActivity: ch.LastActivityAt(),
		createdAt:    ch.CreatedAt,
		updatedAt:    ch.UpdatedAt,
		memberCount:  ch.MemberCount,
	}
}

type queryState struct {
	spec    Spec
	entries []entry
}

// Index maintains every registered query's ordered result set. All methods
// are safe for concurrent use.
type Index struct {
	mu      sync.RWMutex
	queries map[QueryID]*queryState
}

func NewIndex() *Index {
	return &Index{queries: make(map[QueryID]*queryState)}
}

// Register adds a query spec and returns its id. Registering an identical
// spec returns the existing id without resetting its result set.
func (ix *Index) Register(spec Spec) QueryID {
	if len(spec.Sort) == 0 {
		spec.Sort = DefaultSort()
	}
	id := spec.ID()

	ix.mu.Lock()
	defer ix.mu.Unlock()
	if _, ok := ix.queries[id]; !ok {
		ix.queries[id] = &queryState{spec: spec}
	}
	return id
}

// Specs snapshots the registered query specs, keyed by id.
func (ix *Index) Specs() map[QueryID]Spec {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	out := make(map[QueryID]Spec, len(ix.queries))
	for id, q := range ix.queries {
		out[id] = q.spec
	}
	return out
}

func (ix *Index) Unregister(id QueryID) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	delete(ix.queries, id)
}

// ApplyUpsert re-evaluates the channel against every registered query and
// splices it into or out of each ordered result set. Deleted channels are
// removed everywhere.
func (ix *Index) ApplyUpsert(ch models.Channel) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	for _, q := range ix.queries {
		q.remove(ch.CID)
		if ch.IsDeleted() || !q.spec.Filter.Match(ch) {
			continue
		}
		q.insert(newEntry(ch))
	}
}

func (ix *Index) Remove(cid models.CID) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	for _, q := range ix.queries {
		q.remove(cid)
	}
}

// Page returns up to limit cids after the cursor, plus whether more
// entries follow. An empty cursor starts from the top; the cursor is the
// last cid of the previous page.
func (ix *Index) Page(id QueryID, cursor models.CID, limit int) ([]models.CID, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	q, ok := ix.queries[id]
	if !ok {
		return nil, false
	}

	start := 0
	if cursor != "" {
		for i, e := range q.entries {
			if e.cid == cursor {
				start = i + 1
				break
			}
		}
	}
	end := len(q.entries)
	if limit > 0 && start+limit < end {
		end = start + limit
	}

	out := make([]models.CID, 0, end-start)
	for _, e := range q.entries[start:end] {
		out = append(out, e.cid)
	}
	return out, end < len(q.entries)
}

// Results returns every registered query's current ordered result set,
// keyed by query id. Used to persist the index tables.
func (ix *Index) Results() map[QueryID][]models.CID {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	out := make(map[QueryID][]models.CID, len(ix.queries))
	for id, q := range ix.queries {
		cids := make([]models.CID, 0, len(q.entries))
		for _, e := range q.entries {
			cids = append(cids, e.cid)
		}
		out[id] = cids
	}
	return out
}

// Rebuild drops every result set and re-indexes from the given channels.
// Used after reconnect resyncs and crash recovery: the index is never
// authoritative.
func (ix *Index) Rebuild(channels []models.Channel) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	for _, q := range ix.queries {
		q.entries = q.entries[:0]
		for _, ch := range channels {
			if ch.IsDeleted() || !q.spec.Filter.Match(ch) {
				continue
			}
			q.insert(newEntry(ch))
		}
	}
}

func (q *queryState) remove(cid models.CID) {
	for i, e := range q.entries {
		if e.cid == cid {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			return
		}
	}
}

// insert splices the entry in at its sorted position. Binary search over
// the query's comparator keeps updates O(log n) plus the copy.
func (q *queryState) insert(e entry) {
	pos := sort.Search(len(q.entries), func(i int) bool {
		return q.less(e, q.entries[i])
	})
	q.entries = append(q.entries, entry{})
	copy(q.entries[pos+1:], q.entries[pos:])
	q.entries[pos] = e
}

func (q *queryState) less(a, b entry) bool {
	for _, s := range q.spec.Sort {
		cmp := compareField(s.Field, a, b)
		if cmp == 0 {
			continue
		}
		if s.Desc {
			return cmp > 0
		}
		return cmp < 0
	}
	// deterministic tie-break: cid ascending
	return a.cid < b.cid
}

func compareField(field SortField, a, b entry) int {
	switch field {
	case SortLastActivity:
		return compareTime(a.lastActivity, b.lastActivity)
	case SortCreatedAt:
		return compareTime(a.createdAt, b.createdAt)
	case SortUpdatedAt:
		return compareTime(a.updatedAt, b.updatedAt)
	case SortMemberCount:
		return a.memberCount - b.memberCount
	}
	return 0
}

func compareTime(a, b time.Time) int {
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	}
	return 0
}
