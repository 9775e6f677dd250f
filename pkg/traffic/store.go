// Copyright 2025-2026 Velby. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

package traffic

import (
	"sort"
	"strconv"
	"strings"
	"sync"
)

// DefaultCapacity bounds the store's memory footprint. Eviction is strict
// FIFO: when full, the single oldest record is dropped to admit a new one.
const DefaultCapacity = 50_000

// Store is a bounded, concurrency-safe collection of Records ordered
// oldest-to-newest, with an id index for point lookups. Reads snapshot the
// sequence under the lock and filter outside it, so searches never observe
// a half-applied insert/evict and never block writers for longer than the
// copy takes.
type Store struct {
	mu       sync.Mutex
	records  []*Record
	byID     map[int64]*Record
	capacity int
}

// NewStore creates a store with the given capacity; <= 0 selects
// DefaultCapacity.
func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{
		byID:     make(map[int64]*Record),
		capacity: capacity,
	}
}

// Add inserts a record, evicting the oldest one first when at capacity.
// The evicted record leaves the id index in the same critical section.
func (s *Store) Add(r *Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.records) >= s.capacity {
		evicted := s.records[0]
		s.records = s.records[1:]
		delete(s.byID, evicted.ID)
	}
	s.records = append(s.records, r)
	s.byID[r.ID] = r
}

// Size returns the current record count.
func (s *Store) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// GetByID returns the record with the given id, or false when it was never
// inserted or has been evicted. Absence is not an error.
func (s *Store) GetByID(id int64) (*Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.byID[id]
	return r, ok
}

// GetLatestByTool returns the most recent record whose tool matches
// (case-insensitively), or false when none does.
func (s *Store) GetLatestByTool(tool string) (*Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.records) - 1; i >= 0; i-- {
		if strings.EqualFold(s.records[i].Tool, tool) {
			return s.records[i], true
		}
	}
	return nil, false
}

// Hosts returns the de-duplicated, lexicographically sorted hostnames
// currently retained.
func (s *Store) Hosts() []string {
	s.mu.Lock()
	seen := make(map[string]bool, 64)
	for _, r := range s.records {
		seen[r.Host] = true
	}
	s.mu.Unlock()

	hosts := make([]string, 0, len(seen))
	for h := range seen {
		hosts = append(hosts, h)
	}
	sort.Strings(hosts)
	return hosts
}

// Query holds the optional search filters. Zero values mean "no constraint";
// an empty filter string never means "match empty string".
type Query struct {
	Host       string // substring, case-insensitive
	Method     string // exact, case-insensitive
	Status     string // decimal-string prefix: "4" = 4xx, "20" = 200-209
	Search     string // substring, case-insensitive
	SearchIn   string // CSV of parts for Search; empty = search everywhere
	Tool       string // exact, case-insensitive
	ExtExclude string // CSV of URL extensions to drop
	Mime       string // substring on response Content-Type
	TaggedOnly bool   // only records carrying a provenance tag
	Order      string // "asc" = oldest first; anything else = newest first
	Limit      int
	Offset     int
}

// Search snapshots the current records in the requested order, applies the
// query's filters as a conjunction, then paginates. Concurrent inserts after
// the snapshot is taken do not affect the result.
func (s *Store) Search(q Query) []*Record {
	searchIn := parseCSVSet(q.SearchIn, false)
	extExclude := parseCSVSet(q.ExtExclude, true)
	mime := strings.ToLower(q.Mime)
	ascending := strings.EqualFold(q.Order, "asc")

	s.mu.Lock()
	snapshot := make([]*Record, len(s.records))
	if ascending {
		copy(snapshot, s.records)
	} else {
		for i, r := range s.records {
			snapshot[len(s.records)-1-i] = r
		}
	}
	s.mu.Unlock()

	capHint := q.Limit
	if capHint <= 0 || capHint > 256 {
		capHint = 256
	}
	results := make([]*Record, 0, capHint)
	skipped := 0
	for _, r := range snapshot {
		if q.TaggedOnly && r.MCPTag == "" {
			continue
		}
		if q.Host != "" && !strings.Contains(strings.ToLower(r.Host), strings.ToLower(q.Host)) {
			continue
		}
		if q.Method != "" && !strings.EqualFold(q.Method, r.Method) {
			continue
		}
		if q.Status != "" && !matchesStatus(r.StatusCode, q.Status) {
			continue
		}
		if q.Tool != "" && !strings.EqualFold(q.Tool, r.Tool) {
			continue
		}
		if len(extExclude) > 0 && extExclude[r.Extension()] {
			continue
		}
		if mime != "" && !strings.Contains(r.ContentType(), mime) {
			continue
		}
		if q.Search != "" {
			if len(searchIn) == 0 {
				if !r.MatchesAnywhere(q.Search) {
					continue
				}
			} else if !r.MatchesIn(q.Search, searchIn) {
				continue
			}
		}
		if skipped < q.Offset {
			skipped++
			continue
		}
		results = append(results, r)
		if q.Limit > 0 && len(results) >= q.Limit {
			break
		}
	}
	return results
}

// matchesStatus implements the prefix semantics: the filter must be a
// string prefix of the decimal status code.
func matchesStatus(code int, filter string) bool {
	return strings.HasPrefix(strconv.Itoa(code), filter)
}

func parseCSVSet(csv string, lower bool) map[string]bool {
	if csv == "" {
		return nil
	}
	set := make(map[string]bool)
	for _, s := range strings.Split(csv, ",") {
		s = strings.TrimSpace(s)
		if lower {
			s = strings.ToLower(s)
		}
		if s != "" {
			set[s] = true
		}
	}
	return set
}
