package index

import (
	"context"
	"encoding/base64"
	"sort"
	"strings"
	"sync"
)

// MemoryIndex keeps records in-process, for tests and local development
// without Elasticsearch. Matching is naive substring search; that is enough
// to exercise scoping, ordering and projection behavior.
type MemoryIndex struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewMemoryIndex initializes an empty in-memory index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{records: make(map[string]Record)}
}

// Create stores or replaces a record under the document id.
func (m *MemoryIndex) Create(_ context.Context, id string, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[id] = rec
	return nil
}

// Search returns org-scoped matches, newest first, capped at MaxResults.
func (m *MemoryIndex) Search(_ context.Context, orgID, query string) ([]Hit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	needle := strings.ToLower(strings.TrimSpace(query))
	hits := make([]Hit, 0)
	for _, rec := range m.records {
		if rec.OrgID != orgID {
			continue
		}
		if needle != "" && !matches(rec, needle) {
			continue
		}
		hit := Hit{Record: rec}
		if needle != "" {
			if frag := attachmentFragment(rec, needle); frag != "" {
				hit.Highlights = []string{frag}
			}
		}
		hits = append(hits, hit)
	}
	sort.Slice(hits, func(i, j int) bool {
		return hits[i].Record.SubmittedAt.After(hits[j].Record.SubmittedAt)
	})
	if len(hits) > MaxResults {
		hits = hits[:MaxResults]
	}
	return hits, nil
}

// Len reports the number of stored records.
func (m *MemoryIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

// Get returns the record stored under a document id.
func (m *MemoryIndex) Get(id string) (Record, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[id]
	return rec, ok
}

func matches(rec Record, needle string) bool {
	for _, field := range []string{rec.Name, rec.Email, rec.Resume, rec.PositionID} {
		if strings.Contains(strings.ToLower(field), needle) {
			return true
		}
	}
	return strings.Contains(strings.ToLower(decodedAttachment(rec)), needle)
}

func attachmentFragment(rec Record, needle string) string {
	text := decodedAttachment(rec)
	idx := strings.Index(strings.ToLower(text), needle)
	if idx < 0 {
		return ""
	}
	start := idx - 40
	if start < 0 {
		start = 0
	}
	end := idx + len(needle) + 40
	if end > len(text) {
		end = len(text)
	}
	return text[start:end]
}

func decodedAttachment(rec Record) string {
	if rec.ResumeAttachment == "" {
		return ""
	}
	raw, err := base64.StdEncoding.DecodeString(rec.ResumeAttachment)
	if err != nil {
		return ""
	}
	return string(raw)
}
