// Package dedup suppresses repeated findings within a scan. A result is a
// duplicate when its canonical URL was already recorded or when its
// content is a near-duplicate (SimHash) of content already recorded.
package dedup

import (
	"sort"
	"sync"

	"github.com/sensinfor/sensinfor/pkg/simhash"
)

// Stats reports how much state a deduplicator holds.
type Stats struct {
	URLCount     int `json:"url_count"`
	ContentCount int `json:"content_count"`
}

// Hybrid combines a canonical-URL set with a list of content
// fingerprints. It is safe for concurrent use.
//
// Content with no hashable tokens (binary data, a lone short word) gets
// no fingerprint: all such texts hash to zero and would otherwise collapse
// onto each other. They are deduplicated by URL only.
type Hybrid struct {
	mu        sync.RWMutex
	threshold float64
	urls      map[string]struct{}
	hashes    map[string]simhash.Fingerprint // id -> fingerprint
	order     []string                       // insertion order of ids
}

// NewHybrid creates a Hybrid deduplicator. A threshold outside (0, 1]
// means simhash.DefaultThreshold.
func NewHybrid(threshold float64) *Hybrid {
	if threshold <= 0 || threshold > 1 {
		threshold = simhash.DefaultThreshold
	}
	return &Hybrid{
		threshold: threshold,
		urls:      make(map[string]struct{}),
		hashes:    make(map[string]simhash.Fingerprint),
	}
}

// Threshold returns the similarity threshold in use.
func (h *Hybrid) Threshold() float64 { return h.threshold }

func fingerprint(content string) (simhash.Fingerprint, bool) {
	if content == "" || len(simhash.Tokens(content)) == 0 {
		return 0, false
	}
	return simhash.Hash(content), true
}

// IsDuplicate reports whether rawURL was already recorded or content is
// at least Threshold similar to recorded content. Empty content is only
// checked by URL.
func (h *Hybrid) IsDuplicate(rawURL, content string) bool {
	key := NormalizeURL(rawURL)
	fp, hasFP := fingerprint(content)

	h.mu.RLock()
	defer h.mu.RUnlock()

	if _, ok := h.urls[key]; ok {
		return true
	}
	if !hasFP {
		return false
	}
	for _, existing := range h.hashes {
		if simhash.Similarity(fp, existing, simhash.DefaultBits) >= h.threshold {
			return true
		}
	}
	return false
}

// Add records a finding's URL and, when present, its content fingerprint
// under id.
func (h *Hybrid) Add(id, rawURL, content string) {
	key := NormalizeURL(rawURL)
	fp, hasFP := fingerprint(content)

	h.mu.Lock()
	defer h.mu.Unlock()

	h.urls[key] = struct{}{}
	if !hasFP {
		return
	}
	if _, exists := h.hashes[id]; !exists {
		h.order = append(h.order, id)
	}
	h.hashes[id] = fp
}

// FindSimilar returns the ids whose recorded content is at least
// Threshold similar to content, in insertion order.
func (h *Hybrid) FindSimilar(content string) []string {
	fp, ok := fingerprint(content)
	if !ok {
		return nil
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	var out []string
	for _, id := range h.order {
		existing, ok := h.hashes[id]
		if !ok {
			continue
		}
		if simhash.Similarity(fp, existing, simhash.DefaultBits) >= h.threshold {
			out = append(out, id)
		}
	}
	return out
}

// Remove forgets the URL and the fingerprint stored under id.
func (h *Hybrid) Remove(id, rawURL string) {
	key := NormalizeURL(rawURL)

	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.urls, key)
	if _, ok := h.hashes[id]; !ok {
		return
	}
	delete(h.hashes, id)
	for i, v := range h.order {
		if v == id {
			h.order = append(h.order[:i], h.order[i+1:]...)
			break
		}
	}
}

// Clear drops all recorded state.
func (h *Hybrid) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.urls = make(map[string]struct{})
	h.hashes = make(map[string]simhash.Fingerprint)
	h.order = nil
}

// Stats returns the number of recorded URLs and fingerprints.
func (h *Hybrid) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return Stats{URLCount: len(h.urls), ContentCount: len(h.hashes)}
}

// URLs returns the recorded canonical URLs, sorted.
func (h *Hybrid) URLs() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return sortedKeys(h.urls)
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
