package dedup

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"fragment dropped", "https://example.com/.git/config#top", "https://example.com/.git/config"},
		{"tracking removed and sorted", "https://Example.com/a?b=2&utm_source=x&a=1&fbclid=z&gclid=q", "https://example.com/a?a=1&b=2"},
		{"utm prefix", "https://example.com/?utm_term=foo&utm_content=bar", "https://example.com/"},
		{"empty path", "https://example.com", "https://example.com/"},
		{"relative left alone", "relative/path", "relative/path"},
		{"garbage left alone", "::not a url", "::not a url"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, NormalizeURL(tt.in))
		})
	}
}

func TestHybrid_Fixture(t *testing.T) {
	t.Parallel()
	h := NewHybrid(0.95)

	h.Add("id1", "https://example.com/.env", "X")
	assert.True(t, h.IsDuplicate("https://example.com/.env", "X"))
	assert.False(t, h.IsDuplicate("https://example.com/other", "completely different text"))
}

func TestHybrid_URLCanonicalization(t *testing.T) {
	t.Parallel()
	h := NewHybrid(0)
	assert.Equal(t, 0.95, h.Threshold())

	h.Add("id1", "https://example.com/backup.zip?utm_source=mail", "")
	assert.True(t, h.IsDuplicate("https://example.com/backup.zip#x", ""))
	assert.False(t, h.IsDuplicate("https://example.com/backup.tar.gz", ""))
}

func TestHybrid_ContentSimilarity(t *testing.T) {
	t.Parallel()
	h := NewHybrid(0.95)

	page := "The quick brown fox jumps over the lazy dog near the riverbank while children play in the park on a sunny afternoon"
	similar := "The quick brown fox jumps over the lazy dog near the riverbank while the children play in the park on a sunny afternoon"
	other := "Quarterly revenue increased significantly driven by strong enterprise subscription growth across european markets"

	h.Add("a", "https://example.com/one", page)
	assert.True(t, h.IsDuplicate("https://example.com/two", similar))
	assert.False(t, h.IsDuplicate("https://example.com/two", other))

	assert.Equal(t, []string{"a"}, h.FindSimilar(similar))
	assert.Empty(t, h.FindSimilar(other))
	assert.Nil(t, h.FindSimilar(""))
}

func TestHybrid_TokenlessContentNotFingerprinted(t *testing.T) {
	t.Parallel()
	h := NewHybrid(0.95)
	h.Add("a", "https://example.com/.DS_Store", "\x00\x01")
	assert.False(t, h.IsDuplicate("https://example.com/other", "\x00\x02"))
	assert.Equal(t, Stats{URLCount: 1, ContentCount: 0}, h.Stats())
}

func TestHybrid_RemoveAndClear(t *testing.T) {
	t.Parallel()
	h := NewHybrid(0.95)
	h.Add("a", "https://example.com/a", "alpha bravo charlie delta")
	h.Add("b", "https://example.com/b", "echo foxtrot golf hotel india")
	require.Equal(t, Stats{URLCount: 2, ContentCount: 2}, h.Stats())

	h.Remove("a", "https://example.com/a")
	assert.Equal(t, Stats{URLCount: 1, ContentCount: 1}, h.Stats())
	assert.False(t, h.IsDuplicate("https://example.com/a", ""))
	assert.Equal(t, []string{"https://example.com/b"}, h.URLs())

	h.Clear()
	assert.Equal(t, Stats{}, h.Stats())
	assert.Empty(t, h.URLs())
}

func TestHybrid_Concurrent(t *testing.T) {
	t.Parallel()
	h := NewHybrid(0.95)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			u := fmt.Sprintf("https://example.com/%d", i)
			h.Add(fmt.Sprint(i), u, "")
			_ = h.IsDuplicate(u, "")
			_ = h.FindSimilar("some content here")
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 50, h.Stats().URLCount)
}

func TestManager(t *testing.T) {
	t.Parallel()
	m := NewManager()

	s := m.Create("sess-1", 0.9)
	require.NotNil(t, s)
	assert.Equal(t, "sess-1", s.ID())
	assert.Equal(t, 0.9, s.Threshold())
	assert.Same(t, s, m.Get("sess-1"))
	assert.Equal(t, 1, m.Active())

	m.Create("sess-2", 0.95)
	m.Delete("sess-1")
	assert.Nil(t, m.Get("sess-1"))
	assert.Equal(t, 1, m.Active())

	m.Reset()
	assert.Zero(t, m.Active())
}
