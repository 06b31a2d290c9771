package retrieval

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"time"
	"unicode/utf8"
)

// Document is one knowledge-corpus entry. Identity combines a content hash
// with the creation timestamp, so re-adding identical content creates a new
// document instead of deduplicating; the corpus is expected to be replaced
// wholesale by the refresh job rather than pruned in place.
type Document struct {
	ID        string         `json:"id"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Embedding []float64      `json:"embedding,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// SearchResult is one ranked hit against the corpus.
type SearchResult struct {
	ID       string         `json:"id"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Score    float64        `json:"similarity"`
}

// Stats summarises the corpus.
type Stats struct {
	TotalDocuments      int            `json:"total_documents"`
	TotalContentSize    int            `json:"total_content_size"`
	AverageDocumentSize int            `json:"average_document_size"`
	DocumentTypes       map[string]int `json:"document_types"`
}

// Store is the similarity-strategy contract. Lexical and vector strategies
// are interchangeable behind it; a document added with Add is observable by
// Search and Context immediately, without an explicit Persist.
type Store interface {
	Add(ctx context.Context, content string, metadata map[string]any) (string, error)
	Search(ctx context.Context, query string, k int, filter map[string]any) ([]SearchResult, error)
	Context(ctx context.Context, query string, maxChars, k int) ([]string, error)
	Stats() Stats
	Persist() error
}

// ContextSeparator joins context chunks for prompt assembly.
const ContextSeparator = "\n\n---\n\n"

// minUsefulChunk is the smallest truncated prefix worth including.
const minUsefulChunk = 100

// newDocumentID derives a document id from the content hash plus creation
// time. Identical content therefore yields distinct ids across calls.
func newDocumentID(content string, now time.Time) string {
	sum := md5.Sum([]byte(content))
	return fmt.Sprintf("%s_%s", hex.EncodeToString(sum[:]), now.Format(time.RFC3339Nano))
}

// AssembleContext walks ranked results appending whole documents while the
// running character total stays within budget. When the next document would
// overflow, an ellipsis-marked prefix is appended only if more than
// minUsefulChunk characters remain, and assembly stops. The combined chunk
// length never exceeds maxChars.
func AssembleContext(results []SearchResult, maxChars int) []string {
	chunks := make([]string, 0, len(results))
	used := 0
	for _, res := range results {
		if used+len(res.Content) <= maxChars {
			chunks = append(chunks, res.Content)
			used += len(res.Content)
			continue
		}
		remaining := maxChars - used
		if remaining > minUsefulChunk {
			// Back the cut up to a rune boundary so the prefix stays
			// valid UTF-8.
			cut := remaining - 3
			for cut > 0 && !utf8.RuneStart(res.Content[cut]) {
				cut--
			}
			chunks = append(chunks, res.Content[:cut]+"...")
		}
		break
	}
	return chunks
}

// matchesFilter applies exact-match metadata filtering.
func matchesFilter(metadata map[string]any, filter map[string]any) bool {
	for key, want := range filter {
		got, ok := metadata[key]
		if !ok || fmt.Sprint(got) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}
