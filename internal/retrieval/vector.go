package retrieval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// Embedder turns text into a dense vector. Implementations call an external
// embedding model; the store itself stays transport-agnostic.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// VectorStore ranks documents by cosine similarity between query and
// document embeddings. It fulfils the same Store contract as LexicalStore;
// only ranking quality differs from the caller's perspective.
type VectorStore struct {
	logger   *slog.Logger
	embedder Embedder
	path     string

	mu   sync.RWMutex
	docs []Document
}

// NewVectorStore loads any persisted corpus, embeddings included, so the
// embedder is only consulted for new documents and queries.
func NewVectorStore(logger *slog.Logger, embedder Embedder, path string) (*VectorStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if embedder == nil {
		return nil, errors.New("vector store requires an embedder")
	}
	s := &VectorStore{logger: logger, embedder: embedder, path: path}
	if path == "" {
		return s, nil
	}

	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Info("knowledge base file absent, starting empty", slog.String("path", path))
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read knowledge base: %w", err)
	}
	if err := json.Unmarshal(raw, &s.docs); err != nil {
		return nil, fmt.Errorf("parse knowledge base %s: %w", path, err)
	}
	logger.Info("knowledge base loaded",
		slog.String("path", path),
		slog.Int("documents", len(s.docs)),
	)
	return s, nil
}

// Add embeds the content and stores it. A failing embedder fails the Add;
// no un-embedded documents enter the corpus.
func (s *VectorStore) Add(ctx context.Context, content string, metadata map[string]any) (string, error) {
	if strings.TrimSpace(content) == "" {
		return "", errors.New("empty document content")
	}
	embedding, err := s.embedder.Embed(ctx, content)
	if err != nil {
		return "", fmt.Errorf("embed document: %w", err)
	}

	now := time.Now().UTC()
	doc := Document{
		ID:        newDocumentID(content, now),
		Content:   content,
		Metadata:  metadata,
		Embedding: embedding,
		Timestamp: now,
	}

	s.mu.Lock()
	s.docs = append(s.docs, doc)
	total := len(s.docs)
	s.mu.Unlock()

	s.logger.Debug("document added", slog.String("id", doc.ID), slog.Int("total", total))
	return doc.ID, nil
}

// Search embeds the query and returns the k nearest documents by cosine
// similarity, highest first. Non-positive similarities are dropped.
func (s *VectorStore) Search(ctx context.Context, query string, k int, filter map[string]any) ([]SearchResult, error) {
	if k <= 0 {
		k = 3
	}
	queryVec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]SearchResult, 0, len(s.docs))
	for _, doc := range s.docs {
		if len(filter) > 0 && !matchesFilter(doc.Metadata, filter) {
			continue
		}
		score := cosineSimilarity(queryVec, doc.Embedding)
		if score <= 0 {
			continue
		}
		results = append(results, SearchResult{
			ID:       doc.ID,
			Content:  doc.Content,
			Metadata: doc.Metadata,
			Score:    score,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Context searches and assembles the bounded chunk list for prompt use.
func (s *VectorStore) Context(ctx context.Context, query string, maxChars, k int) ([]string, error) {
	results, err := s.Search(ctx, query, k, nil)
	if err != nil {
		return nil, err
	}
	return AssembleContext(results, maxChars), nil
}

// Stats reports corpus totals and a per-type breakdown.
func (s *VectorStore) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return corpusStats(s.docs)
}

// Persist writes the corpus, embeddings included, to the configured file.
func (s *VectorStore) Persist() error {
	if s.path == "" {
		return nil
	}

	s.mu.RLock()
	raw, err := json.MarshalIndent(s.docs, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("encode knowledge base: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create knowledge base dir: %w", err)
	}
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write knowledge base: %w", err)
	}
	return os.Rename(tmp, s.path)
}

// cosineSimilarity of two vectors; mismatched or zero-length vectors score
// zero rather than erroring, so one bad document cannot sink a search.
func cosineSimilarity(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
