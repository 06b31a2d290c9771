package retrieval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"
)

// domainKeywords boost overlap on infrastructure vocabulary. A keyword
// shared by query and document adds a flat 0.1 on top of the Jaccard
// score, so scores above 1.0 are possible and intentional.
var domainKeywords = map[string]struct{}{
	"snmp": {}, "ping": {}, "tcp": {}, "udp": {}, "http": {}, "https": {},
	"ssh": {}, "dns": {}, "server": {}, "router": {}, "switch": {},
	"firewall": {}, "network": {}, "cpu": {}, "memory": {}, "disk": {},
	"bandwidth": {}, "latency": {}, "throughput": {}, "uptime": {},
	"monitor": {}, "monitoring": {}, "alert": {}, "threshold": {},
	"metric": {}, "endpoint": {}, "offline": {}, "online": {},
	"error": {}, "warning": {}, "critical": {}, "timeout": {},
}

// LexicalStore ranks documents by word-set overlap. It needs no external
// model or service, which makes it the default strategy; the corpus is held
// in memory and optionally persisted to a JSON file.
type LexicalStore struct {
	logger *slog.Logger
	path   string

	mu   sync.RWMutex
	docs []Document
}

// NewLexicalStore loads the corpus from path when the file exists. An empty
// path keeps the store purely in-memory and makes Persist a no-op.
func NewLexicalStore(logger *slog.Logger, path string) (*LexicalStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &LexicalStore{logger: logger, path: path}
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

// Add stores one document and returns its id. The document is searchable
// immediately; durability requires a later Persist.
func (s *LexicalStore) Add(_ context.Context, content string, metadata map[string]any) (string, error) {
	if strings.TrimSpace(content) == "" {
		return "", errors.New("empty document content")
	}
	now := time.Now().UTC()
	doc := Document{
		ID:        newDocumentID(content, now),
		Content:   content,
		Metadata:  metadata,
		Timestamp: now,
	}

	s.mu.Lock()
	s.docs = append(s.docs, doc)
	total := len(s.docs)
	s.mu.Unlock()

	s.logger.Debug("document added", slog.String("id", doc.ID), slog.Int("total", total))
	return doc.ID, nil
}

// Search scores every document against the query and returns the top k,
// highest score first. Scores at or below 0.1 are discarded as noise; the
// remaining scores are reported as-is, uncapped.
func (s *LexicalStore) Search(_ context.Context, query string, k int, filter map[string]any) ([]SearchResult, error) {
	if k <= 0 {
		k = 3
	}
	queryWords := tokenize(query)

	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]SearchResult, 0, len(s.docs))
	for _, doc := range s.docs {
		if len(filter) > 0 && !matchesFilter(doc.Metadata, filter) {
			continue
		}
		score := lexicalScore(queryWords, tokenize(doc.Content))
		if score <= 0.1 {
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
func (s *LexicalStore) Context(ctx context.Context, query string, maxChars, k int) ([]string, error) {
	results, err := s.Search(ctx, query, k, nil)
	if err != nil {
		return nil, err
	}
	return AssembleContext(results, maxChars), nil
}

// Stats reports corpus totals and a per-type breakdown keyed on the "type"
// metadata field.
func (s *LexicalStore) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return corpusStats(s.docs)
}

// Persist writes the corpus back to the configured file atomically.
func (s *LexicalStore) Persist() error {
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

// tokenize lowercases the text, strips everything that is not a letter and
// returns the resulting word set.
func tokenize(text string) map[string]struct{} {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

// lexicalScore is Jaccard similarity of the two word sets plus a 0.1 bonus
// per shared domain keyword.
func lexicalScore(query, doc map[string]struct{}) float64 {
	if len(query) == 0 || len(doc) == 0 {
		return 0
	}
	shared := 0
	bonus := 0.0
	for w := range query {
		if _, ok := doc[w]; !ok {
			continue
		}
		shared++
		if _, ok := domainKeywords[w]; ok {
			bonus += 0.1
		}
	}
	union := len(query) + len(doc) - shared
	if union == 0 {
		return 0
	}
	return float64(shared)/float64(union) + bonus
}

// corpusStats is shared by both store strategies.
func corpusStats(docs []Document) Stats {
	stats := Stats{DocumentTypes: make(map[string]int)}
	for _, doc := range docs {
		stats.TotalDocuments++
		stats.TotalContentSize += len(doc.Content)
		docType := "unknown"
		if t, ok := doc.Metadata["type"]; ok {
			docType = fmt.Sprint(t)
		}
		stats.DocumentTypes[docType]++
	}
	if stats.TotalDocuments > 0 {
		stats.AverageDocumentSize = stats.TotalContentSize / stats.TotalDocuments
	}
	return stats
}
