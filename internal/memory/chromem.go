package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/philippgille/chromem-go"
)

const (
	collectionName = "memories"
	indexFileName  = "entries_index.json"

	defaultSearchLimit = 5

	// Hybrid ranking weights. Embedding similarity carries most of the
	// signal; the keyword fraction rescues exact-term matches that
	// small embedding models rank poorly.
	semanticWeight = 0.7
	keywordWeight  = 0.3
)

// ChromemStore keeps conversation memories in a chromem-go collection
// and mirrors them in an in-process map so List and metadata lookups
// never touch the vector index. The map is journaled to a JSON sidecar
// next to the chromem data when the store is persistent.
type ChromemStore struct {
	db         *chromem.DB
	collection *chromem.Collection
	entries    map[string]Entry
	mu         sync.RWMutex
	persistDir string // empty for in-memory
}

// NewChromemStore opens (or creates) a persistent store under persistDir.
func NewChromemStore(persistDir string, embedFunc EmbedFunc) (*ChromemStore, error) {
	db, err := chromem.NewPersistentDB(persistDir, false)
	if err != nil {
		return nil, fmt.Errorf("open persistent DB: %w", err)
	}
	s, err := newChromemStore(db, embedFunc)
	if err != nil {
		return nil, err
	}
	s.persistDir = persistDir
	// A missing sidecar just means a fresh store.
	_ = s.loadIndex()
	return s, nil
}

// NewChromemStoreInMemory creates a store with no disk footprint.
func NewChromemStoreInMemory(embedFunc EmbedFunc) (*ChromemStore, error) {
	return newChromemStore(chromem.NewDB(), embedFunc)
}

func newChromemStore(db *chromem.DB, embedFunc EmbedFunc) (*ChromemStore, error) {
	col, err := db.GetOrCreateCollection(collectionName, nil, chromem.EmbeddingFunc(embedFunc))
	if err != nil {
		return nil, fmt.Errorf("get or create collection: %w", err)
	}
	return &ChromemStore{
		db:         db,
		collection: col,
		entries:    make(map[string]Entry),
	}, nil
}

func (s *ChromemStore) Add(ctx context.Context, entry Entry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	err := s.collection.AddDocument(ctx, chromem.Document{
		ID:       entry.ID,
		Content:  entry.Content(),
		Metadata: entry.metadata(),
	})
	if err != nil {
		return fmt.Errorf("add document: %w", err)
	}

	s.mu.Lock()
	s.entries[entry.ID] = entry
	s.mu.Unlock()
	s.saveIndex()
	return nil
}

// AddNote stores a standalone note entry.
func (s *ChromemStore) AddNote(ctx context.Context, text, sessionID string) error {
	return s.Add(ctx, Entry{
		Note:      text,
		SessionID: sessionID,
	})
}

// Search ranks up to limit entries (default 5) against query using the
// combined semantic/keyword score, best first.
func (s *ChromemStore) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	count := s.collection.Count()
	if count == 0 {
		return nil, nil
	}
	if limit > count {
		// chromem rejects nResults above the collection size.
		limit = count
	}

	results, err := s.collection.Query(ctx, query, limit, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query collection: %w", err)
	}

	queryWords := extractWords(query)
	hits := make([]SearchResult, len(results))
	for i, r := range results {
		kw := keywordScore(queryWords, r.Content)
		hits[i] = SearchResult{
			Entry:         s.lookup(r),
			SemanticScore: r.Similarity,
			KeywordScore:  kw,
			CombinedScore: semanticWeight*r.Similarity + keywordWeight*kw,
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		return hits[i].CombinedScore > hits[j].CombinedScore
	})
	return hits, nil
}

// List returns entries newest first, all of them when limit <= 0.
func (s *ChromemStore) List(ctx context.Context, limit int) ([]Entry, error) {
	s.mu.RLock()
	entries := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Timestamp.After(entries[j].Timestamp)
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (s *ChromemStore) Delete(ctx context.Context, id string) error {
	if err := s.collection.Delete(ctx, nil, nil, id); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}

	s.mu.Lock()
	delete(s.entries, id)
	s.mu.Unlock()
	s.saveIndex()
	return nil
}

func (s *ChromemStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	s.entries = make(map[string]Entry)
	s.mu.Unlock()

	if len(ids) > 0 {
		if err := s.collection.Delete(ctx, nil, nil, ids...); err != nil {
			return fmt.Errorf("clear collection: %w", err)
		}
	}
	s.saveIndex()
	return nil
}

func (s *ChromemStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *ChromemStore) Close() error {
	return nil
}

// lookup resolves a query result to its full entry, falling back to the
// metadata chromem stored with the document when the map has lost it
// (the sidecar was deleted, or another process wrote the collection).
func (s *ChromemStore) lookup(r chromem.Result) Entry {
	s.mu.RLock()
	e, ok := s.entries[r.ID]
	s.mu.RUnlock()
	if ok {
		return e
	}
	return entryFromMetadata(r.ID, r.Metadata)
}

// Sidecar index. chromem persists documents but offers no cheap
// enumeration, so the entry map is written whole on every mutation.
// Writes are best effort; the collection remains the source of truth.

func (s *ChromemStore) indexPath() string {
	if s.persistDir == "" {
		return ""
	}
	return filepath.Join(s.persistDir, indexFileName)
}

func (s *ChromemStore) saveIndex() {
	path := s.indexPath()
	if path == "" {
		return
	}
	s.mu.RLock()
	data, err := json.Marshal(s.entries)
	s.mu.RUnlock()
	if err != nil {
		return
	}
	_ = os.WriteFile(path, data, 0644)
}

func (s *ChromemStore) loadIndex() error {
	path := s.indexPath()
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return json.Unmarshal(data, &s.entries)
}

// extractWords lowercases text and keeps whitespace-separated words of
// at least three bytes, dropping stopword-length noise.
func extractWords(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	words := fields[:0]
	for _, w := range fields {
		if len(w) >= 3 {
			words = append(words, w)
		}
	}
	return words
}

// keywordScore is the fraction of queryWords appearing in content,
// case-insensitive substring match.
func keywordScore(queryWords []string, content string) float32 {
	if len(queryWords) == 0 {
		return 0
	}
	lower := strings.ToLower(content)
	matches := 0
	for _, w := range queryWords {
		if strings.Contains(lower, w) {
			matches++
		}
	}
	return float32(matches) / float32(len(queryWords))
}
