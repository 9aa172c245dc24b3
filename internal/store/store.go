// Package store persists one scope's memory index: a SQLite database holding
// the chunk rows and their FTS5 full-text postings, plus an HNSW graph for
// vector search. The Markdown files stay authoritative; everything here is
// derived and can be rebuilt from them.
//
// A Store is exclusive to one process. Cross-process exclusion comes from a
// file lock on the scope's lock path, held from Open until Close; in-process
// callers are serialized by an internal mutex. The chunks table and the FTS
// table only change together, inside one transaction, so they cannot drift.
// The vector graph lives in memory and is persisted by Save and Close.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/openclaw/openclaw-memory/internal/chunk"
	"github.com/openclaw/openclaw-memory/internal/config"
	"github.com/openclaw/openclaw-memory/internal/errors"
)

const (
	// defaultTopK bounds searches when the caller does not.
	defaultTopK = 10

	// findSimilarK is how many neighbors the dedup probe examines.
	findSimilarK = 5
)

// Meta keys recorded in the index database. The service compares them
// against the active embedder on startup and rebuilds when they disagree.
const (
	MetaEmbedderModel      = "embedder_model"
	MetaEmbedderDimensions = "embedder_dimensions"
)

// ScoredChunk is a chunk with its search score attached: cosine similarity
// for vector search, normalized BM25 for full-text search.
type ScoredChunk struct {
	chunk.Chunk
	Score float64
}

// TypeStat aggregates chunks of one memory type.
type TypeStat struct {
	Chunks int
	Tokens int
}

// Stats summarizes one scope's index.
type Stats struct {
	TotalChunks      int
	TotalFiles       int
	TotalTokens      int
	ByType           map[string]TypeStat
	MaxReinforcement int
	MaxAccessCount   int

	// Vectors is the number of live vector entries; Orphans counts
	// lazy-deleted graph nodes awaiting the next rebuild.
	Vectors int
	Orphans int
}

// Store is one scope's persistence layer.
type Store struct {
	scope config.Scope
	dims  int

	mu      sync.RWMutex
	db      *indexDB
	vectors *vectorIndex
	lock    *flock.Flock
	closed  bool
}

// Open acquires the scope's file lock and opens its index, creating both on
// first use. Open blocks until the lock is free or ctx is done, so callers
// that should not wait on a busy scope pass a context with a deadline.
// A corrupted database is cleared and recreated; an unreadable or
// wrong-dimension vector index starts empty and refills on the next index
// run.
func Open(ctx context.Context, scope config.Scope, dimensions int) (*Store, error) {
	if dimensions <= 0 {
		return nil, errors.ConfigError(fmt.Sprintf("embedding dimension must be positive, got %d", dimensions), nil)
	}
	if err := os.MkdirAll(scope.Root, 0o755); err != nil {
		return nil, errors.StorageError("create scope root", err)
	}

	lock := flock.New(scope.LockPath())
	locked, err := lock.TryLockContext(ctx, 100*time.Millisecond)
	if err != nil || !locked {
		return nil, errors.StorageError(
			fmt.Sprintf("%s scope is locked by another process", scope.Kind), err)
	}

	db, err := openIndexDB(scope.IndexPath())
	if err != nil {
		_ = lock.Unlock()
		return nil, errors.StorageError("open index database", err)
	}

	vectors := newVectorIndex(dimensions)
	if _, statErr := os.Stat(scope.VectorPath()); statErr == nil {
		if loadErr := vectors.load(scope.VectorPath()); loadErr != nil {
			slog.Warn("vector index unreadable, starting empty",
				slog.String("scope", scope.String()),
				slog.String("error", loadErr.Error()))
			vectors = newVectorIndex(dimensions)
		}
	}

	return &Store{
		scope:   scope,
		dims:    dimensions,
		db:      db,
		vectors: vectors,
		lock:    lock,
	}, nil
}

// Scope returns the scope this store persists.
func (s *Store) Scope() config.Scope { return s.scope }

// Dimensions returns the vector dimension the store was opened with.
func (s *Store) Dimensions() int { return s.dims }

// Upsert writes one chunk and its embedding. Re-upserting an unchanged chunk
// is a no-op that preserves counters, timestamps, and the stored vector;
// vec must carry the store's dimension whenever the id is new.
func (s *Store) Upsert(ctx context.Context, c chunk.Chunk, vec []float32) error {
	if c.ID == "" || c.URI == "" {
		return errors.StorageError("chunk is missing id or uri", nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed()
	}

	// Same id means same content, and therefore the same embedding: the
	// vector only needs writing when the id is not mapped yet.
	added := false
	if !s.vectors.contains(c.ID) {
		if err := s.vectors.add(c.ID, vec); err != nil {
			return errors.New(errors.ErrCodeDimensionMismatch, err.Error(), err)
		}
		added = true
	}

	if err := s.db.upsert(ctx, c, ftsText(c.Content)); err != nil {
		if added {
			s.vectors.remove(c.ID)
		}
		return storeErr(ctx, "upsert chunk", err)
	}
	return nil
}

// VectorSearch returns up to topK chunks nearest to vec by cosine
// similarity, descending. parentDir restricts results to one top-level
// folder when non-empty.
func (s *Store) VectorSearch(ctx context.Context, vec []float32, topK int, parentDir string) ([]ScoredChunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errClosed()
	}
	return s.vectorSearchLocked(ctx, vec, topK, parentDir)
}

func (s *Store) vectorSearchLocked(ctx context.Context, vec []float32, topK int, parentDir string) ([]ScoredChunk, error) {
	if topK <= 0 {
		topK = defaultTopK
	}

	// Over-fetch: the parent filter and orphan skipping thin the list.
	hits, err := s.vectors.search(vec, topK*3)
	if err != nil {
		return nil, errors.New(errors.ErrCodeDimensionMismatch, err.Error(), err)
	}
	if len(hits) == 0 {
		return nil, nil
	}

	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
	}
	rows, err := s.db.getByIDs(ctx, ids)
	if err != nil {
		return nil, storeErr(ctx, "load chunks for vector hits", err)
	}

	out := make([]ScoredChunk, 0, topK)
	for _, h := range hits {
		c, ok := rows[h.ID]
		if !ok {
			continue
		}
		if parentDir != "" && c.ParentDir != parentDir {
			continue
		}
		out = append(out, ScoredChunk{Chunk: c, Score: h.Similarity})
		if len(out) == topK {
			break
		}
	}
	return out, nil
}

// FTSSearch returns up to topK chunks by BM25 relevance, best first. The
// query is tokenized with the same rules as the indexed content; a query
// with no indexable tokens returns nothing.
func (s *Store) FTSSearch(ctx context.Context, query string, topK int, parentDir string) ([]ScoredChunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errClosed()
	}
	if topK <= 0 {
		topK = defaultTopK
	}

	tokens := Tokenize(query)
	if len(tokens) == 0 {
		return nil, nil
	}
	results, err := s.db.ftsSearch(ctx, strings.Join(tokens, " "), topK, parentDir)
	if err != nil {
		return nil, storeErr(ctx, "full-text search", err)
	}
	return results, nil
}

// FindSimilar returns near-duplicates of vec: the nearest neighbors whose
// similarity reaches threshold, descending. The write pipeline uses it to
// decide between reinforcing, replacing, and appending.
func (s *Store) FindSimilar(ctx context.Context, vec []float32, threshold float64, parentDir string) ([]ScoredChunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errClosed()
	}

	hits, err := s.vectorSearchLocked(ctx, vec, findSimilarK, parentDir)
	if err != nil {
		return nil, err
	}
	var out []ScoredChunk
	for _, h := range hits {
		if h.Score >= threshold {
			out = append(out, h)
		}
	}
	return out, nil
}

// IncrementReinforcement bumps one chunk's reinforcement counter, touches
// updated_at, and returns the new value.
func (s *Store) IncrementReinforcement(ctx context.Context, id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, errClosed()
	}

	value, err := s.db.incrementReinforcement(ctx, id)
	if err == errNoSuchChunk {
		return 0, errors.NotFound(id)
	}
	if err != nil {
		return 0, storeErr(ctx, "increment reinforcement", err)
	}
	return value, nil
}

// IncrementAccessCounts bumps the access counter for every id in one
// statement. Ids that are no longer in the table are ignored.
func (s *Store) IncrementAccessCounts(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed()
	}
	if err := s.db.incrementAccessCounts(ctx, ids); err != nil {
		return storeErr(ctx, "increment access counts", err)
	}
	return nil
}

// DeleteByURI removes every chunk of one source file, returning how many
// were removed. Deleting an unknown uri is a no-op.
func (s *Store) DeleteByURI(ctx context.Context, uri string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, errClosed()
	}

	ids, err := s.db.deleteByURI(ctx, uri)
	if err != nil {
		return 0, storeErr(ctx, "delete chunks by uri", err)
	}
	s.vectors.remove(ids...)
	return len(ids), nil
}

// DeleteIDs removes specific chunks. The indexer uses it to drop stale
// chunks after a file changed.
func (s *Store) DeleteIDs(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed()
	}

	if err := s.db.deleteIDs(ctx, ids); err != nil {
		return storeErr(ctx, "delete chunks", err)
	}
	s.vectors.remove(ids...)
	return nil
}

// GetByID returns one chunk, or nil when the id is unknown.
func (s *Store) GetByID(ctx context.Context, id string) (*chunk.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errClosed()
	}

	c, err := s.db.getByID(ctx, id)
	if err != nil {
		return nil, storeErr(ctx, "get chunk", err)
	}
	return c, nil
}

// GetByURI returns a file's chunks ordered by position.
func (s *Store) GetByURI(ctx context.Context, uri string) ([]chunk.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errClosed()
	}

	chunks, err := s.db.getByURI(ctx, uri)
	if err != nil {
		return nil, storeErr(ctx, "get chunks by uri", err)
	}
	return chunks, nil
}

// GetByContentHash returns a file's chunks with the given content hash.
func (s *Store) GetByContentHash(ctx context.Context, uri, hash string) ([]chunk.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errClosed()
	}

	chunks, err := s.db.getByContentHash(ctx, uri, hash)
	if err != nil {
		return nil, storeErr(ctx, "get chunks by content hash", err)
	}
	return chunks, nil
}

// AllURIs returns every indexed source path, sorted.
func (s *Store) AllURIs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errClosed()
	}

	uris, err := s.db.allURIs(ctx)
	if err != nil {
		return nil, storeErr(ctx, "list uris", err)
	}
	return uris, nil
}

// AllIDs returns every chunk id, sorted. Consistency checks compare this
// against the vector index.
func (s *Store) AllIDs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errClosed()
	}

	ids, err := s.db.allIDs(ctx)
	if err != nil {
		return nil, storeErr(ctx, "list ids", err)
	}
	return ids, nil
}

// MaxReinforcement returns the highest reinforcement count in the scope,
// used to normalize salience scores.
func (s *Store) MaxReinforcement(ctx context.Context) (int, error) {
	return s.maxCounter(ctx, "reinforcement")
}

// MaxAccessCount returns the highest access count in the scope.
func (s *Store) MaxAccessCount(ctx context.Context) (int, error) {
	return s.maxCounter(ctx, "access_count")
}

func (s *Store) maxCounter(ctx context.Context, column string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, errClosed()
	}

	v, err := s.db.maxCounter(ctx, column)
	if err != nil {
		return 0, storeErr(ctx, "read max "+column, err)
	}
	return v, nil
}

// Stats summarizes the scope's index.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errClosed()
	}

	st, err := s.db.stats(ctx)
	if err != nil {
		return nil, storeErr(ctx, "collect stats", err)
	}
	st.Vectors = s.vectors.count()
	st.Orphans = s.vectors.orphans()
	return st, nil
}

// Meta reads a metadata value, returning "" when the key was never set.
func (s *Store) Meta(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return "", errClosed()
	}

	value, err := s.db.getMeta(ctx, key)
	if err != nil {
		return "", storeErr(ctx, "read meta", err)
	}
	return value, nil
}

// SetMeta writes a metadata value.
func (s *Store) SetMeta(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed()
	}
	if err := s.db.setMeta(ctx, key, value); err != nil {
		return storeErr(ctx, "write meta", err)
	}
	return nil
}

// Reset drops every chunk, FTS row, and vector, keeping metadata. The
// service calls it before a full rebuild, typically after the embedder
// changed.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed()
	}

	if err := s.db.deleteAll(ctx); err != nil {
		return storeErr(ctx, "clear index", err)
	}
	s.vectors = newVectorIndex(s.dims)
	return nil
}

// Save checkpoints the database and persists the vector graph atomically.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed()
	}
	return s.saveLocked()
}

func (s *Store) saveLocked() error {
	if err := s.db.save(); err != nil {
		return errors.StorageError("checkpoint index database", err)
	}
	if err := s.vectors.save(s.scope.VectorPath()); err != nil {
		return errors.StorageError("persist vector index", err)
	}
	return nil
}

// Close persists everything, closes the database, and releases the scope
// lock. Closing twice is a no-op.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	var firstErr error
	if err := s.vectors.save(s.scope.VectorPath()); err != nil {
		firstErr = errors.StorageError("persist vector index", err)
	}
	if err := s.db.close(); err != nil && firstErr == nil {
		firstErr = errors.StorageError("close index database", err)
	}
	if err := s.lock.Unlock(); err != nil && firstErr == nil {
		firstErr = errors.StorageError("release scope lock", err)
	}
	return firstErr
}

func errClosed() error {
	return errors.StorageError("store is closed", nil)
}

// storeErr maps a low-level failure onto the structured error surface,
// reporting cancellation when the context ended first.
func storeErr(ctx context.Context, msg string, err error) error {
	if ctx.Err() != nil {
		return errors.Cancelled(ctx.Err())
	}
	return errors.StorageError(msg, err)
}
