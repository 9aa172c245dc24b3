// Package index makes a scope's store converge to its on-disk Markdown
// corpus.
//
// IndexFile is the unit of reconciliation: chunk the file, embed every
// chunk in one batch, then compare the new chunk set against what the
// store holds for that URI. Re-chunking an unchanged file is a no-op;
// content that moved within the file keeps its reinforcement and access
// counters by content-hash matching; whatever remains is deleted. A full
// IndexAll stages the same work corpus-wide (scan, chunk, one embedding
// batch, reconcile per file in sorted order) and prunes URIs that
// vanished from disk.
package index

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/openclaw/openclaw-memory/internal/async"
	"github.com/openclaw/openclaw-memory/internal/chunk"
	"github.com/openclaw/openclaw-memory/internal/config"
	"github.com/openclaw/openclaw-memory/internal/embed"
	"github.com/openclaw/openclaw-memory/internal/errors"
	"github.com/openclaw/openclaw-memory/internal/scanner"
	"github.com/openclaw/openclaw-memory/internal/store"
)

// Indexer reconciles one scope's store with its Markdown files.
type Indexer struct {
	scope    config.Scope
	store    *store.Store
	embedder embed.Embedder
	scanner  *scanner.Scanner
	chunker  *chunk.Chunker
}

// New builds an indexer over an opened store.
func New(scope config.Scope, st *store.Store, em embed.Embedder, sc *scanner.Scanner) *Indexer {
	return &Indexer{
		scope:    scope,
		store:    st,
		embedder: em,
		scanner:  sc,
		chunker:  chunk.New(),
	}
}

// Scanner returns the corpus filter, shared with the watcher.
func (ix *Indexer) Scanner() *scanner.Scanner { return ix.scanner }

// IndexFile reconciles one file, named by its URI relative to the scope
// root. A missing file deletes the URI's chunks. Returns the number of
// chunks now stored for the URI.
func (ix *Indexer) IndexFile(ctx context.Context, uri string) (int, error) {
	uri = filepath.ToSlash(uri)

	chunks, ok, err := ix.loadAndChunk(uri)
	if err != nil {
		return 0, err
	}
	if !ok {
		_, derr := ix.store.DeleteByURI(ctx, uri)
		return 0, derr
	}

	vecs, err := ix.embedChunks(ctx, chunks)
	if err != nil {
		return 0, err
	}
	return ix.reconcile(ctx, uri, chunks, vecs)
}

// Remove deletes every chunk stored for uri. The watcher's delete path.
func (ix *Indexer) Remove(ctx context.Context, uri string) (int, error) {
	return ix.store.DeleteByURI(ctx, filepath.ToSlash(uri))
}

// loadAndChunk reads and chunks one file. ok is false when the file is
// gone or is not a regular file, which callers treat as a delete.
func (ix *Indexer) loadAndChunk(uri string) ([]chunk.Chunk, bool, error) {
	abs := filepath.Join(ix.scope.Root, filepath.FromSlash(uri))

	info, err := os.Lstat(abs)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.New(errors.ErrCodeFileIO, fmt.Sprintf("stat %s", uri), err)
	}
	if !info.Mode().IsRegular() {
		return nil, false, nil
	}

	raw, err := os.ReadFile(abs)
	if err != nil {
		return nil, false, errors.New(errors.ErrCodeFileIO, fmt.Sprintf("read %s", uri), err)
	}
	return ix.prepare(uri, string(raw)), true, nil
}

// prepare chunks one file and applies the corpus defaults: frontmatter
// type wins over the URI-inferred one, importance floors at 1.
func (ix *Indexer) prepare(uri, text string) []chunk.Chunk {
	chunks := ix.chunker.Chunk(uri, text)
	inferred := TypeFromURI(uri)
	for i := range chunks {
		if chunks[i].Type == "" {
			chunks[i].Type = inferred
		}
		if chunks[i].Importance <= 0 {
			chunks[i].Importance = 1
		}
	}
	return chunks
}

func (ix *Indexer) embedChunks(ctx context.Context, chunks []chunk.Chunk) ([][]float32, error) {
	if len(chunks) == 0 {
		return nil, nil
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	return ix.embedTexts(ctx, texts)
}

func (ix *Indexer) embedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := ix.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(texts) {
		return nil, errors.InternalError(
			fmt.Sprintf("embedder returned %d vectors for %d texts", len(vecs), len(texts)), nil)
	}
	return vecs, nil
}

// reconcile replaces the stored chunk set for uri with chunks. Chunks
// whose id survives are untouched; new ids claim the counters and
// creation time of a departing chunk with the same content hash, so
// content moved within a file keeps its history.
func (ix *Indexer) reconcile(ctx context.Context, uri string, chunks []chunk.Chunk, vecs [][]float32) (int, error) {
	old, err := ix.store.GetByURI(ctx, uri)
	if err != nil {
		return 0, err
	}

	newIDs := make(map[string]bool, len(chunks))
	for _, c := range chunks {
		newIDs[c.ID] = true
	}

	oldIDs := make(map[string]bool, len(old))
	donors := make(map[string][]chunk.Chunk)
	var leftovers []string
	for _, o := range old {
		oldIDs[o.ID] = true
		if !newIDs[o.ID] {
			donors[o.ContentHash] = append(donors[o.ContentHash], o)
			leftovers = append(leftovers, o.ID)
		}
	}

	for i := range chunks {
		c := &chunks[i]
		if !oldIDs[c.ID] {
			if ds := donors[c.ContentHash]; len(ds) > 0 {
				d := ds[0]
				donors[c.ContentHash] = ds[1:]
				c.Reinforcement = d.Reinforcement
				c.AccessCount = d.AccessCount
				c.CreatedAt = d.CreatedAt
			}
		}
		if err := ix.store.Upsert(ctx, *c, vecs[i]); err != nil {
			return 0, err
		}
	}

	if len(leftovers) > 0 {
		if err := ix.store.DeleteIDs(ctx, leftovers); err != nil {
			return 0, err
		}
	}
	return len(chunks), nil
}

// filePlan is one file's chunk set awaiting embedding and reconcile.
type filePlan struct {
	uri    string
	chunks []chunk.Chunk
}

// IndexAll walks the scope root and reconciles every indexable file in
// sorted order, then prunes stored URIs no longer on disk. The whole
// corpus is embedded in a single batch so repeated bullets hit the
// embedding cache once. Per-file read and store failures are logged and
// skipped; embedding failure aborts, since every remaining file would
// fail the same way. progress may be nil.
func (ix *Indexer) IndexAll(ctx context.Context, progress *async.IndexProgress) error {
	progress.SetStage(async.StageScanning, 0)

	uris, err := ix.scanner.Scan(ctx)
	if err != nil {
		return errors.StorageError("scan scope root", err)
	}
	stored, err := ix.store.AllURIs(ctx)
	if err != nil {
		return err
	}

	progress.SetStage(async.StageChunking, len(uris))
	plans := make([]filePlan, 0, len(uris))
	onDisk := make(map[string]bool, len(uris))
	total := 0
	for i, uri := range uris {
		if err := ctx.Err(); err != nil {
			return errors.Cancelled(err)
		}
		onDisk[uri] = true

		chunks, ok, err := ix.loadAndChunk(uri)
		if err != nil {
			// Keep the stored chunks; a transient read failure must not
			// erase memories.
			slog.Warn("skipping unreadable file",
				slog.String("uri", uri),
				slog.String("error", err.Error()))
			progress.UpdateFiles(i + 1)
			continue
		}
		if !ok {
			chunks = nil // vanished since the scan; reconcile deletes
		}
		plans = append(plans, filePlan{uri: uri, chunks: chunks})
		total += len(chunks)
		progress.UpdateFiles(i + 1)
	}

	progress.SetStage(async.StageEmbedding, len(plans))
	texts := make([]string, 0, total)
	for _, p := range plans {
		for _, c := range p.chunks {
			texts = append(texts, c.Content)
		}
	}
	var vecs [][]float32
	if len(texts) > 0 {
		vecs, err = ix.embedTexts(ctx, texts)
		if err != nil {
			return err
		}
	}

	progress.SetStage(async.StageIndexing, len(plans))
	progress.SetChunksTotal(total)
	off := 0
	done := 0
	for i, p := range plans {
		if err := ctx.Err(); err != nil {
			return errors.Cancelled(err)
		}
		n, err := ix.reconcile(ctx, p.uri, p.chunks, vecs[off:off+len(p.chunks)])
		off += len(p.chunks)
		if err != nil {
			if ctx.Err() != nil {
				return errors.Cancelled(ctx.Err())
			}
			slog.Warn("reindex failed for file",
				slog.String("uri", p.uri),
				slog.String("error", err.Error()))
		}
		done += n
		progress.UpdateChunks(done)
		progress.UpdateFiles(i + 1)
	}

	for _, uri := range stored {
		if onDisk[uri] {
			continue
		}
		removed, err := ix.store.DeleteByURI(ctx, uri)
		if err != nil {
			slog.Warn("pruning deleted file failed",
				slog.String("uri", uri),
				slog.String("error", err.Error()))
			continue
		}
		slog.Info("pruned deleted file",
			slog.String("uri", uri),
			slog.Int("chunks", removed))
	}

	return nil
}

// TypeFromURI infers the memory kind from a file's place in the corpus
// layout. Frontmatter beats the inference; files outside the canonical
// layout stay untyped.
func TypeFromURI(uri string) string {
	switch {
	case strings.Contains(uri, "preferences"):
		return "preference"
	case strings.Contains(uri, "instructions"):
		return "instruction"
	case strings.Contains(uri, "entities"):
		return "entity"
	case strings.Contains(uri, "decisions"):
		return "decision"
	case strings.Contains(uri, "patterns"):
		return "pattern"
	case strings.Contains(uri, "journal"):
		return "journal"
	}
	return ""
}
