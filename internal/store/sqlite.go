package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // pure Go SQLite driver, no CGO

	"github.com/openclaw/openclaw-memory/internal/chunk"
)

// schemaVersion is bumped whenever the table layout changes; a mismatch
// drops and recreates the derived index, which is always regenerable from
// the Markdown files.
const schemaVersion = "1"

const (
	chunkColumns = `id, uri, content, content_hash, parent_dir, type, section,
		importance, reinforcement, access_count, token_count, start_line,
		end_line, created_at, updated_at`

	chunkColumnsQualified = `c.id, c.uri, c.content, c.content_hash,
		c.parent_dir, c.type, c.section, c.importance, c.reinforcement,
		c.access_count, c.token_count, c.start_line, c.end_line,
		c.created_at, c.updated_at`
)

// errNoSuchChunk reports a counter update against an id that is not in the
// chunks table.
var errNoSuchChunk = errors.New("no such chunk")

// indexDB is the SQLite half of a scope's store: the authoritative chunks
// table plus the FTS5 companion table. The two are only ever mutated inside
// the same transaction.
type indexDB struct {
	db   *sql.DB
	path string
}

// openIndexDB opens (or creates) the index database at path. A corrupted
// file is cleared and recreated: the index is derived state, so dropping it
// costs a reindex, not data. An empty path opens an in-memory database.
func openIndexDB(path string) (*indexDB, error) {
	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create index directory: %w", err)
		}

		if err := validateIntegrity(path); err != nil {
			slog.Warn("index database corrupted, clearing",
				slog.String("path", path),
				slog.String("error", err.Error()))
			if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
				return nil, fmt.Errorf("corrupted index at %s cannot be removed: %w", path, rmErr)
			}
			_ = os.Remove(path + "-wal")
			_ = os.Remove(path + "-shm")
		}

		dsn = path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open index database: %w", err)
	}

	// Single connection: SQLite allows one writer, and the store serializes
	// access anyway. Pooling just invites SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// modernc.org/sqlite ignores some DSN parameters; set pragmas explicitly.
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -65536",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}

	idx := &indexDB{db: db, path: path}
	if err := idx.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return idx, nil
}

// validateIntegrity checks an existing database file before opening it for
// real. Returns nil when the file is absent or healthy.
func validateIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("cannot open for validation: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("database corrupted: %s", result)
	}
	return nil
}

func (x *indexDB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS meta (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS chunks (
		id            TEXT PRIMARY KEY,
		uri           TEXT NOT NULL,
		content       TEXT NOT NULL,
		content_hash  TEXT NOT NULL,
		parent_dir    TEXT NOT NULL DEFAULT '',
		type          TEXT NOT NULL DEFAULT '',
		section       TEXT NOT NULL DEFAULT '',
		importance    INTEGER NOT NULL DEFAULT 1,
		reinforcement INTEGER NOT NULL DEFAULT 0,
		access_count  INTEGER NOT NULL DEFAULT 0,
		token_count   INTEGER NOT NULL DEFAULT 0,
		start_line    INTEGER NOT NULL DEFAULT 0,
		end_line      INTEGER NOT NULL DEFAULT 0,
		created_at    TEXT NOT NULL,
		updated_at    TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_chunks_uri ON chunks(uri);
	CREATE INDEX IF NOT EXISTS idx_chunks_parent_dir ON chunks(parent_dir);
	CREATE INDEX IF NOT EXISTS idx_chunks_content_hash ON chunks(content_hash);
	CREATE INDEX IF NOT EXISTS idx_chunks_type ON chunks(type);

	-- id is UNINDEXED: stored for joins and deletes, not searchable.
	-- content holds pre-tokenized text (see Tokenize), not the raw chunk.
	CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts USING fts5(
		id UNINDEXED,
		content,
		tokenize='unicode61'
	);
	`
	if _, err := x.db.Exec(schema); err != nil {
		return err
	}
	return x.checkSchemaVersion()
}

// checkSchemaVersion recreates the index when the stored layout version does
// not match the current one.
func (x *indexDB) checkSchemaVersion() error {
	stored, err := x.getMeta(context.Background(), "schema_version")
	if err != nil {
		return err
	}
	switch stored {
	case schemaVersion:
		return nil
	case "":
		return x.setMeta(context.Background(), "schema_version", schemaVersion)
	}

	slog.Warn("index schema version mismatch, rebuilding",
		slog.String("path", x.path),
		slog.String("stored", stored),
		slog.String("current", schemaVersion))

	drop := `
	DROP TABLE IF EXISTS chunks;
	DROP TABLE IF EXISTS chunks_fts;
	DROP TABLE IF EXISTS meta;
	`
	if _, err := x.db.Exec(drop); err != nil {
		return fmt.Errorf("drop outdated schema: %w", err)
	}
	return x.initSchema()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanChunk reads one row in chunkColumns order.
func scanChunk(row rowScanner, extra ...any) (chunk.Chunk, error) {
	var c chunk.Chunk
	var createdAt, updatedAt string
	dest := []any{
		&c.ID, &c.URI, &c.Content, &c.ContentHash, &c.ParentDir, &c.Type,
		&c.Section, &c.Importance, &c.Reinforcement, &c.AccessCount,
		&c.TokenCount, &c.StartLine, &c.EndLine, &createdAt, &updatedAt,
	}
	dest = append(dest, extra...)
	if err := row.Scan(dest...); err != nil {
		return chunk.Chunk{}, err
	}
	c.CreatedAt = parseTime(createdAt)
	c.UpdatedAt = parseTime(updatedAt)
	return c, nil
}

// upsert inserts or refreshes one chunk row together with its FTS entry.
// An existing row keeps its counters and created_at; a byte-identical row is
// left untouched so reindexing does not disturb the recency signal. Fresh
// rows take counters and timestamps from the chunk itself, which lets the
// indexer migrate counters when a chunk moves within its file.
func (x *indexDB) upsert(ctx context.Context, c chunk.Chunk, tokenized string) error {
	tx, err := x.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	existing, err := scanChunk(tx.QueryRowContext(ctx,
		`SELECT `+chunkColumns+` FROM chunks WHERE id = ?`, c.ID))
	switch {
	case err == nil:
		if sameRow(existing, c) {
			return tx.Commit()
		}
		now := formatTime(time.Now())
		_, err = tx.ExecContext(ctx, `
			UPDATE chunks SET
				uri = ?, content = ?, content_hash = ?, parent_dir = ?,
				type = ?, section = ?, importance = ?, token_count = ?,
				start_line = ?, end_line = ?, updated_at = ?
			WHERE id = ?`,
			c.URI, c.Content, c.ContentHash, c.ParentDir,
			c.Type, c.Section, c.Importance, c.TokenCount,
			c.StartLine, c.EndLine, now, c.ID)
		if err != nil {
			return fmt.Errorf("update chunk %s: %w", c.ID, err)
		}
	case errors.Is(err, sql.ErrNoRows):
		now := time.Now()
		createdAt := c.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}
		updatedAt := c.UpdatedAt
		if updatedAt.IsZero() {
			updatedAt = now
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO chunks (`+chunkColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.ID, c.URI, c.Content, c.ContentHash, c.ParentDir, c.Type,
			c.Section, c.Importance, c.Reinforcement, c.AccessCount,
			c.TokenCount, c.StartLine, c.EndLine,
			formatTime(createdAt), formatTime(updatedAt))
		if err != nil {
			return fmt.Errorf("insert chunk %s: %w", c.ID, err)
		}
	default:
		return fmt.Errorf("look up chunk %s: %w", c.ID, err)
	}

	// FTS5 has no REPLACE; delete then insert, inside the same transaction
	// so the full-text table can never drift from the chunks table.
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM chunks_fts WHERE id = ?`, c.ID); err != nil {
		return fmt.Errorf("clear fts row %s: %w", c.ID, err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO chunks_fts (id, content) VALUES (?, ?)`, c.ID, tokenized); err != nil {
		return fmt.Errorf("write fts row %s: %w", c.ID, err)
	}

	return tx.Commit()
}

// sameRow reports whether the stored row already carries every mutable field
// of the incoming chunk. Content and hash are fixed by the ID and need no
// comparison.
func sameRow(stored, incoming chunk.Chunk) bool {
	return stored.URI == incoming.URI &&
		stored.ParentDir == incoming.ParentDir &&
		stored.Type == incoming.Type &&
		stored.Section == incoming.Section &&
		stored.Importance == incoming.Importance &&
		stored.TokenCount == incoming.TokenCount &&
		stored.StartLine == incoming.StartLine &&
		stored.EndLine == incoming.EndLine
}

func (x *indexDB) getByID(ctx context.Context, id string) (*chunk.Chunk, error) {
	c, err := scanChunk(x.db.QueryRowContext(ctx,
		`SELECT `+chunkColumns+` FROM chunks WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get chunk %s: %w", id, err)
	}
	return &c, nil
}

func (x *indexDB) getByIDs(ctx context.Context, ids []string) (map[string]chunk.Chunk, error) {
	if len(ids) == 0 {
		return map[string]chunk.Chunk{}, nil
	}
	query := `SELECT ` + chunkColumns + ` FROM chunks WHERE id IN (` + placeholders(len(ids)) + `)`
	rows, err := x.db.QueryContext(ctx, query, toArgs(ids)...)
	if err != nil {
		return nil, fmt.Errorf("get chunks: %w", err)
	}
	defer rows.Close()

	out := make(map[string]chunk.Chunk, len(ids))
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		out[c.ID] = c
	}
	return out, rows.Err()
}

func (x *indexDB) getByURI(ctx context.Context, uri string) ([]chunk.Chunk, error) {
	rows, err := x.db.QueryContext(ctx,
		`SELECT `+chunkColumns+` FROM chunks WHERE uri = ? ORDER BY start_line`, uri)
	if err != nil {
		return nil, fmt.Errorf("get chunks for %s: %w", uri, err)
	}
	defer rows.Close()
	return collectChunks(rows)
}

func (x *indexDB) getByContentHash(ctx context.Context, uri, hash string) ([]chunk.Chunk, error) {
	rows, err := x.db.QueryContext(ctx,
		`SELECT `+chunkColumns+` FROM chunks WHERE uri = ? AND content_hash = ? ORDER BY start_line`,
		uri, hash)
	if err != nil {
		return nil, fmt.Errorf("get chunks by hash: %w", err)
	}
	defer rows.Close()
	return collectChunks(rows)
}

func collectChunks(rows *sql.Rows) ([]chunk.Chunk, error) {
	var out []chunk.Chunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ftsSearch runs a BM25 query over the tokenized content. The match string
// must already be tokenized; parentDir restricts results when non-empty.
func (x *indexDB) ftsSearch(ctx context.Context, match string, topK int, parentDir string) ([]ScoredChunk, error) {
	query := `
		SELECT ` + chunkColumnsQualified + `, bm25(chunks_fts) AS rank
		FROM chunks_fts f
		JOIN chunks c ON c.id = f.id
		WHERE chunks_fts MATCH ?`
	args := []any{match}
	if parentDir != "" {
		query += ` AND c.parent_dir = ?`
		args = append(args, parentDir)
	}
	query += ` ORDER BY rank LIMIT ?`
	args = append(args, topK)

	rows, err := x.db.QueryContext(ctx, query, args...)
	if err != nil {
		// FTS5 reports unparsable MATCH input as an error; treat it as an
		// empty result rather than a failure.
		if strings.Contains(err.Error(), "fts5") || strings.Contains(err.Error(), "syntax error") {
			return nil, nil
		}
		return nil, fmt.Errorf("fts search: %w", err)
	}
	defer rows.Close()

	var out []ScoredChunk
	for rows.Next() {
		var rank float64
		c, err := scanChunk(rows, &rank)
		if err != nil {
			return nil, fmt.Errorf("scan fts result: %w", err)
		}
		// bm25() is negative, lower is better. Negate and squash into (0,1]
		// so the score is comparable with cosine similarity.
		out = append(out, ScoredChunk{Chunk: c, Score: math.Min(-rank/20.0, 1.0)})
	}
	return out, rows.Err()
}

// incrementReinforcement bumps one chunk's counter and returns the new value.
func (x *indexDB) incrementReinforcement(ctx context.Context, id string) (int, error) {
	res, err := x.db.ExecContext(ctx,
		`UPDATE chunks SET reinforcement = reinforcement + 1, updated_at = ? WHERE id = ?`,
		formatTime(time.Now()), id)
	if err != nil {
		return 0, fmt.Errorf("increment reinforcement %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return 0, errNoSuchChunk
	}
	var value int
	if err := x.db.QueryRowContext(ctx,
		`SELECT reinforcement FROM chunks WHERE id = ?`, id).Scan(&value); err != nil {
		return 0, fmt.Errorf("read reinforcement %s: %w", id, err)
	}
	return value, nil
}

// incrementAccessCounts bumps the access counter for every id in one
// statement. Unknown ids are ignored.
func (x *indexDB) incrementAccessCounts(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	query := `UPDATE chunks SET access_count = access_count + 1, updated_at = ?
		WHERE id IN (` + placeholders(len(ids)) + `)`
	args := append([]any{formatTime(time.Now())}, toArgs(ids)...)
	if _, err := x.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("increment access counts: %w", err)
	}
	return nil
}

// deleteByURI removes every chunk of a source file from both tables and
// returns the ids that were removed.
func (x *indexDB) deleteByURI(ctx context.Context, uri string) ([]string, error) {
	tx, err := x.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin delete: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `SELECT id FROM chunks WHERE uri = ?`, uri)
	if err != nil {
		return nil, fmt.Errorf("list chunks for %s: %w", uri, err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if len(ids) == 0 {
		return nil, tx.Commit()
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE uri = ?`, uri); err != nil {
		return nil, fmt.Errorf("delete chunks for %s: %w", uri, err)
	}
	ftsQuery := `DELETE FROM chunks_fts WHERE id IN (` + placeholders(len(ids)) + `)`
	if _, err := tx.ExecContext(ctx, ftsQuery, toArgs(ids)...); err != nil {
		return nil, fmt.Errorf("delete fts rows for %s: %w", uri, err)
	}
	return ids, tx.Commit()
}

// deleteIDs removes specific chunks from both tables.
func (x *indexDB) deleteIDs(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := x.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	in := placeholders(len(ids))
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM chunks WHERE id IN (`+in+`)`, toArgs(ids)...); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM chunks_fts WHERE id IN (`+in+`)`, toArgs(ids)...); err != nil {
		return fmt.Errorf("delete fts rows: %w", err)
	}
	return tx.Commit()
}

// deleteAll clears both tables, keeping meta.
func (x *indexDB) deleteAll(ctx context.Context) error {
	tx, err := x.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin clear: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks`); err != nil {
		return fmt.Errorf("clear chunks: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks_fts`); err != nil {
		return fmt.Errorf("clear fts: %w", err)
	}
	return tx.Commit()
}

func (x *indexDB) allURIs(ctx context.Context) ([]string, error) {
	return x.stringColumn(ctx, `SELECT DISTINCT uri FROM chunks ORDER BY uri`)
}

func (x *indexDB) allIDs(ctx context.Context) ([]string, error) {
	return x.stringColumn(ctx, `SELECT id FROM chunks ORDER BY id`)
}

func (x *indexDB) stringColumn(ctx context.Context, query string) ([]string, error) {
	rows, err := x.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// maxCounter reads the scope-wide maximum of one counter column. The column
// name is always a compiled-in literal, never caller input.
func (x *indexDB) maxCounter(ctx context.Context, column string) (int, error) {
	var v int
	err := x.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(`+column+`), 0) FROM chunks`).Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("read max %s: %w", column, err)
	}
	return v, nil
}

func (x *indexDB) stats(ctx context.Context) (*Stats, error) {
	st := &Stats{ByType: map[string]TypeStat{}}
	err := x.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(DISTINCT uri), COALESCE(SUM(token_count), 0),
			COALESCE(MAX(reinforcement), 0), COALESCE(MAX(access_count), 0)
		FROM chunks`).Scan(
		&st.TotalChunks, &st.TotalFiles, &st.TotalTokens,
		&st.MaxReinforcement, &st.MaxAccessCount)
	if err != nil {
		return nil, fmt.Errorf("collect totals: %w", err)
	}

	rows, err := x.db.QueryContext(ctx, `
		SELECT type, COUNT(*), COALESCE(SUM(token_count), 0)
		FROM chunks GROUP BY type`)
	if err != nil {
		return nil, fmt.Errorf("collect per-type stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var typ string
		var ts TypeStat
		if err := rows.Scan(&typ, &ts.Chunks, &ts.Tokens); err != nil {
			return nil, fmt.Errorf("scan type stats: %w", err)
		}
		st.ByType[typ] = ts
	}
	return st, rows.Err()
}

func (x *indexDB) getMeta(ctx context.Context, key string) (string, error) {
	var value string
	err := x.db.QueryRowContext(ctx,
		`SELECT value FROM meta WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read meta %s: %w", key, err)
	}
	return value, nil
}

func (x *indexDB) setMeta(ctx context.Context, key, value string) error {
	if _, err := x.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)`, key, value); err != nil {
		return fmt.Errorf("write meta %s: %w", key, err)
	}
	return nil
}

// save forces a WAL checkpoint so everything is in the main database file.
func (x *indexDB) save() error {
	_, err := x.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return err
}

func (x *indexDB) close() error {
	_, _ = x.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return x.db.Close()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func toArgs(ids []string) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}
