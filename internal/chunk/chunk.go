// Package chunk splits Markdown memory files into indexable chunks.
//
// Chunking is pure: the same input text always produces the same chunks,
// including IDs, hashes, and token counts. Files are split at ATX headings of
// level 1-3; deeper headings stay inside their parent section. Sections
// larger than the token limit are split again at paragraph boundaries.
package chunk

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Chunk is the unit of indexing and retrieval.
type Chunk struct {
	ID          string // first 16 hex of SHA-256 over "uri:start:end:content_hash"
	URI         string // source path relative to the scope root
	Content     string // raw chunk text, heading line included
	ContentHash string // SHA-256 hex of Content
	ParentDir   string // top-level folder under the scope root
	Type        string // memory kind from frontmatter, may be empty
	Section     string // heading breadcrumb, e.g. "Setup > Database"
	Importance  int    // 1..5, zero when the file does not declare one
	StartLine   int    // 1-based, inclusive, counted in the source file
	EndLine     int
	TokenCount  int

	// Counters live in the store; the chunker always emits them as zero.
	Reinforcement int
	AccessCount   int

	CreatedAt time.Time
	UpdatedAt time.Time

	// Meta is the raw frontmatter of the source file, shared by every chunk
	// the file produces.
	Meta map[string]any
}

// HashContent returns the SHA-256 hex digest of text. Two chunks share a
// content hash only when their content is byte-identical.
func HashContent(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// ComputeID derives the chunk ID from position and content identity. Equal
// content at the same location in the same file always yields the same ID.
func ComputeID(uri string, startLine, endLine int, contentHash string) string {
	raw := fmt.Sprintf("%s:%d:%d:%s", uri, startLine, endLine, contentHash)
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])[:16]
}

// ParentDir returns the top-level folder of a slash-separated URI, or "" for
// files at the scope root.
func ParentDir(uri string) string {
	if i := strings.IndexByte(uri, '/'); i > 0 {
		return uri[:i]
	}
	return ""
}
