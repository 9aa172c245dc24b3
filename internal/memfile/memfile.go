// Package memfile reads and edits the Markdown files that hold memories.
//
// The files are the authoritative copy; everything in the index is derived
// from them. Edits are conservative: each operation touches the one bullet
// or frontmatter field it targets and leaves the rest of the file as the
// user wrote it. Saves go through a temp file and rename so readers never
// see a half-written file.
package memfile

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/openclaw/openclaw-memory/internal/chunk"
)

// DateLayout is how frontmatter dates are written. Whole days, not
// timestamps: these files are meant to be hand-edited.
const DateLayout = "2006-01-02"

// minReplaceRatio is the similarity floor for ReplaceBullet. Below it the
// file has drifted too far from the indexed content to edit safely.
const minReplaceRatio = 0.6

// File is one parsed memory file: YAML frontmatter and Markdown body.
type File struct {
	Path string
	Meta map[string]any
	Body string
}

// Load parses the file at path. Missing files surface the os error so
// callers can branch on existence; malformed frontmatter is kept as body
// text, the same lenience the chunker applies.
func Load(path string) (*File, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(path, string(raw)), nil
}

// Parse builds a File from in-memory text.
func Parse(path, text string) *File {
	meta, body, _ := chunk.SplitFrontmatter(text)
	normalizeMeta(meta)
	return &File{
		Path: path,
		Meta: meta,
		Body: strings.TrimLeft(body, "\n"),
	}
}

// Exists reports whether path holds a file.
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// Create returns a new, unsaved File carrying the canonical frontmatter for
// a memory file: type, importance, creation and update dates, a zero
// reinforcement counter, and active status.
func Create(path, memoryType string, importance int, now time.Time) *File {
	day := now.UTC().Format(DateLayout)
	meta := map[string]any{
		"created":       day,
		"updated":       day,
		"reinforcement": 0,
		"status":        "active",
	}
	if memoryType != "" {
		meta["type"] = memoryType
	}
	if importance > 0 {
		meta["importance"] = importance
	}
	return &File{Path: path, Meta: meta}
}

// normalizeMeta rewrites yaml-decoded values into the forms the file format
// uses: date values become plain strings so a load/save cycle never
// reformats a file the user wrote.
func normalizeMeta(meta map[string]any) {
	for k, v := range meta {
		if t, ok := v.(time.Time); ok {
			meta[k] = t.Format(DateLayout)
		}
	}
}

// Save writes the file atomically, creating parent directories as needed.
func (f *File) Save() error {
	if err := os.MkdirAll(filepath.Dir(f.Path), 0o755); err != nil {
		return fmt.Errorf("create memory directory: %w", err)
	}
	data, err := f.Render()
	if err != nil {
		return err
	}
	// Each save gets its own temp file; a shared name would let two
	// concurrent saves rename the same file out from under each other.
	// The dot prefix keeps the scanner and watcher away from it.
	tmp, err := os.CreateTemp(filepath.Dir(f.Path), "."+filepath.Base(f.Path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("write %s: %w", f.Path, err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", f.Path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", f.Path, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", f.Path, err)
	}
	if err := os.Rename(tmp.Name(), f.Path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("replace %s: %w", f.Path, err)
	}
	return nil
}

// Render serializes the file to its on-disk form. The body is normalized to
// end with exactly one newline; yaml.v3 emits map keys in sorted order, so
// rendering is deterministic.
func (f *File) Render() ([]byte, error) {
	body := strings.TrimRight(f.Body, "\n")
	if body != "" {
		body += "\n"
	}
	if len(f.Meta) == 0 {
		return []byte(body), nil
	}

	var buf bytes.Buffer
	buf.WriteString("---\n")
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(f.Meta); err != nil {
		return nil, fmt.Errorf("encode frontmatter: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode frontmatter: %w", err)
	}
	buf.WriteString("---\n")
	if body != "" {
		buf.WriteString("\n")
		buf.WriteString(body)
	}
	return buf.Bytes(), nil
}

// SetField sets one frontmatter key.
func (f *File) SetField(key string, value any) {
	if f.Meta == nil {
		f.Meta = make(map[string]any)
	}
	f.Meta[key] = value
}

// IntField reads an integer frontmatter field, tolerating the numeric
// types yaml decoding produces. Missing or non-numeric fields read as 0.
func (f *File) IntField(key string) int {
	switch v := f.Meta[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

// StringField reads a string frontmatter field, "" when absent.
func (f *File) StringField(key string) string {
	v, _ := f.Meta[key].(string)
	return v
}

// Touch sets the updated field to now's date.
func (f *File) Touch(now time.Time) {
	f.SetField("updated", now.UTC().Format(DateLayout))
}

// Bullets returns the text of every list item in the body, top to bottom,
// nested items included.
func (f *File) Bullets() []string {
	var items []string
	for _, line := range strings.Split(f.Body, "\n") {
		if text, ok := bulletText(line); ok {
			items = append(items, text)
		}
	}
	return items
}

// AppendBullet adds "- text" at the end of the named section, creating the
// section heading at the end of the file when it is missing. An empty
// section name appends at the end of the body.
func (f *File) AppendBullet(section, text string) {
	bullet := "- " + text
	body := strings.TrimRight(f.Body, "\n")

	if section == "" {
		if body == "" {
			f.Body = bullet + "\n"
		} else {
			f.Body = body + "\n" + bullet + "\n"
		}
		return
	}

	var lines []string
	if body != "" {
		lines = strings.Split(body, "\n")
	}

	start := -1
	for i, line := range lines {
		if level, title := headingText(line); level > 0 && title == section {
			start = i
			break
		}
	}
	if start == -1 {
		if len(lines) > 0 {
			lines = append(lines, "")
		}
		lines = append(lines, "## "+section, "", bullet)
		f.Body = strings.Join(lines, "\n") + "\n"
		return
	}

	// The section runs until the next heading. Insert after its last
	// non-blank line so trailing whitespace stays trailing.
	end := len(lines)
	for i := start + 1; i < len(lines); i++ {
		if level, _ := headingText(lines[i]); level > 0 {
			end = i
			break
		}
	}
	insert := end
	for insert > start+1 && strings.TrimSpace(lines[insert-1]) == "" {
		insert--
	}
	if insert == start+1 {
		lines = slices.Insert(lines, insert, "", bullet)
	} else {
		lines = slices.Insert(lines, insert, bullet)
	}
	f.Body = strings.Join(lines, "\n") + "\n"
}

// AppendRaw appends a pre-formatted Markdown block to the body, separated
// from existing content by one blank line.
func (f *File) AppendRaw(block string) {
	body := strings.TrimRight(f.Body, "\n")
	block = strings.Trim(block, "\n")
	if block == "" {
		return
	}
	if body == "" {
		f.Body = block + "\n"
		return
	}
	f.Body = body + "\n\n" + block + "\n"
}

// ReplaceBullet substitutes the bullet whose text is closest to target,
// keeping the line's indentation. Closeness is the longest-common-
// subsequence ratio over runes; when no bullet reaches the floor the body
// is untouched and false returns, which callers treat as "append instead".
func (f *File) ReplaceBullet(target, replacement string) bool {
	lines := strings.Split(f.Body, "\n")

	bestIdx := -1
	bestRatio := 0.0
	for i, line := range lines {
		text, ok := bulletText(line)
		if !ok {
			continue
		}
		if r := lcsRatio(text, target); r > bestRatio {
			bestIdx, bestRatio = i, r
		}
	}
	if bestIdx == -1 || bestRatio < minReplaceRatio {
		return false
	}

	indent := lines[bestIdx][:strings.Index(lines[bestIdx], "- ")]
	lines[bestIdx] = indent + "- " + replacement
	f.Body = strings.Join(lines, "\n")
	return true
}

func bulletText(line string) (string, bool) {
	s := strings.TrimSpace(line)
	if strings.HasPrefix(s, "- ") {
		return strings.TrimSpace(s[2:]), true
	}
	return "", false
}

// headingText parses an ATX heading line, returning level 0 for anything
// else.
func headingText(line string) (int, string) {
	trimmed := strings.TrimSpace(line)
	i := 0
	for i < len(trimmed) && trimmed[i] == '#' {
		i++
	}
	if i == 0 || i > 6 || i >= len(trimmed) || trimmed[i] != ' ' {
		return 0, ""
	}
	return i, strings.TrimSpace(trimmed[i+1:])
}

// lcsRatio is 2*LCS(a,b) / (len(a)+len(b)) over runes: 1 for identical
// strings, 0 for disjoint ones. Bullet texts are short, so the quadratic
// table is fine.
func lcsRatio(a, b string) float64 {
	if a == b {
		return 1.0
	}
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 || len(rb) == 0 {
		return 0
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for i := 1; i <= len(ra); i++ {
		for j := 1; j <= len(rb); j++ {
			switch {
			case ra[i-1] == rb[j-1]:
				curr[j] = prev[j-1] + 1
			case prev[j] >= curr[j-1]:
				curr[j] = prev[j]
			default:
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
		for j := range curr {
			curr[j] = 0
		}
	}
	return 2 * float64(prev[len(rb)]) / float64(len(ra)+len(rb))
}
