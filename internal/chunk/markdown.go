package chunk

import (
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultMaxChunkTokens is the split threshold for oversized sections.
	DefaultMaxChunkTokens = 500

	// maxHeadingLevel bounds which ATX headings open a new section. Deeper
	// headings stay inside their parent.
	maxHeadingLevel = 3
)

var (
	headingPattern     = regexp.MustCompile(`^(#{1,3})\s+(.+)$`)
	frontmatterPattern = regexp.MustCompile(`(?s)^---[ \t]*\r?\n(.*?)\r?\n---[ \t]*\r?\n?`)
)

// Chunker splits Markdown text into chunks. It is stateless and safe for
// concurrent use.
type Chunker struct {
	maxTokens int
}

// New returns a Chunker with the default section token limit.
func New() *Chunker {
	return NewWithLimit(DefaultMaxChunkTokens)
}

// NewWithLimit returns a Chunker splitting sections above maxTokens.
func NewWithLimit(maxTokens int) *Chunker {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxChunkTokens
	}
	return &Chunker{maxTokens: maxTokens}
}

// Chunk splits one Markdown document into ordered chunks. uri is the source
// path relative to the scope root and becomes part of each chunk's identity.
// Malformed frontmatter is indexed as plain body text rather than rejected.
func (c *Chunker) Chunk(uri, text string) []Chunk {
	meta, body, offset := SplitFrontmatter(text)
	if strings.TrimSpace(body) == "" {
		return nil
	}

	typ, importance, created, updated := fileMeta(meta)

	lines := strings.Split(body, "\n")
	var chunks []Chunk
	for _, sec := range parseSections(lines) {
		if !sectionHasBody(lines[sec.start : sec.end+1]) {
			continue
		}
		for _, span := range c.splitSection(lines, sec) {
			content := strings.Join(lines[span.start:span.end+1], "\n")
			hash := HashContent(content)
			startLine := offset + span.start + 1
			endLine := offset + span.end + 1
			chunks = append(chunks, Chunk{
				ID:          ComputeID(uri, startLine, endLine, hash),
				URI:         uri,
				Content:     content,
				ContentHash: hash,
				ParentDir:   ParentDir(uri),
				Type:        typ,
				Section:     sec.breadcrumb,
				Importance:  importance,
				StartLine:   startLine,
				EndLine:     endLine,
				TokenCount:  CountTokens(content),
				CreatedAt:   created,
				UpdatedAt:   updated,
				Meta:        meta,
			})
		}
	}
	return chunks
}

// SplitFrontmatter separates a leading YAML frontmatter block from the body.
// bodyOffset is the number of source lines the block occupies, so body line n
// (1-based) corresponds to source line bodyOffset+n. Unparseable frontmatter
// is returned as part of the body.
func SplitFrontmatter(text string) (meta map[string]any, body string, bodyOffset int) {
	m := frontmatterPattern.FindStringSubmatch(text)
	if m == nil {
		return nil, text, 0
	}
	parsed := make(map[string]any)
	if err := yaml.Unmarshal([]byte(m[1]), &parsed); err != nil {
		return nil, text, 0
	}
	return parsed, text[len(m[0]):], strings.Count(m[0], "\n")
}

// section is a heading-delimited region of the body, line indexes 0-based
// inclusive.
type section struct {
	breadcrumb string
	start, end int
}

// parseSections walks the body splitting at headings of level 1..3. Heading
// lines inside fenced code blocks do not split. Content before the first
// heading forms a section with an empty breadcrumb. Each section keeps its
// own heading line; the breadcrumb joins the open heading stack with " > ".
func parseSections(lines []string) []section {
	var sections []section
	var stack [maxHeadingLevel]string

	start := 0
	breadcrumb := ""
	inFence := false

	for i, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inFence = !inFence
			continue
		}
		if inFence {
			continue
		}
		m := headingPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}

		if i > 0 {
			sections = append(sections, trimSpan(lines, section{breadcrumb, start, i - 1}))
		}

		level := len(m[1])
		stack[level-1] = strings.TrimSpace(m[2])
		for j := level; j < maxHeadingLevel; j++ {
			stack[j] = ""
		}
		var parts []string
		for j := 0; j < level; j++ {
			if stack[j] != "" {
				parts = append(parts, stack[j])
			}
		}
		breadcrumb = strings.Join(parts, " > ")
		start = i
	}

	sections = append(sections, trimSpan(lines, section{breadcrumb, start, len(lines) - 1}))

	// Drop spans that trimmed to nothing.
	kept := sections[:0]
	for _, s := range sections {
		if s.start <= s.end {
			kept = append(kept, s)
		}
	}
	return kept
}

// trimSpan shrinks a section to its non-blank extent so line numbers match
// the emitted content exactly. A fully blank span comes back with start > end.
func trimSpan(lines []string, s section) section {
	for s.start <= s.end && strings.TrimSpace(lines[s.start]) == "" {
		s.start++
	}
	for s.end >= s.start && strings.TrimSpace(lines[s.end]) == "" {
		s.end--
	}
	return s
}

// sectionHasBody reports whether a section contains anything beyond its
// heading, blank lines, and fenced code. Sections without a body produce no
// chunks.
func sectionHasBody(lines []string) bool {
	inFence := false
	for _, line := range lines {
		t := strings.TrimSpace(line)
		if strings.HasPrefix(t, "```") {
			inFence = !inFence
			continue
		}
		if inFence || t == "" {
			continue
		}
		if headingPattern.MatchString(line) {
			continue
		}
		return true
	}
	return false
}

// span is a chunk extent in body line indexes, 0-based inclusive.
type span struct {
	start, end int
}

// splitSection returns the section whole when it fits the token limit, and
// otherwise regroups it at paragraph boundaries. Paragraphs never split; one
// oversized paragraph becomes one oversized chunk.
func (c *Chunker) splitSection(lines []string, sec section) []span {
	content := strings.Join(lines[sec.start:sec.end+1], "\n")
	if CountTokens(content) <= c.maxTokens {
		return []span{{sec.start, sec.end}}
	}

	paras := paragraphSpans(lines, sec)
	if len(paras) == 0 {
		return []span{{sec.start, sec.end}}
	}

	var spans []span
	group := span{paras[0].start, paras[0].end}
	groupTokens := CountTokens(strings.Join(lines[group.start:group.end+1], "\n"))

	for _, p := range paras[1:] {
		paraTokens := CountTokens(strings.Join(lines[p.start:p.end+1], "\n"))
		if groupTokens+paraTokens > c.maxTokens {
			spans = append(spans, group)
			group = p
			groupTokens = paraTokens
			continue
		}
		group.end = p.end
		groupTokens += paraTokens
	}
	return append(spans, group)
}

// paragraphSpans finds blank-line-separated paragraphs within a section.
// Blank lines inside fenced code blocks do not separate.
func paragraphSpans(lines []string, sec section) []span {
	var paras []span
	inFence := false
	start := -1

	for i := sec.start; i <= sec.end; i++ {
		t := strings.TrimSpace(lines[i])
		if strings.HasPrefix(t, "```") {
			inFence = !inFence
		}
		blank := t == "" && !inFence
		switch {
		case blank && start >= 0:
			paras = append(paras, span{start, i - 1})
			start = -1
		case !blank && start < 0:
			start = i
		}
	}
	if start >= 0 {
		paras = append(paras, span{start, sec.end})
	}
	return paras
}

// fileMeta pulls the typed fields the index needs out of raw frontmatter.
func fileMeta(meta map[string]any) (typ string, importance int, created, updated time.Time) {
	if meta == nil {
		return "", 0, time.Time{}, time.Time{}
	}
	if v, ok := meta["type"].(string); ok {
		typ = v
	}
	switch v := meta["importance"].(type) {
	case int:
		importance = v
	case int64:
		importance = int(v)
	case float64:
		importance = int(v)
	}
	created, _ = asTime(meta["created"])
	updated, _ = asTime(meta["updated"])
	return typ, importance, created, updated
}

var timeLayouts = []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"}

func asTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		for _, layout := range timeLayouts {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed, true
			}
		}
	}
	return time.Time{}, false
}
