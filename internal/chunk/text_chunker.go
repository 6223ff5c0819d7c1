package chunk

import (
	"context"
	"strings"
	"time"
)

// TextChunkerOptions configures the plain-text chunker behavior.
type TextChunkerOptions struct {
	MaxChunkTokens int
	OverlapTokens  int
}

// TextChunker splits plain-text and PDF-extracted content (no headers, no
// AST) into paragraph-aligned windows, grounded on MarkdownChunker's
// paragraph-splitting fallback path for header-less content.
type TextChunker struct {
	options TextChunkerOptions
}

// NewTextChunker creates a text chunker with default options.
func NewTextChunker() *TextChunker {
	return NewTextChunkerWithOptions(TextChunkerOptions{})
}

// NewTextChunkerWithOptions creates a text chunker with custom options.
func NewTextChunkerWithOptions(opts TextChunkerOptions) *TextChunker {
	if opts.MaxChunkTokens == 0 {
		opts.MaxChunkTokens = DefaultMaxChunkTokens
	}
	if opts.OverlapTokens == 0 {
		opts.OverlapTokens = DefaultOverlapTokens
	}
	return &TextChunker{options: opts}
}

// Close releases chunker resources. TextChunker is stateless.
func (c *TextChunker) Close() {}

// SupportedExtensions returns file extensions this chunker handles.
func (c *TextChunker) SupportedExtensions() []string {
	return []string{".txt", ".log", ".csv", ".pdf"}
}

// Chunk splits plain text into paragraph windows. Windows do not overlap;
// OverlapTokens is not used.
func (c *TextChunker) Chunk(ctx context.Context, file *FileInput) ([]*Chunk, error) {
	content := string(file.Content)
	if strings.TrimSpace(content) == "" {
		return nil, nil
	}

	paragraphs := strings.Split(content, "\n\n")
	now := time.Now()

	var chunks []*Chunk
	var current strings.Builder
	startLine := 1
	lineCount := 0

	flush := func() {
		if current.Len() == 0 {
			return
		}
		text := strings.TrimSpace(current.String())
		chunks = append(chunks, &Chunk{
			ID:          generateChunkID(file.Path, text),
			FilePath:    file.Path,
			Content:     text,
			RawContent:  text,
			ContentType: ContentTypeText,
			Language:    "text",
			StartLine:   startLine,
			EndLine:     startLine + lineCount,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}

	for _, para := range paragraphs {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		paraLines := strings.Count(para, "\n") + 1
		paraTokens := estimateTokens(para)
		currentTokens := estimateTokens(current.String())

		if current.Len() > 0 && currentTokens+paraTokens > c.options.MaxChunkTokens {
			flush()
			current.Reset()
			startLine += lineCount
			lineCount = 0
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(para)
		lineCount += paraLines + 1
	}
	flush()

	return chunks, nil
}
