package vector

import (
	"context"
	"crypto/sha256"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/tmc/langchaingo/textsplitter"
	"github.com/weaviate/weaviate/entities/models"
)

var (
	defaultSeparators  = []string{"\n\n", "\n", " ", ""}
	markdownSeparators = []string{
		"\n# ", "\n## ", "\n### ", "\n#### ", "\n##### ", "\n###### ",
		"\n\n", "\n", " ", "",
	}
)

// Document is a source text to be chunked and imported.
type Document struct {
	Source  string
	Content string
}

// Chunk is one piece of a document with a deterministic id.
type Chunk struct {
	ID           string
	Source       string
	ParentSource string
	Content      string
}

// Splitter splits documents into overlapping chunks.
type Splitter struct {
	size    int
	overlap int
}

// NewSplitter returns a splitter. Non-positive sizes fall back to 1000/100.
func NewSplitter(size, overlap int) Splitter {
	if size <= 0 {
		size = 1000
	}
	if overlap < 0 || overlap >= size {
		overlap = size / 10
	}
	return Splitter{size: size, overlap: overlap}
}

// Split chunks a document. Markdown files are split on headings first.
func (s Splitter) Split(doc Document) ([]Chunk, error) {
	separators := defaultSeparators
	switch strings.ToLower(filepath.Ext(doc.Source)) {
	case ".md", ".markdown":
		separators = markdownSeparators
	}
	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(s.size),
		textsplitter.WithChunkOverlap(s.overlap),
		textsplitter.WithSeparators(separators),
	)

	parts, err := splitter.SplitText(doc.Content)
	if err != nil {
		return nil, fmt.Errorf("split %s: %w", doc.Source, err)
	}

	chunks := make([]Chunk, 0, len(parts))
	for _, part := range parts {
		if strings.TrimSpace(part) == "" {
			continue
		}
		n := len(chunks) + 1
		chunks = append(chunks, Chunk{
			ID:           chunkID(doc.Source, n, part),
			Source:       fmt.Sprintf("%s#part-%d", doc.Source, n),
			ParentSource: doc.Source,
			Content:      part,
		})
	}
	return chunks, nil
}

// chunkID derives a stable UUID from the chunk position and content so
// re-ingesting the same document overwrites instead of duplicating.
func chunkID(source string, n int, content string) string {
	hash := sha256.Sum256(fmt.Appendf(nil, "%s\x00%d\x00%s", source, n, content))
	id, _ := uuid.FromBytes(hash[:16])
	return id.String()
}

// Import batch-writes chunks and returns the number stored successfully.
func (s *Store) Import(ctx context.Context, chunks []Chunk) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}

	now := time.Now().UnixMilli()
	objects := make([]*models.Object, 0, len(chunks))
	for _, c := range chunks {
		objects = append(objects, &models.Object{
			Class: s.class,
			ID:    strfmt.UUID(c.ID),
			Properties: map[string]any{
				propContent:      c.Content,
				propSource:       c.Source,
				propParentSource: c.ParentSource,
				propIngestedAt:   now,
			},
		})
	}

	resp, err := s.client.Batch().ObjectsBatcher().WithObjects(objects...).Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("weaviate batch import: %w", err)
	}

	stored := 0
	for _, item := range resp {
		if item.Result != nil && item.Result.Errors != nil && len(item.Result.Errors.Error) > 0 {
			for _, e := range item.Result.Errors.Error {
				s.logger.Warn().Str("id", string(item.ID)).Str("error", e.Message).Msg("batch item failed")
			}
			continue
		}
		stored++
	}
	return stored, nil
}

// Ingest splits and imports documents, returning the number of stored chunks.
func (s *Store) Ingest(ctx context.Context, splitter Splitter, docs []Document) (int, error) {
	total := 0
	for _, doc := range docs {
		chunks, err := splitter.Split(doc)
		if err != nil {
			return total, err
		}
		n, err := s.Import(ctx, chunks)
		total += n
		if err != nil {
			return total, err
		}
		s.logger.Info().Str("source", doc.Source).Int("chunks", len(chunks)).Int("stored", n).Msg("document ingested")
	}
	return total, nil
}
