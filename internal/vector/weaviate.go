// Package vector provides the optional vector knowledge store backed by
// Weaviate: semantic retrieval for the research loop and document ingestion.
package vector

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/metalagman/ttdr/internal/config"
	"github.com/metalagman/ttdr/internal/model"
	"github.com/rs/zerolog"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/auth"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
)

const (
	propContent      = "content"
	propSource       = "source"
	propParentSource = "parent_source"
	propIngestedAt   = "ingested_at"
)

// Store is a Weaviate-backed knowledge store.
type Store struct {
	client     *weaviate.Client
	class      string
	vectorizer string
	logger     zerolog.Logger
}

// NewStore connects to the Weaviate instance described by cfg.
func NewStore(cfg config.VectorConfig, logger zerolog.Logger) (*Store, error) {
	u, err := url.Parse(strings.TrimSpace(cfg.URL))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid weaviate url %q", cfg.URL)
	}

	clientCfg := weaviate.Config{
		Host:   u.Host,
		Scheme: u.Scheme,
	}
	if cfg.APIKeyEnv != "" {
		if key := strings.TrimSpace(os.Getenv(cfg.APIKeyEnv)); key != "" {
			clientCfg.AuthConfig = auth.ApiKey{Value: key}
		}
	}

	client, err := weaviate.NewClient(clientCfg)
	if err != nil {
		return nil, fmt.Errorf("create weaviate client: %w", err)
	}

	class := cfg.Class
	if class == "" {
		class = "Document"
	}
	return &Store{
		client:     client,
		class:      class,
		vectorizer: cfg.Vectorizer,
		logger:     logger.With().Str("component", "vector").Str("class", class).Logger(),
	}, nil
}

// EnsureClass creates the document class when it does not exist yet.
func (s *Store) EnsureClass(ctx context.Context) error {
	if _, err := s.client.Schema().ClassGetter().WithClassName(s.class).Do(ctx); err == nil {
		return nil
	}

	s.logger.Info().Msg("creating weaviate class")
	if err := s.client.Schema().ClassCreator().WithClass(documentClass(s.class, s.vectorizer)).Do(ctx); err != nil {
		return fmt.Errorf("create weaviate class %s: %w", s.class, err)
	}
	return nil
}

func documentClass(name, vectorizer string) *models.Class {
	filterable := true
	if vectorizer == "" {
		vectorizer = "text2vec-transformers"
	}
	return &models.Class{
		Class:       name,
		Description: "A chunk of a reference document.",
		Vectorizer:  vectorizer,
		Properties: []*models.Property{
			{Name: propContent, DataType: []string{"text"}, Tokenization: "word"},
			{Name: propSource, DataType: []string{"text"}, Tokenization: "field", IndexFilterable: &filterable},
			{Name: propParentSource, DataType: []string{"text"}, Tokenization: "field", IndexFilterable: &filterable},
			{Name: propIngestedAt, DataType: []string{"int"}},
		},
	}
}

// Retrieve runs a nearText query and returns up to topK snippets.
func (s *Store) Retrieve(ctx context.Context, query string, topK int) ([]model.Snippet, error) {
	if topK <= 0 || strings.TrimSpace(query) == "" {
		return nil, nil
	}

	nearText := s.client.GraphQL().NearTextArgBuilder().WithConcepts([]string{query})
	result, err := s.client.GraphQL().Get().
		WithClassName(s.class).
		WithFields(
			graphql.Field{Name: propContent},
			graphql.Field{Name: propSource},
		).
		WithNearText(nearText).
		WithLimit(topK).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("weaviate near text: %w", err)
	}
	if len(result.Errors) > 0 {
		return nil, fmt.Errorf("weaviate near text: %s", result.Errors[0].Message)
	}

	snippets := parseSnippets(result, s.class)
	s.logger.Debug().Int("results", len(snippets)).Msg("vector retrieval")
	return snippets, nil
}

// parseSnippets reads Get.<class>[].{content,source} from a GraphQL response.
func parseSnippets(result *models.GraphQLResponse, class string) []model.Snippet {
	if result == nil {
		return nil
	}
	data, ok := result.Data["Get"].(map[string]any)
	if !ok {
		return nil
	}
	objects, ok := data[class].([]any)
	if !ok {
		return nil
	}

	out := make([]model.Snippet, 0, len(objects))
	for _, obj := range objects {
		m, ok := obj.(map[string]any)
		if !ok {
			continue
		}
		content, _ := m[propContent].(string)
		if strings.TrimSpace(content) == "" {
			continue
		}
		source, _ := m[propSource].(string)
		out = append(out, model.Snippet{Text: content, Source: source})
	}
	return out
}
