package embedding

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/bizradar/bizradar/engine/core"
	"github.com/bizradar/bizradar/engine/llm"
)

const (
	defaultSimilarityProvider = "openai"
	defaultSimilarityModel    = "text-embedding-3-small"
)

// SimilarityService answers similarity queries over persisted vectors.
type SimilarityService struct {
	repo     EmbeddingRepo
	embedder Embedder
}

func NewSimilarityService(repo EmbeddingRepo, embedder Embedder) *SimilarityService {
	return &SimilarityService{repo: repo, embedder: embedder}
}

// FindSimilarBusinesses searches with the stored embedding of businessID as
// the query vector, excluding the business itself from the hits.
func (s *SimilarityService) FindSimilarBusinesses(
	ctx context.Context,
	businessID string,
	opts FindSimilarOptions,
) ([]SimilarBusiness, error) {
	provider, model := similarityKey(opts)
	stored, err := s.repo.GetEmbedding(ctx, businessID, provider, model)
	if err != nil {
		if errors.Is(err, ErrEmbeddingNotFound) {
			return nil, fmt.Errorf("no embedding found for business %s", businessID)
		}
		return nil, err
	}
	opts.ExcludeBusinessID = businessID
	return s.repo.FindSimilar(ctx, stored.Embedding, opts)
}

// FindSimilarByContent embeds content on the fly and searches with the fresh
// vector.
func (s *SimilarityService) FindSimilarByContent(
	ctx context.Context,
	content string,
	opts FindSimilarOptions,
) ([]SimilarBusiness, error) {
	provider, _ := similarityKey(opts)
	result, err := s.embedder.EmbedText(ctx, content, &llm.RequestOptions{
		Provider: core.ProviderName(provider),
	})
	if err != nil {
		return nil, fmt.Errorf("embed query content: %w", err)
	}
	return s.repo.FindSimilar(ctx, result.Embedding, opts)
}

// CalculateSimilarity computes the cosine similarity of two stored
// embeddings in process.
func (s *SimilarityService) CalculateSimilarity(
	ctx context.Context,
	businessID1, businessID2 string,
	provider, model string,
) (float64, error) {
	if provider == "" {
		provider = defaultSimilarityProvider
	}
	if model == "" {
		model = defaultSimilarityModel
	}
	first, err := s.repo.GetEmbedding(ctx, businessID1, provider, model)
	if err != nil {
		return 0, fmt.Errorf("embedding for %s: %w", businessID1, err)
	}
	second, err := s.repo.GetEmbedding(ctx, businessID2, provider, model)
	if err != nil {
		return 0, fmt.Errorf("embedding for %s: %w", businessID2, err)
	}
	return CosineSimilarity(first.Embedding, second.Embedding)
}

// Stats summarizes the persisted vectors for one provider/model.
func (s *SimilarityService) Stats(ctx context.Context, provider, model string) (*EmbeddingStats, error) {
	return s.repo.Stats(ctx, provider, model)
}

// CosineSimilarity requires equal-length vectors and returns 0 when either
// has zero magnitude.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, errors.New("vectors must have the same length")
	}
	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	magA = math.Sqrt(magA)
	magB = math.Sqrt(magB)
	if magA == 0 || magB == 0 {
		return 0, nil
	}
	return dot / (magA * magB), nil
}

func similarityKey(opts FindSimilarOptions) (string, string) {
	provider := opts.Provider
	if provider == "" {
		provider = defaultSimilarityProvider
	}
	model := opts.Model
	if model == "" {
		model = defaultSimilarityModel
	}
	return provider, model
}
