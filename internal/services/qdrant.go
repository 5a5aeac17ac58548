package services

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"hirecorrecto/interview-orchestrator/internal/models"
)

// QuestionIndex is the vector index of the optional question bank. It
// implements ReferenceIndex for the question engine.
type QuestionIndex interface {
	ReferenceIndex
	InitCollection(ctx context.Context) error
	UpsertQuestion(ctx context.Context, q models.PoolQuestion, embedding []float32) error
	SearchSimilar(ctx context.Context, queryEmbedding []float32, limit int) ([]SearchResult, error)
	DeleteQuestion(ctx context.Context, questionID string) error
}

type SearchResult struct {
	ID     string
	Score  float32
	Text   string
	Skills []string
}

type qdrantService struct {
	client         *qdrant.Client
	embedder       ModelClient
	collectionName string
	vectorSize     uint64
}

func NewQdrantService(urlStr, apiKey, collectionName string, embedder ModelClient) (QuestionIndex, error) {
	// Parse URL to extract host, port, and TLS usage
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return nil, fmt.Errorf("invalid Qdrant URL: %w", err)
	}

	host := parsed.Hostname()
	useTLS := parsed.Scheme == "https"

	// For gRPC client, use port 6334 by default (gRPC port)
	port := 6334
	if p := parsed.Port(); p != "" {
		if v, err := strconv.Atoi(p); err == nil {
			port = v
		}
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: apiKey,
		UseTLS: useTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	return &qdrantService{
		client:         client,
		embedder:       embedder,
		collectionName: collectionName,
		vectorSize:     768, // text-embedding-004
	}, nil
}

// InitCollection implements QuestionIndex.
func (q *qdrantService) InitCollection(ctx context.Context) error {
	exists, err := q.client.CollectionExists(ctx, q.collectionName)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}

	if exists {
		log.Printf("✅ Qdrant collection '%s' already exists\n", q.collectionName)
		return nil
	}

	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collectionName,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     q.vectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	log.Printf("✅ Qdrant collection '%s' created successfully\n", q.collectionName)
	return nil
}

// pointID maps a pool question ID onto the UUID point ID Qdrant requires.
// Non-UUID IDs are hashed, so the mapping is stable across ingestions.
func pointID(questionID string) string {
	if _, err := uuid.Parse(questionID); err == nil {
		return questionID
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(questionID)).String()
}

// UpsertQuestion implements QuestionIndex. Re-ingesting the same question
// overwrites its point.
func (q *qdrantService) UpsertQuestion(ctx context.Context, pq models.PoolQuestion, embedding []float32) error {
	skills := make([]interface{}, 0, len(pq.Skills))
	for _, s := range pq.Skills {
		skills = append(skills, strings.ToLower(s))
	}

	point := &qdrant.PointStruct{
		Id:      qdrant.NewID(pointID(pq.ID)),
		Vectors: qdrant.NewVectors(embedding...),
		Payload: qdrant.NewValueMap(map[string]interface{}{
			"question_id": pq.ID,
			"text":        pq.Text,
			"skills":      skills,
		}),
	}

	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collectionName,
		Points:         []*qdrant.PointStruct{point},
	})
	if err != nil {
		return fmt.Errorf("failed to upsert question %s: %w", pq.ID, err)
	}

	return nil
}

// SearchSimilar implements QuestionIndex.
func (q *qdrantService) SearchSimilar(ctx context.Context, queryEmbedding []float32, limit int) ([]SearchResult, error) {
	points, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collectionName,
		Query:          qdrant.NewQuery(queryEmbedding...),
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	var results []SearchResult
	for _, point := range points {
		payload := point.Payload
		result := SearchResult{Score: point.Score}

		if v, ok := payload["question_id"]; ok {
			result.ID = v.GetStringValue()
		}
		if v, ok := payload["text"]; ok {
			result.Text = v.GetStringValue()
		}
		if v, ok := payload["skills"]; ok {
			for _, s := range v.GetListValue().GetValues() {
				result.Skills = append(result.Skills, s.GetStringValue())
			}
		}

		results = append(results, result)
	}

	return results, nil
}

// DeleteQuestion implements QuestionIndex.
func (q *qdrantService) DeleteQuestion(ctx context.Context, questionID string) error {
	filter := &qdrant.Filter{
		Must: []*qdrant.Condition{
			qdrant.NewMatch("question_id", questionID),
		},
	}

	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collectionName,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Filter{
				Filter: filter,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to delete question: %w", err)
	}

	return nil
}

// SelectReferences implements ReferenceIndex. It ranks the pool by
// similarity to the priority skills and keeps only pool members; the rest
// of the slots are filled from the pool in order.
func (q *qdrantService) SelectReferences(ctx context.Context, pool []models.PoolQuestion, skills []string, limit int) ([]models.PoolQuestion, error) {
	if len(pool) <= limit {
		return pool, nil
	}
	if len(skills) == 0 || q.embedder == nil {
		return pool[:limit], nil
	}

	embedding, err := q.embedder.Embed(ctx, "Interview questions about: "+strings.Join(skills, ", "))
	if err != nil {
		return nil, fmt.Errorf("failed to embed priority skills: %w", err)
	}

	hits, err := q.SearchSimilar(ctx, embedding, limit*3)
	if err != nil {
		return nil, err
	}

	return mergeReferences(pool, hits, limit), nil
}

func mergeReferences(pool []models.PoolQuestion, hits []SearchResult, limit int) []models.PoolQuestion {
	byID := make(map[string]models.PoolQuestion, len(pool))
	for _, pq := range pool {
		byID[pq.ID] = pq
	}

	picked := make([]models.PoolQuestion, 0, limit)
	used := make(map[string]bool)
	for _, h := range hits {
		if len(picked) == limit {
			break
		}
		if pq, ok := byID[h.ID]; ok && !used[h.ID] {
			used[h.ID] = true
			picked = append(picked, pq)
		}
	}
	for _, pq := range pool {
		if len(picked) == limit {
			break
		}
		if !used[pq.ID] {
			used[pq.ID] = true
			picked = append(picked, pq)
		}
	}
	return picked
}
