package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"hirecorrecto/interview-orchestrator/internal/models"
)

func TestMergeReferences(t *testing.T) {
	pool := []models.PoolQuestion{
		{ID: "a", Text: "A"},
		{ID: "b", Text: "B"},
		{ID: "c", Text: "C"},
		{ID: "d", Text: "D"},
	}
	hits := []SearchResult{{ID: "c"}, {ID: "zz"}, {ID: "c"}, {ID: "b"}}

	got := mergeReferences(pool, hits, 3)

	ids := make([]string, 0, len(got))
	for _, q := range got {
		ids = append(ids, q.ID)
	}
	assert.Equal(t, []string{"c", "b", "a"}, ids)
}

func TestPointID(t *testing.T) {
	id := uuid.NewString()
	assert.Equal(t, id, pointID(id))

	hashed := pointID("pq-2")
	_, err := uuid.Parse(hashed)
	assert.NoError(t, err)
	assert.Equal(t, hashed, pointID("pq-2"))
}

func TestSelectReferences_SmallPoolSkipsIndex(t *testing.T) {
	svc := &qdrantService{}
	pool := []models.PoolQuestion{{ID: "a"}, {ID: "b"}}

	got, err := svc.SelectReferences(context.Background(), pool, []string{"Go"}, 10)
	assert.NoError(t, err)
	assert.Equal(t, pool, got)

	got, err = svc.SelectReferences(context.Background(), pool, nil, 1)
	assert.NoError(t, err)
	assert.Equal(t, pool[:1], got)
}
