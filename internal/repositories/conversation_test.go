package repositories

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"hirecorrecto/interview-orchestrator/internal/models"
)

func TestMergeTurns(t *testing.T) {
	base := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	existing := []models.ConversationTurn{
		{ID: "a", Speaker: models.SpeakerBot, Text: "Q?", Timestamp: base},
		{ID: "b", Speaker: models.SpeakerCandidate, Text: "partial", Timestamp: base.Add(2 * time.Second)},
	}
	incoming := []models.ConversationTurn{
		{ID: "b", Speaker: models.SpeakerCandidate, Text: "partial answer", Timestamp: base.Add(2 * time.Second)},
		{ID: "c", Speaker: models.SpeakerCandidate, Text: "early", Timestamp: base.Add(time.Second)},
	}

	merged := MergeTurns(existing, incoming)

	ids := make([]string, 0, len(merged))
	for _, t := range merged {
		ids = append(ids, t.ID)
	}
	assert.Equal(t, []string{"a", "c", "b"}, ids)
	assert.Equal(t, "partial answer", merged[2].Text)
}

func TestMergeTurns_Idempotent(t *testing.T) {
	turns := []models.ConversationTurn{
		{ID: "a", Text: "one", Timestamp: time.Unix(1, 0)},
		{ID: "b", Text: "two", Timestamp: time.Unix(2, 0)},
	}

	once := MergeTurns(nil, turns)
	twice := MergeTurns(once, turns)
	assert.Equal(t, once, twice)
	assert.Empty(t, MergeTurns(nil, nil))
}
