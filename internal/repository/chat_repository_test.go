package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatdeck/api/internal/models"
)

func TestGroupHistoryInterleavedSessions(t *testing.T) {
	// Two sessions created in the same instant can interleave in the joined
	// row stream; each must still fold into exactly one entry.
	rows := []historyRow{
		{sessionID: "sess-a", exchange: &models.Exchange{Seq: 1, Prompt: "a1"}},
		{sessionID: "sess-b", exchange: &models.Exchange{Seq: 1, Prompt: "b1"}},
		{sessionID: "sess-a", exchange: &models.Exchange{Seq: 2, Prompt: "a2"}},
		{sessionID: "sess-b", exchange: &models.Exchange{Seq: 2, Prompt: "b2"}},
	}

	history := groupHistory(rows)
	require.Len(t, history, 2)

	assert.Equal(t, "sess-a", history[0].SessionID)
	require.Len(t, history[0].Exchanges, 2)
	assert.Equal(t, "a1", history[0].Exchanges[0].Prompt)
	assert.Equal(t, "a2", history[0].Exchanges[1].Prompt)

	assert.Equal(t, "sess-b", history[1].SessionID)
	require.Len(t, history[1].Exchanges, 2)
	assert.Equal(t, "b1", history[1].Exchanges[0].Prompt)
	assert.Equal(t, "b2", history[1].Exchanges[1].Prompt)
}

func TestGroupHistorySessionWithoutExchanges(t *testing.T) {
	rows := []historyRow{
		{sessionID: "sess-a"},
		{sessionID: "sess-b", exchange: &models.Exchange{Seq: 1, Prompt: "b1"}},
	}

	history := groupHistory(rows)
	require.Len(t, history, 2)
	assert.Empty(t, history[0].Exchanges)
	assert.Len(t, history[1].Exchanges, 1)
}

func TestGroupHistoryEmpty(t *testing.T) {
	assert.Empty(t, groupHistory(nil))
}
