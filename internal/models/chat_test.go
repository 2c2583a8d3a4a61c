package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRawTurnsKeepsExchangeOrder(t *testing.T) {
	exchanges := []Exchange{
		{Seq: 1, Prompt: "first question", Response: "first answer"},
		{Seq: 2, Prompt: "second question", Response: "second answer"},
	}

	turns := RawTurns(exchanges)
	require.Len(t, turns, 4)

	assert.Equal(t, Turn{Role: RoleUser, Content: "first question"}, turns[0])
	assert.Equal(t, Turn{Role: RoleAssistant, Content: "first answer"}, turns[1])
	assert.Equal(t, Turn{Role: RoleUser, Content: "second question"}, turns[2])
	assert.Equal(t, Turn{Role: RoleAssistant, Content: "second answer"}, turns[3])
}

func TestRawTurnsEmpty(t *testing.T) {
	assert.Empty(t, RawTurns(nil))
}
