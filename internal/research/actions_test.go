package research

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kocoro-lab/deepresearch/internal/llm"
)

func TestDecodeActions(t *testing.T) {
	calls := []llm.ToolCall{
		researchCall("1", "solar"),
		analystCall("2", "sum 1..10"),
		reflectCall("3", "need more on wind"),
		completeCall("4"),
		{ID: "5", Name: "launch_rockets", Arguments: json.RawMessage(`{}`)},
		{ID: "6", Name: ToolConductResearch, Arguments: json.RawMessage(`{"research_topic":""}`)},
		{ID: "7", Name: ToolDelegateToAnalyst, Arguments: json.RawMessage(`not json`)},
	}

	actions, rejections := DecodeActions(calls)
	require.Len(t, actions, len(calls))
	require.Len(t, rejections, len(calls))

	assert.Equal(t, ConductResearch{ID: "1", Topic: "solar"}, actions[0])
	assert.Equal(t, DelegateToAnalyst{ID: "2", Task: "sum 1..10"}, actions[1])
	assert.Equal(t, Reflect{ID: "3", Text: "need more on wind"}, actions[2])
	assert.Equal(t, Complete{ID: "4"}, actions[3])
	for i := 0; i < 4; i++ {
		assert.Nil(t, rejections[i])
	}

	for i := 4; i < 7; i++ {
		assert.Nil(t, actions[i])
		require.NotNil(t, rejections[i])
		assert.Equal(t, calls[i].ID, rejections[i].Call.ID)
	}
	assert.ErrorIs(t, rejections[4].Err, ErrUnknownAction)
}

func TestSupervisorToolsCoverActionSet(t *testing.T) {
	names := map[string]bool{}
	for _, tool := range SupervisorTools() {
		names[tool.Name] = true
	}
	assert.Equal(t, map[string]bool{
		ToolConductResearch:   true,
		ToolDelegateToAnalyst: true,
		ToolReflect:           true,
		ToolComplete:          true,
	}, names)
}
