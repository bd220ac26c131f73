package core

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roi.com/phaser/internal/structured"
)

const testSchema = "tables:\n  sales:\n    columns:\n      store: store number\n"

func TestClassifyKinds(t *testing.T) {
	tests := []struct {
		name     string
		reply    string
		wantKind IntentKind
		wantText string
	}{
		{
			name:     "sql",
			reply:    classifierReply("sql", "SELECT COUNT(*) FROM stores", "Counts the stores."),
			wantKind: IntentSQL,
			wantText: "SELECT COUNT(*) FROM stores",
		},
		{
			name:     "conversation",
			reply:    classifierReply("conversation", "Hello! How can I help?", ""),
			wantKind: IntentConversation,
			wantText: "Hello! How can I help?",
		},
		{
			name:     "unauthorized",
			reply:    classifierReply("unauthorized", "I am not authorized to perform this question.", ""),
			wantKind: IntentUnauthorized,
			wantText: "I am not authorized to perform this question.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			llm := &scriptedCompleter{responses: []string{tt.reply}}
			planner := NewPlannerService(llm, testSchema)

			intent, err := planner.Classify(context.Background(), "some question", nil, "")
			require.NoError(t, err)
			assert.Equal(t, tt.wantKind, intent.Kind)
			assert.Equal(t, tt.wantText, intent.Content)
		})
	}
}

func TestClassifyUnknownKindIsFormatError(t *testing.T) {
	llm := &scriptedCompleter{responses: []string{classifierReply("oracle", "hm", "")}}
	planner := NewPlannerService(llm, testSchema)

	_, err := planner.Classify(context.Background(), "question", nil, "")
	var formatErr *structured.FormatError
	require.ErrorAs(t, err, &formatErr)
}

func TestClassifyPromptContents(t *testing.T) {
	llm := &scriptedCompleter{responses: []string{classifierReply("conversation", "hi", "")}}
	planner := NewPlannerService(llm, testSchema)

	_, err := planner.Classify(context.Background(), "how are sales?", nil, "")
	require.NoError(t, err)
	require.Len(t, llm.prompts, 1)

	prompt := llm.prompts[0]
	assert.Contains(t, prompt, testSchema)
	assert.Contains(t, prompt, "how are sales?")
	assert.Contains(t, prompt, "```json")
	assert.Contains(t, prompt, `"response_type"`)
}

func TestHistoryWindowLastFourTurns(t *testing.T) {
	history := make([]ChatTurn, 0, 6)
	for i := 0; i < 6; i++ {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		history = append(history, ChatTurn{Role: role, Content: fmt.Sprintf("turn-%d", i)})
	}

	llm := &scriptedCompleter{responses: []string{classifierReply("conversation", "hi", "")}}
	planner := NewPlannerService(llm, testSchema)

	_, err := planner.Classify(context.Background(), "question", history, "")
	require.NoError(t, err)

	prompt := llm.prompts[0]
	// Only the trailing window reaches the prompt.
	assert.NotContains(t, prompt, "turn-0")
	assert.NotContains(t, prompt, "turn-1")
	for i := 2; i < 6; i++ {
		assert.Contains(t, prompt, fmt.Sprintf("turn-%d", i))
	}
	assert.Contains(t, prompt, "USER: turn-2")
	assert.Contains(t, prompt, "ASSISTANT: turn-3")
}

func TestHistorySkipsEmptyTurns(t *testing.T) {
	history := []ChatTurn{
		{Role: "user", Content: ""},
		{Role: "", Content: "orphaned"},
		{Role: "user", Content: "real question"},
	}

	llm := &scriptedCompleter{responses: []string{classifierReply("conversation", "hi", "")}}
	planner := NewPlannerService(llm, testSchema)

	_, err := planner.Classify(context.Background(), "question", history, "")
	require.NoError(t, err)
	assert.Contains(t, llm.prompts[0], "USER: real question")
	assert.NotContains(t, llm.prompts[0], "orphaned")
}

func TestClassifyFeedbackReachesPrompt(t *testing.T) {
	llm := &scriptedCompleter{responses: []string{classifierReply("sql", "SELECT 1", "")}}
	planner := NewPlannerService(llm, testSchema)

	feedback := "ai: SELECT oops\n\nhuman: I am getting this error- no such column. Please fix this and give a correct SQL query.\n\n"
	_, err := planner.Classify(context.Background(), "question", nil, feedback)
	require.NoError(t, err)
	assert.Contains(t, llm.prompts[0], "no such column")
}
