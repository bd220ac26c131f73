package core

import (
	"context"
	"fmt"
	"strings"

	"roi.com/phaser/internal/structured"
)

// IntentKind is the classified purpose of a user utterance.
type IntentKind string

const (
	IntentConversation IntentKind = "conversation"
	IntentUnauthorized IntentKind = "unauthorized"
	IntentSQL          IntentKind = "sql"
)

// ClassifiedIntent is the planner's verdict for one utterance. Explanation
// is meaningful only when Kind is IntentSQL.
type ClassifiedIntent struct {
	Kind        IntentKind
	Content     string
	Explanation string
}

// ChatTurn is one caller-supplied message. The planner only ever reads the
// most recent historyWindow turns.
type ChatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// historyWindow bounds how many trailing turns reach the prompt, keeping
// token usage flat regardless of conversation length.
const historyWindow = 4

var plannerContract = structured.NewContract(
	structured.Field{
		Name:        "response_type",
		Description: "A string indicating the type of response: 'sql' for SQL queries, 'conversation' for normal chat, or 'unauthorized' for inappropriate questions",
	},
	structured.Field{
		Name:        "content",
		Description: "The actual response content - either SQL query or conversational text depending on response_type",
	},
	structured.Field{
		Name:        "explanation",
		Description: "For SQL queries: brief explanation of what the query does. For conversation: empty string. For unauthorized: empty string.",
	},
)

const plannerPromptTemplate = `You are an advanced AI assistant specialized in SQL generation and data analysis. You help users query a retail database.

DATABASE SCHEMA:
the db schema is as follows:
%s

CONVERSATION HISTORY (it may help you understand the previous context, if in current user input there is no context to history, you can ignore it):
%s

CURRENT USER INPUT:
%q

## RESPONSE GUIDELINES

Analyze the user's input and respond according to these rules:

1. If the input is related to data analysis or SQL queries for the retail database:
- Set response_type to "sql"
- Generate a correct, optimized, read-only SQL query in the content field
- Explain what the query does in the explanation field
- Use proper SQL syntax with appropriate joins, filters, and aggregations if needed

2. If the input is a normal conversational question (like greetings, basic math, basic general knowledge):
- Set response_type to "conversation"
- Provide a friendly, helpful response in the content field
- Leave explanation as an empty string

3. If the input contains inappropriate content, requests for harmful information, or is clearly unethical:
- Set response_type to "unauthorized"
- Set content to "I am not authorized to answer this question."
- Leave explanation as an empty string

4. For harmful SQL queries that can modify the database (DELETE, ALTER, UPDATE, etc.):
- Set response_type to "unauthorized"
- Set content to "I am not authorized to perform this question."
- Leave explanation as an empty string

## SQL BEST PRACTICES (When generating SQL):
- Use clear table aliases (e.g., f for Features, s for Sales)
- Format dates consistently using standard SQL functions
- Use explicit JOINs rather than implicit joins in WHERE clauses
- Include relevant WHERE clauses to filter data appropriately
- Format your SQL query with proper indentation for readability
- Consider previous questions in the conversation history for context if needed

Now analyze the user input and respond in the requested format:

%s`

// PlannerService performs the single LLM round trip that classifies an
// utterance and, for data questions, generates the SQL to answer it.
type PlannerService struct {
	llm       Completer
	schemaDoc string
}

func NewPlannerService(llm Completer, schemaDoc string) *PlannerService {
	return &PlannerService{llm: llm, schemaDoc: schemaDoc}
}

// formatHistory renders the trailing window of the conversation, skipping
// empty turns, as "ROLE: content" blocks.
func formatHistory(history []ChatTurn) string {
	start := 0
	if len(history) > historyWindow {
		start = len(history) - historyWindow
	}
	var sb strings.Builder
	for _, turn := range history[start:] {
		role := strings.ToUpper(turn.Role)
		if role == "" || turn.Content == "" {
			continue
		}
		sb.WriteString(fmt.Sprintf("%s: %s\n\n", role, turn.Content))
	}
	return sb.String()
}

// Classify builds the planner prompt from the schema, the bounded history
// window, any retry feedback, and the current query, then parses the reply
// into a ClassifiedIntent. A reply whose response_type is outside the three
// known kinds is a contract violation reported as a *structured.FormatError.
func (s *PlannerService) Classify(ctx context.Context, query string, history []ChatTurn, feedback string) (*ClassifiedIntent, error) {
	historyText := formatHistory(history) + feedback

	prompt := fmt.Sprintf(plannerPromptTemplate,
		s.schemaDoc, historyText, query, plannerContract.FormatInstructions())

	raw, err := s.llm.Complete(ctx, prompt)
	if err != nil {
		return nil, err
	}
	fields, err := plannerContract.Parse(raw)
	if err != nil {
		return nil, err
	}

	kind := IntentKind(strings.ToLower(strings.TrimSpace(structured.StringField(fields, "response_type"))))
	switch kind {
	case IntentConversation, IntentUnauthorized, IntentSQL:
	default:
		return nil, &structured.FormatError{Reason: fmt.Sprintf("unrecognized response_type %q", kind)}
	}

	return &ClassifiedIntent{
		Kind:        kind,
		Content:     strings.TrimSpace(structured.StringField(fields, "content")),
		Explanation: structured.StringField(fields, "explanation"),
	}, nil
}
