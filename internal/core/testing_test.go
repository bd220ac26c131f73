package core

import (
	"context"
	"encoding/json"
	"fmt"

	"roi.com/phaser/internal/warehouse"
)

// scriptedCompleter replays canned model outputs in order and records every
// prompt it was given.
type scriptedCompleter struct {
	responses []string
	errs      []error
	prompts   []string
}

func (c *scriptedCompleter) Complete(_ context.Context, prompt string) (string, error) {
	i := len(c.prompts)
	c.prompts = append(c.prompts, prompt)
	if i < len(c.errs) && c.errs[i] != nil {
		return "", c.errs[i]
	}
	if i >= len(c.responses) {
		return "", fmt.Errorf("no scripted response for call %d", i)
	}
	return c.responses[i], nil
}

func (c *scriptedCompleter) calls() int {
	return len(c.prompts)
}

// classifierReply builds a well-formed planner response.
func classifierReply(kind, content, explanation string) string {
	body, _ := json.Marshal(map[string]string{
		"response_type": kind,
		"content":       content,
		"explanation":   explanation,
	})
	return "```json\n" + string(body) + "\n```"
}

// analysisReply builds a well-formed analyzer response.
func analysisReply(summary string, recommended bool, vizType string, config map[string]any) string {
	if config == nil {
		config = map[string]any{}
	}
	body, _ := json.Marshal(map[string]any{
		"analysis":                  summary,
		"visualization_recommended": recommended,
		"visualization_type":        vizType,
		"visualization_config":      config,
	})
	return "```json\n" + string(body) + "\n```"
}

// scriptedExecutor returns canned results or errors per call and records the
// SQL it saw.
type scriptedExecutor struct {
	results []*warehouse.QueryResult
	errs    []error
	queries []string
}

func (e *scriptedExecutor) ExecuteQuery(_ context.Context, sql string) (*warehouse.QueryResult, error) {
	i := len(e.queries)
	e.queries = append(e.queries, sql)
	if i < len(e.errs) && e.errs[i] != nil {
		return nil, e.errs[i]
	}
	if i < len(e.results) {
		return e.results[i], nil
	}
	return &warehouse.QueryResult{Columns: []string{"n"}, Rows: [][]any{{int64(1)}}}, nil
}

func salesResult() *warehouse.QueryResult {
	return &warehouse.QueryResult{
		Columns: []string{"store", "total_sales"},
		Rows: [][]any{
			{"1", float64(120000)},
			{"2", float64(98000)},
			{"3", float64(143500)},
		},
	}
}
