package core

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"roi.com/phaser/internal/structured"
	"roi.com/phaser/internal/viz"
	"roi.com/phaser/internal/warehouse"
)

// maxAttempts is the retry budget: generation attempts 0..3 are active, the
// fifth loop slot returns the terminal error without another LLM call.
const maxAttempts = 4

const terminalErrorMessage = "I am unable to process your request at the moment. Please try again later."

// ResponseKind tags the pipeline's terminal outcome.
type ResponseKind string

const (
	ResponseConversation ResponseKind = "conversation"
	ResponseUnauthorized ResponseKind = "unauthorized"
	ResponseSQL          ResponseKind = "sql"
	ResponseError        ResponseKind = "error"
)

// Response is the assembled outcome of one request. Exactly one shape is
// populated per Kind: Output for conversation/unauthorized/error, the SQL
// fields for ResponseSQL.
type Response struct {
	Kind        ResponseKind
	Output      string
	SQLQuery    string
	Explanation string
	Result      *warehouse.QueryResult
	Analysis    *AnalysisOutcome
	Chart       *viz.Artifact
}

// PipelineService orchestrates classify → execute → analyze → visualize
// with bounded, feedback-driven retries.
type PipelineService struct {
	planner  *PlannerService
	executor warehouse.Executor
	analyzer *AnalysisService
	ladder   *viz.Ladder
}

func NewPipelineService(planner *PlannerService, executor warehouse.Executor, analyzer *AnalysisService, ladder *viz.Ladder) *PipelineService {
	return &PipelineService{
		planner:  planner,
		executor: executor,
		analyzer: analyzer,
		ladder:   ladder,
	}
}

// Run drives the retry loop to a terminal response. It never returns an
// error: every failure mode ends in a structured Response.
//
// Both execution errors and malformed model output consume one attempt from
// the same budget. Execution errors fold the database's message into the
// feedback transcript so the next generation sees what went wrong; format
// errors fold in a reminder about the required output shape.
func (s *PipelineService) Run(ctx context.Context, query string, history []ChatTurn) *Response {
	var feedback strings.Builder

	for attempt := 0; ; attempt++ {
		if attempt == maxAttempts {
			return &Response{Kind: ResponseError, Output: terminalErrorMessage}
		}

		intent, err := s.planner.Classify(ctx, query, history, feedback.String())
		if err != nil {
			var formatErr *structured.FormatError
			if errors.As(err, &formatErr) {
				log.Printf("Attempt %d: %v", attempt, err)
				feedback.WriteString("human: Your last reply was not in the requested structured format. Respond again using the exact format instructions.\n\n")
				continue
			}
			// LLM transport failure: retryable with unchanged inputs.
			log.Printf("Attempt %d: classification call failed: %v", attempt, err)
			continue
		}

		switch intent.Kind {
		case IntentConversation, IntentUnauthorized:
			return &Response{Kind: ResponseKind(intent.Kind), Output: intent.Content}

		case IntentSQL:
			log.Printf("Attempt %d: executing generated SQL", attempt)
			result, err := s.executor.ExecuteQuery(ctx, intent.Content)
			if err != nil {
				log.Printf("Attempt %d: execution failed: %v", attempt, err)
				feedback.WriteString(fmt.Sprintf("ai: %s\n\nhuman: I am getting this error- %s. Please fix this and give a correct SQL query.\n\n", intent.Content, err.Error()))
				continue
			}

			analysis := s.analyzer.Analyze(ctx, result, query)
			var chart *viz.Artifact
			if analysis.VisualizationRecommended {
				chart = s.ladder.Render(ctx, result, viz.Request{
					Type:         string(analysis.VisualizationType),
					XAxis:        analysis.VisualizationConfig.XAxis,
					YAxis:        analysis.VisualizationConfig.YAxis,
					Title:        analysis.VisualizationConfig.Title,
					PivotColumns: analysis.VisualizationConfig.PivotColumns,
				})
			}
			return &Response{
				Kind:        ResponseSQL,
				SQLQuery:    intent.Content,
				Explanation: intent.Explanation,
				Result:      result,
				Analysis:    analysis,
				Chart:       chart,
			}
		}
	}
}
