// Package viz turns a chart recommendation into a rendered artifact through
// a degradation ladder: a templated recipe first, then an LLM-chosen
// declarative chart spec, then a no-chart terminal. No tier ever fails the
// request.
package viz

import (
	"context"
	"fmt"
	"log"

	"roi.com/phaser/internal/warehouse"
)

type Kind string

const (
	KindImage  Kind = "image"
	KindMarkup Kind = "markup"
	KindNone   Kind = "none"
)

// Artifact is the terminal output of the ladder. Image or Markup is
// populated according to Kind; Err is set only for KindNone.
type Artifact struct {
	Kind   Kind
	Image  []byte
	Markup string
	Err    string
}

// Request carries the analyzer's chart recommendation.
type Request struct {
	Type         string
	XAxis        string
	YAxis        string
	Title        string
	PivotColumns []string
}

// RenderError reports a failure inside one ladder tier.
type RenderError struct {
	Stage  string
	Reason string
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("%s render failed: %s", e.Stage, e.Reason)
}

func renderError(stage, format string, args ...any) *RenderError {
	return &RenderError{Stage: stage, Reason: fmt.Sprintf(format, args...)}
}

// Completer is the single LLM primitive the fallback tier needs.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

type Ladder struct {
	llm Completer
}

func NewLadder(llm Completer) *Ladder {
	return &Ladder{llm: llm}
}

// Render walks the ladder. Tier 1 maps the recommended chart type to a fixed
// recipe; on failure tier 2 asks the LLM for a declarative chart spec and
// renders that; on failure the no-chart sentinel is returned.
func (l *Ladder) Render(ctx context.Context, result *warehouse.QueryResult, req Request) *Artifact {
	art, err := renderTemplated(result, req)
	if err == nil {
		return art
	}
	log.Printf("Templated visualization failed (%v), trying AI-assisted fallback", err)

	art, err = l.renderFallback(ctx, result, req)
	if err == nil {
		return art
	}
	log.Printf("AI-assisted visualization failed: %v", err)

	return &Artifact{Kind: KindNone, Err: "Failed to generate visualization"}
}
