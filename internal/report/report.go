// Package report builds the human-readable analysis report: a markdown
// document assembled section by section, and its HTML rendering for the
// report pages.
package report

import (
	"fmt"

	"gometa/domain/core"
	"gometa/domain/meta"
	"gometa/ports"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
)

// Input collects everything one report can render. Optional sections are
// skipped when their field is nil or empty.
type Input struct {
	AnalysisID  core.AnalysisID
	DatasetName string
	Estimator   string
	Alpha       float64
	Dataset     *meta.Dataset
	Table       []meta.TableRow
	Het         []meta.Heterogeneity
	Tau2CI      *meta.REStats
	NPermUsed   int
	ExactPerm   bool
	Posterior   []ports.PosteriorStat
	CreatedAt   core.Timestamp
}

// Report is a finished document. Its ID mirrors the analysis it describes,
// so report URLs are stable across rebuilds.
type Report struct {
	ID        core.ReportID  `json:"id"`
	Title     string         `json:"title"`
	Markdown  string         `json:"markdown"`
	HTML      string         `json:"html"`
	CreatedAt core.Timestamp `json:"created_at"`
}

// Build assembles the markdown document and renders it to HTML.
func Build(in *Input) (*Report, error) {
	if in == nil {
		return nil, fmt.Errorf("nothing to report")
	}
	if len(in.Table) == 0 {
		return nil, fmt.Errorf("report needs at least the coefficient table")
	}

	md := buildMarkdown(in)

	created := in.CreatedAt
	if created.IsZero() {
		created = core.Now()
	}

	return &Report{
		ID:        core.ReportID(in.AnalysisID),
		Title:     reportTitle(in),
		Markdown:  md,
		HTML:      RenderHTML(md),
		CreatedAt: created,
	}, nil
}

// RenderHTML converts markdown to an HTML fragment with table support.
func RenderHTML(md string) string {
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs)
	doc := p.Parse([]byte(md))

	renderer := html.NewRenderer(html.RendererOptions{Flags: html.CommonFlags})
	return string(markdown.Render(doc, renderer))
}

func reportTitle(in *Input) string {
	if in.DatasetName != "" {
		return fmt.Sprintf("Meta-regression of %s (%s)", in.DatasetName, in.Estimator)
	}
	return fmt.Sprintf("Meta-regression (%s)", in.Estimator)
}
