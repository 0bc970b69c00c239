package report

import (
	"math"
	"strings"
	"testing"

	"gometa/domain/core"
	"gometa/domain/meta"
	"gometa/ports"
)

func fixtureInput(t *testing.T) *Input {
	t.Helper()

	y := []float64{-1, 0.5, 0.5, 0.5, 1, 1, 2, 10}
	v := []float64{1, 1, 2.4, 0.5, 1, 1, 1.2, 1.5}
	mods := [][]float64{{1}, {1}, {2}, {2}, {4}, {4}, {2.8}, {2.8}}
	ds, err := meta.FromColumns(y, v, nil, mods, []string{"dose"}, true)
	if err != nil {
		t.Fatalf("fixture dataset: %v", err)
	}

	perm := 0.012
	return &Input{
		AnalysisID:  core.AnalysisID("a-1"),
		DatasetName: "trial-doses",
		Estimator:   "REML",
		Alpha:       0.05,
		Dataset:     ds,
		Table: []meta.TableRow{
			{Name: "intercept", Estimate: -0.1066, SE: 2.9937, Z: -0.0356, P: 0.9716, PPerm: &perm, CILower: -5.9741, CIUpper: 5.7610},
			{Name: "dose", Estimate: 0.7700, SE: 1.1133, Z: 0.6916, P: 0.4892, CILower: -1.4122, CIUpper: 2.9521},
		},
		Het: []meta.Heterogeneity{
			{Q: 53.8052, DF: 6, I2: 88.85, H2: 8.9675, PValue: 7.85e-10},
		},
		Tau2CI: &meta.REStats{
			Tau2:    []float64{10.9499},
			CILower: []float64{3.8076},
			CIUpper: []float64{math.Inf(1)},
			Alpha:   0.05,
			Method:  "Q-Profile",
		},
		NPermUsed: 1000,
		Posterior: []ports.PosteriorStat{
			{Name: "intercept", Mean: -0.1, Median: -0.09, SD: 3.0, CILower: -6.1, CIUpper: 5.8},
		},
		CreatedAt: core.Now(),
	}
}

func TestBuildRendersEverySection(t *testing.T) {
	rep, err := Build(fixtureInput(t))
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if rep.ID != core.ReportID("a-1") {
		t.Errorf("report ID should mirror the analysis ID, got %s", rep.ID)
	}

	for _, want := range []string{
		"# Meta-regression of trial-doses (REML)",
		"## Coefficients",
		"P (perm)",
		"## Heterogeneity",
		"## Tau2 confidence interval (Q-Profile, alpha 0.05)",
		"| 1 | 10.9499 | 3.8076 | Inf |",
		"## Permutation test",
		"1000 Monte Carlo draws",
		"## Posterior (95% credible)",
		"## Dataset profile",
		"| dose |",
	} {
		if !strings.Contains(rep.Markdown, want) {
			t.Errorf("markdown missing %q:\n%s", want, rep.Markdown)
		}
	}
}

func TestBuildSkipsOptionalSections(t *testing.T) {
	in := fixtureInput(t)
	in.Het = nil
	in.Tau2CI = nil
	in.NPermUsed = 0
	in.Posterior = nil
	in.Dataset = nil
	in.Table[0].PPerm = nil

	rep, err := Build(in)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	for _, absent := range []string{
		"## Heterogeneity",
		"## Tau2 confidence interval",
		"## Permutation test",
		"## Posterior",
		"## Dataset profile",
		"P (perm)",
	} {
		if strings.Contains(rep.Markdown, absent) {
			t.Errorf("markdown should not contain %q when the section is empty", absent)
		}
	}
}

func TestBuildExactPermutationWording(t *testing.T) {
	in := fixtureInput(t)
	in.ExactPerm = true
	in.NPermUsed = 16

	rep, err := Build(in)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if !strings.Contains(rep.Markdown, "16 exactly enumerated permutations") {
		t.Errorf("exact runs should say so:\n%s", rep.Markdown)
	}
}

func TestBuildRequiresTable(t *testing.T) {
	in := fixtureInput(t)
	in.Table = nil
	if _, err := Build(in); err == nil {
		t.Error("expected error when the coefficient table is missing")
	}

	if _, err := Build(nil); err == nil {
		t.Error("expected error for nil input")
	}
}

func TestRenderHTMLProducesTables(t *testing.T) {
	rep, err := Build(fixtureInput(t))
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if !strings.Contains(rep.HTML, "<table>") {
		t.Errorf("HTML should render markdown tables:\n%s", rep.HTML)
	}
	if !strings.Contains(rep.HTML, "<h2") {
		t.Error("HTML should contain section headings")
	}
}
