package report

import (
	"fmt"
	"math"
	"strings"
)

// buildMarkdown walks the input sections in presentation order.
func buildMarkdown(in *Input) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", reportTitle(in))
	writeHeader(&b, in)
	writeCoefficients(&b, in)
	writeHeterogeneity(&b, in)
	writeTau2CI(&b, in)
	writePermutation(&b, in)
	writePosterior(&b, in)
	writeProfile(&b, in)

	return b.String()
}

func writeHeader(b *strings.Builder, in *Input) {
	if in.AnalysisID != "" {
		fmt.Fprintf(b, "- **Analysis**: `%s`\n", in.AnalysisID)
	}
	if in.Dataset != nil {
		fmt.Fprintf(b, "- **Data**: %d studies, %d parallel datasets, %d predictors\n",
			in.Dataset.NStudies(), in.Dataset.NDatasets(), in.Dataset.NPredictors())
	}
	fmt.Fprintf(b, "- **Estimator**: %s\n", in.Estimator)
	fmt.Fprintf(b, "- **Alpha**: %g\n", in.Alpha)
	if !in.CreatedAt.IsZero() {
		fmt.Fprintf(b, "- **Generated**: %s\n", in.CreatedAt)
	}
	b.WriteString("\n")
}

func writeCoefficients(b *strings.Builder, in *Input) {
	b.WriteString("## Coefficients\n\n")

	hasPerm := false
	for _, row := range in.Table {
		if row.PPerm != nil {
			hasPerm = true
			break
		}
	}

	b.WriteString("| Name | Estimate | SE | Z | P |")
	if hasPerm {
		b.WriteString(" P (perm) |")
	}
	fmt.Fprintf(b, " CI %.1f%% | CI %.1f%% |\n", 100*in.Alpha/2, 100*(1-in.Alpha/2))

	b.WriteString("|---|---|---|---|---|")
	if hasPerm {
		b.WriteString("---|")
	}
	b.WriteString("---|---|\n")

	for _, row := range in.Table {
		fmt.Fprintf(b, "| %s | %.4f | %.4f | %.4f | %.4g |",
			row.Name, row.Estimate, row.SE, row.Z, row.P)
		if hasPerm {
			if row.PPerm != nil {
				fmt.Fprintf(b, " %.4g |", *row.PPerm)
			} else {
				b.WriteString(" |")
			}
		}
		fmt.Fprintf(b, " %.4f | %.4f |\n", row.CILower, row.CIUpper)
	}
	b.WriteString("\n")
}

func writeHeterogeneity(b *strings.Builder, in *Input) {
	if len(in.Het) == 0 {
		return
	}

	b.WriteString("## Heterogeneity\n\n")
	b.WriteString("| Dataset | Q | DF | P | I2 (%) | H2 |\n")
	b.WriteString("|---|---|---|---|---|---|\n")
	for i, het := range in.Het {
		fmt.Fprintf(b, "| %d | %.4f | %d | %.4g | %.2f | %.4f |\n",
			i+1, het.Q, het.DF, het.PValue, het.I2, het.H2)
	}
	b.WriteString("\n")
}

func writeTau2CI(b *strings.Builder, in *Input) {
	if in.Tau2CI == nil {
		return
	}

	fmt.Fprintf(b, "## Tau2 confidence interval (%s, alpha %g)\n\n", in.Tau2CI.Method, in.Tau2CI.Alpha)
	b.WriteString("| Dataset | Tau2 | Lower | Upper |\n")
	b.WriteString("|---|---|---|---|\n")
	for i := range in.Tau2CI.Tau2 {
		fmt.Fprintf(b, "| %d | %.4f | %.4f | %s |\n",
			i+1, in.Tau2CI.Tau2[i], in.Tau2CI.CILower[i], formatUpper(in.Tau2CI.CIUpper[i]))
	}
	b.WriteString("\n")
}

func writePermutation(b *strings.Builder, in *Input) {
	if in.NPermUsed == 0 {
		return
	}

	b.WriteString("## Permutation test\n\n")
	mode := "Monte Carlo draws"
	if in.ExactPerm {
		mode = "exactly enumerated permutations"
	}
	fmt.Fprintf(b, "Coefficient p-values above include the permutation column, computed from %d %s.\n\n",
		in.NPermUsed, mode)
}

func writePosterior(b *strings.Builder, in *Input) {
	if len(in.Posterior) == 0 {
		return
	}

	b.WriteString("## Posterior (95% credible)\n\n")
	b.WriteString("| Parameter | Mean | Median | SD | 2.5% | 97.5% |\n")
	b.WriteString("|---|---|---|---|---|---|\n")
	for _, stat := range in.Posterior {
		fmt.Fprintf(b, "| %s | %.4f | %.4f | %.4f | %.4f | %.4f |\n",
			stat.Name, stat.Mean, stat.Median, stat.SD, stat.CILower, stat.CIUpper)
	}
	b.WriteString("\n")
}

func writeProfile(b *strings.Builder, in *Input) {
	if in.Dataset == nil {
		return
	}

	b.WriteString("## Dataset profile\n\n")
	b.WriteString("| Variable | Count | Mean | Median | SD | Min | Max | Q25 | Q75 |\n")
	b.WriteString("|---|---|---|---|---|---|---|---|---|\n")
	for _, row := range in.Dataset.Describe() {
		fmt.Fprintf(b, "| %s | %d | %.4f | %.4f | %.4f | %.4f | %.4f | %.4f | %.4f |\n",
			row.Name, row.Count, row.Mean, row.Median, row.StdDev, row.Min, row.Max, row.Q25, row.Q75)
	}
	b.WriteString("\n")
}

func formatUpper(v float64) string {
	if math.IsInf(v, 1) {
		return "Inf"
	}
	return fmt.Sprintf("%.4f", v)
}
