package bayes

import (
	"fmt"
	"math"
	"strings"

	"gometa/domain/core"
	"gometa/ports"

	"github.com/montanaflynn/stats"
)

// posteriorSummary holds the pooled draws of a finished run, one series per
// parameter, aligned with names.
type posteriorSummary struct {
	names   []string
	samples [][]float64
}

// Summary computes posterior stats for the named parameters, or all of them
// when none are given.
func (ps *posteriorSummary) Summary(vars ...string) ([]ports.PosteriorStat, error) {
	indices, err := ps.resolve(vars)
	if err != nil {
		return nil, err
	}

	out := make([]ports.PosteriorStat, 0, len(indices))
	for _, j := range indices {
		data := ps.samples[j]

		mean, err := stats.Mean(data)
		if err != nil {
			return nil, fmt.Errorf("failed to summarize %s: %w", ps.names[j], err)
		}
		median, err := stats.Median(data)
		if err != nil {
			return nil, fmt.Errorf("failed to summarize %s: %w", ps.names[j], err)
		}
		sd, err := stats.StandardDeviation(data)
		if err != nil {
			return nil, fmt.Errorf("failed to summarize %s: %w", ps.names[j], err)
		}
		lower, err := stats.Percentile(data, 2.5)
		if err != nil {
			return nil, fmt.Errorf("failed to summarize %s: %w", ps.names[j], err)
		}
		upper, err := stats.Percentile(data, 97.5)
		if err != nil {
			return nil, fmt.Errorf("failed to summarize %s: %w", ps.names[j], err)
		}

		out = append(out, ports.PosteriorStat{
			Name:    ps.names[j],
			Mean:    mean,
			Median:  median,
			SD:      sd,
			CILower: lower,
			CIUpper: upper,
		})
	}

	return out, nil
}

// Plot renders a text panel for the requested kind.
func (ps *posteriorSummary) Plot(kind ports.PlotKind) (string, error) {
	switch kind {
	case ports.PlotTrace:
		return ps.plotTrace(), nil
	case ports.PlotDensity:
		return ps.plotDensity(), nil
	case ports.PlotForest:
		return ps.plotForest(), nil
	default:
		return "", fmt.Errorf("%w: plot kind %d", core.ErrUnsupportedMethod, int(kind))
	}
}

// resolve maps requested names to sample indices; empty means all.
func (ps *posteriorSummary) resolve(vars []string) ([]int, error) {
	if len(vars) == 0 {
		indices := make([]int, len(ps.names))
		for j := range indices {
			indices[j] = j
		}
		return indices, nil
	}

	indices := make([]int, 0, len(vars))
	for _, name := range vars {
		found := -1
		for j, have := range ps.names {
			if have == name {
				found = j
				break
			}
		}
		if found == -1 {
			return nil, fmt.Errorf("unknown parameter %q (have: %s)", name, strings.Join(ps.names, ", "))
		}
		indices = append(indices, found)
	}
	return indices, nil
}

const traceGlyphs = " .:-=+*#@"

// plotTrace renders each parameter as a bucket-averaged strip across the
// pooled draws.
func (ps *posteriorSummary) plotTrace() string {
	var b strings.Builder
	b.WriteString("Trace\n")

	for j, name := range ps.names {
		data := ps.samples[j]
		lo, hi := seriesRange(data)

		b.WriteString(fmt.Sprintf("%-12s [%.4g .. %.4g]\n  ", name, lo, hi))

		width := PLOT_WIDTH
		if len(data) < width {
			width = len(data)
		}
		per := len(data) / width
		for c := 0; c < width; c++ {
			sum := 0.0
			for i := c * per; i < (c+1)*per; i++ {
				sum += data[i]
			}
			avg := sum / float64(per)
			b.WriteByte(glyph(avg, lo, hi))
		}
		b.WriteString("\n")
	}

	return b.String()
}

// plotDensity renders a horizontal histogram per parameter.
func (ps *posteriorSummary) plotDensity() string {
	var b strings.Builder
	b.WriteString("Density\n")

	for j, name := range ps.names {
		data := ps.samples[j]
		lo, hi := seriesRange(data)
		b.WriteString(name + "\n")

		counts := make([]int, DENSITY_BINS)
		span := hi - lo
		if span == 0 {
			span = 1
		}
		for _, v := range data {
			bin := int(float64(DENSITY_BINS) * (v - lo) / span)
			if bin >= DENSITY_BINS {
				bin = DENSITY_BINS - 1
			}
			if bin < 0 {
				bin = 0
			}
			counts[bin]++
		}
		maxCount := 0
		for _, c := range counts {
			if c > maxCount {
				maxCount = c
			}
		}

		for bin, count := range counts {
			center := lo + (float64(bin)+0.5)*span/float64(DENSITY_BINS)
			bar := 0
			if maxCount > 0 {
				bar = count * DENSITY_BAR_WIDTH / maxCount
			}
			b.WriteString(fmt.Sprintf("  %10.4g |%s\n", center, strings.Repeat("#", bar)))
		}
	}

	return b.String()
}

// plotForest renders each parameter's 95% credible interval with its median.
func (ps *posteriorSummary) plotForest() string {
	var b strings.Builder
	b.WriteString("Forest (95% credible)\n")

	for j, name := range ps.names {
		data := ps.samples[j]
		lo, hi := seriesRange(data)
		span := hi - lo
		if span == 0 {
			span = 1
		}

		lower, _ := stats.Percentile(data, 2.5)
		upper, _ := stats.Percentile(data, 97.5)
		median, _ := stats.Median(data)

		pos := func(v float64) int {
			p := int(float64(PLOT_WIDTH-1) * (v - lo) / span)
			if p < 0 {
				p = 0
			}
			if p > PLOT_WIDTH-1 {
				p = PLOT_WIDTH - 1
			}
			return p
		}

		line := []byte(strings.Repeat(" ", PLOT_WIDTH))
		for c := pos(lower); c <= pos(upper); c++ {
			line[c] = '='
		}
		line[pos(lower)] = '['
		line[pos(upper)] = ']'
		line[pos(median)] = '|'

		b.WriteString(fmt.Sprintf("%-12s %s  %.4g [%.4g, %.4g]\n", name, string(line), median, lower, upper))
	}

	return b.String()
}

func seriesRange(data []float64) (float64, float64) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range data {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}

func glyph(v, lo, hi float64) byte {
	span := hi - lo
	if span == 0 {
		return traceGlyphs[len(traceGlyphs)/2]
	}
	level := int(float64(len(traceGlyphs)-1) * (v - lo) / span)
	if level < 0 {
		level = 0
	}
	if level >= len(traceGlyphs) {
		level = len(traceGlyphs) - 1
	}
	return traceGlyphs[level]
}
