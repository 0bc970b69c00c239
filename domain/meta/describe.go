package meta

import (
	"fmt"

	"github.com/montanaflynn/stats"
)

// VariableSummary is one row of a dataset profile.
type VariableSummary struct {
	Name   string  `json:"name"`
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	StdDev float64 `json:"std_dev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Q25    float64 `json:"q25"`
	Q75    float64 `json:"q75"`
}

// Describe profiles every variable in the dataset: each outcome column,
// the variance and sample-size columns when present, and each non-intercept
// design column.
func (d *Dataset) Describe() []VariableSummary {
	var rows []VariableSummary

	multi := d.NDatasets() > 1
	for j := 0; j < d.NDatasets(); j++ {
		rows = append(rows, summarize(indexedName("y", j, multi), d.YColumn(j)))
		if d.HasV() {
			rows = append(rows, summarize(indexedName("v", j, multi), d.VColumn(j)))
		}
		if d.HasN() {
			rows = append(rows, summarize(indexedName("n", j, multi), d.NColumn(j)))
		}
	}
	for p := 0; p < d.NPredictors(); p++ {
		if d.Names[p] == "intercept" {
			continue
		}
		rows = append(rows, summarize(d.Names[p], column(d.X, p)))
	}
	return rows
}

func indexedName(base string, j int, multi bool) string {
	if !multi {
		return base
	}
	return fmt.Sprintf("%s[%d]", base, j)
}

func summarize(name string, data []float64) VariableSummary {
	mean, _ := stats.Mean(data)
	median, _ := stats.Median(data)
	stdDev, _ := stats.StandardDeviation(data)
	min, _ := stats.Min(data)
	max, _ := stats.Max(data)
	q25, _ := stats.Percentile(data, 25)
	q75, _ := stats.Percentile(data, 75)

	return VariableSummary{
		Name:   name,
		Count:  len(data),
		Mean:   mean,
		Median: median,
		StdDev: stdDev,
		Min:    min,
		Max:    max,
		Q25:    q25,
		Q75:    q75,
	}
}
