package chart

import (
	"fmt"

	"github.com/sakif/gitviz/internal/apperror"
	"github.com/sakif/gitviz/internal/model"
)

// Metric selects which Stat column a pie chart shows.
type Metric string

const (
	Commits   Metric = "Commits"
	Additions Metric = "Additions"
	Deletions Metric = "Deletions"
)

// ParseMetric accepts the metric names case-sensitively as used in labels,
// plus their lower-case forms for query parameters.
func ParseMetric(s string) (Metric, error) {
	switch s {
	case "Commits", "commits":
		return Commits, nil
	case "Additions", "additions":
		return Additions, nil
	case "Deletions", "deletions":
		return Deletions, nil
	default:
		return "", apperror.ValidationFailed("metric", fmt.Sprintf("unknown metric %q", s))
	}
}

func (m Metric) of(s model.Stat) int {
	switch m {
	case Additions:
		return s.NumberOfAdditions
	case Deletions:
		return s.NumberOfDeletions
	default:
		return s.NumberOfCommits
	}
}

// Breakdown builds a pie with one slice per stat row. Slice i is coloured
// ColorAt(i), so colours are stable for as long as the row order is.
func Breakdown(stats []model.Stat, metric Metric) Series[PieDataset] {
	ds := PieDataset{
		Label:           "# of " + string(metric),
		Data:            make([]int, 0, len(stats)),
		BorderColor:     make([]string, 0, len(stats)),
		BackgroundColor: make([]string, 0, len(stats)),
	}
	labels := make([]string, 0, len(stats))

	for i, s := range stats {
		c := ColorAt(i)
		labels = append(labels, s.Committer)
		ds.Data = append(ds.Data, metric.of(s))
		ds.BorderColor = append(ds.BorderColor, c.Border)
		ds.BackgroundColor = append(ds.BackgroundColor, c.Background)
	}

	return Series[PieDataset]{Labels: labels, Datasets: []PieDataset{ds}}
}

// Breakdowns is the committer stats page: one pie per metric.
type Breakdowns struct {
	Commits   Series[PieDataset] `json:"commits"`
	Additions Series[PieDataset] `json:"additions"`
	Deletions Series[PieDataset] `json:"deletions"`
}

func AllBreakdowns(stats []model.Stat) Breakdowns {
	return Breakdowns{
		Commits:   Breakdown(stats, Commits),
		Additions: Breakdown(stats, Additions),
		Deletions: Breakdown(stats, Deletions),
	}
}
