// Package chart folds raw commit, committer and stat lists into labelled
// series ready for a charting front end.
//
// Every function here is pure: it never mutates its input, never returns an
// error and always builds a fresh series. Empty input yields empty (but
// non-nil) labels and data, so the JSON is [] rather than null.
package chart

import (
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/sakif/gitviz/internal/model"
)

// DefaultLabelLayout formats the per-commit x-axis labels.
const DefaultLabelLayout = "2006-01-02 15:04"

// Value is one data point. The zero Value is a gap and encodes as null.
type Value struct {
	N     int
	Valid bool
}

// Int returns a present data point.
func Int(n int) Value {
	return Value{N: n, Valid: true}
}

func (v Value) MarshalJSON() ([]byte, error) {
	if !v.Valid {
		return []byte("null"), nil
	}
	return strconv.AppendInt(nil, int64(v.N), 10), nil
}

// LineDataset is one line of a time-series chart.
type LineDataset struct {
	Label           string  `json:"label"`
	Data            []Value `json:"data"`
	BorderColor     string  `json:"borderColor"`
	BackgroundColor string  `json:"backgroundColor"`
}

// PieDataset carries one colour per slice.
type PieDataset struct {
	Label           string   `json:"label"`
	Data            []int    `json:"data"`
	BorderColor     []string `json:"borderColor"`
	BackgroundColor []string `json:"backgroundColor"`
}

// Series is the display model for one chart: one label per point and any
// number of datasets, each with exactly len(Labels) points.
type Series[D any] struct {
	Labels   []string `json:"labels"`
	Datasets []D      `json:"datasets"`
}

func lineDataset(label string, c Color, n int) LineDataset {
	return LineDataset{
		Label:           label,
		Data:            make([]Value, 0, n),
		BorderColor:     c.Border,
		BackgroundColor: c.Background,
	}
}

// Transformer formats labels. The zero value uses DefaultLabelLayout in UTC
// so output does not depend on the host's time zone.
type Transformer struct {
	Layout   string
	Location *time.Location
}

func (t Transformer) label(ts time.Time) string {
	layout := t.Layout
	if layout == "" {
		layout = DefaultLabelLayout
	}
	loc := t.Location
	if loc == nil {
		loc = time.UTC
	}
	return ts.In(loc).Format(layout)
}

func (t Transformer) labels(sorted []model.Commit) []string {
	out := make([]string, 0, len(sorted))
	for _, c := range sorted {
		out = append(out, t.label(c.Timestamp))
	}
	return out
}

// SortCommits returns a copy of commits ordered by ascending timestamp.
// Equal timestamps keep their input order.
func SortCommits(commits []model.Commit) []model.Commit {
	sorted := slices.Clone(commits)
	slices.SortStableFunc(sorted, func(a, b model.Commit) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
	return sorted
}

// Changes plots additions and deletions per commit.
func (t Transformer) Changes(commits []model.Commit) Series[LineDataset] {
	return t.changes(SortCommits(commits))
}

func (t Transformer) changes(sorted []model.Commit) Series[LineDataset] {
	additions := lineDataset("Additions", Green, len(sorted))
	deletions := lineDataset("Deletions", Red, len(sorted))
	for _, c := range sorted {
		additions.Data = append(additions.Data, Int(c.Additions))
		deletions.Data = append(deletions.Data, Int(c.Deletions))
	}
	return Series[LineDataset]{
		Labels:   t.labels(sorted),
		Datasets: []LineDataset{additions, deletions},
	}
}

// LinesOfCode plots the analyser's lines-of-code figure per commit.
// Commits the analyser has not measured become gaps.
func (t Transformer) LinesOfCode(commits []model.Commit) Series[LineDataset] {
	return t.linesOfCode(SortCommits(commits))
}

func (t Transformer) linesOfCode(sorted []model.Commit) Series[LineDataset] {
	loc := lineDataset("Total lines of code", Blue, len(sorted))
	for _, c := range sorted {
		if c.LinesOfCodeOverall == nil {
			loc.Data = append(loc.Data, Value{})
			continue
		}
		loc.Data = append(loc.Data, Int(*c.LinesOfCodeOverall))
	}
	return Series[LineDataset]{
		Labels:   t.labels(sorted),
		Datasets: []LineDataset{loc},
	}
}

// LinesOfCodeAggregated plots the running sum of additions minus deletions,
// starting from 0 before the first commit. The last point is therefore the
// net change over the whole branch.
func (t Transformer) LinesOfCodeAggregated(commits []model.Commit) Series[LineDataset] {
	return t.linesOfCodeAggregated(SortCommits(commits))
}

func (t Transformer) linesOfCodeAggregated(sorted []model.Commit) Series[LineDataset] {
	agg := lineDataset("Total lines of code", Blue, len(sorted))
	running := 0
	for _, c := range sorted {
		running += c.Additions - c.Deletions
		agg.Data = append(agg.Data, Int(running))
	}
	return Series[LineDataset]{
		Labels:   t.labels(sorted),
		Datasets: []LineDataset{agg},
	}
}

// Overview is everything the branch overview page draws.
// Messages[i] is the tooltip for point i of every series.
type Overview struct {
	Changes               Series[LineDataset] `json:"changes"`
	LinesOfCode           Series[LineDataset] `json:"linesOfCode"`
	LinesOfCodeAggregated Series[LineDataset] `json:"linesOfCodeAggregated"`
	Messages              []string            `json:"messages"`
}

// Overview sorts once and derives all three series from the same order.
func (t Transformer) Overview(commits []model.Commit) Overview {
	sorted := SortCommits(commits)
	messages := make([]string, 0, len(sorted))
	for _, c := range sorted {
		messages = append(messages, fmt.Sprintf("%s\n🖥️ %s", c.Message, c.Author))
	}
	return Overview{
		Changes:               t.changes(sorted),
		LinesOfCode:           t.linesOfCode(sorted),
		LinesOfCodeAggregated: t.linesOfCodeAggregated(sorted),
		Messages:              messages,
	}
}

// CommitterSeries is one committer's slice of the timeline.
type CommitterSeries struct {
	Committer string              `json:"committer"`
	Changes   Series[LineDataset] `json:"changes"`
}

// CommitterTimeline partitions commits by exact author match, one series
// per committer in committer order.
//
// This is O(n·m) for n commits and m committers: every committer scans the
// full list. Committers with no commits still get an (empty) series, and
// commits whose author is not listed appear in no series.
func (t Transformer) CommitterTimeline(commits []model.Commit, committers []model.Committer) []CommitterSeries {
	out := make([]CommitterSeries, 0, len(committers))
	for _, committer := range committers {
		var own []model.Commit
		for _, c := range commits {
			if c.Author == committer.Name {
				own = append(own, c)
			}
		}
		out = append(out, CommitterSeries{
			Committer: committer.Name,
			Changes:   t.Changes(own),
		})
	}
	return out
}
