package chart

import (
	"github.com/montanaflynn/stats"

	"github.com/sakif/gitviz/internal/model"
)

// Summary condenses a branch history into headline numbers. Churn is
// additions plus deletions of a single commit. P90Churn uses the nearest
// rank method, so it is always the churn of an actual commit.
type Summary struct {
	Commits      int     `json:"commits"`
	MergeCommits int     `json:"mergeCommits"`
	Authors      int     `json:"authors"`
	Additions    int     `json:"additions"`
	Deletions    int     `json:"deletions"`
	NetChange    int     `json:"netChange"`
	MeanChurn    float64 `json:"meanChurn"`
	MedianChurn  float64 `json:"medianChurn"`
	P90Churn     float64 `json:"p90Churn"`
}

// Summarize computes a Summary. An empty history yields the zero Summary.
func Summarize(commits []model.Commit) Summary {
	var sum Summary
	if len(commits) == 0 {
		return sum
	}

	churn := make(stats.Float64Data, 0, len(commits))
	authors := make(map[string]struct{})
	for _, c := range commits {
		sum.Commits++
		if c.IsMergeCommit {
			sum.MergeCommits++
		}
		sum.Additions += c.Additions
		sum.Deletions += c.Deletions
		authors[c.Author] = struct{}{}
		churn = append(churn, float64(c.Additions+c.Deletions))
	}
	sum.Authors = len(authors)
	sum.NetChange = sum.Additions - sum.Deletions

	// The input is non-empty, which is the only error these can return.
	sum.MeanChurn, _ = churn.Mean()
	sum.MedianChurn, _ = churn.Median()
	sum.P90Churn, _ = churn.PercentileNearestRank(90)
	return sum
}
