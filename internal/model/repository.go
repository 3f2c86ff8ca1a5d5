package model

import "time"

// Repository is a git repository registered with the analyser.
type Repository struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

type Branch struct {
	Name string `json:"name"`
}

// Commit is one entry of a branch's history.
//
// The remote history is append-only; the dashboard treats every fetched
// list as a read-only snapshot. LinesOfCodeOverall is optional because the
// analyser only fills it in once the repository has been mined.
type Commit struct {
	ID                 string    `json:"id"`
	Message            string    `json:"message"`
	Author             string    `json:"author"`
	Timestamp          time.Time `json:"timestamp"`
	ParentIDs          []string  `json:"parentIds"`
	IsMergeCommit      bool      `json:"isMergeCommit"`
	Additions          int       `json:"additions"`
	Deletions          int       `json:"deletions"`
	LinesOfCodeOverall *int      `json:"linesOfCodeOverall,omitempty"`
}

type Committer struct {
	Name string `json:"name"`
}

// Stat is a pre-aggregated summary row: one per committer (or assignment
// key when mapped by assignments) per branch.
type Stat struct {
	Committer         string `json:"committer"`
	NumberOfCommits   int    `json:"numberOfCommits"`
	NumberOfAdditions int    `json:"numberOfAdditions"`
	NumberOfDeletions int    `json:"numberOfDeletions"`
}
