package models

import "time"

// NoMatch is the identifier reported when no catalog entry survives matching.
const NoMatch = "no match"

// MatchResult is the best-scoring catalog entry for a query.
type MatchResult struct {
	// ID is the reported identity with any mirrored-variant suffix removed.
	ID string `json:"id"`
	// EntryID is the catalog entry that produced the match.
	EntryID     string `json:"entry_id"`
	GoodMatches int    `json:"good_matches"`
	// MatchRatio is good matches divided by the entry's descriptor count, as a percentage.
	MatchRatio float64 `json:"match_ratio"`
}

// IdentifyResult is the outcome of one lookup. Matched is false for
// "no match" outcomes, in which case ID is NoMatch and Reason says why.
type IdentifyResult struct {
	ID          string        `json:"id"`
	Matched     bool          `json:"matched"`
	EntryID     string        `json:"entry_id,omitempty"`
	GoodMatches int           `json:"good_matches"`
	MatchRatio  float64       `json:"match_ratio"`
	Reason      string        `json:"reason,omitempty"`
	Elapsed     time.Duration `json:"elapsed_ns"`
	Candidates  int           `json:"candidates"`
}

// ElapsedSeconds returns the elapsed time in seconds.
func (r *IdentifyResult) ElapsedSeconds() float64 {
	return r.Elapsed.Seconds()
}
