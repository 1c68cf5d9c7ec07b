package engine

// ScoreEntry is the transient per-entry result of a settlement pass.
type ScoreEntry struct {
	EntryID    string `json:"entry_id"`
	Score      int64  `json:"score"`
	MatchCount int    `json:"match_count"`
}
