package domain

import "time"

// Trigger tells how a check sweep was started.
type Trigger string

const (
	TriggerManual Trigger = "manual"
	TriggerAuto   Trigger = "auto"
)

// SerpItem is one organic result returned by the SERP backend.
type SerpItem struct {
	Rank    int    `json:"rank"`
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet,omitempty"`
}

// ResultItem is a classified SERP result stored in a CheckRun.
type ResultItem struct {
	Rank            int       `json:"rank"`
	Title           string    `json:"title,omitempty"`
	Link            string    `json:"link"`
	Host            string    `json:"host"`
	MatchedDomainID string    `json:"matched_domain_id,omitempty"`
	MatchType       MatchType `json:"match_type"`
	Badge           Badge     `json:"badge"`
}

// CheckRun is the immutable outcome of checking one brand during a sweep.
type CheckRun struct {
	ID        string    `json:"id"`
	BrandID   string    `json:"brand_id"`
	BrandCode string    `json:"brand_code"`
	Query     string    `json:"query"`
	CheckedAt time.Time `json:"checked_at"`
	Trigger   Trigger   `json:"trigger"`

	// BestOwnRank is nil when no OWN result was found.
	BestOwnRank  *int         `json:"best_own_rank,omitempty"`
	OwnCount     int          `json:"own_count"`
	UnknownCount int          `json:"unknown_count"`
	Results      []ResultItem `json:"results"`

	KeyIDUsed     string `json:"key_id_used,omitempty"`
	OK            bool   `json:"ok"`
	FailureReason string `json:"failure_reason,omitempty"`
}

// BuildResults classifies ordered SERP items against a lookup and fills the
// rank counters of the run.
func (r *CheckRun) BuildResults(items []SerpItem, lookup *Lookup) {
	r.Results = make([]ResultItem, 0, len(items))
	r.BestOwnRank = nil
	r.OwnCount, r.UnknownCount = 0, 0

	for i, item := range items {
		rank := item.Rank
		if rank <= 0 {
			rank = i + 1
		}
		host := NormalizeHost(item.Link)
		m := Classify(host, lookup)

		res := ResultItem{
			Rank:      rank,
			Title:     item.Title,
			Link:      item.Link,
			Host:      host,
			MatchType: m.Type,
			Badge:     m.Badge(),
		}
		if m.Domain != nil {
			res.MatchedDomainID = m.Domain.ID
			r.OwnCount++
			if r.BestOwnRank == nil || rank < *r.BestOwnRank {
				best := rank
				r.BestOwnRank = &best
			}
		} else {
			r.UnknownCount++
		}
		r.Results = append(r.Results, res)
	}
}

// BrandFailure records why a brand failed during a sweep.
type BrandFailure struct {
	BrandID   string `json:"brand_id"`
	BrandCode string `json:"brand_code"`
	Reason    string `json:"reason"`
}

// SweepSummary is the bookkeeping of the last auto-check sweep.
type SweepSummary struct {
	Trigger    Trigger        `json:"trigger"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Total      int            `json:"total"`
	OKCount    int            `json:"ok_count"`
	FailCount  int            `json:"fail_count"`
	Skipped    int            `json:"skipped"`
	Stopped    bool           `json:"stopped"`
	Failures   []BrandFailure `json:"failures,omitempty"`
}

// BackupSource tells who started a backup.
type BackupSource string

const (
	BackupSourceManual    BackupSource = "manual"
	BackupSourceScheduler BackupSource = "scheduler"
)

// RunStatus is the outcome of the last scheduled job.
type RunStatus string

const (
	RunStatusNone    RunStatus = ""
	RunStatusSuccess RunStatus = "success"
	RunStatusFailed  RunStatus = "failed"
)

// CollectionSummary counts what a backup exported for one collection.
type CollectionSummary struct {
	Collection string `json:"collection"`
	Records    int    `json:"records"`
	Files      int    `json:"files"`
}

// BackupRun is the immutable record of one backup execution.
type BackupRun struct {
	ID               string              `json:"id"`
	Source           BackupSource        `json:"source"`
	Status           RunStatus           `json:"status"`
	StartedAt        time.Time           `json:"started_at"`
	FinishedAt       time.Time           `json:"finished_at"`
	TimeframeDays    int                 `json:"timeframe_days"`
	Format           Format              `json:"format"`
	ChatTargets      []string            `json:"chat_targets"`
	TotalCollections int                 `json:"total_collections"`
	TotalRecords     int                 `json:"total_records"`
	TotalFiles       int                 `json:"total_files"`
	Summary          []CollectionSummary `json:"summary"`
	Error            string              `json:"error,omitempty"`
}
