package postgres

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/MrSnakeDoc/serpwatch/internal/domain"
)

// jsonColumn stores any value as JSONB.
type jsonColumn[T any] struct {
	V T
}

func (j jsonColumn[T]) Value() (driver.Value, error) {
	b, err := json.Marshal(j.V)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (j *jsonColumn[T]) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		var zero T
		j.V = zero
		return nil
	case []byte:
		return json.Unmarshal(v, &j.V)
	case string:
		return json.Unmarshal([]byte(v), &j.V)
	default:
		return fmt.Errorf("unsupported jsonb source %T", value)
	}
}

type checkRunRow struct {
	ID            string                          `db:"id"`
	BrandID       string                          `db:"brand_id"`
	BrandCode     string                          `db:"brand_code"`
	Query         string                          `db:"query"`
	CheckedAt     time.Time                       `db:"checked_at"`
	Trigger       string                          `db:"trigger"`
	BestOwnRank   *int                            `db:"best_own_rank"`
	OwnCount      int                             `db:"own_count"`
	UnknownCount  int                             `db:"unknown_count"`
	Results       jsonColumn[[]domain.ResultItem] `db:"results"`
	KeyID         string                          `db:"key_id"`
	OK            bool                            `db:"ok"`
	FailureReason string                          `db:"failure_reason"`
}

func checkRunToRow(r domain.CheckRun) checkRunRow {
	results := r.Results
	if results == nil {
		results = []domain.ResultItem{}
	}
	return checkRunRow{
		ID:            r.ID,
		BrandID:       r.BrandID,
		BrandCode:     r.BrandCode,
		Query:         r.Query,
		CheckedAt:     r.CheckedAt,
		Trigger:       string(r.Trigger),
		BestOwnRank:   r.BestOwnRank,
		OwnCount:      r.OwnCount,
		UnknownCount:  r.UnknownCount,
		Results:       jsonColumn[[]domain.ResultItem]{V: results},
		KeyID:         r.KeyIDUsed,
		OK:            r.OK,
		FailureReason: r.FailureReason,
	}
}

func (row checkRunRow) toDomain() domain.CheckRun {
	return domain.CheckRun{
		ID:            row.ID,
		BrandID:       row.BrandID,
		BrandCode:     row.BrandCode,
		Query:         row.Query,
		CheckedAt:     row.CheckedAt,
		Trigger:       domain.Trigger(row.Trigger),
		BestOwnRank:   row.BestOwnRank,
		OwnCount:      row.OwnCount,
		UnknownCount:  row.UnknownCount,
		Results:       row.Results.V,
		KeyIDUsed:     row.KeyID,
		OK:            row.OK,
		FailureReason: row.FailureReason,
	}
}

type backupRunRow struct {
	ID               string                                 `db:"id"`
	Source           string                                 `db:"source"`
	Status           string                                 `db:"status"`
	StartedAt        time.Time                              `db:"started_at"`
	FinishedAt       time.Time                              `db:"finished_at"`
	TimeframeDays    int                                    `db:"timeframe_days"`
	Format           string                                 `db:"format"`
	ChatTargets      jsonColumn[[]string]                   `db:"chat_targets"`
	TotalCollections int                                    `db:"total_collections"`
	TotalRecords     int                                    `db:"total_records"`
	TotalFiles       int                                    `db:"total_files"`
	Summary          jsonColumn[[]domain.CollectionSummary] `db:"summary"`
	Error            string                                 `db:"error"`
}

func backupRunToRow(r domain.BackupRun) backupRunRow {
	targets := r.ChatTargets
	if targets == nil {
		targets = []string{}
	}
	summary := r.Summary
	if summary == nil {
		summary = []domain.CollectionSummary{}
	}
	return backupRunRow{
		ID:               r.ID,
		Source:           string(r.Source),
		Status:           string(r.Status),
		StartedAt:        r.StartedAt,
		FinishedAt:       r.FinishedAt,
		TimeframeDays:    r.TimeframeDays,
		Format:           string(r.Format),
		ChatTargets:      jsonColumn[[]string]{V: targets},
		TotalCollections: r.TotalCollections,
		TotalRecords:     r.TotalRecords,
		TotalFiles:       r.TotalFiles,
		Summary:          jsonColumn[[]domain.CollectionSummary]{V: summary},
		Error:            r.Error,
	}
}

func (row backupRunRow) toDomain() domain.BackupRun {
	return domain.BackupRun{
		ID:               row.ID,
		Source:           domain.BackupSource(row.Source),
		Status:           domain.RunStatus(row.Status),
		StartedAt:        row.StartedAt,
		FinishedAt:       row.FinishedAt,
		TimeframeDays:    row.TimeframeDays,
		Format:           domain.Format(row.Format),
		ChatTargets:      row.ChatTargets.V,
		TotalCollections: row.TotalCollections,
		TotalRecords:     row.TotalRecords,
		TotalFiles:       row.TotalFiles,
		Summary:          row.Summary.V,
		Error:            row.Error,
	}
}
