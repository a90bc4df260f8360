package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/MrSnakeDoc/serpwatch/internal/domain"
)

var ErrUnknownCollection = errors.New("unknown collection")

// Store is the relational history: catalog, check runs and backup runs.
type Store struct {
	db *sqlx.DB
}

func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ListBrands returns the enabled brands ordered by code.
func (s *Store) ListBrands(ctx context.Context) ([]domain.Brand, error) {
	brands := []domain.Brand{}
	err := s.db.SelectContext(ctx, &brands, `
		SELECT id, code, name, query, disabled, created_at, updated_at
		FROM brands
		WHERE disabled = FALSE
		ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("failed to list brands: %w", err)
	}
	return brands, nil
}

// ListTrackedDomains returns the enabled domains of enabled brands.
func (s *Store) ListTrackedDomains(ctx context.Context) ([]domain.TrackedDomain, error) {
	domains := []domain.TrackedDomain{}
	err := s.db.SelectContext(ctx, &domains, `
		SELECT d.id, d.brand_id, d.raw_domain, d.host_key, d.root_key, d.is_alias_token,
		       d.disabled, d.created_at, d.updated_at
		FROM tracked_domains d
		JOIN brands b ON b.id = d.brand_id
		WHERE d.disabled = FALSE AND b.disabled = FALSE
		ORDER BY d.seq`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tracked domains: %w", err)
	}
	return domains, nil
}

// UpsertCatalog makes the stored catalog match brands and domains. Rows that
// are not part of the new catalog are disabled, never deleted, so that run
// history keeps resolving.
func (s *Store) UpsertCatalog(ctx context.Context, brands []domain.Brand, domains []domain.TrackedDomain) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin catalog transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	brandIDs := make([]string, 0, len(brands))
	for _, b := range brands {
		brandIDs = append(brandIDs, b.ID)
		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO brands (id, code, name, query, disabled, created_at, updated_at)
			VALUES (:id, :code, :name, :query, FALSE, NOW(), NOW())
			ON CONFLICT (id) DO UPDATE SET
				code = EXCLUDED.code,
				name = EXCLUDED.name,
				query = EXCLUDED.query,
				disabled = FALSE,
				updated_at = NOW()`, b)
		if err != nil {
			return fmt.Errorf("failed to upsert brand %s: %w", b.Code, err)
		}
	}

	domainIDs := make([]string, 0, len(domains))
	for _, d := range domains {
		domainIDs = append(domainIDs, d.ID)
		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO tracked_domains (id, brand_id, raw_domain, host_key, root_key, is_alias_token, disabled, created_at, updated_at)
			VALUES (:id, :brand_id, :raw_domain, :host_key, :root_key, :is_alias_token, FALSE, NOW(), NOW())
			ON CONFLICT (id) DO UPDATE SET
				host_key = EXCLUDED.host_key,
				root_key = EXCLUDED.root_key,
				is_alias_token = EXCLUDED.is_alias_token,
				disabled = FALSE,
				updated_at = NOW()`, d)
		if err != nil {
			return fmt.Errorf("failed to upsert domain %s: %w", d.RawDomain, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE tracked_domains SET disabled = TRUE, updated_at = NOW()
		WHERE disabled = FALSE AND NOT (id = ANY($1))`, pq.Array(domainIDs)); err != nil {
		return fmt.Errorf("failed to disable removed domains: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE brands SET disabled = TRUE, updated_at = NOW()
		WHERE disabled = FALSE AND NOT (id = ANY($1))`, pq.Array(brandIDs)); err != nil {
		return fmt.Errorf("failed to disable removed brands: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit catalog: %w", err)
	}
	return nil
}

func (s *Store) InsertCheckRun(ctx context.Context, run domain.CheckRun) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO check_runs (id, brand_id, brand_code, query, checked_at, trigger, best_own_rank,
		                        own_count, unknown_count, results, key_id, ok, failure_reason)
		VALUES (:id, :brand_id, :brand_code, :query, :checked_at, :trigger, :best_own_rank,
		        :own_count, :unknown_count, :results, :key_id, :ok, :failure_reason)`, checkRunToRow(run))
	if err != nil {
		return fmt.Errorf("failed to insert check run: %w", err)
	}
	return nil
}

// RecentCheckRuns returns runs checked at or after since, newest first. An
// empty trigger matches every trigger.
func (s *Store) RecentCheckRuns(ctx context.Context, since time.Time, trigger domain.Trigger) ([]domain.CheckRun, error) {
	var rows []checkRunRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, brand_id, brand_code, query, checked_at, trigger, best_own_rank,
		       own_count, unknown_count, results, key_id, ok, failure_reason
		FROM check_runs
		WHERE checked_at >= $1 AND ($2::text = '' OR trigger = $2::text)
		ORDER BY checked_at DESC
		LIMIT 5000`, since, string(trigger))
	if err != nil {
		return nil, fmt.Errorf("failed to list check runs: %w", err)
	}

	runs := make([]domain.CheckRun, 0, len(rows))
	for _, r := range rows {
		runs = append(runs, r.toDomain())
	}
	return runs, nil
}

// MonthlyKeyUsage counts upstream requests per key since monthStart.
func (s *Store) MonthlyKeyUsage(ctx context.Context, monthStart time.Time) (map[string]int64, error) {
	var rows []struct {
		KeyID string `db:"key_id"`
		Total int64  `db:"total"`
	}
	err := s.db.SelectContext(ctx, &rows, `
		SELECT key_id, COUNT(*) AS total
		FROM check_runs
		WHERE key_id <> '' AND checked_at >= $1
		GROUP BY key_id`, monthStart)
	if err != nil {
		return nil, fmt.Errorf("failed to count key usage: %w", err)
	}

	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.KeyID] = r.Total
	}
	return out, nil
}

// DeleteCheckRunsBefore removes check runs older than cutoff.
func (s *Store) DeleteCheckRunsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM check_runs WHERE checked_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete check runs: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) InsertBackupRun(ctx context.Context, run domain.BackupRun) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO backup_runs (id, source, status, started_at, finished_at, timeframe_days, format,
		                         chat_targets, total_collections, total_records, total_files, summary, error)
		VALUES (:id, :source, :status, :started_at, :finished_at, :timeframe_days, :format,
		        :chat_targets, :total_collections, :total_records, :total_files, :summary, :error)`, backupRunToRow(run))
	if err != nil {
		return fmt.Errorf("failed to insert backup run: %w", err)
	}
	return nil
}

func (s *Store) RecentBackupRuns(ctx context.Context, limit int) ([]domain.BackupRun, error) {
	var rows []backupRunRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, source, status, started_at, finished_at, timeframe_days, format,
		       chat_targets, total_collections, total_records, total_files, summary, error
		FROM backup_runs
		ORDER BY started_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list backup runs: %w", err)
	}

	runs := make([]domain.BackupRun, 0, len(rows))
	for _, r := range rows {
		runs = append(runs, r.toDomain())
	}
	return runs, nil
}

// Count returns how many rows of collection match filter.
func (s *Store) Count(ctx context.Context, collection string, filter domain.ExportFilter) (int64, error) {
	table, err := lookupTable(collection)
	if err != nil {
		return 0, err
	}

	where, args := table.where(filter, 0)
	var n int64
	if err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM "+table.name+" t"+where, args...); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", collection, err)
	}
	return n, nil
}

// FindBatch returns up to limit rows of collection after the insertion key
// afterKey, as JSON documents ordered by that key.
func (s *Store) FindBatch(ctx context.Context, collection string, filter domain.ExportFilter, afterKey int64, limit int) ([]domain.ExportRecord, error) {
	table, err := lookupTable(collection)
	if err != nil {
		return nil, err
	}

	where, args := table.where(filter, afterKey)
	args = append(args, limit)
	query := fmt.Sprintf(
		"SELECT t.seq AS key, row_to_json(t)::text AS doc FROM %s t%s ORDER BY t.seq LIMIT $%d",
		table.name, where, len(args))

	var rows []struct {
		Key int64  `db:"key"`
		Doc string `db:"doc"`
	}
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to read %s batch: %w", collection, err)
	}

	out := make([]domain.ExportRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.ExportRecord{Key: r.Key, Doc: []byte(r.Doc)})
	}
	return out, nil
}
