package backup

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MrSnakeDoc/serpwatch/internal/domain"
	"github.com/MrSnakeDoc/serpwatch/internal/logger"
	"github.com/MrSnakeDoc/serpwatch/internal/telegram"
)

// DefaultRowsPerFile bounds how many rows go into one file.
const DefaultRowsPerFile = 500

// Source is the data store being exported.
type Source interface {
	Count(ctx context.Context, collection string, filter domain.ExportFilter) (int64, error)
	FindBatch(ctx context.Context, collection string, filter domain.ExportFilter, afterKey int64, limit int) ([]domain.ExportRecord, error)
}

// Options describe one backup execution.
type Options struct {
	Source        domain.BackupSource
	Format        domain.Format
	TimeframeDays int
	ChatTargets   []string
}

// Runner streams every collection in batches to the chat targets.
type Runner struct {
	src         Source
	collections []string
	rowsPerFile int
	loc         *time.Location
	logger      logger.Logger
	now         func() time.Time
}

func NewRunner(src Source, rowsPerFile int, loc *time.Location, log logger.Logger) *Runner {
	if rowsPerFile <= 0 {
		rowsPerFile = DefaultRowsPerFile
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Runner{
		src:         src,
		collections: domain.BackupCollections,
		rowsPerFile: rowsPerFile,
		loc:         loc,
		logger:      log,
		now:         time.Now,
	}
}

// progress tracks what was shipped, for the footer and the run record.
type progress struct {
	summary   []domain.CollectionSummary
	completed []string
	current   string
	records   int
	files     int
}

// Run exports every collection and returns the run record. On failure the
// returned run has status failed and err is non-nil; a failure notice is sent
// on a best effort basis.
func (r *Runner) Run(ctx context.Context, m telegram.Messenger, opts Options) (domain.BackupRun, error) {
	startedAt := r.now()
	format := opts.Format
	if !format.Valid() {
		format = domain.FormatJSON
	}

	run := domain.BackupRun{
		ID:            uuid.NewString(),
		Source:        opts.Source,
		StartedAt:     startedAt,
		TimeframeDays: opts.TimeframeDays,
		Format:        format,
		ChatTargets:   opts.ChatTargets,
	}

	fail := func(p *progress, err error) (domain.BackupRun, error) {
		run.Status = domain.RunStatusFailed
		run.Error = err.Error()
		run.FinishedAt = r.now()
		if p != nil {
			run.Summary = p.summary
			run.TotalCollections = len(p.summary)
			run.TotalRecords = p.records
			run.TotalFiles = p.files
		}
		return run, err
	}

	if m == nil {
		return fail(nil, fmt.Errorf("%w: missing bot token", telegram.ErrNotConfigured))
	}
	if len(opts.ChatTargets) == 0 {
		return fail(nil, fmt.Errorf("%w: no chat targets", telegram.ErrNotConfigured))
	}

	if err := r.deliverText(ctx, m, opts.ChatTargets, r.header(startedAt, opts.Source, format, opts.TimeframeDays)); err != nil {
		return fail(nil, fmt.Errorf("failed to send backup header: %w", err))
	}

	var filter domain.ExportFilter
	if opts.TimeframeDays > 0 {
		filter.Since = startedAt.Add(-time.Duration(opts.TimeframeDays) * 24 * time.Hour)
	}

	p := &progress{}
	for _, collection := range r.collections {
		p.current = collection
		if err := r.exportCollection(ctx, m, opts.ChatTargets, startedAt, format, collection, filter, p); err != nil {
			notice := r.failureNotice(p, len(r.collections), err)
			if nerr := r.deliverText(ctx, m, opts.ChatTargets, notice); nerr != nil {
				r.logger.Warn("failed to send backup failure notice", logger.Error(nerr))
			}
			return fail(p, err)
		}
	}
	p.current = ""

	run.Status = domain.RunStatusSuccess
	run.FinishedAt = r.now()
	run.Summary = p.summary
	run.TotalCollections = len(p.summary)
	run.TotalRecords = p.records
	run.TotalFiles = p.files

	if err := r.deliverText(ctx, m, opts.ChatTargets, r.footer(run, p)); err != nil {
		r.logger.Warn("failed to send backup footer", logger.Error(err))
	}
	return run, nil
}

func (r *Runner) exportCollection(
	ctx context.Context,
	m telegram.Messenger,
	targets []string,
	startedAt time.Time,
	format domain.Format,
	collection string,
	filter domain.ExportFilter,
	p *progress,
) error {
	total, err := r.src.Count(ctx, collection, filter)
	if err != nil {
		return err
	}
	p.summary = append(p.summary, domain.CollectionSummary{Collection: collection, Records: int(total)})
	sum := &p.summary[len(p.summary)-1]

	var after int64
	for part := 1; total > 0; part++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		batch, err := r.src.FindBatch(ctx, collection, filter, after, r.rowsPerFile)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			break
		}
		after = batch[len(batch)-1].Key

		data, err := Encode(format, batch)
		if err != nil {
			return err
		}
		name := FileName(startedAt, r.loc, collection, part, format)
		if err := r.deliverDocument(ctx, m, targets, name, data, Caption(collection, part, len(batch))); err != nil {
			return fmt.Errorf("failed to deliver %s: %w", name, err)
		}

		sum.Files++
		p.files++
		p.records += len(batch)

		if len(batch) < r.rowsPerFile {
			break
		}
	}

	p.completed = append(p.completed, fmt.Sprintf("%s - done (%d rows, %d files)", collection, sum.Records, sum.Files))
	return nil
}

// deliverText succeeds when at least one target accepted the message.
func (r *Runner) deliverText(ctx context.Context, m telegram.Messenger, targets []string, text string) error {
	return deliver(targets, func(chatID string) error { return m.SendText(ctx, chatID, text) }, r.logger)
}

// deliverDocument succeeds when at least one target accepted the file.
func (r *Runner) deliverDocument(ctx context.Context, m telegram.Messenger, targets []string, name string, data []byte, caption string) error {
	return deliver(targets, func(chatID string) error { return m.SendDocument(ctx, chatID, name, data, caption) }, r.logger)
}

func deliver(targets []string, send func(chatID string) error, log logger.Logger) error {
	var errs []error
	for _, chatID := range targets {
		if err := send(chatID); err != nil {
			log.Warn("telegram delivery failed", logger.String("chat_id", chatID), logger.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", chatID, err))
		}
	}
	if len(errs) == len(targets) {
		return fmt.Errorf("rejected by every target: %w", errors.Join(errs...))
	}
	return nil
}

func (r *Runner) header(startedAt time.Time, source domain.BackupSource, format domain.Format, days int) string {
	plural := ""
	if days > 1 {
		plural = "s"
	}
	return strings.Join([]string{
		fmt.Sprintf("Backup started (%s)", source),
		"Time: " + startedAt.In(r.loc).Format(time.RFC3339),
		"Format: " + strings.ToUpper(string(format)),
		fmt.Sprintf("Timeframe: last %d day%s", days, plural),
	}, "\n")
}

func (r *Runner) footer(run domain.BackupRun, p *progress) string {
	secs := max(1, int(run.FinishedAt.Sub(run.StartedAt).Round(time.Second)/time.Second))
	lines := []string{
		"Backup finished",
		"Status: SUCCESS",
		fmt.Sprintf("Collections: %d", run.TotalCollections),
		fmt.Sprintf("Records: %d", run.TotalRecords),
		fmt.Sprintf("Files: %d", run.TotalFiles),
		fmt.Sprintf("Duration: %ds", secs),
	}
	return strings.Join(append(lines, p.completed...), "\n")
}

func (r *Runner) failureNotice(p *progress, totalCollections int, err error) string {
	failedAt := p.current
	if failedAt == "" {
		failedAt = "unknown"
	}
	lines := []string{
		"Backup finished",
		"Status: FAILED",
		"Failed at: " + failedAt,
		fmt.Sprintf("Collections completed: %d/%d", len(p.completed), totalCollections),
		fmt.Sprintf("Records sent: %d", p.records),
		fmt.Sprintf("Files sent: %d", p.files),
	}
	lines = append(lines, p.completed...)
	return strings.Join(append(lines, "Error: "+err.Error()), "\n")
}
