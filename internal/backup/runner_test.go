package backup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrSnakeDoc/serpwatch/internal/domain"
	"github.com/MrSnakeDoc/serpwatch/internal/logger"
	"github.com/MrSnakeDoc/serpwatch/internal/telegram"
)

var wib = time.FixedZone("WIB", 7*60*60)

type fakeSource struct {
	rows    map[string]int
	failOn  string
	filters map[string]domain.ExportFilter
}

func (f *fakeSource) Count(_ context.Context, collection string, filter domain.ExportFilter) (int64, error) {
	if f.filters == nil {
		f.filters = map[string]domain.ExportFilter{}
	}
	f.filters[collection] = filter
	return int64(f.rows[collection]), nil
}

func (f *fakeSource) FindBatch(_ context.Context, collection string, _ domain.ExportFilter, after int64, limit int) ([]domain.ExportRecord, error) {
	if collection == f.failOn {
		return nil, errors.New("connection reset")
	}
	var out []domain.ExportRecord
	for k := after + 1; k <= int64(f.rows[collection]) && len(out) < limit; k++ {
		out = append(out, domain.ExportRecord{Key: k, Doc: json.RawMessage(fmt.Sprintf(`{"seq": %d}`, k))})
	}
	return out, nil
}

type sentDoc struct {
	chatID, name, caption string
	data                  []byte
}

type fakeMessenger struct {
	mu       sync.Mutex
	texts    []string
	docs     []sentDoc
	failDocs map[string]bool
}

func (f *fakeMessenger) SendText(_ context.Context, chatID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, chatID+"|"+text)
	return nil
}

func (f *fakeMessenger) SendDocument(_ context.Context, chatID, name string, data []byte, caption string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failDocs[chatID] {
		return errors.New("forbidden")
	}
	f.docs = append(f.docs, sentDoc{chatID: chatID, name: name, caption: caption, data: data})
	return nil
}

func newRunner(src Source, rows int) *Runner {
	r := NewRunner(src, rows, wib, logger.NewNop())
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, wib)
	r.now = func() time.Time { return start }
	return r
}

func TestRunSuccess(t *testing.T) {
	src := &fakeSource{rows: map[string]int{
		domain.CollectionBrands:    2,
		domain.CollectionCheckRuns: 5,
	}}
	m := &fakeMessenger{}
	r := newRunner(src, 2)

	run, err := r.Run(context.Background(), m, Options{
		Source:        domain.BackupSourceScheduler,
		Format:        domain.FormatNDJSON,
		TimeframeDays: 1,
		ChatTargets:   []string{"-1"},
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if run.Status != domain.RunStatusSuccess {
		t.Errorf("Status = %q, want success", run.Status)
	}
	if run.TotalCollections != 4 || run.TotalRecords != 7 || run.TotalFiles != 4 {
		t.Errorf("totals = %d/%d/%d, want 4/7/4", run.TotalCollections, run.TotalRecords, run.TotalFiles)
	}
	if len(m.docs) != 4 {
		t.Fatalf("sent %d documents, want 4", len(m.docs))
	}
	if want := "backup_20260301_000000_WIB_check_runs_p3.ndjson"; m.docs[3].name != want {
		t.Errorf("file name = %q, want %q", m.docs[3].name, want)
	}
	if m.docs[3].caption != "check_runs part 3 (1 rows)" {
		t.Errorf("caption = %q", m.docs[3].caption)
	}
	if string(m.docs[3].data) != "{\"seq\":5}\n" {
		t.Errorf("ndjson data = %q", m.docs[3].data)
	}
	if len(m.texts) != 2 || !strings.Contains(m.texts[0], "Backup started (scheduler)") || !strings.Contains(m.texts[1], "Status: SUCCESS") {
		t.Errorf("texts = %q", m.texts)
	}
	if want := time.Date(2026, 2, 28, 0, 0, 0, 0, wib); !src.filters[domain.CollectionCheckRuns].Since.Equal(want) {
		t.Errorf("timeframe since = %v, want %v", src.filters[domain.CollectionCheckRuns].Since, want)
	}
}

func TestRunFailureMidExport(t *testing.T) {
	src := &fakeSource{
		rows:   map[string]int{domain.CollectionBrands: 1, domain.CollectionTrackedDomains: 1, domain.CollectionCheckRuns: 3},
		failOn: domain.CollectionCheckRuns,
	}
	m := &fakeMessenger{}

	run, err := newRunner(src, 500).Run(context.Background(), m, Options{
		Source:      domain.BackupSourceManual,
		ChatTargets: []string{"-1"},
	})
	if err == nil {
		t.Fatal("Run() error = nil, want failure")
	}
	if run.Status != domain.RunStatusFailed || run.Error == "" {
		t.Errorf("run = %+v, want failed with error", run)
	}
	notice := m.texts[len(m.texts)-1]
	for _, want := range []string{"Status: FAILED", "Failed at: check_runs", "Collections completed: 2/4", "Records sent: 2"} {
		if !strings.Contains(notice, want) {
			t.Errorf("failure notice missing %q:\n%s", want, notice)
		}
	}
}

func TestRunChunkRejectedByEveryTarget(t *testing.T) {
	src := &fakeSource{rows: map[string]int{domain.CollectionBrands: 1}}

	partial := &fakeMessenger{failDocs: map[string]bool{"-1": true}}
	if _, err := newRunner(src, 500).Run(context.Background(), partial, Options{ChatTargets: []string{"-1", "-2"}}); err != nil {
		t.Errorf("Run() with one accepting target error = %v, want nil", err)
	}

	none := &fakeMessenger{failDocs: map[string]bool{"-1": true, "-2": true}}
	if _, err := newRunner(src, 500).Run(context.Background(), none, Options{ChatTargets: []string{"-1", "-2"}}); err == nil {
		t.Error("Run() with every target rejecting error = nil, want error")
	}
}

func TestRunRequiresConfiguration(t *testing.T) {
	r := newRunner(&fakeSource{}, 500)

	if _, err := r.Run(context.Background(), nil, Options{ChatTargets: []string{"-1"}}); !errors.Is(err, telegram.ErrNotConfigured) {
		t.Errorf("Run() without messenger error = %v, want %v", err, telegram.ErrNotConfigured)
	}
	if _, err := r.Run(context.Background(), &fakeMessenger{}, Options{}); !errors.Is(err, telegram.ErrNotConfigured) {
		t.Errorf("Run() without targets error = %v, want %v", err, telegram.ErrNotConfigured)
	}
}

func TestEncodeJSON(t *testing.T) {
	out, err := Encode(domain.FormatJSON, []domain.ExportRecord{{Key: 1, Doc: json.RawMessage(`{"a":1}`)}})
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	want := "[\n  {\n    \"a\": 1\n  }\n]"
	if string(out) != want {
		t.Errorf("Encode() = %q, want %q", out, want)
	}
}
