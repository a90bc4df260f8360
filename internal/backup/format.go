package backup

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/MrSnakeDoc/serpwatch/internal/domain"
)

// Encode serializes one batch. JSON is an indented array, NDJSON one compact
// document per line.
func Encode(format domain.Format, records []domain.ExportRecord) ([]byte, error) {
	if format == domain.FormatNDJSON {
		var buf bytes.Buffer
		for _, r := range records {
			if err := json.Compact(&buf, r.Doc); err != nil {
				return nil, fmt.Errorf("failed to encode record %d: %w", r.Key, err)
			}
			buf.WriteByte('\n')
		}
		return buf.Bytes(), nil
	}

	docs := make([]json.RawMessage, 0, len(records))
	for _, r := range records {
		docs = append(docs, r.Doc)
	}
	out, err := json.MarshalIndent(docs, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode batch: %w", err)
	}
	return out, nil
}

// FileName returns backup_{YYYYMMDD_HHMMSS}_{TZ}_{collection}_p{part}.{ext}
// with the timestamp in the organization timezone.
func FileName(startedAt time.Time, loc *time.Location, collection string, part int, format domain.Format) string {
	ts := startedAt.In(loc).Format("20060102_150405_MST")
	return fmt.Sprintf("backup_%s_%s_p%d.%s", ts, collection, part, format.Extension())
}

// Caption describes one file.
func Caption(collection string, part, rows int) string {
	return fmt.Sprintf("%s part %d (%d rows)", collection, part, rows)
}
