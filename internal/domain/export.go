package domain

import (
	"encoding/json"
	"time"
)

// Collections exported by a backup, in export order.
const (
	CollectionBrands         = "brands"
	CollectionTrackedDomains = "tracked_domains"
	CollectionCheckRuns      = "check_runs"
	CollectionBackupRuns     = "backup_runs"
)

var BackupCollections = []string{
	CollectionBrands,
	CollectionTrackedDomains,
	CollectionCheckRuns,
	CollectionBackupRuns,
}

// ExportFilter narrows the rows of a collection. A zero Since keeps everything.
// Only run history collections honour Since.
type ExportFilter struct {
	Since time.Time
}

// ExportRecord is one exported row. Key is the insertion ordered cursor used
// to fetch the next batch.
type ExportRecord struct {
	Key int64
	Doc json.RawMessage
}
