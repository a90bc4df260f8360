package postgres

import (
	"fmt"
	"strings"

	"github.com/MrSnakeDoc/serpwatch/internal/domain"
)

type exportTable struct {
	name string
	// timeColumn is set for run history tables that honour ExportFilter.Since.
	timeColumn string
}

var exportTables = map[string]exportTable{
	domain.CollectionBrands:         {name: "brands"},
	domain.CollectionTrackedDomains: {name: "tracked_domains"},
	domain.CollectionCheckRuns:      {name: "check_runs", timeColumn: "created_at"},
	domain.CollectionBackupRuns:     {name: "backup_runs", timeColumn: "created_at"},
}

func lookupTable(collection string) (exportTable, error) {
	t, ok := exportTables[collection]
	if !ok {
		return exportTable{}, fmt.Errorf("%w: %q", ErrUnknownCollection, collection)
	}
	return t, nil
}

// where builds the WHERE clause for filter and the keyset cursor.
func (t exportTable) where(filter domain.ExportFilter, afterKey int64) (string, []any) {
	var conds []string
	var args []any

	if afterKey > 0 {
		args = append(args, afterKey)
		conds = append(conds, fmt.Sprintf("t.seq > $%d", len(args)))
	}
	if t.timeColumn != "" && !filter.Since.IsZero() {
		args = append(args, filter.Since)
		conds = append(conds, fmt.Sprintf("t.%s >= $%d", t.timeColumn, len(args)))
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}
