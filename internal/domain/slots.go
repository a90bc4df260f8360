package domain

import (
	"sort"
	"time"
)

// SlotStatus aggregates auto-check runs that fall into one interval slot.
type SlotStatus struct {
	SlotAt    time.Time `json:"slot_at"`
	Status    string    `json:"status"`
	OKCount   int       `json:"ok_count"`
	FailCount int       `json:"fail_count"`
}

// BuildSlotStatuses groups runs into slots of intervalMinutes aligned on the
// Unix epoch. A slot with any failed run is reported as "Failure".
func BuildSlotStatuses(runs []CheckRun, intervalMinutes int) []SlotStatus {
	if intervalMinutes < 1 {
		intervalMinutes = 1
	}
	slotSec := int64(intervalMinutes) * 60

	bySlot := make(map[int64]*SlotStatus)
	for _, run := range runs {
		if run.CheckedAt.IsZero() {
			continue
		}
		key := run.CheckedAt.Unix() / slotSec * slotSec
		st, ok := bySlot[key]
		if !ok {
			st = &SlotStatus{SlotAt: time.Unix(key, 0).UTC()}
			bySlot[key] = st
		}
		if run.OK {
			st.OKCount++
		} else {
			st.FailCount++
		}
	}

	out := make([]SlotStatus, 0, len(bySlot))
	for _, st := range bySlot {
		st.Status = "Success"
		if st.FailCount > 0 {
			st.Status = "Failure"
		}
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SlotAt.Before(out[j].SlotAt) })
	return out
}
