package domain

import (
	"testing"
	"time"
)

func TestBuildSlotStatuses(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	runs := []CheckRun{
		{CheckedAt: base.Add(2 * time.Minute), OK: true},
		{CheckedAt: base.Add(4 * time.Minute), OK: false},
		{CheckedAt: base.Add(16 * time.Minute), OK: true},
		{CheckedAt: base.Add(17 * time.Minute), OK: true},
		{OK: true},
	}

	got := BuildSlotStatuses(runs, 15)
	if len(got) != 2 {
		t.Fatalf("BuildSlotStatuses() returned %d slots, want 2", len(got))
	}

	if !got[0].SlotAt.Equal(base) || got[0].Status != "Failure" || got[0].OKCount != 1 || got[0].FailCount != 1 {
		t.Errorf("slot[0] = %+v, want Failure at %v with 1 ok / 1 fail", got[0], base)
	}
	want := base.Add(15 * time.Minute)
	if !got[1].SlotAt.Equal(want) || got[1].Status != "Success" || got[1].OKCount != 2 {
		t.Errorf("slot[1] = %+v, want Success at %v with 2 ok", got[1], want)
	}
}

func TestScheduleSettingsClone(t *testing.T) {
	next := time.Date(2026, 3, 1, 10, 15, 0, 0, time.UTC)
	orig := &ScheduleSettings{
		NextAutoCheckAt: &next,
		Credentials:     []ApiCredential{{ID: "k1", Name: "first"}},
		Backup:          BackupSettings{ChatTargets: []string{"-100"}},
	}

	clone := orig.Clone()
	clone.Credentials[0].Name = "changed"
	clone.Backup.ChatTargets[0] = "changed"
	*clone.NextAutoCheckAt = next.Add(time.Hour)

	if orig.Credentials[0].Name != "first" {
		t.Errorf("Clone() shares Credentials with original")
	}
	if orig.Backup.ChatTargets[0] != "-100" {
		t.Errorf("Clone() shares ChatTargets with original")
	}
	if !orig.NextAutoCheckAt.Equal(next) {
		t.Errorf("Clone() shares NextAutoCheckAt with original")
	}
}
