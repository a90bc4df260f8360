package telegram

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type TargetResult struct {
	ChatID string `json:"chat_id"`
	OK     bool   `json:"ok"`
	Error  string `json:"error,omitempty"`
}

type TargetReport struct {
	Total     int            `json:"total"`
	OKCount   int            `json:"ok_count"`
	FailCount int            `json:"fail_count"`
	Results   []TargetResult `json:"results"`
}

// DefaultTestMessage is sent by TestTargets when no text is given.
func DefaultTestMessage(now time.Time) string {
	return fmt.Sprintf("Backup test message\nTime: %s\nIf you can read this, bot + chat ID are working.",
		now.UTC().Format(time.RFC3339))
}

// TestTargets sends text to every chat concurrently and reports each outcome.
func TestTargets(ctx context.Context, m Messenger, chatIDs []string, text string) (TargetReport, error) {
	if len(chatIDs) == 0 {
		return TargetReport{}, fmt.Errorf("%w: no chat targets", ErrNotConfigured)
	}

	results := make([]TargetResult, len(chatIDs))
	var wg sync.WaitGroup
	for i, chatID := range chatIDs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = TargetResult{ChatID: chatID, OK: true}
			if err := m.SendText(ctx, chatID, text); err != nil {
				results[i] = TargetResult{ChatID: chatID, Error: err.Error()}
			}
		}()
	}
	wg.Wait()

	report := TargetReport{Total: len(results), Results: results}
	for _, r := range results {
		if r.OK {
			report.OKCount++
		} else {
			report.FailCount++
		}
	}
	return report, nil
}
