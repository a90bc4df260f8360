package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/serpwatch/internal/admin"
	"github.com/MrSnakeDoc/serpwatch/internal/domain"
	"github.com/MrSnakeDoc/serpwatch/internal/httpserver/deps"
	"github.com/MrSnakeDoc/serpwatch/internal/scheduler"
	"github.com/MrSnakeDoc/serpwatch/internal/telegram"
)

type settingsResponse struct {
	Settings *domain.ScheduleSettings `json:"settings"`
}

type runResponse struct {
	Started bool             `json:"started"`
	Status  scheduler.Status `json:"status"`
}

type telegramTestResponse struct {
	OK bool `json:"ok"`
	telegram.TargetReport
}

func AdminStatus(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := d.Admin.Status(r.Context())
		if err != nil {
			writeError(w, r, d, err)
			return
		}
		writeJSON(w, d, http.StatusOK, report)
	}
}

func UpdateSchedule(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in admin.ScheduleUpdate
		if err := decode(r, &in); err != nil {
			writeError(w, r, d, err)
			return
		}
		s, err := d.Admin.UpdateSchedule(r.Context(), in)
		if err != nil {
			writeError(w, r, d, err)
			return
		}
		writeJSON(w, d, http.StatusOK, settingsResponse{Settings: s})
	}
}

func RunAutoCheck(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, err := d.Admin.RunAutoCheck(r.Context())
		if err != nil {
			writeError(w, r, d, err)
			return
		}
		writeJSON(w, d, http.StatusAccepted, runResponse{Started: true, Status: status})
	}
}

func StopAutoCheck(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := d.Admin.StopAutoCheck(r.Context())
		if err != nil {
			writeError(w, r, d, err)
			return
		}
		writeJSON(w, d, http.StatusOK, res)
	}
}

func UpdateBackup(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in admin.BackupUpdate
		if err := decode(r, &in); err != nil {
			writeError(w, r, d, err)
			return
		}
		s, err := d.Admin.UpdateBackup(r.Context(), in)
		if err != nil {
			writeError(w, r, d, err)
			return
		}
		writeJSON(w, d, http.StatusOK, settingsResponse{Settings: s})
	}
}

func RunBackup(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, err := d.Admin.RunBackup(r.Context())
		if err != nil {
			writeError(w, r, d, err)
			return
		}
		writeJSON(w, d, http.StatusAccepted, runResponse{Started: true, Status: status})
	}
}

func TestTelegram(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in admin.TelegramTest
		if err := decode(r, &in); err != nil {
			writeError(w, r, d, err)
			return
		}
		report, err := d.Admin.TestTelegram(r.Context(), in)
		if err != nil {
			writeError(w, r, d, err)
			return
		}
		writeJSON(w, d, http.StatusOK, telegramTestResponse{OK: report.FailCount == 0, TargetReport: report})
	}
}

func ListKeys(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		summary, err := d.Admin.Keys(r.Context())
		if err != nil {
			writeError(w, r, d, err)
			return
		}
		writeJSON(w, d, http.StatusOK, summary)
	}
}

func AddKey(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in admin.KeyInput
		if err := decode(r, &in); err != nil {
			writeError(w, r, d, err)
			return
		}
		s, err := d.Admin.AddKey(r.Context(), in)
		if err != nil {
			writeError(w, r, d, err)
			return
		}
		writeJSON(w, d, http.StatusCreated, settingsResponse{Settings: s})
	}
}

func UpdateKey(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in admin.KeyInput
		if err := decode(r, &in); err != nil {
			writeError(w, r, d, err)
			return
		}
		s, err := d.Admin.UpdateKey(r.Context(), chi.URLParam(r, "id"), in)
		if err != nil {
			writeError(w, r, d, err)
			return
		}
		writeJSON(w, d, http.StatusOK, settingsResponse{Settings: s})
	}
}
