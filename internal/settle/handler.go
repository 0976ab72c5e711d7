package settle

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Handler exposes the administrative settlement surface: an on-demand run
// trigger and an XLSX report download.
type Handler struct {
	log        *slog.Logger
	sched      *Scheduler
	entries    ReportStore
	adminToken string
}

func NewHandler(log *slog.Logger, sched *Scheduler, entries ReportStore, adminToken string) *Handler {
	return &Handler{log: log, sched: sched, entries: entries, adminToken: adminToken}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /admin/settlements/run", h.runBatch)
	mux.HandleFunc("GET /admin/settlements/report", h.report)
}

func (h *Handler) authorized(r *http.Request) bool {
	return h.adminToken != "" && r.Header.Get("X-Admin-Token") == h.adminToken
}

func parseDay(r *http.Request) (time.Time, error) {
	d := r.URL.Query().Get("date")
	if d == "" {
		// default: the prior day, same as the scheduled run
		return time.Now().AddDate(0, 0, -1), nil
	}
	return time.Parse("2006-01-02", d)
}

func (h *Handler) runBatch(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	day, err := parseDay(r)
	if err != nil {
		http.Error(w, "invalid date, want YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	sum, ran, err := h.sched.RunDay(r.Context(), day)
	if err != nil {
		h.log.Error("manual settlement failed", "err", err)
		http.Error(w, "settlement run failed", http.StatusInternalServerError)
		return
	}
	if !ran {
		http.Error(w, "another settlement run is in progress", http.StatusConflict)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(sum)
}

func (h *Handler) report(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	day, err := parseDay(r)
	if err != nil {
		http.Error(w, "invalid date, want YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	f, err := BuildReport(r.Context(), h.entries, day)
	if err != nil {
		h.log.Error("settlement report failed", "err", err)
		http.Error(w, "report generation failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type",
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="settlement-%s.xlsx"`, day.Format("2006-01-02")))
	if err := f.Write(w); err != nil {
		h.log.Error("report write failed", "err", err)
	}
}

func summaryText(s *Summary) string {
	txt := fmt.Sprintf("settlement %s: %d processed, %d succeeded, %d failed",
		s.Day, s.Processed, s.Succeeded, s.Failed)
	if len(s.FailedCos) > 0 {
		txt += fmt.Sprintf(" (companies needing remediation: %v)", s.FailedCos)
	}
	return txt
}
