package stream

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cadst/MPS-XRPL-sub000/internal/domain/plays"
)

const (
	tokenHeader = "X-Play-Token"
	tokenQuery  = "pt"
	tokenCookie = "mps_pt"
)

// Handler serves the content delivery endpoints over the session manager.
type Handler struct {
	log      *slog.Logger
	mgr      *Manager
	mediaDir string
}

func NewHandler(log *slog.Logger, mgr *Manager, mediaDir string) *Handler {
	return &Handler{log: log, mgr: mgr, mediaDir: mediaDir}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /contents/{id}/stream", h.serveStream)
	mux.HandleFunc("GET /contents/{id}/lyrics", h.serveLyrics)
}

func (h *Handler) serveStream(w http.ResponseWriter, r *http.Request) {
	contentID, ok := pathID(r)
	if !ok {
		http.Error(w, "invalid content id", http.StatusNotFound)
		return
	}

	reqStart, reqEnd := parseRange(r.Header.Get("Range"))
	grant, err := h.mgr.OpenOrResume(r.Context(), contentID, apiKey(r), clientToken(r), useCase(r), reqStart, reqEnd)
	if err != nil {
		h.writeErr(w, err)
		return
	}

	f, err := os.Open(filepath.Join(h.mediaDir, grant.Content.FilePath))
	if err != nil {
		h.log.Error("asset open failed", "content_id", contentID, "err", err)
		http.Error(w, "asset not found", http.StatusNotFound)
		return
	}
	defer func() { _ = f.Close() }()

	win := grant.Window
	if _, err := f.Seek(win.Start, io.SeekStart); err != nil {
		http.Error(w, "asset read failed", http.StatusInternalServerError)
		return
	}

	// The asset is readable; a window reaching the last byte finalizes now,
	// before the final chunk goes out.
	grant.Commit(r.Context())

	setToken(w, grant.Token)
	// Never cacheable: a cached asset would let a client fast-forward without
	// ever hitting the pacing policy again.
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("ETag", etag(grant.Token))
	w.Header().Set("Content-Range",
		fmt.Sprintf("bytes %d-%d/%d", win.Start, win.End, grant.Content.FileSize))
	w.Header().Set("Content-Length", strconv.FormatInt(win.End-win.Start+1, 10))
	w.WriteHeader(http.StatusPartialContent)

	if _, err := io.CopyN(w, f, win.End-win.Start+1); err != nil {
		// Client went away mid-chunk; the session just stops advancing.
		h.log.Debug("stream copy aborted", "content_id", contentID, "err", err)
	}
}

func (h *Handler) serveLyrics(w http.ResponseWriter, r *http.Request) {
	contentID, ok := pathID(r)
	if !ok {
		http.Error(w, "invalid content id", http.StatusNotFound)
		return
	}

	content, commit, err := h.mgr.OpenLyrics(r.Context(), contentID, apiKey(r))
	if err != nil {
		h.writeErr(w, err)
		return
	}

	b, err := os.ReadFile(filepath.Join(h.mediaDir, content.LyricsPath))
	if err != nil {
		h.log.Error("lyrics open failed", "content_id", contentID, "err", err)
		http.Error(w, "lyrics not found", http.StatusNotFound)
		return
	}

	// Retrieval succeeded, so the play counts.
	commit(r.Context())

	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate")
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write(b)
}

func (h *Handler) writeErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrUnauthorized):
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	case errors.Is(err, ErrForbidden):
		http.Error(w, "forbidden", http.StatusForbidden)
	case errors.Is(err, ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	default:
		h.log.Error("stream request failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	return id, err == nil && id > 0
}

// useCase reads the delivery variant. Anything but the instrumental flag is
// a full-asset play.
func useCase(r *http.Request) plays.UseCase {
	if r.URL.Query().Get("use") == string(plays.UseCaseInstrumental) {
		return plays.UseCaseInstrumental
	}
	return plays.UseCaseFull
}

func apiKey(r *http.Request) string {
	if k := r.Header.Get("X-API-Key"); k != "" {
		return k
	}
	return r.URL.Query().Get("api_key")
}

// clientToken picks the progress token; when several sources carry one the
// most recently set wins: cookie, then query, then header.
func clientToken(r *http.Request) string {
	tok := ""
	if c, err := r.Cookie(tokenCookie); err == nil {
		tok = c.Value
	}
	if q := r.URL.Query().Get(tokenQuery); q != "" {
		tok = q
	}
	if hd := r.Header.Get(tokenHeader); hd != "" {
		tok = hd
	}
	return tok
}

func setToken(w http.ResponseWriter, token string) {
	w.Header().Set(tokenHeader, token)
	http.SetCookie(w, &http.Cookie{
		Name:     tokenCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func etag(token string) string {
	sum := sha256.Sum256([]byte(token))
	return `"` + hex.EncodeToString(sum[:8]) + `"`
}

// parseRange reads a "bytes=start-end" header. Malformed input degrades to a
// synthesized initial range instead of a 416: pacing corrects, not rejects.
func parseRange(h string) (start, end int64) {
	start, end = 0, -1
	h = strings.TrimSpace(h)
	if !strings.HasPrefix(h, "bytes=") {
		return
	}
	spec, _, _ := strings.Cut(strings.TrimPrefix(h, "bytes="), ",")
	from, to, ok := strings.Cut(strings.TrimSpace(spec), "-")
	if !ok {
		return
	}
	if v, err := strconv.ParseInt(from, 10, 64); err == nil && v >= 0 {
		start = v
	}
	if v, err := strconv.ParseInt(to, 10, 64); err == nil && v >= start {
		end = v
	}
	return
}
