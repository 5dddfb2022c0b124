// Package web serves the ranking page and its JSON API. Every request gets a
// fresh viewer.Page over the shared store, so selections never leak between
// visitors while fetched data is shared by all of them.
package web

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Adithya-Monish-Kumar-K/rankview/internal/render"
	"github.com/Adithya-Monish-Kumar-K/rankview/internal/store"
	"github.com/Adithya-Monish-Kumar-K/rankview/internal/viewer"
	"github.com/Adithya-Monish-Kumar-K/rankview/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/rankview/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/rankview/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/rankview/pkg/metrics"
)

//go:embed templates/page.html
var templates embed.FS

var pageTmpl = template.Must(template.ParseFS(templates, "templates/page.html"))

// Frontend labels metrics and view events produced by this package.
const Frontend = "web"

type Options struct {
	Variant render.Variant
	Metrics *metrics.Metrics
	// OnRender is called for every rendered table, e.g. to track views.
	OnRender func(ctx context.Context, out viewer.Outcome)
}

type Handler struct {
	store  *store.Store
	view   config.ViewConfig
	opts   Options
	logger *slog.Logger
}

func NewHandler(st *store.Store, view config.ViewConfig, opts Options) *Handler {
	if opts.Variant == "" {
		opts.Variant = render.Basic
	}
	return &Handler{
		store:  st,
		view:   view,
		opts:   opts,
		logger: slog.Default().With("component", "web-handler"),
	}
}

type pageData struct {
	SnapshotID      string
	SnapshotLabelID string
	SnapshotLabel   string
	SnapshotMin     int
	SnapshotMax     int
	Snapshot        int
	SnapshotValues  []int
	CutoffID        string
	CutoffLabelID   string
	CutoffLabel     string
	CutoffMin       int
	CutoffMax       int
	CutoffStep      int
	Cutoff          int
	Table           template.HTML
}

// Page serves the full page. A failed load still renders the page, with an
// empty table.
func (h *Handler) Page(w http.ResponseWriter, r *http.Request) {
	snapshot, cutoff, err := h.selection(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	page, _, err := h.load(r.Context(), snapshot, cutoff)
	if err != nil {
		logger.FromContext(r.Context()).Warn("serving page without table data", "snapshot", snapshot, "error", err)
	}

	view := page.Table.View()
	header := view.Header
	if !view.Rendered {
		header = render.Header(page.Variant())
	}
	table, err := render.HTML(view.ID, header, view.Rows)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	data := pageData{
		SnapshotID:      page.SnapshotSelector.ID,
		SnapshotLabelID: page.SnapshotLabel.ID,
		SnapshotLabel:   page.SnapshotLabel.Text(),
		SnapshotMin:     page.SnapshotSelector.Min,
		SnapshotMax:     page.SnapshotSelector.Max,
		Snapshot:        page.SnapshotSelector.Value(),
		SnapshotValues:  h.store.Values(),
		CutoffID:        page.CutoffSelector.ID,
		CutoffLabelID:   page.CutoffLabel.ID,
		CutoffLabel:     page.CutoffLabel.Text(),
		CutoffMin:       page.CutoffSelector.Min,
		CutoffMax:       page.CutoffSelector.Max,
		CutoffStep:      page.CutoffSelector.Step,
		Cutoff:          page.CutoffSelector.Value(),
		Table:           table,
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := pageTmpl.Execute(w, data); err != nil {
		h.logger.Error("writing page failed", "error", err)
	}
}

// Table serves the table element alone, for pages that swap it in place.
func (h *Handler) Table(w http.ResponseWriter, r *http.Request) {
	snapshot, cutoff, err := h.selection(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	page, _, err := h.load(r.Context(), snapshot, cutoff)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	view := page.Table.View()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := render.WriteHTML(w, view.ID, view.Header, view.Rows); err != nil {
		h.logger.Error("writing table failed", "error", err)
	}
}

type rowsResponse struct {
	Snapshot      int            `json:"snapshot"`
	SnapshotValue int            `json:"snapshot_value"`
	Cutoff        int            `json:"cutoff"`
	Variant       render.Variant `json:"variant"`
	CacheHit      bool           `json:"cache_hit"`
	Header        []string       `json:"header"`
	Rows          []render.Row   `json:"rows"`
}

// Rows serves the rendered rows as JSON.
func (h *Handler) Rows(w http.ResponseWriter, r *http.Request) {
	snapshot, cutoff, err := h.selection(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	page, out, err := h.load(r.Context(), snapshot, cutoff)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	view := page.Table.View()
	rows := view.Rows
	if rows == nil {
		rows = []render.Row{}
	}
	h.writeJSON(w, http.StatusOK, rowsResponse{
		Snapshot:      out.Index,
		SnapshotValue: out.Value,
		Cutoff:        out.Cutoff,
		Variant:       page.Variant(),
		CacheHit:      out.CacheHit,
		Header:        view.Header,
		Rows:          rows,
	})
}

type snapshotInfo struct {
	Index  int    `json:"index"`
	Value  int    `json:"value"`
	File   string `json:"file"`
	Cached bool   `json:"cached"`
}

// Snapshots lists the slider positions and whether each is cached.
func (h *Handler) Snapshots(w http.ResponseWriter, r *http.Request) {
	positions := h.store.Positions()
	infos := make([]snapshotInfo, len(positions))
	for i, p := range positions {
		_, cached := h.store.Cached(i)
		infos[i] = snapshotInfo{Index: i, Value: p.Value, File: p.File, Cached: cached}
	}
	h.writeJSON(w, http.StatusOK, infos)
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.store.Stats())
}

// selection reads snapshot and cutoff from the query, falling back to the
// configured defaults.
func (h *Handler) selection(r *http.Request) (snapshot, cutoff int, err error) {
	snapshot, cutoff = h.view.DefaultSnapshot, h.view.DefaultCutoff
	q := r.URL.Query()
	if raw := q.Get("snapshot"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 || n >= h.store.Len() {
			return 0, 0, fmt.Errorf("%w: snapshot must be an integer in [0,%d), got %q", apperrors.ErrInvalidInput, h.store.Len(), raw)
		}
		snapshot = n
	}
	if raw := q.Get("cutoff"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || !h.view.CutoffAllowed(n) {
			return 0, 0, fmt.Errorf("%w: cutoff must be an integer in [%d,%d] in steps of %d, got %q",
				apperrors.ErrInvalidInput, h.view.CutoffMin, h.view.CutoffMax, max(h.view.CutoffStep, 1), raw)
		}
		cutoff = n
	}
	return snapshot, cutoff, nil
}

// load positions a fresh page's sliders and commits the snapshot selector.
func (h *Handler) load(ctx context.Context, snapshot, cutoff int) (*viewer.Page, viewer.Outcome, error) {
	page := viewer.NewPage(h.store, h.view, viewer.Options{
		Variant:  h.opts.Variant,
		Frontend: Frontend,
		Metrics:  h.opts.Metrics,
		OnRender: h.opts.OnRender,
	})
	out, err := page.Select(ctx, snapshot, cutoff)
	return page, out, err
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

// writeError maps err onto a status code. Server-side failures get a generic
// message; the details go to the log.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatusCode(err)
	message := err.Error()
	switch {
	case status >= http.StatusInternalServerError && errors.Is(err, apperrors.ErrFetchFailed):
		message = "ranking data is unavailable"
	case status >= http.StatusInternalServerError && errors.Is(err, apperrors.ErrMalformedPayload):
		message = "ranking data is malformed"
	case status >= http.StatusInternalServerError:
		message = "internal error"
	}
	if status >= http.StatusInternalServerError {
		logger.FromContext(r.Context()).Error("request failed", "path", r.URL.Path, "status", status, "error", err)
	}
	h.writeJSON(w, status, map[string]string{"error": message})
}
