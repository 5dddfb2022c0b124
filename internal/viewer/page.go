// Package viewer is the page controller of the ranking table: two sliders,
// their labels and the table they drive. A Page owns the selection state and
// shares the snapshot cache in a store.Store with every other page.
package viewer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/rankview/internal/render"
	"github.com/Adithya-Monish-Kumar-K/rankview/internal/store"
	"github.com/Adithya-Monish-Kumar-K/rankview/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/rankview/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/rankview/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/rankview/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/rankview/pkg/tracing"
)

// Element identifiers of the published page.
const (
	SnapshotSelectorID = "dataSelector"
	SnapshotLabelID    = "dataSelectorText"
	CutoffSelectorID   = "cutoffSelector"
	CutoffLabelID      = "cutoffSelectorText"
	TableID            = "animeTable"
)

// Outcome describes one LoadSnapshot call.
type Outcome struct {
	Index      int           `json:"snapshot"`
	Value      int           `json:"snapshot_value"`
	Cutoff     int           `json:"cutoff"`
	Generation uint64        `json:"generation"`
	CacheHit   bool          `json:"cache_hit"`
	Rows       int           `json:"rows"`
	Stale      bool          `json:"stale"`
	Duration   time.Duration `json:"duration"`
}

// Options tunes a Page. Frontend labels metrics and analytics events.
type Options struct {
	Variant  render.Variant
	Frontend string
	Metrics  *metrics.Metrics
	// OnRender runs after every load that wrote the table.
	OnRender func(ctx context.Context, out Outcome)
}

type Page struct {
	SnapshotSelector *Slider
	SnapshotLabel    *Label
	CutoffSelector   *Slider
	CutoffLabel      *Label
	Table            *Table

	store      *store.Store
	opts       Options
	generation atomic.Uint64
	logger     *slog.Logger

	mu      sync.Mutex
	lastGen uint64
	lastOut Outcome
	lastErr error
}

// NewPage builds the controls from view and wires them the way the page
// does at load time: both labels, the snapshot selector and the cutoff
// filter. Nothing is fetched until a slider is committed.
func NewPage(st *store.Store, view config.ViewConfig, opts Options) *Page {
	if opts.Variant == "" {
		opts.Variant = render.Basic
	}
	p := &Page{
		SnapshotSelector: NewSlider(SnapshotSelectorID, 0, st.Len()-1, 1, view.DefaultSnapshot),
		SnapshotLabel:    NewLabel(SnapshotLabelID),
		CutoffSelector:   NewSlider(CutoffSelectorID, view.CutoffMin, view.CutoffMax, view.CutoffStep, view.DefaultCutoff),
		CutoffLabel:      NewLabel(CutoffLabelID),
		Table:            NewTable(TableID),
		store:            st,
		opts:             opts,
		logger:           slog.Default().With("component", "page", "frontend", opts.Frontend),
	}
	UpdateSliderLabel(p.SnapshotSelector, p.SnapshotLabel, st.Values())
	UpdateSliderLabel(p.CutoffSelector, p.CutoffLabel, nil)
	p.BindSnapshotSelector(p.SnapshotSelector)
	p.BindCutoffFilter(p.CutoffSelector, p.SnapshotSelector)
	return p
}

// Variant returns the column set this page renders.
func (p *Page) Variant() render.Variant {
	return p.opts.Variant
}

// BindSnapshotSelector loads the selected snapshot whenever s is committed.
func (p *Page) BindSnapshotSelector(s *Slider) {
	s.OnChange(func(ctx context.Context, value int) {
		p.LoadSnapshot(ctx, value)
	})
}

// BindCutoffFilter re-renders the snapshot selected on selector whenever
// cutoff is committed.
func (p *Page) BindCutoffFilter(cutoff, selector *Slider) {
	cutoff.OnChange(func(ctx context.Context, _ int) {
		p.LoadSnapshot(ctx, selector.Value())
	})
}

// LoadSnapshot makes sure snapshot index and the metadata lookup are loaded,
// then renders the table with the cutoff selector's current value. Failures
// are logged and returned; nothing is rendered then, and whatever did load
// stays cached. When a newer load has started in the meantime the result is
// cached but not rendered and the outcome is marked Stale.
func (p *Page) LoadSnapshot(ctx context.Context, index int) (Outcome, error) {
	gen := p.generation.Add(1)
	start := time.Now()
	log := logger.FromContext(ctx).With("component", "page", "snapshot", index, "generation", gen)
	out := Outcome{Index: index, Generation: gen}

	ctx, span := tracing.Start(ctx, "load_snapshot")
	span.SetAttr("snapshot", index)
	span.SetAttr("generation", gen)
	defer func() {
		span.End()
		span.Log(ctx, log, slog.LevelDebug)
	}()

	fetchCtx, fetch := tracing.Start(ctx, "snapshot")
	snap, cached, err := p.store.Snapshot(fetchCtx, index)
	if err != nil {
		fetch.Fail(err)
		log.Error("loading snapshot failed", "error", err)
		return p.finish(out, err)
	}
	fetch.SetAttr("cache_hit", cached)
	fetch.End()
	out.Value = snap.Value
	out.CacheHit = cached

	if _, ok := p.store.Lookup(); !ok {
		metaCtx, meta := tracing.Start(ctx, "metadata")
		if _, err := p.store.LoadLookup(metaCtx); err != nil {
			meta.Fail(err)
			log.Error("loading metadata failed", "error", err)
			return p.finish(out, err)
		}
		meta.End()
	}

	_, rend := tracing.Start(ctx, "render")
	out.Cutoff = p.CutoffSelector.Value()
	header, rows, err := p.buildRows(index, out.Cutoff)
	if err != nil {
		rend.Fail(err)
		log.Error("building rows failed", "error", err)
		return p.finish(out, err)
	}
	current := func() bool { return p.generation.Load() == gen }
	if !p.Table.replaceIf(current, header, rows, index, out.Cutoff, gen) {
		rend.SetAttr("stale", true)
		rend.End()
		out.Stale = true
		out.Duration = time.Since(start)
		if p.opts.Metrics != nil {
			p.opts.Metrics.StaleRenders.Inc()
		}
		log.Debug("discarding stale render", "newest", p.generation.Load())
		return p.finish(out, nil)
	}
	rend.SetAttr("rows", len(rows))
	rend.End()

	out.Rows = len(rows)
	out.Duration = time.Since(start)
	if p.opts.Metrics != nil {
		p.opts.Metrics.RenderDuration.WithLabelValues(p.opts.Frontend).Observe(out.Duration.Seconds())
		p.opts.Metrics.RenderedRows.WithLabelValues(string(p.opts.Variant)).Observe(float64(out.Rows))
	}
	log.Debug("table rendered", "cutoff", out.Cutoff, "rows", out.Rows, "cache_hit", cached)
	if p.opts.OnRender != nil {
		p.opts.OnRender(ctx, out)
	}
	return p.finish(out, nil)
}

// RenderTable rebuilds target from the cached snapshot at snapshotIndex,
// keeping entries with more than cutoff lists. Both the snapshot and the
// metadata lookup must already be loaded.
func (p *Page) RenderTable(target *Table, snapshotIndex, cutoff int) (int, error) {
	header, rows, err := p.buildRows(snapshotIndex, cutoff)
	if err != nil {
		return 0, err
	}
	target.replaceIf(nil, header, rows, snapshotIndex, cutoff, p.generation.Load())
	return len(rows), nil
}

func (p *Page) buildRows(index, cutoff int) ([]string, []render.Row, error) {
	snap, ok := p.store.Cached(index)
	if !ok {
		return nil, nil, fmt.Errorf("%w: snapshot %d", apperrors.ErrNotLoaded, index)
	}
	lookup, ok := p.store.Lookup()
	if !ok {
		return nil, nil, fmt.Errorf("%w: metadata", apperrors.ErrNotLoaded)
	}
	return render.Header(p.opts.Variant), render.BuildRows(snap.Entries, lookup, cutoff, p.opts.Variant), nil
}

func (p *Page) finish(out Outcome, err error) (Outcome, error) {
	p.mu.Lock()
	if out.Generation >= p.lastGen {
		p.lastGen = out.Generation
		p.lastOut = out
		p.lastErr = err
	}
	p.mu.Unlock()
	return out, err
}

// Last returns the outcome of the newest load that has finished. Control
// bindings swallow errors; front-ends read them back here.
func (p *Page) Last() (Outcome, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastOut, p.lastErr
}

// Select positions both sliders and commits the snapshot selector, which
// triggers exactly one load. It returns that load's outcome. Values the
// sliders cannot hold are rejected with ErrInvalidInput instead of snapped.
func (p *Page) Select(ctx context.Context, index, cutoff int) (Outcome, error) {
	if !p.SnapshotSelector.Accepts(index) {
		return Outcome{}, fmt.Errorf("%w: snapshot %d not in [0,%d]", apperrors.ErrInvalidInput, index, p.SnapshotSelector.Max)
	}
	if !p.CutoffSelector.Accepts(cutoff) {
		c := p.CutoffSelector
		return Outcome{}, fmt.Errorf("%w: cutoff %d must be in [%d,%d] in steps of %d", apperrors.ErrInvalidInput, cutoff, c.Min, c.Max, c.Step)
	}
	p.CutoffSelector.Input(cutoff)
	p.SnapshotSelector.Set(ctx, index)
	return p.Last()
}
