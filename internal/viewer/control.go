package viewer

import (
	"context"
	"slices"
	"strconv"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/rankview/internal/render"
)

// ChangeHandler runs when a slider value is committed.
type ChangeHandler func(ctx context.Context, value int)

// Slider models a range input. Input handlers fire on every move, change
// handlers only when the value is committed (mouse released, key handled).
type Slider struct {
	ID   string
	Min  int
	Max  int
	Step int

	mu       sync.Mutex
	value    int
	onInput  []func(value int)
	onChange []ChangeHandler
}

// NewSlider creates a slider positioned at value (snapped into range).
func NewSlider(id string, min, max, step, value int) *Slider {
	if step <= 0 {
		step = 1
	}
	if max < min {
		max = min
	}
	s := &Slider{ID: id, Min: min, Max: max, Step: step}
	s.value = s.snap(value)
	return s
}

func (s *Slider) snap(v int) int {
	if v < s.Min {
		return s.Min
	}
	if v > s.Max {
		return s.Max
	}
	off := v - s.Min
	off = (off + s.Step/2) / s.Step * s.Step
	if s.Min+off > s.Max {
		off -= s.Step
	}
	return s.Min + off
}

// Accepts reports whether v is a position the slider can hold: inside
// [Min, Max] and on a step boundary.
func (s *Slider) Accepts(v int) bool {
	return v >= s.Min && v <= s.Max && (v-s.Min)%s.Step == 0
}

// Value returns the current value.
func (s *Slider) Value() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

// OnInput registers fn to run on every value move.
func (s *Slider) OnInput(fn func(value int)) {
	s.mu.Lock()
	s.onInput = append(s.onInput, fn)
	s.mu.Unlock()
}

// OnChange registers fn to run when the value is committed.
func (s *Slider) OnChange(fn ChangeHandler) {
	s.mu.Lock()
	s.onChange = append(s.onChange, fn)
	s.mu.Unlock()
}

// Input moves the slider to v (snapped into range) and fires the input
// handlers. It returns the value actually set.
func (s *Slider) Input(v int) int {
	s.mu.Lock()
	s.value = s.snap(v)
	value := s.value
	handlers := slices.Clone(s.onInput)
	s.mu.Unlock()
	for _, fn := range handlers {
		fn(value)
	}
	return value
}

// Commit fires the change handlers with the current value. Handlers run
// sequentially on the caller's goroutine.
func (s *Slider) Commit(ctx context.Context) {
	s.mu.Lock()
	value := s.value
	handlers := slices.Clone(s.onChange)
	s.mu.Unlock()
	for _, fn := range handlers {
		fn(ctx, value)
	}
}

// Set is Input followed by Commit.
func (s *Slider) Set(ctx context.Context, v int) {
	s.Input(v)
	s.Commit(ctx)
}

// Label is a text display bound to a slider.
type Label struct {
	ID string

	mu   sync.RWMutex
	text string
}

// NewLabel creates an empty label.
func NewLabel(id string) *Label {
	return &Label{ID: id}
}

// SetText replaces the displayed text.
func (l *Label) SetText(text string) {
	l.mu.Lock()
	l.text = text
	l.mu.Unlock()
}

// Text returns the displayed text.
func (l *Label) Text() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.text
}

// UpdateSliderLabel keeps label in sync with the slider. With discrete
// values the label shows discrete[value] instead of the raw value. The label
// is written immediately as well as on every move.
func UpdateSliderLabel(s *Slider, label *Label, discrete []int) {
	format := func(v int) string {
		if discrete != nil && v >= 0 && v < len(discrete) {
			return strconv.Itoa(discrete[v])
		}
		return strconv.Itoa(v)
	}
	s.OnInput(func(v int) {
		label.SetText(format(v))
	})
	label.SetText(format(s.Value()))
}

// TableView is a consistent copy of a table's contents.
type TableView struct {
	ID         string
	Header     []string
	Rows       []render.Row
	Snapshot   int
	Cutoff     int
	Generation uint64
	Rendered   bool
}

// Table is the render target. Every render replaces header and rows.
type Table struct {
	ID string

	mu         sync.RWMutex
	header     []string
	rows       []render.Row
	snapshot   int
	cutoff     int
	generation uint64
	rendered   bool
}

// NewTable creates a table that has not been rendered yet.
func NewTable(id string) *Table {
	return &Table{ID: id}
}

// replaceIf swaps in the new contents when current still holds under the
// table lock. It reports whether the table was written.
func (t *Table) replaceIf(current func() bool, header []string, rows []render.Row, snapshot, cutoff int, gen uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if current != nil && !current() {
		return false
	}
	t.header = header
	t.rows = rows
	t.snapshot = snapshot
	t.cutoff = cutoff
	t.generation = gen
	t.rendered = true
	return true
}

// View returns a copy of the current contents.
func (t *Table) View() TableView {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return TableView{
		ID:         t.ID,
		Header:     append([]string(nil), t.header...),
		Rows:       append([]render.Row(nil), t.rows...),
		Snapshot:   t.snapshot,
		Cutoff:     t.cutoff,
		Generation: t.generation,
		Rendered:   t.rendered,
	}
}
