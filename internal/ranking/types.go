// Package ranking defines the record shapes of the precomputed ranking data:
// snapshot entries, metadata entries and the lookup joining them. Payloads
// are decoded and validated at the boundary so the rest of the service never
// sees a half-populated record.
package ranking

// Entry is one ranked title inside a snapshot. The Comparisons, PctLists and
// RelErrorPct fields are only present in snapshots produced for the extended
// table; HasStats reports whether they were.
type Entry struct {
	MALID       int     `json:"mal_ID"`
	Parameter   float64 `json:"parameter"`
	NumLists    int     `json:"num_lists"`
	Comparisons int     `json:"num_comparisons,omitempty"`
	PctLists    float64 `json:"pct_lists,omitempty"`
	RelErrorPct float64 `json:"rel_error_pct,omitempty"`
	HasStats    bool    `json:"-"`
}

// Snapshot is a ranking precomputed for one popularity cutoff. Entries keep
// the order of the source file. A snapshot is immutable once decoded.
type Snapshot struct {
	Index   int
	Value   int
	File    string
	Entries []Entry
}

// Len returns the number of entries.
func (s *Snapshot) Len() int {
	return len(s.Entries)
}

// Metadata holds the display attributes of one title.
type Metadata struct {
	Rank       *int     `json:"rank"`
	Score      *float64 `json:"score,omitempty"`
	Title      string   `json:"title"`
	TitleEN    *string  `json:"title_en,omitempty"`
	Popularity *int     `json:"popularity,omitempty"`
}

// Lookup maps MAL identifiers to display metadata. It is shared by all
// snapshots and never mutated after it has been loaded.
type Lookup map[int]Metadata

// Get returns the metadata for id.
func (l Lookup) Get(id int) (Metadata, bool) {
	m, ok := l[id]
	return m, ok
}
