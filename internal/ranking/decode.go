package ranking

import (
	"bytes"
	"encoding/json"
	"strconv"

	apperrors "github.com/Adithya-Monish-Kumar-K/rankview/pkg/errors"
)

// rawEntry mirrors Entry with pointers so missing fields can be told apart
// from zero values.
type rawEntry struct {
	MALID       *int     `json:"mal_ID"`
	Parameter   *float64 `json:"parameter"`
	NumLists    *int     `json:"num_lists"`
	Comparisons *int     `json:"num_comparisons"`
	PctLists    *float64 `json:"pct_lists"`
	RelErrorPct *float64 `json:"rel_error_pct"`
}

// DecodeSnapshot parses a snapshot file. mal_ID, parameter and num_lists are
// required on every entry; the three statistics fields are optional but must
// appear together.
func DecodeSnapshot(resource string, data []byte) ([]Entry, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, apperrors.Malformed(resource, "empty body")
	}
	var raw []rawEntry
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, apperrors.Malformed(resource, "%v", err)
	}
	entries := make([]Entry, 0, len(raw))
	for i, r := range raw {
		switch {
		case r.MALID == nil:
			return nil, apperrors.Malformed(resource, "entry %d: missing mal_ID", i)
		case r.Parameter == nil:
			return nil, apperrors.Malformed(resource, "entry %d: missing parameter", i)
		case r.NumLists == nil:
			return nil, apperrors.Malformed(resource, "entry %d: missing num_lists", i)
		}
		e := Entry{
			MALID:     *r.MALID,
			Parameter: *r.Parameter,
			NumLists:  *r.NumLists,
		}
		stats := 0
		if r.Comparisons != nil {
			e.Comparisons = *r.Comparisons
			stats++
		}
		if r.PctLists != nil {
			e.PctLists = *r.PctLists
			stats++
		}
		if r.RelErrorPct != nil {
			e.RelErrorPct = *r.RelErrorPct
			stats++
		}
		switch stats {
		case 0:
		case 3:
			e.HasStats = true
		default:
			return nil, apperrors.Malformed(resource, "entry %d: partial statistics fields", i)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// DecodeLookup parses the metadata file: a JSON object keyed by decimal MAL
// identifier. Every entry needs a title.
func DecodeLookup(resource string, data []byte) (Lookup, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, apperrors.Malformed(resource, "empty body")
	}
	var raw map[string]Metadata
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, apperrors.Malformed(resource, "%v", err)
	}
	lookup := make(Lookup, len(raw))
	for key, m := range raw {
		id, err := strconv.Atoi(key)
		if err != nil {
			return nil, apperrors.Malformed(resource, "key %q is not an integer", key)
		}
		if m.Title == "" {
			return nil, apperrors.Malformed(resource, "id %d: missing title", id)
		}
		lookup[id] = m
	}
	return lookup, nil
}
