// Package render turns a snapshot and the metadata lookup into table rows and
// writes them as HTML or as a terminal table.
package render

import (
	"fmt"
	"strconv"

	"github.com/Adithya-Monish-Kumar-K/rankview/internal/ranking"
	apperrors "github.com/Adithya-Monish-Kumar-K/rankview/pkg/errors"
)

// Placeholder is shown for absent optional values.
const Placeholder = "-"

// Variant selects the column set.
type Variant string

const (
	Basic    Variant = "basic"
	Extended Variant = "extended"
)

func ParseVariant(s string) (Variant, error) {
	switch Variant(s) {
	case Basic, Extended:
		return Variant(s), nil
	default:
		return "", fmt.Errorf("%w: variant %q", apperrors.ErrInvalidInput, s)
	}
}

var (
	basicHeader = []string{"Rank", "MAL Rank", "MAL Score", "Parameter", "Title", "English title"}

	extendedHeader = []string{
		"Rank", "MAL Rank", "Rank diff", "MAL Score", "Popularity", "Parameter",
		"Lists", "Lists %", "Comparisons", "Rel. error %", "Title", "English title",
	}
)

// Header returns the fixed header row for v.
func Header(v Variant) []string {
	if v == Extended {
		return append([]string(nil), extendedHeader...)
	}
	return append([]string(nil), basicHeader...)
}

// Row is one rendered table row. Cells line up with Header.
type Row struct {
	DisplayRank int      `json:"rank"`
	MALID       int      `json:"mal_id"`
	Cells       []string `json:"cells"`
}

// BuildRows filters entries to those with more than cutoff lists, keeps their
// order and numbers them from 1. Titles missing from lookup still get a row
// with placeholders in the metadata columns.
func BuildRows(entries []ranking.Entry, lookup ranking.Lookup, cutoff int, v Variant) []Row {
	rows := make([]Row, 0, len(entries))
	displayRank := 0
	for _, e := range entries {
		if e.NumLists <= cutoff {
			continue
		}
		displayRank++
		md, ok := lookup.Get(e.MALID)
		var cells []string
		if v == Extended {
			cells = extendedCells(displayRank, e, md, ok)
		} else {
			cells = basicCells(displayRank, e, md, ok)
		}
		rows = append(rows, Row{DisplayRank: displayRank, MALID: e.MALID, Cells: cells})
	}
	return rows
}

func basicCells(displayRank int, e ranking.Entry, md ranking.Metadata, known bool) []string {
	return []string{
		strconv.Itoa(displayRank),
		optInt(md.Rank),
		score(md.Score),
		formatFloat(e.Parameter),
		title(md, known),
		optString(md.TitleEN),
	}
}

func extendedCells(displayRank int, e ranking.Entry, md ranking.Metadata, known bool) []string {
	cells := []string{
		strconv.Itoa(displayRank),
		optInt(md.Rank),
		rankDiff(md.Rank, displayRank),
		score(md.Score),
		optInt(md.Popularity),
		formatFloat(e.Parameter),
		strconv.Itoa(e.NumLists),
	}
	if e.HasStats {
		cells = append(cells,
			fmt.Sprintf("%.2f", e.PctLists),
			strconv.Itoa(e.Comparisons),
			relError(e.RelErrorPct),
		)
	} else {
		cells = append(cells, Placeholder, Placeholder, Placeholder)
	}
	return append(cells, title(md, known), optString(md.TitleEN))
}

// rankDiff is the external rank minus the display rank, signed, with an
// explicit "+" for zero and positive values.
func rankDiff(rank *int, displayRank int) string {
	if rank == nil {
		return Placeholder
	}
	d := *rank - displayRank
	if d >= 0 {
		return "+" + strconv.Itoa(d)
	}
	return strconv.Itoa(d)
}

func relError(v float64) string {
	if v == 0 {
		return Placeholder
	}
	return fmt.Sprintf("%.2f", v)
}

// score treats 0 like an absent score; MAL reports 0 for unscored titles.
func score(v *float64) string {
	if v == nil || *v == 0 {
		return Placeholder
	}
	return formatFloat(*v)
}

func title(md ranking.Metadata, known bool) string {
	if !known {
		return Placeholder
	}
	return md.Title
}

func optInt(v *int) string {
	if v == nil {
		return Placeholder
	}
	return strconv.Itoa(*v)
}

func optString(v *string) string {
	if v == nil || *v == "" {
		return Placeholder
	}
	return *v
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
