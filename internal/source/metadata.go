package source

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/rankview/internal/ranking"
	apperrors "github.com/Adithya-Monish-Kumar-K/rankview/pkg/errors"
)

// MetadataSource loads the complete metadata lookup in one call.
type MetadataSource interface {
	LoadLookup(ctx context.Context) (ranking.Lookup, error)
	Describe() string
}

// FileMetadata reads the lookup from a JSON resource next to the snapshots.
type FileMetadata struct {
	fetcher Fetcher
	name    string
}

func NewFileMetadata(fetcher Fetcher, name string) *FileMetadata {
	return &FileMetadata{fetcher: fetcher, name: name}
}

func (m *FileMetadata) Describe() string {
	return m.name
}

func (m *FileMetadata) LoadLookup(ctx context.Context) (ranking.Lookup, error) {
	data, err := m.fetcher.Fetch(ctx, m.name)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", m.name, err)
	}
	return ranking.DecodeLookup(m.name, data)
}

// lookupQuery reads the columns of the scraper's anime table that the table
// displays. mean is MAL's score.
const lookupQuery = `SELECT anime_id, title, title_en, mean, rank, popularity FROM anime`

// SQLMetadata reads the lookup from the anime table filled by the scraper.
type SQLMetadata struct {
	db     *sql.DB
	driver string
}

func NewSQLMetadata(db *sql.DB, driver string) *SQLMetadata {
	return &SQLMetadata{db: db, driver: driver}
}

func (m *SQLMetadata) Describe() string {
	return m.driver + ":anime"
}

func (m *SQLMetadata) LoadLookup(ctx context.Context) (ranking.Lookup, error) {
	rows, err := m.db.QueryContext(ctx, lookupQuery)
	if err != nil {
		return nil, fmt.Errorf("%w: querying anime: %v", apperrors.ErrFetchFailed, err)
	}
	defer rows.Close()

	lookup := make(ranking.Lookup)
	for rows.Next() {
		var (
			id         int
			title      string
			titleEN    sql.NullString
			mean       sql.NullFloat64
			rank       sql.NullInt64
			popularity sql.NullInt64
		)
		if err := rows.Scan(&id, &title, &titleEN, &mean, &rank, &popularity); err != nil {
			return nil, apperrors.Malformed("anime table", "scanning row: %v", err)
		}
		md := ranking.Metadata{Title: title}
		if titleEN.Valid && titleEN.String != "" {
			md.TitleEN = &titleEN.String
		}
		if mean.Valid {
			md.Score = &mean.Float64
		}
		if rank.Valid {
			r := int(rank.Int64)
			md.Rank = &r
		}
		if popularity.Valid {
			p := int(popularity.Int64)
			md.Popularity = &p
		}
		lookup[id] = md
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating anime rows: %v", apperrors.ErrFetchFailed, err)
	}
	return lookup, nil
}
