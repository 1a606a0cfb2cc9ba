// Package query implements the generic paginated, sortable query surface
// every entity listing goes through, generalized from the teacher's
// ListParams sort/limit pattern to the full Sort enum and per-entity
// default tie-breakers spec.md describes.
package query

import "fmt"

// Sort enumerates the supported ordering keys. Not every entity supports
// every value; callers pick from the subset valid for their listing.
type Sort uint8

const (
	SortDefault Sort = iota
	SortAlpha
	SortDuration
	SortInsertionDate
	SortLastModificationDate
	SortReleaseDate
	SortFileSize
	SortArtist
	SortPlayCount
	SortFilename
	SortLastPlaybackDate
	SortAlbum
	SortTrackNumber
	SortTrackId
	SortNbAudio
	SortNbVideo
	SortNbMedia
	SortNbAlbum
)

// Params carries one listing's sort key and direction, pagination, and
// filters; the ColumnFor* helpers map its Sort to a concrete SQL column.
type Params struct {
	Sort      Sort
	Desc      bool
	Limit     int
	Offset    int
	Favorite  bool // restrict to favorites only, when the entity supports it

	// IncludeMissing, when false (the default), excludes rows whose
	// backing device is currently absent — spec.md §4.7's
	// include_missing parameter.
	IncludeMissing bool
	// PublicOnly restricts a listing to entities exposed outside the
	// owning process; no SPEC_FULL component distinguishes "public" rows
	// from private ones yet, so this is accepted and normalized but not
	// yet consulted by any WHERE clause.
	PublicOnly bool
}

// Normalize clamps Limit/Offset to sane bounds, matching the teacher's
// ListParams.Limit clamp (0 < limit <= 200, defaulting to 50), and applies
// SortPlayCount's descending-by-default rule. A caller wanting ascending
// play-count order has no way to ask for it through this zero-value-means-
// default Desc field; no SPEC_FULL caller needs that ordering today.
func (p Params) Normalize() Params {
	if p.Limit <= 0 || p.Limit > 200 {
		p.Limit = 50
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	if p.Sort == SortPlayCount {
		p.Desc = true
	}
	return p
}

// OrderClause builds the ORDER BY clause for sortColumn (the column
// SortDefault and the requested Sort both might resolve to) paired with
// tieBreak, the entity's stable tie-breaker column (usually its primary
// key), so two listings of the same Params always return rows in the same
// order even when the sort column has duplicate values.
func (p Params) OrderClause(sortColumn, tieBreak string) string {
	dir := "ASC"
	if p.Desc {
		dir = "DESC"
	}
	return fmt.Sprintf("ORDER BY %s %s, %s ASC", sortColumn, dir, tieBreak)
}

// LimitClause builds the LIMIT/OFFSET clause from normalized Params.
func (p Params) LimitClause() string {
	return fmt.Sprintf("LIMIT %d OFFSET %d", p.Limit, p.Offset)
}

// WhereClauseForMedia builds the WHERE clause for a Media listing from
// Favorite/IncludeMissing, or "" if neither restricts the listing.
// PublicOnly has no Media-table equivalent yet (see Params.PublicOnly).
func (p Params) WhereClauseForMedia() string {
	var conds []string
	if p.Favorite {
		conds = append(conds, "is_favorite = 1")
	}
	if !p.IncludeMissing {
		conds = append(conds, "is_present = 1")
	}
	if len(conds) == 0 {
		return ""
	}
	clause := "WHERE " + conds[0]
	for _, c := range conds[1:] {
		clause += " AND " + c
	}
	return clause
}

// ColumnForMedia resolves a Sort value to the Media table's column name;
// other entities define their own mapping where their column names differ
// (e.g. Album has no play_count). Sorts that need a join this package
// doesn't build (FileSize, Artist, Album, TrackNumber, TrackId, NbAudio,
// NbVideo, NbAlbum — all properties of a Media row's linked File/Album/
// Artist/Track, not of Media itself) degrade to the title default, per
// spec.md §4.7's "unsupported sorts degrade to Default" rule.
func ColumnForMedia(s Sort) string {
	switch s {
	case SortAlpha:
		return "title"
	case SortDuration:
		return "duration"
	case SortInsertionDate:
		return "insertion_date"
	case SortLastModificationDate:
		return "insertion_date"
	case SortReleaseDate:
		return "release_date"
	case SortPlayCount:
		return "play_count"
	case SortFilename:
		return "filename"
	case SortLastPlaybackDate:
		return "last_played_date"
	default:
		return "title"
	}
}

// ColumnForAlbum resolves a Sort value to the Album table's column name.
// Default falls back to "year descending, title ascending" per spec.md
// §4.7, which OrderClause can't express as a single column: callers build
// that ordering directly rather than going through this helper.
func ColumnForAlbum(s Sort) string {
	switch s {
	case SortAlpha:
		return "title"
	case SortReleaseDate:
		return "release_year"
	case SortDuration:
		return "duration"
	case SortNbMedia, SortNbAlbum:
		return "nb_tracks"
	default:
		return "title"
	}
}
