package entity

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/silverreel/medialib/internal/mlerrors"
	"github.com/silverreel/medialib/internal/model"
	"github.com/silverreel/medialib/internal/sqlitedb"
)

func init() {
	sqlitedb.Register(
		`CREATE TABLE IF NOT EXISTS Media (
			id_media INTEGER PRIMARY KEY AUTOINCREMENT,
			type INTEGER NOT NULL,
			subtype INTEGER NOT NULL DEFAULT 0,
			title TEXT NOT NULL,
			filename TEXT NOT NULL,
			duration INTEGER NOT NULL DEFAULT -1,
			play_count INTEGER NOT NULL DEFAULT 0,
			last_played_date INTEGER,
			insertion_date INTEGER NOT NULL,
			release_date INTEGER,
			thumbnail_id INTEGER,
			is_favorite BOOLEAN NOT NULL DEFAULT 0,
			is_present BOOLEAN NOT NULL DEFAULT 1,
			group_id INTEGER,
			nb_playlists INTEGER NOT NULL DEFAULT 0,
			progress_state INTEGER NOT NULL DEFAULT 0,
			last_position REAL NOT NULL DEFAULT 0,
			last_time INTEGER NOT NULL DEFAULT -1
		)`,
		// FTS5 index kept in sync by the triggers below rather than queried
		// into directly, matching the original's "Media is the column of
		// truth, Fts is a derived index" split.
		`CREATE VIRTUAL TABLE IF NOT EXISTS MediaFts USING fts5(
			title, content='Media', content_rowid='id_media'
		)`,
		`CREATE TRIGGER IF NOT EXISTS media_fts_insert AFTER INSERT ON Media BEGIN
			INSERT INTO MediaFts(rowid, title) VALUES (new.id_media, new.title);
		END`,
		`CREATE TRIGGER IF NOT EXISTS media_fts_delete AFTER DELETE ON Media BEGIN
			INSERT INTO MediaFts(MediaFts, rowid, title) VALUES ('delete', old.id_media, old.title);
		END`,
		`CREATE TRIGGER IF NOT EXISTS media_fts_update AFTER UPDATE OF title ON Media BEGIN
			INSERT INTO MediaFts(MediaFts, rowid, title) VALUES ('delete', old.id_media, old.title);
			INSERT INTO MediaFts(rowid, title) VALUES (new.id_media, new.title);
		END`,
		// Presence cascade: a File going absent (its owning Folder's device
		// unmounted) propagates to the Media it belongs to once none of its
		// files are present any more.
		`CREATE TRIGGER IF NOT EXISTS media_presence_cascade AFTER UPDATE OF is_present ON File
		 WHEN new.media_id IS NOT NULL BEGIN
			UPDATE Media SET is_present = (
				SELECT COUNT(*) > 0 FROM File WHERE media_id = new.media_id AND is_present = 1
			) WHERE id_media = new.media_id;
		END`,
	)
}

type MediaRepository struct {
	db *sql.DB
}

func NewMediaRepository(db *sql.DB) *MediaRepository {
	return &MediaRepository{db: db}
}

func (r *MediaRepository) Create(m *model.Media) error {
	if m.InsertionDate.IsZero() {
		m.InsertionDate = time.Now()
	}
	if m.Duration == 0 {
		m.Duration = -1
	}
	res, err := r.db.Exec(
		`INSERT INTO Media (type, subtype, title, filename, duration, insertion_date, is_present, last_time)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.Type, m.SubType, m.Title, m.FileName, m.Duration, m.InsertionDate.Unix(), m.IsPresent, -1,
	)
	if err != nil {
		return fmt.Errorf("insert media: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("media last insert id: %w", err)
	}
	m.ID = id
	return nil
}

func (r *MediaRepository) Fetch(id int64) (*model.Media, error) {
	row := r.db.QueryRow(mediaSelectColumns+` WHERE id_media = ?`, id)
	return scanMedia(row)
}

const mediaSelectColumns = `
	SELECT id_media, type, subtype, title, filename, duration, play_count, last_played_date,
	       insertion_date, release_date, thumbnail_id, is_favorite, is_present, group_id,
	       nb_playlists, progress_state, last_position, last_time
	FROM Media`

func scanMedia(row *sql.Row) (*model.Media, error) {
	var m model.Media
	var insertionDate int64
	var lastPlayed, releaseDate sql.NullInt64

	err := row.Scan(&m.ID, &m.Type, &m.SubType, &m.Title, &m.FileName, &m.Duration, &m.PlayCount,
		&lastPlayed, &insertionDate, &releaseDate, &m.ThumbnailID, &m.IsFavorite, &m.IsPresent,
		&m.GroupID, &m.NbPlaylists, &m.ProgressState, &m.LastPosition, &m.LastTime)
	if err == sql.ErrNoRows {
		return nil, mlerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan media: %w", err)
	}
	m.InsertionDate = time.Unix(insertionDate, 0)
	if lastPlayed.Valid {
		t := time.Unix(lastPlayed.Int64, 0)
		m.LastPlayedAt = &t
	}
	if releaseDate.Valid {
		t := time.Unix(releaseDate.Int64, 0)
		m.ReleaseDate = &t
	}
	return &m, nil
}

// Search runs a title search against the FTS index, returning results
// ranked by bm25.
func (r *MediaRepository) Search(query string, limit int) ([]model.Media, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.db.Query(
		`SELECT m.id_media, m.type, m.subtype, m.title, m.filename, m.duration, m.play_count,
		        m.last_played_date, m.insertion_date, m.release_date, m.thumbnail_id, m.is_favorite,
		        m.is_present, m.group_id, m.nb_playlists, m.progress_state, m.last_position, m.last_time
		 FROM MediaFts f JOIN Media m ON m.id_media = f.rowid
		 WHERE f.title MATCH ? ORDER BY bm25(f) LIMIT ?`, query, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("search media: %w", err)
	}
	defer rows.Close()

	var out []model.Media
	for rows.Next() {
		var m model.Media
		var insertionDate int64
		var lastPlayed, releaseDate sql.NullInt64
		if err := rows.Scan(&m.ID, &m.Type, &m.SubType, &m.Title, &m.FileName, &m.Duration, &m.PlayCount,
			&lastPlayed, &insertionDate, &releaseDate, &m.ThumbnailID, &m.IsFavorite, &m.IsPresent,
			&m.GroupID, &m.NbPlaylists, &m.ProgressState, &m.LastPosition, &m.LastTime); err != nil {
			return nil, fmt.Errorf("scan search result: %w", err)
		}
		m.InsertionDate = time.Unix(insertionDate, 0)
		if lastPlayed.Valid {
			t := time.Unix(lastPlayed.Int64, 0)
			m.LastPlayedAt = &t
		}
		if releaseDate.Valid {
			t := time.Unix(releaseDate.Int64, 0)
			m.ReleaseDate = &t
		}
		out = append(out, m)
	}
	return out, nil
}

// List runs a caller-built WHERE/ORDER BY/LIMIT/OFFSET clause against
// Media, for internal/query's generic listing surface.
func (r *MediaRepository) List(whereClause, orderClause, limitClause string) ([]model.Media, error) {
	rows, err := r.db.Query(mediaSelectColumns + ` ` + whereClause + ` ` + orderClause + ` ` + limitClause)
	if err != nil {
		return nil, fmt.Errorf("list media: %w", err)
	}
	defer rows.Close()

	var out []model.Media
	for rows.Next() {
		var m model.Media
		var insertionDate int64
		var lastPlayed, releaseDate sql.NullInt64
		if err := rows.Scan(&m.ID, &m.Type, &m.SubType, &m.Title, &m.FileName, &m.Duration, &m.PlayCount,
			&lastPlayed, &insertionDate, &releaseDate, &m.ThumbnailID, &m.IsFavorite, &m.IsPresent,
			&m.GroupID, &m.NbPlaylists, &m.ProgressState, &m.LastPosition, &m.LastTime); err != nil {
			return nil, fmt.Errorf("scan media list row: %w", err)
		}
		m.InsertionDate = time.Unix(insertionDate, 0)
		if lastPlayed.Valid {
			t := time.Unix(lastPlayed.Int64, 0)
			m.LastPlayedAt = &t
		}
		if releaseDate.Valid {
			t := time.Unix(releaseDate.Int64, 0)
			m.ReleaseDate = &t
		}
		out = append(out, m)
	}
	return out, nil
}

// SetProgress persists the position/time/state triple internal/history
// computes, independent of the play_count bump IncrementPlayCount applies.
func (r *MediaRepository) SetProgress(mediaID int64, position float32, timeMs int64, state model.ProgressState) error {
	_, err := r.db.Exec(
		`UPDATE Media SET last_position = ?, last_time = ?, progress_state = ? WHERE id_media = ?`,
		position, timeMs, state, mediaID,
	)
	if err != nil {
		return fmt.Errorf("set media progress: %w", err)
	}
	return nil
}

func (r *MediaRepository) SetThumbnail(mediaID int64, thumbnailID *int64) error {
	_, err := r.db.Exec(`UPDATE Media SET thumbnail_id = ? WHERE id_media = ?`, thumbnailID, mediaID)
	if err != nil {
		return fmt.Errorf("set media thumbnail: %w", err)
	}
	return nil
}

func (r *MediaRepository) SetFavorite(mediaID int64, favorite bool) error {
	_, err := r.db.Exec(`UPDATE Media SET is_favorite = ? WHERE id_media = ?`, favorite, mediaID)
	if err != nil {
		return fmt.Errorf("set media favorite: %w", err)
	}
	return nil
}

func (r *MediaRepository) IncrementPlayCount(mediaID int64) error {
	_, err := r.db.Exec(`UPDATE Media SET play_count = play_count + 1, last_played_date = ? WHERE id_media = ?`,
		time.Now().Unix(), mediaID)
	if err != nil {
		return fmt.Errorf("increment play count: %w", err)
	}
	return nil
}

func (r *MediaRepository) Destroy(id int64) error {
	_, err := r.db.Exec(`DELETE FROM Media WHERE id_media = ?`, id)
	if err != nil {
		return fmt.Errorf("destroy media: %w", err)
	}
	return nil
}
