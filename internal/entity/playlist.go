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
		`CREATE TABLE IF NOT EXISTS Playlist (
			id_playlist INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			file_id INTEGER,
			creation_date INTEGER NOT NULL,
			nb_media INTEGER NOT NULL DEFAULT 0,
			nb_present_media INTEGER NOT NULL DEFAULT 0,
			duration INTEGER NOT NULL DEFAULT 0
		)`,
		// No PRIMARY KEY(playlist_id, media_id): spec.md explicitly allows
		// "duplicates of the same media ... at distinct positions", so the
		// synthetic id_relation key is the only uniqueness this table
		// enforces. (playlist_id, position) is deliberately NOT a unique
		// index: SQLite checks UNIQUE immediately per row, and the
		// renumbering trigger below shifts several rows' positions down by
		// one in a single statement, which can collide transiently
		// depending on row-processing order; contiguity is an application
		// invariant maintained by Append/InsertAt/Remove, not a constraint.
		`CREATE TABLE IF NOT EXISTS PlaylistMediaRelation (
			id_relation INTEGER PRIMARY KEY AUTOINCREMENT,
			playlist_id INTEGER NOT NULL,
			media_id INTEGER NOT NULL,
			position INTEGER NOT NULL,
			FOREIGN KEY (playlist_id) REFERENCES Playlist(id_playlist) ON DELETE CASCADE,
			FOREIGN KEY (media_id) REFERENCES Media(id_media) ON DELETE CASCADE
		)`,
		`CREATE TRIGGER IF NOT EXISTS playlist_relation_insert AFTER INSERT ON PlaylistMediaRelation BEGIN
			UPDATE Playlist SET nb_media = nb_media + 1 WHERE id_playlist = new.playlist_id;
			UPDATE Media SET nb_playlists = nb_playlists + 1 WHERE id_media = new.media_id;
		END`,
		// Renumber positions densely whenever a member is removed, matching
		// the original's invariant that playlist order has no gaps.
		`CREATE TRIGGER IF NOT EXISTS playlist_relation_delete AFTER DELETE ON PlaylistMediaRelation BEGIN
			UPDATE Playlist SET nb_media = nb_media - 1 WHERE id_playlist = old.playlist_id;
			UPDATE Media SET nb_playlists = nb_playlists - 1 WHERE id_media = old.media_id;
			UPDATE PlaylistMediaRelation SET position = position - 1
				WHERE playlist_id = old.playlist_id AND position > old.position;
		END`,
	)
}

type PlaylistRepository struct {
	db *sql.DB
}

func NewPlaylistRepository(db *sql.DB) *PlaylistRepository {
	return &PlaylistRepository{db: db}
}

func (r *PlaylistRepository) Create(p *model.Playlist) error {
	if p.CreationDate.IsZero() {
		p.CreationDate = time.Now()
	}
	res, err := r.db.Exec(
		`INSERT INTO Playlist (name, file_id, creation_date) VALUES (?, ?, ?)`,
		p.Name, p.FileID, p.CreationDate.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert playlist: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("playlist last insert id: %w", err)
	}
	p.ID = id
	return nil
}

func (r *PlaylistRepository) Fetch(id int64) (*model.Playlist, error) {
	row := r.db.QueryRow(
		`SELECT id_playlist, name, file_id, creation_date, nb_media, nb_present_media, duration
		 FROM Playlist WHERE id_playlist = ?`, id,
	)
	var p model.Playlist
	var creationDate int64
	err := row.Scan(&p.ID, &p.Name, &p.FileID, &creationDate, &p.NbMedia, &p.NbPresentMedia, &p.Duration)
	if err == sql.ErrNoRows {
		return nil, mlerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan playlist: %w", err)
	}
	p.CreationDate = time.Unix(creationDate, 0)
	return &p, nil
}

// Append adds media at the end of the playlist's current member list.
func (r *PlaylistRepository) Append(playlistID, mediaID int64) error {
	return r.InsertAt(playlistID, mediaID, r.nextPosition(playlistID))
}

func (r *PlaylistRepository) nextPosition(playlistID int64) uint32 {
	var n uint32
	_ = r.db.QueryRow(`SELECT COUNT(*) FROM PlaylistMediaRelation WHERE playlist_id = ?`, playlistID).Scan(&n)
	return n
}

// InsertAt inserts mediaID at position, pushing every member currently at
// or past that position one slot later. position is clamped to
// [0, nbMembers] so inserting past the end behaves like Append.
func (r *PlaylistRepository) InsertAt(playlistID, mediaID int64, position uint32) error {
	n := r.nextPosition(playlistID)
	if position > n {
		position = n
	}
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("begin insert-at tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`UPDATE PlaylistMediaRelation SET position = position + 1
		 WHERE playlist_id = ? AND position >= ?`,
		playlistID, position,
	)
	if err != nil {
		return fmt.Errorf("shift playlist positions: %w", err)
	}
	if _, err := tx.Exec(
		`INSERT INTO PlaylistMediaRelation (playlist_id, media_id, position) VALUES (?, ?, ?)`,
		playlistID, mediaID, position,
	); err != nil {
		return fmt.Errorf("insert into playlist: %w", err)
	}
	return tx.Commit()
}

// RemoveAt deletes the member at position; the playlist_relation_delete
// trigger renumbers everything after it back down to stay contiguous.
func (r *PlaylistRepository) RemoveAt(playlistID int64, position uint32) error {
	_, err := r.db.Exec(
		`DELETE FROM PlaylistMediaRelation WHERE playlist_id = ? AND position = ?`,
		playlistID, position,
	)
	if err != nil {
		return fmt.Errorf("remove from playlist: %w", err)
	}
	return nil
}

// Remove deletes every occurrence of mediaID in playlistID (it may appear
// more than once per spec.md's duplicate-members allowance).
func (r *PlaylistRepository) Remove(playlistID, mediaID int64) error {
	for {
		var position uint32
		err := r.db.QueryRow(
			`SELECT position FROM PlaylistMediaRelation WHERE playlist_id = ? AND media_id = ? LIMIT 1`,
			playlistID, mediaID,
		).Scan(&position)
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return fmt.Errorf("find playlist member: %w", err)
		}
		if err := r.RemoveAt(playlistID, position); err != nil {
			return err
		}
	}
}

// Move relocates the member at fromPos to toPos, clamping toPos to the
// last valid index so positions stay contiguous (spec.md's boundary rule
// for "move past the end"). It deliberately reuses RemoveAt/InsertAt
// rather than shifting ranges itself, since RemoveAt's DELETE already
// triggers playlist_relation_delete's renumbering and doing both would
// double-shift everything after fromPos.
func (r *PlaylistRepository) Move(playlistID int64, fromPos, toPos uint32) error {
	n := r.nextPosition(playlistID)
	if n == 0 || fromPos >= n {
		return nil
	}
	if toPos >= n {
		toPos = n - 1
	}
	if fromPos == toPos {
		return nil
	}

	var mediaID int64
	if err := r.db.QueryRow(
		`SELECT media_id FROM PlaylistMediaRelation WHERE playlist_id = ? AND position = ?`,
		playlistID, fromPos,
	).Scan(&mediaID); err != nil {
		return fmt.Errorf("find member to move: %w", err)
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("begin move tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`DELETE FROM PlaylistMediaRelation WHERE playlist_id = ? AND position = ?`, playlistID, fromPos,
	); err != nil {
		return fmt.Errorf("remove member for move: %w", err)
	}

	insertPos := toPos
	if _, err := tx.Exec(
		`UPDATE PlaylistMediaRelation SET position = position + 1
		 WHERE playlist_id = ? AND position >= ?`,
		playlistID, insertPos,
	); err != nil {
		return fmt.Errorf("make room for moved member: %w", err)
	}
	if _, err := tx.Exec(
		`INSERT INTO PlaylistMediaRelation (playlist_id, media_id, position) VALUES (?, ?, ?)`,
		playlistID, mediaID, insertPos,
	); err != nil {
		return fmt.Errorf("reinsert moved member: %w", err)
	}
	return tx.Commit()
}

// Members returns (mediaID, position) pairs in playlist order.
func (r *PlaylistRepository) Members(playlistID int64) ([]model.PlaylistMediaRelation, error) {
	rows, err := r.db.Query(
		`SELECT playlist_id, media_id, position FROM PlaylistMediaRelation
		 WHERE playlist_id = ? ORDER BY position ASC`, playlistID,
	)
	if err != nil {
		return nil, fmt.Errorf("query playlist members: %w", err)
	}
	defer rows.Close()

	var out []model.PlaylistMediaRelation
	for rows.Next() {
		var rel model.PlaylistMediaRelation
		if err := rows.Scan(&rel.PlaylistID, &rel.MediaID, &rel.Position); err != nil {
			return nil, fmt.Errorf("scan playlist member: %w", err)
		}
		out = append(out, rel)
	}
	return out, nil
}

func (r *PlaylistRepository) Destroy(id int64) error {
	_, err := r.db.Exec(`DELETE FROM Playlist WHERE id_playlist = ?`, id)
	if err != nil {
		return fmt.Errorf("destroy playlist: %w", err)
	}
	return nil
}
