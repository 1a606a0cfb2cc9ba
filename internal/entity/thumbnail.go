package entity

import (
	"database/sql"
	"fmt"

	"github.com/silverreel/medialib/internal/mlerrors"
	"github.com/silverreel/medialib/internal/model"
	"github.com/silverreel/medialib/internal/sqlitedb"
)

func init() {
	sqlitedb.Register(
		`CREATE TABLE IF NOT EXISTS Thumbnail (
			id_thumbnail INTEGER PRIMARY KEY AUTOINCREMENT,
			mrl TEXT NOT NULL,
			origin INTEGER NOT NULL,
			is_user_provided BOOLEAN NOT NULL DEFAULT 0,
			is_owned BOOLEAN NOT NULL DEFAULT 0,
			status INTEGER NOT NULL DEFAULT 0,
			shared_count INTEGER NOT NULL DEFAULT 1
		)`,
		// ThumbnailLinking is the join table the copy-on-write protocol in
		// internal/thumbnail reads to decide whether a thumbnail is shared
		// (more than one linking row) before mutating it in place.
		`CREATE TABLE IF NOT EXISTS ThumbnailLinking (
			thumbnail_id INTEGER NOT NULL,
			entity_id INTEGER NOT NULL,
			entity_type INTEGER NOT NULL,
			size_type INTEGER NOT NULL,
			PRIMARY KEY (entity_id, entity_type, size_type),
			FOREIGN KEY (thumbnail_id) REFERENCES Thumbnail(id_thumbnail) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS thumbnail_linking_thumbnail_idx ON ThumbnailLinking(thumbnail_id)`,
	)
}

// ThumbnailRepository is deliberately unaware of copy-on-write: that
// protocol lives in internal/thumbnail, which is the only caller allowed to
// mutate SharedCount or the ThumbnailLinking rows.
type ThumbnailRepository struct {
	db *sql.DB
}

func NewThumbnailRepository(db *sql.DB) *ThumbnailRepository {
	return &ThumbnailRepository{db: db}
}

func (r *ThumbnailRepository) Create(t *model.Thumbnail) error {
	if t.SharedCount == 0 {
		t.SharedCount = 1
	}
	res, err := r.db.Exec(
		`INSERT INTO Thumbnail (mrl, origin, is_user_provided, is_owned, status, shared_count) VALUES (?, ?, ?, ?, ?, ?)`,
		t.Mrl, t.Origin, t.IsUserProvided, t.IsOwned, t.Status, t.SharedCount,
	)
	if err != nil {
		return fmt.Errorf("insert thumbnail: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("thumbnail last insert id: %w", err)
	}
	t.ID = id
	return nil
}

func (r *ThumbnailRepository) Fetch(id int64) (*model.Thumbnail, error) {
	row := r.db.QueryRow(
		`SELECT id_thumbnail, mrl, origin, is_user_provided, is_owned, status, shared_count FROM Thumbnail WHERE id_thumbnail = ?`, id,
	)
	return scanThumbnail(row)
}

func scanThumbnail(row *sql.Row) (*model.Thumbnail, error) {
	var t model.Thumbnail
	err := row.Scan(&t.ID, &t.Mrl, &t.Origin, &t.IsUserProvided, &t.IsOwned, &t.Status, &t.SharedCount)
	if err == sql.ErrNoRows {
		return nil, mlerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan thumbnail: %w", err)
	}
	return &t, nil
}

func (r *ThumbnailRepository) Update(id int64, mrl string, origin model.ThumbnailOrigin, isOwned bool) error {
	_, err := r.db.Exec(
		`UPDATE Thumbnail SET mrl = ?, origin = ?, is_user_provided = ?, is_owned = ? WHERE id_thumbnail = ?`,
		mrl, origin, origin == model.ThumbnailOriginUserProvided, isOwned, id,
	)
	if err != nil {
		return fmt.Errorf("update thumbnail: %w", err)
	}
	return nil
}

func (r *ThumbnailRepository) SetStatus(id int64, status model.ThumbnailStatus) error {
	_, err := r.db.Exec(`UPDATE Thumbnail SET status = ? WHERE id_thumbnail = ?`, status, id)
	if err != nil {
		return fmt.Errorf("set thumbnail status: %w", err)
	}
	return nil
}

func (r *ThumbnailRepository) IncrementShared(id int64) error {
	_, err := r.db.Exec(`UPDATE Thumbnail SET shared_count = shared_count + 1 WHERE id_thumbnail = ?`, id)
	if err != nil {
		return fmt.Errorf("increment thumbnail share count: %w", err)
	}
	return nil
}

func (r *ThumbnailRepository) DecrementShared(id int64) (uint32, error) {
	_, err := r.db.Exec(`UPDATE Thumbnail SET shared_count = MAX(shared_count - 1, 0) WHERE id_thumbnail = ?`, id)
	if err != nil {
		return 0, fmt.Errorf("decrement thumbnail share count: %w", err)
	}
	var count uint32
	if err := r.db.QueryRow(`SELECT shared_count FROM Thumbnail WHERE id_thumbnail = ?`, id).Scan(&count); err != nil {
		return 0, fmt.Errorf("read thumbnail share count: %w", err)
	}
	return count, nil
}

func (r *ThumbnailRepository) Destroy(id int64) error {
	_, err := r.db.Exec(`DELETE FROM Thumbnail WHERE id_thumbnail = ?`, id)
	if err != nil {
		return fmt.Errorf("destroy thumbnail: %w", err)
	}
	return nil
}

// ThumbnailLinkingRepository owns the entity<->thumbnail join table.
type ThumbnailLinkingRepository struct {
	db *sql.DB
}

func NewThumbnailLinkingRepository(db *sql.DB) *ThumbnailLinkingRepository {
	return &ThumbnailLinkingRepository{db: db}
}

// Fetch returns the thumbnail id linked to (entityID, entityType, size), or
// mlerrors.ErrNotFound if the entity has no thumbnail of that size.
func (r *ThumbnailLinkingRepository) Fetch(entityID int64, entityType model.EntityType, size model.ThumbnailSizeType) (int64, error) {
	var thumbID int64
	err := r.db.QueryRow(
		`SELECT thumbnail_id FROM ThumbnailLinking WHERE entity_id = ? AND entity_type = ? AND size_type = ?`,
		entityID, entityType, size,
	).Scan(&thumbID)
	if err == sql.ErrNoRows {
		return 0, mlerrors.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("fetch thumbnail linking: %w", err)
	}
	return thumbID, nil
}

// Link creates or replaces the (entityID, entityType, size) -> thumbnailID
// linking row.
func (r *ThumbnailLinkingRepository) Link(thumbnailID, entityID int64, entityType model.EntityType, size model.ThumbnailSizeType) error {
	_, err := r.db.Exec(
		`INSERT INTO ThumbnailLinking (thumbnail_id, entity_id, entity_type, size_type) VALUES (?, ?, ?, ?)
		 ON CONFLICT(entity_id, entity_type, size_type) DO UPDATE SET thumbnail_id = excluded.thumbnail_id`,
		thumbnailID, entityID, entityType, size,
	)
	if err != nil {
		return fmt.Errorf("link thumbnail: %w", err)
	}
	return nil
}

// Unlink removes the (entityID, entityType, size) linking row.
func (r *ThumbnailLinkingRepository) Unlink(entityID int64, entityType model.EntityType, size model.ThumbnailSizeType) error {
	_, err := r.db.Exec(
		`DELETE FROM ThumbnailLinking WHERE entity_id = ? AND entity_type = ? AND size_type = ?`,
		entityID, entityType, size,
	)
	if err != nil {
		return fmt.Errorf("unlink thumbnail: %w", err)
	}
	return nil
}

// CountReferrers returns how many ThumbnailLinking rows currently point at
// thumbnailID; internal/thumbnail treats anything above 1 as "shared".
func (r *ThumbnailLinkingRepository) CountReferrers(thumbnailID int64) (int, error) {
	var n int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM ThumbnailLinking WHERE thumbnail_id = ?`, thumbnailID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count thumbnail referrers: %w", err)
	}
	return n, nil
}

// UserProvidedLinkings returns every linking row whose thumbnail has
// Origin == ThumbnailOriginUserProvided, for flushUserProvidedThumbnails.
func (r *ThumbnailLinkingRepository) UserProvidedLinkings() ([]model.ThumbnailLinking, error) {
	rows, err := r.db.Query(
		`SELECT tl.thumbnail_id, tl.entity_id, tl.entity_type, tl.size_type
		 FROM ThumbnailLinking tl JOIN Thumbnail t ON t.id_thumbnail = tl.thumbnail_id
		 WHERE t.is_user_provided = 1`,
	)
	if err != nil {
		return nil, fmt.Errorf("query user-provided linkings: %w", err)
	}
	defer rows.Close()

	var out []model.ThumbnailLinking
	for rows.Next() {
		var l model.ThumbnailLinking
		if err := rows.Scan(&l.ThumbnailID, &l.EntityID, &l.EntityType, &l.SizeType); err != nil {
			return nil, fmt.Errorf("scan user-provided linking: %w", err)
		}
		out = append(out, l)
	}
	return out, nil
}
