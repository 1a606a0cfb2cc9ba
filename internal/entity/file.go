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
		`CREATE TABLE IF NOT EXISTS File (
			id_file INTEGER PRIMARY KEY AUTOINCREMENT,
			media_id INTEGER,
			playlist_id INTEGER,
			folder_id INTEGER NOT NULL,
			mrl TEXT NOT NULL,
			type INTEGER NOT NULL,
			last_modification_date INTEGER NOT NULL,
			size INTEGER NOT NULL,
			is_removable BOOLEAN NOT NULL DEFAULT 0,
			is_external BOOLEAN NOT NULL DEFAULT 0,
			is_network BOOLEAN NOT NULL DEFAULT 0,
			is_present BOOLEAN NOT NULL DEFAULT 1,
			UNIQUE(folder_id, mrl),
			FOREIGN KEY (media_id) REFERENCES Media(id_media) ON DELETE CASCADE,
			FOREIGN KEY (folder_id) REFERENCES Folder(id_folder) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS file_media_idx ON File(media_id)`,
		`CREATE INDEX IF NOT EXISTS file_folder_idx ON File(folder_id)`,
	)
}

type FileRepository struct {
	db *sql.DB
}

func NewFileRepository(db *sql.DB) *FileRepository {
	return &FileRepository{db: db}
}

func (r *FileRepository) Create(f *model.File) error {
	res, err := r.db.Exec(
		`INSERT INTO File (media_id, playlist_id, folder_id, mrl, type, last_modification_date,
		                    size, is_removable, is_external, is_network)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.MediaID, f.PlaylistID, f.FolderID, f.Mrl, f.Type, f.LastModificationDate,
		f.Size, f.IsRemovable, f.IsExternal, f.IsNetwork,
	)
	if err != nil {
		return fmt.Errorf("insert file: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("file last insert id: %w", err)
	}
	f.ID = id
	return nil
}

func (r *FileRepository) FetchByMrl(folderID int64, mrl string) (*model.File, error) {
	row := r.db.QueryRow(
		`SELECT id_file, media_id, playlist_id, folder_id, mrl, type, last_modification_date,
		        size, is_removable, is_external, is_network
		 FROM File WHERE folder_id = ? AND mrl = ?`, folderID, mrl,
	)
	return scanFile(row)
}

// FetchByFullMrl looks up a File by its mrl alone, regardless of owning
// folder: used when a Link task only has a candidate mrl to resolve (e.g.
// a playlist member not yet discovered) and no folder scope to narrow by.
func (r *FileRepository) FetchByFullMrl(mrl string) (*model.File, error) {
	row := r.db.QueryRow(
		`SELECT id_file, media_id, playlist_id, folder_id, mrl, type, last_modification_date,
		        size, is_removable, is_external, is_network
		 FROM File WHERE mrl = ? LIMIT 1`, mrl,
	)
	return scanFile(row)
}

func (r *FileRepository) Fetch(id int64) (*model.File, error) {
	row := r.db.QueryRow(
		`SELECT id_file, media_id, playlist_id, folder_id, mrl, type, last_modification_date,
		        size, is_removable, is_external, is_network
		 FROM File WHERE id_file = ?`, id,
	)
	return scanFile(row)
}

func scanFile(row *sql.Row) (*model.File, error) {
	var f model.File
	err := row.Scan(&f.ID, &f.MediaID, &f.PlaylistID, &f.FolderID, &f.Mrl, &f.Type,
		&f.LastModificationDate, &f.Size, &f.IsRemovable, &f.IsExternal, &f.IsNetwork)
	if err == sql.ErrNoRows {
		return nil, mlerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}
	return &f, nil
}

// UpdateLastModification persists a new last_modification_date, called by
// the discoverer when a reload pass revisits a file whose mtime changed
// since it was last seen, so the next reload compares against the fresh
// value instead of re-reporting the same change forever.
func (r *FileRepository) UpdateLastModification(id int64, mtime int64) error {
	_, err := r.db.Exec(`UPDATE File SET last_modification_date = ? WHERE id_file = ?`, mtime, id)
	if err != nil {
		return fmt.Errorf("update file modification time: %w", err)
	}
	return nil
}

// SetPresence flips a File's presence bit; Media presence then derives from
// this through the media_presence_cascade trigger.
func (r *FileRepository) SetPresence(id int64, present bool) error {
	_, err := r.db.Exec(`UPDATE File SET is_present = ? WHERE id_file = ?`, present, id)
	if err != nil {
		return fmt.Errorf("set file presence: %w", err)
	}
	return nil
}

// ByFolder lists every file rooted at folderID, used by the discoverer's
// deleteUnseenFiles pass after a reload.
func (r *FileRepository) ByFolder(folderID int64) ([]model.File, error) {
	rows, err := r.db.Query(
		`SELECT id_file, media_id, playlist_id, folder_id, mrl, type, last_modification_date,
		        size, is_removable, is_external, is_network
		 FROM File WHERE folder_id = ?`, folderID,
	)
	if err != nil {
		return nil, fmt.Errorf("query files by folder: %w", err)
	}
	defer rows.Close()

	var out []model.File
	for rows.Next() {
		var f model.File
		if err := rows.Scan(&f.ID, &f.MediaID, &f.PlaylistID, &f.FolderID, &f.Mrl, &f.Type,
			&f.LastModificationDate, &f.Size, &f.IsRemovable, &f.IsExternal, &f.IsNetwork); err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		out = append(out, f)
	}
	return out, nil
}

func (r *FileRepository) Destroy(id int64) error {
	_, err := r.db.Exec(`DELETE FROM File WHERE id_file = ?`, id)
	if err != nil {
		return fmt.Errorf("destroy file: %w", err)
	}
	return nil
}
