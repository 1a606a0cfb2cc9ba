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
		// Banned folders are moved here rather than flagged on the main row,
		// so a normal discovery crawl can exclude them with a cheap LEFT JOIN
		// instead of a WHERE on every row.
		`CREATE TABLE IF NOT EXISTS Folder (
			id_folder INTEGER PRIMARY KEY AUTOINCREMENT,
			device_id INTEGER NOT NULL,
			parent_id INTEGER,
			path TEXT NOT NULL,
			is_removable BOOLEAN NOT NULL DEFAULT 0,
			nb_media INTEGER NOT NULL DEFAULT 0,
			last_seen INTEGER NOT NULL,
			UNIQUE(device_id, path),
			FOREIGN KEY (device_id) REFERENCES Device(id_device) ON DELETE CASCADE,
			FOREIGN KEY (parent_id) REFERENCES Folder(id_folder) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS BannedFolder (
			id_folder INTEGER PRIMARY KEY,
			device_id INTEGER NOT NULL,
			parent_id INTEGER,
			path TEXT NOT NULL,
			banned_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS folder_parent_idx ON Folder(parent_id)`,
	)
}

type FolderRepository struct {
	db *sql.DB
}

func NewFolderRepository(db *sql.DB) *FolderRepository {
	return &FolderRepository{db: db}
}

func (r *FolderRepository) Create(f *model.Folder) error {
	res, err := r.db.Exec(
		`INSERT INTO Folder (device_id, parent_id, path, is_removable, nb_media, last_seen)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		f.DeviceID, f.ParentID, f.Path, f.IsRemovable, f.NbMedia, f.LastSeen.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert folder: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("folder last insert id: %w", err)
	}
	f.ID = id
	return nil
}

func (r *FolderRepository) Fetch(id int64) (*model.Folder, error) {
	row := r.db.QueryRow(
		`SELECT id_folder, device_id, parent_id, path, is_removable, nb_media, last_seen
		 FROM Folder WHERE id_folder = ?`, id,
	)
	return scanFolder(row)
}

func (r *FolderRepository) FetchByPath(deviceID int64, path string) (*model.Folder, error) {
	row := r.db.QueryRow(
		`SELECT id_folder, device_id, parent_id, path, is_removable, nb_media, last_seen
		 FROM Folder WHERE device_id = ? AND path = ?`, deviceID, path,
	)
	return scanFolder(row)
}

func scanFolder(row *sql.Row) (*model.Folder, error) {
	var f model.Folder
	var lastSeen int64
	err := row.Scan(&f.ID, &f.DeviceID, &f.ParentID, &f.Path, &f.IsRemovable, &f.NbMedia, &lastSeen)
	if err == sql.ErrNoRows {
		return nil, mlerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan folder: %w", err)
	}
	f.LastSeen = time.Unix(lastSeen, 0)
	return &f, nil
}

// Children returns the direct sub-folders of parentID, excluding banned
// ones (they live in BannedFolder, not Folder, so no filtering is needed
// here beyond the table split itself).
func (r *FolderRepository) Children(parentID int64) ([]model.Folder, error) {
	rows, err := r.db.Query(
		`SELECT id_folder, device_id, parent_id, path, is_removable, nb_media, last_seen
		 FROM Folder WHERE parent_id = ?`, parentID,
	)
	if err != nil {
		return nil, fmt.Errorf("query folder children: %w", err)
	}
	defer rows.Close()

	var out []model.Folder
	for rows.Next() {
		var f model.Folder
		var lastSeen int64
		if err := rows.Scan(&f.ID, &f.DeviceID, &f.ParentID, &f.Path, &f.IsRemovable, &f.NbMedia, &lastSeen); err != nil {
			return nil, fmt.Errorf("scan folder child: %w", err)
		}
		f.LastSeen = time.Unix(lastSeen, 0)
		out = append(out, f)
	}
	return out, nil
}

// Ban moves a folder row from Folder into BannedFolder atomically.
func (r *FolderRepository) Ban(id int64) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("begin ban tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO BannedFolder (id_folder, device_id, parent_id, path, banned_at)
		 SELECT id_folder, device_id, parent_id, path, ? FROM Folder WHERE id_folder = ?`,
		time.Now().Unix(), id,
	)
	if err != nil {
		return fmt.Errorf("copy to banned folder: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM Folder WHERE id_folder = ?`, id); err != nil {
		return fmt.Errorf("delete banned folder: %w", err)
	}
	return tx.Commit()
}

// Unban moves a folder row back from BannedFolder into Folder.
func (r *FolderRepository) Unban(id int64) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("begin unban tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO Folder (id_folder, device_id, parent_id, path, is_removable, nb_media, last_seen)
		 SELECT id_folder, device_id, parent_id, path, 0, 0, ? FROM BannedFolder WHERE id_folder = ?`,
		time.Now().Unix(), id,
	)
	if err != nil {
		return fmt.Errorf("copy from banned folder: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM BannedFolder WHERE id_folder = ?`, id); err != nil {
		return fmt.Errorf("delete from banned folder: %w", err)
	}
	return tx.Commit()
}

func (r *FolderRepository) IsBanned(deviceID int64, path string) (bool, error) {
	var count int
	err := r.db.QueryRow(
		`SELECT COUNT(*) FROM BannedFolder WHERE device_id = ? AND path = ?`, deviceID, path,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check banned folder: %w", err)
	}
	return count > 0, nil
}

func (r *FolderRepository) Delete(id int64) error {
	_, err := r.db.Exec(`DELETE FROM Folder WHERE id_folder = ?`, id)
	if err != nil {
		return fmt.Errorf("delete folder: %w", err)
	}
	return nil
}
