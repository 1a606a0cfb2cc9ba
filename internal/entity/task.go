package entity

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"

	"github.com/silverreel/medialib/internal/mlerrors"
	"github.com/silverreel/medialib/internal/model"
	"github.com/silverreel/medialib/internal/sqlitedb"
)

func init() {
	sqlitedb.Register(
		`CREATE TABLE IF NOT EXISTS Task (
			id_task INTEGER PRIMARY KEY AUTOINCREMENT,
			type INTEGER NOT NULL DEFAULT 0,
			step INTEGER NOT NULL DEFAULT 0,
			retry_count INTEGER NOT NULL DEFAULT 0,
			mrl TEXT NOT NULL,
			file_id INTEGER NOT NULL,
			parent_folder_id INTEGER NOT NULL,
			file_type INTEGER NOT NULL,
			link_to_id INTEGER NOT NULL DEFAULT 0,
			link_to_type INTEGER NOT NULL DEFAULT 0,
			link_extra INTEGER NOT NULL DEFAULT 0,
			UNIQUE(mrl, type, link_to_id, link_to_type, link_extra)
		)`,
		// A task attached to a playlist file is meaningless once the
		// playlist it targets is gone (spec.md's DeletePlaylistLinkingTask).
		`CREATE TRIGGER IF NOT EXISTS delete_playlist_linking_task AFTER DELETE ON Playlist BEGIN
			DELETE FROM Task WHERE type = 2 AND link_to_type = 3 AND link_to_id = old.id_playlist;
		END`,
	)
}

// TaskRepository owns the parser pipeline's persisted work queue.
type TaskRepository struct {
	db *sql.DB
}

func NewTaskRepository(db *sql.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

// Create inserts t, returning mlerrors.ErrAlreadyExists (wrapping the
// driver's unique-constraint error) if an identical
// (mrl, type, link_to_id, link_to_type, link_extra) tuple already exists —
// spec.md invariant 8 turns duplicate discoveries into no-ops this way.
func (r *TaskRepository) Create(t *model.Task) error {
	res, err := r.db.Exec(
		`INSERT INTO Task (type, step, retry_count, mrl, file_id, parent_folder_id, file_type,
		                    link_to_id, link_to_type, link_extra)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.Type, t.Step, t.RetryCount, t.Mrl, t.FileID, t.ParentFolderID, t.FileType,
		t.LinkToID, t.LinkToType, t.LinkExtra,
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
			return fmt.Errorf("%w: task %s", mlerrors.ErrAlreadyExists, t.Mrl)
		}
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return fmt.Errorf("%w: task %s", mlerrors.ErrAlreadyExists, t.Mrl)
		}
		return fmt.Errorf("insert task: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("task last insert id: %w", err)
	}
	t.ID = id
	return nil
}

func (r *TaskRepository) Fetch(id int64) (*model.Task, error) {
	row := r.db.QueryRow(taskSelectColumns+` WHERE id_task = ?`, id)
	return scanTask(row)
}

const taskSelectColumns = `
	SELECT id_task, type, step, retry_count, mrl, file_id, parent_folder_id, file_type,
	       link_to_id, link_to_type, link_extra
	FROM Task`

func scanTask(row *sql.Row) (*model.Task, error) {
	var t model.Task
	err := row.Scan(&t.ID, &t.Type, &t.Step, &t.RetryCount, &t.Mrl, &t.FileID, &t.ParentFolderID, &t.FileType,
		&t.LinkToID, &t.LinkToType, &t.LinkExtra)
	if err == sql.ErrNoRows {
		return nil, mlerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan task: %w", err)
	}
	return &t, nil
}

// FetchUncompleted returns every task whose step bitset hasn't reached
// StepCompleted, whose retry_count hasn't exceeded maxRetries (the
// caller passes parser.MaxNbRetries), and whose owning file — if it has
// one — sits on a currently present device. Mirrors
// original_source's Task::fetchUncompleted join against File/Folder/
// Device and satisfies testable property 7: "for every uncompleted task
// returned by the restore query, is_present(device_of(file)) = true OR
// file_id IS NULL" (file_id is a NOT NULL column here, so 0 stands in
// for NULL).
func (r *TaskRepository) FetchUncompleted(maxRetries uint32) ([]model.Task, error) {
	rows, err := r.db.Query(
		`SELECT t.id_task, t.type, t.step, t.retry_count, t.mrl, t.file_id, t.parent_folder_id, t.file_type,
		        t.link_to_id, t.link_to_type, t.link_extra
		 FROM Task t
		 LEFT JOIN File f ON f.id_file = t.file_id
		 LEFT JOIN Folder fo ON fo.id_folder = f.folder_id
		 LEFT JOIN Device d ON d.id_device = fo.device_id
		 WHERE (t.step & ?) != ?
		   AND t.retry_count <= ?
		   AND (t.file_id = 0 OR d.is_present != 0)`,
		model.StepCompleted, model.StepCompleted, maxRetries,
	)
	if err != nil {
		return nil, fmt.Errorf("query uncompleted tasks: %w", err)
	}
	defer rows.Close()

	var out []model.Task
	for rows.Next() {
		var t model.Task
		if err := rows.Scan(&t.ID, &t.Type, &t.Step, &t.RetryCount, &t.Mrl, &t.FileID, &t.ParentFolderID, &t.FileType,
			&t.LinkToID, &t.LinkToType, &t.LinkExtra); err != nil {
			return nil, fmt.Errorf("scan uncompleted task: %w", err)
		}
		out = append(out, t)
	}
	return out, nil
}

// SaveStep persists a new step bitset after a service finishes with it and
// clears retry_count, per spec.md §4.3's "Success: mark step complete ...
// clear retry_count", mirroring the original's saveParserStep.
func (r *TaskRepository) SaveStep(id int64, step model.ParserStep) error {
	_, err := r.db.Exec(`UPDATE Task SET step = ?, retry_count = 0 WHERE id_task = ?`, step, id)
	if err != nil {
		return fmt.Errorf("save task step: %w", err)
	}
	return nil
}

// DecrementRetryCount is used only by MetadataExtraction's success path: it
// must not call SaveStep, because MetadataExtraction never sets a step bit
// on success (see internal/parser), it only undoes its own earlier retry
// bump so a future crash-loop doesn't exhaust MaxNbRetries prematurely.
func (r *TaskRepository) DecrementRetryCount(id int64) error {
	_, err := r.db.Exec(`UPDATE Task SET retry_count = MAX(retry_count - 1, 0) WHERE id_task = ?`, id)
	if err != nil {
		return fmt.Errorf("decrement task retry count: %w", err)
	}
	return nil
}

// IncrementRetryCount is called before a retryable attempt; the caller
// compares the returned value against parser.MaxNbRetries.
func (r *TaskRepository) IncrementRetryCount(id int64) (uint32, error) {
	_, err := r.db.Exec(`UPDATE Task SET retry_count = retry_count + 1 WHERE id_task = ?`, id)
	if err != nil {
		return 0, fmt.Errorf("increment task retry count: %w", err)
	}
	var count uint32
	if err := r.db.QueryRow(`SELECT retry_count FROM Task WHERE id_task = ?`, id).Scan(&count); err != nil {
		return 0, fmt.Errorf("read task retry count: %w", err)
	}
	return count, nil
}

func (r *TaskRepository) Destroy(id int64) error {
	_, err := r.db.Exec(`DELETE FROM Task WHERE id_task = ?`, id)
	if err != nil {
		return fmt.Errorf("destroy task: %w", err)
	}
	return nil
}
