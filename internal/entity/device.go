package entity

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/silverreel/medialib/internal/mlerrors"
	"github.com/silverreel/medialib/internal/model"
	"github.com/silverreel/medialib/internal/sqlitedb"
)

func init() {
	sqlitedb.Register(
		`CREATE TABLE IF NOT EXISTS Device (
			id_device INTEGER PRIMARY KEY AUTOINCREMENT,
			uuid TEXT NOT NULL UNIQUE,
			scheme TEXT NOT NULL,
			is_removable BOOLEAN NOT NULL DEFAULT 0,
			is_network BOOLEAN NOT NULL DEFAULT 0,
			is_present BOOLEAN NOT NULL DEFAULT 0,
			last_seen INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS DeviceMountpoint (
			device_id INTEGER NOT NULL,
			mountpoint TEXT NOT NULL,
			seen_at INTEGER NOT NULL,
			FOREIGN KEY (device_id) REFERENCES Device(id_device) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS device_mountpoint_idx ON DeviceMountpoint(device_id)`,
		// spec.md invariant 1: Device.is_present propagates to every File
		// rooted under it (and, via File's own media_presence_cascade
		// trigger, on to Media) within the same update statement, so a
		// reader never observes a half-applied presence transition.
		`CREATE TRIGGER IF NOT EXISTS device_presence_cascade AFTER UPDATE OF is_present ON Device BEGIN
			UPDATE File SET is_present = new.is_present
			WHERE folder_id IN (SELECT id_folder FROM Folder WHERE device_id = new.id_device);
		END`,
	)
}

// DeviceRepository owns the Device and DeviceMountpoint tables. Network
// devices accumulate mountpoint history instead of overwriting a single
// field, since they can be reached through more than one UNC path.
type DeviceRepository struct {
	db *sql.DB
}

func NewDeviceRepository(db *sql.DB) *DeviceRepository {
	return &DeviceRepository{db: db}
}

func (r *DeviceRepository) Create(d *model.Device) error {
	if d.UUID == uuid.Nil {
		d.UUID = uuid.New()
	}
	res, err := r.db.Exec(
		`INSERT INTO Device (uuid, scheme, is_removable, is_network, is_present, last_seen)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		d.UUID.String(), d.Scheme, d.IsRemovable, d.IsNetwork, d.IsPresent, d.LastSeen.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert device: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("device last insert id: %w", err)
	}
	d.ID = id
	return nil
}

func (r *DeviceRepository) FetchByUUID(deviceUUID uuid.UUID) (*model.Device, error) {
	row := r.db.QueryRow(
		`SELECT id_device, uuid, scheme, is_removable, is_network, is_present, last_seen
		 FROM Device WHERE uuid = ?`, deviceUUID.String(),
	)
	return scanDevice(row)
}

func (r *DeviceRepository) Fetch(id int64) (*model.Device, error) {
	row := r.db.QueryRow(
		`SELECT id_device, uuid, scheme, is_removable, is_network, is_present, last_seen
		 FROM Device WHERE id_device = ?`, id,
	)
	return scanDevice(row)
}

func scanDevice(row *sql.Row) (*model.Device, error) {
	var d model.Device
	var uuidStr string
	var lastSeen int64
	err := row.Scan(&d.ID, &uuidStr, &d.Scheme, &d.IsRemovable, &d.IsNetwork, &d.IsPresent, &lastSeen)
	if err == sql.ErrNoRows {
		return nil, mlerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan device: %w", err)
	}
	d.UUID, err = uuid.Parse(uuidStr)
	if err != nil {
		return nil, fmt.Errorf("parse device uuid: %w", err)
	}
	d.LastSeen = time.Unix(lastSeen, 0)
	return &d, nil
}

// SetPresent updates presence and, for present network devices, records a
// mountpoint sighting.
func (r *DeviceRepository) SetPresent(id int64, present bool, mountpoint string) error {
	now := time.Now()
	_, err := r.db.Exec(`UPDATE Device SET is_present = ?, last_seen = ? WHERE id_device = ?`,
		present, now.Unix(), id)
	if err != nil {
		return fmt.Errorf("update device presence: %w", err)
	}
	if present && mountpoint != "" {
		if err := r.AddMountpoint(id, mountpoint); err != nil {
			return err
		}
	}
	return nil
}

// AddMountpoint appends a sighting to the device's mountpoint history.
func (r *DeviceRepository) AddMountpoint(deviceID int64, mountpoint string) error {
	_, err := r.db.Exec(`INSERT INTO DeviceMountpoint (device_id, mountpoint, seen_at) VALUES (?, ?, ?)`,
		deviceID, mountpoint, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("insert mountpoint: %w", err)
	}
	return nil
}

// Mountpoints returns the full sighting history for a network device, most
// recent first.
func (r *DeviceRepository) Mountpoints(deviceID int64) ([]model.Mountpoint, error) {
	rows, err := r.db.Query(
		`SELECT device_id, mountpoint, seen_at FROM DeviceMountpoint
		 WHERE device_id = ? ORDER BY seen_at DESC`, deviceID)
	if err != nil {
		return nil, fmt.Errorf("query mountpoints: %w", err)
	}
	defer rows.Close()

	var out []model.Mountpoint
	for rows.Next() {
		var m model.Mountpoint
		var seenAt int64
		if err := rows.Scan(&m.DeviceID, &m.Mountpoint, &seenAt); err != nil {
			return nil, fmt.Errorf("scan mountpoint: %w", err)
		}
		m.SeenAt = time.Unix(seenAt, 0)
		out = append(out, m)
	}
	return out, nil
}
