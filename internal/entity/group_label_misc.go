package entity

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/silverreel/medialib/internal/mlerrors"
	"github.com/silverreel/medialib/internal/model"
	"github.com/silverreel/medialib/internal/sqlitedb"
)

func init() {
	sqlitedb.Register(
		`CREATE TABLE IF NOT EXISTS MediaGroup (
			id_group INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			user_interacted BOOLEAN NOT NULL DEFAULT 0,
			nb_total_media INTEGER NOT NULL DEFAULT 0,
			nb_video INTEGER NOT NULL DEFAULT 0,
			nb_audio INTEGER NOT NULL DEFAULT 0,
			nb_unknown INTEGER NOT NULL DEFAULT 0,
			duration INTEGER NOT NULL DEFAULT 0,
			creation_date INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS Label (
			id_label INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE
		)`,
		`CREATE TABLE IF NOT EXISTS LabelFileRelation (
			label_id INTEGER NOT NULL,
			entity_id INTEGER NOT NULL,
			entity_type INTEGER NOT NULL,
			PRIMARY KEY (label_id, entity_id, entity_type)
		)`,
		`CREATE TABLE IF NOT EXISTS Bookmark (
			id_bookmark INTEGER PRIMARY KEY AUTOINCREMENT,
			media_id INTEGER NOT NULL,
			time INTEGER NOT NULL,
			name TEXT,
			description TEXT,
			FOREIGN KEY (media_id) REFERENCES Media(id_media) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS Chapter (
			id_chapter INTEGER PRIMARY KEY AUTOINCREMENT,
			media_id INTEGER NOT NULL,
			offset INTEGER NOT NULL,
			duration INTEGER NOT NULL,
			name TEXT,
			FOREIGN KEY (media_id) REFERENCES Media(id_media) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS AudioTrack (
			id_track INTEGER PRIMARY KEY AUTOINCREMENT,
			media_id INTEGER NOT NULL,
			codec TEXT,
			bitrate INTEGER,
			sample_rate INTEGER,
			nb_channels INTEGER,
			language TEXT,
			description TEXT,
			FOREIGN KEY (media_id) REFERENCES Media(id_media) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS VideoTrack (
			id_track INTEGER PRIMARY KEY AUTOINCREMENT,
			media_id INTEGER NOT NULL,
			codec TEXT,
			width INTEGER,
			height INTEGER,
			fps REAL,
			bitrate INTEGER,
			sar_num INTEGER,
			sar_den INTEGER,
			FOREIGN KEY (media_id) REFERENCES Media(id_media) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS SubtitleTrack (
			id_track INTEGER PRIMARY KEY AUTOINCREMENT,
			media_id INTEGER NOT NULL,
			codec TEXT,
			language TEXT,
			description TEXT,
			encoding TEXT,
			FOREIGN KEY (media_id) REFERENCES Media(id_media) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS Subscription (
			id_subscription INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			feed_mrl TEXT NOT NULL,
			type INTEGER NOT NULL,
			source_id INTEGER NOT NULL,
			max_cached_media INTEGER NOT NULL DEFAULT 0,
			max_cache_size INTEGER NOT NULL DEFAULT 0
		)`,
	)
}

// commonPatternMinLength is the minimum shared-prefix length for two media
// titles to be considered "the same group", matching the original's
// commonPattern threshold.
const commonPatternMinLength = 6

// CommonPattern returns the longest common prefix of a and b if it meets
// commonPatternMinLength, otherwise "".
func CommonPattern(a, b string) string {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	if i < commonPatternMinLength {
		return ""
	}
	return strings.TrimSpace(a[:i])
}

type MediaGroupRepository struct{ db *sql.DB }

func NewMediaGroupRepository(db *sql.DB) *MediaGroupRepository { return &MediaGroupRepository{db: db} }

func (r *MediaGroupRepository) Create(g *model.MediaGroup) error {
	if g.CreationDate.IsZero() {
		g.CreationDate = time.Now()
	}
	res, err := r.db.Exec(`INSERT INTO MediaGroup (name, creation_date) VALUES (?, ?)`,
		g.Name, g.CreationDate.Unix())
	if err != nil {
		return fmt.Errorf("insert media group: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("media group last insert id: %w", err)
	}
	g.ID = id
	return nil
}

func (r *MediaGroupRepository) FetchByName(name string) (*model.MediaGroup, error) {
	row := r.db.QueryRow(`SELECT id_group, name, user_interacted, nb_total_media, nb_video, nb_audio,
		nb_unknown, duration, creation_date FROM MediaGroup WHERE name = ?`, name)
	var g model.MediaGroup
	var creationDate int64
	err := row.Scan(&g.ID, &g.Name, &g.UserInteracted, &g.NbTotalMedia, &g.NbVideo, &g.NbAudio,
		&g.NbUnknown, &g.Duration, &creationDate)
	if err == sql.ErrNoRows {
		return nil, mlerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan media group: %w", err)
	}
	g.CreationDate = time.Unix(creationDate, 0)
	return &g, nil
}

// AssignMedia attaches a media row to the group and bumps its counters.
func (r *MediaGroupRepository) AssignMedia(groupID, mediaID int64, mediaType model.MediaType) error {
	_, err := r.db.Exec(`UPDATE Media SET group_id = ? WHERE id_media = ?`, groupID, mediaID)
	if err != nil {
		return fmt.Errorf("assign media to group: %w", err)
	}
	column := "nb_unknown"
	switch mediaType {
	case model.MediaVideo:
		column = "nb_video"
	case model.MediaAudio:
		column = "nb_audio"
	}
	_, err = r.db.Exec(`UPDATE MediaGroup SET nb_total_media = nb_total_media + 1, `+column+` = `+column+` + 1
		WHERE id_group = ?`, groupID)
	if err != nil {
		return fmt.Errorf("update media group counters: %w", err)
	}
	return nil
}

type LabelRepository struct{ db *sql.DB }

func NewLabelRepository(db *sql.DB) *LabelRepository { return &LabelRepository{db: db} }

func (r *LabelRepository) FetchOrCreate(name string) (*model.Label, error) {
	row := r.db.QueryRow(`SELECT id_label, name FROM Label WHERE name = ?`, name)
	var l model.Label
	if err := row.Scan(&l.ID, &l.Name); err == nil {
		return &l, nil
	} else if err != sql.ErrNoRows {
		return nil, fmt.Errorf("fetch label: %w", err)
	}
	res, err := r.db.Exec(`INSERT INTO Label (name) VALUES (?)`, name)
	if err != nil {
		return nil, fmt.Errorf("insert label: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("label last insert id: %w", err)
	}
	return &model.Label{ID: id, Name: name}, nil
}

func (r *LabelRepository) Attach(labelID, entityID int64, entityType model.EntityType) error {
	_, err := r.db.Exec(
		`INSERT OR IGNORE INTO LabelFileRelation (label_id, entity_id, entity_type) VALUES (?, ?, ?)`,
		labelID, entityID, entityType,
	)
	if err != nil {
		return fmt.Errorf("attach label: %w", err)
	}
	return nil
}

type BookmarkRepository struct{ db *sql.DB }

func NewBookmarkRepository(db *sql.DB) *BookmarkRepository { return &BookmarkRepository{db: db} }

func (r *BookmarkRepository) Create(b *model.Bookmark) error {
	res, err := r.db.Exec(`INSERT INTO Bookmark (media_id, time, name, description) VALUES (?, ?, ?, ?)`,
		b.MediaID, b.Time, b.Name, b.Description)
	if err != nil {
		return fmt.Errorf("insert bookmark: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("bookmark last insert id: %w", err)
	}
	b.ID = id
	return nil
}

func (r *BookmarkRepository) ByMedia(mediaID int64) ([]model.Bookmark, error) {
	rows, err := r.db.Query(`SELECT id_bookmark, media_id, time, name, description
		FROM Bookmark WHERE media_id = ? ORDER BY time ASC`, mediaID)
	if err != nil {
		return nil, fmt.Errorf("query bookmarks: %w", err)
	}
	defer rows.Close()

	var out []model.Bookmark
	for rows.Next() {
		var b model.Bookmark
		if err := rows.Scan(&b.ID, &b.MediaID, &b.Time, &b.Name, &b.Description); err != nil {
			return nil, fmt.Errorf("scan bookmark: %w", err)
		}
		out = append(out, b)
	}
	return out, nil
}

type ChapterRepository struct{ db *sql.DB }

func NewChapterRepository(db *sql.DB) *ChapterRepository { return &ChapterRepository{db: db} }

func (r *ChapterRepository) Create(c *model.Chapter) error {
	res, err := r.db.Exec(`INSERT INTO Chapter (media_id, offset, duration, name) VALUES (?, ?, ?, ?)`,
		c.MediaID, c.Offset, c.Duration, c.Name)
	if err != nil {
		return fmt.Errorf("insert chapter: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("chapter last insert id: %w", err)
	}
	c.ID = id
	return nil
}

// TrackRepository owns AudioTrack, VideoTrack and SubtitleTrack — the three
// stream-metadata tables MetadataExtraction populates.
type TrackRepository struct{ db *sql.DB }

func NewTrackRepository(db *sql.DB) *TrackRepository { return &TrackRepository{db: db} }

func (r *TrackRepository) AddAudioTrack(t *model.AudioTrack) error {
	_, err := r.db.Exec(
		`INSERT INTO AudioTrack (media_id, codec, bitrate, sample_rate, nb_channels, language, description)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.MediaID, t.Codec, t.Bitrate, t.SampleRate, t.NbChannels, t.Language, t.Description,
	)
	if err != nil {
		return fmt.Errorf("insert audio track: %w", err)
	}
	return nil
}

func (r *TrackRepository) AddVideoTrack(t *model.VideoTrack) error {
	_, err := r.db.Exec(
		`INSERT INTO VideoTrack (media_id, codec, width, height, fps, bitrate, sar_num, sar_den)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.MediaID, t.Codec, t.Width, t.Height, t.Fps, t.BitRate, t.SarNum, t.SarDen,
	)
	if err != nil {
		return fmt.Errorf("insert video track: %w", err)
	}
	return nil
}

func (r *TrackRepository) AddSubtitleTrack(t *model.SubtitleTrack) error {
	_, err := r.db.Exec(
		`INSERT INTO SubtitleTrack (media_id, codec, language, description, encoding)
		 VALUES (?, ?, ?, ?, ?)`,
		t.MediaID, t.Codec, t.Language, t.Description, t.Encoding,
	)
	if err != nil {
		return fmt.Errorf("insert subtitle track: %w", err)
	}
	return nil
}

type SubscriptionRepository struct{ db *sql.DB }

func NewSubscriptionRepository(db *sql.DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

func (r *SubscriptionRepository) Create(s *model.Subscription) error {
	res, err := r.db.Exec(
		`INSERT INTO Subscription (name, feed_mrl, type, source_id, max_cached_media, max_cache_size)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		s.Name, s.FeedMrl, s.Type, s.SourceID, s.MaxCachedMedia, s.MaxCacheSize,
	)
	if err != nil {
		return fmt.Errorf("insert subscription: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("subscription last insert id: %w", err)
	}
	s.ID = id
	return nil
}

// ListSubscriptions returns every Subscription row, the set
// internal/cacheworker's cacheAllSubscriptions op iterates.
func (r *SubscriptionRepository) ListSubscriptions() ([]model.Subscription, error) {
	rows, err := r.db.Query(`SELECT id_subscription, name, feed_mrl, type, source_id, max_cached_media, max_cache_size
		FROM Subscription`)
	if err != nil {
		return nil, fmt.Errorf("query subscriptions: %w", err)
	}
	defer rows.Close()

	var out []model.Subscription
	for rows.Next() {
		var s model.Subscription
		if err := rows.Scan(&s.ID, &s.Name, &s.FeedMrl, &s.Type, &s.SourceID, &s.MaxCachedMedia, &s.MaxCacheSize); err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		out = append(out, s)
	}
	return out, nil
}

// MembersToCache returns the media ids subscriptionID should have cached,
// most-recent-first and capped at its MaxCachedMedia, resolving the
// membership through Playlist or MediaGroup depending on Type.
func (r *SubscriptionRepository) MembersToCache(subscriptionID int64) ([]int64, error) {
	var sourceID int64
	var subType model.SubscriptionType
	var limit int
	if err := r.db.QueryRow(
		`SELECT source_id, type, max_cached_media FROM Subscription WHERE id_subscription = ?`, subscriptionID,
	).Scan(&sourceID, &subType, &limit); err != nil {
		return nil, fmt.Errorf("fetch subscription source: %w", err)
	}
	if limit <= 0 {
		limit = 50
	}

	var rows *sql.Rows
	var err error
	switch subType {
	case model.SubscriptionPlaylist:
		rows, err = r.db.Query(
			`SELECT media_id FROM PlaylistMediaRelation WHERE playlist_id = ? ORDER BY position DESC LIMIT ?`,
			sourceID, limit,
		)
	case model.SubscriptionMediaGroup:
		rows, err = r.db.Query(
			`SELECT id_media FROM Media WHERE group_id = ? ORDER BY insertion_date DESC LIMIT ?`,
			sourceID, limit,
		)
	default:
		return nil, fmt.Errorf("unknown subscription type %d", subType)
	}
	if err != nil {
		return nil, fmt.Errorf("query subscription members: %w", err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var mediaID int64
		if err := rows.Scan(&mediaID); err != nil {
			return nil, fmt.Errorf("scan subscription member: %w", err)
		}
		out = append(out, mediaID)
	}
	return out, nil
}
