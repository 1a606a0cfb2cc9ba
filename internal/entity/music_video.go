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
		`CREATE TABLE IF NOT EXISTS Artist (
			id_artist INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE,
			short_bio TEXT,
			thumbnail_id INTEGER,
			nb_albums INTEGER NOT NULL DEFAULT 0,
			musicbrainz_id TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS Album (
			id_album INTEGER PRIMARY KEY AUTOINCREMENT,
			title TEXT NOT NULL,
			artist_id INTEGER,
			release_year INTEGER,
			short_summary TEXT,
			thumbnail_id INTEGER,
			nb_tracks INTEGER NOT NULL DEFAULT 0,
			duration INTEGER NOT NULL DEFAULT 0,
			FOREIGN KEY (artist_id) REFERENCES Artist(id_artist) ON DELETE SET NULL
		)`,
		`CREATE TABLE IF NOT EXISTS AlbumTrack (
			media_id INTEGER PRIMARY KEY,
			album_id INTEGER NOT NULL,
			artist_id INTEGER,
			track_number INTEGER NOT NULL DEFAULT 0,
			disc_number INTEGER NOT NULL DEFAULT 1,
			FOREIGN KEY (media_id) REFERENCES Media(id_media) ON DELETE CASCADE,
			FOREIGN KEY (album_id) REFERENCES Album(id_album) ON DELETE CASCADE
		)`,
		`CREATE TRIGGER IF NOT EXISTS album_track_insert AFTER INSERT ON AlbumTrack BEGIN
			UPDATE Album SET nb_tracks = nb_tracks + 1 WHERE id_album = new.album_id;
			UPDATE Artist SET nb_albums = (
				SELECT COUNT(DISTINCT album_id) FROM AlbumTrack WHERE artist_id = new.artist_id
			) WHERE id_artist = new.artist_id;
		END`,
		`CREATE TRIGGER IF NOT EXISTS album_track_delete AFTER DELETE ON AlbumTrack BEGIN
			UPDATE Album SET nb_tracks = nb_tracks - 1 WHERE id_album = old.album_id;
		END`,
		`CREATE TABLE IF NOT EXISTS Show (
			id_show INTEGER PRIMARY KEY AUTOINCREMENT,
			title TEXT NOT NULL,
			release_year INTEGER,
			short_summary TEXT,
			tvdb_id TEXT,
			thumbnail_id INTEGER,
			nb_episodes INTEGER NOT NULL DEFAULT 0,
			nb_seasons INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS ShowEpisode (
			media_id INTEGER PRIMARY KEY,
			show_id INTEGER NOT NULL,
			episode_number INTEGER NOT NULL DEFAULT 0,
			season_number INTEGER NOT NULL DEFAULT 0,
			FOREIGN KEY (media_id) REFERENCES Media(id_media) ON DELETE CASCADE,
			FOREIGN KEY (show_id) REFERENCES Show(id_show) ON DELETE CASCADE
		)`,
		`CREATE TRIGGER IF NOT EXISTS show_episode_insert AFTER INSERT ON ShowEpisode BEGIN
			UPDATE Show SET nb_episodes = nb_episodes + 1 WHERE id_show = new.show_id;
		END`,
		`CREATE TABLE IF NOT EXISTS Movie (
			media_id INTEGER PRIMARY KEY,
			summary TEXT,
			imdb_id TEXT,
			FOREIGN KEY (media_id) REFERENCES Media(id_media) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS Genre (
			id_genre INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE,
			nb_tracks INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS AlbumGenreRelation (
			album_id INTEGER NOT NULL,
			genre_id INTEGER NOT NULL,
			PRIMARY KEY (album_id, genre_id)
		)`,
	)
}

// ArtistRepository and AlbumRepository follow the same shape as the
// entity package's other single-table repositories; only the operations
// the query/linking layers actually call are exposed.

type ArtistRepository struct{ db *sql.DB }

func NewArtistRepository(db *sql.DB) *ArtistRepository { return &ArtistRepository{db: db} }

func (r *ArtistRepository) FetchOrCreateByName(name string) (*model.Artist, error) {
	row := r.db.QueryRow(`SELECT id_artist, name, short_bio, thumbnail_id, nb_albums, musicbrainz_id
		FROM Artist WHERE name = ?`, name)
	var a model.Artist
	err := row.Scan(&a.ID, &a.Name, &a.ShortBio, &a.ThumbnailID, &a.NbAlbums, &a.MusicBrainzID)
	if err == nil {
		return &a, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("fetch artist: %w", err)
	}
	res, err := r.db.Exec(`INSERT INTO Artist (name) VALUES (?)`, name)
	if err != nil {
		return nil, fmt.Errorf("insert artist: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("artist last insert id: %w", err)
	}
	return &model.Artist{ID: id, Name: name}, nil
}

func (r *ArtistRepository) Fetch(id int64) (*model.Artist, error) {
	row := r.db.QueryRow(`SELECT id_artist, name, short_bio, thumbnail_id, nb_albums, musicbrainz_id
		FROM Artist WHERE id_artist = ?`, id)
	var a model.Artist
	err := row.Scan(&a.ID, &a.Name, &a.ShortBio, &a.ThumbnailID, &a.NbAlbums, &a.MusicBrainzID)
	if err == sql.ErrNoRows {
		return nil, mlerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan artist: %w", err)
	}
	return &a, nil
}

type AlbumRepository struct{ db *sql.DB }

func NewAlbumRepository(db *sql.DB) *AlbumRepository { return &AlbumRepository{db: db} }

func (r *AlbumRepository) FetchOrCreate(title string, artistID *int64) (*model.Album, error) {
	row := r.db.QueryRow(`SELECT id_album, title, artist_id, release_year, short_summary, thumbnail_id,
		nb_tracks, duration FROM Album WHERE title = ? AND artist_id IS ?`, title, artistID)
	var a model.Album
	err := row.Scan(&a.ID, &a.Title, &a.ArtistID, &a.ReleaseYear, &a.ShortSummary, &a.ThumbnailID,
		&a.NbTracks, &a.Duration)
	if err == nil {
		return &a, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("fetch album: %w", err)
	}
	res, err := r.db.Exec(`INSERT INTO Album (title, artist_id) VALUES (?, ?)`, title, artistID)
	if err != nil {
		return nil, fmt.Errorf("insert album: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("album last insert id: %w", err)
	}
	return &model.Album{ID: id, Title: title, ArtistID: artistID}, nil
}

func (r *AlbumRepository) Fetch(id int64) (*model.Album, error) {
	row := r.db.QueryRow(`SELECT id_album, title, artist_id, release_year, short_summary, thumbnail_id,
		nb_tracks, duration FROM Album WHERE id_album = ?`, id)
	var a model.Album
	err := row.Scan(&a.ID, &a.Title, &a.ArtistID, &a.ReleaseYear, &a.ShortSummary, &a.ThumbnailID,
		&a.NbTracks, &a.Duration)
	if err == sql.ErrNoRows {
		return nil, mlerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan album: %w", err)
	}
	return &a, nil
}

// AlbumTrackRepository links a Media row into an Album at a disc/track
// position.
type AlbumTrackRepository struct{ db *sql.DB }

func NewAlbumTrackRepository(db *sql.DB) *AlbumTrackRepository { return &AlbumTrackRepository{db: db} }

func (r *AlbumTrackRepository) Link(t *model.AlbumTrack) error {
	_, err := r.db.Exec(
		`INSERT INTO AlbumTrack (media_id, album_id, artist_id, track_number, disc_number)
		 VALUES (?, ?, ?, ?, ?)`,
		t.MediaID, t.AlbumID, t.ArtistID, t.TrackNumber, t.DiscNumber,
	)
	if err != nil {
		return fmt.Errorf("link album track: %w", err)
	}
	return nil
}

// ShowRepository and MovieRepository own the video-entity linking tables.
type ShowRepository struct{ db *sql.DB }

func NewShowRepository(db *sql.DB) *ShowRepository { return &ShowRepository{db: db} }

func (r *ShowRepository) FetchOrCreateByTitle(title string) (*model.Show, error) {
	row := r.db.QueryRow(`SELECT id_show, title, release_year, short_summary, tvdb_id, thumbnail_id,
		nb_episodes, nb_seasons FROM Show WHERE title = ?`, title)
	var s model.Show
	err := row.Scan(&s.ID, &s.Title, &s.ReleaseYear, &s.ShortSummary, &s.TvdbID, &s.ThumbnailID,
		&s.NbEpisodes, &s.NbSeasons)
	if err == nil {
		return &s, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("fetch show: %w", err)
	}
	res, err := r.db.Exec(`INSERT INTO Show (title) VALUES (?)`, title)
	if err != nil {
		return nil, fmt.Errorf("insert show: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("show last insert id: %w", err)
	}
	return &model.Show{ID: id, Title: title}, nil
}

func (r *ShowRepository) LinkEpisode(ep *model.ShowEpisode) error {
	_, err := r.db.Exec(
		`INSERT INTO ShowEpisode (media_id, show_id, episode_number, season_number) VALUES (?, ?, ?, ?)`,
		ep.MediaID, ep.ShowID, ep.EpisodeNumber, ep.SeasonNumber,
	)
	if err != nil {
		return fmt.Errorf("link show episode: %w", err)
	}
	return nil
}

type MovieRepository struct{ db *sql.DB }

func NewMovieRepository(db *sql.DB) *MovieRepository { return &MovieRepository{db: db} }

func (r *MovieRepository) Create(m *model.Movie) error {
	_, err := r.db.Exec(`INSERT INTO Movie (media_id, summary, imdb_id) VALUES (?, ?, ?)`,
		m.MediaID, m.Summary, m.ImdbID)
	if err != nil {
		return fmt.Errorf("insert movie: %w", err)
	}
	return nil
}

type GenreRepository struct{ db *sql.DB }

func NewGenreRepository(db *sql.DB) *GenreRepository { return &GenreRepository{db: db} }

func (r *GenreRepository) FetchOrCreate(name string) (*model.Genre, error) {
	row := r.db.QueryRow(`SELECT id_genre, name, nb_tracks FROM Genre WHERE name = ?`, name)
	var g model.Genre
	if err := row.Scan(&g.ID, &g.Name, &g.NbTracks); err == nil {
		return &g, nil
	} else if err != sql.ErrNoRows {
		return nil, fmt.Errorf("fetch genre: %w", err)
	}
	res, err := r.db.Exec(`INSERT INTO Genre (name) VALUES (?)`, name)
	if err != nil {
		return nil, fmt.Errorf("insert genre: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("genre last insert id: %w", err)
	}
	return &model.Genre{ID: id, Name: name}, nil
}
