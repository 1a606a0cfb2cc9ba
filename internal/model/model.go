// Package model defines the persistent entity shapes of the media library.
//
// Every entity carries a stable, monotonically increasing int64 id assigned
// on insertion; ids are never recycled, even after the row they named is
// deleted. Nullable scalar fields use pointers so a zero value and "unset"
// stay distinguishable, matching the convention CineVault's models package
// uses for optional metadata.
package model

import (
	"time"

	"github.com/google/uuid"
)

// EntityType distinguishes the small set of things a Label, a Bookmark, or a
// parser Task can be attached to.
type EntityType uint8

const (
	EntityUnknown EntityType = iota
	EntityMedia
	EntityFolder
	EntityPlaylist
	EntityArtist
	EntityAlbum
	EntityShow
	EntityGenre
)

// MediaType is the coarse classification assigned during metadata analysis.
type MediaType uint8

const (
	MediaUnknown MediaType = iota
	MediaVideo
	MediaAudio
	MediaExternal // referenced only through a playlist entry, never scanned
)

// MediaSubType refines MediaType once enough metadata has been linked.
type MediaSubType uint8

const (
	SubTypeUnknown MediaSubType = iota
	SubTypeShowEpisode
	SubTypeMovie
	SubTypeAlbumTrack
	SubTypeArtistRelease
	SubTypeUnknownAudio
	SubTypeUnknownVideo
)

// Device represents a mount point a Folder may live under: a local disk, a
// removable drive, or a network share.
type Device struct {
	ID         int64
	UUID       uuid.UUID
	Scheme     string // "file", "smb", ...
	IsRemovable bool
	IsNetwork  bool
	IsPresent  bool
	LastSeen   time.Time
}

// Mountpoint is one entry in a network Device's mountpoint history: network
// shares can be reached through more than one UNC path over their lifetime,
// so each sighting is appended rather than overwriting a single field.
type Mountpoint struct {
	DeviceID   int64
	Mountpoint string
	SeenAt     time.Time
}

// Folder is a directory entry point or a discovered sub-directory beneath
// one. Banned folders are moved into the separate BannedFolder table
// rather than flagged on the Folder row, so discovery never sees them.
type Folder struct {
	ID          int64
	DeviceID    int64
	ParentID    *int64
	Path        string // relative to the device root, percent-decoded
	IsRemovable bool
	IsBanned    bool
	BannedAt    *time.Time
	NbMedia     int
	LastSeen    time.Time
}

// File is one filesystem entry backing a Media (or a Playlist, for m3u/
// xspf/etc. container files).
type File struct {
	ID         int64
	MediaID    *int64
	PlaylistID *int64
	FolderID   int64
	Mrl        string
	Type       FileType
	LastModificationDate int64
	Size       int64
	IsRemovable bool
	IsExternal bool
	IsNetwork  bool
}

// FileType distinguishes the role a File plays for its owning Media.
type FileType uint8

const (
	FileUnknown FileType = iota
	FileMain
	FilePart
	FileSoundtrack
	FileSubtitle
	FilePlaylist
)

// Media is the central entity: one row per distinct piece of content,
// whatever its files, metadata, or grouping turn out to be.
type Media struct {
	ID            int64
	Type          MediaType
	SubType       MediaSubType
	Title         string
	FileName      string
	Duration      int64 // milliseconds, -1 until known
	PlayCount     uint32
	LastPlayedAt  *time.Time
	InsertionDate time.Time
	ReleaseDate   *time.Time
	ThumbnailID   *int64
	IsFavorite    bool
	IsPresent     bool
	GroupID       *int64
	NbPlaylists   uint32
	ProgressState ProgressState
	LastPosition  float32
	LastTime      int64
}

// ProgressState is the coarse playback bucket assigned to LastPosition.
type ProgressState uint8

const (
	ProgressUnspecified ProgressState = iota
	ProgressBegin
	ProgressEnd
	ProgressInProgress
)

// MediaGroup is an automatic or user-created grouping of Media rows whose
// titles share a long enough common prefix (see commonPattern in
// internal/entity).
type MediaGroup struct {
	ID            int64
	Name          string
	UserInteracted bool
	NbTotalMedia  uint32
	NbVideo       uint32
	NbAudio       uint32
	NbUnknown     uint32
	Duration      int64
	CreationDate  time.Time
}

// Show is a TV series; ShowEpisode links individual Media rows to it.
type Show struct {
	ID          int64
	Title       string
	ReleaseYear *int
	ShortSummary string
	TvdbID      string
	ThumbnailID *int64
	NbEpisodes  uint32
	NbSeasons   uint32
}

type ShowEpisode struct {
	MediaID      int64
	ShowID       int64
	EpisodeNumber uint32
	SeasonNumber  uint32
}

// Movie holds the subset of metadata specific to a standalone film.
type Movie struct {
	MediaID     int64
	Summary     string
	ImdbID      string
}

// Artist and Album are the music entities; AlbumTrack links a Media row to
// its owning Album with a disc/track position.
type Artist struct {
	ID           int64
	Name         string
	ShortBio     string
	ThumbnailID  *int64
	NbAlbums     uint32
	MusicBrainzID string
}

type Album struct {
	ID          int64
	Title       string
	ArtistID    *int64
	ReleaseYear *int
	ShortSummary string
	ThumbnailID *int64
	NbTracks    uint32
	Duration    int64
}

type AlbumTrack struct {
	MediaID     int64
	AlbumID     int64
	ArtistID    *int64
	TrackNumber uint32
	DiscNumber  uint32
}

// Genre is a loosely many-to-many tag shared by Albums and Media.
type Genre struct {
	ID       int64
	Name     string
	NbTracks uint32
}

// Label is a free-form user tag attachable to any EntityType.
type Label struct {
	ID   int64
	Name string
}

// Playlist is an ordered, user- or import-created sequence of Media.
type Playlist struct {
	ID           int64
	Name         string
	FileID       *int64 // set when backed by an m3u/xspf/... file
	CreationDate time.Time
	NbMedia      uint32
	NbPresentMedia uint32
	Duration     int64
}

// PlaylistMediaRelation is one (playlist, media, position) row; position is
// renumbered by a trigger whenever a member is removed so the sequence
// stays dense.
type PlaylistMediaRelation struct {
	PlaylistID int64
	MediaID    int64
	Position   uint32
}

// Thumbnail is a cached artwork file shared, by refcount, across whichever
// entities link to it via ThumbnailLinking; mutating a shared one clones
// first (internal/thumbnail).
type Thumbnail struct {
	ID             int64
	Mrl            string
	Origin         ThumbnailOrigin
	IsUserProvided bool // true iff Origin == ThumbnailOriginUserProvided; kept as its own column for cheap filtering (flushUserProvidedThumbnails)
	IsOwned        bool // true if Mrl points into the library's managed thumbnail directory
	Status         ThumbnailStatus
	SharedCount    uint32
}

type ThumbnailOrigin uint8

const (
	ThumbnailOriginUnknown ThumbnailOrigin = iota
	ThumbnailOriginMedia
	ThumbnailOriginUserProvided
	ThumbnailOriginCoverFile
	ThumbnailOriginAlbumArtist
	ThumbnailOriginArtist
)

// ThumbnailStatus tracks whether the Thumbnailer service has produced an
// artifact for this row yet, per spec.md §3.
type ThumbnailStatus uint8

const (
	ThumbnailMissing ThumbnailStatus = iota
	ThumbnailAvailable
	ThumbnailFailure
	ThumbnailCrash
	ThumbnailPersistent
)

// ThumbnailSizeType selects which of a Thumbnail's size variants a query
// wants, matching spec.md's small/banner/thumbnail distinction.
type ThumbnailSizeType uint8

const (
	ThumbnailSizeThumbnail ThumbnailSizeType = iota
	ThumbnailSizeBanner
)

// ThumbnailLinking is one (thumbnail, entity, size) row: the join table the
// copy-on-write protocol in internal/thumbnail reads and mutates. A
// Thumbnail is "shared" when more than one (entity_id, entity_type,
// size_type) row points at the same thumbnail_id.
type ThumbnailLinking struct {
	ThumbnailID int64
	EntityID    int64
	EntityType  EntityType
	SizeType    ThumbnailSizeType
}

// Bookmark is a user-set timestamp marker within a single Media.
type Bookmark struct {
	ID      int64
	MediaID int64
	Time    int64
	Name    string
	Description string
}

// Chapter is a detected (not user-created) segment boundary within a Media.
type Chapter struct {
	ID       int64
	MediaID  int64
	Offset   int64
	Duration int64
	Name     string
}

// AudioTrack, VideoTrack and SubtitleTrack hold the stream-level metadata
// extracted for a Media during MetadataExtraction.
type AudioTrack struct {
	ID            int64
	MediaID       int64
	Codec         string
	Bitrate       uint32
	SampleRate    uint32
	NbChannels    uint32
	Language      string
	Description   string
}

type VideoTrack struct {
	ID          int64
	MediaID     int64
	Codec       string
	Width       uint32
	Height      uint32
	Fps         float32
	BitRate     uint32
	SarNum      uint32
	SarDen      uint32
}

type SubtitleTrack struct {
	ID       int64
	MediaID  int64
	Codec    string
	Language string
	Description string
	Encoding string
}

// Subscription is a cached, periodically-refreshed feed (e.g. a podcast)
// that internal/cacheworker keeps a bounded number of episodes of on disk.
type Subscription struct {
	ID          int64
	Name        string
	FeedMrl     string
	Type        SubscriptionType
	SourceID    int64 // Playlist.id or MediaGroup.id, per Type
	MaxCachedMedia int
	MaxCacheSize   int64
}

type SubscriptionType uint8

const (
	SubscriptionPlaylist SubscriptionType = iota
	SubscriptionMediaGroup
)

// Settings is the single schema-version/bookkeeping row. Exactly one row
// exists; it is read on open and compared against the current schema
// version baked into internal/sqlitedb.
type Settings struct {
	SchemaVersion uint32
	DbModelVersion uint32
}

// TaskType distinguishes the four circumstances that produce a Task, per
// spec.md §4.5.
type TaskType uint8

const (
	TaskCreation TaskType = iota
	TaskRefresh
	TaskLink
	TaskRestore
)

// Task mirrors the parser pipeline's persisted work item; Step is a bitset
// of ParserStep values, not a single enum, since a Task can be partway
// through more than one service dimension after a restart. Task is unique
// by (Mrl, Type, LinkToID, LinkToType, LinkExtra): a second insert of the
// same tuple is rejected so duplicate discoveries become no-ops.
type Task struct {
	ID          int64
	Type        TaskType
	Step        ParserStep
	RetryCount  uint32
	Mrl         string
	FileID      int64
	ParentFolderID int64
	FileType    FileType
	LinkToID    int64
	LinkToType  EntityType
	LinkExtra   uint8
}

// ParserStep is the bitset recorded in Task.Step.
type ParserStep uint8

const (
	StepNone               ParserStep = 0
	StepMetadataExtraction ParserStep = 1 << 0
	StepMetadataAnalysis   ParserStep = 1 << 1
	StepLinking            ParserStep = 1 << 2
	StepThumbnailer        ParserStep = 1 << 3
	StepCompleted                     = StepMetadataAnalysis | StepLinking
)
