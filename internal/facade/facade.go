// Package facade assembles every subsystem — storage, discoverer, parser
// pipeline, filesystem holder, cache worker, thumbnail manager — into the
// single MediaLibrary handle a host embeds, mirroring the way the teacher's
// cmd/cinevault wired its server, job queue, and scheduler from one
// composition root. Where the teacher exposed that wiring over HTTP, this
// package exposes it as a plain Go API: New, Start, Stop, and the
// query/mutation surface spec.md §6 calls for.
package facade

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/silverreel/medialib/internal/cacheworker"
	"github.com/silverreel/medialib/internal/config"
	"github.com/silverreel/medialib/internal/discoverer"
	"github.com/silverreel/medialib/internal/entity"
	"github.com/silverreel/medialib/internal/fsholder"
	"github.com/silverreel/medialib/internal/history"
	"github.com/silverreel/medialib/internal/model"
	"github.com/silverreel/medialib/internal/parser"
	"github.com/silverreel/medialib/internal/query"
	"github.com/silverreel/medialib/internal/sqlitedb"
	"github.com/silverreel/medialib/internal/swmr"
	"github.com/silverreel/medialib/internal/thumbnail"
	"github.com/silverreel/medialib/internal/vfs"
)

// Callbacks is the host-supplied event sink; every field is optional. Names
// mirror spec.md §6's on<Entity>Added/Modified/Deleted and subsystem
// progress callbacks.
type Callbacks struct {
	OnMediaAdded        func(media *model.Media)
	OnMediaModified      func(media *model.Media)
	OnMediaDeleted       func(id int64)
	OnDiscoveryStarted  func(entryPoint string)
	OnDiscoveryProgress func(entryPoint string, nbDiscovered int)
	OnDiscoveryCompleted func(entryPoint string)
	OnParserIdleChanged func(idle bool)
	OnHistoryChanged    func(t history.Type)
	OnThumbnailReady    func(entityID int64, entityType model.EntityType)
	OnSubscriptionCache func(subscriptionID int64)
}

// MediaLibrary is the top-level handle: every repository, worker, and
// manager this module builds is reachable only through it, the same way
// the teacher's Server struct was the single composition point for its
// HTTP handlers and background jobs.
type MediaLibrary struct {
	cfg *config.Config
	log zerolog.Logger
	db  *sqlitedb.DB
	lock *swmr.Lock

	devices    *entity.DeviceRepository
	folders    *entity.FolderRepository
	files      *entity.FileRepository
	media      *entity.MediaRepository
	playlists  *entity.PlaylistRepository
	tasks      *entity.TaskRepository
	thumbnails *entity.ThumbnailRepository
	linking    *entity.ThumbnailLinkingRepository
	groups     *entity.MediaGroupRepository
	labels     *entity.LabelRepository
	bookmarks  *entity.BookmarkRepository
	chapters   *entity.ChapterRepository
	tracks     *entity.TrackRepository
	artists    *entity.ArtistRepository
	albums     *entity.AlbumRepository
	albumTracks *entity.AlbumTrackRepository
	shows      *entity.ShowRepository
	movies     *entity.MovieRepository
	genres     *entity.GenreRepository
	subscriptions *entity.SubscriptionRepository

	holder   *fsholder.Holder
	disco    *discoverer.Worker
	parse    *parser.Parser
	thumbs   *thumbnail.Manager
	cache    *cacheworker.Worker

	cb Callbacks

	mu       sync.Mutex
	started  bool
	cancel   context.CancelFunc
}

// New wires every subsystem from cfg without starting any background
// goroutine; call Start to launch the discoverer, parser, and cache
// worker loops.
func New(cfg *config.Config, log zerolog.Logger, cb Callbacks) (*MediaLibrary, error) {
	db, err := sqlitedb.Open(cfg.DatabasePath, log)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	m := &MediaLibrary{
		cfg: cfg,
		log: log,
		db:  db,
		lock: swmr.New(),
		cb:   cb,
	}
	m.devices = entity.NewDeviceRepository(db.SQL)
	m.folders = entity.NewFolderRepository(db.SQL)
	m.files = entity.NewFileRepository(db.SQL)
	m.media = entity.NewMediaRepository(db.SQL)
	m.playlists = entity.NewPlaylistRepository(db.SQL)
	m.tasks = entity.NewTaskRepository(db.SQL)
	m.thumbnails = entity.NewThumbnailRepository(db.SQL)
	m.linking = entity.NewThumbnailLinkingRepository(db.SQL)
	m.groups = entity.NewMediaGroupRepository(db.SQL)
	m.labels = entity.NewLabelRepository(db.SQL)
	m.bookmarks = entity.NewBookmarkRepository(db.SQL)
	m.chapters = entity.NewChapterRepository(db.SQL)
	m.tracks = entity.NewTrackRepository(db.SQL)
	m.artists = entity.NewArtistRepository(db.SQL)
	m.albums = entity.NewAlbumRepository(db.SQL)
	m.albumTracks = entity.NewAlbumTrackRepository(db.SQL)
	m.shows = entity.NewShowRepository(db.SQL)
	m.movies = entity.NewMovieRepository(db.SQL)
	m.genres = entity.NewGenreRepository(db.SQL)
	m.subscriptions = entity.NewSubscriptionRepository(db.SQL)

	m.thumbs = thumbnail.New(m.thumbnails, m.linking, log)

	m.holder = fsholder.New(log)
	m.holder.AddFsFactory(vfs.NewLocalFactory(log))
	m.holder.SetNetworkEnabled(cfg.NetworkDiscoveryEnabled)
	m.holder.OnPresenceChange(m.onDevicePresenceChanged)

	m.disco = discoverer.New(log, m.holder, m.folders, m.files, m.devices, m.onFileDiscovered)
	m.disco.OnProgress(func(entryPoint string, nbDiscovered int) {
		if m.cb.OnDiscoveryProgress != nil {
			m.cb.OnDiscoveryProgress(entryPoint, nbDiscovered)
		}
	})
	m.disco.OnCompleted(func(entryPoint string) {
		if m.cb.OnDiscoveryCompleted != nil {
			m.cb.OnDiscoveryCompleted(entryPoint)
		}
	})
	m.disco.OnRefresh(m.onFileRefreshed)

	m.parse = parser.New(m.tasks, log)
	m.parse.AddService(parser.NewMetadataExtractionService(noopExtractor{}, m.files, m.tracks, m.chapters))
	m.parse.AddService(parser.NewMetadataAnalysisService(m.files, m.media))
	m.parse.AddService(parser.NewLinkingService(m.shows, m.albums, m.albumTracks, m.groups, m.playlists, m.files,
		localOpener{}, (*entryPointEnqueuer)(m)))
	m.parse.AddService(parser.NewThumbnailerService(m.media, m.thumbs, noGenerator{}))

	m.cache = cacheworker.New(noopCacher{}, m.subscriptions, log)
	m.cache.OnSubscriptionCacheUpdated(func(id int64) {
		if m.cb.OnSubscriptionCache != nil {
			m.cb.OnSubscriptionCache(id)
		}
	})

	return m, nil
}

// Start launches the discoverer, parser pipeline, and cache worker
// goroutines, and resumes any task left uncompleted from a prior run.
func (m *MediaLibrary) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	if err := m.holder.StartFsFactoriesAndRefresh(); err != nil {
		cancel()
		return fmt.Errorf("start filesystem factories: %w", err)
	}

	m.parse.Start(ctx)
	go m.disco.Run(ctx)
	go m.cache.Run(ctx)

	if err := m.parse.Restart(m.files, m.folders, m.devices); err != nil {
		m.log.Warn().Err(err).Msg("failed to resume uncompleted tasks")
	}

	m.started = true
	return nil
}

// Stop signals every background goroutine to finish its in-flight work and
// exit, then closes the database.
func (m *MediaLibrary) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.started {
		return nil
	}
	m.disco.Stop()
	m.parse.Stop()
	m.cache.Stop()
	if m.cancel != nil {
		m.cancel()
	}
	m.started = false
	return m.db.Close()
}

// AddEntryPoint schedules a directory tree for discovery.
func (m *MediaLibrary) AddEntryPoint(mrl string) {
	if m.cb.OnDiscoveryStarted != nil {
		m.cb.OnDiscoveryStarted(mrl)
	}
	m.disco.Enqueue(discoverer.Task{Type: discoverer.TaskAddEntryPoint, Mrl: mrl})
}

// Reload re-crawls a previously added entry point.
func (m *MediaLibrary) Reload(mrl string) {
	m.disco.Enqueue(discoverer.Task{Type: discoverer.TaskReload, Mrl: mrl})
}

// RemoveEntryPoint stops tracking mrl and deletes its discovered rows.
func (m *MediaLibrary) RemoveEntryPoint(mrl string) {
	m.disco.Enqueue(discoverer.Task{Type: discoverer.TaskRemove, Mrl: mrl})
}

// BanFolder excludes mrl (and its descendants) from discovery without
// forgetting it, so Unban can restore it later.
func (m *MediaLibrary) BanFolder(mrl string) {
	m.disco.Enqueue(discoverer.Task{Type: discoverer.TaskBan, Mrl: mrl})
}

func (m *MediaLibrary) UnbanFolder(mrl string) {
	m.disco.Enqueue(discoverer.Task{Type: discoverer.TaskUnban, Mrl: mrl})
}

// SetNetworkDiscoveryEnabled toggles whether network-only FilesystemFactory
// schemes (smb) are consulted.
func (m *MediaLibrary) SetNetworkDiscoveryEnabled(enabled bool) {
	m.holder.SetNetworkEnabled(enabled)
}

// Media fetches a single Media row under the read lock.
func (m *MediaLibrary) Media(id int64) (*model.Media, error) {
	m.lock.RLock(m)
	defer m.lock.RUnlock()
	return m.media.Fetch(id)
}

// Search runs an FTS query over the Media table.
func (m *MediaLibrary) Search(q string, limit int) ([]model.Media, error) {
	m.lock.RLock(m)
	defer m.lock.RUnlock()
	return m.media.Search(q, limit)
}

// SetLastPosition records fractional playback progress for media, applying
// spec.md §4.8's Begin/End/AsIs classification and firing onHistoryChanged.
func (m *MediaLibrary) SetLastPosition(mediaID int64, position float32, importType model.MediaType) (history.Result, error) {
	m.lock.Lock(m)
	defer m.lock.Unlock()

	media, err := m.media.Fetch(mediaID)
	if err != nil {
		return history.ResultError, err
	}
	entry, result := history.SetLastPosition(position, media.Duration)
	if result == history.ResultError {
		return result, fmt.Errorf("invalid position %v", position)
	}
	if err := m.applyHistoryEntry(mediaID, entry, result); err != nil {
		return result, err
	}
	if m.cb.OnHistoryChanged != nil {
		m.cb.OnHistoryChanged(history.TypeFor(importType))
	}
	return result, nil
}

func (m *MediaLibrary) applyHistoryEntry(mediaID int64, entry history.Entry, result history.Result) error {
	if err := m.media.SetProgress(mediaID, entry.Position, entry.TimeMs, progressStateFor(result)); err != nil {
		return fmt.Errorf("persist progress: %w", err)
	}
	if entry.IncrementPlays {
		if err := m.media.IncrementPlayCount(mediaID); err != nil {
			return fmt.Errorf("increment play count: %w", err)
		}
	}
	return nil
}

func progressStateFor(r history.Result) model.ProgressState {
	switch r {
	case history.ResultBegin:
		return model.ProgressBegin
	case history.ResultEnd:
		return model.ProgressEnd
	case history.ResultAsIs:
		return model.ProgressInProgress
	default:
		return model.ProgressUnspecified
	}
}

// ListMedia runs a generic media listing using internal/query's
// normalized Sort/Limit/Offset parameters.
func (m *MediaLibrary) ListMedia(params query.Params) ([]model.Media, error) {
	m.lock.RLock(m)
	defer m.lock.RUnlock()
	params = params.Normalize()
	where := params.WhereClauseForMedia()
	order := params.OrderClause(query.ColumnForMedia(params.Sort), "id_media")
	return m.media.List(where, order, params.LimitClause())
}

func (m *MediaLibrary) onDevicePresenceChanged(d vfs.Device, present bool) {
	id, err := uuid.Parse(d.UUID())
	if err != nil {
		return
	}
	dev, err := m.devices.FetchByUUID(id)
	if err != nil {
		return
	}
	mountpoint := ""
	if present {
		mountpoint = d.Mountpoint()
	}
	if err := m.devices.SetPresent(dev.ID, present, mountpoint); err != nil {
		m.log.Warn().Err(err).Int64("device", dev.ID).Msg("failed to persist device presence")
	}
}

// onFileDiscovered is the discoverer.TaskHandler: it creates the File row
// (and, for non-container files, a Media row plus a fresh parser Task) for
// every file the crawl visits.
func (m *MediaLibrary) onFileDiscovered(ctx context.Context, folder *model.Folder, f vfs.File) error {
	fileType := classifyFileType(f.Name())
	existing, err := m.files.FetchByMrl(folder.ID, f.Mrl().String())
	if err == nil {
		return m.enqueueTaskForFile(existing, fileType)
	}

	file := &model.File{
		FolderID:             folder.ID,
		Mrl:                  f.Mrl().String(),
		Type:                 fileType,
		LastModificationDate: f.LastModified().Unix(),
		Size:                 f.Size(),
		IsNetwork:            f.IsNetwork(),
	}
	if fileType != model.FilePlaylist {
		media := &model.Media{Title: f.Name(), FileName: f.Name(), Duration: -1, IsPresent: true}
		if err := m.media.Create(media); err != nil {
			return fmt.Errorf("create media for discovered file: %w", err)
		}
		file.MediaID = &media.ID
		if m.cb.OnMediaAdded != nil {
			m.cb.OnMediaAdded(media)
		}
	}
	if err := m.files.Create(file); err != nil {
		return fmt.Errorf("create file for discovered entry: %w", err)
	}
	return m.enqueueTaskForFile(file, fileType)
}

// onFileRefreshed is the discoverer.TaskHandler for a file the discoverer
// already knew about whose last_modification_date changed since the last
// reload: it emits a TaskRefresh so the parser re-extracts it, distinct
// from onFileDiscovered's brand-new-file TaskCreation.
func (m *MediaLibrary) onFileRefreshed(ctx context.Context, folder *model.Folder, f vfs.File) error {
	existing, err := m.files.FetchByMrl(folder.ID, f.Mrl().String())
	if err != nil {
		return fmt.Errorf("fetch refreshed file: %w", err)
	}
	fileType := classifyFileType(f.Name())
	task := &model.Task{
		Type:     model.TaskRefresh,
		Mrl:      existing.Mrl,
		FileID:   existing.ID,
		FileType: fileType,
	}
	if existing.MediaID != nil {
		task.LinkToID = *existing.MediaID
		task.LinkToType = model.EntityMedia
	}
	if err := m.tasks.Create(task); err != nil {
		return nil // duplicate refresh task already tracked
	}
	return m.parse.Parse(task)
}

func (m *MediaLibrary) enqueueTaskForFile(file *model.File, fileType model.FileType) error {
	task := &model.Task{
		Type:     model.TaskCreation,
		Mrl:      file.Mrl,
		FileID:   file.ID,
		FileType: fileType,
	}
	if fileType == model.FilePlaylist {
		task.Type = model.TaskLink
		task.LinkToType = model.EntityPlaylist
		task.Step = model.StepMetadataExtraction | model.StepMetadataAnalysis
	} else if file.MediaID != nil {
		task.LinkToID = *file.MediaID
		task.LinkToType = model.EntityMedia
	}
	if err := m.tasks.Create(task); err != nil {
		return nil // duplicate discovery, already tracked
	}
	return m.parse.Parse(task)
}

// entryPointEnqueuer adapts MediaLibrary to parser.EntryPointEnqueuer:
// turning one parsed playlist member into a fresh discovery + link task.
type entryPointEnqueuer MediaLibrary

func (e *entryPointEnqueuer) EnqueuePlaylistMember(mrl string, playlistID int64, position uint8) {
	m := (*MediaLibrary)(e)
	task := &model.Task{
		Type:       model.TaskLink,
		Mrl:        mrl,
		FileType:   model.FileMain,
		LinkToID:   playlistID,
		LinkToType: model.EntityPlaylist,
		LinkExtra:  position,
		Step:       model.StepMetadataExtraction | model.StepMetadataAnalysis,
	}
	if err := m.tasks.Create(task); err != nil {
		return
	}
	m.disco.Enqueue(discoverer.Task{Type: discoverer.TaskAddEntryPoint, Mrl: mrl})
}

func classifyFileType(name string) model.FileType {
	switch playlistExtension(name) {
	case true:
		return model.FilePlaylist
	default:
		return model.FileMain
	}
}

func playlistExtension(name string) bool {
	for _, ext := range []string{".m3u", ".m3u8", ".pls", ".xspf", ".asx", ".wpl", ".b4s"} {
		if len(name) > len(ext) && name[len(name)-len(ext):] == ext {
			return true
		}
	}
	return false
}

// localOpener implements parser.Opener for file:// mrls; smb:// support
// would add a matching branch once a concrete smb.Credentials source
// exists, which is out of scope for the CLI binary this module ships.
type localOpener struct{}

func (localOpener) Open(m vfs.Mrl) (io.ReadCloser, error) {
	return os.Open(m.Path)
}

// noopExtractor/noGenerator/noopCacher satisfy the parser/cacheworker
// out-of-scope collaborator interfaces with conservative no-op behavior:
// a real host wires in an actual demuxer probe, artwork generator, and
// cache byte-mover (spec.md classifies all three as external to this
// module, the same way the teacher's api package left its HLS ffmpeg
// transcoder to a collaborator it never implemented directly).
type noopExtractor struct{}

func (noopExtractor) Extract(ctx context.Context, path string) (parser.ExtractedMetadata, error) {
	return parser.ExtractedMetadata{DurationMs: -1}, nil
}

type noGenerator struct{}

func (noGenerator) Generate(ctx context.Context, task *model.Task) (parser.Generated, bool, error) {
	return parser.Generated{}, false, nil
}

type noopCacher struct{}

func (noopCacher) DoCache(ctx context.Context, subscriptionID, mediaID int64) (int64, error) {
	return 0, nil
}
func (noopCacher) Uncache(subscriptionID, mediaID int64) error { return nil }
func (noopCacher) AvailableCacheSize() int64                   { return 1 }
func (noopCacher) CachedEntries(subscriptionID int64) ([]cacheworker.CachedEntry, error) {
	return nil, nil
}
