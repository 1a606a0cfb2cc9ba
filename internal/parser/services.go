package parser

import (
	"context"
	"io"

	"github.com/silverreel/medialib/internal/entity"
	"github.com/silverreel/medialib/internal/model"
	"github.com/silverreel/medialib/internal/playlistfile"
	"github.com/silverreel/medialib/internal/thumbnail"
	"github.com/silverreel/medialib/internal/vfs"
)

// Prober is a stat-only filesystem surface: stat the file an Mrl points to
// without pulling in the whole FilesystemFactory registry as a dependency
// of the parser package. No service in this package takes one;
// MetadataExtraction works from its Extractor and the File row.
type Prober interface {
	Stat(mrl vfs.Mrl) (vfs.File, error)
}

// Extractor pulls codec/stream-level metadata out of a file. Concrete
// implementations shell out to a demuxer/prober; this package only defines
// the shape so internal/facade can wire in whatever the host provides.
type Extractor interface {
	Extract(ctx context.Context, path string) (ExtractedMetadata, error)
}

// ExtractedMetadata is what MetadataExtraction hands to MetadataAnalysis
// through the track tables it populates directly.
type ExtractedMetadata struct {
	DurationMs  int64
	AudioTracks []model.AudioTrack
	VideoTracks []model.VideoTrack
	SubTracks   []model.SubtitleTrack
	Chapters    []model.Chapter
}

// MetadataExtractionService runs a demuxer probe over the task's file and
// records stream metadata. It is the service with the success-path
// exception in handleServiceResult: see parser.go.
type MetadataExtractionService struct {
	extractor Extractor
	files     *entity.FileRepository
	tracks    *entity.TrackRepository
	chapters  *entity.ChapterRepository
}

func NewMetadataExtractionService(extractor Extractor, files *entity.FileRepository,
	tracks *entity.TrackRepository, chapters *entity.ChapterRepository) *MetadataExtractionService {
	return &MetadataExtractionService{extractor: extractor, files: files, tracks: tracks, chapters: chapters}
}

func (s *MetadataExtractionService) Step() model.ParserStep { return model.StepMetadataExtraction }
func (s *MetadataExtractionService) Name() string           { return "MetadataExtraction" }

func (s *MetadataExtractionService) Run(ctx context.Context, task *model.Task) Status {
	mrl, err := vfs.ParseMrl(task.Mrl)
	if err != nil {
		return StatusFatal
	}
	meta, err := s.extractor.Extract(ctx, mrl.Path)
	if err != nil {
		return StatusTemporaryUnavailable
	}

	file, err := s.files.Fetch(task.FileID)
	if err != nil || file.MediaID == nil {
		return StatusFatal
	}
	for i := range meta.AudioTracks {
		meta.AudioTracks[i].MediaID = *file.MediaID
		_ = s.tracks.AddAudioTrack(&meta.AudioTracks[i])
	}
	for i := range meta.VideoTracks {
		meta.VideoTracks[i].MediaID = *file.MediaID
		_ = s.tracks.AddVideoTrack(&meta.VideoTracks[i])
	}
	for i := range meta.SubTracks {
		meta.SubTracks[i].MediaID = *file.MediaID
		_ = s.tracks.AddSubtitleTrack(&meta.SubTracks[i])
	}
	for i := range meta.Chapters {
		meta.Chapters[i].MediaID = *file.MediaID
		_ = s.chapters.Create(&meta.Chapters[i])
	}
	return StatusSuccess
}

// MetadataAnalysisService checks that the task's File row exists and has a
// Media attached, returning StatusFatal otherwise. It writes nothing: it
// does not classify MediaType/SubType and does not create or update Media,
// Album, Artist, Genre or Show rows.
type MetadataAnalysisService struct {
	files *entity.FileRepository
	media *entity.MediaRepository
}

func NewMetadataAnalysisService(files *entity.FileRepository, media *entity.MediaRepository) *MetadataAnalysisService {
	return &MetadataAnalysisService{files: files, media: media}
}

func (s *MetadataAnalysisService) Step() model.ParserStep { return model.StepMetadataAnalysis }
func (s *MetadataAnalysisService) Name() string           { return "MetadataAnalysis" }

func (s *MetadataAnalysisService) Run(ctx context.Context, task *model.Task) Status {
	file, err := s.files.Fetch(task.FileID)
	if err != nil || file.MediaID == nil {
		return StatusFatal
	}
	return StatusSuccess
}

// Opener reads a file's bytes, as opposed to Prober which only stats it;
// LinkingService needs it to read playlist container files.
type Opener interface {
	Open(mrl vfs.Mrl) (io.ReadCloser, error)
}

// EntryPointEnqueuer is the subset of internal/discoverer's Worker that
// LinkingService needs to turn a parsed playlist entry into new discovery
// work: one task per member mrl, pointed at the owning playlist.
type EntryPointEnqueuer interface {
	EnqueuePlaylistMember(mrl string, playlistID int64, position uint8)
}

// LinkingService appends the task's Media to the Playlist named by
// LinkToID when LinkToType is EntityPlaylist, and — when the task's file
// is itself a playlist container (.m3u, .xspf, ...) — parses its entries
// and enqueues one Link task per member, per spec.md §6. Any other
// LinkToType succeeds without linking anything.
type LinkingService struct {
	shows    *entity.ShowRepository
	albums   *entity.AlbumRepository
	tracks   *entity.AlbumTrackRepository
	groups   *entity.MediaGroupRepository
	playlist *entity.PlaylistRepository
	files    *entity.FileRepository
	opener   Opener
	enqueuer EntryPointEnqueuer
}

func NewLinkingService(shows *entity.ShowRepository, albums *entity.AlbumRepository,
	tracks *entity.AlbumTrackRepository, groups *entity.MediaGroupRepository,
	playlist *entity.PlaylistRepository, files *entity.FileRepository,
	opener Opener, enqueuer EntryPointEnqueuer) *LinkingService {
	return &LinkingService{
		shows: shows, albums: albums, tracks: tracks, groups: groups,
		playlist: playlist, files: files, opener: opener, enqueuer: enqueuer,
	}
}

func (s *LinkingService) Step() model.ParserStep { return model.StepLinking }
func (s *LinkingService) Name() string           { return "Linking" }

func (s *LinkingService) Run(ctx context.Context, task *model.Task) Status {
	if task.FileType == model.FilePlaylist {
		return s.runPlaylistImport(task)
	}
	switch task.LinkToType {
	case model.EntityPlaylist:
		file, err := s.resolveFile(task)
		if err != nil {
			return StatusTemporaryUnavailable
		}
		if file.MediaID == nil {
			return StatusFatal
		}
		if err := s.playlist.Append(task.LinkToID, *file.MediaID); err != nil {
			return StatusTemporaryUnavailable
		}
	}
	return StatusSuccess
}

// resolveFile fetches the task's backing File by id, falling back to a
// global mrl lookup for tasks the playlist importer created before the
// discoverer had a chance to create the File row itself; a miss here
// means the member genuinely hasn't been discovered yet, so the caller
// retries rather than treating it as fatal.
func (s *LinkingService) resolveFile(task *model.Task) (*model.File, error) {
	if task.FileID != 0 {
		return s.files.Fetch(task.FileID)
	}
	return s.files.FetchByFullMrl(task.Mrl)
}

// runPlaylistImport reads task's backing file as a playlist container,
// creates (or reuses) the Playlist row it backs, and enqueues one entry
// point per parsed member so the discoverer resolves each into its own
// Media, per spec.md §6's read-only import model.
func (s *LinkingService) runPlaylistImport(task *model.Task) Status {
	mrl, err := vfs.ParseMrl(task.Mrl)
	if err != nil {
		return StatusFatal
	}
	r, err := s.opener.Open(mrl)
	if err != nil {
		return StatusTemporaryUnavailable
	}
	defer r.Close()

	entries, err := playlistfile.Parse(mrl.Path, r)
	if err != nil {
		return StatusDiscarded
	}

	pl, err := s.playlist.Fetch(task.LinkToID)
	if err != nil {
		pl = &model.Playlist{Name: mrl.Path, FileID: &task.FileID}
		if err := s.playlist.Create(pl); err != nil {
			return StatusTemporaryUnavailable
		}
	}

	for i, e := range entries {
		if i > 255 {
			break // link_extra is a single byte; spec.md doesn't define overflow behavior beyond this cap
		}
		s.enqueuer.EnqueuePlaylistMember(e.Mrl, pl.ID, uint8(i))
	}
	return StatusSuccess
}

// Generator produces artwork for a task's media: a demuxer snapshot, an
// embedded cover, or a sibling cover file, depending on what the host
// wires in. Returning ok == false means no artwork was found, which is not
// an error: the task still completes.
type Generator interface {
	Generate(ctx context.Context, task *model.Task) (Generated, bool, error)
}

// Generated is what a Generator hands to the copy-on-write manager.
type Generated struct {
	Mrl     string
	Origin  model.ThumbnailOrigin
	IsOwned bool
}

// ThumbnailerService locates artwork for a task's media and commits it
// through internal/thumbnail's copy-on-write manager, so artwork shared
// across e.g. every track of an album is cloned rather than overwritten.
type ThumbnailerService struct {
	generator Generator
	thumbs    *thumbnail.Manager
	media     *entity.MediaRepository
}

func NewThumbnailerService(media *entity.MediaRepository, thumbs *thumbnail.Manager, generator Generator) *ThumbnailerService {
	return &ThumbnailerService{media: media, thumbs: thumbs, generator: generator}
}

func (s *ThumbnailerService) Step() model.ParserStep { return model.StepThumbnailer }
func (s *ThumbnailerService) Name() string           { return "Thumbnailer" }

func (s *ThumbnailerService) Run(ctx context.Context, task *model.Task) Status {
	if s.generator == nil {
		return StatusSuccess
	}
	generated, ok, err := s.generator.Generate(ctx, task)
	if err != nil {
		return StatusTemporaryUnavailable
	}
	if !ok {
		return StatusSuccess
	}
	thumbID, err := s.thumbs.SetThumbnail(task.LinkToID, model.EntityMedia, model.ThumbnailSizeThumbnail, thumbnail.New{
		Mrl: generated.Mrl, Origin: generated.Origin, IsOwned: generated.IsOwned,
	})
	if err != nil {
		return StatusTemporaryUnavailable
	}
	id := thumbID
	if err := s.media.SetThumbnail(task.LinkToID, &id); err != nil {
		return StatusTemporaryUnavailable
	}
	return StatusSuccess
}
