package parser_test

import (
	"context"
	"database/sql"
	"io"
	"strings"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/silverreel/medialib/internal/entity"
	"github.com/silverreel/medialib/internal/model"
	"github.com/silverreel/medialib/internal/parser"
	"github.com/silverreel/medialib/internal/sqlitedb"
	"github.com/silverreel/medialib/internal/thumbnail"
	"github.com/silverreel/medialib/internal/vfs"
)

type fakeOpener struct{ body string }

func (o fakeOpener) Open(vfs.Mrl) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(o.body)), nil
}

type fakeEnqueuer struct {
	mrls        []string
	playlistIDs []int64
	positions   []uint8
}

func (e *fakeEnqueuer) EnqueuePlaylistMember(mrl string, playlistID int64, position uint8) {
	e.mrls = append(e.mrls, mrl)
	e.playlistIDs = append(e.playlistIDs, playlistID)
	e.positions = append(e.positions, position)
}

func TestLinkingServiceImportsPlaylistContainer(t *testing.T) {
	db := openServicesTestDB(t)
	files := entity.NewFileRepository(db)
	playlists := entity.NewPlaylistRepository(db)

	folder := createFolder(t, db)
	file := &model.File{FolderID: folder, Mrl: "file:///music/mix.m3u", Type: model.FilePlaylist}
	require.NoError(t, files.Create(file))

	body := "#EXTM3U\n#EXTINF:100,First Song\nfile:///music/a.mp3\nfile:///music/b.mp3\n"
	enqueuer := &fakeEnqueuer{}
	svc := parser.NewLinkingService(nil, nil, nil, nil, playlists, files, fakeOpener{body: body}, enqueuer)

	task := &model.Task{Mrl: file.Mrl, FileID: file.ID, FileType: model.FilePlaylist, LinkToType: model.EntityPlaylist}
	status := svc.Run(context.Background(), task)
	require.Equal(t, parser.StatusSuccess, status)

	require.Equal(t, []string{"file:///music/a.mp3", "file:///music/b.mp3"}, enqueuer.mrls)
	require.Equal(t, []uint8{0, 1}, enqueuer.positions)
	require.NotZero(t, enqueuer.playlistIDs[0])
	require.Equal(t, enqueuer.playlistIDs[0], enqueuer.playlistIDs[1])
}

type fakeGenerator struct {
	generated thumbnail.New
	ok        bool
	err       error
}

func (g fakeGenerator) Generate(context.Context, *model.Task) (parser.Generated, bool, error) {
	return parser.Generated{Mrl: g.generated.Mrl, Origin: g.generated.Origin, IsOwned: g.generated.IsOwned}, g.ok, g.err
}

func TestThumbnailerServiceSetsThumbnailThroughManager(t *testing.T) {
	db := openServicesTestDB(t)
	media := entity.NewMediaRepository(db)
	thumbnails := entity.NewThumbnailRepository(db)
	linking := entity.NewThumbnailLinkingRepository(db)
	mgr := thumbnail.New(thumbnails, linking, zerolog.Nop())

	m := &model.Media{Title: "track", Duration: -1}
	require.NoError(t, media.Create(m))

	gen := fakeGenerator{generated: thumbnail.New{Mrl: "/thumbs/a.jpg", Origin: model.ThumbnailOriginMedia, IsOwned: true}, ok: true}
	svc := parser.NewThumbnailerService(media, mgr, gen)

	task := &model.Task{LinkToID: m.ID, LinkToType: model.EntityMedia}
	status := svc.Run(context.Background(), task)
	require.Equal(t, parser.StatusSuccess, status)

	thumbID, err := mgr.ThumbnailFor(m.ID, model.EntityMedia, model.ThumbnailSizeThumbnail)
	require.NoError(t, err)
	require.NotZero(t, thumbID)

	got, err := media.Fetch(m.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ThumbnailID)
	require.Equal(t, thumbID, *got.ThumbnailID)
}

func openServicesTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sqlitedb.Open(":memory:", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db.SQL
}

func createFolder(t *testing.T, db *sql.DB) int64 {
	t.Helper()
	devices := entity.NewDeviceRepository(db)
	folders := entity.NewFolderRepository(db)

	dev := &model.Device{Scheme: "file", IsPresent: true}
	require.NoError(t, devices.Create(dev))

	folder := &model.Folder{DeviceID: dev.ID, Path: "/music"}
	require.NoError(t, folders.Create(folder))
	return folder.ID
}
