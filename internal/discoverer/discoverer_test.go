package discoverer_test

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/silverreel/medialib/internal/discoverer"
	"github.com/silverreel/medialib/internal/entity"
	"github.com/silverreel/medialib/internal/fsholder"
	"github.com/silverreel/medialib/internal/mlerrors"
	"github.com/silverreel/medialib/internal/model"
	"github.com/silverreel/medialib/internal/sqlitedb"
	"github.com/silverreel/medialib/internal/vfs"
)

type fakeDevice struct{ id string }

func (d fakeDevice) UUID() string       { return d.id }
func (d fakeDevice) IsRemovable() bool  { return false }
func (d fakeDevice) IsNetwork() bool    { return false }
func (d fakeDevice) IsPresent() bool    { return true }
func (d fakeDevice) Mountpoint() string { return "/media" }

type fakeFile struct {
	mrl   vfs.Mrl
	name  string
	mtime time.Time
}

func (f fakeFile) Mrl() vfs.Mrl    { return f.mrl }
func (f fakeFile) Name() string    { return f.name }
func (f fakeFile) IsNetwork() bool { return false }
func (f fakeFile) LastModified() time.Time {
	if f.mtime.IsZero() {
		return time.Unix(0, 0)
	}
	return f.mtime
}
func (f fakeFile) Size() int64 { return 1024 }

type fakeDirectory struct {
	mrl     vfs.Mrl
	files   []vfs.File
	subdirs []vfs.Directory
	device  fakeDevice
}

func (d fakeDirectory) Mrl() vfs.Mrl { return d.mrl }
func (d fakeDirectory) Files(ctx context.Context) ([]vfs.File, error) {
	return d.files, nil
}
func (d fakeDirectory) Directories(ctx context.Context) ([]vfs.Directory, error) {
	return d.subdirs, nil
}
func (d fakeDirectory) IsRemovable() bool        { return false }
func (d fakeDirectory) Device() (vfs.Device, error) { return d.device, nil }

type fakeFactory struct{ root fakeDirectory }

func (f fakeFactory) Scheme() string     { return "file" }
func (f fakeFactory) NetworkOnly() bool  { return false }
func (f fakeFactory) CreateDirectory(m vfs.Mrl) (vfs.Directory, error) {
	return f.root, nil
}
func (f fakeFactory) CreateFile(m vfs.Mrl) (vfs.File, error) {
	return fakeFile{mrl: m}, nil
}
func (f fakeFactory) DeviceLister() (vfs.DeviceLister, bool) { return nil, false }

// mutableFactory lets a test swap out what a second crawl sees, to exercise
// reload's delete-unseen and refresh-detection behavior.
type mutableFactory struct {
	mu  sync.Mutex
	dir fakeDirectory
}

func (f *mutableFactory) Scheme() string    { return "file" }
func (f *mutableFactory) NetworkOnly() bool { return false }
func (f *mutableFactory) CreateDirectory(vfs.Mrl) (vfs.Directory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dir, nil
}
func (f *mutableFactory) CreateFile(m vfs.Mrl) (vfs.File, error) { return fakeFile{mrl: m}, nil }
func (f *mutableFactory) DeviceLister() (vfs.DeviceLister, bool)  { return nil, false }

func (f *mutableFactory) setDir(dir fakeDirectory) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dir = dir
}

func TestWorkerCrawlCreatesFoldersFilesAndFiresCallbacks(t *testing.T) {
	db := openDiscovererTestDB(t)
	folders := entity.NewFolderRepository(db)
	files := entity.NewFileRepository(db)
	devices := entity.NewDeviceRepository(db)

	root, _ := vfs.ParseMrl("file:///music")
	track1, _ := vfs.ParseMrl("file:///music/a.mp3")
	track2, _ := vfs.ParseMrl("file:///music/b.mp3")

	dir := fakeDirectory{
		mrl: root,
		files: []vfs.File{
			fakeFile{mrl: track1, name: "a.mp3"},
			fakeFile{mrl: track2, name: "b.mp3"},
		},
		device: fakeDevice{id: uuid.New().String()},
	}

	holder := fsholder.New(zerolog.Nop())
	holder.AddFsFactory(fakeFactory{root: dir})

	var discoveredFiles []string
	handler := func(ctx context.Context, folder *model.Folder, f vfs.File) error {
		discoveredFiles = append(discoveredFiles, f.Mrl().String())
		return nil
	}

	w := discoverer.New(zerolog.Nop(), holder, folders, files, devices, handler)

	var progressCalls []int
	var completed []string
	w.OnProgress(func(entryPoint string, nbDiscovered int) { progressCalls = append(progressCalls, nbDiscovered) })
	w.OnCompleted(func(entryPoint string) { completed = append(completed, entryPoint) })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)
	defer w.Stop()

	w.Enqueue(discoverer.Task{Type: discoverer.TaskAddEntryPoint, Mrl: "file:///music"})

	require.Eventually(t, func() bool {
		return len(completed) == 1
	}, time.Second, 5*time.Millisecond)

	require.ElementsMatch(t, []string{"file:///music/a.mp3", "file:///music/b.mp3"}, discoveredFiles)
	require.NotEmpty(t, progressCalls)
	require.Equal(t, []string{"file:///music"}, completed)
}

func TestWorkerEnqueueCoalescesDuplicateEntryPoints(t *testing.T) {
	db := openDiscovererTestDB(t)
	folders := entity.NewFolderRepository(db)
	files := entity.NewFileRepository(db)
	devices := entity.NewDeviceRepository(db)
	holder := fsholder.New(zerolog.Nop())

	w := discoverer.New(zerolog.Nop(), holder, folders, files, devices, nil)
	w.Enqueue(discoverer.Task{Type: discoverer.TaskAddEntryPoint, Mrl: "file:///a"})
	w.Enqueue(discoverer.Task{Type: discoverer.TaskAddEntryPoint, Mrl: "file:///a"})
	w.Enqueue(discoverer.Task{Type: discoverer.TaskRemove, Mrl: "file:///a"})

	// The duplicate add was coalesced and then cancelled by the remove, so
	// the queue should hold only the remove request; Stop without a Run
	// loop leaves this inspectable only indirectly, so instead assert the
	// worker doesn't block forever processing phantom entries.
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	w.Run(ctx)
}

func TestWorkerEnqueueCancelsBanUnbanPair(t *testing.T) {
	db := openDiscovererTestDB(t)
	folders := entity.NewFolderRepository(db)
	files := entity.NewFileRepository(db)
	devices := entity.NewDeviceRepository(db)
	holder := fsholder.New(zerolog.Nop())

	w := discoverer.New(zerolog.Nop(), holder, folders, files, devices, nil)
	w.Enqueue(discoverer.Task{Type: discoverer.TaskBan, Mrl: "file:///a"})
	w.Enqueue(discoverer.Task{Type: discoverer.TaskUnban, Mrl: "file:///a"})

	// Ban then Unban on the same mrl should cancel to a no-op queue; a
	// subsequent distinct request is the only thing left to process.
	w.Enqueue(discoverer.Task{Type: discoverer.TaskBan, Mrl: "file:///b"})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	w.Run(ctx)
}

func TestWorkerReloadDeletesUnseenFilesAndDetectsRefresh(t *testing.T) {
	db := openDiscovererTestDB(t)
	folders := entity.NewFolderRepository(db)
	files := entity.NewFileRepository(db)
	devices := entity.NewDeviceRepository(db)

	root, _ := vfs.ParseMrl("file:///music")
	track1, _ := vfs.ParseMrl("file:///music/a.mp3")
	track2, _ := vfs.ParseMrl("file:///music/b.mp3")
	devID := uuid.New()

	factory := &mutableFactory{dir: fakeDirectory{
		mrl: root,
		files: []vfs.File{
			fakeFile{mrl: track1, name: "a.mp3"},
			fakeFile{mrl: track2, name: "b.mp3"},
		},
		device: fakeDevice{id: devID.String()},
	}}

	holder := fsholder.New(zerolog.Nop())
	holder.AddFsFactory(factory)

	var discovered, refreshed, completed []string
	handler := func(ctx context.Context, folder *model.Folder, f vfs.File) error {
		discovered = append(discovered, f.Mrl().String())
		return files.Create(&model.File{FolderID: folder.ID, Mrl: f.Mrl().String(), Type: model.FileMain})
	}
	w := discoverer.New(zerolog.Nop(), holder, folders, files, devices, handler)
	w.OnRefresh(func(ctx context.Context, folder *model.Folder, f vfs.File) error {
		refreshed = append(refreshed, f.Mrl().String())
		return nil
	})
	w.OnCompleted(func(entryPoint string) { completed = append(completed, entryPoint) })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)
	defer w.Stop()

	w.Enqueue(discoverer.Task{Type: discoverer.TaskAddEntryPoint, Mrl: "file:///music"})
	require.Eventually(t, func() bool { return len(completed) == 1 }, time.Second, 5*time.Millisecond)
	require.ElementsMatch(t, []string{"file:///music/a.mp3", "file:///music/b.mp3"}, discovered)

	dev, err := devices.FetchByUUID(devID)
	require.NoError(t, err)
	folder, err := folders.FetchByPath(dev.ID, "/music")
	require.NoError(t, err)
	trackOne, err := files.FetchByMrl(folder.ID, "file:///music/a.mp3")
	require.NoError(t, err)

	// b.mp3 disappears and a.mp3's mtime changes.
	factory.setDir(fakeDirectory{
		mrl: root,
		files: []vfs.File{
			fakeFile{mrl: track1, name: "a.mp3", mtime: time.Unix(1000, 0)},
		},
		device: fakeDevice{id: devID.String()},
	})

	w.Enqueue(discoverer.Task{Type: discoverer.TaskReload, Mrl: "file:///music"})
	require.Eventually(t, func() bool { return len(completed) == 2 }, time.Second, 5*time.Millisecond)

	require.ElementsMatch(t, []string{"file:///music/a.mp3"}, refreshed)

	_, err = files.FetchByMrl(folder.ID, "file:///music/b.mp3")
	require.True(t, errors.Is(err, mlerrors.ErrNotFound), "unseen file should be deleted on reload")

	got, err := files.Fetch(trackOne.ID)
	require.NoError(t, err)
	require.EqualValues(t, 1000, got.LastModificationDate)
}

func openDiscovererTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sqlitedb.Open(":memory:", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db.SQL
}
