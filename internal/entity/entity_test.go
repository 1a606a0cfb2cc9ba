package entity_test

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/silverreel/medialib/internal/entity"
	"github.com/silverreel/medialib/internal/model"
	"github.com/silverreel/medialib/internal/parser"
	"github.com/silverreel/medialib/internal/sqlitedb"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sqlitedb.Open(":memory:", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db.SQL
}

func TestMediaCreateAndFetch(t *testing.T) {
	db := openTestDB(t)
	repo := entity.NewMediaRepository(db)

	m := &model.Media{Type: model.MediaVideo, Title: "Film", FileName: "film.mkv"}
	require.NoError(t, repo.Create(m))
	require.NotZero(t, m.ID)

	got, err := repo.Fetch(m.ID)
	require.NoError(t, err)
	require.Equal(t, "Film", got.Title)
	require.Equal(t, int64(-1), got.Duration)
}

func TestMediaSearchUsesFts(t *testing.T) {
	db := openTestDB(t)
	repo := entity.NewMediaRepository(db)

	require.NoError(t, repo.Create(&model.Media{Type: model.MediaVideo, Title: "The Great Escape", FileName: "a.mkv"}))
	require.NoError(t, repo.Create(&model.Media{Type: model.MediaVideo, Title: "Unrelated Title", FileName: "b.mkv"}))

	results, err := repo.Search("Escape", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "The Great Escape", results[0].Title)
}

func TestFilePresenceCascadesToMedia(t *testing.T) {
	db := openTestDB(t)
	mediaRepo := entity.NewMediaRepository(db)
	deviceRepo := entity.NewDeviceRepository(db)
	folderRepo := entity.NewFolderRepository(db)
	fileRepo := entity.NewFileRepository(db)

	dev := &model.Device{Scheme: "file", IsPresent: true}
	require.NoError(t, deviceRepo.Create(dev))
	folder := &model.Folder{DeviceID: dev.ID, Path: "/movies"}
	require.NoError(t, folderRepo.Create(folder))

	m := &model.Media{Type: model.MediaVideo, Title: "Film", FileName: "film.mkv"}
	require.NoError(t, mediaRepo.Create(m))

	f := &model.File{MediaID: &m.ID, FolderID: folder.ID, Mrl: "file:///movies/film.mkv", Type: model.FileMain}
	require.NoError(t, fileRepo.Create(f))

	require.NoError(t, fileRepo.SetPresence(f.ID, false))

	got, err := mediaRepo.Fetch(m.ID)
	require.NoError(t, err)
	require.False(t, got.IsPresent, "media should become absent once its only file is absent")
}

func TestPlaylistAppendAndRemoveRenumbers(t *testing.T) {
	db := openTestDB(t)
	mediaRepo := entity.NewMediaRepository(db)
	playlistRepo := entity.NewPlaylistRepository(db)

	p := &model.Playlist{Name: "Favorites"}
	require.NoError(t, playlistRepo.Create(p))

	var ids []int64
	for i := 0; i < 3; i++ {
		m := &model.Media{Type: model.MediaAudio, Title: "Track", FileName: "t.mp3"}
		require.NoError(t, mediaRepo.Create(m))
		require.NoError(t, playlistRepo.Append(p.ID, m.ID))
		ids = append(ids, m.ID)
	}

	require.NoError(t, playlistRepo.Remove(p.ID, ids[0]))

	members, err := playlistRepo.Members(p.ID)
	require.NoError(t, err)
	require.Len(t, members, 2)
	require.EqualValues(t, 0, members[0].Position)
	require.EqualValues(t, 1, members[1].Position)

	got, err := playlistRepo.Fetch(p.ID)
	require.NoError(t, err)
	require.EqualValues(t, 2, got.NbMedia)
}

func TestTaskRetryCountAsymmetry(t *testing.T) {
	db := openTestDB(t)
	taskRepo := entity.NewTaskRepository(db)

	task := &model.Task{Mrl: "file:///movies/film.mkv", FileType: model.FileMain}
	require.NoError(t, taskRepo.Create(task))

	count, err := taskRepo.IncrementRetryCount(task.ID)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)

	require.NoError(t, taskRepo.DecrementRetryCount(task.ID))

	got, err := taskRepo.Fetch(task.ID)
	require.NoError(t, err)
	require.EqualValues(t, 0, got.RetryCount)
}

func TestFetchUncompletedOnlyReturnsIncompleteTasks(t *testing.T) {
	db := openTestDB(t)
	taskRepo := entity.NewTaskRepository(db)

	incomplete := &model.Task{Mrl: "file:///a.mkv", Step: model.StepMetadataExtraction}
	complete := &model.Task{Mrl: "file:///b.mkv", Step: model.StepCompleted}
	require.NoError(t, taskRepo.Create(incomplete))
	require.NoError(t, taskRepo.Create(complete))

	tasks, err := taskRepo.FetchUncompleted(parser.MaxNbRetries)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	require.Equal(t, incomplete.ID, tasks[0].ID)
}

func TestFetchUncompletedExcludesExhaustedRetriesAndAbsentDevices(t *testing.T) {
	db := openTestDB(t)
	taskRepo := entity.NewTaskRepository(db)
	deviceRepo := entity.NewDeviceRepository(db)
	folderRepo := entity.NewFolderRepository(db)
	fileRepo := entity.NewFileRepository(db)

	presentDev := &model.Device{Scheme: "file", IsPresent: true}
	require.NoError(t, deviceRepo.Create(presentDev))
	absentDev := &model.Device{Scheme: "file", IsPresent: false}
	require.NoError(t, deviceRepo.Create(absentDev))

	presentFolder := &model.Folder{DeviceID: presentDev.ID, Path: "/present"}
	require.NoError(t, folderRepo.Create(presentFolder))
	absentFolder := &model.Folder{DeviceID: absentDev.ID, Path: "/absent"}
	require.NoError(t, folderRepo.Create(absentFolder))

	presentFile := &model.File{FolderID: presentFolder.ID, Mrl: "file:///present/a.mkv"}
	require.NoError(t, fileRepo.Create(presentFile))
	absentFile := &model.File{FolderID: absentFolder.ID, Mrl: "file:///absent/b.mkv"}
	require.NoError(t, fileRepo.Create(absentFile))

	onPresentDevice := &model.Task{Mrl: presentFile.Mrl, FileID: presentFile.ID}
	require.NoError(t, taskRepo.Create(onPresentDevice))

	onAbsentDevice := &model.Task{Mrl: absentFile.Mrl, FileID: absentFile.ID}
	require.NoError(t, taskRepo.Create(onAbsentDevice))

	noFile := &model.Task{Mrl: "file:///external.mkv"}
	require.NoError(t, taskRepo.Create(noFile))

	exhausted := &model.Task{Mrl: "file:///exhausted.mkv"}
	require.NoError(t, taskRepo.Create(exhausted))
	_, err := taskRepo.IncrementRetryCount(exhausted.ID)
	require.NoError(t, err)
	_, err = taskRepo.IncrementRetryCount(exhausted.ID)
	require.NoError(t, err)

	tasks, err := taskRepo.FetchUncompleted(parser.MaxNbRetries)
	require.NoError(t, err)

	var ids []int64
	for _, tk := range tasks {
		ids = append(ids, tk.ID)
	}
	require.Contains(t, ids, onPresentDevice.ID)
	require.Contains(t, ids, noFile.ID)
	require.NotContains(t, ids, onAbsentDevice.ID)
	require.NotContains(t, ids, exhausted.ID)
}

func TestCommonPattern(t *testing.T) {
	require.Equal(t, "Show Name S01E0", entity.CommonPattern("Show Name S01E01", "Show Name S01E02"))
	require.Equal(t, "", entity.CommonPattern("A", "B"))
}

func TestFolderBanAndUnban(t *testing.T) {
	db := openTestDB(t)
	deviceRepo := entity.NewDeviceRepository(db)
	folderRepo := entity.NewFolderRepository(db)

	dev := &model.Device{Scheme: "file"}
	require.NoError(t, deviceRepo.Create(dev))
	folder := &model.Folder{DeviceID: dev.ID, Path: "/banned"}
	require.NoError(t, folderRepo.Create(folder))

	require.NoError(t, folderRepo.Ban(folder.ID))
	_, err := folderRepo.Fetch(folder.ID)
	require.Error(t, err)

	banned, err := folderRepo.IsBanned(dev.ID, "/banned")
	require.NoError(t, err)
	require.True(t, banned)

	require.NoError(t, folderRepo.Unban(folder.ID))
	_, err = folderRepo.Fetch(folder.ID)
	require.NoError(t, err)
}
