package parser_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/silverreel/medialib/internal/entity"
	"github.com/silverreel/medialib/internal/model"
	"github.com/silverreel/medialib/internal/parser"
	"github.com/silverreel/medialib/internal/sqlitedb"
)

type fakeService struct {
	step    model.ParserStep
	name    string
	results chan parser.Status
	seen    chan *model.Task
}

func newFakeService(step model.ParserStep, name string) *fakeService {
	return &fakeService{step: step, name: name, results: make(chan parser.Status, 8), seen: make(chan *model.Task, 8)}
}

func (f *fakeService) Step() model.ParserStep { return f.step }
func (f *fakeService) Name() string           { return f.name }

func (f *fakeService) Run(ctx context.Context, task *model.Task) parser.Status {
	f.seen <- task
	select {
	case s := <-f.results:
		return s
	default:
		return parser.StatusSuccess
	}
}

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sqlitedb.Open(":memory:", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db.SQL
}

func TestParserChainsServicesInOrder(t *testing.T) {
	db := openTestDB(t)
	tasks := entity.NewTaskRepository(db)

	extraction := newFakeService(model.StepMetadataExtraction, "MetadataExtraction")
	analysis := newFakeService(model.StepMetadataAnalysis, "MetadataAnalysis")
	linking := newFakeService(model.StepLinking, "Linking")

	p := parser.New(tasks, zerolog.Nop())
	p.AddService(extraction)
	p.AddService(analysis)
	p.AddService(linking)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)
	defer p.Stop()

	task := &model.Task{Mrl: "file:///a.mkv", FileType: model.FileMain}
	require.NoError(t, tasks.Create(task))
	require.NoError(t, p.Parse(task))

	waitFor(t, extraction.seen)
	waitFor(t, analysis.seen)
	waitFor(t, linking.seen)
}

func TestMetadataExtractionSuccessDoesNotSaveStep(t *testing.T) {
	db := openTestDB(t)
	tasks := entity.NewTaskRepository(db)

	extraction := newFakeService(model.StepMetadataExtraction, "MetadataExtraction")
	p := parser.New(tasks, zerolog.Nop())
	p.AddService(extraction)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)
	defer p.Stop()

	task := &model.Task{Mrl: "file:///a.mkv", FileType: model.FileMain}
	require.NoError(t, tasks.Create(task))

	require.NoError(t, p.Parse(task))
	waitFor(t, extraction.seen)
	time.Sleep(20 * time.Millisecond)

	got, err := tasks.Fetch(task.ID)
	require.NoError(t, err)
	require.EqualValues(t, model.StepNone, got.Step, "MetadataExtraction success must not persist its step bit")
	require.EqualValues(t, 0, got.RetryCount, "dispatch bumps retry_count and success decrements it right back")
}

func TestGenericServiceSuccessClearsRetryCount(t *testing.T) {
	db := openTestDB(t)
	tasks := entity.NewTaskRepository(db)

	analysis := newFakeService(model.StepMetadataAnalysis, "MetadataAnalysis")
	p := parser.New(tasks, zerolog.Nop())
	p.AddService(analysis)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)
	defer p.Stop()

	task := &model.Task{Mrl: "file:///a.mkv", FileType: model.FileMain, Step: model.StepMetadataExtraction}
	require.NoError(t, tasks.Create(task))
	_, err := tasks.IncrementRetryCount(task.ID)
	require.NoError(t, err)

	require.NoError(t, p.Parse(task))
	waitFor(t, analysis.seen)
	time.Sleep(20 * time.Millisecond)

	got, err := tasks.Fetch(task.ID)
	require.NoError(t, err)
	require.EqualValues(t, model.StepMetadataExtraction|model.StepMetadataAnalysis, got.Step)
	require.EqualValues(t, 0, got.RetryCount, "a non-extraction service success must clear retry_count")
}

func TestRequeueExhaustsAfterMaxRetries(t *testing.T) {
	db := openTestDB(t)
	tasks := entity.NewTaskRepository(db)

	linking := newFakeService(model.StepLinking, "Linking")
	linking.results <- parser.StatusRequeue
	linking.results <- parser.StatusRequeue

	p := parser.New(tasks, zerolog.Nop())
	p.AddService(linking)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)
	defer p.Stop()

	task := &model.Task{Mrl: "file:///a.mkv", FileType: model.FileMain, Step: model.StepMetadataExtraction | model.StepMetadataAnalysis}
	require.NoError(t, tasks.Create(task))
	require.NoError(t, p.Parse(task))

	waitFor(t, linking.seen)
	waitFor(t, linking.seen)

	time.Sleep(50 * time.Millisecond)
	_, err := tasks.Fetch(task.ID)
	require.Error(t, err, "task should have been destroyed after exceeding MaxNbRetries")
}

func waitFor(t *testing.T, ch chan *model.Task) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for service to run")
	}
}
