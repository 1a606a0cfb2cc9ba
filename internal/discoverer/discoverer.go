// Package discoverer implements the single background crawl thread that
// walks a Folder's filesystem subtree, creating Folder rows for anything
// new and handing each new file to the caller's TaskHandler, which creates
// its File row and queues it for the parser. Ported from the original's
// DiscovererWorker: one thread, one coalescing task queue, an
// interrupt-at-directory-boundary crawl.
package discoverer

import (
	"context"
	"fmt"
	"io/fs"
	"sync"
	"time"

	"github.com/charlievieth/fastwalk"
	"github.com/rs/zerolog"

	"github.com/google/uuid"

	"github.com/silverreel/medialib/internal/entity"
	"github.com/silverreel/medialib/internal/fsholder"
	"github.com/silverreel/medialib/internal/model"
	"github.com/silverreel/medialib/internal/vfs"
)

// TaskType enumerates the kinds of request the single background thread
// processes, matching the original's DiscovererWorker::Task::Type.
type TaskType uint8

const (
	TaskAddEntryPoint TaskType = iota
	TaskReload
	TaskRemove
	TaskBan
	TaskUnban
	TaskReloadDevice
	TaskReloadAllDevices
)

// Task is one request on the discoverer's queue.
type Task struct {
	Type     TaskType
	Mrl      string
	DeviceID int64
}

// Worker runs the single discovery goroutine and owns its request queue.
// Enqueue applies the original's coalescing rules: a duplicate
// AddEntryPoint/Reload for the same mrl already queued is dropped, and a
// Remove cancels a still-queued AddEntryPoint/Reload for the same mrl.
type Worker struct {
	log      zerolog.Logger
	holder   *fsholder.Holder
	folders  *entity.FolderRepository
	files    *entity.FileRepository
	devices  *entity.DeviceRepository
	onFile   TaskHandler
	onRefresh TaskHandler

	onProgress  func(entryPoint string, nbDiscovered int)
	onCompleted func(entryPoint string)

	mu      sync.Mutex
	queue   []Task
	notify  chan struct{}
	stop    chan struct{}
	stopped bool
}

func New(log zerolog.Logger, holder *fsholder.Holder, folders *entity.FolderRepository,
	files *entity.FileRepository, devices *entity.DeviceRepository, onFile TaskHandler) *Worker {
	return &Worker{
		log:     log,
		holder:  holder,
		folders: folders,
		files:   files,
		devices: devices,
		onFile:  onFile,
		notify:  make(chan struct{}, 1),
		stop:    make(chan struct{}),
	}
}

// OnProgress registers the callback fired with a running discovered-file
// count while an entry point is being crawled, estimated up front for local
// schemes with fastWalkLocalCount.
func (w *Worker) OnProgress(cb func(entryPoint string, nbDiscovered int)) {
	w.onProgress = cb
}

// OnCompleted registers the callback fired once an AddEntryPoint/Reload
// crawl of entryPoint finishes, successfully or not.
func (w *Worker) OnCompleted(cb func(entryPoint string)) {
	w.onCompleted = cb
}

// OnRefresh registers the callback fired for a previously-discovered file
// whose last_modification_date changed since the last crawl that saw it,
// distinct from OnFile's brand-new-discovery callback.
func (w *Worker) OnRefresh(cb TaskHandler) {
	w.onRefresh = cb
}

// resolveDevice fetches the Device row matching d, creating one the first
// time this device's UUID is seen. A device's UUID is expected to be stable
// across process restarts (see vfs.Device implementations), so FetchByUUID
// is tried before Create.
func (w *Worker) resolveDevice(d vfs.Device) (*model.Device, error) {
	id, err := uuid.Parse(d.UUID())
	if err != nil {
		return nil, fmt.Errorf("parse device uuid %q: %w", d.UUID(), err)
	}
	existing, err := w.devices.FetchByUUID(id)
	if err == nil {
		return existing, nil
	}
	record := &model.Device{
		UUID:        id,
		IsRemovable: d.IsRemovable(),
		IsNetwork:   d.IsNetwork(),
		IsPresent:   d.IsPresent(),
		LastSeen:    time.Now(),
	}
	if d.IsNetwork() {
		record.Scheme = "smb"
	} else {
		record.Scheme = "file"
	}
	if err := w.devices.Create(record); err != nil {
		return nil, fmt.Errorf("create device: %w", err)
	}
	return record, nil
}

// Enqueue adds t to the queue, applying coalescing rules, and wakes the
// worker loop.
func (w *Worker) Enqueue(t Task) {
	w.mu.Lock()
	defer func() {
		w.mu.Unlock()
		select {
		case w.notify <- struct{}{}:
		default:
		}
	}()

	if w.stopped {
		return
	}

	switch t.Type {
	case TaskAddEntryPoint, TaskReload:
		for _, q := range w.queue {
			if q.Mrl == t.Mrl && (q.Type == TaskAddEntryPoint || q.Type == TaskReload) {
				return // duplicate already queued
			}
		}
	case TaskRemove:
		for _, q := range w.queue {
			if q.Mrl == t.Mrl && q.Type == TaskRemove {
				return // duplicate already queued
			}
		}
		filtered := w.queue[:0]
		for _, q := range w.queue {
			if q.Mrl == t.Mrl && (q.Type == TaskAddEntryPoint || q.Type == TaskReload) {
				continue // cancel the opposing queued request
			}
			filtered = append(filtered, q)
		}
		w.queue = filtered
	case TaskBan, TaskUnban:
		// Ban(X) and Unban(X) are a canceling pair: queuing one while its
		// opposite for the same mrl is still pending nets out to nothing.
		opposite := TaskUnban
		if t.Type == TaskUnban {
			opposite = TaskBan
		}
		for _, q := range w.queue {
			if q.Mrl == t.Mrl && q.Type == t.Type {
				return // duplicate already queued
			}
		}
		filtered := w.queue[:0]
		cancelled := false
		for _, q := range w.queue {
			if !cancelled && q.Mrl == t.Mrl && q.Type == opposite {
				cancelled = true
				continue
			}
			filtered = append(filtered, q)
		}
		w.queue = filtered
		if cancelled {
			return
		}
	case TaskReloadDevice:
		for _, q := range w.queue {
			if q.Type == TaskReloadDevice && q.DeviceID == t.DeviceID {
				return // duplicate already queued
			}
		}
	case TaskReloadAllDevices:
		for _, q := range w.queue {
			if q.Type == TaskReloadAllDevices {
				return // duplicate already queued
			}
		}
	}
	w.queue = append(w.queue, t)
}

func (w *Worker) pop() (Task, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.queue) == 0 {
		return Task{}, false
	}
	t := w.queue[0]
	w.queue = w.queue[1:]
	return t, true
}

// Run is the worker's main loop.
func (w *Worker) Run(ctx context.Context) {
	for {
		t, ok := w.pop()
		if !ok {
			select {
			case <-w.notify:
				continue
			case <-w.stop:
				return
			case <-ctx.Done():
				return
			}
		}
		if err := w.process(ctx, t); err != nil {
			w.log.Warn().Err(err).Str("mrl", t.Mrl).Msg("discovery task failed")
		}
	}
}

func (w *Worker) Stop() {
	w.mu.Lock()
	w.stopped = true
	w.mu.Unlock()
	close(w.stop)
}

func (w *Worker) process(ctx context.Context, t Task) error {
	switch t.Type {
	case TaskAddEntryPoint, TaskReload:
		err := w.crawl(ctx, t.Mrl, CrawlerProbe{})
		if w.onCompleted != nil {
			w.onCompleted(t.Mrl)
		}
		return err
	case TaskRemove:
		return w.remove(t.Mrl)
	case TaskBan:
		return w.ban(t.Mrl)
	case TaskUnban:
		return w.unban(t.Mrl)
	case TaskReloadDevice, TaskReloadAllDevices:
		return w.crawl(ctx, t.Mrl, CrawlerProbe{})
	}
	return fmt.Errorf("unknown discoverer task type %d", t.Type)
}

// crawl walks root, creating Folder rows for the directories the probe
// accepts and passing each accepted file that has no File row yet to the
// onFile handler, which creates that row. The crawl is interruptible only at directory boundaries: a
// cancelled ctx is checked once per directory, never mid-file-list, so a
// directory already being written to the database always finishes
// cleanly.
func (w *Worker) crawl(ctx context.Context, rootMrl string, probe Probe) error {
	m, err := vfs.ParseMrl(rootMrl)
	if err != nil {
		return fmt.Errorf("parse root mrl: %w", err)
	}
	if m.Scheme == "file" {
		if total, err := fastWalkLocalCount(m.Path); err == nil && w.onProgress != nil {
			w.onProgress(rootMrl, total)
		}
	}
	factory, err := w.holder.FsFactoryForMrl(m)
	if err != nil {
		return fmt.Errorf("resolve factory: %w", err)
	}
	root, err := factory.CreateDirectory(m)
	if err != nil {
		return fmt.Errorf("open root directory: %w", err)
	}
	nbDiscovered := 0
	result := &CrawlResult{SeenFolders: map[int64]bool{}, SeenFiles: map[int64]bool{}}
	return w.crawlDirectory(ctx, root, nil, probe, rootMrl, &nbDiscovered, result)
}

// crawlDirectory visits one directory, then recurses into its children.
// It tracks every Folder/File row it confirms still exists in result, and,
// when probe asks for it, deletes rows that existed before this pass but
// went unseen (spec.md's reload pruning) and detects files whose
// last_modification_date changed since they were last seen (spec.md's
// Refresh task type).
func (w *Worker) crawlDirectory(ctx context.Context, dir vfs.Directory, parent *model.Folder, probe Probe,
	entryPoint string, nbDiscovered *int, result *CrawlResult) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if !probe.ProceedOnDirectory(dir) || probe.IsHidden(dir) {
		return nil
	}

	device, err := dir.Device()
	if err != nil {
		return fmt.Errorf("resolve device: %w", err)
	}
	deviceRecord, err := w.resolveDevice(device)
	if err != nil {
		return fmt.Errorf("resolve device record: %w", err)
	}

	var parentID *int64
	if parent != nil {
		parentID = &parent.ID
	}

	folder := &model.Folder{DeviceID: deviceRecord.ID, ParentID: parentID, Path: dir.Mrl().Path, IsRemovable: dir.IsRemovable()}
	existing, err := w.folders.FetchByPath(folder.DeviceID, folder.Path)
	if err == nil {
		folder = existing
	} else if err := w.folders.Create(folder); err != nil {
		return fmt.Errorf("create folder: %w", err)
	}
	result.SeenFolders[folder.ID] = true

	knownFiles, err := w.files.ByFolder(folder.ID)
	if err != nil {
		return fmt.Errorf("list known files: %w", err)
	}
	knownByMrl := make(map[string]model.File, len(knownFiles))
	for _, kf := range knownFiles {
		knownByMrl[kf.Mrl] = kf
	}

	files, err := dir.Files(ctx)
	if err != nil {
		return fmt.Errorf("list files: %w", err)
	}
	for _, f := range files {
		if !probe.ProceedOnFile(f) {
			continue
		}
		mrl := f.Mrl().String()
		if known, ok := knownByMrl[mrl]; ok {
			result.SeenFiles[known.ID] = true
			mtime := f.LastModified().Unix()
			if probe.ForceFileRefresh() || mtime != known.LastModificationDate {
				if err := w.files.UpdateLastModification(known.ID, mtime); err != nil {
					w.log.Warn().Err(err).Int64("file", known.ID).Msg("failed to update file modification time")
				}
				if w.onRefresh != nil {
					if err := w.onRefresh(ctx, folder, f); err != nil {
						w.log.Warn().Err(err).Str("mrl", mrl).Msg("failed to process refreshed file")
					}
				}
			}
		} else {
			if w.onFile != nil {
				if err := w.onFile(ctx, folder, f); err != nil {
					w.log.Warn().Err(err).Str("mrl", mrl).Msg("failed to process discovered file")
				}
			}
			if created, err := w.files.FetchByMrl(folder.ID, mrl); err == nil {
				result.SeenFiles[created.ID] = true
			}
		}
		*nbDiscovered++
		if w.onProgress != nil {
			w.onProgress(entryPoint, *nbDiscovered)
		}
		if probe.StopFileDiscovery() {
			return nil
		}
	}

	if probe.DeleteUnseenFiles() {
		for _, kf := range knownFiles {
			if result.SeenFiles[kf.ID] {
				continue
			}
			if err := w.files.Destroy(kf.ID); err != nil {
				w.log.Warn().Err(err).Int64("file", kf.ID).Msg("failed to delete unseen file")
			}
		}
	}

	knownChildren, err := w.folders.Children(folder.ID)
	if err != nil {
		return fmt.Errorf("list known child folders: %w", err)
	}

	subdirs, err := dir.Directories(ctx)
	if err != nil {
		return fmt.Errorf("list directories: %w", err)
	}
	for _, sub := range subdirs {
		if err := w.crawlDirectory(ctx, sub, folder, probe, entryPoint, nbDiscovered, result); err != nil {
			return err
		}
	}

	if probe.DeleteUnseenFolders() {
		for _, kc := range knownChildren {
			if result.SeenFolders[kc.ID] {
				continue
			}
			if err := w.folders.Delete(kc.ID); err != nil {
				w.log.Warn().Err(err).Int64("folder", kc.ID).Msg("failed to delete unseen folder")
			}
		}
	}
	return nil
}

func (w *Worker) remove(mrl string) error {
	m, err := vfs.ParseMrl(mrl)
	if err != nil {
		return err
	}
	folder, err := w.folders.FetchByPath(0, m.Path)
	if err != nil {
		return nil // already gone
	}
	return w.folders.Delete(folder.ID)
}

func (w *Worker) ban(mrl string) error {
	m, err := vfs.ParseMrl(mrl)
	if err != nil {
		return err
	}
	folder, err := w.folders.FetchByPath(0, m.Path)
	if err != nil {
		return err
	}
	return w.folders.Ban(folder.ID)
}

func (w *Worker) unban(mrl string) error {
	m, err := vfs.ParseMrl(mrl)
	if err != nil {
		return err
	}
	folder, err := w.folders.FetchByPath(0, m.Path)
	if err != nil {
		return err
	}
	return w.folders.Unban(folder.ID)
}

// fastWalkLocalCount returns the number of regular files under root using
// fastwalk, used by the local FilesystemFactory path to give a quick
// progress estimate before a full CrawlerProbe pass (spec.md's discovery
// progress callback).
func fastWalkLocalCount(root string) (int, error) {
	count := 0
	var mu sync.Mutex
	conf := fastwalk.Config{Follow: false}
	err := fastwalk.Walk(&conf, root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			mu.Lock()
			count++
			mu.Unlock()
		}
		return nil
	})
	return count, err
}
