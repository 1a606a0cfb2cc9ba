package vfs

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// localDeviceUUID derives a stable UUID from a mountpoint path: the local
// filesystem has no hardware UUID to read, so identity is pinned to the
// mount path itself via a name-based (v5) UUID, the same one every time the
// same path is seen again.
func localDeviceUUID(mountpoint string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("file://"+mountpoint)).String()
}

// LocalFactory implements FilesystemFactory for the file:// scheme, backed
// directly by os and path/filepath; its DeviceLister uses fsnotify to
// notice new top-level mount points the way the teacher's watcher package
// uses it to notice new media files.
type LocalFactory struct {
	log zerolog.Logger
}

func NewLocalFactory(log zerolog.Logger) *LocalFactory {
	return &LocalFactory{log: log}
}

func (f *LocalFactory) Scheme() string    { return "file" }
func (f *LocalFactory) NetworkOnly() bool { return false }

func (f *LocalFactory) CreateDirectory(mrl Mrl) (Directory, error) {
	return &localDirectory{mrl: mrl}, nil
}

func (f *LocalFactory) CreateFile(mrl Mrl) (File, error) {
	info, err := os.Stat(mrl.Path)
	if err != nil {
		return nil, err
	}
	return &localFile{mrl: mrl, info: info}, nil
}

func (f *LocalFactory) DeviceLister() (DeviceLister, bool) {
	return newLocalDeviceLister(f.log), true
}

type localDirectory struct {
	mrl Mrl
}

func (d *localDirectory) Mrl() Mrl { return d.mrl }

func (d *localDirectory) Files(ctx context.Context) ([]File, error) {
	entries, err := os.ReadDir(d.mrl.Path)
	if err != nil {
		return nil, err
	}
	var out []File
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		childMrl := Mrl{Scheme: d.mrl.Scheme, Authority: d.mrl.Authority, Path: filepath.Join(d.mrl.Path, e.Name())}
		out = append(out, &localFile{mrl: childMrl, info: info})
	}
	return out, nil
}

func (d *localDirectory) Directories(ctx context.Context) ([]Directory, error) {
	entries, err := os.ReadDir(d.mrl.Path)
	if err != nil {
		return nil, err
	}
	var out []Directory
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		childMrl := Mrl{Scheme: d.mrl.Scheme, Authority: d.mrl.Authority, Path: filepath.Join(d.mrl.Path, e.Name())}
		out = append(out, &localDirectory{mrl: childMrl})
	}
	return out, nil
}

func (d *localDirectory) IsRemovable() bool { return false }

func (d *localDirectory) Device() (Device, error) {
	return &localDevice{mountpoint: "/", present: true}, nil
}

type localFile struct {
	mrl  Mrl
	info os.FileInfo
}

func (f *localFile) Mrl() Mrl                   { return f.mrl }
func (f *localFile) Name() string               { return f.info.Name() }
func (f *localFile) IsNetwork() bool            { return false }
func (f *localFile) LastModified() time.Time    { return f.info.ModTime() }
func (f *localFile) Size() int64                { return f.info.Size() }

type localDevice struct {
	mountpoint string
	present    bool
}

func (d *localDevice) UUID() string      { return localDeviceUUID(d.mountpoint) }
func (d *localDevice) IsRemovable() bool { return false }
func (d *localDevice) IsNetwork() bool   { return false }
func (d *localDevice) IsPresent() bool   { return d.present }
func (d *localDevice) Mountpoint() string { return d.mountpoint }

// localDeviceLister watches for directories under /media and /mnt
// appearing and disappearing, treating each as a device mount. The
// localDevice it reports has IsRemovable false, like every localDevice.
type localDeviceLister struct {
	log     zerolog.Logger
	watcher *fsnotify.Watcher
	stop    chan struct{}
}

func newLocalDeviceLister(log zerolog.Logger) *localDeviceLister {
	return &localDeviceLister{log: log}
}

func (l *localDeviceLister) Start(onMounted, onUnmounted func(Device)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	l.watcher = w
	l.stop = make(chan struct{})

	for _, root := range []string{"/media", "/mnt"} {
		_ = w.Add(root)
	}

	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Has(fsnotify.Create) {
					if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
						onMounted(&localDevice{mountpoint: ev.Name, present: true})
					}
				}
				if ev.Has(fsnotify.Remove) {
					onUnmounted(&localDevice{mountpoint: ev.Name, present: false})
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				l.log.Warn().Err(err).Msg("local device lister error")
			case <-l.stop:
				return
			}
		}
	}()
	return nil
}

func (l *localDeviceLister) Stop() {
	if l.stop != nil {
		close(l.stop)
	}
	if l.watcher != nil {
		l.watcher.Close()
	}
}
