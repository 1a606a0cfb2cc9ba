package discoverer

import (
	"context"

	"github.com/silverreel/medialib/internal/model"
	"github.com/silverreel/medialib/internal/vfs"
)

// Probe is the strategy a discovery task delegates directory/file
// decisions to: CrawlerProbe (full recursive discovery) and PathProbe
// (single-file/targeted reload) both implement it, mirroring the
// original's IProbe/CrawlerProbe/PathProbe split.
type Probe interface {
	// ProceedOnDirectory decides whether dir should be entered at all.
	ProceedOnDirectory(dir vfs.Directory) bool
	// IsHidden reports whether dir should be skipped and, if found later,
	// removed along with its descendants.
	IsHidden(dir vfs.Directory) bool
	// ProceedOnFile decides whether a discovered file should be queued for
	// parsing.
	ProceedOnFile(file vfs.File) bool
	// StopFileDiscovery reports whether the crawl of the current directory
	// should stop early (used by PathProbe once its target is found).
	StopFileDiscovery() bool
	// DeleteUnseenFolders/DeleteUnseenFiles report whether folders/files
	// that existed before this crawl but weren't seen during it should be
	// removed.
	DeleteUnseenFolders() bool
	DeleteUnseenFiles() bool
	// ForceFileRefresh reports whether every seen file should be
	// re-queued for parsing even if its mtime/size haven't changed.
	ForceFileRefresh() bool
}

// CrawlerProbe is the default full-recursive-discovery probe: nothing is
// hidden, nothing is force-refreshed, and unseen folders/files are always
// removed since a complete crawl saw everything that still exists.
type CrawlerProbe struct{}

func (CrawlerProbe) ProceedOnDirectory(vfs.Directory) bool { return true }
func (CrawlerProbe) IsHidden(vfs.Directory) bool           { return false }
func (CrawlerProbe) ProceedOnFile(vfs.File) bool           { return true }
func (CrawlerProbe) StopFileDiscovery() bool                { return false }
func (CrawlerProbe) DeleteUnseenFolders() bool               { return true }
func (CrawlerProbe) DeleteUnseenFiles() bool                 { return true }
func (CrawlerProbe) ForceFileRefresh() bool                  { return false }

// PathProbe targets a single Mrl (reached via a fsnotify create event, for
// instance): it proceeds only along the ancestor chain leading to that
// path, and never deletes anything it didn't visit, since it only visited
// a narrow slice of the tree.
type PathProbe struct {
	Target vfs.Mrl
	Force  bool
}

func (p PathProbe) ProceedOnDirectory(dir vfs.Directory) bool {
	return isAncestorOrSelf(dir.Mrl(), p.Target)
}
func (p PathProbe) IsHidden(vfs.Directory) bool { return false }
func (p PathProbe) ProceedOnFile(file vfs.File) bool {
	return file.Mrl().String() == p.Target.String()
}
func (p PathProbe) StopFileDiscovery() bool  { return true }
func (p PathProbe) DeleteUnseenFolders() bool { return false }
func (p PathProbe) DeleteUnseenFiles() bool   { return false }
func (p PathProbe) ForceFileRefresh() bool    { return p.Force }

func isAncestorOrSelf(dir, target vfs.Mrl) bool {
	if dir.Scheme != target.Scheme || dir.Authority != target.Authority {
		return false
	}
	n := len(dir.Path)
	if len(target.Path) < n || target.Path[:n] != dir.Path {
		return false
	}
	return len(target.Path) == n || n == 0 || dir.Path[n-1] == '/' || target.Path[n] == '/'
}

// CrawlResult is what one directory subtree visit reports back, used to
// decide which previously-known folders/files went unseen.
type CrawlResult struct {
	SeenFolders map[int64]bool
	SeenFiles   map[int64]bool
}

// TaskHandler receives a file the crawl decided ProceedOnFile for, along
// with the Folder row the crawl already created or fetched for it. As the
// onFile handler it gets files with no File row yet, and is where that row
// is created and handed to the parser; as the onRefresh handler it gets
// known files whose mtime changed or that the probe force-refreshes.
type TaskHandler func(ctx context.Context, folder *model.Folder, file vfs.File) error
