package vfs

import (
	"context"
	"fmt"
	"net"
	"path"
	"strings"
	"time"

	"github.com/cloudsoda/go-smb2"
	"github.com/rs/zerolog"
)

// Credentials supplies the username/password used to dial an SMB server;
// the engine has no user-account system of its own, so these are provided
// by whoever embeds the library (a host callback, per spec.md §6).
type Credentials struct {
	User     string
	Password string
}

// CredentialLookup resolves credentials for a given server/authority.
type CredentialLookup func(authority string) Credentials

// SmbFactory implements FilesystemFactory for the smb:// scheme.
// NetworkOnly reports true: it has no local-device presence of its own and
// is only ever reached through the fsholder's network-enabled toggle.
type SmbFactory struct {
	log      zerolog.Logger
	creds    CredentialLookup
}

func NewSmbFactory(log zerolog.Logger, creds CredentialLookup) *SmbFactory {
	return &SmbFactory{log: log, creds: creds}
}

func (f *SmbFactory) Scheme() string    { return "smb" }
func (f *SmbFactory) NetworkOnly() bool { return true }

func (f *SmbFactory) DeviceLister() (DeviceLister, bool) { return nil, false }

func (f *SmbFactory) dial(ctx context.Context, authority string) (*smb2.Session, error) {
	server := authority
	if _, _, err := net.SplitHostPort(server); err != nil {
		server = net.JoinHostPort(server, "445")
	}
	var cred Credentials
	if f.creds != nil {
		cred = f.creds(authority)
	}
	d := &smb2.Dialer{
		Initiator: &smb2.NTLMInitiator{User: cred.User, Password: cred.Password},
	}
	return d.Dial(ctx, server)
}

func splitShare(p string) (share, rest string, err error) {
	trimmed := strings.TrimPrefix(path.Clean(p), "/")
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) == 0 || parts[0] == "" {
		return "", "", fmt.Errorf("smb mrl missing share name: %q", p)
	}
	share = parts[0]
	if len(parts) == 2 {
		rest = parts[1]
	}
	return share, rest, nil
}

func (f *SmbFactory) CreateDirectory(mrl Mrl) (Directory, error) {
	return &smbDirectory{factory: f, mrl: mrl}, nil
}

func (f *SmbFactory) CreateFile(mrl Mrl) (File, error) {
	share, rest, err := splitShare(mrl.Path)
	if err != nil {
		return nil, err
	}
	ctx := context.Background()
	session, err := f.dial(ctx, mrl.Authority)
	if err != nil {
		return nil, fmt.Errorf("dial smb %s: %w", mrl.Authority, err)
	}
	defer session.Logoff()

	fsys, err := session.Mount(share)
	if err != nil {
		return nil, fmt.Errorf("mount smb share %s: %w", share, err)
	}
	defer fsys.Umount()

	info, err := fsys.Stat(rest)
	if err != nil {
		return nil, fmt.Errorf("stat smb file %s: %w", rest, err)
	}
	return &smbFile{mrl: mrl, size: info.Size(), modTime: info.ModTime()}, nil
}

type smbDirectory struct {
	factory *SmbFactory
	mrl     Mrl
}

func (d *smbDirectory) Mrl() Mrl { return d.mrl }

func (d *smbDirectory) Files(ctx context.Context) ([]File, error) {
	files, _, err := d.list(ctx)
	return files, err
}

func (d *smbDirectory) Directories(ctx context.Context) ([]Directory, error) {
	_, dirs, err := d.list(ctx)
	return dirs, err
}

func (d *smbDirectory) list(ctx context.Context) ([]File, []Directory, error) {
	share, rest, err := splitShare(d.mrl.Path)
	if err != nil {
		return nil, nil, err
	}
	session, err := d.factory.dial(ctx, d.mrl.Authority)
	if err != nil {
		return nil, nil, fmt.Errorf("dial smb %s: %w", d.mrl.Authority, err)
	}
	defer session.Logoff()

	fsys, err := session.Mount(share)
	if err != nil {
		return nil, nil, fmt.Errorf("mount smb share %s: %w", share, err)
	}
	defer fsys.Umount()

	entries, err := fsys.ReadDir(rest)
	if err != nil {
		return nil, nil, fmt.Errorf("readdir smb %s: %w", rest, err)
	}

	var files []File
	var dirs []Directory
	for _, e := range entries {
		childMrl := Mrl{Scheme: "smb", Authority: d.mrl.Authority, Path: path.Join(d.mrl.Path, e.Name())}
		if e.IsDir() {
			dirs = append(dirs, &smbDirectory{factory: d.factory, mrl: childMrl})
		} else {
			files = append(files, &smbFile{mrl: childMrl, size: e.Size(), modTime: e.ModTime()})
		}
	}
	return files, dirs, nil
}

func (d *smbDirectory) IsRemovable() bool { return false }

func (d *smbDirectory) Device() (Device, error) {
	return &smbDevice{authority: d.mrl.Authority, present: true}, nil
}

type smbFile struct {
	mrl     Mrl
	size    int64
	modTime time.Time
}

func (f *smbFile) Mrl() Mrl                { return f.mrl }
func (f *smbFile) Name() string            { return path.Base(f.mrl.Path) }
func (f *smbFile) IsNetwork() bool         { return true }
func (f *smbFile) LastModified() time.Time { return f.modTime }
func (f *smbFile) Size() int64             { return f.size }

type smbDevice struct {
	authority string
	present   bool
}

func (d *smbDevice) UUID() string       { return d.authority }
func (d *smbDevice) IsRemovable() bool  { return false }
func (d *smbDevice) IsNetwork() bool    { return true }
func (d *smbDevice) IsPresent() bool    { return d.present }
func (d *smbDevice) Mountpoint() string { return "//" + d.authority }
