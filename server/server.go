package server

import (
	"fmt"
	"time"

	"github.com/brettbedarf/memfs/config"
	"github.com/brettbedarf/memfs/filesystem"
	mfuse "github.com/brettbedarf/memfs/fuse"
	"github.com/brettbedarf/memfs/internal/util"
	gofuse "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// MemFs owns one engine instance and the FUSE server exposing it
type MemFs struct {
	*filesystem.FileSystem
	cfg    *config.Config
	server *fuse.Server
}

// New creates a MemFs instance given your config.
func New(cfg *config.Config) (*MemFs, error) {
	fs, err := filesystem.NewFS(cfg)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = config.NewDefaultConfig()
	}
	return &MemFs{
		FileSystem: fs,
		cfg:        cfg,
	}, nil
}

// mountOptions converts the config into go-fuse options
func (fs *MemFs) mountOptions() *gofuse.Options {
	attrTimeout := seconds(fs.cfg.AttrTimeout)
	entryTimeout := seconds(fs.cfg.EntryTimeout)
	opts := fs.cfg.MountOptions

	return &gofuse.Options{
		AttrTimeout:  &attrTimeout,
		EntryTimeout: &entryTimeout,
		MountOptions: fuse.MountOptions{
			Name:       opts.Name,
			FsName:     opts.FsName,
			AllowOther: opts.AllowOther,
			Debug:      opts.Debug || fs.cfg.LogLvl == util.TraceLevel,
			Logger:     util.NewLogLogger("FuseServer", util.DebugLevel),
		},
	}
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// Serve mounts the filesystem at mountPoint and returns once the kernel
// has acknowledged the mount. Requests are served in the background.
func (fs *MemFs) Serve(mountPoint string) error {
	logger := util.GetLogger("Server")

	root := mfuse.NewRoot(fs.FileSystem)
	srv, err := gofuse.Mount(mountPoint, root, fs.mountOptions())
	if err != nil {
		return fmt.Errorf("mounting %s: %w", mountPoint, err)
	}
	fs.server = srv

	logger.Info().Str("mountpoint", mountPoint).Str("fs", fs.ID()).Msg("Filesystem mounted")
	return nil
}

// ServeAsync mounts in the background and reports the mount result
func (fs *MemFs) ServeAsync(mountPoint string) <-chan error {
	done := make(chan error, 1)

	go func() {
		done <- fs.Serve(mountPoint)
		close(done)
	}()

	return done
}

// Wait blocks until the filesystem is unmounted
func (fs *MemFs) Wait() {
	if fs.server != nil {
		fs.server.Wait()
	}
}

// Unmount cleanly unmounts the filesystem.
func (fs *MemFs) Unmount() error {
	if fs.server == nil {
		return nil
	}
	return fs.server.Unmount()
}
