package requests

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/brettbedarf/memfs"
	"github.com/brettbedarf/memfs/adapters"
	"github.com/brettbedarf/memfs/internal/util"
	"golang.org/x/sync/errgroup"
)

// DefaultWorkers bounds concurrent source fetches
const DefaultWorkers = 8

// Seeder creates manifest nodes through the regular operation surface, as
// the privileged caller
type Seeder struct {
	op       memfs.FileSystemOperator
	registry *adapters.Registry

	Workers int
}

// Summary counts what one Apply created
type Summary struct {
	Dirs   int
	Files  int
	Failed int
}

func NewSeeder(op memfs.FileSystemOperator, registry *adapters.Registry) *Seeder {
	return &Seeder{op: op, registry: registry, Workers: DefaultWorkers}
}

// Apply creates every requested node. Directories are made first, shallowest
// first, then files are fetched and written concurrently. Missing parent
// directories are created with default permissions. A failing node does not
// stop the others; all failures are returned joined.
func (s *Seeder) Apply(ctx context.Context, reqs []*NodeRequest) (Summary, error) {
	logger := util.GetLogger("Seeder")

	var dirs, files []*NodeRequest
	for _, req := range reqs {
		if req.Type == DirNodeType {
			dirs = append(dirs, req)
		} else {
			files = append(files, req)
		}
	}
	slices.SortStableFunc(dirs, func(a, b *NodeRequest) int {
		return depth(a.Path) - depth(b.Path)
	})

	var (
		mu      sync.Mutex
		sum     Summary
		failed  []error
		created []*NodeRequest
	)
	record := func(req *NodeRequest, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			logger.Warn().Err(err).Str("id", req.ID).Str("path", req.Path).Msg("Failed to seed node")
			sum.Failed++
			failed = append(failed, err)
			return
		}
		if req.Type == DirNodeType {
			sum.Dirs++
		} else {
			sum.Files++
		}
		created = append(created, req)
	}

	for _, req := range dirs {
		record(req, s.seedDir(req))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(s.Workers, 1))
	for _, req := range files {
		g.Go(func() error {
			err := s.seedFile(gctx, req)
			if err != nil && ctx.Err() != nil {
				return ctx.Err()
			}
			record(req, err)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return sum, err
	}

	// Times go last: creating children moves their parent's mtime.
	slices.SortStableFunc(created, func(a, b *NodeRequest) int {
		return depth(b.Path) - depth(a.Path)
	})
	for _, req := range created {
		if err := s.op.Utime(memfs.Root, req.Path, memfs.TimeSpecOf(req.Atime), memfs.TimeSpecOf(req.Mtime)); err != nil {
			failed = append(failed, fmt.Errorf("utime %s: %w", req.Path, err))
		}
	}

	logger.Info().Int("directories", sum.Dirs).Int("files", sum.Files).Int("failed", sum.Failed).Msg("Seeded filesystem")
	return sum, errors.Join(failed...)
}

func (s *Seeder) seedDir(req *NodeRequest) error {
	if err := s.ensureParents(req.Path); err != nil {
		return err
	}
	err := s.op.Mkdir(memfs.Root, req.Path, req.Perms)
	switch {
	case errors.Is(err, memfs.AlreadyExists):
		// an earlier entry implied it; apply the requested mode
		st, err := s.op.Stat(memfs.Root, req.Path)
		if err != nil {
			return err
		}
		if st.Type != memfs.DirNode {
			return memfs.NewError("seed", req.Path, memfs.NotADirectory)
		}
		if err := s.op.Chmod(memfs.Root, req.Path, req.Perms); err != nil {
			return err
		}
	case err != nil:
		return err
	}
	return s.chown(req)
}

func (s *Seeder) seedFile(ctx context.Context, req *NodeRequest) error {
	data, err := s.fetch(ctx, req)
	if err != nil {
		return err
	}
	if err := s.ensureParents(req.Path); err != nil {
		return err
	}

	fh, err := s.op.Create(memfs.Root, req.Path, req.Perms)
	if err != nil {
		return err
	}
	defer s.op.Release(req.Path, fh) //nolint:errcheck

	if len(data) > 0 {
		if _, err := s.op.Write(memfs.Root, req.Path, data, 0); err != nil {
			return err
		}
	}
	return s.chown(req)
}

// fetch returns the content of the first source that succeeds. A file with
// no sources is created empty.
func (s *Seeder) fetch(ctx context.Context, req *NodeRequest) ([]byte, error) {
	logger := util.GetLogger("Seeder")

	var errs []error
	for _, cfg := range req.Sources {
		src, err := s.registry.NewSource(cfg.Raw)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		data, err := src.Fetch(ctx)
		if err != nil {
			logger.Debug().Err(err).Str("path", req.Path).Str("source", cfg.Type).Msg("Source failed, trying next")
			errs = append(errs, err)
			continue
		}
		return data, nil
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("%s: no source succeeded: %w", req.Path, errors.Join(errs...))
	}
	return nil, nil
}

func (s *Seeder) chown(req *NodeRequest) error {
	if req.OwnerUID == nil && req.OwnerGID == nil {
		return nil
	}
	uid := uint32(memfs.UnchangedID)
	if req.OwnerUID != nil {
		uid = *req.OwnerUID
	}
	var gid uint32
	if req.OwnerGID != nil {
		gid = *req.OwnerGID
	} else {
		st, err := s.op.Stat(memfs.Root, req.Path)
		if err != nil {
			return err
		}
		gid = st.Gid
	}
	return s.op.Chown(memfs.Root, req.Path, uid, gid)
}

// ensureParents creates each missing ancestor of p
func (s *Seeder) ensureParents(p string) error {
	parts := strings.Split(strings.TrimPrefix(p, "/"), "/")
	dir := ""
	for _, part := range parts[:len(parts)-1] {
		dir += "/" + part
		err := s.op.Mkdir(memfs.Root, dir, DefaultDirPerms)
		if err != nil && !errors.Is(err, memfs.AlreadyExists) {
			return err
		}
	}
	return nil
}

func depth(p string) int {
	return strings.Count(p, "/")
}
