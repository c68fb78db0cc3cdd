package filesystem

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/brettbedarf/memfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestConcurrent_WritesToDistinctFiles(t *testing.T) {
	t.Parallel()

	fs := newTestFS(t)
	const files, rounds = 16, 50

	for i := range files {
		require.NoError(t, fs.Mknod(memfs.Root, fmt.Sprintf("/f%d", i), 0o644))
	}

	var g errgroup.Group
	for i := range files {
		path := fmt.Sprintf("/f%d", i)
		chunk := bytes.Repeat([]byte{byte('a' + i)}, 8)
		g.Go(func() error {
			for r := range rounds {
				if _, err := fs.Write(memfs.Root, path, chunk, int64(r*len(chunk))); err != nil {
					return err
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	for i := range files {
		path := fmt.Sprintf("/f%d", i)
		want := bytes.Repeat([]byte{byte('a' + i)}, 8*rounds)
		assert.Equal(t, want, readAll(t, fs, path), "content of %s", path)
	}
}

func TestConcurrent_WritesToSameFile(t *testing.T) {
	t.Parallel()

	fs := newTestFS(t)
	const writers, size = 8, 64
	require.NoError(t, fs.Mknod(memfs.Root, "/shared", 0o644))

	// each writer owns a disjoint region, so every byte has one expected value
	var g errgroup.Group
	for w := range writers {
		region := bytes.Repeat([]byte{byte('0' + w)}, size)
		g.Go(func() error {
			_, err := fs.Write(memfs.Root, "/shared", region, int64(w*size))
			return err
		})
	}
	require.NoError(t, g.Wait())

	data := readAll(t, fs, "/shared")
	require.Len(t, data, writers*size)
	for w := range writers {
		assert.Equal(t, bytes.Repeat([]byte{byte('0' + w)}, size), data[w*size:(w+1)*size],
			"region %d", w)
	}
	st, err := fs.Stat(memfs.Root, "/shared")
	require.NoError(t, err)
	assert.Equal(t, int64(writers*size), st.Capacity)
}

func TestConcurrent_ReadersDuringWrites(t *testing.T) {
	t.Parallel()

	fs := newTestFS(t)
	require.NoError(t, fs.Mknod(memfs.Root, "/f", 0o644))
	_, err := fs.Write(memfs.Root, "/f", []byte("seed"), 0)
	require.NoError(t, err)

	var g errgroup.Group
	g.Go(func() error {
		for i := range 200 {
			if _, err := fs.Write(memfs.Root, "/f", []byte("x"), int64(4+i)); err != nil {
				return err
			}
		}
		return nil
	})
	for range 4 {
		g.Go(func() error {
			buf := make([]byte, 4)
			for range 200 {
				n, err := fs.Read(memfs.Root, "/f", buf, 0)
				if err != nil {
					return err
				}
				if string(buf[:n]) != "seed" {
					return fmt.Errorf("read %q", buf[:n])
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
}

func TestConcurrent_StructuralMutations(t *testing.T) {
	t.Parallel()

	fs := newTestFS(t)
	const workers = 8
	destroyed := 0
	fs.Namespace().OnDestroy(func(*Inode) { destroyed++ })

	var g errgroup.Group
	for w := range workers {
		dir := fmt.Sprintf("/w%d", w)
		g.Go(func() error {
			if err := fs.Mkdir(memfs.Root, dir, 0o755); err != nil {
				return err
			}
			for i := range 20 {
				path := fmt.Sprintf("%s/f%d", dir, i)
				if err := fs.Mknod(memfs.Root, path, 0o644); err != nil {
					return err
				}
				if _, err := fs.Write(memfs.Root, path, []byte("data"), 0); err != nil {
					return err
				}
				if err := fs.Rename(memfs.Root, path, path+".moved"); err != nil {
					return err
				}
				if err := fs.Unlink(memfs.Root, path+".moved"); err != nil {
					return err
				}
			}
			return fs.Rename(memfs.Root, dir, dir+"-done")
		})
	}
	require.NoError(t, g.Wait())

	// destroy runs under the exclusive namespace lock
	assert.Equal(t, workers*20, destroyed)
	assert.Equal(t, memfs.FsStats{Inodes: 1 + workers, Paths: 3 + 3*workers, Allocated: 0}, fs.StatFs())
	for w := range workers {
		_, err := fs.Stat(memfs.Root, fmt.Sprintf("/w%d-done", w))
		assert.NoError(t, err)
	}
}
