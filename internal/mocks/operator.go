package mocks

import (
	"github.com/brettbedarf/memfs"
	"github.com/stretchr/testify/mock"
)

// MockOperator implements memfs.FileSystemOperator for testing across packages
type MockOperator struct {
	mock.Mock
}

func (m *MockOperator) Stat(c memfs.Caller, path string) (memfs.Stat, error) {
	args := m.Called(c, path)
	if args.Get(0) == nil {
		return memfs.Stat{}, args.Error(1)
	}
	return args.Get(0).(memfs.Stat), args.Error(1)
}

func (m *MockOperator) Access(c memfs.Caller, path string, mask memfs.AccessMode) error {
	return m.Called(c, path, mask).Error(0)
}

func (m *MockOperator) Open(c memfs.Caller, path string) (uint64, error) {
	args := m.Called(c, path)
	return uint64(args.Int(0)), args.Error(1)
}

func (m *MockOperator) Release(path string, fh uint64) error {
	return m.Called(path, fh).Error(0)
}

func (m *MockOperator) OpenDir(c memfs.Caller, path string) (uint64, error) {
	args := m.Called(c, path)
	return uint64(args.Int(0)), args.Error(1)
}

func (m *MockOperator) ReleaseDir(path string, fh uint64) error {
	return m.Called(path, fh).Error(0)
}

func (m *MockOperator) Truncate(c memfs.Caller, path string, size int64) error {
	return m.Called(c, path, size).Error(0)
}

func (m *MockOperator) Read(c memfs.Caller, path string, buf []byte, offset int64) (int, error) {
	args := m.Called(c, path, buf, offset)

	// Handle function return types (for tests that fill buf)
	if fn, ok := args.Get(0).(func(memfs.Caller, string, []byte, int64) int); ok {
		return fn(c, path, buf, offset), args.Error(1)
	}
	return args.Int(0), args.Error(1)
}

func (m *MockOperator) Write(c memfs.Caller, path string, data []byte, offset int64) (int, error) {
	args := m.Called(c, path, data, offset)
	return args.Int(0), args.Error(1)
}

func (m *MockOperator) Link(c memfs.Caller, src, dst string) error {
	return m.Called(c, src, dst).Error(0)
}

func (m *MockOperator) Unlink(c memfs.Caller, path string) error {
	return m.Called(c, path).Error(0)
}

func (m *MockOperator) Rename(c memfs.Caller, src, dst string) error {
	return m.Called(c, src, dst).Error(0)
}

func (m *MockOperator) Mknod(c memfs.Caller, path string, mode uint32) error {
	return m.Called(c, path, mode).Error(0)
}

func (m *MockOperator) Create(c memfs.Caller, path string, mode uint32) (uint64, error) {
	args := m.Called(c, path, mode)
	return uint64(args.Int(0)), args.Error(1)
}

func (m *MockOperator) Mkdir(c memfs.Caller, path string, mode uint32) error {
	return m.Called(c, path, mode).Error(0)
}

func (m *MockOperator) Rmdir(c memfs.Caller, path string) error {
	return m.Called(c, path).Error(0)
}

func (m *MockOperator) ReadDir(c memfs.Caller, path string) ([]memfs.DirEntry, error) {
	args := m.Called(c, path)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]memfs.DirEntry), args.Error(1)
}

func (m *MockOperator) Utime(c memfs.Caller, path string, atime, mtime memfs.TimeSpec) error {
	return m.Called(c, path, atime, mtime).Error(0)
}

func (m *MockOperator) Chmod(c memfs.Caller, path string, mode uint32) error {
	return m.Called(c, path, mode).Error(0)
}

func (m *MockOperator) Chown(c memfs.Caller, path string, uid, gid uint32) error {
	return m.Called(c, path, uid, gid).Error(0)
}

func (m *MockOperator) StatFs() memfs.FsStats {
	return m.Called().Get(0).(memfs.FsStats)
}

var _ memfs.FileSystemOperator = (*MockOperator)(nil)
