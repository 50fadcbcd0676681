package dfs

import (
	"io/fs"
	"os"

	"github.com/stretchr/testify/mock"
)

// FileStore abstracts the filesystem primitives a router or shard needs, so
// tests can substitute MockFileStore instead of touching a real disk.
type FileStore interface {
	Create(name string) (*os.File, error)
	MkdirAll(name string, perm os.FileMode) error
	Open(name string) (*os.File, error)
	Remove(name string) error
	Rename(oldpath, newpath string) error
	Stat(name string) (fs.FileInfo, error)
	ReadDir(name string) ([]fs.DirEntry, error)
}

// OSFileStore is the production FileStore backed by the real filesystem.
type OSFileStore struct{}

func (OSFileStore) Create(name string) (*os.File, error) { return os.Create(name) }

func (OSFileStore) MkdirAll(name string, perm os.FileMode) error {
	return os.MkdirAll(name, perm)
}

func (OSFileStore) Open(name string) (*os.File, error) { return os.Open(name) }

func (OSFileStore) Remove(name string) error { return os.Remove(name) }

func (OSFileStore) Rename(oldpath, newpath string) error { return os.Rename(oldpath, newpath) }

func (OSFileStore) Stat(name string) (fs.FileInfo, error) { return os.Stat(name) }

func (OSFileStore) ReadDir(name string) ([]fs.DirEntry, error) { return os.ReadDir(name) }

// MockFileStore is a testify mock used by dfs tests to exercise error paths
// (missing files, unwritable destinations) without a real filesystem.
type MockFileStore struct {
	mock.Mock
}

func (m *MockFileStore) Create(name string) (*os.File, error) {
	args := m.Called(name)
	f, _ := args.Get(0).(*os.File)
	return f, args.Error(1)
}

func (m *MockFileStore) MkdirAll(name string, perm os.FileMode) error {
	args := m.Called(name, perm)
	return args.Error(0)
}

func (m *MockFileStore) Open(name string) (*os.File, error) {
	args := m.Called(name)
	f, _ := args.Get(0).(*os.File)
	return f, args.Error(1)
}

func (m *MockFileStore) Remove(name string) error {
	args := m.Called(name)
	return args.Error(0)
}

func (m *MockFileStore) Rename(oldpath, newpath string) error {
	args := m.Called(oldpath, newpath)
	return args.Error(0)
}

func (m *MockFileStore) Stat(name string) (fs.FileInfo, error) {
	args := m.Called(name)
	info, _ := args.Get(0).(fs.FileInfo)
	return info, args.Error(1)
}

func (m *MockFileStore) ReadDir(name string) ([]fs.DirEntry, error) {
	args := m.Called(name)
	entries, _ := args.Get(0).([]fs.DirEntry)
	return entries, args.Error(1)
}
