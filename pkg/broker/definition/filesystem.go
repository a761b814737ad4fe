package definition

import "os"

// FileSystem abstracts the handful of filesystem operations the endpoint
// needs to set up (and tear down) a recording directory. Grounded on
// broker/detail/filesystem.hh's exists/remove/remove_all trio, with mkdirs
// and is_directory added since the endpoint constructor needs both.
type FileSystem interface {
	Exists(path string) bool
	IsDirectory(path string) bool
	Remove(path string) error
	RemoveAll(path string) error
	Mkdirs(path string) error
	WriteFile(path string, data []byte, mode os.FileMode) error
}

// OSFileSystem is the production FileSystem backed by the host filesystem.
type OSFileSystem struct{}

func (OSFileSystem) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (OSFileSystem) IsDirectory(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func (OSFileSystem) Remove(path string) error {
	return os.Remove(path)
}

func (OSFileSystem) RemoveAll(path string) error {
	return os.RemoveAll(path)
}

func (OSFileSystem) Mkdirs(path string) error {
	return os.MkdirAll(path, 0700)
}

func (OSFileSystem) WriteFile(path string, data []byte, mode os.FileMode) error {
	return os.WriteFile(path, data, mode)
}
