package audio

import (
	"os"
)

// dirReader lists directory entries.
type dirReader interface {
	ReadDir(name string) ([]os.DirEntry, error)
}

// fileStatter retrieves file information.
type fileStatter interface {
	Stat(name string) (os.FileInfo, error)
}

// --- Default implementations using real OS functions ---

// osDirReader implements dirReader using os.ReadDir.
type osDirReader struct{}

func (osDirReader) ReadDir(name string) ([]os.DirEntry, error) {
	return os.ReadDir(name)
}

// osFileStatter implements fileStatter using os.Stat.
type osFileStatter struct{}

func (osFileStatter) Stat(name string) (os.FileInfo, error) {
	return os.Stat(name)
}
