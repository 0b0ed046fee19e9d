package loader

import (
	"context"
	"os"
	"path/filepath"
	"strings"
)

type file struct {
	path string
}

// Load returns a file from the local file system
func (l *file) Load(_ context.Context) ([]byte, error) {
	return os.ReadFile(filepath.Clean(l.path))
}

// FileFactory returns a loader that reads from the filesystem. file:// prefixes are accepted.
func FileFactory(path string) Loader {
	return &file{path: strings.TrimPrefix(path, "file://")}
}
