package file

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// ExpandPath expands a leading "~/" into the user's home directory.
func ExpandPath(path string) (string, error) {
	if !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "getting user home dir")
	}
	return filepath.Join(home, path[2:]), nil
}

// TempPath returns a path inside a per-process temp directory, creating the
// directory if needed. Callers are responsible for removing the file.
func TempPath(name string) (string, error) {
	dir := filepath.Join(os.TempDir(), "ogchat")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", errors.Wrap(err, "creating temp directory")
	}
	return filepath.Join(dir, name), nil
}

// WriteTemp writes bytes to a temp file and returns its path.
func WriteTemp(name string, data []byte) (string, error) {
	path, err := TempPath(name)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", errors.Wrap(err, "writing temp file")
	}
	return path, nil
}
