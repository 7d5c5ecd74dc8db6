package state

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const (
	QueueFileName = ".remote-sync-queue.json"
	LockFileName  = ".remote-sync-queue.lock"
)

// ConfigFileNames are searched in order in the working directory.
var ConfigFileNames = []string{
	".remotesyncrc.json",
	".remotesyncrc",
	"remote-sync.config.json",
	".remotesyncrc.yaml",
	".remotesyncrc.yml",
}

// Paths resolves the files remote-sync keeps next to the repository it
// operates on.
type Paths struct {
	Root string
}

func NewPaths(root string) Paths {
	return Paths{Root: root}
}

func (p Paths) QueuePath() string {
	return filepath.Join(p.Root, QueueFileName)
}

func (p Paths) LockPath() string {
	return filepath.Join(p.Root, LockFileName)
}

// ResolveConfigPath returns the config file to load. An explicit path must
// exist; otherwise the first existing default name wins and "" means no
// config file.
func (p Paths) ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		path := explicit
		if !filepath.IsAbs(path) {
			path = filepath.Join(p.Root, path)
		}
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return "", fmt.Errorf("config file %s not found", explicit)
			}
			return "", err
		}
		return path, nil
	}
	for _, name := range ConfigFileNames {
		path := filepath.Join(p.Root, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, nil
		}
	}
	return "", nil
}

// AtomicWrite replaces path with data via a temp file in the same directory.
func AtomicWrite(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return err
	}
	return nil
}
