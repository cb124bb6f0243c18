package sync

import (
	"io/fs"
	"os"
	"path/filepath"
)

// scanLocalRepos walks the mirror root and returns every directory that holds
// git metadata. The walk stops descending once a repository is found, so
// nested submodule checkouts inside a mirror are never reported separately.
// A missing root is an empty mirror, not an error.
func scanLocalRepos(root string) ([]string, error) {
	if _, err := os.Stat(root); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var repos []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() || path == filepath.Clean(root) {
			return nil
		}
		if info, statErr := os.Stat(filepath.Join(path, ".git")); statErr == nil && info.IsDir() {
			repos = append(repos, path)
			return filepath.SkipDir
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return repos, nil
}
