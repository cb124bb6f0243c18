// Package archive packs mirrored repositories into per-folder zip files.
package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

// Result counts how the archiving run went. Per-folder failures do not abort
// the run; they are counted and logged instead.
type Result struct {
	Archived int
	Failed   int
}

// Compress zips every directory found at the given depth under root into a
// sibling <name>.zip file. Depth 0 means the immediate children of root.
func Compress(root string, depth int, logger *slog.Logger) (Result, error) {
	info, err := os.Stat(root)
	if err != nil {
		return Result{}, fmt.Errorf("failed to resolve input path: %w", err)
	}
	if !info.IsDir() {
		return Result{}, fmt.Errorf("input path is not a directory: %s", root)
	}

	folders, err := collectDirsAtDepth(root, depth)
	if err != nil {
		return Result{}, err
	}
	if len(folders) == 0 {
		logger.Info("no folders found at depth", "root", root, "depth", depth)
		return Result{}, nil
	}
	logger.Info("compressing folders", "count", len(folders), "depth", depth)

	var result Result
	for _, folder := range folders {
		zipPath := folder + ".zip"
		if err := compressDir(folder, zipPath); err != nil {
			logger.Warn("failed to compress folder", "folder", folder, "error", err)
			result.Failed++
			continue
		}
		logger.Info("compressed", "folder", folder, "archive", zipPath)
		result.Archived++
	}
	return result, nil
}

// collectDirsAtDepth returns the directories exactly depth levels below root.
func collectDirsAtDepth(root string, depth int) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", root, err)
	}

	var dirs []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		path := filepath.Join(root, entry.Name())
		if depth == 0 {
			dirs = append(dirs, path)
			continue
		}
		sub, err := collectDirsAtDepth(path, depth-1)
		if err != nil {
			return nil, err
		}
		dirs = append(dirs, sub...)
	}
	return dirs, nil
}

// compressDir writes a zip of folder to zipPath. Entries are rooted at the
// folder name so the archive unpacks into a single directory.
func compressDir(folder, zipPath string) error {
	out, err := os.Create(zipPath)
	if err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	base := filepath.Base(folder)

	walkErr := filepath.WalkDir(folder, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(folder, path)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(filepath.Join(base, rel))

		if d.IsDir() {
			if path == folder {
				return nil
			}
			_, err := zw.Create(name + "/")
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}

		w, err := zw.Create(name)
		if err != nil {
			return err
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(w, f)
		return err
	})
	if walkErr != nil {
		zw.Close()
		return walkErr
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to finalize archive: %w", err)
	}
	return nil
}
