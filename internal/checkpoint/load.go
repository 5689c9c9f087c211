package checkpoint

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Resolve maps path to a checkpoint file. A directory resolves to its newest
// checkpoint by modification time, ties broken by name.
func Resolve(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return "", fmt.Errorf("stat checkpoint: %w", err)
	}
	if !info.IsDir() {
		return path, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return "", fmt.Errorf("read checkpoint directory: %w", err)
	}
	var (
		newest     string
		newestInfo fs.FileInfo
	)
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), Extension) {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		if newestInfo == nil ||
			fi.ModTime().After(newestInfo.ModTime()) ||
			(fi.ModTime().Equal(newestInfo.ModTime()) && e.Name() > newest) {
			newest, newestInfo = e.Name(), fi
		}
	}
	if newest == "" {
		return "", fmt.Errorf("%w: no %s files in %s", ErrNotFound, Extension, path)
	}
	return filepath.Join(path, newest), nil
}

// Load resolves path and decodes the checkpoint it points at.
func Load(path string) (Checkpoint, string, error) {
	resolved, err := Resolve(path)
	if err != nil {
		return Checkpoint{}, "", err
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Checkpoint{}, "", fmt.Errorf("%w: %s", ErrNotFound, resolved)
		}
		return Checkpoint{}, "", fmt.Errorf("read checkpoint: %w", err)
	}
	cp, err := Decode(data)
	if err != nil {
		return Checkpoint{}, "", fmt.Errorf("decode %s: %w", resolved, err)
	}
	return cp, resolved, nil
}
