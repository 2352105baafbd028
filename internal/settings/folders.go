package settings

import (
	"fmt"
	"os"
	"path/filepath"
)

// Folder roles understood by Folders
const (
	FolderUploads      = "uploads"
	FolderTimelapse    = "timelapse"
	FolderTimelapseTmp = "timelapse_tmp"
	FolderLogs         = "logs"
	FolderWatched      = "watched"
)

// FolderRoles lists every folder role in display order
var FolderRoles = []string{FolderUploads, FolderTimelapse, FolderTimelapseTmp, FolderLogs, FolderWatched}

// Folders resolves role-named base folders. A role without a configured
// path lives under the base directory.
type Folders struct {
	BaseDir string
}

// NewFolders returns a resolver rooted at baseDir
func NewFolders(baseDir string) *Folders {
	return &Folders{BaseDir: baseDir}
}

// Default returns the default location of role
func (f *Folders) Default(role string) string {
	return filepath.Join(f.BaseDir, role)
}

// Get returns the folder for role from r and makes sure it exists
func (f *Folders) Get(r Reader, role string) (string, error) {
	if !knownRole(role) {
		return "", fmt.Errorf("unknown folder role %q", role)
	}

	folder := r.GetString(Path{"folder", role})
	if folder == "" {
		folder = f.Default(role)
	}

	if err := os.MkdirAll(folder, 0755); err != nil {
		return "", fmt.Errorf("failed to create %s folder: %w", role, err)
	}
	return folder, nil
}

// Set stores path as the folder for role. An empty path or the default
// location removes the override.
func (f *Folders) Set(w Writer, role string, path any) error {
	if !knownRole(role) {
		return fmt.Errorf("unknown folder role %q", role)
	}

	p := Path{"folder", role}
	folder := Stringify(path)
	if folder == "" || filepath.Clean(folder) == filepath.Clean(f.Default(role)) {
		return w.Remove(p)
	}
	return w.Set(p, folder)
}

func knownRole(role string) bool {
	for _, r := range FolderRoles {
		if r == role {
			return true
		}
	}
	return false
}
