package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FileClass groups produced files by how they are delivered.
type FileClass int

// File classes recognized in a workspace.
const (
	ClassOther FileClass = iota
	ClassPhoto
	ClassVideo
	ClassAudio
	ClassSidecar
)

var extensions = map[string]FileClass{
	".jpg":  ClassPhoto,
	".jpeg": ClassPhoto,
	".png":  ClassPhoto,
	".webp": ClassPhoto,
	".mp4":  ClassVideo,
	".webm": ClassVideo,
	".mov":  ClassVideo,
	".mkv":  ClassVideo,
	".mp3":  ClassAudio,
	".m4a":  ClassAudio,
	".ogg":  ClassAudio,
	".opus": ClassAudio,
	".json": ClassSidecar,
}

// Classify maps a file path to its class by extension.
func Classify(path string) FileClass {
	return extensions[strings.ToLower(filepath.Ext(path))]
}

// IsMedia reports whether the class is a deliverable media file.
func (c FileClass) IsMedia() bool {
	return c == ClassPhoto || c == ClassVideo || c == ClassAudio
}

// ListFiles walks dir and returns every regular file, sorted by path. Partial
// downloads (.part, .ytdl) are skipped.
func ListFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".part", ".ytdl", ".tmp":
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	sort.Strings(files)
	return files, nil
}
