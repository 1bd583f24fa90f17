// Package util - Helpers for offline frame replay.
package util

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// FrameFile is one image of a recorded frame sequence.
type FrameFile struct {
	// Path is the path to the image file.
	Path string
	// Data is the raw bytes of the image file.
	Data []byte
	// Index is the frame number parsed from the file name.
	Index int
}

// LoadFrameFiles reads all image files from a directory and orders them by
// frame number. File names follow the frame-<n>.<ext> convention used by
// frame dumps; extensions jpg, jpeg, png, and bmp are accepted.
//
// Arguments:
//   - dir: Directory path containing the frame files.
//
// Returns:
//   - []FrameFile: The frames in playback order.
//   - error: An error if reading or name parsing fails.
func LoadFrameFiles(dir string) ([]FrameFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "reading frame directory %s", dir)
	}

	var frames []FrameFile
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		ext := strings.ToLower(filepath.Ext(entry.Name()))
		switch ext {
		case ".jpg", ".jpeg", ".png", ".bmp":
		default:
			continue
		}

		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "reading frame %s", path)
		}

		stem := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		index, err := strconv.Atoi(strings.TrimPrefix(stem, "frame-"))
		if err != nil {
			return nil, errors.Wrapf(err, "parsing frame number from %s", entry.Name())
		}

		frames = append(frames, FrameFile{Path: path, Data: data, Index: index})
	}

	sort.Slice(frames, func(i, j int) bool {
		return frames[i].Index < frames[j].Index
	})
	return frames, nil
}
