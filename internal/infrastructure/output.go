package infrastructure

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/yourusername/yt-fetch-go/internal/domain"
)

// newOutputBase returns a collision-free path without extension, e.g.
// <dir>/video_<uuid>. Every fetch gets its own token.
func newOutputBase(dir string, kind domain.FormatKind) string {
	return filepath.Join(dir, fmt.Sprintf("%s_%s", kind, uuid.New().String()))
}

// findOutput returns the finished file produced for base, ignoring
// partial and sidecar files
func findOutput(fs afero.Fs, base string) (string, error) {
	matches, err := afero.Glob(fs, base+".*")
	if err != nil {
		return "", err
	}
	for _, m := range matches {
		if isPartial(m) {
			continue
		}
		return m, nil
	}
	return "", fmt.Errorf("no output file for %s", filepath.Base(base))
}

// removeOutputs deletes every file produced for base, partial or not
func removeOutputs(fs afero.Fs, base string) {
	matches, err := afero.Glob(fs, base+".*")
	if err != nil {
		return
	}
	for _, m := range matches {
		if err := fs.Remove(m); err != nil && !errors.Is(err, os.ErrNotExist) {
			continue
		}
	}
}

func isPartial(path string) bool {
	return strings.HasSuffix(path, ".part") ||
		strings.HasSuffix(path, ".ytdl") ||
		strings.HasSuffix(path, ".temp") ||
		strings.Contains(filepath.Base(path), ".part-")
}
