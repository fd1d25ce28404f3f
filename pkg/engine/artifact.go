package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
)

// HashFunc computes a content digest for the file at path.
type HashFunc func(path string) (string, error)

// Artifact is a filesystem path tracked by the engine. A nil Hash makes it
// a plain artifact (timestamp-only); a non-nil Hash makes it tracked-content.
// Identity is the path.
type Artifact struct {
	Path string
	Hash HashFunc
}

// Plain returns a timestamp-only artifact.
func Plain(path string) Artifact {
	return Artifact{Path: path}
}

// Tracked returns a tracked-content artifact using SHA-256.
func Tracked(path string) Artifact {
	return Artifact{Path: path, Hash: SHA256File}
}

// TrackedWith returns a tracked-content artifact with a custom hash function.
func TrackedWith(path string, h HashFunc) Artifact {
	return Artifact{Path: path, Hash: h}
}

// IsTracked reports whether the artifact carries a content-hash function.
func (a Artifact) IsTracked() bool { return a.Hash != nil }

// SHA256File is the default content hash: hex-encoded SHA-256 of the file.
func SHA256File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// mtimeOf returns the modification time of path as fractional Unix seconds.
// The zero value is the sentinel marking an invalid or failed artifact.
func mtimeOf(path string) (float64, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return float64(fi.ModTime().UnixNano()) / 1e9, nil
}

// exists reports whether path exists.
func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
