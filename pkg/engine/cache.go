package engine

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// MetaDirName is the reserved subdirectory holding metadata cache records,
// created next to each rule's primary output. Its contents are private
// engine state; external code must not rely on the format.
const MetaDirName = ".omochamake"

// cacheEntry is one persisted (DeepKey, hash, mtime) triple for a
// tracked-content input.
type cacheEntry struct {
	Key   DeepKey `json:"key"`
	Hash  string  `json:"hash"`
	MTime float64 `json:"mtime"`
}

// loadCache reads a metadata cache record and indexes it by canonical key.
// An absent record is an empty cache, not an error.
func loadCache(path string) (map[string]cacheEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]cacheEntry{}, nil
		}
		return nil, fmt.Errorf("read metadata cache: %w", err)
	}
	var entries []cacheEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse metadata cache %s: %w", path, err)
	}
	idx := make(map[string]cacheEntry, len(entries))
	for _, e := range entries {
		idx[e.Key.canon()] = e
	}
	return idx, nil
}

// saveCache atomically replaces the metadata cache record at path with the
// given ordered entries, creating the reserved directory as needed.
func saveCache(path string, entries []cacheEntry) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encode metadata cache: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create metadata dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write metadata cache: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace metadata cache: %w", err)
	}
	return nil
}

// deleteCache removes a metadata cache record. A missing record is fine.
func deleteCache(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete metadata cache: %w", err)
	}
	return nil
}

// freshEntries hashes and stats every tracked-content input of r, producing
// the record persisted after a successful run.
func freshEntries(r *Rule) ([]cacheEntry, error) {
	tracked := r.trackedInputs()
	if len(tracked) == 0 {
		return nil, nil
	}
	entries := make([]cacheEntry, 0, len(tracked))
	for _, in := range tracked {
		h, err := in.Artifact.Hash(in.Artifact.Path)
		if err != nil {
			return nil, fmt.Errorf("hash %s: %w", in.Artifact.Path, err)
		}
		m, err := mtimeOf(in.Artifact.Path)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", in.Artifact.Path, err)
		}
		entries = append(entries, cacheEntry{Key: in.Key, Hash: h, MTime: m})
	}
	return entries, nil
}
