package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// preprocess makes sure every output's parent directory exists. Failures
// are surfaced rather than swallowed: a permissions or disk problem here is
// far easier to diagnose than the confusing action failure it would cause
// later.
func preprocess(r *Rule) error {
	for _, out := range r.Outputs {
		dir := filepath.Dir(out.Path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create output dir %s: %w", dir, err)
		}
	}
	return nil
}

// postprocessSuccess replaces the rule's metadata cache record with fresh
// (key, hash, mtime) entries for every tracked-content input. Rules without
// tracked inputs keep no record.
func postprocessSuccess(r *Rule) error {
	entries, err := freshEntries(r)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}
	return saveCache(r.MetadataPath(), entries)
}

// postprocessFailure stamps every existing output with the sentinel mtime
// and deletes the metadata cache record. Even a partially written output is
// then treated as invalid on the next evaluation, and a cache referencing a
// possibly corrupt output is never trusted again. Best effort: the rule has
// already failed, so individual stamp errors are not propagated.
func postprocessFailure(r *Rule) {
	epoch := time.Unix(0, 0)
	for _, out := range r.Outputs {
		if exists(out.Path) {
			_ = os.Chtimes(out.Path, epoch, epoch)
		}
	}
	_ = deleteCache(r.MetadataPath())
}
