package kb

import (
	"bytes"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// cacheVersion gates cache compatibility. Bump when the chunk schema or
// the embedding payload format changes.
const cacheVersion = "2"

var errCacheMismatch = errors.New("kb: cache version/deployment mismatch")

// ManifestEntry identifies one source file by path, size and
// modification time in nanoseconds. The triple is the cache key input.
type ManifestEntry struct {
	Path    string `json:"path"`
	Size    int64  `json:"size"`
	MtimeNS int64  `json:"mtime_ns"`
}

// buildManifest scans dir recursively for .html files and returns their
// manifest rows in path order. A missing directory yields an empty
// manifest, not an error: the KB simply builds empty.
func buildManifest(dir string) []ManifestEntry {
	var out []ManifestEntry
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if !strings.EqualFold(filepath.Ext(path), ".html") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			abs = path
		}
		out = append(out, ManifestEntry{
			Path:    abs,
			Size:    info.Size(),
			MtimeNS: info.ModTime().UnixNano(),
		})
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// fingerprint derives the short hex digest naming a KB build.
func fingerprint(deployment string, manifest []ManifestEntry) string {
	h := sha256.New()
	fmt.Fprintf(h, "ver:%s\n", cacheVersion)
	fmt.Fprintf(h, "deploy:%s\n", deployment)
	for _, m := range manifest {
		fmt.Fprintf(h, "%s|%d|%d\n", m.Path, m.Size, m.MtimeNS)
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// cachePayload is the on-disk form of a finished build. gob over this
// map-free struct is deterministic, so re-saving a loaded cache yields
// byte-identical content.
type cachePayload struct {
	Version              string
	EmbeddingsDeployment string
	Manifest             []ManifestEntry
	Chunks               []Chunk
	Vectors              [][]float32
}

func saveCache(path string, p cachePayload) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(p); err != nil {
		return fmt.Errorf("encoding cache: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("writing cache: %w", err)
	}
	return nil
}

// loadCache reads a cache file and verifies its version and embeddings
// deployment. On mismatch the stale file is deleted and errCacheMismatch
// returned so the caller rebuilds.
func loadCache(path, deployment string) (cachePayload, error) {
	f, err := os.Open(path)
	if err != nil {
		return cachePayload{}, err
	}

	var p cachePayload
	decErr := gob.NewDecoder(f).Decode(&p)
	f.Close()
	if decErr != nil {
		return cachePayload{}, fmt.Errorf("decoding cache: %w", decErr)
	}
	if p.Version != cacheVersion || p.EmbeddingsDeployment != deployment {
		os.Remove(path)
		return cachePayload{}, errCacheMismatch
	}
	return p, nil
}
