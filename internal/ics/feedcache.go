package ics

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"
)

// feedMeta is the validator state stored next to a cached feed body.
type feedMeta struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// feedCache keeps one directory per feed URL under dir.
type feedCache struct {
	dir string
}

// cachedFeed is the directory of a single feed.
type cachedFeed struct {
	dir string
}

func (c feedCache) entry(rawURL string) (cachedFeed, error) {
	if rawURL == "" {
		return cachedFeed{}, errors.New("empty url")
	}
	sum := sha256.Sum256([]byte(rawURL))
	dir := filepath.Join(c.dir, hex.EncodeToString(sum[:8]))
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return cachedFeed{}, err
	}
	return cachedFeed{dir: dir}, nil
}

func (e cachedFeed) metaPath() string { return filepath.Join(e.dir, "meta.json") }
func (e cachedFeed) bodyPath() string { return filepath.Join(e.dir, "body.ics") }

// load returns whatever is cached. A missing or corrupt meta file yields
// empty validators so the next request is unconditional.
func (e cachedFeed) load() (feedMeta, []byte) {
	var meta feedMeta
	if data, err := os.ReadFile(e.metaPath()); err == nil {
		if json.Unmarshal(data, &meta) != nil {
			meta = feedMeta{}
		}
	}
	body, _ := os.ReadFile(e.bodyPath())
	return meta, body
}

// store writes the body before the meta so validators never describe a
// body that is not on disk.
func (e cachedFeed) store(meta feedMeta, body []byte) error {
	if err := os.WriteFile(e.bodyPath(), body, 0o600); err != nil {
		return err
	}
	meta.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(&meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(e.metaPath(), data, 0o600)
}
