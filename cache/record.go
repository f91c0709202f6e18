// Package cache persists deployment records and decides which previously
// inscribed files can be reused on redeployment.
package cache

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/shruggr/ordsite/chunk"
	"github.com/shruggr/ordsite/lib"
)

const SchemaVersion = 2

// Record is the append-only deployment history document.
type Record struct {
	SchemaVersion    int           `json:"schemaVersion"`
	ChainOrigin      lib.Outpoint  `json:"chainOriginId"`
	TotalDeployments int           `json:"totalDeployments"`
	Deployments      []*Deployment `json:"deployments"`
}

// Deployment is one completed run.
type Deployment struct {
	Version     string          `json:"version"`
	Description string          `json:"description,omitempty"`
	Timestamp   time.Time       `json:"timestamp"`
	TotalBytes  int64           `json:"totalBytes"`
	TotalFees   uint64          `json:"totalFeesPaid"`
	Txids       []string        `json:"txids"`
	Files       []*FileEntry    `json:"files"`
	Chunked     []*ChunkedEntry `json:"chunked,omitempty"`
	LoaderHash  string          `json:"loaderHash,omitempty"`
}

// FileEntry records one inscribed whole file.
type FileEntry struct {
	OriginalPath string       `json:"originalPath"`
	Outpoint     lib.Outpoint `json:"outpoint"`
	URLPath      string       `json:"urlPath"`
	Size         int64        `json:"size"`
	ContentHash  string       `json:"contentHash"`
	// DependencyHash is the hash of the file's resolved dependency URLs
	// at publish time; empty for leaf files.
	DependencyHash string `json:"dependencyHash,omitempty"`
	Cached         bool   `json:"cached,omitempty"`
}

// ChunkedEntry records one chunked file and its manifest carrier.
type ChunkedEntry struct {
	OriginalPath string       `json:"originalPath"`
	MimeType     string       `json:"mimeType"`
	TotalSize    int64        `json:"totalSize"`
	ChunkSize    int64        `json:"chunkSize"`
	// ContentHash is absent on records written before chunked files were
	// hashed; reuse then falls back to size equality.
	ContentHash string       `json:"contentHash,omitempty"`
	Manifest    lib.Outpoint `json:"manifestOutpoint"`
	URLPath     string       `json:"urlPath"`
	Chunks      []ChunkRef   `json:"chunks"`
	Cached      bool         `json:"cached,omitempty"`
}

type ChunkRef struct {
	Index    int          `json:"index"`
	Outpoint lib.Outpoint `json:"outpoint"`
	URLPath  string       `json:"urlPath"`
	Size     int64        `json:"size"`
}

// ToManifest reconstructs the reassembly manifest from a cached entry.
func (e *ChunkedEntry) ToManifest() (*chunk.Manifest, error) {
	m := &chunk.Manifest{
		OriginalPath: e.OriginalPath,
		MimeType:     e.MimeType,
		TotalSize:    e.TotalSize,
		ChunkSize:    e.ChunkSize,
	}
	for _, c := range e.Chunks {
		m.Chunks = append(m.Chunks, chunk.Entry{
			Index:    c.Index,
			Outpoint: c.Outpoint,
			URLPath:  c.URLPath,
			Size:     c.Size,
		})
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Latest returns the most recent deployment, or nil.
func (r *Record) Latest() *Deployment {
	if r == nil || len(r.Deployments) == 0 {
		return nil
	}
	return r.Deployments[len(r.Deployments)-1]
}

// HasVersion reports whether a version tag was already deployed.
func (r *Record) HasVersion(version string) bool {
	if r == nil {
		return false
	}
	for _, d := range r.Deployments {
		if d.Version == version {
			return true
		}
	}
	return false
}

// Append adds a completed deployment.
func (r *Record) Append(d *Deployment) {
	r.Deployments = append(r.Deployments, d)
	r.TotalDeployments = len(r.Deployments)
}

// Load reads a record file. A missing or malformed file degrades to nil
// (treat as absent): cache misses are safe, and the caller that needs
// required prior state checks for nil explicitly.
func Load(path string) *Record {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("[CACHE] unreadable record %s: %v", path, err)
		}
		return nil
	}
	record := &Record{}
	if err := json.Unmarshal(data, record); err != nil {
		log.Printf("[CACHE] malformed record %s, treating as absent: %v", path, err)
		return nil
	}
	if record.SchemaVersion > SchemaVersion {
		log.Printf("[CACHE] record %s has schema %d, newer than %d; treating as absent",
			path, record.SchemaVersion, SchemaVersion)
		return nil
	}
	return record
}

// Save writes the record atomically.
func Save(path string, r *Record) error {
	r.SchemaVersion = SchemaVersion
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	return os.Rename(tmp, path)
}
