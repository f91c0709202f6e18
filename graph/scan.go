package graph

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"log"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// DefaultRootDoc is the entry document expected at the tree root.
const DefaultRootDoc = "index.html"

// denied names are never scanned: secrets, VCS state, OS metadata.
var denied = map[string]bool{
	".git":         true,
	".svn":         true,
	".hg":          true,
	".DS_Store":    true,
	"Thumbs.db":    true,
	"desktop.ini":  true,
	"node_modules": true,
}

func skippable(name string) bool {
	if denied[name] {
		return true
	}
	return strings.HasPrefix(name, ".env")
}

var extTypes = map[string]string{
	".html":  "text/html",
	".htm":   "text/html",
	".css":   "text/css",
	".js":    "application/javascript",
	".mjs":   "application/javascript",
	".json":  "application/json",
	".svg":   "image/svg+xml",
	".wasm":  "application/wasm",
	".woff":  "font/woff",
	".woff2": "font/woff2",
	".ttf":   "font/ttf",
	".otf":   "font/otf",
	".ico":   "image/x-icon",
	".mp4":   "video/mp4",
	".webm":  "video/webm",
	".mp3":   "audio/mpeg",
	".wav":   "audio/wav",
	".ogg":   "audio/ogg",
	".md":    "text/markdown",
	".txt":   "text/plain",
}

// ContentTypeFor maps a path to its MIME type, preferring the local table
// over the platform mime database so output is stable across systems.
func ContentTypeFor(p string) string {
	ext := strings.ToLower(path.Ext(p))
	if ct, ok := extTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		if idx := strings.Index(ct, ";"); idx != -1 {
			ct = ct[:idx]
		}
		return ct
	}
	return "application/octet-stream"
}

// Build recursively scans root, hashes every file, extracts references for
// text formats, and returns the linked graph. Per-file analysis errors are
// warnings; the file is skipped and the scan continues. A missing root
// document or an empty tree is fatal.
func Build(root string) (*Graph, error) {
	return BuildWithRoot(root, DefaultRootDoc)
}

func BuildWithRoot(root, rootDoc string) (*Graph, error) {
	g := New()
	g.RootDoc = rootDoc

	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			if p != root && skippable(name) {
				return filepath.SkipDir
			}
			return nil
		}
		if skippable(name) {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		ref, err := analyze(p, rel)
		if err != nil {
			log.Printf("[SCAN] skipping %s: %v", rel, err)
			return nil
		}
		g.Add(ref)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", root, err)
	}

	g.Link()
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

func analyze(absPath, relPath string) (*FileRef, error) {
	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, err
	}
	hash := sha256.Sum256(data)
	ref := &FileRef{
		OriginalPath: relPath,
		AbsPath:      absPath,
		ContentType:  ContentTypeFor(relPath),
		ContentHash:  hex.EncodeToString(hash[:]),
		Size:         int64(len(data)),
	}
	if extract := extractorFor(ref.ContentType); extract != nil {
		ref.Deps = Resolve(extract(data), relPath)
	}
	return ref, nil
}
