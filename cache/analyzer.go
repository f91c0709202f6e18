package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"log"
	"sort"
	"strings"

	"github.com/shruggr/ordsite/chunk"
	"github.com/shruggr/ordsite/graph"
)

// Analysis is the reuse verdict for one tree against one prior record.
type Analysis struct {
	// Reusable maps paths to their prior entries; URLs stay valid.
	Reusable map[string]*FileEntry
	// ChunkedReusable maps chunked paths to their prior entries.
	ChunkedReusable map[string]*ChunkedEntry
	// Manifests are reconstructed for every reusable chunked file.
	Manifests map[string]*chunk.Manifest
	// Publish lists paths that must be (re)inscribed, root document
	// included.
	Publish []string
	// Weak lists chunked paths reused on the legacy size-equality
	// fallback only; callers may force a republish.
	Weak []string
	// LoaderValid reports whether the previously published reassembly
	// helper matches a freshly generated one.
	LoaderValid bool
}

// Reused reports whether path survives from the prior deployment.
func (a *Analysis) Reused(path string) bool {
	if _, ok := a.Reusable[path]; ok {
		return true
	}
	_, ok := a.ChunkedReusable[path]
	return ok
}

// URLFor returns the cached URL of a reusable path, chunked or whole.
func (a *Analysis) URLFor(path string) (string, bool) {
	if e, ok := a.Reusable[path]; ok {
		return e.URLPath, true
	}
	if e, ok := a.ChunkedReusable[path]; ok {
		return e.URLPath, true
	}
	return "", false
}

// DepHash hashes a file's resolved dependency URLs: sorted, newline
// joined, sha256. An empty dependency set hashes to "".
func DepHash(urls []string) string {
	if len(urls) == 0 {
		return ""
	}
	sorted := append([]string{}, urls...)
	sort.Strings(sorted)
	sum := sha256.Sum256([]byte(strings.Join(sorted, "\n")))
	return hex.EncodeToString(sum[:])
}

// Analyze walks the tree in dependency-wave order and marks every file
// reusable or to-publish. Reuse rules, in order:
//   - no prior record, or no prior entry for the path: publish.
//   - root document: publish unconditionally (injected version metadata
//     changes it every run).
//   - content hash mismatch: publish.
//   - any dependency being republished: publish (its URL will change, so
//     the stored dependency hash cannot hold).
//   - dependency hash over the cached dependency URLs differs from the
//     stored one: publish.
//
// Chunked entries compare content hashes when the record has them; legacy
// records fall back to size equality and are flagged Weak.
func Analyze(g *graph.Graph, prior *Record, contentBase string) *Analysis {
	a := &Analysis{
		Reusable:        map[string]*FileEntry{},
		ChunkedReusable: map[string]*ChunkedEntry{},
		Manifests:       map[string]*chunk.Manifest{},
	}

	files, chunked := indexPrior(prior)

	for _, wave := range g.Waves() {
		for _, node := range wave {
			a.analyzeNode(node, files, chunked)
		}
	}
	// root document last, never reusable
	a.Publish = append(a.Publish, g.RootDoc)

	a.LoaderValid = prior != nil && prior.Latest() != nil &&
		prior.Latest().LoaderHash == chunk.LoaderHash(contentBase)
	return a
}

func (a *Analysis) analyzeNode(node *graph.Node, files map[string]*FileEntry, chunked map[string]*ChunkedEntry) {
	path := node.OriginalPath

	if prior, ok := chunked[path]; ok {
		a.analyzeChunked(node, prior)
		return
	}

	prior, ok := files[path]
	if !ok {
		a.Publish = append(a.Publish, path)
		return
	}
	if prior.ContentHash != node.ContentHash {
		a.Publish = append(a.Publish, path)
		return
	}
	if len(node.Deps) > 0 {
		urls := make([]string, 0, len(node.Deps))
		for _, dep := range node.Deps {
			url, ok := a.URLFor(dep)
			if !ok {
				// dependency republishes: its URL is unknown until then
				a.Publish = append(a.Publish, path)
				return
			}
			urls = append(urls, url)
		}
		if DepHash(urls) != prior.DependencyHash {
			a.Publish = append(a.Publish, path)
			return
		}
	}
	a.Reusable[path] = prior
}

func (a *Analysis) analyzeChunked(node *graph.Node, prior *ChunkedEntry) {
	path := node.OriginalPath
	if prior.ContentHash != "" {
		if prior.ContentHash != node.ContentHash {
			a.Publish = append(a.Publish, path)
			return
		}
	} else {
		// legacy record: chunks are immutable once carried, so size
		// equality is the only signal left. Weaker than hashing.
		if prior.TotalSize != node.Size {
			a.Publish = append(a.Publish, path)
			return
		}
		a.Weak = append(a.Weak, path)
	}
	manifest, err := prior.ToManifest()
	if err != nil {
		log.Printf("[CACHE] bad cached manifest for %s, republishing: %v", path, err)
		a.Publish = append(a.Publish, path)
		return
	}
	a.ChunkedReusable[path] = prior
	a.Manifests[path] = manifest
}

// indexPrior maps paths to their most recent entries, newest deployment
// first.
func indexPrior(r *Record) (map[string]*FileEntry, map[string]*ChunkedEntry) {
	files := map[string]*FileEntry{}
	chunked := map[string]*ChunkedEntry{}
	if r == nil {
		return files, chunked
	}
	for i := len(r.Deployments) - 1; i >= 0; i-- {
		d := r.Deployments[i]
		for _, f := range d.Files {
			if _, ok := files[f.OriginalPath]; !ok {
				files[f.OriginalPath] = f
			}
		}
		for _, c := range d.Chunked {
			if _, ok := chunked[c.OriginalPath]; !ok {
				chunked[c.OriginalPath] = c
			}
		}
	}
	return files, chunked
}
