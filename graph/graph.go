// Package graph scans a build tree, extracts embedded references between
// files, and levels the result into dependency waves so publishing can run
// leaves-first.
package graph

import (
	"fmt"
	"sort"
)

// FileRef describes one scanned file. Immutable after the scan: ContentHash
// is computed over the raw bytes before any rewriting happens.
type FileRef struct {
	OriginalPath string   `json:"originalPath"`
	AbsPath      string   `json:"absPath"`
	ContentType  string   `json:"contentType"`
	Deps         []string `json:"dependencies,omitempty"`
	ContentHash  string   `json:"contentHash"`
	Size         int64    `json:"size"`
}

// Node wraps a FileRef in the dependency arena. Forward edges live in
// FileRef.Deps; Dependents is the reverse index, built in a second pass
// once every node exists.
type Node struct {
	*FileRef
	Dependents map[string]struct{}
}

// Graph is an arena of nodes keyed by tree-relative path. RootDoc is the
// entry document (index.html); it is excluded from waves and always
// scheduled last.
type Graph struct {
	Nodes   map[string]*Node
	RootDoc string
	waves   map[string]int
}

func New() *Graph {
	return &Graph{Nodes: map[string]*Node{}}
}

func (g *Graph) Add(ref *FileRef) *Node {
	node := &Node{FileRef: ref, Dependents: map[string]struct{}{}}
	g.Nodes[ref.OriginalPath] = node
	return node
}

// Link builds the reverse-edge index. Edges pointing at paths that were
// never scanned (broken references) are dropped from Deps so downstream
// hashing only sees resolvable dependencies.
func (g *Graph) Link() {
	for path, node := range g.Nodes {
		kept := node.Deps[:0]
		for _, dep := range node.Deps {
			target, ok := g.Nodes[dep]
			if !ok {
				continue
			}
			target.Dependents[path] = struct{}{}
			kept = append(kept, dep)
		}
		node.Deps = kept
	}
	g.waves = nil
}

// Root returns the root document node.
func (g *Graph) Root() *Node {
	return g.Nodes[g.RootDoc]
}

// Paths returns all node paths sorted, root document included.
func (g *Graph) Paths() []string {
	paths := make([]string, 0, len(g.Nodes))
	for path := range g.Nodes {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

// Wave returns the dependency wave of path: 0 for files with no
// dependencies, else 1 + the max wave among dependencies. Memoized
// recursion; a visiting marker short-circuits cycles with the partial max
// instead of rejecting them.
func (g *Graph) Wave(path string) int {
	if g.waves == nil {
		g.waves = map[string]int{}
	}
	return g.wave(path, map[string]struct{}{})
}

func (g *Graph) wave(path string, visiting map[string]struct{}) int {
	if w, ok := g.waves[path]; ok {
		return w
	}
	if _, ok := visiting[path]; ok {
		return 0
	}
	node, ok := g.Nodes[path]
	if !ok || len(node.Deps) == 0 {
		g.waves[path] = 0
		return 0
	}
	visiting[path] = struct{}{}
	max := -1
	for _, dep := range node.Deps {
		if w := g.wave(dep, visiting); w > max {
			max = w
		}
	}
	delete(visiting, path)
	g.waves[path] = max + 1
	return max + 1
}

// Waves partitions every non-root node into dependency levels: members of
// wave n depend only on members of waves < n. Members are path-sorted for
// deterministic output.
func (g *Graph) Waves() [][]*Node {
	maxWave := 0
	for path := range g.Nodes {
		if path == g.RootDoc {
			continue
		}
		if w := g.Wave(path); w > maxWave {
			maxWave = w
		}
	}
	waves := make([][]*Node, maxWave+1)
	for _, path := range g.Paths() {
		if path == g.RootDoc {
			continue
		}
		w := g.Wave(path)
		waves[w] = append(waves[w], g.Nodes[path])
	}
	return waves
}

// Validate checks the graph is publishable: a root document must exist and
// the tree must not be empty.
func (g *Graph) Validate() error {
	if len(g.Nodes) == 0 {
		return fmt.Errorf("empty tree: nothing to deploy")
	}
	if _, ok := g.Nodes[g.RootDoc]; !ok {
		return fmt.Errorf("missing root document %s", g.RootDoc)
	}
	return nil
}
