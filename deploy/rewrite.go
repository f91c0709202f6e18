package deploy

import (
	"sort"
	"strings"
)

// Rewriter maps original in-tree references to their published URLs inside
// a file's bytes. Markup-aware rewriting is an external collaborator; the
// default implementation does plain token replacement, longest key first
// so nested paths never clobber their prefixes.
type Rewriter interface {
	Rewrite(data []byte, contentType string, urls map[string]string) ([]byte, error)
}

type tokenRewriter struct{}

// NewTokenRewriter returns the default byte rewriter.
func NewTokenRewriter() Rewriter {
	return tokenRewriter{}
}

func (tokenRewriter) Rewrite(data []byte, contentType string, urls map[string]string) ([]byte, error) {
	if len(urls) == 0 {
		return data, nil
	}
	keys := make([]string, 0, len(urls))
	for k := range urls {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	text := string(data)
	for _, k := range keys {
		text = strings.ReplaceAll(text, k, urls[k])
	}
	return []byte(text), nil
}

// aliasesFor lists the textual forms a dependency may take inside a file
// at fromPath: the tree path itself, root-anchored, and relative to the
// file's directory.
func aliasesFor(dep, fromPath string) []string {
	aliases := []string{dep, "/" + dep}
	if rel, ok := relativeTo(dep, fromPath); ok {
		aliases = append(aliases, rel, "./"+rel)
	}
	return aliases
}

// relativeTo computes dep's path relative to fromPath's directory using
// "/"-separated tree paths only.
func relativeTo(dep, fromPath string) (string, bool) {
	fromDir := ""
	if idx := strings.LastIndex(fromPath, "/"); idx != -1 {
		fromDir = fromPath[:idx]
	}
	if fromDir == "" {
		return dep, dep != ""
	}
	fromParts := strings.Split(fromDir, "/")
	depParts := strings.Split(dep, "/")
	common := 0
	for common < len(fromParts) && common < len(depParts)-1 && fromParts[common] == depParts[common] {
		common++
	}
	var rel []string
	for i := common; i < len(fromParts); i++ {
		rel = append(rel, "..")
	}
	rel = append(rel, depParts[common:]...)
	return strings.Join(rel, "/"), true
}
