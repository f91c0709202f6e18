package graph

import (
	"path"
	"regexp"
	"strings"
)

// Content categories drive which extractors run. Extractors are pure
// functions returning raw reference strings; resolution and filtering
// happen in a shared step afterwards.

var (
	markupAttr = regexp.MustCompile(`(?i)\b(?:src|href|poster|data-src)\s*=\s*["']([^"']+)["']`)
	markupSet  = regexp.MustCompile(`(?i)\bsrcset\s*=\s*["']([^"']+)["']`)

	cssURL    = regexp.MustCompile(`url\(\s*['"]?([^'")]+)['"]?\s*\)`)
	cssImport = regexp.MustCompile(`@import\s+['"]([^'"]+)['"]`)

	jsImport  = regexp.MustCompile(`(?:import|export)\s+(?:[^'";]*\s+from\s+)?['"]([^'"]+)['"]`)
	jsRequire = regexp.MustCompile(`require\(\s*['"]([^'"]+)['"]\s*\)`)
	jsFetch   = regexp.MustCompile(`fetch\(\s*['"]([^'"]+)['"]`)
	jsWorker  = regexp.MustCompile(`new\s+(?:Shared)?Worker\(\s*['"]([^'"]+)['"]`)
	jsScripts = regexp.MustCompile(`importScripts\(\s*['"]([^'"]+)['"]`)
	jsAsset   = regexp.MustCompile(`['"]([^'"\s]+\.(?:png|jpe?g|gif|webp|svg|ico|mp4|webm|mp3|wav|ogg|woff2?|ttf|otf|json|wasm))['"]`)

	jsonPath = regexp.MustCompile(`"((?:\.{0,2}/)?[^"\\]*\.[a-zA-Z0-9]{2,5})"`)

	svgHref = regexp.MustCompile(`(?i)\b(?:xlink:href|href)\s*=\s*["']([^"'#][^"']*)["']`)
)

// ExtractMarkup pulls src/href-family attribute values and srcset entries.
func ExtractMarkup(data []byte) []string {
	var refs []string
	for _, m := range markupAttr.FindAllSubmatch(data, -1) {
		refs = append(refs, string(m[1]))
	}
	for _, m := range markupSet.FindAllSubmatch(data, -1) {
		for _, entry := range strings.Split(string(m[1]), ",") {
			fields := strings.Fields(strings.TrimSpace(entry))
			if len(fields) > 0 {
				refs = append(refs, fields[0])
			}
		}
	}
	// inline style blocks
	refs = append(refs, ExtractStylesheet(data)...)
	return refs
}

// ExtractStylesheet pulls url(...) and @import targets.
func ExtractStylesheet(data []byte) []string {
	var refs []string
	for _, m := range cssURL.FindAllSubmatch(data, -1) {
		refs = append(refs, string(m[1]))
	}
	for _, m := range cssImport.FindAllSubmatch(data, -1) {
		refs = append(refs, string(m[1]))
	}
	return refs
}

// ExtractScript pulls static import/export sources, require/fetch/worker
// arguments, and bare string literals with known asset extensions.
func ExtractScript(data []byte) []string {
	var refs []string
	for _, re := range []*regexp.Regexp{jsImport, jsRequire, jsFetch, jsWorker, jsScripts, jsAsset} {
		for _, m := range re.FindAllSubmatch(data, -1) {
			refs = append(refs, string(m[1]))
		}
	}
	return refs
}

// ExtractJSON pulls string values that look like tree paths: they carry an
// extension and contain no spaces.
func ExtractJSON(data []byte) []string {
	var refs []string
	for _, m := range jsonPath.FindAllSubmatch(data, -1) {
		ref := string(m[1])
		if strings.ContainsAny(ref, " {}") {
			continue
		}
		refs = append(refs, ref)
	}
	return refs
}

// ExtractSVG pulls href/xlink:href values. Fragment-only references
// (url(#id), href="#id") never leave the regexes.
func ExtractSVG(data []byte) []string {
	var refs []string
	for _, m := range svgHref.FindAllSubmatch(data, -1) {
		refs = append(refs, string(m[1]))
	}
	for _, m := range cssURL.FindAllSubmatch(data, -1) {
		ref := string(m[1])
		if strings.HasPrefix(ref, "#") {
			continue
		}
		refs = append(refs, ref)
	}
	return refs
}

// extractorFor maps a content type to its extractor, or nil for binary
// formats that carry no references.
func extractorFor(contentType string) func([]byte) []string {
	switch {
	case strings.HasPrefix(contentType, "text/html"):
		return ExtractMarkup
	case strings.HasPrefix(contentType, "text/css"):
		return ExtractStylesheet
	case strings.Contains(contentType, "javascript"):
		return ExtractScript
	case strings.HasPrefix(contentType, "application/json"):
		return ExtractJSON
	case strings.HasPrefix(contentType, "image/svg"):
		return ExtractSVG
	}
	return nil
}

// Resolve turns raw extracted references into tree-relative paths.
// External URLs, data/mail/js schemes, and fragments are dropped;
// "/"-rooted references resolve against the tree root, the rest against
// the referencing file's directory. Results are deduplicated preserving
// first-seen order, with self-references removed.
func Resolve(refs []string, fromPath string) []string {
	seen := map[string]struct{}{}
	var out []string
	dir := path.Dir(fromPath)
	for _, ref := range refs {
		ref = strings.TrimSpace(ref)
		if ref == "" || strings.HasPrefix(ref, "#") {
			continue
		}
		if strings.Contains(ref, "://") || strings.HasPrefix(ref, "//") {
			continue
		}
		if strings.HasPrefix(ref, "data:") || strings.HasPrefix(ref, "mailto:") ||
			strings.HasPrefix(ref, "javascript:") || strings.HasPrefix(ref, "blob:") {
			continue
		}
		if idx := strings.IndexAny(ref, "?#"); idx != -1 {
			ref = ref[:idx]
		}
		if ref == "" {
			continue
		}
		var resolved string
		if strings.HasPrefix(ref, "/") {
			resolved = path.Clean(strings.TrimPrefix(ref, "/"))
		} else {
			resolved = path.Join(dir, ref)
		}
		if resolved == "." || resolved == fromPath || strings.HasPrefix(resolved, "../") {
			continue
		}
		if _, ok := seen[resolved]; ok {
			continue
		}
		seen[resolved] = struct{}{}
		out = append(out, resolved)
	}
	return out
}
