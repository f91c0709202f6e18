package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shruggr/ordsite/chunk"
	"github.com/shruggr/ordsite/graph"
	"github.com/shruggr/ordsite/lib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const contentBase = "/content"

func outpoint(n int) lib.Outpoint {
	return lib.NewOutpoint(fmt.Sprintf("%064x", n), 0)
}

func urlFor(op lib.Outpoint) string {
	return contentBase + "/" + op.String()
}

// buildGraph returns index.html -> app.js -> logo.svg plus a free-standing
// other.png.
func buildGraph() *graph.Graph {
	g := graph.New()
	g.RootDoc = "index.html"
	g.Add(&graph.FileRef{OriginalPath: "index.html", ContentHash: "h-index", Deps: []string{"app.js"}})
	g.Add(&graph.FileRef{OriginalPath: "app.js", ContentHash: "h-app", Deps: []string{"logo.svg"}})
	g.Add(&graph.FileRef{OriginalPath: "logo.svg", ContentHash: "h-logo"})
	g.Add(&graph.FileRef{OriginalPath: "other.png", ContentHash: "h-other"})
	g.Link()
	return g
}

// recordFor fabricates the record a deployment of g would have written.
func recordFor(g *graph.Graph) *Record {
	record := &Record{SchemaVersion: SchemaVersion, ChainOrigin: outpoint(99)}
	d := &Deployment{
		Version:    "1.0.0",
		Timestamp:  time.Now(),
		LoaderHash: chunk.LoaderHash(contentBase),
	}
	ops := map[string]lib.Outpoint{}
	n := 1
	for _, path := range g.Paths() {
		ops[path] = outpoint(n)
		n++
	}
	for _, path := range g.Paths() {
		node := g.Nodes[path]
		var urls []string
		for _, dep := range node.Deps {
			urls = append(urls, urlFor(ops[dep]))
		}
		d.Files = append(d.Files, &FileEntry{
			OriginalPath:   path,
			Outpoint:       ops[path],
			URLPath:        urlFor(ops[path]),
			ContentHash:    node.ContentHash,
			DependencyHash: DepHash(urls),
		})
	}
	record.Append(d)
	return record
}

func TestAnalyzeNoPriorPublishesEverything(t *testing.T) {
	g := buildGraph()
	a := Analyze(g, nil, contentBase)
	assert.Len(t, a.Publish, 4)
	assert.Empty(t, a.Reusable)
	assert.False(t, a.LoaderValid)
	assert.Equal(t, "index.html", a.Publish[len(a.Publish)-1], "root document last")
}

func TestAnalyzeIdempotence(t *testing.T) {
	g := buildGraph()
	record := recordFor(g)

	a := Analyze(g, record, contentBase)
	// 100% of non-root files reusable
	assert.Equal(t, []string{"index.html"}, a.Publish)
	assert.Len(t, a.Reusable, 3)
	assert.True(t, a.Reused("app.js"))
	assert.True(t, a.Reused("logo.svg"))
	assert.True(t, a.Reused("other.png"))
	assert.False(t, a.Reused("index.html"))
	assert.True(t, a.LoaderValid)
}

func TestAnalyzeContentChangeInvalidatesAncestors(t *testing.T) {
	g := buildGraph()
	record := recordFor(g)

	// logo.svg changed: it republishes, and so does app.js whose
	// dependency hash included logo's URL. other.png is untouched.
	g.Nodes["logo.svg"].ContentHash = "h-logo-v2"

	a := Analyze(g, record, contentBase)
	assert.ElementsMatch(t, []string{"logo.svg", "app.js", "index.html"}, a.Publish)
	assert.True(t, a.Reused("other.png"))
	assert.False(t, a.Reused("app.js"))
}

func TestAnalyzeDepURLChangeInvalidates(t *testing.T) {
	g := buildGraph()
	record := recordFor(g)

	// same content everywhere, but the stored dependency hash no longer
	// matches the cached URL set
	for _, f := range record.Latest().Files {
		if f.OriginalPath == "app.js" {
			f.DependencyHash = DepHash([]string{"/content/moved"})
		}
	}

	a := Analyze(g, record, contentBase)
	assert.Contains(t, a.Publish, "app.js")
	assert.True(t, a.Reused("logo.svg"))
}

func chunkedEntry(path string, totalSize int64, hash string) *ChunkedEntry {
	e := &ChunkedEntry{
		OriginalPath: path,
		MimeType:     "video/mp4",
		TotalSize:    totalSize,
		ChunkSize:    totalSize,
		ContentHash:  hash,
		Manifest:     outpoint(50),
		URLPath:      urlFor(outpoint(50)),
		Chunks: []ChunkRef{
			{Index: 0, Outpoint: outpoint(51), URLPath: urlFor(outpoint(51)), Size: totalSize},
		},
	}
	return e
}

func TestAnalyzeChunkedByHash(t *testing.T) {
	g := buildGraph()
	g.Add(&graph.FileRef{OriginalPath: "video.mp4", ContentHash: "h-video", Size: 1000})
	g.Link()
	record := recordFor(g)
	record.Latest().Chunked = append(record.Latest().Chunked, chunkedEntry("video.mp4", 1000, "h-video"))

	a := Analyze(g, record, contentBase)
	assert.True(t, a.Reused("video.mp4"))
	assert.Empty(t, a.Weak)
	require.Contains(t, a.Manifests, "video.mp4")
	assert.Equal(t, int64(1000), a.Manifests["video.mp4"].TotalSize)

	g.Nodes["video.mp4"].ContentHash = "h-video-v2"
	a = Analyze(g, record, contentBase)
	assert.Contains(t, a.Publish, "video.mp4")
}

func TestAnalyzeChunkedLegacySizeFallback(t *testing.T) {
	g := buildGraph()
	g.Add(&graph.FileRef{OriginalPath: "video.mp4", ContentHash: "h-video", Size: 1000})
	g.Link()
	record := recordFor(g)
	record.Latest().Chunked = append(record.Latest().Chunked, chunkedEntry("video.mp4", 1000, ""))

	a := Analyze(g, record, contentBase)
	assert.True(t, a.Reused("video.mp4"))
	assert.Equal(t, []string{"video.mp4"}, a.Weak)

	// size mismatch republishes
	g.Nodes["video.mp4"].Size = 2000
	a = Analyze(g, record, contentBase)
	assert.Contains(t, a.Publish, "video.mp4")
}

func TestDepHash(t *testing.T) {
	a := DepHash([]string{"/b", "/a"})
	b := DepHash([]string{"/a", "/b"})
	assert.Equal(t, a, b, "order independent")
	assert.NotEqual(t, a, DepHash([]string{"/a", "/c"}))
	assert.Empty(t, DepHash(nil))
}

func TestRecordLoadSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "deployments.json")

	record := recordFor(buildGraph())
	require.NoError(t, Save(path, record))

	loaded := Load(path)
	require.NotNil(t, loaded)
	assert.Equal(t, record.TotalDeployments, loaded.TotalDeployments)
	assert.Equal(t, record.ChainOrigin, loaded.ChainOrigin)
	assert.True(t, loaded.HasVersion("1.0.0"))
	assert.False(t, loaded.HasVersion("2.0.0"))
}

func TestRecordLoadDegradesToAbsent(t *testing.T) {
	dir := t.TempDir()
	assert.Nil(t, Load(filepath.Join(dir, "missing.json")))

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{not json"), 0o644))
	assert.Nil(t, Load(bad))

	future := filepath.Join(dir, "future.json")
	require.NoError(t, os.WriteFile(future, []byte(`{"schemaVersion": 99}`), 0o644))
	assert.Nil(t, Load(future))
}
