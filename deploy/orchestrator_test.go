package deploy

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/shruggr/ordsite/cache"
	"github.com/shruggr/ordsite/chain"
	"github.com/shruggr/ordsite/lib"
	"github.com/shruggr/ordsite/lib/testkit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testWIF = "KwDiBf89QgGbjEhKnhXJuH7LrciVrZi3qYjgd9M7rFU73sVHnoWn"

const mib = 1024 * 1024

func writeTree(t *testing.T, files map[string][]byte) string {
	t.Helper()
	dir := t.TempDir()
	for path, data := range files {
		abs := filepath.Join(dir, filepath.FromSlash(path))
		require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
		require.NoError(t, os.WriteFile(abs, data, 0o644))
	}
	return dir
}

func smallTree(t *testing.T) string {
	t.Helper()
	return writeTree(t, map[string][]byte{
		"index.html": []byte(`<html><head><title>t</title></head><body><script src="app.js"></script><img src="logo.svg"></body></html>`),
		"app.js":     []byte(`fetch("logo.svg").then(r => r.blob());`),
		"logo.svg":   []byte(`<svg xmlns="http://www.w3.org/2000/svg"><circle r="4"/></svg>`),
	})
}

func newDeployer(t *testing.T, cfg Config) (*Orchestrator, *testkit.FakeIndexer) {
	t.Helper()
	wallet, err := lib.NewWallet(testWIF)
	require.NoError(t, err)
	ix := testkit.NewFakeIndexer()
	if !cfg.DryRun {
		_, err = ix.Fund(wallet.Address(), 50_000_000)
		require.NoError(t, err)
	}
	return New(wallet, ix, cfg), ix
}

func findFile(t *testing.T, files []*cache.FileEntry, path string) *cache.FileEntry {
	t.Helper()
	for _, f := range files {
		if f.OriginalPath == path {
			return f
		}
	}
	t.Fatalf("no file entry for %s", path)
	return nil
}

func TestDeployEndToEnd(t *testing.T) {
	video := bytes.Repeat([]byte{0xa7, 0x1c, 0x3e, 0x90}, 3*mib) // 12 MiB
	root := writeTree(t, map[string][]byte{
		"index.html": []byte(`<html><head></head><body><script src="app.js"></script><img src="logo.svg"><video src="video.mp4"></video></body></html>`),
		"app.js":     []byte(`fetch("logo.svg");`),
		"logo.svg":   bytes.Repeat([]byte(`<svg xmlns="http://www.w3.org/2000/svg"/>`), 50),
		"video.mp4":  video,
	})
	recordPath := filepath.Join(t.TempDir(), "deploy.json")
	o, ix := newDeployer(t, Config{
		Root:        root,
		RecordPath:  recordPath,
		App:         "mysite",
		Version:     "1.0.0",
		Description: "first",
	})

	d, err := o.Deploy(context.Background())
	require.NoError(t, err)

	rec := cache.Load(recordPath)
	require.NotNil(t, rec, "record written on success")
	assert.False(t, rec.ChainOrigin.IsZero())
	require.Len(t, rec.Deployments, 1)
	got := rec.Deployments[0]
	assert.Equal(t, "1.0.0", got.Version)
	assert.Equal(t, d.TotalFees, got.TotalFees)
	assert.Greater(t, got.TotalFees, uint64(0))
	assert.NotEmpty(t, got.Txids)

	// whole files plus the reassembly helper
	require.Len(t, got.Files, 4)
	logo := findFile(t, got.Files, "logo.svg")
	app := findFile(t, got.Files, "app.js")
	index := findFile(t, got.Files, "index.html")
	findFile(t, got.Files, LoaderPath)

	// the oversized video went progressive: 1,1,2,3,5 MiB covers 12 MiB
	require.Len(t, got.Chunked, 1)
	ch := got.Chunked[0]
	assert.Equal(t, "video.mp4", ch.OriginalPath)
	assert.False(t, ch.Manifest.IsZero())
	assert.Equal(t, int64(len(video)), ch.TotalSize)
	require.Len(t, ch.Chunks, 5)
	for i, want := range []int64{mib, mib, 2 * mib, 3 * mib, 5 * mib} {
		assert.Equal(t, want, ch.Chunks[i].Size, "chunk %d", i)
	}

	// root document published last with every reference rewritten
	ins, err := ix.Inscription(index.Outpoint)
	require.NoError(t, err)
	html := string(ins.Body)
	assert.Contains(t, html, app.URLPath)
	assert.Contains(t, html, logo.URLPath)
	assert.Contains(t, html, ch.URLPath, "video resolves to its manifest")
	assert.Contains(t, html, `<meta name="ordsite" content="mysite@1.0.0">`)
	assert.NotContains(t, html, `src="app.js"`)

	appIns, err := ix.Inscription(app.Outpoint)
	require.NoError(t, err)
	assert.Contains(t, string(appIns.Body), logo.URLPath)

	// one version appended on chain
	tip, err := ix.LatestInChain(context.Background(), rec.ChainOrigin)
	require.NoError(t, err)
	versions := chain.Versions(tip.Map)
	require.Contains(t, versions, "1.0.0")
	assert.Equal(t, "first", versions["1.0.0"].Description)
}

func TestRedeployReusesUnchangedFiles(t *testing.T) {
	root := smallTree(t)
	recordPath := filepath.Join(t.TempDir(), "deploy.json")
	cfg := Config{Root: root, RecordPath: recordPath, App: "mysite", Version: "1.0.0"}
	o, ix := newDeployer(t, cfg)
	ctx := context.Background()

	_, err := o.Deploy(ctx)
	require.NoError(t, err)
	first := cache.Load(recordPath).Deployments[0]

	// only app.js changes
	require.NoError(t, os.WriteFile(filepath.Join(root, "app.js"),
		[]byte(`fetch("logo.svg"); console.log("v2");`), 0o644))
	o2 := New(o.Wallet, ix, Config{Root: root, RecordPath: recordPath, App: "mysite", Version: "1.0.1"})
	d2, err := o2.Deploy(ctx)
	require.NoError(t, err)

	rec := cache.Load(recordPath)
	require.Len(t, rec.Deployments, 2)

	logo := findFile(t, d2.Files, "logo.svg")
	assert.True(t, logo.Cached, "unchanged leaf reused")
	assert.Equal(t, findFile(t, first.Files, "logo.svg").Outpoint, logo.Outpoint)

	app := findFile(t, d2.Files, "app.js")
	assert.False(t, app.Cached)
	assert.NotEqual(t, findFile(t, first.Files, "app.js").Outpoint, app.Outpoint)

	index := findFile(t, d2.Files, "index.html")
	assert.False(t, index.Cached, "root republishes every run")
	assert.NotEqual(t, findFile(t, first.Files, "index.html").Outpoint, index.Outpoint)

	tip, err := ix.LatestInChain(ctx, rec.ChainOrigin)
	require.NoError(t, err)
	versions := chain.Versions(tip.Map)
	assert.Contains(t, versions, "1.0.0")
	assert.Contains(t, versions, "1.0.1")
}

func TestRedeployListsCachedFilesInPathOrder(t *testing.T) {
	root := writeTree(t, map[string][]byte{
		"index.html": []byte(`<html><head></head><body><link href="zeta.css"><script src="mid.js"></script><img src="alpha.svg"></body></html>`),
		"zeta.css":   []byte(`body { margin: 0 }`),
		"mid.js":     []byte(`console.log("hi");`),
		"alpha.svg":  []byte(`<svg xmlns="http://www.w3.org/2000/svg"/>`),
	})
	recordPath := filepath.Join(t.TempDir(), "deploy.json")
	o, ix := newDeployer(t, Config{Root: root, RecordPath: recordPath, App: "mysite", Version: "1.0.0"})
	ctx := context.Background()

	_, err := o.Deploy(ctx)
	require.NoError(t, err)

	d2, err := New(o.Wallet, ix, Config{Root: root, RecordPath: recordPath, App: "mysite", Version: "1.0.1"}).Deploy(ctx)
	require.NoError(t, err)

	var cached []string
	for _, f := range d2.Files {
		if f.Cached {
			cached = append(cached, f.OriginalPath)
		}
	}
	assert.Equal(t, []string{"alpha.svg", "mid.js", "zeta.css"}, cached,
		"reused entries recorded in path order")
}

func TestDeployDryRunTouchesNothing(t *testing.T) {
	root := smallTree(t)
	recordPath := filepath.Join(t.TempDir(), "deploy.json")
	o, ix := newDeployer(t, Config{
		Root: root, RecordPath: recordPath, App: "mysite", Version: "1.0.0", DryRun: true,
	})

	d, err := o.Deploy(context.Background())
	require.NoError(t, err)
	assert.Greater(t, d.TotalFees, uint64(0), "fees are still measured")
	assert.Len(t, d.Files, 3)

	assert.Empty(t, ix.Broadcasts, "nothing reaches the network")
	_, err = os.Stat(recordPath)
	assert.True(t, os.IsNotExist(err), "no record written")
}

func TestDeployRejectsDuplicateVersion(t *testing.T) {
	root := smallTree(t)
	recordPath := filepath.Join(t.TempDir(), "deploy.json")
	cfg := Config{Root: root, RecordPath: recordPath, App: "mysite", Version: "1.0.0"}
	o, ix := newDeployer(t, cfg)
	ctx := context.Background()

	_, err := o.Deploy(ctx)
	require.NoError(t, err)

	before := len(ix.Broadcasts)
	o2 := New(o.Wallet, ix, cfg)
	_, err = o2.Deploy(ctx)
	require.Error(t, err)
	var verr *lib.VersionExistsError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "1.0.1", verr.Suggested)
	assert.Equal(t, before, len(ix.Broadcasts), "rejected before spending anything")
}

func TestInjectVersionMeta(t *testing.T) {
	withHead := []byte(`<html><head><title>x</title></head><body></body></html>`)
	out := injectVersionMeta(withHead, "app", "2.0.0")
	assert.Contains(t, string(out), `<meta name="ordsite" content="app@2.0.0"></head>`)

	bare := []byte(`<p>hi</p>`)
	out = injectVersionMeta(bare, "app", "2.0.0")
	assert.True(t, bytes.HasPrefix(out, []byte("<!-- app@2.0.0 -->\n")))
	assert.Contains(t, string(out), "<p>hi</p>")
}

func TestAliasesAndRelativePaths(t *testing.T) {
	rel, ok := relativeTo("assets/logo.svg", "pages/about.html")
	require.True(t, ok)
	assert.Equal(t, "../assets/logo.svg", rel)

	rel, ok = relativeTo("assets/img/a.png", "assets/style.css")
	require.True(t, ok)
	assert.Equal(t, "img/a.png", rel)

	aliases := aliasesFor("app.js", "index.html")
	assert.Contains(t, aliases, "app.js")
	assert.Contains(t, aliases, "/app.js")
	assert.Contains(t, aliases, "./app.js")
}
