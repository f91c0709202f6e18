// Package deploy composes the pipeline: analyze the tree, reuse what the
// cache allows, publish the rest in dependency waves, and append the
// version to the on-chain history.
package deploy

import (
	"context"
	"fmt"
	"log"
	"os"
	"regexp"
	"sort"
	"time"

	"github.com/shruggr/ordsite/cache"
	"github.com/shruggr/ordsite/chain"
	"github.com/shruggr/ordsite/chunk"
	"github.com/shruggr/ordsite/graph"
	"github.com/shruggr/ordsite/lib"
	"github.com/shruggr/ordsite/publish"
)

// LoaderPath is the tree path the reassembly helper publishes under.
const LoaderPath = "ordsite-loader.js"

type Config struct {
	Root        string
	RecordPath  string
	App         string
	Version     string
	Description string
	ContentBase string
	// ChunkThreshold gates chunking; files strictly larger are split.
	ChunkThreshold int64
	// ChunkSize is the nominal chunk size.
	ChunkSize int64
	// DryRun quotes and builds everything but broadcasts nothing, skips
	// chain operations, and persists no record.
	DryRun bool
}

type Orchestrator struct {
	Wallet   *lib.Wallet
	Indexer  lib.Indexer
	Engine   *publish.Engine
	Chain    *chain.Manager
	Rewriter Rewriter
	Config   Config
}

func New(wallet *lib.Wallet, indexer lib.Indexer, cfg Config) *Orchestrator {
	if cfg.ChunkThreshold == 0 {
		cfg.ChunkThreshold = chunk.DefaultThreshold
	}
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = cfg.ChunkThreshold
	}
	if cfg.ContentBase == "" {
		cfg.ContentBase = "/content"
	}
	builder := publish.NewBuilder(wallet)
	var strategy publish.Strategy
	if cfg.DryRun {
		strategy = publish.NewDryRun(builder)
	} else {
		strategy = publish.NewNetworkStrategy(builder, indexer)
	}
	return &Orchestrator{
		Wallet:   wallet,
		Indexer:  indexer,
		Engine:   publish.NewEngine(strategy, cfg.ContentBase),
		Chain:    chain.NewManager(wallet, indexer),
		Rewriter: NewTokenRewriter(),
		Config:   cfg,
	}
}

// Deploy runs one deployment to completion. Any fatal error aborts without
// writing the record, so a rerun starts clean; transactions already
// broadcast stay on the network and the next run's cache analysis picks
// them up only if the record was written.
func (o *Orchestrator) Deploy(ctx context.Context) (*cache.Deployment, error) {
	cfg := o.Config
	g, err := graph.Build(cfg.Root)
	if err != nil {
		return nil, err
	}
	record := cache.Load(cfg.RecordPath)
	if record.HasVersion(cfg.Version) {
		return nil, &lib.VersionExistsError{
			Version:   cfg.Version,
			Suggested: lib.SuggestNextVersion(cfg.Version),
		}
	}
	analysis := cache.Analyze(g, record, cfg.ContentBase)
	log.Printf("[DEPLOY] %s@%s: %d files, %d to publish",
		cfg.App, cfg.Version, len(g.Nodes), len(analysis.Publish))

	// engine totals accumulate for the process lifetime; this run owns
	// only the delta
	feesBefore := o.Engine.FeesPaid
	txidsBefore := len(o.Engine.Txids)

	var origin lib.Outpoint
	var originated bool
	if !cfg.DryRun {
		if record != nil {
			origin = record.ChainOrigin
			if origin.IsZero() {
				// appending needs the chain; a record that lost its
				// origin cannot be trusted for a write
				return nil, fmt.Errorf("deployment record %s has no chain origin", cfg.RecordPath)
			}
		} else {
			if origin, err = o.Chain.Originate(ctx, cfg.App); err != nil {
				return nil, err
			}
			originated = true
		}
	}

	d := &cache.Deployment{
		Version:     cfg.Version,
		Description: cfg.Description,
		Timestamp:   time.Now().UTC(),
	}
	urls := map[string]string{}
	toPublish := map[string]bool{}
	for _, path := range analysis.Publish {
		toPublish[path] = true
	}
	// cached entries in path order so records stay byte-stable across runs
	for _, path := range sortedKeys(analysis.Reusable) {
		entry := analysis.Reusable[path]
		urls[path] = entry.URLPath
		reused := *entry
		reused.Cached = true
		d.Files = append(d.Files, &reused)
	}
	for _, path := range sortedKeys(analysis.ChunkedReusable) {
		entry := analysis.ChunkedReusable[path]
		urls[path] = entry.URLPath
		reused := *entry
		reused.Cached = true
		d.Chunked = append(d.Chunked, &reused)
	}

	for _, wave := range g.Waves() {
		if err := o.processWave(ctx, wave, toPublish, urls, d); err != nil {
			return nil, err
		}
	}
	if err := o.publishLoader(ctx, analysis, d); err != nil {
		return nil, err
	}
	if err := o.publishRoot(ctx, g, urls, d); err != nil {
		return nil, err
	}

	if !cfg.DryRun {
		tip, err := o.Chain.Append(ctx, origin, cfg.Version, cfg.Description)
		if err != nil {
			return nil, err
		}
		if originated {
			d.Txids = append(d.Txids, origin.Txid)
		}
		d.Txids = append(d.Txids, tip.Txid)
	}

	d.TotalFees = o.Engine.FeesPaid - feesBefore
	d.Txids = append(append([]string{}, o.Engine.Txids[txidsBefore:]...), d.Txids...)

	if cfg.DryRun {
		log.Printf("[DEPLOY] dry run complete: %d sat in fees, no record written", d.TotalFees)
		return d, nil
	}
	if record == nil {
		record = &cache.Record{ChainOrigin: origin}
	}
	record.Append(d)
	if err := cache.Save(cfg.RecordPath, record); err != nil {
		return nil, err
	}
	log.Printf("[DEPLOY] %s@%s done: %d bytes, %d sat", cfg.App, cfg.Version, d.TotalBytes, d.TotalFees)
	return d, nil
}

// processWave publishes every non-cached member of one wave. Dependencies
// all live in earlier waves, so their URLs are already resolved.
func (o *Orchestrator) processWave(ctx context.Context, wave []*graph.Node, toPublish map[string]bool, urls map[string]string, d *cache.Deployment) error {
	var jobs []*publish.Job
	var jobNodes []*graph.Node
	for _, node := range wave {
		if !toPublish[node.OriginalPath] {
			continue
		}
		data, err := o.rewritten(node, urls)
		if err != nil {
			return err
		}
		if o.chunkable(node, int64(len(data))) {
			if err := o.publishChunked(ctx, node, data, urls, d); err != nil {
				return err
			}
			continue
		}
		jobs = append(jobs, publish.NewJob(publish.KindWhole, node.OriginalPath, node.ContentType, data, o.Wallet.Address()))
		jobNodes = append(jobNodes, node)
	}

	results, err := o.Engine.Publish(ctx, jobs)
	if err != nil {
		return err
	}
	for i, r := range results {
		node := jobNodes[i]
		urls[node.OriginalPath] = r.URLPath
		d.TotalBytes += int64(len(jobs[i].Bytes))
		d.Files = append(d.Files, &cache.FileEntry{
			OriginalPath:   node.OriginalPath,
			Outpoint:       r.Outpoint,
			URLPath:        r.URLPath,
			Size:           int64(len(jobs[i].Bytes)),
			ContentHash:    node.ContentHash,
			DependencyHash: o.depHash(node, urls),
		})
	}
	return nil
}

func (o *Orchestrator) chunkable(node *graph.Node, size int64) bool {
	return size > o.Config.ChunkThreshold
}

// publishChunked splits one oversized file, publishes its chunks, then its
// manifest, and registers the manifest URL as the file's address.
func (o *Orchestrator) publishChunked(ctx context.Context, node *graph.Node, data []byte, urls map[string]string, d *cache.Deployment) error {
	pieces, err := chunk.Split(data, o.Config.ChunkSize, node.OriginalPath)
	if err != nil {
		return err
	}
	jobs := make([]*publish.Job, 0, len(pieces))
	for i, piece := range pieces {
		job := publish.NewJob(publish.KindChunk, node.OriginalPath, node.ContentType, piece, o.Wallet.Address())
		job.ChunkIndex = i
		job.TotalChunks = len(pieces)
		jobs = append(jobs, job)
	}
	results, err := o.Engine.Publish(ctx, jobs)
	if err != nil {
		return err
	}

	manifest := &chunk.Manifest{
		OriginalPath: node.OriginalPath,
		MimeType:     node.ContentType,
		TotalSize:    int64(len(data)),
		ChunkSize:    o.Config.ChunkSize,
	}
	entry := &cache.ChunkedEntry{
		OriginalPath: node.OriginalPath,
		MimeType:     node.ContentType,
		TotalSize:    int64(len(data)),
		ChunkSize:    o.Config.ChunkSize,
		ContentHash:  node.ContentHash,
	}
	for i, r := range results {
		size := int64(len(pieces[i]))
		manifest.Chunks = append(manifest.Chunks, chunk.Entry{
			Index:    i,
			Outpoint: r.Outpoint,
			URLPath:  r.URLPath,
			Size:     size,
		})
		entry.Chunks = append(entry.Chunks, cache.ChunkRef{
			Index:    i,
			Outpoint: r.Outpoint,
			URLPath:  r.URLPath,
			Size:     size,
		})
	}
	raw, err := manifest.Bytes()
	if err != nil {
		return err
	}
	manifestJob := publish.NewJob(publish.KindWhole, node.OriginalPath, "application/json", raw, o.Wallet.Address())
	mres, err := o.Engine.Publish(ctx, []*publish.Job{manifestJob})
	if err != nil {
		return err
	}

	urls[node.OriginalPath] = mres[0].URLPath
	entry.Manifest = mres[0].Outpoint
	entry.URLPath = mres[0].URLPath
	d.TotalBytes += int64(len(data)) + int64(len(raw))
	d.Chunked = append(d.Chunked, entry)
	log.Printf("[DEPLOY] chunked %s into %d carriers, manifest %s",
		node.OriginalPath, len(pieces), entry.Manifest)
	return nil
}

// publishLoader republishes the client reassembly helper when any chunked
// content exists and the previously published copy no longer matches.
func (o *Orchestrator) publishLoader(ctx context.Context, analysis *cache.Analysis, d *cache.Deployment) error {
	if len(d.Chunked) == 0 {
		return nil
	}
	d.LoaderHash = chunk.LoaderHash(o.Config.ContentBase)
	if analysis.LoaderValid {
		return nil
	}
	script := chunk.LoaderScript(o.Config.ContentBase)
	job := publish.NewJob(publish.KindWhole, LoaderPath, "application/javascript", script, o.Wallet.Address())
	results, err := o.Engine.Publish(ctx, []*publish.Job{job})
	if err != nil {
		return err
	}
	d.TotalBytes += int64(len(script))
	d.Files = append(d.Files, &cache.FileEntry{
		OriginalPath: LoaderPath,
		Outpoint:     results[0].Outpoint,
		URLPath:      results[0].URLPath,
		Size:         int64(len(script)),
		ContentHash:  d.LoaderHash,
	})
	return nil
}

var headClose = regexp.MustCompile(`(?i)</head>`)

// injectVersionMeta stamps the root document with the deployed version so
// its bytes change every run.
func injectVersionMeta(data []byte, app, version string) []byte {
	tag := fmt.Sprintf(`<meta name="ordsite" content="%s@%s">`, app, version)
	if loc := headClose.FindIndex(data); loc != nil {
		out := make([]byte, 0, len(data)+len(tag))
		out = append(out, data[:loc[0]]...)
		out = append(out, []byte(tag)...)
		out = append(out, data[loc[0]:]...)
		return out
	}
	return append([]byte(fmt.Sprintf("<!-- %s@%s -->\n", app, version)), data...)
}

// publishRoot rewrites and publishes the root document last, when every
// URL it may reference is known.
func (o *Orchestrator) publishRoot(ctx context.Context, g *graph.Graph, urls map[string]string, d *cache.Deployment) error {
	node := g.Root()
	data, err := os.ReadFile(node.AbsPath)
	if err != nil {
		return err
	}
	data = injectVersionMeta(data, o.Config.App, o.Config.Version)
	data, err = o.Rewriter.Rewrite(data, node.ContentType, o.urlAliases(node, urls))
	if err != nil {
		return err
	}
	job := publish.NewJob(publish.KindWhole, node.OriginalPath, node.ContentType, data, o.Wallet.Address())
	job.Meta = map[string]string{"app": o.Config.App, "version": o.Config.Version}
	results, err := o.Engine.Publish(ctx, []*publish.Job{job})
	if err != nil {
		return err
	}
	r := results[0]
	urls[node.OriginalPath] = r.URLPath
	d.TotalBytes += int64(len(data))
	d.Files = append(d.Files, &cache.FileEntry{
		OriginalPath:   node.OriginalPath,
		Outpoint:       r.Outpoint,
		URLPath:        r.URLPath,
		Size:           int64(len(data)),
		ContentHash:    node.ContentHash,
		DependencyHash: o.depHash(node, urls),
	})
	return nil
}

// rewritten loads a node's bytes and maps its dependency references to
// their published URLs.
func (o *Orchestrator) rewritten(node *graph.Node, urls map[string]string) ([]byte, error) {
	data, err := os.ReadFile(node.AbsPath)
	if err != nil {
		return nil, err
	}
	return o.Rewriter.Rewrite(data, node.ContentType, o.urlAliases(node, urls))
}

// urlAliases builds the reference→URL map for one file: every textual form
// each dependency can take, pointed at its published URL.
func (o *Orchestrator) urlAliases(node *graph.Node, urls map[string]string) map[string]string {
	aliases := map[string]string{}
	for _, dep := range node.Deps {
		url, ok := urls[dep]
		if !ok {
			continue
		}
		for _, alias := range aliasesFor(dep, node.OriginalPath) {
			aliases[alias] = url
		}
	}
	return aliases
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (o *Orchestrator) depHash(node *graph.Node, urls map[string]string) string {
	var depURLs []string
	for _, dep := range node.Deps {
		if url, ok := urls[dep]; ok {
			depURLs = append(depURLs, url)
		}
	}
	return cache.DepHash(depURLs)
}
