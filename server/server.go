package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/shruggr/ordsite/chain"
	"github.com/shruggr/ordsite/chunk"
	_ "github.com/shruggr/ordsite/docs"
	"github.com/shruggr/ordsite/lib"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

var indexer *lib.HTTPIndexer
var chunkCache *lru.Cache[string, []byte]

func init() {
	godotenv.Load("../.env")
	var err error
	indexer, err = lib.NewHTTPIndexer(os.Getenv("JUNGLEBUS"), os.Getenv("ORDINALS"))
	if err != nil {
		log.Fatal(err)
	}
	chunkCache, err = lru.New[string, []byte](32)
	if err != nil {
		log.Fatal(err)
	}
	var db *sql.DB
	if dsn := os.Getenv("POSTGRES"); dsn != "" {
		if db, err = sql.Open("postgres", dsn); err != nil {
			log.Fatal(err)
		}
	} else {
		log.Println("[SERVER] no POSTGRES configured, serving without the content table")
	}
	initStore(db)
}

// @title           ordsite content server
// @version         1.0
// @description     Serves inscribed site content, chunked files, and version chains.
// @BasePath        /
func main() {
	r := gin.Default()

	r.GET("/content/:outpoint", serveContent)
	r.GET("/chunked/:outpoint", serveChunked)
	r.GET("/chain/:origin", serveChain)
	r.GET("/chain/:origin/latest", serveLatest)
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	listen := os.Getenv("LISTEN")
	if listen == "" {
		listen = "0.0.0.0:8080"
	}
	r.Run(listen)
}

func httpStatus(err error) int {
	var herr *lib.HttpError
	if errors.As(err, &herr) {
		return herr.StatusCode
	}
	return http.StatusInternalServerError
}

// @Summary  Serve an inscription's bytes
// @Param    outpoint path string true "outpoint (txid_vout)"
// @Produce  octet-stream
// @Success  200
// @Failure  400 {string} string
// @Failure  404 {string} string
// @Router   /content/{outpoint} [get]
func serveContent(c *gin.Context) {
	outpoint, err := lib.ParseOutpoint(c.Param("outpoint"))
	if err != nil {
		c.String(http.StatusBadRequest, "error: %s", err)
		return
	}
	ins, err := loadContent(c.Request.Context(), outpoint)
	if err != nil {
		c.String(httpStatus(err), "error: %s", err)
		return
	}
	ctype := ins.Type
	if ctype == "" {
		ctype = "application/octet-stream"
	}
	c.Header("cache-control", "max-age=604800, immutable")
	c.Data(http.StatusOK, ctype, ins.Body)
}

// serveChunked treats the inscription at :outpoint as a reassembly
// manifest and streams the file it describes, honoring single-range Range
// headers without ever holding more than one chunk in memory.
//
// @Summary  Stream a chunked file from its manifest
// @Param    outpoint path   string true  "manifest outpoint (txid_vout)"
// @Param    Range    header string false "single byte range, e.g. bytes=0-1023"
// @Produce  octet-stream
// @Success  200
// @Success  206
// @Failure  400 {string} string
// @Failure  416
// @Router   /chunked/{outpoint} [get]
func serveChunked(c *gin.Context) {
	outpoint, err := lib.ParseOutpoint(c.Param("outpoint"))
	if err != nil {
		c.String(http.StatusBadRequest, "error: %s", err)
		return
	}
	ins, err := loadContent(c.Request.Context(), outpoint)
	if err != nil {
		c.String(httpStatus(err), "error: %s", err)
		return
	}
	m, err := chunk.ParseManifest(ins.Body)
	if err != nil {
		c.String(http.StatusBadRequest, "error: not a manifest: %s", err)
		return
	}

	start, end := int64(0), m.TotalSize-1
	status := http.StatusOK
	if rng := c.GetHeader("Range"); rng != "" {
		if start, end, err = parseRange(rng, m.TotalSize); err != nil {
			c.Header("content-range", fmt.Sprintf("bytes */%d", m.TotalSize))
			c.Status(http.StatusRequestedRangeNotSatisfiable)
			return
		}
		status = http.StatusPartialContent
	}

	reader, err := chunk.NewReader(c.Request.Context(), m, start, end, fetchChunk, chunkCache)
	if err != nil {
		c.String(http.StatusInternalServerError, "error: %s", err)
		return
	}
	c.Header("cache-control", "max-age=604800, immutable")
	c.Header("accept-ranges", "bytes")
	if status == http.StatusPartialContent {
		c.Header("content-range", fmt.Sprintf("bytes %d-%d/%d", start, end, m.TotalSize))
	}
	c.DataFromReader(status, reader.Len(), m.MimeType, reader, nil)
}

func fetchChunk(ctx context.Context, outpoint lib.Outpoint) ([]byte, error) {
	ins, err := loadContent(ctx, outpoint)
	if err != nil {
		return nil, err
	}
	return ins.Body, nil
}

// @Summary  Version history of a deployment chain
// @Param    origin path string true "origin outpoint (txid_vout)"
// @Produce  json
// @Success  200
// @Failure  400 {string} string
// @Failure  404 {string} string
// @Router   /chain/{origin} [get]
func serveChain(c *gin.Context) {
	origin, err := lib.ParseOutpoint(c.Param("origin"))
	if err != nil {
		c.String(http.StatusBadRequest, "error: %s", err)
		return
	}
	tip, err := indexer.LatestInChain(c.Request.Context(), origin)
	if err != nil {
		c.String(httpStatus(err), "error: %s", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"origin":   origin,
		"tip":      tip.Outpoint,
		"app":      chain.App(tip.Map),
		"versions": chain.Versions(tip.Map),
	})
}

// @Summary  Newest version entry of a deployment chain
// @Param    origin path string true "origin outpoint (txid_vout)"
// @Produce  json
// @Success  200
// @Failure  400 {string} string
// @Failure  404 {string} string
// @Router   /chain/{origin}/latest [get]
func serveLatest(c *gin.Context) {
	origin, err := lib.ParseOutpoint(c.Param("origin"))
	if err != nil {
		c.String(http.StatusBadRequest, "error: %s", err)
		return
	}
	tip, err := indexer.LatestInChain(c.Request.Context(), origin)
	if err != nil {
		c.String(httpStatus(err), "error: %s", err)
		return
	}
	versions := chain.Versions(tip.Map)
	if len(versions) == 0 {
		c.String(http.StatusNotFound, "error: no versions on chain %s", origin)
		return
	}
	var latest string
	for tag, entry := range versions {
		if latest == "" || entry.Timestamp.After(versions[latest].Timestamp) {
			latest = tag
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"app":     chain.App(tip.Map),
		"version": latest,
		"entry":   versions[latest],
	})
}

// parseRange accepts a single "bytes=a-b" range, including open-ended and
// suffix forms, returning inclusive bounds clamped to size.
func parseRange(header string, size int64) (start, end int64, err error) {
	if !strings.HasPrefix(header, "bytes=") || strings.Contains(header, ",") {
		return 0, 0, fmt.Errorf("unsupported range %q", header)
	}
	spec := strings.TrimPrefix(header, "bytes=")
	dash := strings.Index(spec, "-")
	if dash == -1 {
		return 0, 0, fmt.Errorf("malformed range %q", header)
	}
	from, to := spec[:dash], spec[dash+1:]

	if from == "" {
		n, perr := strconv.ParseInt(to, 10, 64)
		if perr != nil || n <= 0 {
			return 0, 0, fmt.Errorf("malformed range %q", header)
		}
		if n > size {
			n = size
		}
		return size - n, size - 1, nil
	}
	if start, err = strconv.ParseInt(from, 10, 64); err != nil || start < 0 || start >= size {
		return 0, 0, fmt.Errorf("range %q out of bounds for %d bytes", header, size)
	}
	if to == "" {
		return start, size - 1, nil
	}
	if end, err = strconv.ParseInt(to, 10, 64); err != nil || end < start {
		return 0, 0, fmt.Errorf("malformed range %q", header)
	}
	if end >= size {
		end = size - 1
	}
	return start, end, nil
}
