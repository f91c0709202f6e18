package chunk

import (
	"context"
	"fmt"
	"io"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/shruggr/ordsite/lib"
)

// FetchFunc loads one chunk's bytes from the network by its carrier.
type FetchFunc func(ctx context.Context, outpoint lib.Outpoint) ([]byte, error)

// Reader streams a byte range of a chunked file, fetching each selected
// chunk lazily (cache first, network fallback) and yielding only the
// requested slice. Memory stays constant at one chunk regardless of range
// size. It is restartable via Seek.
type Reader struct {
	ctx      context.Context
	manifest *Manifest
	fetch    FetchFunc
	cache    *lru.Cache[string, []byte]

	start  int64 // absolute range start
	end    int64 // absolute range end, inclusive
	pos    int64 // absolute next-read position
	slices []Slice
	idx    int    // next slice to load
	buf    []byte // unread remainder of current slice
}

// NewReader builds a Reader over [start,end] (inclusive). A nil cache
// disables caching. The full file is the range [0, TotalSize-1].
func NewReader(ctx context.Context, m *Manifest, start, end int64, fetch FetchFunc, cache *lru.Cache[string, []byte]) (*Reader, error) {
	slices, err := RangeFor(m, start, end)
	if err != nil {
		return nil, err
	}
	return &Reader{
		ctx:      ctx,
		manifest: m,
		fetch:    fetch,
		cache:    cache,
		start:    start,
		end:      end,
		pos:      start,
		slices:   slices,
	}, nil
}

// NewFullReader reads the complete file through the same range machinery.
func NewFullReader(ctx context.Context, m *Manifest, fetch FetchFunc, cache *lru.Cache[string, []byte]) (*Reader, error) {
	return NewReader(ctx, m, 0, m.TotalSize-1, fetch, cache)
}

// Len returns the total number of bytes the reader will produce.
func (r *Reader) Len() int64 {
	return r.end - r.start + 1
}

func (r *Reader) Read(p []byte) (int, error) {
	if r.pos > r.end {
		return 0, io.EOF
	}
	if len(r.buf) == 0 {
		if err := r.load(); err != nil {
			return 0, err
		}
	}
	n := copy(p, r.buf)
	r.buf = r.buf[n:]
	r.pos += int64(n)
	return n, nil
}

func (r *Reader) load() error {
	if r.idx >= len(r.slices) {
		return io.EOF
	}
	s := r.slices[r.idx]
	r.idx++
	data, err := r.chunkBytes(s.Chunk)
	if err != nil {
		return err
	}
	if int64(len(data)) != s.Chunk.Size {
		return fmt.Errorf("chunk %d of %s: got %d bytes, manifest says %d",
			s.Chunk.Index, r.manifest.OriginalPath, len(data), s.Chunk.Size)
	}
	r.buf = data[s.From : s.To+1]
	return nil
}

func (r *Reader) chunkBytes(c Entry) ([]byte, error) {
	key := c.Outpoint.String()
	if r.cache != nil {
		if data, ok := r.cache.Get(key); ok {
			return data, nil
		}
	}
	data, err := r.fetch(r.ctx, c.Outpoint)
	if err != nil {
		return nil, err
	}
	if r.cache != nil {
		r.cache.Add(key, data)
	}
	return data, nil
}

// Seek restarts the reader at an absolute offset within [start,end].
// Only io.SeekStart and io.SeekCurrent are supported.
func (r *Reader) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = r.start + offset
	case io.SeekCurrent:
		abs = r.pos + offset
	default:
		return 0, fmt.Errorf("unsupported whence %d", whence)
	}
	if abs < r.start || abs > r.end+1 {
		return 0, fmt.Errorf("seek out of range")
	}
	slices, err := RangeFor(r.manifest, abs, r.end)
	if err != nil {
		if abs == r.end+1 { // seek to EOF is legal
			r.pos = abs
			r.slices = nil
			r.idx = 0
			r.buf = nil
			return abs - r.start, nil
		}
		return 0, err
	}
	r.pos = abs
	r.slices = slices
	r.idx = 0
	r.buf = nil
	return abs - r.start, nil
}
