package chunk

import (
	"encoding/json"
	"fmt"

	"github.com/shruggr/ordsite/lib"
)

// Manifest is the on-chain wire format describing a chunked file. Chunks
// are index-ordered with contiguous coverage summing to TotalSize.
type Manifest struct {
	OriginalPath string  `json:"originalPath"`
	MimeType     string  `json:"mimeType"`
	TotalSize    int64   `json:"totalSize"`
	ChunkSize    int64   `json:"chunkSize"`
	Chunks       []Entry `json:"chunks"`
}

// Entry locates one chunk's carrier.
type Entry struct {
	Index    int          `json:"index"`
	Outpoint lib.Outpoint `json:"outpoint"`
	URLPath  string       `json:"urlPath"`
	Size     int64        `json:"size"`
}

func (m *Manifest) Bytes() ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(m)
}

func ParseManifest(data []byte) (*Manifest, error) {
	m := &Manifest{}
	if err := json.Unmarshal(data, m); err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Validate enforces the manifest invariants: dense ascending indexes,
// positive sizes, coverage summing to TotalSize.
func (m *Manifest) Validate() error {
	if len(m.Chunks) == 0 {
		return fmt.Errorf("manifest %s has no chunks", m.OriginalPath)
	}
	var total int64
	for i, c := range m.Chunks {
		if c.Index != i {
			return fmt.Errorf("manifest %s: chunk %d has index %d", m.OriginalPath, i, c.Index)
		}
		if c.Size <= 0 {
			return fmt.Errorf("manifest %s: chunk %d has size %d", m.OriginalPath, i, c.Size)
		}
		total += c.Size
	}
	if total != m.TotalSize {
		return fmt.Errorf("manifest %s: chunks sum to %d, want %d", m.OriginalPath, total, m.TotalSize)
	}
	return nil
}

// Slice selects the byte range [From,To] (inclusive) within one chunk.
type Slice struct {
	Chunk Entry
	From  int64
	To    int64
}

// RangeFor maps the byte range [start,end] (inclusive) of the reassembled
// file onto the chunks that carry it: walk chunks in index order
// accumulating offsets, keep those intersecting the range, and compute
// per-chunk slice bounds.
func RangeFor(m *Manifest, start, end int64) ([]Slice, error) {
	if start < 0 || end >= m.TotalSize || start > end {
		return nil, fmt.Errorf("range [%d,%d] out of bounds for %d bytes", start, end, m.TotalSize)
	}
	var slices []Slice
	var off int64
	for _, c := range m.Chunks {
		chunkStart := off
		chunkEnd := off + c.Size - 1
		off += c.Size
		if chunkEnd < start {
			continue
		}
		if chunkStart > end {
			break
		}
		s := Slice{Chunk: c, From: 0, To: c.Size - 1}
		if start > chunkStart {
			s.From = start - chunkStart
		}
		if end < chunkEnd {
			s.To = end - chunkStart
		}
		slices = append(slices, s)
	}
	return slices, nil
}
