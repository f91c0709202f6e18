// Package chunk implements the oversized-file protocol: splitting payloads
// into bounded carrier-sized pieces, the manifest wire format, and
// range-based reassembly for progressive delivery.
package chunk

import (
	"fmt"
	"path"
	"strings"
)

// DefaultThreshold is the size above which files are chunked.
const DefaultThreshold = 5 * 1024 * 1024

// progressive sizing for streaming media: leading chunks grow 1,1,2,3,5 MiB
// so first-byte latency stays low, then hold at the nominal size.
var progression = []int64{1, 1, 2, 3, 5}

const progressionUnit = 1024 * 1024

var streamingExts = map[string]bool{
	".mp4":  true,
	".webm": true,
	".mov":  true,
	".avi":  true,
	".mkv":  true,
	".mp3":  true,
	".wav":  true,
	".ogg":  true,
	".flac": true,
	".m4a":  true,
}

// Progressive reports whether origPath gets the media size progression.
func Progressive(origPath string) bool {
	return streamingExts[strings.ToLower(path.Ext(origPath))]
}

// Split divides data into an ordered sequence of chunks. nominal is the
// target chunk size; streaming-media paths use the progressive schedule,
// everything else uniform nominal-sized chunks. Concatenating the result
// by index reproduces data exactly.
func Split(data []byte, nominal int64, origPath string) ([][]byte, error) {
	if nominal <= 0 {
		return nil, fmt.Errorf("nominal chunk size must be positive, got %d", nominal)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("nothing to split: %s is empty", origPath)
	}

	sizes := sizeSchedule(int64(len(data)), nominal, Progressive(origPath))
	chunks := make([][]byte, 0, len(sizes))
	var off int64
	for _, size := range sizes {
		chunks = append(chunks, data[off:off+size])
		off += size
	}
	return chunks, nil
}

func sizeSchedule(total, nominal int64, progressive bool) []int64 {
	var sizes []int64
	remaining := total

	if progressive {
		for _, mult := range progression {
			if remaining <= 0 {
				break
			}
			size := mult * progressionUnit
			if size > nominal {
				size = nominal
			}
			if size > remaining {
				size = remaining
			}
			sizes = append(sizes, size)
			remaining -= size
		}
	}
	for remaining > 0 {
		size := nominal
		if size > remaining {
			size = remaining
		}
		sizes = append(sizes, size)
		remaining -= size
	}
	return sizes
}
