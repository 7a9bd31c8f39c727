package ai

import (
	"fmt"
	"sort"

	appErr "github.com/xxxsen/docqa/internal/pkg/errors"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

type Segment struct {
	Text  string
	Start int
}

// Chunker splits text into fixed size windows measured in runes. Each window
// after the first starts Size-Overlap runes after the previous one, so
// consecutive windows share exactly Overlap runes. The last window may be
// shorter than Size.
type Chunker struct {
	Size    int
	Overlap int
}

func NewChunker(size, overlap int) *Chunker {
	return &Chunker{Size: size, Overlap: overlap}
}

func (c *Chunker) Chunk(text string) ([]Segment, error) {
	if c.Overlap < 0 || c.Size <= c.Overlap {
		return nil, fmt.Errorf("chunk size %d must exceed overlap %d: %w", c.Size, c.Overlap, appErr.ErrInvalid)
	}
	runes := []rune(text)
	if len(runes) == 0 {
		return nil, fmt.Errorf("empty text: %w", appErr.ErrInvalid)
	}
	stride := c.Size - c.Overlap
	segments := make([]Segment, 0, len(runes)/stride+1)
	for start := 0; ; start += stride {
		end := start + c.Size
		if end > len(runes) {
			end = len(runes)
		}
		segments = append(segments, Segment{Text: string(runes[start:end]), Start: start})
		if end == len(runes) {
			break
		}
	}
	return segments, nil
}

// Join rebuilds the original text from segments produced with the given overlap.
func Join(segments []Segment, overlap int) string {
	var out []rune
	for i, seg := range segments {
		r := []rune(seg.Text)
		if i > 0 {
			r = r[overlap:]
		}
		out = append(out, r...)
	}
	return string(out)
}

// PageForOffset returns the 1-based page containing offset, given the rune
// offsets at which each page starts. Zero means no page information.
func PageForOffset(pageStarts []int, offset int) int {
	if len(pageStarts) == 0 {
		return 0
	}
	idx := sort.Search(len(pageStarts), func(i int) bool {
		return pageStarts[i] > offset
	})
	if idx == 0 {
		return 1
	}
	return idx
}
