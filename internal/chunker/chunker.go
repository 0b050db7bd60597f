// Package chunker splits extracted document pages into overlapping fixed-size chunks.
package chunker

import (
	"fmt"
	"strings"

	"calmchat/internal/models"
	"calmchat/internal/util"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

const pageSeparator = "\n\n"

type Chunker struct {
	size    int
	overlap int
}

type Option func(*Chunker)

// WithChunkSize sets the chunk size in runes.
func WithChunkSize(size int) Option {
	return func(c *Chunker) {
		if size > 0 {
			c.size = size
		}
	}
}

// WithOverlap sets the number of runes shared by consecutive chunks.
func WithOverlap(overlap int) Option {
	return func(c *Chunker) {
		if overlap >= 0 {
			c.overlap = overlap
		}
	}
}

func New(opts ...Option) *Chunker {
	c := &Chunker{size: DefaultChunkSize, overlap: DefaultChunkOverlap}
	for _, opt := range opts {
		opt(c)
	}
	if c.overlap >= c.size {
		c.overlap = c.size / 4
	}
	return c
}

func (c *Chunker) Size() int    { return c.size }
func (c *Chunker) Overlap() int { return c.overlap }

type pageSpan struct {
	page       int
	start, end int
}

// Split joins the normalized pages and cuts the result into windows of Size runes
// advancing by Size-Overlap. Output depends only on its inputs.
func (c *Chunker) Split(filename, fileHash string, pages []models.PageText) []models.Chunk {
	var b strings.Builder
	spans := make([]pageSpan, 0, len(pages))
	pos := 0
	for _, p := range pages {
		text := util.CleanPageText(p.Text)
		if text == "" {
			continue
		}
		if pos > 0 {
			b.WriteString(pageSeparator)
			pos += len([]rune(pageSeparator))
		}
		n := len([]rune(text))
		b.WriteString(text)
		spans = append(spans, pageSpan{page: p.Page, start: pos, end: pos + n})
		pos += n
	}
	runes := []rune(b.String())
	if len(runes) == 0 {
		return nil
	}

	step := c.size - c.overlap
	out := make([]models.Chunk, 0, len(runes)/step+1)
	for start := 0; start < len(runes); start += step {
		end := min(start+c.size, len(runes))
		text := string(runes[start:end])
		if strings.TrimSpace(text) != "" {
			offset := len(out)
			covered := pagesIn(spans, start, end)
			out = append(out, models.Chunk{
				ChunkID:        ChunkID(filename, fileHash, offset, text),
				SourceFilename: filename,
				Offset:         offset,
				Start:          start,
				Length:         end - start,
				PageNumber:     covered[0],
				Pages:          covered,
				Text:           text,
			})
		}
		if end == len(runes) {
			break
		}
	}
	return out
}

// pagesIn lists the pages whose span intersects [start, end). A window holding any
// non-space rune always intersects at least one page.
func pagesIn(spans []pageSpan, start, end int) []int {
	out := make([]int, 0, 2)
	for _, s := range spans {
		if s.start < end && start < s.end {
			out = append(out, s.page)
		}
	}
	return out
}

func ChunkID(filename, fileHash string, offset int, text string) string {
	return util.SHA256Hex([]byte(fmt.Sprintf("%s:%s:%d:%s", filename, fileHash, offset, util.SHA256Hex([]byte(text)))))
}
