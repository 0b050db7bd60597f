package chunker

import (
	"strings"
	"testing"

	"calmchat/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func page(n int, text string) models.PageText {
	return models.PageText{Page: n, Text: text, Method: models.MethodDirect}
}

func alphabet(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		b.WriteByte(byte('a' + i%26))
	}
	return b.String()
}

func TestNew(t *testing.T) {
	c := New()
	assert.Equal(t, DefaultChunkSize, c.Size())
	assert.Equal(t, DefaultChunkOverlap, c.Overlap())

	c = New(WithChunkSize(0), WithOverlap(-1))
	assert.Equal(t, DefaultChunkSize, c.Size())
	assert.Equal(t, DefaultChunkOverlap, c.Overlap())

	c = New(WithChunkSize(100), WithOverlap(150))
	assert.Equal(t, 25, c.Overlap())
}

func TestSplitEmpty(t *testing.T) {
	assert.Empty(t, New().Split("a.pdf", "h", nil))
	assert.Empty(t, New().Split("a.pdf", "h", []models.PageText{page(1, "  \n\t ")}))
}

func TestSplitSmallDocumentIsOneChunk(t *testing.T) {
	chunks := New(WithChunkSize(100), WithOverlap(20)).Split("a.pdf", "h", []models.PageText{page(1, "Respire fundo.")})
	require.Len(t, chunks, 1)
	assert.Equal(t, "Respire fundo.", chunks[0].Text)
	assert.Equal(t, 0, chunks[0].Offset)
	assert.Equal(t, 1, chunks[0].PageNumber)
}

func TestSplitDeterministic(t *testing.T) {
	pages := []models.PageText{page(1, alphabet(700)), page(2, alphabet(900)), page(3, alphabet(450))}
	c := New(WithChunkSize(300), WithOverlap(60))
	first := c.Split("guia.pdf", "abc123", pages)
	second := c.Split("guia.pdf", "abc123", pages)
	require.NotEmpty(t, first)
	assert.Equal(t, first, second)

	seen := make(map[string]bool)
	for _, ch := range first {
		assert.False(t, seen[ch.ChunkID], "duplicate chunk id %s", ch.ChunkID)
		seen[ch.ChunkID] = true
	}

	other := c.Split("outro.pdf", "abc123", pages)
	assert.NotEqual(t, first[0].ChunkID, other[0].ChunkID)
}

func TestSplitExactOverlap(t *testing.T) {
	text := strings.Repeat("ansiedade é tratável ", 200)
	c := New(WithChunkSize(250), WithOverlap(50))
	chunks := c.Split("a.pdf", "h", []models.PageText{page(1, text)})
	require.Greater(t, len(chunks), 2)

	for i, ch := range chunks {
		assert.Equal(t, i, ch.Offset)
		runes := []rune(ch.Text)
		assert.Equal(t, len(runes), ch.Length)
		assert.LessOrEqual(t, ch.Length, 250)
		if i == 0 {
			continue
		}
		prev := []rune(chunks[i-1].Text)
		assert.Equal(t, string(prev[len(prev)-50:]), string(runes[:50]), "chunk %d", i)
		assert.Equal(t, chunks[i-1].Start+200, ch.Start)
	}
	last := chunks[len(chunks)-1]
	assert.Equal(t, len([]rune(strings.TrimSpace(text))), last.Start+last.Length)
}

func TestSplitMultibyteRunes(t *testing.T) {
	text := strings.Repeat("ção", 40)
	chunks := New(WithChunkSize(30), WithOverlap(10)).Split("a.pdf", "h", []models.PageText{page(1, text)})
	require.NotEmpty(t, chunks)
	for _, ch := range chunks {
		assert.LessOrEqual(t, len([]rune(ch.Text)), 30)
		assert.NotContains(t, ch.Text, "\uFFFD")
	}
}

func TestSplitPageAttribution(t *testing.T) {
	pages := []models.PageText{page(1, alphabet(100)), page(2, ""), page(3, alphabet(100))}
	chunks := New(WithChunkSize(80), WithOverlap(20)).Split("a.pdf", "h", pages)
	// page 1 is [0,100), page 3 is [102,202) after the separator.
	require.Len(t, chunks, 4)

	assert.Equal(t, []int{1}, chunks[0].Pages)
	assert.Equal(t, []int{1, 3}, chunks[1].Pages)
	assert.Equal(t, 1, chunks[1].PageNumber)
	assert.Equal(t, []int{3}, chunks[2].Pages)
	assert.Equal(t, 3, chunks[2].PageNumber)
	assert.Equal(t, []int{3}, chunks[3].Pages)
}

func TestSplitNormalizesPageText(t *testing.T) {
	chunks := New().Split("a.pdf", "h", []models.PageText{page(1, "medo\x00  de\n\n falar"), page(2, "em público")})
	require.Len(t, chunks, 1)
	assert.Equal(t, "medo de falar\n\nem público", chunks[0].Text)
}
