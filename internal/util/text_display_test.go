package util

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "ansie...", Truncate("ansiedade", 5))
	assert.Equal(t, "unbounded", Truncate("unbounded", 0))
}

func TestDisplaySnippet(t *testing.T) {
	out := DisplaySnippet("Hello\x00   world \n\t again", 100)
	assert.Equal(t, "Hello world again", out)
}

func TestDisplayEvidenceSnippet(t *testing.T) {
	chunk := "A fobia social envolve medo intenso de avaliação. A terapia cognitivo-comportamental reduz sintomas de ansiedade. Apêndice sem relação."
	out := DisplayEvidenceSnippet(chunk, "Quais tratamentos reduzem a ansiedade?", 200)
	assert.True(t, strings.Contains(strings.ToLower(out), "ansiedade"), out)
	assert.NotContains(t, out, "Apêndice")
}

func TestMeaningfulTerms(t *testing.T) {
	got := MeaningfulTerms("What is social anxiety? Como lidar com a ansiedade social?")
	assert.Equal(t, []string{"social", "anxiety", "lidar", "ansiedade"}, got)
}
