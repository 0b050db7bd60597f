package providers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProviderList(t *testing.T) {
	refs := ParseProviderList("mock|openai:key1| openai:key2 ")
	require.Len(t, refs, 3)
	assert.Equal(t, "openai", refs[1].Name)
	assert.Equal(t, "key1", refs[1].KeyAlias)
	assert.Equal(t, "openai:key2", refs[2].Raw)
}

func TestParseProviderListNormalises(t *testing.T) {
	refs := ParseProviderList("Groq, OPENAI:work |groq")
	require.Len(t, refs, 2)
	assert.Equal(t, ProviderRef{Raw: "groq", Name: "groq"}, refs[0])
	assert.Equal(t, ProviderRef{Raw: "openai:work", Name: "openai", KeyAlias: "work"}, refs[1])
}

func TestParseProviderListDefaultsToMock(t *testing.T) {
	refs := ParseProviderList(" | , :alias")
	require.Len(t, refs, 1)
	assert.Equal(t, "mock", refs[0].Name)
}
