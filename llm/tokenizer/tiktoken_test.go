package tokenizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEncodingSelectionExactMatch(t *testing.T) {
	assert.Equal(t, "tiktoken[o200k_base]", NewTiktokenCounter("gpt-4o").Name())
	assert.Equal(t, "tiktoken[cl100k_base]", NewTiktokenCounter("gpt-4").Name())
}

func TestEncodingSelectionLongestPrefixWins(t *testing.T) {
	assert.Equal(t, "tiktoken[o200k_base]", NewTiktokenCounter("gpt-4o-mini").Name())
	assert.Equal(t, "tiktoken[cl100k_base]", NewTiktokenCounter("gpt-4-turbo").Name())
}

func TestEncodingSelectionUnknownModelDefaults(t *testing.T) {
	assert.Equal(t, "tiktoken[cl100k_base]", NewTiktokenCounter("zai-glm-4.7").Name())
	assert.Equal(t, "tiktoken[cl100k_base]", NewTiktokenCounter("").Name())
}
