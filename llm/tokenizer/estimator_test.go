package tokenizer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimatorEmptyText(t *testing.T) {
	e := NewEstimatorCounter()
	assert.Equal(t, 0, e.Count(""))
}

func TestEstimatorAsciiRatio(t *testing.T) {
	e := NewEstimatorCounter()
	// 400 ASCII chars at ~4 chars/token
	text := strings.Repeat("abcd", 100)
	assert.Equal(t, 100, e.Count(text))
}

func TestEstimatorCJKRatio(t *testing.T) {
	e := NewEstimatorCounter()
	// 30 CJK chars at ~1.5 chars/token
	text := strings.Repeat("汉", 30)
	assert.Equal(t, 20, e.Count(text))
}

func TestEstimatorMinimumOne(t *testing.T) {
	e := NewEstimatorCounter()
	assert.Equal(t, 1, e.Count("a"))
}

func TestForModelNeverNil(t *testing.T) {
	c := ForModel("zai-glm-4.7")
	assert.NotNil(t, c)
	assert.Greater(t, c.Count("hello world, this is a prompt"), 0)
}
