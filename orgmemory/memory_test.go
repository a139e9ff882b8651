package orgmemory

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"
)

func TestAppendPreservesOrder(t *testing.T) {
	m := NewMemory(DefaultMemoryConfig(), zap.NewNop())
	require.NoError(t, m.Append("synthesis", "first"))
	require.NoError(t, m.Append("synthesis", "second"))
	require.NoError(t, m.Append("grounding", "third"))

	assert.Equal(t, []string{"first", "second"}, m.Lessons("synthesis"))
	assert.Equal(t, []string{"synthesis", "grounding"}, m.Categories())
	assert.Equal(t, 3, m.Len())
}

func TestAppendRejectsEmpty(t *testing.T) {
	m := NewMemory(DefaultMemoryConfig(), zap.NewNop())
	assert.Error(t, m.Append("", "lesson"))
	assert.Error(t, m.Append("cat", "  "))
}

func TestAppendHonorsCap(t *testing.T) {
	m := NewMemory(Config{MaxLessons: 2}, zap.NewNop())
	require.NoError(t, m.Append("cat", "one"))
	require.NoError(t, m.Append("cat", "two"))
	err := m.Append("cat", "three")
	require.Error(t, err)
	// 已有课程原样保留
	assert.Equal(t, []string{"one", "two"}, m.Lessons("cat"))
}

func TestRenderConcatenatesRequestedCategories(t *testing.T) {
	m := NewMemory(DefaultMemoryConfig(), zap.NewNop())
	require.NoError(t, m.Append("synthesis", "keep concrete values"))
	require.NoError(t, m.Append("grounding", "name the domain"))

	out := m.Render("synthesis")
	assert.Contains(t, out, "ORGANIZATIONAL MEMORY")
	assert.Contains(t, out, "## synthesis")
	assert.Contains(t, out, "- keep concrete values")
	assert.NotContains(t, out, "name the domain")

	all := m.Render()
	assert.Contains(t, all, "name the domain")
}

func TestRenderEmptyMemory(t *testing.T) {
	m := NewMemory(DefaultMemoryConfig(), zap.NewNop())
	assert.Equal(t, "", m.Render())
	assert.Equal(t, "", m.Render("nothing"))
}

func TestCloneIsIndependent(t *testing.T) {
	m := NewMemory(DefaultMemoryConfig(), zap.NewNop())
	require.NoError(t, m.Append("cat", "original"))

	clone := m.Clone()
	require.NoError(t, clone.Append("cat", "clone only"))

	assert.Equal(t, []string{"original"}, m.Lessons("cat"))
	assert.Equal(t, []string{"original", "clone only"}, clone.Lessons("cat"))
}

func TestRestoreFromSnapshot(t *testing.T) {
	m := NewMemory(DefaultMemoryConfig(), zap.NewNop())
	m.Restore(map[string][]string{
		"b_cat": {"b1", "b2"},
		"a_cat": {"a1"},
		"empty": {},
	})

	assert.Equal(t, []string{"a_cat", "b_cat"}, m.Categories())
	assert.Equal(t, []string{"b1", "b2"}, m.Lessons("b_cat"))
}

func TestDefaultMemorySeeded(t *testing.T) {
	m := DefaultMemory(DefaultMemoryConfig(), zap.NewNop())
	cats := m.Categories()
	assert.Contains(t, cats, "synthesis_protocol")
	assert.Contains(t, cats, "synthesis_truncation")
	assert.Contains(t, cats, "domain_grounding")
	assert.Contains(t, cats, "output_structure")
	assert.Equal(t, 4, m.Len())
}

func TestConcurrentAppends(t *testing.T) {
	m := NewMemory(DefaultMemoryConfig(), zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = m.Append("cat", fmt.Sprintf("lesson %d", i))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 50, m.Len())
}

// 追加永不丢失或改写既有课程
func TestAppendOnlyProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		m := NewMemory(DefaultMemoryConfig(), zap.NewNop())

		type entry struct{ cat, lesson string }
		var history []entry

		n := rapid.IntRange(1, 30).Draw(t, "n")
		for i := 0; i < n; i++ {
			cat := rapid.SampledFrom([]string{"a", "b", "c"}).Draw(t, "cat")
			lesson := fmt.Sprintf("lesson-%d-%s", i, rapid.StringMatching(`[a-z]{3,8}`).Draw(t, "body"))
			require.NoError(t, m.Append(cat, lesson))
			history = append(history, entry{cat, lesson})

			// 每一步之后，所有历史课程仍按序在场
			seen := map[string][]string{}
			for _, e := range history {
				seen[e.cat] = append(seen[e.cat], e.lesson)
			}
			for cat, want := range seen {
				require.Equal(t, want, m.Lessons(cat))
			}
		}

		// 渲染包含每一条课程
		rendered := m.Render()
		for _, e := range history {
			require.True(t, strings.Contains(rendered, e.lesson))
		}
	})
}
