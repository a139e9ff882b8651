package retrospective

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/machine-machine/orgbench/eval"
	"github.com/machine-machine/orgbench/llm"
	"github.com/machine-machine/orgbench/testutil/mocks"
	"github.com/machine-machine/orgbench/topology"
	"github.com/machine-machine/orgbench/types"
)

func newTestClient(provider llm.Provider) *llm.Client {
	backend := &llm.Backend{Name: "mock", Provider: provider, Model: "mock-model"}
	config := llm.ClientConfig{
		DefaultBackend: "mock",
		MaxRetries:     1,
		InitialDelay:   time.Millisecond,
		MaxDelay:       2 * time.Millisecond,
		Multiplier:     2.0,
		CallTimeout:    5 * time.Second,
	}
	return llm.NewClient([]*llm.Backend{backend}, config, zap.NewNop())
}

func analysisFixtures() (types.Task, *topology.Result, *eval.Result) {
	task := types.Task{ID: "relay-design", Prompt: "Design a relay network."}
	orgResult := &topology.Result{
		Topology:    "star",
		FinalOutput: "the organization's answer",
		Participants: []topology.ParticipantOutput{
			{Role: "Protocol Designer", Kind: topology.KindSpecialist},
			{Role: "Capacity Planner", Kind: topology.KindSpecialist, Failed: true, Err: "timeout"},
		},
	}
	evalResult := &eval.Result{
		TaskID:     "relay-design",
		SingleMean: 70,
		MultiMean:  55,
		DeltaMean:  -15,
		MaxScore:   100,
	}
	return task, orgResult, evalResult
}

func TestAnalyzeParsesStructuredResponse(t *testing.T) {
	response := `FAILURE_MODE: synthesis-loss
ROOT_CAUSE: The synthesis step paraphrased the protocol table instead of carrying it over.
PROTOCOL_FIX: Require the synthesis agent to copy tables and numeric specs verbatim.
DOMAIN_GROUNDING: Always name the actual wire protocol under discussion.
MEMORY_LESSONS:
- synthesis_protocol: Copy specialist tables verbatim into the final answer.
- domain_grounding: Name the wire protocol explicitly in every section.`

	analyzer := NewAnalyzer(newTestClient(mocks.NewSuccessProvider(response)), DefaultConfig(), zap.NewNop())
	task, orgResult, evalResult := analysisFixtures()

	finding, err := analyzer.Analyze(context.Background(), task, orgResult, evalResult)
	require.NoError(t, err)

	assert.Equal(t, CategorySynthesisLoss, finding.Category)
	assert.Contains(t, finding.Diagnosis, "paraphrased the protocol table")
	assert.Contains(t, finding.ProtocolFix, "verbatim")
	assert.Contains(t, finding.DomainGrounding, "wire protocol")
	assert.Len(t, finding.Lessons, 2)
	assert.Equal(t, "Copy specialist tables verbatim into the final answer.", finding.Lessons["synthesis_protocol"])
}

func TestAnalyzePromptMentionsFailedParticipants(t *testing.T) {
	provider := mocks.NewSuccessProvider("FAILURE_MODE: domain-drift\nROOT_CAUSE: x\nPROTOCOL_FIX: y\nDOMAIN_GROUNDING: z\nMEMORY_LESSONS:\n- domain_grounding: stay on topic")
	analyzer := NewAnalyzer(newTestClient(provider), DefaultConfig(), zap.NewNop())
	task, orgResult, evalResult := analysisFixtures()

	_, err := analyzer.Analyze(context.Background(), task, orgResult, evalResult)
	require.NoError(t, err)

	prompt := provider.GetLastCall().Request.Messages[0].Content
	assert.Contains(t, prompt, "Capacity Planner failed: timeout")
	assert.Contains(t, prompt, "EXACTLY ONE")
	for _, c := range Categories() {
		assert.Contains(t, prompt, c)
	}
}

func TestNormalizeCategoryFuzzyMatch(t *testing.T) {
	assert.Equal(t, CategoryTokenTruncation, normalizeCategory("Token-Truncation", ""))
	assert.Equal(t, CategoryDomainDrift, normalizeCategory("<domain-drift>", ""))
	assert.Equal(t, CategoryAbstractionFailure, normalizeCategory("the failure mode is abstraction-failure here", ""))
}

func TestNormalizeCategoryKeywordFallback(t *testing.T) {
	text := "The outputs were truncated mid-sentence, clearly a token limit issue. Truncated tables everywhere."
	assert.Equal(t, CategoryTokenTruncation, normalizeCategory("something-else", text))

	// 无关键词命中归入最常见的失败模式
	assert.Equal(t, CategorySynthesisLoss, normalizeCategory("", "no recognizable signal"))
}

func TestParseFindingFallbackLesson(t *testing.T) {
	raw := "FAILURE_MODE: specialist-overlap\nROOT_CAUSE: Both analysts covered capacity.\nPROTOCOL_FIX: Assign disjoint focus areas up front."

	finding := parseFinding(raw)

	assert.Equal(t, CategorySpecialistOverlap, finding.Category)
	require.Len(t, finding.Lessons, 1)
	assert.Equal(t, "Assign disjoint focus areas up front.", finding.Lessons["role_design"])
}

func TestParseFindingGarbageStaysInTaxonomy(t *testing.T) {
	finding := parseFinding("complete nonsense with no structure at all")

	assert.Contains(t, Categories(), finding.Category)
	assert.NotEmpty(t, finding.Diagnosis)
}

func TestParseLessonsSkipsTemplatePlaceholders(t *testing.T) {
	lessons := parseLessons("- <memory_category>: <one transferable lesson>\n- synthesis_protocol: real lesson")
	require.Len(t, lessons, 1)
	assert.Equal(t, "real lesson", lessons["synthesis_protocol"])
}

func TestAnalyzePropagatesClientError(t *testing.T) {
	provider := mocks.NewErrorProvider(types.NewError(types.ErrInvalidRequest, "model down"))
	analyzer := NewAnalyzer(newTestClient(provider), DefaultConfig(), zap.NewNop())
	task, orgResult, evalResult := analysisFixtures()

	_, err := analyzer.Analyze(context.Background(), task, orgResult, evalResult)
	require.Error(t, err)
}
