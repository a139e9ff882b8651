package tasks

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltinTasksAreWellFormed(t *testing.T) {
	for _, task := range All() {
		assert.NotEmpty(t, task.ID)
		assert.NotEmpty(t, task.Prompt)
		assert.NotEmpty(t, task.Roles)
		assert.Equal(t, 100, task.MaxScore())
		for _, role := range task.Roles {
			assert.NotEmpty(t, role.Name)
			assert.NotEmpty(t, role.MemoryKey)
			assert.NotEmpty(t, role.Instruction)
		}
	}
}

func TestByID(t *testing.T) {
	task, ok := ByID("ai_incident_response")
	require.True(t, ok)
	assert.Equal(t, "AI Incident Response Protocol", task.Name)

	_, ok = ByID("no_such_task")
	assert.False(t, ok)
}

func TestCodeReviewEmbedsFixtureDiffs(t *testing.T) {
	task := CodeReview()
	assert.Contains(t, task.Prompt, "diff_001_sql_injection.py")
	assert.Contains(t, task.Prompt, "request_counts[client_id] += 1")
	assert.Contains(t, task.Grounding, "APPROVE/REQUEST_CHANGES/BLOCK")
}

func TestConstraintsCheckAgainstOutput(t *testing.T) {
	task := CodeReview()

	good := "Diff 1 has a SQL Injection (CWE-89), severity CRITICAL, verdict BLOCK. " +
		"Diff 2 has a race condition on the shared counter."
	for _, c := range task.Constraints {
		assert.True(t, c.Check(good), "constraint %s should pass", c.Name)
	}

	bad := "Everything looks fine, APPROVE all."
	failed := 0
	for _, c := range task.Constraints {
		if !c.Check(bad) {
			failed++
		}
	}
	assert.Equal(t, 4, failed)
}

func TestIncidentResponseCoversFiveAreas(t *testing.T) {
	task := IncidentResponse()
	assert.Len(t, task.Roles, 5)
	for _, area := range []string{"failure detection", "communication", "redistribution", "recovery", "knowledge capture"} {
		assert.True(t, strings.Contains(task.Prompt, area), "prompt should mention %s", area)
	}
}
