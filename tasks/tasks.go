// Package tasks 内置基准任务库。
// 设计类任务（事件响应）与执行类任务（代码评审）各取一个代表形态，
// 供测试夹具和命令行使用。
package tasks

import (
	"fmt"

	"github.com/machine-machine/orgbench/types"
)

// StandardRubric 设计类任务的通用评分标准，5 维各 0-20 分
func StandardRubric() []types.RubricDimension {
	return []types.RubricDimension{
		{Name: "coverage", Description: "Addresses ALL 5 required areas completely", MaxPoints: 20},
		{Name: "technical depth", Description: "Specific mechanisms, numbers, schemas, named protocols", MaxPoints: 20},
		{Name: "coherence", Description: "Logically consistent, well-structured, no contradictions", MaxPoints: 20},
		{Name: "implementability", Description: "A dev team could actually build this from the spec", MaxPoints: 20},
		{Name: "edge cases", Description: "Handles failure modes, race conditions, degraded states", MaxPoints: 20},
	}
}

// IncidentResponse 设计类任务：为一个五代理 AI 组织设计事件响应协议
func IncidentResponse() types.Task {
	return types.Task{
		ID:   "ai_incident_response",
		Name: "AI Incident Response Protocol",
		Prompt: "Design a complete incident response protocol for a 5-agent AI organization. " +
			"Cover all of: (1) failure detection mechanisms, (2) inter-agent communication during incidents, " +
			"(3) work redistribution when an agent goes offline, (4) agent recovery and reintegration, " +
			"(5) post-incident knowledge capture. Be as comprehensive and technically specific as possible.",
		Roles: []types.SpecialistRole{
			{
				Name:      "Systems Architect",
				MemoryKey: "failure_detection",
				Instruction: "technical detection mechanisms for agent failure: heartbeat protocols, timeout thresholds, " +
					"health check APIs, circuit breaker patterns. Include timing values and protocol specs.",
			},
			{
				Name:      "Coordination Specialist",
				MemoryKey: "incident_communication",
				Instruction: "inter-agent communication during incidents: message formats, escalation paths, " +
					"consensus mechanisms. Include message schemas and routing logic.",
			},
			{
				Name:      "Governance Designer",
				MemoryKey: "incident_governance",
				Instruction: "decision framework for incident response: authority levels, escalation thresholds, " +
					"audit requirements, rollback procedures. Include decision trees.",
			},
			{
				Name:      "Emergence Engineer",
				MemoryKey: "work_redistribution",
				Instruction: "work redistribution when capacity drops: algorithms for load balancing, " +
					"quality preservation under degraded conditions. Use concrete algorithms, not metaphors.",
			},
			{
				Name:      "Network Analyst",
				MemoryKey: "post_incident_learning",
				Instruction: "post-incident learning: metrics to capture, org memory updates, pattern detection, " +
					"preventing recurrence. Include specific data schemas.",
			},
		},
		Rubric: StandardRubric(),
		Constraints: []types.Constraint{
			{Name: "heartbeat_mechanism", MustContain: "heartbeat"},
			{Name: "escalation_path", MustContain: "escalation"},
			{Name: "recovery_procedure", MustContain: "recovery"},
		},
	}
}

const codeReviewGrounding = "You are a senior engineer performing actual code review on real pull requests. " +
	"This is NOT a design exercise. For each diff: identify specific issues (cite exact line), " +
	"explain the risk, provide a concrete fix, assign severity (CRITICAL/HIGH/MEDIUM/LOW), " +
	"and give a verdict (APPROVE/REQUEST_CHANGES/BLOCK)."

// 评审夹具：两个带已知缺陷的差异和一个干净差异
var reviewDiffs = []struct {
	name string
	body string
}{
	{
		"diff_001_sql_injection.py",
		`def get_user(db, username):
    query = f"SELECT * FROM users WHERE username = '{username}'"
    return db.execute(query).fetchone()

def search_orders(db, customer_id, status):
    return db.execute(
        f"SELECT * FROM orders WHERE customer_id = {customer_id} AND status = '{status}'"
    ).fetchall()`,
	},
	{
		"diff_002_race_condition.py",
		`request_counts = {}

def track_request(client_id):
    if client_id not in request_counts:
        request_counts[client_id] = 0
    request_counts[client_id] += 1
    return request_counts[client_id]`,
	},
	{
		"diff_003_clean.py",
		`def paginate(items, page, per_page=50):
    if page < 1:
        raise ValueError("page must be >= 1")
    start = (page - 1) * per_page
    return items[start : start + per_page]`,
	},
}

// CodeReview 执行类任务：对真实代码差异做生产级评审
func CodeReview() types.Task {
	diffBlock := ""
	for _, d := range reviewDiffs {
		diffBlock += fmt.Sprintf("### %s\n```python\n%s\n```\n\n", d.name, d.body)
	}

	return types.Task{
		ID:   "code_review_execution",
		Name: "Production Code Review",
		Prompt: "You are reviewing 3 pull requests for a production Python web service. " +
			"For EACH diff, provide:\n" +
			"1. Issues found (cite exact lines)\n" +
			"2. Severity: CRITICAL / HIGH / MEDIUM / LOW for each issue\n" +
			"3. Suggested fix (exact code change, not vague advice)\n" +
			"4. Verdict: APPROVE, REQUEST_CHANGES, or BLOCK (with justification)\n\n" +
			"Here are the diffs:\n\n" + diffBlock,
		Grounding: codeReviewGrounding,
		Roles: []types.SpecialistRole{
			{
				Name:      "Security Reviewer",
				MemoryKey: "security_review",
				Instruction: "security vulnerabilities: SQL injection, command injection, SSRF, path traversal, " +
					"auth bypass, secrets in code. For each finding, cite the CWE number.",
			},
			{
				Name:      "Concurrency Reviewer",
				MemoryKey: "concurrency_review",
				Instruction: "concurrency and thread safety: shared mutable state without synchronization, " +
					"TOCTOU bugs, missing locks, non-atomic operations that should be atomic.",
			},
			{
				Name:      "Reliability Reviewer",
				MemoryKey: "reliability_review",
				Instruction: "error handling and reliability: bare except clauses, swallowed exceptions, " +
					"missing retry logic, no timeout handling, silent failures, missing cleanup.",
			},
		},
		Rubric: []types.RubricDimension{
			{Name: "bug detection", Description: "Correctly identifies all planted bugs (SQL injection, race condition)", MaxPoints: 20},
			{Name: "false positive rate", Description: "Does NOT flag clean code as buggy (diff_003 should pass)", MaxPoints: 20},
			{Name: "fix quality", Description: "Suggested fixes are correct, specific, and immediately applicable", MaxPoints: 20},
			{Name: "severity accuracy", Description: "Correctly ranks severity (SQL injection above race condition)", MaxPoints: 20},
			{Name: "review completeness", Description: "Every diff gets a clear verdict: APPROVE, REQUEST_CHANGES, or BLOCK", MaxPoints: 20},
		},
		Constraints: []types.Constraint{
			{Name: "sql_injection_found", MustContain: "sql injection"},
			{Name: "race_condition_found", MustContain: "race condition"},
			{Name: "block_verdict_issued", MustContain: "block"},
			{Name: "severity_assigned", MustContain: "critical"},
		},
	}
}

// All 返回全部内置任务
func All() []types.Task {
	return []types.Task{IncidentResponse(), CodeReview()}
}

// ByID 按标识查找内置任务
func ByID(id string) (types.Task, bool) {
	for _, t := range All() {
		if t.ID == id {
			return t, true
		}
	}
	return types.Task{}, false
}
