package types

import "strings"

// RubricDimension 评分维度定义
type RubricDimension struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
	MaxPoints   int    `json:"max_points" yaml:"max_points"`
}

// SpecialistRole describes one seat in an organizational topology.
// MemoryKey selects which lesson category is injected into the seat's
// prompt; Instruction is the seat's standing domain brief.
type SpecialistRole struct {
	Name        string `json:"name" yaml:"name"`
	MemoryKey   string `json:"memory_key" yaml:"memory_key"`
	Instruction string `json:"instruction" yaml:"instruction"`
}

// Constraint 针对最终产出文本的二值约束
type Constraint struct {
	Name        string `json:"name" yaml:"name"`
	MustContain string `json:"must_contain,omitempty" yaml:"must_contain,omitempty"`
}

// Check reports whether the output satisfies the constraint.
// Matching is case-insensitive substring containment.
func (c Constraint) Check(output string) bool {
	if c.MustContain == "" {
		return true
	}
	return strings.Contains(strings.ToLower(output), strings.ToLower(c.MustContain))
}

// Task 基准任务定义
type Task struct {
	ID          string            `json:"id" yaml:"id"`
	Name        string            `json:"name" yaml:"name"`
	Prompt      string            `json:"prompt" yaml:"prompt"`
	Grounding   string            `json:"grounding,omitempty" yaml:"grounding,omitempty"`
	Roles       []SpecialistRole  `json:"roles" yaml:"roles"`
	Rubric      []RubricDimension `json:"rubric" yaml:"rubric"`
	Constraints []Constraint      `json:"constraints,omitempty" yaml:"constraints,omitempty"`
}

// MaxScore returns the rubric's total attainable points.
func (t Task) MaxScore() int {
	total := 0
	for _, d := range t.Rubric {
		total += d.MaxPoints
	}
	return total
}
