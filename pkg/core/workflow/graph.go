package workflow

import (
	"fmt"
	"strings"
)

// Edge 步骤图中的一条边
type Edge struct {
	From  Step   `json:"from"`
	To    Step   `json:"to"`
	Label string `json:"label,omitempty"`
}

// Edges 返回步骤图的全部边，与 Route 的分支一一对应
func Edges() []Edge {
	return []Edge{
		{From: StepResearch, To: StepTopicCompliance},
		{From: StepTopicCompliance, To: StepCreate, Label: "PASS"},
		{From: StepTopicCompliance, To: StepTerminated, Label: "BLOCK"},
		{From: StepCreate, To: StepContentCompliance},
		{From: StepContentCompliance, To: StepReview},
		{From: StepReview, To: StepSuspended, Label: "pending"},
		{From: StepReview, To: StepPublish, Label: "approved"},
		{From: StepReview, To: StepCreate, Label: fmt.Sprintf("revision, round < %d", MaxRevisionRounds)},
		{From: StepReview, To: StepTerminated, Label: "rejected / revision exhausted"},
		{From: StepPublish, To: StepAnalytics},
		{From: StepAnalytics, To: StepTerminated},
	}
}

// MermaidGraph 渲染 Mermaid 流程图
func MermaidGraph() string {
	var b strings.Builder
	b.WriteString("graph TD\n")
	for _, e := range Edges() {
		if e.Label == "" {
			fmt.Fprintf(&b, "    %s --> %s\n", e.From, e.To)
			continue
		}
		fmt.Fprintf(&b, "    %s -->|%s| %s\n", e.From, e.Label, e.To)
	}
	return b.String()
}
