package workflow

import "fmt"

// MaxRevisionRounds 创作步骤最多执行的轮数
const MaxRevisionRounds = 3

// TransitionKind 状态迁移类型
type TransitionKind int

const (
	TransitionContinue  TransitionKind = iota // 进入下一步骤
	TransitionSuspend                         // 挂起等待外部决策
	TransitionTerminate                       // 终止
)

// Transition 路由结果
type Transition struct {
	Kind    TransitionKind
	Next    Step          // Kind=Continue 时有效
	Outcome OutcomeStatus // Kind=Terminate 时有效
}

// GoTo 进入指定步骤
func GoTo(step Step) Transition {
	return Transition{Kind: TransitionContinue, Next: step}
}

// Suspend 挂起
func Suspend() Transition {
	return Transition{Kind: TransitionSuspend, Next: StepSuspended, Outcome: OutcomeSuspended}
}

// Terminate 以指定结果终止
func Terminate(outcome OutcomeStatus) Transition {
	return Transition{Kind: TransitionTerminate, Next: StepTerminated, Outcome: outcome}
}

func (t Transition) String() string {
	switch t.Kind {
	case TransitionContinue:
		return "-> " + string(t.Next)
	case TransitionSuspend:
		return "suspend"
	default:
		return fmt.Sprintf("terminate(%s)", t.Outcome)
	}
}

// AfterTopicCompliance 选题合规后的路由：BLOCK 终止，否则创作
func AfterTopicCompliance(s *WorkflowState) Transition {
	if s.ComplianceResult.Blocked() {
		return Terminate(OutcomeBlocked)
	}
	return GoTo(StepCreate)
}

// AfterContentCompliance 内容复核后总是进入人工审核，拦截结论交给审核人判断
func AfterContentCompliance(_ *WorkflowState) Transition {
	return GoTo(StepReview)
}

// AfterReview 人工审核后的路由
// 修改次数上限检查先于其他结论比较
func AfterReview(s *WorkflowState) Transition {
	if s.ReviewDecision == DecisionPending {
		return Suspend()
	}
	if s.ReviewDecision == DecisionRevision {
		if s.RevisionRound >= MaxRevisionRounds {
			return Terminate(OutcomeRevisionExhausted)
		}
		return GoTo(StepCreate)
	}
	if s.ReviewDecision == DecisionApproved {
		return GoTo(StepPublish)
	}
	return Terminate(OutcomeRejected)
}

// Route 纯函数状态迁移：(当前步骤, 状态) -> 下一状态
func Route(current Step, s *WorkflowState) Transition {
	if s.Failed() {
		return Terminate(OutcomeFailed)
	}
	switch current {
	case StepResearch:
		return GoTo(StepTopicCompliance)
	case StepTopicCompliance:
		return AfterTopicCompliance(s)
	case StepCreate:
		return GoTo(StepContentCompliance)
	case StepContentCompliance:
		return AfterContentCompliance(s)
	case StepReview:
		return AfterReview(s)
	case StepPublish:
		return GoTo(StepAnalytics)
	case StepAnalytics:
		return Terminate(OutcomePublished)
	default:
		return Terminate(OutcomeFailed)
	}
}
