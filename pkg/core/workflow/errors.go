package workflow

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound 没有可恢复的挂起快照
	ErrNotFound = errors.New("workflow not found")
	// ErrConflict 快照已被恢复或实例已终止
	ErrConflict = errors.New("workflow conflict")
	// ErrPrecondition 步骤前置条件不满足（调用方编程错误）
	ErrPrecondition = errors.New("step precondition violated")
	// ErrInvalidDecision 非法的审核结论
	ErrInvalidDecision = errors.New("invalid review decision")
)

// ErrorKind 步骤失败分类
type ErrorKind string

const (
	KindCollaboratorUnavailable ErrorKind = "collaborator_unavailable"
	KindValidation              ErrorKind = "validation"
	KindTimeout                 ErrorKind = "timeout"
)

// StepError 步骤执行失败
type StepError struct {
	Step Step
	Kind ErrorKind
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %s failed (%s): %v", e.Step, e.Kind, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// NewStepError 创建步骤错误
func NewStepError(step Step, kind ErrorKind, err error) *StepError {
	return &StepError{Step: step, Kind: kind, Err: err}
}

// ValidationError 构造校验失败
func ValidationError(step Step, format string, args ...interface{}) *StepError {
	return NewStepError(step, KindValidation, fmt.Errorf(format, args...))
}

// KindOf 返回错误分类，非步骤错误视为上游不可用
func KindOf(err error) ErrorKind {
	var se *StepError
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindCollaboratorUnavailable
}
