package sweeper

import (
	"errors"
	"fmt"
)

// 失败发生的阶段，用作指标 label 和 metadata.failedStage
const (
	StageResolve = "resolve"
	StageToken   = "token"
	StageKey     = "key"
	StagePending = "pending"
	StageBalance = "balance"
	StageGas     = "gas"
	StageSweep   = "sweep"
	StageConfirm = "confirm"
	StagePersist = "persist"
)

// StageError 带阶段信息的错误
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func stageErr(stage string, err error) error {
	return &StageError{Stage: stage, Err: err}
}

// stageOf 取出错误所在阶段，没有标记时返回 "unknown"
func stageOf(err error) string {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return "unknown"
}
