package models

import (
	"errors"
	"fmt"
)

var (
	ErrDataFormat          = errors.New("data format error")
	ErrInsufficientHistory = errors.New("insufficient history")
	ErrNotFitted           = errors.New("model not fitted")
	ErrAlreadyFitted       = errors.New("model already fitted")
	ErrExportUnavailable   = errors.New("portable export unavailable")
	ErrFeatureMissing      = errors.New("feature column missing")
	ErrArtifactSchema      = errors.New("artifact schema mismatch")
)

// DataFormatError reports input that cannot become a bar table.
type DataFormatError struct {
	Source string
	Line   int // 1-based, 0 when not tied to a line
	Column string
	Reason string
}

func (e *DataFormatError) Error() string {
	msg := "data format error"
	if e.Source != "" {
		msg += " in " + e.Source
	}
	if e.Line > 0 {
		msg += fmt.Sprintf(" line %d", e.Line)
	}
	if e.Column != "" {
		msg += fmt.Sprintf(" column %q", e.Column)
	}
	return msg + ": " + e.Reason
}

func (e *DataFormatError) Unwrap() error { return ErrDataFormat }

// InsufficientHistoryError reports a bar table shorter than the largest
// feature window, or one where every row was dropped.
type InsufficientHistoryError struct {
	Bars     int
	Required int
}

func (e *InsufficientHistoryError) Error() string {
	return fmt.Sprintf("insufficient history: %d bars, need at least %d", e.Bars, e.Required)
}

func (e *InsufficientHistoryError) Unwrap() error { return ErrInsufficientHistory }

// Stage names a step of the training or inference flow.
type Stage string

const (
	StageLoad     Stage = "load"
	StageClean    Stage = "clean"
	StageFeature  Stage = "feature"
	StageLabel    Stage = "label"
	StageSplit    Stage = "split"
	StageFit      Stage = "fit"
	StageEvaluate Stage = "evaluate"
	StageSave     Stage = "save"
	StageExport   Stage = "export"
	StagePredict  Stage = "predict"
	StagePublish  Stage = "publish"
)

// StageError identifies the stage that aborted a run.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// WrapStage returns nil for a nil err, otherwise a *StageError.
func WrapStage(stage Stage, err error) error {
	if err == nil {
		return nil
	}
	return &StageError{Stage: stage, Err: err}
}
