// Package ingest turns uploaded receipt files into committed receipts.
//
// Every file moves through uploaded, recognized, normalized, categorized,
// reconciled and committed, or stops in Failed with the stage that failed.
// A batch runs on a bounded pool and reports results in submission order.
package ingest

import (
	"fmt"

	"github.com/zombor/pantry-tracker/internal/pantry"
	"github.com/zombor/pantry-tracker/internal/receipt"
)

// File is one uploaded file
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Outcome is the terminal state of one file
type Outcome string

const (
	Committed Outcome = "committed"
	Duplicate Outcome = "duplicate"
	Failed    Outcome = "failed"
)

// Stage names the step a file failed in
type Stage string

const (
	StageUpload      Stage = "upload"
	StageRecognition Stage = "recognition"
	StageNormalize   Stage = "normalize"
	StageCategorize  Stage = "categorize"
	StageReconcile   Stage = "reconcile"
	StageCommit      Stage = "commit"
)

// Failure reasons shared by several stages
const (
	ReasonTimeout     = "timeout"
	ReasonCancelled   = "cancelled"
	ReasonUnavailable = "storage unavailable"
)

// Error is the failure of one file
type Error struct {
	Stage  Stage  `json:"stage"`
	Reason string `json:"reason"`
	Err    error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s failed: %s: %v", e.Stage, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s failed: %s", e.Stage, e.Reason)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Result is the outcome of one file
type Result struct {
	File    string           `json:"file"`
	Outcome Outcome          `json:"outcome"`
	Receipt *receipt.Receipt `json:"receipt,omitempty"`
	Delta   *pantry.Delta    `json:"delta,omitempty"`
	Error   *Error           `json:"error,omitempty"`
}

func failed(name string, stage Stage, reason string, err error) Result {
	return Result{File: name, Outcome: Failed, Error: &Error{Stage: stage, Reason: reason, Err: err}}
}
