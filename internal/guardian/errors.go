package guardian

import (
	"errors"
	"fmt"

	"guardian-go/internal/model"
)

// Step names the stage of a sync operation that failed.
type Step string

const (
	StepCapture   Step = "capture"
	StepEncode    Step = "encode"
	StepUpload    Step = "upload"
	StepPersist   Step = "persist"
	StepLoad      Step = "load"
	StepFetchTree Step = "fetch-tree"
	StepDecode    Step = "decode"
	StepDiff      Step = "diff"
	StepApply     Step = "apply"
)

// SyncError reports which step of a backup or restore failed and on what.
// The underlying error keeps its kind: errors.Is(err, model.ErrNotFound)
// still works through a SyncError.
type SyncError struct {
	Step   Step
	Target string
	Err    error
}

func (e *SyncError) Error() string {
	if e.Target == "" {
		return fmt.Sprintf("%s: %v", e.Step, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Step, e.Target, e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }

func stepError(step Step, target string, err error) error {
	return &SyncError{Step: step, Target: target, Err: err}
}

// Exit codes returned by the CLI for each error kind.
const (
	ExitOK               = 0
	ExitFailure          = 1
	ExitNotFound         = 2
	ExitUnsupported      = 3
	ExitDecodeFailure    = 4
	ExitPermissionDenied = 5
)

// ExitCode maps an error to the process exit code for its kind.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, model.ErrNotFound):
		return ExitNotFound
	case errors.Is(err, model.ErrUnsupported):
		return ExitUnsupported
	case errors.Is(err, model.ErrDecode):
		return ExitDecodeFailure
	case errors.Is(err, model.ErrPermissionDenied):
		return ExitPermissionDenied
	default:
		return ExitFailure
	}
}

// IsPermanent reports whether retrying err cannot help.
func IsPermanent(err error) bool {
	return ExitCode(err) > ExitFailure || errors.Is(err, model.ErrAlreadyExists)
}
