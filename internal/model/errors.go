package model

import (
	"errors"
	"fmt"
)

// Error kinds shared by every layer. Callers match them with errors.Is.
var (
	ErrNotFound         = errors.New("not found")
	ErrUnsupported      = errors.New("unsupported")
	ErrDecode           = errors.New("decode failure")
	ErrPermissionDenied = errors.New("permission denied")
	ErrAlreadyExists    = errors.New("already exists")
)

var (
	ErrBackupNotFound    = fmt.Errorf("backup %w", ErrNotFound)
	ErrSnapshotNotFound  = fmt.Errorf("snapshot %w", ErrNotFound)
	ErrBlobNotFound      = fmt.Errorf("blob %w", ErrNotFound)
	ErrRuleNotInSchedule = errors.New("rule not in schedule")
)
