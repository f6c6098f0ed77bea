// Package remote serves backup records and blobs over websockets and
// provides the client side as a guardian.BackupRepository and BlobStore.
//
// Each exchange uses its own connection and carries exactly two messages
// in each direction: the encoded Call (or Response), then the blob bytes.
// A zero-length second message means no blob.
package remote

import (
	"errors"
	"fmt"

	"guardian-go/internal/guardian"
	"guardian-go/internal/model"
)

// CallKind names a remote operation.
type CallKind string

const (
	CallBackupCreate CallKind = "backup.create"
	CallBackupGet    CallKind = "backup.get"
	CallBackupList   CallKind = "backup.list"
	CallBackupPatch  CallKind = "backup.patch"
	CallBlobCreate   CallKind = "blob.create"
	CallBlobGet      CallKind = "blob.get"
	CallBlobDelete   CallKind = "blob.delete"
	CallBlobExists   CallKind = "blob.exists"
)

// Call is a request from a client acting for User.
type Call struct {
	Kind       CallKind              `yaml:"kind"`
	User       model.UserIdentifier  `yaml:"user"`
	Backup     *model.Backup         `yaml:"backup,omitempty"`
	BackupID   model.BackupID        `yaml:"backup_id,omitempty"`
	Blob       *model.BlobIdentifier `yaml:"blob,omitempty"`
	BlobLength uint64                `yaml:"blob_length,omitempty"`
}

// Status is the outcome of a call as seen on the wire.
type Status string

const (
	StatusOK               Status = "ok"
	StatusBackupNotFound   Status = "backup_not_found"
	StatusBlobNotFound     Status = "blob_not_found"
	StatusNotFound         Status = "not_found"
	StatusAlreadyExists    Status = "already_exists"
	StatusPermissionDenied Status = "permission_denied"
	StatusUnsupported      Status = "unsupported"
	StatusDecode           Status = "decode"
	StatusError            Status = "error"
)

// Response answers a Call.
type Response struct {
	Status     Status          `yaml:"status"`
	Message    string          `yaml:"message,omitempty"`
	Backup     *model.Backup   `yaml:"backup,omitempty"`
	Backups    []*model.Backup `yaml:"backups,omitempty"`
	Exists     bool            `yaml:"exists,omitempty"`
	BlobLength uint64          `yaml:"blob_length,omitempty"`
}

// Transport carries one call and its optional blob to the server and
// returns the response and its optional blob. The caller closes the
// returned blob when it is not nil.
type Transport interface {
	Exchange(call *Call, blob guardian.BlobSource) (*Response, guardian.BlobSource, error)
}

// statusOf classifies err for the wire. Order matters: the specific
// not-found errors also match model.ErrNotFound.
func statusOf(err error) Status {
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, model.ErrBackupNotFound):
		return StatusBackupNotFound
	case errors.Is(err, model.ErrBlobNotFound):
		return StatusBlobNotFound
	case errors.Is(err, model.ErrNotFound):
		return StatusNotFound
	case errors.Is(err, model.ErrAlreadyExists):
		return StatusAlreadyExists
	case errors.Is(err, model.ErrPermissionDenied):
		return StatusPermissionDenied
	case errors.Is(err, model.ErrUnsupported):
		return StatusUnsupported
	case errors.Is(err, model.ErrDecode):
		return StatusDecode
	default:
		return StatusError
	}
}

func errorResponse(err error) *Response {
	return &Response{Status: statusOf(err), Message: err.Error()}
}

// Err turns a failed response back into an error wrapping the matching
// model sentinel.
func (r *Response) Err() error {
	var kind error
	switch r.Status {
	case StatusOK:
		return nil
	case StatusBackupNotFound:
		kind = model.ErrBackupNotFound
	case StatusBlobNotFound:
		kind = model.ErrBlobNotFound
	case StatusNotFound:
		kind = model.ErrNotFound
	case StatusAlreadyExists:
		kind = model.ErrAlreadyExists
	case StatusPermissionDenied:
		kind = model.ErrPermissionDenied
	case StatusUnsupported:
		kind = model.ErrUnsupported
	case StatusDecode:
		kind = model.ErrDecode
	default:
		return fmt.Errorf("remote: %s", r.Message)
	}
	return fmt.Errorf("remote: %s: %w", r.Message, kind)
}
