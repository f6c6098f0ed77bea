package remote

import (
	"fmt"

	"guardian-go/internal/guardian"
	"guardian-go/internal/model"
)

// RemoteVault is a guardian.BlobStore served by a remote Server. Every
// ref is sent as owned by its own owner; the server rejects refs that do
// not belong to the authenticated user.
type RemoteVault struct {
	transport Transport
}

// NewRemoteVault creates a blob store over transport.
func NewRemoteVault(transport Transport) *RemoteVault {
	return &RemoteVault{transport: transport}
}

func blobCall(kind CallKind, ref model.BlobIdentifier) *Call {
	return &Call{Kind: kind, User: ref.Owner, Blob: &ref}
}

// Has asks the server whether ref is stored.
func (v *RemoteVault) Has(ref model.BlobIdentifier) (bool, error) {
	resp, err := exchange(v.transport, blobCall(CallBlobExists, ref))
	if err != nil {
		return false, err
	}
	return resp.Exists, nil
}

// Insert uploads content unless the server already holds ref.
func (v *RemoteVault) Insert(ref model.BlobIdentifier, content guardian.BlobSource) error {
	exists, err := v.Has(ref)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	resp, blob, err := v.transport.Exchange(blobCall(CallBlobCreate, ref), content)
	if err != nil {
		return fmt.Errorf("uploading %s: %w", ref, err)
	}
	if blob != nil {
		blob.Close()
	}
	return resp.Err()
}

// Fetch downloads the blob stored under ref.
func (v *RemoteVault) Fetch(ref model.BlobIdentifier) (guardian.BlobSource, error) {
	resp, blob, err := v.transport.Exchange(blobCall(CallBlobGet, ref), nil)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", ref, err)
	}
	if err := resp.Err(); err != nil {
		if blob != nil {
			blob.Close()
		}
		return nil, err
	}
	if blob == nil {
		return guardian.NewBytesBlob(nil), nil
	}
	return blob, nil
}

// Delete removes ref on the server.
func (v *RemoteVault) Delete(ref model.BlobIdentifier) error {
	_, err := exchange(v.transport, blobCall(CallBlobDelete, ref))
	return err
}

var _ guardian.BlobStore = (*RemoteVault)(nil)
