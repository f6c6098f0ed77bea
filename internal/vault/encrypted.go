package vault

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync"

	"guardian-go/internal/guardian"
	"guardian-go/internal/model"
)

// headerSize is the length of the plaintext-size prefix on encrypted blobs.
const headerSize = 8

// EncryptedVault encrypts blobs before they reach the wrapped store.
// Stored bytes are an 8-byte big-endian plaintext length followed by
// the ciphertext. Refs keep their plaintext hashes, so deduplication
// still applies per owner.
//
// Inserting needs only the public key. Fetching needs a decryption
// context from Unlock; a locked vault refuses fetches.
type EncryptedVault struct {
	inner     guardian.BlobStore
	encryptor guardian.Encryptor
	tempDir   string

	mu  sync.RWMutex
	dec guardian.DecryptionContext
}

// NewEncryptedVault wraps inner. Ciphertext is spooled to tempDir (the
// system default when empty) so its length is known before upload.
func NewEncryptedVault(inner guardian.BlobStore, encryptor guardian.Encryptor, tempDir string) *EncryptedVault {
	return &EncryptedVault{inner: inner, encryptor: encryptor, tempDir: tempDir}
}

// Unlock enables fetches for the rest of the session.
func (v *EncryptedVault) Unlock(dec guardian.DecryptionContext) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.dec = dec
}

func (v *EncryptedVault) decryption() guardian.DecryptionContext {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.dec
}

// Insert encrypts content and stores it under ref.
func (v *EncryptedVault) Insert(ref model.BlobIdentifier, content guardian.BlobSource) error {
	if checker, ok := v.inner.(Checker); ok {
		exists, err := checker.Has(ref)
		if err != nil {
			return err
		}
		if exists {
			return nil
		}
	}

	spool, err := os.CreateTemp(v.tempDir, "guardian-enc-*")
	if err != nil {
		return fmt.Errorf("creating spool file: %w", err)
	}
	defer os.Remove(spool.Name())
	defer spool.Close()

	var header [headerSize]byte
	binary.BigEndian.PutUint64(header[:], content.TotalLength())
	if _, err := spool.Write(header[:]); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	counted := &countingReader{r: content}
	if err := v.encryptor.Encrypt(counted, spool); err != nil {
		return fmt.Errorf("encrypting blob: %w", err)
	}
	if counted.n != content.TotalLength() {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", content.TotalLength(), counted.n)
	}

	size, err := spool.Seek(0, io.SeekCurrent)
	if err != nil {
		return fmt.Errorf("sizing spool file: %w", err)
	}
	if _, err := spool.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewinding spool file: %w", err)
	}
	return v.inner.Insert(ref, guardian.NewReaderBlob(io.NopCloser(spool), uint64(size)))
}

// Fetch returns a source that decrypts the stored blob as it is read.
func (v *EncryptedVault) Fetch(ref model.BlobIdentifier) (guardian.BlobSource, error) {
	dec := v.decryption()
	if dec == nil {
		return nil, fmt.Errorf("vault is locked: %w", model.ErrPermissionDenied)
	}

	src, err := v.inner.Fetch(ref)
	if err != nil {
		return nil, err
	}

	var header [headerSize]byte
	if _, err := io.ReadFull(src, header[:]); err != nil {
		src.Close()
		return nil, fmt.Errorf("reading header of %s: %v: %w", ref, err, model.ErrDecode)
	}
	plainLen := binary.BigEndian.Uint64(header[:])
	if src.TotalLength() < headerSize || plainLen > src.TotalLength()-headerSize {
		src.Close()
		return nil, fmt.Errorf("header of %s declares %d bytes in a %d byte blob: %w", ref, plainLen, src.TotalLength(), model.ErrDecode)
	}

	// Decrypt on a goroutine, streaming plaintext through a pipe.
	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(dec.Decrypt(src, pw))
	}()
	return guardian.NewReaderBlob(&decryptingReader{pr: pr, src: src}, plainLen), nil
}

// Delete removes the stored blob.
func (v *EncryptedVault) Delete(ref model.BlobIdentifier) error {
	return v.inner.Delete(ref)
}

// Has delegates to the wrapped store when it supports existence checks.
func (v *EncryptedVault) Has(ref model.BlobIdentifier) (bool, error) {
	checker, ok := v.inner.(Checker)
	if !ok {
		return false, fmt.Errorf("existence check: %w", model.ErrUnsupported)
	}
	return checker.Has(ref)
}

type decryptingReader struct {
	pr  *io.PipeReader
	src guardian.BlobSource
}

func (d *decryptingReader) Read(p []byte) (int, error) { return d.pr.Read(p) }

// Close unblocks the decrypting goroutine before releasing the stored blob.
func (d *decryptingReader) Close() error {
	d.pr.Close()
	return d.src.Close()
}

// Compile-time check that EncryptedVault implements guardian.BlobStore
var _ guardian.BlobStore = (*EncryptedVault)(nil)
