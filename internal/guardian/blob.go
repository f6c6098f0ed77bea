package guardian

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"guardian-go/internal/model"
)

// BlobSource streams the bytes of one blob. TotalLength is known before
// the first read; RemainingLength shrinks as bytes are consumed. Read
// returns io.EOF once the stream is exhausted.
//
// Whoever obtains a BlobSource closes it.
type BlobSource interface {
	io.ReadCloser
	TotalLength() uint64
	RemainingLength() uint64
}

// BlobStore is a content-addressed store of immutable blobs. Keys are
// BlobIdentifiers; inserting an existing key is a no-op and need not
// consume the source. Implementations are safe for concurrent use.
type BlobStore interface {
	// Insert stores the content under ref unless ref already exists.
	Insert(ref model.BlobIdentifier, content BlobSource) error

	// Fetch opens the blob stored under ref. Returns an error wrapping
	// model.ErrNotFound when ref is absent.
	Fetch(ref model.BlobIdentifier) (BlobSource, error)

	// Delete removes the blob under ref. Returns an error wrapping
	// model.ErrNotFound when ref is absent.
	Delete(ref model.BlobIdentifier) error
}

// maxPrealloc bounds the buffer ReadToEnd sizes from a declared length,
// which may come from stored or remote metadata.
const maxPrealloc = 1 << 20

// ReadToEnd drains src into memory. A stream that ends before its
// declared length fails with model.ErrDecode.
func ReadToEnd(src BlobSource) ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, min(src.RemainingLength(), maxPrealloc)))
	if _, err := io.Copy(buf, src); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("blob shorter than declared %d bytes: %w", src.TotalLength(), model.ErrDecode)
		}
		return nil, err
	}
	return buf.Bytes(), nil
}

// bytesBlob serves a blob held in memory.
type bytesBlob struct {
	r     *bytes.Reader
	total uint64
}

// NewBytesBlob returns a BlobSource over data.
func NewBytesBlob(data []byte) BlobSource {
	return &bytesBlob{r: bytes.NewReader(data), total: uint64(len(data))}
}

func (b *bytesBlob) Read(p []byte) (int, error) { return b.r.Read(p) }
func (b *bytesBlob) Close() error               { return nil }
func (b *bytesBlob) TotalLength() uint64        { return b.total }
func (b *bytesBlob) RemainingLength() uint64    { return uint64(b.r.Len()) }

// readerBlob serves a blob from a stream whose length is known up front.
// Reads never go past the declared length; a stream that ends early
// yields io.ErrUnexpectedEOF.
type readerBlob struct {
	rc        io.ReadCloser
	total     uint64
	remaining uint64
}

// NewReaderBlob wraps rc as a BlobSource of exactly total bytes.
func NewReaderBlob(rc io.ReadCloser, total uint64) BlobSource {
	return &readerBlob{rc: rc, total: total, remaining: total}
}

func (b *readerBlob) Read(p []byte) (int, error) {
	if b.remaining == 0 {
		return 0, io.EOF
	}
	if uint64(len(p)) > b.remaining {
		p = p[:b.remaining]
	}
	n, err := b.rc.Read(p)
	b.remaining -= uint64(n)
	if err == io.EOF {
		if b.remaining > 0 {
			return n, io.ErrUnexpectedEOF
		}
		if n > 0 {
			err = nil
		}
	}
	return n, err
}

func (b *readerBlob) Close() error            { return b.rc.Close() }
func (b *readerBlob) TotalLength() uint64     { return b.total }
func (b *readerBlob) RemainingLength() uint64 { return b.remaining }

// CheckedCopy copies src to w and fails unless exactly TotalLength bytes
// were transferred.
func CheckedCopy(w io.Writer, src BlobSource) (int64, error) {
	n, err := io.Copy(w, src)
	if err != nil {
		return n, err
	}
	if uint64(n) != src.TotalLength() {
		return n, fmt.Errorf("blob length mismatch: declared %d, read %d", src.TotalLength(), n)
	}
	return n, nil
}
