package guardian

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"guardian-go/internal/model"
)

func TestNewReaderBlob(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		total   uint64
		want    string
		wantErr error
	}{
		{"exact length", "hello", 5, "hello", nil},
		{"stream longer than declared", "hello world", 5, "hello", nil},
		{"stream shorter than declared", "hi", 5, "hi", io.ErrUnexpectedEOF},
		{"empty", "", 0, "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := NewReaderBlob(io.NopCloser(strings.NewReader(tt.data)), tt.total)
			got, err := io.ReadAll(src)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ReadAll() error = %v, want %v", err, tt.wantErr)
			}
			if string(got) != tt.want {
				t.Errorf("ReadAll() = %q, want %q", got, tt.want)
			}
			if tt.wantErr == nil && src.RemainingLength() != 0 {
				t.Errorf("RemainingLength() = %d, want 0", src.RemainingLength())
			}
		})
	}
}

func TestCheckedCopy(t *testing.T) {
	var buf bytes.Buffer
	n, err := CheckedCopy(&buf, NewBytesBlob([]byte("abc")))
	if err != nil || n != 3 {
		t.Fatalf("CheckedCopy() = %d, %v; want 3, nil", n, err)
	}

	short := NewReaderBlob(io.NopCloser(strings.NewReader("ab")), 3)
	if _, err := CheckedCopy(io.Discard, short); err == nil {
		t.Error("CheckedCopy() expected error for short stream")
	}
}

func TestReadToEnd(t *testing.T) {
	src := NewBytesBlob([]byte("payload"))
	if src.TotalLength() != 7 {
		t.Errorf("TotalLength() = %d, want 7", src.TotalLength())
	}
	got, err := ReadToEnd(src)
	if err != nil {
		t.Fatalf("ReadToEnd() error = %v", err)
	}
	if string(got) != "payload" {
		t.Errorf("ReadToEnd() = %q", got)
	}
	if src.RemainingLength() != 0 {
		t.Errorf("RemainingLength() = %d after ReadToEnd", src.RemainingLength())
	}
}

func TestReadToEnd_DeclaredLengthTooLarge(t *testing.T) {
	src := NewReaderBlob(io.NopCloser(strings.NewReader("tiny")), 1<<62)
	_, err := ReadToEnd(src)
	if !errors.Is(err, model.ErrDecode) {
		t.Errorf("ReadToEnd() error = %v, want ErrDecode", err)
	}
}
